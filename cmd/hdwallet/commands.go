// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hdwallet/internal/cfgutil"
	"github.com/btcsuite/hdwallet/internal/prompt"
	"github.com/btcsuite/hdwallet/waddrmgr"
	"github.com/btcsuite/hdwallet/wallet"
	"github.com/btcsuite/hdwallet/wallet/txauthor"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// walletCommand is one sub-command.  The flags of a command are the tagged
// fields of the struct implementing it.
type walletCommand interface {
	run(ctx context.Context, cfg *config, args []string) error
}

// commandInfo registers a command with the parser.
type commandInfo struct {
	name  string
	short string
	long  string
	cmd   walletCommand
}

// commands is the set of sub-commands.
type commands struct {
	infos []commandInfo
}

// newCommands returns every sub-command with its default flags.
func newCommands() *commands {
	return &commands{infos: []commandInfo{
		{"create", "Create a wallet from a mnemonic",
			"Create a single key or multisig wallet.  The mnemonic " +
				"of the wallet's own key is prompted for, or " +
				"generated when none is given.",
			&createCommand{
				ScriptType: "p2wpkh",
				GapLimit:   wallet.DefaultGapLimit,
			}},
		{"importxpub", "Create a watch-only wallet from an xpub",
			"Create a watch-only single key wallet from an account " +
				"extended public key in any SLIP-132 encoding.",
			&importXPubCommand{GapLimit: wallet.DefaultGapLimit}},
		{"convert", "Convert an extended key to another prefix",
			"Convert an extended key between SLIP-132 prefixes, " +
				"e.g. xpub to zpub.  The wallet is not opened.",
			&convertCommand{}},
		{"info", "Show the wallet identity",
			"Show the descriptor, cosigners and sync cursors.",
			&infoCommand{}},
		{"receive", "Show the next unused address",
			"Show the next unused receive or change address.",
			&receiveCommand{}},
		{"address", "Show a derived address",
			"Show the address at a branch and index, and its private " +
				"key on request.",
			&addressCommand{}},
		{"sync", "Sync the wallet with the index",
			"Fetch balances, transactions and unspent outputs.",
			&syncCommand{}},
		{"balance", "Show the balance",
			"Show the confirmed, unconfirmed and spendable balance.",
			&balanceCommand{}},
		{"history", "Show the transaction history",
			"Show the transactions of the wallet, newest first.",
			&historyCommand{}},
		{"utxos", "List unspent outputs",
			"List the unspent outputs in ascending value order.",
			&utxosCommand{}},
		{"freeze", "Freeze or unfreeze outputs",
			"Exclude outputs given as txid:vout from coin selection.",
			&freezeCommand{}},
		{"memo", "Attach a memo to an output",
			"Attach a memo to the output txid:vout.",
			&memoCommand{}},
		{"send", "Build and sign a transaction",
			"Build a transaction paying address=amount targets, " +
				"sign it with the wallet's keys and optionally " +
				"publish it.  An amount of max sends everything.",
			&sendCommand{
				FeeRate: cfgutil.NewFeeRateFlag(defaultFeeRate),
			}},
		{"sign", "Sign a PSBT",
			"Add the wallet's signatures to a base64 or hex PSBT.",
			&signCommand{}},
		{"combine", "Combine PSBTs",
			"Merge PSBTs of the same transaction signed by different " +
				"cosigners.",
			&combineCommand{}},
		{"finalize", "Finalize a PSBT",
			"Finalize a PSBT that has enough signatures.",
			&finalizeCommand{}},
		{"broadcast", "Broadcast a transaction",
			"Broadcast a hex transaction or a complete PSBT.",
			&broadcastCommand{}},
		{"replacecosigner", "Replace the key material of a cosigner",
			"Swap a cosigner for a seed or xpub of the same master " +
				"key, e.g. to make a watch-only wallet spendable.",
			&replaceCosignerCommand{}},
		{"watch", "Sync periodically until interrupted",
			"Run the background sync loop until interrupted.",
			&watchCommand{}},
	}}
}

// list returns the registered commands.
func (c *commands) list() []commandInfo {
	return c.infos
}

// lookup returns the command registered under name.
func (c *commands) lookup(name string) (walletCommand, bool) {
	for _, info := range c.infos {
		if info.name == name {
			return info.cmd, true
		}
	}
	return nil, false
}

// stdout is where command results are written.
var stdout io.Writer = os.Stdout

// parseOptionalPath parses a derivation path, None for the empty string.
func parseOptionalPath(s string) (fn.Option[waddrmgr.Path], error) {
	if s == "" {
		return fn.None[waddrmgr.Path](), nil
	}

	path, err := waddrmgr.ParsePath(s)
	if err != nil {
		return fn.None[waddrmgr.Path](), err
	}
	return fn.Some(path), nil
}

// parseCosigner parses a watch-only cosigner given as
// fingerprint:xpub[:path].
func parseCosigner(s string) (*waddrmgr.Cosigner, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("cosigner %q is not fingerprint:xpub"+
			"[:path]", s)
	}

	fp, err := waddrmgr.ParseFingerprint(parts[0])
	if err != nil {
		return nil, err
	}

	path := fn.None[waddrmgr.Path]()
	if len(parts) == 3 {
		path, err = parseOptionalPath(parts[2])
		if err != nil {
			return nil, err
		}
	}

	return waddrmgr.NewXPubCosigner(parts[1], fp, path)
}

// parseOutpoint parses txid:vout.
func parseOutpoint(s string) (string, uint32, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("outpoint %q is not txid:vout", s)
	}

	txid := s[:i]
	if _, err := chainhash.NewHashFromStr(txid); err != nil ||
		len(txid) != chainhash.MaxHashStringSize {

		return "", 0, fmt.Errorf("invalid txid %q", txid)
	}

	vout, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid output index: %w", err)
	}

	return txid, uint32(vout), nil
}

// parseTarget parses address=amount.  The amount is in BTC unless
// suffixed with sat, and max sends everything.
func parseTarget(s string) (wallet.Target, error) {
	addr, amount, ok := strings.Cut(s, "=")
	addr = strings.TrimSpace(addr)
	if !ok || addr == "" {
		return wallet.Target{}, fmt.Errorf("target %q is not "+
			"address=amount", s)
	}

	target := wallet.Target{Address: addr}
	if strings.EqualFold(strings.TrimSpace(amount), "max") {
		return target, nil
	}

	var value cfgutil.AmountFlag
	if err := value.UnmarshalFlag(amount); err != nil {
		return wallet.Target{}, fmt.Errorf("target %q: %w", s, err)
	}
	if value.Amount <= 0 {
		return wallet.Target{}, fmt.Errorf("target %q: amount must "+
			"be positive", s)
	}
	target.Value = fn.Some(value.Amount)

	return target, nil
}

// parseStrategy maps a strategy name to the coin selection strategy.
func parseStrategy(s string) (txauthor.InputSelectionStrategy, error) {
	for _, strategy := range []txauthor.InputSelectionStrategy{
		txauthor.AccumulativeSelection, txauthor.ConstantSelection,
	} {
		if strategy.String() == s {
			return strategy, nil
		}
	}
	return 0, fmt.Errorf("unknown selection strategy %q", s)
}

// readArg returns arg, or everything on stdin when arg is "-".
func readArg(arg string) (string, error) {
	if arg != "-" {
		return strings.TrimSpace(arg), nil
	}

	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// decodePsbt parses a hex or base64 PSBT.
func decodePsbt(s string) (*psbt.Packet, error) {
	s = strings.TrimSpace(s)
	if raw, err := hex.DecodeString(s); err == nil {
		return psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	}
	return psbt.NewFromRawBytes(strings.NewReader(s), true)
}

// decodeTx parses a hex transaction, or extracts the transaction of a
// complete PSBT.
func decodeTx(s string) (*wire.MsgTx, error) {
	s = strings.TrimSpace(s)
	if raw, err := hex.DecodeString(s); err == nil {
		tx := wire.NewMsgTx(wire.TxVersion)
		if err := tx.Deserialize(bytes.NewReader(raw)); err == nil {
			return tx, nil
		}
	}

	packet, err := decodePsbt(s)
	if err != nil {
		return nil, errors.New("input is neither a transaction nor a " +
			"PSBT")
	}

	tx, err := wallet.FinalizePsbt(packet)
	if err != nil {
		return nil, err
	}
	return tx.UnwrapOrErr(errors.New("PSBT is missing signatures"))
}

// encodeTx hex encodes a transaction.
func encodeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// printPacket writes the packet, its signature status and, once
// finalized, the raw transaction.
func printPacket(packet *psbt.Packet, tx fn.Option[*wire.MsgTx]) error {
	b64, err := packet.B64Encode()
	if err != nil {
		return err
	}

	for i, s := range wallet.SignatureStatus(packet) {
		fmt.Fprintf(stdout, "input %d: %d of %d signatures\n", i,
			s.Have, s.Need)
	}
	fmt.Fprintf(stdout, "psbt: %s\n", b64)

	return fn.MapOptionZ(tx, func(tx *wire.MsgTx) error {
		raw, err := encodeTx(tx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "txid: %v\ntx: %s\n", tx.TxHash(), raw)
		return nil
	})
}

// publishIfFinal broadcasts tx when it is set and publish is requested.
func publishIfFinal(ctx context.Context, w *wallet.Wallet,
	tx fn.Option[*wire.MsgTx], publish bool) error {

	if !publish {
		return nil
	}
	if tx.IsNone() {
		fmt.Fprintln(stdout, "transaction is awaiting signatures, "+
			"not published")
		return nil
	}

	txid, err := w.PublishTransaction(ctx, tx.UnwrapOr(nil))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "published: %s\n", txid)
	return nil
}

// seedCosigner prompts for the mnemonic of the wallet's own key.
func seedCosigner(reader *bufio.Reader,
	path fn.Option[waddrmgr.Path]) (*waddrmgr.Cosigner, error) {

	mnemonic, err := prompt.Mnemonic(reader)
	if err != nil {
		return nil, err
	}
	pass, err := prompt.SeedPassphrase(reader, true)
	if err != nil {
		return nil, err
	}

	seed, err := waddrmgr.NewMnemonicSeed(mnemonic, pass)
	if err != nil {
		return nil, err
	}
	return waddrmgr.NewSeedCosigner(seed, path), nil
}

// printIdentity writes the descriptor and cosigners of w.
func printIdentity(w *wallet.Wallet) {
	id := w.Identity()
	fmt.Fprintf(stdout, "descriptor: %s\n", id)
	fmt.Fprintf(stdout, "type: %s, %d-of-%d, watch-only: %v\n",
		id.Policy().Name, id.Threshold(), len(id.Cosigners()),
		id.IsWatchOnly())
	for i, c := range id.Cosigners() {
		fmt.Fprintf(stdout, "cosigner %d: %s signing: %v\n", i, c,
			!c.IsWatchOnly())
	}
}

type createCommand struct {
	ScriptType  string   `long:"type" description:"Script type {p2pkh, p2sh-p2wpkh, p2wpkh, p2tr, p2sh, p2sh-p2wsh, p2wsh}"`
	AccountPath string   `long:"path" description:"Custom account path of the wallet's own key, e.g. m/84'/0'/7'"`
	GapLimit    uint32   `long:"gaplimit" description:"Consecutive unused addresses probed past the last used one"`
	Threshold   int      `long:"threshold" description:"Signatures required by a multisig wallet"`
	Cosigners   []string `long:"cosigner" description:"Other cosigner of a multisig wallet as fingerprint:xpub[:path], repeatable"`
	WatchOnly   bool     `long:"watchonly" description:"Create a multisig wallet without a key of its own"`
}

func (c *createCommand) run(_ context.Context, cfg *config,
	_ []string) error {

	scriptType, err := waddrmgr.ParseScriptType(c.ScriptType)
	if err != nil {
		return err
	}
	path, err := parseOptionalPath(c.AccountPath)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	params := cfg.activeNet.Params

	var id *waddrmgr.Identity
	if !scriptType.IsMultiSig() {
		if len(c.Cosigners) > 0 || c.WatchOnly {
			return fmt.Errorf("%v wallets have a single key",
				scriptType)
		}

		own, err := seedCosigner(reader, path)
		if err != nil {
			return err
		}
		id, err = waddrmgr.NewSingleSigIdentity(params, scriptType, own)
		if err != nil {
			return err
		}
	} else {
		var cosigners []*waddrmgr.Cosigner
		if !c.WatchOnly {
			own, err := seedCosigner(reader, path)
			if err != nil {
				return err
			}
			cosigners = append(cosigners, own)
		}
		for _, s := range c.Cosigners {
			cosigner, err := parseCosigner(s)
			if err != nil {
				return err
			}
			cosigners = append(cosigners, cosigner)
		}

		id, err = waddrmgr.NewMultisigIdentity(
			params, scriptType, c.Threshold, cosigners,
		)
		if err != nil {
			return err
		}
	}

	w, cleanup, err := createWallet(cfg, wallet.Config{
		Identity: id,
		GapLimit: c.GapLimit,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	printIdentity(w)
	return nil
}

type importXPubCommand struct {
	ScriptType  string `long:"type" description:"Script type, inferred from the SLIP-132 prefix when omitted"`
	Fingerprint string `long:"fingerprint" description:"Master key fingerprint, e.g. 73c5da0a"`
	AccountPath string `long:"path" description:"Account path of the key, e.g. m/84'/0'/0'"`
	GapLimit    uint32 `long:"gaplimit" description:"Consecutive unused addresses probed past the last used one"`
}

func (c *importXPubCommand) run(_ context.Context, cfg *config,
	args []string) error {

	if len(args) != 1 {
		return errors.New("usage: importxpub <xpub>")
	}
	xpub := args[0]

	var (
		scriptType waddrmgr.ScriptType
		err        error
	)
	if c.ScriptType != "" {
		scriptType, err = waddrmgr.ParseScriptType(c.ScriptType)
		if err != nil {
			return err
		}
	} else {
		prefix, err := waddrmgr.DetectPrefix(xpub)
		if err != nil {
			return err
		}
		t, ok := waddrmgr.ScriptTypeForPrefix(prefix)
		if !ok {
			return fmt.Errorf("script type of a %s key is "+
				"ambiguous, use --type", prefix)
		}
		scriptType = t
	}

	var fp uint32
	if c.Fingerprint != "" {
		fp, err = waddrmgr.ParseFingerprint(c.Fingerprint)
		if err != nil {
			return err
		}
	}
	path, err := parseOptionalPath(c.AccountPath)
	if err != nil {
		return err
	}

	cosigner, err := waddrmgr.NewXPubCosigner(xpub, fp, path)
	if err != nil {
		return err
	}
	id, err := waddrmgr.NewSingleSigIdentity(
		cfg.activeNet.Params, scriptType, cosigner,
	)
	if err != nil {
		return err
	}

	w, cleanup, err := createWallet(cfg, wallet.Config{
		Identity: id,
		GapLimit: c.GapLimit,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	printIdentity(w)
	return nil
}

type convertCommand struct{}

func (c *convertCommand) run(_ context.Context, _ *config,
	args []string) error {

	if len(args) != 2 {
		return errors.New("usage: convert <key> <prefix>")
	}

	converted, err := waddrmgr.ConvertExtendedKey(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, converted)
	return nil
}

type infoCommand struct{}

func (c *infoCommand) run(_ context.Context, cfg *config, _ []string) error {
	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	printIdentity(w)

	xpub, err := w.Identity().AccountXPub("")
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "account key: %s\n", xpub)
	fmt.Fprintf(stdout, "gap limit: %d\n", w.GapLimit())
	fmt.Fprintf(stdout, "next receive index: %d\n",
		w.NextFree(waddrmgr.ExternalBranch))
	fmt.Fprintf(stdout, "next change index: %d\n",
		w.NextFree(waddrmgr.InternalBranch))
	fmt.Fprintf(stdout, "best height: %d\n", w.BestHeight())
	return nil
}

// printAddress writes an address with its derivation.
func printAddress(rec *waddrmgr.AddressRecord) {
	fmt.Fprintf(stdout, "%s %v/%d\n", rec.EncodeAddress(), rec.Branch,
		rec.Index)
	for _, d := range rec.Derivations {
		fmt.Fprintf(stdout, "  [%s%s] %x\n",
			waddrmgr.FormatFingerprint(d.Fingerprint),
			d.Path.String()[1:], d.PubKey.SerializeCompressed())
	}
}

type receiveCommand struct {
	Change bool `long:"change" description:"Show the next change address"`
}

func (c *receiveCommand) run(_ context.Context, cfg *config,
	_ []string) error {

	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	next := w.NextReceiveAddress
	if c.Change {
		next = w.NextChangeAddress
	}
	rec, err := next()
	if err != nil {
		return err
	}

	printAddress(rec)
	return nil
}

type addressCommand struct {
	Change bool   `long:"change" description:"Derive from the change chain"`
	Index  uint32 `long:"index" description:"Address index"`
	WIF    bool   `long:"wif" description:"Also show the private key of a single key wallet"`
}

func (c *addressCommand) run(_ context.Context, cfg *config,
	_ []string) error {

	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	branch := waddrmgr.ExternalBranch
	if c.Change {
		branch = waddrmgr.InternalBranch
	}
	rec, err := w.Address(branch, c.Index)
	if err != nil {
		return err
	}
	printAddress(rec)

	if !c.WIF {
		return nil
	}
	wif, err := w.WIF(branch, c.Index)
	if err != nil {
		return err
	}
	str := "unavailable for watch-only keys"
	wif.WhenSome(func(key *btcutil.WIF) {
		str = key.String()
	})
	fmt.Fprintf(stdout, "wif: %s\n", str)
	return nil
}

// printBalance writes the balance of w.
func printBalance(w *wallet.Wallet) {
	b := w.Balance()
	fmt.Fprintf(stdout, "confirmed: %v\nunconfirmed: %v\nspendable: %v\n",
		b.Confirmed, b.Unconfirmed, b.Spendable())
}

type syncCommand struct{}

func (c *syncCommand) run(ctx context.Context, cfg *config, _ []string) error {
	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := w.Sync(ctx); err != nil {
		return err
	}

	printBalance(w)
	return nil
}

type balanceCommand struct {
	Sync bool `long:"sync" description:"Sync before showing the balance"`
}

func (c *balanceCommand) run(ctx context.Context, cfg *config,
	_ []string) error {

	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if c.Sync {
		if err := w.FetchBalance(ctx); err != nil {
			return err
		}
		if err := w.Save(); err != nil {
			return err
		}
	}

	printBalance(w)
	return nil
}

type historyCommand struct{}

func (c *historyCommand) run(_ context.Context, cfg *config,
	_ []string) error {

	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	entries, err := w.Transactions()
	if err != nil {
		return err
	}
	for _, e := range entries {
		status := fmt.Sprintf("%d confirmations", e.Confirmations)
		if !e.IsConfirmed() {
			status = "unconfirmed"
		}
		fmt.Fprintf(stdout, "%s %s %14v %s\n",
			e.Time.UTC().Format(time.RFC3339), e.TxID, e.Value,
			status)
	}
	return nil
}

type utxosCommand struct {
	All     bool  `long:"all" description:"Include frozen outputs"`
	MinConf int32 `long:"minconf" description:"Minimum confirmations"`
}

func (c *utxosCommand) run(_ context.Context, cfg *config,
	_ []string) error {

	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	utxos := w.UnspentOutputs(wallet.OutputSelectionPolicy{
		RequiredConfirmations: c.MinConf,
		IncludeFrozen:         c.All,
	})
	bestHeight := w.BestHeight()
	for _, u := range utxos {
		notes := ""
		if u.Frozen {
			notes = " frozen"
		}
		if u.Memo != "" {
			notes += " memo=" + strconv.Quote(u.Memo)
		}
		fmt.Fprintf(stdout, "%s %14v %s %v/%d height=%d confs=%d%s\n",
			u.Key(), u.Value, u.Address, u.Branch, u.Index, u.Height,
			u.Confirmations(bestHeight), notes)
	}
	return nil
}

type freezeCommand struct {
	Unfreeze bool `long:"unfreeze" description:"Make the outputs spendable again"`
}

func (c *freezeCommand) run(_ context.Context, cfg *config,
	args []string) error {

	if len(args) == 0 {
		return errors.New("usage: freeze <txid:vout>...")
	}

	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, arg := range args {
		txid, vout, err := parseOutpoint(arg)
		if err != nil {
			return err
		}
		if err := w.FreezeUtxo(txid, vout, !c.Unfreeze); err != nil {
			return err
		}
	}

	return w.Save()
}

type memoCommand struct{}

func (c *memoCommand) run(_ context.Context, cfg *config,
	args []string) error {

	if len(args) < 1 {
		return errors.New("usage: memo <txid:vout> [memo]")
	}
	txid, vout, err := parseOutpoint(args[0])
	if err != nil {
		return err
	}

	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	memo := strings.Join(args[1:], " ")
	if err := w.SetUtxoMemo(txid, vout, memo); err != nil {
		return err
	}

	return w.Save()
}

type sendCommand struct {
	To            []string             `long:"to" description:"Payment as address=amount in BTC, or address=max to send everything, repeatable"`
	FeeRate       *cfgutil.FeeRateFlag `long:"feerate" description:"Fee rate in sat/vbyte"`
	Utxos         []string             `long:"utxo" description:"Spend this txid:vout, repeatable; the unfrozen outputs are used when omitted"`
	ChangeAddress string               `long:"changeaddress" description:"Wallet address receiving the change"`
	Sequence      int64                `long:"sequence" default:"-1" description:"Sequence of every input"`
	Fingerprint   string               `long:"fingerprint" description:"Master fingerprint written to the derivation data, for hardware signers"`
	Strategy      string               `long:"strategy" default:"accumulative" description:"Coin selection strategy {accumulative, constant}"`
	SkipSigning   bool                 `long:"skipsign" description:"Return the populated PSBT without signing it"`
	Sync          bool                 `long:"sync" description:"Sync before building"`
	Publish       bool                 `long:"publish" description:"Broadcast the transaction once it is finalized"`
}

// request builds the transaction request from the flags.  Explicit utxos
// are resolved against the outputs of w.
func (c *sendCommand) request(w *wallet.Wallet) (*wallet.TxRequest, error) {
	if len(c.To) == 0 {
		return nil, errors.New("at least one --to target is required")
	}

	req := &wallet.TxRequest{
		FeeRate:       c.FeeRate.SatPerVByte,
		ChangeAddress: c.ChangeAddress,
		SkipSigning:   c.SkipSigning,
	}
	for _, s := range c.To {
		target, err := parseTarget(s)
		if err != nil {
			return nil, err
		}
		req.Targets = append(req.Targets, target)
	}

	if c.Sequence >= 0 {
		if c.Sequence > int64(wire.MaxTxInSequenceNum) {
			return nil, fmt.Errorf("sequence %d out of range",
				c.Sequence)
		}
		req.Sequence = fn.Some(uint32(c.Sequence))
	}
	if c.Fingerprint != "" {
		fp, err := waddrmgr.ParseFingerprint(c.Fingerprint)
		if err != nil {
			return nil, err
		}
		req.MasterFingerprint = fn.Some(fp)
	}

	strategy, err := parseStrategy(c.Strategy)
	if err != nil {
		return nil, err
	}
	req.Strategy = strategy

	if len(c.Utxos) == 0 {
		return req, nil
	}
	owned := make(map[string]wallet.Utxo)
	for _, u := range w.UnspentOutputs(wallet.OutputSelectionPolicy{
		IncludeFrozen: true,
	}) {
		owned[u.Key()] = u
	}
	for _, s := range c.Utxos {
		txid, vout, err := parseOutpoint(s)
		if err != nil {
			return nil, err
		}
		u, ok := owned[wallet.UtxoKey(txid, vout)]
		if !ok {
			return nil, fmt.Errorf("%s: %w", s, wallet.ErrNotMine)
		}
		req.Utxos = append(req.Utxos, u)
	}

	return req, nil
}

func (c *sendCommand) run(ctx context.Context, cfg *config,
	_ []string) error {

	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if c.Sync {
		if err := w.Sync(ctx); err != nil {
			return err
		}
	}

	req, err := c.request(w)
	if err != nil {
		return err
	}
	result, err := w.CreateTransaction(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "state: %v\nfee: %v\n", result.State, result.Fee)
	if result.ChangeIndex >= 0 {
		fmt.Fprintf(stdout, "change: output %d\n", result.ChangeIndex)
	}
	if err := printPacket(result.Packet, result.Tx); err != nil {
		return err
	}

	return publishIfFinal(ctx, w, result.Tx, c.Publish)
}

type signCommand struct {
	Publish bool `long:"publish" description:"Broadcast the transaction once it is finalized"`
}

func (c *signCommand) run(ctx context.Context, cfg *config,
	args []string) error {

	if len(args) != 1 {
		return errors.New("usage: sign <psbt|->")
	}
	s, err := readArg(args[0])
	if err != nil {
		return err
	}
	packet, err := decodePsbt(s)
	if err != nil {
		return err
	}

	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := w.SignPsbt(packet)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "added %d signatures\n", n)

	tx, err := wallet.FinalizePsbt(packet)
	if err != nil {
		return err
	}
	if err := printPacket(packet, tx); err != nil {
		return err
	}

	return publishIfFinal(ctx, w, tx, c.Publish)
}

type combineCommand struct{}

func (c *combineCommand) run(_ context.Context, _ *config,
	args []string) error {

	if len(args) < 2 {
		return errors.New("usage: combine <psbt> <psbt>...")
	}

	packets := make([]*psbt.Packet, 0, len(args))
	for _, arg := range args {
		packet, err := decodePsbt(arg)
		if err != nil {
			return err
		}
		packets = append(packets, packet)
	}

	combined, tx, err := wallet.CombinePsbt(packets...)
	if err != nil {
		return err
	}
	return printPacket(combined, tx)
}

type finalizeCommand struct{}

func (c *finalizeCommand) run(_ context.Context, _ *config,
	args []string) error {

	if len(args) != 1 {
		return errors.New("usage: finalize <psbt|->")
	}
	s, err := readArg(args[0])
	if err != nil {
		return err
	}
	packet, err := decodePsbt(s)
	if err != nil {
		return err
	}

	tx, err := wallet.FinalizePsbt(packet)
	if err != nil {
		return err
	}
	if tx.IsNone() {
		fmt.Fprintln(stdout, "awaiting signatures")
	}
	return printPacket(packet, tx)
}

type broadcastCommand struct{}

func (c *broadcastCommand) run(ctx context.Context, cfg *config,
	args []string) error {

	if len(args) != 1 {
		return errors.New("usage: broadcast <tx|psbt|->")
	}
	s, err := readArg(args[0])
	if err != nil {
		return err
	}
	tx, err := decodeTx(s)
	if err != nil {
		return err
	}

	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return publishIfFinal(ctx, w, fn.Some(tx), true)
}

type replaceCosignerCommand struct {
	Index    int    `long:"index" description:"Index of the cosigner to replace"`
	Cosigner string `long:"cosigner" description:"Replacement as fingerprint:xpub[:path]; a mnemonic is prompted for when omitted"`
}

func (c *replaceCosignerCommand) run(_ context.Context, cfg *config,
	_ []string) error {

	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var cosigner *waddrmgr.Cosigner
	if c.Cosigner != "" {
		cosigner, err = parseCosigner(c.Cosigner)
	} else {
		cosigner, err = seedCosigner(
			bufio.NewReader(os.Stdin), fn.None[waddrmgr.Path](),
		)
	}
	if err != nil {
		return err
	}

	if err := w.ReplaceCosigner(c.Index, cosigner); err != nil {
		return err
	}
	if err := w.Save(); err != nil {
		return err
	}

	printIdentity(w)
	return nil
}

type watchCommand struct {
	Duration time.Duration `long:"duration" description:"Stop after this long, 0 to run until interrupted"`
}

func (c *watchCommand) run(_ context.Context, cfg *config,
	_ []string) error {

	w, cleanup, err := openWallet(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := w.Start(); err != nil {
		return err
	}
	addInterruptHandler("wallet sync", w.Stop)

	if c.Duration > 0 {
		time.AfterFunc(c.Duration, simulateInterrupt)
	}

	log.Infof("Syncing every %v", cfg.SyncInterval)

	<-interrupts.done
	w.WaitForShutdown()

	printBalance(w)
	return nil
}
