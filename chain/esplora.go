// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultRequestTimeout is the timeout of one HTTP request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxRetries is how often a failed request is retried.
	DefaultMaxRetries = 2

	// DefaultRequestsPerSecond paces requests to public indexes.
	DefaultRequestsPerSecond = 10

	// DefaultBatchConcurrency bounds the in-flight requests of one batch.
	DefaultBatchConcurrency = 4

	// DefaultBreakerFailures is the number of consecutive failures that
	// opens the circuit.
	DefaultBreakerFailures = 5

	// DefaultBreakerTimeout is how long the circuit stays open.
	DefaultBreakerTimeout = 30 * time.Second

	// esploraChainPageSize is the number of confirmed transactions the
	// index returns per history page.
	esploraChainPageSize = 25
)

// EsploraConfig holds the configuration of an Esplora client.
type EsploraConfig struct {
	// URL is the base URL of the API, e.g. https://blockstream.info/api.
	URL string

	// RequestTimeout is the timeout of one HTTP request.
	RequestTimeout time.Duration

	// MaxRetries is the number of retries of a failed request.
	MaxRetries int

	// RequestsPerSecond caps the request rate.  Zero disables pacing.
	RequestsPerSecond int

	// BatchConcurrency bounds the concurrent requests of a batch query.
	BatchConcurrency int

	// BreakerFailures and BreakerTimeout configure the circuit breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultEsploraConfig returns a config for url with every default set.
func DefaultEsploraConfig(url string) *EsploraConfig {
	return &EsploraConfig{
		URL:               url,
		RequestTimeout:    DefaultRequestTimeout,
		MaxRetries:        DefaultMaxRetries,
		RequestsPerSecond: DefaultRequestsPerSecond,
		BatchConcurrency:  DefaultBatchConcurrency,
		BreakerFailures:   DefaultBreakerFailures,
		BreakerTimeout:    DefaultBreakerTimeout,
	}
}

// esploraStatus is the confirmation status of a transaction.
type esploraStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height,omitempty"`
	BlockTime   int64 `json:"block_time,omitempty"`
}

// esploraTx is a transaction as /tx/:txid and /address/:addr/txs return it.
type esploraTx struct {
	TxID   string        `json:"txid"`
	Vin    []esploraVin  `json:"vin"`
	Vout   []esploraVout `json:"vout"`
	Status esploraStatus `json:"status"`
}

type esploraVin struct {
	TxID       string `json:"txid"`
	Vout       uint32 `json:"vout"`
	Sequence   uint32 `json:"sequence"`
	IsCoinbase bool   `json:"is_coinbase"`
}

type esploraVout struct {
	ScriptPubKey     string `json:"scriptpubkey"`
	ScriptPubKeyAddr string `json:"scriptpubkey_address,omitempty"`
	Value            int64  `json:"value"`
}

type esploraUtxo struct {
	TxID   string        `json:"txid"`
	Vout   uint32        `json:"vout"`
	Status esploraStatus `json:"status"`
	Value  int64         `json:"value"`
}

type esploraStats struct {
	FundedTxoSum int64 `json:"funded_txo_sum"`
	SpentTxoSum  int64 `json:"spent_txo_sum"`
}

type esploraAddress struct {
	Address      string       `json:"address"`
	ChainStats   esploraStats `json:"chain_stats"`
	MempoolStats esploraStats `json:"mempool_stats"`
}

// httpError is a non-200 reply.  Server errors count against the circuit
// breaker; client errors do not.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.status, e.body)
}

// EsploraClient is a Backend speaking the Esplora REST API.
type EsploraClient struct {
	cfg *EsploraConfig

	httpClient *http.Client
	limiter    ratelimit.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// A compile-time assertion to ensure EsploraClient meets the Backend
// interface.
var _ Backend = (*EsploraClient)(nil)

// NewEsploraClient creates a client.  Zero valued config fields take their
// defaults.
func NewEsploraClient(cfg *EsploraConfig) *EsploraClient {
	c := *cfg
	c.URL = strings.TrimRight(c.URL, "/")
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = DefaultBatchConcurrency
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = DefaultBreakerFailures
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = DefaultBreakerTimeout
	}

	limiter := ratelimit.NewUnlimited()
	if c.RequestsPerSecond > 0 {
		limiter = ratelimit.New(c.RequestsPerSecond)
	}

	return &EsploraClient{
		cfg:        &c,
		httpClient: &http.Client{Timeout: c.RequestTimeout},
		limiter:    limiter,
		breaker:    newCircuitBreaker(c.URL, &c),
	}
}

func newCircuitBreaker(name string,
	cfg *EsploraConfig) *gobreaker.CircuitBreaker {

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch {
			case to == gobreaker.StateOpen:
				log.Warnf("Index %s seems down, pausing "+
					"requests for %v", name,
					cfg.BreakerTimeout)

			case from == gobreaker.StateOpen &&
				to == gobreaker.StateHalfOpen:

				log.Infof("Probing index %s", name)

			case to == gobreaker.StateClosed:
				log.Infof("Index %s is back", name)
			}
		},
	})
}

// attempt performs one HTTP round trip through the rate limiter and the
// circuit breaker.
func (c *EsploraClient) attempt(ctx context.Context, method, path string,
	body []byte) ([]byte, error) {

	c.limiter.Take()

	res, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(
			ctx, method, c.cfg.URL+path, reader,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w",
				err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "text/plain")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w",
				err)
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &httpError{
				status: resp.StatusCode,
				body:   string(respBody),
			}
		}

		// Client errors are answers, so they travel in the result to
		// keep the breaker closed.
		if resp.StatusCode != http.StatusOK {
			return &httpError{
				status: resp.StatusCode,
				body:   string(respBody),
			}, nil
		}

		return respBody, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):

		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)

	case err != nil:
		return nil, err
	}

	if herr, ok := res.(*httpError); ok {
		return nil, herr
	}
	return res.([]byte), nil
}

// doRequest performs an HTTP request with retries.  Client errors are not
// retried.
func (c *EsploraClient) doRequest(ctx context.Context, method, path string,
	body []byte) ([]byte, error) {

	var lastErr error
	for i := 0; i <= c.cfg.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(i)):
			}
		}

		resp, err := c.attempt(ctx, method, path, body)
		if err == nil {
			return resp, nil
		}

		var herr *httpError
		if errors.As(err, &herr) &&
			herr.status < http.StatusInternalServerError {

			return nil, err
		}
		if errors.Is(err, ErrBackendUnavailable) ||
			ctx.Err() != nil {

			return nil, err
		}

		log.Debugf("Request %s %s failed (attempt %d): %v", method,
			path, i+1, err)
		lastErr = err
	}

	return nil, fmt.Errorf("%w: request failed after %d attempts: %v",
		ErrBackendUnavailable, c.cfg.MaxRetries+1, lastErr)
}

// doGet performs a GET request and decodes a JSON reply into v, or stores
// the raw reply if v is a *[]byte.
func (c *EsploraClient) doGet(ctx context.Context, path string,
	v interface{}) error {

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	if raw, ok := v.(*[]byte); ok {
		*raw = body
		return nil
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// forEach runs fn for every key with bounded concurrency.  The first error
// cancels the rest.
func (c *EsploraClient) forEach(ctx context.Context, keys []string,
	fn func(ctx context.Context, key string) error) error {

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.BatchConcurrency)

	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		g.Go(func() error {
			return fn(ctx, key)
		})
	}

	return g.Wait()
}

// EstimateCurrentBlockHeight returns the height of the index's best block.
func (c *EsploraClient) EstimateCurrentBlockHeight(
	ctx context.Context) (int64, error) {

	var body []byte
	if err := c.doGet(ctx, "/blocks/tip/height", &body); err != nil {
		return 0, err
	}

	height, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse height: %w", err)
	}

	return height, nil
}

// addressHistory walks the paginated history of one address.
func (c *EsploraClient) addressHistory(ctx context.Context,
	addr string) ([]HistoryItem, error) {

	var page []esploraTx
	if err := c.doGet(ctx, "/address/"+addr+"/txs", &page); err != nil {
		return nil, err
	}

	var items []HistoryItem
	for {
		confirmed := 0
		for _, tx := range page {
			item := HistoryItem{TxID: tx.TxID}
			if tx.Status.Confirmed {
				item.Height = tx.Status.BlockHeight
				confirmed++
			}
			items = append(items, item)
		}

		if confirmed < esploraChainPageSize || len(page) == 0 {
			return items, nil
		}

		last := page[len(page)-1].TxID
		page = nil
		err := c.doGet(ctx, "/address/"+addr+"/txs/chain/"+last, &page)
		if err != nil {
			return nil, err
		}
	}
}

// MultiGetHistoryByAddress returns the transactions touching each address.
func (c *EsploraClient) MultiGetHistoryByAddress(ctx context.Context,
	addrs []string) (map[string][]HistoryItem, error) {

	var mu sync.Mutex
	result := make(map[string][]HistoryItem, len(addrs))

	err := c.forEach(ctx, addrs, func(ctx context.Context,
		addr string) error {

		items, err := c.addressHistory(ctx, addr)
		if err != nil {
			return fmt.Errorf("history of %s: %w", addr, err)
		}

		mu.Lock()
		result[addr] = items
		mu.Unlock()

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// getTransaction fetches the JSON and raw forms of one transaction.
func (c *EsploraClient) getTransaction(ctx context.Context, txid string,
	tip int64) (*Transaction, error) {

	var info esploraTx
	err := c.doGet(ctx, "/tx/"+txid, &info)
	var herr *httpError
	if errors.As(err, &herr) && herr.status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txid)
	}
	if err != nil {
		return nil, err
	}

	var rawHex []byte
	if err := c.doGet(ctx, "/tx/"+txid+"/hex", &rawHex); err != nil {
		return nil, err
	}
	rawBytes, err := hex.DecodeString(strings.TrimSpace(string(rawHex)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode tx hex: %w", err)
	}
	raw := wire.NewMsgTx(wire.TxVersion)
	if err := raw.Deserialize(bytes.NewReader(rawBytes)); err != nil {
		return nil, fmt.Errorf("failed to deserialize tx: %w", err)
	}

	tx := &Transaction{
		TxID: info.TxID,
		Vin:  make([]TxIn, 0, len(info.Vin)),
		Vout: make([]TxOut, 0, len(info.Vout)),
		Raw:  raw,
	}
	for _, in := range info.Vin {
		tx.Vin = append(tx.Vin, TxIn{
			TxID:       in.TxID,
			Vout:       in.Vout,
			Sequence:   in.Sequence,
			IsCoinbase: in.IsCoinbase,
		})
	}
	for _, out := range info.Vout {
		script, err := hex.DecodeString(out.ScriptPubKey)
		if err != nil {
			return nil, fmt.Errorf("invalid output script: %w", err)
		}
		tx.Vout = append(tx.Vout, TxOut{
			Value:    btcutil.Amount(out.Value),
			PkScript: script,
			Address:  out.ScriptPubKeyAddr,
		})
	}

	if info.Status.Confirmed {
		tx.BlockHeight = info.Status.BlockHeight
		tx.BlockTime = info.Status.BlockTime
		if tip >= info.Status.BlockHeight {
			tx.Confirmations = uint32(tip - info.Status.BlockHeight + 1)
		} else {
			tx.Confirmations = 1
		}
	}

	return tx, nil
}

// MultiGetTransactionByTxid returns the transactions with the given ids.
// Unknown txids are left out of the result.
func (c *EsploraClient) MultiGetTransactionByTxid(ctx context.Context,
	txids []string) (map[string]*Transaction, error) {

	result := make(map[string]*Transaction, len(txids))
	if len(txids) == 0 {
		return result, nil
	}

	tip, err := c.EstimateCurrentBlockHeight(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	err = c.forEach(ctx, txids, func(ctx context.Context,
		txid string) error {

		tx, err := c.getTransaction(ctx, txid, tip)
		switch {
		case errors.Is(err, ErrTxNotFound):
			log.Debugf("Index does not know tx %s", txid)
			return nil

		case err != nil:
			return err
		}

		mu.Lock()
		result[txid] = tx
		mu.Unlock()

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// MultiGetBalanceByAddress returns the balance of each address.
func (c *EsploraClient) MultiGetBalanceByAddress(ctx context.Context,
	addrs []string) (map[string]Balance, error) {

	var mu sync.Mutex
	result := make(map[string]Balance, len(addrs))

	err := c.forEach(ctx, addrs, func(ctx context.Context,
		addr string) error {

		var info esploraAddress
		if err := c.doGet(ctx, "/address/"+addr, &info); err != nil {
			return fmt.Errorf("balance of %s: %w", addr, err)
		}

		chain, pool := info.ChainStats, info.MempoolStats
		mu.Lock()
		result[addr] = Balance{
			Confirmed: btcutil.Amount(
				chain.FundedTxoSum - chain.SpentTxoSum,
			),
			Unconfirmed: btcutil.Amount(
				pool.FundedTxoSum - pool.SpentTxoSum,
			),
		}
		mu.Unlock()

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// MultiGetUtxoByAddress returns the unspent outputs of each address.
// Electrs refuses addresses with too many outputs, which is reported as
// ErrUtxoQueryUnsupported.
func (c *EsploraClient) MultiGetUtxoByAddress(ctx context.Context,
	addrs []string) (map[string][]Utxo, error) {

	var mu sync.Mutex
	result := make(map[string][]Utxo, len(addrs))

	err := c.forEach(ctx, addrs, func(ctx context.Context,
		addr string) error {

		var utxos []esploraUtxo
		err := c.doGet(ctx, "/address/"+addr+"/utxo", &utxos)
		var herr *httpError
		if errors.As(err, &herr) && herr.status == http.StatusBadRequest {
			return fmt.Errorf("%w: %s", ErrUtxoQueryUnsupported,
				herr.body)
		}
		if err != nil {
			return fmt.Errorf("utxos of %s: %w", addr, err)
		}

		list := make([]Utxo, 0, len(utxos))
		for _, u := range utxos {
			utxo := Utxo{
				TxID:  u.TxID,
				Vout:  u.Vout,
				Value: btcutil.Amount(u.Value),
			}
			if u.Status.Confirmed {
				utxo.Height = u.Status.BlockHeight
			}
			list = append(list, utxo)
		}

		mu.Lock()
		result[addr] = list
		mu.Unlock()

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Broadcast relays a hex encoded transaction and returns its txid.
func (c *EsploraClient) Broadcast(ctx context.Context,
	rawTxHex string) (string, error) {

	body, err := c.doRequest(
		ctx, http.MethodPost, "/tx", []byte(rawTxHex),
	)
	if err != nil {
		return "", fmt.Errorf("broadcast failed: %w", err)
	}

	return strings.TrimSpace(string(body)), nil
}
