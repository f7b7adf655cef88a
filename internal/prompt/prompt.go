// Copyright (c) 2015-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !js

package prompt

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/hdwallet/waddrmgr"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/term"
)

// readLine reads one line from reader as a secret.
func readLine(reader *bufio.Reader) ([]byte, error) {
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil, err
	}
	return []byte(line), nil
}

// readPassword reads a secret from the terminal without echo.  When stdin is
// not a terminal the secret is read as a plain line from reader instead.
var readPassword = func(reader *bufio.Reader) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(reader)
	}

	pass, err := term.ReadPassword(fd)
	fmt.Print("\n")
	return pass, err
}

// promptList prompts the user with the given prefix, list of valid responses,
// and default list entry to use.  The function will repeat the prompt to the
// user until they enter a valid response.
func promptList(reader *bufio.Reader, prefix string, validResponses []string,
	defaultEntry string) (string, error) {

	// Setup the prompt according to the parameters.
	validStrings := strings.Join(validResponses, "/")
	var prompt string
	if defaultEntry != "" {
		prompt = fmt.Sprintf("%s (%s) [%s]: ", prefix, validStrings,
			defaultEntry)
	} else {
		prompt = fmt.Sprintf("%s (%s): ", prefix, validStrings)
	}

	// Prompt the user until one of the valid responses is given.
	for {
		fmt.Print(prompt)
		reply, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		reply = strings.TrimSpace(strings.ToLower(reply))
		if reply == "" {
			reply = defaultEntry
		}

		for _, validResponse := range validResponses {
			if reply == validResponse {
				return reply, nil
			}
		}
	}
}

// promptListBool prompts the user for a boolean (yes/no) with the given
// prefix.  The function will repeat the prompt to the user until they enter a
// valid response.
func promptListBool(reader *bufio.Reader, prefix string,
	defaultEntry string) (bool, error) {

	// Setup the valid responses.
	valid := []string{"n", "no", "y", "yes"}
	response, err := promptList(reader, prefix, valid, defaultEntry)
	if err != nil {
		return false, err
	}
	return response == "yes" || response == "y", nil
}

// PassPrompt prompts the user for a passphrase with the given prefix.  The
// function will ask the user to confirm the passphrase and will repeat the
// prompts until they enter a matching response.
func PassPrompt(reader *bufio.Reader, prefix string,
	confirm bool) ([]byte, error) {

	// Prompt the user until they enter a passphrase.
	prompt := fmt.Sprintf("%s: ", prefix)
	for {
		fmt.Print(prompt)
		pass, err := readPassword(reader)
		if err != nil {
			return nil, err
		}
		pass = bytes.TrimSpace(pass)
		if len(pass) == 0 {
			continue
		}

		if !confirm {
			return pass, nil
		}

		fmt.Print("Confirm passphrase: ")
		confirm, err := readPassword(reader)
		if err != nil {
			return nil, err
		}
		confirm = bytes.TrimSpace(confirm)
		if !bytes.Equal(pass, confirm) {
			fmt.Println("The entered passphrases do not match")
			continue
		}

		return pass, nil
	}
}

// SeedPassphrase asks whether the mnemonic is extended by a BIP39
// passphrase and prompts for it when it is.  An empty passphrase is
// returned otherwise.
func SeedPassphrase(reader *bufio.Reader, confirm bool) (string, error) {
	usePass, err := promptListBool(reader, "Is the mnemonic protected "+
		"by a passphrase?", "no")
	if err != nil {
		return "", err
	}
	if !usePass {
		return "", nil
	}

	pass, err := PassPrompt(reader, "Enter the mnemonic passphrase",
		confirm)
	if err != nil {
		return "", err
	}

	return string(pass), nil
}

// readMnemonic reads words from reader until a blank line and returns them
// normalized.
func readMnemonic(reader *bufio.Reader) (string, error) {
	var words []string
	for {
		line, err := reader.ReadString('\n')
		if strings.TrimSpace(line) == "" {
			if err != nil && len(words) == 0 {
				return "", err
			}
			break
		}
		words = append(words, line)
		if err != nil {
			break
		}
	}

	return waddrmgr.NormalizeMnemonic(strings.Join(words, " ")), nil
}

// Mnemonic prompts the user for the BIP39 mnemonic of a new wallet.  When
// the user has none, a fresh one is generated and displayed, and the user
// must confirm it has been written down.  All prompts are repeated until
// the user enters a valid response.
func Mnemonic(reader *bufio.Reader) (string, error) {
	useExisting, err := promptListBool(reader, "Do you have an "+
		"existing mnemonic you want to use?", "no")
	if err != nil {
		return "", err
	}
	if !useExisting {
		mnemonic, err := waddrmgr.NewMnemonic(
			waddrmgr.DefaultEntropyBits,
		)
		if err != nil {
			return "", err
		}

		fmt.Println("Your wallet mnemonic is:")
		for i, word := range strings.Fields(mnemonic) {
			fmt.Printf("%2d. %-10s", i+1, word)
			if (i+1)%4 == 0 {
				fmt.Printf("\n")
			}
		}

		fmt.Println("\nIMPORTANT: Keep the mnemonic in a safe place as " +
			"you\nwill NOT be able to restore your wallet without it.")
		fmt.Println("Please keep in mind that anyone who has access\n" +
			"to the mnemonic can also restore your wallet thereby\n" +
			"giving them access to all your funds, so it is\n" +
			"imperative that you keep it in a secure location.")

		for {
			fmt.Print(`Once you have stored the mnemonic in a safe ` +
				`and secure location, enter "OK" to continue: `)
			reply, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}
			reply = strings.TrimSpace(reply)
			reply = strings.Trim(reply, `"`)
			if reply == "OK" {
				break
			}
		}

		return mnemonic, nil
	}

	return ProvideMnemonic(reader)
}

// ProvideMnemonic prompts for an existing mnemonic until a valid one is
// entered.
func ProvideMnemonic(reader *bufio.Reader) (string, error) {
	for {
		fmt.Print("Enter existing wallet mnemonic " +
			"(followed by a blank line): ")

		mnemonic, err := readMnemonic(reader)
		if err != nil {
			return "", err
		}

		if !bip39.IsMnemonicValid(mnemonic) {
			fmt.Println("Invalid mnemonic specified.  Must be 12 " +
				"to 24 words from the BIP39 english wordlist " +
				"with a valid checksum")
			continue
		}

		fmt.Printf("\nMnemonic input successful (%d words).\n",
			len(strings.Fields(mnemonic)))

		return mnemonic, nil
	}
}
