// Copyright (c) 2015-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build js

package prompt

import (
	"bufio"
	"fmt"
)

func PassPrompt(_ *bufio.Reader, _ string, _ bool) ([]byte, error) {
	return nil, fmt.Errorf("prompt not supported in WebAssembly")
}

func SeedPassphrase(_ *bufio.Reader, _ bool) (string, error) {
	return "", fmt.Errorf("prompt not supported in WebAssembly")
}

func Mnemonic(_ *bufio.Reader) (string, error) {
	return "", fmt.Errorf("prompt not supported in WebAssembly")
}

func ProvideMnemonic(_ *bufio.Reader) (string, error) {
	return "", fmt.Errorf("prompt not supported in WebAssembly")
}
