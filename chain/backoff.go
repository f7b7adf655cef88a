// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"math"
	"math/rand"
	"time"
)

const (
	// retryBaseDelay is the delay before the first retry.  Later retries
	// wait linearly longer.
	retryBaseDelay = 100 * time.Millisecond

	// retryJitter spreads retries of concurrent batch requests so they do
	// not hit the index in lockstep.
	retryJitter = 0.5
)

// calculateMinMax returns the bounds of a duration d jittered by scaler:
// d*(1-scaler) to d*(1+scaler), with the lower bound clamped at zero.  A
// negative scaler is treated as zero.
func calculateMinMax(d time.Duration, scaler float64) (int64, int64) {
	if scaler < 0 {
		scaler = 0
	}

	min := math.Floor(float64(d) * (1 - scaler))
	max := math.Ceil(float64(d) * (1 + scaler))

	if min < 0 {
		min = 0
	}

	return int64(min), int64(max)
}

// retryDelay returns the jittered wait before retry number attempt,
// counting from one.
func retryDelay(attempt int) time.Duration {
	base := time.Duration(attempt) * retryBaseDelay
	min, max := calculateMinMax(base, retryJitter)
	if max <= min {
		return time.Duration(min)
	}

	return time.Duration(min + rand.Int63n(max-min+1))
}
