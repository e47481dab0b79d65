// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/cpmm/fhe"
)

var checker = common.HexToAddress("0xc4ec4e4")

func decryptAs(t *testing.T, eng *fhe.SimEngine, v fhe.Value) uint64 {
	t.Helper()
	eng.Allow(v, checker)
	d, err := eng.Decrypt(v, checker)
	require.NoError(t, err)
	return d.Uint64()
}

func boolOf(t *testing.T, eng *fhe.SimEngine, v fhe.Value) bool {
	t.Helper()
	return decryptAs(t, eng, v) == 1
}

func TestCheckProportional(t *testing.T) {
	eng := fhe.NewSimEngine()
	enc := func(v uint64) fhe.Value { return eng.Encrypt(v, fhe.TypeEuint64) }

	tests := []struct {
		name                             string
		claimed, reserve, amount, supply uint64
		want                             bool
	}{
		{"exact boundary", 100_000, 1_000_000, 100_000, 1_000_000, true},
		{"under boundary", 99_999, 1_000_000, 100_000, 1_000_000, true},
		{"one over", 100_001, 1_000_000, 100_000, 1_000_000, false},
		{"zero claim always passes", 0, 1_000_000, 0, 1_000_000, true},
		{"products past 64 bits", 1 << 40, 1 << 40, 1 << 40, 1 << 40, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkProportional(eng, enc(tt.claimed), enc(tt.reserve), enc(tt.amount), enc(tt.supply))
			require.Equal(t, tt.want, boolOf(t, eng, got))
		})
	}
}

func TestVerifyMint(t *testing.T) {
	eng := fhe.NewSimEngine()
	enc := func(v uint64) fhe.Value { return eng.Encrypt(v, fhe.TypeEuint64) }

	const (
		r0 = 1_000_000
		r1 = 1_000_000
		ts = 1_000_000
	)

	tests := []struct {
		name                  string
		a0, a1, claimed       uint64
		want0, want1, wantLiq uint64
	}{
		{"proportional claim passes", 100_000, 100_000, 100_000, 100_000, 100_000, 100_000},
		{"claim plus one zeroes everything", 100_000, 100_000, 100_001, 0, 0, 0},
		{"zero liquidity claim zeroes everything", 100_000, 100_000, 0, 0, 0, 0},
		{"asymmetric deposit limited by smaller side", 100_000, 50_000, 50_000, 100_000, 50_000, 50_000},
		{"asymmetric overclaim fails", 100_000, 50_000, 50_001, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v0, v1, liq := verifyMint(eng,
				enc(tt.a0), enc(tt.a1), enc(tt.claimed),
				enc(r0), enc(r1), enc(ts))
			require.Equal(t, tt.want0, decryptAs(t, eng, v0))
			require.Equal(t, tt.want1, decryptAs(t, eng, v1))
			require.Equal(t, tt.wantLiq, decryptAs(t, eng, liq))
		})
	}
}

func TestVerifyMintReserveOverflow(t *testing.T) {
	eng := fhe.NewSimEngine()
	enc := func(v uint64) fhe.Value { return eng.Encrypt(v, fhe.TypeEuint64) }

	// reserve0 + amount0 wraps at 64 bits; the claim itself is tiny and
	// proportional, but the wrap must zero the whole mint.
	const huge = ^uint64(0) - 10
	v0, v1, liq := verifyMint(eng,
		enc(100), enc(100), enc(1),
		enc(huge), enc(1_000_000), enc(1_000_000))
	require.Zero(t, decryptAs(t, eng, v0))
	require.Zero(t, decryptAs(t, eng, v1))
	require.Zero(t, decryptAs(t, eng, liq))
}

func TestVerifyBurnAmount(t *testing.T) {
	eng := fhe.NewSimEngine()
	enc := func(v uint64) fhe.Value { return eng.Encrypt(v, fhe.TypeEuint64) }

	tests := []struct {
		name                                string
		claimed, liquidity, reserve, supply uint64
		want                                bool
	}{
		{"exact share", 99_000, 99_000, 1_000_000, 1_000_000, true},
		{"under share", 98_999, 99_000, 1_000_000, 1_000_000, true},
		{"one over share", 99_001, 99_000, 1_000_000, 1_000_000, false},
		{"zero claim", 0, 99_000, 1_000_000, 1_000_000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verifyBurnAmount(eng, enc(tt.claimed), enc(tt.liquidity), enc(tt.reserve), enc(tt.supply))
			require.Equal(t, tt.want, boolOf(t, eng, got))
		})
	}
}

// swapFloor computes the largest output the fee invariant admits, using the
// plaintext formula out = amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997).
func swapFloor(amountIn, reserveIn, reserveOut uint64) uint64 {
	return amountIn * 997 * reserveOut / (reserveIn*1000 + amountIn*997)
}

func TestVerifySwap(t *testing.T) {
	eng := fhe.NewSimEngine()
	enc := func(v uint64) fhe.Value { return eng.Encrypt(v, fhe.TypeEuint64) }

	const (
		rIn  = 1_000_000
		rOut = 1_000_000
		aIn  = 100_000
	)
	floor := swapFloor(aIn, rIn, rOut)
	require.Equal(t, uint64(90_661), floor)

	tests := []struct {
		name                 string
		amountIn, claimedOut uint64
		want                 bool
	}{
		{"exact fee floor", aIn, floor, true},
		{"floor plus one", aIn, floor + 1, false},
		{"modest claim", aIn, floor / 2, true},
		{"claim equals output reserve", aIn, rOut, false},
		{"claim above output reserve", aIn, rOut + 1, false},
		{"zero for zero", 0, 0, true},
		{"output for nothing", 0, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verifySwap(eng, enc(tt.amountIn), enc(tt.claimedOut), enc(rIn), enc(rOut))
			require.Equal(t, tt.want, boolOf(t, eng, got))
		})
	}
}

func TestVerifySwapInputOverflow(t *testing.T) {
	eng := fhe.NewSimEngine()
	enc := func(v uint64) fhe.Value { return eng.Encrypt(v, fhe.TypeEuint64) }

	// reserveIn + amountIn wraps at 64 bits.
	got := verifySwap(eng, enc(^uint64(0)-5), enc(1), enc(100), enc(1_000_000))
	require.False(t, boolOf(t, eng, got))
}
