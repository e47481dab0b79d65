// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/cpmm/fhe"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
	vault = common.HexToAddress("0x7a017")
)

func newTestToken(t *testing.T) (*Token, *fhe.SimEngine) {
	t.Helper()
	eng := fhe.NewSimEngine()
	return New(eng, "Confidential USD", "cUSD", nil), eng
}

func decryptBalance(t *testing.T, tok *Token, eng *fhe.SimEngine, owner common.Address) uint64 {
	t.Helper()
	v, err := eng.Decrypt(tok.BalanceOf(owner), owner)
	require.NoError(t, err)
	return v.Uint64()
}

func decryptSupply(t *testing.T, tok *Token, eng *fhe.SimEngine) uint64 {
	t.Helper()
	supply := tok.TotalSupply()
	eng.Allow(supply, vault)
	v, err := eng.Decrypt(supply, vault)
	require.NoError(t, err)
	return v.Uint64()
}

func TestMintAndSupply(t *testing.T) {
	tok, eng := newTestToken(t)

	tok.Mint(alice, eng.Encrypt(1_000, fhe.TypeEuint64))
	tok.Mint(bob, eng.Encrypt(250, fhe.TypeEuint64))

	require.Equal(t, uint64(1_000), decryptBalance(t, tok, eng, alice))
	require.Equal(t, uint64(250), decryptBalance(t, tok, eng, bob))
	require.Equal(t, uint64(1_250), decryptSupply(t, tok, eng))
}

func TestTransferClamps(t *testing.T) {
	tests := []struct {
		name             string
		balance, amount  uint64
		wantFrom, wantTo uint64
	}{
		{"exact", 100, 100, 0, 100},
		{"partial", 100, 40, 60, 40},
		{"zero is a no-op", 100, 0, 100, 0},
		{"over balance moves nothing", 100, 101, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, eng := newTestToken(t)
			tok.Mint(alice, eng.Encrypt(tt.balance, fhe.TypeEuint64))

			tok.Transfer(alice, bob, eng.Encrypt(tt.amount, fhe.TypeEuint64))

			require.Equal(t, tt.wantFrom, decryptBalance(t, tok, eng, alice))
			require.Equal(t, tt.wantTo, decryptBalance(t, tok, eng, bob))
			require.Equal(t, tt.balance, decryptSupply(t, tok, eng))
		})
	}
}

func TestBurnClamps(t *testing.T) {
	tok, eng := newTestToken(t)
	tok.Mint(alice, eng.Encrypt(500, fhe.TypeEuint64))

	tok.Burn(alice, eng.Encrypt(200, fhe.TypeEuint64))
	require.Equal(t, uint64(300), decryptBalance(t, tok, eng, alice))
	require.Equal(t, uint64(300), decryptSupply(t, tok, eng))

	// Burning more than held burns nothing.
	tok.Burn(alice, eng.Encrypt(301, fhe.TypeEuint64))
	require.Equal(t, uint64(300), decryptBalance(t, tok, eng, alice))
	require.Equal(t, uint64(300), decryptSupply(t, tok, eng))
}

func TestTransferFromRequiresOperator(t *testing.T) {
	tok, eng := newTestToken(t)
	tok.Mint(alice, eng.Encrypt(100, fhe.TypeEuint64))

	err := tok.TransferFrom(vault, alice, bob, eng.Encrypt(50, fhe.TypeEuint64))
	require.ErrorIs(t, err, ErrNotOperator)
	require.Equal(t, uint64(100), decryptBalance(t, tok, eng, alice))

	tok.AddOperator(vault)
	require.NoError(t, tok.TransferFrom(vault, alice, bob, eng.Encrypt(50, fhe.TypeEuint64)))
	require.Equal(t, uint64(50), decryptBalance(t, tok, eng, alice))
	require.Equal(t, uint64(50), decryptBalance(t, tok, eng, bob))
}

func TestBalanceOfMaterializesZero(t *testing.T) {
	tok, eng := newTestToken(t)

	require.Equal(t, uint64(0), decryptBalance(t, tok, eng, bob))
}

func TestOwnerKeepsDecryptionRightsAcrossUpdates(t *testing.T) {
	tok, eng := newTestToken(t)

	tok.Mint(alice, eng.Encrypt(10, fhe.TypeEuint64))
	tok.Transfer(alice, bob, eng.Encrypt(4, fhe.TypeEuint64))
	tok.Mint(alice, eng.Encrypt(1, fhe.TypeEuint64))

	// Every rewrite of the balance handle re-grants the owner.
	require.Equal(t, uint64(7), decryptBalance(t, tok, eng, alice))
	require.Equal(t, uint64(4), decryptBalance(t, tok, eng, bob))
}
