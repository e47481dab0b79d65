// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var testAccount = common.HexToAddress("0x1000000000000000000000000000000000000001")

// decrypt is a test helper that grants itself rights and reveals a value.
func decrypt(t *testing.T, e *SimEngine, v Value) uint64 {
	t.Helper()
	e.Allow(v, testAccount)
	pt, err := e.Decrypt(v, testAccount)
	require.NoError(t, err)
	return pt.Uint64()
}

func TestTypeBits(t *testing.T) {
	tests := []struct {
		name     string
		typ      uint8
		expected uint
	}{
		{"bool", TypeEbool, 1},
		{"uint16", TypeEuint16, 16},
		{"uint64", TypeEuint64, 64},
		{"uint128", TypeEuint128, 128},
		{"unknown", 99, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, TypeBits(tt.typ))
		})
	}
}

func TestArithmetic(t *testing.T) {
	e := NewSimEngine()

	tests := []struct {
		name     string
		op       func(a, b Value) Value
		a, b     uint64
		typ      uint8
		expected uint64
	}{
		{"add", e.Add, 2, 3, TypeEuint64, 5},
		{"add_wraps_uint16", e.Add, 0xFFFF, 1, TypeEuint16, 0},
		{"sub", e.Sub, 10, 4, TypeEuint64, 6},
		{"sub_wraps_to_max", e.Sub, 0, 1, TypeEuint16, 0xFFFF},
		{"mul", e.Mul, 7, 6, TypeEuint64, 42},
		{"and", e.And, 1, 1, TypeEbool, 1},
		{"and_false", e.And, 1, 0, TypeEbool, 0},
		{"or", e.Or, 0, 1, TypeEbool, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := e.Encrypt(tt.a, tt.typ)
			b := e.Encrypt(tt.b, tt.typ)
			require.Equal(t, tt.expected, decrypt(t, e, tt.op(a, b)))
		})
	}
}

func TestSubWrapDetectableByComparison(t *testing.T) {
	// Overflow is never trapped; callers detect wraparound with Lt.
	e := NewSimEngine()

	a := e.Encrypt(5, TypeEuint64)
	b := e.Encrypt(7, TypeEuint64)
	sum := e.Add(a, b)
	require.Equal(t, uint64(0), decrypt(t, e, e.Lt(sum, a)), "no wrap on small add")

	max := e.Encrypt(^uint64(0), TypeEuint64)
	wrapped := e.Add(max, b)
	require.Equal(t, uint64(1), decrypt(t, e, e.Lt(wrapped, max)), "wrap detected")
}

func TestComparisons(t *testing.T) {
	e := NewSimEngine()

	tests := []struct {
		name     string
		op       func(a, b Value) Value
		a, b     uint64
		expected uint64
	}{
		{"eq_true", e.Eq, 5, 5, 1},
		{"eq_false", e.Eq, 5, 6, 0},
		{"lt_true", e.Lt, 4, 5, 1},
		{"lt_false_equal", e.Lt, 5, 5, 0},
		{"le_true_equal", e.Le, 5, 5, 1},
		{"le_false", e.Le, 6, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := e.Encrypt(tt.a, TypeEuint64)
			b := e.Encrypt(tt.b, TypeEuint64)
			require.Equal(t, tt.expected, decrypt(t, e, tt.op(a, b)))
		})
	}
}

func TestSelect(t *testing.T) {
	e := NewSimEngine()

	a := e.Encrypt(111, TypeEuint64)
	b := e.Encrypt(222, TypeEuint64)

	require.Equal(t, uint64(111), decrypt(t, e, e.Select(e.EncryptBool(true), a, b)))
	require.Equal(t, uint64(222), decrypt(t, e, e.Select(e.EncryptBool(false), a, b)))
}

func TestNotOnBool(t *testing.T) {
	e := NewSimEngine()

	require.Equal(t, uint64(0), decrypt(t, e, e.Not(e.EncryptBool(true))))
	require.Equal(t, uint64(1), decrypt(t, e, e.Not(e.EncryptBool(false))))
}

func TestShrHalves(t *testing.T) {
	e := NewSimEngine()

	v := e.Encrypt(2_000_000, TypeEuint64)
	require.Equal(t, uint64(1_000_000), decrypt(t, e, e.Shr(v, 1)))
}

func TestCastWidensForProducts(t *testing.T) {
	e := NewSimEngine()

	// 2^63 * 4 overflows 64 bits but fits in 128.
	a := e.Cast(e.Encrypt(1<<63, TypeEuint64), TypeEuint128)
	b := e.Cast(e.Encrypt(4, TypeEuint64), TypeEuint128)
	prod := e.Mul(a, b)

	e.Allow(prod, testAccount)
	pt, err := e.Decrypt(prod, testAccount)
	require.NoError(t, err)

	expected := new(uint256.Int).Lsh(uint256.NewInt(1), 65)
	require.True(t, expected.Eq(pt), "expected 2^65, got %s", pt)
}

func TestFreshHandles(t *testing.T) {
	e := NewSimEngine()

	a := e.Encrypt(42, TypeEuint64)
	b := e.Encrypt(42, TypeEuint64)
	require.NotEqual(t, a.Handle, b.Handle, "equal plaintexts must not share handles")
}

func TestDecryptRequiresGrant(t *testing.T) {
	e := NewSimEngine()
	other := common.HexToAddress("0x2000000000000000000000000000000000000002")

	v := e.Encrypt(9, TypeEuint64)
	_, err := e.Decrypt(v, other)
	require.ErrorIs(t, err, ErrNotAllowed)

	e.Allow(v, other)
	pt, err := e.Decrypt(v, other)
	require.NoError(t, err)
	require.Equal(t, uint64(9), pt.Uint64())
}

func TestExternalInputRoundtrip(t *testing.T) {
	e := NewSimEngine()
	enc := e.NewEncryptor()

	ct := enc.EncryptUint64(123456, TypeEuint64)
	v, err := e.FromExternal(ct)
	require.NoError(t, err)
	require.Equal(t, TypeEuint64, v.Type)
	require.Equal(t, uint64(123456), decrypt(t, e, v))
}

func TestExternalInputFreshness(t *testing.T) {
	e := NewSimEngine()
	enc := e.NewEncryptor()

	a := enc.EncryptUint64(7, TypeEuint16)
	b := enc.EncryptUint64(7, TypeEuint16)
	require.NotEqual(t, a.Bytes, b.Bytes, "re-encryption must produce fresh ciphertext bytes")
}

func TestExternalInputBadProof(t *testing.T) {
	e := NewSimEngine()
	enc := e.NewEncryptor()

	ct := enc.EncryptUint64(1, TypeEuint64)
	ct.Proof[0] ^= 0xFF
	_, err := e.FromExternal(ct)
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestExternalInputForeignEncryptor(t *testing.T) {
	e := NewSimEngine()
	foreign := NewSimEngine().NewEncryptor()

	_, err := e.FromExternal(foreign.EncryptUint64(1, TypeEuint64))
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestPublicDecryptionFlow(t *testing.T) {
	e := NewSimEngine()
	oracle := e.NewOracle()

	r0 := e.Encrypt(1000, TypeEuint64)
	r1 := e.Encrypt(2000, TypeEuint64)

	// Reveal before commit must fail.
	_, _, err := oracle.Reveal([]common.Hash{r0.Handle})
	require.ErrorIs(t, err, ErrNotPublic)

	h0 := e.MakePubliclyDecryptable(r0)
	h1 := e.MakePubliclyDecryptable(r1)
	handles := []common.Hash{h0, h1}

	cleartexts, proof, err := oracle.Reveal(handles)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), cleartexts[0].Uint64())
	require.Equal(t, uint64(2000), cleartexts[1].Uint64())
	require.True(t, e.VerifyDecryption(handles, cleartexts, proof))

	// Tampered cleartexts fail verification.
	tampered := []*uint256.Int{uint256.NewInt(1001), cleartexts[1]}
	require.False(t, e.VerifyDecryption(handles, tampered, proof))

	// Tampered proof fails verification.
	proof[0] ^= 0xFF
	require.False(t, e.VerifyDecryption(handles, cleartexts, proof))
}

func TestRandomTypedAndMasked(t *testing.T) {
	e := NewSimEngine()

	for i := 0; i < 32; i++ {
		v := e.Random(TypeEuint16)
		require.Equal(t, TypeEuint16, v.Type)
		require.Less(t, decrypt(t, e, v), uint64(1<<16))
	}
}
