// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhe provides the confidential-value abstraction for the batched
// constant-product AMM: opaque encrypted unsigned integers addressed by
// handle, supporting addition, subtraction, multiplication, logical shifts,
// comparisons, boolean algebra and ternary selection.
//
// Division and square roots are deliberately absent from the operation set.
// Every quotient the AMM needs is rewritten as a cross-multiplication, so an
// Engine never has to divide a ciphertext. Code that wants a/b <= c/d must
// check a*d <= c*b on the widened 128-bit type instead.
//
// Two backends implement Engine: SimEngine, a deterministic plaintext
// simulation used for tests and local execution, and TFHEEngine (build tag
// "tfhe"), which evaluates the same operations on real TFHE ciphertexts.
package fhe

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Ciphertext type constants - must match github.com/luxfi/fhe FheUintType
const (
	TypeEbool    uint8 = 0 // FheBool - 1 bit
	TypeEuint16  uint8 = 3 // FheUint16 - 16 bits (revocation keys)
	TypeEuint64  uint8 = 5 // FheUint64 - 64 bits (amounts, reserves, supply)
	TypeEuint128 uint8 = 6 // FheUint128 - 128 bits (cross-multiplication products)
)

// TypeBits returns the plaintext width in bits for a ciphertext type.
func TypeBits(typ uint8) uint {
	switch typ {
	case TypeEbool:
		return 1
	case TypeEuint16:
		return 16
	case TypeEuint64:
		return 64
	case TypeEuint128:
		return 128
	default:
		return 0
	}
}

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext handle")
	ErrInvalidProof      = errors.New("invalid input proof")
	ErrTypeMismatch      = errors.New("ciphertext type mismatch")
	ErrNotAllowed        = errors.New("no decryption rights on ciphertext")
	ErrNotPublic         = errors.New("ciphertext not marked publicly decryptable")
)

// Value is an opaque encrypted unsigned integer: a handle into the engine's
// ciphertext store plus its type tag. Values are immutable; every operation
// produces a fresh handle.
type Value struct {
	Handle common.Hash
	Type   uint8
}

// IsZero reports whether the value carries no handle at all (the zero Value,
// not an encryption of zero).
func (v Value) IsZero() bool {
	return v.Handle == (common.Hash{})
}

// ExternalCiphertext is an input ciphertext produced outside the engine by an
// Encryptor, together with its integrity proof. It becomes a usable Value
// only after Engine.FromExternal verifies the proof.
type ExternalCiphertext struct {
	Bytes []byte
	Type  uint8
	Proof []byte
}

// Engine is the confidential-compute backend consumed by the pool and token
// packages. All arithmetic wraps at the value's declared width; overflow is
// never trapped, callers detect it by comparison (x+y < x detects wrap).
//
// There is intentionally no Div and no Sqrt.
type Engine interface {
	// Encrypt trivially encrypts a plaintext constant.
	Encrypt(value uint64, typ uint8) Value
	// EncryptBool trivially encrypts a boolean.
	EncryptBool(b bool) Value
	// FromExternal verifies and admits an externally encrypted input.
	FromExternal(ct ExternalCiphertext) (Value, error)
	// Random produces a fresh uniformly random encrypted value.
	Random(typ uint8) Value

	Add(a, b Value) Value
	Sub(a, b Value) Value
	Mul(a, b Value) Value
	// Shr shifts right by a plaintext amount (logical).
	Shr(a Value, shift uint) Value

	Eq(a, b Value) Value
	Lt(a, b Value) Value
	Le(a, b Value) Value

	And(a, b Value) Value
	Or(a, b Value) Value
	Not(a Value) Value

	// Select returns ifTrue where cond holds and ifFalse elsewhere, without
	// revealing cond. Both branches are always materialized.
	Select(cond, ifTrue, ifFalse Value) Value
	// Cast re-types a value to a different width, truncating or widening.
	Cast(a Value, typ uint8) Value

	// Allow grants account the right to request decryption of v.
	Allow(v Value, account common.Address)
	// Decrypt reveals v's plaintext to caller. Fails unless caller was
	// granted rights via Allow or v was made publicly decryptable.
	Decrypt(v Value, caller common.Address) (*uint256.Int, error)

	// MakePubliclyDecryptable marks v for public decryption and returns its
	// commitment handle for the off-chain decryption oracle.
	MakePubliclyDecryptable(v Value) common.Hash
	// VerifyDecryption checks an oracle proof binding cleartexts to the
	// commitment handles they claim to reveal.
	VerifyDecryption(handles []common.Hash, cleartexts []*uint256.Int, proof []byte) bool
}
