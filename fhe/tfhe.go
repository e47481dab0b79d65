// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build tfhe

package fhe

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/fhe"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// TFHEEngine evaluates the Engine operation set on real TFHE ciphertexts.
// Ciphertexts are serialized into a handle-indexed store; every operation
// deserializes its operands, runs the bitwise evaluator, and stores the
// result under a fresh handle.
//
// The public-decryption path only ever crosses the boundary with 64-bit
// reserves/supply and 16-bit revocation keys; 128-bit intermediates never
// leave the evaluator, so DecryptUint64 covers every observable value.
type TFHEEngine struct {
	mu sync.Mutex

	params    fhe.Parameters
	evaluator *fhe.BitwiseEvaluator
	encryptor *fhe.BitwiseEncryptor
	decryptor *fhe.BitwiseDecryptor
	secretKey *fhe.SecretKey
	publicKey *fhe.PublicKey

	cts    map[common.Hash][]byte
	types  map[common.Hash]uint8
	acl    map[common.Hash]map[common.Address]struct{}
	public map[common.Hash]struct{}

	secret [32]byte
	nonce  uint64
}

// NewTFHEEngine generates TFHE keys and returns a ready engine.
func NewTFHEEngine() (*TFHEEngine, error) {
	params, err := fhe.NewParametersFromLiteral(fhe.PN10QP27)
	if err != nil {
		return nil, err
	}

	kg := fhe.NewKeyGenerator(params)
	sk, pk := kg.GenKeyPair()
	bsk := kg.GenBootstrapKey(sk)

	e := &TFHEEngine{
		params:    params,
		evaluator: fhe.NewBitwiseEvaluator(params, bsk, sk),
		encryptor: fhe.NewBitwiseEncryptor(params, sk),
		decryptor: fhe.NewBitwiseDecryptor(params, sk),
		secretKey: sk,
		publicKey: pk,
		cts:       make(map[common.Hash][]byte),
		types:     make(map[common.Hash]uint8),
		acl:       make(map[common.Hash]map[common.Address]struct{}),
		public:    make(map[common.Hash]struct{}),
	}
	rand.Read(e.secret[:])
	return e, nil
}

// fheUintType converts a ciphertext type constant to the TFHE FheUintType.
func fheUintType(typ uint8) fhe.FheUintType {
	switch typ {
	case TypeEbool:
		return fhe.FheBool
	case TypeEuint16:
		return fhe.FheUint16
	case TypeEuint64:
		return fhe.FheUint64
	case TypeEuint128:
		return fhe.FheUint128
	default:
		return fhe.FheUint64
	}
}

func marshalCiphertext(ct *fhe.BitCiphertext) []byte {
	if ct == nil {
		return nil
	}
	data, err := ct.MarshalBinary()
	if err != nil {
		return nil
	}
	return data
}

func unmarshalCiphertext(data []byte) *fhe.BitCiphertext {
	if len(data) == 0 {
		return nil
	}
	ct := new(fhe.BitCiphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil
	}
	return ct
}

func unmarshalBit(data []byte) *fhe.Ciphertext {
	if len(data) == 0 {
		return nil
	}
	ct := new(fhe.Ciphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil
	}
	return ct
}

// newHandle derives a fresh handle. Caller must hold e.mu.
func (e *TFHEEngine) newHandle() common.Hash {
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], e.nonce)
	e.nonce++

	h := blake3.New()
	h.Write(e.secret[:])
	h.Write(ctr[:])
	var handle common.Hash
	h.Digest().Read(handle[:])
	return handle
}

// store saves a serialized ciphertext under a fresh handle. Caller must hold e.mu.
func (e *TFHEEngine) store(data []byte, typ uint8) Value {
	if data == nil {
		return Value{}
	}
	handle := e.newHandle()
	e.cts[handle] = data
	e.types[handle] = typ
	return Value{Handle: handle, Type: typ}
}

func (e *TFHEEngine) Encrypt(value uint64, typ uint8) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	ct := e.encryptor.EncryptUint64(value, fheUintType(typ))
	return e.store(marshalCiphertext(ct), typ)
}

func (e *TFHEEngine) EncryptBool(b bool) Value {
	var v uint64
	if b {
		v = 1
	}
	return e.Encrypt(v, TypeEbool)
}

func (e *TFHEEngine) Random(typ uint8) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	var seed [32]byte
	rand.Read(seed[:])
	rng := fhe.NewFheRNG(e.params, e.secretKey, seed[:])
	ct := rng.RandomUint(fheUintType(typ))
	return e.store(marshalCiphertext(ct), typ)
}

// binOp deserializes both operands, applies f, and stores the result with the
// left operand's type.
func (e *TFHEEngine) binOp(a, b Value, typ uint8, f func(x, y *fhe.BitCiphertext) (*fhe.BitCiphertext, error)) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	x := unmarshalCiphertext(e.cts[a.Handle])
	y := unmarshalCiphertext(e.cts[b.Handle])
	if x == nil || y == nil {
		return Value{}
	}
	res, err := f(x, y)
	if err != nil {
		return Value{}
	}
	return e.store(marshalCiphertext(res), typ)
}

func (e *TFHEEngine) Add(a, b Value) Value {
	return e.binOp(a, b, a.Type, e.evaluator.Add)
}

func (e *TFHEEngine) Sub(a, b Value) Value {
	return e.binOp(a, b, a.Type, e.evaluator.Sub)
}

func (e *TFHEEngine) Mul(a, b Value) Value {
	return e.binOp(a, b, a.Type, e.evaluator.Mul)
}

func (e *TFHEEngine) Shr(a Value, shift uint) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	x := unmarshalCiphertext(e.cts[a.Handle])
	if x == nil {
		return Value{}
	}
	res := e.evaluator.Shr(x, int(shift))
	return e.store(marshalCiphertext(res), a.Type)
}

// cmpOp wraps the evaluator's single-bit comparison result as an FheBool
// ciphertext for consistent serialization.
func (e *TFHEEngine) cmpOp(a, b Value, f func(x, y *fhe.BitCiphertext) (*fhe.Ciphertext, error)) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	x := unmarshalCiphertext(e.cts[a.Handle])
	y := unmarshalCiphertext(e.cts[b.Handle])
	if x == nil || y == nil {
		return Value{}
	}
	bit, err := f(x, y)
	if err != nil {
		return Value{}
	}
	boolCt := fhe.WrapBoolCiphertext(bit)
	return e.store(marshalCiphertext(boolCt), TypeEbool)
}

func (e *TFHEEngine) Eq(a, b Value) Value {
	return e.cmpOp(a, b, e.evaluator.Eq)
}

func (e *TFHEEngine) Lt(a, b Value) Value {
	return e.cmpOp(a, b, e.evaluator.Lt)
}

func (e *TFHEEngine) Le(a, b Value) Value {
	return e.cmpOp(a, b, e.evaluator.Le)
}

func (e *TFHEEngine) And(a, b Value) Value {
	return e.binOp(a, b, a.Type, e.evaluator.And)
}

func (e *TFHEEngine) Or(a, b Value) Value {
	return e.binOp(a, b, a.Type, e.evaluator.Or)
}

func (e *TFHEEngine) Not(a Value) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	x := unmarshalCiphertext(e.cts[a.Handle])
	if x == nil {
		return Value{}
	}
	res := e.evaluator.Not(x)
	return e.store(marshalCiphertext(res), a.Type)
}

func (e *TFHEEngine) Select(cond, ifTrue, ifFalse Value) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := unmarshalBit(e.cts[cond.Handle])
	t := unmarshalCiphertext(e.cts[ifTrue.Handle])
	f := unmarshalCiphertext(e.cts[ifFalse.Handle])
	if c == nil || t == nil || f == nil {
		return Value{}
	}
	res, err := e.evaluator.Select(c, t, f)
	if err != nil {
		return Value{}
	}
	return e.store(marshalCiphertext(res), ifTrue.Type)
}

func (e *TFHEEngine) Cast(a Value, typ uint8) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	x := unmarshalCiphertext(e.cts[a.Handle])
	if x == nil {
		return Value{}
	}
	res := e.evaluator.CastTo(x, fheUintType(typ))
	return e.store(marshalCiphertext(res), typ)
}

func (e *TFHEEngine) Allow(v Value, account common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()

	grants, ok := e.acl[v.Handle]
	if !ok {
		grants = make(map[common.Address]struct{})
		e.acl[v.Handle] = grants
	}
	grants[account] = struct{}{}
}

func (e *TFHEEngine) Decrypt(v Value, caller common.Address) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, ok := e.cts[v.Handle]
	if !ok {
		return nil, ErrInvalidCiphertext
	}
	if _, public := e.public[v.Handle]; !public {
		grants, ok := e.acl[v.Handle]
		if !ok {
			return nil, ErrNotAllowed
		}
		if _, ok := grants[caller]; !ok {
			return nil, ErrNotAllowed
		}
	}
	ct := unmarshalCiphertext(data)
	if ct == nil {
		return nil, ErrInvalidCiphertext
	}
	return uint256.NewInt(e.decryptor.DecryptUint64(ct)), nil
}

func (e *TFHEEngine) MakePubliclyDecryptable(v Value) common.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.cts[v.Handle]; !ok {
		return common.Hash{}
	}
	e.public[v.Handle] = struct{}{}
	return v.Handle
}

func (e *TFHEEngine) VerifyDecryption(handles []common.Hash, cleartexts []*uint256.Int, proof []byte) bool {
	if len(handles) != len(cleartexts) {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	expected := decryptionMAC(e.secret, handles, cleartexts)
	if len(proof) != len(expected) {
		return false
	}
	for i := range proof {
		if proof[i] != expected[i] {
			return false
		}
	}
	return true
}

func (e *TFHEEngine) FromExternal(ct ExternalCiphertext) (Value, error) {
	if TypeBits(ct.Type) == 0 {
		return Value{}, ErrInvalidCiphertext
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	expected := inputMAC(e.secret, ct.Bytes, ct.Type)
	if len(ct.Proof) != len(expected) {
		return Value{}, ErrInvalidProof
	}
	for i := range expected {
		if ct.Proof[i] != expected[i] {
			return Value{}, ErrInvalidProof
		}
	}
	if unmarshalCiphertext(ct.Bytes) == nil {
		return Value{}, ErrInvalidCiphertext
	}

	handle := e.newHandle()
	e.cts[handle] = ct.Bytes
	e.types[handle] = ct.Type
	return Value{Handle: handle, Type: ct.Type}, nil
}

// TFHEEncryptor produces authenticated external inputs for a TFHEEngine.
type TFHEEncryptor struct {
	eng *TFHEEngine
}

// NewEncryptor returns an input encryptor bound to this engine's keys.
func (e *TFHEEngine) NewEncryptor() *TFHEEncryptor {
	return &TFHEEncryptor{eng: e}
}

// EncryptUint64 encrypts a plaintext integer as an external input.
func (enc *TFHEEncryptor) EncryptUint64(value uint64, typ uint8) ExternalCiphertext {
	e := enc.eng
	e.mu.Lock()
	defer e.mu.Unlock()

	data := marshalCiphertext(e.encryptor.EncryptUint64(value, fheUintType(typ)))
	return ExternalCiphertext{
		Bytes: data,
		Type:  typ,
		Proof: inputMAC(e.secret, data, typ),
	}
}

// EncryptBool encrypts a boolean as an external input.
func (enc *TFHEEncryptor) EncryptBool(b bool) ExternalCiphertext {
	var v uint64
	if b {
		v = 1
	}
	return enc.EncryptUint64(v, TypeEbool)
}

// TFHEOracle decrypts publicly committed handles and signs the cleartexts.
type TFHEOracle struct {
	eng *TFHEEngine
}

// NewOracle returns a decryption oracle bound to this engine.
func (e *TFHEEngine) NewOracle() *TFHEOracle {
	return &TFHEOracle{eng: e}
}

// Reveal decrypts a set of public commitment handles and returns the
// cleartexts with a proof over the full set.
func (o *TFHEOracle) Reveal(handles []common.Hash) ([]*uint256.Int, []byte, error) {
	e := o.eng
	e.mu.Lock()
	defer e.mu.Unlock()

	cleartexts := make([]*uint256.Int, len(handles))
	for i, handle := range handles {
		if _, ok := e.public[handle]; !ok {
			return nil, nil, ErrNotPublic
		}
		ct := unmarshalCiphertext(e.cts[handle])
		if ct == nil {
			return nil, nil, ErrInvalidCiphertext
		}
		cleartexts[i] = uint256.NewInt(e.decryptor.DecryptUint64(ct))
	}
	return cleartexts, decryptionMAC(e.secret, handles, cleartexts), nil
}
