// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// SimEngine is a deterministic plaintext simulation of the confidential
// compute backend. Ciphertexts are opaque handles into an in-memory store;
// handles are derived from a per-engine secret and a counter, so re-encrypting
// the same plaintext always yields a distinct, unlinkable handle.
//
// The simulation preserves the privacy discipline of the real backend as a
// testable property: Select materializes both branches, arithmetic wraps at
// the declared width, and plaintexts leave the store only through the
// capability-checked Decrypt path or the public-decryption oracle.
type SimEngine struct {
	mu sync.RWMutex

	// values holds plaintexts indexed by handle, mirroring the
	// handle-indexed ciphertext store of the FHE precompile.
	values map[common.Hash]*uint256.Int
	types  map[common.Hash]uint8

	// acl tracks which accounts may request decryption of a handle.
	acl map[common.Hash]map[common.Address]struct{}
	// public marks handles committed for public decryption.
	public map[common.Hash]struct{}

	secret [32]byte
	nonce  uint64
}

// NewSimEngine creates a simulation engine with a fresh random secret.
func NewSimEngine() *SimEngine {
	e := &SimEngine{
		values: make(map[common.Hash]*uint256.Int),
		types:  make(map[common.Hash]uint8),
		acl:    make(map[common.Hash]map[common.Address]struct{}),
		public: make(map[common.Hash]struct{}),
	}
	rand.Read(e.secret[:])
	return e
}

// typeMask returns the wraparound mask for a ciphertext type.
func typeMask(typ uint8) *uint256.Int {
	bits := TypeBits(typ)
	if bits == 0 {
		return uint256.NewInt(0)
	}
	one := uint256.NewInt(1)
	mask := new(uint256.Int).Lsh(one, bits)
	return mask.Sub(mask, one)
}

// newHandle derives a fresh unlinkable handle. Caller must hold e.mu.
func (e *SimEngine) newHandle() common.Hash {
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

// store saves a plaintext under a fresh handle. Caller must hold e.mu.
func (e *SimEngine) store(v *uint256.Int, typ uint8) Value {
	masked := new(uint256.Int).And(v, typeMask(typ))
	handle := e.newHandle()
	e.values[handle] = masked
	e.types[handle] = typ
	return Value{Handle: handle, Type: typ}
}

// lookup retrieves a plaintext by handle. Caller must hold e.mu.
func (e *SimEngine) lookup(v Value) (*uint256.Int, bool) {
	pt, ok := e.values[v.Handle]
	return pt, ok
}

func (e *SimEngine) Encrypt(value uint64, typ uint8) Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store(uint256.NewInt(value), typ)
}

func (e *SimEngine) EncryptBool(b bool) Value {
	var v uint64
	if b {
		v = 1
	}
	return e.Encrypt(v, TypeEbool)
}

func (e *SimEngine) Random(typ uint8) Value {
	var buf [32]byte
	rand.Read(buf[:])
	v := new(uint256.Int).SetBytes(buf[:])

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store(v, typ)
}

// binOp runs f over both plaintexts and stores the result with the left
// operand's type, matching the lhs-type convention of the precompile.
func (e *SimEngine) binOp(a, b Value, f func(res, x, y *uint256.Int)) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	x, ok := e.lookup(a)
	if !ok {
		return Value{}
	}
	y, ok := e.lookup(b)
	if !ok {
		return Value{}
	}
	res := new(uint256.Int)
	f(res, x, y)
	return e.store(res, a.Type)
}

// cmpOp runs f over both plaintexts and stores an encrypted boolean.
func (e *SimEngine) cmpOp(a, b Value, f func(x, y *uint256.Int) bool) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	x, ok := e.lookup(a)
	if !ok {
		return Value{}
	}
	y, ok := e.lookup(b)
	if !ok {
		return Value{}
	}
	var res uint64
	if f(x, y) {
		res = 1
	}
	return e.store(uint256.NewInt(res), TypeEbool)
}

func (e *SimEngine) Add(a, b Value) Value {
	return e.binOp(a, b, func(res, x, y *uint256.Int) { res.Add(x, y) })
}

func (e *SimEngine) Sub(a, b Value) Value {
	// uint256 subtraction wraps mod 2^256; the store's width mask reduces
	// that to wraparound at the operand width.
	return e.binOp(a, b, func(res, x, y *uint256.Int) { res.Sub(x, y) })
}

func (e *SimEngine) Mul(a, b Value) Value {
	return e.binOp(a, b, func(res, x, y *uint256.Int) { res.Mul(x, y) })
}

func (e *SimEngine) Shr(a Value, shift uint) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	x, ok := e.lookup(a)
	if !ok {
		return Value{}
	}
	res := new(uint256.Int).Rsh(x, shift)
	return e.store(res, a.Type)
}

func (e *SimEngine) Eq(a, b Value) Value {
	return e.cmpOp(a, b, func(x, y *uint256.Int) bool { return x.Eq(y) })
}

func (e *SimEngine) Lt(a, b Value) Value {
	return e.cmpOp(a, b, func(x, y *uint256.Int) bool { return x.Lt(y) })
}

func (e *SimEngine) Le(a, b Value) Value {
	return e.cmpOp(a, b, func(x, y *uint256.Int) bool { return !y.Lt(x) })
}

func (e *SimEngine) And(a, b Value) Value {
	return e.binOp(a, b, func(res, x, y *uint256.Int) { res.And(x, y) })
}

func (e *SimEngine) Or(a, b Value) Value {
	return e.binOp(a, b, func(res, x, y *uint256.Int) { res.Or(x, y) })
}

func (e *SimEngine) Not(a Value) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	x, ok := e.lookup(a)
	if !ok {
		return Value{}
	}
	res := new(uint256.Int).Xor(x, typeMask(a.Type))
	return e.store(res, a.Type)
}

func (e *SimEngine) Select(cond, ifTrue, ifFalse Value) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.lookup(cond)
	if !ok {
		return Value{}
	}
	// Both branches are full values already; selection copies one of them
	// under a fresh handle so the outcome is unlinkable to either input.
	t, ok := e.lookup(ifTrue)
	if !ok {
		return Value{}
	}
	f, ok := e.lookup(ifFalse)
	if !ok {
		return Value{}
	}
	picked := f
	if !c.IsZero() {
		picked = t
	}
	return e.store(new(uint256.Int).Set(picked), ifTrue.Type)
}

func (e *SimEngine) Cast(a Value, typ uint8) Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	x, ok := e.lookup(a)
	if !ok {
		return Value{}
	}
	return e.store(new(uint256.Int).Set(x), typ)
}

func (e *SimEngine) Allow(v Value, account common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()

	grants, ok := e.acl[v.Handle]
	if !ok {
		grants = make(map[common.Address]struct{})
		e.acl[v.Handle] = grants
	}
	grants[account] = struct{}{}
}

func (e *SimEngine) Decrypt(v Value, caller common.Address) (*uint256.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pt, ok := e.values[v.Handle]
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
	return new(uint256.Int).Set(pt), nil
}

func (e *SimEngine) MakePubliclyDecryptable(v Value) common.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.values[v.Handle]; !ok {
		return common.Hash{}
	}
	e.public[v.Handle] = struct{}{}
	return v.Handle
}

func (e *SimEngine) VerifyDecryption(handles []common.Hash, cleartexts []*uint256.Int, proof []byte) bool {
	if len(handles) != len(cleartexts) {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
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

// decryptionMAC binds a cleartext triplet to its commitment handles under the
// engine secret.
func decryptionMAC(secret [32]byte, handles []common.Hash, cleartexts []*uint256.Int) []byte {
	h := blake3.New()
	h.Write(secret[:])
	for i, handle := range handles {
		h.Write(handle[:])
		b := cleartexts[i].Bytes32()
		h.Write(b[:])
	}
	mac := make([]byte, 32)
	h.Digest().Read(mac)
	return mac
}

// inputMAC authenticates an external input ciphertext.
func inputMAC(secret [32]byte, ct []byte, typ uint8) []byte {
	h := blake3.New()
	h.Write(secret[:])
	h.Write([]byte{typ})
	h.Write(ct)
	mac := make([]byte, 32)
	h.Digest().Read(mac)
	return mac
}

func (e *SimEngine) FromExternal(ct ExternalCiphertext) (Value, error) {
	if TypeBits(ct.Type) == 0 || len(ct.Bytes) != externalCiphertextLen {
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

	v := new(uint256.Int).SetBytes(ct.Bytes[externalNonceLen:])
	return e.store(v, ct.Type), nil
}

const (
	externalNonceLen      = 16
	externalCiphertextLen = externalNonceLen + 32
)

// Encryptor produces input ciphertexts for the simulation engine, playing the
// role of the client-side encryption infrastructure. Each ciphertext carries a
// random nonce so two encryptions of the same plaintext are never
// byte-equal; revocation depends on that freshness.
type Encryptor struct {
	secret [32]byte
}

// NewEncryptor returns an encryptor bound to this engine's parameters.
func (e *SimEngine) NewEncryptor() *Encryptor {
	return &Encryptor{secret: e.secret}
}

func (enc *Encryptor) encrypt(v *uint256.Int, typ uint8) ExternalCiphertext {
	ct := make([]byte, externalCiphertextLen)
	rand.Read(ct[:externalNonceLen])
	b := new(uint256.Int).And(v, typeMask(typ)).Bytes32()
	copy(ct[externalNonceLen:], b[:])
	return ExternalCiphertext{
		Bytes: ct,
		Type:  typ,
		Proof: inputMAC(enc.secret, ct, typ),
	}
}

// EncryptUint64 encrypts a plaintext integer as an external input.
func (enc *Encryptor) EncryptUint64(value uint64, typ uint8) ExternalCiphertext {
	return enc.encrypt(uint256.NewInt(value), typ)
}

// EncryptBool encrypts a boolean as an external input.
func (enc *Encryptor) EncryptBool(b bool) ExternalCiphertext {
	var v uint64
	if b {
		v = 1
	}
	return enc.encrypt(uint256.NewInt(v), TypeEbool)
}

// Oracle is the off-process decryption service for the simulation engine: it
// reveals handles previously marked publicly decryptable and signs the
// cleartexts so VerifyDecryption can bind them back to their commitments.
type Oracle struct {
	eng *SimEngine
}

// NewOracle returns a decryption oracle bound to this engine.
func (e *SimEngine) NewOracle() *Oracle {
	return &Oracle{eng: e}
}

// Reveal decrypts a set of public commitment handles and returns the
// cleartexts with a proof over the full set.
func (o *Oracle) Reveal(handles []common.Hash) ([]*uint256.Int, []byte, error) {
	o.eng.mu.RLock()
	defer o.eng.mu.RUnlock()

	cleartexts := make([]*uint256.Int, len(handles))
	for i, handle := range handles {
		if _, ok := o.eng.public[handle]; !ok {
			return nil, nil, ErrNotPublic
		}
		pt, ok := o.eng.values[handle]
		if !ok {
			return nil, nil, ErrInvalidCiphertext
		}
		cleartexts[i] = new(uint256.Int).Set(pt)
	}
	return cleartexts, decryptionMAC(o.eng.secret, handles, cleartexts), nil
}
