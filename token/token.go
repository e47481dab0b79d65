// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package token implements a confidential token ledger: balances and total
// supply are encrypted values, and transfers clamp to the available balance
// via select instead of reverting, so a zero or short transfer is a
// successful no-op indistinguishable from any other transfer. That property
// is what lets the batch processor execute every transfer leg unconditionally.
package token

import (
	"errors"
	"sync"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/cpmm/fhe"
)

var (
	ErrNotOperator = errors.New("caller is not an authorized operator")
)

// Token is a confidential token ledger. All mutation paths are constant-shape:
// the amount actually moved is derived with select, never with a branch on
// the encrypted balance.
type Token struct {
	mu sync.RWMutex

	log log.Logger
	eng fhe.Engine

	name   string
	symbol string

	balances    map[common.Address]fhe.Value
	totalSupply fhe.Value

	// operators may move third-party balances (the pool contract).
	operators map[common.Address]bool
}

// New creates an empty confidential token.
func New(eng fhe.Engine, name, symbol string, logger log.Logger) *Token {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Token{
		log:         logger,
		eng:         eng,
		name:        name,
		symbol:      symbol,
		balances:    make(map[common.Address]fhe.Value),
		totalSupply: eng.Encrypt(0, fhe.TypeEuint64),
		operators:   make(map[common.Address]bool),
	}
}

// Name returns the token name.
func (t *Token) Name() string { return t.name }

// Symbol returns the token symbol.
func (t *Token) Symbol() string { return t.symbol }

// AddOperator authorizes addr to move third-party balances.
func (t *Token) AddOperator(addr common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.operators[addr] = true
}

// balanceOf returns the encrypted balance, materializing an encrypted zero
// for unseen accounts. Caller must hold t.mu.
func (t *Token) balanceOf(addr common.Address) fhe.Value {
	bal, ok := t.balances[addr]
	if !ok {
		bal = t.eng.Encrypt(0, fhe.TypeEuint64)
		t.balances[addr] = bal
		t.eng.Allow(bal, addr)
	}
	return bal
}

// setBalance stores a new balance handle and re-grants the owner decryption
// rights on it. Caller must hold t.mu.
func (t *Token) setBalance(addr common.Address, bal fhe.Value) {
	t.balances[addr] = bal
	t.eng.Allow(bal, addr)
}

// BalanceOf returns the encrypted balance of addr.
func (t *Token) BalanceOf(addr common.Address) fhe.Value {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceOf(addr)
}

// TotalSupply returns the encrypted total supply.
func (t *Token) TotalSupply() fhe.Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSupply
}

// Mint credits amount to recipient and grows total supply. A zero amount is a
// defined no-op that still succeeds.
func (t *Token) Mint(to common.Address, amount fhe.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setBalance(to, t.eng.Add(t.balanceOf(to), amount))
	t.totalSupply = t.eng.Add(t.totalSupply, amount)
	t.log.Debug("mint", "token", t.symbol, "to", to)
}

// Burn debits owner and shrinks total supply. The burned amount clamps to the
// owner's balance: burning more than held burns zero.
func (t *Token) Burn(owner common.Address, amount fhe.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal := t.balanceOf(owner)
	zero := t.eng.Encrypt(0, fhe.TypeEuint64)
	burned := t.eng.Select(t.eng.Le(amount, bal), amount, zero)

	t.setBalance(owner, t.eng.Sub(bal, burned))
	t.totalSupply = t.eng.Sub(t.totalSupply, burned)
	t.log.Debug("burn", "token", t.symbol, "owner", owner)
}

// transfer moves min(amount, balance(from)) from one account to another.
// Caller must hold t.mu.
func (t *Token) transfer(from, to common.Address, amount fhe.Value) {
	fromBal := t.balanceOf(from)
	toBal := t.balanceOf(to)

	zero := t.eng.Encrypt(0, fhe.TypeEuint64)
	moved := t.eng.Select(t.eng.Le(amount, fromBal), amount, zero)

	t.setBalance(from, t.eng.Sub(fromBal, moved))
	t.setBalance(to, t.eng.Add(toBal, moved))
}

// Transfer moves amount from the caller's account to recipient. A zero or
// over-balance amount moves nothing and still succeeds.
//
// The from account is caller-supplied and unchecked: in-process callers are
// trusted to pass their own account. Anything exposing this ledger to
// untrusted callers must route third-party debits through TransferFrom and
// its operator guard instead.
func (t *Token) Transfer(from, to common.Address, amount fhe.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transfer(from, to, amount)
	t.log.Debug("transfer", "token", t.symbol, "from", from, "to", to)
}

// TransferFrom moves amount out of owner's account on behalf of operator.
// Only registered operators may call it.
func (t *Token) TransferFrom(operator, owner, to common.Address, amount fhe.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.operators[operator] {
		return ErrNotOperator
	}
	t.transfer(owner, to, amount)
	t.log.Debug("transferFrom", "token", t.symbol, "operator", operator, "owner", owner, "to", to)
	return nil
}
