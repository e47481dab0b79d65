// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/cpmm/fhe"
	"github.com/luxfi/cpmm/token"
)

// Pool is a batched confidential constant-product AMM over a token pair plus
// an LP token. The host serializes calls; the mutex guards direct library
// use.
type Pool struct {
	mu sync.RWMutex

	log log.Logger
	cfg Config
	eng fhe.Engine

	// addr is the pool's own account on the three tokens. It holds the
	// deposited balances that the encrypted reserves shadow.
	addr common.Address

	token0 *token.Token
	token1 *token.Token
	lp     *token.Token

	initialized bool
	reserve0    fhe.Value
	reserve1    fhe.Value

	currentBatchID uint64
	batches        map[uint64]*BatchMeta
	opsByID        map[uint64]*Operation
	nextOpID       uint64

	// Pending decryption commitments, replaced every batch.
	pendingReserve0 common.Hash
	pendingReserve1 common.Hash
	pendingSupply   common.Hash

	// Plaintext views, written only by FinalizeBatch. Always stale relative
	// to the batch currently open or processing.
	publicReserve0    uint64
	publicReserve1    uint64
	publicTotalSupply uint64

	journal []Event
}

// New creates a pool over the given token pair and LP token and registers it
// as an operator on all three.
func New(eng fhe.Engine, cfg Config, addr common.Address, token0, token1, lp *token.Token, logger log.Logger) (*Pool, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	p := &Pool{
		log:     logger,
		cfg:     cfg,
		eng:     eng,
		addr:    addr,
		token0:  token0,
		token1:  token1,
		lp:      lp,
		batches: make(map[uint64]*BatchMeta),
		opsByID: make(map[uint64]*Operation),
	}
	token0.AddOperator(addr)
	token1.AddOperator(addr)
	lp.AddOperator(addr)
	return p, nil
}

// batch returns the metadata for a batch id, creating it lazily.
// Caller must hold p.mu.
func (p *Pool) batch(id uint64) *BatchMeta {
	b, ok := p.batches[id]
	if !ok {
		b = &BatchMeta{}
		p.batches[id] = b
	}
	return b
}

func (p *Pool) record(ev Event) {
	p.journal = append(p.journal, ev)
}

// Initialize seeds the pool with both tokens and mints the initial LP supply:
// (amount0+amount1)/2, computed as a logical shift, with MinimumLiquidity of
// it locked forever at a burn address and the rest credited to the initiator.
func (p *Pool) Initialize(initiator common.Address, extAmount0, extAmount1 fhe.ExternalCiphertext) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return ErrAlreadyInitialized
	}

	amount0, err := p.eng.FromExternal(extAmount0)
	if err != nil {
		return fmt.Errorf("amount0: %w", err)
	}
	amount1, err := p.eng.FromExternal(extAmount1)
	if err != nil {
		return fmt.Errorf("amount1: %w", err)
	}

	if err := p.token0.TransferFrom(p.addr, initiator, p.addr, amount0); err != nil {
		return err
	}
	if err := p.token1.TransferFrom(p.addr, initiator, p.addr, amount1); err != nil {
		return err
	}

	p.reserve0 = amount0
	p.reserve1 = amount1

	liquidity := p.eng.Shr(p.eng.Add(amount0, amount1), 1)
	locked := p.eng.Encrypt(MinimumLiquidity, fhe.TypeEuint64)

	// A deposit averaging below the minimum lock would wrap the subtraction
	// at 64 bits. The amounts are encrypted, so the case cannot be rejected
	// up front; clamp instead: the initiator gets zero and the lock absorbs
	// the whole supply.
	enough := p.eng.Le(locked, liquidity)
	zero := p.eng.Encrypt(0, fhe.TypeEuint64)
	p.lp.Mint(initiator, p.eng.Select(enough, p.eng.Sub(liquidity, locked), zero))
	p.lp.Mint(lockAddress, p.eng.Select(enough, locked, liquidity))

	p.initialized = true
	p.log.Info("pool initialized", "initiator", initiator)
	return nil
}

// enqueue validates preconditions, assigns an id and a fresh revocation key,
// and appends the operation to the current batch. Caller must hold p.mu.
func (p *Pool) enqueue(owner, recipient common.Address, kind OpKind, payload Payload) (uint64, fhe.Value, error) {
	if !p.initialized {
		return 0, fhe.Value{}, ErrNotInitialized
	}
	if recipient == (common.Address{}) {
		return 0, fhe.Value{}, ErrInvalidRecipient
	}
	b := p.batch(p.currentBatchID)
	if b.AwaitingDecryption {
		return 0, fhe.Value{}, ErrAwaitingDecryption
	}
	if b.Processing {
		return 0, fhe.Value{}, ErrBatchClosed
	}

	p.nextOpID++
	key := p.eng.Random(fhe.TypeEuint16)
	p.eng.Allow(key, owner)

	op := &Operation{
		ID:            p.nextOpID,
		Owner:         owner,
		Recipient:     recipient,
		Kind:          kind,
		BatchID:       p.currentBatchID,
		Revoked:       p.eng.EncryptBool(false),
		RevocationKey: key,
		Payload:       payload,
	}
	b.ops = append(b.ops, op)
	p.opsByID[op.ID] = op

	p.record(OperationQueued{
		BatchID:             op.BatchID,
		Owner:               owner,
		Kind:                kind,
		RevocationKeyHandle: key.Handle,
	})
	p.log.Debug("operation queued", "id", op.ID, "batch", op.BatchID, "kind", kind)
	return op.ID, key, nil
}

// EnqueueMint queues a liquidity deposit. Returns the operation id and the
// encrypted revocation key granted to the owner.
func (p *Pool) EnqueueMint(owner, recipient common.Address, extAmount0, extAmount1, extClaimedLiquidity fhe.ExternalCiphertext) (uint64, fhe.Value, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	amount0, err := p.eng.FromExternal(extAmount0)
	if err != nil {
		return 0, fhe.Value{}, fmt.Errorf("amount0: %w", err)
	}
	amount1, err := p.eng.FromExternal(extAmount1)
	if err != nil {
		return 0, fhe.Value{}, fmt.Errorf("amount1: %w", err)
	}
	claimed, err := p.eng.FromExternal(extClaimedLiquidity)
	if err != nil {
		return 0, fhe.Value{}, fmt.Errorf("claimedLiquidity: %w", err)
	}
	return p.enqueue(owner, recipient, KindMint, MintPayload{
		Amount0:          amount0,
		Amount1:          amount1,
		ClaimedLiquidity: claimed,
	})
}

// EnqueueBurn queues a liquidity withdrawal.
func (p *Pool) EnqueueBurn(owner, recipient common.Address, extLiquidity, extClaimedAmount0, extClaimedAmount1 fhe.ExternalCiphertext) (uint64, fhe.Value, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	liquidity, err := p.eng.FromExternal(extLiquidity)
	if err != nil {
		return 0, fhe.Value{}, fmt.Errorf("liquidity: %w", err)
	}
	claimed0, err := p.eng.FromExternal(extClaimedAmount0)
	if err != nil {
		return 0, fhe.Value{}, fmt.Errorf("claimedAmount0: %w", err)
	}
	claimed1, err := p.eng.FromExternal(extClaimedAmount1)
	if err != nil {
		return 0, fhe.Value{}, fmt.Errorf("claimedAmount1: %w", err)
	}
	return p.enqueue(owner, recipient, KindBurn, BurnPayload{
		LiquidityToBurn: liquidity,
		ClaimedAmount0:  claimed0,
		ClaimedAmount1:  claimed1,
	})
}

// EnqueueSwap queues a swap. Direction is an encrypted bool: true trades
// token0 for token1.
func (p *Pool) EnqueueSwap(owner, recipient common.Address, extAmountIn, extClaimedOut, extDirection fhe.ExternalCiphertext) (uint64, fhe.Value, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	amountIn, err := p.eng.FromExternal(extAmountIn)
	if err != nil {
		return 0, fhe.Value{}, fmt.Errorf("amountIn: %w", err)
	}
	claimedOut, err := p.eng.FromExternal(extClaimedOut)
	if err != nil {
		return 0, fhe.Value{}, fmt.Errorf("claimedOut: %w", err)
	}
	direction, err := p.eng.FromExternal(extDirection)
	if err != nil {
		return 0, fhe.Value{}, fmt.Errorf("direction: %w", err)
	}
	return p.enqueue(owner, recipient, KindSwap, SwapPayload{
		AmountIn:   amountIn,
		ClaimedOut: claimedOut,
		Direction:  direction,
	})
}

// Revoke attempts to cancel the operation whose revocation key matches the
// supplied freshly encrypted key. The scan touches every operation in the
// current batch with an identical update regardless of outcome, so neither
// the matched operation nor whether anything matched is observable. Already
// processed operations never flip.
func (p *Pool) Revoke(extKey fhe.ExternalCiphertext) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return ErrNotInitialized
	}
	b := p.batch(p.currentBatchID)
	if b.AwaitingDecryption {
		return ErrAwaitingDecryption
	}

	key, err := p.eng.FromExternal(extKey)
	if err != nil {
		return fmt.Errorf("revocation key: %w", err)
	}

	encTrue := p.eng.EncryptBool(true)
	for _, op := range b.ops {
		notProcessed := p.eng.EncryptBool(!op.Processed)
		matches := p.eng.And(p.eng.Eq(key, op.RevocationKey), notProcessed)
		op.Revoked = p.eng.Select(matches, encTrue, op.Revoked)
	}

	p.record(RevocationAttempted{BatchID: p.currentBatchID})
	p.log.Debug("revocation attempted", "batch", p.currentBatchID)
	return nil
}

// BatchSize returns the number of operations in the current batch.
func (p *Pool) BatchSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if b, ok := p.batches[p.currentBatchID]; ok {
		return b.Size()
	}
	return 0
}

// IsBatchReady reports whether the current batch has reached the processing
// threshold and is still open.
func (p *Pool) IsBatchReady() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.batches[p.currentBatchID]
	if !ok {
		return false
	}
	return !b.Processing && !b.AwaitingDecryption && b.Size() >= p.cfg.minBatchSize()
}

// HasMoreOperations reports whether the current batch is processing and
// operations remain before its cursor runs out.
func (p *Pool) HasMoreOperations() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.batches[p.currentBatchID]
	if !ok {
		return false
	}
	return b.Processing && b.NextProcessIndex < len(b.ops)
}

// IsAwaitingDecryption reports whether the current batch has published its
// reserve commitments and is waiting for FinalizeBatch.
func (p *Pool) IsAwaitingDecryption() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.batches[p.currentBatchID]
	return ok && b.AwaitingDecryption
}

// CurrentBatchID returns the id of the batch currently accepting or
// processing operations.
func (p *Pool) CurrentBatchID() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentBatchID
}

// PublicReserves returns the plaintext reserves and LP supply as of the last
// finalized batch.
func (p *Pool) PublicReserves() (reserve0, reserve1, totalSupply uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.publicReserve0, p.publicReserve1, p.publicTotalSupply
}

// PendingCommitments returns the decryption commitment triplet of the batch
// awaiting finalization, in reserve0, reserve1, totalSupply order.
func (p *Pool) PendingCommitments() ([]common.Hash, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.batches[p.currentBatchID]
	if !ok || !b.AwaitingDecryption {
		return nil, false
	}
	return []common.Hash{p.pendingReserve0, p.pendingReserve1, p.pendingSupply}, true
}

// BatchStatus returns a snapshot of a batch's lifecycle flags and cursor.
func (p *Pool) BatchStatus(id uint64) (BatchMeta, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.batches[id]
	if !ok {
		return BatchMeta{}, false
	}
	return BatchMeta{
		Processing:         b.Processing,
		AwaitingDecryption: b.AwaitingDecryption,
		Executed:           b.Executed,
		NextProcessIndex:   b.NextProcessIndex,
	}, true
}

// OperationByID returns a queued operation.
func (p *Pool) OperationByID(id uint64) (*Operation, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	op, ok := p.opsByID[id]
	return op, ok
}

// Events returns a copy of the append-only event journal.
func (p *Pool) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.journal))
	copy(out, p.journal)
	return out
}
