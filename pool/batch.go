// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import "github.com/luxfi/cpmm/fhe"

// ProcessBatch advances the current batch by exactly one operation. The
// first call requires the batch to have reached the minimum size and flips
// it to processing. The call that processes the last operation also marks
// the reserves for decryption, so no extra call is needed to transition.
//
// Revoked operations flow through the same path as live ones with their
// amounts zeroed by select before verification; nothing in control flow,
// events, or transfer pattern distinguishes them.
func (p *Pool) ProcessBatch() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return ErrNotInitialized
	}
	b := p.batch(p.currentBatchID)
	if b.AwaitingDecryption {
		return ErrAwaitingDecryption
	}
	if !b.Processing {
		if b.Size() < p.cfg.minBatchSize() {
			return ErrBatchNotFull
		}
		b.Processing = true
		p.record(BatchProcessingStarted{BatchID: p.currentBatchID})
		p.log.Info("batch processing started", "batch", p.currentBatchID, "size", b.Size())
	}
	if b.NextProcessIndex >= len(b.ops) {
		// Unreachable: the call that processes the last operation flips the
		// batch to awaiting, which the guard above rejects. Kept anyway.
		return ErrAwaitingDecryption
	}

	op := b.ops[b.NextProcessIndex]
	var err error
	switch payload := op.Payload.(type) {
	case MintPayload:
		err = p.processMint(op, payload)
	case BurnPayload:
		err = p.processBurn(op, payload)
	case SwapPayload:
		err = p.processSwap(op, payload)
	}
	if err != nil {
		return err
	}

	op.Processed = true
	b.NextProcessIndex++

	if b.NextProcessIndex == len(b.ops) {
		p.markReservesForDecryption(b)
	}
	return nil
}

// zeroIfRevoked replaces v with an encrypted zero when the operation was
// revoked, without branching on the encrypted flag.
func (p *Pool) zeroIfRevoked(op *Operation, v fhe.Value) fhe.Value {
	zero := p.eng.Encrypt(0, fhe.TypeEuint64)
	return p.eng.Select(op.Revoked, zero, v)
}

func (p *Pool) processMint(op *Operation, payload MintPayload) error {
	eng := p.eng

	amount0 := p.zeroIfRevoked(op, payload.Amount0)
	amount1 := p.zeroIfRevoked(op, payload.Amount1)
	claimed := p.zeroIfRevoked(op, payload.ClaimedLiquidity)

	valid0, valid1, liquidity := verifyMint(eng,
		amount0, amount1, claimed,
		p.reserve0, p.reserve1, p.lp.TotalSupply())

	// The deposit must be funded. The token clamps an over-balance pull to
	// zero moved, so crediting reserves by an unfunded amount would detach
	// them from the balances the pool actually holds.
	funded := eng.And(
		eng.Le(amount0, p.token0.BalanceOf(op.Owner)),
		eng.Le(amount1, p.token1.BalanceOf(op.Owner)),
	)
	zero := eng.Encrypt(0, fhe.TypeEuint64)
	valid0 = eng.Select(funded, valid0, zero)
	valid1 = eng.Select(funded, valid1, zero)
	liquidity = eng.Select(funded, liquidity, zero)

	if err := p.token0.TransferFrom(p.addr, op.Owner, p.addr, valid0); err != nil {
		return err
	}
	if err := p.token1.TransferFrom(p.addr, op.Owner, p.addr, valid1); err != nil {
		return err
	}
	p.reserve0 = eng.Add(p.reserve0, valid0)
	p.reserve1 = eng.Add(p.reserve1, valid1)
	p.lp.Mint(op.Recipient, liquidity)

	p.record(MintProcessed{OpID: op.ID, Recipient: op.Recipient})
	return nil
}

func (p *Pool) processBurn(op *Operation, payload BurnPayload) error {
	eng := p.eng

	liquidity := p.zeroIfRevoked(op, payload.LiquidityToBurn)
	claimed0 := p.zeroIfRevoked(op, payload.ClaimedAmount0)
	claimed1 := p.zeroIfRevoked(op, payload.ClaimedAmount1)

	supply := p.lp.TotalSupply()
	valid := eng.And(
		verifyBurnAmount(eng, claimed0, liquidity, p.reserve0, supply),
		verifyBurnAmount(eng, claimed1, liquidity, p.reserve1, supply),
	)
	// The owner must hold the liquidity being burned. The LP token clamps an
	// over-balance burn to zero burned, which must zero the payout too or the
	// reserves would be paid out against nothing.
	valid = eng.And(valid, eng.Le(liquidity, p.lp.BalanceOf(op.Owner)))

	zero := eng.Encrypt(0, fhe.TypeEuint64)
	burned := eng.Select(valid, liquidity, zero)
	out0 := eng.Select(valid, claimed0, zero)
	out1 := eng.Select(valid, claimed1, zero)

	p.lp.Burn(op.Owner, burned)
	p.token0.Transfer(p.addr, op.Recipient, out0)
	p.token1.Transfer(p.addr, op.Recipient, out1)
	p.reserve0 = eng.Sub(p.reserve0, out0)
	p.reserve1 = eng.Sub(p.reserve1, out1)

	p.record(BurnProcessed{OpID: op.ID, Recipient: op.Recipient})
	return nil
}

func (p *Pool) processSwap(op *Operation, payload SwapPayload) error {
	eng := p.eng

	amountIn := p.zeroIfRevoked(op, payload.AmountIn)
	claimedOut := p.zeroIfRevoked(op, payload.ClaimedOut)
	dir := payload.Direction

	reserveIn := eng.Select(dir, p.reserve0, p.reserve1)
	reserveOut := eng.Select(dir, p.reserve1, p.reserve0)

	valid := verifySwap(eng, amountIn, claimedOut, reserveIn, reserveOut)

	// The input must be funded in the token actually being sold, resolved by
	// the same selector so the check stays constant-shape.
	balanceIn := eng.Select(dir, p.token0.BalanceOf(op.Owner), p.token1.BalanceOf(op.Owner))
	valid = eng.And(valid, eng.Le(amountIn, balanceIn))

	zero := eng.Encrypt(0, fhe.TypeEuint64)
	in := eng.Select(valid, amountIn, zero)
	out := eng.Select(valid, claimedOut, zero)

	// All four transfer legs always execute; the direction selector forces
	// exactly two of them to zero, so the transfer pattern never reveals
	// which token was traded.
	in0 := eng.Select(dir, in, zero)
	in1 := eng.Select(dir, zero, in)
	out0 := eng.Select(dir, zero, out)
	out1 := eng.Select(dir, out, zero)

	if err := p.token0.TransferFrom(p.addr, op.Owner, p.addr, in0); err != nil {
		return err
	}
	if err := p.token1.TransferFrom(p.addr, op.Owner, p.addr, in1); err != nil {
		return err
	}
	p.token0.Transfer(p.addr, op.Recipient, out0)
	p.token1.Transfer(p.addr, op.Recipient, out1)

	p.reserve0 = eng.Sub(eng.Add(p.reserve0, in0), out0)
	p.reserve1 = eng.Sub(eng.Add(p.reserve1, in1), out1)

	p.record(SwapProcessed{OpID: op.ID, Recipient: op.Recipient})
	return nil
}
