// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Commit-reveal reconciliation. When a batch drains, the pool commits to the
// current encrypted reserves and LP supply by publishing public-decryption
// handles; an off-chain decryptor reveals the plaintexts with a proof, and
// FinalizeBatch verifies the proof against the stored commitments before
// publishing.

// markReservesForDecryption commits to the reserves and supply at the moment
// the batch's last operation was processed and flips the batch to awaiting.
// Caller must hold p.mu; the state machine guarantees one call per batch.
func (p *Pool) markReservesForDecryption(b *BatchMeta) {
	p.pendingReserve0 = p.eng.MakePubliclyDecryptable(p.reserve0)
	p.pendingReserve1 = p.eng.MakePubliclyDecryptable(p.reserve1)
	p.pendingSupply = p.eng.MakePubliclyDecryptable(p.lp.TotalSupply())

	b.Processing = false
	b.AwaitingDecryption = true

	p.record(BatchAwaitingDecryption{
		BatchID:           p.currentBatchID,
		Reserve0Handle:    p.pendingReserve0,
		Reserve1Handle:    p.pendingReserve1,
		TotalSupplyHandle: p.pendingSupply,
	})
	p.log.Info("batch awaiting decryption", "batch", p.currentBatchID)
}

// FinalizeBatch consumes the pending commitment triplet: it verifies the
// decryption proof over the stored handles and supplied cleartexts, publishes
// the plaintext reserves and supply, marks the batch executed, and opens the
// next batch. A second call for the same batch fails the awaiting guard.
func (p *Pool) FinalizeBatch(reserve0, reserve1, totalSupply uint64, proof []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return ErrNotInitialized
	}
	b := p.batch(p.currentBatchID)
	if !b.AwaitingDecryption {
		return ErrNotAwaitingDecryption
	}

	handles := []common.Hash{p.pendingReserve0, p.pendingReserve1, p.pendingSupply}
	cleartexts := []*uint256.Int{
		uint256.NewInt(reserve0),
		uint256.NewInt(reserve1),
		uint256.NewInt(totalSupply),
	}
	if !p.eng.VerifyDecryption(handles, cleartexts, proof) {
		return ErrInvalidDecryptionProof
	}

	p.publicReserve0 = reserve0
	p.publicReserve1 = reserve1
	p.publicTotalSupply = totalSupply

	b.AwaitingDecryption = false
	b.Executed = true

	p.record(BatchExecuted{BatchID: p.currentBatchID})
	p.record(PublicReservesUpdated{
		Reserve0:    reserve0,
		Reserve1:    reserve1,
		TotalSupply: totalSupply,
	})
	p.log.Info("batch executed", "batch", p.currentBatchID,
		"reserve0", reserve0, "reserve1", reserve1, "totalSupply", totalSupply)

	p.currentBatchID++
	p.pendingReserve0 = common.Hash{}
	p.pendingReserve1 = common.Hash{}
	p.pendingSupply = common.Hash{}
	return nil
}
