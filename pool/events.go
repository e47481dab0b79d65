// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import "github.com/luxfi/geth/common"

// Event is a boundary observation recorded in the pool's append-only journal.
// Each event carries exactly the fields listed on its struct, nothing more:
// in particular the per-operation events never reveal amounts, validity, or
// revocation status.
type Event interface {
	isEvent()
}

// OperationQueued is emitted on every successful enqueue.
type OperationQueued struct {
	BatchID             uint64
	Owner               common.Address
	Kind                OpKind
	RevocationKeyHandle common.Hash
}

// RevocationAttempted is emitted on every revoke call. It deliberately
// carries no operation identifier.
type RevocationAttempted struct {
	BatchID uint64
}

// BatchProcessingStarted is emitted when a batch leaves the open state.
type BatchProcessingStarted struct {
	BatchID uint64
}

// MintProcessed is emitted after a mint operation runs, valid or not.
type MintProcessed struct {
	OpID      uint64
	Recipient common.Address
}

// BurnProcessed is emitted after a burn operation runs, valid or not.
type BurnProcessed struct {
	OpID      uint64
	Recipient common.Address
}

// SwapProcessed is emitted after a swap operation runs, valid or not.
type SwapProcessed struct {
	OpID      uint64
	Recipient common.Address
}

// BatchAwaitingDecryption is emitted when the last operation of a batch has
// been processed and the reserve commitments are published for off-chain
// decryption.
type BatchAwaitingDecryption struct {
	BatchID           uint64
	Reserve0Handle    common.Hash
	Reserve1Handle    common.Hash
	TotalSupplyHandle common.Hash
}

// BatchExecuted is emitted when a batch finalizes.
type BatchExecuted struct {
	BatchID uint64
}

// PublicReservesUpdated is emitted alongside BatchExecuted with the freshly
// revealed plaintext reserves and LP supply.
type PublicReservesUpdated struct {
	Reserve0    uint64
	Reserve1    uint64
	TotalSupply uint64
}

func (OperationQueued) isEvent()         {}
func (RevocationAttempted) isEvent()     {}
func (BatchProcessingStarted) isEvent()  {}
func (MintProcessed) isEvent()           {}
func (BurnProcessed) isEvent()           {}
func (SwapProcessed) isEvent()           {}
func (BatchAwaitingDecryption) isEvent() {}
func (BatchExecuted) isEvent()           {}
func (PublicReservesUpdated) isEvent()   {}
