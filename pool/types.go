// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pool implements a privacy-preserving batched constant-product AMM.
// User operations (mint, burn, swap) are queued into batches, processed one
// at a time against encrypted reserves, and every user-supplied result claim
// is verified by cross-multiplication only: the engine never divides an
// encrypted value. Invalid or revoked operations complete with a zero effect
// that is indistinguishable, to an outside observer, from a successful
// operation of amount zero.
package pool

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/cpmm/fhe"
)

const (
	// DefaultMinBatchSize is the processing threshold when Config leaves it
	// unset.
	DefaultMinBatchSize = 2

	// MinimumLiquidity is permanently locked at lockAddress on
	// initialization so the pool can never be fully drained.
	MinimumLiquidity = 1000
)

// lockAddress receives the permanently locked minimum liquidity.
var lockAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

var (
	ErrNotInitialized         = errors.New("pool not initialized")
	ErrAlreadyInitialized     = errors.New("pool already initialized")
	ErrBatchNotFull           = errors.New("batch below minimum size")
	ErrBatchClosed            = errors.New("batch no longer accepts operations")
	ErrAwaitingDecryption     = errors.New("batch awaiting decryption")
	ErrNotAwaitingDecryption  = errors.New("batch not awaiting decryption")
	ErrInvalidDecryptionProof = errors.New("invalid decryption proof")
	ErrInvalidRecipient       = errors.New("invalid recipient address")
)

// OpKind identifies the operation family.
type OpKind uint8

const (
	KindMint OpKind = iota
	KindBurn
	KindSwap
)

func (k OpKind) String() string {
	switch k {
	case KindMint:
		return "mint"
	case KindBurn:
		return "burn"
	case KindSwap:
		return "swap"
	default:
		return fmt.Sprintf("opkind(%d)", uint8(k))
	}
}

// Payload is the kind-specific encrypted field set of an operation.
type Payload interface {
	isPayload()
}

// MintPayload carries both deposit amounts and the liquidity the depositor
// claims those amounts are worth.
type MintPayload struct {
	Amount0          fhe.Value
	Amount1          fhe.Value
	ClaimedLiquidity fhe.Value
}

// BurnPayload carries the liquidity to redeem and the claimed token amounts.
type BurnPayload struct {
	LiquidityToBurn fhe.Value
	ClaimedAmount0  fhe.Value
	ClaimedAmount1  fhe.Value
}

// SwapPayload carries the input amount, the claimed output, and an encrypted
// direction selector. Direction is an encrypted bool: true means token0 in,
// token1 out.
type SwapPayload struct {
	AmountIn   fhe.Value
	ClaimedOut fhe.Value
	Direction  fhe.Value
}

func (MintPayload) isPayload() {}
func (BurnPayload) isPayload() {}
func (SwapPayload) isPayload() {}

// Operation is one queued user request. Operations are retained forever for
// auditability; Processed flips exactly once and Revoked flips one way only.
type Operation struct {
	ID        uint64
	Owner     common.Address
	Recipient common.Address
	Kind      OpKind
	BatchID   uint64

	Processed bool

	// Revoked is an encrypted bool. It may flip false to true while the
	// operation's batch is open or processing, never back.
	Revoked fhe.Value

	// RevocationKey is a random encrypted 16-bit token generated at enqueue
	// time and granted to the owner. Presenting a fresh encryption of the
	// same key authorizes one revocation attempt.
	RevocationKey fhe.Value

	Payload Payload
}

// BatchMeta tracks a batch through its lifecycle. Exactly one of open
// (no flag set), Processing, AwaitingDecryption, or Executed holds at a time.
// Batches are created lazily on first enqueue and never deleted.
type BatchMeta struct {
	Processing         bool
	AwaitingDecryption bool
	Executed           bool

	// NextProcessIndex is the cursor into ops; everything before it has
	// been processed.
	NextProcessIndex int

	ops []*Operation
}

// Size returns the number of operations enqueued into the batch.
func (b *BatchMeta) Size() int { return len(b.ops) }

// Config configures a pool.
type Config struct {
	// MinBatchSize is the minimum number of queued operations before
	// processing may start. Zero means DefaultMinBatchSize.
	MinBatchSize int `json:"minBatchSize"`
}

// Verify checks config sanity.
func (c *Config) Verify() error {
	if c.MinBatchSize < 0 {
		return fmt.Errorf("invalid minBatchSize %d: must be non-negative", c.MinBatchSize)
	}
	return nil
}

func (c *Config) minBatchSize() int {
	if c.MinBatchSize == 0 {
		return DefaultMinBatchSize
	}
	return c.MinBatchSize
}
