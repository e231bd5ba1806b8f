// Copyright 2025 Certen Protocol
//
package block

import (
	"errors"
	"time"
)

// ErrMiningExhausted is returned when mine walks the entire 64-bit nonce
// space (or hits its deadline) without satisfying the configured difficulty.
var ErrMiningExhausted = errors.New("block: mining exhausted nonce space before meeting difficulty")

// Block is the atomic, immutable ledger record described in spec.md §3.
// Once Fingerprint is set (at construction, and fixed by Mine for non-origin
// blocks) none of its fields are mutated again.
type Block struct {
	FingerprintHex    string   `json:"fingerprint"`
	ParentFingerprint string   `json:"parent_fingerprint"`
	Timestamp         int64    `json:"timestamp"`
	Payload           []byte   `json:"payload"`
	Nonce             uint64   `json:"nonce"`
	Height            uint64   `json:"height"`
	ChainID           string   `json:"chain_id"`
	CrossRefs         []string `json:"cross_refs"`
}

// Build constructs a candidate Block with nonce=0, timestamp=now, and a
// fingerprint recomputed over those fields. The caller never sets
// Fingerprint directly. crossRefs is copied defensively; a nil slice is
// stored as an empty slice so JSON round-trips produce "[]" rather than
// "null".
func Build(parentFingerprint string, payload []byte, chainID string, height uint64, crossRefs []string) *Block {
	refs := make([]string, len(crossRefs))
	copy(refs, crossRefs)

	b := &Block{
		ParentFingerprint: parentFingerprint,
		Timestamp:         time.Now().Unix(),
		Payload:           append([]byte(nil), payload...),
		Nonce:             0,
		Height:            height,
		ChainID:           chainID,
		CrossRefs:         refs,
	}
	b.recompute()
	return b
}

// Origin produces the deterministic, unmined height-0 block for chainID.
// Its payload and cross-refs are fixed (empty), per the canonical origin
// encoding spec.md §9 leaves to implementers.
func Origin(chainID string, createdAt time.Time) *Block {
	b := &Block{
		ParentFingerprint: OriginParentFingerprint,
		Timestamp:         createdAt.Unix(),
		Payload:           []byte{},
		Nonce:             0,
		Height:            0,
		ChainID:           chainID,
		CrossRefs:         []string{},
	}
	b.recompute()
	return b
}

func (b *Block) recompute() {
	b.FingerprintHex = Fingerprint(b.ParentFingerprint, b.Timestamp, b.Payload, b.Nonce, b.Height, b.ChainID, b.CrossRefs)
}

// IsOrigin reports whether b is a height-0 origin block.
func (b *Block) IsOrigin() bool {
	return b.Height == 0 && b.ParentFingerprint == OriginParentFingerprint
}

// Mine repeatedly increments Nonce and recomputes Fingerprint until it
// begins with difficulty leading hex '0' characters, or until deadline
// elapses (zero deadline means no time limit — bounded only by the 64-bit
// nonce space). The origin block must never be passed here; origin blocks
// carry their canonical fingerprint unmined.
//
// Cancellation points are checked only every miningCheckInterval
// iterations, bounding responsiveness without paying a syscall/clock-read
// cost on every nonce attempt.
const miningCheckInterval = 4096

func (b *Block) Mine(difficulty int, deadline time.Time) error {
	if HasDifficultyPrefix(b.FingerprintHex, difficulty) {
		return nil
	}

	hasDeadline := !deadline.IsZero()
	for {
		for i := 0; i < miningCheckInterval; i++ {
			b.Nonce++
			b.recompute()
			if HasDifficultyPrefix(b.FingerprintHex, difficulty) {
				return nil
			}
			if b.Nonce == 0 {
				// wrapped the full 64-bit nonce space without success
				return ErrMiningExhausted
			}
		}
		if hasDeadline && time.Now().After(deadline) {
			return ErrMiningExhausted
		}
	}
}

// IsWellFormed reports whether Fingerprint matches the recomputed canonical
// hash and, for non-origin blocks, whether the difficulty prefix holds.
func (b *Block) IsWellFormed(difficulty int) bool {
	expected := Fingerprint(b.ParentFingerprint, b.Timestamp, b.Payload, b.Nonce, b.Height, b.ChainID, b.CrossRefs)
	if b.FingerprintHex != expected {
		return false
	}
	if b.IsOrigin() {
		return true
	}
	return HasDifficultyPrefix(b.FingerprintHex, difficulty)
}

// Clone returns a deep copy of b.
func (b *Block) Clone() *Block {
	cp := *b
	cp.Payload = append([]byte(nil), b.Payload...)
	cp.CrossRefs = append([]string(nil), b.CrossRefs...)
	return &cp
}
