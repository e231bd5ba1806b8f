// Copyright 2025 Certen Protocol
//
// Package chain implements chain metadata and the append/validation
// semantics of spec.md §4.3. A Chain value holds only metadata and the
// current head pointer — never the full block sequence, which would be
// unbounded in memory for a chain with millions of blocks (spec.md §9).
package chain

import (
	"fmt"
	"time"

	"github.com/certenio/ledgerd/pkg/block"
	"github.com/certenio/ledgerd/pkg/ledgererr"
)

// Kind tags a chain's purpose. It is carried as metadata only and never
// alters engine behavior.
type Kind string

const (
	KindTransaction Kind = "Transaction"
	KindIdentity    Kind = "Identity"
	KindAsset       Kind = "Asset"
	KindAudit       Kind = "Audit"
	KindCustom      Kind = "Custom"
)

// IsValid reports whether k is one of the closed enumeration's members.
func (k Kind) IsValid() bool {
	switch k {
	case KindTransaction, KindIdentity, KindAsset, KindAudit, KindCustom:
		return true
	default:
		return false
	}
}

// Chain holds the metadata and head pointer for one hash-linked sequence.
type Chain struct {
	ChainID        string    `json:"chain_id"`
	Kind           Kind      `json:"kind"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
	Difficulty     int       `json:"difficulty"`
	HeadFingerprint string   `json:"head_fingerprint"`
	HeadHeight     uint64    `json:"head_height"`
}

// New constructs chain metadata and its origin block. The origin's
// fingerprint becomes the chain's initial head.
func New(chainID string, kind Kind, description string, difficulty int, createdAt time.Time) (*Chain, *block.Block) {
	origin := block.Origin(chainID, createdAt)
	c := &Chain{
		ChainID:         chainID,
		Kind:            kind,
		Description:     description,
		CreatedAt:       createdAt,
		Difficulty:      difficulty,
		HeadFingerprint: origin.FingerprintHex,
		HeadHeight:      0,
	}
	return c, origin
}

// Propose constructs a candidate block extending parent with payload and
// crossRefs. It is a pure function: it does not mine or mutate the chain.
func (c *Chain) Propose(parent *block.Block, payload []byte, crossRefs []string) *block.Block {
	return block.Build(parent.FingerprintHex, payload, c.ChainID, parent.Height+1, crossRefs)
}

// ValidateAppend checks, in order, linkage, height, well-formedness, and
// difficulty of candidate against parent. The first failing check
// determines the returned error kind.
func (c *Chain) ValidateAppend(candidate, parent *block.Block) error {
	if candidate.ParentFingerprint != parent.FingerprintHex {
		return fmt.Errorf("candidate parent %s != head %s: %w", candidate.ParentFingerprint, parent.FingerprintHex, ledgererr.ErrInvalidLinkage)
	}
	if candidate.Height != parent.Height+1 {
		return fmt.Errorf("candidate height %d != parent height %d + 1: %w", candidate.Height, parent.Height, ledgererr.ErrInvalidHeight)
	}
	expected := block.Fingerprint(candidate.ParentFingerprint, candidate.Timestamp, candidate.Payload, candidate.Nonce, candidate.Height, candidate.ChainID, candidate.CrossRefs)
	if candidate.FingerprintHex != expected {
		return fmt.Errorf("candidate fingerprint does not match canonical encoding: %w", ledgererr.ErrInvalidFingerprint)
	}
	if !block.HasDifficultyPrefix(candidate.FingerprintHex, c.Difficulty) {
		return fmt.Errorf("candidate fingerprint %s lacks %d leading zeros: %w", candidate.FingerprintHex, c.Difficulty, ledgererr.ErrInsufficientDifficulty)
	}
	return nil
}

// Violation describes one failure found by ValidateFull, tagged with the
// height it occurred at so operators can locate it in the stored sequence.
type Violation struct {
	Height uint64
	Err    error
}

// BlockIterator yields blocks in ascending height order; it is the shape
// the Repository's lazy prefix scan returns (spec.md §4.5 iter_blocks).
type BlockIterator interface {
	// Next returns the next block, or (nil, false, nil) when exhausted, or
	// (nil, false, err) on a read/deserialization failure.
	Next() (*block.Block, bool, error)
}

// ValidateFull consumes blocks in height order and checks every pairwise
// linkage, well-formedness, difficulty, and strictly increasing height. It
// returns every violation found, not just the first, so an operator can
// diagnose corruption in one pass (spec.md §4.3).
func (c *Chain) ValidateFull(it BlockIterator) ([]Violation, error) {
	var violations []Violation
	var prev *block.Block
	// prevTrueFingerprint is the recomputed (authoritative) hash of prev's
	// current on-disk bytes. A block's identity for linkage purposes is
	// what it hashes to *now*, not whatever its own (possibly tampered)
	// fingerprint field still claims — otherwise corrupting a block's
	// payload alone would not break the chain it anchors.
	var prevTrueFingerprint string

	for {
		b, ok, err := it.Next()
		if err != nil {
			return violations, fmt.Errorf("iterate blocks: %w", err)
		}
		if !ok {
			break
		}

		trueFingerprint := block.Fingerprint(b.ParentFingerprint, b.Timestamp, b.Payload, b.Nonce, b.Height, b.ChainID, b.CrossRefs)

		if prev == nil {
			if !b.IsOrigin() {
				violations = append(violations, Violation{Height: b.Height, Err: fmt.Errorf("first block is not origin: %w", ledgererr.ErrInvalidLinkage)})
			}
			if b.FingerprintHex != trueFingerprint {
				violations = append(violations, Violation{Height: b.Height, Err: fmt.Errorf("stored fingerprint does not match recomputed hash: %w", ledgererr.ErrInvalidFingerprint)})
			}
			prev = b
			prevTrueFingerprint = trueFingerprint
			continue
		}

		if b.Height != prev.Height+1 {
			violations = append(violations, Violation{Height: b.Height, Err: fmt.Errorf("height %d is not strictly prev+1 (%d): %w", b.Height, prev.Height, ledgererr.ErrInvalidHeight)})
		}
		if b.ParentFingerprint != prevTrueFingerprint {
			violations = append(violations, Violation{Height: b.Height, Err: fmt.Errorf("parent_fingerprint %s != previous block's true fingerprint %s: %w", b.ParentFingerprint, prevTrueFingerprint, ledgererr.ErrInvalidLinkage)})
		}
		if b.FingerprintHex != trueFingerprint {
			violations = append(violations, Violation{Height: b.Height, Err: fmt.Errorf("stored fingerprint does not match recomputed hash: %w", ledgererr.ErrInvalidFingerprint)})
		} else if !block.HasDifficultyPrefix(b.FingerprintHex, c.Difficulty) {
			violations = append(violations, Violation{Height: b.Height, Err: fmt.Errorf("fingerprint %s lacks %d leading zeros: %w", b.FingerprintHex, c.Difficulty, ledgererr.ErrInsufficientDifficulty)})
		}

		prev = b
		prevTrueFingerprint = trueFingerprint
	}

	return violations, nil
}
