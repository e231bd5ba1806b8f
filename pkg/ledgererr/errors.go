// Copyright 2025 Certen Protocol
//
// Package ledgererr collects the sentinel errors the engine surfaces to
// callers (spec.md §7). Every operation returns one of these wrapped with
// context via fmt.Errorf("...: %w", err); callers compare with errors.Is.
package ledgererr

import "errors"

var (
	// ErrAlreadyExists is returned when a chain id is already in use.
	ErrAlreadyExists = errors.New("ledgererr: chain already exists")

	// ErrUnknownChain is returned when no chain has the given id.
	ErrUnknownChain = errors.New("ledgererr: unknown chain")

	// ErrNotFound is returned when a block fingerprint or height is not present.
	ErrNotFound = errors.New("ledgererr: block not found")

	// ErrInvalidLinkage is returned when a candidate's parent fingerprint
	// does not match its stated parent.
	ErrInvalidLinkage = errors.New("ledgererr: invalid linkage")

	// ErrInvalidHeight is returned when a candidate's height is not exactly
	// parent.height + 1.
	ErrInvalidHeight = errors.New("ledgererr: invalid height")

	// ErrInvalidFingerprint is returned when a stored block's fingerprint
	// does not equal its recomputed canonical hash.
	ErrInvalidFingerprint = errors.New("ledgererr: invalid fingerprint")

	// ErrInsufficientDifficulty is returned when a fingerprint lacks the
	// required leading-zero prefix.
	ErrInsufficientDifficulty = errors.New("ledgererr: insufficient difficulty")

	// ErrInvalidCrossRef is returned when a cross-reference does not
	// resolve to a block on any other chain.
	ErrInvalidCrossRef = errors.New("ledgererr: invalid cross-reference")

	// ErrPayloadTooLarge is returned when a payload exceeds max_payload_bytes.
	ErrPayloadTooLarge = errors.New("ledgererr: payload too large")

	// ErrRangeTooLarge is returned when a requested block range exceeds
	// max_range_blocks.
	ErrRangeTooLarge = errors.New("ledgererr: range too large")

	// ErrMiningExhausted is returned when mining walked the nonce space (or
	// hit its deadline) without satisfying difficulty.
	ErrMiningExhausted = errors.New("ledgererr: mining exhausted")

	// ErrConcurrentAppend is returned when the chain head moved between
	// proposing and committing a candidate block.
	ErrConcurrentAppend = errors.New("ledgererr: concurrent append detected")

	// ErrStorage wraps underlying KV adapter errors.
	ErrStorage = errors.New("ledgererr: storage error")

	// ErrCorruption is returned when deserialization fails or a head
	// pointer references a missing block.
	ErrCorruption = errors.New("ledgererr: corruption detected")

	// ErrInvalidArgument is returned for malformed request arguments
	// (empty chain id, unknown kind, empty cross-ref, ...).
	ErrInvalidArgument = errors.New("ledgererr: invalid argument")

	// ErrEmpty is returned by GetHead when a chain has no blocks at all
	// (should not occur once origin blocks are always created, but is kept
	// as a defensive sentinel for corrupted stores).
	ErrEmpty = errors.New("ledgererr: chain is empty")
)
