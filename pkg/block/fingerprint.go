// Copyright 2025 Certen Protocol
//
// Package block implements the ledger's atomic record: the immutable,
// fingerprint-addressable Block, and the canonical hash primitive blocks
// are built on.
package block

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// OriginParentFingerprint is the literal parent fingerprint of a height-0
// block (no real parent exists).
const OriginParentFingerprint = "0"

// Fingerprint computes the SHA-256 hex digest of the canonical field
// concatenation described in spec.md §4.1:
//
//	parent_fingerprint || decimal(timestamp) || payload || decimal(nonce) ||
//	decimal(height) || chain_id || join(cross_refs, ",")
//
// This encoding is load-bearing: two implementations must agree bit-for-bit
// to interoperate with a persisted ledger, so the concatenation order and
// separator choice here must never change.
func Fingerprint(parentFingerprint string, timestamp int64, payload []byte, nonce uint64, height uint64, chainID string, crossRefs []string) string {
	var sb strings.Builder
	sb.WriteString(parentFingerprint)
	sb.WriteString(strconv.FormatInt(timestamp, 10))
	sb.Write(payload)
	sb.WriteString(strconv.FormatUint(nonce, 10))
	sb.WriteString(strconv.FormatUint(height, 10))
	sb.WriteString(chainID)
	sb.WriteString(strings.Join(crossRefs, ","))

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// HasDifficultyPrefix reports whether fingerprint begins with difficulty
// leading hex '0' characters.
func HasDifficultyPrefix(fingerprint string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(fingerprint) < difficulty {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if fingerprint[i] != '0' {
			return false
		}
	}
	return true
}
