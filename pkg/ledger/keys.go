// Copyright 2025 Certen Protocol
//
package ledger

import (
	"encoding/binary"
	"fmt"
)

// Key layout (spec.md §4.5). Literal and load-bearing for on-disk
// compatibility — never change the grammar below without a format
// migration.
//
//	block:{chain_id}:{height:020}   -> JSON block                (primary, ordered scan)
//	block_fp:{chain_id}:{fingerprint} -> 8-byte LE height          (fingerprint -> height index)
//	head:{chain_id}                  -> 8-byte LE height          (current head pointer)
//	chain:{chain_id}                 -> JSON chain metadata
//	chain_list                       -> JSON array of chain ids
//
// Block, chain and chain_list values are encoding/json documents (see
// types.go), not a compact binary encoding; only the two height values
// are fixed-width binary.

var keyChainList = []byte("chain_list")

func blockPrefix(chainID string) []byte {
	return []byte(fmt.Sprintf("block:%s:", chainID))
}

// blockKey produces the zero-padded height key that guarantees an ordered
// prefix scan over blockPrefix(chainID) returns blocks in height order.
func blockKey(chainID string, height uint64) []byte {
	return []byte(fmt.Sprintf("block:%s:%020d", chainID, height))
}

func blockFingerprintKey(chainID, fingerprint string) []byte {
	return []byte(fmt.Sprintf("block_fp:%s:%s", chainID, fingerprint))
}

func headKey(chainID string) []byte {
	return []byte(fmt.Sprintf("head:%s", chainID))
}

func chainKey(chainID string) []byte {
	return []byte(fmt.Sprintf("chain:%s", chainID))
}

func encodeHeight(height uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, height)
	return b
}

func decodeHeight(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("ledger: height index value has %d bytes, want 8", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}
