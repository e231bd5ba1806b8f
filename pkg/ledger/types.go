// Copyright 2025 Certen Protocol
//
// Package ledger is the Repository (spec.md §4.5): the only component
// that serializes data, chooses keys, and maintains indices on top of the
// KV adapter. It exposes a typed interface to the Ledger Engine and never
// holds a cache of its own (that lives in the engine — see pkg/engine),
// so no lock is ever held across a call into the KV store.
package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/certenio/ledgerd/pkg/block"
	"github.com/certenio/ledgerd/pkg/chain"
	"github.com/certenio/ledgerd/pkg/kvdb"
	"github.com/certenio/ledgerd/pkg/ledgererr"
)

// Repository maps chain/block entities to the KV keyspace in keys.go.
type Repository struct {
	kv *kvdb.Store
}

// New constructs a Repository over the given KV store.
func New(kv *kvdb.Store) *Repository {
	return &Repository{kv: kv}
}

func encodeBlock(b *block.Block) ([]byte, error) {
	return json.Marshal(b)
}

func decodeBlock(raw []byte) (*block.Block, error) {
	var b block.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode block: %w: %v", ledgererr.ErrCorruption, err)
	}
	return &b, nil
}

func encodeChain(c *chain.Chain) ([]byte, error) {
	return json.Marshal(c)
}

func decodeChain(raw []byte) (*chain.Chain, error) {
	var c chain.Chain
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode chain: %w: %v", ledgererr.ErrCorruption, err)
	}
	return &c, nil
}

func encodeChainList(ids []string) ([]byte, error) {
	return json.Marshal(ids)
}

func decodeChainList(raw []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode chain_list: %w: %v", ledgererr.ErrCorruption, err)
	}
	return ids, nil
}
