// Copyright 2025 Certen Protocol
//
package ledger

import (
	"errors"
	"fmt"

	"github.com/certenio/ledgerd/pkg/block"
	"github.com/certenio/ledgerd/pkg/chain"
	"github.com/certenio/ledgerd/pkg/kvdb"
	"github.com/certenio/ledgerd/pkg/ledgererr"
)

// SaveBlock persists block atomically: the primary block record, the
// fingerprint index, and the head pointer update all land in one
// WriteBatch, or none do. Without this atomicity a crash between writes
// could leave a chain whose head points to a missing block, or a
// fingerprint index that resolves nowhere (spec.md §4.5).
func (r *Repository) SaveBlock(b *block.Block) error {
	raw, err := encodeBlock(b)
	if err != nil {
		return fmt.Errorf("ledger: encode block: %w", err)
	}

	entries := []kvdb.Entry{
		{Key: blockKey(b.ChainID, b.Height), Value: raw},
		{Key: blockFingerprintKey(b.ChainID, b.FingerprintHex), Value: encodeHeight(b.Height)},
		{Key: headKey(b.ChainID), Value: encodeHeight(b.Height)},
	}
	if err := r.kv.WriteBatch(entries); err != nil {
		return fmt.Errorf("ledger: save block: %w: %v", ledgererr.ErrStorage, err)
	}
	return nil
}

// SaveChain persists chain metadata and, if chainID is new, appends it to
// chain_list. This is also used to persist the origin block: callers pass
// the chain's origin block explicitly so it lands in the same call's
// logical unit of work as the chain metadata (the engine's create_chain
// batches both, see pkg/engine).
func (r *Repository) SaveChain(c *chain.Chain, origin *block.Block) error {
	chainRaw, err := encodeChain(c)
	if err != nil {
		return fmt.Errorf("ledger: encode chain: %w", err)
	}
	blockRaw, err := encodeBlock(origin)
	if err != nil {
		return fmt.Errorf("ledger: encode origin block: %w", err)
	}

	ids, err := r.listChainIDs()
	if err != nil {
		return err
	}
	isNew := true
	for _, id := range ids {
		if id == c.ChainID {
			isNew = false
			break
		}
	}

	entries := []kvdb.Entry{
		{Key: chainKey(c.ChainID), Value: chainRaw},
		{Key: blockKey(c.ChainID, origin.Height), Value: blockRaw},
		{Key: blockFingerprintKey(c.ChainID, origin.FingerprintHex), Value: encodeHeight(origin.Height)},
		{Key: headKey(c.ChainID), Value: encodeHeight(origin.Height)},
	}
	if isNew {
		ids = append(ids, c.ChainID)
		listRaw, err := encodeChainList(ids)
		if err != nil {
			return fmt.Errorf("ledger: encode chain_list: %w", err)
		}
		entries = append(entries, kvdb.Entry{Key: keyChainList, Value: listRaw})
	}

	if err := r.kv.WriteBatch(entries); err != nil {
		return fmt.Errorf("ledger: save chain: %w: %v", ledgererr.ErrStorage, err)
	}
	return nil
}

// SaveChainMetadata persists only chain metadata (no origin block, no
// chain_list mutation) — used when chain metadata changes without a new
// chain being created. Not currently exercised by the engine (chain
// metadata is immutable after creation per spec.md §3 lifecycles).
// SaveChain does not call it; it writes the same chain key inside its own
// batch.
func (r *Repository) SaveChainMetadata(c *chain.Chain) error {
	raw, err := encodeChain(c)
	if err != nil {
		return fmt.Errorf("ledger: encode chain: %w", err)
	}
	if err := r.kv.Put(chainKey(c.ChainID), raw); err != nil {
		return fmt.Errorf("ledger: save chain metadata: %w: %v", ledgererr.ErrStorage, err)
	}
	return nil
}

// GetBlockByHeight looks up the block at the given height on chainID.
func (r *Repository) GetBlockByHeight(chainID string, height uint64) (*block.Block, error) {
	raw, ok, err := r.kv.Get(blockKey(chainID, height))
	if err != nil {
		return nil, fmt.Errorf("ledger: get block by height: %w: %v", ledgererr.ErrStorage, err)
	}
	if !ok {
		return nil, fmt.Errorf("ledger: no block at height %d on chain %s: %w", height, chainID, ledgererr.ErrNotFound)
	}
	return decodeBlock(raw)
}

// GetBlockByFingerprint resolves fingerprint to a height via the
// fingerprint index, then loads the block.
func (r *Repository) GetBlockByFingerprint(chainID, fingerprint string) (*block.Block, error) {
	idxRaw, ok, err := r.kv.Get(blockFingerprintKey(chainID, fingerprint))
	if err != nil {
		return nil, fmt.Errorf("ledger: get fingerprint index: %w: %v", ledgererr.ErrStorage, err)
	}
	if !ok {
		return nil, fmt.Errorf("ledger: fingerprint %s not found on chain %s: %w", fingerprint, chainID, ledgererr.ErrNotFound)
	}
	height, err := decodeHeight(idxRaw)
	if err != nil {
		return nil, fmt.Errorf("ledger: decode fingerprint index: %w: %v", ledgererr.ErrCorruption, err)
	}
	b, err := r.GetBlockByHeight(chainID, height)
	if err != nil {
		if errors.Is(err, ledgererr.ErrNotFound) {
			// fingerprint index points at a height with no primary record:
			// the store is corrupt, not merely "not found".
			return nil, fmt.Errorf("ledger: fingerprint index for %s points at missing height %d: %w", fingerprint, height, ledgererr.ErrCorruption)
		}
		return nil, err
	}
	return b, nil
}

// GetHead returns the head block of chainID (the block at its head
// pointer's height).
func (r *Repository) GetHead(chainID string) (*block.Block, error) {
	raw, ok, err := r.kv.Get(headKey(chainID))
	if err != nil {
		return nil, fmt.Errorf("ledger: get head pointer: %w: %v", ledgererr.ErrStorage, err)
	}
	if !ok {
		return nil, fmt.Errorf("ledger: chain %s has no head pointer: %w", chainID, ledgererr.ErrEmpty)
	}
	height, err := decodeHeight(raw)
	if err != nil {
		return nil, fmt.Errorf("ledger: decode head pointer: %w: %v", ledgererr.ErrCorruption, err)
	}
	b, err := r.GetBlockByHeight(chainID, height)
	if err != nil {
		if errors.Is(err, ledgererr.ErrNotFound) {
			return nil, fmt.Errorf("ledger: head pointer for %s references missing height %d: %w", chainID, height, ledgererr.ErrCorruption)
		}
		return nil, err
	}
	return b, nil
}

// BlockIterator lazily scans a chain's primary block records in ascending
// height order, bounded inclusive by [fromHeight, toHeight]. It implements
// chain.BlockIterator so it can be handed directly to Chain.ValidateFull.
type BlockIterator struct {
	it        kvdb.Iterator
	toHeight  uint64
	chainID   string
	exhausted bool
	pushback  *block.Block
}

// Next returns the next block in range, or (nil, false, nil) once
// exhausted, or (nil, false, err) on a read/deserialization failure.
func (it *BlockIterator) Next() (*block.Block, bool, error) {
	if it.pushback != nil {
		b := it.pushback
		it.pushback = nil
		if b.Height > it.toHeight {
			it.exhausted = true
			return nil, false, nil
		}
		return b, true, nil
	}
	if it.exhausted {
		return nil, false, nil
	}
	for it.it.Next() {
		b, err := decodeBlock(it.it.Item().Value)
		if err != nil {
			return nil, false, err
		}
		if b.Height > it.toHeight {
			it.exhausted = true
			return nil, false, nil
		}
		return b, true, nil
	}
	it.exhausted = true
	return nil, false, it.it.Error()
}

// Close releases the underlying KV iterator. Safe to call more than once.
func (it *BlockIterator) Close() {
	it.it.Close()
}

// IterBlocks returns a lazy iterator over chainID's blocks in
// [fromHeight, toHeight], in height order. Callers must Close it.
func (r *Repository) IterBlocks(chainID string, fromHeight, toHeight uint64) (*BlockIterator, error) {
	it, err := r.kv.ScanPrefix(blockPrefix(chainID))
	if err != nil {
		return nil, fmt.Errorf("ledger: iter blocks: %w: %v", ledgererr.ErrStorage, err)
	}
	// fromHeight is enforced by reading past lower heights before the
	// iterator is returned; a prefix scan over blockPrefix starts at height 0
	// because of the zero-padded decimal encoding, so we skip forward here
	// rather than requiring a second, narrower KV primitive.
	bi := &BlockIterator{it: it, toHeight: toHeight, chainID: chainID}
	if fromHeight > 0 {
		if err := bi.skipBelow(fromHeight); err != nil {
			it.Close()
			return nil, err
		}
	}
	return bi, nil
}

func (it *BlockIterator) skipBelow(fromHeight uint64) error {
	for it.it.Next() {
		b, err := decodeBlock(it.it.Item().Value)
		if err != nil {
			return err
		}
		if b.Height >= fromHeight {
			it.pushback = b
			return nil
		}
	}
	it.exhausted = true
	return it.it.Error()
}

// ListChains returns chain metadata for every id in chain_list.
func (r *Repository) ListChains() ([]*chain.Chain, error) {
	ids, err := r.listChainIDs()
	if err != nil {
		return nil, err
	}
	chains := make([]*chain.Chain, 0, len(ids))
	for _, id := range ids {
		c, err := r.getChain(id)
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}
	return chains, nil
}

// ChainExists is a point existence check on chain:{chainID}.
func (r *Repository) ChainExists(chainID string) (bool, error) {
	_, ok, err := r.kv.Get(chainKey(chainID))
	if err != nil {
		return false, fmt.Errorf("ledger: chain exists: %w: %v", ledgererr.ErrStorage, err)
	}
	return ok, nil
}

func (r *Repository) getChain(chainID string) (*chain.Chain, error) {
	raw, ok, err := r.kv.Get(chainKey(chainID))
	if err != nil {
		return nil, fmt.Errorf("ledger: get chain: %w: %v", ledgererr.ErrStorage, err)
	}
	if !ok {
		return nil, fmt.Errorf("ledger: chain %s not found: %w", chainID, ledgererr.ErrUnknownChain)
	}
	return decodeChain(raw)
}

func (r *Repository) listChainIDs() ([]string, error) {
	raw, ok, err := r.kv.Get(keyChainList)
	if err != nil {
		return nil, fmt.Errorf("ledger: get chain_list: %w: %v", ledgererr.ErrStorage, err)
	}
	if !ok {
		return nil, nil
	}
	return decodeChainList(raw)
}
