// Copyright 2025 Certen Protocol
//
// Package engine is the Ledger Engine service facade (spec.md §4.6): the
// single point of truth for live chain state and the synchronization
// boundary for appends. It holds the in-memory map of chain heads, the
// Repository never does.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/certenio/ledgerd/pkg/block"
	"github.com/certenio/ledgerd/pkg/chain"
	"github.com/certenio/ledgerd/pkg/ledger"
	"github.com/certenio/ledgerd/pkg/ledgererr"
	"github.com/certenio/ledgerd/pkg/mining"
)

// Config bounds engine behavior per spec.md §6.
type Config struct {
	DefaultDifficulty int
	MaxPayloadBytes   int
	MaxRangeBlocks    uint64
	MiningDeadline    time.Duration
}

// chainEntry is one live chain's cached metadata and head. appendMu
// serializes the entire append sequence (propose, mine, validate, persist,
// head update) for this chain only, so appends to other chains are
// unaffected. headMu guards concurrent reads of head/meta against the
// single writer appendMu admits.
type chainEntry struct {
	appendMu sync.Mutex
	headMu   sync.RWMutex
	meta     *chain.Chain
	head     *block.Block
}

// Engine is the service facade described above.
type Engine struct {
	mu     sync.RWMutex
	chains map[string]*chainEntry

	repo   *ledger.Repository
	pool   *mining.Pool
	cfg    Config
	logger *log.Logger
}

// New constructs an Engine. Call Initialize before accepting traffic.
func New(repo *ledger.Repository, pool *mining.Pool, cfg Config) *Engine {
	return &Engine{
		chains: make(map[string]*chainEntry),
		repo:   repo,
		pool:   pool,
		cfg:    cfg,
		logger: log.New(log.Writer(), "[Engine] ", log.LstdFlags),
	}
}

// Initialize hydrates chains from the Repository: for each chain in
// chain_list, load its metadata and its head block. Block sequences are
// never loaded. Must complete before RPC traffic is accepted; a deserialize
// failure here is fatal (spec.md §4.6 Failure semantics).
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	metas, err := e.repo.ListChains()
	if err != nil {
		return fmt.Errorf("engine: initialize: list chains: %w", err)
	}
	for _, m := range metas {
		head, err := e.repo.GetHead(m.ChainID)
		if err != nil {
			return fmt.Errorf("engine: initialize: load head for %s: %w", m.ChainID, err)
		}
		m.HeadFingerprint = head.FingerprintHex
		m.HeadHeight = head.Height
		e.chains[m.ChainID] = &chainEntry{meta: m, head: head}
	}
	e.logger.Printf("initialized with %d chain(s)", len(e.chains))
	return nil
}

// CreateChain constructs chain metadata and its origin block, persists them,
// and registers the chain in memory. The existence check and the insertion
// happen under the same write-held critical section to avoid a double-create
// race between two concurrent CreateChain calls for the same id.
//
// difficulty is a caller override; pass nil to use e.cfg.DefaultDifficulty,
// matching spec.md §6 ("difficulty used when a chain is created without an
// explicit value"). The RPC surface's difficulty field is optional, so a
// request that omits it takes the nil path.
func (e *Engine) CreateChain(chainID string, kind chain.Kind, description string, difficulty *int) (*chain.Chain, error) {
	if chainID == "" {
		return nil, fmt.Errorf("engine: create chain: empty chain id: %w", ledgererr.ErrInvalidArgument)
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("engine: create chain: invalid kind %q: %w", kind, ledgererr.ErrInvalidArgument)
	}
	d := e.cfg.DefaultDifficulty
	if difficulty != nil {
		d = *difficulty
	}
	if d < 0 {
		return nil, fmt.Errorf("engine: create chain: negative difficulty: %w", ledgererr.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.chains[chainID]; ok {
		return nil, fmt.Errorf("engine: chain %s already registered: %w", chainID, ledgererr.ErrAlreadyExists)
	}
	exists, err := e.repo.ChainExists(chainID)
	if err != nil {
		return nil, fmt.Errorf("engine: create chain: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("engine: chain %s already persisted: %w", chainID, ledgererr.ErrAlreadyExists)
	}

	c, origin := chain.New(chainID, kind, description, d, time.Now())
	if err := e.repo.SaveChain(c, origin); err != nil {
		return nil, fmt.Errorf("engine: create chain: %w", err)
	}
	e.chains[chainID] = &chainEntry{meta: c, head: origin}
	e.logger.Printf("created chain %s (kind=%s difficulty=%d)", chainID, kind, d)
	return c, nil
}

// lookup returns the chainEntry for chainID under the map's read lock.
func (e *Engine) lookup(chainID string) (*chainEntry, error) {
	e.mu.RLock()
	entry, ok := e.chains[chainID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: %s: %w", chainID, ledgererr.ErrUnknownChain)
	}
	return entry, nil
}

// Append mines and persists a new block on chainID carrying payload and
// crossRefs, per the seven-step contract in spec.md §4.6. appendMu on the
// chain's entry makes the whole sequence linearizable per chain: no other
// append on this chain can interleave between proposing and committing, so
// the "head moved under us" race the spec allows an implementation to
// either serialize or detect cannot happen here.
func (e *Engine) Append(ctx context.Context, chainID string, payload []byte, crossRefs []string) (*block.Block, error) {
	if len(payload) > e.cfg.MaxPayloadBytes {
		return nil, fmt.Errorf("engine: payload %d bytes exceeds max %d: %w", len(payload), e.cfg.MaxPayloadBytes, ledgererr.ErrPayloadTooLarge)
	}
	for _, ref := range crossRefs {
		if ref == "" {
			return nil, fmt.Errorf("engine: empty cross-ref: %w", ledgererr.ErrInvalidArgument)
		}
	}

	entry, err := e.lookup(chainID)
	if err != nil {
		return nil, err
	}

	entry.appendMu.Lock()
	defer entry.appendMu.Unlock()

	entry.headMu.RLock()
	parent := entry.head
	meta := entry.meta
	entry.headMu.RUnlock()

	candidate := meta.Propose(parent, payload, crossRefs)

	var deadline time.Time
	if e.cfg.MiningDeadline > 0 {
		deadline = time.Now().Add(e.cfg.MiningDeadline)
	}
	if err := e.pool.Mine(ctx, candidate, meta.Difficulty, deadline); err != nil {
		if errors.Is(err, block.ErrMiningExhausted) {
			return nil, fmt.Errorf("engine: append to %s: %w", chainID, ledgererr.ErrMiningExhausted)
		}
		return nil, fmt.Errorf("engine: append to %s: %w", chainID, err)
	}

	if err := meta.ValidateAppend(candidate, parent); err != nil {
		return nil, fmt.Errorf("engine: append to %s: %w", chainID, err)
	}

	if err := e.repo.SaveBlock(candidate); err != nil {
		e.logger.Printf("append to %s: persisted write failed after mining: %v", chainID, err)
		return nil, fmt.Errorf("engine: append to %s: %w", chainID, err)
	}

	entry.headMu.Lock()
	entry.head = candidate
	entry.meta.HeadFingerprint = candidate.FingerprintHex
	entry.meta.HeadHeight = candidate.Height
	entry.headMu.Unlock()

	return candidate, nil
}

// GetBlock resolves fingerprint on chainID via the Repository's fingerprint
// index.
func (e *Engine) GetBlock(chainID, fingerprint string) (*block.Block, error) {
	if _, err := e.lookup(chainID); err != nil {
		return nil, err
	}
	return e.repo.GetBlockByFingerprint(chainID, fingerprint)
}

// GetHead returns the in-memory head of chainID; it never touches storage.
func (e *Engine) GetHead(chainID string) (*block.Block, error) {
	entry, err := e.lookup(chainID)
	if err != nil {
		return nil, err
	}
	entry.headMu.RLock()
	defer entry.headMu.RUnlock()
	return entry.head.Clone(), nil
}

// GetChainInfo returns chain metadata, head height, and a cheap validity
// flag (well-formedness of the cached head only — a full scan is
// VerifyChain's job, not this one).
func (e *Engine) GetChainInfo(chainID string) (*chain.Chain, bool, error) {
	entry, err := e.lookup(chainID)
	if err != nil {
		return nil, false, err
	}
	entry.headMu.RLock()
	defer entry.headMu.RUnlock()
	metaCopy := *entry.meta
	return &metaCopy, entry.head.IsWellFormed(entry.meta.Difficulty), nil
}

// GetBlockRange returns blocks on chainID in [from, to], capped at
// MaxRangeBlocks. from > to yields an empty, non-error result.
func (e *Engine) GetBlockRange(chainID string, from, to uint64) ([]*block.Block, error) {
	if _, err := e.lookup(chainID); err != nil {
		return nil, err
	}
	if from > to {
		return nil, nil
	}
	if to-from >= e.cfg.MaxRangeBlocks {
		return nil, fmt.Errorf("engine: range [%d,%d] exceeds max %d blocks: %w", from, to, e.cfg.MaxRangeBlocks, ledgererr.ErrRangeTooLarge)
	}

	it, err := e.repo.IterBlocks(chainID, from, to)
	if err != nil {
		return nil, fmt.Errorf("engine: get block range: %w", err)
	}
	defer it.Close()

	var blocks []*block.Block
	for {
		b, ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("engine: get block range: %w", err)
		}
		if !ok {
			break
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// VerifyChain streams chainID's blocks from the Repository in height order
// and runs chain.ValidateFull.
func (e *Engine) VerifyChain(chainID string) ([]chain.Violation, error) {
	entry, err := e.lookup(chainID)
	if err != nil {
		return nil, err
	}
	it, err := e.repo.IterBlocks(chainID, 0, ^uint64(0))
	if err != nil {
		return nil, fmt.Errorf("engine: verify chain: %w", err)
	}
	defer it.Close()
	return entry.meta.ValidateFull(it)
}

// ChainStatus is CrossValidate's per-chain report.
type ChainStatus struct {
	Violations     []chain.Violation
	CrossRefErrors []error
}

// Valid reports whether chainID has no local or cross-reference violations.
func (s ChainStatus) Valid() bool {
	return len(s.Violations) == 0 && len(s.CrossRefErrors) == 0
}

// CrossValidate runs VerifyChain for every chain, then resolves every
// block's every cross-ref against any *other* chain via GetBlockByFingerprint.
// A cross-ref pointing at the referrer's own chain is always a violation.
// Chain processing order does not affect the result (spec.md §4.6).
func (e *Engine) CrossValidate() (map[string]ChainStatus, error) {
	e.mu.RLock()
	ids := make([]string, 0, len(e.chains))
	for id := range e.chains {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	result := make(map[string]ChainStatus, len(ids))
	for _, id := range ids {
		violations, err := e.VerifyChain(id)
		if err != nil {
			return nil, fmt.Errorf("engine: cross validate: verify %s: %w", id, err)
		}

		it, err := e.repo.IterBlocks(id, 0, ^uint64(0))
		if err != nil {
			return nil, fmt.Errorf("engine: cross validate: iter %s: %w", id, err)
		}
		var crossErrs []error
		for {
			b, ok, iterErr := it.Next()
			if iterErr != nil {
				it.Close()
				return nil, fmt.Errorf("engine: cross validate: iter %s: %w", id, iterErr)
			}
			if !ok {
				break
			}
			for _, ref := range b.CrossRefs {
				if err := e.resolveCrossRef(id, ref); err != nil {
					crossErrs = append(crossErrs, fmt.Errorf("block %s cross-ref %s: %w", b.FingerprintHex, ref, err))
				}
			}
		}
		it.Close()

		result[id] = ChainStatus{Violations: violations, CrossRefErrors: crossErrs}
	}
	return result, nil
}

// resolveCrossRef looks up ref on every chain other than referrerChainID.
func (e *Engine) resolveCrossRef(referrerChainID, ref string) error {
	e.mu.RLock()
	ids := make([]string, 0, len(e.chains))
	for id := range e.chains {
		if id != referrerChainID {
			ids = append(ids, id)
		}
	}
	e.mu.RUnlock()

	for _, id := range ids {
		if _, err := e.repo.GetBlockByFingerprint(id, ref); err == nil {
			return nil
		}
	}
	return ledgererr.ErrInvalidCrossRef
}

// ListChains returns an in-memory snapshot of every chain's metadata.
func (e *Engine) ListChains() []*chain.Chain {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*chain.Chain, 0, len(e.chains))
	for _, entry := range e.chains {
		entry.headMu.RLock()
		metaCopy := *entry.meta
		entry.headMu.RUnlock()
		out = append(out, &metaCopy)
	}
	return out
}
