// Copyright 2025 Certen Protocol
//
package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/certenio/ledgerd/pkg/chain"
	"github.com/certenio/ledgerd/pkg/kvdb"
	"github.com/certenio/ledgerd/pkg/ledger"
	"github.com/certenio/ledgerd/pkg/ledgererr"
	"github.com/certenio/ledgerd/pkg/mining"
)

func difficultyPtr(v int) *int {
	return &v
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	store, err := kvdb.Open(kvdb.BackendMemDB, "test", "")
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	repo := ledger.New(store)
	if cfg.MaxPayloadBytes == 0 {
		cfg.MaxPayloadBytes = 1 << 20
	}
	if cfg.MaxRangeBlocks == 0 {
		cfg.MaxRangeBlocks = 1000
	}
	e := New(repo, mining.NewPool(4), cfg)
	if err := e.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return e
}

func TestCreateAndAppend(t *testing.T) {
	e := newTestEngine(t, Config{})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "transactions", difficultyPtr(2)); err != nil {
		t.Fatalf("create chain: %v", err)
	}

	b, err := e.Append(context.Background(), "tx", []byte("hello"), nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if b.Height != 1 {
		t.Fatalf("expected height 1, got %d", b.Height)
	}
	if b.FingerprintHex[:2] != "00" {
		t.Fatalf("expected difficulty-2 fingerprint, got %s", b.FingerprintHex)
	}
}

func TestCreateChainRejectsDuplicate(t *testing.T) {
	e := newTestEngine(t, Config{})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "", difficultyPtr(0)); err != nil {
		t.Fatalf("create chain: %v", err)
	}
	_, err := e.CreateChain("tx", chain.KindTransaction, "", difficultyPtr(0))
	if !errors.Is(err, ledgererr.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestAppendUnknownChain(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.Append(context.Background(), "nope", []byte("x"), nil)
	if !errors.Is(err, ledgererr.ErrUnknownChain) {
		t.Fatalf("expected ErrUnknownChain, got %v", err)
	}
}

func TestAppendRejectsOversizedPayload(t *testing.T) {
	e := newTestEngine(t, Config{MaxPayloadBytes: 4})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "", difficultyPtr(0)); err != nil {
		t.Fatalf("create chain: %v", err)
	}
	_, err := e.Append(context.Background(), "tx", []byte("toolong"), nil)
	if !errors.Is(err, ledgererr.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestLinkageAcrossThreeAppends(t *testing.T) {
	e := newTestEngine(t, Config{})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "", difficultyPtr(0)); err != nil {
		t.Fatalf("create chain: %v", err)
	}
	b1, err := e.Append(context.Background(), "tx", []byte("1"), nil)
	if err != nil {
		t.Fatalf("append b1: %v", err)
	}
	b2, err := e.Append(context.Background(), "tx", []byte("2"), nil)
	if err != nil {
		t.Fatalf("append b2: %v", err)
	}
	b3, err := e.Append(context.Background(), "tx", []byte("3"), nil)
	if err != nil {
		t.Fatalf("append b3: %v", err)
	}
	if b2.ParentFingerprint != b1.FingerprintHex {
		t.Fatalf("b2 parent mismatch")
	}
	if b3.ParentFingerprint != b2.FingerprintHex {
		t.Fatalf("b3 parent mismatch")
	}
	if b3.Height != 3 {
		t.Fatalf("expected height 3, got %d", b3.Height)
	}
}

func TestGetBlockRangeFromGreaterThanToIsEmpty(t *testing.T) {
	e := newTestEngine(t, Config{})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "", difficultyPtr(0)); err != nil {
		t.Fatalf("create chain: %v", err)
	}
	if _, err := e.Append(context.Background(), "tx", []byte("x"), nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	blocks, err := e.GetBlockRange("tx", 5, 1)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(blocks) != 0 {
		t.Fatalf("expected empty range, got %d blocks", len(blocks))
	}
}

func TestGetBlockRangeTooLarge(t *testing.T) {
	e := newTestEngine(t, Config{MaxRangeBlocks: 1})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "", difficultyPtr(0)); err != nil {
		t.Fatalf("create chain: %v", err)
	}
	_, err := e.GetBlockRange("tx", 0, 5)
	if !errors.Is(err, ledgererr.ErrRangeTooLarge) {
		t.Fatalf("expected ErrRangeTooLarge, got %v", err)
	}
}

func TestCrossValidateAcceptsResolvedRefAndRejectsUnresolved(t *testing.T) {
	e := newTestEngine(t, Config{})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "", difficultyPtr(0)); err != nil {
		t.Fatalf("create tx: %v", err)
	}
	if _, err := e.CreateChain("audit", chain.KindAudit, "", difficultyPtr(0)); err != nil {
		t.Fatalf("create audit: %v", err)
	}

	b, err := e.Append(context.Background(), "tx", []byte("payload"), nil)
	if err != nil {
		t.Fatalf("append tx: %v", err)
	}
	if _, err := e.Append(context.Background(), "audit", []byte("a"), []string{b.FingerprintHex}); err != nil {
		t.Fatalf("append audit: %v", err)
	}

	statuses, err := e.CrossValidate()
	if err != nil {
		t.Fatalf("cross validate: %v", err)
	}
	for id, s := range statuses {
		if !s.Valid() {
			t.Fatalf("chain %s expected valid, got %+v", id, s)
		}
	}

	if _, err := e.Append(context.Background(), "audit", []byte("bad"), []string{"deadbeefdeadbeef"}); err != nil {
		t.Fatalf("append audit bad ref: %v", err)
	}
	statuses, err = e.CrossValidate()
	if err != nil {
		t.Fatalf("cross validate: %v", err)
	}
	if statuses["audit"].Valid() {
		t.Fatalf("expected audit chain to report a cross-ref violation")
	}
}

func TestCrossRefToSameChainRejectedByResolve(t *testing.T) {
	e := newTestEngine(t, Config{})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "", difficultyPtr(0)); err != nil {
		t.Fatalf("create chain: %v", err)
	}
	b1, err := e.Append(context.Background(), "tx", []byte("1"), nil)
	if err != nil {
		t.Fatalf("append b1: %v", err)
	}
	if _, err := e.Append(context.Background(), "tx", []byte("2"), []string{b1.FingerprintHex}); err != nil {
		t.Fatalf("append b2: %v", err)
	}

	statuses, err := e.CrossValidate()
	if err != nil {
		t.Fatalf("cross validate: %v", err)
	}
	if statuses["tx"].Valid() {
		t.Fatalf("expected same-chain cross-ref to be rejected")
	}
}

func TestConcurrentAppendsSameChainSerializeWithNoGaps(t *testing.T) {
	e := newTestEngine(t, Config{})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "", difficultyPtr(0)); err != nil {
		t.Fatalf("create chain: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	heights := make([]uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			b, err := e.Append(context.Background(), "tx", []byte("x"), nil)
			errs[idx] = err
			if err == nil {
				heights[idx] = b.Height
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for i, err := range errs {
		if err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		if seen[heights[i]] {
			t.Fatalf("duplicate height %d observed", heights[i])
		}
		seen[heights[i]] = true
	}
	for h := uint64(1); h <= n; h++ {
		if !seen[h] {
			t.Fatalf("missing height %d", h)
		}
	}

	head, err := e.GetHead("tx")
	if err != nil {
		t.Fatalf("get head: %v", err)
	}
	if head.Height != n {
		t.Fatalf("expected head height %d, got %d", n, head.Height)
	}
}

func TestAppendZeroDifficultySucceedsImmediately(t *testing.T) {
	e := newTestEngine(t, Config{})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "", difficultyPtr(0)); err != nil {
		t.Fatalf("create chain: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_, _ = e.Append(context.Background(), "tx", []byte("x"), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("zero-difficulty append took too long")
	}
}

func TestCreateChainFallsBackToConfiguredDefaultDifficulty(t *testing.T) {
	e := newTestEngine(t, Config{DefaultDifficulty: 2})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "", nil); err != nil {
		t.Fatalf("create chain: %v", err)
	}
	b, err := e.Append(context.Background(), "tx", []byte("x"), nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if b.FingerprintHex[:2] != "00" {
		t.Fatalf("expected chain to inherit default difficulty 2, got fingerprint %s", b.FingerprintHex)
	}
}

func TestCreateChainExplicitDifficultyOverridesDefault(t *testing.T) {
	e := newTestEngine(t, Config{DefaultDifficulty: 2})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "", difficultyPtr(0)); err != nil {
		t.Fatalf("create chain: %v", err)
	}
	c, _, err := e.GetChainInfo("tx")
	if err != nil {
		t.Fatalf("get chain info: %v", err)
	}
	if c.Difficulty != 0 {
		t.Fatalf("expected explicit difficulty 0 to override default, got %d", c.Difficulty)
	}
}

func TestAppendSurfacesLedgerErrMiningExhaustedOnDeadline(t *testing.T) {
	e := newTestEngine(t, Config{MiningDeadline: time.Nanosecond})
	if _, err := e.CreateChain("tx", chain.KindTransaction, "", difficultyPtr(64)); err != nil {
		t.Fatalf("create chain: %v", err)
	}
	_, err := e.Append(context.Background(), "tx", []byte("x"), nil)
	if !errors.Is(err, ledgererr.ErrMiningExhausted) {
		t.Fatalf("expected ledgererr.ErrMiningExhausted, got %v", err)
	}
}
