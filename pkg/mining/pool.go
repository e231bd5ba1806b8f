// Copyright 2025 Certen Protocol
//
// Package mining is the blocking-safe executor spec.md §4.7/§5 describes: a
// bounded pool of slots for CPU-bound nonce search, kept off whatever
// concurrency fabric serves reads and appends on other chains. A burst of
// appends across many chains can only ever have blocking_pool_size searches
// running at once; the rest queue for a slot.
package mining

import (
	"context"
	"log"
	"time"

	"github.com/certenio/ledgerd/pkg/block"
)

// Pool bounds concurrent mining searches.
type Pool struct {
	slots  chan struct{}
	logger *log.Logger
}

// NewPool builds a pool with room for size concurrent mining searches. size
// <= 0 means unbounded: every call runs without waiting for a slot.
func NewPool(size int) *Pool {
	p := &Pool{logger: log.New(log.Writer(), "[MiningPool] ", log.LstdFlags)}
	if size > 0 {
		p.slots = make(chan struct{}, size)
	}
	return p
}

// Mine acquires a slot, mines candidate against difficulty bounded by
// deadline (zero deadline means unbounded), and releases the slot. ctx
// cancellation is honored while waiting for a slot; once mining starts it
// runs to completion or to deadline, per spec.md §5 ("an in-flight mining
// task may be allowed to complete").
func (p *Pool) Mine(ctx context.Context, candidate *block.Block, difficulty int, deadline time.Time) error {
	if p.slots != nil {
		select {
		case p.slots <- struct{}{}:
			defer func() { <-p.slots }()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	start := time.Now()
	err := candidate.Mine(difficulty, deadline)
	if err != nil {
		p.logger.Printf("mining failed for chain %s height %d after %s: %v", candidate.ChainID, candidate.Height, time.Since(start), err)
		return err
	}
	p.logger.Printf("mined chain %s height %d in %s (nonce=%d)", candidate.ChainID, candidate.Height, time.Since(start), candidate.Nonce)
	return nil
}
