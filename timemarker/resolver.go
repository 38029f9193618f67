// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package timemarker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ava-labs/avalanchego/cache"
	log "github.com/inconshreveable/log15"
	"golang.org/x/sync/errgroup"

	"github.com/omnichain-devtools/lzread/chain"
)

// FirstBlockNumber is the first block a timestamp can resolve to
const FirstBlockNumber uint64 = 1

const blockTimeCacheSize = 1024

var errEmptyChain = errors.New("chain has no blocks")

// Resolver finds, for each timestamp marker, the first block on the marker's
// chain whose timestamp is at or after the marker's timestamp.
type Resolver struct {
	clocks chain.Factory[chain.BlockClock]
	log    log.Logger
}

func NewResolver(clocks chain.Factory[chain.BlockClock]) *Resolver {
	return &Resolver{
		clocks: clocks,
		log:    log.New("module", "timemarker"),
	}
}

// Resolve returns the resolved counterpart of every marker, in order. Block
// number markers resolve to themselves without touching the chain.
func (r *Resolver) Resolve(ctx context.Context, markers []TimeMarker) ([]ResolvedTimeMarker, error) {
	timestamps := make([]TimeMarker, 0, len(markers))
	for _, tm := range markers {
		if !tm.IsBlockNumber {
			timestamps = append(timestamps, tm)
		}
	}

	var (
		lock   sync.Mutex
		blocks = make(map[uint32]map[uint64]uint64)
	)
	g, gctx := errgroup.WithContext(ctx)
	for eid, group := range GroupByEID(timestamps) {
		eid, group := eid, group
		values := make([]uint64, len(group))
		for i, tm := range group {
			values[i] = tm.Timestamp
		}
		g.Go(func() error {
			resolved, err := r.ResolveTimestamps(gctx, eid, values)
			if err != nil {
				return err
			}
			lock.Lock()
			blocks[eid] = resolved
			lock.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]ResolvedTimeMarker, len(markers))
	for i, tm := range markers {
		if tm.IsBlockNumber {
			out[i] = Resolved(tm)
			continue
		}
		out[i] = ResolvedTimeMarker{Marker: tm, BlockNumber: blocks[tm.EID][tm.Timestamp]}
	}
	return out, nil
}

// ResolveTimestamps maps every distinct timestamp to its block on chain [eid]
func (r *Resolver) ResolveTimestamps(ctx context.Context, eid uint32, timestamps []uint64) (map[uint64]uint64, error) {
	clock, err := r.clocks(ctx, eid)
	if err != nil {
		return nil, fmt.Errorf("couldn't get block clock for eid %d: %w", eid, err)
	}
	blocks := newBlockTimes(eid, clock)

	head, err := blocks.head(ctx)
	if err != nil {
		return nil, err
	}

	unique := uniqueTimestamps(timestamps)
	results := make([]uint64, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range unique {
		i, target := i, target
		g.Go(func() error {
			n, err := search(gctx, blocks, head, target)
			if err != nil {
				return err
			}
			r.log.Debug("resolved timestamp", "eid", eid, "timestamp", target, "block", n)
			results[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resolved := make(map[uint64]uint64, len(unique))
	for i, target := range unique {
		resolved[target] = results[i]
	}
	return resolved, nil
}

// search brackets [target] between a block strictly before it and a block at
// or after it, then narrows the bracket until the two blocks are adjacent.
// Interpolation and bisection steps alternate so that irregular block times
// cannot degrade the search below logarithmic.
func search(ctx context.Context, blocks *blockTimes, head BlockTime, target uint64) (uint64, error) {
	if target > head.Timestamp {
		return 0, &TimestampInFutureError{EID: blocks.eid, Timestamp: target, Head: head}
	}
	first, err := blocks.get(ctx, FirstBlockNumber)
	if err != nil {
		return 0, err
	}
	if IsBlockMatchingTimestamp(first, nil, target) {
		return first.Number, nil
	}
	if first.Timestamp > target {
		return 0, &TimestampBeforeFirstBlockError{EID: blocks.eid, Timestamp: target, FirstBlock: first}
	}

	// ts(lower) < target <= ts(upper)
	lower, upper := first, head
	for interpolate := true; upper.Number-lower.Number > 1; interpolate = !interpolate {
		if lower.Timestamp > upper.Timestamp {
			return 0, &InvalidBlockTimeError{EID: blocks.eid, Lower: lower, Upper: upper}
		}
		guess := lower.Number + (upper.Number-lower.Number)/2
		if interpolate {
			guess = interpolateBlock(lower, upper, target)
		}
		block, err := blocks.get(ctx, guess)
		if err != nil {
			return 0, err
		}
		switch {
		case block.Timestamp < lower.Timestamp:
			return 0, &InvalidBlockTimeError{EID: blocks.eid, Lower: lower, Upper: block}
		case block.Timestamp > upper.Timestamp:
			return 0, &InvalidBlockTimeError{EID: blocks.eid, Lower: block, Upper: upper}
		case block.Timestamp >= target:
			upper = block
		default:
			lower = block
		}
	}
	return upper.Number, nil
}

// interpolateBlock guesses the block of [target] assuming a constant block
// time between [lower] and [upper]. The guess is strictly inside the bracket.
func interpolateBlock(lower, upper BlockTime, target uint64) uint64 {
	span := upper.Number - lower.Number
	guess := lower.Number + 1
	if elapsed := upper.Timestamp - lower.Timestamp; elapsed > 0 {
		offset := float64(target-lower.Timestamp) / float64(elapsed) * float64(span)
		guess = lower.Number + uint64(offset)
	}
	if guess <= lower.Number {
		guess = lower.Number + 1
	}
	if guess >= upper.Number {
		guess = upper.Number - 1
	}
	return guess
}

func uniqueTimestamps(timestamps []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(timestamps))
	out := make([]uint64, 0, len(timestamps))
	for _, ts := range timestamps {
		if _, ok := seen[ts]; ok {
			continue
		}
		seen[ts] = struct{}{}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// blockTimes memoizes the timestamps read from one chain during one call
type blockTimes struct {
	eid   uint32
	clock chain.BlockClock
	cache cache.Cacher
}

func newBlockTimes(eid uint32, clock chain.BlockClock) *blockTimes {
	return &blockTimes{
		eid:   eid,
		clock: clock,
		cache: &cache.LRU{Size: blockTimeCacheSize},
	}
}

func (b *blockTimes) head(ctx context.Context) (BlockTime, error) {
	n, err := b.clock.BlockNumber(ctx)
	if err != nil {
		return BlockTime{}, fmt.Errorf("couldn't get head block on eid %d: %w", b.eid, err)
	}
	if n < FirstBlockNumber {
		return BlockTime{}, fmt.Errorf("%w: eid %d", errEmptyChain, b.eid)
	}
	return b.get(ctx, n)
}

func (b *blockTimes) get(ctx context.Context, n uint64) (BlockTime, error) {
	if ts, ok := b.cache.Get(n); ok {
		return BlockTime{Number: n, Timestamp: ts.(uint64)}, nil
	}
	ts, err := b.clock.BlockTimestamp(ctx, n)
	if err != nil {
		return BlockTime{}, fmt.Errorf("couldn't get timestamp of block %d on eid %d: %w", n, b.eid, err)
	}
	b.cache.Put(n, ts)
	return BlockTime{Number: n, Timestamp: ts}, nil
}
