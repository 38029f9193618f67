// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package timemarker

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnichain-devtools/lzread/chain"
)

// testClock serves timestamps[i] as the timestamp of block i+1
type testClock struct {
	timestamps []uint64
	head       uint64
	reads      int64
}

func newTestClock(timestamps ...uint64) *testClock {
	return &testClock{timestamps: timestamps, head: uint64(len(timestamps))}
}

func (c *testClock) BlockNumber(context.Context) (uint64, error) {
	return c.head, nil
}

func (c *testClock) BlockTimestamp(_ context.Context, n uint64) (uint64, error) {
	atomic.AddInt64(&c.reads, 1)
	if n < 1 || n > uint64(len(c.timestamps)) {
		return 0, &chain.BlockNotFoundError{BlockNumber: n}
	}
	return c.timestamps[n-1], nil
}

func clocks(byEID map[uint32]chain.BlockClock) chain.Factory[chain.BlockClock] {
	return chain.Static(byEID)
}

func TestResolveBoundary(t *testing.T) {
	assert := assert.New(t)

	r := NewResolver(clocks(map[uint32]chain.BlockClock{1: newTestClock(100, 100, 105, 110)}))
	blocks, err := r.ResolveTimestamps(context.Background(), 1, []uint64{103, 100, 105, 110, 101})
	assert.NoError(err)
	assert.Equal(map[uint64]uint64{
		100: 1,
		101: 3,
		103: 3,
		105: 3,
		110: 4,
	}, blocks)
}

func TestResolveOutOfRange(t *testing.T) {
	r := NewResolver(clocks(map[uint32]chain.BlockClock{1: newTestClock(100, 100, 105, 110)}))

	_, err := r.ResolveTimestamps(context.Background(), 1, []uint64{111})
	var future *TimestampInFutureError
	assert.True(t, errors.As(err, &future))
	assert.Equal(t, uint64(4), future.Head.Number)

	_, err = r.ResolveTimestamps(context.Background(), 1, []uint64{99})
	var tooOld *TimestampBeforeFirstBlockError
	assert.True(t, errors.As(err, &tooOld))
	assert.Equal(t, uint64(100), tooOld.FirstBlock.Timestamp)
}

func TestResolveUnknownChain(t *testing.T) {
	r := NewResolver(clocks(map[uint32]chain.BlockClock{}))
	_, err := r.Resolve(context.Background(), []TimeMarker{{EID: 9, Timestamp: 1}})
	assert.ErrorIs(t, err, chain.ErrUnknownEndpoint)
}

func TestResolveNonMonotonic(t *testing.T) {
	r := NewResolver(clocks(map[uint32]chain.BlockClock{1: newTestClock(100, 200, 50, 300, 400)}))
	_, err := r.ResolveTimestamps(context.Background(), 1, []uint64{250})
	var invalid *InvalidBlockTimeError
	assert.True(t, errors.As(err, &invalid), "unexpected error: %v", err)
}

func TestResolveMatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(1)) // #nosec G404
	for round := 0; round < 20; round++ {
		timestamps := make([]uint64, 1+rng.Intn(5000))
		ts := uint64(1_600_000_000)
		for i := range timestamps {
			// irregular block times, including runs of equal timestamps
			switch rng.Intn(10) {
			case 0:
			case 1:
				ts += uint64(rng.Intn(600))
			default:
				ts += uint64(1 + rng.Intn(15))
			}
			timestamps[i] = ts
		}
		clock := newTestClock(timestamps...)
		r := NewResolver(clocks(map[uint32]chain.BlockClock{1: clock}))

		targets := make([]uint64, 10)
		for i := range targets {
			first, last := timestamps[0], timestamps[len(timestamps)-1]
			targets[i] = first + uint64(rng.Int63n(int64(last-first)+1))
		}

		blocks, err := r.ResolveTimestamps(context.Background(), 1, targets)
		require.NoError(t, err)
		for _, target := range targets {
			assert.Equal(t, linearScan(timestamps, target), blocks[target], "round %d target %d", round, target)
		}
	}
}

func linearScan(timestamps []uint64, target uint64) uint64 {
	if timestamps[0] == target {
		return 1
	}
	for i := 1; i < len(timestamps); i++ {
		if timestamps[i] >= target && timestamps[i-1] < target {
			return uint64(i + 1)
		}
	}
	return 0
}

func TestResolveIsLogarithmic(t *testing.T) {
	timestamps := make([]uint64, 1_000_000)
	for i := range timestamps {
		timestamps[i] = 1_000 + uint64(i)*12
	}
	clock := newTestClock(timestamps...)
	r := NewResolver(clocks(map[uint32]chain.BlockClock{1: clock}))

	blocks, err := r.ResolveTimestamps(context.Background(), 1, []uint64{1_000 + 12*654_321 - 5})
	require.NoError(t, err)
	assert.Equal(t, uint64(654_322), blocks[1_000+12*654_321-5])
	assert.Less(t, atomic.LoadInt64(&clock.reads), int64(45))
}

func TestResolveKeepsOrder(t *testing.T) {
	assert := assert.New(t)

	r := NewResolver(clocks(map[uint32]chain.BlockClock{
		1: newTestClock(100, 100, 105, 110),
		2: newTestClock(10, 20, 30, 40, 50),
	}))
	markers := []TimeMarker{
		{EID: 2, Timestamp: 25, BlockConfirmations: 1},
		{EID: 1, IsBlockNumber: true, BlockNumber: 2},
		{EID: 1, Timestamp: 103},
		{EID: 2, Timestamp: 25, BlockConfirmations: 2},
	}
	resolved, err := r.Resolve(context.Background(), markers)
	assert.NoError(err)
	assert.Equal([]ResolvedTimeMarker{
		{Marker: markers[0], BlockNumber: 3},
		{Marker: markers[1], BlockNumber: 2},
		{Marker: markers[2], BlockNumber: 3},
		{Marker: markers[3], BlockNumber: 3},
	}, resolved)
}
