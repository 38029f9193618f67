// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package timemarker

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnichain-devtools/lzread/chain"
)

func TestCheckResolvedTimeMarkerValidity(t *testing.T) {
	v := NewValidator(clocks(map[uint32]chain.BlockClock{1: newTestClock(100, 100, 105, 110)}))
	ctx := context.Background()

	valid := []ResolvedTimeMarker{
		{Marker: TimeMarker{EID: 1, Timestamp: 103}, BlockNumber: 3},
		{Marker: TimeMarker{EID: 1, Timestamp: 100}, BlockNumber: 1},
		// block number markers are not re-checked
		{Marker: TimeMarker{EID: 1, IsBlockNumber: true, BlockNumber: 2}, BlockNumber: 2},
	}
	assert.NoError(t, v.CheckResolvedTimeMarkerValidity(ctx, valid))

	err := v.CheckResolvedTimeMarkerValidity(ctx, []ResolvedTimeMarker{
		{Marker: TimeMarker{EID: 1, Timestamp: 103}, BlockNumber: 4},
		{Marker: TimeMarker{EID: 1, Timestamp: 100}, BlockNumber: 2},
	})
	require.Error(t, err)
	var inconsistent *InconsistentTimeMarkerError
	assert.True(t, errors.As(err, &inconsistent))

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 2)
}

func TestCheckResolvedTimeMarkerValidityMissingBlock(t *testing.T) {
	v := NewValidator(clocks(map[uint32]chain.BlockClock{1: newTestClock(100, 105)}))
	err := v.CheckResolvedTimeMarkerValidity(context.Background(), []ResolvedTimeMarker{
		{Marker: TimeMarker{EID: 1, Timestamp: 103}, BlockNumber: 7},
	})
	var notFound *chain.BlockNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestAssertTimeMarkerBlockConfirmations(t *testing.T) {
	v := NewValidator(clocks(map[uint32]chain.BlockClock{
		1: newTestClock(100, 100, 105, 110, 120, 130),
		2: newTestClock(10, 20),
	}))
	ctx := context.Background()

	ok := []ResolvedTimeMarker{
		{Marker: TimeMarker{EID: 1, Timestamp: 103, BlockConfirmations: 3}, BlockNumber: 3},
		{Marker: TimeMarker{EID: 2, IsBlockNumber: true, BlockNumber: 2}, BlockNumber: 2},
	}
	assert.NoError(t, v.AssertTimeMarkerBlockConfirmations(ctx, ok))

	err := v.AssertTimeMarkerBlockConfirmations(ctx, []ResolvedTimeMarker{
		{Marker: TimeMarker{EID: 1, Timestamp: 103, BlockConfirmations: 4}, BlockNumber: 3},
		{Marker: TimeMarker{EID: 2, IsBlockNumber: true, BlockNumber: 1, BlockConfirmations: 1}, BlockNumber: 1},
	})
	require.Error(t, err)

	var insufficient *InsufficientConfirmationsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, uint32(1), insufficient.EID)
	assert.Equal(t, uint64(3), insufficient.BlockNumber)
	assert.Equal(t, uint16(4), insufficient.Required)
	assert.Equal(t, uint64(6), insufficient.Head)
}

func TestAssertConfirmationsBlockAheadOfHead(t *testing.T) {
	v := NewValidator(clocks(map[uint32]chain.BlockClock{1: newTestClock(100, 105)}))
	err := v.AssertTimeMarkerBlockConfirmations(context.Background(), []ResolvedTimeMarker{
		{Marker: TimeMarker{EID: 1, IsBlockNumber: true, BlockNumber: 10}, BlockNumber: 10},
	})
	var insufficient *InsufficientConfirmationsError
	assert.True(t, errors.As(err, &insufficient))
}

func TestHasConfirmations(t *testing.T) {
	assert := assert.New(t)

	rtm := ResolvedTimeMarker{Marker: TimeMarker{BlockConfirmations: 2}, BlockNumber: 10}
	assert.False(HasConfirmations(rtm, 9))
	assert.False(HasConfirmations(rtm, 11))
	assert.True(HasConfirmations(rtm, 12))
	assert.True(HasConfirmations(rtm, 100))
}
