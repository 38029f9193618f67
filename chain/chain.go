// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chain defines the per-chain capabilities the read engine consumes
// and the factories that hand them out per endpoint id.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/cache/metercacher"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

const DefaultFactoryCacheSize = 256

var ErrUnknownEndpoint = errors.New("no chain configured for endpoint")

// ViewCaller executes read-only contract calls pinned to a block
type ViewCaller interface {
	CallContract(ctx context.Context, to common.Address, calldata []byte, blockNumber uint64) ([]byte, error)
}

// BlockClock reads the chain head and historical block timestamps
type BlockClock interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error)
}

// Factory hands out a capability for the chain behind endpoint id [eid].
// Factories must be safe for concurrent use.
type Factory[T any] func(ctx context.Context, eid uint32) (T, error)

// Static returns a factory serving the given capabilities and failing with
// ErrUnknownEndpoint for any other endpoint.
func Static[T any](byEID map[uint32]T) Factory[T] {
	return func(_ context.Context, eid uint32) (T, error) {
		v, ok := byEID[eid]
		if !ok {
			var zero T
			return zero, fmt.Errorf("%w %d", ErrUnknownEndpoint, eid)
		}
		return v, nil
	}
}

// Memoize caches the values built by [factory] per endpoint id. Concurrent
// first calls for the same endpoint share one construction. Errors are not
// cached. Cache metrics are registered under [namespace].
func Memoize[T any](factory Factory[T], size int, namespace string, registerer prometheus.Registerer) (Factory[T], error) {
	if size <= 0 {
		size = DefaultFactoryCacheSize
	}
	values, err := metercacher.New(namespace, registerer, &cache.LRU{Size: size})
	if err != nil {
		return nil, err
	}

	var group singleflight.Group
	return func(ctx context.Context, eid uint32) (T, error) {
		if v, ok := values.Get(eid); ok {
			return v.(T), nil
		}
		v, err, _ := group.Do(strconv.FormatUint(uint64(eid), 10), func() (interface{}, error) {
			if v, ok := values.Get(eid); ok {
				return v, nil
			}
			v, err := factory(ctx, eid)
			if err != nil {
				return nil, err
			}
			values.Put(eid, v)
			return v, nil
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return v.(T), nil
	}, nil
}
