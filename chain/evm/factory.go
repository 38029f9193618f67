// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"context"
	"fmt"

	"github.com/omnichain-devtools/lzread/chain"
)

// NewFactory dials a client for any endpoint id present in [urls]. Dialing
// happens on every call; wrap the factory with chain.Memoize to share clients.
func NewFactory(urls map[uint32]string) chain.Factory[*Client] {
	return func(ctx context.Context, eid uint32) (*Client, error) {
		url, ok := urls[eid]
		if !ok {
			return nil, fmt.Errorf("%w %d", chain.ErrUnknownEndpoint, eid)
		}
		return Dial(ctx, eid, url)
	}
}

func ViewCallers(factory chain.Factory[*Client]) chain.Factory[chain.ViewCaller] {
	return func(ctx context.Context, eid uint32) (chain.ViewCaller, error) {
		c, err := factory(ctx, eid)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func BlockClocks(factory chain.Factory[*Client]) chain.Factory[chain.BlockClock] {
	return func(ctx context.Context, eid uint32) (chain.BlockClock, error) {
		c, err := factory(ctx, eid)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
