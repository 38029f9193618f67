// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resolver

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/inconshreveable/log15"
	"golang.org/x/sync/errgroup"

	"github.com/omnichain-devtools/lzread/chain"
	"github.com/omnichain-devtools/lzread/codec"
	"github.com/omnichain-devtools/lzread/timemarker"
)

// RequestResponsePair is an encoded request and the raw response it produced
type RequestResponsePair struct {
	Request  hexutil.Bytes `json:"request"`
	Response hexutil.Bytes `json:"response"`
}

// RequestResolver executes single requests against their target chain
type RequestResolver struct {
	callers chain.Factory[chain.ViewCaller]
	log     log.Logger
}

func NewRequestResolver(callers chain.Factory[chain.ViewCaller]) *RequestResolver {
	return &RequestResolver{
		callers: callers,
		log:     log.New("module", "resolver"),
	}
}

// Resolve executes [req] at the block of [rtm]
func (r *RequestResolver) Resolve(ctx context.Context, req codec.Request, rtm timemarker.ResolvedTimeMarker) (RequestResponsePair, error) {
	switch req := req.(type) {
	case *codec.SingleViewFunctionEVMCall:
		caller, err := r.callers(ctx, req.TargetEID)
		if err != nil {
			return RequestResponsePair{}, fmt.Errorf("couldn't get view caller for eid %d: %w", req.TargetEID, err)
		}
		response, err := caller.CallContract(ctx, req.To, req.CallData, rtm.BlockNumber)
		if err != nil {
			return RequestResponsePair{}, err
		}
		r.log.Debug("resolved request",
			"label", req.RequestLabel,
			"eid", req.TargetEID,
			"block", rtm.BlockNumber,
			"response", hexutil.Encode(response),
		)
		return RequestResponsePair{Request: req.Encode(), Response: response}, nil
	default:
		return RequestResponsePair{}, &timemarker.UnsupportedResolverTypeError{ResolverType: req.Header().ResolverType}
	}
}

// ResolveAll executes every request of [cmd] concurrently. The i-th pair
// answers the i-th request whatever the completion order.
func (r *RequestResolver) ResolveAll(ctx context.Context, cmd *codec.Command, resolved []timemarker.ResolvedTimeMarker) ([]RequestResponsePair, error) {
	markers := make([]timemarker.ResolvedTimeMarker, len(cmd.Requests))
	for i, req := range cmd.Requests {
		rtm, err := timemarker.FindRequestResolvedTimeMarker(req, resolved)
		if err != nil {
			return nil, err
		}
		markers[i] = rtm
	}

	pairs := make([]RequestResponsePair, len(cmd.Requests))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range cmd.Requests {
		i, req, rtm := i, req, markers[i]
		g.Go(func() error {
			pair, err := r.Resolve(gctx, req, rtm)
			if err != nil {
				return err
			}
			pairs[i] = pair
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pairs, nil
}
