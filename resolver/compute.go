// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resolver

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/inconshreveable/log15"
	"golang.org/x/sync/errgroup"

	"github.com/omnichain-devtools/lzread/chain"
	"github.com/omnichain-devtools/lzread/codec"
	"github.com/omnichain-devtools/lzread/timemarker"
)

// ComputeResolver runs the map and reduce steps of a command against its
// compute contract
type ComputeResolver struct {
	callers chain.Factory[chain.ViewCaller]
	log     log.Logger
}

func NewComputeResolver(callers chain.Factory[chain.ViewCaller]) *ComputeResolver {
	return &ComputeResolver{
		callers: callers,
		log:     log.New("module", "compute"),
	}
}

// Resolve folds [responses] into the final payload of [cmd]. [cmd] is the
// raw command passed to lzReduce.
func (c *ComputeResolver) Resolve(
	ctx context.Context,
	cmd []byte,
	compute codec.Compute,
	rtm timemarker.ResolvedTimeMarker,
	responses []RequestResponsePair,
) ([]byte, error) {
	switch compute := compute.(type) {
	case *codec.ComputeEVM:
		return c.resolveEVM(ctx, cmd, compute, rtm, responses)
	default:
		return nil, &timemarker.UnsupportedComputeTypeError{ComputeType: compute.Header().ComputeType}
	}
}

func (c *ComputeResolver) resolveEVM(
	ctx context.Context,
	cmd []byte,
	compute *codec.ComputeEVM,
	rtm timemarker.ResolvedTimeMarker,
	responses []RequestResponsePair,
) ([]byte, error) {
	if !compute.Setting.Valid() {
		return nil, &timemarker.InvalidComputeSettingError{Setting: compute.Setting}
	}

	caller, err := c.callers(ctx, compute.TargetEID)
	if err != nil {
		return nil, fmt.Errorf("couldn't get view caller for eid %d: %w", compute.TargetEID, err)
	}
	evm := &evmCompute{
		caller:  caller,
		compute: compute,
		block:   rtm.BlockNumber,
		log:     c.log,
	}

	c.log.Debug("resolving compute",
		"setting", compute.Setting,
		"eid", compute.TargetEID,
		"block", rtm.BlockNumber,
		"responses", len(responses),
	)

	switch compute.Setting {
	case codec.OnlyReduce:
		raw := make([][]byte, len(responses))
		for i, pair := range responses {
			raw[i] = pair.Response
		}
		return evm.reduce(ctx, cmd, raw)
	case codec.OnlyMap:
		mapped, err := evm.mapAll(ctx, responses)
		if err != nil {
			return nil, err
		}
		return bytes.Join(mapped, nil), nil
	default:
		mapped, err := evm.mapAll(ctx, responses)
		if err != nil {
			return nil, err
		}
		return evm.reduce(ctx, cmd, mapped)
	}
}

type evmCompute struct {
	caller  chain.ViewCaller
	compute *codec.ComputeEVM
	block   uint64
	log     log.Logger
}

// mapAll calls lzMap once per pair, concurrently. The i-th output maps the
// i-th pair.
func (e *evmCompute) mapAll(ctx context.Context, responses []RequestResponsePair) ([][]byte, error) {
	mapped := make([][]byte, len(responses))
	g, gctx := errgroup.WithContext(ctx)
	for i, pair := range responses {
		i, pair := i, pair
		g.Go(func() error {
			out, err := e.call(gctx, lzMapMethod, []byte(pair.Request), []byte(pair.Response))
			if err != nil {
				return err
			}
			mapped[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mapped, nil
}

func (e *evmCompute) reduce(ctx context.Context, cmd []byte, responses [][]byte) ([]byte, error) {
	return e.call(ctx, lzReduceMethod, cmd, responses)
}

func (e *evmCompute) call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	calldata, err := ComputeABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("couldn't pack %s: %w", method, err)
	}
	result, err := e.caller.CallContract(ctx, e.compute.To, calldata, e.block)
	if err != nil {
		return nil, err
	}
	out, err := unpackBytes(method, result)
	if err != nil {
		return nil, err
	}
	e.log.Debug("compute call", "method", method, "to", e.compute.To, "output", hexutil.Encode(out))
	return out, nil
}
