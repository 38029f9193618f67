// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package resolver answers LZRead commands: it executes their requests
// against historical chain state and folds the responses through the
// command's compute step.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/omnichain-devtools/lzread/chain"
	"github.com/omnichain-devtools/lzread/codec"
	"github.com/omnichain-devtools/lzread/timemarker"
)

// TimeMarkers are the points in time a command must be read at
type TimeMarkers struct {
	BlockNumberTimeMarkers []timemarker.TimeMarker `json:"blockNumberTimeMarkers"`
	TimestampTimeMarkers   []timemarker.TimeMarker `json:"timestampTimeMarkers"`
}

// CommandResolver decodes a command, checks its time markers against the
// chains and returns the payload answering it.
type CommandResolver struct {
	requests  *RequestResolver
	compute   *ComputeResolver
	markers   *timemarker.Resolver
	validator *timemarker.Validator
	metrics   *metrics
	log       log.Logger
}

func NewCommandResolver(
	callers chain.Factory[chain.ViewCaller],
	clocks chain.Factory[chain.BlockClock],
	registerer prometheus.Registerer,
) (*CommandResolver, error) {
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	return &CommandResolver{
		requests:  NewRequestResolver(callers),
		compute:   NewComputeResolver(callers),
		markers:   timemarker.NewResolver(clocks),
		validator: timemarker.NewValidator(clocks),
		metrics:   m,
		log:       log.New("module", "resolver"),
	}, nil
}

func (r *CommandResolver) DecodeCommand(command string) (*codec.Command, error) {
	return codec.DecodeHex(command)
}

// ExtractTimeMarkers returns the deduplicated time markers of [command]
// without reading any chain
func (r *CommandResolver) ExtractTimeMarkers(command string) (TimeMarkers, error) {
	cmd, err := codec.DecodeHex(command)
	if err != nil {
		return TimeMarkers{}, err
	}
	blockNumbers, timestamps, err := timemarker.Extract(cmd)
	if err != nil {
		return TimeMarkers{}, err
	}
	return TimeMarkers{
		BlockNumberTimeMarkers: blockNumbers,
		TimestampTimeMarkers:   timestamps,
	}, nil
}

// ResolveTimeMarkers finds the block of every timestamp marker. A marker
// older than the reachable history of its chain fails with
// *UnresolvableCommandError.
func (r *CommandResolver) ResolveTimeMarkers(ctx context.Context, markers []timemarker.TimeMarker) ([]timemarker.ResolvedTimeMarker, error) {
	resolved, err := r.markers.Resolve(ctx, markers)
	if err != nil {
		return nil, normalize(err)
	}
	return resolved, nil
}

// ResolveCommand answers [command] using the caller supplied blocks of its
// timestamp markers. Markers are validated before any request is executed.
// A call target that is missing or reverts, or a block the chain no longer
// serves, fails with *UnresolvableCommandError.
func (r *CommandResolver) ResolveCommand(ctx context.Context, command string, resolved []timemarker.ResolvedTimeMarker) (_ []byte, err error) {
	start := time.Now()
	defer func() {
		r.metrics.observe(start, err)
		if err != nil {
			r.log.Info("command not resolved", "err", err)
		}
	}()

	cmd, err := codec.DecodeHex(command)
	if err != nil {
		return nil, err
	}
	blockNumbers, timestamps, err := timemarker.Extract(cmd)
	if err != nil {
		return nil, err
	}

	resolvedTimestamps, err := timemarker.ApplyResolved(timestamps, resolved)
	if err != nil {
		return nil, err
	}
	if err := r.validator.CheckResolvedTimeMarkerValidity(ctx, resolvedTimestamps); err != nil {
		return nil, normalize(err)
	}
	all := make([]timemarker.ResolvedTimeMarker, 0, len(blockNumbers)+len(resolvedTimestamps))
	all = append(all, resolvedTimestamps...)
	for _, tm := range blockNumbers {
		all = append(all, timemarker.Resolved(tm))
	}
	if err := r.validator.AssertTimeMarkerBlockConfirmations(ctx, all); err != nil {
		return nil, err
	}
	r.log.Debug("time markers validated", "blockNumbers", len(blockNumbers), "timestamps", len(resolvedTimestamps))

	payload, err := r.execute(ctx, cmd, resolvedTimestamps)
	if err != nil {
		return nil, normalize(err)
	}
	return payload, nil
}

func (r *CommandResolver) execute(ctx context.Context, cmd *codec.Command, resolved []timemarker.ResolvedTimeMarker) ([]byte, error) {
	pairs, err := r.requests.ResolveAll(ctx, cmd, resolved)
	if err != nil {
		return nil, err
	}

	if cmd.Compute == nil {
		r.log.Debug("no compute in command, concatenating responses", "requests", len(pairs))
		responses := make([][]byte, len(pairs))
		for i, pair := range pairs {
			responses[i] = pair.Response
		}
		return bytes.Join(responses, nil), nil
	}

	rtm, err := timemarker.FindComputeResolvedTimeMarker(cmd.Compute, resolved)
	if err != nil {
		return nil, err
	}
	return r.compute.Resolve(ctx, cmd.Encode(), cmd.Compute, rtm, pairs)
}

// Resolve runs the whole flow for [command]: it resolves the timestamp
// markers against the chains, then answers the command at those blocks.
func (r *CommandResolver) Resolve(ctx context.Context, command string) ([]byte, error) {
	markers, err := r.ExtractTimeMarkers(command)
	if err != nil {
		return nil, err
	}
	resolved, err := r.ResolveTimeMarkers(ctx, markers.TimestampTimeMarkers)
	if err != nil {
		return nil, err
	}
	r.log.Info("resolved timestamp time markers", "count", len(resolved))
	return r.ResolveCommand(ctx, command, resolved)
}

func isDecodeError(err error) bool {
	var decodeErr *codec.DecodeError
	return errors.As(err, &decodeErr)
}
