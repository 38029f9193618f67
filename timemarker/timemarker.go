// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package timemarker

import (
	"fmt"

	"github.com/omnichain-devtools/lzread/codec"
)

// TimeMarker is a point in time on one chain that a command needs to be read
// at. Exactly one of BlockNumber and Timestamp is meaningful, as told by
// IsBlockNumber. TimeMarkers are comparable and two markers are the same
// lookup iff they are ==.
type TimeMarker struct {
	EID                uint32 `json:"eid"`
	BlockConfirmations uint16 `json:"blockConfirmations"`
	IsBlockNumber      bool   `json:"isBlockNumber"`
	BlockNumber        uint64 `json:"blockNumber,omitempty"`
	Timestamp          uint64 `json:"timestamp,omitempty"`
}

func (tm TimeMarker) String() string {
	if tm.IsBlockNumber {
		return fmt.Sprintf("eid=%d block=%d confirmations=%d", tm.EID, tm.BlockNumber, tm.BlockConfirmations)
	}
	return fmt.Sprintf("eid=%d timestamp=%d confirmations=%d", tm.EID, tm.Timestamp, tm.BlockConfirmations)
}

// ResolvedTimeMarker pins a TimeMarker to a concrete block number
type ResolvedTimeMarker struct {
	Marker      TimeMarker `json:"marker"`
	BlockNumber uint64     `json:"resolvedBlockNumber"`
}

// IsTimestamp reports whether the block number was found from a timestamp
func (r ResolvedTimeMarker) IsTimestamp() bool { return !r.Marker.IsBlockNumber }

// Resolved returns a block number marker as already resolved
func Resolved(tm TimeMarker) ResolvedTimeMarker {
	return ResolvedTimeMarker{Marker: tm, BlockNumber: tm.BlockNumber}
}

// FromRequest returns the time marker of an EVM call request
func FromRequest(req *codec.SingleViewFunctionEVMCall) TimeMarker {
	return newTimeMarker(req.TargetEID, req.BlockConfirmations, req.IsBlockNumber(), req.BlockNumOrTimestamp)
}

// FromCompute returns the time marker of an EVM compute step
func FromCompute(c *codec.ComputeEVM) TimeMarker {
	return newTimeMarker(c.TargetEID, c.BlockConfirmations, c.IsBlockNumber(), c.BlockNumOrTimestamp)
}

func newTimeMarker(eid uint32, confirmations uint16, isBlockNumber bool, value uint64) TimeMarker {
	tm := TimeMarker{
		EID:                eid,
		BlockConfirmations: confirmations,
		IsBlockNumber:      isBlockNumber,
	}
	if isBlockNumber {
		tm.BlockNumber = value
	} else {
		tm.Timestamp = value
	}
	return tm
}

// Dedup drops repeated markers, keeping the first occurrence of each
func Dedup(markers []TimeMarker) []TimeMarker {
	seen := make(map[TimeMarker]struct{}, len(markers))
	out := make([]TimeMarker, 0, len(markers))
	for _, tm := range markers {
		if _, ok := seen[tm]; ok {
			continue
		}
		seen[tm] = struct{}{}
		out = append(out, tm)
	}
	return out
}

// GroupByEID buckets markers per chain, keeping their relative order
func GroupByEID(markers []TimeMarker) map[uint32][]TimeMarker {
	groups := make(map[uint32][]TimeMarker)
	for _, tm := range markers {
		groups[tm.EID] = append(groups[tm.EID], tm)
	}
	return groups
}

// Extract collects the deduplicated time markers a command must be read at,
// split into block number markers and timestamp markers. Nothing is read from
// any chain.
func Extract(cmd *codec.Command) (blockNumberMarkers []TimeMarker, timestampMarkers []TimeMarker, err error) {
	markers := make([]TimeMarker, 0, len(cmd.Requests)+1)
	for _, req := range cmd.Requests {
		switch r := req.(type) {
		case *codec.SingleViewFunctionEVMCall:
			markers = append(markers, FromRequest(r))
		default:
			return nil, nil, &UnsupportedResolverTypeError{ResolverType: req.Header().ResolverType}
		}
	}
	if cmd.Compute != nil {
		switch c := cmd.Compute.(type) {
		case *codec.ComputeEVM:
			if !c.Setting.Valid() {
				return nil, nil, &InvalidComputeSettingError{Setting: c.Setting}
			}
			markers = append(markers, FromCompute(c))
		default:
			return nil, nil, &UnsupportedComputeTypeError{ComputeType: cmd.Compute.Header().ComputeType}
		}
	}

	blockNumberMarkers = []TimeMarker{}
	timestampMarkers = []TimeMarker{}
	for _, tm := range Dedup(markers) {
		if tm.IsBlockNumber {
			blockNumberMarkers = append(blockNumberMarkers, tm)
		} else {
			timestampMarkers = append(timestampMarkers, tm)
		}
	}
	return blockNumberMarkers, timestampMarkers, nil
}

// Find returns the resolved marker for [tm]. Block number markers resolve to
// themselves; timestamp markers must be present in [resolved].
func Find(tm TimeMarker, resolved []ResolvedTimeMarker) (ResolvedTimeMarker, error) {
	if tm.IsBlockNumber {
		return Resolved(tm), nil
	}
	for _, r := range resolved {
		if r.Marker == tm {
			return r, nil
		}
	}
	return ResolvedTimeMarker{}, &MissingResolvedTimeMarkerError{Marker: tm}
}

// ApplyResolved returns the resolved marker of every timestamp marker in [markers], in order
func ApplyResolved(markers []TimeMarker, resolved []ResolvedTimeMarker) ([]ResolvedTimeMarker, error) {
	out := make([]ResolvedTimeMarker, len(markers))
	for i, tm := range markers {
		r, err := Find(tm, resolved)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// FindRequestResolvedTimeMarker returns the block [req] must be executed at
func FindRequestResolvedTimeMarker(req codec.Request, resolved []ResolvedTimeMarker) (ResolvedTimeMarker, error) {
	switch r := req.(type) {
	case *codec.SingleViewFunctionEVMCall:
		return Find(FromRequest(r), resolved)
	default:
		return ResolvedTimeMarker{}, &UnsupportedResolverTypeError{ResolverType: req.Header().ResolverType}
	}
}

// FindComputeResolvedTimeMarker returns the block [compute] must be executed at
func FindComputeResolvedTimeMarker(compute codec.Compute, resolved []ResolvedTimeMarker) (ResolvedTimeMarker, error) {
	switch c := compute.(type) {
	case *codec.ComputeEVM:
		return Find(FromCompute(c), resolved)
	default:
		return ResolvedTimeMarker{}, &UnsupportedComputeTypeError{ComputeType: compute.Header().ComputeType}
	}
}

// BlockTime is the (number, timestamp) pair of a block
type BlockTime struct {
	Number    uint64
	Timestamp uint64
}

// IsBlockMatchingTimestamp reports whether [block] is the first block at or
// after [target]. [previous] is ignored for the first block of a chain.
func IsBlockMatchingTimestamp(block BlockTime, previous *BlockTime, target uint64) bool {
	if block.Number == FirstBlockNumber {
		return block.Timestamp == target
	}
	return previous != nil && block.Timestamp >= target && previous.Timestamp < target
}
