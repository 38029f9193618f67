// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package timemarker

import (
	"fmt"

	"github.com/omnichain-devtools/lzread/codec"
)

// UnsupportedResolverTypeError is returned for requests whose resolver type
// has no implementation. It is never retried.
type UnsupportedResolverTypeError struct {
	ResolverType codec.ResolverType
}

func (e *UnsupportedResolverTypeError) Error() string {
	return fmt.Sprintf("unsupported resolver type: %d", e.ResolverType)
}

// UnsupportedComputeTypeError is returned for compute steps whose type has no
// implementation. It is never retried.
type UnsupportedComputeTypeError struct {
	ComputeType codec.ComputeType
}

func (e *UnsupportedComputeTypeError) Error() string {
	return fmt.Sprintf("unsupported compute type: %d", e.ComputeType)
}

// InvalidComputeSettingError is returned for a compute setting that is none of
// OnlyMap, OnlyReduce and MapReduce
type InvalidComputeSettingError struct {
	Setting codec.ComputeSetting
}

func (e *InvalidComputeSettingError) Error() string {
	return fmt.Sprintf("invalid compute setting: %d", e.Setting)
}

// MissingResolvedTimeMarkerError is returned when a timestamp marker of the
// command has no resolved counterpart
type MissingResolvedTimeMarkerError struct {
	Marker TimeMarker
}

func (e *MissingResolvedTimeMarkerError) Error() string {
	return fmt.Sprintf("could not find resolved time marker for %s", e.Marker)
}

// InsufficientConfirmationsError is returned when the chain head is not yet
// [Required] blocks past [BlockNumber]
type InsufficientConfirmationsError struct {
	EID         uint32
	BlockNumber uint64
	Required    uint16
	Head        uint64
}

func (e *InsufficientConfirmationsError) Error() string {
	return fmt.Sprintf("insufficient confirmations on eid %d for block %d: required %d, head is %d",
		e.EID, e.BlockNumber, e.Required, e.Head)
}

// InconsistentTimeMarkerError is returned when a resolved block is not the
// first block at or after the marker's timestamp
type InconsistentTimeMarkerError struct {
	Resolved  ResolvedTimeMarker
	Block     BlockTime
	Preceding *BlockTime
}

func (e *InconsistentTimeMarkerError) Error() string {
	if e.Preceding == nil {
		return fmt.Sprintf("block %d (timestamp %d) does not match timestamp %d on eid %d",
			e.Block.Number, e.Block.Timestamp, e.Resolved.Marker.Timestamp, e.Resolved.Marker.EID)
	}
	return fmt.Sprintf("block %d (timestamp %d, preceding %d) does not match timestamp %d on eid %d",
		e.Block.Number, e.Block.Timestamp, e.Preceding.Timestamp, e.Resolved.Marker.Timestamp, e.Resolved.Marker.EID)
}

// TimestampInFutureError is returned for a timestamp newer than the chain head
type TimestampInFutureError struct {
	EID       uint32
	Timestamp uint64
	Head      BlockTime
}

func (e *TimestampInFutureError) Error() string {
	return fmt.Sprintf("target timestamp %d is in the future on eid %d (head block %d at %d)",
		e.Timestamp, e.EID, e.Head.Number, e.Head.Timestamp)
}

// TimestampBeforeFirstBlockError is returned for a timestamp older than the first block
type TimestampBeforeFirstBlockError struct {
	EID        uint32
	Timestamp  uint64
	FirstBlock BlockTime
}

func (e *TimestampBeforeFirstBlockError) Error() string {
	return fmt.Sprintf("requested timestamp %d is lower than the first block on eid %d (%d)",
		e.Timestamp, e.EID, e.FirstBlock.Timestamp)
}

// InvalidBlockTimeError is returned when block timestamps are not monotonic
type InvalidBlockTimeError struct {
	EID          uint32
	Lower, Upper BlockTime
}

func (e *InvalidBlockTimeError) Error() string {
	return fmt.Sprintf("invalid block on eid %d: block %d has timestamp %d, larger than block %d with timestamp %d",
		e.EID, e.Lower.Number, e.Lower.Timestamp, e.Upper.Number, e.Upper.Timestamp)
}
