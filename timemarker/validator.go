// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package timemarker

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	log "github.com/inconshreveable/log15"
	"golang.org/x/sync/errgroup"

	"github.com/omnichain-devtools/lzread/chain"
)

// Validator checks resolved markers against the current state of their chains
type Validator struct {
	clocks chain.Factory[chain.BlockClock]
	log    log.Logger
}

func NewValidator(clocks chain.Factory[chain.BlockClock]) *Validator {
	return &Validator{
		clocks: clocks,
		log:    log.New("module", "timemarker"),
	}
}

// CheckResolvedTimeMarkerValidity re-reads the resolved block of every
// timestamp marker and its predecessor and fails unless the resolved block
// is still the first block at or after the marker's timestamp.
func (v *Validator) CheckResolvedTimeMarkerValidity(ctx context.Context, resolved []ResolvedTimeMarker) error {
	var (
		lock   sync.Mutex
		result *multierror.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, rtm := range resolved {
		if !rtm.IsTimestamp() {
			continue
		}
		rtm := rtm
		g.Go(func() error {
			err := v.checkValidity(gctx, rtm)
			if err == nil {
				return nil
			}
			if _, ok := err.(*InconsistentTimeMarkerError); !ok {
				return err
			}
			lock.Lock()
			result = multierror.Append(result, err)
			lock.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return result.ErrorOrNil()
}

func (v *Validator) checkValidity(ctx context.Context, rtm ResolvedTimeMarker) error {
	clock, err := v.clocks(ctx, rtm.Marker.EID)
	if err != nil {
		return fmt.Errorf("couldn't get block clock for eid %d: %w", rtm.Marker.EID, err)
	}
	blocks := newBlockTimes(rtm.Marker.EID, clock)

	block, err := blocks.get(ctx, rtm.BlockNumber)
	if err != nil {
		return err
	}
	var previous *BlockTime
	if rtm.BlockNumber > FirstBlockNumber {
		p, err := blocks.get(ctx, rtm.BlockNumber-1)
		if err != nil {
			return err
		}
		previous = &p
	}
	if !IsBlockMatchingTimestamp(block, previous, rtm.Marker.Timestamp) {
		return &InconsistentTimeMarkerError{Resolved: rtm, Block: block, Preceding: previous}
	}
	return nil
}

// AssertTimeMarkerBlockConfirmations fails unless every marker's block is
// buried under at least BlockConfirmations blocks. Each chain head is read
// once. Every offending marker is reported.
func (v *Validator) AssertTimeMarkerBlockConfirmations(ctx context.Context, resolved []ResolvedTimeMarker) error {
	byEID := make(map[uint32][]ResolvedTimeMarker)
	for _, rtm := range resolved {
		byEID[rtm.Marker.EID] = append(byEID[rtm.Marker.EID], rtm)
	}

	var (
		lock   sync.Mutex
		result *multierror.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	for eid, group := range byEID {
		eid, group := eid, group
		g.Go(func() error {
			clock, err := v.clocks(gctx, eid)
			if err != nil {
				return fmt.Errorf("couldn't get block clock for eid %d: %w", eid, err)
			}
			head, err := clock.BlockNumber(gctx)
			if err != nil {
				return fmt.Errorf("couldn't get head block on eid %d: %w", eid, err)
			}
			for _, rtm := range group {
				if HasConfirmations(rtm, head) {
					continue
				}
				v.log.Debug("insufficient confirmations",
					"eid", eid,
					"block", rtm.BlockNumber,
					"required", rtm.Marker.BlockConfirmations,
					"head", head,
				)
				lock.Lock()
				result = multierror.Append(result, &InsufficientConfirmationsError{
					EID:         eid,
					BlockNumber: rtm.BlockNumber,
					Required:    rtm.Marker.BlockConfirmations,
					Head:        head,
				})
				lock.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return result.ErrorOrNil()
}

// HasConfirmations reports whether [head] is at least the marker's required
// confirmations past its resolved block
func HasConfirmations(rtm ResolvedTimeMarker, head uint64) bool {
	return head >= rtm.BlockNumber && head-rtm.BlockNumber >= uint64(rtm.Marker.BlockConfirmations)
}
