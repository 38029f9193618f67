// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/inconshreveable/log15"
	"github.com/sethvargo/go-retry"
)

var DefaultRetryConfig = RetryConfig{
	NumAttempts: 3,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

// RetryConfig bounds the retries of a single chain operation
type RetryConfig struct {
	NumAttempts uint64        `mapstructure:"num-attempts"`
	BaseDelay   time.Duration `mapstructure:"base-delay"`
	MaxDelay    time.Duration `mapstructure:"max-delay"`

	// OnRetry is called after every failed attempt. Returning false stops retrying.
	OnRetry func(attempt uint64, err error) bool `mapstructure:"-"`
}

// backoff is exponential, capped at MaxDelay, with full jitter
func (c RetryConfig) backoff() retry.Backoff {
	base := c.BaseDelay
	if base <= 0 {
		base = DefaultRetryConfig.BaseDelay
	}
	b := retry.NewExponential(base)
	if c.MaxDelay > 0 {
		b = retry.WithCappedDuration(c.MaxDelay, b)
	}
	b = withFullJitter(b)

	attempts := c.NumAttempts
	if attempts == 0 {
		attempts = DefaultRetryConfig.NumAttempts
	}
	return retry.WithMaxRetries(attempts-1, b)
}

func withFullJitter(next retry.Backoff) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := next.Next()
		if stop {
			return 0, true
		}
		return time.Duration(rand.Int63n(int64(d) + 1)), false // #nosec G404
	})
}

// Do runs [fn] until it succeeds, the attempts are exhausted or [fn] fails
// with a chain state error, which is returned as is.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	var attempt uint64
	return retry.Do(ctx, cfg.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || IsChainStateError(err) {
			return err
		}
		if cfg.OnRetry != nil && !cfg.OnRetry(attempt, err) {
			return err
		}
		log.Debug("retrying chain operation", "attempt", attempt, "err", err)
		return retry.RetryableError(err)
	})
}

var (
	_ ViewCaller = (*RetryingViewCaller)(nil)
	_ BlockClock = (*RetryingBlockClock)(nil)
)

// RetryingViewCaller retries transport failures of the wrapped ViewCaller
type RetryingViewCaller struct {
	ViewCaller
	Config RetryConfig
}

func (r *RetryingViewCaller) CallContract(ctx context.Context, to common.Address, calldata []byte, blockNumber uint64) ([]byte, error) {
	var result []byte
	err := Do(ctx, r.Config, func(ctx context.Context) error {
		var err error
		result, err = r.ViewCaller.CallContract(ctx, to, calldata, blockNumber)
		return err
	})
	return result, err
}

// RetryingBlockClock retries transport failures of the wrapped BlockClock
type RetryingBlockClock struct {
	BlockClock
	Config RetryConfig
}

func (r *RetryingBlockClock) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := Do(ctx, r.Config, func(ctx context.Context) error {
		var err error
		n, err = r.BlockClock.BlockNumber(ctx)
		return err
	})
	return n, err
}

func (r *RetryingBlockClock) BlockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := Do(ctx, r.Config, func(ctx context.Context) error {
		var err error
		ts, err = r.BlockClock.BlockTimestamp(ctx, blockNumber)
		return err
	})
	return ts, err
}

// WithRetry wraps every ViewCaller built by [factory]
func WithRetry(factory Factory[ViewCaller], cfg RetryConfig) Factory[ViewCaller] {
	return func(ctx context.Context, eid uint32) (ViewCaller, error) {
		v, err := factory(ctx, eid)
		if err != nil {
			return nil, err
		}
		return &RetryingViewCaller{ViewCaller: v, Config: cfg}, nil
	}
}

// WithClockRetry wraps every BlockClock built by [factory]
func WithClockRetry(factory Factory[BlockClock], cfg RetryConfig) Factory[BlockClock] {
	return func(ctx context.Context, eid uint32) (BlockClock, error) {
		c, err := factory(ctx, eid)
		if err != nil {
			return nil, err
		}
		return &RetryingBlockClock{BlockClock: c, Config: cfg}, nil
	}
}
