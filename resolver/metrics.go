// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resolver

import (
	"errors"
	"time"

	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/omnichain-devtools/lzread/timemarker"
)

const (
	outcomeResolved     = "resolved"
	outcomeUnresolvable = "unresolvable"
	outcomeUnconfirmed  = "unconfirmed"
	outcomeInvalid      = "invalid"
	outcomeFailed       = "failed"
)

type metrics struct {
	commands *prometheus.CounterVec
	duration prometheus.Histogram
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lzread",
			Name:      "commands_total",
			Help:      "Number of commands resolved, by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lzread",
			Name:      "resolve_duration_seconds",
			Help:      "Time spent resolving a command",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(m.commands),
		registerer.Register(m.duration),
	)
	return m, errs.Err
}

func (m *metrics) observe(start time.Time, err error) {
	m.duration.Observe(time.Since(start).Seconds())
	m.commands.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	var (
		unresolvable *UnresolvableCommandError
		unconfirmed  *timemarker.InsufficientConfirmationsError
		inconsistent *timemarker.InconsistentTimeMarkerError
		unsupported  *timemarker.UnsupportedResolverTypeError
		badCompute   *timemarker.UnsupportedComputeTypeError
		badSetting   *timemarker.InvalidComputeSettingError
		missing      *timemarker.MissingResolvedTimeMarkerError
	)
	switch {
	case err == nil:
		return outcomeResolved
	case errors.As(err, &unresolvable):
		return outcomeUnresolvable
	case errors.As(err, &unconfirmed), errors.As(err, &inconsistent):
		return outcomeUnconfirmed
	case isDecodeError(err), errors.As(err, &unsupported), errors.As(err, &badCompute), errors.As(err, &badSetting), errors.As(err, &missing):
		return outcomeInvalid
	default:
		return outcomeFailed
	}
}
