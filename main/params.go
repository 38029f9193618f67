// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"os"

	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/omnichain-devtools/lzread/chain"
	"github.com/omnichain-devtools/lzread/chain/evm"
	"github.com/omnichain-devtools/lzread/client"
	"github.com/omnichain-devtools/lzread/config"
	"github.com/omnichain-devtools/lzread/resolver"
	"github.com/omnichain-devtools/lzread/timemarker"
)

const endpointKey = "endpoint"

// loadConfig reads the config of [cmd] from its flags, the environment and
// the config file, and sets the log level
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := config.NewViper()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, err
	}

	log.Root().SetHandler(log.LvlFilterHandler(
		cfg.Level(),
		log.StreamHandler(os.Stderr, log.TerminalFormat()),
	))
	return cfg, nil
}

// newCommandResolver wires the chain clients of [cfg] into a resolver.
// Clients are dialed on first use and every chain read is retried.
func newCommandResolver(cfg config.Config, registerer prometheus.Registerer) (*resolver.CommandResolver, error) {
	clients, err := chain.Memoize(
		evm.NewFactory(cfg.RPCURLs()),
		cfg.FactoryCacheSize,
		"lzread_chain_clients",
		registerer,
	)
	if err != nil {
		return nil, err
	}

	retry := cfg.Retry
	retry.OnRetry = func(attempt uint64, err error) bool {
		log.Warn("retrying chain read", "attempt", attempt, "err", err)
		return true
	}
	return resolver.NewCommandResolver(
		chain.WithRetry(evm.ViewCallers(clients), retry),
		chain.WithClockRetry(evm.BlockClocks(clients), retry),
		registerer,
	)
}

// newEngine returns a client of the lzread service at --endpoint, or a
// resolver reading the configured chains directly when it is not set.
// Offline engines do not need any chain.
func newEngine(cmd *cobra.Command, cfg config.Config, offline bool) (client.Client, error) {
	if endpoint, _ := cmd.Flags().GetString(endpointKey); endpoint != "" {
		log.Debug("using remote resolver", "endpoint", endpoint)
		return client.New(endpoint), nil
	}
	if !offline {
		if err := cfg.RequireChains(); err != nil {
			return nil, err
		}
	}
	r, err := newCommandResolver(cfg, prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	return &local{resolver: r}, nil
}

// local runs commands in process
type local struct {
	resolver *resolver.CommandResolver
}

func (l *local) ExtractTimeMarkers(_ context.Context, command string) (resolver.TimeMarkers, error) {
	return l.resolver.ExtractTimeMarkers(command)
}

func (l *local) ResolveTimeMarkers(ctx context.Context, markers []timemarker.TimeMarker) ([]timemarker.ResolvedTimeMarker, error) {
	return l.resolver.ResolveTimeMarkers(ctx, markers)
}

func (l *local) ResolveCommand(ctx context.Context, command string, resolved []timemarker.ResolvedTimeMarker) ([]byte, error) {
	return l.resolver.ResolveCommand(ctx, command, resolved)
}

func (l *local) Resolve(ctx context.Context, command string) ([]byte, error) {
	return l.resolver.Resolve(ctx, command)
}
