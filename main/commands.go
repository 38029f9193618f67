// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/omnichain-devtools/lzread/service"
	"github.com/omnichain-devtools/lzread/timemarker"
)

const resolvedKey = "resolved"

func newExtractCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <command>",
		Short: "Prints the time markers of a command without reading any chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			engine, err := newEngine(cmd, cfg, true)
			if err != nil {
				return err
			}
			markers, err := engine.ExtractTimeMarkers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, markers)
		},
	}
}

func newResolveTimestampsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve-timestamps <command>",
		Short: "Prints the block each timestamp marker of a command resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			engine, err := newEngine(cmd, cfg, false)
			if err != nil {
				return err
			}
			markers, err := engine.ExtractTimeMarkers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			resolved, err := engine.ResolveTimeMarkers(cmd.Context(), markers.TimestampTimeMarkers)
			if err != nil {
				return err
			}
			return printJSON(cmd, resolved)
		},
	}
}

func newResolveCommand() *cobra.Command {
	resolve := &cobra.Command{
		Use:   "resolve <command>",
		Short: "Prints the payload answering a command",
		Long: "Prints the payload answering a command. Timestamp markers are resolved " +
			"against the chains unless --resolved names a file of resolved markers, " +
			"as printed by resolve-timestamps.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			engine, err := newEngine(cmd, cfg, false)
			if err != nil {
				return err
			}

			var payload []byte
			path, _ := cmd.Flags().GetString(resolvedKey)
			if path == "" {
				payload, err = engine.Resolve(cmd.Context(), args[0])
			} else {
				var resolved []timemarker.ResolvedTimeMarker
				if resolved, err = readResolved(path); err != nil {
					return err
				}
				payload, err = engine.ResolveCommand(cmd.Context(), args[0], resolved)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(payload))
			return nil
		},
	}
	resolve.Flags().String(resolvedKey, "", "JSON file of resolved timestamp markers")
	return resolve
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the resolver over JSON-RPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireChains(); err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			r, err := newCommandResolver(cfg, registry)
			if err != nil {
				return err
			}
			handler, err := service.NewHandler(r, registry)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return service.Serve(ctx, cfg.ListenAddress, handler)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s@%s\n", Name, Version)
		},
	}
}

func readResolved(path string) ([]timemarker.ResolvedTimeMarker, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var resolved []timemarker.ResolvedTimeMarker
	if err := json.Unmarshal(b, &resolved); err != nil {
		return nil, fmt.Errorf("couldn't parse resolved time markers in %s: %w", path, err)
	}
	return resolved, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
