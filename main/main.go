// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omnichain-devtools/lzread/client"
	"github.com/omnichain-devtools/lzread/codec"
	"github.com/omnichain-devtools/lzread/config"
	"github.com/omnichain-devtools/lzread/resolver"
	"github.com/omnichain-devtools/lzread/timemarker"
)

const (
	Name    = "lzread"
	Version = "v0.3.0"
)

// Exit codes tell an operator whether to wait, rework the command or report
// a bug
const (
	exitFailed       = 1
	exitInvalid      = 2
	exitUnresolvable = 3
	exitUnconfirmed  = 4
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           Name,
		Short:         "Resolves LZRead commands against historical chain state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().AddFlagSet(config.BuildFlagSet())
	root.PersistentFlags().String(endpointKey, "", "URI of a running lzread service. Chains are read directly when empty")

	root.AddCommand(
		newExtractCommand(),
		newResolveTimestampsCommand(),
		newResolveCommand(),
		newServeCommand(),
		newVersionCommand(),
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %s\n", Name, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var (
		unresolvable *resolver.UnresolvableCommandError
		unconfirmed  *timemarker.InsufficientConfirmationsError
		inconsistent *timemarker.InconsistentTimeMarkerError
		decodeErr    *codec.DecodeError
		unsupported  *timemarker.UnsupportedResolverTypeError
		badCompute   *timemarker.UnsupportedComputeTypeError
		badSetting   *timemarker.InvalidComputeSettingError
		missing      *timemarker.MissingResolvedTimeMarkerError
	)
	switch {
	case errors.As(err, &unresolvable), errors.Is(err, client.ErrUnresolvable):
		return exitUnresolvable
	case errors.As(err, &unconfirmed), errors.As(err, &inconsistent), errors.Is(err, client.ErrUnconfirmed):
		return exitUnconfirmed
	case errors.As(err, &decodeErr),
		errors.As(err, &unsupported),
		errors.As(err, &badCompute),
		errors.As(err, &badSetting),
		errors.As(err, &missing),
		errors.Is(err, client.ErrInvalidCommand):
		return exitInvalid
	default:
		return exitFailed
	}
}
