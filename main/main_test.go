// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnichain-devtools/lzread/chain"
	"github.com/omnichain-devtools/lzread/chain/evm/evmtest"
	"github.com/omnichain-devtools/lzread/client"
	"github.com/omnichain-devtools/lzread/codec"
	"github.com/omnichain-devtools/lzread/resolver"
	"github.com/omnichain-devtools/lzread/timemarker"
)

const testEID = 30101

var echoAddress = common.HexToAddress("0x00000000000000000000000000000000000000e1")

func run(t *testing.T, args ...string) (string, error) {
	root := newRootCommand()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func testCommand(flag codec.TimestampBlockFlag, value uint64, confirmations uint16) string {
	return (&codec.Command{
		Version:         codec.CommandVersion,
		AppCommandLabel: 1,
		Requests: []codec.Request{&codec.SingleViewFunctionEVMCall{
			TargetEID:           testEID,
			Flag:                flag,
			BlockNumOrTimestamp: value,
			BlockConfirmations:  confirmations,
			To:                  echoAddress,
			CallData:            []byte{0xaa},
		}},
	}).Hex()
}

// serveChain serves an echo contract over HTTP and returns the --chain flag
// pointing at it
func serveChain(t *testing.T) string {
	testChain := evmtest.NewChain(100, 100, 105, 110, 120)
	testChain.Deploy(echoAddress, func(calldata []byte, block uint64) ([]byte, error) {
		return append(calldata, byte(block)), nil
	})
	server, err := testChain.Server()
	require.NoError(t, err)
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})
	return fmt.Sprintf("--chain=%d=%s", testEID, httpServer.URL)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	assert.NoError(t, err)
	assert.Equal(t, "lzread@"+Version+"\n", out)
}

func TestExtractNeedsNoChain(t *testing.T) {
	assert := assert.New(t)

	out, err := run(t, "extract", testCommand(codec.FlagTimestamp, 103, 2))
	require.NoError(t, err)

	var markers resolver.TimeMarkers
	require.NoError(t, json.Unmarshal([]byte(out), &markers))
	assert.Empty(markers.BlockNumberTimeMarkers)
	assert.Equal([]timemarker.TimeMarker{{EID: testEID, BlockConfirmations: 2, Timestamp: 103}}, markers.TimestampTimeMarkers)
}

func TestResolveRequiresChains(t *testing.T) {
	_, err := run(t, "resolve", testCommand(codec.FlagBlockNumber, 2, 0))
	assert.ErrorContains(t, err, "no chains configured")
}

func TestResolve(t *testing.T) {
	chainFlag := serveChain(t)

	out, err := run(t, "resolve", chainFlag, "--log-level=error", testCommand(codec.FlagTimestamp, 103, 1))
	assert.NoError(t, err)
	assert.Equal(t, "0xaa03\n", out)
}

func TestResolveWithResolvedFile(t *testing.T) {
	assert := assert.New(t)
	chainFlag := serveChain(t)
	cmd := testCommand(codec.FlagTimestamp, 103, 1)

	out, err := run(t, "resolve-timestamps", chainFlag, cmd)
	require.NoError(t, err)
	var resolved []timemarker.ResolvedTimeMarker
	require.NoError(t, json.Unmarshal([]byte(out), &resolved))
	require.Len(t, resolved, 1)
	assert.Equal(uint64(3), resolved[0].BlockNumber)

	// block 4 does not match timestamp 103
	resolved[0].BlockNumber = 4
	b, err := json.Marshal(resolved)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "resolved.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))

	_, err = run(t, "resolve", chainFlag, "--resolved="+path, cmd)
	assert.Equal(exitUnconfirmed, exitCode(err))
}

func TestExitCode(t *testing.T) {
	tests := map[string]struct {
		err      error
		expected int
	}{
		"unresolvable": {
			err:      &resolver.UnresolvableCommandError{Err: &chain.RevertError{Reason: "boom"}},
			expected: exitUnresolvable,
		},
		"pruned history": {
			err:      &resolver.UnresolvableCommandError{Err: fmt.Errorf("couldn't get timestamp of block 1 on eid %d: %w", testEID, &chain.BlockNotFoundError{BlockNumber: 1})},
			expected: exitUnresolvable,
		},
		"remote unresolvable": {
			err:      fmt.Errorf("%w: boom", client.ErrUnresolvable),
			expected: exitUnresolvable,
		},
		"unconfirmed": {
			err:      &timemarker.InsufficientConfirmationsError{EID: testEID, BlockNumber: 4, Required: 3, Head: 5},
			expected: exitUnconfirmed,
		},
		"remote unconfirmed": {
			err:      fmt.Errorf("%w: head 5", client.ErrUnconfirmed),
			expected: exitUnconfirmed,
		},
		"malformed": {
			err:      &codec.DecodeError{Reason: "truncated request header"},
			expected: exitInvalid,
		},
		"remote invalid": {
			err:      client.ErrInvalidCommand,
			expected: exitInvalid,
		},
		"transport": {
			err:      errors.New("dial tcp: connection refused"),
			expected: exitFailed,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, exitCode(test.err))
		})
	}
}
