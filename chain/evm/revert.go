// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/omnichain-devtools/lzread/chain"
)

var (
	// Error(string), emitted by revert() and require()
	errorSelector = crypto.Keccak256([]byte("Error(string)"))[:4]
	// Panic(uint256), emitted by assert() and checked arithmetic
	panicSelector = crypto.Keccak256([]byte("Panic(uint256)"))[:4]

	uint256Args = abi.Arguments{{Type: mustNewType("uint256")}}
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// DecodeRevert turns raw revert data into a RevertError
func DecodeRevert(data []byte) *chain.RevertError {
	revert := &chain.RevertError{Data: data}
	switch {
	case len(data) == 0:
		revert.Reason = "reverted with empty data"
	case len(data) >= 4 && bytes.Equal(data[:4], errorSelector):
		reason, err := abi.UnpackRevert(data)
		if err != nil {
			revert.Reason = fmt.Sprintf("undecodable reason 0x%x", data[4:])
		} else {
			revert.Reason = reason
		}
	case len(data) >= 4 && bytes.Equal(data[:4], panicSelector):
		revert.Reason = "panic: " + decodePanicCode(data[4:])
	case len(data) >= 4:
		revert.Reason = fmt.Sprintf("custom error 0x%x", data[:4])
	default:
		revert.Reason = fmt.Sprintf("malformed revert data 0x%x", data)
	}
	return revert
}

func decodePanicCode(data []byte) string {
	if len(data) == 0 {
		return "code 0x0"
	}
	values, err := uint256Args.Unpack(data)
	if err != nil || len(values) != 1 {
		return fmt.Sprintf("undecodable code 0x%x", data)
	}
	code, ok := values[0].(*big.Int)
	if !ok {
		return fmt.Sprintf("undecodable code 0x%x", data)
	}
	return "code 0x" + code.Text(16)
}

// parseCallError recognizes a revert in an eth_call error. Nodes report the
// revert data in the JSON-RPC error's data field; some omit it entirely.
func parseCallError(err error) (*chain.RevertError, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if encoded, ok := dataErr.ErrorData().(string); ok {
			if data, err := hexutil.Decode(encoded); err == nil {
				return DecodeRevert(data), true
			}
		}
	}
	msg := err.Error()
	i := strings.Index(msg, "execution reverted")
	if i < 0 {
		return nil, false
	}
	reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len("execution reverted"):], ":"))
	if reason == "" {
		reason = "reverted without data"
	}
	return &chain.RevertError{Reason: reason}, true
}

func isMissingBlock(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "header not found") || strings.Contains(msg, "unknown block")
}
