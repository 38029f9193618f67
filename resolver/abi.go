// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resolver

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	lzMapMethod    = "lzMap"
	lzReduceMethod = "lzReduce"
)

// computeABI is the interface of a read compute contract
const computeABI = `[
	{
		"type": "function",
		"name": "lzMap",
		"stateMutability": "view",
		"inputs": [
			{"name": "_request", "type": "bytes"},
			{"name": "_response", "type": "bytes"}
		],
		"outputs": [{"name": "", "type": "bytes"}]
	},
	{
		"type": "function",
		"name": "lzReduce",
		"stateMutability": "view",
		"inputs": [
			{"name": "_cmd", "type": "bytes"},
			{"name": "_responses", "type": "bytes[]"}
		],
		"outputs": [{"name": "", "type": "bytes"}]
	}
]`

var ComputeABI = mustParseABI(computeABI)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}

// unpackBytes reads the single bytes output of [method]
func unpackBytes(method string, data []byte) ([]byte, error) {
	values, err := ComputeABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("couldn't unpack %s output: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s returned %d values", method, len(values))
	}
	out, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%s returned %T", method, values[0])
	}
	return out, nil
}
