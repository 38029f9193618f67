// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package evmtest serves an in-memory EVM chain over the Ethereum JSON-RPC
// API, enough of it for the read engine to run against in tests.
package evmtest

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

var errHeaderNotFound = errors.New("header not found")

// Contract answers a view call made at [blockNumber]
type Contract func(calldata []byte, blockNumber uint64) ([]byte, error)

// Chain is an in-memory chain. Block n has timestamp timestamps[n-1].
type Chain struct {
	lock       sync.RWMutex
	timestamps []uint64
	contracts  map[common.Address]Contract
	calls      map[common.Address]int
}

func NewChain(timestamps ...uint64) *Chain {
	return &Chain{
		timestamps: timestamps,
		contracts:  make(map[common.Address]Contract),
		calls:      make(map[common.Address]int),
	}
}

// Deploy installs [contract] at [address] for every block
func (c *Chain) Deploy(address common.Address, contract Contract) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.contracts[address] = contract
}

// Mine appends blocks with the given timestamps
func (c *Chain) Mine(timestamps ...uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.timestamps = append(c.timestamps, timestamps...)
}

func (c *Chain) Head() uint64 {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return uint64(len(c.timestamps))
}

// Calls returns how many view calls reached [address]
func (c *Chain) Calls(address common.Address) int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.calls[address]
}

// Server returns a JSON-RPC server for the chain. It can be mounted on an
// HTTP server or dialed in process.
func (c *Chain) Server() (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &ethAPI{chain: c}); err != nil {
		return nil, err
	}
	return server, nil
}

// Client returns an in-process client for the chain
func (c *Chain) Client() (*ethclient.Client, error) {
	server, err := c.Server()
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(rpc.DialInProc(server)), nil
}

func (c *Chain) blockNumber(number rpc.BlockNumber) (uint64, bool) {
	head := uint64(len(c.timestamps))
	if number < 0 {
		return head, head > 0
	}
	n := uint64(number)
	return n, n >= 1 && n <= head
}

// Revert returns an error the node reports as a revert carrying [data]
func Revert(data []byte) error {
	return &revertError{data: data}
}

// RevertReason returns an error the node reports as revert("reason")
func RevertReason(reason string) error {
	packed, err := abi.Arguments{{Type: mustNewType("string")}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return Revert(append(selector, packed...))
}

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

type revertError struct {
	data []byte
}

func (e *revertError) Error() string          { return "execution reverted" }
func (e *revertError) ErrorCode() int         { return 3 }
func (e *revertError) ErrorData() interface{} { return hexutil.Encode(e.data) }

type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
}

func (a callArgs) calldata() []byte {
	if len(a.Input) > 0 {
		return a.Input
	}
	return a.Data
}

type ethAPI struct {
	chain *Chain
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(1))
}

func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.chain.Head())
}

func (api *ethAPI) GetBlockByNumber(number rpc.BlockNumber, _ bool) (*types.Header, error) {
	api.chain.lock.RLock()
	defer api.chain.lock.RUnlock()

	n, ok := api.chain.blockNumber(number)
	if !ok {
		return nil, nil
	}
	return &types.Header{
		Number:     new(big.Int).SetUint64(n),
		Time:       api.chain.timestamps[n-1],
		Difficulty: new(big.Int),
	}, nil
}

func (api *ethAPI) GetCode(address common.Address, number rpc.BlockNumber) (hexutil.Bytes, error) {
	api.chain.lock.RLock()
	defer api.chain.lock.RUnlock()

	if _, ok := api.chain.blockNumber(number); !ok {
		return nil, errHeaderNotFound
	}
	if _, ok := api.chain.contracts[address]; !ok {
		return hexutil.Bytes{}, nil
	}
	return hexutil.Bytes{0x60, 0x80, 0x60, 0x40}, nil
}

func (api *ethAPI) Call(args callArgs, number rpc.BlockNumber) (hexutil.Bytes, error) {
	api.chain.lock.Lock()
	n, ok := api.chain.blockNumber(number)
	var contract Contract
	if ok && args.To != nil {
		contract = api.chain.contracts[*args.To]
		api.chain.calls[*args.To]++
	}
	api.chain.lock.Unlock()

	if !ok {
		return nil, errHeaderNotFound
	}
	if contract == nil {
		return hexutil.Bytes{}, nil
	}
	return contract(args.calldata(), n)
}
