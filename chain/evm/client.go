// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package evm reads EVM chains over JSON-RPC.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/inconshreveable/log15"

	"github.com/omnichain-devtools/lzread/chain"
)

var (
	_ chain.ViewCaller = (*Client)(nil)
	_ chain.BlockClock = (*Client)(nil)
)

// Backend is the subset of ethclient.Client the read engine needs
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Client serves view calls and block times of one EVM chain
type Client struct {
	eid     uint32
	backend Backend
	log     log.Logger
}

func NewClient(eid uint32, backend Backend) *Client {
	return &Client{
		eid:     eid,
		backend: backend,
		log:     log.New("module", "evm", "eid", eid),
	}
}

// Dial connects to the JSON-RPC endpoint at [url]
func Dial(ctx context.Context, eid uint32, url string) (*Client, error) {
	backend, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("couldn't dial eid %d: %w", eid, err)
	}
	return NewClient(eid, backend), nil
}

// CallContract performs eth_call pinned to [blockNumber]. A revert surfaces as
// *chain.RevertError. An empty result from an address without code surfaces
// as *chain.ContractNotFoundError.
func (c *Client) CallContract(ctx context.Context, to common.Address, calldata []byte, blockNumber uint64) ([]byte, error) {
	block := new(big.Int).SetUint64(blockNumber)
	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: calldata}, block)
	if err != nil {
		if revert, ok := parseCallError(err); ok {
			c.log.Debug("view call reverted", "to", to, "block", blockNumber, "reason", revert.Reason)
			return nil, revert
		}
		if isMissingBlock(err) {
			return nil, &chain.BlockNotFoundError{BlockNumber: blockNumber}
		}
		return nil, err
	}
	if len(result) > 0 {
		return result, nil
	}

	code, err := c.backend.CodeAt(ctx, to, block)
	if err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return nil, &chain.ContractNotFoundError{Address: to, BlockNumber: blockNumber}
	}
	return result, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}

func (c *Client) BlockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	header, err := c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	switch {
	case errors.Is(err, ethereum.NotFound):
		return 0, &chain.BlockNotFoundError{BlockNumber: blockNumber}
	case err != nil:
		return 0, err
	default:
		return header.Time, nil
	}
}
