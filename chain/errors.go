// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ContractNotFoundError is returned when the call target has no code at the
// requested block
type ContractNotFoundError struct {
	Address     common.Address
	BlockNumber uint64
}

func (e *ContractNotFoundError) Error() string {
	return fmt.Sprintf("contract %s not found at block %d", e.Address, e.BlockNumber)
}

// RevertError is returned when a view call reverts. Reason is decoded from
// Error(string) or Panic(uint256) data when possible.
type RevertError struct {
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

// BlockNotFoundError is returned when the chain cannot serve a historical block
type BlockNotFoundError struct {
	BlockNumber uint64
}

func (e *BlockNotFoundError) Error() string {
	return fmt.Sprintf("block %d not found", e.BlockNumber)
}

// IsChainStateError reports whether [err] describes the state of the chain
// rather than a transport failure. Such errors are deterministic for a given
// block and are never retried.
func IsChainStateError(err error) bool {
	var (
		notFound      *ContractNotFoundError
		revert        *RevertError
		blockNotFound *BlockNotFoundError
	)
	return errors.As(err, &notFound) || errors.As(err, &revert) || errors.As(err, &blockNotFound)
}
