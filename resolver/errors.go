// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resolver

import (
	"errors"

	"github.com/omnichain-devtools/lzread/chain"
	"github.com/omnichain-devtools/lzread/timemarker"
)

// UnresolvableCommandError is returned when the state of a chain does not
// allow answering a command. Err holds the cause, such as a revert or a block
// the chain no longer serves.
type UnresolvableCommandError struct {
	Err error
}

func (e *UnresolvableCommandError) Error() string {
	return "command is unresolvable: " + e.Err.Error()
}

func (e *UnresolvableCommandError) Unwrap() error { return e.Err }

func normalize(err error) error {
	var (
		notFound  *chain.ContractNotFoundError
		revert    *chain.RevertError
		noBlock   *chain.BlockNotFoundError
		tooOld    *timemarker.TimestampBeforeFirstBlockError
		converted *UnresolvableCommandError
	)
	if errors.As(err, &converted) {
		return err
	}
	if errors.As(err, &notFound) || errors.As(err, &revert) || errors.As(err, &noBlock) || errors.As(err, &tooOld) {
		return &UnresolvableCommandError{Err: err}
	}
	return err
}
