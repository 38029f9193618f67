// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"fmt"
	"strings"

	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DecodeError is returned for any command that is not a well formed LZRead command
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed command: %s: %s", e.Reason, e.Err)
	}
	return "malformed command: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(err error, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// DecodeHex decodes a hex encoded command. The 0x or 0X prefix is optional.
func DecodeHex(command string) (*Command, error) {
	if strings.HasPrefix(command, "0x") || strings.HasPrefix(command, "0X") {
		command = command[2:]
	}
	raw, err := hexutil.Decode("0x" + command)
	if err != nil {
		return nil, decodeErr(err, "invalid hex")
	}
	return Decode(raw)
}

// Decode parses [raw] into a Command. Encode(Decode(raw)) == raw for every
// accepted input.
func Decode(raw []byte) (*Command, error) {
	p := wrappers.Packer{Bytes: raw}

	cmd := &Command{
		Version:         p.UnpackShort(),
		AppCommandLabel: p.UnpackShort(),
	}
	numRequests := p.UnpackShort()
	if p.Errored() {
		return nil, decodeErr(p.Err, "truncated command header")
	}
	if cmd.Version != CommandVersion {
		return nil, decodeErr(nil, "unsupported command version %d", cmd.Version)
	}

	cmd.Requests = make([]Request, 0, numRequests)
	for i := 0; i < int(numRequests); i++ {
		req, err := unpackRequest(&p)
		if err != nil {
			return nil, decodeErr(err, "request %d", i)
		}
		cmd.Requests = append(cmd.Requests, req)
	}

	if p.Offset < len(raw) {
		compute, err := unpackCompute(&p)
		if err != nil {
			return nil, decodeErr(err, "compute")
		}
		cmd.Compute = compute
	}
	return cmd, nil
}

func unpackRequest(p *wrappers.Packer) (Request, error) {
	label := p.UnpackShort()
	resolverType := ResolverType(p.UnpackShort())
	size := p.UnpackShort()
	payload := unpackBytes(p, int(size))
	if p.Errored() {
		return nil, p.Err
	}

	switch resolverType {
	case ResolverTypeSingleViewFunctionEVMCall:
		return unpackEVMCall(label, payload)
	default:
		return &UnknownRequest{
			RequestLabel: label,
			ResolverType: resolverType,
			Payload:      payload,
		}, nil
	}
}

func unpackEVMCall(label uint16, payload []byte) (*SingleViewFunctionEVMCall, error) {
	if len(payload) < evmCallFixedLen {
		return nil, fmt.Errorf("request size %d is smaller than %d", len(payload), evmCallFixedLen)
	}
	p := wrappers.Packer{Bytes: payload}
	req := &SingleViewFunctionEVMCall{
		RequestLabel:        label,
		TargetEID:           p.UnpackInt(),
		Flag:                TimestampBlockFlag(p.UnpackByte()),
		BlockNumOrTimestamp: p.UnpackLong(),
		BlockConfirmations:  p.UnpackShort(),
		To:                  common.BytesToAddress(unpackBytes(&p, common.AddressLength)),
	}
	req.CallData = unpackBytes(&p, len(payload)-p.Offset)
	if p.Errored() {
		return nil, p.Err
	}
	if err := checkFlag(req.Flag); err != nil {
		return nil, err
	}
	return req, nil
}

func unpackCompute(p *wrappers.Packer) (Compute, error) {
	version := p.UnpackByte()
	computeType := ComputeType(p.UnpackShort())
	if p.Errored() {
		return nil, p.Err
	}
	if version != ComputeVersion {
		return nil, fmt.Errorf("unsupported compute version %d", version)
	}

	switch computeType {
	case ComputeTypeSingleViewFunctionEVMCall:
		c := &ComputeEVM{
			Setting:             ComputeSetting(p.UnpackByte()),
			TargetEID:           p.UnpackInt(),
			Flag:                TimestampBlockFlag(p.UnpackByte()),
			BlockNumOrTimestamp: p.UnpackLong(),
			BlockConfirmations:  p.UnpackShort(),
			To:                  common.BytesToAddress(unpackBytes(p, common.AddressLength)),
		}
		if p.Errored() {
			return nil, p.Err
		}
		if excess := len(p.Bytes) - p.Offset; excess != 0 {
			return nil, fmt.Errorf("%d excess bytes after compute", excess)
		}
		if err := checkFlag(c.Flag); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return &UnknownCompute{
			ComputeVersion: version,
			ComputeType:    computeType,
			Payload:        unpackBytes(p, len(p.Bytes)-p.Offset),
		}, nil
	}
}

// unpackBytes copies [n] bytes so that decoded values never alias the input
func unpackBytes(p *wrappers.Packer, n int) []byte {
	b := p.UnpackFixedBytes(n)
	if p.Errored() {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func checkFlag(flag TimestampBlockFlag) error {
	if flag != FlagTimestamp && flag != FlagBlockNumber {
		return fmt.Errorf("invalid timestamp/block flag %d", flag)
	}
	return nil
}
