// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"errors"
	"fmt"
	"math"

	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// CommandVersion is the only command version understood by the on-chain verifier
	CommandVersion uint16 = 1
	// ComputeVersion is the only compute version understood by the on-chain verifier
	ComputeVersion uint8 = 1

	commandHeaderLen = wrappers.ShortLen * 3
	requestHeaderLen = wrappers.ShortLen * 3
	computeHeaderLen = wrappers.ByteLen + wrappers.ShortLen

	// targetEid + timestampBlockFlag + blockNumOrTimestamp + blockConfirmations + to
	evmCallFixedLen = wrappers.IntLen + wrappers.ByteLen + wrappers.LongLen + wrappers.ShortLen + common.AddressLength
	// computeSetting + evmCallFixedLen
	evmComputeLen = wrappers.ByteLen + evmCallFixedLen
)

var (
	ErrTooManyRequests = errors.New("too many requests")
	ErrRequestTooLarge = errors.New("request payload too large")
)

// ResolverType tells how the payload of a request is interpreted
type ResolverType uint16

const (
	ResolverTypeSingleViewFunctionEVMCall ResolverType = 1
)

// ComputeType tells how the payload of a compute step is interpreted
type ComputeType uint16

const (
	ComputeTypeSingleViewFunctionEVMCall ComputeType = 1
)

// ComputeSetting selects which of lzMap and lzReduce run
type ComputeSetting uint8

const (
	OnlyMap ComputeSetting = iota
	OnlyReduce
	MapReduce
)

func (s ComputeSetting) Valid() bool { return s <= MapReduce }

func (s ComputeSetting) String() string {
	switch s {
	case OnlyMap:
		return "OnlyMap"
	case OnlyReduce:
		return "OnlyReduce"
	case MapReduce:
		return "MapReduce"
	default:
		return "Unknown"
	}
}

// TimestampBlockFlag tells whether a time reference is a timestamp or a block number
type TimestampBlockFlag uint8

const (
	FlagTimestamp   TimestampBlockFlag = 0
	FlagBlockNumber TimestampBlockFlag = 1
)

// Command is a decoded LZRead command: an ordered list of requests and an
// optional compute step. A Command must not be mutated after decoding.
type Command struct {
	Version         uint16
	AppCommandLabel uint16
	Requests        []Request
	// Compute is nil when the command has no compute step
	Compute Compute
}

// NewCommand returns a verified command of the current version
func NewCommand(appCommandLabel uint16, compute Compute, requests ...Request) (*Command, error) {
	c := &Command{
		Version:         CommandVersion,
		AppCommandLabel: appCommandLabel,
		Requests:        requests,
		Compute:         compute,
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return c, nil
}

// Verify fails unless [c] fits the wire format: at most 65535 requests, each
// with a payload of at most 65535 bytes. Every decoded command passes.
func (c *Command) Verify() error {
	if c.Version != CommandVersion {
		return fmt.Errorf("unsupported command version %d", c.Version)
	}
	if len(c.Requests) > math.MaxUint16 {
		return fmt.Errorf("%w: %d > %d", ErrTooManyRequests, len(c.Requests), math.MaxUint16)
	}
	for i, req := range c.Requests {
		if size := payloadSize(req); size > math.MaxUint16 {
			return fmt.Errorf("%w: request %d has %d bytes > %d", ErrRequestTooLarge, i, size, math.MaxUint16)
		}
	}
	return nil
}

func payloadSize(req Request) int {
	switch req := req.(type) {
	case *SingleViewFunctionEVMCall:
		return evmCallFixedLen + len(req.CallData)
	case *UnknownRequest:
		return len(req.Payload)
	default:
		return int(req.Header().RequestSize)
	}
}

// Encode returns the wire representation of [c]. Sizes are truncated to 16
// bits, so a command built in code must pass Verify first.
func (c *Command) Encode() []byte {
	size := commandHeaderLen
	encoded := make([][]byte, len(c.Requests))
	for i, req := range c.Requests {
		encoded[i] = req.Encode()
		size += len(encoded[i])
	}
	var compute []byte
	if c.Compute != nil {
		compute = c.Compute.Encode()
		size += len(compute)
	}

	p := wrappers.Packer{MaxSize: size, Bytes: make([]byte, 0, size)}
	p.PackShort(c.Version)
	p.PackShort(c.AppCommandLabel)
	p.PackShort(uint16(len(c.Requests)))
	for _, b := range encoded {
		p.PackFixedBytes(b)
	}
	if compute != nil {
		p.PackFixedBytes(compute)
	}
	return p.Bytes
}

// Hex returns the 0x-prefixed wire representation of [c]
func (c *Command) Hex() string {
	return hexutil.Encode(c.Encode())
}

// RequestHeader precedes every request payload
type RequestHeader struct {
	RequestLabel uint16
	ResolverType ResolverType
	RequestSize  uint16
}

// Request is one read in a command. Implementations are
// *SingleViewFunctionEVMCall and *UnknownRequest.
type Request interface {
	Header() RequestHeader
	// Encode returns the header followed by the payload
	Encode() []byte
}

var (
	_ Request = (*SingleViewFunctionEVMCall)(nil)
	_ Request = (*UnknownRequest)(nil)
)

// SingleViewFunctionEVMCall reads the result of calling [CallData] on [To]
// on chain [TargetEID] at the given block number or timestamp.
type SingleViewFunctionEVMCall struct {
	RequestLabel        uint16
	TargetEID           uint32
	Flag                TimestampBlockFlag
	BlockNumOrTimestamp uint64
	BlockConfirmations  uint16
	To                  common.Address
	CallData            []byte
}

func (r *SingleViewFunctionEVMCall) IsBlockNumber() bool { return r.Flag == FlagBlockNumber }

func (r *SingleViewFunctionEVMCall) Header() RequestHeader {
	return RequestHeader{
		RequestLabel: r.RequestLabel,
		ResolverType: ResolverTypeSingleViewFunctionEVMCall,
		RequestSize:  uint16(evmCallFixedLen + len(r.CallData)),
	}
}

func (r *SingleViewFunctionEVMCall) Encode() []byte {
	header := r.Header()
	size := requestHeaderLen + int(header.RequestSize)
	p := wrappers.Packer{MaxSize: size, Bytes: make([]byte, 0, size)}
	packRequestHeader(&p, header)
	p.PackInt(r.TargetEID)
	p.PackByte(byte(r.Flag))
	p.PackLong(r.BlockNumOrTimestamp)
	p.PackShort(r.BlockConfirmations)
	p.PackFixedBytes(r.To[:])
	p.PackFixedBytes(r.CallData)
	return p.Bytes
}

// UnknownRequest keeps the raw payload of a request whose resolver type this
// package does not interpret, so that a command still re-encodes byte for byte.
type UnknownRequest struct {
	RequestLabel uint16
	ResolverType ResolverType
	Payload      []byte
}

func (r *UnknownRequest) Header() RequestHeader {
	return RequestHeader{
		RequestLabel: r.RequestLabel,
		ResolverType: r.ResolverType,
		RequestSize:  uint16(len(r.Payload)),
	}
}

func (r *UnknownRequest) Encode() []byte {
	size := requestHeaderLen + len(r.Payload)
	p := wrappers.Packer{MaxSize: size, Bytes: make([]byte, 0, size)}
	packRequestHeader(&p, r.Header())
	p.PackFixedBytes(r.Payload)
	return p.Bytes
}

func packRequestHeader(p *wrappers.Packer, h RequestHeader) {
	p.PackShort(h.RequestLabel)
	p.PackShort(uint16(h.ResolverType))
	p.PackShort(h.RequestSize)
}

// ComputeHeader precedes the compute payload
type ComputeHeader struct {
	ComputeVersion uint8
	ComputeType    ComputeType
}

// Compute is the optional map/reduce step of a command. Implementations are
// *ComputeEVM and *UnknownCompute.
type Compute interface {
	Header() ComputeHeader
	Encode() []byte
}

var (
	_ Compute = (*ComputeEVM)(nil)
	_ Compute = (*UnknownCompute)(nil)
)

// ComputeEVM runs lzMap/lzReduce on contract [To] on chain [TargetEID]
type ComputeEVM struct {
	Setting             ComputeSetting
	TargetEID           uint32
	Flag                TimestampBlockFlag
	BlockNumOrTimestamp uint64
	BlockConfirmations  uint16
	To                  common.Address
}

func (c *ComputeEVM) IsBlockNumber() bool { return c.Flag == FlagBlockNumber }

func (c *ComputeEVM) Header() ComputeHeader {
	return ComputeHeader{
		ComputeVersion: ComputeVersion,
		ComputeType:    ComputeTypeSingleViewFunctionEVMCall,
	}
}

func (c *ComputeEVM) Encode() []byte {
	size := computeHeaderLen + evmComputeLen
	p := wrappers.Packer{MaxSize: size, Bytes: make([]byte, 0, size)}
	packComputeHeader(&p, c.Header())
	p.PackByte(byte(c.Setting))
	p.PackInt(c.TargetEID)
	p.PackByte(byte(c.Flag))
	p.PackLong(c.BlockNumOrTimestamp)
	p.PackShort(c.BlockConfirmations)
	p.PackFixedBytes(c.To[:])
	return p.Bytes
}

// UnknownCompute keeps everything after the compute header when the compute
// type is not interpreted by this package.
type UnknownCompute struct {
	ComputeVersion uint8
	ComputeType    ComputeType
	Payload        []byte
}

func (c *UnknownCompute) Header() ComputeHeader {
	return ComputeHeader{ComputeVersion: c.ComputeVersion, ComputeType: c.ComputeType}
}

func (c *UnknownCompute) Encode() []byte {
	size := computeHeaderLen + len(c.Payload)
	p := wrappers.Packer{MaxSize: size, Bytes: make([]byte, 0, size)}
	packComputeHeader(&p, c.Header())
	p.PackFixedBytes(c.Payload)
	return p.Bytes
}

func packComputeHeader(p *wrappers.Packer, h ComputeHeader) {
	p.PackByte(h.ComputeVersion)
	p.PackShort(uint16(h.ComputeType))
}
