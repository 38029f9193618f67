// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package service exposes the command resolver over JSON-RPC 2.0.
package service

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/rpc/v2/json2"
	log "github.com/inconshreveable/log15"

	"github.com/omnichain-devtools/lzread/codec"
	"github.com/omnichain-devtools/lzread/resolver"
	"github.com/omnichain-devtools/lzread/timemarker"
)

// Name is the JSON-RPC service name, methods are called as lzread.<method>
const Name = "lzread"

// Error codes of failed calls, outside the range reserved by JSON-RPC
const (
	// The command is malformed or uses unsupported types and settings
	CodeInvalidCommand json2.ErrorCode = -32001
	// A call target is missing or reverted at the requested blocks
	CodeUnresolvable json2.ErrorCode = -32002
	// Time markers are not confirmed enough or not consistent with the chain
	CodeUnconfirmed json2.ErrorCode = -32003
)

type Service struct {
	resolver *resolver.CommandResolver
}

func NewService(r *resolver.CommandResolver) *Service {
	return &Service{resolver: r}
}

type CommandArgs struct {
	Command string `json:"command"`
}

type ExtractTimeMarkersReply struct {
	resolver.TimeMarkers
}

// ExtractTimeMarkers returns the time markers of a command
func (s *Service) ExtractTimeMarkers(_ *http.Request, args *CommandArgs, reply *ExtractTimeMarkersReply) error {
	log.Debug("lzread: ExtractTimeMarkers called")

	markers, err := s.resolver.ExtractTimeMarkers(args.Command)
	if err != nil {
		return toRPCError(err)
	}
	reply.TimeMarkers = markers
	return nil
}

type ResolveTimeMarkersArgs struct {
	TimeMarkers []timemarker.TimeMarker `json:"timeMarkers"`
}

type ResolveTimeMarkersReply struct {
	ResolvedTimeMarkers []timemarker.ResolvedTimeMarker `json:"resolvedTimeMarkers"`
}

// ResolveTimeMarkers finds the block of every timestamp marker
func (s *Service) ResolveTimeMarkers(r *http.Request, args *ResolveTimeMarkersArgs, reply *ResolveTimeMarkersReply) error {
	log.Debug("lzread: ResolveTimeMarkers called", "count", len(args.TimeMarkers))

	resolved, err := s.resolver.ResolveTimeMarkers(r.Context(), args.TimeMarkers)
	if err != nil {
		return toRPCError(err)
	}
	reply.ResolvedTimeMarkers = resolved
	return nil
}

type ResolveCommandArgs struct {
	Command             string                          `json:"command"`
	ResolvedTimeMarkers []timemarker.ResolvedTimeMarker `json:"resolvedTimeMarkers"`
}

type PayloadReply struct {
	Payload hexutil.Bytes `json:"payload"`
}

// ResolveCommand answers a command at the given blocks of its timestamp markers
func (s *Service) ResolveCommand(r *http.Request, args *ResolveCommandArgs, reply *PayloadReply) error {
	log.Debug("lzread: ResolveCommand called")

	payload, err := s.resolver.ResolveCommand(r.Context(), args.Command, args.ResolvedTimeMarkers)
	if err != nil {
		return toRPCError(err)
	}
	reply.Payload = payload
	return nil
}

// Resolve answers a command, resolving its timestamp markers first
func (s *Service) Resolve(r *http.Request, args *CommandArgs, reply *PayloadReply) error {
	log.Debug("lzread: Resolve called")

	payload, err := s.resolver.Resolve(r.Context(), args.Command)
	if err != nil {
		return toRPCError(err)
	}
	reply.Payload = payload
	return nil
}

func toRPCError(err error) error {
	code, ok := errorCode(err)
	if !ok {
		return err
	}
	return &json2.Error{Code: code, Message: err.Error()}
}

func errorCode(err error) (json2.ErrorCode, bool) {
	var (
		decodeErr    *codec.DecodeError
		unsupported  *timemarker.UnsupportedResolverTypeError
		badCompute   *timemarker.UnsupportedComputeTypeError
		badSetting   *timemarker.InvalidComputeSettingError
		missing      *timemarker.MissingResolvedTimeMarkerError
		unresolvable *resolver.UnresolvableCommandError
		unconfirmed  *timemarker.InsufficientConfirmationsError
		inconsistent *timemarker.InconsistentTimeMarkerError
	)
	switch {
	case errors.As(err, &unresolvable):
		return CodeUnresolvable, true
	case errors.As(err, &unconfirmed), errors.As(err, &inconsistent):
		return CodeUnconfirmed, true
	case errors.As(err, &decodeErr),
		errors.As(err, &unsupported),
		errors.As(err, &badCompute),
		errors.As(err, &badSetting),
		errors.As(err, &missing):
		return CodeInvalidCommand, true
	default:
		return 0, false
	}
}
