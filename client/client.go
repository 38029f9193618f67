// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/omnichain-devtools/lzread/resolver"
	"github.com/omnichain-devtools/lzread/service"
	"github.com/omnichain-devtools/lzread/timemarker"
)

var (
	// ErrInvalidCommand is returned for commands the service cannot decode or
	// does not support
	ErrInvalidCommand = errors.New("invalid command")
	// ErrUnresolvable is returned when a call target is missing or reverts
	ErrUnresolvable = errors.New("command is unresolvable")
	// ErrUnconfirmed is returned when time markers are not confirmed enough or
	// do not match the chain
	ErrUnconfirmed = errors.New("time markers not confirmed")
)

// Client defines lzread client operations.
type Client interface {
	// ExtractTimeMarkers returns the time markers of a command
	ExtractTimeMarkers(ctx context.Context, command string) (resolver.TimeMarkers, error)

	// ResolveTimeMarkers finds the block of every timestamp marker
	ResolveTimeMarkers(ctx context.Context, markers []timemarker.TimeMarker) ([]timemarker.ResolvedTimeMarker, error)

	// ResolveCommand answers a command at the given blocks
	ResolveCommand(ctx context.Context, command string, resolved []timemarker.ResolvedTimeMarker) ([]byte, error)

	// Resolve answers a command, resolving its timestamp markers first
	Resolve(ctx context.Context, command string) ([]byte, error)
}

// New creates a new client object for the service at [uri], e.g.
// http://127.0.0.1:9650
func New(uri string) Client {
	return &client{
		endpoint: strings.TrimSuffix(uri, "/") + service.RPCEndpoint,
		http:     http.DefaultClient,
	}
}

type client struct {
	endpoint string
	http     *http.Client
}

func (cli *client) ExtractTimeMarkers(ctx context.Context, command string) (resolver.TimeMarkers, error) {
	resp := new(service.ExtractTimeMarkersReply)
	err := cli.send(ctx,
		"lzread.extractTimeMarkers",
		&service.CommandArgs{Command: command},
		resp,
	)
	return resp.TimeMarkers, err
}

func (cli *client) ResolveTimeMarkers(ctx context.Context, markers []timemarker.TimeMarker) ([]timemarker.ResolvedTimeMarker, error) {
	resp := new(service.ResolveTimeMarkersReply)
	err := cli.send(ctx,
		"lzread.resolveTimeMarkers",
		&service.ResolveTimeMarkersArgs{TimeMarkers: markers},
		resp,
	)
	if err != nil {
		return nil, err
	}
	return resp.ResolvedTimeMarkers, nil
}

func (cli *client) ResolveCommand(ctx context.Context, command string, resolved []timemarker.ResolvedTimeMarker) ([]byte, error) {
	resp := new(service.PayloadReply)
	err := cli.send(ctx,
		"lzread.resolveCommand",
		&service.ResolveCommandArgs{Command: command, ResolvedTimeMarkers: resolved},
		resp,
	)
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

func (cli *client) Resolve(ctx context.Context, command string) ([]byte, error) {
	resp := new(service.PayloadReply)
	err := cli.send(ctx,
		"lzread.resolve",
		&service.CommandArgs{Command: command},
		resp,
	)
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// send posts a JSON-RPC 2.0 request. Failed calls are answered with status
// 400, so the body is decoded whatever the status.
func (cli *client) send(ctx context.Context, method string, args interface{}, reply interface{}) error {
	body, err := json2.EncodeClientRequest(method, args)
	if err != nil {
		return fmt.Errorf("couldn't encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cli.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := cli.http.Do(req)
	if err != nil {
		return fmt.Errorf("couldn't send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("%s: received status code %d", method, resp.StatusCode)
	}
	return fromRPCError(json2.DecodeClientResponse(resp.Body, reply))
}

func fromRPCError(err error) error {
	var rpcErr *json2.Error
	if !errors.As(err, &rpcErr) {
		return err
	}
	switch rpcErr.Code {
	case service.CodeInvalidCommand:
		return fmt.Errorf("%w: %s", ErrInvalidCommand, rpcErr.Message)
	case service.CodeUnresolvable:
		return fmt.Errorf("%w: %s", ErrUnresolvable, rpcErr.Message)
	case service.CodeUnconfirmed:
		return fmt.Errorf("%w: %s", ErrUnconfirmed, rpcErr.Message)
	default:
		return err
	}
}
