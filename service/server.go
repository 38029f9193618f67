// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	cjson "github.com/ava-labs/avalanchego/utils/json"
	"github.com/gorilla/mux"
	"github.com/gorilla/rpc/v2"
	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omnichain-devtools/lzread/resolver"
)

const (
	RPCEndpoint     = "/rpc"
	MetricsEndpoint = "/metrics"
	HealthEndpoint  = "/health"

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// NewHandler routes JSON-RPC calls to the resolver and serves the metrics of
// [gatherer] next to them.
func NewHandler(r *resolver.CommandResolver, gatherer prometheus.Gatherer) (http.Handler, error) {
	server := rpc.NewServer()
	codec := cjson.NewCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")
	if err := server.RegisterService(NewService(r), Name); err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	router.Handle(RPCEndpoint, server).Methods(http.MethodPost)
	router.Handle(MetricsEndpoint, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc(HealthEndpoint, health).Methods(http.MethodGet)
	return router, nil
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"healthy":true}`))
}

// Serve listens on [address] until [ctx] is done
func Serve(ctx context.Context, address string, handler http.Handler) error {
	server := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info("serving lzread", "address", address)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down lzread")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
