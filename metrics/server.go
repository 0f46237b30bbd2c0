package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smallnest/educhat/log"
)

// StartServer serves /metrics for g on addr in the background and returns
// the server's shutdown function.
func StartServer(addr string, g prometheus.Gatherer, logger log.Logger) (shutdown func(context.Context) error) {
	logger = log.OrNoOp(logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error: %v", err)
		}
	}()

	return server.Shutdown
}
