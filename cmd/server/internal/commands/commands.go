package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const shutdownGrace = 10 * time.Second

type Globals struct {
	Debug   bool
	Version string
}

// configureHTTPServer bounds request and header sizes. The API only serves
// small JSON bodies so the read and write timeouts are short.
func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// serve runs srv until it fails or ctx is cancelled, then drains open
// connections. TLS is used when both cert and key are set.
func serve(ctx context.Context, srv *http.Server, cert, key string, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if cert != "" && key != "" {
			log.Info().Str("addr", srv.Addr).Msg("Starting HTTPS server")
			errCh <- srv.ListenAndServeTLS(cert, key)
			return
		}
		log.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
