// Command gateway starts the LLM reverse-proxy gateway: it loads
// configuration from the environment, wires the transport selector and
// continuation engine, and serves the router until a termination signal is
// received. Grounded on go-core-stack/mcp-auth-proxy's main.go: zerolog
// global setup, a plain http.Server built from config timeouts, and a
// signal-driven graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/llmgateway/gateway/internal/config"
	"github.com/llmgateway/gateway/internal/gemini"
	"github.com/llmgateway/gateway/internal/route"
	"github.com/llmgateway/gateway/internal/server"
	"github.com/llmgateway/gateway/internal/transport/httpclient"
	"github.com/llmgateway/gateway/internal/transport/rawsocket"
	"github.com/llmgateway/gateway/internal/transport/selector"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	log.Logger = log.Level(level)

	raw := rawsocket.New(rawsocket.Options{})
	highLevel := httpclient.New(httpclient.Options{})
	sel := selector.New(raw, highLevel, cfg.AggressiveFallback)
	routes := route.NewTable(cfg.DefaultDstURL)
	engine := gemini.New(cfg.GeminiSettings)

	handler := server.New(cfg, routes, sel, engine, log.Logger)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("listen_addr", cfg.ListenAddr).
			Strs("presets", routes.IDs()).
			Msg("starting llmgateway")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("gateway server exited unexpectedly")
		}
	}()

	waitForShutdown(context.Background(), httpServer, cfg.GracefulShutdownTimeout)
}

func waitForShutdown(ctx context.Context, srv *http.Server, timeout time.Duration) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop

	log.Info().Msg("shutting down llmgateway")

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed; forcing close")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("forced close failed")
		}
	}

	log.Info().Msg("gateway stopped")
}
