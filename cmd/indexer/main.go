// Main indexer daemon.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kantorcodes/evm-indexer/internal/alert"
	"github.com/kantorcodes/evm-indexer/internal/chain"
	"github.com/kantorcodes/evm-indexer/internal/ingestion"
	"github.com/kantorcodes/evm-indexer/internal/store"
	"github.com/kantorcodes/evm-indexer/internal/util"
	"github.com/kantorcodes/evm-indexer/pkg/config"
)

const serviceName = "evm-indexer"

func main() {
	logger := util.InitLogger(serviceName)
	logger.Info().Msg("starting evm indexer")

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chainTransport, err := chain.NewTransport(ctx, cfg.RPCURLs, cfg.StaleThreshold, cfg.HealthInterval, cfg.MaxRetries, *logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize rpc transport")
	}
	defer chainTransport.Close()
	logger.Info().Strs("rpc_urls", cfg.RPCURLs).Msg("initialized rpc transport")

	go chainTransport.StartHealthMonitor(ctx)
	defer chainTransport.Stop()

	st, err := store.New(ctx, cfg.DSN(), *logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer st.Close()
	logger.Info().Str("db_host", cfg.DBHost).Str("db_name", cfg.DBName).Msg("connected to store")

	alerter, err := alert.New(cfg.NATSURL, *logger)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to connect alerter, continuing without alerting")
		alerter = nil
	} else {
		defer alerter.Close()
	}

	loop := ingestion.New(chainTransport, st, alerter, cfg.PollInterval, cfg.ErrorBackoff, *logger)

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddress,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info().Str("address", cfg.MetricsAddress).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		errChan <- loop.Run(ctx)
	}()

	var loopErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
		loopErr = <-errChan
	case loopErr = <-errChan:
		if loopErr != nil {
			logger.Error().Err(loopErr).Msg("ingestion loop halted with fatal error")
		}
		stop()
	}

	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
}
