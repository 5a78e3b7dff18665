package main

import (
	"context"
	"flag"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"nftmarket/config"
	"nftmarket/core/events"
	"nftmarket/gateway"
	"nftmarket/gateway/middleware"
	"nftmarket/indexer"
	"nftmarket/ledger"
	"nftmarket/native/market"
	"nftmarket/observability/logging"
	"nftmarket/registry"
	marketstate "nftmarket/state/market"
	"nftmarket/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "./market.toml", "Path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.ServiceName, cfg.Environment, logging.Options{
		Path:       cfg.LogPath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data dir", "error", err)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	custody := ledger.New(db)
	store := marketstate.NewStore(custody.StateDB())
	metadata := registry.New()

	feeCollector, err := cfg.FeeCollectorAddress()
	if err != nil {
		logger.Error("fee collector", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	idx, err := indexer.New(cfg.IndexPath, logger)
	if err != nil {
		logger.Error("open index", "error", err)
		os.Exit(1)
	}
	defer idx.Close()
	bus.Subscribe(idx)

	engine := market.NewEngine()
	engine.SetState(store)
	engine.SetLedger(custody)
	engine.SetRegistry(metadata)
	engine.SetFeeCollector(feeCollector)
	engine.SetRecordReserve(new(big.Int).SetUint64(cfg.RecordReserve))
	engine.SetEmitter(bus)

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   cfg.ServiceName,
		MetricsPrefix: "market",
		LogRequests:   true,
	}, logger)
	auth := middleware.NewAuthenticator(middleware.AuthConfig{HMACSecret: cfg.JWTSecret}, logger)
	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerSecond: cfg.RateLimitPerSec,
		Burst:             cfg.RateLimitBurst,
	})

	handler := gateway.NewRouter(gateway.Config{
		Engine:        engine,
		Store:         store,
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: obs,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("market gateway listening", "address", cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down market gateway")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
