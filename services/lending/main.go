package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/config"
	"lendcore/core/events"
	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/observability"
	"lendcore/observability/logging"
	telemetry "lendcore/observability/otel"
	lendingserver "lendcore/services/lending/server"
	"lendcore/state/lendstate"
	"lendcore/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to the lendingd YAML config")
	flag.Parse()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, logCloser := logging.SetupWithOptions("lendingd", cfg.Environment, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("lendingd stopped", "error", err)
		_ = logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	logger.Info("lendingd starting", "config", cfg.Sanitized())

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "lendingd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	market, err := config.Load(cfg.MarketFile)
	if err != nil {
		return fmt.Errorf("load market: %w", err)
	}
	params, err := market.Params()
	if err != nil {
		return fmt.Errorf("market params: %w", err)
	}

	journal := lendingserver.NewJournal(0, logger)
	oracle := lending.NewStaticOracle()
	pauses := nativecommon.NewPauseSet()
	if market.Pauses.Lending {
		pauses.Set(lendingserver.ModuleName, true)
	}

	engine := lending.NewEngine(params)
	engine.SetState(lendstate.New(db))
	engine.SetOracle(oracle)
	engine.SetPauses(pauses)
	engine.SetLogger(logger.With("component", "lending"))
	engine.SetEmitter(events.Fanout{observability.Events(), journal})

	gate, err := lendingserver.NewRoleGate(cfg.Roles)
	if err != nil {
		return fmt.Errorf("roles: %w", err)
	}
	if err := bootstrapMarket(engine, oracle, market, cfg.Bootstrap); err != nil {
		return err
	}
	engine.SetAuthorizer(gate)

	service := lendingserver.New(engine, oracle, pauses, gate, logger)
	handler := service.Handler(lendingserver.RouterConfig{
		Auth: lendingserver.NewAuthenticator(lendingserver.AuthConfig{
			Disabled:   cfg.Auth.Disabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		}, logger),
		RateLimit: lendingserver.NewRateLimiter(lendingserver.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}),
		Journal: journal,
		Tracing: cfg.Telemetry.Traces,
	})
	if cfg.Auth.Disabled {
		logger.Warn("lendingd authentication disabled; callers are taken from the request header")
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", "addr", cfg.Listen)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "error", err)
			_ = srv.Close()
		}
		return nil
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func openDatabase(cfg Config) (storage.Database, error) {
	if cfg.InMemory {
		return storage.NewMemDB(), nil
	}
	path := filepath.Join(cfg.DataDir, "lending")
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(path)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return db, nil
}

// bootstrapMarket applies the market file with a one-off authorizer that
// admits only the bootstrap identity.
func bootstrapMarket(engine *lending.Engine, oracle *lending.StaticOracle, market *config.Market, bootstrap string) error {
	admin := common.Address{}
	if bootstrap != "" {
		parsed, err := config.ParseAddress(bootstrap)
		if err != nil {
			return fmt.Errorf("bootstrap_admin: %w", err)
		}
		admin = parsed
	}
	engine.SetAuthorizer(lending.AuthorizerFunc(func(caller common.Address, _ lending.Action, _ common.Address) bool {
		return caller == admin
	}))
	defer engine.SetAuthorizer(nil)
	if err := market.Apply(engine, oracle, admin); err != nil {
		return fmt.Errorf("apply market: %w", err)
	}
	return nil
}
