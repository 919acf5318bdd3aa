package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/emperorhan/invoice-oracle/internal/admin"
	"github.com/emperorhan/invoice-oracle/internal/alert"
	"github.com/emperorhan/invoice-oracle/internal/bootstrap"
	"github.com/emperorhan/invoice-oracle/internal/config"
	"github.com/emperorhan/invoice-oracle/internal/keys"
	"github.com/emperorhan/invoice-oracle/internal/node"
	"github.com/emperorhan/invoice-oracle/internal/ocr"
	"github.com/emperorhan/invoice-oracle/internal/orchestrator"
	"github.com/emperorhan/invoice-oracle/internal/tracing"
)

const serviceName = "invoice-oracle"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("oracle exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("oracle shut down gracefully")
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting invoice-oracle",
		"ledger_backend", cfg.Ledger.Backend,
		"store_backend", cfg.Store.Backend,
		"orchestrator", cfg.Orchestrator.Enabled,
		"poll_interval", cfg.Orchestrator.PollInterval,
		"auto_audit", cfg.Orchestrator.AutoAudit,
		"admin_addr", cfg.AdminAddr(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Endpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	alerter := buildAlerter(cfg.Alert, logger)

	n, err := node.Open(ctx, cfg, logger, node.WithSinks(alert.NewAuditSink(alerter)))
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			logger.Warn("node close error", "error", err)
		}
	}()

	orgAuthority, err := applyBootstrap(ctx, cfg, n, logger)
	if err != nil {
		return err
	}

	var orch *orchestrator.Orchestrator
	if cfg.Orchestrator.Enabled {
		orch, err = buildOrchestrator(cfg, n, orgAuthority, alerter, logger)
		if err != nil {
			return err
		}
	}

	srvOpts := []admin.ServerOption{}
	if orch != nil {
		srvOpts = append(srvOpts, admin.WithHealthProvider(orch))
	}
	adminSrv := admin.NewServer(n.Client, n.Keys, logger, srvOpts...)
	limiter := admin.NewRateLimiter(logger)
	defer limiter.Stop()
	handler := limiter.Wrap(admin.AuditMiddleware(logger, adminSrv.Handler()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runAdminServer(gCtx, cfg.AdminAddr(), handler, logger)
	})

	if orch != nil {
		g.Go(func() error {
			return orch.Run(gCtx)
		})
	}

	if n.VRF != nil {
		g.Go(func() error {
			return n.VRF.Run(gCtx)
		})
	}

	g.Go(func() error {
		return n.RunPoolStats(gCtx, cfg.Store.PoolStatsInterval)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildAlerter(cfg config.AlertConfig, logger *slog.Logger) alert.Alerter {
	var alerters []alert.Alerter
	if cfg.SlackWebhookURL != "" {
		alerters = append(alerters, alert.NewSlackAlerter(cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		alerters = append(alerters, alert.NewWebhookAlerter(cfg.WebhookURL))
	}
	if len(alerters) == 0 {
		return &alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Cooldown, logger, alerters...)
}

// applyBootstrap applies the configured manifest and returns the
// organization authority the orchestrator serves.
func applyBootstrap(ctx context.Context, cfg *config.Config, n *node.Node, logger *slog.Logger) (solana.PublicKey, error) {
	authority := cfg.OrgAuthority()
	if cfg.Bootstrap.Manifest == "" {
		return authority, nil
	}
	manifest, err := bootstrap.Load(cfg.Bootstrap.Manifest)
	if err != nil {
		return authority, err
	}
	signer, err := keys.LoadKeypair(cfg.Bootstrap.AuthorityKeypairPath)
	if err != nil {
		return authority, err
	}
	if _, err := bootstrap.Apply(ctx, n.Client, signer, manifest, logger); err != nil {
		return authority, fmt.Errorf("apply bootstrap manifest: %w", err)
	}
	if authority.IsZero() {
		authority = signer.PublicKey()
	}
	return authority, nil
}

func buildOrchestrator(cfg *config.Config, n *node.Node, orgAuthority solana.PublicKey, alerter alert.Alerter, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	oracle, err := keys.LoadKeypair(cfg.Ledger.OracleKeypairPath)
	if err != nil {
		return nil, err
	}
	orgAddr, err := n.Keys.OrgConfig(orgAuthority)
	if err != nil {
		return nil, err
	}

	breaker := ocr.NewBreaker(ocr.BreakerConfig{
		FailureThreshold: cfg.OCR.BreakerFailures,
		OpenTimeout:      cfg.OCR.BreakerOpenAfter,
		OnStateChange: func(from, to ocr.BreakerState) {
			logger.Warn("ocr circuit breaker state changed", "from", from, "to", to)
		},
	})
	extractor := ocr.NewClient(ocr.Config{
		Endpoint:   cfg.OCR.Endpoint,
		APIKey:     cfg.OCR.APIKey,
		GatewayURL: cfg.OCR.GatewayURL,
		Timeout:    cfg.OCR.Timeout,
	}, ocr.NewLimiter(cfg.OCR.RateLimit, cfg.OCR.RateBurst), breaker, logger)

	logger.Info("orchestrator configured",
		"org_config", orgAddr.Key,
		"oracle", oracle.PublicKey(),
		"workers", cfg.Orchestrator.Workers,
	)
	return orchestrator.New(orchestrator.Config{
		OrgConfig:          orgAddr.Key,
		Interval:           cfg.Orchestrator.PollInterval,
		Workers:            cfg.Orchestrator.Workers,
		AutoAudit:          cfg.Orchestrator.AutoAudit,
		SuppressTTL:        cfg.Orchestrator.SuppressTTL,
		SuppressSize:       cfg.Orchestrator.SuppressSize,
		UnhealthyThreshold: cfg.Orchestrator.UnhealthyThreshold,
	}, n.Client, extractor, oracle,
		orchestrator.WithAlerter(alerter),
		orchestrator.WithLogger(logger),
	), nil
}

func runAdminServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("admin server shutdown error", "error", err)
		}
	}()

	logger.Info("admin server started", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}
