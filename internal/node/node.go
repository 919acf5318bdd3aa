// Package node assembles the ledger stack selected by configuration: the
// in-process engine over a record store, or a Solana cluster.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/config"
	"github.com/emperorhan/invoice-oracle/internal/domain/event"
	"github.com/emperorhan/invoice-oracle/internal/keys"
	"github.com/emperorhan/invoice-oracle/internal/ledger"
	"github.com/emperorhan/invoice-oracle/internal/ledger/local"
	solanabackend "github.com/emperorhan/invoice-oracle/internal/ledger/solana"
	"github.com/emperorhan/invoice-oracle/internal/ledger/solana/rpc"
	"github.com/emperorhan/invoice-oracle/internal/metrics"
	"github.com/emperorhan/invoice-oracle/internal/protocol"
	"github.com/emperorhan/invoice-oracle/internal/store"
	"github.com/emperorhan/invoice-oracle/internal/store/postgres"
	redispkg "github.com/emperorhan/invoice-oracle/internal/store/redis"
	"github.com/emperorhan/invoice-oracle/internal/vrf"
)

var newStream = func(ctx context.Context, url, name string) (event.Sink, func() error, error) {
	s, err := redispkg.NewStream(ctx, url, name)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

type Node struct {
	Keys   *keys.Deriver
	Client *ledger.Client

	// Set on the local backend only.
	Engine *protocol.Engine
	VRF    *vrf.Service
	DB     *postgres.DB

	closers []func() error
	logger  *slog.Logger
}

type Option func(*options)

type options struct {
	sinks []event.Sink
	clock func() time.Time
}

// WithSinks adds transition sinks to the local engine.
func WithSinks(sinks ...event.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Node, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	n := &Node{
		Keys:   keys.NewDeriver(cfg.ProgramID()),
		logger: logger.With("component", "node"),
	}
	builder := ledger.NewBuilder(n.Keys, cfg.VRFProgram(), cfg.VRFQueue())

	var err error
	switch cfg.Ledger.Backend {
	case config.LedgerBackendSolana:
		err = n.openSolana(cfg, builder, logger)
	default:
		err = n.openLocal(ctx, cfg, builder, logger, o)
	}
	if err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

func (n *Node) openSolana(cfg *config.Config, builder *ledger.Builder, logger *slog.Logger) error {
	if cfg.Redis.StreamEnabled {
		n.logger.Warn("transition stream is only published by the local backend")
	}
	client := rpc.NewClient(cfg.Ledger.RPCURL, cfg.Ledger.RPCTimeout, logger)
	backend := solanabackend.New(client, n.Keys.ProgramID(), solanabackend.Config{
		Commitment:     cfg.Ledger.Commitment,
		MaxRetries:     cfg.Ledger.SubmitMaxRetries,
		ConfirmTimeout: cfg.Ledger.ConfirmTimeout,
	}, logger)
	n.Client = ledger.NewClient(backend, builder, logger)
	n.logger.Info("solana ledger backend", "rpc", cfg.Ledger.RPCURL, "program", n.Keys.ProgramID())
	return nil
}

func (n *Node) openLocal(ctx context.Context, cfg *config.Config, builder *ledger.Builder, logger *slog.Logger, o options) error {
	records, err := n.openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sinks := append([]event.Sink(nil), o.sinks...)
	if cfg.Redis.StreamEnabled {
		stream, closeStream, err := newStream(ctx, cfg.Redis.URL, cfg.Redis.Stream)
		if err != nil {
			return fmt.Errorf("open transition stream: %w", err)
		}
		n.closers = append(n.closers, closeStream)
		sinks = append(sinks, stream)
		n.logger.Info("redis transition stream enabled", "stream", cfg.Redis.Stream)
	}

	identity, err := randomnessIdentity(cfg.Ledger.VRFKeypairPath)
	if err != nil {
		return err
	}

	engineOpts := []protocol.Option{
		protocol.WithLogger(logger),
		protocol.WithRandomness(nil, identity.PublicKey(), cfg.VRFQueue()),
	}
	if len(sinks) > 0 {
		engineOpts = append(engineOpts, protocol.WithSink(event.MultiSink(sinks)))
	}
	if o.clock != nil {
		engineOpts = append(engineOpts, protocol.WithClock(o.clock))
	}
	n.Engine = protocol.NewEngine(records, n.Keys, engineOpts...)
	n.Client = ledger.NewClient(local.New(n.Engine, records), builder, logger)
	n.VRF = vrf.New(n.Client, identity, vrf.WithLogger(logger))
	n.Engine.SetRandomness(n.VRF)

	n.logger.Info("local ledger backend",
		"store", cfg.Store.Backend,
		"program", n.Keys.ProgramID(),
		"randomness_identity", identity.PublicKey(),
	)
	return nil
}

func (n *Node) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.RecordStore, error) {
	if cfg.Store.Backend != config.StoreBackendPostgres {
		return store.NewMemoryStore(), nil
	}
	db, err := postgres.New(ctx, postgres.Config{
		URL:                cfg.Store.URL,
		MaxOpenConns:       cfg.Store.MaxOpenConns,
		MaxIdleConns:       cfg.Store.MaxIdleConns,
		ConnMaxLifetime:    cfg.Store.ConnMaxLifetime,
		StatementTimeoutMS: cfg.Store.StatementTimeoutMS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	n.DB = db
	n.closers = append(n.closers, db.Close)
	if err := db.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	n.logger.Info("connected to database")
	return postgres.NewRecordStore(db, logger), nil
}

// randomnessIdentity loads the key randomness callbacks are signed with. An
// empty path yields a fresh key, which only suits a single-process setup.
func randomnessIdentity(path string) (solana.PrivateKey, error) {
	if path == "" {
		return solana.NewRandomPrivateKey()
	}
	return keys.LoadKeypair(path)
}

// RunPoolStats samples the database pool into the pool gauges until ctx is
// done. It returns at once when no database is open.
func (n *Node) RunPoolStats(ctx context.Context, interval time.Duration) error {
	if n.DB == nil || interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	metrics.ObserveDBStats(n.DB.Stats())
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("db pool stats sampler stopped", "cause", "context_done")
			return nil
		case <-ticker.C:
			metrics.ObserveDBStats(n.DB.Stats())
		}
	}
}

// Close releases everything Open acquired, newest first.
func (n *Node) Close() error {
	var errs []error
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	n.closers = nil
	return errors.Join(errs...)
}
