package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/invoice-oracle/internal/alert"
	"github.com/emperorhan/invoice-oracle/internal/config"
	"github.com/emperorhan/invoice-oracle/internal/keys"
	"github.com/emperorhan/invoice-oracle/internal/node"
)

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()
	assert.True(t, newLogger("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("info").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("warn").Enabled(ctx, slog.LevelInfo))
	assert.True(t, newLogger("error").Enabled(ctx, slog.LevelError))
	assert.False(t, newLogger("error").Enabled(ctx, slog.LevelWarn))
}

func TestBuildAlerter(t *testing.T) {
	_, isNoop := buildAlerter(config.AlertConfig{}, slog.Default()).(*alert.NoopAlerter)
	assert.True(t, isNoop)

	a := buildAlerter(config.AlertConfig{WebhookURL: "http://hooks.example", Cooldown: time.Minute}, slog.Default())
	_, isMulti := a.(*alert.MultiAlerter)
	assert.True(t, isMulti)
}

func writeKeypair(t *testing.T, dir, name string) (string, solana.PrivateKey) {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, keys.WriteKeypair(path, key))
	return path, key
}

func localConfig() *config.Config {
	return &config.Config{
		Ledger: config.LedgerConfig{Backend: config.LedgerBackendLocal},
		Store:  config.StoreConfig{Backend: config.StoreBackendMemory},
		Orchestrator: config.OrchestratorConfig{
			Enabled:      true,
			PollInterval: time.Second,
			Workers:      2,
			SuppressTTL:  time.Minute,
		},
	}
}

func TestApplyBootstrap_DefaultsAuthorityToSigner(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	authPath, authority := writeKeypair(t, dir, "authority.json")
	manifest := "org:\n" +
		"  treasury_vault: " + solana.NewWallet().PublicKey().String() + "\n" +
		"  mint: " + solana.NewWallet().PublicKey().String() + "\n" +
		"  per_invoice_cap: 100\n" +
		"  daily_cap: 1000\n"
	manifestPath := filepath.Join(dir, "org.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifest), 0o600))

	cfg := localConfig()
	cfg.Bootstrap = config.BootstrapConfig{Manifest: manifestPath, AuthorityKeypairPath: authPath}
	n, err := node.Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer n.Close()

	got, err := applyBootstrap(ctx, cfg, n, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, authority.PublicKey(), got)

	orgAddr, err := n.Keys.OrgConfig(authority.PublicKey())
	require.NoError(t, err)
	org, err := n.Client.Org(ctx, orgAddr.Key)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), org.PerInvoiceCap)
}

func TestApplyBootstrap_NoManifest(t *testing.T) {
	cfg := localConfig()
	want := solana.NewWallet().PublicKey()
	cfg.Orchestrator.OrgAuthority = want.String()

	got, err := applyBootstrap(context.Background(), cfg, nil, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBuildOrchestrator(t *testing.T) {
	ctx := context.Background()
	oraclePath, _ := writeKeypair(t, t.TempDir(), "oracle.json")

	cfg := localConfig()
	cfg.Ledger.OracleKeypairPath = oraclePath
	n, err := node.Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer n.Close()

	orch, err := buildOrchestrator(cfg, n, solana.NewWallet().PublicKey(), &alert.NoopAlerter{}, slog.Default())
	require.NoError(t, err)

	res, err := orch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Pending)

	cfg.Ledger.OracleKeypairPath = filepath.Join(t.TempDir(), "missing.json")
	_, err = buildOrchestrator(cfg, n, solana.NewWallet().PublicKey(), &alert.NoopAlerter{}, slog.Default())
	assert.ErrorContains(t, err, "load keypair")
}

func TestRunAdminServer_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	done := make(chan error, 1)
	go func() { done <- runAdminServer(ctx, "127.0.0.1:0", handler, slog.Default()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("admin server did not stop")
	}
}
