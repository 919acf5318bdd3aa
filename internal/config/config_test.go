package config

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/invoice-oracle/internal/keys"
)

const testAuthority = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("OCR_API_KEY", "k-123")
	t.Setenv("ORG_AUTHORITY", testAuthority)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, LedgerBackendLocal, cfg.Ledger.Backend)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.Ledger.RPCURL)
	assert.Equal(t, "confirmed", cfg.Ledger.Commitment)
	assert.Equal(t, uint64(3), cfg.Ledger.SubmitMaxRetries)
	assert.Equal(t, "oracle-keypair.json", cfg.Ledger.OracleKeypairPath)
	assert.Equal(t, StoreBackendMemory, cfg.Store.Backend)
	assert.Equal(t, 25, cfg.Store.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.Store.ConnMaxLifetime)
	assert.False(t, cfg.Redis.StreamEnabled)
	assert.Equal(t, "https://api.ocr.space/parse/imageurl", cfg.OCR.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.OCR.Timeout)
	assert.True(t, cfg.Orchestrator.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Orchestrator.PollInterval)
	assert.Equal(t, 4, cfg.Orchestrator.Workers)
	assert.False(t, cfg.Orchestrator.AutoAudit)
	assert.Equal(t, 10*time.Minute, cfg.Orchestrator.SuppressTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.AdminAddr())

	assert.Equal(t, keys.DefaultProgramID, cfg.ProgramID())
	assert.Equal(t, solana.MustPublicKeyFromBase58(testAuthority), cfg.OrgAuthority())
	assert.True(t, cfg.VRFQueue().IsZero())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LEDGER_BACKEND", " Solana ")
	t.Setenv("SOLANA_RPC_URL", "http://localhost:8899")
	t.Setenv("POLL_INTERVAL", "750ms")
	t.Setenv("AUTO_AUDIT", "true")
	t.Setenv("VRF_ORACLE_QUEUE", testAuthority)
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ADMIN_ADDR", "127.0.0.1:9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, LedgerBackendSolana, cfg.Ledger.Backend)
	assert.Equal(t, "http://localhost:8899", cfg.Ledger.RPCURL)
	assert.Equal(t, 750*time.Millisecond, cfg.Orchestrator.PollInterval)
	assert.True(t, cfg.Orchestrator.AutoAudit)
	assert.Equal(t, solana.MustPublicKeyFromBase58(testAuthority), cfg.VRFQueue())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9000", cfg.AdminAddr())
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown ledger backend",
			env:     map[string]string{"LEDGER_BACKEND": "evm"},
			wantErr: "LEDGER_BACKEND must be local or solana",
		},
		{
			name:    "unknown store backend",
			env:     map[string]string{"STORE_BACKEND": "sqlite"},
			wantErr: "STORE_BACKEND must be memory or postgres",
		},
		{
			name:    "postgres store under solana ledger",
			env:     map[string]string{"LEDGER_BACKEND": "solana", "STORE_BACKEND": "postgres"},
			wantErr: "STORE_BACKEND applies to the local ledger backend only",
		},
		{
			name:    "missing OCR key",
			env:     map[string]string{"OCR_API_KEY": ""},
			wantErr: "OCR_API_KEY is required",
		},
		{
			name:    "missing org authority",
			env:     map[string]string{"ORG_AUTHORITY": ""},
			wantErr: "ORG_AUTHORITY or BOOTSTRAP_MANIFEST is required",
		},
		{
			name:    "bad public key",
			env:     map[string]string{"PROGRAM_ID": "not-a-key"},
			wantErr: "PROGRAM_ID is not a valid public key",
		},
		{
			name:    "zero workers",
			env:     map[string]string{"ORCHESTRATOR_WORKERS": "0"},
			wantErr: "ORCHESTRATOR_WORKERS must be positive",
		},
		{
			name:    "bad log level",
			env:     map[string]string{"LOG_LEVEL": "trace"},
			wantErr: "LOG_LEVEL must be",
		},
		{
			name:    "sample ratio out of range",
			env:     map[string]string{"OTEL_TRACES_SAMPLER_RATIO": "1.5"},
			wantErr: "OTEL_TRACES_SAMPLER_RATIO",
		},
		{
			name:    "unparsable duration",
			env:     map[string]string{"POLL_INTERVAL": "soon"},
			wantErr: "parse env",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_BootstrapReplacesOrgAuthority(t *testing.T) {
	t.Setenv("OCR_API_KEY", "k-123")
	t.Setenv("ORG_AUTHORITY", "")
	t.Setenv("BOOTSTRAP_MANIFEST", "org.yaml")

	_, err := Load()
	require.ErrorContains(t, err, "BOOTSTRAP_AUTHORITY_KEYPAIR is required")

	t.Setenv("BOOTSTRAP_AUTHORITY_KEYPAIR", "authority.json")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "org.yaml", cfg.Bootstrap.Manifest)
	assert.True(t, cfg.OrgAuthority().IsZero())
}

func TestLoadClient_SkipsServiceChecks(t *testing.T) {
	t.Setenv("OCR_API_KEY", "")
	t.Setenv("ORG_AUTHORITY", "")

	_, err := Load()
	require.Error(t, err)

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, LedgerBackendLocal, cfg.Ledger.Backend)
}

func TestLoad_OrchestratorDisabledNeedsNoOCRKey(t *testing.T) {
	t.Setenv("ORCHESTRATOR_ENABLED", "false")
	t.Setenv("OCR_API_KEY", "")
	t.Setenv("ORG_AUTHORITY", "")

	_, err := Load()
	assert.NoError(t, err)
}
