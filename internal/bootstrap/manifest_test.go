package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/invoice-oracle/internal/keys"
	"github.com/emperorhan/invoice-oracle/internal/ledger"
	"github.com/emperorhan/invoice-oracle/internal/ledger/local"
	"github.com/emperorhan/invoice-oracle/internal/protocol"
	"github.com/emperorhan/invoice-oracle/internal/store"
)

func newClient(t *testing.T) *ledger.Client {
	t.Helper()
	s := store.NewMemoryStore()
	d := keys.NewDeriver(keys.DefaultProgramID)
	engine := protocol.NewEngine(s, d)
	return ledger.NewClient(local.New(engine, s), ledger.NewBuilder(d, solana.PublicKey{}, solana.PublicKey{}), nil)
}

func manifestYAML(vault, mint solana.PublicKey, vendors ...string) string {
	var b strings.Builder
	b.WriteString("org:\n")
	b.WriteString("  treasury_vault: " + vault.String() + "\n")
	b.WriteString("  mint: " + mint.String() + "\n")
	b.WriteString("  per_invoice_cap: 1000000000\n")
	b.WriteString("  daily_cap: 5000000000\n")
	b.WriteString("  audit_rate_bps: 500\n")
	b.WriteString("vendors:\n")
	for i := 0; i+1 < len(vendors); i += 2 {
		b.WriteString("  - name: " + vendors[i] + "\n")
		b.WriteString("    wallet: " + vendors[i+1] + "\n")
	}
	return b.String()
}

func TestParse(t *testing.T) {
	vault, mint := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	wallet := solana.NewWallet().PublicKey()

	m, err := Parse([]byte(manifestYAML(vault, mint, "Acme Corp", wallet.String())))
	require.NoError(t, err)

	assert.Equal(t, vault.String(), m.Org.TreasuryVault)
	assert.Equal(t, uint64(1_000_000_000), m.Org.PerInvoiceCap)
	assert.Equal(t, uint16(500), m.Org.AuditRateBps)
	require.Len(t, m.Vendors, 1)
	assert.Equal(t, VendorSpec{Name: "Acme Corp", Wallet: wallet.String()}, m.Vendors[0])
}

func TestParse_Invalid(t *testing.T) {
	vault, mint := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	wallet := solana.NewWallet().PublicKey().String()

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"not yaml", "org: [", "parse manifest"},
		{"bad mint", strings.Replace(manifestYAML(vault, mint), mint.String(), "nope", 1), "org.mint"},
		{"zero caps", strings.Replace(manifestYAML(vault, mint), "daily_cap: 5000000000", "daily_cap: 0", 1), "caps must be positive"},
		{"audit rate", strings.Replace(manifestYAML(vault, mint), "audit_rate_bps: 500", "audit_rate_bps: 10001", 1), "audit_rate_bps"},
		{"long vendor name", manifestYAML(vault, mint, strings.Repeat("v", 33), wallet), "name must be 1-32 bytes"},
		{"duplicate vendor", manifestYAML(vault, mint, "Acme", wallet, "Acme", wallet), "duplicate name"},
		{"bad wallet", manifestYAML(vault, mint, "Acme", "xyz"), "vendors[0].wallet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org.yaml")
	doc := manifestYAML(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, m.Vendors)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read manifest")
}

func TestApply_CreatesThenReconciles(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	authority, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	oracle := solana.NewWallet().PublicKey()
	walletA, walletB := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	m, err := Parse([]byte(manifestYAML(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(),
		"Acme Corp", walletA.String(), "Globex", walletB.String())))
	require.NoError(t, err)
	m.Org.OracleSigner = oracle.String()

	res, err := Apply(ctx, client, authority, m, nil)
	require.NoError(t, err)
	assert.True(t, res.OrgCreated)
	assert.True(t, res.SignerUpdated)
	assert.Equal(t, []string{"Acme Corp", "Globex"}, res.VendorsCreated)

	org, err := client.Org(ctx, res.OrgConfig)
	require.NoError(t, err)
	assert.Equal(t, oracle, org.OracleSigner)
	assert.Equal(t, uint16(500), org.AuditRateBps)

	// Second run is a no-op.
	res, err = Apply(ctx, client, authority, m, nil)
	require.NoError(t, err)
	assert.False(t, res.OrgCreated)
	assert.False(t, res.SignerUpdated)
	assert.Empty(t, res.VendorsCreated)
	assert.Empty(t, res.VendorsUpdated)

	// Deactivated vendor with a new wallet is brought back in line.
	vendorAddr, err := client.Builder().Keys().Vendor(res.OrgConfig, "Globex")
	require.NoError(t, err)
	ix, err := client.Builder().DeactivateVendor(authority.PublicKey(), res.OrgConfig, vendorAddr.Key)
	require.NoError(t, err)
	_, err = client.Submit(ctx, authority, ix)
	require.NoError(t, err)

	walletC := solana.NewWallet().PublicKey()
	m.Vendors[1].Wallet = walletC.String()
	res, err = Apply(ctx, client, authority, m, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Globex"}, res.VendorsUpdated)

	vendor, err := client.Vendor(ctx, vendorAddr.Key)
	require.NoError(t, err)
	assert.True(t, vendor.IsActive)
	assert.Equal(t, walletC, vendor.Wallet)
}
