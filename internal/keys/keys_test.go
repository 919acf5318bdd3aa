package keys

import (
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentity(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return pk.PublicKey()
}

func TestDeriver_Deterministic(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	claimant := newIdentity(t)

	a, err := d.Invoice(claimant)
	require.NoError(t, err)
	b, err := d.Invoice(claimant)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.False(t, a.Key.IsOnCurve())
}

func TestDeriver_TagsSeparateRecords(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	claimant := newIdentity(t)

	req, err := d.Request(claimant)
	require.NoError(t, err)
	inv, err := d.Invoice(claimant)
	require.NoError(t, err)

	assert.NotEqual(t, req.Key, inv.Key)
}

func TestDeriver_IdentitiesSeparateRecords(t *testing.T) {
	d := NewDeriver(DefaultProgramID)

	a, err := d.Request(newIdentity(t))
	require.NoError(t, err)
	b, err := d.Request(newIdentity(t))
	require.NoError(t, err)

	assert.NotEqual(t, a.Key, b.Key)
}

func TestDeriver_VendorNameTooLongForSeed(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	org, err := d.OrgConfig(newIdentity(t))
	require.NoError(t, err)

	_, err = d.Vendor(org.Key, strings.Repeat("v", solana.MaxSeedLength+1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "derive vendor address")
}

func TestDeriver_Verify(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	inv, err := d.Invoice(newIdentity(t))
	require.NoError(t, err)

	auth, err := d.EscrowAuthority(inv.Key)
	require.NoError(t, err)

	assert.True(t, d.Verify(auth.Key, auth.Bump, []byte(SeedEscrowAuth), inv.Key.Bytes()))
	assert.False(t, d.Verify(auth.Key, auth.Bump, []byte(SeedEscrowAuth), newIdentity(t).Bytes()))
}

func TestNewDeriver_ZeroProgramFallsBack(t *testing.T) {
	d := NewDeriver(solana.PublicKey{})
	assert.Equal(t, DefaultProgramID, d.ProgramID())
}
