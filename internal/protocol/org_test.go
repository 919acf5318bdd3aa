package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/store"
)

func TestOrgInit_Defaults(t *testing.T) {
	f := newFixture(t, 250)
	cfg := f.org()

	assert.Equal(t, f.authority, cfg.Authority)
	assert.Equal(t, f.mint, cfg.Mint)
	assert.Equal(t, uint16(250), cfg.AuditRateBps)
	assert.Equal(t, uint8(model.OrgConfigVersion), cfg.Version)
	assert.Equal(t, model.DayIndex(f.now.Unix()), cfg.LastResetDay)
	assert.False(t, cfg.Paused)
	assert.Zero(t, cfg.InvoiceCounter)
	assert.Zero(t, cfg.DailySpent)
}

func TestOrgInit_OracleDefaultsToAuthority(t *testing.T) {
	f := newFixture(t, 0)
	authority := newKey()
	key, err := f.engine.OrgInit(f.ctx, authority, codec.OrgInitArgs{Mint: f.mint, PerInvoiceCap: 1, DailyCap: 1})
	require.NoError(t, err)

	cfg, err := f.engine.Org(f.ctx, key)
	require.NoError(t, err)
	assert.Equal(t, authority, cfg.OracleSigner)
}

func TestOrgInit_Rejections(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.engine.OrgInit(f.ctx, newKey(), codec.OrgInitArgs{PerInvoiceCap: 0, DailyCap: 10})
	assert.True(t, IsCode(err, CodeInvalidAmount))

	_, err = f.engine.OrgInit(f.ctx, newKey(), codec.OrgInitArgs{PerInvoiceCap: 10, DailyCap: 5})
	assert.True(t, IsCode(err, CodeCapExceeded))

	_, err = f.engine.OrgInit(f.ctx, newKey(), codec.OrgInitArgs{PerInvoiceCap: 1, DailyCap: 1, AuditRateBps: 10_001})
	assert.True(t, IsCode(err, CodeInvalidAuditRate))

	_, err = f.engine.OrgInit(f.ctx, f.authority, codec.OrgInitArgs{PerInvoiceCap: 1, DailyCap: 1})
	assert.True(t, IsCode(err, CodeAlreadyExists), "one organization per authority")
}

func TestUpdateOrgConfig_CapsApplyOnlyAsPair(t *testing.T) {
	f := newFixture(t, 0)
	per := uint64(7)

	require.NoError(t, f.engine.UpdateOrgConfig(f.ctx, f.authority, f.orgKey, codec.UpdateOrgConfigArgs{PerInvoiceCap: &per}))
	assert.Equal(t, uint64(testPerInvoiceCap), f.org().PerInvoiceCap)

	daily := uint64(70)
	require.NoError(t, f.engine.UpdateOrgConfig(f.ctx, f.authority, f.orgKey, codec.UpdateOrgConfigArgs{PerInvoiceCap: &per, DailyCap: &daily}))
	cfg := f.org()
	assert.Equal(t, uint64(7), cfg.PerInvoiceCap)
	assert.Equal(t, uint64(70), cfg.DailyCap)

	daily = 6
	err := f.engine.UpdateOrgConfig(f.ctx, f.authority, f.orgKey, codec.UpdateOrgConfigArgs{PerInvoiceCap: &per, DailyCap: &daily})
	assert.True(t, IsCode(err, CodeCapExceeded))
}

func TestUpdateOrgConfig_OnlyAuthority(t *testing.T) {
	f := newFixture(t, 0)
	paused := true

	err := f.engine.UpdateOrgConfig(f.ctx, f.oracle, f.orgKey, codec.UpdateOrgConfigArgs{Paused: &paused})
	assert.True(t, IsCode(err, CodeUnauthorized))
	assert.False(t, f.org().Paused)
}

func TestUpdateOrgConfig_RotatesOracle(t *testing.T) {
	f := newFixture(t, 0)
	next := newKey()
	require.NoError(t, f.engine.UpdateOrgConfig(f.ctx, f.authority, f.orgKey, codec.UpdateOrgConfigArgs{OracleSigner: &next}))
	f.request(10)

	_, err := f.engine.ProcessExtraction(f.ctx, f.oracle, f.result(10))
	assert.True(t, IsCode(err, CodeUnauthorized))
	_, err = f.engine.ProcessExtraction(f.ctx, next, f.result(10))
	assert.NoError(t, err)
}

func TestRegisterVendor(t *testing.T) {
	f := newFixture(t, 0)

	v, err := f.engine.Vendor(f.ctx, f.vendorKey)
	require.NoError(t, err)
	assert.Equal(t, f.orgKey, v.Org)
	assert.Equal(t, testVendor, v.VendorName)
	assert.Equal(t, f.wallet, v.Wallet)
	assert.Equal(t, f.mint, v.CurrencyPreference)
	assert.True(t, v.IsActive)

	_, err = f.engine.RegisterVendor(f.ctx, f.authority, f.orgKey, testVendor, newKey())
	assert.True(t, IsCode(err, CodeAlreadyExists))

	_, err = f.engine.RegisterVendor(f.ctx, f.oracle, f.orgKey, "Globex", newKey())
	assert.True(t, IsCode(err, CodeUnauthorized))

	_, err = f.engine.RegisterVendor(f.ctx, f.authority, f.orgKey, "Globex", [32]byte{})
	assert.True(t, IsCode(err, CodeInvalidWallet))

	_, err = f.engine.RegisterVendor(f.ctx, f.authority, f.orgKey, "", newKey())
	assert.True(t, IsCode(err, CodeInvalidVendor))
}

func TestManageVendor(t *testing.T) {
	f := newFixture(t, 0)

	err := f.engine.ActivateVendor(f.ctx, f.authority, f.orgKey, f.vendorKey)
	assert.True(t, IsCode(err, CodeVendorAlreadyActive))

	require.NoError(t, f.engine.DeactivateVendor(f.ctx, f.authority, f.orgKey, f.vendorKey))
	err = f.engine.DeactivateVendor(f.ctx, f.authority, f.orgKey, f.vendorKey)
	assert.True(t, IsCode(err, CodeVendorInactive))
	require.NoError(t, f.engine.ActivateVendor(f.ctx, f.authority, f.orgKey, f.vendorKey))

	next := newKey()
	require.NoError(t, f.engine.UpdateVendorWallet(f.ctx, f.authority, f.orgKey, f.vendorKey, next))
	v, err := f.engine.Vendor(f.ctx, f.vendorKey)
	require.NoError(t, err)
	assert.Equal(t, next, v.Wallet)

	err = f.engine.UpdateVendorWallet(f.ctx, f.authority, f.orgKey, f.vendorKey, [32]byte{})
	assert.True(t, IsCode(err, CodeInvalidWallet))

	err = f.engine.DeactivateVendor(f.ctx, f.oracle, f.orgKey, f.vendorKey)
	assert.True(t, IsCode(err, CodeUnauthorized))
}

func TestManageVendor_OtherOrgRejected(t *testing.T) {
	f := newFixture(t, 0)
	other := newKey()
	otherOrg, err := f.engine.OrgInit(f.ctx, other, codec.OrgInitArgs{Mint: f.mint, PerInvoiceCap: 1, DailyCap: 1})
	require.NoError(t, err)

	err = f.engine.DeactivateVendor(f.ctx, other, otherOrg, f.vendorKey)
	assert.True(t, IsCode(err, CodeWrongOrg))
}

func TestVendors_ListsByOrg(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.engine.RegisterVendor(f.ctx, f.authority, f.orgKey, "Globex", newKey())
	require.NoError(t, err)

	other := newKey()
	otherOrg, err := f.engine.OrgInit(f.ctx, other, codec.OrgInitArgs{Mint: f.mint, PerInvoiceCap: 1, DailyCap: 1})
	require.NoError(t, err)
	_, err = f.engine.RegisterVendor(f.ctx, other, otherOrg, "Initech", newKey())
	require.NoError(t, err)

	vendors, err := f.engine.Vendors(f.ctx, f.orgKey)
	require.NoError(t, err)
	names := make([]string, 0, len(vendors))
	for _, v := range vendors {
		names = append(names, v.Record.VendorName)
	}
	assert.ElementsMatch(t, []string{testVendor, "Globex"}, names)
}

func TestPendingRequests(t *testing.T) {
	f := newFixture(t, 0)
	f.validated(10)

	other := newKey()
	_, err := f.engine.RequestExtraction(f.ctx, other, "QmPending", 5)
	require.NoError(t, err)

	pending, err := f.engine.PendingRequests(f.ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, other, pending[0].Record.Authority)
	assert.Equal(t, store.RentExemptDeposit(len(mustEncode(t, pending[0].Record))), pending[0].Deposit)
}

func mustEncode(t *testing.T, rec model.Record) []byte {
	t.Helper()
	data, err := codec.EncodeRecord(rec)
	require.NoError(t, err)
	return data
}
