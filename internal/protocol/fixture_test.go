package protocol

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/event"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/keys"
	"github.com/emperorhan/invoice-oracle/internal/store"
)

const (
	testPerInvoiceCap = 1_000_000_000
	testDailyCap      = 5_000_000_000
	testVendor        = "Acme Corp"
)

func newKey() solana.PublicKey { return solana.NewWallet().PublicKey() }

type recordingRandomness struct {
	mu       sync.Mutex
	requests []event.RandomnessRequest
}

func (r *recordingRandomness) RequestRandomness(_ context.Context, req event.RandomnessRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return nil
}

func (r *recordingRandomness) Requests() []event.RandomnessRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.RandomnessRequest(nil), r.requests...)
}

// fixture is an engine over a memory store with one organization, one active
// vendor and a funded payer.
type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.MemoryStore
	engine *Engine
	sink   *event.Buffer
	rand   *recordingRandomness
	now    time.Time

	authority solana.PublicKey
	oracle    solana.PublicKey
	randID    solana.PublicKey
	claimant  solana.PublicKey
	wallet    solana.PublicKey
	mint      solana.PublicKey

	orgKey    solana.PublicKey
	vendorKey solana.PublicKey
}

func newFixture(t *testing.T, auditRateBps uint16) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		store:     store.NewMemoryStore(),
		sink:      &event.Buffer{},
		rand:      &recordingRandomness{},
		now:       time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC),
		authority: newKey(),
		oracle:    newKey(),
		randID:    newKey(),
		claimant:  newKey(),
		wallet:    newKey(),
		mint:      newKey(),
	}
	f.engine = NewEngine(f.store, keys.NewDeriver(keys.DefaultProgramID),
		WithClock(func() time.Time { return f.now }),
		WithSink(f.sink),
		WithRandomness(f.rand, f.randID, solana.PublicKey{}),
	)

	orgKey, err := f.engine.OrgInit(f.ctx, f.authority, codec.OrgInitArgs{
		TreasuryVault: newKey(),
		Mint:          f.mint,
		PerInvoiceCap: testPerInvoiceCap,
		DailyCap:      testDailyCap,
		AuditRateBps:  auditRateBps,
	})
	require.NoError(t, err)
	f.orgKey = orgKey

	oracle := f.oracle
	require.NoError(t, f.engine.UpdateOrgConfig(f.ctx, f.authority, orgKey, codec.UpdateOrgConfigArgs{OracleSigner: &oracle}))

	vendorKey, err := f.engine.RegisterVendor(f.ctx, f.authority, orgKey, testVendor, f.wallet)
	require.NoError(t, err)
	f.vendorKey = vendorKey
	return f
}

func (f *fixture) request(amount uint64) solana.PublicKey {
	f.t.Helper()
	key, err := f.engine.RequestExtraction(f.ctx, f.claimant, "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", amount)
	require.NoError(f.t, err)
	return key
}

func (f *fixture) result(amount uint64) ExtractionResult {
	return ExtractionResult{
		OrgConfig:  f.orgKey,
		Claimant:   f.claimant,
		VendorName: testVendor,
		Amount:     amount,
		DueDate:    f.now.Add(30 * 24 * time.Hour).Unix(),
	}
}

// validated drives the claimant to a Validated invoice of amount.
func (f *fixture) validated(amount uint64) solana.PublicKey {
	f.t.Helper()
	f.request(amount)
	key, err := f.engine.ProcessExtraction(f.ctx, f.oracle, f.result(amount))
	require.NoError(f.t, err)
	return key
}

// ready drives the claimant to a ReadyForPayment invoice via a callback
// whose randomness samples to zero.
func (f *fixture) ready(amount uint64) solana.PublicKey {
	f.t.Helper()
	key := f.validated(amount)
	decision, err := f.engine.AuditCallback(f.ctx, f.randID, key, f.orgKey, sampleRandomness(9_999))
	require.NoError(f.t, err)
	require.Equal(f.t, model.InvoiceStatusReadyForPayment, decision.Status())
	return key
}

func (f *fixture) invoice(key solana.PublicKey) *model.Invoice {
	f.t.Helper()
	inv, err := f.engine.Invoice(f.ctx, key)
	require.NoError(f.t, err)
	return inv
}

func (f *fixture) org() *model.OrgConfig {
	f.t.Helper()
	cfg, err := f.engine.Org(f.ctx, f.orgKey)
	require.NoError(f.t, err)
	return cfg
}

func (f *fixture) balance(owner solana.PublicKey) uint64 {
	f.t.Helper()
	b, err := f.engine.Balance(f.ctx, f.mint, owner)
	require.NoError(f.t, err)
	return b
}

// sampleRandomness returns randomness whose audit sample is sample.
func sampleRandomness(sample uint64) [32]byte {
	var r [32]byte
	for i := 0; i < 8; i++ {
		r[i] = byte(sample >> (8 * i))
	}
	return r
}
