package protocol

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/ledger"
)

func (f *fixture) builder() *ledger.Builder {
	return ledger.NewBuilder(f.engine.Keys(), newKey(), solana.PublicKey{})
}

// dispatch returns a function that submits a built instruction under
// signer, so builder calls can be passed straight through.
func (f *fixture) dispatch(signer solana.PublicKey) func(*solana.GenericInstruction, error) error {
	return func(ix *solana.GenericInstruction, err error) error {
		f.t.Helper()
		require.NoError(f.t, err)
		call, err := NewCall(signer, ix)
		require.NoError(f.t, err)
		_, err = f.engine.Dispatch(f.ctx, call)
		return err
	}
}

func TestDispatch_Lifecycle(t *testing.T) {
	f := newFixture(t, 0)
	b := f.builder()
	payer := newKey()
	require.NoError(t, f.engine.Credit(f.ctx, f.mint, payer, 1_000))

	require.NoError(t, f.dispatch(f.claimant)(b.RequestExtraction(f.claimant, "QmDoc", 900)))
	due := f.now.Unix() + 86400
	require.NoError(t, f.dispatch(f.oracle)(b.ProcessExtraction(f.oracle, f.orgKey, f.claimant, testVendor, 900, due)))

	invAddr, err := f.engine.Keys().Invoice(f.claimant)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusValidated, f.invoice(invAddr.Key).Status)

	require.NoError(t, f.dispatch(f.claimant)(b.RequestAudit(f.claimant, f.orgKey, f.claimant, 3)))
	require.Len(t, f.rand.Requests(), 1)

	require.NoError(t, f.dispatch(f.randID)(b.AuditCallback(f.randID, invAddr.Key, f.orgKey, sampleRandomness(42))))
	assert.Equal(t, model.InvoiceStatusReadyForPayment, f.invoice(invAddr.Key).Status)

	require.NoError(t, f.dispatch(payer)(b.FundEscrow(payer, f.orgKey, f.claimant, f.mint)))
	require.NoError(t, f.dispatch(f.claimant)(b.SettleToVendor(f.claimant, f.orgKey, f.wallet, f.mint)))
	assert.Equal(t, model.InvoiceStatusPaid, f.invoice(invAddr.Key).Status)
	assert.Equal(t, uint64(900), f.balance(f.wallet))

	require.NoError(t, f.dispatch(f.claimant)(b.CloseInvoice(f.claimant)))
	require.NoError(t, f.dispatch(f.claimant)(b.CloseRequest(f.claimant)))
	_, err = f.engine.Invoice(f.ctx, invAddr.Key)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestDispatch_Administration(t *testing.T) {
	f := newFixture(t, 0)
	b := f.builder()
	authority := newKey()

	require.NoError(t, f.dispatch(authority)(b.OrgInit(authority, codec.OrgInitArgs{Mint: f.mint, PerInvoiceCap: 10, DailyCap: 20})))
	orgAddr, err := f.engine.Keys().OrgConfig(authority)
	require.NoError(t, err)

	paused := true
	require.NoError(t, f.dispatch(authority)(b.UpdateOrgConfig(authority, orgAddr.Key, codec.UpdateOrgConfigArgs{Paused: &paused})))
	cfg, err := f.engine.Org(f.ctx, orgAddr.Key)
	require.NoError(t, err)
	assert.True(t, cfg.Paused)

	require.NoError(t, f.dispatch(authority)(b.RegisterVendor(authority, orgAddr.Key, "Globex", newKey())))
	vendorAddr, err := f.engine.Keys().Vendor(orgAddr.Key, "Globex")
	require.NoError(t, err)

	require.NoError(t, f.dispatch(authority)(b.DeactivateVendor(authority, orgAddr.Key, vendorAddr.Key)))
	require.NoError(t, f.dispatch(authority)(b.ActivateVendor(authority, orgAddr.Key, vendorAddr.Key)))
	wallet := newKey()
	require.NoError(t, f.dispatch(authority)(b.UpdateVendorWallet(authority, orgAddr.Key, vendorAddr.Key, wallet)))

	v, err := f.engine.Vendor(f.ctx, vendorAddr.Key)
	require.NoError(t, err)
	assert.Equal(t, wallet, v.Wallet)
	assert.True(t, v.IsActive)
}

func TestDispatch_ManualPayment(t *testing.T) {
	f := newFixture(t, 0)
	b := f.builder()
	invKey := f.validated(10)

	require.NoError(t, f.dispatch(f.claimant)(b.ProcessPayment(f.claimant)))
	require.NoError(t, f.dispatch(f.claimant)(b.CompletePayment(f.claimant)))
	assert.Equal(t, model.InvoiceStatusPaid, f.invoice(invKey).Status)
}

func TestDispatch_SubstitutedAccountRejected(t *testing.T) {
	f := newFixture(t, 0)
	b := f.builder()
	f.request(10)

	ix, err := b.ProcessExtraction(f.oracle, f.orgKey, f.claimant, testVendor, 10, f.now.Unix()+60)
	require.NoError(t, err)
	call, err := NewCall(f.oracle, ix)
	require.NoError(t, err)
	call.Accounts[4] = newKey()

	_, err = f.engine.Dispatch(f.ctx, call)
	assert.True(t, IsCode(err, CodeConstraintSeeds), "got %v", err)
	assert.Equal(t, uint64(0), f.org().InvoiceCounter)
}

func TestDispatch_SignerMustMatchAuthorityAccount(t *testing.T) {
	f := newFixture(t, 0)
	b := f.builder()

	err := f.dispatch(newKey(), b.RequestExtraction(f.claimant, "QmDoc", 10))
	assert.True(t, IsCode(err, CodeUnauthorized))
}

func TestDispatch_WrongVendorHolding(t *testing.T) {
	f := newFixture(t, 0)
	b := f.builder()
	payer := newKey()
	require.NoError(t, f.engine.Credit(f.ctx, f.mint, payer, 100))
	f.ready(10)
	require.NoError(t, f.dispatch(payer)(b.FundEscrow(payer, f.orgKey, f.claimant, f.mint)))

	err := f.dispatch(f.claimant)(b.SettleToVendor(f.claimant, f.orgKey, newKey(), f.mint))
	assert.True(t, IsCode(err, CodeConstraintSeeds))
}

func TestDispatch_TooFewAccounts(t *testing.T) {
	f := newFixture(t, 0)
	data, err := codec.EncodeInstruction(codec.Empty(codec.OpProcessPayment))
	require.NoError(t, err)

	op, err := f.engine.Dispatch(f.ctx, Call{Signer: f.claimant, Accounts: []solana.PublicKey{newKey()}, Data: data})
	assert.Equal(t, codec.OpProcessPayment, op)
	assert.True(t, IsCode(err, CodeConstraintSeeds))
}

func TestDispatch_UnknownOperation(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.engine.Dispatch(f.ctx, Call{Signer: f.claimant, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}})
	assert.ErrorIs(t, err, codec.ErrUnknownOp)
}
