package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/event"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/metrics"
	"github.com/emperorhan/invoice-oracle/internal/protocol/audit"
)

// ErrNoRandomnessService is returned by RequestAudit when the engine has no
// randomness service.
var ErrNoRandomnessService = errors.New("no randomness service configured")

// RequestAudit asks the randomness service to decide whether the claimant's
// Validated invoice is audited. The invoice is not modified; the decision
// arrives later through AuditCallback. The invoice owner, the organization
// authority and the oracle signer may request it.
func (e *Engine) RequestAudit(ctx context.Context, caller, claimant solana.PublicKey, clientSeed uint8) error {
	if e.randomness == nil {
		return fmt.Errorf("%s: %w", codec.OpRequestAudit, ErrNoRandomnessService)
	}
	invAddr, err := e.keys.Invoice(claimant)
	if err != nil {
		return err
	}

	return e.run(ctx, codec.OpRequestAudit, caller, func(t *txn) error {
		inv, err := t.invoice(invAddr.Key)
		if err != nil {
			return err
		}
		orgKey, cfg, _, err := t.invoiceOrg(inv)
		if err != nil {
			return err
		}
		if err := CheckNotPaused(cfg); err != nil {
			return err
		}
		subject := Subject{Config: cfg, Invoice: inv}
		if err := AuthorizeAny(caller, subject, RoleInvoiceOwner, RoleOrgAuthority, RoleOracleSigner); err != nil {
			return err
		}
		if inv.Status != model.InvoiceStatusValidated {
			return newError("", CodeInvalidStatus, "invoice is %s, want %s", inv.Status, model.InvoiceStatusValidated)
		}

		req := event.RandomnessRequest{
			Payer:                 caller,
			Invoice:               invAddr.Key,
			OrgConfig:             orgKey,
			Queue:                 e.randomnessQueue,
			CallerSeed:            ExpandSeed(clientSeed),
			CallbackDiscriminator: codec.OpAuditCallback.Discriminator(),
		}
		t.emit(event.RecordKindInvoice, invAddr.Key, inv.Authority, inv.Status.String(), inv.Status.String(), 0)
		t.after(func(ctx context.Context) error {
			if err := e.randomness.RequestRandomness(ctx, req); err != nil {
				return fmt.Errorf("request randomness: %w", err)
			}
			return nil
		})
		return nil
	})
}

// ExpandSeed fills the 32-byte caller seed with the one-byte client seed.
func ExpandSeed(clientSeed uint8) [32]byte {
	var seed [32]byte
	for i := range seed {
		seed[i] = clientSeed
	}
	return seed
}

// AuditCallback applies the randomness service's answer to an invoice. It
// only acts on a Validated invoice, so a late or repeated callback cannot
// override a later state.
func (e *Engine) AuditCallback(ctx context.Context, caller, invoiceKey, orgKey solana.PublicKey, randomness [32]byte) (audit.Decision, error) {
	var decision audit.Decision
	err := e.run(ctx, codec.OpAuditCallback, caller, func(t *txn) error {
		if err := Authorize(caller, RoleRandomnessService, Subject{RandomnessIdentity: e.randomnessIdentity}); err != nil {
			return err
		}
		inv, err := t.invoice(invoiceKey)
		if err != nil {
			return err
		}
		v, err := t.vendor(inv.Vendor)
		if err != nil {
			return err
		}
		if !v.Org.Equals(orgKey) {
			return newError("", CodeWrongOrg, "invoice belongs to %s", v.Org)
		}
		cfg, err := t.org(orgKey)
		if err != nil {
			return err
		}
		if err := CheckNotPaused(cfg); err != nil {
			return err
		}
		if inv.Status != model.InvoiceStatusValidated {
			return newError("", CodeInvalidStatus, "invoice is %s, want %s", inv.Status, model.InvoiceStatusValidated)
		}

		decision = audit.Classify(randomness, cfg.AuditRateBps)
		from := inv.Status
		inv.Status = decision.Status()
		if err := t.put(invoiceKey, inv); err != nil {
			return err
		}
		t.emit(event.RecordKindInvoice, invoiceKey, inv.Authority, from.String(), inv.Status.String(), inv.Amount)
		return nil
	})
	if err == nil {
		metrics.AuditDecisionsTotal.WithLabelValues(decision.String()).Inc()
	}
	return decision, err
}
