package protocol

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/event"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/metrics"
	"github.com/emperorhan/invoice-oracle/internal/protocol/escrow"
)

// ProcessPayment moves the owner's Validated invoice into escrow without
// moving value. It fails with PaymentOverdue once the due date has passed.
func (e *Engine) ProcessPayment(ctx context.Context, owner solana.PublicKey) error {
	invAddr, err := e.keys.Invoice(owner)
	if err != nil {
		return err
	}
	return e.run(ctx, codec.OpProcessPayment, owner, func(t *txn) error {
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
		if err := Authorize(owner, RoleInvoiceOwner, Subject{Invoice: inv}); err != nil {
			return err
		}
		if inv.Status != model.InvoiceStatusValidated {
			return newError("", CodeInvalidStatus, "invoice is %s, want %s", inv.Status, model.InvoiceStatusValidated)
		}
		if t.now > inv.DueDate {
			return newError("", CodePaymentOverdue, "due date %d passed", inv.DueDate)
		}
		if err := ChargeDailyCap(cfg, inv.Amount, t.now); err != nil {
			return err
		}
		if err := t.put(orgKey, cfg); err != nil {
			return err
		}
		return t.moveInvoice(invAddr.Key, inv, model.InvoiceStatusInEscrow)
	})
}

// CompletePayment marks an escrowed invoice Paid without moving value. An
// invoice whose escrow holding carries a balance must be settled with
// SettleToVendor instead.
func (e *Engine) CompletePayment(ctx context.Context, owner solana.PublicKey) error {
	invAddr, err := e.keys.Invoice(owner)
	if err != nil {
		return err
	}
	return e.run(ctx, codec.OpCompletePayment, owner, func(t *txn) error {
		inv, err := t.invoice(invAddr.Key)
		if err != nil {
			return err
		}
		_, cfg, _, err := t.invoiceOrg(inv)
		if err != nil {
			return err
		}
		if err := CheckNotPaused(cfg); err != nil {
			return err
		}
		if err := Authorize(owner, RoleInvoiceOwner, Subject{Invoice: inv}); err != nil {
			return err
		}
		if inv.Status != model.InvoiceStatusInEscrow {
			return newError("", CodeInvalidStatus, "invoice is %s, want %s", inv.Status, model.InvoiceStatusInEscrow)
		}
		capability, err := escrow.Derive(e.keys, invAddr.Key)
		if err != nil {
			return err
		}
		held, err := escrow.Balance(t, cfg.Mint, capability.Key())
		if err != nil {
			return err
		}
		if held > 0 {
			return newError("", CodeEscrowFunded, "escrow holds %d; settle to vendor instead", held)
		}
		return t.moveInvoice(invAddr.Key, inv, model.InvoiceStatusPaid)
	})
}

// FundEscrow moves the invoice amount from the payer's holding into the
// invoice's escrow holding. The invoice must have passed audit selection.
func (e *Engine) FundEscrow(ctx context.Context, payer, claimant, mint solana.PublicKey) error {
	invAddr, err := e.keys.Invoice(claimant)
	if err != nil {
		return err
	}
	return e.run(ctx, codec.OpFundEscrow, payer, func(t *txn) error {
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
		if inv.Status != model.InvoiceStatusReadyForPayment {
			return newError("", CodeInvalidStatus, "invoice is %s, want %s", inv.Status, model.InvoiceStatusReadyForPayment)
		}
		if inv.Amount > cfg.PerInvoiceCap {
			return newError("", CodeCapExceeded, "amount %d exceeds per-invoice cap %d", inv.Amount, cfg.PerInvoiceCap)
		}
		if !mint.Equals(cfg.Mint) {
			return newError("", CodeWrongMint, "mint %s, organization uses %s", mint, cfg.Mint)
		}
		if err := ChargeDailyCap(cfg, inv.Amount, t.now); err != nil {
			return err
		}

		capability, err := escrow.Derive(e.keys, invAddr.Key)
		if err != nil {
			return err
		}
		if err := escrow.Transfer(t, mint, payer, capability.Key(), inv.Amount, escrow.Signer(payer)); err != nil {
			return err
		}
		if err := t.put(orgKey, cfg); err != nil {
			return err
		}
		amount := inv.Amount
		t.after(func(context.Context) error {
			metrics.EscrowVolume.WithLabelValues("funded").Add(float64(amount))
			return nil
		})
		return t.moveInvoice(invAddr.Key, inv, model.InvoiceStatusInEscrow)
	})
}

// SettleToVendor pays the escrowed amount to the vendor's wallet under the
// invoice's escrow capability and marks the invoice Paid.
func (e *Engine) SettleToVendor(ctx context.Context, owner, mint solana.PublicKey) error {
	invAddr, err := e.keys.Invoice(owner)
	if err != nil {
		return err
	}
	return e.run(ctx, codec.OpSettleToVendor, owner, func(t *txn) error {
		inv, err := t.invoice(invAddr.Key)
		if err != nil {
			return err
		}
		_, cfg, v, err := t.invoiceOrg(inv)
		if err != nil {
			return err
		}
		if err := CheckNotPaused(cfg); err != nil {
			return err
		}
		if err := Authorize(owner, RoleInvoiceOwner, Subject{Invoice: inv}); err != nil {
			return err
		}
		if inv.Status != model.InvoiceStatusInEscrow {
			return newError("", CodeInvalidStatus, "invoice is %s, want %s", inv.Status, model.InvoiceStatusInEscrow)
		}
		if !mint.Equals(cfg.Mint) {
			return newError("", CodeWrongMint, "mint %s, organization uses %s", mint, cfg.Mint)
		}
		if !v.IsActive {
			return newError("", CodeVendorInactive, "vendor %q is inactive", v.VendorName)
		}

		capability, err := escrow.Derive(e.keys, invAddr.Key)
		if err != nil {
			return err
		}
		if err := escrow.Transfer(t, mint, capability.Key(), v.Wallet, inv.Amount, capability); err != nil {
			return err
		}

		if v.TotalPaid+inv.Amount < v.TotalPaid {
			return newError("", CodeOverflow, "vendor total paid overflow")
		}
		v.TotalPaid += inv.Amount
		v.LastPayment = t.now
		if err := t.put(inv.Vendor, v); err != nil {
			return err
		}
		amount := inv.Amount
		t.after(func(context.Context) error {
			metrics.EscrowVolume.WithLabelValues("settled").Add(float64(amount))
			return nil
		})
		return t.moveInvoice(invAddr.Key, inv, model.InvoiceStatusPaid)
	})
}

func (t *txn) moveInvoice(key solana.PublicKey, inv *model.Invoice, to model.InvoiceStatus) error {
	from := inv.Status
	inv.Status = to
	if err := t.put(key, inv); err != nil {
		return err
	}
	t.emit(event.RecordKindInvoice, key, inv.Authority, from.String(), to.String(), inv.Amount)
	return nil
}
