package protocol

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/event"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
)

// CloseInvoice destroys the owner's Paid invoice and returns its deposit,
// freeing the claimant to process another invoice.
func (e *Engine) CloseInvoice(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	invAddr, err := e.keys.Invoice(owner)
	if err != nil {
		return 0, err
	}
	var refunded uint64
	err = e.run(ctx, codec.OpCloseInvoice, owner, func(t *txn) error {
		inv, err := t.invoice(invAddr.Key)
		if err != nil {
			return err
		}
		if err := Authorize(owner, RoleInvoiceOwner, Subject{Invoice: inv}); err != nil {
			return err
		}
		if !inv.Status.IsTerminal() {
			return newError("", CodeInvalidStatus, "invoice is %s, want %s", inv.Status, model.InvoiceStatusPaid)
		}
		refunded, err = t.Delete(invAddr.Key)
		if err != nil {
			return err
		}
		t.emit(event.RecordKindInvoice, invAddr.Key, owner, inv.Status.String(), "", refunded)
		return nil
	})
	return refunded, err
}

// CloseRequest destroys the owner's Completed request and returns its
// deposit.
func (e *Engine) CloseRequest(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	reqAddr, err := e.keys.Request(owner)
	if err != nil {
		return 0, err
	}
	var refunded uint64
	err = e.run(ctx, codec.OpCloseRequest, owner, func(t *txn) error {
		req, err := t.request(reqAddr.Key)
		if err != nil {
			return err
		}
		if !req.Authority.Equals(owner) {
			return newError("", CodeUnauthorized, "%s does not own request", owner)
		}
		if !req.Status.IsTerminal() {
			return newError("", CodeInvalidStatus, "request is %s, want %s", req.Status, model.RequestStatusCompleted)
		}
		refunded, err = t.Delete(reqAddr.Key)
		if err != nil {
			return err
		}
		t.emit(event.RecordKindRequest, reqAddr.Key, owner, req.Status.String(), "", refunded)
		return nil
	})
	return refunded, err
}
