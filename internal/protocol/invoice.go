package protocol

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/event"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/store"
)

// RequestExtraction opens the claimant's extraction request. A claimant
// holds at most one request; a second one fails with AlreadyExists until
// the first is closed.
func (e *Engine) RequestExtraction(ctx context.Context, claimant solana.PublicKey, ipfsHash string, amount uint64) (solana.PublicKey, error) {
	addr, err := e.keys.Request(claimant)
	if err != nil {
		return solana.PublicKey{}, err
	}
	err = e.run(ctx, codec.OpRequestExtraction, claimant, func(t *txn) error {
		if ipfsHash == "" {
			return newError("", CodeInvalidIPFSHash, "document reference is empty")
		}
		if len(ipfsHash) > model.MaxDocumentRefLen {
			return newError("", CodeInvalidIPFSHash, "document reference is %d bytes, max %d", len(ipfsHash), model.MaxDocumentRefLen)
		}
		if amount == 0 {
			return newError("", CodeInvalidAmount, "claimed amount must be positive")
		}
		req := &model.ExtractionRequest{
			Authority: claimant,
			IPFSHash:  ipfsHash,
			Status:    model.RequestStatusPending,
			Timestamp: t.now,
			Amount:    amount,
		}
		if err := t.create(addr.Key, req); err != nil {
			return err
		}
		t.emit(event.RecordKindRequest, addr.Key, claimant, "", req.Status.String(), amount)
		return nil
	})
	return addr.Key, err
}

// ExtractionResult is the oracle's reading of a claimant's document.
type ExtractionResult struct {
	OrgConfig  solana.PublicKey
	Claimant   solana.PublicKey
	VendorName string
	Amount     uint64
	DueDate    int64
}

// ProcessExtraction records the oracle's extraction as a Validated invoice
// and completes the request. Only the organization's oracle signer may call
// it, and the named vendor must be registered and active in the same
// organization.
func (e *Engine) ProcessExtraction(ctx context.Context, signer solana.PublicKey, res ExtractionResult) (solana.PublicKey, error) {
	invAddr, err := e.keys.Invoice(res.Claimant)
	if err != nil {
		return solana.PublicKey{}, err
	}
	reqAddr, err := e.keys.Request(res.Claimant)
	if err != nil {
		return solana.PublicKey{}, err
	}

	err = e.run(ctx, codec.OpProcessExtraction, signer, func(t *txn) error {
		// One invoice per claimant: a repeat submission fails on the invoice
		// key before any other check.
		if _, err := t.Get(invAddr.Key); err == nil {
			return newError("", CodeAlreadyExists, "invoice %s already exists", invAddr.Key)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		cfg, err := t.org(res.OrgConfig)
		if err != nil {
			return err
		}
		if err := CheckNotPaused(cfg); err != nil {
			return err
		}
		if err := Authorize(signer, RoleOracleSigner, Subject{Config: cfg}); err != nil {
			return err
		}
		if err := ValidateAmount(res.Amount, cfg); err != nil {
			return err
		}
		if err := ValidateVendorName(res.VendorName); err != nil {
			return err
		}
		if res.DueDate <= t.now {
			return newError("", CodeInvalidDueDate, "due date %d is not after %d", res.DueDate, t.now)
		}

		vendorKey, err := e.vendorKey(res.OrgConfig, res.VendorName)
		if err != nil {
			return err
		}
		v, err := t.vendor(vendorKey)
		if IsCode(err, CodeNotFound) {
			return newError("", CodeInvalidVendor, "vendor %q is not registered", res.VendorName)
		}
		if err != nil {
			return err
		}
		if !v.IsActive {
			return newError("", CodeVendorInactive, "vendor %q is inactive", res.VendorName)
		}
		if !v.Org.Equals(res.OrgConfig) {
			return newError("", CodeWrongOrg, "vendor %q belongs to %s", res.VendorName, v.Org)
		}

		req, err := t.request(reqAddr.Key)
		if err != nil {
			return err
		}
		if req.Status != model.RequestStatusPending {
			return newError("", CodeInvalidStatus, "request is %s", req.Status)
		}

		inv := &model.Invoice{
			Authority:  res.Claimant,
			Vendor:     vendorKey,
			VendorName: res.VendorName,
			Amount:     res.Amount,
			DueDate:    res.DueDate,
			IPFSHash:   req.IPFSHash,
			Status:     model.InvoiceStatusValidated,
			Timestamp:  t.now,
		}
		if err := t.create(invAddr.Key, inv); err != nil {
			return err
		}

		req.Status = model.RequestStatusCompleted
		if err := t.put(reqAddr.Key, req); err != nil {
			return err
		}

		if cfg.InvoiceCounter+1 < cfg.InvoiceCounter {
			return newError("", CodeOverflow, "invoice counter overflow")
		}
		cfg.InvoiceCounter++
		if err := t.put(res.OrgConfig, cfg); err != nil {
			return err
		}

		t.emit(event.RecordKindRequest, reqAddr.Key, res.Claimant, model.RequestStatusPending.String(), req.Status.String(), req.Amount)
		t.emit(event.RecordKindInvoice, invAddr.Key, res.Claimant, "", inv.Status.String(), inv.Amount)
		return nil
	})
	return invAddr.Key, err
}
