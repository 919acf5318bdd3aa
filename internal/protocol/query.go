package protocol

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/protocol/escrow"
	"github.com/emperorhan/invoice-oracle/internal/store"
)

// Keyed pairs a decoded record with its address.
type Keyed[T model.Record] struct {
	Key     solana.PublicKey `json:"key"`
	Record  T                `json:"record"`
	Deposit uint64           `json:"deposit"`
}

func getRecord[T model.Record](ctx context.Context, e *Engine, key solana.PublicKey, what string) (T, error) {
	var out T
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = loadRecord[T](&txn{Tx: tx, e: e}, key, what)
		return err
	})
	return out, err
}

func listRecords[T model.Record](ctx context.Context, e *Engine, disc bin.TypeID) ([]Keyed[T], error) {
	accs, err := e.store.List(ctx, disc)
	if err != nil {
		return nil, err
	}
	out := make([]Keyed[T], 0, len(accs))
	for _, acc := range accs {
		rec, err := codec.DecodeAs[T](acc.Data)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", acc.Key, err)
		}
		out = append(out, Keyed[T]{Key: acc.Key, Record: rec, Deposit: acc.Deposit})
	}
	return out, nil
}

func (e *Engine) Org(ctx context.Context, key solana.PublicKey) (*model.OrgConfig, error) {
	return getRecord[*model.OrgConfig](ctx, e, key, "organization")
}

func (e *Engine) Request(ctx context.Context, key solana.PublicKey) (*model.ExtractionRequest, error) {
	return getRecord[*model.ExtractionRequest](ctx, e, key, "request")
}

func (e *Engine) Invoice(ctx context.Context, key solana.PublicKey) (*model.Invoice, error) {
	return getRecord[*model.Invoice](ctx, e, key, "invoice")
}

func (e *Engine) Vendor(ctx context.Context, key solana.PublicKey) (*model.Vendor, error) {
	return getRecord[*model.Vendor](ctx, e, key, "vendor")
}

func (e *Engine) Requests(ctx context.Context) ([]Keyed[*model.ExtractionRequest], error) {
	return listRecords[*model.ExtractionRequest](ctx, e, codec.DiscExtractionRequest)
}

// PendingRequests lists requests still waiting for extraction.
func (e *Engine) PendingRequests(ctx context.Context) ([]Keyed[*model.ExtractionRequest], error) {
	all, err := e.Requests(ctx)
	if err != nil {
		return nil, err
	}
	pending := all[:0]
	for _, r := range all {
		if r.Record.Status == model.RequestStatusPending {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

func (e *Engine) Invoices(ctx context.Context) ([]Keyed[*model.Invoice], error) {
	return listRecords[*model.Invoice](ctx, e, codec.DiscInvoice)
}

// Vendors lists the vendors registered to orgKey.
func (e *Engine) Vendors(ctx context.Context, orgKey solana.PublicKey) ([]Keyed[*model.Vendor], error) {
	all, err := listRecords[*model.Vendor](ctx, e, codec.DiscVendor)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, v := range all {
		if v.Record.Org.Equals(orgKey) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Balance returns owner's holding of mint.
func (e *Engine) Balance(ctx context.Context, mint, owner solana.PublicKey) (uint64, error) {
	var out uint64
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = escrow.Balance(tx, mint, owner)
		return err
	})
	return out, err
}

// Credit mints amount of mint into owner's holding. It stands in for the
// external value-transfer service when the protocol runs in-process.
func (e *Engine) Credit(ctx context.Context, mint, owner solana.PublicKey, amount uint64) error {
	return e.store.Update(ctx, func(tx store.Tx) error {
		return escrow.Deposit(tx, mint, owner, amount)
	})
}
