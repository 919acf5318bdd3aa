// Package escrow holds the invoice-scoped signing capability and the value
// transfers it authorizes.
//
// A Capability is a program-derived address bound to one invoice key. It has
// no private key, so the only way to obtain one is to derive it, and the only
// thing it can authorize is moving value out of holdings owned by that same
// address.
package escrow

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/keys"
	"github.com/emperorhan/invoice-oracle/internal/store"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotAuthorized     = errors.New("authority does not own source holding")
	ErrMintMismatch      = errors.New("holding mint mismatch")
	ErrInvalidCapability = errors.New("invalid escrow capability")
)

// Capability authorizes transfers out of the escrow holding of one invoice.
// The zero value authorizes nothing.
type Capability struct {
	invoice solana.PublicKey
	addr    keys.Address
	program solana.PublicKey
}

// Derive mints the capability of invoice.
func Derive(d *keys.Deriver, invoice solana.PublicKey) (Capability, error) {
	addr, err := d.EscrowAuthority(invoice)
	if err != nil {
		return Capability{}, err
	}
	return Capability{invoice: invoice, addr: addr, program: d.ProgramID()}, nil
}

// Key is the address escrowed value is held under.
func (c Capability) Key() solana.PublicKey { return c.addr.Key }

func (c Capability) Bump() uint8 { return c.addr.Bump }

func (c Capability) Invoice() solana.PublicKey { return c.invoice }

// Verify checks the proof of derivation: the address re-derived from the
// invoice key and stored bump must match and must not be on the curve.
func (c Capability) Verify() error {
	if c.addr.Key.IsZero() {
		return ErrInvalidCapability
	}
	seeds := [][]byte{[]byte(keys.SeedEscrowAuth), c.invoice.Bytes(), {c.addr.Bump}}
	got, err := solana.CreateProgramAddress(seeds, c.program)
	if err != nil || !got.Equals(c.addr.Key) {
		return ErrInvalidCapability
	}
	return nil
}

// Authority is something that may move value out of a holding.
type Authority interface {
	owns(owner solana.PublicKey) bool
}

// Signer is an identity authorizing transfers from its own holdings by
// having signed the operation.
type Signer solana.PublicKey

func (s Signer) owns(owner solana.PublicKey) bool {
	return solana.PublicKey(s).Equals(owner)
}

func (c Capability) owns(owner solana.PublicKey) bool {
	return c.Verify() == nil && c.addr.Key.Equals(owner)
}

// HoldingAddress is the record key of owner's holding of mint.
func HoldingAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive holding address: %w", err)
	}
	return addr, nil
}

// Balance returns owner's balance of mint, zero when no holding exists.
func Balance(tx store.Tx, mint, owner solana.PublicKey) (uint64, error) {
	h, _, err := loadHolding(tx, mint, owner)
	if err != nil {
		return 0, err
	}
	return h.Amount, nil
}

// Deposit credits owner's holding of mint, creating it when needed.
func Deposit(tx store.Tx, mint, owner solana.PublicKey, amount uint64) error {
	h, exists, err := loadHolding(tx, mint, owner)
	if err != nil {
		return err
	}
	if h.Amount+amount < h.Amount {
		return fmt.Errorf("deposit %d: balance overflow", amount)
	}
	h.Amount += amount
	return saveHolding(tx, h, exists)
}

// Transfer moves amount of mint from one owner's holding to another's.
// auth must own the source holding.
func Transfer(tx store.Tx, mint, from, to solana.PublicKey, amount uint64, auth Authority) error {
	if auth == nil || !auth.owns(from) {
		return ErrNotAuthorized
	}
	src, srcExists, err := loadHolding(tx, mint, from)
	if err != nil {
		return err
	}
	if !srcExists || src.Amount < amount {
		return fmt.Errorf("transfer %d from %s (balance %d): %w", amount, from, src.Amount, ErrInsufficientFunds)
	}
	if from.Equals(to) {
		return nil
	}
	dst, dstExists, err := loadHolding(tx, mint, to)
	if err != nil {
		return err
	}
	if dst.Amount+amount < dst.Amount {
		return fmt.Errorf("transfer %d to %s: balance overflow", amount, to)
	}

	src.Amount -= amount
	dst.Amount += amount
	if err := saveHolding(tx, src, true); err != nil {
		return err
	}
	return saveHolding(tx, dst, dstExists)
}

func loadHolding(tx store.Tx, mint, owner solana.PublicKey) (*model.TokenHolding, bool, error) {
	addr, err := HoldingAddress(owner, mint)
	if err != nil {
		return nil, false, err
	}
	acc, err := tx.Get(addr)
	if errors.Is(err, store.ErrNotFound) {
		return &model.TokenHolding{Mint: mint, Owner: owner}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	h, err := codec.DecodeAs[*model.TokenHolding](acc.Data)
	if err != nil {
		return nil, false, err
	}
	if !h.Mint.Equals(mint) || !h.Owner.Equals(owner) {
		return nil, false, ErrMintMismatch
	}
	return h, true, nil
}

func saveHolding(tx store.Tx, h *model.TokenHolding, exists bool) error {
	addr, err := HoldingAddress(h.Owner, h.Mint)
	if err != nil {
		return err
	}
	data, err := codec.EncodeRecord(h)
	if err != nil {
		return err
	}
	if exists {
		return tx.Put(addr, data)
	}
	return tx.Create(addr, data, store.RentExemptDeposit(len(data)))
}
