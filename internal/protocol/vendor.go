package protocol

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/event"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
)

// RegisterVendor whitelists a payee for the organization. The vendor's
// preferred denomination is the organization's mint.
func (e *Engine) RegisterVendor(ctx context.Context, authority, orgKey solana.PublicKey, name string, wallet solana.PublicKey) (solana.PublicKey, error) {
	var vendorKey solana.PublicKey
	err := e.run(ctx, codec.OpRegisterVendor, authority, func(t *txn) error {
		cfg, err := t.org(orgKey)
		if err != nil {
			return err
		}
		if err := Authorize(authority, RoleOrgAuthority, Subject{Config: cfg}); err != nil {
			return err
		}
		if err := ValidateVendorName(name); err != nil {
			return err
		}
		if wallet.IsZero() {
			return newError("", CodeInvalidWallet, "payout wallet must be set")
		}
		vendorKey, err = e.vendorKey(orgKey, name)
		if err != nil {
			return err
		}
		v := &model.Vendor{
			Org:                orgKey,
			VendorName:         name,
			Wallet:             wallet,
			IsActive:           true,
			CurrencyPreference: cfg.Mint,
		}
		if err := t.create(vendorKey, v); err != nil {
			return err
		}
		t.emit(event.RecordKindVendor, vendorKey, solana.PublicKey{}, "", "Active", 0)
		return nil
	})
	return vendorKey, err
}

func (e *Engine) DeactivateVendor(ctx context.Context, authority, orgKey, vendorKey solana.PublicKey) error {
	return e.manageVendor(ctx, codec.OpDeactivateVendor, authority, orgKey, vendorKey, func(v *model.Vendor) error {
		if !v.IsActive {
			return newError("", CodeVendorInactive, "vendor %q already inactive", v.VendorName)
		}
		v.IsActive = false
		return nil
	})
}

func (e *Engine) ActivateVendor(ctx context.Context, authority, orgKey, vendorKey solana.PublicKey) error {
	return e.manageVendor(ctx, codec.OpActivateVendor, authority, orgKey, vendorKey, func(v *model.Vendor) error {
		if v.IsActive {
			return newError("", CodeVendorAlreadyActive, "vendor %q already active", v.VendorName)
		}
		v.IsActive = true
		return nil
	})
}

func (e *Engine) UpdateVendorWallet(ctx context.Context, authority, orgKey, vendorKey, wallet solana.PublicKey) error {
	return e.manageVendor(ctx, codec.OpUpdateVendorWallet, authority, orgKey, vendorKey, func(v *model.Vendor) error {
		if wallet.IsZero() {
			return newError("", CodeInvalidWallet, "payout wallet must be set")
		}
		v.Wallet = wallet
		return nil
	})
}

func (e *Engine) manageVendor(ctx context.Context, op codec.Op, authority, orgKey, vendorKey solana.PublicKey, mutate func(*model.Vendor) error) error {
	return e.run(ctx, op, authority, func(t *txn) error {
		cfg, err := t.org(orgKey)
		if err != nil {
			return err
		}
		if err := Authorize(authority, RoleOrgAuthority, Subject{Config: cfg}); err != nil {
			return err
		}
		v, err := t.vendor(vendorKey)
		if err != nil {
			return err
		}
		if !v.Org.Equals(orgKey) {
			return newError("", CodeWrongOrg, "vendor %s belongs to %s", vendorKey, v.Org)
		}
		want, err := e.vendorKey(orgKey, v.VendorName)
		if err != nil {
			return err
		}
		if !want.Equals(vendorKey) {
			return newError("", CodeConstraintSeeds, "vendor %s is not derived from %q", vendorKey, v.VendorName)
		}

		from := vendorState(v)
		if err := mutate(v); err != nil {
			return err
		}
		if err := t.put(vendorKey, v); err != nil {
			return err
		}
		t.emit(event.RecordKindVendor, vendorKey, solana.PublicKey{}, from, vendorState(v), 0)
		return nil
	})
}

// vendorKey derives the vendor address, reporting names that cannot be used
// as a derivation seed as invalid vendors.
func (e *Engine) vendorKey(orgKey solana.PublicKey, name string) (solana.PublicKey, error) {
	addr, err := e.keys.Vendor(orgKey, name)
	if err != nil {
		return solana.PublicKey{}, wrapError("", CodeInvalidVendor, err)
	}
	return addr.Key, nil
}

func vendorState(v *model.Vendor) string {
	if v.IsActive {
		return "Active"
	}
	return "Inactive"
}
