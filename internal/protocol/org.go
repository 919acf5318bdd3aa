package protocol

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/event"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
)

// OrgInit creates the organization owned by authority. The authority is
// also the initial oracle signer.
func (e *Engine) OrgInit(ctx context.Context, authority solana.PublicKey, args codec.OrgInitArgs) (solana.PublicKey, error) {
	addr, err := e.keys.OrgConfig(authority)
	if err != nil {
		return solana.PublicKey{}, err
	}

	err = e.run(ctx, codec.OpOrgInit, authority, func(t *txn) error {
		if err := ValidateCaps(args.PerInvoiceCap, args.DailyCap); err != nil {
			return err
		}
		if err := ValidateAuditRate(args.AuditRateBps); err != nil {
			return err
		}
		cfg := &model.OrgConfig{
			Authority:     authority,
			OracleSigner:  authority,
			TreasuryVault: args.TreasuryVault,
			Mint:          args.Mint,
			PerInvoiceCap: args.PerInvoiceCap,
			DailyCap:      args.DailyCap,
			LastResetDay:  model.DayIndex(t.now),
			AuditRateBps:  args.AuditRateBps,
			Version:       model.OrgConfigVersion,
			Bump:          addr.Bump,
		}
		if err := t.create(addr.Key, cfg); err != nil {
			return err
		}
		t.emit(event.RecordKindOrgConfig, addr.Key, solana.PublicKey{}, "", "Active", 0)
		return nil
	})
	return addr.Key, err
}

// UpdateOrgConfig applies the supplied fields. Caps change only when both
// are supplied and valid together; pause and oracle signer change
// independently.
func (e *Engine) UpdateOrgConfig(ctx context.Context, authority, orgKey solana.PublicKey, args codec.UpdateOrgConfigArgs) error {
	return e.run(ctx, codec.OpUpdateOrgConfig, authority, func(t *txn) error {
		cfg, err := t.org(orgKey)
		if err != nil {
			return err
		}
		if err := Authorize(authority, RoleOrgAuthority, Subject{Config: cfg}); err != nil {
			return err
		}

		if args.PerInvoiceCap != nil && args.DailyCap != nil {
			if err := ValidateCaps(*args.PerInvoiceCap, *args.DailyCap); err != nil {
				return err
			}
			cfg.PerInvoiceCap = *args.PerInvoiceCap
			cfg.DailyCap = *args.DailyCap
		}
		from, to := "Active", "Active"
		if cfg.Paused {
			from = "Paused"
		}
		if args.Paused != nil {
			cfg.Paused = *args.Paused
		}
		if cfg.Paused {
			to = "Paused"
		}
		if args.OracleSigner != nil {
			cfg.OracleSigner = *args.OracleSigner
		}

		if err := t.put(orgKey, cfg); err != nil {
			return err
		}
		t.emit(event.RecordKindOrgConfig, orgKey, solana.PublicKey{}, from, to, 0)
		return nil
	})
}
