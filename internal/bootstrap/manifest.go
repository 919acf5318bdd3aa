// Package bootstrap applies a YAML organization manifest to the ledger:
// the organization itself and its vendor registry.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/ledger"
)

// Manifest describes the desired organization state.
type Manifest struct {
	Org     OrgSpec      `yaml:"org"`
	Vendors []VendorSpec `yaml:"vendors"`
}

type OrgSpec struct {
	TreasuryVault string `yaml:"treasury_vault"`
	Mint          string `yaml:"mint"`
	PerInvoiceCap uint64 `yaml:"per_invoice_cap"`
	DailyCap      uint64 `yaml:"daily_cap"`
	AuditRateBps  uint16 `yaml:"audit_rate_bps"`
	// OracleSigner replaces the default signer (the authority) when set.
	OracleSigner string `yaml:"oracle_signer,omitempty"`
}

type VendorSpec struct {
	Name   string `yaml:"name"`
	Wallet string `yaml:"wallet"`
}

// Result reports what Apply changed.
type Result struct {
	OrgConfig      solana.PublicKey
	OrgCreated     bool
	SignerUpdated  bool
	VendorsCreated []string
	VendorsUpdated []string
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	var errs []error
	for name, value := range map[string]string{
		"org.treasury_vault": m.Org.TreasuryVault,
		"org.mint":           m.Org.Mint,
	} {
		if _, err := solana.PublicKeyFromBase58(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if m.Org.OracleSigner != "" {
		if _, err := solana.PublicKeyFromBase58(m.Org.OracleSigner); err != nil {
			errs = append(errs, fmt.Errorf("org.oracle_signer: %w", err))
		}
	}
	if m.Org.PerInvoiceCap == 0 || m.Org.DailyCap == 0 {
		errs = append(errs, errors.New("org caps must be positive"))
	}
	if m.Org.AuditRateBps > model.MaxAuditRateBps {
		errs = append(errs, fmt.Errorf("org.audit_rate_bps %d exceeds %d", m.Org.AuditRateBps, model.MaxAuditRateBps))
	}

	seen := make(map[string]bool, len(m.Vendors))
	for i, v := range m.Vendors {
		// names are address seeds
		if v.Name == "" || len(v.Name) > solana.MaxSeedLength {
			errs = append(errs, fmt.Errorf("vendors[%d]: name must be 1-%d bytes", i, solana.MaxSeedLength))
		}
		if seen[v.Name] {
			errs = append(errs, fmt.Errorf("vendors[%d]: duplicate name %q", i, v.Name))
		}
		seen[v.Name] = true
		if _, err := solana.PublicKeyFromBase58(v.Wallet); err != nil {
			errs = append(errs, fmt.Errorf("vendors[%d].wallet: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Apply brings the ledger in line with m, signing as authority. Existing
// records are reconciled rather than recreated, so Apply can run on every
// start.
func Apply(ctx context.Context, client *ledger.Client, authority solana.PrivateKey, m *Manifest, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "bootstrap")
	b := client.Builder()
	owner := authority.PublicKey()

	orgAddr, err := b.Keys().OrgConfig(owner)
	if err != nil {
		return Result{}, err
	}
	res := Result{OrgConfig: orgAddr.Key}

	org, err := client.Org(ctx, orgAddr.Key)
	switch {
	case ledger.IsNotFound(err):
		ix, err := b.OrgInit(owner, codec.OrgInitArgs{
			TreasuryVault: solana.MustPublicKeyFromBase58(m.Org.TreasuryVault),
			Mint:          solana.MustPublicKeyFromBase58(m.Org.Mint),
			PerInvoiceCap: m.Org.PerInvoiceCap,
			DailyCap:      m.Org.DailyCap,
			AuditRateBps:  m.Org.AuditRateBps,
		})
		if err != nil {
			return res, err
		}
		if _, err := client.Submit(ctx, authority, ix); err != nil {
			return res, fmt.Errorf("init organization: %w", err)
		}
		res.OrgCreated = true
		logger.Info("organization created", "org_config", orgAddr.Key, "authority", owner)
		if org, err = client.Org(ctx, orgAddr.Key); err != nil {
			return res, err
		}
	case err != nil:
		return res, err
	}

	if m.Org.OracleSigner != "" {
		signer := solana.MustPublicKeyFromBase58(m.Org.OracleSigner)
		if !org.OracleSigner.Equals(signer) {
			ix, err := b.UpdateOrgConfig(owner, orgAddr.Key, codec.UpdateOrgConfigArgs{OracleSigner: &signer})
			if err != nil {
				return res, err
			}
			if _, err := client.Submit(ctx, authority, ix); err != nil {
				return res, fmt.Errorf("set oracle signer: %w", err)
			}
			res.SignerUpdated = true
			logger.Info("oracle signer updated", "org_config", orgAddr.Key, "oracle_signer", signer)
		}
	}

	for _, v := range m.Vendors {
		changed, created, err := applyVendor(ctx, client, authority, orgAddr.Key, v)
		if err != nil {
			return res, fmt.Errorf("vendor %q: %w", v.Name, err)
		}
		switch {
		case created:
			res.VendorsCreated = append(res.VendorsCreated, v.Name)
		case changed:
			res.VendorsUpdated = append(res.VendorsUpdated, v.Name)
		}
	}
	logger.Info("manifest applied",
		"org_config", orgAddr.Key,
		"vendors_created", len(res.VendorsCreated),
		"vendors_updated", len(res.VendorsUpdated),
	)
	return res, nil
}

func applyVendor(ctx context.Context, client *ledger.Client, authority solana.PrivateKey, orgKey solana.PublicKey, v VendorSpec) (changed, created bool, err error) {
	b := client.Builder()
	owner := authority.PublicKey()
	wallet := solana.MustPublicKeyFromBase58(v.Wallet)

	addr, err := b.Keys().Vendor(orgKey, v.Name)
	if err != nil {
		return false, false, err
	}
	vendor, err := client.Vendor(ctx, addr.Key)
	if ledger.IsNotFound(err) {
		ix, err := b.RegisterVendor(owner, orgKey, v.Name, wallet)
		if err != nil {
			return false, false, err
		}
		_, err = client.Submit(ctx, authority, ix)
		return err == nil, err == nil, err
	}
	if err != nil {
		return false, false, err
	}

	var ixs []solana.Instruction
	if !vendor.Wallet.Equals(wallet) {
		ix, err := b.UpdateVendorWallet(owner, orgKey, addr.Key, wallet)
		if err != nil {
			return false, false, err
		}
		ixs = append(ixs, ix)
	}
	if !vendor.IsActive {
		ix, err := b.ActivateVendor(owner, orgKey, addr.Key)
		if err != nil {
			return false, false, err
		}
		ixs = append(ixs, ix)
	}
	if len(ixs) == 0 {
		return false, false, nil
	}
	if _, err := client.Submit(ctx, authority, ixs...); err != nil {
		return false, false, err
	}
	return true, false, nil
}
