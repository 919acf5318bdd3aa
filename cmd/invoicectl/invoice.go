package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/ledger"
	"github.com/emperorhan/invoice-oracle/internal/node"
)

func invoiceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Drive an invoice through payment",
	}
	cmd.AddCommand(
		invoiceShowCmd(a),
		invoiceAuditCmd(a),
		invoiceOwnerCmd(a, "pay", "Move a validated invoice into escrow", (*ledger.Builder).ProcessPayment),
		invoiceOwnerCmd(a, "complete", "Mark an escrowed invoice paid outside the protocol", (*ledger.Builder).CompletePayment),
		invoiceOwnerCmd(a, "close", "Close the signer's paid invoice and reclaim its deposit", (*ledger.Builder).CloseInvoice),
		invoiceFundCmd(a),
		invoiceSettleCmd(a),
	)
	return cmd
}

// invoiceParties is an invoice together with its vendor and organization.
type invoiceParties struct {
	invoice *model.Invoice
	vendor  *model.Vendor
	orgKey  solana.PublicKey
	org     *model.OrgConfig
}

func loadParties(ctx context.Context, n *node.Node, claimant solana.PublicKey) (*invoiceParties, error) {
	addr, err := n.Keys.Invoice(claimant)
	if err != nil {
		return nil, err
	}
	inv, err := n.Client.Invoice(ctx, addr.Key)
	if err != nil {
		return nil, err
	}
	vendor, err := n.Client.Vendor(ctx, inv.Vendor)
	if err != nil {
		return nil, fmt.Errorf("invoice vendor: %w", err)
	}
	org, err := n.Client.Org(ctx, vendor.Org)
	if err != nil {
		return nil, fmt.Errorf("invoice organization: %w", err)
	}
	return &invoiceParties{invoice: inv, vendor: vendor, orgKey: vendor.Org, org: org}, nil
}

func invoiceShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [claimant]",
		Short: "Show a claimant's invoice (default: the signer's)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claimant, err := a.keyOrSigner(args)
			if err != nil {
				return err
			}
			n, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			addr, err := n.Keys.Invoice(claimant)
			if err != nil {
				return err
			}
			inv, err := n.Client.Invoice(cmd.Context(), addr.Key)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"address": addr.Key, "invoice": inv})
		},
	}
}

func claimantFlag(cmd *cobra.Command, a *app) (solana.PublicKey, error) {
	s, _ := cmd.Flags().GetString("claimant")
	if s == "" {
		k, err := a.key()
		if err != nil {
			return solana.PublicKey{}, err
		}
		return k.PublicKey(), nil
	}
	return parseKey(s)
}

func invoiceAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Request audit randomness for a validated invoice",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, _ := cmd.Flags().GetUint8("seed")
			claimant, err := claimantFlag(cmd, a)
			if err != nil {
				return err
			}
			n, signer, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			p, err := loadParties(cmd.Context(), n, claimant)
			if err != nil {
				return err
			}
			ix, err := n.Client.Builder().RequestAudit(signer.PublicKey(), p.orgKey, claimant, seed)
			if err != nil {
				return err
			}
			return a.submit(cmd.Context(), cmd.OutOrStdout(), signer, ix)
		},
	}
	cmd.Flags().String("claimant", "", "Invoice owner (default: the signer)")
	cmd.Flags().Uint8("seed", 0, "Caller seed mixed into the randomness")
	return cmd
}

type ownerOp func(b *ledger.Builder, owner solana.PublicKey) (*solana.GenericInstruction, error)

func invoiceOwnerCmd(a *app, use, short string, op ownerOp) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, signer, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ix, err := op(n.Client.Builder(), signer.PublicKey())
			if err != nil {
				return err
			}
			return a.submit(cmd.Context(), cmd.OutOrStdout(), signer, ix)
		},
	}
}

func invoiceFundCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Fund an invoice's escrow from the signer's holding of the organization mint",
		RunE: func(cmd *cobra.Command, args []string) error {
			claimant, err := claimantFlag(cmd, a)
			if err != nil {
				return err
			}
			n, signer, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			p, err := loadParties(cmd.Context(), n, claimant)
			if err != nil {
				return err
			}
			ix, err := n.Client.Builder().FundEscrow(signer.PublicKey(), p.orgKey, claimant, p.org.Mint)
			if err != nil {
				return err
			}
			return a.submit(cmd.Context(), cmd.OutOrStdout(), signer, ix)
		},
	}
	cmd.Flags().String("claimant", "", "Invoice owner (default: the signer)")
	return cmd
}

func invoiceSettleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "settle",
		Short: "Release the signer's escrow to the vendor's wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, signer, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			p, err := loadParties(cmd.Context(), n, signer.PublicKey())
			if err != nil {
				return err
			}
			ix, err := n.Client.Builder().SettleToVendor(signer.PublicKey(), p.orgKey, p.vendor.Wallet, p.org.Mint)
			if err != nil {
				return err
			}
			return a.submit(cmd.Context(), cmd.OutOrStdout(), signer, ix)
		},
	}
}
