package main

import (
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/emperorhan/invoice-oracle/internal/ledger"
)

func vendorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendor",
		Short: "Manage the vendors of the signer's organization",
	}
	cmd.AddCommand(
		vendorRegisterCmd(a),
		vendorToggleCmd(a, "activate", "Reactivate a vendor", (*ledger.Builder).ActivateVendor),
		vendorToggleCmd(a, "deactivate", "Deactivate a vendor", (*ledger.Builder).DeactivateVendor),
		vendorSetWalletCmd(a),
		vendorShowCmd(a),
	)
	return cmd
}

type vendorRef struct {
	orgKey    solana.PublicKey
	vendorKey solana.PublicKey
}

func resolveVendor(a *app, cmd *cobra.Command, authority solana.PublicKey, name string) (vendorRef, error) {
	n, err := a.open(cmd.Context())
	if err != nil {
		return vendorRef{}, err
	}
	orgAddr, err := n.Keys.OrgConfig(authority)
	if err != nil {
		return vendorRef{}, err
	}
	vendorAddr, err := n.Keys.Vendor(orgAddr.Key, name)
	if err != nil {
		return vendorRef{}, err
	}
	return vendorRef{orgKey: orgAddr.Key, vendorKey: vendorAddr.Key}, nil
}

func vendorRegisterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a vendor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _ := cmd.Flags().GetString("wallet")
			wallet, err := parseKey(s)
			if err != nil {
				return err
			}
			n, signer, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ref, err := resolveVendor(a, cmd, signer.PublicKey(), args[0])
			if err != nil {
				return err
			}
			ix, err := n.Client.Builder().RegisterVendor(signer.PublicKey(), ref.orgKey, args[0], wallet)
			if err != nil {
				return err
			}
			return a.submit(cmd.Context(), cmd.OutOrStdout(), signer, ix)
		},
	}
	cmd.Flags().String("wallet", "", "Payout wallet public key")
	cmd.MarkFlagRequired("wallet")
	return cmd
}

type vendorOp func(b *ledger.Builder, authority, orgKey, vendorKey solana.PublicKey) (*solana.GenericInstruction, error)

func vendorToggleCmd(a *app, use, short string, op vendorOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, signer, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ref, err := resolveVendor(a, cmd, signer.PublicKey(), args[0])
			if err != nil {
				return err
			}
			ix, err := op(n.Client.Builder(), signer.PublicKey(), ref.orgKey, ref.vendorKey)
			if err != nil {
				return err
			}
			return a.submit(cmd.Context(), cmd.OutOrStdout(), signer, ix)
		},
	}
}

func vendorSetWalletCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-wallet <name>",
		Short: "Change a vendor's payout wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _ := cmd.Flags().GetString("wallet")
			wallet, err := parseKey(s)
			if err != nil {
				return err
			}
			n, signer, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ref, err := resolveVendor(a, cmd, signer.PublicKey(), args[0])
			if err != nil {
				return err
			}
			ix, err := n.Client.Builder().UpdateVendorWallet(signer.PublicKey(), ref.orgKey, ref.vendorKey, wallet)
			if err != nil {
				return err
			}
			return a.submit(cmd.Context(), cmd.OutOrStdout(), signer, ix)
		},
	}
	cmd.Flags().String("wallet", "", "Payout wallet public key")
	cmd.MarkFlagRequired("wallet")
	return cmd
}

func vendorShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a vendor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var authority solana.PublicKey
			if s, _ := cmd.Flags().GetString("org-authority"); s != "" {
				k, err := parseKey(s)
				if err != nil {
					return err
				}
				authority = k
			} else {
				k, err := a.key()
				if err != nil {
					return err
				}
				authority = k.PublicKey()
			}
			ref, err := resolveVendor(a, cmd, authority, args[0])
			if err != nil {
				return err
			}
			v, err := a.node.Client.Vendor(cmd.Context(), ref.vendorKey)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"address": ref.vendorKey, "vendor": v})
		},
	}
	cmd.Flags().String("org-authority", "", "Organization authority (default: the signer)")
	return cmd
}
