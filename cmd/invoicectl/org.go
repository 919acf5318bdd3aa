package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emperorhan/invoice-oracle/internal/bootstrap"
	"github.com/emperorhan/invoice-oracle/internal/codec"
)

func orgCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage the signer's organization",
	}
	cmd.AddCommand(orgApplyCmd(a), orgShowCmd(a), orgUpdateCmd(a))
	return cmd
}

func orgApplyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or reconcile the organization and vendors from a YAML manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			m, err := bootstrap.Load(path)
			if err != nil {
				return err
			}
			n, signer, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			res, err := bootstrap.Apply(cmd.Context(), n.Client, signer, m, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringP("file", "f", "org.yaml", "Manifest file")
	return cmd
}

func orgShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [authority]",
		Short: "Show an organization (default: the signer's)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authority, err := a.keyOrSigner(args)
			if err != nil {
				return err
			}
			n, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			addr, err := n.Keys.OrgConfig(authority)
			if err != nil {
				return err
			}
			org, err := n.Client.Org(cmd.Context(), addr.Key)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"address": addr.Key, "org": org})
		},
	}
}

func orgUpdateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update caps, pause state or oracle signer",
		Long: `Caps are applied only when --per-invoice-cap and --daily-cap are given
together. --pause and --unpause are mutually exclusive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var update codec.UpdateOrgConfigArgs
			flags := cmd.Flags()
			if flags.Changed("per-invoice-cap") {
				v, _ := flags.GetUint64("per-invoice-cap")
				update.PerInvoiceCap = &v
			}
			if flags.Changed("daily-cap") {
				v, _ := flags.GetUint64("daily-cap")
				update.DailyCap = &v
			}
			pause, _ := flags.GetBool("pause")
			unpause, _ := flags.GetBool("unpause")
			switch {
			case pause && unpause:
				return fmt.Errorf("--pause and --unpause are mutually exclusive")
			case pause, unpause:
				update.Paused = &pause
			}
			if flags.Changed("oracle-signer") {
				s, _ := flags.GetString("oracle-signer")
				k, err := parseKey(s)
				if err != nil {
					return err
				}
				update.OracleSigner = &k
			}

			n, signer, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			orgAddr, err := n.Keys.OrgConfig(signer.PublicKey())
			if err != nil {
				return err
			}
			ix, err := n.Client.Builder().UpdateOrgConfig(signer.PublicKey(), orgAddr.Key, update)
			if err != nil {
				return err
			}
			return a.submit(cmd.Context(), cmd.OutOrStdout(), signer, ix)
		},
	}
	cmd.Flags().Uint64("per-invoice-cap", 0, "Per-invoice cap in base units")
	cmd.Flags().Uint64("daily-cap", 0, "Daily cap in base units")
	cmd.Flags().Bool("pause", false, "Pause the organization")
	cmd.Flags().Bool("unpause", false, "Resume the organization")
	cmd.Flags().String("oracle-signer", "", "New oracle signer public key")
	return cmd
}
