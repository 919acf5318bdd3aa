package main

import (
	"github.com/spf13/cobra"
)

func requestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Submit and inspect extraction requests",
	}
	cmd.AddCommand(requestSubmitCmd(a), requestShowCmd(a), requestListCmd(a), requestCloseCmd(a))
	return cmd
}

func requestSubmitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <document-ref>",
		Short: "Ask the oracle to extract an invoice document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, _ := cmd.Flags().GetUint64("amount")
			n, signer, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ix, err := n.Client.Builder().RequestExtraction(signer.PublicKey(), args[0], amount)
			if err != nil {
				return err
			}
			return a.submit(cmd.Context(), cmd.OutOrStdout(), signer, ix)
		},
	}
	cmd.Flags().Uint64("amount", 0, "Claimed amount in base units")
	return cmd
}

func requestShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [claimant]",
		Short: "Show a claimant's request (default: the signer's)",
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
			addr, err := n.Keys.Request(claimant)
			if err != nil {
				return err
			}
			req, err := n.Client.Request(cmd.Context(), addr.Key)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"address": addr.Key, "request": req})
		},
	}
}

func requestListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List requests waiting for the oracle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			pending, err := n.Client.PendingRequests(cmd.Context())
			if err != nil {
				return err
			}
			out := make([]map[string]any, 0, len(pending))
			for _, p := range pending {
				out = append(out, map[string]any{"address": p.Key, "request": p.Record})
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func requestCloseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Close the signer's completed request and reclaim its deposit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, signer, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ix, err := n.Client.Builder().CloseRequest(signer.PublicKey())
			if err != nil {
				return err
			}
			return a.submit(cmd.Context(), cmd.OutOrStdout(), signer, ix)
		},
	}
}
