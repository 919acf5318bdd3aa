package main

import (
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

var errLocalOnly = errors.New("only available on the local ledger backend")

func mintOwnerFlags(cmd *cobra.Command, a *app) (mint, owner solana.PublicKey, err error) {
	s, _ := cmd.Flags().GetString("mint")
	if mint, err = parseKey(s); err != nil {
		return
	}
	if s, _ = cmd.Flags().GetString("owner"); s != "" {
		owner, err = parseKey(s)
		return
	}
	k, err := a.key()
	if err != nil {
		return
	}
	return mint, k.PublicKey(), nil
}

// creditCmd mints test balances into the local engine's holdings.
func creditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credit",
		Short: "Credit a token holding (local backend)",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, _ := cmd.Flags().GetUint64("amount")
			mint, owner, err := mintOwnerFlags(cmd, a)
			if err != nil {
				return err
			}
			n, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if n.Engine == nil {
				return errLocalOnly
			}
			if err := n.Engine.Credit(cmd.Context(), mint, owner, amount); err != nil {
				return err
			}
			balance, err := n.Engine.Balance(cmd.Context(), mint, owner)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"mint": mint, "owner": owner, "balance": balance})
		},
	}
	cmd.Flags().String("mint", "", "Token mint")
	cmd.Flags().String("owner", "", "Holding owner (default: the signer)")
	cmd.Flags().Uint64("amount", 0, "Amount in base units")
	cmd.MarkFlagRequired("mint")
	cmd.MarkFlagRequired("amount")
	return cmd
}
