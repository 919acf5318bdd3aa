package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/emperorhan/invoice-oracle/internal/config"
	"github.com/emperorhan/invoice-oracle/internal/keys"
	"github.com/emperorhan/invoice-oracle/internal/node"
)

var Version = "dev"

var openNode = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*node.Node, error) {
	return node.Open(ctx, cfg, logger)
}

// app carries the global flags and the lazily opened ledger.
type app struct {
	keypairPath string
	verbose     bool

	node   *node.Node
	signer solana.PrivateKey
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "invoicectl",
		Short: "Operate organizations, vendors and invoices on the invoice ledger",
		Long: `invoicectl submits signed protocol instructions to the ledger selected by
the environment (LEDGER_BACKEND, STORE_BACKEND, SOLANA_RPC_URL, ...).

The local backend keeps state in its record store, so use STORE_BACKEND=postgres
to share state with a running oracle.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.node == nil {
				return nil
			}
			return a.node.Close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.keypairPath, "keypair", "k", "id.json", "Signer keypair file (solana-keygen JSON)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log ledger activity to stderr")

	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(orgCmd(a))
	rootCmd.AddCommand(vendorCmd(a))
	rootCmd.AddCommand(requestCmd(a))
	rootCmd.AddCommand(invoiceCmd(a))
	rootCmd.AddCommand(creditCmd(a))
	return rootCmd
}

// open connects to the ledger once per invocation.
func (a *app) open(ctx context.Context) (*node.Node, error) {
	if a.node != nil {
		return a.node, nil
	}
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	n, err := openNode(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.node = n
	return n, nil
}

func (a *app) key() (solana.PrivateKey, error) {
	if a.signer != nil {
		return a.signer, nil
	}
	k, err := keys.LoadKeypair(a.keypairPath)
	if err != nil {
		return nil, err
	}
	a.signer = k
	return k, nil
}

// session opens the ledger and loads the signer.
func (a *app) session(ctx context.Context) (*node.Node, solana.PrivateKey, error) {
	n, err := a.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	k, err := a.key()
	if err != nil {
		return nil, nil, err
	}
	return n, k, nil
}

// submit sends instructions signed by signer and settles any randomness
// the local engine queued in the meantime.
func (a *app) submit(ctx context.Context, out io.Writer, signer solana.PrivateKey, instructions ...solana.Instruction) error {
	sig, err := a.node.Client.Submit(ctx, signer, instructions...)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "signature: %s\n", sig)
	if a.node.VRF != nil && a.node.VRF.Pending() > 0 {
		if err := a.node.VRF.Drain(ctx); err != nil {
			return fmt.Errorf("fulfil randomness: %w", err)
		}
	}
	return nil
}

func parseKey(s string) (solana.PublicKey, error) {
	k, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid public key %q: %w", s, err)
	}
	return k, nil
}

// keyOrSigner parses the first argument, defaulting to the signer.
func (a *app) keyOrSigner(args []string) (solana.PublicKey, error) {
	if len(args) > 0 {
		return parseKey(args[0])
	}
	k, err := a.key()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return k.PublicKey(), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func keygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new keypair file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			key, err := solana.NewRandomPrivateKey()
			if err != nil {
				return err
			}
			if err := keys.WriteKeypair(out, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pubkey: %s\n", key.PublicKey())
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "id.json", "Output file")
	return cmd
}
