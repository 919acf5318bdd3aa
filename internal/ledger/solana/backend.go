// Package solana is a ledger backend that submits protocol instructions to
// a Solana cluster over JSON-RPC.
package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/emperorhan/invoice-oracle/internal/ledger/solana/rpc"
	"github.com/emperorhan/invoice-oracle/internal/metrics"
	"github.com/emperorhan/invoice-oracle/internal/orchestrator/retry"
	"github.com/emperorhan/invoice-oracle/internal/store"
)

const backendName = "solana"

// ErrTransactionFailed is returned when a submitted transaction lands with
// an execution error.
var ErrTransactionFailed = errors.New("transaction failed")

// ErrNotConfirmed is returned when a transaction was sent but no
// confirmation arrived before the confirm timeout.
var ErrNotConfirmed = errors.New("transaction not confirmed")

type Config struct {
	Commitment      string
	MaxRetries      uint64
	ConfirmTimeout  time.Duration
	ConfirmInterval time.Duration
}

type Backend struct {
	client    rpc.RPCClient
	programID solanago.PublicKey
	cfg       Config
	logger    *slog.Logger
}

func New(client rpc.RPCClient, programID solanago.PublicKey, cfg Config, logger *slog.Logger) *Backend {
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		client:    client,
		programID: programID,
		cfg:       cfg,
		logger:    logger.With("component", "ledger_solana"),
	}
}

func (b *Backend) Name() string { return backendName }

// Submit builds one transaction paid and signed by signer, sends it with
// retry on transient failures and waits for confirmation.
func (b *Backend) Submit(ctx context.Context, signer solanago.PrivateKey, instructions ...solanago.Instruction) (string, error) {
	if len(instructions) == 0 {
		return "", errors.New("no instructions")
	}

	var sig string
	send := func() error {
		var err error
		sig, err = b.send(ctx, signer, instructions)
		if err != nil && !retry.Classify(err).IsTransient() {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), b.cfg.MaxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		metrics.LedgerSubmissionRetries.WithLabelValues(backendName).Inc()
		b.logger.Warn("send failed, retrying", "error", err, "backoff", wait)
	}
	if err := backoff.RetryNotify(send, policy, notify); err != nil {
		return "", err
	}

	if err := b.confirm(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func (b *Backend) send(ctx context.Context, signer solanago.PrivateKey, instructions []solanago.Instruction) (string, error) {
	hash, err := b.client.GetLatestBlockhash(ctx, b.cfg.Commitment)
	if err != nil {
		return "", err
	}
	blockhash, err := solanago.HashFromBase58(hash)
	if err != nil {
		return "", fmt.Errorf("parse blockhash: %w", err)
	}

	tx, err := solanago.NewTransaction(instructions, blockhash, solanago.TransactionPayer(signer.PublicKey()))
	if err != nil {
		return "", retry.Terminal(fmt.Errorf("build transaction: %w", err))
	}
	if _, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	}); err != nil {
		return "", retry.Terminal(fmt.Errorf("sign transaction: %w", err))
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", retry.Terminal(fmt.Errorf("encode transaction: %w", err))
	}

	return b.client.SendTransaction(ctx, base64.StdEncoding.EncodeToString(raw))
}

func (b *Backend) confirm(ctx context.Context, sig string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(b.cfg.ConfirmInterval)
	defer ticker.Stop()

	for {
		statuses, err := b.client.GetSignatureStatuses(ctx, []string{sig})
		if err != nil {
			b.logger.Debug("signature status poll failed", "signature", sig, "error", err)
		} else if len(statuses) == 1 && statuses[0] != nil {
			if statuses[0].Err != nil {
				return retry.Terminal(fmt.Errorf("%w: %s: %v", ErrTransactionFailed, sig, statuses[0].Err))
			}
			if statuses[0].Confirmed() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrNotConfirmed, sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Account reads one program-owned record.
func (b *Backend) Account(ctx context.Context, key solanago.PublicKey) (store.Account, error) {
	info, err := b.client.GetAccountInfo(ctx, key.String())
	if err != nil {
		return store.Account{}, err
	}
	if info == nil {
		return store.Account{}, store.ErrNotFound
	}
	if info.Owner != b.programID.String() {
		return store.Account{}, fmt.Errorf("account %s owned by %s, not the protocol", key, info.Owner)
	}
	data, err := info.Bytes()
	if err != nil {
		return store.Account{}, err
	}
	return store.Account{Key: key, Data: data, Deposit: info.Lamports}, nil
}

// Accounts lists program records whose discriminator is disc.
func (b *Backend) Accounts(ctx context.Context, disc bin.TypeID) ([]store.Account, error) {
	filters := []rpc.Filter{{Memcmp: &rpc.Memcmp{Offset: 0, Bytes: base58.Encode(disc[:])}}}
	keyed, err := b.client.GetProgramAccounts(ctx, b.programID.String(), filters)
	if err != nil {
		return nil, err
	}
	out := make([]store.Account, 0, len(keyed))
	for _, k := range keyed {
		key, err := solanago.PublicKeyFromBase58(k.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("account key %q: %w", k.Pubkey, err)
		}
		data, err := k.Account.Bytes()
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", key, err)
		}
		out = append(out, store.Account{Key: key, Data: data, Deposit: k.Account.Lamports})
	}
	return out, nil
}
