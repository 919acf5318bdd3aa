// Package ledger submits protocol instructions and reads protocol records
// through a pluggable backend: the in-process engine or a Solana cluster.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/metrics"
	"github.com/emperorhan/invoice-oracle/internal/store"
	"github.com/emperorhan/invoice-oracle/internal/tracing"
)

// Backend carries signed instructions to the protocol and reads its
// records. Account returns store.ErrNotFound for absent records.
type Backend interface {
	Name() string
	Submit(ctx context.Context, signer solana.PrivateKey, instructions ...solana.Instruction) (string, error)
	Account(ctx context.Context, key solana.PublicKey) (store.Account, error)
	Accounts(ctx context.Context, disc bin.TypeID) ([]store.Account, error)
}

// Request is an extraction request together with its address.
type Request struct {
	Key    solana.PublicKey
	Record *model.ExtractionRequest
}

type Client struct {
	backend Backend
	builder *Builder
	logger  *slog.Logger
}

func NewClient(backend Backend, builder *Builder, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backend: backend,
		builder: builder,
		logger:  logger.With("component", "ledger", "backend", backend.Name()),
	}
}

func (c *Client) Builder() *Builder { return c.builder }

func (c *Client) Backend() Backend { return c.backend }

// Submit sends instructions under signer and records the outcome.
func (c *Client) Submit(ctx context.Context, signer solana.PrivateKey, instructions ...solana.Instruction) (string, error) {
	op := opLabel(instructions)
	ctx, span := tracing.StartSpan(ctx, "ledger.submit")
	start := time.Now()

	sig, err := c.backend.Submit(ctx, signer, instructions...)
	tracing.End(span, err)

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.LedgerSubmissionsTotal.WithLabelValues(c.backend.Name(), op, result).Inc()
	if err != nil {
		return "", fmt.Errorf("submit %s: %w", op, err)
	}
	c.logger.Debug("submitted", "op", op, "signature", sig, "duration", time.Since(start))
	return sig, nil
}

func opLabel(instructions []solana.Instruction) string {
	if len(instructions) == 0 {
		return "none"
	}
	data, err := instructions[0].Data()
	if err != nil {
		return "unknown"
	}
	args, err := codec.DecodeInstruction(data)
	if err != nil {
		return "unknown"
	}
	return args.Op().String()
}

// PendingRequests lists the extraction requests still waiting for the
// oracle.
func (c *Client) PendingRequests(ctx context.Context) ([]Request, error) {
	accounts, err := c.backend.Accounts(ctx, codec.DiscExtractionRequest)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	var out []Request
	for _, acc := range accounts {
		req, err := codec.DecodeAs[*model.ExtractionRequest](acc.Data)
		if err != nil {
			c.logger.Warn("skipping undecodable request", "key", acc.Key, "error", err)
			continue
		}
		if req.Status == model.RequestStatusPending {
			out = append(out, Request{Key: acc.Key, Record: req})
		}
	}
	return out, nil
}

func (c *Client) Request(ctx context.Context, key solana.PublicKey) (*model.ExtractionRequest, error) {
	return read[*model.ExtractionRequest](ctx, c.backend, key)
}

func (c *Client) Invoice(ctx context.Context, key solana.PublicKey) (*model.Invoice, error) {
	return read[*model.Invoice](ctx, c.backend, key)
}

func (c *Client) Org(ctx context.Context, key solana.PublicKey) (*model.OrgConfig, error) {
	return read[*model.OrgConfig](ctx, c.backend, key)
}

func (c *Client) Vendor(ctx context.Context, key solana.PublicKey) (*model.Vendor, error) {
	return read[*model.Vendor](ctx, c.backend, key)
}

func read[T model.Record](ctx context.Context, b Backend, key solana.PublicKey) (T, error) {
	var zero T
	acc, err := b.Account(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", key, err)
	}
	rec, err := codec.DecodeAs[T](acc.Data)
	if err != nil {
		return zero, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

// IsNotFound reports whether err is an absent-record read.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// SubmitExtraction records the oracle's extraction for claimant.
func (c *Client) SubmitExtraction(ctx context.Context, oracle solana.PrivateKey, orgKey, claimant solana.PublicKey, vendorName string, amount uint64, dueDate int64) (string, error) {
	ix, err := c.builder.ProcessExtraction(oracle.PublicKey(), orgKey, claimant, vendorName, amount, dueDate)
	if err != nil {
		return "", err
	}
	return c.Submit(ctx, oracle, ix)
}

// RequestAudit asks for audit randomness on claimant's invoice, paid by
// payer.
func (c *Client) RequestAudit(ctx context.Context, payer solana.PrivateKey, orgKey, claimant solana.PublicKey, clientSeed uint8) (string, error) {
	ix, err := c.builder.RequestAudit(payer.PublicKey(), orgKey, claimant, clientSeed)
	if err != nil {
		return "", err
	}
	return c.Submit(ctx, payer, ix)
}
