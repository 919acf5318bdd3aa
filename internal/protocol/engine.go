// Package protocol implements the invoice lifecycle: the transitions that
// create, validate, audit, escrow and settle invoices, and the authorization
// and cap rules that guard them.
//
// Every operation runs inside one store.RecordStore Update, so it reads and
// writes its records atomically and either applies completely or not at
// all. Transitions are published to the configured event.Sink only after
// the store transaction commits.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/domain/event"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/keys"
	"github.com/emperorhan/invoice-oracle/internal/metrics"
	"github.com/emperorhan/invoice-oracle/internal/protocol/escrow"
	"github.com/emperorhan/invoice-oracle/internal/store"
	"github.com/emperorhan/invoice-oracle/internal/tracing"
)

// RandomnessRequester forwards audit randomness requests to the randomness
// service. The service answers by calling AuditCallback.
type RandomnessRequester interface {
	RequestRandomness(ctx context.Context, req event.RandomnessRequest) error
}

type Engine struct {
	store              store.RecordStore
	keys               *keys.Deriver
	sink               event.Sink
	randomness         RandomnessRequester
	randomnessIdentity solana.PublicKey
	randomnessQueue    solana.PublicKey
	now                func() time.Time
	logger             *slog.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithSink(sink event.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRandomness sets the randomness service together with the identity its
// callbacks arrive as and the queue requests are addressed to. Without it
// AuditCallback rejects every caller.
func WithRandomness(r RandomnessRequester, identity, queue solana.PublicKey) Option {
	return func(e *Engine) {
		e.randomness = r
		e.randomnessIdentity = identity
		e.randomnessQueue = queue
	}
}

func NewEngine(s store.RecordStore, d *keys.Deriver, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		keys:   d,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "protocol")
	return e
}

func (e *Engine) Keys() *keys.Deriver { return e.keys }

func (e *Engine) RandomnessIdentity() solana.PublicKey { return e.randomnessIdentity }

// SetRandomness attaches a randomness service after construction. The
// service usually needs the engine itself to deliver callbacks.
func (e *Engine) SetRandomness(r RandomnessRequester) { e.randomness = r }

// txn is the per-operation view of the store.
type txn struct {
	store.Tx
	e           *Engine
	op          codec.Op
	actor       solana.PublicKey
	now         int64
	transitions []event.Transition
	afterCommit []func(context.Context) error
}

func (e *Engine) run(ctx context.Context, op codec.Op, actor solana.PublicKey, fn func(*txn) error) error {
	ctx, span := tracing.StartSpan(ctx, "protocol."+op.String(),
		attribute.String("op", op.String()),
		attribute.String("actor", actor.String()),
	)
	start := time.Now()

	var t *txn
	err := e.store.Update(ctx, func(tx store.Tx) error {
		t = &txn{Tx: tx, e: e, op: op, actor: actor, now: e.now().Unix()}
		return fn(t)
	})
	err = annotate(op, err)

	if err == nil {
		e.publish(ctx, t.transitions)
		for _, hook := range t.afterCommit {
			if hookErr := hook(ctx); hookErr != nil {
				err = fmt.Errorf("%s: %w", op, hookErr)
				break
			}
		}
	}

	metrics.TransitionLatency.WithLabelValues(op.String()).Observe(time.Since(start).Seconds())
	metrics.TransitionsTotal.WithLabelValues(op.String(), resultLabel(err)).Inc()
	tracing.End(span, err)

	if err != nil {
		e.logger.Warn("operation rejected", "op", op, "actor", actor, "code", CodeOf(err), "error", err)
		return err
	}
	for _, tr := range t.transitions {
		e.logger.Info("transition committed", "op", op, "kind", tr.Kind, "record", tr.Record, "from", tr.From, "to", tr.To)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, transitions []event.Transition) {
	if e.sink == nil || len(transitions) == 0 {
		return
	}
	if err := e.sink.Publish(ctx, transitions); err != nil {
		e.logger.Warn("publish transitions failed", "count", len(transitions), "error", err)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}

// annotate stamps the operation on protocol errors and maps store sentinels
// onto protocol codes.
func annotate(op codec.Op, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Op == "" {
			pe.Op = op.String()
		}
		return err
	}
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return wrapError(op.String(), CodeAlreadyExists, err)
	case errors.Is(err, store.ErrNotFound):
		return wrapError(op.String(), CodeNotFound, err)
	case errors.Is(err, escrow.ErrInsufficientFunds):
		return wrapError(op.String(), CodeInsufficientFunds, err)
	case errors.Is(err, escrow.ErrNotAuthorized):
		return wrapError(op.String(), CodeUnauthorized, err)
	case errors.Is(err, escrow.ErrMintMismatch):
		return wrapError(op.String(), CodeWrongMint, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (t *txn) emit(kind event.RecordKind, record, claimant solana.PublicKey, from, to string, amount uint64) {
	tr := event.NewTransition(t.op.String(), kind, record, t.actor, time.Unix(t.now, 0))
	tr.Claimant = claimant
	tr.From = from
	tr.To = to
	tr.Amount = amount
	t.transitions = append(t.transitions, tr)
}

func (t *txn) after(fn func(context.Context) error) {
	t.afterCommit = append(t.afterCommit, fn)
}

func loadRecord[T model.Record](t *txn, key solana.PublicKey, what string) (T, error) {
	var zero T
	acc, err := t.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		return zero, newError("", CodeNotFound, "%s %s not found", what, key)
	}
	if err != nil {
		return zero, err
	}
	rec, err := codec.DecodeAs[T](acc.Data)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", what, key, err)
	}
	return rec, nil
}

func (t *txn) org(key solana.PublicKey) (*model.OrgConfig, error) {
	return loadRecord[*model.OrgConfig](t, key, "organization")
}

func (t *txn) request(key solana.PublicKey) (*model.ExtractionRequest, error) {
	return loadRecord[*model.ExtractionRequest](t, key, "request")
}

func (t *txn) invoice(key solana.PublicKey) (*model.Invoice, error) {
	return loadRecord[*model.Invoice](t, key, "invoice")
}

func (t *txn) vendor(key solana.PublicKey) (*model.Vendor, error) {
	return loadRecord[*model.Vendor](t, key, "vendor")
}

// invoiceOrg resolves the organization an invoice belongs to through its
// vendor record.
func (t *txn) invoiceOrg(inv *model.Invoice) (solana.PublicKey, *model.OrgConfig, *model.Vendor, error) {
	v, err := t.vendor(inv.Vendor)
	if err != nil {
		return solana.PublicKey{}, nil, nil, err
	}
	cfg, err := t.org(v.Org)
	if err != nil {
		return solana.PublicKey{}, nil, nil, err
	}
	return v.Org, cfg, v, nil
}

func (t *txn) put(key solana.PublicKey, rec model.Record) error {
	data, err := codec.EncodeRecord(rec)
	if err != nil {
		return err
	}
	return t.Put(key, data)
}

func (t *txn) create(key solana.PublicKey, rec model.Record) error {
	data, err := codec.EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := t.Create(key, data, store.RentExemptDeposit(len(data))); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return newError("", CodeAlreadyExists, "%s %s already exists", rec.AccountName(), key)
		}
		return err
	}
	return nil
}
