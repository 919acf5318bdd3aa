// Package orchestrator runs the extraction oracle: it polls pending
// extraction requests, reads each document through OCR, parses the invoice
// fields and submits ProcessExtraction as the oracle signer.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/emperorhan/invoice-oracle/internal/alert"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/extract"
	"github.com/emperorhan/invoice-oracle/internal/ledger"
	"github.com/emperorhan/invoice-oracle/internal/metrics"
	"github.com/emperorhan/invoice-oracle/internal/orchestrator/retry"
	"github.com/emperorhan/invoice-oracle/internal/tracing"
)

//go:generate mockgen -source=orchestrator.go -destination=mocks/mock_orchestrator.go -package=mocks

// Ledger is the part of ledger.Client the orchestrator uses.
type Ledger interface {
	PendingRequests(ctx context.Context) ([]ledger.Request, error)
	Request(ctx context.Context, key solana.PublicKey) (*model.ExtractionRequest, error)
	SubmitExtraction(ctx context.Context, oracle solana.PrivateKey, orgKey, claimant solana.PublicKey, vendorName string, amount uint64, dueDate int64) (string, error)
	RequestAudit(ctx context.Context, payer solana.PrivateKey, orgKey, claimant solana.PublicKey, clientSeed uint8) (string, error)
}

// Extractor turns a document reference into plain text.
type Extractor interface {
	Text(ctx context.Context, docRef string) (string, error)
}

const (
	DefaultInterval = 5 * time.Second
	DefaultWorkers  = 4
)

var (
	// ErrAlreadyRunning is returned by Start on a running orchestrator.
	ErrAlreadyRunning = errors.New("orchestrator already running")

	errNoLongerPending = errors.New("request no longer pending")
)

type Config struct {
	OrgConfig          solana.PublicKey
	Interval           time.Duration
	Workers            int
	AutoAudit          bool
	SuppressTTL        time.Duration
	SuppressSize       int
	UnhealthyThreshold int
}

// CycleResult counts what one poll cycle did with the pending requests.
type CycleResult struct {
	Pending    int
	Processed  int
	Failed     int
	Suppressed int
	Skipped    int
}

type Orchestrator struct {
	cfg        Config
	ledger     Ledger
	extractor  Extractor
	oracle     solana.PrivateKey
	alerter    alert.Alerter
	health     *Health
	suppressed *suppressList
	now        func() time.Time
	seed       func() uint8
	logger     *slog.Logger
	cycles     atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Orchestrator)

func WithAlerter(a alert.Alerter) Option {
	return func(o *Orchestrator) { o.alerter = a }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
		o.suppressed.now = now
		o.health.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithAuditSeed replaces the random client seed of automatic audit
// requests.
func WithAuditSeed(seed func() uint8) Option {
	return func(o *Orchestrator) { o.seed = seed }
}

func New(cfg Config, l Ledger, x Extractor, oracle solana.PrivateKey, opts ...Option) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	o := &Orchestrator{
		cfg:        cfg,
		ledger:     l,
		extractor:  x,
		oracle:     oracle,
		alerter:    &alert.NoopAlerter{},
		health:     NewHealth(cfg.UnhealthyThreshold),
		suppressed: newSuppressList(cfg.SuppressSize, cfg.SuppressTTL),
		now:        time.Now,
		seed:       func() uint8 { return uint8(rand.IntN(256)) },
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

func (o *Orchestrator) Health() *Health { return o.health }

func (o *Orchestrator) HealthSnapshot() HealthSnapshot { return o.health.Snapshot() }

// Suppressed lists the requests currently skipped after a terminal failure.
func (o *Orchestrator) Suppressed() []Suppression { return o.suppressed.List() }

// Unsuppress lets the next cycle retry key.
func (o *Orchestrator) Unsuppress(key solana.PublicKey) { o.suppressed.Forget(key) }

// Start runs the poll loop in the background until Stop or ctx is done.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel, o.done = cancel, done
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()
	return nil
}

// Stop ends the poll loop and waits for the in-flight cycle to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run polls immediately and then waits interval after each cycle ends,
// until ctx is done. A cancelled ctx stops new cycles from starting; the
// cycle in flight runs to completion.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started",
		"interval", o.cfg.Interval,
		"workers", o.cfg.Workers,
		"org_config", o.cfg.OrgConfig,
		"oracle", o.oracle.PublicKey(),
		"auto_audit", o.cfg.AutoAudit,
	)
	timer := time.NewTimer(o.cfg.Interval)
	defer timer.Stop()

	for ctx.Err() == nil {
		o.cycle(context.WithoutCancel(ctx))

		timer.Reset(o.cfg.Interval)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	o.health.SetStatus(HealthStatusStopped)
	o.logger.Info("orchestrator stopped", "cycles", o.cycles.Load())
	return ctx.Err()
}

// cycle is the per-iteration error boundary: nothing in it stops the loop.
func (o *Orchestrator) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("poll cycle panicked", "panic", r)
			o.recordFailure(ctx, fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	res, err := o.RunOnce(ctx)
	if err != nil {
		o.logger.Warn("poll cycle failed", "error", err)
		o.recordFailure(ctx, err)
		return
	}
	if o.health.RecordSuccess(time.Since(start)) {
		o.sendAlert(ctx, alert.AlertTypeRecovery, "Orchestrator recovered", "Pending requests can be listed again.", nil)
	}
	if res.Pending > 0 {
		o.logger.Info("poll cycle finished",
			"pending", res.Pending,
			"processed", res.Processed,
			"failed", res.Failed,
			"suppressed", res.Suppressed,
			"skipped", res.Skipped,
		)
	} else {
		o.logger.Debug("no pending requests")
	}
}

func (o *Orchestrator) recordFailure(ctx context.Context, err error) {
	if o.health.RecordFailure(err) {
		o.sendAlert(ctx, alert.AlertTypeUnhealthy, "Orchestrator unhealthy",
			"Consecutive poll cycles failed.", map[string]string{"error": err.Error()})
	}
}

// RunOnce performs one poll cycle. It fails only when the pending requests
// cannot be listed; each request is attempted independently and its
// failure is counted, not returned.
func (o *Orchestrator) RunOnce(ctx context.Context) (CycleResult, error) {
	n := o.cycles.Add(1)
	ctx, span := tracing.StartSpan(ctx, "orchestrator.cycle", attribute.Int64("cycle", n))
	start := time.Now()
	metrics.PollCyclesTotal.Inc()
	defer func() {
		metrics.PollLatency.Observe(time.Since(start).Seconds())
	}()

	pending, err := o.ledger.PendingRequests(ctx)
	if err != nil {
		metrics.PollErrors.Inc()
		tracing.End(span, err)
		return CycleResult{}, fmt.Errorf("list pending requests: %w", err)
	}
	metrics.PendingRequests.Set(float64(len(pending)))

	var processed, failed, suppressed, skipped atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for _, req := range pending {
		if reason, ok := o.suppressed.Suppressed(req.Key); ok {
			metrics.SuppressedRequests.Inc()
			suppressed.Add(1)
			o.logger.Debug("request suppressed", "request", req.Key, "reason", reason)
			continue
		}
		g.Go(func() error {
			switch err := o.process(gCtx, req); {
			case err == nil:
				processed.Add(1)
			case errors.Is(err, errNoLongerPending):
				skipped.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := CycleResult{
		Pending:    len(pending),
		Processed:  int(processed.Load()),
		Failed:     int(failed.Load()),
		Suppressed: int(suppressed.Load()),
		Skipped:    int(skipped.Load()),
	}
	span.SetAttributes(
		attribute.Int("pending", res.Pending),
		attribute.Int("processed", res.Processed),
		attribute.Int("failed", res.Failed),
	)
	tracing.End(span, nil)
	return res, nil
}

// process extracts and submits one request. A failure leaves the request
// Pending; a terminal one also suppresses it for the suppression TTL.
func (o *Orchestrator) process(ctx context.Context, req ledger.Request) error {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.process", attribute.String("request", req.Key.String()))
	log := o.logger.With("request", req.Key, "claimant", req.Record.Authority, "doc_ref", req.Record.IPFSHash)

	_, err := o.extractAndSubmit(ctx, log, req)
	tracing.End(span, err)

	switch {
	case err == nil:
		metrics.ExtractionsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, errNoLongerPending):
		metrics.ExtractionsTotal.WithLabelValues("skipped").Inc()
		log.Debug("request completed by another cycle")
	default:
		decision := retry.Classify(err)
		metrics.ExtractionsTotal.WithLabelValues(string(decision.Class)).Inc()
		if decision.IsTransient() {
			log.Warn("extraction failed, retrying next cycle", "reason", decision.Reason, "error", err)
			break
		}
		o.suppressed.Add(req.Key, decision.Reason)
		log.Error("extraction failed terminally", "reason", decision.Reason, "error", err)
		o.sendAlert(ctx, alert.AlertTypeSubmissionFailed, "Extraction failed", err.Error(), map[string]string{
			"request": req.Key.String(),
			"reason":  decision.Reason,
		})
	}
	return err
}

func (o *Orchestrator) extractAndSubmit(ctx context.Context, log *slog.Logger, req ledger.Request) (string, error) {
	text, err := o.extractor.Text(ctx, req.Record.IPFSHash)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}

	fields, err := extract.Parse(text, o.now())
	if err != nil {
		return "", retry.Terminal(err)
	}
	log.Info("invoice parsed",
		"vendor", fields.Vendor,
		"amount", fields.Amount,
		"due_date", time.Unix(fields.DueDate, 0).UTC().Format(time.DateOnly),
		"due_date_found", fields.DueDateFound,
	)

	current, err := o.ledger.Request(ctx, req.Key)
	switch {
	case ledger.IsNotFound(err):
		return "", errNoLongerPending
	case err != nil:
		return "", retry.Transient(fmt.Errorf("re-read request: %w", err))
	case current.Status != model.RequestStatusPending:
		return "", errNoLongerPending
	}

	claimant := req.Record.Authority
	sig, err := o.ledger.SubmitExtraction(ctx, o.oracle, o.cfg.OrgConfig, claimant, fields.Vendor, fields.Amount, fields.DueDate)
	if err != nil {
		return "", err
	}
	log.Info("extraction submitted", "signature", sig)

	if o.cfg.AutoAudit {
		auditSig, err := o.ledger.RequestAudit(ctx, o.oracle, o.cfg.OrgConfig, claimant, o.seed())
		if err != nil {
			// The invoice stays Validated and the owner can still ask for
			// the audit; the extraction itself succeeded.
			log.Warn("automatic audit request failed", "error", err)
		} else {
			log.Info("audit requested", "signature", auditSig)
		}
	}
	return sig, nil
}

func (o *Orchestrator) sendAlert(ctx context.Context, typ alert.AlertType, title, msg string, fields map[string]string) {
	subject := "oracle"
	if r, ok := fields["request"]; ok {
		subject = r
	}
	err := o.alerter.Send(ctx, alert.Alert{Type: typ, Subject: subject, Title: title, Message: msg, Fields: fields})
	if err != nil {
		o.logger.Warn("send alert failed", "type", typ, "error", err)
	}
}
