// Package vrf is an in-process randomness service. It answers audit
// randomness requests by submitting AuditCallback as the configured
// randomness identity, the way an on-chain VRF oracle would.
package vrf

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/domain/event"
	"github.com/emperorhan/invoice-oracle/internal/ledger"
	"github.com/emperorhan/invoice-oracle/internal/metrics"
)

// ErrQueueFull is returned when more requests are waiting than the service
// buffers.
var ErrQueueFull = errors.New("randomness queue full")

const defaultQueueSize = 256

type Service struct {
	ledger   *ledger.Client
	identity solana.PrivateKey
	entropy  io.Reader
	queue    chan event.RandomnessRequest
	logger   *slog.Logger
}

type Option func(*Service)

// WithEntropy replaces crypto/rand as the entropy source.
func WithEntropy(r io.Reader) Option {
	return func(s *Service) { s.entropy = r }
}

func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queue = make(chan event.RandomnessRequest, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(client *ledger.Client, identity solana.PrivateKey, opts ...Option) *Service {
	s := &Service{
		ledger:   client,
		identity: identity,
		entropy:  rand.Reader,
		queue:    make(chan event.RandomnessRequest, defaultQueueSize),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "vrf")
	return s
}

// Identity is the key callbacks are signed with.
func (s *Service) Identity() solana.PublicKey { return s.identity.PublicKey() }

// RequestRandomness queues req for Run. It never blocks, so it is safe to
// call from inside a ledger submission.
func (s *Service) RequestRandomness(_ context.Context, req event.RandomnessRequest) error {
	select {
	case s.queue <- req:
		metrics.RandomnessRequestsTotal.WithLabelValues("queued").Inc()
		return nil
	default:
		metrics.RandomnessRequestsTotal.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Pending is the number of queued requests.
func (s *Service) Pending() int { return len(s.queue) }

// Run fulfils queued requests until ctx is done. A failed fulfilment is
// logged and dropped; the invoice stays Validated and the audit can be
// requested again.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("randomness service started", "identity", s.Identity())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("randomness service stopped", "pending", len(s.queue))
			return ctx.Err()
		case req := <-s.queue:
			if _, err := s.Fulfill(ctx, req); err != nil {
				s.logger.Warn("fulfil randomness failed", "invoice", req.Invoice, "error", err)
			}
		}
	}
}

// Drain fulfils every request queued so far and returns the first error.
func (s *Service) Drain(ctx context.Context) error {
	var firstErr error
	for {
		select {
		case req := <-s.queue:
			if _, err := s.Fulfill(ctx, req); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			return firstErr
		}
	}
}

// Fulfill draws fresh randomness for req and delivers it.
func (s *Service) Fulfill(ctx context.Context, req event.RandomnessRequest) (string, error) {
	randomness, err := s.draw(req)
	if err != nil {
		metrics.RandomnessRequestsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	ix, err := s.ledger.Builder().AuditCallback(s.identity.PublicKey(), req.Invoice, req.OrgConfig, randomness)
	if err != nil {
		metrics.RandomnessRequestsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	sig, err := s.ledger.Submit(ctx, s.identity, ix)
	if err != nil {
		metrics.RandomnessRequestsTotal.WithLabelValues("rejected").Inc()
		return "", err
	}
	metrics.RandomnessRequestsTotal.WithLabelValues("fulfilled").Inc()
	s.logger.Info("randomness delivered", "invoice", req.Invoice, "signature", sig)
	return sig, nil
}

// draw hashes 32 bytes of entropy with the caller seed and the invoice key,
// giving 32 bytes no caller can predict.
func (s *Service) draw(req event.RandomnessRequest) ([32]byte, error) {
	var buf [32]byte
	if _, err := io.ReadFull(s.entropy, buf[:]); err != nil {
		return [32]byte{}, fmt.Errorf("read entropy: %w", err)
	}
	h := sha256.New()
	h.Write(buf[:])
	h.Write(req.CallerSeed[:])
	h.Write(req.Invoice[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
