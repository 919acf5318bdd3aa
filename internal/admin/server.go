package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emperorhan/invoice-oracle/internal/domain/model"
	"github.com/emperorhan/invoice-oracle/internal/keys"
	"github.com/emperorhan/invoice-oracle/internal/ledger"
	"github.com/emperorhan/invoice-oracle/internal/orchestrator"
)

// LedgerReader reads protocol records. *ledger.Client satisfies it.
type LedgerReader interface {
	Org(ctx context.Context, key solana.PublicKey) (*model.OrgConfig, error)
	Request(ctx context.Context, key solana.PublicKey) (*model.ExtractionRequest, error)
	Invoice(ctx context.Context, key solana.PublicKey) (*model.Invoice, error)
	PendingRequests(ctx context.Context) ([]ledger.Request, error)
}

// HealthProvider exposes orchestrator health and the suppression list.
// *orchestrator.Orchestrator satisfies it.
type HealthProvider interface {
	HealthSnapshot() orchestrator.HealthSnapshot
	Suppressed() []orchestrator.Suppression
	Unsuppress(key solana.PublicKey)
}

// Server provides an HTTP-based admin API for operational management.
type Server struct {
	reader         LedgerReader
	deriver        *keys.Deriver
	healthProvider HealthProvider
	logger         *slog.Logger
}

func NewServer(reader LedgerReader, deriver *keys.Deriver, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		reader:  reader,
		deriver: deriver,
		logger:  logger.With("component", "admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServerOption configures optional dependencies for the admin server.
type ServerOption func(*Server)

// WithHealthProvider sets the health provider on the admin server.
func WithHealthProvider(hp HealthProvider) ServerOption {
	return func(s *Server) { s.healthProvider = hp }
}

// Handler returns the HTTP handler for the admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/v1/health", s.handleHealth)
	mux.HandleFunc("GET /admin/v1/orgs/{authority}", s.handleGetOrg)
	mux.HandleFunc("GET /admin/v1/requests", s.handleListRequests)
	mux.HandleFunc("GET /admin/v1/requests/{claimant}", s.handleGetRequest)
	mux.HandleFunc("POST /admin/v1/requests/{claimant}/unsuppress", s.handleUnsuppress)
	mux.HandleFunc("GET /admin/v1/invoices/{claimant}", s.handleGetInvoice)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			s.logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requireKeyParam parses a base58 path parameter.
// Returns false (and writes an error response) if it is not a public key.
func requireKeyParam(w http.ResponseWriter, r *http.Request, name string) (solana.PublicKey, bool) {
	key, err := solana.PublicKeyFromBase58(r.PathValue(name))
	if err != nil {
		http.Error(w, `{"error":"invalid `+name+` public key"}`, http.StatusBadRequest)
		return solana.PublicKey{}, false
	}
	return key, true
}

// readError maps a ledger read failure to a response.
func (s *Server) readError(w http.ResponseWriter, what string, key solana.PublicKey, err error) {
	if ledger.IsNotFound(err) {
		http.Error(w, `{"error":"`+what+` not found"}`, http.StatusNotFound)
		return
	}
	s.logger.Error("read failed", "record", what, "key", key, "error", err)
	http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
}

type healthResponse struct {
	Orchestrator orchestrator.HealthSnapshot `json:"orchestrator"`
	Suppressed   []orchestrator.Suppression  `json:"suppressed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.healthProvider == nil {
		http.Error(w, `{"error":"health provider not available"}`, http.StatusServiceUnavailable)
		return
	}
	suppressed := s.healthProvider.Suppressed()
	if suppressed == nil {
		suppressed = []orchestrator.Suppression{}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Orchestrator: s.healthProvider.HealthSnapshot(),
		Suppressed:   suppressed,
	})
}

type recordResponse[T any] struct {
	Address solana.PublicKey `json:"address"`
	Record  T                `json:"record"`
}

func (s *Server) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	authority, ok := requireKeyParam(w, r, "authority")
	if !ok {
		return
	}
	addr, err := s.deriver.OrgConfig(authority)
	if err != nil {
		http.Error(w, `{"error":"cannot derive organization address"}`, http.StatusBadRequest)
		return
	}
	org, err := s.reader.Org(r.Context(), addr.Key)
	if err != nil {
		s.readError(w, "organization", addr.Key, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse[*model.OrgConfig]{Address: addr.Key, Record: org})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	claimant, ok := requireKeyParam(w, r, "claimant")
	if !ok {
		return
	}
	addr, err := s.deriver.Request(claimant)
	if err != nil {
		http.Error(w, `{"error":"cannot derive request address"}`, http.StatusBadRequest)
		return
	}
	req, err := s.reader.Request(r.Context(), addr.Key)
	if err != nil {
		s.readError(w, "request", addr.Key, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse[*model.ExtractionRequest]{Address: addr.Key, Record: req})
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	claimant, ok := requireKeyParam(w, r, "claimant")
	if !ok {
		return
	}
	addr, err := s.deriver.Invoice(claimant)
	if err != nil {
		http.Error(w, `{"error":"cannot derive invoice address"}`, http.StatusBadRequest)
		return
	}
	inv, err := s.reader.Invoice(r.Context(), addr.Key)
	if err != nil {
		s.readError(w, "invoice", addr.Key, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse[*model.Invoice]{Address: addr.Key, Record: inv})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "pending" {
		http.Error(w, `{"error":"only status=pending is supported"}`, http.StatusBadRequest)
		return
	}
	pending, err := s.reader.PendingRequests(r.Context())
	if err != nil {
		s.logger.Error("list pending requests failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	out := make([]recordResponse[*model.ExtractionRequest], 0, len(pending))
	for _, p := range pending {
		out = append(out, recordResponse[*model.ExtractionRequest]{Address: p.Key, Record: p.Record})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUnsuppress(w http.ResponseWriter, r *http.Request) {
	if s.healthProvider == nil {
		http.Error(w, `{"error":"orchestrator not available"}`, http.StatusServiceUnavailable)
		return
	}
	claimant, ok := requireKeyParam(w, r, "claimant")
	if !ok {
		return
	}
	addr, err := s.deriver.Request(claimant)
	if err != nil {
		http.Error(w, `{"error":"cannot derive request address"}`, http.StatusBadRequest)
		return
	}
	s.healthProvider.Unsuppress(addr.Key)
	s.logger.Info("request unsuppressed", "request", addr.Key, "claimant", claimant)
	writeJSON(w, http.StatusOK, map[string]string{"request": addr.Key.String(), "status": "unsuppressed"})
}
