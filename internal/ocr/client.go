// Package ocr is the client for the document-to-text service the oracle
// reads invoices through.
package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emperorhan/invoice-oracle/internal/metrics"
)

const DefaultEndpoint = "https://api.ocr.space/parse/imageurl"

// ErrNoParsedText is returned when the service answered but produced no
// text for the document.
var ErrNoParsedText = errors.New("ocr: no parsed text")

type Config struct {
	Endpoint   string
	APIKey     string
	GatewayURL string
	Language   string
	Engine     int
	Timeout    time.Duration
}

type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *Limiter
	breaker    *Breaker
	logger     *slog.Logger
}

func NewClient(cfg Config, limiter *Limiter, breaker *Breaker, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.Engine == 0 {
		cfg.Engine = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	if breaker == nil {
		breaker = NewBreaker(BreakerConfig{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		limiter:    limiter,
		breaker:    breaker,
		logger:     logger.With("component", "ocr"),
	}
}

type parseResponse struct {
	ParsedResults         []parsedResult  `json:"ParsedResults"`
	OCRExitCode           int             `json:"OCRExitCode"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

type parsedResult struct {
	ParsedText        string `json:"ParsedText"`
	FileParseExitCode int    `json:"FileParseExitCode"`
	ErrorMessage      string `json:"ErrorMessage"`
}

// DocumentURL is the gateway URL the service fetches docRef from.
func (c *Client) DocumentURL(docRef string) string {
	return strings.TrimRight(c.cfg.GatewayURL, "/") + "/" + docRef
}

func (c *Client) requestURL(docRef string) (string, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("apikey", c.cfg.APIKey)
	q.Set("url", c.DocumentURL(docRef))
	q.Set("language", c.cfg.Language)
	q.Set("OCREngine", fmt.Sprint(c.cfg.Engine))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Text returns the plain text of the first parsed page of docRef.
func (c *Client) Text(ctx context.Context, docRef string) (string, error) {
	if err := c.breaker.Allow(); err != nil {
		metrics.OCRRequestsTotal.WithLabelValues("rejected").Inc()
		return "", err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	text, err := c.fetch(ctx, docRef)
	metrics.OCRLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.breaker.RecordSuccess()
		metrics.OCRRequestsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrNoParsedText):
		// The service is healthy; the document is not.
		c.breaker.RecordSuccess()
		metrics.OCRRequestsTotal.WithLabelValues("empty").Inc()
	default:
		c.breaker.RecordFailure()
		metrics.OCRRequestsTotal.WithLabelValues("error").Inc()
	}
	if err != nil {
		c.logger.Warn("ocr call failed", "doc_ref", docRef, "error", err)
	}
	return text, err
}

func (c *Client) fetch(ctx context.Context, docRef string) (string, error) {
	target, err := c.requestURL(docRef)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	var parsed parseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.IsErroredOnProcessing {
		return "", fmt.Errorf("ocr processing failed: %s", errorText(parsed))
	}
	if len(parsed.ParsedResults) == 0 || parsed.ParsedResults[0].ParsedText == "" {
		return "", ErrNoParsedText
	}
	return parsed.ParsedResults[0].ParsedText, nil
}

// errorText flattens ErrorMessage, which the service sends either as a
// string or as a list of strings.
func errorText(resp parseResponse) string {
	var list []string
	if err := json.Unmarshal(resp.ErrorMessage, &list); err == nil && len(list) > 0 {
		return strings.Join(list, "; ")
	}
	var single string
	if err := json.Unmarshal(resp.ErrorMessage, &single); err == nil && single != "" {
		return single
	}
	if len(resp.ParsedResults) > 0 && resp.ParsedResults[0].ErrorMessage != "" {
		return resp.ParsedResults[0].ErrorMessage
	}
	return fmt.Sprintf("exit code %d", resp.OCRExitCode)
}
