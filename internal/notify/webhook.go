package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/engineroom-pricing/internal/obs"
	"github.com/noah-isme/engineroom-pricing/internal/resilience"
)

// ErrNotConfigured is returned when no webhook endpoint has been set.
var ErrNotConfigured = errors.New("notify: webhook endpoint not configured")

const maxResponseBody = 64 << 10

// Submitter hands a finalised quote to a downstream system.
type Submitter interface {
	Submit(ctx context.Context, p Payload) (Ack, error)
}

// Ack describes an accepted submission.
type Ack struct {
	SubmissionID string
	StatusCode   int
	Body         string
}

// SubmissionError reports a failed submission. StatusCode is set when the
// endpoint answered with a non-2xx status; otherwise Err holds the transport
// failure.
type SubmissionError struct {
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("Make webhook request failed with status: %d", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "webhook request failed"
}

// Unwrap exposes the transport error.
func (e *SubmissionError) Unwrap() error { return e.Err }

// Webhook posts quotes as JSON to a single configured endpoint.
type Webhook struct {
	URL       string
	Secret    string
	HTTP      *resilience.HTTPClient
	UserAgent string
}

// Submit performs one POST of p. Any 2xx answer is an acknowledgement.
func (w *Webhook) Submit(ctx context.Context, p Payload) (Ack, error) {
	if w == nil || strings.TrimSpace(w.URL) == "" {
		return Ack{}, ErrNotConfigured
	}
	ctx, span := otel.Tracer("notify.Webhook").Start(ctx, "Webhook.Submit")
	defer span.End()

	submissionID := uuid.NewString()
	span.SetAttributes(
		attribute.String("webhook.submission_id", submissionID),
		attribute.Int("webhook.quotes", len(p.Quotes)),
	)

	start := time.Now()
	ack, err := w.post(ctx, submissionID, p)
	result := "delivered"
	if err != nil {
		result = outcome(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	obs.RecordSubmission(result, time.Since(start))
	return ack, err
}

func (w *Webhook) post(ctx context.Context, submissionID string, p Payload) (Ack, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Ack{}, fmt.Errorf("notify: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return Ack{}, &SubmissionError{Err: err}
	}
	ts := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", w.userAgent())
	req.Header.Set("X-Idempotency-Key", submissionID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	if w.Secret != "" {
		req.Header.Set("X-Signature", ComputeSignature(w.Secret, ts, submissionID, body))
	}

	client := w.HTTP
	if client == nil {
		client = &resilience.HTTPClient{Client: NewHTTPClient(0, false)}
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		return Ack{}, &SubmissionError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Ack{}, &SubmissionError{StatusCode: resp.StatusCode}
	}
	return Ack{SubmissionID: submissionID, StatusCode: resp.StatusCode, Body: string(respBody)}, nil
}

func (w *Webhook) userAgent() string {
	if w.UserAgent != "" {
		return w.UserAgent
	}
	return "engineroom-pricing-webhooks/1.0"
}

func outcome(err error) string {
	var subErr *SubmissionError
	switch {
	case errors.Is(err, resilience.ErrOpenCircuit):
		return "breaker_open"
	case errors.As(err, &subErr) && subErr.StatusCode > 0:
		return "rejected"
	default:
		return "failed"
	}
}

// ValidateURL checks that raw is usable as a webhook endpoint. Plain http is
// only accepted for local development hosts.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	return nil
}

// ComputeSignature returns the hex HMAC-SHA256 of "<ts>.<submissionID>.<body>".
func ComputeSignature(secret string, ts int64, submissionID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(submissionID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// NewHTTPClient returns an instrumented client for webhook calls. A zero
// timeout leaves the deadline to the caller's context.
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = insecureTLSConfig
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

var insecureTLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
