package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HTTPClient guards an http.Client with a circuit breaker and a per-call
// timeout. Each call is attempted exactly once.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	Timeout time.Duration
}

// Do sends req. Responses with a 5xx status count as breaker failures but are
// still returned to the caller, who decides what the status means.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
		return nil, ErrOpenCircuit
	}

	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	resp, err := cl.Client.Do(req.WithContext(ctx))
	if cl.Breaker != nil {
		cl.Breaker.Report(ctx, err == nil && resp.StatusCode < http.StatusInternalServerError)
	}
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}
