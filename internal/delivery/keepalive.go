package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// KeepAlive is a Fallback whose request outlives the caller's context
// cancellation. A shutdown signal cancels the session context; the POST keeps
// going until its own timeout.
type KeepAlive struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewKeepAlive returns a fallback transport. A nil client gets NewHTTPClient.
func NewKeepAlive(client *http.Client, timeout time.Duration, userAgent string) *KeepAlive {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = NewHTTPClient(timeout)
	}
	return &KeepAlive{client: client, timeout: timeout, userAgent: userAgent}
}

// Post sends body and returns the response status. Any response counts as
// delivered; the caller decides what a non-2xx status means.
func (k *KeepAlive) Post(ctx context.Context, url, contentType string, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
	defer cancel()

	req, err := newRequest(ctx, url, contentType, k.userAgent, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("keep-alive POST failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
