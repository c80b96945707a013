// Package delivery implements the two transports used to hand a meeting
// record to the save-meeting endpoint: a non-blocking beacon that only reports
// whether the request was enqueued, and a blocking keep-alive POST used when
// the beacon refuses.
package delivery

import (
	"bytes"
	"context"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 30 * time.Second

// Beacon is a fire-and-forget transport. SendBeacon returns false when the
// request could not be enqueued; a true result says nothing about delivery.
type Beacon interface {
	SendBeacon(url, contentType string, body []byte) bool
}

// Fallback is a blocking transport. It returns the HTTP status, or an error
// when no response was received.
type Fallback interface {
	Post(ctx context.Context, url, contentType string, body []byte) (int, error)
}

// NewHTTPClient returns the client shared by both transports. Proxies come
// from HTTP_PROXY/HTTPS_PROXY.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: timeout,
	}
}

func newRequest(ctx context.Context, url, contentType, userAgent string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req, nil
}
