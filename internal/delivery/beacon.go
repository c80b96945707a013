package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// MaxBeaconPayload is the per-request quota browsers apply to beacons.
const MaxBeaconPayload = 64 << 10

// ErrBeaconClosed is returned by Close when called twice.
var ErrBeaconClosed = errors.New("beacon queue already closed")

// BeaconOptions configures a BeaconQueue. Zero values pick defaults.
type BeaconOptions struct {
	QueueSize  int           // pending requests before SendBeacon refuses (default 8)
	MaxPayload int           // bytes (default MaxBeaconPayload)
	Timeout    time.Duration // per request (default DefaultTimeout)
	UserAgent  string
	Logger     *slog.Logger
}

type beaconRequest struct {
	url         string
	contentType string
	body        []byte
}

// BeaconQueue is a Beacon backed by a bounded queue and one background
// worker. Responses are discarded.
type BeaconQueue struct {
	client *http.Client
	opts   BeaconOptions

	mu     sync.Mutex
	closed bool
	queue  chan beaconRequest
	done   chan struct{}
}

// NewBeaconQueue starts the worker. Call Close to drain it.
func NewBeaconQueue(client *http.Client, opts BeaconOptions) *BeaconQueue {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 8
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = MaxBeaconPayload
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if client == nil {
		client = NewHTTPClient(opts.Timeout)
	}

	q := &BeaconQueue{
		client: client,
		opts:   opts,
		queue:  make(chan beaconRequest, opts.QueueSize),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// SendBeacon enqueues a POST. It refuses oversized payloads, a full queue and
// a closed queue.
func (q *BeaconQueue) SendBeacon(url, contentType string, body []byte) bool {
	if len(body) > q.opts.MaxPayload {
		q.debug("Beacon refused: payload over quota", "bytes", len(body), "quota", q.opts.MaxPayload)
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.debug("Beacon refused: queue closed")
		return false
	}

	req := beaconRequest{url: url, contentType: contentType, body: append([]byte(nil), body...)}
	select {
	case q.queue <- req:
		return true
	default:
		q.debug("Beacon refused: queue full", "size", q.opts.QueueSize)
		return false
	}
}

// Close stops accepting beacons and waits until queued requests are sent or
// ctx ends.
func (q *BeaconQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrBeaconClosed
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *BeaconQueue) run() {
	defer close(q.done)
	for req := range q.queue {
		q.deliver(req)
	}
}

func (q *BeaconQueue) deliver(r beaconRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.Timeout)
	defer cancel()

	req, err := newRequest(ctx, r.url, r.contentType, q.opts.UserAgent, r.body)
	if err != nil {
		q.debug("Beacon request build failed", "error", err)
		return
	}
	resp, err := q.client.Do(req)
	if err != nil {
		q.debug("Beacon delivery failed", "error", err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	q.debug("Beacon delivered", "status", resp.StatusCode)
}

func (q *BeaconQueue) debug(msg string, args ...any) {
	if q.opts.Logger != nil {
		q.opts.Logger.Debug(msg, args...)
	}
}
