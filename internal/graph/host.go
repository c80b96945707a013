// Package graph implements the mail host on top of Microsoft Graph. The open
// item is an Exchange Online calendar event; custom properties are stored as
// single-value extended properties on that event.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	abstractions "github.com/microsoft/kiota-abstractions-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"meetingsnap/internal/common/logger"
	"meetingsnap/internal/common/ratelimit"
	"meetingsnap/internal/common/retry"
	"meetingsnap/internal/common/security"
	"meetingsnap/internal/host"
)

// Config configures a Graph host.
type Config struct {
	// Mailbox is the user whose calendar is read. It is also the reported
	// user email.
	Mailbox string
	// EventID selects the event. Empty means the next upcoming event.
	EventID string
	// Properties lists the custom property names loaded with the event.
	Properties []string

	MaxRetries int
	RetryDelay time.Duration
	Limiter    *ratelimit.Limiter
	Logger     *slog.Logger
}

// Host is a host.Host backed by one Graph event.
type Host struct {
	client *msgraphsdk.GraphServiceClient
	cfg    Config

	mu      sync.Mutex
	eventID string
}

// New returns a host reading through client.
func New(client *msgraphsdk.GraphServiceClient, cfg Config) *Host {
	return &Host{client: client, cfg: cfg, eventID: cfg.EventID}
}

// UserEmail returns the configured mailbox.
func (h *Host) UserEmail() string {
	return h.cfg.Mailbox
}

// Item fetches the event's online meeting details and returns an item whose
// remaining fields are read on demand.
func (h *Host) Item(ctx context.Context) (host.Item, error) {
	id, err := h.resolveEventID(ctx)
	if err != nil {
		return nil, err
	}

	event, err := h.getEvent(ctx, id, "getEvent", []string{"isOnlineMeeting", "onlineMeeting", "onlineMeetingUrl"}, nil)
	if err != nil {
		return nil, err
	}

	it := &item{host: h, id: id}
	if v := event.GetIsOnlineMeeting(); v != nil {
		it.online = *v
	}
	it.joinURL = joinURL(event)
	return it, nil
}

// LoadCustomProperties reads the configured extended properties of the event.
func (h *Host) LoadCustomProperties(ctx context.Context) (host.CustomProperties, error) {
	id, err := h.resolveEventID(ctx)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	if len(h.cfg.Properties) > 0 {
		expand := []string{fmt.Sprintf("singleValueExtendedProperties($filter=%s)", PropertyFilter(h.cfg.Properties))}
		event, err := h.getEvent(ctx, id, "loadCustomProperties", []string{"id"}, expand)
		if err != nil {
			return nil, err
		}
		values = decodeProperties(event.GetSingleValueExtendedProperties())
	}
	return &properties{host: h, eventID: id, values: values, staged: make(map[string]string)}, nil
}

// EventID returns the id of the event the host reads, resolving the next
// upcoming event on first use.
func (h *Host) EventID(ctx context.Context) (string, error) {
	return h.resolveEventID(ctx)
}

// resolveEventID returns the configured event, or finds the next one starting
// from now and remembers it.
func (h *Host) resolveEventID(ctx context.Context) (string, error) {
	h.mu.Lock()
	id := h.eventID
	h.mu.Unlock()
	if id != "" {
		return id, nil
	}

	filter := upcomingFilter(time.Now())
	cfg := &users.ItemEventsRequestBuilderGetRequestConfiguration{
		Headers: preferUTC(),
		QueryParameters: &users.ItemEventsRequestBuilderGetQueryParameters{
			Top:     pointerTo(int32(1)),
			Orderby: []string{"start/dateTime"},
			Filter:  &filter,
			Select:  []string{"id", "subject"},
		},
	}

	var events []models.Eventable
	err := h.call(ctx, "findNextEvent", func() error {
		resp, err := h.client.Users().ByUserId(h.cfg.Mailbox).Events().Get(ctx, cfg)
		if err == nil {
			events = resp.GetValue()
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("error finding next event for %s: %w", security.MaskEmail(h.cfg.Mailbox), err)
	}
	if len(events) == 0 || events[0].GetId() == nil {
		return "", host.ErrNoItem
	}

	id = *events[0].GetId()
	logger.LogInfo(h.cfg.Logger, "Using next upcoming event", "eventID", id, "subject", deref(events[0].GetSubject()))

	h.mu.Lock()
	if h.eventID == "" {
		h.eventID = id
	}
	id = h.eventID
	h.mu.Unlock()
	return id, nil
}

func (h *Host) getEvent(ctx context.Context, id, operation string, sel, expand []string, prefer ...string) (models.Eventable, error) {
	headers := abstractions.NewRequestHeaders()
	for _, p := range prefer {
		headers.Add("Prefer", p)
	}
	cfg := &users.ItemEventsEventItemRequestBuilderGetRequestConfiguration{
		Headers: headers,
		QueryParameters: &users.ItemEventsEventItemRequestBuilderGetQueryParameters{
			Select: sel,
			Expand: expand,
		},
	}

	var event models.Eventable
	err := h.call(ctx, operation, func() error {
		var err error
		event, err = h.client.Users().ByUserId(h.cfg.Mailbox).Events().ByEventId(id).Get(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, host.ErrNoItem
	}
	return event, nil
}

func (h *Host) patchEvent(ctx context.Context, id, operation string, event models.Eventable) error {
	return h.call(ctx, operation, func() error {
		_, err := h.client.Users().ByUserId(h.cfg.Mailbox).Events().ByEventId(id).Patch(ctx, event, nil)
		return err
	})
}

// call runs one Graph request through the limiter and the retry policy.
func (h *Host) call(ctx context.Context, operation string, fn func() error) error {
	policy := retry.Policy{
		MaxRetries: h.cfg.MaxRetries,
		BaseDelay:  h.cfg.RetryDelay,
		Retryable:  IsRetryableError,
		Logger:     h.cfg.Logger,
	}
	err := retry.Do(ctx, policy, func() error {
		if err := h.cfg.Limiter.Wait(ctx); err != nil {
			return err
		}
		return fn()
	})
	if err != nil {
		return EnrichError(err, operation, h.cfg.Logger)
	}
	logger.LogDebug(h.cfg.Logger, "Graph call succeeded", "operation", operation)
	return nil
}

func preferUTC() *abstractions.RequestHeaders {
	headers := abstractions.NewRequestHeaders()
	headers.Add("Prefer", preferTimeZoneUTC)
	return headers
}

func pointerTo[T any](v T) *T {
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
