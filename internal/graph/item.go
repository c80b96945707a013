package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"meetingsnap/internal/host"
)

const (
	preferTextBody    = `outlook.body-content-type="text"`
	preferTimeZoneUTC = `outlook.timezone="UTC"`

	// dateTimeLayout is the Graph dateTimeTimeZone format, up to 7 fractional digits.
	dateTimeLayout = "2006-01-02T15:04:05.9999999"
)

// item is one Graph event. Every field accessor issues its own GET.
type item struct {
	host    *Host
	id      string
	online  bool
	joinURL string
}

func (i *item) IsOnlineMeeting() bool { return i.online }
func (i *item) MeetingURL() string    { return i.joinURL }

func (i *item) Subject() host.Field[string] {
	return i.stringField("getSubject", "subject", func(e models.Eventable) string {
		return deref(e.GetSubject())
	})
}

func (i *item) Body() host.Field[string] {
	return host.FieldFunc[string](func(ctx context.Context) (string, error) {
		e, err := i.host.getEvent(ctx, i.id, "getBody", []string{"body"}, nil, preferTextBody)
		if err != nil {
			return "", err
		}
		if e.GetBody() == nil {
			return "", nil
		}
		return strings.TrimSpace(deref(e.GetBody().GetContent())), nil
	})
}

func (i *item) Location() host.Field[string] {
	return i.stringField("getLocation", "location", func(e models.Eventable) string {
		if e.GetLocation() == nil {
			return ""
		}
		return deref(e.GetLocation().GetDisplayName())
	})
}

func (i *item) Start() host.Field[time.Time] {
	return i.timeField("getStart", "start", models.Eventable.GetStart)
}

func (i *item) End() host.Field[time.Time] {
	return i.timeField("getEnd", "end", models.Eventable.GetEnd)
}

func (i *item) RequiredAttendees() host.Field[[]string] {
	return host.FieldFunc[[]string](func(ctx context.Context) ([]string, error) {
		e, err := i.host.getEvent(ctx, i.id, "getAttendees", []string{"attendees"}, nil)
		if err != nil {
			return nil, err
		}
		return requiredAttendees(e.GetAttendees()), nil
	})
}

// SetBody replaces the event body with plain text.
func (i *item) SetBody(ctx context.Context, text string) error {
	body := models.NewItemBody()
	contentType := models.TEXT_BODYTYPE
	body.SetContentType(&contentType)
	body.SetContent(&text)

	event := models.NewEvent()
	event.SetBody(body)
	if err := i.host.patchEvent(ctx, i.id, "setBody", event); err != nil {
		return fmt.Errorf("failed to update event body: %w", err)
	}
	return nil
}

func (i *item) stringField(operation, sel string, get func(models.Eventable) string) host.Field[string] {
	return host.FieldFunc[string](func(ctx context.Context) (string, error) {
		e, err := i.host.getEvent(ctx, i.id, operation, []string{sel}, nil)
		if err != nil {
			return "", err
		}
		return get(e), nil
	})
}

func (i *item) timeField(operation, sel string, get func(models.Eventable) models.DateTimeTimeZoneable) host.Field[time.Time] {
	return host.FieldFunc[time.Time](func(ctx context.Context) (time.Time, error) {
		e, err := i.host.getEvent(ctx, i.id, operation, []string{sel}, nil, preferTimeZoneUTC)
		if err != nil {
			return time.Time{}, err
		}
		return parseDateTime(get(e))
	})
}

// parseDateTime converts a Graph dateTimeTimeZone. A missing value is the
// zero time; an unknown zone name is treated as UTC.
func parseDateTime(dt models.DateTimeTimeZoneable) (time.Time, error) {
	if dt == nil || dt.GetDateTime() == nil || *dt.GetDateTime() == "" {
		return time.Time{}, nil
	}

	loc := time.UTC
	if tz := deref(dt.GetTimeZone()); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	t, err := time.ParseInLocation(dateTimeLayout, *dt.GetDateTime(), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid event time %q: %w", *dt.GetDateTime(), err)
	}
	return t, nil
}

// requiredAttendees returns the addresses of required attendees in order.
func requiredAttendees(attendees []models.Attendeeable) []string {
	out := make([]string, 0, len(attendees))
	for _, a := range attendees {
		if a == nil || a.GetTypeEscaped() == nil || *a.GetTypeEscaped() != models.REQUIRED_ATTENDEETYPE {
			continue
		}
		if a.GetEmailAddress() == nil {
			continue
		}
		if addr := deref(a.GetEmailAddress().GetAddress()); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// joinURL prefers the Teams join link over the legacy online meeting URL.
func joinURL(e models.Eventable) string {
	if om := e.GetOnlineMeeting(); om != nil {
		if u := deref(om.GetJoinUrl()); u != "" {
			return u
		}
	}
	return deref(e.GetOnlineMeetingUrl())
}

// upcomingFilter selects events starting at or after now.
func upcomingFilter(now time.Time) string {
	return fmt.Sprintf("start/dateTime ge '%s'", now.UTC().Format("2006-01-02T15:04:05"))
}
