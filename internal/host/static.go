package host

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"
)

// Fixture describes a user and an open item in a JSON file. Optional item
// properties are pointers; an absent key means the item lacks the capability.
//
//	{
//	  "user": "a@x.com",
//	  "item": {
//	    "id": "evt-1",
//	    "subject": "Sync",
//	    "start": "2024-01-01T14:00:00Z",
//	    "requiredAttendees": ["b@x.com"]
//	  }
//	}
type Fixture struct {
	User string       `json:"user"`
	Item *FixtureItem `json:"item"`
}

// FixtureItem is the item part of a Fixture.
type FixtureItem struct {
	ID                string    `json:"id"`
	Subject           *string   `json:"subject,omitempty"`
	Body              *string   `json:"body,omitempty"`
	Start             *string   `json:"start,omitempty"` // RFC 3339
	End               *string   `json:"end,omitempty"`   // RFC 3339
	Location          *string   `json:"location,omitempty"`
	RequiredAttendees *[]string `json:"requiredAttendees,omitempty"`
	IsOnlineMeeting   bool      `json:"isOnlineMeeting"`
	MeetingURL        string    `json:"meetingUrl,omitempty"`
}

// LoadFixture reads and decodes a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	return &fx, nil
}

// Static is a Host backed by a Fixture. Body writes replace the in-memory
// body only.
type Static struct {
	mu    sync.Mutex
	fx    Fixture
	props PropertyBag
}

// NewStatic returns a host over fx whose custom properties live in props.
func NewStatic(fx *Fixture, props PropertyBag) *Static {
	s := &Static{props: props}
	if fx != nil {
		s.fx.User = fx.User
		if fx.Item != nil {
			item := *fx.Item
			s.fx.Item = &item
		}
	}
	return s
}

func (s *Static) UserEmail() string {
	return s.fx.User
}

func (s *Static) Item(ctx context.Context) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fx.Item == nil {
		return nil, ErrNoItem
	}
	return &staticItem{host: s, item: *s.fx.Item}, nil
}

func (s *Static) LoadCustomProperties(ctx context.Context) (CustomProperties, error) {
	if s.props == nil {
		return nil, fmt.Errorf("fixture host has no property store")
	}
	return s.props.LoadCustomProperties(ctx)
}

type staticItem struct {
	host *Static
	item FixtureItem
}

func (i *staticItem) Subject() Field[string]  { return stringField(i.item.Subject) }
func (i *staticItem) Body() Field[string]     { return stringField(i.item.Body) }
func (i *staticItem) Location() Field[string] { return stringField(i.item.Location) }
func (i *staticItem) Start() Field[time.Time] { return timeField(i.item.Start) }
func (i *staticItem) End() Field[time.Time]   { return timeField(i.item.End) }
func (i *staticItem) IsOnlineMeeting() bool   { return i.item.IsOnlineMeeting }
func (i *staticItem) MeetingURL() string      { return i.item.MeetingURL }

func (i *staticItem) RequiredAttendees() Field[[]string] {
	if i.item.RequiredAttendees == nil {
		return nil
	}
	v := slices.Clone(*i.item.RequiredAttendees)
	return FieldFunc[[]string](func(ctx context.Context) ([]string, error) {
		return v, ctx.Err()
	})
}

func (i *staticItem) SetBody(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.host.mu.Lock()
	defer i.host.mu.Unlock()
	if i.host.fx.Item != nil {
		i.host.fx.Item.Body = &text
	}
	return nil
}

func stringField(p *string) Field[string] {
	if p == nil {
		return nil
	}
	v := *p
	return FieldFunc[string](func(ctx context.Context) (string, error) {
		return v, ctx.Err()
	})
}

func timeField(p *string) Field[time.Time] {
	if p == nil {
		return nil
	}
	raw := *p
	return FieldFunc[time.Time](func(ctx context.Context) (time.Time, error) {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
		}
		return t, nil
	})
}
