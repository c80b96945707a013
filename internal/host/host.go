// Package host describes the mail client surface the collector reads from:
// the signed-in user, the currently open meeting item and the item's custom
// property bag.
//
// Items are polymorphic over their capabilities. An accessor that returns a
// nil Field means the item does not carry that property (a message has no
// start time, for example) and no read should be issued for it.
package host

import (
	"context"
	"errors"
	"time"
)

// ErrNoItem is returned by Host.Item when no item is open.
var ErrNoItem = errors.New("no item is open")

// Field is a single asynchronous property read against the host item.
type Field[T any] interface {
	Get(ctx context.Context) (T, error)
}

// FieldFunc adapts a function to Field.
type FieldFunc[T any] func(ctx context.Context) (T, error)

// Get calls f.
func (f FieldFunc[T]) Get(ctx context.Context) (T, error) {
	return f(ctx)
}

// Item is the meeting item currently open in the mail client.
type Item interface {
	Subject() Field[string]
	// Body returns the item body coerced to plain text.
	Body() Field[string]
	Start() Field[time.Time]
	End() Field[time.Time]
	Location() Field[string]
	// RequiredAttendees returns the required attendees' addresses.
	RequiredAttendees() Field[[]string]

	// IsOnlineMeeting and MeetingURL are available without a round trip.
	IsOnlineMeeting() bool
	MeetingURL() string
}

// BodyWriter is implemented by items whose body can be replaced.
type BodyWriter interface {
	SetBody(ctx context.Context, text string) error
}

// CustomProperties is a loaded handle on an item's property bag. Set stages a
// value; Save commits all staged values.
type CustomProperties interface {
	Get(name string) (string, bool)
	Set(name, value string)
	Save(ctx context.Context) error
}

// PropertyBag loads a fresh CustomProperties handle for one item.
type PropertyBag interface {
	LoadCustomProperties(ctx context.Context) (CustomProperties, error)
}

// Host is the mail client object model.
type Host interface {
	PropertyBag

	// UserEmail is the signed-in user's address from the local profile.
	UserEmail() string
	// Item returns the open item, or an error when none is available.
	Item(ctx context.Context) (Item, error)
}
