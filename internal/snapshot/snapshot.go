// Package snapshot holds the in-memory record of one meeting: the fields read
// from the live host item plus the two user preferences.
package snapshot

import (
	"slices"
	"sync"
)

// Unavailable is the placeholder for text fields the host never supplied.
const Unavailable = "Unavailable"

// Minutes-of-meeting toggle values.
const (
	MomYes = "Yes"
	MomNo  = "No"
)

// DefaultMeetingType is used until the user or a saved preference picks one.
const DefaultMeetingType = "Standup"

// Fields is a plain copy of the snapshot state.
type Fields struct {
	Subject         string
	Body            string
	Organizer       string
	MeetingType     string
	EnableMom       string
	StartTime       string
	EndTime         string
	Location        string
	IsOnlineMeeting bool
	JoinURL         string
	Attendees       []string
}

// Defaults returns the field values a fresh snapshot starts with.
func Defaults() Fields {
	return Fields{
		Subject:     Unavailable,
		Body:        Unavailable,
		Organizer:   Unavailable,
		MeetingType: DefaultMeetingType,
		EnableMom:   MomYes,
		StartTime:   Unavailable,
		EndTime:     Unavailable,
		Attendees:   []string{},
	}
}

func (f Fields) clone() Fields {
	f.Attendees = slices.Clone(f.Attendees)
	if f.Attendees == nil {
		f.Attendees = []string{}
	}
	return f
}

// Preferences are the only fields round-tripped through the item's property bag.
type Preferences struct {
	MeetingType string `json:"meetingType"`
	EnableMom   string `json:"enableMom"`
}

// Snapshot is the single mutable meeting record of a session. Several
// goroutines write to it; every write is last-write-wins.
type Snapshot struct {
	mu sync.Mutex
	f  Fields
}

// New returns a snapshot populated with Defaults.
func New() *Snapshot {
	return &Snapshot{f: Defaults()}
}

// Get returns a copy of the current fields.
func (s *Snapshot) Get() Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.clone()
}

// Update applies fn to the fields under the snapshot lock.
// A nil Attendees slice left by fn is normalized to an empty one.
func (s *Snapshot) Update(fn func(f *Fields)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.f)
	if s.f.Attendees == nil {
		s.f.Attendees = []string{}
	}
}

// Preferences returns the persisted subset.
func (s *Snapshot) Preferences() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Preferences{MeetingType: s.f.MeetingType, EnableMom: s.f.EnableMom}
}

// SetMeetingType overwrites the meeting type preference.
func (s *Snapshot) SetMeetingType(v string) {
	s.Update(func(f *Fields) { f.MeetingType = v })
}

// SetEnableMom overwrites the minutes-of-meeting preference.
func (s *Snapshot) SetEnableMom(v string) {
	s.Update(func(f *Fields) { f.EnableMom = v })
}
