package snapshot

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ContentType of the delivered record.
const ContentType = "application/json"

// timestampLayout is YYYY-MM-DDTHH:mm:ss±HH:mm.
const timestampLayout = "2006-01-02T15:04:05-07:00"

// Record is the flat JSON document sent to the save-meeting endpoint.
// Field order matches the wire format.
type Record struct {
	Organizer       string   `json:"organizer"`
	OrganizerEmail  string   `json:"organizer_email"`
	Subject         string   `json:"subject"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	MeetingType     string   `json:"meeting_type"`
	EnableMom       string   `json:"enable_mom"`
	Preview         string   `json:"preview"`
	Location        string   `json:"location"`
	IsOnlineMeeting bool     `json:"isOnlineMeeting"`
	JoinURL         string   `json:"join_url"`
	Attendees       []string `json:"attendees"`
}

// NewRecord mirrors the snapshot fields into the outgoing record.
func NewRecord(f Fields) Record {
	attendees := slices.Clone(f.Attendees)
	if attendees == nil {
		attendees = []string{}
	}
	return Record{
		Organizer:       f.Organizer,
		OrganizerEmail:  f.Organizer,
		Subject:         f.Subject,
		Start:           f.StartTime,
		End:             f.EndTime,
		MeetingType:     f.MeetingType,
		EnableMom:       f.EnableMom,
		Preview:         f.Body,
		Location:        f.Location,
		IsOnlineMeeting: f.IsOnlineMeeting,
		JoinURL:         f.JoinURL,
		Attendees:       attendees,
	}
}

// Marshal encodes the record as compact JSON.
func (r Record) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal meeting record: %w", err)
	}
	return data, nil
}

// Summary renders the record as the human-readable text written into the
// item body when summaries are enabled.
func (r Record) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Meeting: %s\n", r.Subject)
	fmt.Fprintf(&b, "Organizer: %s\n", r.Organizer)
	fmt.Fprintf(&b, "When: %s - %s\n", r.Start, r.End)
	if r.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", r.Location)
	}
	if r.IsOnlineMeeting && r.JoinURL != "" {
		fmt.Fprintf(&b, "Join: %s\n", r.JoinURL)
	}
	fmt.Fprintf(&b, "Type: %s\n", r.MeetingType)
	fmt.Fprintf(&b, "Minutes of meeting: %s\n", r.EnableMom)
	if len(r.Attendees) > 0 {
		fmt.Fprintf(&b, "Attendees: %s\n", strings.Join(r.Attendees, ", "))
	}
	return b.String()
}

// FormatTimestamp renders t in loc as YYYY-MM-DDTHH:mm:ss±HH:mm using loc's
// offset at that instant. A zone west of UTC yields '-', east or UTC yields '+'.
// The zero time renders as Unavailable. A nil loc means time.Local.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return Unavailable
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(timestampLayout)
}
