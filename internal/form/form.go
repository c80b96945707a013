// Package form renders the task pane controls in the terminal with huh and
// exposes them to the collector as a select and a radio group.
package form

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/huh"

	"meetingsnap/internal/collector"
	"meetingsnap/internal/snapshot"
)

// DefaultMeetingTypes are the select options when none are configured.
var DefaultMeetingTypes = []string{"Standup", "Planning", "Retro", "Review", "One-on-one", "Client call"}

// ErrAborted is returned by Run when the user closes the form without
// submitting it.
var ErrAborted = errors.New("form closed without submitting")

// Select is a single-select control.
type Select struct {
	mu        sync.Mutex
	options   []string
	value     string
	listeners []func(string)
}

// NewSelect returns a select over options with the first one selected.
func NewSelect(options []string) *Select {
	s := &Select{options: slices.Clone(options)}
	if len(options) > 0 {
		s.value = options[0]
	}
	return s
}

func (s *Select) Options() []string {
	return slices.Clone(s.options)
}

func (s *Select) Value() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// SetValue selects v without notifying listeners.
func (s *Select) SetValue(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

func (s *Select) OnChange(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Choose selects v as a user edit, notifying listeners when it changed.
func (s *Select) Choose(v string) error {
	if !slices.Contains(s.options, v) {
		return fmt.Errorf("unknown meeting type %q (options: %v)", v, s.options)
	}
	s.mu.Lock()
	changed := s.value != v
	s.value = v
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(v)
		}
	}
	return nil
}

// RadioGroup is a set of mutually exclusive options.
type RadioGroup struct {
	mu       sync.Mutex
	radios   []*Radio
	selected string
}

// Radio is one option of a RadioGroup.
type Radio struct {
	group     *RadioGroup
	value     string
	listeners []func(bool)
}

// NewRadioGroup returns a group with one radio per value and none checked.
func NewRadioGroup(values ...string) *RadioGroup {
	g := &RadioGroup{}
	for _, v := range values {
		g.radios = append(g.radios, &Radio{group: g, value: v})
	}
	return g
}

// Radios returns the group's options in order.
func (g *RadioGroup) Radios() []*Radio {
	return slices.Clone(g.radios)
}

// Selected returns the checked value, or "" when none is checked.
func (g *RadioGroup) Selected() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selected
}

// Choose checks the radio with value v as a user edit. The previously
// checked radio is notified of its uncheck first.
func (g *RadioGroup) Choose(v string) error {
	var next *Radio
	for _, r := range g.radios {
		if r.value == v {
			next = r
		}
	}
	if next == nil {
		return fmt.Errorf("unknown option %q", v)
	}

	g.mu.Lock()
	if g.selected == v {
		g.mu.Unlock()
		return nil
	}
	var prev *Radio
	for _, r := range g.radios {
		if r.value == g.selected {
			prev = r
		}
	}
	g.selected = v
	var prevListeners []func(bool)
	if prev != nil {
		prevListeners = slices.Clone(prev.listeners)
	}
	nextListeners := slices.Clone(next.listeners)
	g.mu.Unlock()

	for _, fn := range prevListeners {
		fn(false)
	}
	for _, fn := range nextListeners {
		fn(true)
	}
	return nil
}

func (r *Radio) Value() string { return r.value }

func (r *Radio) Checked() bool {
	return r.group.Selected() == r.value
}

// SetChecked updates the check state without notifying listeners.
func (r *Radio) SetChecked(checked bool) {
	g := r.group
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case checked:
		g.selected = r.value
	case g.selected == r.value:
		g.selected = ""
	}
}

func (r *Radio) OnChange(fn func(bool)) {
	r.group.mu.Lock()
	defer r.group.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Form is the task pane: a meeting type select and a minutes-of-meeting
// radio group.
type Form struct {
	meetingType *Select
	enableMom   *RadioGroup
	accessible  bool
}

// New returns a form offering meetingTypes, or DefaultMeetingTypes when empty.
func New(meetingTypes []string, accessible bool) *Form {
	if len(meetingTypes) == 0 {
		meetingTypes = DefaultMeetingTypes
	}
	return &Form{
		meetingType: NewSelect(meetingTypes),
		enableMom:   NewRadioGroup(snapshot.MomYes, snapshot.MomNo),
		accessible:  accessible,
	}
}

// MeetingType implements collector.Controls.
func (f *Form) MeetingType() collector.Select {
	if f == nil || f.meetingType == nil {
		return nil
	}
	return f.meetingType
}

// EnableMom implements collector.Controls.
func (f *Form) EnableMom() []collector.Radio {
	if f == nil || f.enableMom == nil {
		return nil
	}
	out := make([]collector.Radio, 0, len(f.enableMom.radios))
	for _, r := range f.enableMom.radios {
		out = append(out, r)
	}
	return out
}

// Apply makes non-interactive edits. Empty arguments leave a control alone.
func (f *Form) Apply(meetingType, enableMom string) error {
	if meetingType != "" {
		if err := f.meetingType.Choose(meetingType); err != nil {
			return err
		}
	}
	if enableMom != "" {
		if err := f.enableMom.Choose(enableMom); err != nil {
			return fmt.Errorf("invalid minutes-of-meeting value: %w", err)
		}
	}
	return nil
}

// Run shows the form until the user submits or closes it, then applies the
// submitted values as edits. Closing without submitting returns ErrAborted
// and changes nothing.
func (f *Form) Run(ctx context.Context) error {
	meetingType := f.meetingType.Value()
	enableMom := f.enableMom.Selected()
	if enableMom == "" {
		enableMom = snapshot.MomYes
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Meeting type").
				Options(huh.NewOptions(f.meetingType.Options()...)...).
				Value(&meetingType),
			huh.NewSelect[string]().
				Title("Enable minutes of meeting").
				Options(
					huh.NewOption("Yes", snapshot.MomYes),
					huh.NewOption("No", snapshot.MomNo),
				).
				Inline(true).
				Value(&enableMom),
		),
	).WithAccessible(f.accessible)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return fmt.Errorf("running form: %w", err)
	}
	return f.Apply(meetingType, enableMom)
}
