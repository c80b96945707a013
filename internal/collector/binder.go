package collector

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"meetingsnap/internal/common/logger"
	"meetingsnap/internal/snapshot"
)

// Select is a single-select list of string options.
type Select interface {
	Options() []string
	Value() string
	SetValue(v string)
	OnChange(fn func(value string))
}

// Radio is one option of a mutually exclusive group. OnChange fires with the
// option's new checked state.
type Radio interface {
	Value() string
	Checked() bool
	SetChecked(checked bool)
	OnChange(fn func(checked bool))
}

// Controls looks up the rendered form controls. A nil Select or an empty
// radio list means the control is not on screen.
type Controls interface {
	MeetingType() Select
	EnableMom() []Radio
}

// Binder keeps the form controls and the snapshot preferences in step.
// Controls must be comparable; pointer implementations are.
type Binder struct {
	controls Controls
	snap     *snapshot.Snapshot
	prefs    *Preferences
	logger   *slog.Logger

	mu    sync.Mutex
	bound map[any]struct{}
}

// NewBinder returns a binder. A nil controls provider binds nothing.
func NewBinder(controls Controls, snap *snapshot.Snapshot, prefs *Preferences, l *slog.Logger) *Binder {
	return &Binder{
		controls: controls,
		snap:     snap,
		prefs:    prefs,
		logger:   l,
		bound:    make(map[any]struct{}),
	}
}

// Bind attaches one change listener to every control that has none yet.
func (b *Binder) Bind(ctx context.Context) {
	if b.controls == nil {
		return
	}

	if sel := b.controls.MeetingType(); sel != nil && b.claim(sel) {
		sel.OnChange(func(value string) {
			b.snap.SetMeetingType(value)
			logger.LogInfo(b.logger, "Meeting type changed", "meetingType", value)
			b.prefs.Save(ctx)
		})
	}

	for _, opt := range b.controls.EnableMom() {
		if opt == nil || !b.claim(opt) {
			continue
		}
		opt := opt
		opt.OnChange(func(checked bool) {
			if !checked {
				return
			}
			b.snap.SetEnableMom(opt.Value())
			logger.LogInfo(b.logger, "Minutes of meeting changed", "enableMom", opt.Value())
			b.prefs.Save(ctx)
		})
	}
}

// claim reports whether c was unbound, marking it bound.
func (b *Binder) claim(c any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.bound[c]; ok {
		return false
	}
	b.bound[c] = struct{}{}
	return true
}

// Sync reflects the snapshot preferences into the controls. When the stored
// meeting type is not an option, the first option wins and is persisted.
func (b *Binder) Sync(ctx context.Context) {
	if b.controls == nil {
		return
	}
	prefs := b.snap.Preferences()

	if sel := b.controls.MeetingType(); sel != nil {
		options := sel.Options()
		switch {
		case slices.Contains(options, prefs.MeetingType):
			sel.SetValue(prefs.MeetingType)
		case len(options) > 0:
			fallback := options[0]
			sel.SetValue(fallback)
			b.snap.SetMeetingType(fallback)
			logger.LogInfo(b.logger, "Stored meeting type is not an option, using first option",
				"stored", prefs.MeetingType, "meetingType", fallback)
			b.prefs.Save(ctx)
		}
	}

	for _, opt := range b.controls.EnableMom() {
		if opt != nil {
			opt.SetChecked(opt.Value() == prefs.EnableMom)
		}
	}
}
