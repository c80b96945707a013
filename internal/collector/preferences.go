package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"meetingsnap/internal/common/logger"
	"meetingsnap/internal/host"
	"meetingsnap/internal/snapshot"
)

// PreferencesProperty is the property bag key holding the saved form choices.
const PreferencesProperty = "meetingFormData"

// Preferences persists the meeting type and minutes toggle on the item.
type Preferences struct {
	bag    host.PropertyBag
	snap   *snapshot.Snapshot
	logger *slog.Logger

	pending sync.WaitGroup
	// saveMu serializes the snapshot read and commit of each save.
	saveMu sync.Mutex
}

// NewPreferences returns an adapter between snap and bag.
func NewPreferences(bag host.PropertyBag, snap *snapshot.Snapshot, l *slog.Logger) *Preferences {
	return &Preferences{bag: bag, snap: snap, logger: l}
}

// Load applies saved preferences to the snapshot. Missing, unreadable or
// malformed data leaves the current values in place.
func (p *Preferences) Load(ctx context.Context) {
	props, err := p.bag.LoadCustomProperties(ctx)
	if err != nil {
		logger.LogWarn(p.logger, "Failed to load custom properties", "error", err)
		return
	}

	raw, ok := props.Get(PreferencesProperty)
	if !ok || raw == "" {
		logger.LogDebug(p.logger, "No saved preferences, using defaults")
		return
	}

	var saved snapshot.Preferences
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		logger.LogError(p.logger, "Failed to parse saved preferences", "error", err)
		return
	}

	p.snap.Update(func(f *snapshot.Fields) {
		if saved.MeetingType != "" {
			f.MeetingType = saved.MeetingType
		}
		if saved.EnableMom != "" {
			f.EnableMom = saved.EnableMom
		}
	})
	logger.LogInfo(p.logger, "Loaded saved preferences", "meetingType", saved.MeetingType, "enableMom", saved.EnableMom)
}

// Save persists the current preferences in the background. Failures are
// logged; nothing is retried.
func (p *Preferences) Save(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		if err := p.save(ctx); err != nil {
			logger.LogWarn(p.logger, "Failed to save preferences", "error", err)
			return
		}
		logger.LogDebug(p.logger, "Preferences saved")
	}()
}

// Flush waits for in-flight saves, or for ctx to end.
func (p *Preferences) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Preferences) save(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	// The handle must be fresh; a previously loaded one may be stale.
	props, err := p.bag.LoadCustomProperties(ctx)
	if err != nil {
		return fmt.Errorf("failed to load custom properties: %w", err)
	}

	data, err := json.Marshal(p.snap.Preferences())
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	props.Set(PreferencesProperty, string(data))

	if err := props.Save(ctx); err != nil {
		return fmt.Errorf("failed to commit custom properties: %w", err)
	}
	return nil
}
