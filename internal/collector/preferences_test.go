//go:build !integration
// +build !integration

package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"meetingsnap/internal/common/logger"
	"meetingsnap/internal/host"
	"meetingsnap/internal/snapshot"
)

func TestPreferences_RoundTrip(t *testing.T) {
	ctx := context.Background()
	bag := host.NewMemoryBag(nil)

	snap := snapshot.New()
	snap.SetMeetingType("Retro")
	snap.SetEnableMom(snapshot.MomNo)

	prefs := NewPreferences(bag, snap, logger.Discard())
	prefs.Save(ctx)
	if err := prefs.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	raw, ok := bag.Value(PreferencesProperty)
	if !ok {
		t.Fatalf("%s was not committed", PreferencesProperty)
	}
	if want := `{"meetingType":"Retro","enableMom":"No"}`; raw != want {
		t.Errorf("stored = %s, want %s", raw, want)
	}

	fresh := snapshot.New()
	NewPreferences(bag, fresh, logger.Discard()).Load(ctx)
	if got := fresh.Preferences(); got != (snapshot.Preferences{MeetingType: "Retro", EnableMom: snapshot.MomNo}) {
		t.Errorf("loaded preferences = %+v", got)
	}
}

func TestPreferences_Load(t *testing.T) {
	tests := []struct {
		name string
		bag  host.PropertyBag
		want snapshot.Preferences
	}{
		{
			name: "nothing saved",
			bag:  host.NewMemoryBag(nil),
			want: snapshot.Preferences{MeetingType: snapshot.DefaultMeetingType, EnableMom: snapshot.MomYes},
		},
		{
			name: "malformed json",
			bag:  host.NewMemoryBag(map[string]string{PreferencesProperty: "{not json"}),
			want: snapshot.Preferences{MeetingType: snapshot.DefaultMeetingType, EnableMom: snapshot.MomYes},
		},
		{
			name: "partial value",
			bag:  host.NewMemoryBag(map[string]string{PreferencesProperty: `{"meetingType":"Planning"}`}),
			want: snapshot.Preferences{MeetingType: "Planning", EnableMom: snapshot.MomYes},
		},
		{
			name: "empty strings ignored",
			bag:  host.NewMemoryBag(map[string]string{PreferencesProperty: `{"meetingType":"","enableMom":"No"}`}),
			want: snapshot.Preferences{MeetingType: snapshot.DefaultMeetingType, EnableMom: snapshot.MomNo},
		},
		{
			name: "host failure",
			bag:  errBag{err: errors.New("mailbox locked")},
			want: snapshot.Preferences{MeetingType: snapshot.DefaultMeetingType, EnableMom: snapshot.MomYes},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshot.New()
			NewPreferences(tt.bag, snap, logger.Discard()).Load(context.Background())
			if got := snap.Preferences(); got != tt.want {
				t.Errorf("Preferences() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPreferences_SaveFailureIsSwallowed(t *testing.T) {
	bag := failingSaveBag{host.NewMemoryBag(nil)}
	prefs := NewPreferences(bag, snapshot.New(), logger.Discard())

	prefs.Save(context.Background())
	if err := prefs.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if _, ok := bag.Value(PreferencesProperty); ok {
		t.Error("value committed despite a failing Save")
	}
}

func TestPreferences_SaveOutlivesCanceledContext(t *testing.T) {
	bag := host.NewMemoryBag(nil)
	prefs := NewPreferences(bag, snapshot.New(), logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prefs.Save(ctx)

	flushCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := prefs.Flush(flushCtx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if _, ok := bag.Value(PreferencesProperty); !ok {
		t.Error("save was dropped after the caller's context was canceled")
	}
}

func TestPreferences_SavesCommitInOrder(t *testing.T) {
	bag := &gatedSaveBag{
		MemoryBag: host.NewMemoryBag(nil),
		entered:   make(chan struct{}),
		gate:      make(chan struct{}),
	}
	snap := snapshot.New()
	prefs := NewPreferences(bag, snap, logger.Discard())
	ctx := context.Background()

	snap.SetMeetingType("Retro")
	prefs.Save(ctx)
	select {
	case <-bag.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first save never reached its commit")
	}

	snap.SetMeetingType("Review")
	prefs.Save(ctx)
	close(bag.gate)

	flushCtx, stop := context.WithTimeout(ctx, 5*time.Second)
	defer stop()
	if err := prefs.Flush(flushCtx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	raw, _ := bag.Value(PreferencesProperty)
	if want := `{"meetingType":"Review","enableMom":"Yes"}`; raw != want {
		t.Errorf("stored = %s, want %s", raw, want)
	}
}
