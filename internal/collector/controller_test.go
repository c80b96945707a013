//go:build !integration
// +build !integration

package collector

import (
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"meetingsnap/internal/host"
	"meetingsnap/internal/snapshot"
)

func waitReady(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ready(ctx); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
}

func TestController_InitOnceUnlessForced(t *testing.T) {
	ctx := context.Background()
	r := newRig(newFakeHost("a@x.com", &fakeItem{subject: value("Sync")}))

	if got := r.ctrl.State(); got != Uninitialized {
		t.Fatalf("initial state = %v", got)
	}

	r.ctrl.Init(ctx, false)
	waitReady(t, r.ctrl)
	r.ctrl.Init(ctx, false)
	waitReady(t, r.ctrl)

	if n := r.host.calls.Load(); n != 1 {
		t.Errorf("live loads after two unforced inits = %d, want 1", n)
	}
	if got := r.ctrl.State(); got != Ready {
		t.Errorf("state = %v, want ready", got)
	}

	r.ctrl.Init(ctx, true)
	waitReady(t, r.ctrl)
	if n := r.host.calls.Load(); n != 2 {
		t.Errorf("live loads after forced init = %d, want 2", n)
	}

	// Listeners are not duplicated by the forced init.
	if n := r.controls.sel.listenerCount(); n != 1 {
		t.Errorf("select listeners = %d, want 1", n)
	}
}

func TestController_InitSetsOrganizer(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{email: "a@x.com", want: "a@x.com"},
		{email: "", want: snapshot.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			r := newRig(newFakeHost(tt.email, &fakeItem{}))
			r.ctrl.Init(context.Background(), false)
			waitReady(t, r.ctrl)
			if got := r.snap.Get().Organizer; got != tt.want {
				t.Errorf("Organizer = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestController_InitAppliesSavedPreferencesToControls(t *testing.T) {
	h := newFakeHost("a@x.com", &fakeItem{})
	h.MemoryBag = host.NewMemoryBag(map[string]string{
		PreferencesProperty: `{"meetingType":"Retro","enableMom":"No"}`,
	})
	r := newRig(h)

	r.ctrl.Init(context.Background(), false)
	waitReady(t, r.ctrl)

	if got := r.controls.sel.Value(); got != "Retro" {
		t.Errorf("select value = %q, want Retro", got)
	}
	if !r.controls.radios[1].Checked() || r.controls.radios[0].Checked() {
		t.Error("radio group does not reflect the saved minutes preference")
	}
}

func TestController_ReadyBeforeInit(t *testing.T) {
	r := newRig(newFakeHost("", &fakeItem{}))
	if err := r.ctrl.Ready(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Ready() error = %v, want ErrNotInitialized", err)
	}
}

func TestController_ReadyFollowsNewestChain(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	entered := make(chan struct{})

	blocked := &fakeItem{subject: host.FieldFunc[string](func(context.Context) (string, error) {
		close(entered)
		<-gate
		return "Stale", nil
	})}
	h := newFakeHost("a@x.com", nil)
	h.next = func(call int32) host.Item {
		if call == 1 {
			return blocked
		}
		return &fakeItem{subject: value("Sync")}
	}
	r := newRig(h)

	r.ctrl.Init(context.Background(), false)
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first chain never reached the item")
	}
	r.ctrl.Init(context.Background(), true)
	waitReady(t, r.ctrl)

	if got := r.ctrl.State(); got != Ready {
		t.Errorf("state = %v, want ready while the older chain is still blocked", got)
	}
	if got := r.snap.Get().Subject; got != "Sync" {
		t.Errorf("Subject = %q, want Sync", got)
	}
}

func TestController_GetMeetingDataAndSend(t *testing.T) {
	r := newRig(newFakeHost("a@x.com", &fakeItem{subject: value("Sync")}))

	if err := r.ctrl.GetMeetingDataAndSend(context.Background(), false); err != nil {
		t.Fatalf("GetMeetingDataAndSend() error = %v", err)
	}

	sent := r.beacon.sent()
	if len(sent) != 1 {
		t.Fatalf("sends = %d, want 1", len(sent))
	}
	if !strings.Contains(sent[0], `"organizer":"a@x.com"`) || !strings.Contains(sent[0], `"subject":"Sync"`) {
		t.Errorf("body = %s", sent[0])
	}
	// One load for the init chain, one for the forced reload before sending.
	if n := r.host.calls.Load(); n != 2 {
		t.Errorf("live loads = %d, want 2", n)
	}

	// Every trigger sends again.
	if err := r.ctrl.GetMeetingDataAndSend(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if n := len(r.beacon.sent()); n != 2 {
		t.Errorf("sends after second trigger = %d, want 2", n)
	}
}

func TestController_GetMeetingDataAndSendCanceled(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)

	r := newRig(newFakeHost("", &fakeItem{subject: host.FieldFunc[string](func(context.Context) (string, error) {
		<-gate
		return "Sync", nil
	})}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.ctrl.GetMeetingDataAndSend(ctx, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if n := len(r.beacon.sent()); n != 0 {
		t.Errorf("sends = %d, want none", n)
	}
}

func TestController_Teardown(t *testing.T) {
	r := newRig(newFakeHost("a@x.com", &fakeItem{subject: value("Sync")}))
	r.ctrl.Init(context.Background(), false)
	waitReady(t, r.ctrl)

	r.ctrl.Teardown(context.Background())
	r.ctrl.Teardown(context.Background())

	if n := len(r.beacon.sent()); n != 2 {
		t.Errorf("sends = %d, want one per teardown", n)
	}
	if n := r.closer.calls.Load(); n != 1 {
		t.Errorf("transport closed %d times, want 1", n)
	}
}

func TestController_WatchTeardown(t *testing.T) {
	r := newRig(newFakeHost("a@x.com", &fakeItem{subject: value("Sync")}))
	r.ctrl.Init(context.Background(), false)
	waitReady(t, r.ctrl)

	signals := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		r.ctrl.WatchTeardown(context.Background(), signals)
		close(done)
	}()

	signals <- syscall.SIGTERM
	close(signals)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WatchTeardown did not return after signals closed")
	}
	if n := len(r.beacon.sent()); n != 1 {
		t.Errorf("sends = %d, want 1", n)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		Uninitialized: "uninitialized",
		Initializing:  "initializing",
		Ready:         "ready",
		State(9):      "State(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
