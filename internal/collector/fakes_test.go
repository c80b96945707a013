//go:build !integration
// +build !integration

package collector

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"meetingsnap/internal/common/logger"
	"meetingsnap/internal/host"
	"meetingsnap/internal/snapshot"
)

var errRead = errors.New("host read failed")

func value[T any](v T) host.Field[T] {
	return host.FieldFunc[T](func(context.Context) (T, error) { return v, nil })
}

func failing[T any]() host.Field[T] {
	return host.FieldFunc[T](func(context.Context) (T, error) {
		var zero T
		return zero, errRead
	})
}

// fakeItem is a host item whose fields are set per test. Nil fields are
// absent capabilities.
type fakeItem struct {
	subject, body, location host.Field[string]
	start, end              host.Field[time.Time]
	attendees               host.Field[[]string]
	online                  bool
	url                     string

	mu      sync.Mutex
	written []string
}

func (i *fakeItem) Subject() host.Field[string]             { return i.subject }
func (i *fakeItem) Body() host.Field[string]                { return i.body }
func (i *fakeItem) Location() host.Field[string]            { return i.location }
func (i *fakeItem) Start() host.Field[time.Time]            { return i.start }
func (i *fakeItem) End() host.Field[time.Time]              { return i.end }
func (i *fakeItem) RequiredAttendees() host.Field[[]string] { return i.attendees }
func (i *fakeItem) IsOnlineMeeting() bool                   { return i.online }
func (i *fakeItem) MeetingURL() string                      { return i.url }

func (i *fakeItem) SetBody(ctx context.Context, text string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.written = append(i.written, text)
	return nil
}

func (i *fakeItem) bodies() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.written)
}

// readOnlyItem hides fakeItem's SetBody.
type readOnlyItem struct{ host.Item }

// fakeHost serves item on every Item call unless next is set.
type fakeHost struct {
	*host.MemoryBag
	email   string
	item    host.Item
	itemErr error
	next    func(call int32) host.Item

	calls atomic.Int32
}

func newFakeHost(email string, item host.Item) *fakeHost {
	return &fakeHost{MemoryBag: host.NewMemoryBag(nil), email: email, item: item}
}

func (h *fakeHost) UserEmail() string { return h.email }

func (h *fakeHost) Item(ctx context.Context) (host.Item, error) {
	n := h.calls.Add(1)
	if h.itemErr != nil {
		return nil, h.itemErr
	}
	if h.next != nil {
		return h.next(n), nil
	}
	return h.item, nil
}

type errBag struct{ err error }

func (b errBag) LoadCustomProperties(ctx context.Context) (host.CustomProperties, error) {
	return nil, b.err
}

// failingSaveBag loads fine but never commits.
type failingSaveBag struct{ *host.MemoryBag }

func (b failingSaveBag) LoadCustomProperties(ctx context.Context) (host.CustomProperties, error) {
	props, err := b.MemoryBag.LoadCustomProperties(ctx)
	if err != nil {
		return nil, err
	}
	return failingSave{props}, nil
}

type failingSave struct{ host.CustomProperties }

func (failingSave) Save(ctx context.Context) error { return errors.New("commit rejected") }

// gatedSaveBag holds the first commit until gate is closed and reports on
// entered when that commit starts.
type gatedSaveBag struct {
	*host.MemoryBag
	entered chan struct{}
	gate    chan struct{}
	first   sync.Once
}

func (b *gatedSaveBag) LoadCustomProperties(ctx context.Context) (host.CustomProperties, error) {
	props, err := b.MemoryBag.LoadCustomProperties(ctx)
	if err != nil {
		return nil, err
	}
	return gatedSave{CustomProperties: props, bag: b}, nil
}

type gatedSave struct {
	host.CustomProperties
	bag *gatedSaveBag
}

func (s gatedSave) Save(ctx context.Context) error {
	s.bag.first.Do(func() {
		close(s.bag.entered)
		<-s.bag.gate
	})
	return s.CustomProperties.Save(ctx)
}

type fakeSelect struct {
	mu        sync.Mutex
	options   []string
	value     string
	listeners []func(string)
}

func (s *fakeSelect) Options() []string { return s.options }

func (s *fakeSelect) Value() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *fakeSelect) SetValue(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

func (s *fakeSelect) OnChange(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *fakeSelect) choose(v string) {
	s.SetValue(v)
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(v)
	}
}

func (s *fakeSelect) listenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

type fakeRadio struct {
	mu        sync.Mutex
	value     string
	checked   bool
	listeners []func(bool)
}

func (r *fakeRadio) Value() string { return r.value }

func (r *fakeRadio) Checked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checked
}

func (r *fakeRadio) SetChecked(c bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checked = c
}

func (r *fakeRadio) OnChange(fn func(bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *fakeRadio) toggle(c bool) {
	r.SetChecked(c)
	r.mu.Lock()
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}
}

func (r *fakeRadio) listenerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

type fakeControls struct {
	sel    *fakeSelect
	radios []*fakeRadio
}

func (c *fakeControls) MeetingType() Select {
	if c.sel == nil {
		return nil
	}
	return c.sel
}

func (c *fakeControls) EnableMom() []Radio {
	out := make([]Radio, 0, len(c.radios))
	for _, r := range c.radios {
		out = append(out, r)
	}
	return out
}

func newFakeControls() *fakeControls {
	return &fakeControls{
		sel:    &fakeSelect{options: []string{"Standup", "Retro", "Planning"}},
		radios: []*fakeRadio{{value: snapshot.MomYes}, {value: snapshot.MomNo}},
	}
}

type fakeBeacon struct {
	accept bool

	mu     sync.Mutex
	urls   []string
	bodies []string
}

func (b *fakeBeacon) SendBeacon(url, contentType string, body []byte) bool {
	if !b.accept {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.urls = append(b.urls, url)
	b.bodies = append(b.bodies, string(body))
	return true
}

func (b *fakeBeacon) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.bodies...)
}

type fakeFallback struct {
	status int
	err    error
	panics bool

	mu     sync.Mutex
	types  []string
	bodies []string
}

func (f *fakeFallback) Post(ctx context.Context, url, contentType string, body []byte) (int, error) {
	f.mu.Lock()
	f.types = append(f.types, contentType)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()
	if f.panics {
		panic("transport exploded")
	}
	return f.status, f.err
}

func (f *fakeFallback) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

type fakeAudit struct {
	mu   sync.Mutex
	rows [][]string
}

func (a *fakeAudit) WriteRow(row []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows = append(a.rows, row)
	return nil
}

type fakeCloser struct{ calls atomic.Int32 }

func (c *fakeCloser) Close(ctx context.Context) error {
	c.calls.Add(1)
	return nil
}

// rig is a fully wired collector over fakes.
type rig struct {
	host     *fakeHost
	snap     *snapshot.Snapshot
	prefs    *Preferences
	controls *fakeControls
	beacon   *fakeBeacon
	fallback *fakeFallback
	audit    *fakeAudit
	closer   *fakeCloser
	ctrl     *Controller
}

func newRig(h *fakeHost) *rig {
	l := logger.Discard()
	r := &rig{
		host:     h,
		snap:     snapshot.New(),
		controls: newFakeControls(),
		beacon:   &fakeBeacon{accept: true},
		fallback: &fakeFallback{status: 200},
		audit:    &fakeAudit{},
		closer:   &fakeCloser{},
	}
	r.prefs = NewPreferences(h, r.snap, l)
	loader := NewLoader(h, r.snap, time.UTC, l)
	r.ctrl = NewController(ControllerConfig{
		Host:        h,
		Snapshot:    r.snap,
		Preferences: r.prefs,
		Loader:      loader,
		Binder:      NewBinder(r.controls, r.snap, r.prefs, l),
		Reporter: NewReporter(ReporterConfig{
			Loader:   loader,
			Snapshot: r.snap,
			Beacon:   r.beacon,
			Fallback: r.fallback,
			Endpoint: "https://example.test/save-meeting/",
			Audit:    r.audit,
			Logger:   l,
		}),
		Transport: r.closer,
		Logger:    l,
	})
	return r
}
