package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"meetingsnap/internal/collector"
	"meetingsnap/internal/common/logger"
	"meetingsnap/internal/common/ratelimit"
	"meetingsnap/internal/common/version"
	"meetingsnap/internal/delivery"
	"meetingsnap/internal/form"
	"meetingsnap/internal/graph"
	"meetingsnap/internal/host"
	"meetingsnap/internal/snapshot"
	"meetingsnap/internal/store"
)

// session is one add-in lifetime: the host, the shared snapshot, the
// delivery transports and the controller wired over them.
type session struct {
	config     *Config
	host       host.Host
	snap       *snapshot.Snapshot
	prefs      *collector.Preferences
	form       *form.Form
	beacon     *delivery.BeaconQueue
	controller *collector.Controller
	logger     *slog.Logger
	out        io.Writer
}

// openHost builds the host selected by -host together with its property
// store. The returned cleanup releases the store.
func openHost(ctx context.Context, config *Config, slogger *slog.Logger) (host.Host, func() error, error) {
	noop := func() error { return nil }

	switch config.Host {
	case HostFixture:
		fx, err := host.LoadFixture(config.Fixture)
		if err != nil {
			return nil, nil, err
		}
		itemID := ""
		if fx.Item != nil {
			itemID = fx.Item.ID
		}

		switch config.PropStore {
		case PropStoreMemory:
			return host.NewStatic(fx, host.NewMemoryBag(nil)), noop, nil
		default:
			db, err := openStore(config.DBPath)
			if err != nil {
				return nil, nil, err
			}
			logger.LogDebug(slogger, "Using SQLite property store", "path", config.DBPath, "itemID", itemID)
			return host.NewStatic(fx, db.ForItem(itemID)), db.Close, nil
		}

	case HostGraph:
		client, err := setupGraphClient(ctx, config, slogger)
		if err != nil {
			return nil, nil, err
		}
		limiter := ratelimit.New(config.RateLimit)
		logger.LogDebug(slogger, "Graph rate limit", "limiter", limiter.String())

		gh := graph.New(client, graph.Config{
			Mailbox:    config.Mailbox,
			EventID:    config.EventID,
			Properties: []string{collector.PreferencesProperty},
			MaxRetries: config.MaxRetries,
			RetryDelay: config.RetryDelay,
			Limiter:    limiter,
			Logger:     slogger,
		})

		switch config.PropStore {
		case PropStoreSQLite:
			db, err := openStore(config.DBPath)
			if err != nil {
				return nil, nil, err
			}
			return withProperties{Host: gh, bag: db.ForResolvedItem(gh.EventID)}, db.Close, nil
		case PropStoreMemory:
			return withProperties{Host: gh, bag: host.NewMemoryBag(nil)}, noop, nil
		default:
			return gh, noop, nil
		}
	}
	return nil, nil, fmt.Errorf("unsupported host: %s", config.Host)
}

func openStore(path string) (*store.SQLiteStore, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	db, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open property store: %w", err)
	}
	return db, nil
}

// withProperties replaces a host's own custom property storage.
type withProperties struct {
	host.Host
	bag host.PropertyBag
}

func (h withProperties) LoadCustomProperties(ctx context.Context) (host.CustomProperties, error) {
	return h.bag.LoadCustomProperties(ctx)
}

// newSession wires the collector over h. audit may be nil.
func newSession(config *Config, h host.Host, audit logger.RowWriter, slogger *slog.Logger) (*session, error) {
	loc, err := loadLocation(config.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone: %w", err)
	}

	snap := snapshot.New()
	prefs := collector.NewPreferences(h, snap, slogger)
	loader := collector.NewLoader(h, snap, loc, slogger)

	var controls collector.Controls
	var pane *form.Form
	if config.Action == ActionTaskpane {
		pane = form.New(config.MeetingTypes, config.Accessible)
		controls = pane
	}
	binder := collector.NewBinder(controls, snap, prefs, slogger)

	client := delivery.NewHTTPClient(config.Timeout)
	beacon := delivery.NewBeaconQueue(client, delivery.BeaconOptions{
		Timeout:   config.Timeout,
		UserAgent: version.UserAgent(),
		Logger:    slogger,
	})
	fallback := delivery.NewKeepAlive(client, config.Timeout, version.UserAgent())

	reporter := collector.NewReporter(collector.ReporterConfig{
		Loader:       loader,
		Snapshot:     snap,
		Beacon:       beacon,
		Fallback:     fallback,
		Endpoint:     config.Endpoint,
		Host:         h,
		WriteSummary: config.WriteSummary,
		Audit:        audit,
		Logger:       slogger,
	})

	controller := collector.NewController(collector.ControllerConfig{
		Host:            h,
		Snapshot:        snap,
		Preferences:     prefs,
		Loader:          loader,
		Binder:          binder,
		Reporter:        reporter,
		Transport:       beacon,
		TeardownTimeout: config.TeardownTimeout,
		Logger:          slogger,
	})

	return &session{
		config:     config,
		host:       h,
		snap:       snap,
		prefs:      prefs,
		form:       pane,
		beacon:     beacon,
		controller: controller,
		logger:     slogger,
		out:        os.Stdout,
	}, nil
}

// executeAction runs the configured action against h.
func executeAction(ctx context.Context, config *Config, h host.Host, csvLogger *logger.CSVLogger, slogger *slog.Logger) error {
	var audit logger.RowWriter
	if csvLogger != nil {
		if writeHeader, err := csvLogger.ShouldWriteHeader(); err == nil && writeHeader {
			if err := csvLogger.WriteHeader(collector.AuditColumns); err != nil {
				logger.LogWarn(slogger, "Could not write CSV header", "error", err)
			}
		}
		audit = csvLogger
	}

	s, err := newSession(config, h, audit, slogger)
	if err != nil {
		return err
	}

	switch config.Action {
	case ActionSend:
		return s.send(ctx)
	case ActionTaskpane:
		return s.taskpane(ctx, nil)
	case ActionShow:
		return s.show(ctx)
	default:
		return fmt.Errorf("unknown action: %s", config.Action)
	}
}

// send is the function-command path: collect once, send once. When ctx ends
// first (SIGINT/SIGTERM) the snapshot is reported by the teardown instead.
func (s *session) send(ctx context.Context) error {
	sendErr := s.controller.GetMeetingDataAndSend(ctx, false)
	if sendErr != nil && ctx.Err() != nil {
		logger.LogInfo(s.logger, "Interrupted before sending, reporting at teardown", "error", sendErr)
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.TeardownTimeout)
		s.controller.Teardown(tctx)
		cancel()
		sendErr = nil
	}
	if err := s.close(ctx); err != nil {
		logger.LogWarn(s.logger, "Delivery did not finish", "error", err)
	}
	if sendErr != nil {
		return fmt.Errorf("error sending meeting data: %w", sendErr)
	}
	fmt.Fprintf(s.out, "Meeting data for %q sent to %s\n", s.snap.Get().Subject, s.config.Endpoint)
	return nil
}

// show loads the item and prints the record without sending it.
func (s *session) show(ctx context.Context) error {
	s.controller.Init(ctx, false)
	if err := s.controller.Ready(ctx); err != nil {
		return fmt.Errorf("waiting for initialization: %w", err)
	}
	defer s.close(ctx)

	data, err := snapshot.NewRecord(s.snap.Get()).Marshal()
	if err != nil {
		return fmt.Errorf("error encoding meeting data: %w", err)
	}
	fmt.Fprintln(s.out, string(data))
	return nil
}

// paneClosed is delivered to the teardown watcher when the form closes.
type paneClosed struct{}

func (paneClosed) String() string { return "pane closed" }
func (paneClosed) Signal()        {}

// taskpane opens the pane, applies edits and reports when the pane closes or
// the process is told to stop. edit replaces the interactive form in tests.
func (s *session) taskpane(ctx context.Context, edit func(ctx context.Context) error) error {
	if edit == nil {
		edit = s.edit
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	closed := make(chan struct{})
	teardowns := make(chan os.Signal, 1)
	go forwardTeardowns(signals, closed, teardowns)

	watched := make(chan struct{})
	go func() {
		defer close(watched)
		s.controller.WatchTeardown(context.WithoutCancel(ctx), teardowns)
	}()

	s.controller.Init(ctx, false)
	editErr := func() error {
		if err := s.controller.Ready(ctx); err != nil {
			return fmt.Errorf("waiting for initialization: %w", err)
		}
		return edit(ctx)
	}()
	close(closed)
	<-watched

	switch {
	case errors.Is(editErr, form.ErrAborted):
		logger.LogInfo(s.logger, "Task pane closed without changes")
		return nil
	case editErr != nil && ctx.Err() != nil:
		logger.LogInfo(s.logger, "Task pane interrupted", "error", editErr)
		return nil
	}
	return editErr
}

// forwardTeardowns passes OS signals to out until closed is closed, then
// reports the pane close unless a signal already triggered a teardown. out is
// closed on return.
func forwardTeardowns(signals <-chan os.Signal, closed <-chan struct{}, out chan<- os.Signal) {
	defer close(out)
	signaled := false
	for {
		select {
		case sig := <-signals:
			signaled = true
			out <- sig
		case <-closed:
			if !signaled {
				out <- paneClosed{}
			}
			return
		}
	}
}

// edit applies -meetingtype/-enablemom when given, otherwise runs the form.
func (s *session) edit(ctx context.Context) error {
	if s.config.MeetingType != "" || s.config.EnableMom != "" {
		logger.LogInfo(s.logger, "Applying preferences", "meetingType", s.config.MeetingType, "enableMom", s.config.EnableMom)
		return s.form.Apply(s.config.MeetingType, s.config.EnableMom)
	}
	return s.form.Run(ctx)
}

// close waits for pending preference saves and drains the beacon queue
// without reporting again.
func (s *session) close(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.TeardownTimeout)
	defer cancel()

	var errs []error
	if err := s.prefs.Flush(cctx); err != nil {
		errs = append(errs, fmt.Errorf("flushing preferences: %w", err))
	}
	if err := s.beacon.Close(cctx); err != nil && !errors.Is(err, delivery.ErrBeaconClosed) {
		errs = append(errs, fmt.Errorf("draining beacon queue: %w", err))
	}
	return errors.Join(errs...)
}
