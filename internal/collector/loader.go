// Package collector gathers a meeting snapshot from the mail host, keeps the
// user's form choices in sync with it, and reports it to the save-meeting
// endpoint.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"meetingsnap/internal/common/logger"
	"meetingsnap/internal/host"
	"meetingsnap/internal/snapshot"
)

// Loader refreshes the live item fields of a snapshot.
type Loader struct {
	host   host.Host
	snap   *snapshot.Snapshot
	loc    *time.Location
	logger *slog.Logger
}

// NewLoader returns a loader writing into snap. Timestamps are rendered in
// loc; nil means time.Local.
func NewLoader(h host.Host, snap *snapshot.Snapshot, loc *time.Location, l *slog.Logger) *Loader {
	if loc == nil {
		loc = time.Local
	}
	return &Loader{host: h, snap: snap, loc: loc, logger: l}
}

// Load reads every field the open item carries and waits for all reads to
// finish. A failed or empty read leaves its field untouched. Load returns
// immediately when no item is open.
func (l *Loader) Load(ctx context.Context) {
	item, err := l.host.Item(ctx)
	if err != nil || item == nil {
		logger.LogDebug(l.logger, "No host item available, skipping live load", "error", err)
		return
	}

	var pending sync.WaitGroup
	track := func(read func()) {
		pending.Add(1)
		go func() {
			defer pending.Done()
			read()
		}()
	}

	if f := item.Subject(); f != nil {
		track(func() {
			readString(ctx, l, "subject", f, func(fs *snapshot.Fields, v string) { fs.Subject = v })
		})
	}
	if f := item.Body(); f != nil {
		track(func() {
			readString(ctx, l, "body", f, func(fs *snapshot.Fields, v string) { fs.Body = v })
		})
	}
	if f := item.Start(); f != nil {
		track(func() {
			readTime(ctx, l, "start", f, func(fs *snapshot.Fields, v string) { fs.StartTime = v })
		})
	}
	if f := item.End(); f != nil {
		track(func() {
			readTime(ctx, l, "end", f, func(fs *snapshot.Fields, v string) { fs.EndTime = v })
		})
	}
	if f := item.Location(); f != nil {
		track(func() {
			readString(ctx, l, "location", f, func(fs *snapshot.Fields, v string) { fs.Location = v })
		})
	}
	if f := item.RequiredAttendees(); f != nil {
		track(func() {
			v, err := f.Get(ctx)
			if err != nil {
				logger.LogWarn(l.logger, "Host read failed", "field", "requiredAttendees", "error", err)
				return
			}
			if len(v) == 0 {
				return
			}
			l.snap.Update(func(fs *snapshot.Fields) { fs.Attendees = v })
			logger.LogDebug(l.logger, "Host read", "field", "requiredAttendees", "count", len(v))
		})
	}

	online, joinURL := item.IsOnlineMeeting(), item.MeetingURL()
	l.snap.Update(func(fs *snapshot.Fields) {
		fs.IsOnlineMeeting = online
		if joinURL != "" {
			fs.JoinURL = joinURL
		}
	})

	pending.Wait()
}

func readString(ctx context.Context, l *Loader, name string, f host.Field[string], set func(*snapshot.Fields, string)) {
	v, err := f.Get(ctx)
	if err != nil {
		logger.LogWarn(l.logger, "Host read failed", "field", name, "error", err)
		return
	}
	if v == "" {
		return
	}
	l.snap.Update(func(fs *snapshot.Fields) { set(fs, v) })
	logger.LogDebug(l.logger, "Host read", "field", name)
}

func readTime(ctx context.Context, l *Loader, name string, f host.Field[time.Time], set func(*snapshot.Fields, string)) {
	t, err := f.Get(ctx)
	if err != nil {
		logger.LogWarn(l.logger, "Host read failed", "field", name, "error", err)
		return
	}
	if t.IsZero() {
		return
	}
	v := snapshot.FormatTimestamp(t, l.loc)
	l.snap.Update(func(fs *snapshot.Fields) { set(fs, v) })
	logger.LogDebug(l.logger, "Host read", "field", name, "value", v)
}
