package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"meetingsnap/internal/common/logger"
	"meetingsnap/internal/delivery"
	"meetingsnap/internal/host"
	"meetingsnap/internal/snapshot"
)

// AuditColumns is the CSV header for delivery audit rows, after the
// timestamp column the audit logger prepends.
var AuditColumns = []string{"Transport", "Status", "Subject", "Endpoint", "Error"}

// ReporterConfig wires a Reporter. Beacon, Fallback and Endpoint are
// required; the rest is optional.
type ReporterConfig struct {
	Loader   *Loader
	Snapshot *snapshot.Snapshot
	Beacon   delivery.Beacon
	Fallback delivery.Fallback
	Endpoint string

	// Host is consulted for a body writer when WriteSummary is set.
	Host         host.Host
	WriteSummary bool

	Audit  logger.RowWriter
	Logger *slog.Logger
}

// Reporter posts the snapshot as a JSON record to the save-meeting endpoint.
type Reporter struct {
	cfg ReporterConfig
}

// NewReporter returns a reporter for cfg.
func NewReporter(cfg ReporterConfig) *Reporter {
	return &Reporter{cfg: cfg}
}

// Report sends the current snapshot, refreshing it from the host first when
// forceReload is set. The beacon is tried first; when it refuses the
// request the blocking fallback is used once. Report never fails.
func (r *Reporter) Report(ctx context.Context, forceReload bool) {
	defer func() {
		if p := recover(); p != nil {
			logger.LogError(r.cfg.Logger, "Report aborted", "panic", fmt.Sprint(p))
		}
	}()

	if forceReload && r.cfg.Loader != nil {
		r.cfg.Loader.Load(ctx)
	}

	record := snapshot.NewRecord(r.cfg.Snapshot.Get())
	body, err := record.Marshal()
	if err != nil {
		logger.LogError(r.cfg.Logger, "Failed to build meeting record", "error", err)
		return
	}

	if r.cfg.WriteSummary {
		r.writeSummary(ctx, record)
	}

	if r.cfg.Beacon.SendBeacon(r.cfg.Endpoint, snapshot.ContentType, body) {
		logger.LogInfo(r.cfg.Logger, "Meeting data queued via beacon", "endpoint", r.cfg.Endpoint, "bytes", len(body))
		r.audit("beacon", "queued", record.Subject, nil)
		return
	}

	logger.LogWarn(r.cfg.Logger, "Beacon refused, falling back to keep-alive POST", "bytes", len(body))
	status, err := r.cfg.Fallback.Post(ctx, r.cfg.Endpoint, snapshot.ContentType, body)
	if err != nil {
		logger.LogError(r.cfg.Logger, "Keep-alive POST failed", "endpoint", r.cfg.Endpoint, "error", err)
		r.audit("keepalive", "error", record.Subject, err)
		return
	}
	if status < 200 || status > 299 {
		logger.LogWarn(r.cfg.Logger, "Keep-alive POST returned non-success status", "status", status)
	} else {
		logger.LogInfo(r.cfg.Logger, "Meeting data sent via keep-alive POST", "status", status)
	}
	r.audit("keepalive", strconv.Itoa(status), record.Subject, nil)
}

func (r *Reporter) writeSummary(ctx context.Context, record snapshot.Record) {
	if r.cfg.Host == nil {
		return
	}
	item, err := r.cfg.Host.Item(ctx)
	if err != nil || item == nil {
		logger.LogDebug(r.cfg.Logger, "No item to write summary into", "error", err)
		return
	}
	w, ok := item.(host.BodyWriter)
	if !ok {
		logger.LogDebug(r.cfg.Logger, "Item body is read-only, skipping summary")
		return
	}
	if err := w.SetBody(ctx, record.Summary()); err != nil {
		logger.LogWarn(r.cfg.Logger, "Failed to write meeting summary", "error", err)
		return
	}
	logger.LogInfo(r.cfg.Logger, "Meeting summary written to item body")
}

func (r *Reporter) audit(transport, status, subject string, err error) {
	if r.cfg.Audit == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if werr := r.cfg.Audit.WriteRow([]string{transport, status, subject, r.cfg.Endpoint, msg}); werr != nil {
		logger.LogWarn(r.cfg.Logger, "Failed to write audit row", "error", werr)
	}
}
