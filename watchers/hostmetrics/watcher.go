// Package hostmetrics is a reference watcher: it polls host CPU, memory,
// and disk usage and publishes events onto the bus. Unlike
// original_source/watchers/system_resources.py's pure N0 observer (always
// "info", never a threshold), this version applies configurable thresholds
// so the pipeline has a real, non-synthetic source of warning/error
// conditions for Guardian to correlate — the demo path otherwise has
// nothing upstream of Guardian to react to.
package hostmetrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/bus"
	"github.com/orion-sre/orion/internal/clock"
	"github.com/orion-sre/orion/internal/contracts"
	"github.com/orion-sre/orion/internal/hostmetrics"
	"github.com/orion-sre/orion/internal/metrics"
)

// DefaultPollInterval mirrors the Python watcher's default.
const DefaultPollInterval = 60 * time.Second

// MinPollInterval enforces the Python watcher's floor.
const MinPollInterval = 30 * time.Second

// Thresholds controls when a poll escalates severity above info.
type Thresholds struct {
	CPUWarnPercent   float64
	CPUErrorPercent  float64
	MemWarnPercent   float64
	MemErrorPercent  float64
	DiskWarnPercent  float64
	DiskErrorPercent float64
}

// DefaultThresholds is a conservative, never-silently-missing-an-incident
// starting point.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUWarnPercent:   80,
		CPUErrorPercent:  95,
		MemWarnPercent:   80,
		MemErrorPercent:  95,
		DiskWarnPercent:  85,
		DiskErrorPercent: 95,
	}
}

// Poller is the subset of hostmetrics.Monitor the watcher depends on.
type Poller interface {
	Poll(ctx context.Context) (hostmetrics.Snapshot, error)
}

// Watcher polls host resources at a fixed interval and publishes one event
// per poll.
type Watcher struct {
	b            bus.Bus
	clock        clock.Clock
	log          *zap.Logger
	poller       Poller
	pollInterval time.Duration
	thresholds   Thresholds
	source       string
}

// Option configures a Watcher at construction.
type Option func(*Watcher)

func WithPollInterval(d time.Duration) Option { return func(w *Watcher) { w.pollInterval = d } }
func WithThresholds(t Thresholds) Option      { return func(w *Watcher) { w.thresholds = t } }
func WithSource(s string) Option              { return func(w *Watcher) { w.source = s } }

// New constructs a Watcher. pollInterval is floored at MinPollInterval,
// matching the Python watcher's "never poll faster than every 30s".
func New(b bus.Bus, clk clock.Clock, log *zap.Logger, poller Poller, opts ...Option) *Watcher {
	w := &Watcher{
		b:            b,
		clock:        clk,
		log:          log,
		poller:       poller,
		pollInterval: DefaultPollInterval,
		thresholds:   DefaultThresholds(),
		source:       "orion-watcher-hostmetrics",
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.pollInterval < MinPollInterval {
		w.pollInterval = MinPollInterval
	}
	return w
}

// Run polls and publishes until ctx is cancelled. A failed poll is logged
// and not retried immediately — fail closed, wait for the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("hostmetrics watcher: starting", zap.Duration("poll_interval", w.pollInterval))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Watcher) pollOnce(ctx context.Context) {
	snap, err := w.poller.Poll(ctx)
	if err != nil {
		w.log.Error("hostmetrics watcher: poll failed", zap.Error(err))
		return
	}

	metrics.HostCPUPercent.Set(snap.CPUPercent)
	metrics.HostMemPercent.Set(snap.MemPercent)
	metrics.HostDiskPercent.Set(snap.DiskPercent)

	event := w.buildEvent(snap)
	metrics.HostMetricEventsTotal.WithLabelValues(string(event.Severity)).Inc()

	if err := w.b.Publish(ctx, contracts.KindEvent, event); err != nil {
		w.log.Error("hostmetrics watcher: publish failed", zap.Error(err))
		return
	}
	w.log.Debug("hostmetrics watcher: published event",
		zap.Float64("cpu_percent", snap.CPUPercent),
		zap.Float64("mem_percent", snap.MemPercent),
		zap.Float64("disk_percent", snap.DiskPercent),
		zap.String("severity", string(event.Severity)),
	)
}

func (w *Watcher) buildEvent(snap hostmetrics.Snapshot) contracts.Event {
	severity := contracts.SeverityInfo
	if sev := w.severityFor(snap); sev.Rank() > severity.Rank() {
		severity = sev
	}

	return contracts.Event{
		Version:   contracts.Version,
		EventID:   contracts.NewID(),
		Timestamp: w.clock.Now(),
		Source:    w.source,
		EventType: "metric_threshold_exceeded",
		Severity:  severity,
		Data: map[string]interface{}{
			"resource_type": "system",
			"cpu": map[string]interface{}{
				"percent": snap.CPUPercent,
				"count":   snap.CPUCount,
			},
			"memory": map[string]interface{}{
				"total_bytes":     snap.MemTotal,
				"available_bytes": snap.MemAvailable,
				"used_bytes":      snap.MemUsed,
				"percent":         snap.MemPercent,
			},
			"disk": map[string]interface{}{
				"total_bytes": snap.DiskTotal,
				"used_bytes":  snap.DiskUsed,
				"free_bytes":  snap.DiskFree,
				"percent":     snap.DiskPercent,
			},
		},
	}
}

func (w *Watcher) severityFor(snap hostmetrics.Snapshot) contracts.Severity {
	t := w.thresholds
	switch {
	case snap.CPUPercent >= t.CPUErrorPercent || snap.MemPercent >= t.MemErrorPercent || snap.DiskPercent >= t.DiskErrorPercent:
		return contracts.SeverityError
	case snap.CPUPercent >= t.CPUWarnPercent || snap.MemPercent >= t.MemWarnPercent || snap.DiskPercent >= t.DiskWarnPercent:
		return contracts.SeverityWarning
	default:
		return contracts.SeverityInfo
	}
}
