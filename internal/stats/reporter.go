// Package stats periodically logs a one-line summary of bot activity.
package stats

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/tgifai/tgflow/internal/pkg/logs"
	"github.com/tgifai/tgflow/internal/transport"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Source is what the reporter samples besides the metrics registry.
type Source interface {
	State() transport.State
	HandlerCount() int
}

type Snapshot struct {
	State      string
	Handlers   int
	Received   float64
	Malformed  float64
	Dispatched float64
	Failures   float64
}

func (s Snapshot) String() string {
	return fmt.Sprintf("state=%s handlers=%d received=%.0f malformed=%.0f dispatched=%.0f failures=%.0f",
		s.State, s.Handlers, s.Received, s.Malformed, s.Dispatched, s.Failures)
}

type Reporter struct {
	src      Source
	gatherer prometheus.Gatherer
	cron     *cron.Cron

	mu   sync.Mutex
	last Snapshot
}

// NewReporter validates schedule and prepares the cron runner. Start it with
// Start.
func NewReporter(schedule string, src Source, gatherer prometheus.Gatherer) (*Reporter, error) {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse stats schedule %q: %w", schedule, err)
	}

	r := &Reporter{
		src:      src,
		gatherer: gatherer,
		cron:     cron.New(cron.WithParser(parser)),
	}
	r.cron.Schedule(sched, cron.FuncJob(func() { r.Report(context.Background()) }))
	return r, nil
}

func (r *Reporter) Start(ctx context.Context) {
	r.cron.Start()
	logs.CtxInfo(ctx, "[stats] reporter started")
}

// Stop waits for a running report to finish or ctx to end.
func (r *Reporter) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Report samples the source and the registry and logs the result.
func (r *Reporter) Report(ctx context.Context) Snapshot {
	snap := Snapshot{
		State:    r.src.State().String(),
		Handlers: r.src.HandlerCount(),
	}

	families, err := r.gatherer.Gather()
	if err != nil {
		logs.CtxWarn(ctx, "[stats] gather metrics error: %v", err)
	}
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		switch mf.GetName() {
		case "tgflow_updates_received_total":
			snap.Received = total
		case "tgflow_updates_malformed_total":
			snap.Malformed = total
		case "tgflow_updates_dispatched_total":
			snap.Dispatched = total
		case "tgflow_handler_failures_total":
			snap.Failures = total
		}
	}

	r.mu.Lock()
	r.last = snap
	r.mu.Unlock()

	logs.CtxInfo(ctx, "[stats] %s", snap)
	return snap
}

func (r *Reporter) Last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
