package metrics

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	hzprom "github.com/hertz-contrib/monitor-prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tgflow"

var (
	registry = prometheus.NewRegistry()

	UpdatesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_received_total",
		Help:      "Raw updates handed to the pipeline, by transport.",
	}, []string{"transport"})

	UpdatesMalformed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_malformed_total",
		Help:      "Updates dropped because they did not carry exactly one variant.",
	}, []string{"transport"})

	UpdatesDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_dispatched_total",
		Help:      "Normalized updates emitted on the event bus, by kind.",
	}, []string{"kind"})

	HandlerFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handler_failures_total",
		Help:      "Handler invocations that returned an error or panicked, by event key.",
	}, []string{"key"})

	HandlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "handler_duration_seconds",
		Help:      "Wall time of single handler invocations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"key"})

	PollFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_failures_total",
		Help:      "getUpdates calls that failed and were retried.",
	})

	PollCursor = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "poll_cursor",
		Help:      "Offset the next getUpdates call will request.",
	})

	WebhookRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_rejected_total",
		Help:      "Inbound webhook requests refused before dispatch, by reason.",
	}, []string{"reason"})

	ReactionCollectors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reaction_collectors_total",
		Help:      "Finished reaction collectors, by outcome.",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(
		UpdatesReceived,
		UpdatesMalformed,
		UpdatesDispatched,
		HandlerFailures,
		HandlerDuration,
		PollFailures,
		PollCursor,
		WebhookRejected,
		ReactionCollectors,
	)
}

func GetRegistry() *prometheus.Registry {
	return registry
}

// ServerOptions attaches a request tracer to a hertz server. The tracer also
// serves the whole registry on addr/path, so only one hertz server per
// process should receive these options.
func ServerOptions(addr, path string) []config.Option {
	return []config.Option{
		server.WithTracer(hzprom.NewServerTracer(addr, path, hzprom.WithRegistry(registry))),
	}
}
