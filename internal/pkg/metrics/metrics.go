package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "plantd"

// Metrics owns a private registry with every pipeline metric. All methods are
// safe to call on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	// TransportConnected is the broker connection state (1=connected, 0=down).
	transportConnected prometheus.Gauge

	// messages counts inbound messages by kind (telemetry/status/command-result/unknown)
	// and result (accepted, malformed, out_of_range, unknown_device, persistence_error, dropped).
	messages *prometheus.CounterVec

	// policyDecisions counts policy outcomes: decision=trigger|skip, reason=rule name.
	policyDecisions *prometheus.CounterVec

	// commands counts dispatch outcomes: result=published|failed|invalid.
	commands *prometheus.CounterVec

	// commandAttempts records how many publish attempts a dispatch needed.
	commandAttempts prometheus.Histogram

	// acks counts acknowledgement handling: result=executed|failed|unmatched|expired.
	acks *prometheus.CounterVec

	pendingCommands prometheus.Gauge

	deviceTransitions *prometheus.CounterVec

	ingressDropped prometheus.Counter

	httpRequests *prometheus.HistogramVec
}

// New creates a fresh registry with the pipeline metrics and the Go runtime
// and process collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transportConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transport_connected",
			Help:      "The message bus connection status (1=connected, 0=disconnected).",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound device messages by kind and processing result.",
		}, []string{"kind", "result"}),
		policyDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decisions_total",
			Help:      "Irrigation policy decisions by outcome and reason.",
		}, []string{"decision", "reason"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Actuator commands by command and dispatch result.",
		}, []string{"command", "result"}),
		commandAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_attempts",
			Help:      "Publish attempts needed per dispatched command.",
			Buckets:   []float64{1, 2, 3, 5, 10},
		}),
		acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acks_total",
			Help:      "Command acknowledgements by handling result.",
		}, []string{"result"}),
		pendingCommands: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_commands",
			Help:      "Commands published and awaiting acknowledgement.",
		}),
		deviceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_transitions_total",
			Help:      "Device connectivity transitions by new status.",
		}, []string{"status"}),
		ingressDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingress_dropped_total",
			Help:      "Inbound messages dropped because the worker queue was full.",
		}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transportConnected,
		m.messages,
		m.policyDecisions,
		m.commands,
		m.commandAttempts,
		m.acks,
		m.pendingCommands,
		m.deviceTransitions,
		m.ingressDropped,
		m.httpRequests,
	)

	return m
}

func (m *Metrics) SetTransportConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.transportConnected.Set(1)
		return
	}
	m.transportConnected.Set(0)
}

func (m *Metrics) ObserveMessage(kind, result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObservePolicyDecision(decision, reason string) {
	if m == nil {
		return
	}
	m.policyDecisions.WithLabelValues(decision, reason).Inc()
}

// ObserveCommand records a dispatch outcome. attempts is ignored for invalid commands.
func (m *Metrics) ObserveCommand(command, result string, attempts int) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, result).Inc()
	if attempts > 0 {
		m.commandAttempts.Observe(float64(attempts))
	}
}

func (m *Metrics) ObserveAck(result string) {
	if m == nil {
		return
	}
	m.acks.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPendingCommands(n int) {
	if m == nil {
		return
	}
	m.pendingCommands.Set(float64(n))
}

func (m *Metrics) ObserveDeviceTransition(status string) {
	if m == nil {
		return
	}
	m.deviceTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncIngressDropped() {
	if m == nil {
		return
	}
	m.ingressDropped.Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
