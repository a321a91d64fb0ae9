package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ConnectionsActive tracks websocket sessions currently open.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "yap_connections_active",
		Help: "Websocket sessions currently open.",
	})

	// ConnectionsTotal counts websocket sessions accepted since start.
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "yap_connections_total",
		Help: "Websocket sessions accepted since start.",
	})

	// AdmissionRejected counts connection attempts turned away before a
	// session started, labeled by reason.
	AdmissionRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yap_admission_rejected_total",
		Help: "Connection attempts rejected before a session started.",
	}, []string{"reason"})

	// MessagesRouted counts chat messages accepted for routing, labeled
	// public, private or text.
	MessagesRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yap_messages_routed_total",
		Help: "Chat messages accepted for routing.",
	}, []string{"kind"})

	// DeliveryFailures counts frames dropped because a recipient queue
	// was closed or full.
	DeliveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yap_delivery_failures_total",
		Help: "Frames dropped because a recipient queue was closed or full.",
	}, []string{"kind"})

	// PresenceTransitions counts presence broadcasts by resulting state.
	PresenceTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yap_presence_transitions_total",
		Help: "Presence broadcasts by resulting state.",
	}, []string{"state"})

	// SweeperDemotions counts users demoted by the inactivity sweeper.
	SweeperDemotions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "yap_sweeper_demotions_total",
		Help: "Users demoted to INACTIVO by the inactivity sweeper.",
	})

	// HistoryFailures counts history appends that failed to reach disk.
	HistoryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "yap_history_append_failures_total",
		Help: "History appends that failed to reach disk.",
	})

	// ProcessResidentBytes is the sampled resident set size.
	ProcessResidentBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "yap_process_resident_bytes",
		Help: "Resident set size of the server process.",
	})

	// ProcessCPUPercent is the sampled process CPU utilization.
	ProcessCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "yap_process_cpu_percent",
		Help: "Process CPU utilization percentage.",
	})

	// GoroutinesActive is the sampled goroutine count.
	GoroutinesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "yap_goroutines_active",
		Help: "Goroutines currently running.",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		ConnectionsTotal,
		AdmissionRejected,
		MessagesRouted,
		DeliveryFailures,
		PresenceTransitions,
		SweeperDemotions,
		HistoryFailures,
		ProcessResidentBytes,
		ProcessCPUPercent,
		GoroutinesActive,
	)
}
