// Prometheus metrics for the scanner motion host
//
// Defines all metrics for the controller link including:
// - Command dispatch metrics (acks, rejections, timeouts, latency)
// - Status stream metrics (reports, unrecognized lines, manual queries)
// - Machine metrics (state, position, alarms)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/axes"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/protocol"
)

// Command result labels for CommandsTotal.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultTimeout  = "timeout"
	ResultAborted  = "aborted"
)

// Set holds all collectors for one controller link. A nil *Set is valid
// and turns every record method into a no-op, so callers never need to
// guard metric calls.
type Set struct {
	CommandsTotal     *prometheus.CounterVec
	CommandLatency    prometheus.Histogram
	ImmediateBytes    *prometheus.CounterVec
	StatusReports     prometheus.Counter
	UnrecognizedLines prometheus.Counter
	ManualQueries     prometheus.Counter
	Alarms            prometheus.Counter
	EmergencyStops    prometheus.Counter
	HomingCycles      *prometheus.CounterVec
	MachineState      prometheus.Gauge
	Position          *prometheus.GaugeVec
}

// New creates and registers the metric set on reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scanhost",
				Subsystem: "controller",
				Name:      "commands_total",
				Help:      "Line commands sent to the controller, by outcome",
			},
			[]string{"result"},
		),
		CommandLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "scanhost",
				Subsystem: "controller",
				Name:      "command_latency_seconds",
				Help:      "Time from command write to its ok/error response",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
			},
		),
		ImmediateBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scanhost",
				Subsystem: "controller",
				Name:      "immediate_bytes_total",
				Help:      "Single-byte real-time commands sent, by kind",
			},
			[]string{"kind"},
		),
		StatusReports: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scanhost",
				Subsystem: "controller",
				Name:      "status_reports_total",
				Help:      "Status report lines parsed from the controller",
			},
		),
		UnrecognizedLines: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scanhost",
				Subsystem: "controller",
				Name:      "unrecognized_lines_total",
				Help:      "Inbound lines that matched no known message shape",
			},
		),
		ManualQueries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scanhost",
				Subsystem: "controller",
				Name:      "manual_status_queries_total",
				Help:      "Status queries issued because the cached report went stale",
			},
		),
		Alarms: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scanhost",
				Subsystem: "controller",
				Name:      "alarms_total",
				Help:      "ALARM lines received from the controller",
			},
		),
		EmergencyStops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scanhost",
				Subsystem: "controller",
				Name:      "emergency_stops_total",
				Help:      "Emergency stop requests issued by the host",
			},
		),
		HomingCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scanhost",
				Subsystem: "controller",
				Name:      "homing_cycles_total",
				Help:      "Homing cycles run, by outcome",
			},
			[]string{"result"},
		),
		MachineState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "scanhost",
				Subsystem: "controller",
				Name:      "machine_state",
				Help:      "Last reported machine state as its enum value",
			},
		),
		Position: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "scanhost",
				Subsystem: "controller",
				Name:      "position",
				Help:      "Last reported work position per axis, command units",
			},
			[]string{"axis"},
		),
	}

	reg.MustRegister(
		s.CommandsTotal,
		s.CommandLatency,
		s.ImmediateBytes,
		s.StatusReports,
		s.UnrecognizedLines,
		s.ManualQueries,
		s.Alarms,
		s.EmergencyStops,
		s.HomingCycles,
		s.MachineState,
		s.Position,
	)
	return s
}

// RecordCommand records the outcome of one line command.
func (s *Set) RecordCommand(result string, latencySeconds float64) {
	if s == nil {
		return
	}
	s.CommandsTotal.WithLabelValues(result).Inc()
	if result == ResultOK || result == ResultRejected {
		s.CommandLatency.Observe(latencySeconds)
	}
}

// RecordImmediate records one real-time byte send.
func (s *Set) RecordImmediate(kind string) {
	if s == nil {
		return
	}
	s.ImmediateBytes.WithLabelValues(kind).Inc()
}

// RecordStatus records a parsed status report and updates the machine
// state and position gauges.
func (s *Set) RecordStatus(state protocol.MachineState, pos axes.Position, hasPos bool) {
	if s == nil {
		return
	}
	s.StatusReports.Inc()
	s.MachineState.Set(float64(state))
	if hasPos {
		for _, a := range axes.AllAxes {
			s.Position.WithLabelValues(a.String()).Set(pos.Get(a))
		}
	}
}

// RecordUnrecognized counts a line that matched no known message shape.
func (s *Set) RecordUnrecognized() {
	if s == nil {
		return
	}
	s.UnrecognizedLines.Inc()
}

// RecordManualQuery counts a staleness-triggered status query.
func (s *Set) RecordManualQuery() {
	if s == nil {
		return
	}
	s.ManualQueries.Inc()
}

// RecordAlarm counts an ALARM line.
func (s *Set) RecordAlarm() {
	if s == nil {
		return
	}
	s.Alarms.Inc()
}

// RecordEmergencyStop counts a host-issued emergency stop.
func (s *Set) RecordEmergencyStop() {
	if s == nil {
		return
	}
	s.EmergencyStops.Inc()
}

// RecordHoming records one homing cycle outcome.
func (s *Set) RecordHoming(result string) {
	if s == nil {
		return
	}
	s.HomingCycles.WithLabelValues(result).Inc()
}
