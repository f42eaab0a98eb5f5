package exporter

import (
	"strconv"

	"github.com/Minei3oat/firegex/pkg/packet"
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter turns decoded packets into Prometheus series.
type Exporter struct {
	PacketTotal         *prometheus.CounterVec
	PacketsByProtocol   *prometheus.CounterVec
	PacketsByInterface  *prometheus.CounterVec
	PacketsByDestPort   *prometheus.CounterVec
	PacketsBySrcIP      *prometheus.CounterVec
	PacketsByDestIP     *prometheus.CounterVec
	PacketSizeHistogram *prometheus.HistogramVec
	DecodeErrors        prometheus.Counter
	Verdicts            *prometheus.CounterVec
	RuleMatches         *prometheus.CounterVec
}

func New() *Exporter {
	return &Exporter{
		PacketTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firegex_packets_total",
				Help: "Total number of processed packets",
			},
			[]string{"prefix"},
		),
		PacketsByProtocol: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firegex_packets_by_protocol_total",
				Help: "Total number of packets grouped by IP protocol",
			},
			[]string{"prefix", "protocol"},
		),
		PacketsByInterface: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firegex_packets_by_interface_total",
				Help: "Total packets per input network interface",
			},
			[]string{"prefix", "interface"},
		),
		PacketsByDestPort: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firegex_packets_by_dest_port_total",
				Help: "Total packets per transport and destination port",
			},
			[]string{"prefix", "transport", "port"},
		),
		PacketsBySrcIP: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firegex_packets_by_src_ip_total",
				Help: "Total packets grouped by source IP address",
			},
			[]string{"prefix", "src_ip"},
		),
		PacketsByDestIP: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firegex_packets_by_dest_ip_total",
				Help: "Total packets grouped by destination IP address",
			},
			[]string{"prefix", "dest_ip"},
		),
		PacketSizeHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "firegex_packet_size_bytes",
				Help:    "Histogram of packet sizes",
				Buckets: prometheus.ExponentialBuckets(64, 2, 10), // 64B to ~32KB
			},
			[]string{"prefix"},
		),
		DecodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "firegex_packet_decode_errors_total",
				Help: "Number of packets whose layers could not be decoded",
			},
		),
		Verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firegex_verdicts_total",
				Help: "Filter verdicts given to processed packets",
			},
			[]string{"prefix", "verdict"},
		),
		RuleMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firegex_filter_rule_drops_total",
				Help: "Packets dropped per filter rule",
			},
			[]string{"rule"},
		),
	}
}

func (e *Exporter) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		e.PacketTotal,
		e.PacketsByProtocol,
		e.PacketsByInterface,
		e.PacketsByDestPort,
		e.PacketsBySrcIP,
		e.PacketsByDestIP,
		e.PacketSizeHistogram,
		e.DecodeErrors,
		e.Verdicts,
		e.RuleMatches,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterCounterFunc exposes a counter maintained elsewhere, such as the
// number of malformed lines a capture source skipped.
func RegisterCounterFunc(reg prometheus.Registerer, name, help string, fn func() uint64) error {
	return reg.Register(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(fn()) },
	))
}

func (e *Exporter) Observe(m packet.Metricer) {
	metric := m.ToMetric()
	labels := metric.Labels
	prefix := labels["prefix"]

	e.PacketTotal.WithLabelValues(prefix).Inc()
	e.PacketSizeHistogram.WithLabelValues(prefix).Observe(metric.Value)

	if iface, ok := labels["interface"]; ok {
		e.PacketsByInterface.WithLabelValues(prefix, iface).Inc()
	}
	if proto, ok := labels["protocol"]; ok {
		e.PacketsByProtocol.WithLabelValues(prefix, proto).Inc()
		e.PacketsBySrcIP.WithLabelValues(prefix, labels["src_ip"]).Inc()
		e.PacketsByDestIP.WithLabelValues(prefix, labels["dest_ip"]).Inc()
	}
	if port, ok := labels["dest_port"]; ok {
		e.PacketsByDestPort.WithLabelValues(prefix, labels["transport"], port).Inc()
	}
}

func (e *Exporter) ObserveDecodeError() {
	e.DecodeErrors.Inc()
}

// ObserveVerdict counts a verdict. rule is the ID of the rule that dropped the
// packet, or 0.
func (e *Exporter) ObserveVerdict(prefix, verdict string, rule int) {
	e.Verdicts.WithLabelValues(prefix, verdict).Inc()
	if rule != 0 {
		e.RuleMatches.WithLabelValues(strconv.Itoa(rule)).Inc()
	}
}
