package exporter

import (
	"strings"
	"testing"

	"github.com/Minei3oat/firegex/pkg/packet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var udpPacket = &packet.Packet{
	Metadata: &packet.PacketMetadata{Prefix: "accept", Length: 66, InterfaceName: "eth0"},
	Layers: []*packet.Layer{
		{Ipv4: &packet.LayerIPv4{SrcIp: "192.168.1.65", DestIp: "192.168.1.155", Protocol: "UDP"}},
		{Udp: &packet.LayerUDP{SrcPort: 37092, DestPort: 53}},
	},
}

func TestObserve(t *testing.T) {
	e := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, e.Register(reg))

	e.Observe(udpPacket)
	e.Observe(udpPacket)

	assert.Equal(t, float64(2), testutil.ToFloat64(e.PacketTotal.WithLabelValues("accept")))
	assert.Equal(t, float64(2), testutil.ToFloat64(e.PacketsByProtocol.WithLabelValues("accept", "UDP")))
	assert.Equal(t, float64(2), testutil.ToFloat64(e.PacketsByInterface.WithLabelValues("accept", "eth0")))
	assert.Equal(t, float64(2), testutil.ToFloat64(e.PacketsByDestPort.WithLabelValues("accept", "udp", "53")))
	assert.Equal(t, float64(2), testutil.ToFloat64(e.PacketsBySrcIP.WithLabelValues("accept", "192.168.1.65")))
	assert.Equal(t, float64(2), testutil.ToFloat64(e.PacketsByDestIP.WithLabelValues("accept", "192.168.1.155")))

	count, err := testutil.GatherAndCount(reg, "firegex_packet_size_bytes")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestObserveWithoutLayers(t *testing.T) {
	e := New()
	e.Observe(&packet.Packet{Metadata: &packet.PacketMetadata{Length: 10}})

	assert.Equal(t, float64(1), testutil.ToFloat64(e.PacketTotal.WithLabelValues("")))
	assert.Equal(t, 0, testutil.CollectAndCount(e.PacketsByProtocol))
	assert.Equal(t, 0, testutil.CollectAndCount(e.PacketsByDestPort))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, New().Register(reg))
	assert.Error(t, New().Register(reg))
}

func TestRegisterCounterFunc(t *testing.T) {
	reg := prometheus.NewRegistry()
	var n uint64 = 3
	require.NoError(t, RegisterCounterFunc(reg, "firegex_test_total", "test", func() uint64 { return n }))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP firegex_test_total test
# TYPE firegex_test_total counter
firegex_test_total 3
`), "firegex_test_total")
	assert.NoError(t, err)
}

func TestObserveDecodeError(t *testing.T) {
	e := New()
	e.ObserveDecodeError()
	assert.Equal(t, float64(1), testutil.ToFloat64(e.DecodeErrors))
}

func TestObserveVerdict(t *testing.T) {
	e := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, e.Register(reg))

	e.ObserveVerdict("svc", "accept", 0)
	e.ObserveVerdict("svc", "drop", 3)
	e.ObserveVerdict("svc", "drop", 3)

	assert.Equal(t, float64(1), testutil.ToFloat64(e.Verdicts.WithLabelValues("svc", "accept")))
	assert.Equal(t, float64(2), testutil.ToFloat64(e.Verdicts.WithLabelValues("svc", "drop")))
	assert.Equal(t, float64(2), testutil.ToFloat64(e.RuleMatches.WithLabelValues("3")))

	count, err := testutil.GatherAndCount(reg, "firegex_filter_rule_drops_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
