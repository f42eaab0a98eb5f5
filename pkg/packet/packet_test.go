package packet

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBuild(t *testing.T, tmpl Template) []byte {
	t.Helper()
	payload, err := Build(tmpl)
	require.NoError(t, err)
	return payload
}

func TestDecodeIPv4TCP(t *testing.T) {
	payload := mustBuild(t, Template{
		SrcIP:    net.ParseIP("192.168.1.65"),
		DestIP:   net.ParseIP("34.96.126.106"),
		Protocol: layers.IPProtocolTCP,
		SrcPort:  33132,
		DestPort: 443,
		Payload:  []byte("hello"),
	})
	ts := time.Unix(1700000000, 0)

	p, err := Decode(Raw{ID: 7, Prefix: "reject", Timestamp: ts, Payload: payload}, "scan")
	require.NoError(t, err)

	assert.Equal(t, uint32(7), p.ID)
	require.NotNil(t, p.Metadata)
	assert.Equal(t, "scan", p.Metadata.Hostname)
	assert.Equal(t, "reject", p.Metadata.Prefix)
	assert.Equal(t, ts, p.Metadata.Timestamp)
	assert.Equal(t, uint32(len(payload)), p.Metadata.Length)

	require.Len(t, p.Layers, 2)
	require.NotNil(t, p.Layers[0].Ipv4)
	assert.Equal(t, "192.168.1.65", p.Layers[0].Ipv4.SrcIp)
	assert.Equal(t, "34.96.126.106", p.Layers[0].Ipv4.DestIp)
	assert.Equal(t, "TCP", p.Layers[0].Ipv4.Protocol)
	assert.Equal(t, uint32(64), p.Layers[0].Ipv4.Ttl)

	require.NotNil(t, p.Layers[1].Tcp)
	assert.Equal(t, uint32(33132), p.Layers[1].Tcp.SrcPort)
	assert.Equal(t, uint32(443), p.Layers[1].Tcp.DestPort)
	assert.Equal(t, "SYN", p.Layers[1].Tcp.Flags)
	assert.Equal(t, uint32(5), p.Layers[1].Tcp.Payload)
	assert.Equal(t, []byte("hello"), p.Payload)

	src, dst, ok := p.Ports()
	require.True(t, ok)
	assert.Equal(t, uint16(33132), src)
	assert.Equal(t, uint16(443), dst)
}

func TestDecodeCopiesPayload(t *testing.T) {
	payload := mustBuild(t, Template{
		SrcIP:    net.ParseIP("10.0.0.1"),
		DestIP:   net.ParseIP("10.0.0.2"),
		Protocol: layers.IPProtocolUDP,
		SrcPort:  5000,
		DestPort: 6000,
		Payload:  []byte("flag{abc}"),
	})

	p, err := Decode(Raw{ID: 1, Payload: payload}, "")
	require.NoError(t, err)

	for i := range payload {
		payload[i] = 0
	}
	assert.Equal(t, []byte("flag{abc}"), p.Payload)
}

func TestDecodeIPv6UDP(t *testing.T) {
	payload := mustBuild(t, Template{
		SrcIP:    net.ParseIP("fe80::24f1:caac:a217:c23d"),
		DestIP:   net.ParseIP("ff02::c"),
		Protocol: layers.IPProtocolUDP,
		SrcPort:  51072,
		DestPort: 3702,
		Payload:  make([]byte, 32),
	})

	p, err := Decode(Raw{ID: 1, Family: AF_INET6, Payload: payload}, "")
	require.NoError(t, err)

	require.Len(t, p.Layers, 2)
	require.NotNil(t, p.Layers[0].Ipv6)
	assert.Equal(t, "ff02::c", p.Layers[0].Ipv6.DestIp)
	assert.Equal(t, "UDP", p.Layers[0].Ipv6.NextHeader)
	require.NotNil(t, p.Layers[1].Udp)
	assert.Equal(t, uint32(3702), p.Layers[1].Udp.DestPort)
	assert.Equal(t, uint32(40), p.Layers[1].Udp.Length)
}

func TestDecodeICMPv4(t *testing.T) {
	payload := mustBuild(t, Template{
		SrcIP:    net.ParseIP("10.88.0.1"),
		DestIP:   net.ParseIP("10.88.0.2"),
		Protocol: layers.IPProtocolICMPv4,
	})

	p, err := Decode(Raw{Payload: payload}, "")
	require.NoError(t, err)

	require.Len(t, p.Layers, 2)
	require.NotNil(t, p.Layers[1].Icmpv4)
	assert.Equal(t, uint32(1), p.Layers[1].Icmpv4.Id)
}

func TestDecodeErrors(t *testing.T) {
	valid := mustBuild(t, Template{
		SrcIP:    net.ParseIP("10.0.0.1"),
		DestIP:   net.ParseIP("10.0.0.2"),
		Protocol: layers.IPProtocolUDP,
		SrcPort:  1,
		DestPort: 2,
	})

	_, err := Decode(Raw{ID: 3}, "")
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = Decode(Raw{Payload: []byte{0x70, 0x00}}, "")
	assert.ErrorContains(t, err, "unknown protocol family")

	_, err = Decode(Raw{Payload: valid[:10]}, "")
	assert.Error(t, err)
}

func TestBuildUnsupportedProtocol(t *testing.T) {
	_, err := Build(Template{
		SrcIP:    net.ParseIP("10.0.0.1"),
		DestIP:   net.ParseIP("10.0.0.2"),
		Protocol: layers.IPProtocolGRE,
	})
	assert.Error(t, err)
}

func TestToMetric(t *testing.T) {
	p := &Packet{
		Metadata: &PacketMetadata{
			Prefix:    "accept",
			Length:    66,
			Timestamp: time.Unix(10, 0),
		},
		Layers: []*Layer{
			{Ipv4: &LayerIPv4{SrcIp: "192.168.1.65", DestIp: "192.168.1.155", Protocol: "UDP"}},
			{Udp: &LayerUDP{SrcPort: 37092, DestPort: 53}},
		},
	}

	m := p.ToMetric()
	assert.Equal(t, "packet_bytes", m.Name)
	assert.Equal(t, float64(66), m.Value)
	assert.Equal(t, time.Unix(10, 0), m.Time)
	assert.Equal(t, map[string]string{
		"prefix":    "accept",
		"protocol":  "UDP",
		"src_ip":    "192.168.1.65",
		"dest_ip":   "192.168.1.155",
		"transport": "udp",
		"dest_port": "53",
	}, m.Labels)
}

func TestToMetricWithoutMetadata(t *testing.T) {
	m := (&Packet{}).ToMetric()
	assert.Empty(t, m.Labels)
	assert.Zero(t, m.Value)
	assert.True(t, m.Time.IsZero())
}
