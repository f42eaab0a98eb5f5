package packet

import "time"

// Raw is a captured packet before layer decoding. Payload starts at the
// network header.
type Raw struct {
	ID        uint32
	Family    uint8
	Prefix    string
	Timestamp time.Time
	Payload   []byte
}

type Packet struct {
	ID       uint32          `json:"id"`
	Metadata *PacketMetadata `json:"metadata,omitempty"`
	Layers   []*Layer        `json:"layers,omitempty"`
	Verdict  string          `json:"verdict,omitempty"`

	// Payload is the TCP or UDP payload, the bytes filters are matched against.
	Payload []byte `json:"-"`
}

// Ports returns the transport source and destination ports. ok is false for
// packets without a TCP or UDP layer.
func (p *Packet) Ports() (src, dst uint16, ok bool) {
	for _, layer := range p.Layers {
		switch {
		case layer.Tcp != nil:
			return uint16(layer.Tcp.SrcPort), uint16(layer.Tcp.DestPort), true
		case layer.Udp != nil:
			return uint16(layer.Udp.SrcPort), uint16(layer.Udp.DestPort), true
		}
	}
	return 0, 0, false
}

func (p *Packet) ToMetric() Metric {
	labels := make(map[string]string)

	var (
		packetSize float64
		ts         time.Time
	)
	if p.Metadata != nil {
		if p.Metadata.InterfaceName != "" {
			labels["interface"] = p.Metadata.InterfaceName
		}
		if p.Metadata.Prefix != "" {
			labels["prefix"] = p.Metadata.Prefix
		}
		packetSize = float64(p.Metadata.Length)
		ts = p.Metadata.Timestamp
	}

	for _, layer := range p.Layers {
		switch {
		case layer.Ipv4 != nil:
			labels["protocol"] = layer.Ipv4.Protocol
			labels["src_ip"] = layer.Ipv4.SrcIp
			labels["dest_ip"] = layer.Ipv4.DestIp
		case layer.Ipv6 != nil:
			labels["protocol"] = layer.Ipv6.NextHeader
			labels["src_ip"] = layer.Ipv6.SrcIp
			labels["dest_ip"] = layer.Ipv6.DestIp
		case layer.Tcp != nil:
			labels["transport"] = "tcp"
			labels["dest_port"] = portString(layer.Tcp.DestPort)
		case layer.Udp != nil:
			labels["transport"] = "udp"
			labels["dest_port"] = portString(layer.Udp.DestPort)
		case layer.Icmpv4 != nil:
			labels["transport"] = "icmpv4"
		case layer.Icmpv6 != nil:
			labels["transport"] = "icmpv6"
		}
	}

	return Metric{
		Name:   "packet_bytes",
		Labels: labels,
		Value:  packetSize,
		Time:   ts,
	}
}

type PacketMetadata struct {
	Hostname      string    `json:"hostname,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
	CaptureLength uint32    `json:"capture_length,omitempty"`
	Length        uint32    `json:"length,omitempty"`
	InterfaceName string    `json:"interface_name,omitempty"`
	Prefix        string    `json:"prefix,omitempty"`
}

type Layer struct {
	Ipv4   *LayerIPv4   `json:"ipv4,omitempty"`
	Ipv6   *LayerIPv6   `json:"ipv6,omitempty"`
	Tcp    *LayerTCP    `json:"tcp,omitempty"`
	Udp    *LayerUDP    `json:"udp,omitempty"`
	Icmpv4 *LayerICMPV4 `json:"icmpv4,omitempty"`
	Icmpv6 *LayerICMPV6 `json:"icmpv6,omitempty"`
}

type LayerIPv4 struct {
	SrcIp    string `json:"src_ip,omitempty"`
	DestIp   string `json:"dest_ip,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	Ttl      uint32 `json:"ttl,omitempty"`
}

type LayerIPv6 struct {
	SrcIp      string `json:"src_ip,omitempty"`
	DestIp     string `json:"dest_ip,omitempty"`
	NextHeader string `json:"next_header,omitempty"`
	HopLimit   uint32 `json:"hop_limit,omitempty"`
}

type LayerTCP struct {
	SrcPort  uint32 `json:"src_port,omitempty"`
	DestPort uint32 `json:"dest_port,omitempty"`
	Seq      uint32 `json:"seq,omitempty"`
	Ack      uint32 `json:"ack,omitempty"`
	Flags    string `json:"flags,omitempty"`
	Window   uint32 `json:"window,omitempty"`
	Checksum uint32 `json:"checksum,omitempty"`
	Payload  uint32 `json:"payload_length,omitempty"`
}

type LayerUDP struct {
	SrcPort  uint32 `json:"src_port,omitempty"`
	DestPort uint32 `json:"dest_port,omitempty"`
	Length   uint32 `json:"length,omitempty"`
	Checksum uint32 `json:"checksum,omitempty"`
}

type LayerICMPV4 struct {
	TypeCode string `json:"typeCode,omitempty"`
	Checksum uint32 `json:"checksum,omitempty"`
	Id       uint32 `json:"id,omitempty"`
	Seq      uint32 `json:"seq,omitempty"`
}

type LayerICMPV6 struct {
	TypeCode string `json:"typeCode,omitempty"`
	Checksum uint32 `json:"checksum,omitempty"`
}
