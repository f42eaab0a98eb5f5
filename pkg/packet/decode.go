package packet

import (
	"bytes"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

const (
	AF_INET  = 2
	AF_INET6 = 10
)

var ErrEmptyPayload = errors.New("empty payload")

// Decode parses the network and transport layers of raw. When raw.Family is
// zero the family is taken from the IP version nibble.
func Decode(raw Raw, hostname string) (*Packet, error) {
	if len(raw.Payload) == 0 {
		return nil, errors.Wrapf(ErrEmptyPayload, "packet %d", raw.ID)
	}

	family := raw.Family
	if family == 0 {
		family = familyFromVersion(raw.Payload[0] >> 4)
	}

	packetLayers, appPayload, err := interpretNetwork(raw.Payload, family)
	if err != nil {
		return nil, errors.Wrapf(err, "packet %d", raw.ID)
	}

	return &Packet{
		ID: raw.ID,
		Metadata: &PacketMetadata{
			Hostname:      hostname,
			Timestamp:     raw.Timestamp,
			CaptureLength: uint32(len(raw.Payload)),
			Length:        uint32(len(raw.Payload)),
			Prefix:        raw.Prefix,
		},
		Layers:  packetLayers,
		Payload: appPayload,
	}, nil
}

func familyFromVersion(version byte) uint8 {
	switch version {
	case 4:
		return AF_INET
	case 6:
		return AF_INET6
	default:
		return 0
	}
}

func interpretNetwork(payload []byte, family uint8) ([]*Layer, []byte, error) {
	switch family {
	case AF_INET:
		return interpret(payload, layers.LayerTypeIPv4)
	case AF_INET6:
		return interpret(payload, layers.LayerTypeIPv6)
	default:
		return nil, nil, errors.Errorf("unknown protocol family: %d", family)
	}
}

// interpret also returns a copy of the transport payload, since payload is
// decoded without copying and may be reused once Decode returns.
func interpret(payload []byte, first gopacket.LayerType) ([]*Layer, []byte, error) {
	packet := gopacket.NewPacket(payload, first, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	if err := packet.ErrorLayer(); err != nil {
		return nil, nil, err.Error()
	}

	var appPayload []byte
	if transport := packet.TransportLayer(); transport != nil && len(transport.LayerPayload()) > 0 {
		appPayload = bytes.Clone(transport.LayerPayload())
	}
	return gopacketToLayers(packet), appPayload, nil
}

func gopacketToLayers(packet gopacket.Packet) []*Layer {
	var layersList []*Layer
	for _, layer := range packet.Layers() {
		switch l := layer.(type) {
		case *layers.IPv4:
			layersList = append(layersList, &Layer{
				Ipv4: &LayerIPv4{
					SrcIp:    l.SrcIP.String(),
					DestIp:   l.DstIP.String(),
					Protocol: l.Protocol.String(),
					Ttl:      uint32(l.TTL),
				},
			})
		case *layers.IPv6:
			layersList = append(layersList, &Layer{
				Ipv6: &LayerIPv6{
					SrcIp:      l.SrcIP.String(),
					DestIp:     l.DstIP.String(),
					NextHeader: l.NextHeader.String(),
					HopLimit:   uint32(l.HopLimit),
				},
			})
		case *layers.TCP:
			layersList = append(layersList, &Layer{
				Tcp: &LayerTCP{
					SrcPort:  uint32(l.SrcPort),
					DestPort: uint32(l.DstPort),
					Seq:      l.Seq,
					Ack:      l.Ack,
					Flags:    tcpFlags(l),
					Window:   uint32(l.Window),
					Checksum: uint32(l.Checksum),
					Payload:  uint32(len(l.Payload)),
				},
			})
		case *layers.UDP:
			layersList = append(layersList, &Layer{
				Udp: &LayerUDP{
					SrcPort:  uint32(l.SrcPort),
					DestPort: uint32(l.DstPort),
					Length:   uint32(l.Length),
					Checksum: uint32(l.Checksum),
				},
			})
		case *layers.ICMPv4:
			layersList = append(layersList, &Layer{
				Icmpv4: &LayerICMPV4{
					TypeCode: l.TypeCode.String(),
					Checksum: uint32(l.Checksum),
					Id:       uint32(l.Id),
					Seq:      uint32(l.Seq),
				},
			})
		case *layers.ICMPv6:
			layersList = append(layersList, &Layer{
				Icmpv6: &LayerICMPV6{
					TypeCode: l.TypeCode.String(),
					Checksum: uint32(l.Checksum),
				},
			})
		}
	}
	return layersList
}

func tcpFlags(l *layers.TCP) string {
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{l.SYN, "SYN"}, {l.ACK, "ACK"}, {l.FIN, "FIN"}, {l.RST, "RST"}, {l.PSH, "PSH"}, {l.URG, "URG"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	return strings.Join(flags, "|")
}
