package packet

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// Template describes a synthetic packet. A nil DestIP of either family selects
// IPv4 when SrcIP is an IPv4 address.
type Template struct {
	SrcIP    net.IP
	DestIP   net.IP
	Protocol layers.IPProtocol
	SrcPort  uint16
	DestPort uint16
	Payload  []byte
}

// Build serializes t into a network-layer payload with lengths and checksums
// filled in, the form a capture source hands over.
func Build(t Template) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	var network gopacket.NetworkLayer
	var serializable []gopacket.SerializableLayer
	if t.SrcIP.To4() != nil {
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: t.Protocol,
			SrcIP:    t.SrcIP.To4(),
			DstIP:    t.DestIP.To4(),
		}
		network, serializable = ip, append(serializable, ip)
	} else {
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: t.Protocol,
			SrcIP:      t.SrcIP,
			DstIP:      t.DestIP,
		}
		network, serializable = ip, append(serializable, ip)
	}

	switch t.Protocol {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(t.SrcPort),
			DstPort: layers.TCPPort(t.DestPort),
			SYN:     true,
			Window:  64240,
		}
		if err := tcp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, errors.Wrap(err, "tcp checksum layer")
		}
		serializable = append(serializable, tcp)
	case layers.IPProtocolUDP:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(t.SrcPort),
			DstPort: layers.UDPPort(t.DestPort),
		}
		if err := udp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, errors.Wrap(err, "udp checksum layer")
		}
		serializable = append(serializable, udp)
	case layers.IPProtocolICMPv4:
		serializable = append(serializable, &layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
			Id:       1,
			Seq:      1,
		})
	default:
		return nil, errors.Errorf("unsupported protocol %s", t.Protocol)
	}

	serializable = append(serializable, gopacket.Payload(t.Payload))
	if err := gopacket.SerializeLayers(buf, opts, serializable...); err != nil {
		return nil, errors.Wrap(err, "serialize packet")
	}
	return buf.Bytes(), nil
}
