package capture

import (
	"context"
	"net"
	"time"

	"github.com/Minei3oat/firegex/pkg/packet"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var mockTemplates = []packet.Template{
	{SrcIP: net.ParseIP("192.168.1.65"), DestIP: net.ParseIP("34.96.126.106"), Protocol: layers.IPProtocolTCP, SrcPort: 33132, Payload: []byte("GET /flag{mock} HTTP/1.1\r\n\r\n")},
	{SrcIP: net.ParseIP("192.168.1.65"), DestIP: net.ParseIP("192.168.1.155"), Protocol: layers.IPProtocolUDP, SrcPort: 37092, Payload: []byte("ping")},
	{SrcIP: net.ParseIP("fe80::24f1:caac:a217:c23d"), DestIP: net.ParseIP("ff02::c"), Protocol: layers.IPProtocolUDP, SrcPort: 51072},
	{SrcIP: net.ParseIP("10.88.0.1"), DestIP: net.ParseIP("10.88.255.255"), Protocol: layers.IPProtocolICMPv4},
}

var mockPrefixes = []string{"accept", "reject"}

// MockSource emits synthetic packets every Interval. A zero Interval emits as
// fast as the callback accepts them. Count limits the number of packets; zero
// means unlimited.
type MockSource struct {
	Interval time.Duration
	Count    int
}

func (m *MockSource) Run(ctx context.Context, emit CallbackFunc) error {
	log.Info().Dur("interval", m.Interval).Msg("running capture mock")

	var tick <-chan time.Time
	if m.Interval > 0 {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var counter uint32
	for m.Count == 0 || int(counter) < m.Count {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		tmpl := mockTemplates[int(counter)%len(mockTemplates)]
		tmpl.DestPort = uint16(counter % 65535)

		payload, err := packet.Build(tmpl)
		if err != nil {
			return errors.Wrap(err, "build mock packet")
		}

		counter++
		emit(packet.Raw{
			ID:        counter,
			Prefix:    mockPrefixes[int(counter)%len(mockPrefixes)],
			Timestamp: time.Now(),
			Payload:   payload,
		})
	}
	return nil
}
