package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/Minei3oat/firegex/pkg/packet"
)

const subscriberBufferSize = 128

type SubscriberID int

// Hub fans decoded packets out to subscribers. Each subscriber has a small
// buffer; when it is full the packet is dropped for that subscriber only, so a
// slow client never stalls the workers.
type Hub struct {
	mu       sync.Mutex
	attached map[SubscriberID]chan *packet.Packet
	nextID   SubscriberID
	dropped  atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		attached: make(map[SubscriberID]chan *packet.Packet),
	}
}

func (h *Hub) Publish(p *packet.Packet) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.attached {
		select {
		case ch <- p:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) Attach() (<-chan *packet.Packet, SubscriberID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan *packet.Packet, subscriberBufferSize)
	h.attached[id] = ch
	return ch, id
}

func (h *Hub) Detach(id SubscriberID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.attached, id)
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.attached)
}

// Dropped is the number of packet deliveries skipped because a subscriber
// buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
