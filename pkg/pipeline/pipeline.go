// Package pipeline wires a capture source to processing workers through a
// bounded blocking queue.
//
// Payloads live in a fixed set of slots. The capture goroutine takes a free
// slot, copies the packet into it and puts a Ticket naming the slot on the work
// queue; a worker takes the ticket, decodes the slot and returns it to the free
// list. Tickets have a fixed binary size, so either queue backend can carry
// them.
package pipeline

import (
	"context"
	"math"

	"github.com/Minei3oat/firegex/pkg/blockingqueue"
	"github.com/Minei3oat/firegex/pkg/capture"
	"github.com/Minei3oat/firegex/pkg/exporter"
	"github.com/Minei3oat/firegex/pkg/filter"
	"github.com/Minei3oat/firegex/pkg/packet"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const stopSlot = math.MaxUint32

// Ticket hands a filled slot from the capture goroutine to a worker.
type Ticket struct {
	ID   uint32
	Slot uint32
}

type Options struct {
	Capacity int
	Backend  blockingqueue.Backend
	Workers  int
	Hostname string

	// Registerer receives the queue metrics. Nil disables them.
	Registerer prometheus.Registerer
	Exporter   *exporter.Exporter
	Hub        *Hub

	// Filter gives every decoded packet a verdict. Nil leaves packets without one.
	Filter *filter.Set

	// OnPacket is called by a worker for every decoded packet.
	OnPacket func(*packet.Packet)
}

type Pipeline struct {
	opts  Options
	work  blockingqueue.Queue[Ticket]
	free  blockingqueue.Queue[uint32]
	slots []packet.Raw

	warnLog deferredLogger
}

func New(opts Options) (*Pipeline, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Capacity == 0 {
		opts.Capacity = blockingqueue.DefaultCapacity
	}
	if opts.Backend == "" {
		opts.Backend = blockingqueue.BackendCond
	}
	if opts.Exporter == nil {
		opts.Exporter = exporter.New()
	}

	work, err := blockingqueue.New[Ticket](
		blockingqueue.WithCapacity(opts.Capacity),
		blockingqueue.WithBackend(opts.Backend),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create work queue")
	}

	// Every ticket in the work queue, every worker and the capture goroutine
	// can each hold one slot.
	nslots := opts.Capacity + opts.Workers + 1
	free, err := blockingqueue.New[uint32](
		blockingqueue.WithCapacity(nslots),
		blockingqueue.WithBackend(opts.Backend),
	)
	if err != nil {
		work.Close()
		return nil, errors.Wrap(err, "create free list")
	}
	for i := 0; i < nslots; i++ {
		free.Put(uint32(i))
	}

	if opts.Registerer != nil {
		work = blockingqueue.Instrument(work, blockingqueue.NewMetrics(opts.Registerer, "work"))
	}

	return &Pipeline{
		opts:  opts,
		work:  work,
		free:  free,
		slots: make([]packet.Raw, nslots),
	}, nil
}

// Run captures from src until it returns or ctx is cancelled, then drains the
// work queue and stops the workers. Captured packets are never dropped: when
// the work queue is full the capture goroutine blocks.
func (p *Pipeline) Run(ctx context.Context, src capture.Source) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < p.opts.Workers; i++ {
		g.Go(func() error {
			p.process()
			return nil
		})
	}

	g.Go(func() error {
		defer p.stopWorkers()
		log.Info().
			Int("capacity", p.work.Cap()).
			Str("backend", p.opts.Backend.String()).
			Int("workers", p.opts.Workers).
			Msg("starting capture")
		return src.Run(ctx, p.enqueue)
	})

	return g.Wait()
}

func (p *Pipeline) enqueue(raw packet.Raw) {
	slot := p.free.Take()

	s := &p.slots[slot]
	s.ID = raw.ID
	s.Family = raw.Family
	s.Prefix = raw.Prefix
	s.Timestamp = raw.Timestamp
	s.Payload = append(s.Payload[:0], raw.Payload...)

	p.work.Put(Ticket{ID: raw.ID, Slot: slot})
}

// stopWorkers queues one stop ticket per worker behind any pending work.
func (p *Pipeline) stopWorkers() {
	for i := 0; i < p.opts.Workers; i++ {
		p.work.Put(Ticket{Slot: stopSlot})
	}
}

func (p *Pipeline) process() {
	for {
		t := p.work.Take()
		if t.Slot == stopSlot {
			return
		}

		pkt, err := packet.Decode(p.slots[t.Slot], p.opts.Hostname)
		p.free.Put(t.Slot)

		if err != nil {
			p.opts.Exporter.ObserveDecodeError()
			p.warnLog.Get().Warn().Err(err).Uint32("id", t.ID).Msg("failed to decode packet")
			continue
		}

		if p.opts.Filter != nil {
			verdict, rule := p.opts.Filter.Verdict(pkt)
			pkt.Verdict = verdict.String()
			p.opts.Exporter.ObserveVerdict(pkt.Metadata.Prefix, pkt.Verdict, rule)
		}

		p.opts.Exporter.Observe(pkt)
		if p.opts.Hub != nil {
			p.opts.Hub.Publish(pkt)
		}
		if p.opts.OnPacket != nil {
			p.opts.OnPacket(pkt)
		}
	}
}

// Pending is the number of tickets waiting for a worker.
func (p *Pipeline) Pending() int {
	return p.work.Len()
}

// Close releases the queues. It must not be called while Run is active.
func (p *Pipeline) Close() error {
	werr := p.work.Close()
	ferr := p.free.Close()
	if werr != nil {
		return errors.Wrap(werr, "close work queue")
	}
	return errors.Wrap(ferr, "close free list")
}
