package capture

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/Minei3oat/firegex/pkg/hexcodec"
	"github.com/Minei3oat/firegex/pkg/packet"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// maxLineSize fits a hex encoded 64KiB packet plus a prefix.
const maxLineSize = 2*65536 + 256

// HexSource reads one packet per line in the form "[prefix ]<hex payload>".
// Blank lines are ignored. Lines that fail to decode are counted and skipped.
type HexSource struct {
	r   io.Reader
	now func() time.Time

	nextID    uint32
	read      atomic.Uint64
	malformed atomic.Uint64
}

func NewHexSource(r io.Reader) *HexSource {
	return &HexSource{r: r, now: time.Now}
}

// Run returns nil at end of input or once ctx is cancelled. Lines are read on
// a separate goroutine so a reader blocked without input does not hold up
// cancellation. If the reader supports read deadlines the pending read is
// interrupted; otherwise that goroutine exits with the next line or EOF.
func (s *HexSource) Run(ctx context.Context, emit CallbackFunc) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go s.scan(ctx, lines, readErr)

	lineNo := 0
	for {
		if ctx.Err() != nil {
			s.interrupt()
			return nil
		}

		var (
			line []byte
			ok   bool
		)
		select {
		case <-ctx.Done():
			s.interrupt()
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			if err := <-readErr; err != nil {
				return errors.Wrap(err, "read hex packets")
			}
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		lineNo++

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		raw, err := s.parseLine(line)
		if err != nil {
			s.malformed.Add(1)
			log.Debug().Err(err).Int("line", lineNo).Msg("skipping malformed packet line")
			continue
		}

		s.read.Add(1)
		emit(raw)
	}
}

// scan sends a copy of every line to lines. It always leaves exactly one value
// in readErr before closing lines.
func (s *HexSource) scan(ctx context.Context, lines chan<- []byte, readErr chan<- error) {
	var err error
	defer func() {
		readErr <- err
		close(lines)
	}()

	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		select {
		case lines <- bytes.Clone(scanner.Bytes()):
		case <-ctx.Done():
			return
		}
	}
	err = scanner.Err()
}

func (s *HexSource) interrupt() {
	if d, ok := s.r.(interface{ SetReadDeadline(time.Time) error }); ok {
		_ = d.SetReadDeadline(time.Now())
	}
}

func (s *HexSource) parseLine(line []byte) (packet.Raw, error) {
	var prefix string
	if i := bytes.IndexByte(line, ' '); i >= 0 {
		prefix = string(line[:i])
		line = bytes.TrimSpace(line[i+1:])
	}

	payload, err := hexcodec.AppendDecode(nil, line)
	if err != nil {
		return packet.Raw{}, err
	}

	s.nextID++
	return packet.Raw{
		ID:        s.nextID,
		Prefix:    prefix,
		Timestamp: s.now(),
		Payload:   payload,
	}, nil
}

// Read is the number of packets emitted so far.
func (s *HexSource) Read() uint64 {
	return s.read.Load()
}

// Malformed is the number of lines skipped because they did not decode.
func (s *HexSource) Malformed() uint64 {
	return s.malformed.Load()
}
