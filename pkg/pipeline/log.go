package pipeline

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const deferredLogInterval = 10 * time.Second

// deferredLogger hands out the global logger at most once per interval and a
// no-op logger otherwise, so per-packet warnings cannot flood the log.
type deferredLogger struct {
	mu       sync.Mutex
	lastTime time.Time
}

func (dl *deferredLogger) Get() *zerolog.Logger {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	now := time.Now()
	if now.Sub(dl.lastTime) < deferredLogInterval {
		nop := zerolog.Nop()
		return &nop
	}
	dl.lastTime = now
	return &log.Logger
}
