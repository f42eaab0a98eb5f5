// Package capture produces raw packets for the pipeline. A Source runs on the
// capture goroutine and hands each packet to a callback, which may block when
// the pipeline applies backpressure.
package capture

import (
	"context"
	"strings"

	"github.com/Minei3oat/firegex/pkg/packet"
	"github.com/pkg/errors"
)

type CallbackFunc func(raw packet.Raw)

type Source interface {
	Run(ctx context.Context, emit CallbackFunc) error
}

const (
	KindHex  = "hex"
	KindMock = "mock"
)

var ErrUnknownSource = errors.New("unknown capture source")

// ParseKind normalizes a configured source name.
func ParseKind(s string) (string, error) {
	switch kind := strings.ToLower(strings.TrimSpace(s)); kind {
	case KindHex, KindMock:
		return kind, nil
	default:
		return "", errors.Wrapf(ErrUnknownSource, "%q", s)
	}
}
