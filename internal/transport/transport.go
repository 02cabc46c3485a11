// Package transport implements the message boundary between the orchestrator and the
// engine: in-process pipe, JSON lines over a subprocess's stdio, WebSocket and Redis
// pub/sub. Each client satisfies bridge.Transport; each server side drives a Handler.
package transport

import (
	"context"
	"errors"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

var ErrClosed = errors.New("transport closed")

// Handler executes envelopes on the engine side.
type Handler interface {
	Handle(ctx context.Context, env reversidto.Envelope) reversidto.Reply
	// Ready reports whether the engine finished loading.
	Ready() error
}
