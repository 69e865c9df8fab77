// Package bus hands inbound messages from the platform reader to the dispatcher.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/crystaldolphin/tgmirror/internal/schema"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("bus closed")

// InboundBus carries messages from the long-poll reader → dispatcher.
// The reader calls Publish; the dispatcher ranges over Subscribe until Close.
// The buffer lets the reader keep polling while a delivery pass is paced.
type InboundBus struct {
	ch     chan schema.InboundMessage
	mu     sync.RWMutex
	closed bool
}

func NewInboundBus(bufSize int) *InboundBus {
	if bufSize < 0 {
		bufSize = 0
	}
	return &InboundBus{ch: make(chan schema.InboundMessage, bufSize)}
}

// Publish enqueues msg, blocking while the buffer is full. It returns
// ctx.Err() if ctx ends first and ErrClosed once the bus is closed.
func (b *InboundBus) Publish(ctx context.Context, msg schema.InboundMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a receive-only view of the inbound channel.
func (b *InboundBus) Subscribe() <-chan schema.InboundMessage {
	return b.ch
}

// Close stops accepting messages. Buffered messages remain readable and the
// subscription channel is closed after them. Safe to call more than once.
func (b *InboundBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

// Len is the number of buffered messages.
func (b *InboundBus) Len() int { return len(b.ch) }
