// Package notify implements the notification sink: a bounded enqueue
// shared by every component, drained exclusively by the transport.
// Publishing blocks only while the buffer is full.
package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

// Sink is the publishing surface shared by the components that emit a
// notification toward the client, such as the Event Bridge. Publish does
// not perform transport I/O on the caller's goroutine.
type Sink interface {
	Publish(ctx context.Context, sessionID string, notification jsonrpc.OutboundNotification) error
	// Subscribe registers a drain callback. Registering a second callback
	// adds it alongside the first; each registered callback receives
	// every notification.
	Subscribe(fn func(jsonrpc.OutboundNotification)) (unsubscribe func())
	Close()
}

// ChannelSink is the default in-process sink: a single buffered channel
// per sink instance, guaranteeing FIFO delivery per producer.
type ChannelSink struct {
	mu          sync.RWMutex
	subscribers []func(jsonrpc.OutboundNotification)
	ch          chan jsonrpc.OutboundNotification
	closed      bool
	logger      *logger.Logger
	wg          sync.WaitGroup
}

// NewChannelSink creates a sink with the given outbound buffer size. A
// size of 0 uses an unbuffered channel (back-pressure is permitted but
// not expected).
func NewChannelSink(bufferSize int, log *logger.Logger) *ChannelSink {
	s := &ChannelSink{
		ch:     make(chan jsonrpc.OutboundNotification, bufferSize),
		logger: log.WithFields(zap.String("component", "notify-sink")),
	}
	s.wg.Add(1)
	go s.fanout()
	return s
}

func (s *ChannelSink) fanout() {
	defer s.wg.Done()
	for n := range s.ch {
		s.mu.RLock()
		subs := make([]func(jsonrpc.OutboundNotification), len(s.subscribers))
		copy(subs, s.subscribers)
		s.mu.RUnlock()
		for _, fn := range subs {
			if fn != nil {
				fn(n)
			}
		}
	}
}

// Publish enqueues notification without waiting for any subscriber's
// processing. When the buffer is full it blocks until there is room or
// ctx is done, in which case it returns ctx.Err(). It returns an error
// immediately if the sink has been closed.
func (s *ChannelSink) Publish(ctx context.Context, sessionID string, notification jsonrpc.OutboundNotification) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return fmt.Errorf("notify: sink closed")
	}

	select {
	case s.ch <- notification:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn to receive every notification published after
// this call. The returned func removes the registration.
func (s *ChannelSink) Subscribe(fn func(jsonrpc.OutboundNotification)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
	idx := len(s.subscribers) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.subscribers) {
			s.subscribers[idx] = nil
		}
	}
}

// Close stops accepting new notifications and waits for the fanout
// goroutine to drain what remains.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.ch)
	s.wg.Wait()
}
