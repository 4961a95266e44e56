package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// connStream adapts an engine's poll function into a MessageStream. It holds
// the consumer's connection lease from Stream until Close, so no other
// operation can interleave with a live stream.
type connStream struct {
	poll    func(ctx context.Context, idle time.Duration) (Message, error)
	release func()
	idle    time.Duration

	mu     sync.Mutex
	closed bool
}

func newConnStream(idle time.Duration, poll func(context.Context, time.Duration) (Message, error), release func()) *connStream {
	return &connStream{poll: poll, release: release, idle: idle}
}

func (s *connStream) Next(ctx context.Context) (Message, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Message{}, fmt.Errorf("%w: stream is closed", ErrInvariant)
	}
	return s.poll(ctx, s.idle)
}

func (s *connStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.release()
	}
	return nil
}
