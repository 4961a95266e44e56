package kafka

import (
	"fmt"
	"time"
)

// Fixed engine parameters. Both engines apply these at construction so the
// two bindings behave the same under failure and shutdown.
const (
	// SessionTimeout is the broker session timeout.
	SessionTimeout = 6 * time.Second
	// MessageTimeout bounds how long a produced record may await delivery
	// before the send is failed.
	MessageTimeout = 5 * time.Second
	// ConnectTimeout bounds the construction-time connectivity check.
	ConnectTimeout = 10 * time.Second
	// ResolveTimeout bounds broker lookups made while resolving an offset
	// specification (offsets-for-times, committed offsets).
	ResolveTimeout = time.Second
	// WatermarkTimeout bounds the watermark offset query.
	WatermarkTimeout = 3 * time.Second

	// ExitIdleTimeout ends a stream that has caught up with the partition
	// when the consumer was configured to exit on done.
	ExitIdleTimeout = 3 * time.Second
	// TailIdleTimeout is the idle bound for continuous tailing. It exists
	// so even a tailing stream cannot block forever on a dead connection.
	TailIdleTimeout = time.Hour
)

// ConsumerConfig describes one consumer connection. Each consumer is bound
// to a single topic and partition for its whole lifetime.
type ConsumerConfig struct {
	Auth    AuthConfig
	GroupID string
	Topic   string
	// Partition to consume; 0 when unset.
	Partition int32
	// ExitOnDone selects the short idle timeout so a stream terminates soon
	// after the partition is drained instead of tailing.
	ExitOnDone bool
}

func (c ConsumerConfig) validate() error {
	if c.Topic == "" {
		return fmt.Errorf("%w: consumer topic is required", ErrConfig)
	}
	if c.Partition < 0 {
		return fmt.Errorf("%w: partition must not be negative, got %d", ErrConfig, c.Partition)
	}
	return nil
}

func (c ConsumerConfig) idleTimeout() time.Duration {
	if c.ExitOnDone {
		return ExitIdleTimeout
	}
	return TailIdleTimeout
}

// ProducerConfig describes one producer connection bound to a destination
// topic.
type ProducerConfig struct {
	Auth  AuthConfig
	Topic string
}

func (c ProducerConfig) validate() error {
	if c.Topic == "" {
		return fmt.Errorf("%w: producer topic is required", ErrConfig)
	}
	return nil
}
