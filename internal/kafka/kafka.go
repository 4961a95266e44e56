// Package kafka produces and consumes Kafka messages behind an
// engine-neutral interface, so callers never bind to a concrete client
// library. Two engines are provided: franz (twmb/franz-go, the default) and
// sarama (IBM/sarama). Both expose the same capability set and the same
// error taxonomy.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Interface is the capability set of one underlying client engine. Callers
// construct consumers and producers through it and stay generic over the
// concrete engine.
type Interface interface {
	// Name identifies the engine.
	Name() string
	// NewConsumer opens a connection bound to the configured topic and
	// partition and verifies broker connectivity. Construction failures are
	// startup errors; they are not retried here.
	NewConsumer(ctx context.Context, cfg ConsumerConfig) (Consumer, error)
	// NewProducer opens a connection bound to the destination topic.
	NewProducer(ctx context.Context, cfg ProducerConfig) (Producer, error)
	// NewAdmin opens a connection for topic administration.
	NewAdmin(ctx context.Context, auth AuthConfig) (Admin, error)
}

// Consumer owns one client connection bound to a single topic/partition.
// Operations serialize on an internal connection lease: at most one
// operation, or one live stream, uses the connection at a time. Waiting for
// the lease honors the operation's ctx. Close carries no ctx and waits the
// lease out, so close any live stream first.
type Consumer interface {
	// Assign resolves spec to a concrete offset and (re)assigns the
	// consumer's partition to it, replacing any previous assignment. No
	// assignment is made when resolution fails.
	Assign(ctx context.Context, spec OffsetSpec) error
	// ReceiveOne pulls exactly one message, blocking until a message
	// arrives, ctx is done, or the connection reports an error.
	ReceiveOne(ctx context.Context) (Message, error)
	// Watermarks reports the partition's low and high watermark offsets.
	Watermarks(ctx context.Context) (low, high int64, err error)
	// Stream checks out the connection and returns a fresh stream over it.
	// The stream must be closed to release the connection for subsequent
	// operations; a new stream picks up where the previous one stopped.
	Stream(ctx context.Context) (MessageStream, error)
	// Close releases the underlying connection.
	Close() error
}

// MessageStream is a bounded, cancellable message sequence. Next returns
// ErrDone once the consumer's idle timeout elapses with no message, the
// normal caught-up terminal state, and a different error for genuine
// connection failures.
type MessageStream interface {
	Next(ctx context.Context) (Message, error)
	// Close releases the stream's hold on the connection. It is safe to
	// call more than once.
	Close() error
}

// Producer owns one client connection bound to one destination topic.
type Producer interface {
	// WriteOne sends one record and waits for its delivery outcome. Key and
	// Payload are attached only when non-empty; headers are forwarded.
	WriteOne(ctx context.Context, msg Message) error
	Close() error
}

// Admin is the thin topic-administration surface.
type Admin interface {
	// CreateTopic creates a topic with the given partition count and a
	// replication factor of 1.
	CreateTopic(ctx context.Context, name string, partitions int32) error
	// Metadata reports the cluster's brokers and topics, sorted. With no
	// arguments every topic is described, otherwise only the named ones.
	Metadata(ctx context.Context, topics ...string) (*ClusterMetadata, error)
	Close() error
}

// engines is the registry of available bindings, populated by each engine
// file's init.
var engines = map[string]Interface{}

func register(engine Interface) {
	engines[engine.Name()] = engine
}

// DefaultEngine is used when no engine is named.
const DefaultEngine = "franz"

// LookupEngine returns the engine registered under name, defaulting to
// DefaultEngine for the empty string.
func LookupEngine(name string) (Interface, error) {
	if name == "" {
		name = DefaultEngine
	}
	engine, ok := engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown engine %q (expected %s)", ErrConfig, name, strings.Join(EngineNames(), " or "))
	}
	return engine, nil
}

// EngineNames lists the registered engines in a stable order.
func EngineNames() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForEach drives a fresh stream from c to completion, invoking handler for
// every message in delivery order. It stops at the first handler or stream
// error and propagates it; reaching the idle-timeout end of the stream is
// success.
func ForEach(ctx context.Context, c Consumer, handler func(context.Context, Message) error) error {
	stream, err := c.Stream(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		msg, err := stream.Next(ctx)
		if errors.Is(err, ErrDone) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
}
