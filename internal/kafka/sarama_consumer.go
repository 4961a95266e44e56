package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"golang.org/x/sync/semaphore"
)

// saramaConsumer consumes one topic/partition. Assignment replaces the
// underlying PartitionConsumer; offsets are never committed.
type saramaConsumer struct {
	// lease is the connection lease. Every operation holds it; a live stream
	// holds it from Stream until Close. Waiting for it honors the caller's
	// ctx.
	lease    *semaphore.Weighted
	client   sarama.Client
	consumer sarama.Consumer
	// partition is the current assignment, nil before the first Assign.
	partition sarama.PartitionConsumer
	cfg       ConsumerConfig
	idle      time.Duration
}

func newSaramaConsumer(client sarama.Client, consumer sarama.Consumer, cfg ConsumerConfig) *saramaConsumer {
	return &saramaConsumer{
		lease:    semaphore.NewWeighted(1),
		client:   client,
		consumer: consumer,
		cfg:      cfg,
		idle:     cfg.idleTimeout(),
	}
}

func (c *saramaConsumer) Assign(ctx context.Context, spec OffsetSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	if err := c.lease.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.lease.Release(1)

	offset, err := c.resolveOffset(ctx, spec)
	if err != nil {
		return err
	}

	slog.Debug("assigning partition",
		"topic", c.cfg.Topic,
		"partition", c.cfg.Partition,
		"offset", spec.String(),
	)

	if c.partition != nil {
		if err := c.partition.Close(); err != nil {
			return wrapSaramaErr("close previous assignment", err)
		}
		c.partition = nil
	}

	pc, err := c.consumer.ConsumePartition(c.cfg.Topic, c.cfg.Partition, offset)
	if err != nil {
		return wrapSaramaErr(fmt.Sprintf("assign %q[%d] at %d", c.cfg.Topic, c.cfg.Partition, offset), err)
	}
	c.partition = pc
	return nil
}

// resolveOffset maps spec onto a concrete sarama offset, or one of the
// sentinel values sarama.OffsetOldest / sarama.OffsetNewest.
func (c *saramaConsumer) resolveOffset(ctx context.Context, spec OffsetSpec) (int64, error) {
	warnReservedEnd(spec)

	switch spec.Kind {
	case OffsetBeginning:
		return sarama.OffsetOldest, nil
	case OffsetEnd:
		return sarama.OffsetNewest, nil
	case OffsetAbsolute:
		return spec.Value, nil
	case OffsetRange:
		return spec.Begin, nil
	case OffsetFromTail:
		return c.tailOffset(ctx, spec.Value)
	case OffsetStored:
		return c.storedOffset(ctx)
	case OffsetTimeRange:
		return c.offsetForTime(ctx, spec.Begin)
	default:
		return 0, fmt.Errorf("%w: unhandled offset kind %d", ErrInvariant, spec.Kind)
	}
}

// lookupOffset runs a blocking engine call on its own goroutine and awaits
// it under ctx, so a stuck broker round-trip cannot pin the caller past the
// timeout. The call's result is discarded if the deadline fires first.
func (c *saramaConsumer) lookupOffset(ctx context.Context, timeout time.Duration, op string, fn func() (int64, error)) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		offset int64
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		offset, err := fn()
		ch <- result{offset, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return 0, wrapSaramaErr(op, r.err)
		}
		return r.offset, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %s: %w", ErrBroker, op, ctx.Err())
	}
}

// tailOffset resolves a negative tail-relative offset, -1 being the most
// recent message. The result is clamped to the low watermark so a tail
// distance longer than the partition falls back to the beginning.
func (c *saramaConsumer) tailOffset(ctx context.Context, rel int64) (int64, error) {
	high, err := c.lookupOffset(ctx, ResolveTimeout, "list end offset", func() (int64, error) {
		return c.client.GetOffset(c.cfg.Topic, c.cfg.Partition, sarama.OffsetNewest)
	})
	if err != nil {
		return 0, err
	}
	low, err := c.lookupOffset(ctx, ResolveTimeout, "list start offset", func() (int64, error) {
		return c.client.GetOffset(c.cfg.Topic, c.cfg.Partition, sarama.OffsetOldest)
	})
	if err != nil {
		return 0, err
	}
	return clampTail(rel, low, high), nil
}

func clampTail(rel, low, high int64) int64 {
	offset := high + rel
	if offset < low {
		return low
	}
	return offset
}

func (c *saramaConsumer) storedOffset(ctx context.Context) (int64, error) {
	if c.cfg.GroupID == "" {
		return 0, fmt.Errorf("%w: stored offsets require a group id", ErrConfig)
	}

	// NextOffset falls back to Consumer.Offsets.Initial (the tail) when the
	// group has no commit for this partition.
	return c.lookupOffset(ctx, ResolveTimeout, "fetch committed offset", func() (int64, error) {
		om, err := sarama.NewOffsetManagerFromClient(c.cfg.GroupID, c.client)
		if err != nil {
			return 0, err
		}
		defer om.Close()

		pom, err := om.ManagePartition(c.cfg.Topic, c.cfg.Partition)
		if err != nil {
			return 0, err
		}
		defer pom.Close()

		offset, _ := pom.NextOffset()
		return offset, nil
	})
}

func (c *saramaConsumer) offsetForTime(ctx context.Context, millis int64) (int64, error) {
	offset, err := c.lookupOffset(ctx, ResolveTimeout, fmt.Sprintf("offsets for time %d", millis), func() (int64, error) {
		return c.client.GetOffset(c.cfg.Topic, c.cfg.Partition, millis)
	})
	if err != nil {
		return 0, err
	}
	if offset < 0 {
		// No message at or after the requested time: start at the tail.
		return sarama.OffsetNewest, nil
	}
	return offset, nil
}

func (c *saramaConsumer) ReceiveOne(ctx context.Context) (Message, error) {
	if err := c.lease.Acquire(ctx, 1); err != nil {
		return Message{}, err
	}
	defer c.lease.Release(1)
	return c.receive(ctx, 0)
}

// receive waits for one message. idle > 0 bounds the wait and maps its
// expiry to ErrDone; idle == 0 waits until ctx is done. Expiry of the
// caller's own ctx always propagates as-is, never as ErrDone.
func (c *saramaConsumer) receive(ctx context.Context, idle time.Duration) (Message, error) {
	// Nil channels block forever, so an unassigned consumer just idles out.
	var msgs <-chan *sarama.ConsumerMessage
	var consumeErrs <-chan *sarama.ConsumerError
	if c.partition != nil {
		msgs = c.partition.Messages()
		consumeErrs = c.partition.Errors()
	}

	var idleC <-chan time.Time
	if idle > 0 {
		timer := time.NewTimer(idle)
		defer timer.Stop()
		idleC = timer.C
	}

	select {
	case m, ok := <-msgs:
		if !ok {
			return Message{}, fmt.Errorf("%w: partition consumer closed", ErrBroker)
		}
		return messageFromSarama(m), nil
	case e, ok := <-consumeErrs:
		if !ok {
			return Message{}, fmt.Errorf("%w: partition consumer closed", ErrBroker)
		}
		return Message{}, wrapSaramaErr(fmt.Sprintf("consume %q[%d]", c.cfg.Topic, c.cfg.Partition), e.Err)
	case <-idleC:
		return Message{}, ErrDone
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func messageFromSarama(m *sarama.ConsumerMessage) Message {
	msg := Message{
		Key:       copyBytes(m.Key),
		Payload:   copyBytes(m.Value),
		Timestamp: m.Timestamp.UnixMilli(),
	}
	if len(m.Headers) > 0 {
		msg.Headers = make(map[string][]byte, len(m.Headers))
		for _, h := range m.Headers {
			if h == nil {
				continue
			}
			msg.Headers[string(h.Key)] = copyBytes(h.Value)
		}
	}
	return msg
}

func (c *saramaConsumer) Watermarks(ctx context.Context) (int64, int64, error) {
	if err := c.lease.Acquire(ctx, 1); err != nil {
		return 0, 0, err
	}
	defer c.lease.Release(1)

	low, err := c.lookupOffset(ctx, WatermarkTimeout, "list start offset", func() (int64, error) {
		return c.client.GetOffset(c.cfg.Topic, c.cfg.Partition, sarama.OffsetOldest)
	})
	if err != nil {
		return 0, 0, err
	}
	high, err := c.lookupOffset(ctx, WatermarkTimeout, "list end offset", func() (int64, error) {
		return c.client.GetOffset(c.cfg.Topic, c.cfg.Partition, sarama.OffsetNewest)
	})
	if err != nil {
		return 0, 0, err
	}
	return low, high, nil
}

func (c *saramaConsumer) Stream(ctx context.Context) (MessageStream, error) {
	if err := c.lease.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return newConnStream(c.idle, c.receive, func() { c.lease.Release(1) }), nil
}

func (c *saramaConsumer) Close() error {
	// Close carries no ctx, so it waits out whichever operation or stream
	// still holds the lease.
	_ = c.lease.Acquire(context.Background(), 1)
	defer c.lease.Release(1)

	var errs []error
	if c.partition != nil {
		if err := c.partition.Close(); err != nil {
			errs = append(errs, err)
		}
		c.partition = nil
	}
	if err := c.consumer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
