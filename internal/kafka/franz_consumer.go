package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/semaphore"
)

// franzConsumer consumes one topic/partition over a kgo client in direct
// assignment mode: no consumer group session is formed and offsets are never
// committed.
type franzConsumer struct {
	// lease is the connection lease. Every operation holds it; a live stream
	// holds it from Stream until Close. Waiting for it honors the caller's
	// ctx.
	lease  *semaphore.Weighted
	client *kgo.Client
	adm    *kadm.Client
	cfg    ConsumerConfig
	idle   time.Duration
}

func newFranzConsumer(client *kgo.Client, cfg ConsumerConfig) *franzConsumer {
	return &franzConsumer{
		lease:  semaphore.NewWeighted(1),
		client: client,
		adm:    kadm.NewClient(client),
		cfg:    cfg,
		idle:   cfg.idleTimeout(),
	}
}

func (c *franzConsumer) Assign(ctx context.Context, spec OffsetSpec) error {
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

	// Adding an already-consumed partition is a no-op in kgo, so drop any
	// previous assignment first: a second Assign replaces, not accumulates.
	partitions := map[string][]int32{c.cfg.Topic: {c.cfg.Partition}}
	c.client.RemoveConsumePartitions(partitions)
	c.client.AddConsumePartitions(map[string]map[int32]kgo.Offset{
		c.cfg.Topic: {c.cfg.Partition: offset},
	})
	return nil
}

// resolveOffset maps spec onto a kgo offset, issuing a broker round-trip for
// the stored and time-based forms.
func (c *franzConsumer) resolveOffset(ctx context.Context, spec OffsetSpec) (kgo.Offset, error) {
	warnReservedEnd(spec)

	switch spec.Kind {
	case OffsetBeginning:
		return kgo.NewOffset().AtStart(), nil
	case OffsetEnd:
		return kgo.NewOffset().AtEnd(), nil
	case OffsetAbsolute:
		return kgo.NewOffset().At(spec.Value), nil
	case OffsetFromTail:
		return kgo.NewOffset().AtEnd().Relative(spec.Value), nil
	case OffsetRange:
		return kgo.NewOffset().At(spec.Begin), nil
	case OffsetStored:
		return c.storedOffset(ctx)
	case OffsetTimeRange:
		return c.offsetForTime(ctx, spec.Begin)
	default:
		return kgo.Offset{}, fmt.Errorf("%w: unhandled offset kind %d", ErrInvariant, spec.Kind)
	}
}

func (c *franzConsumer) storedOffset(ctx context.Context) (kgo.Offset, error) {
	if c.cfg.GroupID == "" {
		return kgo.Offset{}, fmt.Errorf("%w: stored offsets require a group id", ErrConfig)
	}

	ctx, cancel := context.WithTimeout(ctx, ResolveTimeout)
	defer cancel()

	committed, err := c.adm.FetchOffsets(ctx, c.cfg.GroupID)
	if err != nil {
		return kgo.Offset{}, wrapFranzErr(fmt.Sprintf("fetch committed offsets for group %q", c.cfg.GroupID), err)
	}

	resp, ok := committed.Lookup(c.cfg.Topic, c.cfg.Partition)
	if ok && resp.Err != nil {
		return kgo.Offset{}, wrapFranzErr(fmt.Sprintf("committed offset for %q[%d]", c.cfg.Topic, c.cfg.Partition), resp.Err)
	}
	if !ok || resp.At < 0 {
		// Nothing committed for this partition yet: start at the tail.
		return kgo.NewOffset().AtEnd(), nil
	}
	return kgo.NewOffset().At(resp.At), nil
}

func (c *franzConsumer) offsetForTime(ctx context.Context, millis int64) (kgo.Offset, error) {
	ctx, cancel := context.WithTimeout(ctx, ResolveTimeout)
	defer cancel()

	listed, err := c.adm.ListOffsetsAfterMilli(ctx, millis, c.cfg.Topic)
	if err != nil {
		return kgo.Offset{}, wrapFranzErr(fmt.Sprintf("offsets for time %d on %q", millis, c.cfg.Topic), err)
	}

	offset, ok := listed.Lookup(c.cfg.Topic, c.cfg.Partition)
	if !ok {
		// The broker answered for the topic but not the partition we asked
		// about. Fail instead of guessing a default.
		return kgo.Offset{}, fmt.Errorf("%w: offsets-for-times response is missing %q[%d]", ErrInvariant, c.cfg.Topic, c.cfg.Partition)
	}
	if offset.Err != nil {
		return kgo.Offset{}, wrapFranzErr(fmt.Sprintf("offsets for time %d on %q[%d]", millis, c.cfg.Topic, c.cfg.Partition), offset.Err)
	}
	if offset.Offset < 0 {
		// No message at or after the requested time: start at the tail.
		return kgo.NewOffset().AtEnd(), nil
	}
	return kgo.NewOffset().At(offset.Offset), nil
}

func (c *franzConsumer) ReceiveOne(ctx context.Context) (Message, error) {
	if err := c.lease.Acquire(ctx, 1); err != nil {
		return Message{}, err
	}
	defer c.lease.Release(1)
	return c.poll(ctx, 0)
}

// poll pulls a single record. idle > 0 bounds the wait and maps its expiry
// to ErrDone; idle == 0 waits until ctx is done. Expiry of the caller's own
// ctx always propagates as-is, never as ErrDone.
func (c *franzConsumer) poll(ctx context.Context, idle time.Duration) (Message, error) {
	pollCtx := ctx
	if idle > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, idle)
		defer cancel()
	}

	for {
		fetches := c.client.PollRecords(pollCtx, 1)
		if fetches.IsClientClosed() {
			return Message{}, fmt.Errorf("%w: client closed", ErrBroker)
		}

		// A fetch carrying both a record and an error yields the record;
		// a persistent error resurfaces on the next poll.
		iter := fetches.RecordIter()
		if !iter.Done() {
			return messageFromFranz(iter.Next()), nil
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			err := errs[0].Err
			switch {
			case ctx.Err() != nil:
				return Message{}, ctx.Err()
			case errors.Is(err, context.DeadlineExceeded):
				return Message{}, ErrDone
			default:
				return Message{}, wrapFranzErr(fmt.Sprintf("poll %q[%d]", c.cfg.Topic, c.cfg.Partition), err)
			}
		}
	}
}

func messageFromFranz(rec *kgo.Record) Message {
	msg := Message{
		Key:       copyBytes(rec.Key),
		Payload:   copyBytes(rec.Value),
		Timestamp: rec.Timestamp.UnixMilli(),
	}
	if len(rec.Headers) > 0 {
		msg.Headers = make(map[string][]byte, len(rec.Headers))
		for _, h := range rec.Headers {
			msg.Headers[h.Key] = copyBytes(h.Value)
		}
	}
	return msg
}

func (c *franzConsumer) Watermarks(ctx context.Context) (int64, int64, error) {
	if err := c.lease.Acquire(ctx, 1); err != nil {
		return 0, 0, err
	}
	defer c.lease.Release(1)

	ctx, cancel := context.WithTimeout(ctx, WatermarkTimeout)
	defer cancel()

	starts, err := c.adm.ListStartOffsets(ctx, c.cfg.Topic)
	if err != nil {
		return 0, 0, wrapFranzErr(fmt.Sprintf("list start offsets for %q", c.cfg.Topic), err)
	}
	low, err := lookupListedOffset(starts, c.cfg.Topic, c.cfg.Partition)
	if err != nil {
		return 0, 0, err
	}

	ends, err := c.adm.ListEndOffsets(ctx, c.cfg.Topic)
	if err != nil {
		return 0, 0, wrapFranzErr(fmt.Sprintf("list end offsets for %q", c.cfg.Topic), err)
	}
	high, err := lookupListedOffset(ends, c.cfg.Topic, c.cfg.Partition)
	if err != nil {
		return 0, 0, err
	}

	return low, high, nil
}

func lookupListedOffset(listed kadm.ListedOffsets, topic string, partition int32) (int64, error) {
	offset, ok := listed.Lookup(topic, partition)
	if !ok {
		return 0, fmt.Errorf("%w: listed offsets response is missing %q[%d]", ErrInvariant, topic, partition)
	}
	if offset.Err != nil {
		return 0, wrapFranzErr(fmt.Sprintf("listed offset for %q[%d]", topic, partition), offset.Err)
	}
	return offset.Offset, nil
}

func (c *franzConsumer) Stream(ctx context.Context) (MessageStream, error) {
	if err := c.lease.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return newConnStream(c.idle, c.poll, func() { c.lease.Release(1) }), nil
}

func (c *franzConsumer) Close() error {
	// Close carries no ctx, so it waits out whichever operation or stream
	// still holds the lease.
	_ = c.lease.Acquire(context.Background(), 1)
	defer c.lease.Release(1)
	c.client.Close()
	return nil
}
