package kafka

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

// scriptedConsumer yields a fixed message sequence and then a terminal
// error, exercising the engine-neutral plumbing without a broker.
type scriptedConsumer struct {
	mu       sync.Mutex
	msgs     []Message
	finalErr error
	releases int
}

func (c *scriptedConsumer) Assign(ctx context.Context, spec OffsetSpec) error { return nil }

func (c *scriptedConsumer) ReceiveOne(ctx context.Context) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poll(ctx, 0)
}

func (c *scriptedConsumer) Watermarks(ctx context.Context) (int64, int64, error) {
	return 0, int64(len(c.msgs)), nil
}

func (c *scriptedConsumer) Stream(ctx context.Context) (MessageStream, error) {
	c.mu.Lock()
	return newConnStream(time.Millisecond, c.poll, c.release), nil
}

func (c *scriptedConsumer) release() {
	c.releases++
	c.mu.Unlock()
}

func (c *scriptedConsumer) Close() error { return nil }

func (c *scriptedConsumer) poll(ctx context.Context, idle time.Duration) (Message, error) {
	if len(c.msgs) == 0 {
		if c.finalErr != nil {
			return Message{}, c.finalErr
		}
		return Message{}, ErrDone
	}
	msg := c.msgs[0]
	c.msgs = c.msgs[1:]
	return msg, nil
}

func TestForEachDrainsStream(t *testing.T) {
	want := []Message{
		{Key: []byte("k1"), Payload: []byte("v1"), Timestamp: 100},
		{Key: []byte("k2"), Payload: []byte("v2"), Timestamp: 200},
		{Key: []byte{}, Payload: []byte("v3"), Timestamp: 300},
	}
	consumer := &scriptedConsumer{msgs: append([]Message(nil), want...)}

	var got []Message
	err := ForEach(context.Background(), consumer, func(_ context.Context, msg Message) error {
		got = append(got, msg)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ForEach() collected %+v, want %+v", got, want)
	}
	if consumer.releases != 1 {
		t.Fatalf("stream released %d times, want 1", consumer.releases)
	}
}

func TestForEachPropagatesHandlerError(t *testing.T) {
	handlerErr := errors.New("handler failed")
	consumer := &scriptedConsumer{msgs: []Message{{Payload: []byte("v1")}, {Payload: []byte("v2")}}}

	calls := 0
	err := ForEach(context.Background(), consumer, func(_ context.Context, msg Message) error {
		calls++
		return handlerErr
	})
	if !errors.Is(err, handlerErr) {
		t.Fatalf("ForEach() error = %v, want %v", err, handlerErr)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
	if consumer.releases != 1 {
		t.Fatalf("stream released %d times, want 1", consumer.releases)
	}
}

func TestForEachPropagatesStreamError(t *testing.T) {
	streamErr := wrapFranzErr("poll", errors.New("boom"))
	consumer := &scriptedConsumer{msgs: []Message{{Payload: []byte("v1")}}, finalErr: streamErr}

	var got []Message
	err := ForEach(context.Background(), consumer, func(_ context.Context, msg Message) error {
		got = append(got, msg)
		return nil
	})
	if !errors.Is(err, ErrBroker) {
		t.Fatalf("ForEach() error = %v, want ErrBroker", err)
	}
	if len(got) != 1 {
		t.Fatalf("collected %d messages before the failure, want 1", len(got))
	}
}

func TestForEachReleasesLease(t *testing.T) {
	consumer := &scriptedConsumer{}

	if err := ForEach(context.Background(), consumer, func(context.Context, Message) error { return nil }); err != nil {
		t.Fatalf("ForEach() error = %v", err)
	}

	// A released lease lets the next operation through.
	if _, err := consumer.ReceiveOne(context.Background()); !errors.Is(err, ErrDone) {
		t.Fatalf("ReceiveOne() after ForEach error = %v, want ErrDone", err)
	}
}

func TestConnStreamClosed(t *testing.T) {
	var mu sync.Mutex
	mu.Lock()
	released := 0
	stream := newConnStream(time.Millisecond, func(context.Context, time.Duration) (Message, error) {
		return Message{}, ErrDone
	}, func() {
		released++
		mu.Unlock()
	})

	if err := stream.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if released != 1 {
		t.Fatalf("release ran %d times, want 1", released)
	}

	if _, err := stream.Next(context.Background()); !errors.Is(err, ErrInvariant) {
		t.Fatalf("Next() on closed stream error = %v, want ErrInvariant", err)
	}
}

func TestLookupEngine(t *testing.T) {
	cases := []struct {
		name     string
		wantName string
		wantErr  bool
	}{
		{"", "franz", false},
		{"franz", "franz", false},
		{"sarama", "sarama", false},
		{"rdkafka", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := LookupEngine(tc.name)
			if tc.wantErr {
				if !errors.Is(err, ErrConfig) {
					t.Fatalf("LookupEngine(%q) error = %v, want ErrConfig", tc.name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LookupEngine(%q) error = %v", tc.name, err)
			}
			if engine.Name() != tc.wantName {
				t.Fatalf("LookupEngine(%q).Name() = %q, want %q", tc.name, engine.Name(), tc.wantName)
			}
		})
	}
}

func TestEngineNames(t *testing.T) {
	want := []string{"franz", "sarama"}
	if got := EngineNames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("EngineNames() = %v, want %v", got, want)
	}
}

func TestCopyBytesNeverNil(t *testing.T) {
	if got := copyBytes(nil); got == nil || len(got) != 0 {
		t.Fatalf("copyBytes(nil) = %v, want empty non-nil slice", got)
	}

	src := []byte("payload")
	got := copyBytes(src)
	if !reflect.DeepEqual(got, src) {
		t.Fatalf("copyBytes() = %q, want %q", got, src)
	}
	src[0] = 'X'
	if got[0] == 'X' {
		t.Fatalf("copyBytes() aliases the source buffer")
	}
}

func TestHeaderKeysSorted(t *testing.T) {
	headers := map[string][]byte{"zeta": nil, "alpha": nil, "mid": nil}
	want := []string{"alpha", "mid", "zeta"}
	if got := headerKeys(headers); !reflect.DeepEqual(got, want) {
		t.Fatalf("headerKeys() = %v, want %v", got, want)
	}
	if got := headerKeys(nil); len(got) != 0 {
		t.Fatalf("headerKeys(nil) = %v, want empty", got)
	}
}
