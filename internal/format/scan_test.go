package format

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/neverchanje/kafcat/internal/kafka"
)

func drain(t *testing.T, s *Scanner) []kafka.Message {
	t.Helper()

	var msgs []kafka.Message
	for {
		msg, err := s.Next()
		if errors.Is(err, io.EOF) {
			return msgs
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		msgs = append(msgs, msg)
	}
}

func TestScannerLines(t *testing.T) {
	s := NewScanner(strings.NewReader("a\nb\nc"), ScanConfig{})

	msgs := drain(t, s)
	if len(msgs) != 3 {
		t.Fatalf("scanned %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(msgs[i].Payload) != want {
			t.Fatalf("payload[%d] = %q, want %q", i, msgs[i].Payload, want)
		}
		if msgs[i].Key != nil {
			t.Fatalf("key[%d] = %q, want nil", i, msgs[i].Key)
		}
	}

	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Next() after drain error = %v, want io.EOF", err)
	}
}

func TestScannerEmptyInput(t *testing.T) {
	s := NewScanner(strings.NewReader(""), ScanConfig{})
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Next() error = %v, want io.EOF", err)
	}
}

func TestScannerKeyDelimiter(t *testing.T) {
	s := NewScanner(strings.NewReader("k1=v1\nplain\n"), ScanConfig{KeyDelimiter: "="})

	msgs := drain(t, s)
	if len(msgs) != 2 {
		t.Fatalf("scanned %d messages, want 2", len(msgs))
	}
	if string(msgs[0].Key) != "k1" || string(msgs[0].Payload) != "v1" {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if msgs[1].Key != nil || string(msgs[1].Payload) != "plain" {
		t.Fatalf("record without delimiter = %+v", msgs[1])
	}
}

func TestScannerStaticKey(t *testing.T) {
	s := NewScanner(strings.NewReader("v1\nv2\n"), ScanConfig{Key: []byte("static")})

	msgs := drain(t, s)
	if len(msgs) != 2 {
		t.Fatalf("scanned %d messages, want 2", len(msgs))
	}
	for i, msg := range msgs {
		if string(msg.Key) != "static" {
			t.Fatalf("key[%d] = %q, want %q", i, msg.Key, "static")
		}
	}
}

func TestScannerStaticKeyIgnoredWithKeyDelimiter(t *testing.T) {
	s := NewScanner(strings.NewReader("plain\n"), ScanConfig{KeyDelimiter: "=", Key: []byte("static")})

	msg, err := s.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if msg.Key != nil {
		t.Fatalf("key = %q, want nil", msg.Key)
	}
}

func TestScannerCustomMsgDelimiter(t *testing.T) {
	s := NewScanner(strings.NewReader("a;;b;;c"), ScanConfig{MsgDelimiter: ";;"})

	msgs := drain(t, s)
	if len(msgs) != 3 {
		t.Fatalf("scanned %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(msgs[i].Payload) != want {
			t.Fatalf("payload[%d] = %q, want %q", i, msgs[i].Payload, want)
		}
	}
}

func TestScannerMultilineRecords(t *testing.T) {
	s := NewScanner(strings.NewReader("line1\nline2;;line3"), ScanConfig{MsgDelimiter: ";;"})

	msgs := drain(t, s)
	if len(msgs) != 2 {
		t.Fatalf("scanned %d messages, want 2", len(msgs))
	}
	if string(msgs[0].Payload) != "line1\nline2" {
		t.Fatalf("payload[0] = %q", msgs[0].Payload)
	}
}

func TestScannerCopiesBuffers(t *testing.T) {
	input := strings.Repeat("x", 100) + "\n" + strings.Repeat("y", 100) + "\n"
	s := NewScanner(strings.NewReader(input), ScanConfig{})

	msgs := drain(t, s)
	if len(msgs) != 2 {
		t.Fatalf("scanned %d messages, want 2", len(msgs))
	}
	// The first payload must survive scanning the second.
	if string(msgs[0].Payload) != strings.Repeat("x", 100) {
		t.Fatalf("first payload was clobbered")
	}
}

func TestScannerRoundTripsTextOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	f := NewTextFormatter(buf, "=", "\n")

	in := []kafka.Message{
		{Key: []byte("k1"), Payload: []byte("v1")},
		{Key: []byte{}, Payload: []byte("v2")},
	}
	for _, msg := range in {
		if err := f.Write(msg); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	s := NewScanner(buf, ScanConfig{KeyDelimiter: "="})
	msgs := drain(t, s)
	if len(msgs) != len(in) {
		t.Fatalf("scanned %d messages, want %d", len(msgs), len(in))
	}
	for i, msg := range msgs {
		if string(msg.Key) != string(in[i].Key) || string(msg.Payload) != string(in[i].Payload) {
			t.Fatalf("message[%d] = %+v, want %+v", i, msg, in[i])
		}
	}
}
