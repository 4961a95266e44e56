package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/neverchanje/kafcat/internal/kafka"
)

func TestTextFormatterOutput(t *testing.T) {
	cases := []struct {
		name     string
		keyDelim string
		msgDelim string
		msg      kafka.Message
		want     string
	}{
		{
			name: "payload-only",
			msg:  kafka.Message{Key: []byte("k"), Payload: []byte("v")},
			want: "v\n",
		},
		{
			name:     "key-delimited",
			keyDelim: ";",
			msg:      kafka.Message{Key: []byte("k"), Payload: []byte("v")},
			want:     "k;v\n",
		},
		{
			name:     "empty-key-still-delimited",
			keyDelim: ";",
			msg:      kafka.Message{Payload: []byte("v")},
			want:     ";v\n",
		},
		{
			name:     "custom-message-delimiter",
			msgDelim: "||",
			msg:      kafka.Message{Payload: []byte("v")},
			want:     "v||",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := NewTextFormatter(buf, tc.keyDelim, tc.msgDelim)
			if err := f.Write(tc.msg); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if buf.String() != tc.want {
				t.Fatalf("output = %q, want %q", buf.String(), tc.want)
			}
		})
	}
}

func TestJSONFormatterOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	f := NewJSONFormatter(buf)

	msg := kafka.Message{
		Key:       []byte("k1"),
		Payload:   []byte("v1"),
		Timestamp: 1600000000000,
		Headers:   map[string][]byte{"trace": []byte("abc")},
	}
	if err := f.Write(msg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("expected trailing newline")
	}

	var decoded jsonMessage
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if decoded.Key != "k1" || decoded.Payload != "v1" {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.Timestamp != 1600000000000 {
		t.Fatalf("timestamp = %d", decoded.Timestamp)
	}
	if decoded.Headers["trace"] != "abc" {
		t.Fatalf("headers = %v", decoded.Headers)
	}
}

func TestJSONFormatterOmitsEmptyFields(t *testing.T) {
	buf := &bytes.Buffer{}
	f := NewJSONFormatter(buf)

	if err := f.Write(kafka.Message{Payload: []byte("v")}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out := buf.String()
	if strings.Contains(out, `"key"`) {
		t.Fatalf("empty key not omitted: %s", out)
	}
	if strings.Contains(out, `"headers"`) {
		t.Fatalf("empty headers not omitted: %s", out)
	}
	if strings.Contains(out, `"timestamp"`) {
		t.Fatalf("zero timestamp not omitted: %s", out)
	}
}

func TestNewFormatter(t *testing.T) {
	cases := []struct {
		name    string
		format  string
		wantErr bool
	}{
		{name: "default", format: "", wantErr: false},
		{name: "text", format: "text", wantErr: false},
		{name: "json", format: "json", wantErr: false},
		{name: "unknown", format: "xml", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := New(&bytes.Buffer{}, tc.format, "", "")
			if (err != nil) != tc.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tc.format, err, tc.wantErr)
			}
			if !tc.wantErr && f == nil {
				t.Fatalf("New(%q) returned nil formatter", tc.format)
			}
		})
	}
}
