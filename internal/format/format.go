// Package format renders consumed messages to an output stream and splits
// raw input into messages for producing.
package format

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/neverchanje/kafcat/internal/kafka"
)

// Formatter writes one consumed message per call.
type Formatter interface {
	Write(msg kafka.Message) error
}

// New returns the formatter named by name writing to w. Supported names are
// "text" (the default) and "json".
func New(w io.Writer, name, keyDelim, msgDelim string) (Formatter, error) {
	switch name {
	case "", "text":
		return NewTextFormatter(w, keyDelim, msgDelim), nil
	case "json":
		return NewJSONFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown format %q (expected text or json)", name)
	}
}

// TextFormatter writes messages as delimited text records.
type TextFormatter struct {
	writer   io.Writer
	keyDelim []byte
	msgDelim []byte
}

// NewTextFormatter creates a new text formatter. An empty keyDelim drops keys
// from the output; an empty msgDelim defaults to a newline.
func NewTextFormatter(w io.Writer, keyDelim, msgDelim string) *TextFormatter {
	if msgDelim == "" {
		msgDelim = "\n"
	}
	return &TextFormatter{
		writer:   w,
		keyDelim: []byte(keyDelim),
		msgDelim: []byte(msgDelim),
	}
}

// Write renders the payload followed by the message delimiter. When a key
// delimiter is configured the key is written first, delimited, even if empty,
// so the output can be fed back through a scanner with the same delimiters.
func (f *TextFormatter) Write(msg kafka.Message) error {
	if len(f.keyDelim) > 0 {
		if _, err := f.writer.Write(msg.Key); err != nil {
			return err
		}
		if _, err := f.writer.Write(f.keyDelim); err != nil {
			return err
		}
	}
	if _, err := f.writer.Write(msg.Payload); err != nil {
		return err
	}
	_, err := f.writer.Write(f.msgDelim)
	return err
}

// JSONFormatter writes one JSON object per message, newline separated.
type JSONFormatter struct {
	writer io.Writer
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

type jsonMessage struct {
	Key       string            `json:"key,omitempty"`
	Payload   string            `json:"payload"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// Write renders the message as a single JSON line.
func (f *JSONFormatter) Write(msg kafka.Message) error {
	out := jsonMessage{
		Key:       string(msg.Key),
		Payload:   string(msg.Payload),
		Timestamp: msg.Timestamp,
	}
	if len(msg.Headers) > 0 {
		out.Headers = make(map[string]string, len(msg.Headers))
		for k, v := range msg.Headers {
			out.Headers[k] = string(v)
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	if _, err := f.writer.Write(data); err != nil {
		return err
	}
	_, err = f.writer.Write([]byte("\n"))
	return err
}
