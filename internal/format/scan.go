package format

import (
	"bufio"
	"bytes"
	"io"

	"github.com/neverchanje/kafcat/internal/kafka"
)

const (
	initialScanBuffer = 64 * 1024
	// maxMessageSize caps a single scanned record. Brokers rarely accept
	// anything larger than a few megabytes.
	maxMessageSize = 16 * 1024 * 1024
)

// ScanConfig controls how raw input is split into messages.
type ScanConfig struct {
	// MsgDelimiter separates records. Defaults to a newline.
	MsgDelimiter string
	// KeyDelimiter separates the key from the payload within a record.
	// Records without the delimiter become payload-only messages.
	KeyDelimiter string
	// Key is a static key attached to every message. Ignored when
	// KeyDelimiter is set.
	Key []byte
}

// Scanner reads delimited records from an input stream and turns them into
// messages ready to produce.
type Scanner struct {
	sc       *bufio.Scanner
	keyDelim []byte
	key      []byte
}

// NewScanner creates a scanner over r splitting per cfg.
func NewScanner(r io.Reader, cfg ScanConfig) *Scanner {
	msgDelim := cfg.MsgDelimiter
	if msgDelim == "" {
		msgDelim = "\n"
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, initialScanBuffer), maxMessageSize)
	if msgDelim == "\n" {
		sc.Split(bufio.ScanLines)
	} else {
		sc.Split(splitOn([]byte(msgDelim)))
	}

	s := &Scanner{sc: sc, keyDelim: []byte(cfg.KeyDelimiter)}
	if len(s.keyDelim) == 0 && len(cfg.Key) > 0 {
		s.key = append([]byte(nil), cfg.Key...)
	}
	return s
}

// Next returns the next message, or io.EOF once the input is drained. The
// returned buffers are copies and stay valid across calls.
func (s *Scanner) Next() (kafka.Message, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return kafka.Message{}, err
		}
		return kafka.Message{}, io.EOF
	}

	record := s.sc.Bytes()
	var msg kafka.Message

	if len(s.keyDelim) > 0 {
		if key, payload, ok := bytes.Cut(record, s.keyDelim); ok {
			msg.Key = append([]byte(nil), key...)
			msg.Payload = append([]byte(nil), payload...)
			return msg, nil
		}
	}

	if len(s.key) > 0 {
		msg.Key = append([]byte(nil), s.key...)
	}
	msg.Payload = append([]byte(nil), record...)
	return msg, nil
}

// splitOn is a bufio.SplitFunc for an arbitrary record separator. The final
// record does not need a trailing separator.
func splitOn(sep []byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.Index(data, sep); i >= 0 {
			return i + len(sep), data[:i], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
