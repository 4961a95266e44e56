package kafka

import "sort"

// Message is the canonical in-memory form of a Kafka record, independent of
// the engine that produced or will carry it.
//
// Consumers never return nil Key or Payload: a record with an absent field
// normalizes to an empty slice. Producers treat a zero-length Key or Payload
// as absent and omit the field from the outgoing record, so an empty-bytes
// key cannot be round-tripped through produce and consume.
type Message struct {
	Key     []byte
	Payload []byte
	// Timestamp is milliseconds since the Unix epoch, as reported by the
	// broker. It is informational on the consume side and ignored by
	// producers.
	Timestamp int64
	Headers   map[string][]byte
}

// copyBytes detaches b from an engine-owned buffer. The result is never nil.
func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// headerKeys returns the header names in a stable order so produced records
// do not depend on map iteration.
func headerKeys(headers map[string][]byte) []string {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
