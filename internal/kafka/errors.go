package kafka

import "errors"

// Sentinel errors of the client layer. Engines wrap their native failures
// into exactly one of these so callers can branch with errors.Is without
// knowing which engine produced the failure.
var (
	// ErrConfig marks configuration mistakes caught before any broker is
	// contacted: unsupported security protocols, missing TLS material,
	// malformed offset specifications.
	ErrConfig = errors.New("kafka: invalid configuration")

	// ErrConnect marks a failure to establish the underlying client
	// connection. It is surfaced once at startup and never retried here.
	// Authentication and authorization failures map to ErrConnect as well,
	// since retrying them cannot succeed.
	ErrConnect = errors.New("kafka: connection failed")

	// ErrBroker marks a failed broker round-trip: offset lookups, watermark
	// queries, sends, and mid-stream fetch failures. Callers may choose to
	// retry these; the client layer itself does not.
	ErrBroker = errors.New("kafka: broker request failed")

	// ErrDone signals the normal end of a message stream: the idle timeout
	// elapsed with no message arriving. It is a terminal success state, not
	// a failure.
	ErrDone = errors.New("kafka: stream done")

	// ErrInvariant marks an engine or state inconsistency, such as a broker
	// response missing the partition it was asked about. It indicates a
	// bug, not an operational condition.
	ErrInvariant = errors.New("kafka: invariant violation")
)
