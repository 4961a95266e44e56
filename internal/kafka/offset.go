package kafka

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// OffsetKind enumerates the forms an OffsetSpec can take.
type OffsetKind uint8

const (
	// OffsetBeginning selects the earliest available offset.
	OffsetBeginning OffsetKind = iota
	// OffsetEnd selects the next offset that will be written.
	OffsetEnd
	// OffsetStored selects the offset last committed by the consumer group.
	OffsetStored
	// OffsetAbsolute selects the exact offset in Value.
	OffsetAbsolute
	// OffsetFromTail selects an offset relative to the partition tail.
	// Value is negative: -1 is the most recent message, -2 the one before.
	OffsetFromTail
	// OffsetRange starts from the Begin offset.
	OffsetRange
	// OffsetTimeRange starts from the first offset whose timestamp is at or
	// after Begin milliseconds since the Unix epoch, resolved broker-side.
	OffsetTimeRange
)

// OffsetSpec names a logical position in a partition. The zero value selects
// the beginning of the partition.
//
// For the range kinds only the Begin bound is honored today; End is parsed
// and kept (negative when absent) but resolution warns and ignores it.
type OffsetSpec struct {
	Kind  OffsetKind
	Value int64
	Begin int64
	End   int64
}

// ParseOffsetSpec parses the CLI offset syntax:
//
//	beginning | end | stored
//	<n>           absolute offset
//	-<n>          from the tail, -1 being the most recent message
//	<b>..[<e>]    offset range
//	s@<ms>[..e@<ms>]   time range in milliseconds since the epoch
func ParseOffsetSpec(input string) (OffsetSpec, error) {
	trimmed := strings.TrimSpace(input)
	switch trimmed {
	case "":
		return OffsetSpec{}, fmt.Errorf("%w: empty offset", ErrConfig)
	case "beginning":
		return OffsetSpec{Kind: OffsetBeginning}, nil
	case "end":
		return OffsetSpec{Kind: OffsetEnd}, nil
	case "stored":
		return OffsetSpec{Kind: OffsetStored}, nil
	}

	if rest, ok := strings.CutPrefix(trimmed, "s@"); ok {
		return parseTimeRange(input, rest)
	}
	if begin, end, ok := strings.Cut(trimmed, ".."); ok {
		return parseOffsetRange(input, begin, end)
	}

	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return OffsetSpec{}, fmt.Errorf("%w: invalid offset %q", ErrConfig, input)
	}
	spec := OffsetSpec{Kind: OffsetAbsolute, Value: value}
	if value < 0 {
		spec.Kind = OffsetFromTail
	}
	return spec, spec.Validate()
}

func parseTimeRange(input, rest string) (OffsetSpec, error) {
	spec := OffsetSpec{Kind: OffsetTimeRange, End: -1}

	beginPart, endPart, hasEnd := strings.Cut(rest, "..")
	begin, err := strconv.ParseInt(beginPart, 10, 64)
	if err != nil {
		return OffsetSpec{}, fmt.Errorf("%w: invalid time offset %q", ErrConfig, input)
	}
	spec.Begin = begin

	if hasEnd {
		millis, ok := strings.CutPrefix(endPart, "e@")
		if !ok {
			return OffsetSpec{}, fmt.Errorf("%w: time range end must use e@<ms> in %q", ErrConfig, input)
		}
		end, err := strconv.ParseInt(millis, 10, 64)
		if err != nil {
			return OffsetSpec{}, fmt.Errorf("%w: invalid time offset %q", ErrConfig, input)
		}
		// Negative End doubles as the no-end sentinel, so a negative explicit
		// end cannot be represented and must not pass as unbounded.
		if end < 0 {
			return OffsetSpec{}, fmt.Errorf("%w: time range end must not be negative in %q", ErrConfig, input)
		}
		spec.End = end
	}

	return spec, spec.Validate()
}

func parseOffsetRange(input, beginPart, endPart string) (OffsetSpec, error) {
	spec := OffsetSpec{Kind: OffsetRange, End: -1}

	begin, err := strconv.ParseInt(beginPart, 10, 64)
	if err != nil {
		return OffsetSpec{}, fmt.Errorf("%w: invalid offset range %q", ErrConfig, input)
	}
	spec.Begin = begin

	if endPart != "" {
		end, err := strconv.ParseInt(endPart, 10, 64)
		if err != nil {
			return OffsetSpec{}, fmt.Errorf("%w: invalid offset range %q", ErrConfig, input)
		}
		// Negative End doubles as the no-end sentinel, so a negative explicit
		// end cannot be represented and must not pass as unbounded.
		if end < 0 {
			return OffsetSpec{}, fmt.Errorf("%w: offset range end must not be negative in %q", ErrConfig, input)
		}
		spec.End = end
	}

	return spec, spec.Validate()
}

// Validate checks the internal consistency of the spec.
func (s OffsetSpec) Validate() error {
	switch s.Kind {
	case OffsetBeginning, OffsetEnd, OffsetStored:
		return nil
	case OffsetAbsolute:
		if s.Value < 0 {
			return fmt.Errorf("%w: absolute offset must not be negative, got %d", ErrConfig, s.Value)
		}
	case OffsetFromTail:
		if s.Value >= 0 {
			return fmt.Errorf("%w: tail-relative offset must be negative, got %d", ErrConfig, s.Value)
		}
	case OffsetRange:
		if s.Begin < 0 {
			return fmt.Errorf("%w: offset range must begin at or after 0, got %d", ErrConfig, s.Begin)
		}
	case OffsetTimeRange:
		if s.Begin < 0 {
			return fmt.Errorf("%w: time range must begin at or after the epoch, got %d", ErrConfig, s.Begin)
		}
	default:
		return fmt.Errorf("%w: unknown offset kind %d", ErrConfig, s.Kind)
	}
	return nil
}

// String renders the spec in the syntax ParseOffsetSpec accepts.
func (s OffsetSpec) String() string {
	switch s.Kind {
	case OffsetBeginning:
		return "beginning"
	case OffsetEnd:
		return "end"
	case OffsetStored:
		return "stored"
	case OffsetAbsolute, OffsetFromTail:
		return strconv.FormatInt(s.Value, 10)
	case OffsetRange:
		if s.End < 0 {
			return strconv.FormatInt(s.Begin, 10) + ".."
		}
		return strconv.FormatInt(s.Begin, 10) + ".." + strconv.FormatInt(s.End, 10)
	case OffsetTimeRange:
		if s.End < 0 {
			return "s@" + strconv.FormatInt(s.Begin, 10)
		}
		return "s@" + strconv.FormatInt(s.Begin, 10) + "..e@" + strconv.FormatInt(s.End, 10)
	default:
		return fmt.Sprintf("offset(kind=%d)", s.Kind)
	}
}

// warnReservedEnd notes an end bound the engines do not enforce yet, so a
// bounded range is never silently truncated to an unbounded one.
func warnReservedEnd(spec OffsetSpec) {
	if (spec.Kind == OffsetRange || spec.Kind == OffsetTimeRange) && spec.End >= 0 {
		slog.Warn("offset range end bounds are not supported; consuming without a stop offset", "offset", spec.String())
	}
}
