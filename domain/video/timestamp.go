package video

import (
	"fmt"
	"regexp"
	"strconv"
)

// Timestamp represents a media position in HH:MM:SS[.mmm] form
type Timestamp struct {
	Hours        int
	Minutes      int
	Seconds      int
	Milliseconds int
}

// timestampRegex matches HH:MM:SS with an optional .mmm fraction
var timestampRegex = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})(?:\.(\d{1,3}))?$`)

// millisRegex matches a bare millisecond count
var millisRegex = regexp.MustCompile(`^\d+$`)

// ParseTimestamp parses "HH:MM:SS", "HH:MM:SS.mmm" or a bare millisecond count
func ParseTimestamp(s string) (Timestamp, error) {
	if millisRegex.MatchString(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return TimestampFromMillis(ms), nil
	}

	matches := timestampRegex.FindStringSubmatch(s)
	if matches == nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp format %q: expected HH:MM:SS[.mmm] or milliseconds", s)
	}

	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.Atoi(matches[3])

	millis := 0
	if frac := matches[4]; frac != "" {
		// ".5" is half a second, not five milliseconds
		for len(frac) < 3 {
			frac += "0"
		}
		millis, _ = strconv.Atoi(frac)
	}

	if minutes > 59 {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: minutes must be 0-59", s)
	}
	if seconds > 59 {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: seconds must be 0-59", s)
	}

	return Timestamp{
		Hours:        hours,
		Minutes:      minutes,
		Seconds:      seconds,
		Milliseconds: millis,
	}, nil
}

// TimestampFromMillis splits a millisecond count into its clock components
func TimestampFromMillis(ms int64) Timestamp {
	if ms < 0 {
		ms = 0
	}
	return Timestamp{
		Hours:        int(ms / 3_600_000),
		Minutes:      int(ms / 60_000 % 60),
		Seconds:      int(ms / 1000 % 60),
		Milliseconds: int(ms % 1000),
	}
}

// String returns the timestamp in HH:MM:SS format, with .mmm when non-zero
func (t Timestamp) String() string {
	if t.Milliseconds == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hours, t.Minutes, t.Seconds)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", t.Hours, t.Minutes, t.Seconds, t.Milliseconds)
}

// TotalMilliseconds returns the timestamp as total milliseconds
func (t Timestamp) TotalMilliseconds() int64 {
	return int64(t.Hours)*3_600_000 + int64(t.Minutes)*60_000 + int64(t.Seconds)*1000 + int64(t.Milliseconds)
}

// IsZero returns true if the timestamp is 00:00:00.000
func (t Timestamp) IsZero() bool {
	return t.TotalMilliseconds() == 0
}

// Before returns true if t is before other
func (t Timestamp) Before(other Timestamp) bool {
	return t.TotalMilliseconds() < other.TotalMilliseconds()
}

// After returns true if t is after other
func (t Timestamp) After(other Timestamp) bool {
	return t.TotalMilliseconds() > other.TotalMilliseconds()
}
