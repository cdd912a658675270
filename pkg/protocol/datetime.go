package protocol

import (
	"fmt"
	"time"
)

// TimeLayout is the compact numeric timestamp format used on the wire.
const TimeLayout = "20060102150405"

// ReferenceTimezone is the authority's local time. All wire timestamps are
// expressed in it, independent of the caller's timezone.
const ReferenceTimezone = "Africa/Nairobi"

var referenceLocation = mustLoadLocation(ReferenceTimezone)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("protocol: cannot load reference timezone %s: %v", name, err))
	}
	return loc
}

// FormatTime renders an instant as a wire timestamp in the reference
// timezone.
func FormatTime(t time.Time) string {
	return t.In(referenceLocation).Format(TimeLayout)
}

// ParseTime parses a wire timestamp back into an instant. The result is in
// UTC; ParseTime(FormatTime(t)) equals t truncated to whole seconds.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, s, referenceLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
