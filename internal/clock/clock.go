package clock

import (
	"strconv"
	"time"
)

const (
	DateLayout = "02-01-2006"
	TimeLayout = "15:04:05"
)

// DefaultOffset is the fixed UTC+5 offset of the service region. No daylight saving.
const DefaultOffset = 5 * time.Hour

type Clock interface {
	Now() time.Time
}

type Regional struct {
	zone *time.Location
}

func NewRegional(offset time.Duration) Regional {
	return Regional{zone: Zone(offset)}
}

func (r Regional) Now() time.Time {
	return time.Now().In(r.zone)
}

func Zone(offset time.Duration) *time.Location {
	hours := int(offset / time.Hour)
	name := "UTC"
	switch {
	case hours > 0:
		name += "+" + strconv.Itoa(hours)
	case hours < 0:
		name += "-" + strconv.Itoa(-hours)
	}
	return time.FixedZone(name, int(offset/time.Second))
}

// DateTime splits t into the "DD-MM-YYYY" date and "HH:MM:SS" time strings.
func DateTime(t time.Time) (string, string) {
	return t.Format(DateLayout), t.Format(TimeLayout)
}

func Date(t time.Time) string {
	return t.Format(DateLayout)
}

type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time { return f.T }

func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }
