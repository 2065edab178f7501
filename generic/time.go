package generic

import (
	"encoding/json"
	"time"
)

// =============================================================================
// DAY - Calendar date in the local time zone
// =============================================================================

// Day is a calendar date. It is always held at local midnight so that
// comparisons never drift across a UTC boundary late in the evening.
type Day struct {
	t time.Time
}

const dayLayout = "2006-01-02"

// Location is the zone days are interpreted in. Tests may pin it.
var Location = time.Local

func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, Location)}
}

// DayOf returns the local calendar day containing t.
func DayOf(t time.Time) Day {
	lt := t.In(Location)
	return NewDay(lt.Year(), lt.Month(), lt.Day())
}

func Today() Day { return DayOf(time.Now()) }

func ParseDay(s string) (Day, error) {
	t, err := time.ParseInLocation(dayLayout, s, Location)
	if err != nil {
		return Day{}, err
	}
	return Day{t: t}, nil
}

// Comparison
func (d Day) Before(o Day) bool { return d.t.Before(o.t) }
func (d Day) After(o Day) bool  { return d.t.After(o.t) }
func (d Day) Equal(o Day) bool  { return d.t.Equal(o.t) }
func (d Day) IsZero() bool      { return d.t.IsZero() }

// Arithmetic goes through the calendar so DST transitions never change the date.
func (d Day) AddDays(n int) Day { return NewDay(d.t.Year(), d.t.Month(), d.t.Day()+n) }

func (d Day) Time() time.Time { return d.t }
func (d Day) String() string  { return d.t.Format(dayLayout) }

// DaysBetween returns to - from in whole calendar days.
func DaysBetween(from, to Day) int {
	a := time.Date(from.t.Year(), from.t.Month(), from.t.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.t.Year(), to.t.Month(), to.t.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func (d Day) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// EXPIRY STATUS
// =============================================================================

type ExpiryStatus string

const (
	ExpiryOK      ExpiryStatus = "ok"
	ExpirySoon    ExpiryStatus = "soon"
	ExpiryExpired ExpiryStatus = "expired"
)

// SoonWindow is how many days ahead an expiry counts as "soon".
const SoonWindow = 7

// ExpiryStatusOf buckets an expiry day relative to today:
// expired if expiry < today, soon if expiry < today+7, ok otherwise.
func ExpiryStatusOf(expiry, today Day) ExpiryStatus {
	switch {
	case expiry.Before(today):
		return ExpiryExpired
	case expiry.Before(today.AddDays(SoonWindow)):
		return ExpirySoon
	default:
		return ExpiryOK
	}
}
