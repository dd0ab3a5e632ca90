/*
calendar.go - Brazil-local calendar days as a first-class value type

PURPOSE:
  Daily settlement is keyed by the CALENDAR day in Brazil, not by UTC
  date strings. CalendarDay makes "which day is it" a value type instead
  of offset arithmetic scattered through the code.

TIMEZONE:
  Uses the IANA zone identifier (America/Sao_Paulo). If the zone database
  is unavailable the fixed UTC-3 offset is used; Brazil has no DST since
  2019 so the fallback is exact in practice.

SEE ALSO:
  - settlement: consumes CalendarDay for task availability and settlement
*/
package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// TIMEZONE
// =============================================================================

// BrazilZone is the zone all calendar-day decisions are made in.
var BrazilZone = loadBrazilZone()

func loadBrazilZone() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}

// =============================================================================
// CALENDAR DAY
// =============================================================================

// CalendarDay is one Brazil-local calendar date. The zero value is "no date".
type CalendarDay struct {
	Year  int
	Month time.Month
	Day   int
}

func NewCalendarDay(year int, month time.Month, day int) CalendarDay {
	return CalendarDay{Year: year, Month: month, Day: day}
}

// DayOf returns the Brazil-local calendar day containing t.
func DayOf(t time.Time) CalendarDay {
	local := t.In(BrazilZone)
	return CalendarDay{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}

// Today returns the current Brazil-local calendar day.
func Today() CalendarDay {
	return DayOf(time.Now())
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (CalendarDay, error) {
	t, err := time.ParseInLocation("2006-01-02", s, BrazilZone)
	if err != nil {
		return CalendarDay{}, fmt.Errorf("invalid calendar day %q: %w", s, err)
	}
	return DayOf(t), nil
}

// Start returns midnight at the start of the day, Brazil-local.
func (d CalendarDay) Start() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, BrazilZone)
}

// Contains reports whether t falls on this calendar day.
func (d CalendarDay) Contains(t time.Time) bool {
	return DayOf(t) == d
}

func (d CalendarDay) AddDays(n int) CalendarDay {
	return DayOf(d.Start().AddDate(0, 0, n))
}

func (d CalendarDay) Before(other CalendarDay) bool { return d.Start().Before(other.Start()) }
func (d CalendarDay) After(other CalendarDay) bool  { return d.Start().After(other.Start()) }
func (d CalendarDay) Equal(other CalendarDay) bool  { return d == other }
func (d CalendarDay) IsZero() bool                  { return d == CalendarDay{} }

func (d CalendarDay) Weekday() time.Weekday { return d.Start().Weekday() }

func (d CalendarDay) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d CalendarDay) String() string {
	return d.Start().Format("2006-01-02")
}
