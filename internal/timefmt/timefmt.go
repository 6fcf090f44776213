package timefmt

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnparseableTimestamp means neither known timestamp shape matched,
// which points at an upstream feed format change.
var ErrUnparseableTimestamp = errors.New("unparseable feed timestamp")

const (
	layoutZoned = "Mon, 2 Jan 2006 15:04:05 MST"
	layoutBare  = "Mon, 2 Jan 2006 15:04:05"
)

// weekdays is indexed by ISO weekday minus one (Monday first).
var weekdays = [7]string{"星期一", "星期二", "星期三", "星期四", "星期五", "星期六", "星期天"}

// Result is a normalized publish time.
type Result struct {
	Display string
	Instant time.Time
}

type Normalizer struct {
	source *time.Location
	target *time.Location
}

func New(source, target *time.Location) *Normalizer {
	return &Normalizer{source: source, target: target}
}

// Default reads feed timestamps as UTC and displays them in UTC+8.
func Default() *Normalizer {
	return New(time.UTC, time.FixedZone("UTC+8", 8*60*60))
}

// Normalize parses raw in either known shape, reads its wall clock in the
// source zone and converts it to the target zone.
func (n *Normalizer) Normalize(raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse(layoutZoned, raw)
	if err != nil {
		t, err = time.Parse(layoutBare, strings.TrimSpace(strings.TrimSuffix(raw, "GMT")))
		if err != nil {
			return Result{}, fmt.Errorf("%w: %q", ErrUnparseableTimestamp, raw)
		}
	}

	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), n.source)
	local := wall.In(n.target)
	return Result{Display: Format(local), Instant: local}, nil
}

// Format renders t as "星期三，2024.10.16 11:00:00".
func Format(t time.Time) string {
	return fmt.Sprintf("%s，%s", weekdays[(int(t.Weekday())+6)%7], t.Format("2006.01.02 15:04:05"))
}
