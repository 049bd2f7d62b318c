package opd

import (
	"fmt"
	"time"

	"github.com/arogyalink/hms/internal/platform/validation"
)

// TimeRange is a start and end time of day, both "15:04".
type TimeRange struct {
	Start string
	End   string
}

// SlotTimes splits [start, end) into consecutive SlotLength windows. A
// trailing window that would run past end is dropped.
func SlotTimes(start, end string) ([]TimeRange, error) {
	s, e, err := clockRange(start, end)
	if err != nil {
		return nil, err
	}
	var out []TimeRange
	for t := s; !t.Add(SlotLength).After(e); t = t.Add(SlotLength) {
		out = append(out, TimeRange{Start: t.Format("15:04"), End: t.Add(SlotLength).Format("15:04")})
	}
	return out, nil
}

// clockRange parses and orders a pair of clock times.
func clockRange(start, end string) (time.Time, time.Time, error) {
	start, err := validation.ParseClock(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err = validation.ParseClock(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	s, _ := time.Parse("15:04", start)
	e, _ := time.Parse("15:04", end)
	if !s.Before(e) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time %s must be before end time %s", start, end)
	}
	return s, e, nil
}

// rank returns the 1-based position of start among the slots, which must be
// sorted by start time, or 0 if absent.
func rank(slots []*Slot, start string) int {
	for i, s := range slots {
		if s.StartTime == start {
			return i + 1
		}
	}
	return 0
}

func addDays(date string, n int) (string, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, n).Format(DateLayout), nil
}
