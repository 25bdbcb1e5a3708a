package scheduler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Rule is a recurring calendar rule: a time of day, optionally limited to weekdays.
// An empty Weekdays list means every day.
type Rule struct {
	Hour     int
	Minute   int
	Weekdays []time.Weekday
}

// Daily fires every day at hour:minute.
func Daily(hour, minute int) Rule {
	return Rule{Hour: hour, Minute: minute}
}

// Weekly fires at hour:minute on the given weekdays.
func Weekly(hour, minute int, days ...time.Weekday) Rule {
	d := slices.Clone(days)
	slices.Sort(d)
	return Rule{Hour: hour, Minute: minute, Weekdays: slices.Compact(d)}
}

// Validate checks the rule's ranges.
func (r Rule) Validate() error {
	if r.Hour < 0 || r.Hour > 23 {
		return fmt.Errorf("hour %d out of range", r.Hour)
	}
	if r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("minute %d out of range", r.Minute)
	}
	for _, d := range r.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("weekday %d out of range", d)
		}
	}
	return nil
}

// Spec renders the rule as a 5-field cron expression.
func (r Rule) Spec() string {
	dow := "*"
	if len(r.Weekdays) > 0 {
		parts := make([]string, len(r.Weekdays))
		for i, d := range r.Weekdays {
			parts[i] = strconv.Itoa(int(d))
		}
		dow = strings.Join(parts, ",")
	}
	return fmt.Sprintf("%d %d * * %s", r.Minute, r.Hour, dow)
}

func (r Rule) String() string {
	if len(r.Weekdays) == 0 {
		return fmt.Sprintf("daily at %02d:%02d", r.Hour, r.Minute)
	}
	names := make([]string, len(r.Weekdays))
	for i, d := range r.Weekdays {
		names[i] = d.String()[:3]
	}
	return fmt.Sprintf("on %s at %02d:%02d", strings.Join(names, ", "), r.Hour, r.Minute)
}
