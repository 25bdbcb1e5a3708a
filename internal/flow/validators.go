package flow

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ValidationError is a user-correctable input error. Its message is sent back verbatim
// and the session does not advance.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Validator checks one raw answer. A nil result accepts it.
type Validator func(raw string) error

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func nonEmpty(msg string) Validator {
	return func(raw string) error {
		if strings.TrimSpace(raw) == "" {
			return invalid("%s", msg)
		}
		return nil
	}
}

// singleLine is nonEmpty for answers that are later listed one per line.
func singleLine(msg string) Validator {
	return func(raw string) error {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return invalid("%s", msg)
		}
		if strings.ContainsAny(trimmed, "\r\n") {
			return invalid("Please send the name on a single line.")
		}
		return nil
	}
}

func oneOf(options ...string) Validator {
	quoted := make([]string, len(options))
	for i, o := range options {
		quoted[i] = "*" + o + "*"
	}
	var list string
	switch len(quoted) {
	case 1:
		list = quoted[0]
	default:
		list = strings.Join(quoted[:len(quoted)-1], ", ") + " or " + quoted[len(quoted)-1]
	}
	return func(raw string) error {
		if slices.Contains(options, norm(raw)) {
			return nil
		}
		return invalid("Please reply %s.", list)
	}
}

func intRange(lo, hi int, what string) Validator {
	return func(raw string) error {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < lo || n > hi {
			return invalid("Please enter %s as a whole number between %d and %d.", what, lo, hi)
		}
		return nil
	}
}

func floatRange(lo, hi float64, what string) Validator {
	return func(raw string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < lo || f > hi {
			return invalid("Please enter %s as a number between %g and %g.", what, lo, hi)
		}
		return nil
	}
}

const dateLayout = "2006-01-02"

// pastDate accepts YYYY-MM-DD dates that are not after today in loc.
func pastDate(now func() time.Time, loc *time.Location) Validator {
	return func(raw string) error {
		d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), loc)
		if err != nil {
			return invalid("Please enter the date as YYYY-MM-DD, for example 2025-04-01.")
		}
		today := now().In(loc)
		if d.After(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)) {
			return invalid("That date is in the future. Please enter the date your last period started.")
		}
		return nil
	}
}

// parseClock parses a 24-hour HH:MM time of day.
func parseClock(raw string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

func timeOfDay(raw string) error {
	if _, _, err := parseClock(raw); err != nil {
		return invalid("Please enter the time as HH:MM in 24-hour format, for example 08:30.")
	}
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// parseFrequency returns nil weekdays for a daily schedule.
func parseFrequency(raw string) ([]time.Weekday, error) {
	s := norm(raw)
	if s == "daily" || s == "every day" || s == "everyday" {
		return nil, nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';' || r == '/'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty frequency")
	}
	var days []time.Weekday
	for _, f := range fields {
		if f == "and" {
			continue
		}
		d, ok := weekdayNames[f]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", f)
		}
		if !slices.Contains(days, d) {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no weekdays")
	}
	slices.Sort(days)
	return days, nil
}

func frequency(raw string) error {
	if _, err := parseFrequency(raw); err != nil {
		return invalid("Please reply *daily*, or list the days, for example: mon, wed, fri.")
	}
	return nil
}

// formatFrequency renders a parsed frequency in its stored form.
func formatFrequency(days []time.Weekday) string {
	if len(days) == 0 {
		return "daily"
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strings.ToLower(d.String()[:3])
	}
	return strings.Join(parts, ",")
}
