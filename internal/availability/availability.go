package availability

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Weekdays returns the seven day names in calendar order, monday first.
func Weekdays() []Weekday {
	out := make([]Weekday, len(weekdays))
	copy(out, weekdays)
	return out
}

func parseWeekday(s string) (Weekday, bool) {
	d := Weekday(strings.ToLower(strings.TrimSpace(s)))
	for _, w := range weekdays {
		if w == d {
			return d, true
		}
	}
	return "", false
}

// Schedule maps each weekday to the sorted start hours of free one-hour blocks.
type Schedule map[Weekday][]int

// NormalizeSchedule validates raw day->hours input and returns a Schedule with all
// seven days present, hours de-duplicated and sorted ascending.
func NormalizeSchedule(raw map[string][]int) (Schedule, error) {
	verr := &ValidationError{}
	out := make(Schedule, len(weekdays))
	for day, hours := range raw {
		d, ok := parseWeekday(day)
		if !ok {
			verr.add("availabilities."+day, fmt.Sprintf("invalid day %q", day))
			continue
		}
		for _, h := range hours {
			if h < 0 || h > 23 {
				verr.add("availabilities."+string(d), "hours must be between 0 and 23")
				break
			}
		}
		out[d] = mergeHours(out[d], hours)
	}
	if verr.HasErrors() {
		return nil, verr
	}
	for _, d := range weekdays {
		if out[d] == nil {
			out[d] = []int{}
		}
	}
	return out, nil
}

func mergeHours(existing, more []int) []int {
	seen := make(map[int]struct{}, len(existing)+len(more))
	merged := make([]int, 0, len(existing)+len(more))
	for _, h := range append(append([]int{}, existing...), more...) {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		merged = append(merged, h)
	}
	sort.Ints(merged)
	return merged
}

// Raw converts the schedule back to string-keyed form for JSON storage.
func (s Schedule) Raw() map[string][]int {
	out := make(map[string][]int, len(weekdays))
	for _, d := range weekdays {
		hours := s[d]
		if hours == nil {
			hours = []int{}
		}
		out[string(d)] = append([]int{}, hours...)
	}
	return out
}

type Preference string

const (
	PreferFirst  Preference = "first"
	PreferLast   Preference = "last"
	PreferRandom Preference = "random"
)

// ParsePreference maps an empty value to PreferFirst and rejects unknown values.
func ParsePreference(s string) (Preference, error) {
	switch p := Preference(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PreferFirst, nil
	case PreferFirst, PreferLast, PreferRandom:
		return p, nil
	default:
		return "", &ValidationError{FieldErrors: map[string]string{
			"preferences": fmt.Sprintf("must be one of first, last, random; got %q", s),
		}}
	}
}

// Record is the durable availability row for one identifier.
type Record struct {
	Email          string     `json:"email"`
	Availabilities Schedule   `json:"availabilities"`
	Preferences    Preference `json:"preferences"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NormalizeID is the single identifier policy: the store keeps the trimmed
// lower-case form, the cache key is derived from it.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// NewRecord builds a validated record from request input.
func NewRecord(email string, raw map[string][]int, preference string) (Record, error) {
	id := NormalizeID(email)
	if id == "" {
		return Record{}, &ValidationError{FieldErrors: map[string]string{"email": "email is required"}}
	}
	sched, err := NormalizeSchedule(raw)
	if err != nil {
		return Record{}, err
	}
	pref, err := ParsePreference(preference)
	if err != nil {
		return Record{}, err
	}
	return Record{Email: id, Availabilities: sched, Preferences: pref}, nil
}
