package availability

import "math/rand"

// Intersect returns, for every weekday, the hours free in both schedules.
// Missing days count as empty. The result always holds all seven days.
func Intersect(a, b Schedule) Schedule {
	out := make(Schedule, len(weekdays))
	for _, d := range weekdays {
		inB := make(map[int]struct{}, len(b[d]))
		for _, h := range b[d] {
			inB[h] = struct{}{}
		}
		common := []int{}
		for _, h := range mergeHours(nil, a[d]) {
			if _, ok := inB[h]; ok {
				common = append(common, h)
			}
		}
		out[d] = common
	}
	return out
}

// Slot is a one-hour meeting block.
type Slot struct {
	Day   Weekday `json:"day"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// Hours returns the slot as the [start, end] pair used on the wire.
func (s Slot) Hours() [2]int {
	return [2]int{s.Start, s.End}
}

// Pick chooses one slot from the common schedule. Candidates are ordered by
// weekday then hour. ok is false when there is no overlap at all.
func Pick(common Schedule, pref Preference, rng *rand.Rand) (Slot, bool) {
	var candidates []Slot
	for _, d := range weekdays {
		for _, h := range common[d] {
			candidates = append(candidates, Slot{Day: d, Start: h, End: h + 1})
		}
	}
	if len(candidates) == 0 {
		return Slot{}, false
	}
	switch pref {
	case PreferLast:
		return candidates[len(candidates)-1], true
	case PreferRandom:
		if rng == nil {
			return candidates[rand.Intn(len(candidates))], true
		}
		return candidates[rng.Intn(len(candidates))], true
	default:
		return candidates[0], true
	}
}
