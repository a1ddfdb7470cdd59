package demogen

import (
	"sort"
	"time"
)

const (
	businessStartHour = 9
	businessEndHour   = 18
)

// monthWindow places timestamps inside one month of the tenant calendar.
type monthWindow struct {
	start time.Time
	end   time.Time
	now   time.Time
	days  []time.Time
	// weights are per day, already jittered; zero for days that have not started yet.
	weights []float64
}

func newMonthWindow(r *Rand, start, end, now time.Time, weekday [7]float64, variance float64) *monthWindow {
	w := &monthWindow{start: start, end: end, now: now}
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		weight := 0.0
		if d.Before(now) {
			weight = weekday[d.Weekday()] * (1 + r.Float(-variance, variance))
		}
		w.days = append(w.days, d)
		w.weights = append(w.weights, weight)
	}
	return w
}

// Place draws a weekday business-hours timestamp in the month, never after now.
func (w *monthWindow) Place(r *Rand) time.Time {
	if len(w.days) == 0 {
		return w.clamp(w.start)
	}
	day := PickWeighted(r, w.days, w.weights)
	day = w.shiftWeekend(day)
	t := time.Date(day.Year(), day.Month(), day.Day(),
		r.Int(businessStartHour, businessEndHour-1), r.Int(0, 59), r.Int(0, 59), 0, day.Location())
	return w.clamp(t)
}

// PlaceN draws n timestamps sorted ascending.
func (w *monthWindow) PlaceN(r *Rand, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = w.Place(r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// shiftWeekend moves Saturday and Sunday to the following Monday. When Monday is outside
// the month or not yet reached, the preceding Friday is used instead; a weekend with no
// usable weekday on either side is kept.
func (w *monthWindow) shiftWeekend(day time.Time) time.Time {
	var forward, back int
	switch day.Weekday() {
	case time.Saturday:
		forward, back = 2, -1
	case time.Sunday:
		forward, back = 1, -2
	default:
		return day
	}
	if mon := day.AddDate(0, 0, forward); mon.Before(w.end) && mon.Before(w.now) {
		return mon
	}
	if fri := day.AddDate(0, 0, back); !fri.Before(w.start) {
		return fri
	}
	return day
}

func (w *monthWindow) clamp(t time.Time) time.Time {
	if t.Before(w.start) {
		t = w.start
	}
	if !t.Before(w.end) {
		t = w.end.Add(-time.Second)
	}
	if t.After(w.now) {
		t = w.now
	}
	return t
}

// between returns a uniform instant in [from, to], or from when the range is empty.
func between(r *Rand, from, to time.Time) time.Time {
	if !to.After(from) {
		return from
	}
	span := to.Sub(from)
	return from.Add(time.Duration(r.Float(0, 1) * float64(span))).Truncate(time.Second)
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
