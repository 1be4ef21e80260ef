package timedataset

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"
)

var ErrUnknownFreq = errors.New("unknown frequency alias")

var freqAliasRe = regexp.MustCompile(`^(\d*)([A-Za-z]+)$`)

// Frequency describes the step between consecutive observations of a
// series. Fixed-width steps carry a duration, calendar steps a month
// count, and integer-indexed series an integer step size.
type Frequency struct {
	Alias   string
	Dur     time.Duration
	Months  int
	Step    int64
	Integer bool
}

func (f Frequency) IsZero() bool {
	return f.Dur == 0 && f.Months == 0 && f.Step == 0
}

func (f Frequency) String() string {
	if f.Integer {
		return strconv.FormatInt(f.Step, 10)
	}
	return f.Alias
}

// Next returns the expected timestamp following t. Calendar steps clamp
// the day so month-end grids stay on month ends (Jan 31 -> Feb 28) and
// Jan 30 -> Feb 28 instead of overflowing into March.
func (f Frequency) Next(t time.Time) time.Time {
	if f.Months > 0 {
		return addMonthsClamped(t, f.Months)
	}
	return t.Add(f.Dur)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mi, ss := t.Clock()
	first := time.Date(y, m+time.Month(months), 1, hh, mi, ss, t.Nanosecond(), t.Location())
	last := daysInMonth(first.Year(), first.Month())
	if d == daysInMonth(y, m) || d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mi, ss, t.Nanosecond(), t.Location())
}

func daysInMonth(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextStep returns the expected integer index following s.
func (f Frequency) NextStep(s int64) int64 {
	return s + f.Step
}

// IntegerFreq returns a frequency for integer-indexed series advancing
// by step per observation.
func IntegerFreq(step int64) Frequency {
	return Frequency{Step: step, Integer: true}
}

// MustParseFrequency is ParseFrequency that panics on an unknown alias.
func MustParseFrequency(alias string) Frequency {
	f, err := ParseFrequency(alias)
	if err != nil {
		panic(err)
	}
	return f
}

// ParseFrequency converts a pandas-style offset alias into a Frequency.
// Supported units: s/S, min/T, h/H, D, W, M, MS, Q, QS, Y/A/YS, with an
// optional leading multiple (e.g. "5min", "2H").
func ParseFrequency(alias string) (Frequency, error) {
	m := freqAliasRe.FindStringSubmatch(alias)
	if m == nil {
		return Frequency{}, fmt.Errorf("%q, %w", alias, ErrUnknownFreq)
	}
	n := 1
	if m[1] != "" {
		var err error
		if n, err = strconv.Atoi(m[1]); err != nil || n < 1 {
			return Frequency{}, fmt.Errorf("%q, %w", alias, ErrUnknownFreq)
		}
	}

	f := Frequency{Alias: alias}
	switch m[2] {
	case "s", "S":
		f.Dur = time.Duration(n) * time.Second
	case "min", "T":
		f.Dur = time.Duration(n) * time.Minute
	case "h", "H":
		f.Dur = time.Duration(n) * time.Hour
	case "D":
		f.Dur = time.Duration(n) * 24 * time.Hour
	case "W":
		f.Dur = time.Duration(n) * 7 * 24 * time.Hour
	case "M", "MS", "ME":
		f.Months = n
	case "Q", "QS", "QE":
		f.Months = 3 * n
	case "Y", "YS", "YE", "A", "AS":
		f.Months = 12 * n
	default:
		return Frequency{}, fmt.Errorf("%q, %w", alias, ErrUnknownFreq)
	}
	return f, nil
}

const (
	day = 24 * time.Hour

	minMonth, maxMonth     = 28 * day, 31 * day
	minQuarter, maxQuarter = 89 * day, 92 * day
	minYear, maxYear       = 365 * day, 366 * day
)

// inferFromDeltas maps a modal spacing to a canonical frequency. Month
// starts are distinguished from month ends by the day component of the
// first timestamp.
func inferFromDeltas(delta time.Duration, first time.Time) (Frequency, bool) {
	switch {
	case delta >= minYear && delta <= maxYear:
		return Frequency{Alias: yearAlias(first), Months: 12}, true
	case delta >= minQuarter && delta <= maxQuarter:
		return Frequency{Alias: monthStartOrEnd(first, "QS", "Q"), Months: 3}, true
	case delta >= minMonth && delta <= maxMonth:
		return Frequency{Alias: monthStartOrEnd(first, "MS", "M"), Months: 1}, true
	case delta <= 0:
		return Frequency{}, false
	case delta%(7*day) == 0:
		n := delta / (7 * day)
		return Frequency{Alias: multAlias(int(n), "W"), Dur: delta}, true
	case delta%day == 0:
		n := delta / day
		return Frequency{Alias: multAlias(int(n), "D"), Dur: delta}, true
	case delta%time.Hour == 0:
		n := delta / time.Hour
		return Frequency{Alias: multAlias(int(n), "H"), Dur: delta}, true
	case delta%time.Minute == 0:
		n := delta / time.Minute
		return Frequency{Alias: multAlias(int(n), "min"), Dur: delta}, true
	case delta%time.Second == 0:
		n := delta / time.Second
		return Frequency{Alias: multAlias(int(n), "s"), Dur: delta}, true
	}
	return Frequency{}, false
}

func multAlias(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return strconv.Itoa(n) + unit
}

func monthStartOrEnd(first time.Time, start, end string) string {
	if first.Day() == 1 {
		return start
	}
	return end
}

func yearAlias(first time.Time) string {
	if first.Day() == 1 && first.Month() == time.January {
		return "YS"
	}
	return "Y"
}

// modalDelta returns the most common spacing of a sorted time slice.
func modalDelta(times []time.Time) (time.Duration, bool) {
	if len(times) < 2 {
		return 0, false
	}
	deltas := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		deltas = append(deltas, times[i].Sub(times[i-1]).Seconds())
	}
	sort.Float64s(deltas)
	mode, _ := stat.Mode(deltas, nil)
	return time.Duration(mode * float64(time.Second)), true
}

// modalStep returns the most common spacing of a sorted integer index.
func modalStep(steps []int64) (int64, bool) {
	if len(steps) < 2 {
		return 0, false
	}
	deltas := make([]float64, 0, len(steps)-1)
	for i := 1; i < len(steps); i++ {
		deltas = append(deltas, float64(steps[i]-steps[i-1]))
	}
	sort.Float64s(deltas)
	mode, _ := stat.Mode(deltas, nil)
	return int64(mode), true
}

// inferFrequency derives the dataset frequency from the modal spacing
// agreed on by a strict majority of series.
func inferFrequency(series []Series) (Frequency, error) {
	if len(series) == 0 {
		return Frequency{}, &FrequencyInferenceError{Detail: "no series"}
	}
	if series[0].Integer() {
		counts := make(map[int64]int)
		for i := range series {
			if step, ok := modalStep(series[i].Steps); ok {
				counts[step]++
			}
		}
		step, n := int64(0), 0
		for s, c := range counts {
			if c > n {
				step, n = s, c
			}
		}
		if step <= 0 || n*2 <= len(series) {
			return Frequency{}, &FrequencyInferenceError{Detail: "no majority integer step"}
		}
		return IntegerFreq(step), nil
	}

	counts := make(map[time.Duration]int)
	firsts := make(map[time.Duration]time.Time)
	for i := range series {
		if delta, ok := modalDelta(series[i].Times); ok {
			counts[delta]++
			if _, seen := firsts[delta]; !seen {
				firsts[delta] = series[i].Times[0]
			}
		}
	}
	var best time.Duration
	n := 0
	for d, c := range counts {
		if c > n {
			best, n = d, c
		}
	}
	if n == 0 || n*2 <= len(series) {
		return Frequency{}, &FrequencyInferenceError{Detail: "no majority spacing, " + ErrInconsistentFreq.Error()}
	}
	freq, ok := inferFromDeltas(best, firsts[best])
	if !ok {
		return Frequency{}, &FrequencyInferenceError{
			Detail: fmt.Sprintf("modal spacing %s matches no supported frequency", best),
		}
	}
	return freq, nil
}
