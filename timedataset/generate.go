package timedataset

import (
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/PyQuantSharp/timegpt/tabular"
)

// GenerateOptions configures GenerateFrame.
type GenerateOptions struct {
	NumSeries int
	Length    int
	Freq      Frequency
	Start     time.Time
	// Noise adds gaussian noise at the given scale when > 0.
	Noise float64
	Seed  uint64
}

// GenerateFrame produces a stacked multi-series table with daily-ish
// sinusoidal targets. Intended for tests and examples.
func GenerateFrame(opt GenerateOptions) *tabular.Frame {
	if opt.NumSeries == 0 {
		opt.NumSeries = 1
	}
	if opt.Length == 0 {
		opt.Length = 100
	}
	if opt.Freq.IsZero() {
		opt.Freq = Frequency{Alias: "D", Dur: 24 * time.Hour}
	}
	if opt.Start.IsZero() {
		opt.Start = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	rnd := rand.New(rand.NewPCG(opt.Seed, opt.Seed))

	n := opt.NumSeries * opt.Length
	ids := make([]string, 0, n)
	times := make([]time.Time, 0, n)
	y := make([]float64, 0, n)
	for s := 0; s < opt.NumSeries; s++ {
		id := "series-" + strconv.Itoa(s)
		t := opt.Start
		for i := 0; i < opt.Length; i++ {
			ids = append(ids, id)
			times = append(times, t)
			val := 10.0*float64(s+1) + 5.0*math.Sin(2.0*math.Pi*float64(i)/7.0)
			if opt.Noise > 0 {
				val += rnd.NormFloat64() * opt.Noise
			}
			y = append(y, val)
			t = opt.Freq.Next(t)
		}
	}

	f, err := tabular.NewFrame(
		tabular.Strings(DefaultIDCol, ids),
		tabular.Times(DefaultTimeCol, times),
		tabular.Floats(DefaultTargetCol, y),
	)
	if err != nil {
		panic(err)
	}
	return f
}
