package datefeatures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PyQuantSharp/timegpt/timedataset"
)

func TestCalendar(t *testing.T) {
	times := []time.Time{
		time.Date(2023, 2, 14, 15, 30, 45, 0, time.UTC),
		time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC),
	}

	testData := map[string]struct {
		names    []string
		expected map[string][]float64
		err      bool
	}{
		"basic components": {
			names: []string{"year", "month", "day"},
			expected: map[string][]float64{
				"year":  {2023, 2023},
				"month": {2, 7},
				"day":   {14, 1},
			},
		},
		"clock components": {
			names: []string{"hour", "minute", "second"},
			expected: map[string][]float64{
				"hour":   {15, 0},
				"minute": {30, 0},
				"second": {45, 0},
			},
		},
		"weekday and quarter": {
			names: []string{"weekday", "quarter"},
			expected: map[string][]float64{
				"weekday": {float64(time.Tuesday), float64(time.Saturday)},
				"quarter": {1, 3},
			},
		},
		"unknown name": {
			names: []string{"year", "fortnight"},
			err:   true,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			f, err := Calendar(td.names...)
			if td.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, td.expected, f(times))
		})
	}
}

func TestForFrequency(t *testing.T) {
	testData := map[string]struct {
		alias    string
		expected []string
	}{
		"daily":     {alias: "D", expected: []string{"year", "month", "day", "weekday"}},
		"weekly":    {alias: "W", expected: []string{"year", "week", "weekday"}},
		"monthly":   {alias: "MS", expected: []string{"year", "month"}},
		"quarterly": {alias: "Q", expected: []string{"year", "quarter"}},
		"yearly":    {alias: "YS", expected: []string{"year"}},
		"hourly":    {alias: "H", expected: []string{"year", "month", "day", "hour"}},
		"minutely":  {alias: "5min", expected: []string{"year", "month", "day", "hour", "minute"}},
	}

	times := []time.Time{time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			f := ForFrequency(timedataset.MustParseFrequency(td.alias))
			require.NotNil(t, f)
			cols := f(times)
			var names []string
			for n := range cols {
				names = append(names, n)
			}
			assert.ElementsMatch(t, td.expected, names)
		})
	}
}

func TestForFrequencyIntegerAxis(t *testing.T) {
	assert.Nil(t, ForFrequency(timedataset.IntegerFreq(1)))
}

func TestCountryHolidays(t *testing.T) {
	f, err := CountryHolidays("US")
	require.NoError(t, err)

	times := []time.Time{
		time.Date(2023, 12, 24, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 26, 0, 0, 0, 0, time.UTC),
	}
	cols := f(times)

	christmas, ok := cols["US_Christmas_Day"]
	require.True(t, ok, "columns: %v", keys(cols))
	assert.Equal(t, []float64{0, 1, 0}, christmas)

	for name, vals := range cols {
		assert.Len(t, vals, len(times), name)
	}
}

func TestCountryHolidaysUnsupported(t *testing.T) {
	_, err := CountryHolidays("US", "ZZ")
	require.ErrorIs(t, err, ErrUnsupportedCountry)
}

func TestSpecialDates(t *testing.T) {
	f := SpecialDates(map[string][]time.Time{
		"product_launch": {time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)},
	})
	times := []time.Time{
		time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 3, 15, 9, 0, 0, 0, time.UTC),
		time.Date(2023, 3, 16, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, map[string][]float64{
		"product_launch": {0, 1, 0},
	}, f(times))
}

func TestMerge(t *testing.T) {
	cal, err := Calendar("year")
	require.NoError(t, err)
	special := SpecialDates(map[string][]time.Time{
		"event": {time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)},
	})

	times := []time.Time{
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	cols := Merge(cal, nil, special)(times)
	assert.Equal(t, map[string][]float64{
		"year":  {2023, 2023},
		"event": {0, 1},
	}, cols)
}

func keys(m map[string][]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
