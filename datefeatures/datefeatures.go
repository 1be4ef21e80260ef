// Package datefeatures generates calendar covariates from a series'
// time axis for use as exogenous regressors.
package datefeatures

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/us"

	"github.com/PyQuantSharp/timegpt/timedataset"
)

var ErrUnsupportedCountry = errors.New("holidays not available for country")

// feature extractors addressable by name
var extractors = map[string]func(t time.Time) float64{
	"year":    func(t time.Time) float64 { return float64(t.Year()) },
	"quarter": func(t time.Time) float64 { return float64((int(t.Month())-1)/3 + 1) },
	"month":   func(t time.Time) float64 { return float64(t.Month()) },
	"week": func(t time.Time) float64 {
		_, w := t.ISOWeek()
		return float64(w)
	},
	"day":     func(t time.Time) float64 { return float64(t.Day()) },
	"weekday": func(t time.Time) float64 { return float64(t.Weekday()) },
	"hour":    func(t time.Time) float64 { return float64(t.Hour()) },
	"minute":  func(t time.Time) float64 { return float64(t.Minute()) },
	"second":  func(t time.Time) float64 { return float64(t.Second()) },
}

// featuresByUnit maps a frequency's base unit to the calendar components
// that vary at that granularity.
var featuresByUnit = map[string][]string{
	"s":   {"year", "month", "day", "hour", "minute", "second"},
	"min": {"year", "month", "day", "hour", "minute"},
	"h":   {"year", "month", "day", "hour"},
	"D":   {"year", "month", "day", "weekday"},
	"W":   {"year", "week", "weekday"},
	"M":   {"year", "month"},
	"Q":   {"year", "quarter"},
	"Y":   {"year"},
}

// Names lists the supported calendar component names.
func Names() []string {
	return []string{"year", "quarter", "month", "week", "day", "weekday", "hour", "minute", "second"}
}

// Calendar returns a feature generator producing the named calendar
// components. Unknown names are reported by the returned error.
func Calendar(names ...string) (timedataset.DateFeature, error) {
	for _, name := range names {
		if _, ok := extractors[name]; !ok {
			return nil, fmt.Errorf("unknown date feature %q", name)
		}
	}
	return func(times []time.Time) map[string][]float64 {
		out := make(map[string][]float64, len(names))
		for _, name := range names {
			fn := extractors[name]
			vals := make([]float64, len(times))
			for i, t := range times {
				vals[i] = fn(t)
			}
			out[name] = vals
		}
		return out
	}, nil
}

// ForFrequency returns the calendar components appropriate for the
// given frequency, e.g. daily data gets year/month/day/weekday while
// monthly data only gets year/month. Integer-indexed frequencies have
// no calendar and return nil.
func ForFrequency(freq timedataset.Frequency) timedataset.DateFeature {
	if freq.Integer {
		return nil
	}
	names, ok := featuresByUnit[baseUnit(freq)]
	if !ok {
		return nil
	}
	f, err := Calendar(names...)
	if err != nil {
		panic(err)
	}
	return f
}

func baseUnit(freq timedataset.Frequency) string {
	alias := strings.TrimLeft(freq.Alias, "0123456789")
	switch alias {
	case "s", "S":
		return "s"
	case "min", "T":
		return "min"
	case "h", "H", "BH":
		return "h"
	case "D", "B", "C":
		return "D"
	case "W":
		return "W"
	case "M", "MS", "ME", "BM", "BMS":
		return "M"
	case "Q", "QS", "QE", "BQ", "BQS":
		return "Q"
	case "Y", "YS", "YE", "A", "AS":
		return "Y"
	}
	return ""
}

var holidaysByCountry = map[string][]*cal.Holiday{
	"US": us.Holidays,
	"GB": gb.Holidays,
	"DE": de.Holidays,
	"FR": fr.Holidays,
	"CA": ca.Holidays,
}

// Countries lists the country codes CountryHolidays supports.
func Countries() []string {
	return []string{"CA", "DE", "FR", "GB", "US"}
}

// CountryHolidays returns a feature generator producing one indicator
// column per holiday per country, named "{country}_{holiday}". A row is
// 1 when its calendar date is the holiday's actual date in that year.
func CountryHolidays(countries ...string) (timedataset.DateFeature, error) {
	for _, c := range countries {
		if _, ok := holidaysByCountry[c]; !ok {
			return nil, fmt.Errorf("%q, %w", c, ErrUnsupportedCountry)
		}
	}
	return func(times []time.Time) map[string][]float64 {
		out := make(map[string][]float64)
		years := yearRange(times)
		for _, country := range countries {
			for _, hol := range holidaysByCountry[country] {
				name := country + "_" + strings.ReplaceAll(hol.Name, " ", "_")
				dates := make(map[string]struct{}, len(years))
				for _, year := range years {
					actual, _ := hol.Calc(year)
					if !actual.IsZero() {
						dates[dateKey(actual)] = struct{}{}
					}
				}
				vals := make([]float64, len(times))
				for i, t := range times {
					if _, ok := dates[dateKey(t)]; ok {
						vals[i] = 1
					}
				}
				out[name] = vals
			}
		}
		return out
	}, nil
}

// SpecialDates returns a feature generator producing one indicator
// column per category, set on the listed calendar dates.
func SpecialDates(dates map[string][]time.Time) timedataset.DateFeature {
	return func(times []time.Time) map[string][]float64 {
		out := make(map[string][]float64, len(dates))
		for name, ds := range dates {
			keys := make(map[string]struct{}, len(ds))
			for _, d := range ds {
				keys[dateKey(d)] = struct{}{}
			}
			vals := make([]float64, len(times))
			for i, t := range times {
				if _, ok := keys[dateKey(t)]; ok {
					vals[i] = 1
				}
			}
			out[name] = vals
		}
		return out
	}
}

// Merge combines feature generators into one; later generators win on
// column name collisions.
func Merge(features ...timedataset.DateFeature) timedataset.DateFeature {
	return func(times []time.Time) map[string][]float64 {
		out := make(map[string][]float64)
		for _, f := range features {
			if f == nil {
				continue
			}
			for name, vals := range f(times) {
				out[name] = vals
			}
		}
		return out
	}
}

func yearRange(times []time.Time) []int {
	if len(times) == 0 {
		return nil
	}
	min, max := times[0].Year(), times[0].Year()
	for _, t := range times[1:] {
		if y := t.Year(); y < min {
			min = y
		} else if y > max {
			max = y
		}
	}
	years := make([]int, 0, max-min+1)
	for y := min; y <= max; y++ {
		years = append(years, y)
	}
	return years
}

func dateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
