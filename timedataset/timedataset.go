// Package timedataset normalizes heterogeneous tabular inputs into the
// canonical multi-series representation sent to the forecasting
// service: one Series per id, sorted and gap-checked at a single
// inferred or supplied frequency.
package timedataset

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/PyQuantSharp/timegpt/tabular"
)

const (
	DefaultIDCol     = "unique_id"
	DefaultTimeCol   = "ds"
	DefaultTargetCol = "y"

	// syntheticID is assigned when the input carries no id column and a
	// single implicit series is assumed.
	syntheticID = "0"
)

// DateFeature generates named numeric columns from a sequence of
// timestamps. Implementations must be pure: same input, same output, no
// retained state.
type DateFeature func(times []time.Time) map[string][]float64

// Series is one id's ordered history. Either Times or Steps is
// populated depending on whether the time axis holds timestamps or
// integers.
type Series struct {
	ID    string
	Times []time.Time
	Steps []int64
	Y     []float64
	Exog  map[string][]float64
}

// Integer reports whether the series uses an integer time axis.
func (s *Series) Integer() bool { return s.Times == nil }

// Len returns the number of observations.
func (s *Series) Len() int { return len(s.Y) }

// LastTime returns the final observed timestamp.
func (s *Series) LastTime() time.Time {
	return s.Times[len(s.Times)-1]
}

// LastStep returns the final observed integer index.
func (s *Series) LastStep() int64 {
	return s.Steps[len(s.Steps)-1]
}

// Dataset is a normalized set of series sharing one schema and one
// frequency.
type Dataset struct {
	Series    []Series
	Freq      Frequency
	ExogNames []string

	IDCol     string
	TimeCol   string
	TargetCol string

	// SyntheticID records that the id column was absent from the input
	// and should be dropped again from outputs.
	SyntheticID bool
}

// NumSeries returns the series count.
func (d *Dataset) NumSeries() int { return len(d.Series) }

// TotalRows returns the observation count across all series.
func (d *Dataset) TotalRows() int {
	var n int
	for i := range d.Series {
		n += d.Series[i].Len()
	}
	return n
}

// Options configures Normalize. Zero-value column names fall back to
// the conventional unique_id/ds/y.
type Options struct {
	IDCol     string
	TimeCol   string
	TargetCol string

	// ExogCols names the exogenous feature columns to carry. When nil,
	// every numeric column other than id/time/target is used.
	ExogCols []string

	// Freq overrides frequency inference.
	Freq Frequency

	// DateFeatures are applied to each series' time axis after
	// validation; the generated columns are appended as exogenous
	// features. Timestamp axes only.
	DateFeatures []DateFeature
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.IDCol == "" {
		out.IDCol = DefaultIDCol
	}
	if out.TimeCol == "" {
		out.TimeCol = DefaultTimeCol
	}
	if out.TargetCol == "" {
		out.TargetCol = DefaultTargetCol
	}
	return out
}

// Normalize validates a table and produces the canonical Dataset. The
// caller's table is never mutated. Missing target values, duplicate
// timestamps and gaps fail with a DataValidationError; irregular
// spacing with no explicit frequency fails with a
// FrequencyInferenceError. Gaps are never imputed here, that is the
// explicit Clean operation.
func Normalize(tbl tabular.Table, opt *Options) (*Dataset, error) {
	o := opt.withDefaults()

	if tbl.Len() == 0 {
		return nil, ErrNoRows
	}

	ids, synthetic, err := idColumn(tbl, o.IDCol)
	if err != nil {
		return nil, err
	}
	target, err := floatColumn(tbl, o.TargetCol)
	if err != nil {
		return nil, err
	}
	timeCol, ok := tbl.Column(o.TimeCol)
	if !ok {
		return nil, &DataValidationError{Kind: KindMissingColumn, Column: o.TimeCol}
	}

	exogNames := o.ExogCols
	if exogNames == nil {
		exogNames = defaultExogCols(tbl, o)
	}
	exog := make(map[string][]float64, len(exogNames))
	for _, name := range exogNames {
		vals, err := floatColumn(tbl, name)
		if err != nil {
			return nil, err
		}
		exog[name] = vals
	}

	ds := &Dataset{
		ExogNames:   exogNames,
		IDCol:       o.IDCol,
		TimeCol:     o.TimeCol,
		TargetCol:   o.TargetCol,
		SyntheticID: synthetic,
	}

	switch timeCol.Kind {
	case tabular.KindTime:
		ds.Series, err = groupTimestamped(ids, timeCol.Times, target, exog, exogNames, o)
	case tabular.KindInt:
		ds.Series, err = groupInteger(ids, timeCol.Ints, target, exog, exogNames, o)
	default:
		err = &DataValidationError{
			Kind:   KindNonNumeric,
			Column: o.TimeCol,
			Detail: fmt.Sprintf("time column must hold timestamps or integers, got %s", timeCol.Kind),
		}
	}
	if err != nil {
		return nil, err
	}

	ds.Freq = o.Freq
	if ds.Freq.IsZero() {
		if ds.Freq, err = inferFrequency(ds.Series); err != nil {
			return nil, err
		}
	}
	if err := checkGrid(ds); err != nil {
		return nil, err
	}
	if err := applyDateFeatures(ds, o.DateFeatures); err != nil {
		return nil, err
	}
	return ds, nil
}

func idColumn(tbl tabular.Table, name string) ([]string, bool, error) {
	c, ok := tbl.Column(name)
	if !ok {
		// single implicit series
		ids := make([]string, tbl.Len())
		for i := range ids {
			ids[i] = syntheticID
		}
		return ids, true, nil
	}
	ids := make([]string, c.Len())
	for i := range ids {
		ids[i] = c.StringAt(i)
	}
	return ids, false, nil
}

func floatColumn(tbl tabular.Table, name string) ([]float64, error) {
	c, ok := tbl.Column(name)
	if !ok {
		return nil, &DataValidationError{Kind: KindMissingColumn, Column: name}
	}
	switch c.Kind {
	case tabular.KindFloat:
		out := make([]float64, len(c.Floats))
		copy(out, c.Floats)
		return out, nil
	case tabular.KindInt:
		out := make([]float64, len(c.Ints))
		for i, v := range c.Ints {
			out[i] = float64(v)
		}
		return out, nil
	}
	return nil, &DataValidationError{Kind: KindNonNumeric, Column: name}
}

func defaultExogCols(tbl tabular.Table, o Options) []string {
	var names []string
	for _, name := range tbl.Columns() {
		if name == o.IDCol || name == o.TimeCol || name == o.TargetCol {
			continue
		}
		c, _ := tbl.Column(name)
		if c.Kind == tabular.KindFloat || c.Kind == tabular.KindInt {
			names = append(names, name)
		}
	}
	return names
}

type row struct {
	t    time.Time
	step int64
	pos  int
}

func groupTimestamped(
	ids []string,
	times []time.Time,
	target []float64,
	exog map[string][]float64,
	exogNames []string,
	o Options,
) ([]Series, error) {
	order, byID := groupRows(ids)

	series := make([]Series, 0, len(order))
	for _, id := range order {
		rows := make([]row, 0, len(byID[id]))
		for _, pos := range byID[id] {
			rows = append(rows, row{t: times[pos], pos: pos})
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].t.Before(rows[j].t) })

		s := Series{
			ID:    id,
			Times: make([]time.Time, len(rows)),
			Y:     make([]float64, len(rows)),
			Exog:  newExog(exogNames, len(rows)),
		}
		for i, r := range rows {
			if i > 0 && r.t.Equal(rows[i-1].t) {
				return nil, &DataValidationError{
					Kind: KindDuplicate, SeriesID: id, Column: o.TimeCol, Timestamp: r.t,
				}
			}
			if math.IsNaN(target[r.pos]) {
				return nil, &DataValidationError{
					Kind: KindMissingValues, SeriesID: id, Column: o.TargetCol, Timestamp: r.t,
				}
			}
			s.Times[i] = r.t
			s.Y[i] = target[r.pos]
			for _, name := range exogNames {
				if math.IsNaN(exog[name][r.pos]) {
					return nil, &DataValidationError{
						Kind: KindMissingValues, SeriesID: id, Column: name, Timestamp: r.t,
					}
				}
				s.Exog[name][i] = exog[name][r.pos]
			}
		}
		series = append(series, s)
	}
	return series, nil
}

func groupInteger(
	ids []string,
	steps []int64,
	target []float64,
	exog map[string][]float64,
	exogNames []string,
	o Options,
) ([]Series, error) {
	order, byID := groupRows(ids)

	series := make([]Series, 0, len(order))
	for _, id := range order {
		rows := make([]row, 0, len(byID[id]))
		for _, pos := range byID[id] {
			rows = append(rows, row{step: steps[pos], pos: pos})
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].step < rows[j].step })

		s := Series{
			ID:    id,
			Steps: make([]int64, len(rows)),
			Y:     make([]float64, len(rows)),
			Exog:  newExog(exogNames, len(rows)),
		}
		for i, r := range rows {
			if i > 0 && r.step == rows[i-1].step {
				return nil, &DataValidationError{
					Kind: KindDuplicate, SeriesID: id, Column: o.TimeCol, Step: r.step,
					Detail: fmt.Sprintf("step %d", r.step),
				}
			}
			if math.IsNaN(target[r.pos]) {
				return nil, &DataValidationError{
					Kind: KindMissingValues, SeriesID: id, Column: o.TargetCol, Step: r.step,
				}
			}
			s.Steps[i] = r.step
			s.Y[i] = target[r.pos]
			for _, name := range exogNames {
				if math.IsNaN(exog[name][r.pos]) {
					return nil, &DataValidationError{
						Kind: KindMissingValues, SeriesID: id, Column: name, Step: r.step,
					}
				}
				s.Exog[name][i] = exog[name][r.pos]
			}
		}
		series = append(series, s)
	}
	return series, nil
}

// groupRows indexes row positions by id, preserving first-appearance
// order so partitioning and assembly stay deterministic.
func groupRows(ids []string) ([]string, map[string][]int) {
	order := make([]string, 0)
	byID := make(map[string][]int)
	for pos, id := range ids {
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = append(byID[id], pos)
	}
	return order, byID
}

func newExog(names []string, n int) map[string][]float64 {
	if len(names) == 0 {
		return nil
	}
	m := make(map[string][]float64, len(names))
	for _, name := range names {
		m[name] = make([]float64, n)
	}
	return m
}

// checkGrid verifies each series walks the frequency grid with no
// missing expected points, reporting the first gap found.
func checkGrid(ds *Dataset) error {
	for i := range ds.Series {
		s := &ds.Series[i]
		if s.Integer() {
			for j := 1; j < len(s.Steps); j++ {
				expected := ds.Freq.NextStep(s.Steps[j-1])
				if s.Steps[j] != expected {
					return &DataValidationError{
						Kind: KindGap, SeriesID: s.ID, Column: ds.TimeCol, Step: expected,
						Detail: fmt.Sprintf("expected step %d, got %d", expected, s.Steps[j]),
					}
				}
			}
			continue
		}
		for j := 1; j < len(s.Times); j++ {
			expected := ds.Freq.Next(s.Times[j-1])
			if !s.Times[j].Equal(expected) {
				return &DataValidationError{
					Kind: KindGap, SeriesID: s.ID, Column: ds.TimeCol, Timestamp: expected,
					Detail: fmt.Sprintf("expected %s, got %s",
						expected.Format(time.RFC3339), s.Times[j].Format(time.RFC3339)),
				}
			}
		}
	}
	return nil
}

func applyDateFeatures(ds *Dataset, features []DateFeature) error {
	if len(features) == 0 {
		return nil
	}
	for i := range ds.Series {
		s := &ds.Series[i]
		if s.Integer() {
			return &DataValidationError{
				Kind: KindShape, SeriesID: s.ID, Column: ds.TimeCol,
				Detail: "date features require a timestamp axis",
			}
		}
		cols := GenerateDateFeatures(s.Times, features)
		if s.Exog == nil {
			s.Exog = make(map[string][]float64, len(cols))
		}
		for _, name := range sortedKeys(cols) {
			if i == 0 {
				ds.ExogNames = append(ds.ExogNames, name)
			}
			s.Exog[name] = cols[name]
		}
	}
	return nil
}

// GenerateDateFeatures runs each generator over the time axis and
// merges the produced columns.
func GenerateDateFeatures(times []time.Time, features []DateFeature) map[string][]float64 {
	out := make(map[string][]float64)
	for _, f := range features {
		for name, vals := range f(times) {
			out[name] = vals
		}
	}
	return out
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Table renders the dataset back into a Frame with the original column
// names. Normalizing the result reproduces the dataset.
func (d *Dataset) Table() *tabular.Frame {
	n := d.TotalRows()
	ids := make([]string, 0, n)
	times := make([]time.Time, 0, n)
	steps := make([]int64, 0, n)
	target := make([]float64, 0, n)
	exog := make(map[string][]float64, len(d.ExogNames))
	for _, name := range d.ExogNames {
		exog[name] = make([]float64, 0, n)
	}

	integer := len(d.Series) > 0 && d.Series[0].Integer()
	for i := range d.Series {
		s := &d.Series[i]
		for j := 0; j < s.Len(); j++ {
			ids = append(ids, s.ID)
			if integer {
				steps = append(steps, s.Steps[j])
			} else {
				times = append(times, s.Times[j])
			}
			target = append(target, s.Y[j])
			for _, name := range d.ExogNames {
				exog[name] = append(exog[name], s.Exog[name][j])
			}
		}
	}

	cols := make([]tabular.Column, 0, 3+len(d.ExogNames))
	if !d.SyntheticID {
		cols = append(cols, tabular.Strings(d.IDCol, ids))
	}
	if integer {
		cols = append(cols, tabular.Ints(d.TimeCol, steps))
	} else {
		cols = append(cols, tabular.Times(d.TimeCol, times))
	}
	cols = append(cols, tabular.Floats(d.TargetCol, target))
	for _, name := range d.ExogNames {
		cols = append(cols, tabular.Floats(name, exog[name]))
	}

	f, err := tabular.NewFrame(cols...)
	if err != nil {
		// columns are constructed with equal lengths above
		panic(err)
	}
	return f
}

// FutureTimes returns the h timestamps continuing a series' axis at the
// dataset frequency.
func (d *Dataset) FutureTimes(s *Series, h int) []time.Time {
	out := make([]time.Time, 0, h)
	t := s.LastTime()
	for i := 0; i < h; i++ {
		t = d.Freq.Next(t)
		out = append(out, t)
	}
	return out
}

// FutureSteps returns the h integer indices continuing a series' axis.
func (d *Dataset) FutureSteps(s *Series, h int) []int64 {
	out := make([]int64, 0, h)
	v := s.LastStep()
	for i := 0; i < h; i++ {
		v = d.Freq.NextStep(v)
		out = append(out, v)
	}
	return out
}
