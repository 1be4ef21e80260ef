package timedataset

import (
	"fmt"
	"sort"
	"time"

	"github.com/PyQuantSharp/timegpt/tabular"
	"gonum.org/v1/gonum/stat"
)

// AuditCheck identifies one data quality test.
type AuditCheck string

const (
	CheckDuplicateRows  AuditCheck = "D001"
	CheckMissingDates   AuditCheck = "D002"
	CheckCategorical    AuditCheck = "F001"
	CheckNegativeValues AuditCheck = "V001"
	CheckLeadingZeros   AuditCheck = "V002"
)

// AuditReport summarizes the outcome of Audit. Failures must be fixed
// before normalization will accept the data; case-specific findings may
// be acceptable depending on the use case.
type AuditReport struct {
	Pass         bool
	Failures     map[AuditCheck]*tabular.Frame
	CaseSpecific map[AuditCheck]*tabular.Frame
}

// Audit runs data quality checks against a raw table without modifying
// it. Unlike Normalize it tolerates duplicates and gaps, reporting them
// as findings instead of failing on the first.
func Audit(tbl tabular.Table, freq Frequency, opt *Options) (*AuditReport, error) {
	o := opt.withDefaults()
	raw, err := newRawSeries(tbl, o)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{
		Pass:         true,
		Failures:     make(map[AuditCheck]*tabular.Frame),
		CaseSpecific: make(map[AuditCheck]*tabular.Frame),
	}

	if dups := raw.duplicateRows(o); dups.Len() > 0 {
		report.Pass = false
		report.Failures[CheckDuplicateRows] = dups
	} else if missing := raw.missingDates(freq, o); missing.Len() > 0 {
		// gaps cannot be located reliably while duplicates are present
		report.Pass = false
		report.Failures[CheckMissingDates] = missing
	}

	if cats := categoricalColumns(tbl, o); len(cats) > 0 {
		report.Pass = false
		f, _ := tabular.NewFrame(tabular.Strings("column", cats))
		report.Failures[CheckCategorical] = f
	}

	if neg := raw.negativeValues(o); neg.Len() > 0 {
		report.Pass = false
		report.CaseSpecific[CheckNegativeValues] = neg
	}

	if lead := raw.leadingZeros(o); lead.Len() > 0 {
		report.Pass = false
		report.CaseSpecific[CheckLeadingZeros] = lead
	}

	return report, nil
}

// CleanOptions configures Clean.
type CleanOptions struct {
	// CaseSpecific also applies the case-specific fixes (negative
	// values clamped to zero, leading zeros dropped).
	CaseSpecific bool

	// Aggregate resolves duplicate rows; defaults to the mean.
	Aggregate func(vals []float64) float64
}

// Clean applies the fixes for a prior Audit's findings and returns the
// cleaned table together with a fresh audit of the result. Duplicate
// rows are aggregated, missing dates are inserted with forward-filled
// targets. This is the explicit opt-in counterpart to Normalize's
// fail-fast behavior.
func Clean(tbl tabular.Table, report *AuditReport, freq Frequency, opt *Options, copt CleanOptions) (*tabular.Frame, *AuditReport, error) {
	o := opt.withDefaults()
	agg := copt.Aggregate
	if agg == nil {
		agg = func(vals []float64) float64 { return stat.Mean(vals, nil) }
	}

	raw, err := newRawSeries(tbl, o)
	if err != nil {
		return nil, nil, err
	}

	if _, failed := report.Failures[CheckDuplicateRows]; failed {
		raw.aggregateDuplicates(agg)
	}
	_, fillDates := report.Failures[CheckMissingDates]
	if !fillDates {
		// rerun the gap scan: fixing duplicates may expose gaps that
		// the original audit could not check
		fillDates = raw.missingDates(freq, o).Len() > 0
	}
	if fillDates {
		raw.fillGaps(freq)
	}

	if copt.CaseSpecific {
		if _, found := report.CaseSpecific[CheckNegativeValues]; found {
			raw.clampNegatives()
		}
		if _, found := report.CaseSpecific[CheckLeadingZeros]; found {
			raw.dropLeadingZeros()
		}
	}

	cleaned := raw.frame(o)
	recheck, err := Audit(cleaned, freq, opt)
	if err != nil {
		return nil, nil, err
	}
	return cleaned, recheck, nil
}

// rawSeries holds per-id rows sorted by time, duplicates retained.
type rawSeries struct {
	order []string
	rows  map[string][]rawRow
}

type rawRow struct {
	t time.Time
	y float64
}

func newRawSeries(tbl tabular.Table, o Options) (*rawSeries, error) {
	if tbl.Len() == 0 {
		return nil, ErrNoRows
	}
	ids, _, err := idColumn(tbl, o.IDCol)
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
	if timeCol.Kind != tabular.KindTime {
		return nil, &DataValidationError{
			Kind: KindShape, Column: o.TimeCol,
			Detail: "audit requires a timestamp axis",
		}
	}

	rs := &rawSeries{rows: make(map[string][]rawRow)}
	for pos, id := range ids {
		if _, seen := rs.rows[id]; !seen {
			rs.order = append(rs.order, id)
		}
		rs.rows[id] = append(rs.rows[id], rawRow{t: timeCol.Times[pos], y: target[pos]})
	}
	for _, id := range rs.order {
		rows := rs.rows[id]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].t.Before(rows[j].t) })
	}
	return rs, nil
}

func (rs *rawSeries) duplicateRows(o Options) *tabular.Frame {
	var ids []string
	var times []time.Time
	for _, id := range rs.order {
		rows := rs.rows[id]
		for i := 1; i < len(rows); i++ {
			if rows[i].t.Equal(rows[i-1].t) {
				ids = append(ids, id)
				times = append(times, rows[i].t)
			}
		}
	}
	f, _ := tabular.NewFrame(
		tabular.Strings(o.IDCol, ids),
		tabular.Times(o.TimeCol, times),
	)
	return f
}

func (rs *rawSeries) missingDates(freq Frequency, o Options) *tabular.Frame {
	var ids []string
	var times []time.Time
	for _, id := range rs.order {
		rows := rs.rows[id]
		for i := 1; i < len(rows); i++ {
			for expected := freq.Next(rows[i-1].t); expected.Before(rows[i].t); expected = freq.Next(expected) {
				ids = append(ids, id)
				times = append(times, expected)
			}
		}
	}
	f, _ := tabular.NewFrame(
		tabular.Strings(o.IDCol, ids),
		tabular.Times(o.TimeCol, times),
	)
	return f
}

func (rs *rawSeries) negativeValues(o Options) *tabular.Frame {
	var ids []string
	var times []time.Time
	var vals []float64
	for _, id := range rs.order {
		for _, r := range rs.rows[id] {
			if r.y < 0 {
				ids = append(ids, id)
				times = append(times, r.t)
				vals = append(vals, r.y)
			}
		}
	}
	f, _ := tabular.NewFrame(
		tabular.Strings(o.IDCol, ids),
		tabular.Times(o.TimeCol, times),
		tabular.Floats(o.TargetCol, vals),
	)
	return f
}

func (rs *rawSeries) leadingZeros(o Options) *tabular.Frame {
	var ids []string
	var counts []int64
	for _, id := range rs.order {
		rows := rs.rows[id]
		var n int64
		for _, r := range rows {
			if r.y != 0 {
				break
			}
			n++
		}
		if n > 0 && int(n) < len(rows) {
			ids = append(ids, id)
			counts = append(counts, n)
		}
	}
	f, _ := tabular.NewFrame(
		tabular.Strings(o.IDCol, ids),
		tabular.Ints("leading_zeros", counts),
	)
	return f
}

func (rs *rawSeries) aggregateDuplicates(agg func([]float64) float64) {
	for _, id := range rs.order {
		rows := rs.rows[id]
		out := make([]rawRow, 0, len(rows))
		for i := 0; i < len(rows); {
			j := i
			for j < len(rows) && rows[j].t.Equal(rows[i].t) {
				j++
			}
			if j-i == 1 {
				out = append(out, rows[i])
			} else {
				vals := make([]float64, 0, j-i)
				for _, r := range rows[i:j] {
					vals = append(vals, r.y)
				}
				out = append(out, rawRow{t: rows[i].t, y: agg(vals)})
			}
			i = j
		}
		rs.rows[id] = out
	}
}

func (rs *rawSeries) fillGaps(freq Frequency) {
	for _, id := range rs.order {
		rows := rs.rows[id]
		out := make([]rawRow, 0, len(rows))
		for i, r := range rows {
			if i > 0 {
				// forward fill the last observed target into the gap
				for expected := freq.Next(out[len(out)-1].t); expected.Before(r.t); expected = freq.Next(expected) {
					out = append(out, rawRow{t: expected, y: out[len(out)-1].y})
				}
			}
			out = append(out, r)
		}
		rs.rows[id] = out
	}
}

func (rs *rawSeries) clampNegatives() {
	for _, id := range rs.order {
		rows := rs.rows[id]
		for i := range rows {
			if rows[i].y < 0 {
				rows[i].y = 0
			}
		}
	}
}

func (rs *rawSeries) dropLeadingZeros() {
	for _, id := range rs.order {
		rows := rs.rows[id]
		var i int
		for i < len(rows)-1 && rows[i].y == 0 {
			i++
		}
		rs.rows[id] = rows[i:]
	}
}

func (rs *rawSeries) frame(o Options) *tabular.Frame {
	var ids []string
	var times []time.Time
	var vals []float64
	for _, id := range rs.order {
		for _, r := range rs.rows[id] {
			ids = append(ids, id)
			times = append(times, r.t)
			vals = append(vals, r.y)
		}
	}
	f, err := tabular.NewFrame(
		tabular.Strings(o.IDCol, ids),
		tabular.Times(o.TimeCol, times),
		tabular.Floats(o.TargetCol, vals),
	)
	if err != nil {
		panic(fmt.Sprintf("timedataset: building cleaned frame: %v", err))
	}
	return f
}

func categoricalColumns(tbl tabular.Table, o Options) []string {
	var names []string
	for _, name := range tbl.Columns() {
		if name == o.IDCol || name == o.TimeCol {
			continue
		}
		c, _ := tbl.Column(name)
		if c.Kind == tabular.KindString {
			names = append(names, name)
		}
	}
	return names
}
