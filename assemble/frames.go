package assemble

import (
	"strings"
	"time"

	"github.com/PyQuantSharp/timegpt/tabular"
	"github.com/PyQuantSharp/timegpt/timedataset"
	"github.com/PyQuantSharp/timegpt/transport"
)

// CutoffCol is the cross validation window boundary column.
const CutoffCol = "cutoff"

// ForecastFrame builds the future-dated output table for a forecast
// response: one row per series per horizon step, in the dataset's
// series order.
func ForecastFrame(ds *timedataset.Dataset, resp *transport.ForecastResponse, h int) (*tabular.Frame, error) {
	rows := ds.NumSeries() * h
	if len(resp.Mean) != rows {
		return nil, assemblyError(
			"expected %d rows (%d series x horizon %d), response has %d",
			rows, ds.NumSeries(), h, len(resp.Mean),
		)
	}

	ids := make([]string, 0, rows)
	var times []time.Time
	var steps []int64
	for i := range ds.Series {
		s := &ds.Series[i]
		for j := 0; j < h; j++ {
			ids = append(ids, s.ID)
		}
		if s.Integer() {
			steps = append(steps, ds.FutureSteps(s, h)...)
		} else {
			times = append(times, ds.FutureTimes(s, h)...)
		}
	}

	cols := []tabular.Column{idColumn(ds, ids)}
	cols = append(cols, axisColumn(ds, times, steps))
	cols = append(cols, tabular.Floats(PointCol, resp.Mean))
	intervalCols, err := intervalColumns(resp, rows)
	if err != nil {
		return nil, err
	}
	cols = append(cols, intervalCols...)
	return tabular.NewFrame(cols...)
}

// InsampleFrame builds the historical output table: one row per
// fitted in-sample point. Sizes tells how many trailing points of each
// series the service fitted. The original target is carried alongside
// the fitted values.
func InsampleFrame(ds *timedataset.Dataset, resp *transport.ForecastResponse) (*tabular.Frame, error) {
	return insampleBase(ds, resp)
}

// AnomalyFrame builds the anomaly detection output table: in-sample
// rows with the anomaly flag and, for online detection, the score
// columns.
func AnomalyFrame(ds *timedataset.Dataset, resp *transport.ForecastResponse) (*tabular.Frame, error) {
	frame, err := insampleBase(ds, resp)
	if err != nil {
		return nil, err
	}
	rows := frame.Len()
	if len(resp.Anomaly) != rows {
		return nil, assemblyError(
			"anomaly flags cover %d rows, table has %d", len(resp.Anomaly), rows,
		)
	}
	flags := make([]float64, rows)
	for i, a := range resp.Anomaly {
		if a {
			flags[i] = 1
		}
	}
	if err := frame.AddColumn(tabular.Floats("anomaly", flags)); err != nil {
		return nil, err
	}
	if resp.AnomalyScore != nil {
		if err := frame.AddColumn(tabular.Floats("anomaly_score", resp.AnomalyScore)); err != nil {
			return nil, err
		}
	}
	if resp.AccumulatedAnomalyScore != nil {
		if err := frame.AddColumn(tabular.Floats("accumulated_anomaly_score", resp.AccumulatedAnomalyScore)); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// CVFrame builds the cross validation output table. The response's
// Idxs address rows of the concatenated input series; each window of h
// rows shares a cutoff, the timestamp just before the window starts.
func CVFrame(ds *timedataset.Dataset, resp *transport.ForecastResponse, h int) (*tabular.Frame, error) {
	if len(resp.Sizes) != ds.NumSeries() {
		return nil, assemblyError(
			"response sizes cover %d series, dataset has %d", len(resp.Sizes), ds.NumSeries(),
		)
	}
	rows := 0
	for _, n := range resp.Sizes {
		rows += n
	}
	if len(resp.Mean) != rows || len(resp.Idxs) != rows {
		return nil, assemblyError(
			"expected %d rows, response has %d means and %d idxs",
			rows, len(resp.Mean), len(resp.Idxs),
		)
	}
	if rows%h != 0 {
		return nil, assemblyError(
			"%d rows do not divide into windows of %d", rows, h,
		)
	}

	var allTimes []time.Time
	var allSteps []int64
	allY := make([]float64, 0, ds.TotalRows())
	for i := range ds.Series {
		s := &ds.Series[i]
		if s.Integer() {
			allSteps = append(allSteps, s.Steps...)
		} else {
			allTimes = append(allTimes, s.Times...)
		}
		allY = append(allY, s.Y...)
	}
	total := len(allY)

	cutoffIdxs := make([]int64, 0, rows)
	for start := 0; start < rows; start += h {
		cutoff := resp.Idxs[start] - 1
		if cutoff < 0 || int(cutoff) >= total {
			return nil, assemblyError("cutoff index %d out of range", cutoff)
		}
		for j := 0; j < h; j++ {
			cutoffIdxs = append(cutoffIdxs, cutoff)
		}
	}

	ids := make([]string, 0, rows)
	for i := range ds.Series {
		for j := 0; j < resp.Sizes[i]; j++ {
			ids = append(ids, ds.Series[i].ID)
		}
	}
	y := make([]float64, rows)
	for i, idx := range resp.Idxs {
		if idx < 0 || int(idx) >= total {
			return nil, assemblyError("row index %d out of range", idx)
		}
		y[i] = allY[idx]
	}

	cols := []tabular.Column{idColumn(ds, ids)}
	if len(allTimes) > 0 {
		cols = append(cols,
			takeTimes(ds.TimeCol, allTimes, resp.Idxs),
			takeTimes(CutoffCol, allTimes, cutoffIdxs),
		)
	} else {
		cols = append(cols,
			takeSteps(ds.TimeCol, allSteps, resp.Idxs),
			takeSteps(CutoffCol, allSteps, cutoffIdxs),
		)
	}
	cols = append(cols,
		tabular.Floats(ds.TargetCol, y),
		tabular.Floats(PointCol, resp.Mean),
	)
	intervalCols, err := intervalColumns(resp, rows)
	if err != nil {
		return nil, err
	}
	cols = append(cols, intervalCols...)
	return tabular.NewFrame(cols...)
}

// FeatureContributionFrame lays the response's per-feature
// contribution rows alongside the output table's id and axis columns.
// The last contribution column is the model's base value.
func FeatureContributionFrame(out *tabular.Frame, exogNames []string, contributions [][]float64) (*tabular.Frame, error) {
	if contributions == nil {
		return nil, nil
	}
	rows := out.Len()
	if len(contributions) != rows {
		return nil, assemblyError(
			"feature contributions cover %d rows, table has %d", len(contributions), rows,
		)
	}
	names := append(append([]string{}, exogNames...), "base_value")

	cols := make([]tabular.Column, 0, len(names)+3)
	keep := out.Columns()
	if len(keep) > 2 {
		keep = keep[:2]
	}
	for _, name := range append(keep, PointCol) {
		c, ok := out.Column(name)
		if !ok {
			return nil, assemblyError("output table has no %q column", name)
		}
		cols = append(cols, c)
	}
	for j, name := range names {
		vals := make([]float64, rows)
		for i, row := range contributions {
			if len(row) != len(names) {
				return nil, assemblyError(
					"row %d has %d contributions, expected %d", i, len(row), len(names),
				)
			}
			vals[i] = row[j]
		}
		cols = append(cols, tabular.Floats(name, vals))
	}
	return tabular.NewFrame(cols...)
}

// ConvertLevelToQuantiles rewrites a leveled output table into its
// quantile form: interval bound columns are dropped and each requested
// quantile gets a column copied from the bound that backs it.
func ConvertLevelToQuantiles(frame *tabular.Frame, quantiles []float64, f LevelFormatter) (*tabular.Frame, error) {
	sorted := append([]float64{}, quantiles...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	var cols []tabular.Column
	for _, name := range frame.Columns() {
		if strings.Contains(name, "-lo-") || strings.Contains(name, "-hi-") {
			continue
		}
		c, _ := frame.Column(name)
		cols = append(cols, c)
	}
	for _, q := range sorted {
		src := quantileSource(q, f)
		c, ok := frame.Column(src)
		if !ok {
			return nil, assemblyError(
				"quantile %v needs column %q, not present", q, src,
			)
		}
		c.Name = QuantileColumn(q)
		cols = append(cols, c)
	}
	return tabular.NewFrame(cols...)
}

// ConcatInsample interleaves in-sample rows above each series' future
// rows, producing the add-history output sorted by series and time.
// Columns follow the future frame; extra in-sample columns (the
// original target) are dropped.
func ConcatInsample(hist, future *tabular.Frame, histSizes []int, h int) (*tabular.Frame, error) {
	nSeries := len(histSizes)
	if future.Len() != nSeries*h {
		return nil, assemblyError(
			"future rows %d do not match %d series x horizon %d", future.Len(), nSeries, h,
		)
	}
	histRows := 0
	for _, n := range histSizes {
		histRows += n
	}
	if hist.Len() != histRows {
		return nil, assemblyError(
			"in-sample rows %d do not match fitted sizes total %d", hist.Len(), histRows,
		)
	}

	out := make([]tabular.Column, 0, len(future.Columns()))
	for _, name := range future.Columns() {
		fc, _ := future.Column(name)
		hc, ok := hist.Column(name)
		if !ok || hc.Kind != fc.Kind {
			return nil, assemblyError(
				"in-sample output is missing column %q", name,
			)
		}
		merged := tabular.Column{Name: name, Kind: fc.Kind}
		hOff, fOff := 0, 0
		for i := 0; i < nSeries; i++ {
			appendRange(&merged, hc, hOff, hOff+histSizes[i])
			appendRange(&merged, fc, fOff, fOff+h)
			hOff += histSizes[i]
			fOff += h
		}
		out = append(out, merged)
	}
	return tabular.NewFrame(out...)
}

func appendRange(dst *tabular.Column, src tabular.Column, from, to int) {
	switch src.Kind {
	case tabular.KindString:
		dst.Strings = append(dst.Strings, src.Strings[from:to]...)
	case tabular.KindTime:
		dst.Times = append(dst.Times, src.Times[from:to]...)
	case tabular.KindInt:
		dst.Ints = append(dst.Ints, src.Ints[from:to]...)
	case tabular.KindFloat:
		dst.Floats = append(dst.Floats, src.Floats[from:to]...)
	}
}

func insampleBase(ds *timedataset.Dataset, resp *transport.ForecastResponse) (*tabular.Frame, error) {
	if len(resp.Sizes) != ds.NumSeries() {
		return nil, assemblyError(
			"response sizes cover %d series, dataset has %d", len(resp.Sizes), ds.NumSeries(),
		)
	}
	rows := 0
	for i, n := range resp.Sizes {
		if n > ds.Series[i].Len() {
			return nil, assemblyError(
				"series %q: %d fitted points but only %d observations",
				ds.Series[i].ID, n, ds.Series[i].Len(),
			)
		}
		rows += n
	}
	if len(resp.Mean) != rows {
		return nil, assemblyError(
			"expected %d rows, response has %d", rows, len(resp.Mean),
		)
	}

	ids := make([]string, 0, rows)
	var times []time.Time
	var steps []int64
	y := make([]float64, 0, rows)
	for i := range ds.Series {
		s := &ds.Series[i]
		n := resp.Sizes[i]
		tail := s.Len() - n
		for j := 0; j < n; j++ {
			ids = append(ids, s.ID)
		}
		if s.Integer() {
			steps = append(steps, s.Steps[tail:]...)
		} else {
			times = append(times, s.Times[tail:]...)
		}
		y = append(y, s.Y[tail:]...)
	}

	cols := []tabular.Column{idColumn(ds, ids)}
	cols = append(cols, axisColumn(ds, times, steps))
	cols = append(cols,
		tabular.Floats(ds.TargetCol, y),
		tabular.Floats(PointCol, resp.Mean),
	)
	intervalCols, err := intervalColumns(resp, rows)
	if err != nil {
		return nil, err
	}
	cols = append(cols, intervalCols...)
	return tabular.NewFrame(cols...)
}

func intervalColumns(resp *transport.ForecastResponse, rows int) ([]tabular.Column, error) {
	keys := sortedIntervalKeys(resp.Intervals)
	cols := make([]tabular.Column, 0, len(keys))
	for _, k := range keys {
		vals := resp.Intervals[k]
		if len(vals) != rows {
			return nil, assemblyError(
				"interval column %q covers %d rows, table has %d", k, len(vals), rows,
			)
		}
		cols = append(cols, tabular.Floats(PointCol+"-"+k, vals))
	}
	return cols, nil
}

func idColumn(ds *timedataset.Dataset, ids []string) tabular.Column {
	return tabular.Strings(ds.IDCol, ids)
}

func axisColumn(ds *timedataset.Dataset, times []time.Time, steps []int64) tabular.Column {
	if len(times) > 0 || len(steps) == 0 {
		return tabular.Times(ds.TimeCol, times)
	}
	return tabular.Ints(ds.TimeCol, steps)
}

func takeTimes(name string, all []time.Time, idxs []int64) tabular.Column {
	out := make([]time.Time, len(idxs))
	for i, idx := range idxs {
		out[i] = all[idx]
	}
	return tabular.Times(name, out)
}

func takeSteps(name string, all []int64, idxs []int64) tabular.Column {
	out := make([]int64, len(idxs))
	for i, idx := range idxs {
		out[i] = all[idx]
	}
	return tabular.Ints(name, out)
}
