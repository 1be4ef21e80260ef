// Package assemble turns per-batch service responses back into a
// single output table, restoring series order and applying the output
// column naming scheme.
package assemble

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/PyQuantSharp/timegpt/partition"
	"github.com/PyQuantSharp/timegpt/transport"
)

// PointCol is the point forecast output column.
const PointCol = "TimeGPT"

// LevelFormatter renders a confidence level into the level portion of
// an interval column name.
type LevelFormatter func(level float64) string

// TrimZeros renders levels with trailing zeros removed, so 80 becomes
// "80" and 99.5 becomes "99.5". This is the default.
func TrimZeros(level float64) string {
	return strconv.FormatFloat(level, 'f', -1, 64)
}

// FixedDecimals renders levels with exactly n decimal places.
func FixedDecimals(n int) LevelFormatter {
	return func(level float64) string {
		return strconv.FormatFloat(level, 'f', n, 64)
	}
}

// LoColumn and HiColumn name the interval bound columns for a level.
func LoColumn(level float64, f LevelFormatter) string {
	if f == nil {
		f = TrimZeros
	}
	return PointCol + "-lo-" + f(level)
}

func HiColumn(level float64, f LevelFormatter) string {
	if f == nil {
		f = TrimZeros
	}
	return PointCol + "-hi-" + f(level)
}

// QuantileColumn names the output column for a quantile, e.g. 0.25
// becomes "TimeGPT-q-25".
func QuantileColumn(q float64) string {
	return fmt.Sprintf("%s-q-%d", PointCol, int(q*100))
}

// LevelsFromQuantiles recovers the confidence levels needed to serve
// the requested quantiles. Each quantile q maps to level |100-200q|.
func LevelsFromQuantiles(quantiles []float64) ([]float64, error) {
	levels := make([]float64, len(quantiles))
	for i, q := range quantiles {
		if q <= 0 || q >= 1 {
			return nil, fmt.Errorf("quantile %v is outside (0, 1)", q)
		}
		lv := 100 - 200*q
		if lv < 0 {
			lv = -lv
		}
		levels[i] = float64(int(lv))
	}
	return levels, nil
}

// quantileSource names the interval column a quantile's values are
// read from. The median reads the point forecast itself.
func quantileSource(q float64, f LevelFormatter) string {
	if q == 0.5 {
		return PointCol
	}
	lv := 100 - 200*q
	if lv > 0 {
		return LoColumn(float64(int(lv)), f)
	}
	return HiColumn(float64(int(-lv)), f)
}

// AssemblyError reports a response that cannot be merged or shaped
// into the output table.
type AssemblyError struct {
	// BatchIndex is the offending batch, or -1 when the error is not
	// tied to one batch.
	BatchIndex int
	Reason     string
}

func assemblyError(format string, args ...any) *AssemblyError {
	return &AssemblyError{BatchIndex: -1, Reason: fmt.Sprintf(format, args...)}
}

func (e *AssemblyError) Error() string {
	if e.BatchIndex >= 0 {
		return fmt.Sprintf("batch %d: %s", e.BatchIndex, e.Reason)
	}
	return e.Reason
}

// MergeResponses concatenates per-batch responses in batch order into
// one response spanning the whole dataset. Index bookkeeping fields
// are shifted by each batch's row offset so they address the
// concatenated layout. Batches must expose the same column set.
func MergeResponses(batches []partition.Batch, responses []transport.ForecastResponse) (*transport.ForecastResponse, error) {
	if len(batches) != len(responses) {
		return nil, assemblyError(
			"%d batches but %d responses", len(batches), len(responses),
		)
	}
	if len(responses) == 0 {
		return nil, assemblyError("no responses to merge")
	}

	first := responses[0]
	merged := &transport.ForecastResponse{}
	if first.Intervals != nil {
		merged.Intervals = make(map[string][]float64, len(first.Intervals))
	}

	offset := 0
	for i := range responses {
		r := &responses[i]
		if err := sameShape(&first, r, i); err != nil {
			return nil, err
		}
		merged.Mean = append(merged.Mean, r.Mean...)
		merged.Sizes = append(merged.Sizes, r.Sizes...)
		merged.Anomaly = append(merged.Anomaly, r.Anomaly...)
		merged.AnomalyScore = append(merged.AnomalyScore, r.AnomalyScore...)
		merged.AccumulatedAnomalyScore = append(merged.AccumulatedAnomalyScore, r.AccumulatedAnomalyScore...)
		for _, idx := range r.Idxs {
			merged.Idxs = append(merged.Idxs, idx+int64(offset))
		}
		for k, vals := range r.Intervals {
			merged.Intervals[k] = append(merged.Intervals[k], vals...)
		}
		merged.FeatureContributions = append(merged.FeatureContributions, r.FeatureContributions...)
		if r.WeightsX != nil {
			merged.WeightsX = r.WeightsX
		}
		offset += batches[i].TotalRows()
	}
	return merged, nil
}

func sameShape(first, r *transport.ForecastResponse, batch int) error {
	if (first.Intervals == nil) != (r.Intervals == nil) {
		return &AssemblyError{BatchIndex: batch, Reason: "interval columns missing from some batches"}
	}
	if len(first.Intervals) != len(r.Intervals) {
		return &AssemblyError{BatchIndex: batch, Reason: "interval column sets differ between batches"}
	}
	for k := range first.Intervals {
		if _, ok := r.Intervals[k]; !ok {
			return &AssemblyError{BatchIndex: batch, Reason: fmt.Sprintf("interval column %q missing", k)}
		}
	}
	if (first.Anomaly == nil) != (r.Anomaly == nil) {
		return &AssemblyError{BatchIndex: batch, Reason: "anomaly column missing from some batches"}
	}
	return nil
}

// sortedIntervalKeys returns the response's interval keys in a stable
// order for column layout.
func sortedIntervalKeys(intervals map[string][]float64) []string {
	keys := make([]string, 0, len(intervals))
	for k := range intervals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
