package timedataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PyQuantSharp/timegpt/tabular"
)

func TestAudit(t *testing.T) {
	day := MustParseFrequency("D")
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	testData := map[string]struct {
		frame        *tabular.Frame
		pass         bool
		failures     []AuditCheck
		caseSpecific []AuditCheck
	}{
		"clean": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a", "a"}),
				tabular.Times("ds", daily(start, 3)),
				tabular.Floats("y", []float64{1, 2, 3}),
			),
			pass: true,
		},
		"duplicate rows": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a", "a"}),
				tabular.Times("ds", []time.Time{start, start, start.AddDate(0, 0, 1)}),
				tabular.Floats("y", []float64{1, 2, 3}),
			),
			failures: []AuditCheck{CheckDuplicateRows},
		},
		"missing dates": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a"}),
				tabular.Times("ds", []time.Time{start, start.AddDate(0, 0, 3)}),
				tabular.Floats("y", []float64{1, 2}),
			),
			failures: []AuditCheck{CheckMissingDates},
		},
		"duplicates mask gaps": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a", "a"}),
				tabular.Times("ds", []time.Time{start, start, start.AddDate(0, 0, 3)}),
				tabular.Floats("y", []float64{1, 2, 3}),
			),
			failures: []AuditCheck{CheckDuplicateRows},
		},
		"categorical column": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a", "a"}),
				tabular.Times("ds", daily(start, 3)),
				tabular.Floats("y", []float64{1, 2, 3}),
				tabular.Strings("region", []string{"us", "us", "eu"}),
			),
			failures: []AuditCheck{CheckCategorical},
		},
		"negative values": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a", "a"}),
				tabular.Times("ds", daily(start, 3)),
				tabular.Floats("y", []float64{1, -2, 3}),
			),
			caseSpecific: []AuditCheck{CheckNegativeValues},
		},
		"leading zeros": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a", "a", "a"}),
				tabular.Times("ds", daily(start, 4)),
				tabular.Floats("y", []float64{0, 0, 3, 4}),
			),
			caseSpecific: []AuditCheck{CheckLeadingZeros},
		},
		"all zeros is not leading zeros": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a", "a"}),
				tabular.Times("ds", daily(start, 3)),
				tabular.Floats("y", []float64{0, 0, 0}),
			),
			pass: true,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			report, err := Audit(td.frame, day, nil)
			require.NoError(t, err)
			assert.Equal(t, td.pass, report.Pass)
			for _, check := range td.failures {
				f, ok := report.Failures[check]
				require.True(t, ok, "expected failure %s", check)
				assert.Greater(t, f.Len(), 0)
			}
			assert.Len(t, report.Failures, len(td.failures))
			for _, check := range td.caseSpecific {
				f, ok := report.CaseSpecific[check]
				require.True(t, ok, "expected case-specific finding %s", check)
				assert.Greater(t, f.Len(), 0)
			}
			assert.Len(t, report.CaseSpecific, len(td.caseSpecific))
		})
	}
}

func TestAuditReportsEveryGap(t *testing.T) {
	day := MustParseFrequency("D")
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	frame := mustFrame(t,
		tabular.Strings("unique_id", []string{"a", "a"}),
		tabular.Times("ds", []time.Time{start, start.AddDate(0, 0, 3)}),
		tabular.Floats("y", []float64{1, 2}),
	)
	report, err := Audit(frame, day, nil)
	require.NoError(t, err)

	missing := report.Failures[CheckMissingDates]
	require.NotNil(t, missing)
	col, ok := missing.Column("ds")
	require.True(t, ok)
	assert.Equal(t, []time.Time{
		start.AddDate(0, 0, 1),
		start.AddDate(0, 0, 2),
	}, col.Times)
}

func TestClean(t *testing.T) {
	day := MustParseFrequency("D")
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	testData := map[string]struct {
		frame    *tabular.Frame
		copt     CleanOptions
		expected []float64
		times    []time.Time
		pass     bool
	}{
		"aggregates duplicates with the mean": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a", "a"}),
				tabular.Times("ds", []time.Time{start, start, start.AddDate(0, 0, 1)}),
				tabular.Floats("y", []float64{1, 3, 5}),
			),
			expected: []float64{2, 5},
			times:    daily(start, 2),
			pass:     true,
		},
		"forward fills gaps": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a"}),
				tabular.Times("ds", []time.Time{start, start.AddDate(0, 0, 3)}),
				tabular.Floats("y", []float64{7, 9}),
			),
			expected: []float64{7, 7, 7, 9},
			times:    daily(start, 4),
			pass:     true,
		},
		"deduplication exposes gaps": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a", "a"}),
				tabular.Times("ds", []time.Time{start, start, start.AddDate(0, 0, 2)}),
				tabular.Floats("y", []float64{2, 4, 6}),
			),
			expected: []float64{3, 3, 6},
			times:    daily(start, 3),
			pass:     true,
		},
		"case-specific off leaves negatives": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a", "a"}),
				tabular.Times("ds", daily(start, 3)),
				tabular.Floats("y", []float64{1, -2, 3}),
			),
			expected: []float64{1, -2, 3},
			times:    daily(start, 3),
		},
		"case-specific clamps negatives": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a", "a"}),
				tabular.Times("ds", daily(start, 3)),
				tabular.Floats("y", []float64{1, -2, 3}),
			),
			copt:     CleanOptions{CaseSpecific: true},
			expected: []float64{1, 0, 3},
			times:    daily(start, 3),
			pass:     true,
		},
		"case-specific drops leading zeros": {
			frame: mustFrame(t,
				tabular.Strings("unique_id", []string{"a", "a", "a", "a"}),
				tabular.Times("ds", daily(start, 4)),
				tabular.Floats("y", []float64{0, 0, 3, 4}),
			),
			copt:     CleanOptions{CaseSpecific: true},
			expected: []float64{3, 4},
			times:    daily(start.AddDate(0, 0, 2), 2),
			pass:     true,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			report, err := Audit(td.frame, day, nil)
			require.NoError(t, err)
			require.False(t, report.Pass)

			cleaned, recheck, err := Clean(td.frame, report, day, nil, td.copt)
			require.NoError(t, err)

			y, ok := cleaned.Column("y")
			require.True(t, ok)
			assert.Equal(t, td.expected, y.Floats)

			ds, ok := cleaned.Column("ds")
			require.True(t, ok)
			assert.Equal(t, td.times, ds.Times)

			assert.Equal(t, td.pass, recheck.Pass)
		})
	}
}

func TestCleanDoesNotMutateReport(t *testing.T) {
	day := MustParseFrequency("D")
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	// the duplicate rows mask a gap at day 2
	frame := mustFrame(t,
		tabular.Strings("unique_id", []string{"a", "a", "a"}),
		tabular.Times("ds", []time.Time{start, start, start.AddDate(0, 0, 2)}),
		tabular.Floats("y", []float64{2, 4, 6}),
	)

	report, err := Audit(frame, day, nil)
	require.NoError(t, err)
	require.Contains(t, report.Failures, CheckDuplicateRows)
	require.NotContains(t, report.Failures, CheckMissingDates)

	cleaned, _, err := Clean(frame, report, day, nil, CleanOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, cleaned.Len())

	// the exposed gap was filled without writing into the caller's report
	assert.NotContains(t, report.Failures, CheckMissingDates)
	assert.Len(t, report.Failures, 1)
}

func TestCleanCustomAggregate(t *testing.T) {
	day := MustParseFrequency("D")
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	frame := mustFrame(t,
		tabular.Strings("unique_id", []string{"a", "a"}),
		tabular.Times("ds", []time.Time{start, start}),
		tabular.Floats("y", []float64{1, 9}),
	)
	report, err := Audit(frame, day, nil)
	require.NoError(t, err)

	cleaned, _, err := Clean(frame, report, day, nil, CleanOptions{
		Aggregate: func(vals []float64) float64 {
			max := vals[0]
			for _, v := range vals[1:] {
				if v > max {
					max = v
				}
			}
			return max
		},
	})
	require.NoError(t, err)

	y, ok := cleaned.Column("y")
	require.True(t, ok)
	assert.Equal(t, []float64{9}, y.Floats)
}
