package timedataset

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoRows           = errors.New("table has no rows")
	ErrInconsistentFreq = errors.New("inconsistent time spacing across series")
)

// ValidationKind classifies the data problems Normalize can report.
type ValidationKind string

const (
	KindMissingColumn ValidationKind = "missing-column"
	KindNonNumeric    ValidationKind = "non-numeric"
	KindMissingValues ValidationKind = "missing-values"
	KindDuplicate     ValidationKind = "duplicate"
	KindGap           ValidationKind = "gap"
	KindShape         ValidationKind = "shape"
)

// DataValidationError reports a malformed input table with enough
// context to fix it: the offending series, column and timestamp where
// applicable.
type DataValidationError struct {
	Kind      ValidationKind
	SeriesID  string
	Column    string
	Timestamp time.Time
	Step      int64
	Detail    string
}

func (e *DataValidationError) Error() string {
	msg := fmt.Sprintf("data validation failed (%s)", e.Kind)
	if e.SeriesID != "" {
		msg += fmt.Sprintf(", series %q", e.SeriesID)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(", column %q", e.Column)
	}
	if !e.Timestamp.IsZero() {
		msg += fmt.Sprintf(", at %s", e.Timestamp.Format(time.RFC3339))
	}
	if e.Detail != "" {
		msg += ", " + e.Detail
	}
	return msg
}

// FrequencyInferenceError reports that no single sampling frequency
// could be inferred and none was supplied.
type FrequencyInferenceError struct {
	SeriesID string
	Detail   string
}

func (e *FrequencyInferenceError) Error() string {
	msg := "unable to infer frequency"
	if e.SeriesID != "" {
		msg += fmt.Sprintf(" for series %q", e.SeriesID)
	}
	if e.Detail != "" {
		msg += ", " + e.Detail
	}
	return msg + "; check for missing, duplicated or irregular timestamps or pass an explicit frequency"
}
