// Package partition splits a normalized dataset into request-sized
// batches while preserving series order.
package partition

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/PyQuantSharp/timegpt/timedataset"
)

// Limits bounds a single batch. Zero values mean unbounded, so the
// zero Limits yields one batch holding every series.
type Limits struct {
	// MaxSeries caps the number of series per batch.
	MaxSeries int
	// MaxBytes caps the estimated encoded payload size per batch.
	MaxBytes int
}

// Batch is an ordered slice of the dataset destined for one request.
// Index is the batch's position in the original series order and is
// how responses are matched back up after concurrent dispatch.
type Batch struct {
	Index  int
	Series []timedataset.Series
}

func (b Batch) NumSeries() int {
	return len(b.Series)
}

func (b Batch) TotalRows() int {
	var n int
	for _, s := range b.Series {
		n += s.Len()
	}
	return n
}

func (b Batch) IDs() []string {
	ids := make([]string, len(b.Series))
	for i, s := range b.Series {
		ids[i] = s.ID
	}
	return ids
}

// PayloadTooLargeError reports a single series whose encoded size
// alone exceeds the byte limit, making it impossible to batch.
type PayloadTooLargeError struct {
	SeriesID string
	Bytes    int
	MaxBytes int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf(
		"series %q encodes to %d bytes, exceeding the %d byte batch limit",
		e.SeriesID, e.Bytes, e.MaxBytes,
	)
}

// Split greedily packs the dataset's series into batches, preserving
// the dataset's series order. Every series lands in exactly one batch.
func Split(ds *timedataset.Dataset, lim Limits) ([]Batch, error) {
	var batches []Batch
	var cur Batch
	var curBytes int

	flush := func() {
		if len(cur.Series) == 0 {
			return
		}
		cur.Index = len(batches)
		batches = append(batches, cur)
		cur = Batch{}
		curBytes = 0
	}

	for _, s := range ds.Series {
		size := 0
		if lim.MaxBytes > 0 {
			size = estimateBytes(s)
			if size > lim.MaxBytes {
				return nil, &PayloadTooLargeError{SeriesID: s.ID, Bytes: size, MaxBytes: lim.MaxBytes}
			}
		}
		if lim.MaxSeries > 0 && len(cur.Series) >= lim.MaxSeries {
			flush()
		}
		if lim.MaxBytes > 0 && len(cur.Series) > 0 && curBytes+size > lim.MaxBytes {
			flush()
		}
		cur.Series = append(cur.Series, s)
		curBytes += size
	}
	flush()
	return batches, nil
}

// ByCount divides the dataset into at most n batches of near-equal
// series counts, preserving order. n < 1 is treated as 1.
func ByCount(ds *timedataset.Dataset, n int) []Batch {
	total := ds.NumSeries()
	if total == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > total {
		n = total
	}
	per := (total + n - 1) / n

	var batches []Batch
	for i := 0; i < total; i += per {
		end := i + per
		if end > total {
			end = total
		}
		batches = append(batches, Batch{
			Index:  len(batches),
			Series: ds.Series[i:end],
		})
	}
	return batches
}

// estimateBytes approximates a series' wire footprint by encoding its
// value arrays. Keys and framing are ignored; they are noise next to
// the arrays themselves.
func estimateBytes(s timedataset.Series) int {
	n := encodedLen(s.Y)
	for _, vals := range s.Exog {
		n += encodedLen(vals)
	}
	return n
}

func encodedLen(vals []float64) int {
	b, err := json.Marshal(vals)
	if err != nil {
		return 0
	}
	return len(b)
}
