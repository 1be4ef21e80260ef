// Package timegpt is a client for the TimeGPT forecasting service. It
// validates and normalizes tabular input, splits it into
// request-sized batches, dispatches them concurrently with retries,
// and reassembles the responses into output tables.
package timegpt

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/PyQuantSharp/timegpt/assemble"
	"github.com/PyQuantSharp/timegpt/partition"
	"github.com/PyQuantSharp/timegpt/tabular"
	"github.com/PyQuantSharp/timegpt/timedataset"
	"github.com/PyQuantSharp/timegpt/transport"
)

// Client talks to the forecasting service. Safe for concurrent use;
// it holds no state between calls.
type Client struct {
	opt    Options
	http   *transport.Client
	logger *logrus.Logger
}

// New returns a Client for the given options. A nil opt uses
// defaults, which fails since there is no API key.
func New(opt *Options) (*Client, error) {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	o := *opt

	logger := o.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	httpClient, err := transport.New(&transport.Options{
		APIKey:        o.APIKey,
		BaseURL:       o.BaseURL,
		Timeout:       o.Timeout,
		MaxRetries:    o.MaxRetries,
		RetryInterval: o.RetryInterval,
		MaxWaitTime:   o.MaxWaitTime,
		Logger:        logger,
		Metrics:       o.Metrics,
		HTTPClient:    o.HTTPClient,
		UserAgent:     "timegpt-go",
	})
	if err != nil {
		return nil, err
	}
	return &Client{opt: o, http: httpClient, logger: logger}, nil
}

func (c *Client) normalize(tbl tabular.Table, in timedataset.Options) (*timedataset.Dataset, error) {
	ds, err := timedataset.Normalize(tbl, &in)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// split packs the dataset into batches per the client's partitioning
// configuration.
func (c *Client) split(ds *timedataset.Dataset) ([]partition.Batch, error) {
	if c.opt.NumPartitions > 0 {
		return partition.ByCount(ds, c.opt.NumPartitions), nil
	}
	return partition.Split(ds, c.opt.PartitionLimits)
}

// dispatch posts one request per batch and merges the responses back
// into dataset order.
func (c *Client) dispatch(ctx context.Context, endpoint string, batches []partition.Batch, build func(partition.Batch) transport.ForecastRequest) (*transport.ForecastResponse, error) {
	payloads := make([]transport.ForecastRequest, len(batches))
	for i, b := range batches {
		payloads[i] = build(b)
	}
	if len(payloads) == 1 {
		var resp transport.ForecastResponse
		if err := c.http.Post(ctx, endpoint, &payloads[0], &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}
	responses, err := c.http.PostAll(ctx, endpoint, payloads)
	if err != nil {
		return nil, err
	}
	return assemble.MergeResponses(batches, responses)
}

// exogPlan fixes the feature layout for a request: future-capable
// features first, then historical-only ones, matching the service's
// expected ordering.
type exogPlan struct {
	futr []string
	hist []string
	// futureVals holds per-series future rows for each futr column.
	futureVals map[string]map[string][]float64
}

func (p *exogPlan) features() []string {
	return append(append([]string{}, p.futr...), p.hist...)
}

// histIdxs returns the positions of historical-only features in the
// combined ordering, or nil when none are declared.
func (p *exogPlan) histIdxs() []int {
	if len(p.hist) == 0 {
		return nil
	}
	idxs := make([]int, len(p.hist))
	for i := range p.hist {
		idxs[i] = len(p.futr) + i
	}
	return idxs
}

// planExog decides how each exogenous column travels: with future
// values, as historical-only, or dropped. Columns without future
// values that the caller did not declare historical cannot inform a
// forecast and are dropped with a warning.
func (c *Client) planExog(ds *timedataset.Dataset, histExog []string, future tabular.Table, h int) (*exogPlan, error) {
	plan := &exogPlan{}
	histSet := make(map[string]bool, len(histExog))
	for _, name := range histExog {
		if !contains(ds.ExogNames, name) {
			return nil, fmt.Errorf("%q, %w", name, ErrMissingHistExog)
		}
		histSet[name] = true
	}
	if len(ds.ExogNames) == 0 {
		return plan, nil
	}

	var futureCols map[string]bool
	if future != nil {
		vals, cols, err := parseFutureExog(future, ds, h)
		if err != nil {
			return nil, err
		}
		plan.futureVals = vals
		futureCols = cols
	}

	var dropped []string
	for _, name := range ds.ExogNames {
		switch {
		case histSet[name]:
			plan.hist = append(plan.hist, name)
		case futureCols[name]:
			plan.futr = append(plan.futr, name)
		case h == 0:
			// in-sample operations need no future values
			plan.futr = append(plan.futr, name)
		default:
			dropped = append(dropped, name)
		}
	}
	if len(dropped) > 0 {
		c.logger.WithField("columns", dropped).Warn(
			"exogenous columns have no future values and are not declared historical, dropping")
	}
	if len(plan.futr) > 0 {
		c.logger.WithField("columns", plan.futr).Info("using future exogenous features")
	}
	if len(plan.hist) > 0 {
		c.logger.WithField("columns", plan.hist).Info("using historical exogenous features")
	}
	return plan, nil
}

// parseFutureExog reads the future exogenous table into per-series
// per-column rows, validating h rows per series.
func parseFutureExog(tbl tabular.Table, ds *timedataset.Dataset, h int) (map[string]map[string][]float64, map[string]bool, error) {
	ids := make([]string, tbl.Len())
	if idCol, ok := tbl.Column(ds.IDCol); ok {
		for i := range ids {
			ids[i] = idCol.StringAt(i)
		}
	} else {
		for i := range ids {
			ids[i] = ds.Series[0].ID
		}
	}

	cols := make(map[string]bool)
	vals := make(map[string]map[string][]float64)
	for _, name := range ds.ExogNames {
		col, ok := tbl.Column(name)
		if !ok {
			continue
		}
		var data []float64
		switch col.Kind {
		case tabular.KindFloat:
			data = col.Floats
		case tabular.KindInt:
			data = make([]float64, len(col.Ints))
			for i, v := range col.Ints {
				data[i] = float64(v)
			}
		default:
			continue
		}
		cols[name] = true
		for i, id := range ids {
			if vals[id] == nil {
				vals[id] = make(map[string][]float64)
			}
			vals[id][name] = append(vals[id][name], data[i])
		}
	}

	for i := range ds.Series {
		id := ds.Series[i].ID
		for name := range cols {
			if got := len(vals[id][name]); got != h {
				return nil, nil, fmt.Errorf(
					"future values for series %q column %q: %d rows, want %d",
					id, name, got, h,
				)
			}
		}
	}
	return vals, cols, nil
}

// buildSeries encodes a batch into the wire series block. Features
// follow the plan's ordering; future rows are appended only when the
// plan carries future values.
func buildSeries(batch partition.Batch, plan *exogPlan) *transport.SeriesPayload {
	p := &transport.SeriesPayload{
		Y:     make([]float64, 0, batch.TotalRows()),
		Sizes: make([]int, 0, batch.NumSeries()),
	}
	for i := range batch.Series {
		s := &batch.Series[i]
		p.Y = append(p.Y, s.Y...)
		p.Sizes = append(p.Sizes, s.Len())
	}

	features := plan.features()
	if len(features) > 0 {
		p.X = make([][]float64, len(features))
		for j, name := range features {
			for i := range batch.Series {
				p.X[j] = append(p.X[j], batch.Series[i].Exog[name]...)
			}
		}
	}
	if plan.futureVals != nil && len(plan.futr) > 0 {
		p.XFuture = make([][]float64, len(plan.futr))
		for j, name := range plan.futr {
			for i := range batch.Series {
				p.XFuture[j] = append(p.XFuture[j], plan.futureVals[batch.Series[i].ID][name]...)
			}
		}
	}
	return p
}

// prepareLevels resolves the level/quantile pair: at most one may be
// set, and quantiles are converted into the levels that back them.
// The returned quantiles are sorted.
func prepareLevels(level, quantiles []float64) ([]float64, []float64, error) {
	if len(level) > 0 && len(quantiles) > 0 {
		return nil, nil, ErrLevelAndQuantiles
	}
	if len(quantiles) == 0 {
		return level, nil, nil
	}
	levels, err := assemble.LevelsFromQuantiles(quantiles)
	if err != nil {
		return nil, nil, err
	}
	// dedupe: symmetric quantiles share a level
	seen := make(map[float64]bool, len(levels))
	uniq := levels[:0]
	for _, lv := range levels {
		if !seen[lv] {
			seen[lv] = true
			uniq = append(uniq, lv)
		}
	}
	sorted := append([]float64{}, quantiles...)
	sort.Float64s(sorted)
	return uniq, sorted, nil
}

// modelParams fetches the model's input size and horizon. The result
// is deliberately not cached; the client holds no cross-call state.
func (c *Client) modelParams(ctx context.Context, model, freq string) (int, int, error) {
	resp, err := c.fetchModelParams(ctx, model, freq)
	if err != nil {
		return 0, 0, err
	}
	return resp.Detail.InputSize, resp.Detail.Horizon, nil
}

// restrictInput computes how many trailing points per series the
// service actually needs. Levels need extra history for conformal
// intervals.
func restrictInput(hasLevel bool, inputSize, modelHorizon, h int) int {
	if hasLevel {
		return 3*inputSize + max(modelHorizon, h)
	}
	return inputSize
}

// tail returns a dataset whose series keep only their trailing n
// observations. Series shorter than n pass through whole.
func tail(ds *timedataset.Dataset, n int) *timedataset.Dataset {
	out := *ds
	out.Series = make([]timedataset.Series, len(ds.Series))
	for i := range ds.Series {
		s := ds.Series[i]
		if cut := s.Len() - n; cut > 0 {
			if s.Times != nil {
				s.Times = s.Times[cut:]
			}
			if s.Steps != nil {
				s.Steps = s.Steps[cut:]
			}
			s.Y = s.Y[cut:]
			if len(s.Exog) > 0 {
				exog := make(map[string][]float64, len(s.Exog))
				for name, vals := range s.Exog {
					exog[name] = vals[cut:]
				}
				s.Exog = exog
			}
		}
		out.Series[i] = s
	}
	return &out
}

func (c *Client) warnHorizon(h, modelHorizon int) {
	if modelHorizon > 0 && h > modelHorizon {
		c.logger.WithFields(logrus.Fields{
			"h":             h,
			"model_horizon": modelHorizon,
		}).Warn("horizon exceeds the model horizon, forecasts may degrade")
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func boolDefault(b *bool, def bool) *bool {
	if b == nil {
		return &def
	}
	return b
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
