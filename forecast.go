package timegpt

import (
	"context"

	"github.com/PyQuantSharp/timegpt/assemble"
	"github.com/PyQuantSharp/timegpt/partition"
	"github.com/PyQuantSharp/timegpt/tabular"
	"github.com/PyQuantSharp/timegpt/transport"
)

const (
	endpointForecast         = "/v2/forecast"
	endpointHistoricForecast = "/v2/historic_forecast"
)

// ForecastResult is the outcome of a Forecast call. Frame holds one
// row per series per horizon step (plus in-sample rows when history
// was requested). FeatureContributions is populated only when asked
// for and exogenous features were sent.
type ForecastResult struct {
	Frame                *tabular.Frame
	FeatureContributions *tabular.Frame
}

// Forecast predicts h future points for every series in tbl.
func (c *Client) Forecast(ctx context.Context, tbl tabular.Table, h int, opt *ForecastOptions) (*ForecastResult, error) {
	if opt == nil {
		opt = &ForecastOptions{}
	}
	if h <= 0 {
		return nil, ErrNonPositiveHorizon
	}
	level, quantiles, err := prepareLevels(opt.Level, opt.Quantiles)
	if err != nil {
		return nil, err
	}
	model := orDefault(opt.Model, ModelTimeGPT)

	ds, err := c.normalize(tbl, opt.Input)
	if err != nil {
		return nil, err
	}
	plan, err := c.planExog(ds, opt.HistExog, opt.FutureExog, h)
	if err != nil {
		return nil, err
	}

	inputSize, modelHorizon, err := c.modelParams(ctx, model, ds.Freq.String())
	if err != nil {
		return nil, err
	}
	c.warnHorizon(h, modelHorizon)
	if opt.FinetuneSteps == 0 && len(plan.features()) == 0 {
		ds = tail(ds, restrictInput(len(level) > 0, inputSize, modelHorizon, h))
	}

	batches, err := c.split(ds)
	if err != nil {
		return nil, err
	}

	askContributions := opt.FeatureContributions && len(plan.features()) > 0
	build := func(b partition.Batch) transport.ForecastRequest {
		return transport.ForecastRequest{
			Series:               buildSeries(b, plan),
			Model:                model,
			H:                    h,
			Freq:                 ds.Freq.String(),
			CleanExFirst:         boolDefault(opt.CleanExFirst, true),
			HistExog:             plan.histIdxs(),
			Level:                level,
			FinetuneSteps:        opt.FinetuneSteps,
			FinetuneDepth:        opt.FinetuneDepth,
			FinetuneLoss:         opt.FinetuneLoss,
			FinetunedModelID:     opt.FinetunedModelID,
			FeatureContributions: askContributions,
		}
	}

	resp, err := c.dispatch(ctx, endpointForecast, batches, build)
	if err != nil {
		return nil, err
	}
	frame, err := assemble.ForecastFrame(ds, resp, h)
	if err != nil {
		return nil, err
	}

	// contributions cover only the future rows, so the frame is built
	// before any in-sample rows are merged in
	res := &ForecastResult{}
	if askContributions {
		res.FeatureContributions, err = assemble.FeatureContributionFrame(frame, plan.features(), resp.FeatureContributions)
		if err != nil {
			return nil, err
		}
	}

	if opt.AddHistory {
		histResp, err := c.dispatch(ctx, endpointHistoricForecast, batches, func(b partition.Batch) transport.ForecastRequest {
			req := build(b)
			req.H = 0
			req.Series.XFuture = nil
			req.FeatureContributions = false
			return req
		})
		if err != nil {
			return nil, err
		}
		histFrame, err := assemble.InsampleFrame(ds, histResp)
		if err != nil {
			return nil, err
		}
		frame, err = assemble.ConcatInsample(histFrame, frame, histResp.Sizes, h)
		if err != nil {
			return nil, err
		}
	}

	if quantiles != nil {
		frame, err = assemble.ConvertLevelToQuantiles(frame, quantiles, c.opt.LevelFormat)
		if err != nil {
			return nil, err
		}
	}

	res.Frame = frame
	return res, nil
}

// HistoricForecast returns fitted in-sample values for every series.
func (c *Client) HistoricForecast(ctx context.Context, tbl tabular.Table, opt *ForecastOptions) (*tabular.Frame, error) {
	if opt == nil {
		opt = &ForecastOptions{}
	}
	level, quantiles, err := prepareLevels(opt.Level, opt.Quantiles)
	if err != nil {
		return nil, err
	}
	model := orDefault(opt.Model, ModelTimeGPT)

	ds, err := c.normalize(tbl, opt.Input)
	if err != nil {
		return nil, err
	}
	plan, err := c.planExog(ds, opt.HistExog, nil, 0)
	if err != nil {
		return nil, err
	}
	batches, err := c.split(ds)
	if err != nil {
		return nil, err
	}

	resp, err := c.dispatch(ctx, endpointHistoricForecast, batches, func(b partition.Batch) transport.ForecastRequest {
		return transport.ForecastRequest{
			Series:           buildSeries(b, plan),
			Model:            model,
			Freq:             ds.Freq.String(),
			CleanExFirst:     boolDefault(opt.CleanExFirst, true),
			Level:            level,
			FinetuneSteps:    opt.FinetuneSteps,
			FinetuneDepth:    opt.FinetuneDepth,
			FinetuneLoss:     opt.FinetuneLoss,
			FinetunedModelID: opt.FinetunedModelID,
		}
	})
	if err != nil {
		return nil, err
	}
	frame, err := assemble.InsampleFrame(ds, resp)
	if err != nil {
		return nil, err
	}
	if quantiles != nil {
		frame, err = assemble.ConvertLevelToQuantiles(frame, quantiles, c.opt.LevelFormat)
	}
	return frame, err
}
