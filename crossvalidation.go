package timegpt

import (
	"context"

	"github.com/PyQuantSharp/timegpt/assemble"
	"github.com/PyQuantSharp/timegpt/partition"
	"github.com/PyQuantSharp/timegpt/tabular"
	"github.com/PyQuantSharp/timegpt/transport"
)

const endpointCrossValidation = "/v2/cross_validation"

// CrossValidation evaluates the model over sliding windows of
// historical data. Each series contributes NWindows windows of h
// points, the last one ending at the series' final observation, with
// consecutive window starts StepSize points apart. The returned frame
// has one row per series per window per horizon step, with a cutoff
// column marking the last training timestamp of each window.
func (c *Client) CrossValidation(ctx context.Context, tbl tabular.Table, h int, opt *CrossValidationOptions) (*tabular.Frame, error) {
	if opt == nil {
		opt = &CrossValidationOptions{}
	}
	if h <= 0 {
		return nil, ErrNonPositiveHorizon
	}
	level, quantiles, err := prepareLevels(opt.Level, opt.Quantiles)
	if err != nil {
		return nil, err
	}
	model := orDefault(opt.Model, ModelTimeGPT)
	nWindows := opt.NWindows
	if nWindows <= 0 {
		nWindows = 1
	}
	stepSize := opt.StepSize
	if stepSize <= 0 {
		stepSize = h
	}

	ds, err := c.normalize(tbl, opt.Input)
	if err != nil {
		return nil, err
	}
	plan, err := c.planExog(ds, opt.HistExog, nil, 0)
	if err != nil {
		return nil, err
	}

	inputSize, modelHorizon, err := c.modelParams(ctx, model, ds.Freq.String())
	if err != nil {
		return nil, err
	}
	c.warnHorizon(h, modelHorizon)
	if opt.FinetuneSteps == 0 && len(plan.features()) == 0 {
		keep := restrictInput(len(level) > 0, inputSize, modelHorizon, h)
		keep += h + stepSize*(nWindows-1)
		ds = tail(ds, keep)
	}

	batches, err := c.split(ds)
	if err != nil {
		return nil, err
	}

	resp, err := c.dispatch(ctx, endpointCrossValidation, batches, func(b partition.Batch) transport.ForecastRequest {
		return transport.ForecastRequest{
			Series:           buildSeries(b, plan),
			Model:            model,
			H:                h,
			NWindows:         nWindows,
			StepSize:         stepSize,
			Freq:             ds.Freq.String(),
			CleanExFirst:     boolDefault(opt.CleanExFirst, true),
			HistExog:         plan.histIdxs(),
			Level:            level,
			FinetuneSteps:    opt.FinetuneSteps,
			FinetuneDepth:    opt.FinetuneDepth,
			FinetuneLoss:     opt.FinetuneLoss,
			FinetunedModelID: opt.FinetunedModelID,
			RefitIntervals:   boolDefault(opt.Refit, true),
		}
	})
	if err != nil {
		return nil, err
	}

	frame, err := assemble.CVFrame(ds, resp, h)
	if err != nil {
		return nil, err
	}
	if quantiles != nil {
		frame, err = assemble.ConvertLevelToQuantiles(frame, quantiles, c.opt.LevelFormat)
	}
	return frame, err
}
