package timegpt

import (
	"context"

	"github.com/PyQuantSharp/timegpt/assemble"
	"github.com/PyQuantSharp/timegpt/partition"
	"github.com/PyQuantSharp/timegpt/tabular"
	"github.com/PyQuantSharp/timegpt/transport"
)

const (
	endpointAnomalyDetection       = "/v2/anomaly_detection"
	endpointOnlineAnomalyDetection = "/v2/online_anomaly_detection"

	defaultAnomalyLevel = 99
)

// DetectAnomalies flags historical points falling outside the model's
// prediction interval. The returned frame has one row per in-sample
// point with the observed value, the fitted value and its interval,
// and an anomaly indicator.
func (c *Client) DetectAnomalies(ctx context.Context, tbl tabular.Table, opt *AnomalyOptions) (*tabular.Frame, error) {
	if opt == nil {
		opt = &AnomalyOptions{}
	}
	model := orDefault(opt.Model, ModelTimeGPT)
	level := defaultAnomalyLevel
	if opt.Level != nil {
		level = int(*opt.Level)
	}

	ds, err := c.normalize(tbl, opt.Input)
	if err != nil {
		return nil, err
	}
	plan, err := c.planExog(ds, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	batches, err := c.split(ds)
	if err != nil {
		return nil, err
	}

	resp, err := c.dispatch(ctx, endpointAnomalyDetection, batches, func(b partition.Batch) transport.ForecastRequest {
		return transport.ForecastRequest{
			Series:           buildSeries(b, plan),
			Model:            model,
			Freq:             ds.Freq.String(),
			CleanExFirst:     boolDefault(opt.CleanExFirst, true),
			Level:            []float64{float64(level)},
			FinetunedModelID: opt.FinetunedModelID,
		}
	})
	if err != nil {
		return nil, err
	}
	return assemble.AnomalyFrame(ds, resp)
}

// DetectAnomaliesOnline replays the trailing DetectionSize points of
// each series through rolling forecasts of horizon H, flagging the
// points whose observed value deviates from the forecast. With the
// multivariate threshold method an accumulated score across series is
// included.
func (c *Client) DetectAnomaliesOnline(ctx context.Context, tbl tabular.Table, opt *OnlineAnomalyOptions) (*tabular.Frame, error) {
	if opt == nil {
		opt = &OnlineAnomalyOptions{}
	}
	if opt.H <= 0 {
		return nil, ErrNonPositiveHorizon
	}
	model := orDefault(opt.Model, ModelTimeGPT)
	level := float64(defaultAnomalyLevel)
	if opt.Level != nil {
		level = *opt.Level
	}
	detectionSize := opt.DetectionSize
	if detectionSize <= 0 {
		detectionSize = opt.H
	}
	stepSize := opt.StepSize
	if stepSize <= 0 {
		stepSize = opt.H
	}

	ds, err := c.normalize(tbl, opt.Input)
	if err != nil {
		return nil, err
	}
	plan, err := c.planExog(ds, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	batches, err := c.split(ds)
	if err != nil {
		return nil, err
	}

	resp, err := c.dispatch(ctx, endpointOnlineAnomalyDetection, batches, func(b partition.Batch) transport.ForecastRequest {
		return transport.ForecastRequest{
			Series:           buildSeries(b, plan),
			Model:            model,
			H:                opt.H,
			StepSize:         stepSize,
			Freq:             ds.Freq.String(),
			CleanExFirst:     boolDefault(opt.CleanExFirst, true),
			Level:            []float64{level},
			DetectionSize:    detectionSize,
			ThresholdMethod:  orDefault(opt.ThresholdMethod, ThresholdUnivariate),
			RefitIntervals:   boolDefault(opt.Refit, false),
			FinetuneSteps:    opt.FinetuneSteps,
			FinetuneDepth:    opt.FinetuneDepth,
			FinetuneLoss:     opt.FinetuneLoss,
			FinetunedModelID: opt.FinetunedModelID,
		}
	})
	if err != nil {
		return nil, err
	}
	return assemble.AnomalyFrame(ds, resp)
}
