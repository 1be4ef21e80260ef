package timegpt

import (
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PyQuantSharp/timegpt/assemble"
	"github.com/PyQuantSharp/timegpt/partition"
	"github.com/PyQuantSharp/timegpt/tabular"
	"github.com/PyQuantSharp/timegpt/timedataset"
	"github.com/PyQuantSharp/timegpt/transport"
)

// Models the service accepts.
const (
	ModelTimeGPT            = "timegpt-1"
	ModelTimeGPTLongHorizon = "timegpt-1-long-horizon"
)

// Finetune loss functions.
const (
	LossDefault = "default"
	LossMAE     = "mae"
	LossMSE     = "mse"
	LossRMSE    = "rmse"
	LossMAPE    = "mape"
	LossSMAPE   = "smape"
)

// Threshold methods for online anomaly detection.
const (
	ThresholdUnivariate   = "univariate"
	ThresholdMultivariate = "multivariate"
)

var (
	// ErrLevelAndQuantiles means both interval specifications were
	// given; they are mutually exclusive.
	ErrLevelAndQuantiles = errors.New("provide level or quantiles, not both")

	ErrNonPositiveHorizon = errors.New("horizon must be positive")

	// ErrMissingHistExog means a column declared historical-only is
	// not present in the input.
	ErrMissingHistExog = errors.New("historical exogenous column not found in input")

	ErrInvalidFinetuneDepth = errors.New("finetune depth must be between 1 and 5")
)

// Options configures a Client.
type Options struct {
	// APIKey authenticates every request.
	APIKey string

	// BaseURL overrides the production endpoint.
	BaseURL string

	// Timeout, MaxRetries, RetryInterval and MaxWaitTime tune the
	// transport's per-request behavior.
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	MaxWaitTime   time.Duration

	// PartitionLimits splits large datasets into multiple requests.
	// The zero value sends everything in one request.
	PartitionLimits partition.Limits

	// NumPartitions forces an even split into this many requests,
	// overriding PartitionLimits when positive.
	NumPartitions int

	// LevelFormat renders fractional confidence levels in output
	// column names. Defaults to trimming trailing zeros.
	LevelFormat assemble.LevelFormatter

	Logger  *logrus.Logger
	Metrics *transport.Metrics

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// NewDefaultOptions returns Options with every tunable at its
// default. The APIKey still has to be set, typically from
// config.Load.
func NewDefaultOptions() *Options {
	return &Options{
		BaseURL:       transport.DefaultBaseURL,
		Timeout:       transport.DefaultTimeout,
		MaxRetries:    transport.DefaultMaxRetries,
		RetryInterval: transport.DefaultRetryInterval,
		MaxWaitTime:   transport.DefaultMaxWaitTime,
	}
}

// ForecastOptions tunes a Forecast call. The zero value asks for a
// plain point forecast with the default model.
type ForecastOptions struct {
	// Input controls input column names, frequency, and date
	// features.
	Input timedataset.Options

	// Model defaults to ModelTimeGPT.
	Model string

	// Level lists confidence levels (0-100) for prediction intervals.
	// Quantiles lists quantiles in (0, 1); the needed levels are
	// derived and the output is rendered as quantile columns. Only one
	// of the two may be set.
	Level     []float64
	Quantiles []float64

	// FutureExog supplies future values for exogenous columns, h rows
	// per series. Exogenous columns with no future values and not
	// listed in HistExog are dropped with a warning.
	FutureExog tabular.Table

	// HistExog names input columns to use as historical-only
	// exogenous features.
	HistExog []string

	FinetuneSteps    int
	FinetuneDepth    int
	FinetuneLoss     string
	FinetunedModelID string

	// CleanExFirst asks the service to clean exogenous features
	// before forecasting. Defaults to true.
	CleanExFirst *bool

	// AddHistory prepends fitted in-sample values to the output.
	AddHistory bool

	// FeatureContributions asks for per-feature attribution of each
	// forecast.
	FeatureContributions bool
}

// CrossValidationOptions tunes a CrossValidation call.
type CrossValidationOptions struct {
	Input timedataset.Options

	Model     string
	Level     []float64
	Quantiles []float64
	HistExog  []string

	// NWindows is the number of validation windows, default 1.
	// StepSize is the gap between window starts, default h.
	NWindows int
	StepSize int

	FinetuneSteps    int
	FinetuneDepth    int
	FinetuneLoss     string
	FinetunedModelID string

	// Refit controls whether the model is refit per window. Defaults
	// to true.
	Refit *bool

	CleanExFirst *bool
}

// AnomalyOptions tunes a DetectAnomalies call.
type AnomalyOptions struct {
	Input timedataset.Options

	Model string

	// Level is the confidence band outside which points are flagged.
	// Defaults to 99.
	Level *float64

	FinetunedModelID string
	CleanExFirst     *bool
}

// OnlineAnomalyOptions tunes a DetectAnomaliesOnline call.
type OnlineAnomalyOptions struct {
	Input timedataset.Options

	Model string
	Level *float64

	// H is the forecast horizon used per detection step.
	// DetectionSize is how many trailing points to examine.
	H             int
	DetectionSize int

	// ThresholdMethod is univariate (default) or multivariate; the
	// latter adds an accumulated score across series.
	ThresholdMethod string

	StepSize int
	Refit    *bool

	FinetuneSteps    int
	FinetuneDepth    int
	FinetuneLoss     string
	FinetunedModelID string
	CleanExFirst     *bool
}

// FinetuneOptions tunes a Finetune call.
type FinetuneOptions struct {
	Input timedataset.Options

	Model string

	// Steps defaults to 10. Depth is 1 (light) through 5 (full).
	Steps int
	Depth int
	Loss  string

	// OutputModelID names the resulting model; a UUID is generated
	// when empty. FinetunedModelID selects a base model to start
	// from.
	OutputModelID    string
	FinetunedModelID string
}
