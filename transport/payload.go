package transport

// SeriesPayload is the stacked multi-series block shared by every
// forecasting endpoint. Y concatenates the target values of all series
// in order; Sizes gives each series' length so the service can split
// it back apart. X and XFuture hold one row per exogenous variable,
// each spanning the same concatenated layout.
type SeriesPayload struct {
	Y       []float64   `json:"y"`
	Sizes   []int       `json:"sizes"`
	X       [][]float64 `json:"X"`
	XFuture [][]float64 `json:"X_future,omitempty"`
}

// ForecastRequest is the body of the forecast family of endpoints.
// Zero-valued optional fields are omitted from the wire format.
type ForecastRequest struct {
	Series               *SeriesPayload `json:"series,omitempty"`
	Model                string         `json:"model,omitempty"`
	H                    int            `json:"h,omitempty"`
	NWindows             int            `json:"n_windows,omitempty"`
	StepSize             int            `json:"step_size,omitempty"`
	Freq                 string         `json:"freq,omitempty"`
	CleanExFirst         *bool          `json:"clean_ex_first,omitempty"`
	HistExog             []int          `json:"hist_exog,omitempty"`
	Level                []float64      `json:"level,omitempty"`
	FinetuneSteps        int            `json:"finetune_steps,omitempty"`
	FinetuneDepth        int            `json:"finetune_depth,omitempty"`
	FinetuneLoss         string         `json:"finetune_loss,omitempty"`
	FinetunedModelID     string         `json:"finetuned_model_id,omitempty"`
	OutputModelID        string         `json:"output_model_id,omitempty"`
	FeatureContributions bool           `json:"feature_contributions,omitempty"`
	DetectionSize        int            `json:"detection_size,omitempty"`
	ThresholdMethod      string         `json:"threshold_method,omitempty"`
	RefitIntervals       *bool          `json:"refit,omitempty"`
}

// ForecastResponse is the union of the fields the forecasting
// endpoints return; each endpoint populates its subset.
type ForecastResponse struct {
	Mean                    []float64            `json:"mean"`
	Sizes                   []int                `json:"sizes"`
	Idxs                    []int64              `json:"idxs"`
	Intervals               map[string][]float64 `json:"intervals"`
	Anomaly                 []bool               `json:"anomaly"`
	AnomalyScore            []float64            `json:"anomaly_score"`
	AccumulatedAnomalyScore []float64            `json:"accumulated_anomaly_score"`
	WeightsX                []float64            `json:"weights_x"`
	FeatureContributions    [][]float64          `json:"feature_contributions"`
}

// ModelParams is the service's per-model metadata.
type ModelParams struct {
	Detail struct {
		InputSize int `json:"input_size"`
		Horizon   int `json:"horizon"`
	} `json:"detail"`
}
