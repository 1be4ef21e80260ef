package timegpt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/PyQuantSharp/timegpt/partition"
	"github.com/PyQuantSharp/timegpt/tabular"
	"github.com/PyQuantSharp/timegpt/transport"
)

const (
	endpointFinetune        = "/v2/finetune"
	endpointFinetunedModels = "/v2/finetuned_models"
)

// FinetunedModel describes a stored fine-tuned model.
type FinetunedModel struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
	BaseModelID string    `json:"base_model_id"`
	Steps       int       `json:"steps"`
	Depth       int       `json:"depth"`
	Loss        string    `json:"loss"`
	Model       string    `json:"model"`
	Freq        string    `json:"freq"`
}

// Finetune trains a fine-tuned variant of the model on the given data
// and returns its id. The id can then be passed as FinetunedModelID to
// the forecasting calls.
func (c *Client) Finetune(ctx context.Context, tbl tabular.Table, opt *FinetuneOptions) (string, error) {
	if opt == nil {
		opt = &FinetuneOptions{}
	}
	model := orDefault(opt.Model, ModelTimeGPT)
	steps := opt.Steps
	if steps <= 0 {
		steps = 10
	}
	depth := opt.Depth
	if depth == 0 {
		depth = 1
	}
	if depth < 1 || depth > 5 {
		return "", ErrInvalidFinetuneDepth
	}
	outputID := opt.OutputModelID
	if outputID == "" {
		outputID = uuid.NewString()
	}

	ds, err := c.normalize(tbl, opt.Input)
	if err != nil {
		return "", err
	}

	// Fine-tuning trains one model over all series, so the dataset
	// travels as a single payload regardless of partition settings.
	req := transport.ForecastRequest{
		Series:           buildSeries(partition.Batch{Series: ds.Series}, &exogPlan{}),
		Model:            model,
		Freq:             ds.Freq.String(),
		FinetuneSteps:    steps,
		FinetuneDepth:    depth,
		FinetuneLoss:     orDefault(opt.Loss, LossDefault),
		FinetunedModelID: opt.FinetunedModelID,
		OutputModelID:    outputID,
	}
	var resp struct {
		FinetunedModelID string `json:"finetuned_model_id"`
	}
	if err := c.http.Post(ctx, endpointFinetune, req, &resp); err != nil {
		return "", err
	}
	if resp.FinetunedModelID != "" {
		return resp.FinetunedModelID, nil
	}
	return outputID, nil
}

// FinetunedModels lists the account's stored fine-tuned models.
func (c *Client) FinetunedModels(ctx context.Context) ([]FinetunedModel, error) {
	var resp struct {
		FinetunedModels []FinetunedModel `json:"finetuned_models"`
	}
	if err := c.http.Get(ctx, endpointFinetunedModels, nil, &resp); err != nil {
		return nil, err
	}
	return resp.FinetunedModels, nil
}

// FinetunedModel fetches a single stored model by id.
func (c *Client) FinetunedModel(ctx context.Context, id string) (*FinetunedModel, error) {
	var resp FinetunedModel
	if err := c.http.Get(ctx, endpointFinetunedModels+"/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteFinetunedModel removes a stored model, reporting whether it
// existed.
func (c *Client) DeleteFinetunedModel(ctx context.Context, id string) (bool, error) {
	return c.http.Delete(ctx, endpointFinetunedModels+"/"+id)
}
