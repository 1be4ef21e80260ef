package timegpt

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PyQuantSharp/timegpt/transport"
)

func TestFinetune(t *testing.T) {
	mux := http.NewServeMux()
	var got transport.ForecastRequest
	mux.HandleFunc("/v2/finetune", func(w http.ResponseWriter, r *http.Request) {
		got = decodeRequest(t, r)
		respondJSON(t, w, map[string]any{"finetuned_model_id": got.OutputModelID})
	})
	c := newTestClient(t, mux)

	id, err := c.Finetune(context.Background(), sampleTable(t, []string{"a", "b"}, 5), nil)
	require.NoError(t, err)

	assert.Equal(t, 10, got.FinetuneSteps)
	assert.Equal(t, 1, got.FinetuneDepth)
	assert.Equal(t, LossDefault, got.FinetuneLoss)
	assert.Equal(t, []int{5, 5}, got.Series.Sizes)

	_, parseErr := uuid.Parse(id)
	assert.NoError(t, parseErr)
	assert.Equal(t, got.OutputModelID, id)
}

func TestFinetuneExplicitModelID(t *testing.T) {
	mux := http.NewServeMux()
	var got transport.ForecastRequest
	mux.HandleFunc("/v2/finetune", func(w http.ResponseWriter, r *http.Request) {
		got = decodeRequest(t, r)
		respondJSON(t, w, map[string]any{"finetuned_model_id": "my-model"})
	})
	c := newTestClient(t, mux)

	id, err := c.Finetune(context.Background(), sampleTable(t, []string{"a"}, 5),
		&FinetuneOptions{Steps: 25, Depth: 3, Loss: LossMAE, OutputModelID: "my-model"})
	require.NoError(t, err)
	assert.Equal(t, "my-model", id)
	assert.Equal(t, 25, got.FinetuneSteps)
	assert.Equal(t, 3, got.FinetuneDepth)
	assert.Equal(t, LossMAE, got.FinetuneLoss)
}

func TestFinetuneInvalidDepth(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())
	for _, depth := range []int{-1, 6} {
		_, err := c.Finetune(context.Background(), sampleTable(t, []string{"a"}, 5),
			&FinetuneOptions{Depth: depth})
		assert.ErrorIs(t, err, ErrInvalidFinetuneDepth)
	}
}

func TestFinetunedModels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/finetuned_models", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(t, w, map[string]any{
			"finetuned_models": []map[string]any{
				{
					"id":            "m1",
					"created_at":    "2024-05-01T12:00:00Z",
					"base_model_id": "None",
					"steps":         10,
					"depth":         1,
					"loss":          "default",
					"model":         "timegpt-1",
					"freq":          "D",
				},
			},
		})
	})
	c := newTestClient(t, mux)

	models, err := c.FinetunedModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "m1", models[0].ID)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), models[0].CreatedAt)
	assert.Equal(t, 10, models[0].Steps)
}

func TestFinetunedModelByID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/finetuned_models/m1", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(t, w, map[string]any{"id": "m1", "model": "timegpt-1"})
	})
	c := newTestClient(t, mux)

	model, err := c.FinetunedModel(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", model.ID)
	assert.Equal(t, ModelTimeGPT, model.Model)
}

func TestDeleteFinetunedModel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/finetuned_models/m1", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, mux)

	deleted, err := c.DeleteFinetunedModel(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, deleted)
}
