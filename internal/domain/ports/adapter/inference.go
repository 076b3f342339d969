package adapter

import (
	"context"

	"blueprint-room-pipeline/internal/domain/model"
)

// ModelInput is the payload shipped to an inference endpoint. PriorRooms
// carries the previous stage's results for refinement; ImageData carries the
// normalized drawing for the preview stage.
type ModelInput struct {
	JobID      string            `json:"job_id"`
	TextBlocks []model.TextBlock `json:"text_blocks,omitempty"`
	PriorRooms []model.Room      `json:"prior_rooms,omitempty"`
	ImageData  []byte            `json:"image_data,omitempty"`
	Precise    bool              `json:"precise_boundaries,omitempty"`
}

// InferenceResult is the parsed endpoint response.
type InferenceResult struct {
	Detections []model.RawDetection
	TextBlocks []model.TextBlock
}

// InferenceAdapter wraps one class of ML inference endpoints. Invocation
// errors are folded into the domain taxonomy: ErrServiceUnavailable
// (retryable), ErrInvalidInput and ErrModelError (not).
type InferenceAdapter interface {
	Invoke(ctx context.Context, endpointID string, input *ModelInput, modelVersion string) (*InferenceResult, error)
}
