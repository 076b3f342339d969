package inference

import (
	"context"

	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/adapter"
)

var _ adapter.InferenceAdapter = (*NoopAdapter)(nil)

// NoopAdapter returns canned detections so the pipeline can run end to end
// without live model endpoints. Useful for local development.
type NoopAdapter struct{}

func NewNoopAdapter() *NoopAdapter { return &NoopAdapter{} }

func (n *NoopAdapter) Invoke(_ context.Context, _ string, input *adapter.ModelInput, _ string) (*adapter.InferenceResult, error) {
	detections := []model.RawDetection{
		{Box: []float64{100, 100, 400, 350}, Confidence: 0.95, NameHint: "kitchen"},
		{Box: []float64{450, 100, 900, 500}, Confidence: 0.88, NameHint: "living room"},
		{Box: []float64{100, 400, 400, 800}, Confidence: 0.81},
	}
	// Refinement stages echo the prior rooms back with slightly higher scores.
	if len(input.PriorRooms) > 0 {
		detections = detections[:0]
		for _, room := range input.PriorRooms {
			detections = append(detections, model.RawDetection{
				Box:        room.BoundingBox[:],
				Confidence: min(room.Confidence+0.02, 0.99),
				NameHint:   room.NameHint,
			})
		}
	}
	return &adapter.InferenceResult{
		Detections: detections,
		TextBlocks: []model.TextBlock{
			{Text: "KITCHEN", X: 250, Y: 225},
			{Text: "LIVING ROOM", X: 675, Y: 300},
		},
	}, nil
}
