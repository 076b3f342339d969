package model

import "time"

// Stage identifies one step of the detection pipeline.
type Stage string

const (
	StagePreview      Stage = "preview"
	StageIntermediate Stage = "intermediate"
	StageFinal        Stage = "final"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StagePreview, StageIntermediate, StageFinal}
}

// Canvas bounds all room geometry is normalized to, independent of the
// source image resolution.
const (
	CanvasWidth  = 1000.0
	CanvasHeight = 1000.0
)

// ArtifactSchemaVersion is bumped whenever the artifact JSON layout changes.
const ArtifactSchemaVersion = "1.0.0"

// BoundingBox is [x_min, y_min, x_max, y_max] in canvas coordinates.
type BoundingBox [4]float64

func (b BoundingBox) Width() float64  { return b[2] - b[0] }
func (b BoundingBox) Height() float64 { return b[3] - b[1] }
func (b BoundingBox) Area() float64   { return b.Width() * b.Height() }

// Valid reports whether the box is ordered, non-degenerate and inside the canvas.
func (b BoundingBox) Valid() bool {
	if b.Width() <= 0 || b.Height() <= 0 {
		return false
	}
	return b[0] >= 0 && b[1] >= 0 && b[2] <= CanvasWidth && b[3] <= CanvasHeight
}

// Clamp returns the box limited to the canvas bounds.
func (b BoundingBox) Clamp() BoundingBox {
	clamp := func(v, lo, hi float64) float64 {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	return BoundingBox{
		clamp(b[0], 0, CanvasWidth),
		clamp(b[1], 0, CanvasHeight),
		clamp(b[2], 0, CanvasWidth),
		clamp(b[3], 0, CanvasHeight),
	}
}

// IoU computes intersection-over-union with another box.
func (b BoundingBox) IoU(o BoundingBox) float64 {
	ixMin := max(b[0], o[0])
	iyMin := max(b[1], o[1])
	ixMax := min(b[2], o[2])
	iyMax := min(b[3], o[3])
	if ixMin >= ixMax || iyMin >= iyMax {
		return 0
	}
	inter := (ixMax - ixMin) * (iyMax - iyMin)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Vertex is one polygon point in canvas coordinates.
type Vertex [2]float64

// Room is one validated detection.
type Room struct {
	ID          string      `json:"id"`
	BoundingBox BoundingBox `json:"bounding_box"`
	Polygon     []Vertex    `json:"polygon,omitempty"`
	NameHint    string      `json:"name_hint,omitempty"`
	Confidence  float64     `json:"confidence"`
}

// StageArtifact is the immutable output of one pipeline stage. It is written
// exactly once during its stage and only read afterwards.
type StageArtifact struct {
	JobID                 string    `json:"job_id"`
	Stage                 Stage     `json:"stage"`
	Rooms                 []Room    `json:"rooms"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	Timestamp             time.Time `json:"timestamp"`
	SchemaVersion         string    `json:"schema_version"`
}
