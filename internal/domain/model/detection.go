package model

// RawDetection is the stage-agnostic shape an inference endpoint response is
// parsed into before post-processing. Either the box alone or box plus
// precise vertices may be present.
type RawDetection struct {
	Box        []float64   `json:"bbox"`
	Vertices   [][]float64 `json:"vertices,omitempty"`
	Confidence float64     `json:"confidence"`
	NameHint   string      `json:"name_hint,omitempty"`
}

// TextBlock is a piece of recognized text with its position on the canvas,
// supplied alongside detections for name-hint extraction.
type TextBlock struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}
