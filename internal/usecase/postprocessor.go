package usecase

import (
	"fmt"
	"sort"
	"strings"

	"blueprint-room-pipeline/internal/domain/model"
)

// ProcessOptions tunes the post-processing pass. Zero values fall back to the
// documented defaults.
type ProcessOptions struct {
	ConfidenceThreshold float64 // drop detections below this (default 0.7)
	OverlapThreshold    float64 // NMS IoU cutoff (default 0.5)
	PreciseBoundaries   bool    // emit polygon vertices when the model provides them
}

func (o ProcessOptions) withDefaults() ProcessOptions {
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = 0.7
	}
	if o.OverlapThreshold <= 0 {
		o.OverlapThreshold = 0.5
	}
	return o
}

// PostProcess turns raw detections into validated, de-duplicated rooms. It is
// pure and deterministic: same detections, text blocks and options always
// yield the same rooms. Confidence filtering and overlap suppression both
// live here and nowhere else.
func PostProcess(detections []model.RawDetection, textBlocks []model.TextBlock, opts ProcessOptions) []model.Room {
	opts = opts.withDefaults()

	type candidate struct {
		box     model.BoundingBox
		polygon []model.Vertex
		name    string
		conf    float64
		order   int // arrival index, the tie-breaker for equal confidence
	}

	var cands []candidate
	for i, d := range detections {
		if d.Confidence < opts.ConfidenceThreshold {
			continue
		}
		if len(d.Box) < 4 {
			continue
		}
		box := model.BoundingBox{d.Box[0], d.Box[1], d.Box[2], d.Box[3]}.Clamp()
		if !box.Valid() {
			continue
		}
		c := candidate{box: box, name: d.NameHint, conf: d.Confidence, order: i}
		if opts.PreciseBoundaries {
			c.polygon = extractPolygon(d, box)
		}
		cands = append(cands, c)
	}

	// Greedy non-maximum suppression in descending confidence order.
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].conf != cands[j].conf {
			return cands[i].conf > cands[j].conf
		}
		return cands[i].order < cands[j].order
	})
	var kept []candidate
	for _, c := range cands {
		suppressed := false
		for _, k := range kept {
			if c.box.IoU(k.box) > opts.OverlapThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}

	rooms := make([]model.Room, 0, len(kept))
	for i, c := range kept {
		name := c.name
		if name == "" {
			name = nameHint(textBlocks, c.box)
		}
		rooms = append(rooms, model.Room{
			ID:          fmt.Sprintf("room_%03d", i+1),
			BoundingBox: c.box,
			Polygon:     c.polygon,
			NameHint:    name,
			Confidence:  c.conf,
		})
	}
	return rooms
}

// extractPolygon validates model vertices against the canvas, vertex by
// vertex. An unusable polygon falls back to the box rectangle.
func extractPolygon(d model.RawDetection, box model.BoundingBox) []model.Vertex {
	if len(d.Vertices) >= 3 {
		poly := make([]model.Vertex, 0, len(d.Vertices))
		ok := true
		for _, v := range d.Vertices {
			if len(v) < 2 || v[0] < 0 || v[0] > model.CanvasWidth || v[1] < 0 || v[1] > model.CanvasHeight {
				ok = false
				break
			}
			poly = append(poly, model.Vertex{v[0], v[1]})
		}
		if ok {
			return poly
		}
	}
	return []model.Vertex{
		{box[0], box[1]},
		{box[2], box[1]},
		{box[2], box[3]},
		{box[0], box[3]},
	}
}

var roomKeywords = []string{
	"room", "bedroom", "bathroom", "kitchen", "living", "dining",
	"hall", "entry", "office", "study", "garage", "basement",
	"attic", "closet", "pantry", "laundry", "utility",
}

// nameHint picks the first text block inside the box whose text contains a
// room keyword.
func nameHint(blocks []model.TextBlock, box model.BoundingBox) string {
	for _, b := range blocks {
		if b.X < box[0] || b.X > box[2] || b.Y < box[1] || b.Y > box[3] {
			continue
		}
		lower := strings.ToLower(b.Text)
		for _, kw := range roomKeywords {
			if strings.Contains(lower, kw) {
				return strings.TrimSpace(b.Text)
			}
		}
	}
	return ""
}
