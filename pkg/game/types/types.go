package types

import (
	"fmt"
	"math"
)

// StrokeAction tags a point within a stroke.
type StrokeAction string

const (
	StrokeActionStart StrokeAction = "start"
	StrokeActionDraw  StrokeAction = "draw"
	StrokeActionEnd   StrokeAction = "end"
	StrokeActionClear StrokeAction = "clear"
)

func (a StrokeAction) Valid() bool {
	switch a {
	case StrokeActionStart, StrokeActionDraw, StrokeActionEnd, StrokeActionClear:
		return true
	default:
		return false
	}
}

const MaxBrushSize = 200

// StrokePoint is one sample of the drawer's pen. Points are never mutated
// once recorded.
type StrokePoint struct {
	X         float64      `json:"x"`
	Y         float64      `json:"y"`
	Color     string       `json:"color"`
	BrushSize int32        `json:"brush_size"`
	Action    StrokeAction `json:"action"`
}

// Validate rejects points a client could not have produced.
func (p StrokePoint) Validate() error {
	if !p.Action.Valid() {
		return fmt.Errorf("unknown stroke action %q", p.Action)
	}
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return fmt.Errorf("stroke position must be finite")
	}
	if p.BrushSize < 0 || p.BrushSize > MaxBrushSize {
		return fmt.Errorf("brush size %d out of range", p.BrushSize)
	}
	if len(p.Color) > 32 {
		return fmt.Errorf("color too long")
	}
	return nil
}

// Stroke is a sequence of points opened by a "start" point.
type Stroke []StrokePoint

// CopyStrokes deep-copies a stroke list.
func CopyStrokes(strokes []Stroke) []Stroke {
	out := make([]Stroke, len(strokes))
	for i, s := range strokes {
		out[i] = append(Stroke(nil), s...)
	}
	return out
}
