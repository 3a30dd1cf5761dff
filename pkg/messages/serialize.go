package messages

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cbodonnell/scribble/pkg/game/types"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
)

// Field slots of the canvas schema (see flatbuffers/canvas.fbs).
const (
	canvasFieldPoints      = 0
	canvasFieldStrokeCount = 1
	canvasFieldCount       = 2

	pointFieldStroke    = 0
	pointFieldX         = 1
	pointFieldY         = 2
	pointFieldColor     = 3
	pointFieldBrushSize = 4
	pointFieldAction    = 5
	pointFieldCount     = 6
)

var strokeActions = []types.StrokeAction{
	types.StrokeActionStart,
	types.StrokeActionDraw,
	types.StrokeActionEnd,
	types.StrokeActionClear,
}

// SerializeStrokes encodes a round's strokes for the archive:
// a flatbuffer canvas compressed with zstd.
func SerializeStrokes(strokes []types.Stroke) ([]byte, error) {
	b := SerializeStrokesFlatbuffer(strokes)

	compressed := bytes.NewBuffer(nil)
	compWriter, err := zstd.NewWriter(compressed, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %v", err)
	}
	if _, err := compWriter.Write(b); err != nil {
		return nil, fmt.Errorf("failed to compress strokes: %v", err)
	}
	if err := compWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zstd writer: %v", err)
	}

	return compressed.Bytes(), nil
}

// DeserializeStrokes reverses SerializeStrokes.
func DeserializeStrokes(data []byte) ([]types.Stroke, error) {
	compReader, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer compReader.Close()

	b, err := io.ReadAll(compReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read decompressed strokes: %v", err)
	}

	strokes, err := DeserializeStrokesFlatbuffer(b)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize strokes: %v", err)
	}

	return strokes, nil
}

func SerializeStrokesFlatbuffer(strokes []types.Stroke) []byte {
	builder := flatbuffers.NewBuilder(1024)

	points := make([]flatbuffers.UOffsetT, 0)
	for i, stroke := range strokes {
		for _, p := range stroke {
			color := builder.CreateString(p.Color)

			builder.StartObject(pointFieldCount)
			builder.PrependUint32Slot(pointFieldStroke, uint32(i), 0)
			builder.PrependFloat64Slot(pointFieldX, p.X, 0)
			builder.PrependFloat64Slot(pointFieldY, p.Y, 0)
			builder.PrependUOffsetTSlot(pointFieldColor, color, 0)
			builder.PrependInt32Slot(pointFieldBrushSize, p.BrushSize, 0)
			builder.PrependByteSlot(pointFieldAction, actionToByte(p.Action), 0)
			points = append(points, builder.EndObject())
		}
	}

	builder.StartVector(flatbuffers.SizeUOffsetT, len(points), flatbuffers.SizeUOffsetT)
	for i := len(points) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(points[i])
	}
	pointsVector := builder.EndVector(len(points))

	builder.StartObject(canvasFieldCount)
	builder.PrependUOffsetTSlot(canvasFieldPoints, pointsVector, 0)
	builder.PrependUint32Slot(canvasFieldStrokeCount, uint32(len(strokes)), 0)
	canvas := builder.EndObject()
	builder.Finish(canvas)

	return builder.FinishedBytes()
}

func DeserializeStrokesFlatbuffer(b []byte) (strokes []types.Stroke, err error) {
	if len(b) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("buffer too short: %d bytes", len(b))
	}
	// the table accessors index without bounds checks
	defer func() {
		if r := recover(); r != nil {
			strokes = nil
			err = fmt.Errorf("corrupt canvas buffer: %v", r)
		}
	}()

	canvas := &flatbuffers.Table{Bytes: b, Pos: flatbuffers.GetUOffsetT(b)}

	strokeCount := 0
	if o := fieldOffset(canvas, canvasFieldStrokeCount); o != 0 {
		strokeCount = int(canvas.GetUint32(o + canvas.Pos))
	}
	strokes = make([]types.Stroke, strokeCount)

	o := fieldOffset(canvas, canvasFieldPoints)
	if o == 0 {
		return strokes, nil
	}

	vector := canvas.Vector(o)
	for j := 0; j < canvas.VectorLen(o); j++ {
		pos := canvas.Indirect(vector + flatbuffers.UOffsetT(j)*flatbuffers.SizeUOffsetT)
		point := &flatbuffers.Table{Bytes: b, Pos: pos}

		index, p, err := readPoint(point)
		if err != nil {
			return nil, err
		}
		if index >= len(strokes) {
			return nil, fmt.Errorf("point %d references stroke %d of %d", j, index, len(strokes))
		}
		strokes[index] = append(strokes[index], p)
	}

	return strokes, nil
}

func readPoint(t *flatbuffers.Table) (int, types.StrokePoint, error) {
	p := types.StrokePoint{}
	index := 0

	if o := fieldOffset(t, pointFieldStroke); o != 0 {
		index = int(t.GetUint32(o + t.Pos))
	}
	if o := fieldOffset(t, pointFieldX); o != 0 {
		p.X = t.GetFloat64(o + t.Pos)
	}
	if o := fieldOffset(t, pointFieldY); o != 0 {
		p.Y = t.GetFloat64(o + t.Pos)
	}
	if o := fieldOffset(t, pointFieldColor); o != 0 {
		p.Color = string(t.ByteVector(o + t.Pos))
	}
	if o := fieldOffset(t, pointFieldBrushSize); o != 0 {
		p.BrushSize = t.GetInt32(o + t.Pos)
	}

	var action byte
	if o := fieldOffset(t, pointFieldAction); o != 0 {
		action = t.GetByte(o + t.Pos)
	}
	if int(action) >= len(strokeActions) {
		return 0, p, fmt.Errorf("unknown stroke action %d", action)
	}
	p.Action = strokeActions[action]

	return index, p, nil
}

// fieldOffset returns the offset of a field relative to the table position,
// or 0 when the field is absent.
func fieldOffset(t *flatbuffers.Table, slot int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(t.Offset(flatbuffers.VOffsetT(4 + 2*slot)))
}

func actionToByte(action types.StrokeAction) byte {
	for i, a := range strokeActions {
		if a == action {
			return byte(i)
		}
	}
	return 0
}
