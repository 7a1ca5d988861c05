package anim

import (
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// AnimChannel is an animation leaf that produces a value per frame.
type AnimChannel interface {
	AnimNode

	// HasChanged reports whether the value sampled at (thisFrame, thisFrac)
	// may differ from the value at (lastFrame, lastFrac). Dynamic channels
	// update their notion of "last" as a side effect, so each consumer must
	// call it once per update.
	HasChanged(lastFrame int, lastFrac float64, thisFrame int, thisFrac float64) bool
}

// MatrixChannel samples a transform.
type MatrixChannel interface {
	AnimChannel
	Value(frame int) math.Mat4
	ValueNoScaleShear(frame int) math.Mat4
	Scale(frame int) math.Vec3
	HPR(frame int) math.Vec3
	Quat(frame int) math.Quat
	Pos(frame int) math.Vec3
	Shear(frame int) math.Vec3
}

// ScalarChannel samples a single float, such as a morph slider.
type ScalarChannel interface {
	AnimChannel
	Value(frame int) float32
}

// TransformProvider supplies a live transform, typically another node's.
type TransformProvider interface {
	Transform() math.Mat4
}

// TransformFunc adapts a function to TransformProvider.
type TransformFunc func() math.Mat4

func (f TransformFunc) Transform() math.Mat4 { return f() }

// ScalarProvider supplies a live scalar.
type ScalarProvider interface {
	Scalar() float32
}

// ScalarFunc adapts a function to ScalarProvider.
type ScalarFunc func() float32

func (f ScalarFunc) Scalar() float32 { return f() }

// tableIndex wraps frame into a table of length n.
func tableIndex(frame, n int) int {
	i := frame % n
	if i < 0 {
		i += n
	}
	return i
}

// tableChanged reports whether table differs between the two sample points.
// Constant and empty tables never change.
func tableChanged(table []float32, lastFrame int, lastFrac float64, thisFrame int, thisFrac float64) bool {
	n := len(table)
	if n <= 1 {
		return false
	}
	if lastFrame != thisFrame && table[tableIndex(lastFrame, n)] != table[tableIndex(thisFrame, n)] {
		return true
	}
	if lastFrac != thisFrac && table[tableIndex(lastFrame+1, n)] != table[tableIndex(thisFrame+1, n)] {
		return true
	}
	return false
}
