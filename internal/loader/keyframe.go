package loader

import (
	"sort"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Interpolation selects how a track fills the time between keys.
type Interpolation int

const (
	InterpLinear Interpolation = iota
	InterpStep
)

// Track is a sorted list of keyframes. Sampling remembers the last key
// interval, so walking forward through time costs O(1) per sample.
type Track[T any] struct {
	Times  []float32
	Values []T
	Interp Interpolation

	lerp   func(a, b T, t float32) T
	cursor int
}

// NewTrack builds a track. times must be ascending and the same length as
// values.
func NewTrack[T any](times []float32, values []T, interp Interpolation, lerp func(a, b T, t float32) T) *Track[T] {
	return &Track[T]{Times: times, Values: values, Interp: interp, lerp: lerp}
}

// Vec3Track interpolates positions or scales componentwise.
func Vec3Track(times []float32, values []math.Vec3, interp Interpolation) *Track[math.Vec3] {
	return NewTrack(times, values, interp, math.Vec3.Lerp)
}

// QuatTrack interpolates rotations along the shorter arc.
func QuatTrack(times []float32, values []math.Quat, interp Interpolation) *Track[math.Quat] {
	return NewTrack(times, values, interp, math.Quat.Slerp)
}

// ScalarTrack interpolates plain values.
func ScalarTrack(times []float32, values []float32, interp Interpolation) *Track[float32] {
	return NewTrack(times, values, interp, func(a, b, t float32) float32 { return a + t*(b-a) })
}

// Len returns the number of keys.
func (k *Track[T]) Len() int { return min(len(k.Times), len(k.Values)) }

// End returns the time of the last key.
func (k *Track[T]) End() float32 {
	if k.Len() == 0 {
		return 0
	}
	return k.Times[k.Len()-1]
}

// Sample returns the value at time t. Before the first key it holds the
// first value; past the last key it holds the last. An empty track panics.
func (k *Track[T]) Sample(t float32) T {
	n := k.Len()
	if n == 0 {
		panic("loader: sampling an empty track")
	}
	if n == 1 || t <= k.Times[0] {
		return k.Values[0]
	}
	if t >= k.Times[n-1] {
		return k.Values[n-1]
	}

	i := k.seek(t)
	if k.Interp == InterpStep {
		return k.Values[i]
	}
	t0, t1 := k.Times[i], k.Times[i+1]
	f := float32(0)
	if t1 > t0 {
		f = (t - t0) / (t1 - t0)
	}
	return k.lerp(k.Values[i], k.Values[i+1], f)
}

// seek returns i with Times[i] <= t < Times[i+1].
func (k *Track[T]) seek(t float32) int {
	n := k.Len()
	c := k.cursor
	if c < n-1 && k.Times[c] <= t {
		if t < k.Times[c+1] {
			return c
		}
		if c+2 < n && t < k.Times[c+2] {
			k.cursor = c + 1
			return c + 1
		}
	}
	i := sort.Search(n, func(i int) bool { return k.Times[i] > t }) - 1
	k.cursor = i
	return i
}

// Resample evaluates the track every 1/fps seconds for frames frames.
func Resample[T any](k *Track[T], fps float32, frames int) []T {
	out := make([]T, frames)
	for i := range out {
		out[i] = k.Sample(float32(i) / fps)
	}
	return out
}

// FrameCount returns how many frames at fps cover duration seconds,
// counting both ends.
func FrameCount(duration, fps float32) int {
	return int(duration*fps+0.5) + 1
}
