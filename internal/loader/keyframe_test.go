package loader

import (
	"testing"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

const eps = 1e-4

func near(a, b float32) bool {
	d := a - b
	return d < eps && d > -eps
}

func TestTrackSample(t *testing.T) {
	k := ScalarTrack([]float32{0, 1, 3}, []float32{0, 10, 30}, InterpLinear)
	step := ScalarTrack([]float32{0, 1, 3}, []float32{0, 10, 30}, InterpStep)

	tests := []struct {
		t          float32
		want, held float32
	}{
		{-1, 0, 0},
		{0, 0, 0},
		{0.5, 5, 0},
		{1, 10, 10},
		{2, 20, 10},
		{3, 30, 30},
		{9, 30, 30},
	}
	for _, tt := range tests {
		if got := k.Sample(tt.t); !near(got, tt.want) {
			t.Errorf("linear Sample(%v) = %v, want %v", tt.t, got, tt.want)
		}
		if got := step.Sample(tt.t); !near(got, tt.held) {
			t.Errorf("step Sample(%v) = %v, want %v", tt.t, got, tt.held)
		}
	}
}

func TestTrackSampleBackwards(t *testing.T) {
	k := ScalarTrack([]float32{0, 1, 2, 3}, []float32{0, 1, 2, 3}, InterpLinear)
	for _, at := range []float32{2.5, 0.5, 2.9, 1.5, 1.6, 0.1} {
		if got := k.Sample(at); !near(got, at) {
			t.Errorf("Sample(%v) = %v after cursor moved", at, got)
		}
	}
}

func TestTrackEmpty(t *testing.T) {
	k := ScalarTrack(nil, nil, InterpLinear)
	if k.End() != 0 {
		t.Errorf("End = %v", k.End())
	}
	defer func() {
		if recover() == nil {
			t.Error("sampling an empty track did not panic")
		}
	}()
	k.Sample(0)
}

func TestQuatTrack(t *testing.T) {
	k := QuatTrack([]float32{0, 1}, []math.Quat{
		math.QuatIdentity(),
		math.QuatFromHPR(math.Vec3{X: 90}),
	}, InterpLinear)
	hpr := k.Sample(0.5).ToHPR()
	if !hpr.AlmostEqual(math.Vec3{X: 45}, 1e-3) {
		t.Errorf("midpoint hpr = %v, want (45 0 0)", hpr)
	}
}

func TestResample(t *testing.T) {
	k := Vec3Track([]float32{0, 0.2}, []math.Vec3{{}, {X: 2}}, InterpLinear)
	frames := FrameCount(k.End(), 10)
	if frames != 3 {
		t.Fatalf("FrameCount = %d, want 3", frames)
	}
	got := Resample(k, 10, frames)
	for i, want := range []float32{0, 1, 2} {
		if !near(got[i].X, want) {
			t.Errorf("frame %d x = %v, want %v", i, got[i].X, want)
		}
	}
}
