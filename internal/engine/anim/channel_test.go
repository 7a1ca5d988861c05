package anim

import (
	"testing"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

func TestXfmTableDefaults(t *testing.T) {
	a := NewAnimBundle("a", 10, 1)
	c := NewAnimChannelMatrixXfmTable(a, "j")

	if got := c.Value(3); got != math.Identity() {
		t.Errorf("empty Value = %v, want identity", got)
	}
	if got := c.Scale(0); got != math.Vec3One() {
		t.Errorf("empty Scale = %v, want ones", got)
	}
	if c.SetTable('q', []float32{1}) {
		t.Error("SetTable accepted an unknown component")
	}
	if !c.SetTable('a', []float32{2}) || !c.HasTable('a') {
		t.Fatal("SetTable('a') failed")
	}
	if got := c.Scale(7).X; got != 2 {
		t.Errorf("constant scale at frame 7 = %v, want 2", got)
	}
	c.ClearAllTables()
	if c.HasTable('a') {
		t.Error("ClearAllTables left a table")
	}
}

func TestXfmTableValue(t *testing.T) {
	a := NewAnimBundle("a", 10, 3)
	c := NewAnimChannelMatrixXfmTable(a, "j")
	c.SetTable('x', []float32{0, 1, 2})
	c.SetTable('h', []float32{90})
	c.SetTable('b', []float32{3})

	want := math.ComposeMatrix(math.Components{
		Scale: math.Vec3{X: 1, Y: 3, Z: 1},
		HPR:   math.Vec3{X: 90},
		Pos:   math.Vec3{X: 2},
	})
	if got := c.Value(5); !got.AlmostEqual(want, eps) {
		t.Errorf("Value(5) = %v, want %v", got, want)
	}

	noScale := c.ValueNoScaleShear(2)
	if s := noScale.Col3(1).Length(); s < 1-eps || s > 1+eps {
		t.Errorf("ValueNoScaleShear kept scale %v", s)
	}
	if got := c.Pos(1); got != (math.Vec3{X: 1}) {
		t.Errorf("Pos(1) = %v", got)
	}
}

func TestXfmTableHasChanged(t *testing.T) {
	a := NewAnimBundle("a", 10, 4)
	c := NewAnimChannelMatrixXfmTable(a, "j")
	c.SetTable('x', []float32{0, 1, 1, 2})
	c.SetTable('h', []float32{5})

	tests := []struct {
		lastFrame int
		lastFrac  float64
		thisFrame int
		thisFrac  float64
		want      bool
	}{
		{0, 0, 0, 0, false},
		{0, 0, 1, 0, true},
		{1, 0, 2, 0, false},
		{1, 0, 1, 0.5, false},
		{1, 0, 2, 0.5, true},
		{3, 0, 7, 0, false},
	}
	for _, tt := range tests {
		got := c.HasChanged(tt.lastFrame, tt.lastFrac, tt.thisFrame, tt.thisFrac)
		if got != tt.want {
			t.Errorf("HasChanged(%d, %v, %d, %v) = %v, want %v",
				tt.lastFrame, tt.lastFrac, tt.thisFrame, tt.thisFrac, got, tt.want)
		}
	}
}

func TestScalarTable(t *testing.T) {
	a := NewAnimBundle("a", 10, 3)
	c := NewAnimChannelScalarTable(a, "s", []float32{0.5, 0.5, 1})

	if got := c.Value(5); got != 1 {
		t.Errorf("Value(5) = %v, want 1", got)
	}
	if c.HasChanged(0, 0, 1, 0) {
		t.Error("equal frames reported a change")
	}
	if !c.HasChanged(1, 0, 2, 0) {
		t.Error("differing frames reported no change")
	}
	if got := NewAnimChannelScalarTable(a, "empty", nil).Value(4); got != 0 {
		t.Errorf("empty Value = %v, want 0", got)
	}
}

func TestFixedChannel(t *testing.T) {
	comp := math.Components{Scale: math.Vec3{X: 2, Y: 2, Z: 2}, HPR: math.Vec3{Y: 30}, Pos: math.Vec3{Z: 4}}
	c := NewAnimChannelMatrixFixed("f", comp)
	if !c.Value(9).AlmostEqual(math.ComposeMatrix(comp), eps) {
		t.Errorf("Value = %v", c.Value(9))
	}
	if c.Scale(0) != comp.Scale || c.HPR(0) != comp.HPR || c.Pos(0) != comp.Pos {
		t.Error("components differ from construction")
	}
	if c.HasChanged(0, 0, 5, 0.5) {
		t.Error("fixed channel reported a change")
	}
}

func TestMatrixFramesAlwaysChanged(t *testing.T) {
	a := NewAnimBundle("a", 10, 2)
	c := NewAnimChannelMatrixFrames(a, "m", []math.Mat4{math.Identity(), math.Identity()})
	if !c.HasChanged(0, 0, 0, 0) {
		t.Error("per-frame matrix channel should always report a change")
	}
	if got := c.Pos(1); got != (math.Vec3{}) {
		t.Errorf("Pos = %v", got)
	}
}

func TestDynamicHasChangedOncePerCall(t *testing.T) {
	c := NewAnimChannelMatrixDynamic("d")
	if c.HasChanged(0, 0, 0, 0) {
		t.Error("initial identity reported a change")
	}

	c.SetValue(math.Translate(1, 0, 0))
	if !c.HasChanged(0, 0, 0, 0) {
		t.Error("new value not reported")
	}
	// The first call consumed the change.
	if c.HasChanged(0, 0, 0, 0) {
		t.Error("second call reported the same change")
	}

	cur := math.Translate(0, 2, 0)
	c.SetProvider(TransformFunc(func() math.Mat4 { return cur }))
	if got := c.Pos(0); got != (math.Vec3{Y: 2}) {
		t.Errorf("Pos from provider = %v", got)
	}
	cur = math.Translate(0, 3, 0)
	// Every accessor re-queries the provider.
	if got := c.Value(0); got != cur {
		t.Errorf("Value = %v, want %v", got, cur)
	}
	if !c.HasChanged(0, 0, 0, 0) || c.HasChanged(0, 0, 0, 0) {
		t.Error("provider change not reported exactly once")
	}
}

func TestScalarDynamic(t *testing.T) {
	c := NewAnimChannelScalarDynamic("s")
	c.SetValue(0.5)
	if !c.HasChanged(0, 0, 0, 0) || c.HasChanged(0, 0, 0, 0) {
		t.Error("value change not reported exactly once")
	}
	v := float32(0.75)
	c.SetProvider(ScalarFunc(func() float32 { return v }))
	if c.Value(0) != 0.75 {
		t.Errorf("Value = %v", c.Value(0))
	}
}
