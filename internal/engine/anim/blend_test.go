package anim

import (
	"testing"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

func bindOrFatal(t *testing.T, b *PartBundle, a *AnimBundle) *AnimControl {
	t.Helper()
	c, err := b.BindAnim(a, 0, nil)
	if err != nil {
		t.Fatalf("BindAnim: %v", err)
	}
	return c
}

func rootTable(a *AnimBundle) *AnimChannelMatrixXfmTable {
	return a.FindChild("root").(*AnimChannelMatrixXfmTable)
}

func TestBlendSameValueKeepsValue(t *testing.T) {
	sheared := math.IdentityComponents()
	sheared.Shear = math.Vec3{X: 0.5}
	sheared.Pos = math.Vec3{X: 3}

	tests := []struct {
		name  string
		shear []float32
		want  math.Mat4
	}{
		{"translation", nil, math.Translate(3, 0, 0)},
		{"shear", []float32{0.5}, math.ComposeMatrix(sheared)},
	}
	for _, bt := range []BlendType{BlendLinear, BlendNormalizedLinear} {
		for _, tt := range tests {
			t.Run(bt.String()+"/"+tt.name, func(t *testing.T) {
				b, _ := testRig()
				b.SetBlendType(bt)
				b.SetAnimBlendFlag(true)

				a1, a2 := testAnim([]float32{3}), testAnim([]float32{3})
				if tt.shear != nil {
					rootTable(a1).SetTable('i', tt.shear)
					rootTable(a2).SetTable('i', tt.shear)
				}
				c1 := bindOrFatal(t, b, a1)
				c2 := bindOrFatal(t, b, a2)
				b.SetControlEffect(c1, 0.25)
				b.SetControlEffect(c2, 0.75)
				b.Update()

				if got := matrixPart(t, b, "root").Value(); !got.AlmostEqual(tt.want, eps) {
					t.Errorf("root = %v, want %v", got, tt.want)
				}
			})
		}
	}
}

func TestBlendWeightsScalar(t *testing.T) {
	b, _ := testRig()
	b.SetAnimBlendFlag(true)

	a2 := testAnim([]float32{0})
	a2.FindChild("smile").(*AnimChannelScalarTable).SetTable([]float32{1})

	c1 := bindOrFatal(t, b, testAnim([]float32{0}))
	c2 := bindOrFatal(t, b, a2)
	b.SetControlEffect(c1, 0.25)
	b.SetControlEffect(c2, 0.75)
	b.Update()

	smile := b.FindChild("smile").(*MovingPartScalar)
	if got := smile.Value(); got < 0.875-eps || got > 0.875+eps {
		t.Errorf("smile = %v, want 0.875", got)
	}
}

func TestBlendNormalizedScale(t *testing.T) {
	b, _ := testRig()
	b.SetBlendType(BlendNormalizedLinear)
	b.SetAnimBlendFlag(true)

	big := testAnim([]float32{0})
	for _, l := range []byte("abc") {
		rootTable(big).SetTable(l, []float32{2})
	}

	c1 := bindOrFatal(t, b, testAnim([]float32{0}))
	c2 := bindOrFatal(t, b, big)
	b.SetControlEffect(c1, 0.5)
	b.SetControlEffect(c2, 0.5)
	b.Update()

	comp, _ := math.DecomposeMatrix(matrixPart(t, b, "root").Value())
	want := math.Vec3{X: 1.5, Y: 1.5, Z: 1.5}
	if !comp.Scale.AlmostEqual(want, eps) {
		t.Errorf("scale = %v, want %v", comp.Scale, want)
	}
}

func TestBlendRotation(t *testing.T) {
	tests := []struct {
		blend  BlendType
		colLen float32
	}{
		{BlendLinear, 0.70710678},
		{BlendNormalizedLinear, 1},
	}
	for _, tt := range tests {
		t.Run(tt.blend.String(), func(t *testing.T) {
			b, _ := testRig()
			b.SetBlendType(tt.blend)
			b.SetAnimBlendFlag(true)

			turned := testAnim([]float32{0})
			rootTable(turned).SetTable('h', []float32{90})

			c1 := bindOrFatal(t, b, testAnim([]float32{0}))
			c2 := bindOrFatal(t, b, turned)
			b.SetControlEffect(c1, 1)
			b.SetControlEffect(c2, 1)
			b.Update()

			root := matrixPart(t, b, "root").Value()
			if l := root.Col3(0).Length(); l < tt.colLen-eps || l > tt.colLen+eps {
				t.Errorf("column length = %v, want %v", l, tt.colLen)
			}
			if tt.blend == BlendNormalizedLinear {
				want := math.ComposeMatrix(math.Components{Scale: math.Vec3One(), HPR: math.Vec3{X: 45}})
				if !root.AlmostEqual(want, eps) {
					t.Errorf("root = %v, want heading 45", root)
				}
			}
		})
	}
}

func TestFrameBlend(t *testing.T) {
	tests := []struct {
		frameBlend bool
		want       float32
	}{
		{false, 0},
		{true, 5},
	}
	for _, tt := range tests {
		b, clk := testRig()
		b.SetFrameBlendFlag(tt.frameBlend)
		c := bindOrFatal(t, b, testAnim([]float32{0, 10}))
		c.Loop(true)
		clk.Advance(0.05)
		b.Update()

		x := matrixPart(t, b, "root").Value().Translation().X
		if x < tt.want-eps || x > tt.want+eps {
			t.Errorf("frame blend %v: x = %v, want %v", tt.frameBlend, x, tt.want)
		}
	}
}

func TestRestoreInitialPose(t *testing.T) {
	b, _ := testRig()
	c := bindOrFatal(t, b, testAnim([]float32{4}))
	root := matrixPart(t, b, "root")

	c.Pose(0)
	b.Update()
	if x := root.Value().Translation().X; x != 4 {
		t.Fatalf("posed x = %v, want 4", x)
	}

	b.ClearControlEffects()
	b.Update()
	if root.Value() != root.InitialValue() {
		t.Errorf("empty blend = %v, want initial", root.Value())
	}

	b.SetRestoreInitialPose(false)
	c.Pose(0)
	b.Update()
	b.ClearControlEffects()
	b.Update()
	if x := root.Value().Translation().X; x != 4 {
		t.Errorf("without restore x = %v, want last value 4", x)
	}
}

func TestPendingControlSkipped(t *testing.T) {
	b, _ := testRig()
	b.SetAnimBlendFlag(true)
	root := matrixPart(t, b, "root")

	pending := newAnimControl("later", b, 10, 1)
	b.SetControlEffect(pending, 1)
	b.Update()
	if root.Value() != root.InitialValue() {
		t.Errorf("pending only: root = %v, want initial", root.Value())
	}

	c := bindOrFatal(t, b, testAnim([]float32{2}))
	b.SetControlEffect(c, 1)
	b.Update()
	if got := root.Value(); !got.AlmostEqual(math.Translate(2, 0, 0), eps) {
		t.Errorf("root = %v, want only the bound control", got)
	}
}

func expectPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", what)
		}
	}()
	fn()
}

func TestBlendPanics(t *testing.T) {
	b, _ := testRig()
	b.SetAnimBlendFlag(true)
	c1 := bindOrFatal(t, b, testAnim([]float32{0}))
	c2 := bindOrFatal(t, b, testAnim([]float32{1}))
	root := matrixPart(t, b, "root")

	expectPanic(t, "zero stored weight", func() {
		b.blend = []blendEntry{{control: c1, weight: 0}, {control: c2, weight: 1}}
		root.blendValue(b)
	})

	b.blend = nil
	b.SetControlEffect(c1, 0.5)
	b.SetControlEffect(c2, -0.5)
	expectPanic(t, "zero net weight", func() { b.ForceUpdate() })

	expectPanic(t, "invalid blend type", func() { b.SetBlendType(BlendType(9)) })

	other, _ := testRig()
	expectPanic(t, "foreign control", func() { other.SetControlEffect(c1, 1) })
}
