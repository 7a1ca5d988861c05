package math

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	// Diagonal should be 1
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	// Off-diagonal should be 0
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	id := Identity()
	result := m.Mul(id)

	for i := 0; i < 16; i++ {
		if result[i] != m[i] {
			t.Errorf("M * I should equal M, element %d: got %f, want %f", i, result[i], m[i])
		}
	}
}

func TestTranslate(t *testing.T) {
	m := Translate(5, 10, 15)

	// Translation should be in column 4 (indices 12, 13, 14)
	if m[12] != 5 || m[13] != 10 || m[14] != 15 {
		t.Errorf("Translate: got (%f, %f, %f), want (5, 10, 15)", m[12], m[13], m[14])
	}
}

func TestScale(t *testing.T) {
	m := Scale(2, 3, 4)

	if m[0] != 2 || m[5] != 3 || m[10] != 4 {
		t.Errorf("Scale diagonal: got (%f, %f, %f), want (2, 3, 4)", m[0], m[5], m[10])
	}
}

func TestTransformPoint(t *testing.T) {
	// Translate by (10, 20, 30)
	m := Translate(10, 20, 30)
	p := [3]float32{1, 2, 3}
	result := m.TransformPoint(p)

	expected := [3]float32{11, 22, 33}
	if result != expected {
		t.Errorf("TransformPoint: got %v, want %v", result, expected)
	}
}

func TestTransformPointScale(t *testing.T) {
	m := Scale(2, 2, 2)
	p := [3]float32{1, 2, 3}
	result := m.TransformPoint(p)

	expected := [3]float32{2, 4, 6}
	if result != expected {
		t.Errorf("TransformPoint with scale: got %v, want %v", result, expected)
	}
}

func TestRotateY90(t *testing.T) {
	m := RotateY(float32(math.Pi / 2)) // 90 degrees
	p := [3]float32{1, 0, 0}           // Point on X axis
	result := m.TransformPoint(p)

	// After 90 degree Y rotation, (1,0,0) should become approximately (0,0,-1)
	if abs(result[0]) > 0.001 || abs(result[1]) > 0.001 || abs(result[2]+1) > 0.001 {
		t.Errorf("RotateY 90: got %v, want (0, 0, -1)", result)
	}
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func TestInverseMatchesMathGL(t *testing.T) {
	tests := []struct {
		name string
		m    Mat4
	}{
		{"translate", Translate(1, -2, 3)},
		{"rotate scale", RotateY(0.7).Mul(Scale(2, 3, 0.5))},
		{"composed", Translate(4, 5, 6).Mul(RotateX(1.1)).Mul(RotateZ(-0.4)).Mul(Scale(1, 2, 1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.m.Inverse()
			want := Mat4(mgl32.Mat4(tt.m).Inv())
			if !got.AlmostEqual(want, 1e-4) {
				t.Errorf("Inverse() = %v, want %v", got, want)
			}
			if !tt.m.Mul(got).AlmostEqual(Identity(), 1e-4) {
				t.Errorf("m * Inverse(m) should be identity, got %v", tt.m.Mul(got))
			}
		})
	}
}

func TestInverseSingular(t *testing.T) {
	if got := Scale(0, 1, 1).Inverse(); got != Identity() {
		t.Errorf("singular Inverse() = %v, want identity", got)
	}
}

func TestMulMatchesMathGL(t *testing.T) {
	a := Translate(1, 2, 3).Mul(RotateZ(0.3))
	b := RotateX(-0.8).Mul(Scale(2, 2, 2))

	got := a.Mul(b)
	want := Mat4(mgl32.Mat4(a).Mul4(mgl32.Mat4(b)))
	if !got.AlmostEqual(want, 1e-5) {
		t.Errorf("Mul() = %v, want %v", got, want)
	}
}

func TestAddMulScalar(t *testing.T) {
	m := Identity().Add(Identity()).MulScalar(0.5)
	if m != Identity() {
		t.Errorf("(I + I) * 0.5 = %v, want identity", m)
	}
}

func TestDet3(t *testing.T) {
	if d := Scale(2, 3, 4).Det3(); abs(d-24) > 1e-5 {
		t.Errorf("Det3() = %v, want 24", d)
	}
	if d := Translate(5, 5, 5).Det3(); abs(d-1) > 1e-6 {
		t.Errorf("Det3() of translation = %v, want 1", d)
	}
}
