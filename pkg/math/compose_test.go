package math

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestHPRMatrixAxes(t *testing.T) {
	tests := []struct {
		name string
		hpr  Vec3
		want Mat4
	}{
		{"heading about Z", Vec3{90, 0, 0}, RotateZ(mgl32.DegToRad(90))},
		{"pitch about X", Vec3{0, 90, 0}, RotateX(mgl32.DegToRad(90))},
		{"roll about Y", Vec3{0, 0, 90}, RotateY(mgl32.DegToRad(90))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HPRMatrix(tt.hpr); !got.AlmostEqual(tt.want, 1e-5) {
				t.Errorf("HPRMatrix(%v) = %v, want %v", tt.hpr, got, tt.want)
			}
		})
	}
}

func TestHPRMatrixOrder(t *testing.T) {
	hpr := Vec3{30, 40, 50}
	want := RotateZ(mgl32.DegToRad(30)).
		Mul(RotateX(mgl32.DegToRad(40))).
		Mul(RotateY(mgl32.DegToRad(50)))
	if got := HPRMatrix(hpr); !got.AlmostEqual(want, 1e-5) {
		t.Errorf("HPRMatrix(%v) = %v, want Rz*Rx*Ry = %v", hpr, got, want)
	}
}

func TestComposeDecomposeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		c    Components
	}{
		{"identity", IdentityComponents()},
		{"translate only", Components{Scale: Vec3One(), Pos: Vec3{1, 2, 3}}},
		{"rotate scale", Components{Scale: Vec3{2, 3, 4}, HPR: Vec3{10, 20, 30}, Pos: Vec3{-1, 0, 5}}},
		{"with shear", Components{Scale: Vec3{1.5, 0.5, 2}, Shear: Vec3{0.2, -0.1, 0.3}, HPR: Vec3{-45, 15, 60}}},
		{"mirrored", Components{Scale: Vec3{1, 1, -1}, HPR: Vec3{0, 0, 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ComposeMatrix(tt.c)
			got, ok := DecomposeMatrix(m)
			if !ok {
				t.Fatalf("DecomposeMatrix(%v) reported singular", m)
			}
			if !got.Scale.AlmostEqual(tt.c.Scale, 1e-4) {
				t.Errorf("scale: got %v, want %v", got.Scale, tt.c.Scale)
			}
			if !got.Shear.AlmostEqual(tt.c.Shear, 1e-4) {
				t.Errorf("shear: got %v, want %v", got.Shear, tt.c.Shear)
			}
			if !got.HPR.AlmostEqual(tt.c.HPR, 1e-2) {
				t.Errorf("hpr: got %v, want %v", got.HPR, tt.c.HPR)
			}
			if !got.Pos.AlmostEqual(tt.c.Pos, 1e-5) {
				t.Errorf("pos: got %v, want %v", got.Pos, tt.c.Pos)
			}
			if back := ComposeMatrix(got); !back.AlmostEqual(m, 1e-4) {
				t.Errorf("recomposed %v, want %v", back, m)
			}
		})
	}
}

func TestComposeMatchesProduct(t *testing.T) {
	c := Components{Scale: Vec3{2, 3, 4}, HPR: Vec3{25, -10, 5}, Pos: Vec3{7, 8, 9}}
	want := Translate(7, 8, 9).Mul(HPRMatrix(c.HPR)).Mul(Scale(2, 3, 4))
	if got := ComposeMatrix(c); !got.AlmostEqual(want, 1e-5) {
		t.Errorf("ComposeMatrix = %v, want T*R*S = %v", got, want)
	}
}

func TestDecomposeSingular(t *testing.T) {
	c, ok := DecomposeMatrix(Scale(0, 1, 1))
	if ok {
		t.Error("expected singular matrix to report false")
	}
	if c.Scale != Vec3One() {
		t.Errorf("singular decompose should fall back to unit scale, got %v", c.Scale)
	}
}

func TestNoScaleShear(t *testing.T) {
	c := Components{Scale: Vec3{3, 3, 3}, Shear: Vec3{0.5, 0, 0}, HPR: Vec3{90, 0, 0}, Pos: Vec3{1, 1, 1}}
	got := NoScaleShear(ComposeMatrix(c))
	want := Translate(1, 1, 1).Mul(HPRMatrix(c.HPR))
	if !got.AlmostEqual(want, 1e-5) {
		t.Errorf("NoScaleShear = %v, want %v", got, want)
	}
	if d := got.Det3(); abs(d-1) > 1e-4 {
		t.Errorf("NoScaleShear determinant = %v, want 1", d)
	}
}
