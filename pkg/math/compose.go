package math

import "math"

// Components is a transform split into scale, shear, rotation and
// translation. HPR is heading (about Z), pitch (about X) and roll (about Y)
// in degrees. Shear holds the xy, xz and yz terms.
type Components struct {
	Scale Vec3
	Shear Vec3
	HPR   Vec3
	Pos   Vec3
}

// IdentityComponents returns unit scale with no shear, rotation or translation.
func IdentityComponents() Components {
	return Components{Scale: Vec3One()}
}

const degToRad = math.Pi / 180

// HPRMatrix returns the rotation R = Rz(h) * Rx(p) * Ry(r).
func HPRMatrix(hpr Vec3) Mat4 {
	sh, ch := math.Sincos(float64(hpr.X) * degToRad)
	sp, cp := math.Sincos(float64(hpr.Y) * degToRad)
	sr, cr := math.Sincos(float64(hpr.Z) * degToRad)

	// Column-major: each row below is one column of R.
	return Mat4{
		float32(ch*cr - sh*sp*sr), float32(sh*cr + ch*sp*sr), float32(-cp * sr), 0,
		float32(-sh * cp), float32(ch * cp), float32(sp), 0,
		float32(ch*sr + sh*sp*cr), float32(sh*sr - ch*sp*cr), float32(cp * cr), 0,
		0, 0, 0, 1,
	}
}

// ComposeMatrix builds T * R * Sh * S from its components.
func ComposeMatrix(c Components) Mat4 {
	r := HPRMatrix(c.HPR)
	e0, e1, e2 := r.Col3(0), r.Col3(1), r.Col3(2)

	// U = Sh * S is upper triangular; M3 = R * U.
	u01 := c.Shear.X * c.Scale.Y
	u02 := c.Shear.Y * c.Scale.Z
	u12 := c.Shear.Z * c.Scale.Z

	c0 := e0.Scale(c.Scale.X)
	c1 := e0.Scale(u01).Add(e1.Scale(c.Scale.Y))
	c2 := e0.Scale(u02).Add(e1.Scale(u12)).Add(e2.Scale(c.Scale.Z))

	return Mat4{
		c0.X, c0.Y, c0.Z, 0,
		c1.X, c1.Y, c1.Z, 0,
		c2.X, c2.Y, c2.Z, 0,
		c.Pos.X, c.Pos.Y, c.Pos.Z, 1,
	}
}

// DecomposeMatrix is the inverse of ComposeMatrix for affine matrices.
// It returns false when the upper 3x3 block is singular; the components are
// then only a best effort.
func DecomposeMatrix(m Mat4) (Components, bool) {
	c := Components{Pos: m.Translation()}
	ok := m.Det3() != 0

	// Gram-Schmidt on the columns gives M3 = R * U.
	c0, c1, c2 := m.Col3(0), m.Col3(1), m.Col3(2)

	sx := c0.Length()
	if sx == 0 {
		return IdentityComponents(), false
	}
	e0 := c0.Scale(1 / sx)

	u01 := e0.Dot(c1)
	c1p := c1.Sub(e0.Scale(u01))
	sy := c1p.Length()
	if sy == 0 {
		return IdentityComponents(), false
	}
	e1 := c1p.Scale(1 / sy)

	u02 := e0.Dot(c2)
	u12 := e1.Dot(c2)
	c2p := c2.Sub(e0.Scale(u02)).Sub(e1.Scale(u12))
	sz := c2p.Length()
	if sz == 0 {
		return IdentityComponents(), false
	}
	e2 := c2p.Scale(1 / sz)

	// A reflection goes into the z scale so R stays a proper rotation.
	if e0.Cross(e1).Dot(e2) < 0 {
		e2 = e2.Scale(-1)
		sz = -sz
	}

	c.Scale = Vec3{sx, sy, sz}
	c.Shear = Vec3{u01 / sy, u02 / sz, u12 / sz}
	c.HPR = hprFromRotation(e0, e1, e2)
	return c, ok
}

// NoScaleShear returns m with its scale and shear removed, keeping the
// rotation and translation.
func NoScaleShear(m Mat4) Mat4 {
	c, _ := DecomposeMatrix(m)
	return ComposeMatrix(Components{Scale: Vec3One(), HPR: c.HPR, Pos: c.Pos})
}

// hprFromRotation recovers heading, pitch and roll from the columns of a
// rotation matrix built by HPRMatrix.
func hprFromRotation(e0, e1, e2 Vec3) Vec3 {
	// R[2][1] = sin(p)
	sp := float64(e1.Z)
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	p := math.Asin(sp)
	cp := math.Cos(p)

	var h, r float64
	if cp > 1e-6 {
		// R[2][0] = -cp*sr, R[2][2] = cp*cr, R[0][1] = -sh*cp, R[1][1] = ch*cp
		r = math.Atan2(-float64(e0.Z), float64(e2.Z))
		h = math.Atan2(-float64(e1.X), float64(e1.Y))
	} else {
		// Gimbal lock: fold roll into heading.
		r = 0
		h = math.Atan2(float64(e0.Y), float64(e0.X))
	}

	return Vec3{
		float32(h / degToRad),
		float32(p / degToRad),
		float32(r / degToRad),
	}
}
