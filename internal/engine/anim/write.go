package anim

import (
	"fmt"
	"io"
	"strings"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// ValueOutputter is implemented by parts that can print their current value.
type ValueOutputter interface {
	OutputValue(w io.Writer)
}

// WriteTree prints p and its descendants, one per line, indented by depth.
func WriteTree(w io.Writer, p Part, indent int) {
	fmt.Fprintf(w, "%s%s %s", strings.Repeat(" ", indent), p.TypeName(), p.Name())
	if len(p.Children()) == 0 {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintln(w, " {")
	for _, c := range p.Children() {
		WriteTree(w, c, indent+2)
	}
	fmt.Fprintf(w, "%s}\n", strings.Repeat(" ", indent))
}

// WriteValues is WriteTree with the current value of each moving part.
func WriteValues(w io.Writer, p Part, indent int) {
	pad := strings.Repeat(" ", indent)
	fmt.Fprintf(w, "%s%s %s", pad, p.TypeName(), p.Name())
	if v, ok := p.(ValueOutputter); ok {
		fmt.Fprint(w, " ")
		v.OutputValue(w)
	}
	fmt.Fprintln(w)
	for _, c := range p.Children() {
		WriteValues(w, c, indent+2)
	}
}

// OutputValue prints the value as position, rotation and scale.
func (m *MovingPartMatrix) OutputValue(w io.Writer) {
	writeComponents(w, m.value)
}

// OutputValue prints the scalar value.
func (m *MovingPartScalar) OutputValue(w io.Writer) {
	fmt.Fprintf(w, "%g", m.value)
}

func writeComponents(w io.Writer, m math.Mat4) {
	c, ok := math.DecomposeMatrix(m)
	if !ok {
		fmt.Fprintf(w, "singular %v", [16]float32(m))
		return
	}
	fmt.Fprintf(w, "pos %s hpr %s scale %s", fmtVec(c.Pos), fmtVec(c.HPR), fmtVec(c.Scale))
	if !c.Shear.AlmostEqual(math.Vec3{}, 1e-6) {
		fmt.Fprintf(w, " shear %s", fmtVec(c.Shear))
	}
}

func fmtVec(v math.Vec3) string {
	return fmt.Sprintf("(%.4g %.4g %.4g)", v.X, v.Y, v.Z)
}
