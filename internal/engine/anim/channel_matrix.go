package anim

import (
	"strings"
	"sync"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// XfmComponents names the twelve tables of an AnimChannelMatrixXfmTable in
// storage order: shear (i j k), scale (a b c), rotation (h p r) and
// translation (x y z).
const XfmComponents = "ijkabchprxyz"

const numXfm = len(XfmComponents)

// AnimChannelMatrixXfmTable stores a transform as per-component frame
// tables. A table of length one is constant; an empty table holds the
// component's default (1 for scale, 0 otherwise).
type AnimChannelMatrixXfmTable struct {
	AnimGroup
	tables [numXfm][]float32
}

// NewAnimChannelMatrixXfmTable creates an empty table channel under parent.
func NewAnimChannelMatrixXfmTable(parent AnimNode, name string) *AnimChannelMatrixXfmTable {
	c := &AnimChannelMatrixXfmTable{AnimGroup: AnimGroup{name: name}}
	AddAnimChild(parent, c)
	return c
}

func (c *AnimChannelMatrixXfmTable) TypeName() string     { return "AnimChannelMatrixXfmTable" }
func (c *AnimChannelMatrixXfmTable) ValueType() ValueType { return ValueMatrix }

// SetTable replaces the table for component letter. It returns false for a
// letter outside XfmComponents.
func (c *AnimChannelMatrixXfmTable) SetTable(letter byte, table []float32) bool {
	i := strings.IndexByte(XfmComponents, letter)
	if i < 0 {
		return false
	}
	c.tables[i] = table
	return true
}

// Table returns the table for component letter, or nil.
func (c *AnimChannelMatrixXfmTable) Table(letter byte) []float32 {
	i := strings.IndexByte(XfmComponents, letter)
	if i < 0 {
		return nil
	}
	return c.tables[i]
}

// HasTable reports whether component letter has any entries.
func (c *AnimChannelMatrixXfmTable) HasTable(letter byte) bool {
	return len(c.Table(letter)) > 0
}

// ClearAllTables resets every component to its default.
func (c *AnimChannelMatrixXfmTable) ClearAllTables() {
	c.tables = [numXfm][]float32{}
}

func (c *AnimChannelMatrixXfmTable) component(i, frame int, def float32) float32 {
	t := c.tables[i]
	if len(t) == 0 {
		return def
	}
	return t[tableIndex(frame, len(t))]
}

func (c *AnimChannelMatrixXfmTable) vec(first, frame int, def float32) math.Vec3 {
	return math.Vec3{
		X: c.component(first, frame, def),
		Y: c.component(first+1, frame, def),
		Z: c.component(first+2, frame, def),
	}
}

func (c *AnimChannelMatrixXfmTable) Shear(frame int) math.Vec3 { return c.vec(0, frame, 0) }
func (c *AnimChannelMatrixXfmTable) Scale(frame int) math.Vec3 { return c.vec(3, frame, 1) }
func (c *AnimChannelMatrixXfmTable) HPR(frame int) math.Vec3   { return c.vec(6, frame, 0) }
func (c *AnimChannelMatrixXfmTable) Pos(frame int) math.Vec3   { return c.vec(9, frame, 0) }

func (c *AnimChannelMatrixXfmTable) Quat(frame int) math.Quat {
	return math.QuatFromHPR(c.HPR(frame))
}

func (c *AnimChannelMatrixXfmTable) Value(frame int) math.Mat4 {
	return math.ComposeMatrix(math.Components{
		Scale: c.Scale(frame),
		Shear: c.Shear(frame),
		HPR:   c.HPR(frame),
		Pos:   c.Pos(frame),
	})
}

func (c *AnimChannelMatrixXfmTable) ValueNoScaleShear(frame int) math.Mat4 {
	return math.ComposeMatrix(math.Components{
		Scale: math.Vec3One(),
		HPR:   c.HPR(frame),
		Pos:   c.Pos(frame),
	})
}

// HasChanged is true only if some animated component differs between the
// two sample points.
func (c *AnimChannelMatrixXfmTable) HasChanged(lastFrame int, lastFrac float64, thisFrame int, thisFrac float64) bool {
	for _, t := range c.tables {
		if tableChanged(t, lastFrame, lastFrac, thisFrame, thisFrac) {
			return true
		}
	}
	return false
}

// AnimChannelMatrixFrames stores one full matrix per frame.
type AnimChannelMatrixFrames struct {
	AnimGroup
	frames []math.Mat4
}

// NewAnimChannelMatrixFrames creates a per-frame matrix channel under parent.
func NewAnimChannelMatrixFrames(parent AnimNode, name string, frames []math.Mat4) *AnimChannelMatrixFrames {
	c := &AnimChannelMatrixFrames{AnimGroup: AnimGroup{name: name}, frames: frames}
	AddAnimChild(parent, c)
	return c
}

func (c *AnimChannelMatrixFrames) TypeName() string     { return "AnimChannelMatrixFrames" }
func (c *AnimChannelMatrixFrames) ValueType() ValueType { return ValueMatrix }

// NumFrames returns the number of stored matrices.
func (c *AnimChannelMatrixFrames) NumFrames() int { return len(c.frames) }

func (c *AnimChannelMatrixFrames) Value(frame int) math.Mat4 {
	if len(c.frames) == 0 {
		return math.Identity()
	}
	return c.frames[tableIndex(frame, len(c.frames))]
}

func (c *AnimChannelMatrixFrames) components(frame int) math.Components {
	comp, _ := math.DecomposeMatrix(c.Value(frame))
	return comp
}

func (c *AnimChannelMatrixFrames) ValueNoScaleShear(frame int) math.Mat4 {
	return math.NoScaleShear(c.Value(frame))
}

func (c *AnimChannelMatrixFrames) Scale(frame int) math.Vec3 { return c.components(frame).Scale }
func (c *AnimChannelMatrixFrames) HPR(frame int) math.Vec3   { return c.components(frame).HPR }
func (c *AnimChannelMatrixFrames) Shear(frame int) math.Vec3 { return c.components(frame).Shear }
func (c *AnimChannelMatrixFrames) Pos(frame int) math.Vec3   { return c.Value(frame).Translation() }

func (c *AnimChannelMatrixFrames) Quat(frame int) math.Quat {
	return math.QuatFromHPR(c.HPR(frame))
}

// HasChanged is always true; frames are not compared.
func (c *AnimChannelMatrixFrames) HasChanged(int, float64, int, float64) bool { return true }

// AnimChannelMatrixFixed holds one transform for every frame.
type AnimChannelMatrixFixed struct {
	AnimGroup
	comp      math.Components
	value     math.Mat4
	noScaleSh math.Mat4
	quat      math.Quat
}

// NewAnimChannelMatrixFixed creates an unattached constant channel.
func NewAnimChannelMatrixFixed(name string, comp math.Components) *AnimChannelMatrixFixed {
	return &AnimChannelMatrixFixed{
		AnimGroup: AnimGroup{name: name},
		comp:      comp,
		value:     math.ComposeMatrix(comp),
		noScaleSh: math.ComposeMatrix(math.Components{Scale: math.Vec3One(), HPR: comp.HPR, Pos: comp.Pos}),
		quat:      math.QuatFromHPR(comp.HPR),
	}
}

// NewAnimChannelMatrixFixedValue creates a constant channel from a matrix.
func NewAnimChannelMatrixFixedValue(name string, value math.Mat4) *AnimChannelMatrixFixed {
	comp, _ := math.DecomposeMatrix(value)
	c := NewAnimChannelMatrixFixed(name, comp)
	c.value = value
	return c
}

func (c *AnimChannelMatrixFixed) TypeName() string     { return "AnimChannelMatrixFixed" }
func (c *AnimChannelMatrixFixed) ValueType() ValueType { return ValueMatrix }

func (c *AnimChannelMatrixFixed) Value(int) math.Mat4             { return c.value }
func (c *AnimChannelMatrixFixed) ValueNoScaleShear(int) math.Mat4 { return c.noScaleSh }
func (c *AnimChannelMatrixFixed) Scale(int) math.Vec3             { return c.comp.Scale }
func (c *AnimChannelMatrixFixed) HPR(int) math.Vec3               { return c.comp.HPR }
func (c *AnimChannelMatrixFixed) Quat(int) math.Quat              { return c.quat }
func (c *AnimChannelMatrixFixed) Pos(int) math.Vec3               { return c.comp.Pos }
func (c *AnimChannelMatrixFixed) Shear(int) math.Vec3             { return c.comp.Shear }

func (c *AnimChannelMatrixFixed) HasChanged(int, float64, int, float64) bool { return false }

// AnimChannelMatrixDynamic reports a transform set from outside, either
// directly or through a TransformProvider that is queried on every access.
type AnimChannelMatrixDynamic struct {
	AnimGroup

	mu       sync.Mutex
	provider TransformProvider
	value    math.Mat4
	last     math.Mat4
}

// NewAnimChannelMatrixDynamic creates an unattached channel holding the
// identity.
func NewAnimChannelMatrixDynamic(name string) *AnimChannelMatrixDynamic {
	return &AnimChannelMatrixDynamic{
		AnimGroup: AnimGroup{name: name},
		value:     math.Identity(),
		last:      math.Identity(),
	}
}

func (c *AnimChannelMatrixDynamic) TypeName() string     { return "AnimChannelMatrixDynamic" }
func (c *AnimChannelMatrixDynamic) ValueType() ValueType { return ValueMatrix }

// SetValue stores an explicit transform and drops any provider.
func (c *AnimChannelMatrixDynamic) SetValue(m math.Mat4) {
	c.mu.Lock()
	c.value = m
	c.provider = nil
	c.mu.Unlock()
}

// SetProvider makes the channel follow p.
func (c *AnimChannelMatrixDynamic) SetProvider(p TransformProvider) {
	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()
}

// Provider returns the current provider, or nil.
func (c *AnimChannelMatrixDynamic) Provider() TransformProvider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider
}

func (c *AnimChannelMatrixDynamic) current() math.Mat4 {
	c.mu.Lock()
	p, v := c.provider, c.value
	c.mu.Unlock()
	if p != nil {
		return p.Transform()
	}
	return v
}

func (c *AnimChannelMatrixDynamic) components() math.Components {
	comp, _ := math.DecomposeMatrix(c.current())
	return comp
}

func (c *AnimChannelMatrixDynamic) Value(int) math.Mat4 { return c.current() }

func (c *AnimChannelMatrixDynamic) ValueNoScaleShear(int) math.Mat4 {
	return math.NoScaleShear(c.current())
}

func (c *AnimChannelMatrixDynamic) Scale(int) math.Vec3 { return c.components().Scale }
func (c *AnimChannelMatrixDynamic) HPR(int) math.Vec3   { return c.components().HPR }
func (c *AnimChannelMatrixDynamic) Shear(int) math.Vec3 { return c.components().Shear }
func (c *AnimChannelMatrixDynamic) Pos(int) math.Vec3   { return c.current().Translation() }

func (c *AnimChannelMatrixDynamic) Quat(int) math.Quat {
	return math.QuatFromHPR(c.components().HPR)
}

// HasChanged compares the current transform with the one seen by the
// previous call, then remembers the current one.
func (c *AnimChannelMatrixDynamic) HasChanged(int, float64, int, float64) bool {
	cur := c.current()
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := cur != c.last
	c.last = cur
	return changed
}
