package anim

import (
	"slices"
	"strings"

	"github.com/Faultbox/midgard-anim/pkg/bam"
)

// AnimNode is a node of an animation tree. The tree mirrors the part tree it
// is bound to: nodes are matched to parts by name, level by level.
type AnimNode interface {
	bam.Writable
	Name() string
	ValueType() ValueType
	Children() []AnimNode
	animGroup() *AnimGroup
}

// AnimGroup is an interior animation node with no channel data.
type AnimGroup struct {
	name     string
	children []AnimNode
}

// NewAnimGroup creates a group and appends it to parent.
func NewAnimGroup(parent AnimNode, name string) *AnimGroup {
	g := &AnimGroup{name: name}
	AddAnimChild(parent, g)
	return g
}

// AddAnimChild appends child to parent's children. A nil parent panics.
func AddAnimChild(parent AnimNode, child AnimNode) {
	if parent == nil {
		panic("anim: AddAnimChild with nil parent")
	}
	g := parent.animGroup()
	g.children = append(g.children, child)
}

func (g *AnimGroup) Name() string          { return g.name }
func (g *AnimGroup) TypeName() string      { return "AnimGroup" }
func (g *AnimGroup) ValueType() ValueType  { return ValueNone }
func (g *AnimGroup) Children() []AnimNode  { return g.children }
func (g *AnimGroup) animGroup() *AnimGroup { return g }

// SortDescendants sorts children by name at every level.
func (g *AnimGroup) SortDescendants() {
	slices.SortStableFunc(g.children, func(a, b AnimNode) int {
		return strings.Compare(a.Name(), b.Name())
	})
	for _, c := range g.children {
		c.animGroup().SortDescendants()
	}
}

// FindChild returns the first descendant named name, depth first, or nil.
func (g *AnimGroup) FindChild(name string) AnimNode {
	for _, c := range g.children {
		if c.Name() == name {
			return c
		}
		if found := c.animGroup().FindChild(name); found != nil {
			return found
		}
	}
	return nil
}

// AnimBundle is the root of an animation tree: one loadable animation.
type AnimBundle struct {
	AnimGroup
	fps       float64
	numFrames int
}

// NewAnimBundle creates an empty animation root.
func NewAnimBundle(name string, fps float64, numFrames int) *AnimBundle {
	return &AnimBundle{AnimGroup: AnimGroup{name: name}, fps: fps, numFrames: numFrames}
}

func (b *AnimBundle) TypeName() string { return "AnimBundle" }

// BaseFrameRate is the native playback rate in frames per second.
func (b *AnimBundle) BaseFrameRate() float64 { return b.fps }

// NumFrames is the animation length.
func (b *AnimBundle) NumFrames() int { return b.numFrames }
