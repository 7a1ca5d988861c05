package anim

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/pkg/bam"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Part is a node of the skeleton tree.
//
// Concrete parts embed *PartGroup (directly or through MovingPartMatrix or
// MovingPartScalar), which supplies the child list. The tree functions in
// this package are free functions over Part so that a type embedding one of
// these structs is seen as itself, not as the embedded value.
type Part interface {
	bam.Writable
	Name() string
	ValueType() ValueType
	Children() []Part
	// MakeCopy returns a copy of this node without children.
	MakeCopy() Part
	partGroup() *PartGroup
}

// InternalsUpdater is implemented by parts that derive extra state from
// their value during an update, such as a joint's net transform. It returns
// whether anything visible changed.
type InternalsUpdater interface {
	UpdateInternals(b *PartBundle, parent Part, selfChanged, parentChanged bool) bool
}

// Xformer is implemented by parts that store transforms which must follow a
// transform applied to the whole bundle.
type Xformer interface {
	DoXform(mat, inv math.Mat4)
}

// PartGroup is an interior skeleton node with no value of its own.
type PartGroup struct {
	name     string
	children []Part
}

// NewPartGroup creates a group and appends it to parent.
func NewPartGroup(parent Part, name string) *PartGroup {
	g := &PartGroup{name: name}
	AddChild(parent, g)
	return g
}

// MakePartGroup returns an unattached group value for embedding.
func MakePartGroup(name string) PartGroup {
	return PartGroup{name: name}
}

// AddChild appends child to parent's children. A nil parent panics.
func AddChild(parent Part, child Part) {
	if parent == nil {
		panic("anim: AddChild with nil parent")
	}
	g := parent.partGroup()
	g.children = append(g.children, child)
}

func (g *PartGroup) Name() string         { return g.name }
func (g *PartGroup) TypeName() string     { return "PartGroup" }
func (g *PartGroup) ValueType() ValueType { return ValueNone }
func (g *PartGroup) partGroup() *PartGroup { return g }

// Children returns the child list. Callers must not modify it.
func (g *PartGroup) Children() []Part { return g.children }

// NumChildren returns the number of children.
func (g *PartGroup) NumChildren() int { return len(g.children) }

// Child returns the nth child.
func (g *PartGroup) Child(n int) Part { return g.children[n] }

// MakeCopy returns a childless copy.
func (g *PartGroup) MakeCopy() Part {
	return &PartGroup{name: g.name}
}

// SortDescendants sorts the children of every node by name, in byte order.
// Matching assumes sorted trees, so call it once the tree is built.
func (g *PartGroup) SortDescendants() {
	slices.SortStableFunc(g.children, func(a, b Part) int {
		return strings.Compare(a.Name(), b.Name())
	})
	for _, c := range g.children {
		c.partGroup().SortDescendants()
	}
}

// FindChild returns the first descendant named name, searching depth first,
// or nil.
func (g *PartGroup) FindChild(name string) Part {
	for _, c := range g.children {
		if c.Name() == name {
			return c
		}
		if found := c.partGroup().FindChild(name); found != nil {
			return found
		}
	}
	return nil
}

// CopySubgraph copies p and all of its descendants.
func CopySubgraph(p Part) Part {
	root := p.MakeCopy()
	if root.TypeName() != p.TypeName() {
		log.Warn("copy lost part type",
			zap.String("part", p.Name()),
			zap.String("type", p.TypeName()))
	}
	for _, c := range p.Children() {
		AddChild(root, CopySubgraph(c))
	}
	return root
}

// CheckHierarchy reports whether anim can drive p. Value types must agree at
// every matched node; unmatched names on either side are accepted only when
// flags allow them. Mismatches are logged.
func CheckHierarchy(p Part, anim AnimNode, flags HierarchyMatchFlags) bool {
	if anim.ValueType() != p.ValueType() {
		log.Error("part and anim value types differ",
			zap.String("part", p.Name()),
			zap.Stringer("part_type", p.ValueType()),
			zap.Stringer("anim_type", anim.ValueType()))
		return false
	}

	parts := p.Children()
	anims := anim.Children()
	partExtra, animExtra := diffChildren(parts, anims)
	if len(partExtra) > 0 || len(animExtra) > 0 {
		ok := (len(partExtra) == 0 || flags&HMFOKPartExtra != 0) &&
			(len(animExtra) == 0 || flags&HMFOKAnimExtra != 0)
		logf := log.Error
		if ok {
			logf = log.Warn
		}
		logf("part and anim children differ",
			zap.String("part", p.Name()),
			zap.Int("part_children", len(parts)),
			zap.Int("anim_children", len(anims)),
			zap.Strings("part_only", partExtra),
			zap.Strings("anim_only", animExtra))
	}

	i, j := 0, 0
	for i < len(parts) && j < len(anims) {
		pn, an := parts[i].Name(), anims[j].Name()
		switch {
		case pn < an:
			if flags&HMFOKPartExtra == 0 {
				return false
			}
			i++
		case an < pn:
			if flags&HMFOKAnimExtra == 0 {
				return false
			}
			j++
		default:
			if !CheckHierarchy(parts[i], anims[j], flags) {
				return false
			}
			i++
			j++
		}
	}
	if i < len(parts) && flags&HMFOKPartExtra == 0 {
		return false
	}
	if j < len(anims) && flags&HMFOKAnimExtra == 0 {
		return false
	}
	return true
}

// diffChildren merges two name-sorted child lists and returns the names
// found only on each side.
func diffChildren(parts []Part, anims []AnimNode) (partOnly, animOnly []string) {
	i, j := 0, 0
	for i < len(parts) && j < len(anims) {
		pn, an := parts[i].Name(), anims[j].Name()
		switch {
		case pn < an:
			partOnly = append(partOnly, pn)
			i++
		case an < pn:
			animOnly = append(animOnly, an)
			j++
		default:
			i++
			j++
		}
	}
	for ; i < len(parts); i++ {
		partOnly = append(partOnly, parts[i].Name())
	}
	for ; j < len(anims); j++ {
		animOnly = append(animOnly, anims[j].Name())
	}
	return partOnly, animOnly
}

// BindHierarchy stores anim's channels at channelIndex in every moving part
// under p. It never fails: a part with no matching channel gets a channel
// that holds its initial value. Parts outside subset get a nil channel.
// jointIndex counts moving parts in tree order and bound records which of
// them were bound.
func BindHierarchy(p Part, anim AnimNode, channelIndex int, jointIndex *int, included bool, bound *BitArray, subset *PartSubset) {
	included = subset.resolve(p.Name(), included)

	if mp, ok := p.(movingPart); ok {
		mp.base().bindChannel(mp, anim, channelIndex, *jointIndex, included, bound)
		*jointIndex++
	}

	parts := p.Children()
	var anims []AnimNode
	if anim != nil {
		anims = anim.Children()
	}

	i, j := 0, 0
	for i < len(parts) && j < len(anims) {
		pn, an := parts[i].Name(), anims[j].Name()
		switch {
		case pn < an:
			BindHierarchy(parts[i], nil, channelIndex, jointIndex, included, bound, subset)
			i++
		case an < pn:
			j++
		default:
			BindHierarchy(parts[i], anims[j], channelIndex, jointIndex, included, bound, subset)
			i++
			j++
		}
	}
	for ; i < len(parts); i++ {
		BindHierarchy(parts[i], nil, channelIndex, jointIndex, included, bound, subset)
	}
}

// FindBoundJoints records in bound which moving parts a bind with subset
// would include, without binding anything.
func FindBoundJoints(p Part, jointIndex *int, included bool, bound *BitArray, subset *PartSubset) {
	included = subset.resolve(p.Name(), included)
	if _, ok := p.(movingPart); ok {
		bound.SetBitTo(*jointIndex, included)
		*jointIndex++
	}
	for _, c := range p.Children() {
		FindBoundJoints(c, jointIndex, included, bound, subset)
	}
}

// PickChannelIndex finds the channel indexes free in every moving part under
// p. On return next is the highest channel array length seen, and holes
// lists the indexes below next that no part is using.
func PickChannelIndex(p Part, holes *[]int, next *int) {
	if mp, ok := p.(movingPart); ok {
		channels := mp.base().channels

		// Drop holes this part is using.
		kept := (*holes)[:0]
		for _, h := range *holes {
			if h < 0 || h >= *next {
				panic(fmt.Sprintf("anim: channel hole %d outside [0, %d)", h, *next))
			}
			if h < len(channels) && channels[h] != nil {
				continue
			}
			kept = append(kept, h)
		}
		*holes = kept

		if *next < len(channels) {
			for i := *next; i < len(channels); i++ {
				if channels[i] == nil {
					*holes = append(*holes, i)
				}
			}
			*next = len(channels)
		}
	}

	for _, c := range p.Children() {
		PickChannelIndex(c, holes, next)
	}
}

// clearChannel drops the channel at index from every moving part under p.
func clearChannel(p Part, index int) {
	if mp, ok := p.(movingPart); ok {
		mb := mp.base()
		if index < len(mb.channels) {
			mb.channels[index] = nil
		}
	}
	for _, c := range p.Children() {
		clearChannel(c, index)
	}
}

// determineEffectiveChannels caches, per moving part, the only control with
// a channel on that part, if there is exactly one.
func determineEffectiveChannels(p Part, b *PartBundle) {
	if mp, ok := p.(movingPart); ok {
		mp.base().determineEffective(b)
	}
	for _, c := range p.Children() {
		determineEffectiveChannels(c, b)
	}
}

// doUpdate walks the tree top down, recomputing moving parts whose bound
// channels changed. It returns true if any part below p changed.
func doUpdate(p Part, b *PartBundle, parent Part, parentChanged, animChanged bool) bool {
	anyChanged := false
	childParentChanged := parentChanged

	if mp, ok := p.(movingPart); ok {
		needsUpdate := mp.base().needsUpdate(b, animChanged)
		if needsUpdate {
			mp.blendValue(b)
		}
		if parentChanged || needsUpdate {
			if updateInternals(p, b, parent, needsUpdate, parentChanged) {
				anyChanged = true
			}
		}
		childParentChanged = parentChanged || needsUpdate
	}

	for _, c := range p.Children() {
		if doUpdate(c, b, p, childParentChanged, animChanged) {
			anyChanged = true
		}
	}
	return anyChanged
}

func updateInternals(p Part, b *PartBundle, parent Part, selfChanged, parentChanged bool) bool {
	if u, ok := p.(InternalsUpdater); ok {
		return u.UpdateInternals(b, parent, selfChanged, parentChanged)
	}
	return true
}

// xformTree applies mat to every part that stores transforms.
func xformTree(p Part, mat, inv math.Mat4) {
	if x, ok := p.(Xformer); ok {
		x.DoXform(mat, inv)
	}
	for _, c := range p.Children() {
		xformTree(c, mat, inv)
	}
}

// ForEachPart calls fn for p and every descendant, parents first.
func ForEachPart(p Part, fn func(Part)) {
	fn(p)
	for _, c := range p.Children() {
		ForEachPart(c, fn)
	}
}
