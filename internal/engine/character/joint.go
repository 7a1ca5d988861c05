// Package character turns an anim.PartBundle into a posable skeleton.
//
// A Joint is a matrix part that also tracks its net transform (its value
// composed with every ancestor's) and the inverse of the net transform at
// rest. The difference between the two is the skinning matrix handed to
// vertex consumers through JointVertexTransform.
package character

import (
	"slices"
	"sync"
	"weak"

	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

var log = logger.Named("char")

// TransformReceiver is told a joint's transform after every update that
// moved it. Scene nodes that follow a joint implement it.
type TransformReceiver interface {
	SetTransform(m math.Mat4)
}

// Joint is one bone of a character skeleton.
type Joint struct {
	anim.MovingPartMatrix

	mu                sync.RWMutex
	character         *Character
	net               math.Mat4
	initialNetInverse math.Mat4
	netReceivers      []TransformReceiver
	localReceivers    []TransformReceiver
	vertexTransforms  []weak.Pointer[JointVertexTransform]
}

// NewJoint creates a joint under parent whose rest value is defaultValue.
// The rest net transform is taken from parent if it is a joint.
func NewJoint(parent anim.Part, name string, defaultValue math.Mat4) *Joint {
	j := &Joint{MovingPartMatrix: anim.MakeMovingPartMatrix(name, defaultValue)}
	anim.AddChild(parent, j)

	j.net = defaultValue
	if p, ok := parent.(*Joint); ok {
		j.net = p.Net().Mul(defaultValue)
	}
	j.initialNetInverse = j.net.Inverse()
	return j
}

func (j *Joint) TypeName() string { return "CharacterJoint" }

// MakeCopy copies the rest pose and current net transform. Receivers,
// vertex transforms and the character link are not copied.
func (j *Joint) MakeCopy() anim.Part {
	c := &Joint{MovingPartMatrix: anim.MakeMovingPartMatrix(j.Name(), j.InitialValue())}
	j.mu.RLock()
	c.net = j.net
	c.initialNetInverse = j.initialNetInverse
	j.mu.RUnlock()
	return c
}

// Character returns the character the joint belongs to, or nil.
func (j *Joint) Character() *Character {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.character
}

func (j *Joint) setCharacter(c *Character) {
	j.mu.Lock()
	j.character = c
	j.mu.Unlock()
}

// Net returns the joint's transform in bundle space, including the root
// transform.
func (j *Joint) Net() math.Mat4 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.net
}

// InitialNetInverse returns the inverse of the rest net transform.
func (j *Joint) InitialNetInverse() math.Mat4 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.initialNetInverse
}

// SetInitialNetInverse replaces the rest inverse, for loaders that store
// bind matrices separately from the rest pose.
func (j *Joint) SetInitialNetInverse(m math.Mat4) {
	j.mu.Lock()
	j.initialNetInverse = m
	j.mu.Unlock()
	j.markVertexTransforms()
}

// SkinningMatrix returns the offset from the rest pose to the current pose.
func (j *Joint) SkinningMatrix() math.Mat4 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.net.Mul(j.initialNetInverse)
}

// UpdateInternals recomputes the net transform from the parent joint, or
// the bundle root transform for a top-level joint, and notifies receivers.
func (j *Joint) UpdateInternals(b *anim.PartBundle, parent anim.Part, selfChanged, parentChanged bool) bool {
	var parentNet math.Mat4
	if p, ok := parent.(*Joint); ok {
		parentNet = p.Net()
	} else {
		parentNet = b.RootXform()
	}
	value := j.Value()
	net := parentNet.Mul(value)

	j.mu.Lock()
	j.net = net
	netReceivers := slices.Clone(j.netReceivers)
	var localReceivers []TransformReceiver
	if selfChanged {
		localReceivers = slices.Clone(j.localReceivers)
	}
	j.mu.Unlock()

	j.markVertexTransforms()
	for _, r := range netReceivers {
		r.SetTransform(net)
	}
	for _, r := range localReceivers {
		r.SetTransform(value)
	}
	return true
}

// DoXform moves the rest pose along with a transform applied to the whole
// bundle, so the skinning matrix at rest stays the identity.
func (j *Joint) DoXform(mat, inv math.Mat4) {
	j.mu.Lock()
	j.initialNetInverse = j.initialNetInverse.Mul(inv)
	j.mu.Unlock()
	j.markVertexTransforms()
}

// AddNetTransform makes r follow the joint's net transform. It returns false
// if r was already registered. r is told the current transform at once.
func (j *Joint) AddNetTransform(r TransformReceiver) bool {
	j.mu.Lock()
	if slices.Contains(j.netReceivers, r) {
		j.mu.Unlock()
		return false
	}
	j.netReceivers = append(j.netReceivers, r)
	net := j.net
	j.mu.Unlock()
	r.SetTransform(net)
	return true
}

// RemoveNetTransform stops r following the net transform.
func (j *Joint) RemoveNetTransform(r TransformReceiver) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return removeReceiver(&j.netReceivers, r)
}

// NetTransforms returns the net transform receivers.
func (j *Joint) NetTransforms() []TransformReceiver {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return slices.Clone(j.netReceivers)
}

// AddLocalTransform makes r follow the joint's own value.
func (j *Joint) AddLocalTransform(r TransformReceiver) bool {
	j.mu.Lock()
	if slices.Contains(j.localReceivers, r) {
		j.mu.Unlock()
		return false
	}
	j.localReceivers = append(j.localReceivers, r)
	j.mu.Unlock()
	r.SetTransform(j.Value())
	return true
}

// RemoveLocalTransform stops r following the local value.
func (j *Joint) RemoveLocalTransform(r TransformReceiver) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return removeReceiver(&j.localReceivers, r)
}

// LocalTransforms returns the local value receivers.
func (j *Joint) LocalTransforms() []TransformReceiver {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return slices.Clone(j.localReceivers)
}

// ClearTransforms drops every receiver.
func (j *Joint) ClearTransforms() {
	j.mu.Lock()
	j.netReceivers = nil
	j.localReceivers = nil
	j.mu.Unlock()
}

func removeReceiver(list *[]TransformReceiver, r TransformReceiver) bool {
	i := slices.Index(*list, r)
	if i < 0 {
		return false
	}
	*list = slices.Delete(*list, i, i+1)
	return true
}

func (j *Joint) addVertexTransform(vt *JointVertexTransform) {
	j.mu.Lock()
	j.vertexTransforms = append(j.vertexTransforms, weak.Make(vt))
	j.mu.Unlock()
}

func (j *Joint) removeVertexTransform(vt *JointVertexTransform) {
	j.mu.Lock()
	j.vertexTransforms = slices.DeleteFunc(j.vertexTransforms, func(wp weak.Pointer[JointVertexTransform]) bool {
		v := wp.Value()
		return v == nil || v == vt
	})
	j.mu.Unlock()
}

// markVertexTransforms marks every live vertex transform stale and forgets
// collected ones.
func (j *Joint) markVertexTransforms() {
	j.mu.Lock()
	live := make([]*JointVertexTransform, 0, len(j.vertexTransforms))
	j.vertexTransforms = slices.DeleteFunc(j.vertexTransforms, func(wp weak.Pointer[JointVertexTransform]) bool {
		v := wp.Value()
		if v == nil {
			return true
		}
		live = append(live, v)
		return false
	})
	j.mu.Unlock()

	for _, vt := range live {
		vt.MarkStale()
	}
}

// NumVertexTransforms returns how many live vertex transforms follow j.
func (j *Joint) NumVertexTransforms() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	n := 0
	for _, wp := range j.vertexTransforms {
		if wp.Value() != nil {
			n++
		}
	}
	return n
}
