package character

import (
	"sync"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// JointVertexTransform caches a joint's skinning matrix for vertex
// consumers. Readers on any goroutine share a fresh cache without blocking
// each other; the first read after the joint moves recomputes it.
type JointVertexTransform struct {
	joint *Joint

	mu     sync.RWMutex
	matrix math.Mat4
	stale  bool
}

// NewJointVertexTransform creates a transform following j. The joint holds
// it weakly, so dropping every reference is enough to release it.
func NewJointVertexTransform(j *Joint) *JointVertexTransform {
	vt := &JointVertexTransform{joint: j, stale: true}
	j.addVertexTransform(vt)
	return vt
}

// Joint returns the joint being followed.
func (vt *JointVertexTransform) Joint() *Joint { return vt.joint }

// Matrix returns the skinning matrix, recomputing it if the joint moved.
func (vt *JointVertexTransform) Matrix() math.Mat4 {
	vt.mu.RLock()
	if !vt.stale {
		m := vt.matrix
		vt.mu.RUnlock()
		return m
	}
	vt.mu.RUnlock()

	vt.mu.Lock()
	defer vt.mu.Unlock()
	if vt.stale {
		vt.matrix = vt.joint.SkinningMatrix()
		vt.stale = false
	}
	return vt.matrix
}

// MultMatrix returns previous with the skinning matrix applied first.
func (vt *JointVertexTransform) MultMatrix(previous math.Mat4) math.Mat4 {
	return previous.Mul(vt.Matrix())
}

// AccumulateMatrix adds the skinning matrix scaled by weight to accum.
func (vt *JointVertexTransform) AccumulateMatrix(accum *math.Mat4, weight float32) {
	*accum = accum.Add(vt.Matrix().MulScalar(weight))
}

// MarkStale forces the next Matrix call to recompute.
func (vt *JointVertexTransform) MarkStale() {
	vt.mu.Lock()
	vt.stale = true
	vt.mu.Unlock()
}

// IsStale reports whether the cache needs recomputing.
func (vt *JointVertexTransform) IsStale() bool {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	return vt.stale
}

// Release stops the joint notifying vt.
func (vt *JointVertexTransform) Release() {
	vt.joint.removeVertexTransform(vt)
}
