package loader

import (
	"fmt"

	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/internal/engine/character"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// MaxFrames bounds the frames an imported animation may bake.
const MaxFrames = 1 << 20

// bakedFrames is FrameCount for durations read from a file, which may be
// negative, NaN or absurdly long.
func bakedFrames(duration, fps float32) (int, error) {
	if !(duration >= 0) || duration*fps >= MaxFrames {
		return 0, fmt.Errorf("%w: animation of %gs at %g fps", ErrInvalidFile, duration, fps)
	}
	return FrameCount(duration, fps), nil
}

// importJoint is one joint of a skeleton read from a model file, ordered so
// that parents come before children.
type importJoint struct {
	node   int // index in the source file
	name   string
	parent int // index into the joint list, or -1
	// Transform of non-joint ancestors, folded into a root joint.
	prefix math.Mat4
	rest   trs
	// Rest weights of morph targets carried as sliders under the joint.
	morphs []float32
}

type trs struct {
	pos   math.Vec3
	rot   math.Quat
	scale math.Vec3
}

func (t trs) matrix() math.Mat4 {
	return math.Translate(t.pos.X, t.pos.Y, t.pos.Z).
		Mul(t.rot.ToMat4()).
		Mul(math.Scale(t.scale.X, t.scale.Y, t.scale.Z))
}

// nodeTracks holds the keyframe tracks targeting one joint. Nil tracks hold
// the rest value.
type nodeTracks struct {
	pos     *Track[math.Vec3]
	rot     *Track[math.Quat]
	scale   *Track[math.Vec3]
	weights []*Track[float32]
}

func morphName(joint string, i int) string { return fmt.Sprintf("%s.morph%d", joint, i) }

// buildSkeleton creates a bundle holding joints and their morph sliders.
func buildSkeleton(name string, joints []importJoint) (*anim.PartBundle, []*character.Joint) {
	b := anim.NewPartBundle(name)
	parts := make([]*character.Joint, len(joints))
	for i, j := range joints {
		var parent anim.Part = b
		if j.parent >= 0 {
			parent = parts[j.parent]
		}
		parts[i] = character.NewJoint(parent, j.name, j.prefix.Mul(j.rest.matrix()))
		for m, w := range j.morphs {
			character.NewSlider(parts[i], morphName(j.name, m), w)
		}
	}
	return b, parts
}

// bakeAnim samples tracks, keyed by importJoint.node, into an animation
// mirroring the skeleton. The root is named bundle so it binds to the
// skeleton's bundle.
func bakeAnim(bundle string, joints []importJoint, tracks map[int]*nodeTracks, fps float32, frames int) *anim.AnimBundle {
	a := anim.NewAnimBundle(bundle, float64(fps), frames)
	nodes := make([]anim.AnimNode, len(joints))
	for i, j := range joints {
		var parent anim.AnimNode = a
		if j.parent >= 0 {
			parent = nodes[j.parent]
		}
		ch := anim.NewAnimChannelMatrixXfmTable(parent, j.name)
		nodes[i] = ch
		nt := tracks[j.node]
		if nt == nil {
			nt = &nodeTracks{}
		}
		setFrameTables(ch, sampleJoint(j, nt, fps, frames))

		for m, rest := range j.morphs {
			var table []float32
			if m < len(nt.weights) && nt.weights[m] != nil {
				table = compact(Resample(nt.weights[m], fps, frames), 0)
			} else if rest != 0 {
				table = []float32{rest}
			}
			anim.NewAnimChannelScalarTable(ch, morphName(j.name, m), table)
		}
	}
	a.SortDescendants()
	return a
}

// sampleJoint returns the joint's local matrix at every frame.
func sampleJoint(j importJoint, nt *nodeTracks, fps float32, frames int) []math.Mat4 {
	out := make([]math.Mat4, frames)
	for f := range out {
		t := float32(f) / fps
		v := j.rest
		if nt.pos != nil && nt.pos.Len() > 0 {
			v.pos = nt.pos.Sample(t)
		}
		if nt.rot != nil && nt.rot.Len() > 0 {
			v.rot = nt.rot.Sample(t)
		}
		if nt.scale != nil && nt.scale.Len() > 0 {
			v.scale = nt.scale.Sample(t)
		}
		out[f] = j.prefix.Mul(v.matrix())
	}
	return out
}

// setFrameTables decomposes per-frame matrices into ch's component tables.
func setFrameTables(ch *anim.AnimChannelMatrixXfmTable, frames []math.Mat4) {
	shear := make([]math.Vec3, len(frames))
	scale := make([]math.Vec3, len(frames))
	hpr := make([]math.Vec3, len(frames))
	pos := make([]math.Vec3, len(frames))
	for i, m := range frames {
		c, _ := math.DecomposeMatrix(m)
		shear[i], scale[i], hpr[i], pos[i] = c.Shear, c.Scale, c.HPR, c.Pos
	}
	setVecTables(ch, "ijk", shear, 0)
	setVecTables(ch, "abc", scale, 1)
	setVecTables(ch, "hpr", hpr, 0)
	setVecTables(ch, "xyz", pos, 0)
}
