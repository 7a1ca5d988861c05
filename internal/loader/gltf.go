package loader

import (
	"fmt"
	"reflect"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/internal/engine/character"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// ImportOptions controls glTF and RSM import.
type ImportOptions struct {
	// SampleRate is the frame rate keyframes are resampled at.
	SampleRate float32
	// Skin selects the glTF skin whose joints form the skeleton. Documents
	// without skins use every node.
	Skin int
}

// GLTFScene is an imported glTF document: one character and every
// animation in the file. Each animation's root is named after the
// character's bundle so it binds without HMFOKWrongRootName; AnimNames
// holds the glTF names.
type GLTFScene struct {
	Character *character.Character
	Anims     []*anim.AnimBundle
	AnimNames []string
}

// Anim returns the animation named name, or nil.
func (s *GLTFScene) Anim(name string) *anim.AnimBundle {
	for i, n := range s.AnimNames {
		if n == name {
			return s.Anims[i]
		}
	}
	return nil
}

// LoadGLTF opens a .gltf or .glb file and imports it. The bundle is named
// after the file's basename.
func LoadGLTF(path string, opts ImportOptions) (*GLTFScene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	s, err := ImportGLTF(doc, anim.PreloadBasename(path), opts)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", path, err)
	}
	return s, nil
}

// nodeTRS returns a node's local transform as components. A node given by
// matrix is decomposed.
func nodeTRS(n *gltf.Node) trs {
	m := math.Mat4(n.Matrix)
	if m != (math.Mat4{}) && m != math.Identity() {
		c, _ := math.DecomposeMatrix(m)
		return trs{pos: c.Pos, rot: math.QuatFromHPR(c.HPR), scale: c.Scale}
	}
	t := trs{
		pos:   math.Vec3{X: n.Translation[0], Y: n.Translation[1], Z: n.Translation[2]},
		rot:   math.Quat{X: n.Rotation[0], Y: n.Rotation[1], Z: n.Rotation[2], W: n.Rotation[3]},
		scale: math.Vec3{X: n.Scale[0], Y: n.Scale[1], Z: n.Scale[2]},
	}
	if t.rot == (math.Quat{}) {
		t.rot = math.QuatIdentity()
	}
	if t.scale == (math.Vec3{}) {
		t.scale = math.Vec3One()
	}
	return t
}

// ImportGLTF converts doc into a character named name and its animations.
func ImportGLTF(doc *gltf.Document, name string, opts ImportOptions) (*GLTFScene, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 30
	}
	if err := validateGLTF(doc); err != nil {
		return nil, err
	}
	joints, err := gltfSkeleton(doc, opts.Skin)
	if err != nil {
		return nil, err
	}
	byNode := make(map[int]int, len(joints))
	for i, j := range joints {
		byNode[j.node] = i
	}

	b, parts := buildSkeleton(name, joints)
	if err := applyInverseBind(doc, opts.Skin, byNode, parts); err != nil {
		return nil, err
	}
	b.SortDescendants()

	c := character.New(name)
	c.AddBundle(b)
	scene := &GLTFScene{Character: c}

	preloads := anim.NewAnimPreloadTable()
	for i, ga := range doc.Animations {
		a, err := importAnimation(doc, ga, i, name, joints, byNode, opts.SampleRate)
		if err != nil {
			return nil, err
		}
		scene.Anims = append(scene.Anims, a)
		scene.AnimNames = append(scene.AnimNames, animName(ga, i))
		preloads.AddAnim(animName(ga, i), float32(a.BaseFrameRate()), a.NumFrames())
	}
	if preloads.NumAnims() > 0 {
		b.SetAnimPreload(preloads)
	}

	log.Info("imported glTF",
		zap.String("name", name),
		zap.Int("joints", len(joints)),
		zap.Int("animations", len(scene.Anims)))
	return scene, nil
}

func animName(ga *gltf.Animation, i int) string {
	if ga.Name != "" {
		return ga.Name
	}
	return fmt.Sprintf("anim%d", i)
}

// morphWeights returns the rest weights of the morph targets on n's mesh.
func morphWeights(doc *gltf.Document, n *gltf.Node) []float32 {
	count := morphCount(doc, n)
	if count == 0 {
		return nil
	}
	w := make([]float32, count)
	copy(w, doc.Meshes[*n.Mesh].Weights)
	return w
}

func morphCount(doc *gltf.Document, n *gltf.Node) int {
	if n.Mesh == nil {
		return 0
	}
	mesh := doc.Meshes[*n.Mesh]
	if len(mesh.Weights) > 0 {
		return len(mesh.Weights)
	}
	if len(mesh.Primitives) > 0 {
		return len(mesh.Primitives[0].Targets)
	}
	return 0
}

// gltfSkeleton orders the skeleton nodes parents first. A joint whose
// parent node is not a joint becomes a root, carrying the transforms of the
// nodes above it.
func gltfSkeleton(doc *gltf.Document, skin int) ([]importJoint, error) {
	parentOf := make(map[int]int, len(doc.Nodes))
	for i, n := range doc.Nodes {
		for _, c := range n.Children {
			parentOf[int(c)] = i
		}
	}

	member := map[int]bool{}
	if len(doc.Skins) > 0 {
		if skin < 0 || skin >= len(doc.Skins) {
			return nil, fmt.Errorf("%w: skin %d of %d", ErrNoRig, skin, len(doc.Skins))
		}
		for _, j := range doc.Skins[skin].Joints {
			member[int(j)] = true
		}
		// Meshes skinned here and their morph targets ride on the skeleton.
		for i, n := range doc.Nodes {
			if n.Skin != nil && int(*n.Skin) == skin && morphCount(doc, n) > 0 {
				member[i] = true
			}
		}
	} else {
		for i := range doc.Nodes {
			member[i] = true
		}
	}
	if len(member) == 0 {
		return nil, fmt.Errorf("%w: no joints", ErrNoRig)
	}

	var joints []importJoint
	index := map[int]int{}
	names := map[string]int{}
	var visit func(node, parent int, prefix math.Mat4)
	visit = func(node, parent int, prefix math.Mat4) {
		n := doc.Nodes[node]
		local := nodeTRS(n)
		next := parent
		childPrefix := math.Identity()
		if member[node] {
			name := n.Name
			if name == "" {
				name = fmt.Sprintf("node%d", node)
			}
			if k := names[name]; k > 0 {
				name = fmt.Sprintf("%s.%d", name, k)
			}
			names[n.Name]++
			index[node] = len(joints)
			joints = append(joints, importJoint{
				node:   node,
				name:   name,
				parent: parent,
				prefix: prefix,
				rest:   local,
				morphs: morphWeights(doc, n),
			})
			next = index[node]
		} else {
			childPrefix = prefix.Mul(local.matrix())
		}
		for _, c := range n.Children {
			visit(int(c), next, childPrefix)
		}
	}
	for i := range doc.Nodes {
		if _, hasParent := parentOf[i]; !hasParent {
			visit(i, -1, math.Identity())
		}
	}
	return joints, nil
}

// applyInverseBind replaces the rest inverses with the skin's bind
// matrices when the file provides them.
func applyInverseBind(doc *gltf.Document, skin int, byNode map[int]int, parts []*character.Joint) error {
	if len(doc.Skins) == 0 || doc.Skins[skin].InverseBindMatrices == nil {
		return nil
	}
	s := doc.Skins[skin]
	data, comps, err := readAccessor(doc, int(*s.InverseBindMatrices))
	if err != nil {
		return fmt.Errorf("inverse bind matrices: %w", err)
	}
	if comps != 16 || len(data) < 16*len(s.Joints) {
		return fmt.Errorf("%w: inverse bind matrices hold %d floats for %d joints", ErrInvalidFile, len(data), len(s.Joints))
	}
	for i, node := range s.Joints {
		k, ok := byNode[int(node)]
		if !ok {
			return fmt.Errorf("%w: skin joint %d is outside the node tree", ErrInvalidFile, node)
		}
		var m math.Mat4
		copy(m[:], data[i*16:(i+1)*16])
		parts[k].SetInitialNetInverse(m)
	}
	return nil
}

func importAnimation(doc *gltf.Document, ga *gltf.Animation, index int, bundle string, joints []importJoint, byNode map[int]int, fps float32) (*anim.AnimBundle, error) {
	name := animName(ga, index)
	tracks := map[int]*nodeTracks{}
	var duration float32

	for ci, ch := range ga.Channels {
		if ch.Target.Node == nil || ch.Sampler == nil {
			continue
		}
		node := int(*ch.Target.Node)
		if _, ok := byNode[node]; !ok {
			continue
		}
		sampler := ga.Samplers[*ch.Sampler]
		if sampler.Input == nil || sampler.Output == nil {
			return nil, fmt.Errorf("%w: animation %q channel %d has no sampler data", ErrInvalidFile, name, ci)
		}
		times, _, err := readAccessor(doc, int(*sampler.Input))
		if err != nil {
			return nil, fmt.Errorf("animation %q channel %d times: %w", name, ci, err)
		}
		values, comps, err := readAccessor(doc, int(*sampler.Output))
		if err != nil {
			return nil, fmt.Errorf("animation %q channel %d values: %w", name, ci, err)
		}
		if len(times) > 0 {
			duration = max(duration, times[len(times)-1])
		}

		interp := InterpLinear
		cubic := false
		switch sampler.Interpolation {
		case gltf.InterpolationStep:
			interp = InterpStep
		case gltf.InterpolationCubicSpline:
			// Tangents are dropped; the spline is followed linearly through
			// its key values.
			cubic = true
		}

		nt := tracks[node]
		if nt == nil {
			nt = &nodeTracks{}
			tracks[node] = nt
		}
		switch ch.Target.Path {
		case gltf.TRSTranslation:
			nt.pos = Vec3Track(times, vec3s(keyValues(values, comps, len(times), cubic)), interp)
		case gltf.TRSScale:
			nt.scale = Vec3Track(times, vec3s(keyValues(values, comps, len(times), cubic)), interp)
		case gltf.TRSRotation:
			nt.rot = QuatTrack(times, quats(keyValues(values, comps, len(times), cubic)), interp)
		case gltf.TRSWeights:
			morphs := len(joints[byNode[node]].morphs)
			if morphs == 0 {
				continue
			}
			per := keyValues(values, morphs, len(times), cubic)
			nt.weights = make([]*Track[float32], morphs)
			for m := range morphs {
				w := make([]float32, len(times))
				for k := range w {
					w[k] = per[k*morphs+m]
				}
				nt.weights[m] = ScalarTrack(times, w, interp)
			}
		}
	}

	frames, err := bakedFrames(duration, fps)
	if err != nil {
		return nil, fmt.Errorf("animation %q: %w", name, err)
	}
	a := bakeAnim(bundle, joints, tracks, fps, frames)

	log.Debug("imported animation",
		zap.String("anim", name),
		zap.Float32("duration", duration),
		zap.Int("frames", frames),
		zap.Int("tracks", len(tracks)))
	return a, nil
}

// keyValues returns one key's worth of values per key time, skipping the
// tangents of a cubic spline.
func keyValues(values []float32, comps, keys int, cubic bool) []float32 {
	if !cubic {
		return values[:min(len(values), comps*keys)]
	}
	out := make([]float32, 0, comps*keys)
	for k := range keys {
		start := (3*k + 1) * comps
		if start+comps > len(values) {
			break
		}
		out = append(out, values[start:start+comps]...)
	}
	return out
}

func vec3s(v []float32) []math.Vec3 {
	out := make([]math.Vec3, len(v)/3)
	for i := range out {
		out[i] = math.Vec3{X: v[3*i], Y: v[3*i+1], Z: v[3*i+2]}
	}
	return out
}

func quats(v []float32) []math.Quat {
	out := make([]math.Quat, len(v)/4)
	for i := range out {
		out[i] = math.Quat{X: v[4*i], Y: v[4*i+1], Z: v[4*i+2], W: v[4*i+3]}
	}
	return out
}

func componentCount(t gltf.AccessorType) (int, error) {
	switch t {
	case gltf.AccessorScalar:
		return 1, nil
	case gltf.AccessorVec2:
		return 2, nil
	case gltf.AccessorVec3:
		return 3, nil
	case gltf.AccessorVec4:
		return 4, nil
	case gltf.AccessorMat4:
		return 16, nil
	}
	return 0, fmt.Errorf("%w: accessor type %v", ErrInvalidFile, t)
}

// readAccessor decodes an accessor into floats. Integer components are
// scaled to [0, 1] or [-1, 1] when the accessor is normalized. It returns
// the values and the components per element.
func readAccessor(doc *gltf.Document, index int) ([]float32, int, error) {
	if index < 0 || index >= len(doc.Accessors) {
		return nil, 0, fmt.Errorf("%w: accessor %d", ErrInvalidFile, index)
	}
	acc := doc.Accessors[index]
	comps, err := componentCount(acc.Type)
	if err != nil {
		return nil, 0, err
	}
	if acc.BufferView == nil && acc.Sparse == nil {
		return make([]float32, int(acc.Count)*comps), comps, nil
	}
	data, err := decodeAccessor(doc, acc)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: accessor %d: %v", ErrInvalidFile, index, err)
	}
	values, err := floats(data, acc.Normalized)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: accessor %d: %v", ErrInvalidFile, index, err)
	}
	return values, comps, nil
}

// decodeAccessor reads acc through modeler, which indexes sparse value
// views and byte offsets without bounds checks.
func decodeAccessor(doc *gltf.Document, acc *gltf.Accessor) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("malformed data: %v", r)
		}
	}()
	return modeler.ReadAccessor(doc, acc, nil)
}

// floats flattens a slice of numbers or fixed-size arrays of numbers, as
// returned by modeler.ReadAccessor.
func floats(data any, normalized bool) ([]float32, error) {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice {
		return nil, fmt.Errorf("unexpected accessor data %T", data)
	}
	out := make([]float32, 0, v.Len())
	var walk func(e reflect.Value) error
	walk = func(e reflect.Value) error {
		switch e.Kind() {
		case reflect.Array:
			for i := range e.Len() {
				if err := walk(e.Index(i)); err != nil {
					return err
				}
			}
		case reflect.Float32, reflect.Float64:
			out = append(out, float32(e.Float()))
		case reflect.Uint8, reflect.Uint16, reflect.Uint32:
			f := float32(e.Uint())
			if normalized {
				f /= float32(uint64(1)<<(8*e.Type().Size()) - 1)
			}
			out = append(out, f)
		case reflect.Int8, reflect.Int16:
			f := float32(e.Int())
			if normalized {
				f = max(f/float32(int64(1)<<(8*e.Type().Size()-1)-1), -1)
			}
			out = append(out, f)
		default:
			return fmt.Errorf("unexpected component %v", e.Kind())
		}
		return nil
	}
	for i := range v.Len() {
		if err := walk(v.Index(i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// validateGLTF checks the indices the importer follows between nodes,
// meshes, skins and animation samplers.
func validateGLTF(doc *gltf.Document) error {
	parents := make([]int, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if n == nil {
			return fmt.Errorf("%w: node %d is null", ErrInvalidFile, i)
		}
		if n.Mesh != nil && int(*n.Mesh) >= len(doc.Meshes) {
			return fmt.Errorf("%w: node %d mesh %d", ErrInvalidFile, i, *n.Mesh)
		}
		if n.Skin != nil && int(*n.Skin) >= len(doc.Skins) {
			return fmt.Errorf("%w: node %d skin %d", ErrInvalidFile, i, *n.Skin)
		}
		for _, c := range n.Children {
			if int(c) >= len(doc.Nodes) || int(c) == i {
				return fmt.Errorf("%w: node %d child %d", ErrInvalidFile, i, c)
			}
			parents[c]++
			if parents[c] > 1 {
				return fmt.Errorf("%w: node %d has several parents", ErrInvalidFile, c)
			}
		}
	}
	for si, s := range doc.Skins {
		for _, j := range s.Joints {
			if int(j) >= len(doc.Nodes) {
				return fmt.Errorf("%w: skin %d joint %d", ErrInvalidFile, si, j)
			}
		}
	}
	for ai, a := range doc.Animations {
		for ci, ch := range a.Channels {
			if ch.Sampler != nil && int(*ch.Sampler) >= len(a.Samplers) {
				return fmt.Errorf("%w: animation %d channel %d sampler %d", ErrInvalidFile, ai, ci, *ch.Sampler)
			}
		}
	}
	return nil
}
