package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/internal/engine/character"
	"github.com/Faultbox/midgard-anim/pkg/encoding"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// RSM model errors.
var (
	ErrInvalidRSMMagic       = errors.New("invalid RSM magic: expected 'GRSM'")
	ErrUnsupportedRSMVersion = errors.New("unsupported RSM version")
)

// Limits on element counts, beyond which a file is taken to be corrupt.
const (
	rsmMaxNodes    = 10000
	rsmMaxElements = 1 << 20
)

// RSMVersion is an RSM file version.
type RSMVersion struct {
	Major uint8
	Minor uint8
}

func (v RSMVersion) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// AtLeast reports whether v is major.minor or later.
func (v RSMVersion) AtLeast(major, minor uint8) bool {
	return v.Major > major || v.Major == major && v.Minor >= minor
}

// RSMKey is a position or scale keyframe. Frame is in milliseconds.
type RSMKey struct {
	Frame int32
	Value [3]float32
}

// RSMRotKey is a rotation keyframe holding an x, y, z, w quaternion.
type RSMRotKey struct {
	Frame int32
	Quat  [4]float32
}

// RSMNode is one node of a model's hierarchy. Mesh data is not kept.
type RSMNode struct {
	Name     string
	Parent   string
	Position [3]float32
	RotAngle float32 // radians
	RotAxis  [3]float32
	Scale    [3]float32

	PosKeys   []RSMKey // before 1.5
	RotKeys   []RSMRotKey
	ScaleKeys []RSMKey // 1.5 and later
}

// RSMModel is the node tree and keyframes of an RSM model.
type RSMModel struct {
	Version    RSMVersion
	AnimLength int32 // milliseconds
	RootNode   string
	Nodes      []RSMNode
}

// HasAnimation reports whether any node has more than one keyframe.
func (m *RSMModel) HasAnimation() bool {
	for _, n := range m.Nodes {
		if len(n.PosKeys) > 1 || len(n.RotKeys) > 1 || len(n.ScaleKeys) > 1 {
			return true
		}
	}
	return false
}

// rsmReader reads little-endian fields, keeping the first error.
type rsmReader struct {
	r   *bytes.Reader
	err error
}

func (r *rsmReader) read(v any) {
	if r.err == nil {
		if err := binary.Read(r.r, binary.LittleEndian, v); err != nil {
			r.err = fmt.Errorf("%w: truncated RSM data", ErrInvalidFile)
		}
	}
}

func (r *rsmReader) skip(n int64) {
	if r.err == nil {
		if int64(r.r.Len()) < n {
			r.err = fmt.Errorf("%w: truncated RSM data", ErrInvalidFile)
			return
		}
		r.r.Seek(n, io.SeekCurrent)
	}
}

// count reads an element count and checks it against limit.
func (r *rsmReader) count(what string, limit int32) int32 {
	var n int32
	r.read(&n)
	if r.err == nil && (n < 0 || n > limit) {
		r.err = fmt.Errorf("%w: %d %s", ErrInvalidFile, n, what)
	}
	if r.err != nil {
		return 0
	}
	return n
}

// str reads a fixed-length, NUL-padded EUC-KR string.
func (r *rsmReader) str(length int) string {
	buf := make([]byte, length)
	r.read(buf)
	return encoding.FixedString(buf)
}

// ParseRSM parses an RSM 1.x model.
func ParseRSM(data []byte) (*RSMModel, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: truncated RSM data", ErrInvalidFile)
	}
	if string(data[:4]) != "GRSM" {
		return nil, ErrInvalidRSMMagic
	}
	m := &RSMModel{Version: RSMVersion{Major: data[4], Minor: data[5]}}
	// 2.x stores nodes in a different layout.
	if m.Version.Major != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRSMVersion, m.Version)
	}

	r := &rsmReader{r: bytes.NewReader(data[6:])}
	r.read(&m.AnimLength)
	r.skip(4) // shading
	if m.Version.AtLeast(1, 4) {
		r.skip(1) // alpha
	}
	r.skip(16)
	textures := r.count("textures", rsmMaxElements)
	r.skip(int64(textures) * 40)
	m.RootNode = r.str(40)

	nodes := r.count("nodes", rsmMaxNodes)
	m.Nodes = make([]RSMNode, nodes)
	for i := range m.Nodes {
		parseRSMNode(r, m.Version, &m.Nodes[i])
		if r.err != nil {
			return nil, fmt.Errorf("parsing node %d: %w", i, r.err)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	// Volume boxes follow; they carry no animation.
	return m, nil
}

func parseRSMNode(r *rsmReader, v RSMVersion, n *RSMNode) {
	n.Name = r.str(40)
	n.Parent = r.str(40)
	r.skip(int64(r.count("texture ids", rsmMaxElements)) * 4)
	r.skip(9*4 + 3*4) // mesh matrix and pivot offset
	r.read(&n.Position)
	r.read(&n.RotAngle)
	r.read(&n.RotAxis)
	r.read(&n.Scale)

	r.skip(int64(r.count("vertices", rsmMaxElements)) * 12)
	texCoord := int64(8)
	if v.AtLeast(1, 2) {
		texCoord += 4 // vertex color
	}
	r.skip(int64(r.count("texture coordinates", rsmMaxElements)) * texCoord)
	face := int64(20)
	if v.AtLeast(1, 2) {
		face += 4 // smoothing group
	}
	r.skip(int64(r.count("faces", rsmMaxElements)) * face)

	if !v.AtLeast(1, 5) {
		n.PosKeys = readRSMKeys(r, "position keys")
	}
	rot := r.count("rotation keys", rsmMaxElements)
	n.RotKeys = make([]RSMRotKey, rot)
	for i := range n.RotKeys {
		r.read(&n.RotKeys[i].Frame)
		r.read(&n.RotKeys[i].Quat)
	}
	if v.AtLeast(1, 5) {
		n.ScaleKeys = readRSMKeys(r, "scale keys")
	}
}

func readRSMKeys(r *rsmReader, what string) []RSMKey {
	keys := make([]RSMKey, r.count(what, rsmMaxElements))
	for i := range keys {
		r.read(&keys[i].Frame)
		r.read(&keys[i].Value)
	}
	return keys
}

// LoadRSM reads an RSM file and imports it. The bundle and its animation are
// named after the file's basename.
func LoadRSM(path string, sampleRate float32) (*character.Character, *anim.AnimBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading RSM file: %w", err)
	}
	m, err := ParseRSM(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	c, a, err := ImportRSM(m, anim.PreloadBasename(path), sampleRate)
	if err != nil {
		return nil, nil, fmt.Errorf("importing %s: %w", path, err)
	}
	return c, a, nil
}

// ImportRSM turns the node tree into a character and its keyframes into one
// animation resampled at sampleRate. A node with rotation keys takes its rest
// rotation from the first key instead of its axis and angle.
func ImportRSM(m *RSMModel, name string, sampleRate float32) (*character.Character, *anim.AnimBundle, error) {
	if sampleRate <= 0 {
		sampleRate = 30
	}
	joints, err := rsmSkeleton(m)
	if err != nil {
		return nil, nil, err
	}

	tracks := map[int]*nodeTracks{}
	duration := float32(m.AnimLength) / 1000
	for _, j := range joints {
		n := &m.Nodes[j.node]
		nt := &nodeTracks{}
		if len(n.PosKeys) > 0 {
			times, values := rsmVecKeys(n.PosKeys)
			nt.pos = Vec3Track(times, values, InterpLinear)
			duration = max(duration, nt.pos.End())
		}
		if len(n.ScaleKeys) > 0 {
			times, values := rsmVecKeys(n.ScaleKeys)
			nt.scale = Vec3Track(times, values, InterpLinear)
			duration = max(duration, nt.scale.End())
		}
		if len(n.RotKeys) > 0 {
			keys := sortedRotKeys(n.RotKeys)
			times := make([]float32, len(keys))
			values := make([]math.Quat, len(keys))
			for i, k := range keys {
				times[i] = float32(k.Frame) / 1000
				values[i] = math.Quat{X: k.Quat[0], Y: k.Quat[1], Z: k.Quat[2], W: k.Quat[3]}
			}
			nt.rot = QuatTrack(times, values, InterpLinear)
			duration = max(duration, nt.rot.End())
		}
		tracks[j.node] = nt
	}

	frames, err := bakedFrames(duration, sampleRate)
	if err != nil {
		return nil, nil, err
	}
	b, _ := buildSkeleton(name, joints)
	b.SortDescendants()
	c := character.New(name)
	c.AddBundle(b)

	a := bakeAnim(name, joints, tracks, sampleRate, frames)

	preloads := anim.NewAnimPreloadTable()
	preloads.AddAnim(name, sampleRate, frames)
	b.SetAnimPreload(preloads)

	log.Info("imported RSM",
		zap.String("name", name),
		zap.Stringer("version", m.Version),
		zap.Int("joints", len(joints)),
		zap.Int("frames", frames))
	return c, a, nil
}

func rsmVecKeys(keys []RSMKey) ([]float32, []math.Vec3) {
	keys = append([]RSMKey(nil), keys...)
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].Frame < keys[j].Frame })
	times := make([]float32, len(keys))
	values := make([]math.Vec3, len(keys))
	for i, k := range keys {
		times[i] = float32(k.Frame) / 1000
		values[i] = math.Vec3{X: k.Value[0], Y: k.Value[1], Z: k.Value[2]}
	}
	return times, values
}

func sortedRotKeys(keys []RSMRotKey) []RSMRotKey {
	keys = append([]RSMRotKey(nil), keys...)
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].Frame < keys[j].Frame })
	return keys
}

// rsmSkeleton orders nodes parents first, starting at the named root. Nodes
// whose parent is missing become further roots.
func rsmSkeleton(m *RSMModel) ([]importJoint, error) {
	if len(m.Nodes) == 0 {
		return nil, fmt.Errorf("%w: model has no nodes", ErrNoRig)
	}
	index := make(map[string]int, len(m.Nodes))
	for i, n := range m.Nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("%w: node %d has no name", ErrInvalidFile, i)
		}
		if _, dup := index[n.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate node %q", ErrInvalidFile, n.Name)
		}
		index[n.Name] = i
	}
	children := map[int][]int{}
	var roots []int
	for i, n := range m.Nodes {
		p, ok := index[n.Parent]
		if !ok || p == i {
			if n.Name == m.RootNode {
				roots = append([]int{i}, roots...)
			} else {
				roots = append(roots, i)
			}
			continue
		}
		children[p] = append(children[p], i)
	}

	var joints []importJoint
	visited := make([]bool, len(m.Nodes))
	var visit func(node, parent int)
	visit = func(node, parent int) {
		visited[node] = true
		n := &m.Nodes[node]
		rest := trs{
			pos:   math.Vec3{X: n.Position[0], Y: n.Position[1], Z: n.Position[2]},
			rot:   math.QuatIdentity(),
			scale: math.Vec3{X: n.Scale[0], Y: n.Scale[1], Z: n.Scale[2]},
		}
		if rest.scale == (math.Vec3{}) {
			rest.scale = math.Vec3One()
		}
		if len(n.RotKeys) > 0 {
			k := sortedRotKeys(n.RotKeys)[0].Quat
			rest.rot = math.Quat{X: k[0], Y: k[1], Z: k[2], W: k[3]}
		} else if axis := (math.Vec3{X: n.RotAxis[0], Y: n.RotAxis[1], Z: n.RotAxis[2]}); axis.Length() > 0 {
			rest.rot = math.QuatFromAxisAngle(axis.Normalize(), n.RotAngle)
		}
		self := len(joints)
		joints = append(joints, importJoint{
			node:   node,
			name:   n.Name,
			parent: parent,
			prefix: math.Identity(),
			rest:   rest,
		})
		for _, c := range children[node] {
			visit(c, self)
		}
	}
	for _, r := range roots {
		visit(r, -1)
	}
	for i, seen := range visited {
		if !seen {
			return nil, fmt.Errorf("%w: node %q is part of a parent cycle", ErrInvalidFile, m.Nodes[i].Name)
		}
	}
	return joints, nil
}
