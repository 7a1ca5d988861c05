package loader

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// AnimFile is the YAML document describing one animation. Channels give
// either per-frame tables or keyframes; keyframes are resampled at FPS.
//
//	name: hero
//	fps: 10
//	channels:
//	  - name: root
//	    tables: {x: [0, 1, 2], z: [1]}
//	    children:
//	      - name: hand
//	        keys:
//	          - {time: 0, hpr: [0, 0, 0]}
//	          - {time: 0.2, hpr: [90, 0, 0]}
//	  - name: blink
//	    scalar: [0, 1, 0]
type AnimFile struct {
	Name     string        `yaml:"name"`
	FPS      float32       `yaml:"fps"`
	Frames   int           `yaml:"frames,omitempty"`
	Channels []ChannelSpec `yaml:"channels"`
}

// ChannelSpec is one node of the channel tree. At most one of Tables,
// Keys, Scalar and ScalarKeys may be set. A node with none is an identity
// transform channel, or a plain group when Group is set.
type ChannelSpec struct {
	Name          string               `yaml:"name"`
	Group         bool                 `yaml:"group,omitempty"`
	Tables        map[string][]float32 `yaml:"tables,omitempty"`
	Keys          []KeySpec            `yaml:"keys,omitempty"`
	Scalar        []float32            `yaml:"scalar,omitempty,flow"`
	ScalarKeys    []ScalarKeySpec      `yaml:"scalar_keys,omitempty"`
	Interpolation string               `yaml:"interpolation,omitempty"`
	Children      []ChannelSpec        `yaml:"children,omitempty"`
}

// KeySpec is a transform keyframe at Time seconds.
type KeySpec struct {
	Time          float32 `yaml:"time"`
	TransformSpec `yaml:",inline"`
}

// ScalarKeySpec is a scalar keyframe at Time seconds.
type ScalarKeySpec struct {
	Time  float32 `yaml:"time"`
	Value float32 `yaml:"value"`
}

func (cs ChannelSpec) kinds() int {
	n := 0
	for _, set := range []bool{len(cs.Tables) > 0, len(cs.Keys) > 0, len(cs.Scalar) > 0, len(cs.ScalarKeys) > 0, cs.Group} {
		if set {
			n++
		}
	}
	return n
}

func parseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(s) {
	case "", "linear":
		return InterpLinear, nil
	case "step":
		return InterpStep, nil
	}
	return InterpLinear, fmt.Errorf("%w: interpolation %q", ErrInvalidFile, s)
}

// ParseAnim decodes an animation document.
func ParseAnim(data []byte) (*AnimFile, error) {
	var af AnimFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if af.Name == "" {
		return nil, fmt.Errorf("%w: animation has no name", ErrInvalidFile)
	}
	if af.FPS <= 0 {
		return nil, fmt.Errorf("%w: fps %v", ErrInvalidFile, af.FPS)
	}
	return &af, nil
}

// LoadAnimFile reads a YAML animation file.
func LoadAnimFile(path string) (*anim.AnimBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	af, err := ParseAnim(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	a, err := af.Build()
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", path, err)
	}
	return a, nil
}

// NumFrames returns Frames if set, otherwise the longest table or keyframe
// span.
func (af *AnimFile) NumFrames() int {
	if af.Frames > 0 {
		return af.Frames
	}
	n := 1
	var walk func(cs []ChannelSpec)
	walk = func(cs []ChannelSpec) {
		for _, c := range cs {
			for _, t := range c.Tables {
				n = max(n, len(t))
			}
			n = max(n, len(c.Scalar))
			if k := len(c.Keys); k > 0 {
				n = max(n, FrameCount(c.Keys[k-1].Time, af.FPS))
			}
			if k := len(c.ScalarKeys); k > 0 {
				n = max(n, FrameCount(c.ScalarKeys[k-1].Time, af.FPS))
			}
			walk(c.Children)
		}
	}
	walk(af.Channels)
	return n
}

// Build creates the animation bundle.
func (af *AnimFile) Build() (*anim.AnimBundle, error) {
	frames := af.NumFrames()
	if frames < 1 || frames > MaxFrames {
		return nil, fmt.Errorf("%w: animation %q has %d frames", ErrInvalidFile, af.Name, frames)
	}
	a := anim.NewAnimBundle(af.Name, float64(af.FPS), frames)
	for _, cs := range af.Channels {
		if err := af.buildChannel(a, cs, frames); err != nil {
			return nil, err
		}
	}
	a.SortDescendants()
	log.Debug("built animation",
		zap.String("anim", af.Name),
		zap.Float32("fps", af.FPS),
		zap.Int("frames", frames))
	return a, nil
}

func (af *AnimFile) buildChannel(parent anim.AnimNode, cs ChannelSpec, frames int) error {
	if cs.Name == "" {
		return fmt.Errorf("%w: channel with no name", ErrInvalidFile)
	}
	if cs.kinds() > 1 {
		return fmt.Errorf("%w: channel %q mixes channel kinds", ErrInvalidFile, cs.Name)
	}
	interp, err := parseInterpolation(cs.Interpolation)
	if err != nil {
		return fmt.Errorf("channel %q: %w", cs.Name, err)
	}

	var node anim.AnimNode
	switch {
	case cs.Group:
		node = anim.NewAnimGroup(parent, cs.Name)
	case len(cs.Scalar) > 0:
		node = anim.NewAnimChannelScalarTable(parent, cs.Name, cs.Scalar)
	case len(cs.ScalarKeys) > 0:
		times := make([]float32, len(cs.ScalarKeys))
		values := make([]float32, len(cs.ScalarKeys))
		for i, k := range cs.ScalarKeys {
			times[i], values[i] = k.Time, k.Value
		}
		table := Resample(ScalarTrack(times, values, interp), af.FPS, frames)
		node = anim.NewAnimChannelScalarTable(parent, cs.Name, compact(table, 0))
	default:
		ch := anim.NewAnimChannelMatrixXfmTable(parent, cs.Name)
		for letter, table := range cs.Tables {
			if len(letter) != 1 || !ch.SetTable(letter[0], table) {
				return fmt.Errorf("%w: channel %q has no component %q", ErrInvalidFile, cs.Name, letter)
			}
		}
		if len(cs.Keys) > 0 {
			if err := setKeyTables(ch, cs.Keys, interp, af.FPS, frames); err != nil {
				return fmt.Errorf("channel %q: %w", cs.Name, err)
			}
		}
		node = ch
	}

	for _, c := range cs.Children {
		if err := af.buildChannel(node, c, frames); err != nil {
			return err
		}
	}
	return nil
}

// setKeyTables resamples transform keys into ch's tables. Rotations are
// interpolated as quaternions and stored back as hpr.
func setKeyTables(ch *anim.AnimChannelMatrixXfmTable, keys []KeySpec, interp Interpolation, fps float32, frames int) error {
	times := make([]float32, len(keys))
	pos := make([]math.Vec3, len(keys))
	rot := make([]math.Quat, len(keys))
	scale := make([]math.Vec3, len(keys))
	for i, k := range keys {
		if i > 0 && k.Time < keys[i-1].Time {
			return fmt.Errorf("%w: key times go backwards at %v", ErrInvalidFile, k.Time)
		}
		c, err := k.Components()
		if err != nil {
			return err
		}
		times[i] = k.Time
		pos[i] = c.Pos
		rot[i] = math.QuatFromHPR(c.HPR)
		scale[i] = c.Scale
	}

	p := Resample(Vec3Track(times, pos, interp), fps, frames)
	r := Resample(QuatTrack(times, rot, interp), fps, frames)
	s := Resample(Vec3Track(times, scale, interp), fps, frames)
	hpr := make([]math.Vec3, frames)
	for i, q := range r {
		hpr[i] = q.ToHPR()
	}
	setVecTables(ch, "xyz", p, 0)
	setVecTables(ch, "hpr", hpr, 0)
	setVecTables(ch, "abc", s, 1)
	return nil
}

// setVecTables splits v into three component tables, compacting each.
func setVecTables(ch *anim.AnimChannelMatrixXfmTable, letters string, v []math.Vec3, def float32) {
	for axis := range 3 {
		t := make([]float32, len(v))
		for i, x := range v {
			t[i] = x.Array()[axis]
		}
		if t = compact(t, def); t != nil {
			ch.SetTable(letters[axis], t)
		}
	}
}

// compact shortens a constant table to one entry, or to nil when it also
// equals def.
func compact(t []float32, def float32) []float32 {
	const eps = 1e-6
	for _, v := range t[1:] {
		if d := v - t[0]; d > eps || d < -eps {
			return t
		}
	}
	if d := t[0] - def; d <= eps && d >= -eps {
		return nil
	}
	return t[:1]
}

// AnimFileOf describes a as an animation document using per-frame tables.
// Only transform and scalar tables survive; other channel kinds are
// reported as an error.
func AnimFileOf(a *anim.AnimBundle) (*AnimFile, error) {
	af := &AnimFile{Name: a.Name(), FPS: float32(a.BaseFrameRate()), Frames: a.NumFrames()}
	for _, n := range a.Children() {
		cs, err := channelSpecOf(n)
		if err != nil {
			return nil, err
		}
		af.Channels = append(af.Channels, cs)
	}
	return af, nil
}

func channelSpecOf(n anim.AnimNode) (ChannelSpec, error) {
	cs := ChannelSpec{Name: n.Name()}
	switch ch := n.(type) {
	case *anim.AnimChannelMatrixXfmTable:
		for _, letter := range anim.XfmComponents {
			if ch.HasTable(byte(letter)) {
				if cs.Tables == nil {
					cs.Tables = map[string][]float32{}
				}
				cs.Tables[string(letter)] = ch.Table(byte(letter))
			}
		}
	case *anim.AnimChannelScalarTable:
		cs.Scalar = ch.Table()
		if len(cs.Scalar) == 0 {
			cs.Scalar = []float32{0}
		}
	case *anim.AnimGroup:
		cs.Group = true
	default:
		return cs, fmt.Errorf("%w: channel %q is a %s", ErrUnknownFormat, n.Name(), n.TypeName())
	}
	for _, c := range n.Children() {
		ccs, err := channelSpecOf(c)
		if err != nil {
			return cs, err
		}
		cs.Children = append(cs.Children, ccs)
	}
	return cs, nil
}

// Marshal encodes the animation as YAML.
func (af *AnimFile) Marshal() ([]byte, error) {
	return yaml.Marshal(af)
}
