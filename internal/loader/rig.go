package loader

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/internal/engine/character"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// RigFile is the YAML document describing a skeleton.
//
//	name: hero
//	blend_type: normalized_linear
//	joints:
//	  - name: root
//	    pos: [0, 0, 1]
//	    children:
//	      - {name: hand, pos: [1, 0, 0]}
//	sliders:
//	  - {name: blink, value: 0}
//	preload:
//	  - {name: walk, fps: 24, frames: 30}
type RigFile struct {
	Name       string          `yaml:"name"`
	BlendType  *anim.BlendType `yaml:"blend_type,omitempty"`
	AnimBlend  bool            `yaml:"anim_blend,omitempty"`
	FrameBlend *bool           `yaml:"frame_blend,omitempty"`
	Root       *TransformSpec  `yaml:"root,omitempty"`
	Joints     []JointSpec     `yaml:"joints"`
	Sliders    []SliderSpec    `yaml:"sliders,omitempty"`
	Preload    []PreloadSpec   `yaml:"preload,omitempty"`
}

// TransformSpec is a transform written as components. Missing components
// take their identity value.
type TransformSpec struct {
	Pos   []float32 `yaml:"pos,omitempty,flow"`
	HPR   []float32 `yaml:"hpr,omitempty,flow"`
	Scale []float32 `yaml:"scale,omitempty,flow"`
	Shear []float32 `yaml:"shear,omitempty,flow"`
}

// JointSpec is one joint, or a plain group when Group is set.
type JointSpec struct {
	Name          string `yaml:"name"`
	Group         bool   `yaml:"group,omitempty"`
	TransformSpec `yaml:",inline"`
	Children      []JointSpec  `yaml:"children,omitempty"`
	Sliders       []SliderSpec `yaml:"sliders,omitempty"`
}

// SliderSpec is a scalar part.
type SliderSpec struct {
	Name  string  `yaml:"name"`
	Value float32 `yaml:"value"`
}

// PreloadSpec is one preload table record.
type PreloadSpec struct {
	Name   string  `yaml:"name"`
	FPS    float32 `yaml:"fps"`
	Frames int     `yaml:"frames"`
}

func vec(v []float32, def math.Vec3, what string) (math.Vec3, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 3:
		return math.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
	}
	return def, fmt.Errorf("%w: %s has %d components, want 3", ErrInvalidFile, what, len(v))
}

// Components converts the spec to transform components.
func (t TransformSpec) Components() (math.Components, error) {
	c := math.IdentityComponents()
	var err error
	if c.Pos, err = vec(t.Pos, c.Pos, "pos"); err != nil {
		return c, err
	}
	if c.HPR, err = vec(t.HPR, c.HPR, "hpr"); err != nil {
		return c, err
	}
	if c.Scale, err = vec(t.Scale, c.Scale, "scale"); err != nil {
		return c, err
	}
	if c.Shear, err = vec(t.Shear, c.Shear, "shear"); err != nil {
		return c, err
	}
	return c, nil
}

// Matrix composes the spec into a transform.
func (t TransformSpec) Matrix() (math.Mat4, error) {
	c, err := t.Components()
	if err != nil {
		return math.Identity(), err
	}
	return math.ComposeMatrix(c), nil
}

// TransformSpecOf decomposes m, dropping components at their identity value.
func TransformSpecOf(m math.Mat4) TransformSpec {
	c, _ := math.DecomposeMatrix(m)
	var t TransformSpec
	keep := func(v, def math.Vec3) []float32 {
		if v.AlmostEqual(def, 1e-6) {
			return nil
		}
		return []float32{v.X, v.Y, v.Z}
	}
	t.Pos = keep(c.Pos, math.Vec3{})
	t.HPR = keep(c.HPR, math.Vec3{})
	t.Scale = keep(c.Scale, math.Vec3One())
	t.Shear = keep(c.Shear, math.Vec3{})
	return t
}

// ParseRig decodes a rig document.
func ParseRig(data []byte) (*RigFile, error) {
	var rf RigFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if rf.Name == "" {
		return nil, fmt.Errorf("%w: rig has no name", ErrInvalidFile)
	}
	if len(rf.Joints) == 0 && len(rf.Sliders) == 0 {
		return nil, fmt.Errorf("%w: rig %q has no parts", ErrNoRig, rf.Name)
	}
	return &rf, nil
}

// LoadRig reads a YAML rig file and builds its character.
func LoadRig(path string) (*character.Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rf, err := ParseRig(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	c, err := rf.Build()
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", path, err)
	}
	return c, nil
}

// Build creates a character with one bundle holding the rig.
func (rf *RigFile) Build() (*character.Character, error) {
	b := anim.NewPartBundle(rf.Name)
	if rf.BlendType != nil {
		b.SetBlendType(*rf.BlendType)
	}
	if rf.FrameBlend != nil {
		b.SetFrameBlendFlag(*rf.FrameBlend)
	}
	b.SetAnimBlendFlag(rf.AnimBlend)
	if rf.Root != nil {
		m, err := rf.Root.Matrix()
		if err != nil {
			return nil, fmt.Errorf("root: %w", err)
		}
		b.SetRootXform(m)
	}

	seen := map[string]bool{}
	for _, js := range rf.Joints {
		if err := buildJoint(b, js, seen); err != nil {
			return nil, err
		}
	}
	for _, ss := range rf.Sliders {
		if err := buildSlider(b, ss, seen); err != nil {
			return nil, err
		}
	}
	b.SortDescendants()

	if len(rf.Preload) > 0 {
		t := anim.NewAnimPreloadTable()
		for _, p := range rf.Preload {
			t.AddAnim(p.Name, p.FPS, p.Frames)
		}
		b.SetAnimPreload(t)
	}

	c := character.New(rf.Name)
	c.AddBundle(b)
	log.Debug("built rig",
		zap.String("rig", rf.Name),
		zap.Int("parts", len(seen)))
	return c, nil
}

func claim(seen map[string]bool, name string) error {
	if name == "" {
		return fmt.Errorf("%w: part with no name", ErrInvalidFile)
	}
	if seen[name] {
		return fmt.Errorf("%w: duplicate part %q", ErrInvalidFile, name)
	}
	seen[name] = true
	return nil
}

func buildJoint(parent anim.Part, js JointSpec, seen map[string]bool) error {
	if err := claim(seen, js.Name); err != nil {
		return err
	}
	var node anim.Part
	if js.Group {
		node = anim.NewPartGroup(parent, js.Name)
	} else {
		m, err := js.Matrix()
		if err != nil {
			return fmt.Errorf("joint %q: %w", js.Name, err)
		}
		node = character.NewJoint(parent, js.Name, m)
	}
	for _, c := range js.Children {
		if err := buildJoint(node, c, seen); err != nil {
			return err
		}
	}
	for _, s := range js.Sliders {
		if err := buildSlider(node, s, seen); err != nil {
			return err
		}
	}
	return nil
}

func buildSlider(parent anim.Part, ss SliderSpec, seen map[string]bool) error {
	if err := claim(seen, ss.Name); err != nil {
		return err
	}
	character.NewSlider(parent, ss.Name, ss.Value)
	return nil
}

// RigFileOf describes the first bundle of c as a rig document, the reverse
// of Build.
func RigFileOf(c *character.Character) (*RigFile, error) {
	if c.NumBundles() == 0 {
		return nil, fmt.Errorf("%w: character %q has no bundles", ErrNoRig, c.Name())
	}
	b := c.Bundle(0)
	bt := b.BlendType()
	fb := b.FrameBlendFlag()
	rf := &RigFile{
		Name:       b.Name(),
		BlendType:  &bt,
		AnimBlend:  b.AnimBlendFlag(),
		FrameBlend: &fb,
	}
	if root := b.RootXform(); root != math.Identity() {
		t := TransformSpecOf(root)
		rf.Root = &t
	}
	for _, p := range b.Children() {
		if ss, ok := sliderSpecOf(p); ok {
			rf.Sliders = append(rf.Sliders, ss)
			continue
		}
		rf.Joints = append(rf.Joints, jointSpecOf(p))
	}
	if t := b.AnimPreload(); t != nil {
		for _, r := range t.Anims() {
			rf.Preload = append(rf.Preload, PreloadSpec{Name: r.Basename, FPS: r.BaseFrameRate, Frames: r.NumFrames})
		}
	}
	return rf, nil
}

func jointSpecOf(p anim.Part) JointSpec {
	js := JointSpec{Name: p.Name()}
	switch v := p.(type) {
	case *character.Joint:
		js.TransformSpec = TransformSpecOf(v.InitialValue())
	case *anim.MovingPartMatrix:
		js.TransformSpec = TransformSpecOf(v.InitialValue())
	default:
		js.Group = true
	}
	for _, c := range p.Children() {
		if ss, ok := sliderSpecOf(c); ok {
			js.Sliders = append(js.Sliders, ss)
			continue
		}
		js.Children = append(js.Children, jointSpecOf(c))
	}
	return js
}

func sliderSpecOf(p anim.Part) (SliderSpec, bool) {
	switch s := p.(type) {
	case *character.Slider:
		return SliderSpec{Name: s.Name(), Value: s.InitialValue()}, true
	case *anim.MovingPartScalar:
		return SliderSpec{Name: s.Name(), Value: s.InitialValue()}, true
	}
	return SliderSpec{}, false
}

// Marshal encodes the rig as YAML.
func (rf *RigFile) Marshal() ([]byte, error) {
	return yaml.Marshal(rf)
}
