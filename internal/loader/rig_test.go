package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/internal/engine/character"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

const heroRig = `
name: hero
blend_type: normalized_linear
joints:
  - name: root
    pos: [0, 0, 1]
    children:
      - name: hand
        pos: [1, 0, 0]
        sliders:
          - {name: grip, value: 0.5}
sliders:
  - {name: blink, value: 0}
preload:
  - {name: walk, fps: 24, frames: 30}
`

func buildHero(t *testing.T) *character.Character {
	t.Helper()
	rf, err := ParseRig([]byte(heroRig))
	if err != nil {
		t.Fatal(err)
	}
	c, err := rf.Build()
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRigBuild(t *testing.T) {
	c := buildHero(t)
	b := c.Bundle(0)
	if b.Name() != "hero" {
		t.Errorf("bundle name = %q", b.Name())
	}
	if b.BlendType() != anim.BlendNormalizedLinear {
		t.Errorf("blend type = %v", b.BlendType())
	}

	hand := c.FindJoint("hand")
	if hand == nil {
		t.Fatal("no hand joint")
	}
	if !hand.Net().AlmostEqual(math.Translate(1, 0, 1), eps) {
		t.Errorf("hand net = %v", hand.Net())
	}
	if hand.Character() != c {
		t.Error("hand is not linked to its character")
	}
	if s := c.FindSlider("grip"); s == nil || s.InitialValue() != 0.5 {
		t.Errorf("grip = %v", s)
	}
	if c.FindSlider("blink") == nil {
		t.Error("no blink slider")
	}
	if p := b.AnimPreload(); p == nil || p.FindAnim("walk") < 0 {
		t.Error("walk preload missing")
	}
}

func TestRigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no name", "joints: [{name: a}]"},
		{"duplicate", "name: x\njoints: [{name: a}, {name: a}]"},
		{"joint and slider share a name", "name: x\njoints: [{name: a}]\nsliders: [{name: a}]"},
		{"short pos", "name: x\njoints: [{name: a, pos: [1, 2]}]"},
		{"unnamed joint", "name: x\njoints: [{pos: [1, 2, 3]}]"},
		{"bad yaml", "name: [x"},
	}
	if _, err := ParseRig([]byte(heroWalk)); !errors.Is(err, ErrNoRig) {
		t.Errorf("animation document: err = %v, want ErrNoRig", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rf, err := ParseRig([]byte(tt.doc))
			if err == nil {
				_, err = rf.Build()
			}
			if !errors.Is(err, ErrInvalidFile) {
				t.Errorf("err = %v, want ErrInvalidFile", err)
			}
		})
	}
}

func TestRigRoundTrip(t *testing.T) {
	c := buildHero(t)
	rf, err := RigFileOf(c)
	if err != nil {
		t.Fatal(err)
	}
	data, err := rf.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "hero.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	again, err := LoadRig(path)
	if err != nil {
		t.Fatalf("reloading:\n%s\n%v", data, err)
	}
	for _, name := range []string{"root", "hand"} {
		a, b := c.FindJoint(name), again.FindJoint(name)
		if b == nil {
			t.Fatalf("%s lost", name)
		}
		if !a.InitialValue().AlmostEqual(b.InitialValue(), eps) {
			t.Errorf("%s = %v, want %v", name, b.InitialValue(), a.InitialValue())
		}
	}
	if s := again.FindSlider("grip"); s == nil || s.InitialValue() != 0.5 {
		t.Error("grip slider lost")
	}
	if again.Bundle(0).BlendType() != anim.BlendNormalizedLinear {
		t.Error("blend type lost")
	}
}

func TestTransformSpec(t *testing.T) {
	spec := TransformSpec{Pos: []float32{1, 2, 3}, HPR: []float32{30, 0, 0}, Scale: []float32{2, 2, 2}}
	m, err := spec.Matrix()
	if err != nil {
		t.Fatal(err)
	}
	back := TransformSpecOf(m)
	if back.Shear != nil {
		t.Errorf("shear = %v, want dropped", back.Shear)
	}
	for i, want := range []float32{1, 2, 3} {
		if !near(back.Pos[i], want) {
			t.Errorf("pos = %v", back.Pos)
		}
	}
	if !near(back.HPR[0], 30) || !near(back.Scale[1], 2) {
		t.Errorf("hpr = %v scale = %v", back.HPR, back.Scale)
	}
	if TransformSpecOf(math.Identity()).Pos != nil {
		t.Error("identity kept a translation")
	}
}
