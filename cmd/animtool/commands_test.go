package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/loader"
)

func TestParseWeights(t *testing.T) {
	tests := []struct {
		in      string
		n       int
		want    []float32
		wantErr bool
	}{
		{"", 2, nil, false},
		{"0.7, 0.3", 2, []float32{0.7, 0.3}, false},
		{"1", 2, nil, true},
		{"a,b", 2, nil, true},
	}
	for _, tt := range tests {
		got, err := parseWeights(tt.in, tt.n)
		if tt.wantErr {
			if !errors.Is(err, errUsage) {
				t.Errorf("%q: err = %v, want errUsage", tt.in, err)
			}
			continue
		}
		if err != nil || len(got) != len(tt.want) {
			t.Errorf("%q: %v, %v", tt.in, got, err)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%q: weight %d = %v", tt.in, i, got[i])
			}
		}
	}
}

const heroRig = `
name: hero
joints:
  - name: root
    pos: [0, 0, 1]
    children:
      - name: hand
        pos: [1, 0, 0]
preload:
  - {name: walk, fps: 10, frames: 3}
`

const heroWalk = `
name: hero
fps: 10
channels:
  - name: root
    tables: {x: [0, 1, 2], z: [1]}
    children:
      - name: hand
        tables: {x: [1]}
`

// newTestTool returns a tool reading from a temp dir holding hero.yaml and
// walk.yaml, and the buffer it prints to.
func newTestTool(t *testing.T) (*tool, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	for name, data := range map[string]string{"hero.yaml": heroRig, "walk.yaml": heroWalk} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.Default()
	cfg.Loader.SearchPath = []string{dir}
	var out bytes.Buffer
	return &tool{cfg: cfg, cache: newCache(cfg), ctx: t.Context(), out: &out}, &out, dir
}

func TestCmdInfo(t *testing.T) {
	tests := []struct {
		file string
		want []string
	}{
		{"hero.yaml", []string{"Character: hero", "preload walk", "hand"}},
		{"walk.yaml", []string{"Animation: walk (root hero)", "10.00 fps, 3 frames", "AnimChannelMatrixXfmTable root"}},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			tl, out, _ := newTestTool(t)
			if err := tl.cmdInfo([]string{tt.file}); err != nil {
				t.Fatal(err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output lacks %q:\n%s", w, out)
				}
			}
		})
	}

	tl, _, _ := newTestTool(t)
	if err := tl.cmdInfo(nil); !errors.Is(err, errUsage) {
		t.Errorf("no file: err = %v", err)
	}
}

func TestCmdConvert(t *testing.T) {
	tl, _, dir := newTestTool(t)
	walkBam := filepath.Join(dir, "walk.bam")
	if err := tl.cmdConvert([]string{"-kind", "anim", "walk.yaml", walkBam}); err != nil {
		t.Fatal(err)
	}
	walkYAML := filepath.Join(dir, "again.yaml")
	if err := tl.cmdConvert([]string{"walk.bam", walkYAML}); err != nil {
		t.Fatal(err)
	}
	again, err := tl.cache.LoadAnim(tl.ctx, walkYAML)
	if err != nil {
		t.Fatal(err)
	}
	if again.NumFrames() != 3 || again.BaseFrameRate() != 10 {
		t.Errorf("converted anim: %d frames at %v fps", again.NumFrames(), again.BaseFrameRate())
	}

	heroBam := filepath.Join(dir, "hero.bam")
	if err := tl.cmdConvert([]string{"-kind", "rig", "hero.yaml", heroBam}); err != nil {
		t.Fatal(err)
	}
	c, err := tl.cache.LoadCharacter(tl.ctx, heroBam)
	if err != nil {
		t.Fatal(err)
	}
	if c.FindJoint("hand") == nil {
		t.Error("converted rig lost its hand")
	}

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"bad kind", []string{"-kind", "mesh", "hero.yaml", heroBam}, errUsage},
		{"one argument", []string{"hero.yaml"}, errUsage},
		{"unknown output", []string{"walk.yaml", filepath.Join(dir, "walk.txt")}, loader.ErrUnknownFormat},
	}
	for _, tt := range tests {
		if err := tl.cmdConvert(tt.args); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestCmdPlay(t *testing.T) {
	tl, out, _ := newTestTool(t)
	if err := tl.cmdPlay([]string{"-fps", "10", "-steps", "3", "-joint", "hand", "hero.yaml", "walk.yaml"}); err != nil {
		t.Fatal(err)
	}
	for _, w := range []string{"t=0.000 frame=0", "t=0.200 frame=2", "hand net"} {
		if !strings.Contains(out.String(), w) {
			t.Errorf("output lacks %q:\n%s", w, out)
		}
	}
}
