package loader

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// heroGLTF is a two-joint skin with one animation sliding root along x
// from 0 to 2 over one second.
func heroGLTF(t *testing.T, dir string) string {
	t.Helper()
	var buf []byte
	put := func(v ...float32) {
		for _, f := range v {
			buf = binary.LittleEndian.AppendUint32(buf, gomath.Float32bits(f))
		}
	}
	put(0, 1)             // times, offset 0
	put(0, 0, 1, 2, 0, 1) // root translations, offset 8
	rootInv := math.Translate(0, 0, -1)
	handInv := math.Translate(-1, 0, -1)
	put(rootInv[:]...) // inverse bind matrices, offset 32
	put(handInv[:]...)

	doc := fmt.Sprintf(`{
  "asset": {"version": "2.0"},
  "nodes": [
    {"name": "root", "translation": [0, 0, 1], "children": [1]},
    {"name": "hand", "translation": [1, 0, 0]}
  ],
  "skins": [{"joints": [0, 1], "inverseBindMatrices": 2}],
  "animations": [{
    "name": "wave",
    "samplers": [{"input": 0, "output": 1, "interpolation": "LINEAR"}],
    "channels": [{"sampler": 0, "target": {"node": 0, "path": "translation"}}]
  }],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 2, "type": "SCALAR", "min": [0], "max": [1]},
    {"bufferView": 1, "componentType": 5126, "count": 2, "type": "VEC3"},
    {"bufferView": 2, "componentType": 5126, "count": 2, "type": "MAT4"}
  ],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 8},
    {"buffer": 0, "byteOffset": 8, "byteLength": 24},
    {"buffer": 0, "byteOffset": 32, "byteLength": 128}
  ],
  "buffers": [{"byteLength": %d, "uri": "data:application/octet-stream;base64,%s"}]
}`, len(buf), base64.StdEncoding.EncodeToString(buf))
	return writeFile(t, dir, "hero.gltf", doc)
}

func TestLoadGLTF(t *testing.T) {
	s, err := LoadGLTF(heroGLTF(t, t.TempDir()), ImportOptions{SampleRate: 10})
	if err != nil {
		t.Fatal(err)
	}
	c := s.Character
	if c.Bundle(0).Name() != "hero" {
		t.Errorf("bundle = %q", c.Bundle(0).Name())
	}
	hand := c.FindJoint("hand")
	if hand == nil {
		t.Fatal("no hand joint")
	}
	if !hand.Net().AlmostEqual(math.Translate(1, 0, 1), eps) {
		t.Errorf("hand rest net = %v", hand.Net())
	}
	if !hand.InitialNetInverse().AlmostEqual(math.Translate(-1, 0, -1), eps) {
		t.Errorf("hand inverse bind = %v", hand.InitialNetInverse())
	}

	wave := s.Anim("wave")
	if wave == nil {
		t.Fatalf("animations = %v", s.AnimNames)
	}
	if wave.NumFrames() != 11 {
		t.Errorf("frames = %d, want 11", wave.NumFrames())
	}
	if p := c.Bundle(0).AnimPreload(); p == nil || p.FindAnim("wave") < 0 {
		t.Error("wave is not preloaded")
	}

	ctl, err := c.Bundle(0).BindAnim(wave, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctl.Pose(5)
	c.Update()
	if !hand.Net().AlmostEqual(math.Translate(2, 0, 1), eps) {
		t.Errorf("hand net at frame 5 = %v", hand.Net())
	}
	if !hand.SkinningMatrix().AlmostEqual(math.Translate(1, 0, 0), eps) {
		t.Errorf("hand skinning = %v", hand.SkinningMatrix())
	}
}

func TestLoadGLTFThroughCache(t *testing.T) {
	dir := t.TempDir()
	heroGLTF(t, dir)
	c := NewCache([]string{dir}, ImportOptions{SampleRate: 10})
	if _, err := c.LoadAnim(t.Context(), "hero.gltf#wave"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.LoadAnim(t.Context(), "hero.gltf#idle"); err == nil {
		t.Error("loaded a missing glTF animation")
	}
	ch, err := c.LoadCharacter(t.Context(), filepath.Join(dir, "hero.gltf"))
	if err != nil {
		t.Fatal(err)
	}
	if ch.FindJoint("root") == nil {
		t.Error("no root joint")
	}
}

func TestNodeTRS(t *testing.T) {
	s := float32(gomath.Sqrt2 / 2)
	tests := []struct {
		name string
		node *gltf.Node
		want math.Mat4
	}{
		{
			"rotation about z",
			&gltf.Node{Rotation: [4]float32{0, 0, s, s}, Scale: [3]float32{1, 1, 1}},
			math.HPRMatrix(math.Vec3{X: 90}),
		},
		{
			"zero value",
			&gltf.Node{},
			math.Identity(),
		},
		{
			"matrix",
			&gltf.Node{Matrix: [16]float32(math.Translate(1, 2, 3).Mul(math.Scale(2, 2, 2)))},
			math.Translate(1, 2, 3).Mul(math.Scale(2, 2, 2)),
		},
	}
	for _, tt := range tests {
		if got := nodeTRS(tt.node).matrix(); !got.AlmostEqual(tt.want, eps) {
			t.Errorf("%s: %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestKeyValuesCubic(t *testing.T) {
	// in-tangent, value, out-tangent per key
	v := []float32{9, 1, 9, 9, 2, 9}
	got := keyValues(v, 1, 2, true)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("keyValues = %v", got)
	}
}

// waveDoc is one node animated by a linear translation sampler over
// accessors 0 (times) and 1 (values). mutate breaks it.
func waveDoc(mutate func(doc *gltf.Document)) *gltf.Document {
	var buf []byte
	for _, f := range []float32{0, 1, 0, 0, 0, 1, 0, 0} {
		buf = binary.LittleEndian.AppendUint32(buf, gomath.Float32bits(f))
	}
	doc := &gltf.Document{
		Nodes: []*gltf.Node{{Name: "root"}},
		Animations: []*gltf.Animation{{
			Name:     "wave",
			Samplers: []*gltf.AnimationSampler{{Input: gltf.Index(0), Output: gltf.Index(1)}},
			Channels: []*gltf.Channel{{
				Sampler: gltf.Index(0),
				Target:  gltf.ChannelTarget{Node: gltf.Index(0), Path: gltf.TRSTranslation},
			}},
		}},
		Accessors: []*gltf.Accessor{
			{BufferView: gltf.Index(0), ComponentType: gltf.ComponentFloat, Count: 2, Type: gltf.AccessorScalar},
			{BufferView: gltf.Index(1), ComponentType: gltf.ComponentFloat, Count: 2, Type: gltf.AccessorVec3},
		},
		BufferViews: []*gltf.BufferView{
			{Buffer: 0, ByteOffset: 0, ByteLength: 8},
			{Buffer: 0, ByteOffset: 8, ByteLength: 24},
		},
		Buffers: []*gltf.Buffer{{ByteLength: uint32(len(buf)), Data: buf}},
	}
	if mutate != nil {
		mutate(doc)
	}
	return doc
}

func TestImportGLTFMalformed(t *testing.T) {
	if _, err := ImportGLTF(waveDoc(nil), "hero", ImportOptions{SampleRate: 10}); err != nil {
		t.Fatalf("well-formed document: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(doc *gltf.Document)
	}{
		{"buffer view out of range", func(doc *gltf.Document) { doc.Accessors[0].BufferView = gltf.Index(7) }},
		{"buffer out of range", func(doc *gltf.Document) { doc.BufferViews[1].Buffer = 3 }},
		{"view past buffer", func(doc *gltf.Document) { doc.BufferViews[1].ByteLength = 400 }},
		{"accessor out of range", func(doc *gltf.Document) { doc.Animations[0].Samplers[0].Output = gltf.Index(9) }},
		{"sampler out of range", func(doc *gltf.Document) { doc.Animations[0].Channels[0].Sampler = gltf.Index(4) }},
		{"child out of range", func(doc *gltf.Document) { doc.Nodes[0].Children = []uint32{5} }},
		{"mesh out of range", func(doc *gltf.Document) { doc.Nodes[0].Mesh = gltf.Index(2) }},
		{"skin joint out of range", func(doc *gltf.Document) {
			doc.Skins = []*gltf.Skin{{Joints: []uint32{0, 8}}}
		}},
		{"two parents", func(doc *gltf.Document) {
			doc.Nodes = append(doc.Nodes, &gltf.Node{Name: "a", Children: []uint32{0}}, &gltf.Node{Name: "b", Children: []uint32{0}})
		}},
		{"sparse values out of range", func(doc *gltf.Document) {
			doc.Accessors[1].Sparse = &gltf.Sparse{
				Count:   1,
				Indices: gltf.SparseIndices{BufferView: 0, ComponentType: gltf.ComponentUshort},
				Values:  gltf.SparseValues{BufferView: 6},
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportGLTF(waveDoc(tt.mutate), "hero", ImportOptions{SampleRate: 10})
			if !errors.Is(err, ErrInvalidFile) {
				t.Errorf("err = %v, want ErrInvalidFile", err)
			}
		})
	}
}

func TestAccessorFloats(t *testing.T) {
	tests := []struct {
		name       string
		data       any
		normalized bool
		want       []float32
	}{
		{"scalars", []float32{0.5, 2}, false, []float32{0.5, 2}},
		{"vec3", [][3]float32{{1, 2, 3}}, false, []float32{1, 2, 3}},
		{"mat4", [][4][4]float32{{{1}, {0, 1}, {0, 0, 1}, {4, 5, 6, 1}}}, false,
			[]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 4, 5, 6, 1}},
		{"normalized ubyte", [][4]uint8{{255, 0, 51, 0}}, true, []float32{1, 0, 0.2, 0}},
		{"normalized short", [][2]int16{{32767, -32768}}, true, []float32{1, -1}},
		{"raw ushort", []uint16{3, 7}, false, []float32{3, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := floats(tt.data, tt.normalized)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("floats = %v, want %v", got, tt.want)
			}
			for i := range got {
				if !near(got[i], tt.want[i]) {
					t.Errorf("floats = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
	if _, err := floats(3, false); err == nil {
		t.Error("floats accepted a non-slice")
	}
}
