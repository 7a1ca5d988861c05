package bam

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// testNode is a minimal graph object: a name, an optional tag written only
// from 6.20 on, and child pointers.
type testNode struct {
	name     string
	tag      int32
	children []*testNode
	final    bool
}

func (n *testNode) TypeName() string { return "testNode" }

func (n *testNode) WriteDatagram(w *Writer, dg *Datagram) {
	dg.AddString(n.name)
	if w.FileVersion().AtLeast(6, 20) {
		dg.AddInt32(n.tag)
	}
	dg.AddCount(len(n.children))
	for _, c := range n.children {
		if c == nil {
			w.WritePointer(dg, nil)
		} else {
			w.WritePointer(dg, c)
		}
	}
}

func (n *testNode) CompletePointers(ptrs []any, r *Reader) error {
	for i, p := range ptrs {
		if p == nil {
			continue
		}
		c, ok := p.(*testNode)
		if !ok {
			return ErrUnexpectedType
		}
		n.children[i] = c
	}
	return nil
}

func (n *testNode) Finalize(r *Reader) { n.final = true }

func readTestNode(scan *DatagramIterator, r *Reader) (any, error) {
	n := &testNode{name: scan.GetString()}
	if r.FileVersion().AtLeast(6, 20) {
		n.tag = scan.GetInt32()
	}
	count := int(scan.GetUint16())
	n.children = make([]*testNode, count)
	for i := 0; i < count; i++ {
		r.ReadPointer(scan)
	}
	r.RegisterFinalize(n)
	return n, nil
}

func init() {
	Register("testNode", readTestNode)
}

func TestDatagramRoundTrip(t *testing.T) {
	var dg Datagram
	dg.AddUint8(7)
	dg.AddBool(true)
	dg.AddInt16(-3)
	dg.AddUint32(0xdeadbeef)
	dg.AddFloat32(1.5)
	dg.AddFloat64(-2.25)
	dg.AddString("joint")
	dg.AddVec3(math.Vec3{X: 1, Y: 2, Z: 3})
	dg.AddMat4(math.Translate(4, 5, 6))

	it := NewDatagramIterator(dg.Bytes())
	if got := it.GetUint8(); got != 7 {
		t.Errorf("uint8: got %d, want 7", got)
	}
	if !it.GetBool() {
		t.Error("bool: got false, want true")
	}
	if got := it.GetInt16(); got != -3 {
		t.Errorf("int16: got %d, want -3", got)
	}
	if got := it.GetUint32(); got != 0xdeadbeef {
		t.Errorf("uint32: got %x", got)
	}
	if got := it.GetFloat32(); got != 1.5 {
		t.Errorf("float32: got %v", got)
	}
	if got := it.GetFloat64(); got != -2.25 {
		t.Errorf("float64: got %v", got)
	}
	if got := it.GetString(); got != "joint" {
		t.Errorf("string: got %q", got)
	}
	if got := it.GetVec3(); got != (math.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("vec3: got %v", got)
	}
	if got := it.GetMat4(); got != math.Translate(4, 5, 6) {
		t.Errorf("mat4: got %v", got)
	}
	if it.Remaining() != 0 || it.Err() != nil {
		t.Errorf("remaining %d, err %v", it.Remaining(), it.Err())
	}
}

func TestDatagramTruncated(t *testing.T) {
	it := NewDatagramIterator([]byte{1, 2, 3})
	if got := it.GetUint32(); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	if !errors.Is(it.Err(), ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", it.Err())
	}
	// Sticky: later reads also fail even though one byte would fit.
	if got := it.GetUint8(); got != 0 {
		t.Errorf("got %d after error, want 0", got)
	}
}

func TestGraphRoundTrip(t *testing.T) {
	shared := &testNode{name: "shared", tag: 9}
	root := &testNode{name: "root", tag: 1}
	a := &testNode{name: "a", tag: 2, children: []*testNode{shared}}
	b := &testNode{name: "b", tag: 3, children: []*testNode{shared, nil}}
	root.children = []*testNode{a, b}

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteObject(root); err != nil {
		t.Fatal(err)
	}
	// Already written as a child: no second record.
	if err := w.WriteObject(a); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	objs, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 1 {
		t.Fatalf("got %d top-level objects, want 1", len(objs))
	}

	got := objs[0].(*testNode)
	if got.name != "root" || len(got.children) != 2 {
		t.Fatalf("root = %+v", got)
	}
	ga, gb := got.children[0], got.children[1]
	if ga.name != "a" || gb.name != "b" || gb.tag != 3 {
		t.Errorf("children = %q/%q tag %d", ga.name, gb.name, gb.tag)
	}
	if ga.children[0] != gb.children[0] {
		t.Error("shared child was duplicated")
	}
	if gb.children[1] != nil {
		t.Error("nil pointer did not survive")
	}
	if !got.final || !ga.children[0].final {
		t.Error("finalize did not run")
	}
}

func TestVersionGatedField(t *testing.T) {
	old := Version{Major: 6, Minor: 10}
	n := &testNode{name: "old", tag: 42}

	var buf bytes.Buffer
	w, err := NewWriterVersion(&buf, old)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteObject(n); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if r.FileVersion() != old {
		t.Errorf("version = %s, want %s", r.FileVersion(), old)
	}
	objs, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if got := objs[0].(*testNode); got.tag != 0 || got.name != "old" {
		t.Errorf("got %+v, want untagged old node", got)
	}
}

func TestVersionAtLeast(t *testing.T) {
	tests := []struct {
		v            Version
		major, minor uint16
		want         bool
	}{
		{Version{6, 17}, 6, 17, true},
		{Version{6, 16}, 6, 17, false},
		{Version{7, 0}, 6, 45, true},
		{Version{5, 99}, 6, 0, false},
	}
	for _, tt := range tests {
		if got := tt.v.AtLeast(tt.major, tt.minor); got != tt.want {
			t.Errorf("%s.AtLeast(%d, %d) = %v, want %v", tt.v, tt.major, tt.minor, got, tt.want)
		}
	}
}

func TestReaderErrors(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte("nope!!")))
		if !errors.Is(err, ErrInvalidMagic) {
			t.Errorf("err = %v, want ErrInvalidMagic", err)
		}
	})

	t.Run("future version", func(t *testing.T) {
		var buf bytes.Buffer
		if _, err := NewWriterVersion(&buf, Version{Major: 6, Minor: 99}); err != nil {
			t.Fatal(err)
		}
		_, err := NewReader(&buf)
		if !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("err = %v, want ErrUnsupportedVersion", err)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		var buf bytes.Buffer
		w, _ := NewWriter(&buf)
		if err := w.WriteObject(unknownObject{}); err != nil {
			t.Fatal(err)
		}
		r, err := NewReader(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.ReadAll(); !errors.Is(err, ErrUnknownType) {
			t.Errorf("err = %v, want ErrUnknownType", err)
		}
	})

	t.Run("truncated record", func(t *testing.T) {
		var buf bytes.Buffer
		w, _ := NewWriter(&buf)
		if err := w.WriteObject(&testNode{name: "cut"}); err != nil {
			t.Fatal(err)
		}
		data := buf.Bytes()[:buf.Len()-2]
		r, err := NewReader(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.ReadAll(); !errors.Is(err, ErrTruncated) {
			t.Errorf("err = %v, want ErrTruncated", err)
		}
	})
}

type unknownObject struct{}

func (unknownObject) TypeName() string                    { return "noSuchType" }
func (unknownObject) WriteDatagram(w *Writer, dg *Datagram) {}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.bam")
	if err := WriteFile(path, &testNode{name: "one"}, &testNode{name: "two"}); err != nil {
		t.Fatal(err)
	}
	objs, v, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if v != CurrentVersion {
		t.Errorf("version = %s, want %s", v, CurrentVersion)
	}
	if len(objs) != 2 || objs[1].(*testNode).name != "two" {
		t.Errorf("got %v", objs)
	}
}

func TestDatagramTooLarge(t *testing.T) {
	tests := []struct {
		name string
		add  func(dg *Datagram)
	}{
		{"count", func(dg *Datagram) { dg.AddCount(70000) }},
		{"negative count", func(dg *Datagram) { dg.AddCount(-1) }},
		{"string", func(dg *Datagram) { dg.AddString(string(make([]byte, 70000))) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dg Datagram
			tt.add(&dg)
			if !errors.Is(dg.Err(), ErrTooLarge) {
				t.Errorf("err = %v, want ErrTooLarge", dg.Err())
			}
			if dg.Len() != 0 {
				t.Errorf("wrote %d bytes", dg.Len())
			}
		})
	}

	var dg Datagram
	dg.AddCount(65535)
	if dg.Err() != nil || dg.Len() != 2 {
		t.Errorf("max count: err %v, %d bytes", dg.Err(), dg.Len())
	}
}

func TestWriterRejectsLongCount(t *testing.T) {
	shared := &testNode{name: "shared"}
	kids := make([]*testNode, 70000)
	for i := range kids {
		kids[i] = shared
	}
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	header := buf.Len()
	if err := w.WriteObject(&testNode{name: "root", children: kids}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	if buf.Len() != header {
		t.Errorf("wrote %d bytes after the header", buf.Len()-header)
	}
	// The writer stays failed.
	if err := w.WriteObject(&testNode{name: "next"}); !errors.Is(err, ErrTooLarge) {
		t.Errorf("second write err = %v", err)
	}
}
