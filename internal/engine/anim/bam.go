package anim

import (
	"fmt"

	"github.com/Faultbox/midgard-anim/pkg/bam"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

func init() {
	bam.Register("PartGroup", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		g := &PartGroup{}
		g.ReadDatagram(scan, r)
		return g, nil
	})
	bam.Register("PartBundle", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		b := NewPartBundle("")
		if err := b.ReadDatagram(scan, r); err != nil {
			return nil, err
		}
		r.RegisterFinalize(b)
		return b, nil
	})
	bam.Register("MovingPartMatrix", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		m := &MovingPartMatrix{}
		m.ReadDatagram(scan, r)
		return m, nil
	})
	bam.Register("MovingPartScalar", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		m := &MovingPartScalar{}
		m.ReadDatagram(scan, r)
		return m, nil
	})
	bam.Register("AnimGroup", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		g := &AnimGroup{}
		g.ReadDatagram(scan, r)
		return g, nil
	})
	bam.Register("AnimBundle", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		b := &AnimBundle{}
		b.AnimGroup.ReadDatagram(scan, r)
		b.fps = float64(scan.GetFloat32())
		b.numFrames = int(scan.GetUint16())
		return b, nil
	})
	bam.Register("AnimChannelMatrixXfmTable", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		c := &AnimChannelMatrixXfmTable{}
		c.AnimGroup.ReadDatagram(scan, r)
		if scan.GetBool() {
			return nil, fmt.Errorf("compressed xfm tables are not supported")
		}
		for i := range c.tables {
			c.tables[i] = readFloats(scan)
		}
		return c, nil
	})
	bam.Register("AnimChannelMatrixFrames", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		c := &AnimChannelMatrixFrames{}
		c.AnimGroup.ReadDatagram(scan, r)
		n := int(scan.GetUint16())
		c.frames = make([]math.Mat4, n)
		for i := range c.frames {
			c.frames[i] = scan.GetMat4()
		}
		return c, nil
	})
	bam.Register("AnimChannelMatrixFixed", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		var g AnimGroup
		g.ReadDatagram(scan, r)
		comp := math.Components{
			Scale: scan.GetVec3(),
			Shear: scan.GetVec3(),
			HPR:   scan.GetVec3(),
			Pos:   scan.GetVec3(),
		}
		c := NewAnimChannelMatrixFixed(g.name, comp)
		c.AnimGroup = g
		return c, nil
	})
	bam.Register("AnimChannelMatrixDynamic", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		c := NewAnimChannelMatrixDynamic("")
		c.AnimGroup.ReadDatagram(scan, r)
		c.value = scan.GetMat4()
		return c, nil
	})
	bam.Register("AnimChannelScalarTable", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		c := &AnimChannelScalarTable{}
		c.AnimGroup.ReadDatagram(scan, r)
		if scan.GetBool() {
			return nil, fmt.Errorf("compressed scalar tables are not supported")
		}
		c.table = readFloats(scan)
		return c, nil
	})
	bam.Register("AnimChannelScalarFixed", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		c := &AnimChannelScalarFixed{}
		c.AnimGroup.ReadDatagram(scan, r)
		c.value = scan.GetFloat32()
		return c, nil
	})
	bam.Register("AnimChannelScalarDynamic", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		c := &AnimChannelScalarDynamic{}
		c.AnimGroup.ReadDatagram(scan, r)
		c.value = scan.GetFloat32()
		return c, nil
	})
	bam.Register("AnimPreloadTable", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		t := NewAnimPreloadTable()
		n := int(scan.GetUint16())
		for i := 0; i < n; i++ {
			name := scan.GetString()
			rate := scan.GetFloat32()
			frames := int(scan.GetInt32())
			t.AddAnim(name, rate, frames)
		}
		return t, nil
	})
}

func writeFloats(dg *bam.Datagram, v []float32) {
	dg.AddCount(len(v))
	for _, f := range v {
		dg.AddFloat32(f)
	}
}

func readFloats(scan *bam.DatagramIterator) []float32 {
	n := int(scan.GetUint16())
	if n == 0 {
		return nil
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = scan.GetFloat32()
	}
	return v
}

// WriteDatagram writes the name and child references.
func (g *PartGroup) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	dg.AddString(g.name)
	dg.AddCount(len(g.children))
	for _, c := range g.children {
		w.WritePointer(dg, c)
	}
}

// ReadDatagram reads what WriteDatagram wrote. Children arrive through
// CompletePointers.
func (g *PartGroup) ReadDatagram(scan *bam.DatagramIterator, r *bam.Reader) {
	g.name = scan.GetString()
	n := int(scan.GetUint16())
	g.children = make([]Part, n)
	for i := 0; i < n; i++ {
		r.ReadPointer(scan)
	}
}

// completeChildren installs the children and returns the references past
// them for the embedding type.
func (g *PartGroup) completeChildren(ptrs []any) ([]any, error) {
	for i := range g.children {
		p, ok := ptrs[i].(Part)
		if !ok {
			return nil, fmt.Errorf("%w: child %d of %q is %T", bam.ErrUnexpectedType, i, g.name, ptrs[i])
		}
		g.children[i] = p
	}
	return ptrs[len(g.children):], nil
}

func (g *PartGroup) CompletePointers(ptrs []any, r *bam.Reader) error {
	_, err := g.completeChildren(ptrs)
	return err
}

func (b *PartBundle) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	b.PartGroup.WriteDatagram(w, dg)

	v := w.FileVersion()
	b.mu.Lock()
	defer b.mu.Unlock()
	if v.AtLeast(6, 17) {
		if b.preloads != nil {
			w.WritePointer(dg, b.preloads)
		} else {
			w.WritePointer(dg, nil)
		}
	}
	if v.AtLeast(6, 10) {
		dg.AddUint8(uint8(b.blendType))
		dg.AddBool(b.animBlend)
		dg.AddBool(b.frameBlend)
		dg.AddMat4(b.RootXform())
		if v.Minor == 11 {
			dg.AddBool(false)
		}
	}
}

func (b *PartBundle) ReadDatagram(scan *bam.DatagramIterator, r *bam.Reader) error {
	b.PartGroup.ReadDatagram(scan, r)

	v := r.FileVersion()
	if v.AtLeast(6, 17) {
		r.ReadPointer(scan)
	}
	if v.AtLeast(6, 10) {
		bt := BlendType(scan.GetUint8())
		if !bt.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidBlendType, int(bt))
		}
		b.blendType = bt
		b.animBlend = scan.GetBool()
		b.frameBlend = scan.GetBool()
		b.rootXform = scan.GetMat4()
		if v.Minor == 11 {
			// Obsolete flag.
			scan.GetBool()
		}
	}
	return nil
}

func (b *PartBundle) CompletePointers(ptrs []any, r *bam.Reader) error {
	rest, err := b.completeChildren(ptrs)
	if err != nil {
		return err
	}
	if r.FileVersion().AtLeast(6, 17) && len(rest) > 0 && rest[0] != nil {
		t, ok := rest[0].(*AnimPreloadTable)
		if !ok {
			return fmt.Errorf("%w: preload table is %T", bam.ErrUnexpectedType, rest[0])
		}
		b.preloads = t
	}
	return nil
}

// Finalize computes the pose of the loaded skeleton.
func (b *PartBundle) Finalize(r *bam.Reader) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doUpdate(b, b, nil, true, true)
}

// WriteDatagram writes the group fields and the forced channel reference.
func (m *MovingPartBase) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	m.PartGroup.WriteDatagram(w, dg)
	if w.FileVersion().AtLeast(6, 20) {
		w.WritePointer(dg, m.forced)
	}
}

func (m *MovingPartBase) ReadDatagram(scan *bam.DatagramIterator, r *bam.Reader) {
	m.PartGroup.ReadDatagram(scan, r)
	if r.FileVersion().AtLeast(6, 20) {
		r.ReadPointer(scan)
	}
}

func (m *MovingPartBase) CompletePointers(ptrs []any, r *bam.Reader) error {
	rest, err := m.completeChildren(ptrs)
	if err != nil {
		return err
	}
	if len(rest) > 0 && rest[0] != nil {
		ch, ok := rest[0].(AnimChannel)
		if !ok {
			return fmt.Errorf("%w: forced channel of %q is %T", bam.ErrUnexpectedType, m.name, rest[0])
		}
		m.forced = ch
	}
	return nil
}

func (m *MovingPartMatrix) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	m.MovingPartBase.WriteDatagram(w, dg)
	dg.AddMat4(m.value)
	dg.AddMat4(m.initial)
}

func (m *MovingPartMatrix) ReadDatagram(scan *bam.DatagramIterator, r *bam.Reader) {
	m.MovingPartBase.ReadDatagram(scan, r)
	m.value = scan.GetMat4()
	m.initial = scan.GetMat4()
}

func (m *MovingPartScalar) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	m.MovingPartBase.WriteDatagram(w, dg)
	dg.AddFloat32(m.value)
	dg.AddFloat32(m.initial)
}

func (m *MovingPartScalar) ReadDatagram(scan *bam.DatagramIterator, r *bam.Reader) {
	m.MovingPartBase.ReadDatagram(scan, r)
	m.value = scan.GetFloat32()
	m.initial = scan.GetFloat32()
}

func (g *AnimGroup) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	dg.AddString(g.name)
	dg.AddCount(len(g.children))
	for _, c := range g.children {
		w.WritePointer(dg, c)
	}
}

func (g *AnimGroup) ReadDatagram(scan *bam.DatagramIterator, r *bam.Reader) {
	g.name = scan.GetString()
	n := int(scan.GetUint16())
	g.children = make([]AnimNode, n)
	for i := 0; i < n; i++ {
		r.ReadPointer(scan)
	}
}

func (g *AnimGroup) CompletePointers(ptrs []any, r *bam.Reader) error {
	for i := range g.children {
		n, ok := ptrs[i].(AnimNode)
		if !ok {
			return fmt.Errorf("%w: anim child %d of %q is %T", bam.ErrUnexpectedType, i, g.name, ptrs[i])
		}
		g.children[i] = n
	}
	return nil
}

func (b *AnimBundle) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	b.AnimGroup.WriteDatagram(w, dg)
	dg.AddFloat32(float32(b.fps))
	dg.AddUint16(uint16(b.numFrames))
}

func (c *AnimChannelMatrixXfmTable) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	c.AnimGroup.WriteDatagram(w, dg)
	dg.AddBool(false)
	for _, t := range c.tables {
		writeFloats(dg, t)
	}
}

func (c *AnimChannelMatrixFrames) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	c.AnimGroup.WriteDatagram(w, dg)
	dg.AddCount(len(c.frames))
	for _, m := range c.frames {
		dg.AddMat4(m)
	}
}

func (c *AnimChannelMatrixFixed) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	c.AnimGroup.WriteDatagram(w, dg)
	dg.AddVec3(c.comp.Scale)
	dg.AddVec3(c.comp.Shear)
	dg.AddVec3(c.comp.HPR)
	dg.AddVec3(c.comp.Pos)
}

// A provider is not stored; the channel reads back holding its last value.
func (c *AnimChannelMatrixDynamic) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	c.AnimGroup.WriteDatagram(w, dg)
	dg.AddMat4(c.current())
}

func (c *AnimChannelScalarTable) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	c.AnimGroup.WriteDatagram(w, dg)
	dg.AddBool(false)
	writeFloats(dg, c.table)
}

func (c *AnimChannelScalarFixed) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	c.AnimGroup.WriteDatagram(w, dg)
	dg.AddFloat32(c.value)
}

func (c *AnimChannelScalarDynamic) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	c.AnimGroup.WriteDatagram(w, dg)
	dg.AddFloat32(c.Value(0))
}

func (t *AnimPreloadTable) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	records := t.Anims()
	dg.AddCount(len(records))
	for _, rec := range records {
		dg.AddString(rec.Basename)
		dg.AddFloat32(rec.BaseFrameRate)
		dg.AddInt32(int32(rec.NumFrames))
	}
}
