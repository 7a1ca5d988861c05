package character

import (
	"fmt"

	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/pkg/bam"
)

func init() {
	bam.Register("CharacterJoint", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		j := &Joint{}
		j.ReadDatagram(scan, r)
		return j, nil
	})
	bam.Register("CharacterSlider", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		s := &Slider{}
		s.ReadDatagram(scan, r)
		return s, nil
	})
	bam.Register("Character", func(scan *bam.DatagramIterator, r *bam.Reader) (any, error) {
		c := New("")
		if err := c.ReadDatagram(scan, r); err != nil {
			return nil, err
		}
		r.RegisterFinalize(c)
		return c, nil
	})
}

// WriteDatagram writes the matrix part and the rest inverse. Receivers are
// scene objects and are stored as empty lists.
func (j *Joint) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	j.MovingPartMatrix.WriteDatagram(w, dg)
	dg.AddUint16(0)
	dg.AddUint16(0)
	dg.AddMat4(j.InitialNetInverse())
}

func (j *Joint) ReadDatagram(scan *bam.DatagramIterator, r *bam.Reader) {
	j.MovingPartMatrix.ReadDatagram(scan, r)
	// Net and local receiver references are not restored.
	for range 2 {
		n := int(scan.GetUint16())
		for i := 0; i < n; i++ {
			scan.GetUint16()
		}
	}
	j.initialNetInverse = scan.GetMat4()
	j.net = j.initialNetInverse.Inverse()
}

func (c *Character) TypeName() string { return "Character" }

// WriteDatagram writes the name and bundle references.
func (c *Character) WriteDatagram(w *bam.Writer, dg *bam.Datagram) {
	bundles := c.Bundles()
	dg.AddString(c.name)
	dg.AddCount(len(bundles))
	for _, b := range bundles {
		w.WritePointer(dg, b)
	}
	// Part list, rebuilt from the bundles on read.
	dg.AddUint16(0)
}

func (c *Character) ReadDatagram(scan *bam.DatagramIterator, r *bam.Reader) error {
	c.name = scan.GetString()
	n := int(scan.GetUint16())
	for i := 0; i < n; i++ {
		r.ReadPointer(scan)
	}
	c.bundles = make([]*anim.PartBundle, n)
	parts := int(scan.GetUint16())
	for i := 0; i < parts; i++ {
		scan.GetUint16()
	}
	return nil
}

func (c *Character) CompletePointers(ptrs []any, r *bam.Reader) error {
	for i := range c.bundles {
		b, ok := ptrs[i].(*anim.PartBundle)
		if !ok {
			return fmt.Errorf("%w: bundle %d of %q is %T", bam.ErrUnexpectedType, i, c.name, ptrs[i])
		}
		c.bundles[i] = b
	}
	return nil
}

// Finalize links the joints once every bundle's tree is complete.
func (c *Character) Finalize(r *bam.Reader) {
	for _, b := range c.Bundles() {
		b.SetClock(c.Clock())
		c.linkJoints(b)
	}
}
