package bam

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writable is an object that can be stored in a bam stream.
type Writable interface {
	// TypeName selects the factory used to read the object back.
	TypeName() string
	// WriteDatagram appends the object's fields. Referenced objects are
	// written with Writer.WritePointer.
	WriteDatagram(w *Writer, dg *Datagram)
}

// Writer emits a header followed by one length-prefixed record per object.
// Every object is written once; later references reuse its id.
type Writer struct {
	out     io.Writer
	version Version
	ids     map[Writable]uint16
	nextID  uint16
	queue   []Writable
	err     error
}

// NewWriter writes the header at CurrentVersion.
func NewWriter(out io.Writer) (*Writer, error) {
	return NewWriterVersion(out, CurrentVersion)
}

// NewWriterVersion writes the header at v. Objects consult FileVersion to
// emit the matching layout.
func NewWriterVersion(out io.Writer, v Version) (*Writer, error) {
	w := &Writer{
		out:     out,
		version: v,
		ids:     make(map[Writable]uint16),
		nextID:  1,
	}

	var hdr Datagram
	hdr.AddUint16(v.Major)
	hdr.AddUint16(v.Minor)
	if _, err := out.Write(Magic[:]); err != nil {
		return nil, fmt.Errorf("writing magic: %w", err)
	}
	if err := w.writeRecord(hdr.Bytes()); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return w, nil
}

// FileVersion returns the version being written.
func (w *Writer) FileVersion() Version { return w.version }

// WriteObject writes obj as a top-level object, followed by everything it
// references that has not been written yet. Writing an object twice is a no-op.
func (w *Writer) WriteObject(obj Writable) error {
	if w.err != nil {
		return w.err
	}
	if _, ok := w.ids[obj]; ok {
		return nil
	}
	id := w.assign(obj)
	if w.err != nil {
		return w.err
	}
	if err := w.writeOne(obj, id, true); err != nil {
		return err
	}
	for len(w.queue) > 0 {
		next := w.queue[0]
		w.queue = w.queue[1:]
		if err := w.writeOne(next, w.ids[next], false); err != nil {
			return err
		}
	}
	return nil
}

// WritePointer appends a reference to obj. A nil obj writes id 0.
func (w *Writer) WritePointer(dg *Datagram, obj Writable) {
	if obj == nil {
		dg.AddUint16(0)
		return
	}
	id, ok := w.ids[obj]
	if !ok {
		id = w.assign(obj)
		w.queue = append(w.queue, obj)
	}
	dg.AddUint16(id)
}

func (w *Writer) assign(obj Writable) uint16 {
	if w.nextID == math.MaxUint16 {
		if w.err == nil {
			w.err = fmt.Errorf("%w: more than %d objects in one stream", ErrTooLarge, math.MaxUint16-1)
		}
		return 0
	}
	id := w.nextID
	w.nextID++
	w.ids[obj] = id
	return id
}

func (w *Writer) writeOne(obj Writable, id uint16, topLevel bool) error {
	var dg Datagram
	dg.AddUint16(id)
	dg.AddString(obj.TypeName())
	dg.AddBool(topLevel)
	obj.WriteDatagram(w, &dg)
	if w.err != nil {
		return w.err
	}
	if err := dg.Err(); err != nil {
		w.err = fmt.Errorf("encoding %s #%d: %w", obj.TypeName(), id, err)
		return w.err
	}

	if err := w.writeRecord(dg.Bytes()); err != nil {
		w.err = fmt.Errorf("writing %s #%d: %w", obj.TypeName(), id, err)
		return w.err
	}
	return nil
}

func (w *Writer) writeRecord(body []byte) error {
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(body)))
	if _, err := w.out.Write(size[:]); err != nil {
		return err
	}
	_, err := w.out.Write(body)
	return err
}
