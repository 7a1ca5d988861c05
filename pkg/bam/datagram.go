// Package bam reads and writes binary object graphs: typed records of
// fixed-width little-endian fields with cross-record pointers that are
// resolved after every record has been read.
package bam

import (
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

var (
	// ErrTruncated is reported when a record ends before all of its fields are read.
	ErrTruncated = errors.New("truncated datagram")
	// ErrTooLarge is reported when a count, string or object id does not
	// fit its uint16 field.
	ErrTooLarge = errors.New("too large for a uint16 field")
)

// Datagram accumulates the fields of one record. A field that does not fit
// its encoding sets a sticky error and the record is not written.
type Datagram struct {
	buf []byte
	err error
}

// Err returns the first encoding error.
func (d *Datagram) Err() error { return d.err }

func (d *Datagram) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Bytes returns the encoded fields.
func (d *Datagram) Bytes() []byte { return d.buf }

// Len returns the number of bytes written so far.
func (d *Datagram) Len() int { return len(d.buf) }

func (d *Datagram) AddUint8(v uint8) { d.buf = append(d.buf, v) }

func (d *Datagram) AddBool(v bool) {
	if v {
		d.AddUint8(1)
	} else {
		d.AddUint8(0)
	}
}

func (d *Datagram) AddUint16(v uint16) { d.buf = binary.LittleEndian.AppendUint16(d.buf, v) }
func (d *Datagram) AddInt16(v int16)   { d.AddUint16(uint16(v)) }
func (d *Datagram) AddUint32(v uint32) { d.buf = binary.LittleEndian.AppendUint32(d.buf, v) }
func (d *Datagram) AddInt32(v int32)   { d.AddUint32(uint32(v)) }

// AddFloat32 writes a single-precision float; engine values are stored this way.
func (d *Datagram) AddFloat32(v float32) { d.AddUint32(gomath.Float32bits(v)) }

func (d *Datagram) AddFloat64(v float64) {
	d.buf = binary.LittleEndian.AppendUint64(d.buf, gomath.Float64bits(v))
}

// AddCount writes an element count as a uint16.
func (d *Datagram) AddCount(n int) {
	if n < 0 || n > gomath.MaxUint16 {
		d.fail(fmt.Errorf("%w: count %d", ErrTooLarge, n))
		return
	}
	d.AddUint16(uint16(n))
}

// AddString writes a uint16 length followed by the raw bytes.
func (d *Datagram) AddString(s string) {
	if len(s) > gomath.MaxUint16 {
		d.fail(fmt.Errorf("%w: string of %d bytes", ErrTooLarge, len(s)))
		return
	}
	d.AddUint16(uint16(len(s)))
	d.buf = append(d.buf, s...)
}

// AddVec3 writes three float32 components.
func (d *Datagram) AddVec3(v math.Vec3) {
	d.AddFloat32(v.X)
	d.AddFloat32(v.Y)
	d.AddFloat32(v.Z)
}

// AddMat4 writes sixteen float32 components in storage order.
func (d *Datagram) AddMat4(mat math.Mat4) {
	for _, v := range mat {
		d.AddFloat32(v)
	}
}

// DatagramIterator reads fields back in the order they were added.
// The first short read sets a sticky error and every later read returns zero.
type DatagramIterator struct {
	data []byte
	pos  int
	err  error
}

// NewDatagramIterator wraps the bytes of one record.
func NewDatagramIterator(data []byte) *DatagramIterator {
	return &DatagramIterator{data: data}
}

// Err returns the first error encountered.
func (it *DatagramIterator) Err() error { return it.err }

// Remaining returns the number of unread bytes.
func (it *DatagramIterator) Remaining() int { return len(it.data) - it.pos }

func (it *DatagramIterator) take(n int) []byte {
	if it.err != nil {
		return nil
	}
	if it.pos+n > len(it.data) {
		it.err = ErrTruncated
		it.pos = len(it.data)
		return nil
	}
	b := it.data[it.pos : it.pos+n]
	it.pos += n
	return b
}

func (it *DatagramIterator) GetUint8() uint8 {
	b := it.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (it *DatagramIterator) GetBool() bool { return it.GetUint8() != 0 }

func (it *DatagramIterator) GetUint16() uint16 {
	b := it.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (it *DatagramIterator) GetInt16() int16 { return int16(it.GetUint16()) }

func (it *DatagramIterator) GetUint32() uint32 {
	b := it.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (it *DatagramIterator) GetInt32() int32 { return int32(it.GetUint32()) }

func (it *DatagramIterator) GetFloat32() float32 { return gomath.Float32frombits(it.GetUint32()) }

func (it *DatagramIterator) GetFloat64() float64 {
	b := it.take(8)
	if b == nil {
		return 0
	}
	return gomath.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (it *DatagramIterator) GetString() string {
	n := int(it.GetUint16())
	b := it.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (it *DatagramIterator) GetVec3() math.Vec3 {
	return math.Vec3{X: it.GetFloat32(), Y: it.GetFloat32(), Z: it.GetFloat32()}
}

func (it *DatagramIterator) GetMat4() math.Mat4 {
	var mat math.Mat4
	for i := range mat {
		mat[i] = it.GetFloat32()
	}
	return mat
}
