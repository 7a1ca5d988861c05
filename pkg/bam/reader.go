package bam

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Factory creates an object from its record. Pointer fields are consumed with
// Reader.ReadPointer and handed back later through CompletePointers.
type Factory func(scan *DatagramIterator, r *Reader) (any, error)

// PointerCompleter receives the objects referenced by ReadPointer calls, in
// the order they were read, once every record is available. A nil entry is a
// null reference.
type PointerCompleter interface {
	CompletePointers(ptrs []any, r *Reader) error
}

// Finalizer runs after all pointers are complete.
type Finalizer interface {
	Finalize(r *Reader)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register binds a type name to its factory. Registering a name twice panics.
func Register(typeName string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[typeName]; dup {
		panic("bam: duplicate factory for " + typeName)
	}
	registry[typeName] = f
}

func lookup(typeName string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[typeName]
	return f, ok
}

// Reader decodes a stream written by Writer.
type Reader struct {
	in      *bufio.Reader
	version Version

	objects  map[uint16]any
	order    []uint16
	topLevel []any
	pointers map[uint16][]uint16
	current  uint16
	finalize []Finalizer
}

// NewReader checks the magic and header.
func NewReader(in io.Reader) (*Reader, error) {
	r := &Reader{
		in:       bufio.NewReader(in),
		objects:  make(map[uint16]any),
		pointers: make(map[uint16][]uint16),
	}

	var magic [6]byte
	if _, err := io.ReadFull(r.in, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMagic, err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}

	hdr, err := r.readRecord()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	scan := NewDatagramIterator(hdr)
	r.version = Version{Major: scan.GetUint16(), Minor: scan.GetUint16()}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if !r.version.supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, r.version)
	}
	return r, nil
}

// FileVersion returns the version from the header.
func (r *Reader) FileVersion() Version { return r.version }

// ReadPointer consumes a reference for the object currently being read.
func (r *Reader) ReadPointer(scan *DatagramIterator) {
	id := scan.GetUint16()
	r.pointers[r.current] = append(r.pointers[r.current], id)
}

// RegisterFinalize queues f to run once pointers are complete.
func (r *Reader) RegisterFinalize(f Finalizer) {
	r.finalize = append(r.finalize, f)
}

// ReadAll reads every record, completes pointers, finalizes, and returns the
// top-level objects in the order they were written.
func (r *Reader) ReadAll() ([]any, error) {
	for {
		body, err := r.readRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := r.readObject(body); err != nil {
			return nil, err
		}
	}

	for _, id := range r.order {
		ids := r.pointers[id]
		if len(ids) == 0 {
			continue
		}
		pc, ok := r.objects[id].(PointerCompleter)
		if !ok {
			return nil, fmt.Errorf("object #%d read pointers but cannot complete them", id)
		}
		ptrs := make([]any, len(ids))
		for i, pid := range ids {
			if pid == 0 {
				continue
			}
			obj, ok := r.objects[pid]
			if !ok {
				return nil, fmt.Errorf("%w: #%d from #%d", ErrBadPointer, pid, id)
			}
			ptrs[i] = obj
		}
		if err := pc.CompletePointers(ptrs, r); err != nil {
			return nil, fmt.Errorf("completing #%d: %w", id, err)
		}
	}

	for _, f := range r.finalize {
		f.Finalize(r)
	}
	r.finalize = nil
	return r.topLevel, nil
}

func (r *Reader) readObject(body []byte) error {
	scan := NewDatagramIterator(body)
	id := scan.GetUint16()
	typeName := scan.GetString()
	topLevel := scan.GetBool()
	if err := scan.Err(); err != nil {
		return fmt.Errorf("reading object header: %w", err)
	}

	factory, ok := lookup(typeName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}

	r.current = id
	obj, err := factory(scan, r)
	if err == nil {
		err = scan.Err()
	}
	if err != nil {
		return fmt.Errorf("reading %s #%d: %w", typeName, id, err)
	}

	r.objects[id] = obj
	r.order = append(r.order, id)
	if topLevel {
		r.topLevel = append(r.topLevel, obj)
	}
	return nil
}

func (r *Reader) readRecord() ([]byte, error) {
	var size [4]byte
	if _, err := io.ReadFull(r.in, size[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	body := make([]byte, binary.LittleEndian.Uint32(size[:]))
	if _, err := io.ReadFull(r.in, body); err != nil {
		return nil, ErrTruncated
	}
	return body, nil
}

// WriteFile writes objs as top-level objects of a new file.
func WriteFile(path string, objs ...Writable) error {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		return err
	}
	for _, obj := range objs {
		if err := w.WriteObject(obj); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// ReadFile reads every top-level object of a file.
func ReadFile(path string) ([]any, Version, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Version{}, fmt.Errorf("opening bam file: %w", err)
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		return nil, Version{}, fmt.Errorf("%s: %w", path, err)
	}
	objs, err := r.ReadAll()
	if err != nil {
		return nil, r.version, fmt.Errorf("%s: %w", path, err)
	}
	return objs, r.version, nil
}
