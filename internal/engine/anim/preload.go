package anim

import (
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// PreloadBasename returns the key a file is listed under in a preload
// table: the file name without directory or extension, or the part after
// '#' for a reference like "pack.glb#walk".
func PreloadBasename(filename string) string {
	if i := strings.LastIndexByte(filename, '#'); i >= 0 {
		return filename[i+1:]
	}
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// AnimRecord describes one animation that can be bound before its file is
// loaded.
type AnimRecord struct {
	Basename      string
	BaseFrameRate float32
	NumFrames     int
}

// AnimPreloadTable indexes animation metadata by basename. It is sorted
// lazily on the first lookup after a change; indexes passed to Anim and
// RemoveAnim refer to the sorted order.
type AnimPreloadTable struct {
	mu       sync.Mutex
	anims    []AnimRecord
	unsorted bool
}

// NewAnimPreloadTable returns an empty table.
func NewAnimPreloadTable() *AnimPreloadTable {
	return &AnimPreloadTable{}
}

func (t *AnimPreloadTable) TypeName() string { return "AnimPreloadTable" }

func (t *AnimPreloadTable) sortLocked() {
	if !t.unsorted {
		return
	}
	slices.SortStableFunc(t.anims, func(a, b AnimRecord) int {
		return strings.Compare(a.Basename, b.Basename)
	})
	t.unsorted = false
}

// NumAnims returns the number of records.
func (t *AnimPreloadTable) NumAnims() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.anims)
}

// FindAnim returns the index of basename, or -1.
func (t *AnimPreloadTable) FindAnim(basename string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sortLocked()
	i, found := slices.BinarySearchFunc(t.anims, basename, func(r AnimRecord, name string) int {
		return strings.Compare(r.Basename, name)
	})
	if !found {
		return -1
	}
	return i
}

// Anim returns record n.
func (t *AnimPreloadTable) Anim(n int) AnimRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sortLocked()
	return t.anims[n]
}

// Anims returns a sorted copy of every record.
func (t *AnimPreloadTable) Anims() []AnimRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sortLocked()
	return slices.Clone(t.anims)
}

// AddAnim appends a record. Duplicate basenames are kept; FindAnim returns
// the first added.
func (t *AnimPreloadTable) AddAnim(basename string, baseFrameRate float32, numFrames int) {
	t.mu.Lock()
	t.anims = append(t.anims, AnimRecord{Basename: basename, BaseFrameRate: baseFrameRate, NumFrames: numFrames})
	t.unsorted = true
	t.mu.Unlock()
}

// RemoveAnim deletes record n.
func (t *AnimPreloadTable) RemoveAnim(n int) {
	t.mu.Lock()
	t.sortLocked()
	t.anims = slices.Delete(t.anims, n, n+1)
	t.mu.Unlock()
}

// ClearAnims deletes every record.
func (t *AnimPreloadTable) ClearAnims() {
	t.mu.Lock()
	t.anims = nil
	t.unsorted = false
	t.mu.Unlock()
}

// AddAnimsFrom copies every record of other into t.
func (t *AnimPreloadTable) AddAnimsFrom(other *AnimPreloadTable) {
	if other == nil || other == t {
		return
	}
	records := other.Anims()
	t.mu.Lock()
	t.anims = append(t.anims, records...)
	t.unsorted = true
	t.mu.Unlock()
}

// Clone returns an independent copy.
func (t *AnimPreloadTable) Clone() *AnimPreloadTable {
	return &AnimPreloadTable{anims: t.Anims()}
}
