package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/internal/engine/character"
	"github.com/Faultbox/midgard-anim/pkg/bam"
)

// entry is one named animation inside a file.
type entry struct {
	name string
	anim *anim.AnimBundle
}

// Cache loads animations through a search path and keeps them. Concurrent
// loads of the same file share one read. It implements anim.Loader.
//
// Animations are shared between binds and must not be modified. Characters
// are never cached since binding changes them.
type Cache struct {
	searchPath []string
	opts       ImportOptions

	mu     sync.RWMutex
	files  map[string][]entry
	retain bool
	group  singleflight.Group

	// Stats
	hits   int
	misses int
}

var _ anim.Loader = (*Cache)(nil)

// NewCache creates a cache resolving names against searchPath.
func NewCache(searchPath []string, opts ImportOptions) *Cache {
	return &Cache{
		searchPath: searchPath,
		opts:       opts,
		files:      make(map[string][]entry),
		retain:     true,
	}
}

// SetRetain controls whether loaded files are kept. With retain off every
// LoadAnim rereads its file, though concurrent loads still share one read.
func (c *Cache) SetRetain(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retain = on
	if !on {
		c.files = make(map[string][]entry)
	}
}

// SearchPath returns the directories names are resolved against.
func (c *Cache) SearchPath() []string { return c.searchPath }

// LoadAnim loads the animation ref, given as "file" or "file#name". Without
// a name the file's first animation is returned.
func (c *Cache) LoadAnim(ctx context.Context, ref string) (*anim.AnimBundle, error) {
	file, name := SplitSelector(ref)
	path, err := Resolve(c.searchPath, file)
	if err != nil {
		return nil, err
	}
	entries, err := c.load(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAnimation, path)
	}
	if name == "" {
		return entries[0].anim, nil
	}
	for _, e := range entries {
		if e.name == name {
			return e.anim, nil
		}
	}
	return nil, fmt.Errorf("%w: %q in %s", ErrNoAnimation, name, path)
}

// Names returns the names of the animations in file.
func (c *Cache) Names(ctx context.Context, file string) ([]string, error) {
	path, err := Resolve(c.searchPath, file)
	if err != nil {
		return nil, err
	}
	entries, err := c.load(ctx, path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names, nil
}

func (c *Cache) load(ctx context.Context, path string) ([]entry, error) {
	c.mu.Lock()
	if entries, ok := c.files[path]; ok {
		c.hits++
		c.mu.Unlock()
		return entries, nil
	}
	c.misses++
	c.mu.Unlock()

	ch := c.group.DoChan(path, func() (any, error) {
		entries, err := c.read(path)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.retain {
			c.files[path] = entries
		}
		c.mu.Unlock()
		log.Debug("cached animations",
			zap.String("path", path),
			zap.Int("count", len(entries)))
		return entries, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]entry), nil
	}
}

func (c *Cache) read(path string) ([]entry, error) {
	switch DetectFormat(path) {
	case FormatBam:
		objs, _, err := bam.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var entries []entry
		for _, o := range objs {
			if a, ok := o.(*anim.AnimBundle); ok {
				entries = append(entries, entry{name: a.Name(), anim: a})
			}
		}
		return entries, nil
	case FormatYAML:
		a, err := LoadAnimFile(path)
		if err != nil {
			return nil, err
		}
		return []entry{{name: baseName(path), anim: a}}, nil
	case FormatGLTF:
		s, err := LoadGLTF(path, c.opts)
		if err != nil {
			return nil, err
		}
		entries := make([]entry, len(s.Anims))
		for i, a := range s.Anims {
			entries[i] = entry{name: s.AnimNames[i], anim: a}
		}
		return entries, nil
	case FormatRSM:
		_, a, err := LoadRSM(path, c.opts.SampleRate)
		if err != nil {
			return nil, err
		}
		return []entry{{name: baseName(path), anim: a}}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// LoadCharacter reads the character in file, which may be a YAML rig, a
// bam file holding a Character, a glTF skin or an RSM model.
func (c *Cache) LoadCharacter(ctx context.Context, file string) (*character.Character, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := Resolve(c.searchPath, file)
	if err != nil {
		return nil, err
	}
	switch DetectFormat(path) {
	case FormatYAML:
		return LoadRig(path)
	case FormatGLTF:
		s, err := LoadGLTF(path, c.opts)
		if err != nil {
			return nil, err
		}
		return s.Character, nil
	case FormatRSM:
		ch, _, err := LoadRSM(path, c.opts.SampleRate)
		return ch, err
	case FormatBam:
		objs, _, err := bam.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, o := range objs {
			if ch, ok := o.(*character.Character); ok {
				return ch, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNoRig, path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Evict drops the cached animations of file.
func (c *Cache) Evict(file string) {
	path, err := Resolve(c.searchPath, file)
	if err != nil {
		path = file
	}
	c.mu.Lock()
	delete(c.files, path)
	c.mu.Unlock()
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = make(map[string][]entry)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
