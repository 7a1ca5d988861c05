package character

import (
	"fmt"
	"io"
	gomath "math"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/internal/engine/clock"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Character owns the part bundles of one animated model and updates them
// at most once per frame.
type Character struct {
	name string

	mu            sync.Mutex
	bundles       []*anim.PartBundle
	clock         clock.Clock
	updated       bool
	lastUpdate    float64
	evenAnimation bool

	lodEnabled    bool
	lodCenter     math.Vec3
	lodFar        float32
	lodNear       float32
	lodDelay      float32
	lodCurrent    float64
	viewFrame     int
	viewDistance2 float32
}

// New creates a character with no bundles on the default clock.
func New(name string) *Character {
	return &Character{name: name, clock: clock.Default(), viewFrame: -1}
}

// Name returns the character name.
func (c *Character) Name() string { return c.name }

// AddBundle adds b, puts it on the character clock and links its joints
// back to c. It returns the bundle index. Joints added to b afterwards are
// not linked, so build the skeleton first.
func (c *Character) AddBundle(b *anim.PartBundle) int {
	c.mu.Lock()
	b.SetClock(c.clock)
	c.bundles = append(c.bundles, b)
	n := len(c.bundles) - 1
	c.mu.Unlock()

	c.linkJoints(b)
	log.Debug("added bundle",
		zap.String("character", c.name),
		zap.String("bundle", b.Name()),
		zap.Int("joints", len(c.joints(b))))
	return n
}

// RemoveBundle drops b and unlinks its joints. It returns false if b is not
// one of c's bundles.
func (c *Character) RemoveBundle(b *anim.PartBundle) bool {
	c.mu.Lock()
	i := slices.Index(c.bundles, b)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.bundles = slices.Delete(c.bundles, i, i+1)
	c.mu.Unlock()

	for _, j := range c.joints(b) {
		if j.Character() == c {
			j.setCharacter(nil)
		}
	}
	return true
}

// NumBundles returns the number of bundles.
func (c *Character) NumBundles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bundles)
}

// Bundle returns bundle n.
func (c *Character) Bundle(n int) *anim.PartBundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bundles[n]
}

// Bundles returns a copy of the bundle list.
func (c *Character) Bundles() []*anim.PartBundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.bundles)
}

// MergeBundles replaces oldBundle with newBundle. Preloads of the old bundle
// are merged into the new one, and parts found only in the old skeleton are
// copied over, so the new bundle holds the union of both.
func (c *Character) MergeBundles(oldBundle, newBundle *anim.PartBundle) error {
	if oldBundle == newBundle {
		return nil
	}
	c.mu.Lock()
	i := slices.Index(c.bundles, oldBundle)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("bundle %q is not part of character %q", oldBundle.Name(), c.name)
	}
	c.bundles[i] = newBundle
	c.mu.Unlock()

	newBundle.MergeAnimPreloads(oldBundle)
	added := mergeParts(newBundle, oldBundle)
	if added > 0 {
		newBundle.SortDescendants()
	}
	newBundle.SetClock(c.Clock())
	c.linkJoints(newBundle)

	log.Info("merged bundles",
		zap.String("character", c.name),
		zap.String("bundle", newBundle.Name()),
		zap.Int("parts_added", added))
	return nil
}

// mergeParts copies into dst every child subtree of src that dst lacks by
// name, recursing into children both have. It returns the number of copied
// subtrees.
func mergeParts(dst, src anim.Part) int {
	added := 0
	for _, sc := range src.Children() {
		i := slices.IndexFunc(dst.Children(), func(p anim.Part) bool { return p.Name() == sc.Name() })
		if i < 0 {
			anim.AddChild(dst, anim.CopySubgraph(sc))
			added++
			continue
		}
		added += mergeParts(dst.Children()[i], sc)
	}
	return added
}

// SetClock moves the character and every bundle to clk.
func (c *Character) SetClock(clk clock.Clock) {
	c.mu.Lock()
	c.clock = clk
	bundles := slices.Clone(c.bundles)
	c.mu.Unlock()
	for _, b := range bundles {
		b.SetClock(clk)
	}
}

// Clock returns the character clock.
func (c *Character) Clock() clock.Clock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}

// EvenAnimation reports whether every update is forced.
func (c *Character) EvenAnimation() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evenAnimation
}

// SetEvenAnimation makes Update force every part each frame instead of
// recomputing only what moved.
func (c *Character) SetEvenAnimation(on bool) {
	c.mu.Lock()
	c.evenAnimation = on
	c.mu.Unlock()
}

// Update recomputes the bundles for the current frame time. A second call
// in the same frame does nothing. It returns true if any part changed.
func (c *Character) Update() bool {
	c.mu.Lock()
	now := c.clock.FrameTime()
	if c.updated && now == c.lastUpdate {
		c.mu.Unlock()
		return false
	}
	c.updated = true
	c.lastUpdate = now
	even := c.evenAnimation
	bundles := slices.Clone(c.bundles)
	c.mu.Unlock()

	changed := false
	for _, b := range bundles {
		if even {
			changed = b.ForceUpdate() || changed
		} else {
			changed = b.Update() || changed
		}
	}
	return changed
}

// ForceUpdate recomputes every part of every bundle.
func (c *Character) ForceUpdate() bool {
	changed := false
	for _, b := range c.Bundles() {
		changed = b.ForceUpdate() || changed
	}
	return changed
}

// SetLODAnimation slows animation with distance. Closer than near the
// character updates every frame; at far it updates every delayFactor
// seconds, and the delay keeps growing linearly past far. far < near or a
// negative delayFactor panics.
func (c *Character) SetLODAnimation(center math.Vec3, far, near, delayFactor float32) {
	if far < near || delayFactor < 0 {
		panic(fmt.Sprintf("character: bad LOD animation far %v near %v delay %v", far, near, delayFactor))
	}
	c.mu.Lock()
	c.lodCenter = center
	c.lodFar = far
	c.lodNear = near
	c.lodDelay = delayFactor
	c.lodEnabled = far > near && delayFactor > 0
	enabled := c.lodEnabled
	c.viewFrame = -1
	c.mu.Unlock()

	if !enabled {
		c.setUpdateDelay(0)
	}
}

// ClearLODAnimation restores updating every frame.
func (c *Character) ClearLODAnimation() {
	c.mu.Lock()
	c.lodEnabled = false
	c.lodCenter = math.Vec3{}
	c.lodFar, c.lodNear, c.lodDelay = 0, 0, 0
	c.lodCurrent = 0
	c.mu.Unlock()
	c.setUpdateDelay(0)
}

// LODAnimation reports whether distance-based slowing is active.
func (c *Character) LODAnimation() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lodEnabled
}

// UpdateLOD sets the update delay from one viewer. toViewer maps character
// space into the viewer's space. With several viewers in one frame the
// closest wins. It returns the delay now in effect.
func (c *Character) UpdateLOD(toViewer math.Mat4) float64 {
	c.mu.Lock()
	if !c.lodEnabled {
		c.mu.Unlock()
		return 0
	}
	center := toViewer.TransformVec3(c.lodCenter)
	dist2 := center.Dot(center)
	frame := c.clock.FrameCount()
	if frame == c.viewFrame && dist2 >= c.viewDistance2 {
		delay := c.lodCurrent
		c.mu.Unlock()
		return delay
	}
	c.viewFrame = frame
	c.viewDistance2 = dist2

	dist := float32(gomath.Sqrt(float64(dist2)))
	var delay float64
	if dist > c.lodNear {
		delay = float64(c.lodDelay * (dist - c.lodNear) / (c.lodFar - c.lodNear))
	}
	c.lodCurrent = delay
	c.mu.Unlock()

	c.setUpdateDelay(delay)
	return delay
}

func (c *Character) setUpdateDelay(d float64) {
	for _, b := range c.Bundles() {
		b.SetUpdateDelay(d)
	}
}

// FindJoint returns the first joint named name in any bundle, or nil.
// Sliders are not returned.
func (c *Character) FindJoint(name string) *Joint {
	for _, b := range c.Bundles() {
		if j, ok := b.FindChild(name).(*Joint); ok {
			return j
		}
	}
	return nil
}

// FindSlider returns the first slider named name in any bundle, or nil.
func (c *Character) FindSlider(name string) *Slider {
	for _, b := range c.Bundles() {
		if s, ok := b.FindChild(name).(*Slider); ok {
			return s
		}
	}
	return nil
}

// WriteParts prints the part hierarchy of every bundle.
func (c *Character) WriteParts(w io.Writer) {
	for _, b := range c.Bundles() {
		anim.WriteTree(w, b, 0)
	}
}

// WritePartValues prints the hierarchy with current values.
func (c *Character) WritePartValues(w io.Writer) {
	for _, b := range c.Bundles() {
		anim.WriteValues(w, b, 0)
	}
}

func (c *Character) joints(b *anim.PartBundle) []*Joint {
	var out []*Joint
	anim.ForEachPart(b, func(p anim.Part) {
		if j, ok := p.(*Joint); ok {
			out = append(out, j)
		}
	})
	return out
}

func (c *Character) linkJoints(b *anim.PartBundle) {
	for _, j := range c.joints(b) {
		j.setCharacter(c)
	}
}

func (c *Character) String() string {
	return fmt.Sprintf("Character(%s, %d bundles)", c.name, c.NumBundles())
}
