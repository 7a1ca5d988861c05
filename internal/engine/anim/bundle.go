package anim

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"weak"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-anim/internal/engine/clock"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Loader loads an animation file for LoadBindAnim.
type Loader interface {
	LoadAnim(ctx context.Context, filename string) (*AnimBundle, error)
}

type blendEntry struct {
	control *AnimControl
	weight  float32
}

// ControlEffect is one entry of a bundle's blend.
type ControlEffect struct {
	Control *AnimControl
	Effect  float32
}

// PartBundle is the root of a skeleton. It owns the blend of active
// controls and drives the per-frame update of every part below it.
//
// Update, bind and effect calls may come from different goroutines; the
// bundle serializes them. Part values are written only during an update.
type PartBundle struct {
	PartGroup

	mu    sync.Mutex
	clock clock.Clock

	blendType          BlendType
	animBlend          bool
	frameBlend         bool
	restoreInitialPose bool
	asyncBind          bool

	blend          []blendEntry
	lastControlSet *AnimControl
	animChanged    bool
	lastUpdate     float64
	updateDelay    float64

	preloads *AnimPreloadTable
	applied  map[math.Mat4]weak.Pointer[PartBundle]

	// Held alone, so joints can read the root transform during an update.
	xfMu      sync.RWMutex
	rootXform math.Mat4
}

// NewPartBundle creates an empty skeleton root using CurrentOptions.
func NewPartBundle(name string) *PartBundle {
	opts := CurrentOptions()
	return &PartBundle{
		PartGroup:          PartGroup{name: name},
		clock:              clock.Default(),
		blendType:          opts.BlendType,
		frameBlend:         opts.InterpolateFrames,
		restoreInitialPose: opts.RestoreInitialPose,
		asyncBind:          opts.AsyncBind,
		rootXform:          math.Identity(),
	}
}

func (b *PartBundle) TypeName() string { return "PartBundle" }

// MakeCopy copies the bundle settings without children, controls or blend.
// The preload table is shared.
func (b *PartBundle) MakeCopy() Part {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &PartBundle{
		PartGroup:          PartGroup{name: b.name},
		clock:              b.clock,
		blendType:          b.blendType,
		animBlend:          b.animBlend,
		frameBlend:         b.frameBlend,
		restoreInitialPose: b.restoreInitialPose,
		asyncBind:          b.asyncBind,
		updateDelay:        b.updateDelay,
		preloads:           b.preloads,
		rootXform:          b.RootXform(),
	}
}

// SetClock replaces the clock used for updates and new controls.
func (b *PartBundle) SetClock(c clock.Clock) {
	b.mu.Lock()
	b.clock = c
	b.mu.Unlock()
}

// Clock returns the bundle clock.
func (b *PartBundle) Clock() clock.Clock {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock
}

// BlendType returns how multiple controls are combined.
func (b *PartBundle) BlendType() BlendType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blendType
}

// SetBlendType changes the blend algorithm. An unsupported type panics.
func (b *PartBundle) SetBlendType(bt BlendType) {
	if !bt.Valid() {
		panic(fmt.Sprintf("anim: invalid blend type %d", int(bt)))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blendType != bt {
		b.blendType = bt
		b.animChanged = true
	}
}

// AnimBlendFlag reports whether several controls may play at once.
func (b *PartBundle) AnimBlendFlag() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.animBlend
}

// SetAnimBlendFlag allows or forbids blending between controls. With the
// flag off, starting a control replaces every control bound to the same
// joints, and turning it off keeps only the most recently set control.
func (b *PartBundle) SetAnimBlendFlag(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.animBlend == on {
		return
	}
	b.animBlend = on
	if !on && len(b.blend) > 1 && b.lastControlSet != nil {
		b.clearAndStopIntersecting(b.lastControlSet)
	}
	b.animChanged = true
}

// FrameBlendFlag reports whether parts interpolate between frames.
func (b *PartBundle) FrameBlendFlag() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frameBlend
}

// SetFrameBlendFlag turns inter-frame interpolation on or off.
func (b *PartBundle) SetFrameBlendFlag(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frameBlend != on {
		b.frameBlend = on
		b.animChanged = true
	}
}

// RestoreInitialPose reports whether unanimated parts return to rest.
func (b *PartBundle) RestoreInitialPose() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.restoreInitialPose
}

// SetRestoreInitialPose controls what parts show with no animation: their
// initial value, or whatever they showed last.
func (b *PartBundle) SetRestoreInitialPose(on bool) {
	b.mu.Lock()
	b.restoreInitialPose = on
	b.animChanged = true
	b.mu.Unlock()
}

// RootXform returns the transform applied above the root joints.
func (b *PartBundle) RootXform() math.Mat4 {
	b.xfMu.RLock()
	defer b.xfMu.RUnlock()
	return b.rootXform
}

// SetRootXform replaces the root transform.
func (b *PartBundle) SetRootXform(m math.Mat4) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.xfMu.Lock()
	b.rootXform = m
	b.xfMu.Unlock()
	b.animChanged = true
}

// Xform applies mat to the whole skeleton, including the rest pose, so that
// skinned vertices move with it.
func (b *PartBundle) Xform(mat math.Mat4) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doXform(mat)
}

func (b *PartBundle) doXform(mat math.Mat4) {
	inv := mat.Inverse()
	b.xfMu.Lock()
	b.rootXform = mat.Mul(b.rootXform)
	b.xfMu.Unlock()
	xformTree(b, mat, inv)
	b.animChanged = true
}

// ApplyTransform returns a copy of the bundle with mat applied. Copies are
// cached per matrix for as long as something holds them.
func (b *PartBundle) ApplyTransform(mat math.Mat4) *PartBundle {
	if mat == math.Identity() {
		return b
	}

	b.mu.Lock()
	if wp, ok := b.applied[mat]; ok {
		if cached := wp.Value(); cached != nil {
			b.mu.Unlock()
			return cached
		}
		delete(b.applied, mat)
	}
	b.mu.Unlock()

	nb := CopySubgraph(b).(*PartBundle)
	nb.Xform(mat)
	nb.ForceUpdate()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.applied == nil {
		b.applied = make(map[math.Mat4]weak.Pointer[PartBundle])
	}
	for m, wp := range b.applied {
		if wp.Value() == nil {
			delete(b.applied, m)
		}
	}
	b.applied[mat] = weak.Make(nb)
	return nb
}

// UpdateDelay returns the minimum time between updates.
func (b *PartBundle) UpdateDelay() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updateDelay
}

// SetUpdateDelay limits how often Update recomputes the skeleton. Changes
// to the blend still take effect on the next Update.
func (b *PartBundle) SetUpdateDelay(d float64) {
	b.mu.Lock()
	b.updateDelay = d
	b.mu.Unlock()
}

// AnimPreload returns the preload table, or nil.
func (b *PartBundle) AnimPreload() *AnimPreloadTable {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.preloads
}

// SetAnimPreload replaces the preload table.
func (b *PartBundle) SetAnimPreload(t *AnimPreloadTable) {
	b.mu.Lock()
	b.preloads = t
	b.mu.Unlock()
}

// MergeAnimPreloads adds other's preload records to b. A table shared by
// both is left alone, and b's own table is copied before it is extended.
func (b *PartBundle) MergeAnimPreloads(other *PartBundle) {
	if other == nil || other == b {
		return
	}
	theirs := other.AnimPreload()
	if theirs == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.preloads == theirs:
	case b.preloads == nil:
		b.preloads = theirs
	default:
		merged := b.preloads.Clone()
		merged.AddAnimsFrom(theirs)
		b.preloads = merged
	}
}

func (b *PartBundle) findEntry(c *AnimControl) int {
	return slices.IndexFunc(b.blend, func(e blendEntry) bool { return e.control == c })
}

// SetControlEffect sets the weight of c in the blend. Zero removes it.
func (b *PartBundle) SetControlEffect(c *AnimControl, effect float32) {
	if c.Part() != b {
		panic(fmt.Sprintf("anim: control %q belongs to another bundle", c.Name()))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doSetControlEffect(c, effect)
}

// ControlEffect returns the weight of c, or 0 if it is not in the blend.
func (b *PartBundle) ControlEffect(c *AnimControl) float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.findEntry(c); i >= 0 {
		return b.blend[i].weight
	}
	return 0
}

// ControlEffects returns the blend in the order controls were added.
func (b *PartBundle) ControlEffects() []ControlEffect {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ControlEffect, len(b.blend))
	for i, e := range b.blend {
		out[i] = ControlEffect{Control: e.control, Effect: e.weight}
	}
	return out
}

// ClearControlEffects removes every control from the blend.
func (b *PartBundle) ClearControlEffects() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.blend) == 0 {
		return
	}
	b.blend = nil
	b.animChanged = true
	determineEffectiveChannels(b, b)
}

func (b *PartBundle) doSetControlEffect(c *AnimControl, effect float32) {
	if effect == 0 {
		if i := b.findEntry(c); i >= 0 {
			b.blend = slices.Delete(b.blend, i, i+1)
			b.animChanged = true
		}
	} else {
		if !b.animBlend {
			b.clearAndStopIntersecting(c)
		}
		if i := b.findEntry(c); i < 0 {
			b.blend = append(b.blend, blendEntry{control: c, weight: effect})
			b.animChanged = true
		} else if b.blend[i].weight != effect {
			b.blend[i].weight = effect
			b.animChanged = true
		}
		b.lastControlSet = c
	}
	determineEffectiveChannels(b, b)
}

// clearAndStopIntersecting removes and stops every control other than c
// whose bound joints overlap c's.
func (b *PartBundle) clearAndStopIntersecting(c *AnimControl) {
	joints := c.BoundJoints()
	changed := false
	kept := b.blend[:0]
	for _, e := range b.blend {
		if e.control != c && joints.HasBitsInCommon(e.control.BoundJoints()) {
			// Hold skips the activation hook, which would re-enter here.
			e.control.Hold()
			changed = true
			continue
		}
		kept = append(kept, e)
	}
	clear(b.blend[len(kept):])
	b.blend = kept
	if changed {
		b.animChanged = true
		determineEffectiveChannels(b, b)
	}
}

// controlActivated runs when c starts playing or posing.
func (b *PartBundle) controlActivated(c *AnimControl) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.animBlend {
		b.doSetControlEffect(c, 1)
	}
}

// Update recomputes every part whose animation moved since the last update.
// It returns true if any part changed.
func (b *PartBundle) Update() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.FrameTime()
	if now <= b.lastUpdate+b.updateDelay && !b.animChanged {
		return false
	}
	anyChanged := doUpdate(b, b, nil, false, b.animChanged)
	b.finishUpdate(now)
	return anyChanged
}

// ForceUpdate recomputes every part regardless of what changed.
func (b *PartBundle) ForceUpdate() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	anyChanged := doUpdate(b, b, nil, true, true)
	b.finishUpdate(b.clock.FrameTime())
	return anyChanged
}

func (b *PartBundle) finishUpdate(now float64) {
	for _, e := range b.blend {
		e.control.markChannels(b.frameBlend)
	}
	b.animChanged = false
	b.lastUpdate = now
}

// BindAnim binds anim to the bundle and returns a control for it. It fails
// with ErrBindFailed if the hierarchies do not match under flags. A nil
// subset binds every part.
func (b *PartBundle) BindAnim(anim *AnimBundle, flags HierarchyMatchFlags, subset *PartSubset) (*AnimControl, error) {
	c := newAnimControl(anim.Name(), b, anim.BaseFrameRate(), anim.NumFrames())

	b.mu.Lock()
	err := b.doBindAnim(c, anim, flags, subset)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.finish(nil)
	return c, nil
}

func (b *PartBundle) doBindAnim(c *AnimControl, anim *AnimBundle, flags HierarchyMatchFlags, subset *PartSubset) error {
	if flags&HMFOKWrongRootName == 0 && b.name != anim.Name() {
		log.Error("root name of part does not match anim",
			zap.String("part", b.name),
			zap.String("anim", anim.Name()))
		return fmt.Errorf("%w: root %q is not %q", ErrBindFailed, anim.Name(), b.name)
	}
	if !CheckHierarchy(b, anim, flags) {
		return fmt.Errorf("%w: %s to %s", ErrBindFailed, anim.Name(), b.name)
	}

	var holes []int
	next := 0
	PickChannelIndex(b, &holes, &next)
	channelIndex := next
	if len(holes) > 0 {
		channelIndex = holes[0]
	}

	jointIndex := 0
	var bound BitArray
	if subset.IsIncludeEmpty() {
		bound = AllOn()
	}
	BindHierarchy(b, anim, channelIndex, &jointIndex, subset.IsIncludeEmpty(), &bound, subset)

	c.setupAnim(anim, channelIndex, bound)
	determineEffectiveChannels(b, b)

	log.Debug("bound anim",
		zap.String("anim", anim.Name()),
		zap.String("part", b.name),
		zap.Int("channel", channelIndex),
		zap.Int("joints", jointIndex))
	return nil
}

// LoadBindAnim loads filename through loader and binds it. If the preload
// table knows the file and asynchronous binding is allowed, it returns a
// pending control at once and finishes the load on another goroutine;
// otherwise it loads synchronously.
func (b *PartBundle) LoadBindAnim(ctx context.Context, loader Loader, filename string, flags HierarchyMatchFlags, subset *PartSubset, allowAsync bool) (*AnimControl, error) {
	basename := PreloadBasename(filename)

	b.mu.Lock()
	preloads := b.preloads
	async := allowAsync && b.asyncBind
	b.mu.Unlock()

	index := -1
	if preloads != nil {
		index = preloads.FindAnim(basename)
	}

	if index < 0 || !async {
		anim, err := loader.LoadAnim(ctx, filename)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", filename, err)
		}
		return b.BindAnim(anim, flags, subset)
	}

	rec := preloads.Anim(index)
	c := newAnimControl(basename, b, float64(rec.BaseFrameRate), rec.NumFrames)
	if !subset.IsIncludeEmpty() {
		jointIndex := 0
		var bound BitArray
		FindBoundJoints(b, &jointIndex, false, &bound, subset)
		c.setBoundJoints(bound)
	}

	go b.bindAsync(ctx, loader, filename, c, flags, subset)
	return c, nil
}

func (b *PartBundle) bindAsync(ctx context.Context, loader Loader, filename string, c *AnimControl, flags HierarchyMatchFlags, subset *PartSubset) {
	anim, err := loader.LoadAnim(ctx, filename)
	if err != nil {
		c.failAnim(fmt.Errorf("loading %s: %w", filename, err))
		return
	}

	b.mu.Lock()
	if c.isUnbound() {
		b.mu.Unlock()
		c.failAnim(ErrUnbound)
		return
	}
	err = b.doBindAnim(c, anim, flags, subset)
	if err == nil {
		// The blend may already hold c; its channels exist only now.
		b.animChanged = true
	}
	b.mu.Unlock()

	if err != nil {
		c.failAnim(err)
		return
	}
	c.finish(nil)
}

// UnbindAnim removes c from the blend and frees its channel slot for the
// next bind. The control stays usable as a timeline.
func (b *PartBundle) UnbindAnim(c *AnimControl) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.findEntry(c); i >= 0 {
		b.blend = slices.Delete(b.blend, i, i+1)
		b.animChanged = true
	}
	if idx := c.ChannelIndex(); idx >= 0 {
		clearChannel(b, idx)
	}
	c.markUnbound()
	determineEffectiveChannels(b, b)
}

// WaitPending waits for every pending control in the blend. It returns the
// first bind error, or ctx's error.
func (b *PartBundle) WaitPending(ctx context.Context) error {
	b.mu.Lock()
	var pending []*AnimControl
	for _, e := range b.blend {
		if e.control.IsPending() {
			pending = append(pending, e.control)
		}
	}
	b.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range pending {
		g.Go(func() error { return c.WaitPending(ctx) })
	}
	return g.Wait()
}

// FreezeJoint holds the named part at value, overriding any animation, until
// ReleaseJoint. It returns false if no such moving part exists.
func (b *PartBundle) FreezeJoint(name string, value math.Mat4) bool {
	comp, _ := math.DecomposeMatrix(value)
	return b.FreezeJointPosHprScale(name, comp.Pos, comp.HPR, comp.Scale)
}

// FreezeJointPosHprScale is FreezeJoint from components.
func (b *PartBundle) FreezeJointPosHprScale(name string, pos, hpr, scale math.Vec3) bool {
	return b.force(name, func(mp movingPart) bool {
		return mp.applyFreeze(math.Components{Scale: scale, HPR: hpr, Pos: pos})
	})
}

// FreezeScalar holds the named scalar part at v.
func (b *PartBundle) FreezeScalar(name string, v float32) bool {
	return b.force(name, func(mp movingPart) bool { return mp.applyFreezeScalar(v) })
}

// ControlJoint makes the named part follow p every update, overriding any
// animation, until ReleaseJoint.
func (b *PartBundle) ControlJoint(name string, p TransformProvider) bool {
	return b.force(name, func(mp movingPart) bool { return mp.applyControl(p) })
}

// ReleaseJoint undoes FreezeJoint or ControlJoint.
func (b *PartBundle) ReleaseJoint(name string) bool {
	return b.force(name, func(mp movingPart) bool {
		mp.base().clearForcedChannel()
		return true
	})
}

func (b *PartBundle) force(name string, apply func(movingPart) bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	mp, ok := b.FindChild(name).(movingPart)
	if !ok {
		return false
	}
	b.animChanged = true
	return apply(mp)
}

func (b *PartBundle) String() string {
	return fmt.Sprintf("PartBundle(%s)", b.name)
}
