package anim

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/engine/playback"
)

// AnimControl is the playback handle returned by a bind. It embeds the
// Timeline, so Play, Loop, Pose and the frame reads are called on it
// directly, and records where the animation is bound on its bundle.
//
// A control made by an asynchronous bind starts pending: it can be played
// and weighted at once, but contributes nothing until its animation loads.
type AnimControl struct {
	*playback.Timeline

	name string
	part *PartBundle

	mu           sync.Mutex
	anim         *AnimBundle
	channelIndex int
	boundJoints  BitArray
	pending      bool
	unbound      bool
	err          error
	done         chan struct{}
	onDone       []func(*AnimControl)

	// Read and written only under the bundle lock.
	markedFrame int
	markedFrac  float64
}

func newAnimControl(name string, part *PartBundle, frameRate float64, numFrames int) *AnimControl {
	c := &AnimControl{
		Timeline:     playback.New(part.Clock(), frameRate, numFrames),
		name:         name,
		part:         part,
		channelIndex: -1,
		boundJoints:  AllOn(),
		pending:      true,
		done:         make(chan struct{}),
		markedFrame:  -1,
	}
	c.SetOnActivate(func() { part.controlActivated(c) })
	return c
}

// Name returns the animation basename.
func (c *AnimControl) Name() string { return c.name }

// Part returns the bundle the control plays on.
func (c *AnimControl) Part() *PartBundle { return c.part }

// Anim returns the bound animation, or nil while pending.
func (c *AnimControl) Anim() *AnimBundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.anim
}

// HasAnim reports whether an animation is bound.
func (c *AnimControl) HasAnim() bool { return c.Anim() != nil }

// ChannelIndex returns the channel slot on every bound part, or -1.
func (c *AnimControl) ChannelIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelIndex
}

// BoundJoints returns which moving parts, in tree order, the bind covers.
func (c *AnimControl) BoundJoints() BitArray {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundJoints.Clone()
}

func (c *AnimControl) setBoundJoints(b BitArray) {
	c.mu.Lock()
	c.boundJoints = b
	c.mu.Unlock()
}

// IsPending reports whether an asynchronous bind has not finished.
func (c *AnimControl) IsPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Err returns why an asynchronous bind failed, or nil.
func (c *AnimControl) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the control stops being pending.
func (c *AnimControl) Done() <-chan struct{} { return c.done }

// WaitPending blocks until the bind finishes or ctx ends. It returns the
// bind error, if any.
func (c *AnimControl) WaitPending(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnPendingDone registers fn to run once the bind finishes, successfully or
// not. If it already has, fn runs immediately.
func (c *AnimControl) OnPendingDone(fn func(*AnimControl)) {
	c.mu.Lock()
	if c.pending {
		c.onDone = append(c.onDone, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn(c)
}

// setupAnim records a completed bind. Called with the bundle locked; the
// caller runs finish once the lock is released.
func (c *AnimControl) setupAnim(anim *AnimBundle, channelIndex int, bound BitArray) {
	c.mu.Lock()
	c.anim = anim
	c.channelIndex = channelIndex
	c.boundJoints = bound
	c.markedFrame = -1
	c.markedFrac = 0
	c.mu.Unlock()

	c.SetFrameRate(anim.BaseFrameRate())
	c.SetNumFrames(anim.NumFrames())
}

// failAnim ends a pending bind that could not complete.
func (c *AnimControl) failAnim(err error) {
	log.Error("bind failed",
		zap.String("anim", c.name),
		zap.String("bundle", c.part.Name()),
		zap.Error(err))
	c.finish(err)
}

func (c *AnimControl) finish(err error) {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.err = err
	callbacks := c.onDone
	c.onDone = nil
	close(c.done)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(c)
	}
}

func (c *AnimControl) markUnbound() {
	c.mu.Lock()
	c.unbound = true
	c.channelIndex = -1
	c.anim = nil
	c.mu.Unlock()
}

func (c *AnimControl) isUnbound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unbound
}

// markChannels records the frame the parts were last updated for.
func (c *AnimControl) markChannels(frameBlend bool) {
	c.markedFrame = c.Frame()
	c.markedFrac = 0
	if frameBlend {
		c.markedFrac = c.Frac()
	}
}

// channelHasChanged reports whether ch may have moved since markChannels.
func (c *AnimControl) channelHasChanged(ch AnimChannel, frameBlend bool) bool {
	if c.markedFrame < 0 {
		return true
	}
	var frac float64
	if frameBlend {
		frac = c.Frac()
	}
	return ch.HasChanged(c.markedFrame, c.markedFrac, c.Frame(), frac)
}

func (c *AnimControl) String() string {
	state := c.Timeline.String()
	if c.IsPending() {
		state = "pending, " + state
	}
	return fmt.Sprintf("AnimControl(%s, %s)", c.name, state)
}
