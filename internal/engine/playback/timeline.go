// Package playback turns a clock reading into an animation frame.
//
// A Timeline holds no per-tick state: every read samples the clock and
// derives the frame from the parameters recorded by the last Play, Loop,
// Pingpong or Pose call.
package playback

import (
	"fmt"
	"math"
	"sync"

	"github.com/Faultbox/midgard-anim/internal/engine/clock"
)

// PlayMode is the timeline state.
type PlayMode int

const (
	ModePose PlayMode = iota
	ModePlay
	ModeLoop
	ModePingpong
)

// String returns a human-readable mode name.
func (m PlayMode) String() string {
	switch m {
	case ModePose:
		return "pose"
	case ModePlay:
		return "play"
	case ModeLoop:
		return "loop"
	case ModePingpong:
		return "pingpong"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Timeline is the playback state of one animation.
type Timeline struct {
	mu    sync.RWMutex
	clock clock.Clock

	numFrames int
	frameRate float64
	playRate  float64
	effRate   float64 // frameRate * playRate
	paused    bool

	mode       PlayMode
	startTime  float64
	startFrame float64
	playFrames float64
	fromFrame  int
	toFrame    int
	pausedF    float64

	onActivate func()
}

// New returns a timeline posed at frame 0. A nil clock uses clock.Default().
func New(c clock.Clock, frameRate float64, numFrames int) *Timeline {
	if c == nil {
		c = clock.Default()
	}
	t := &Timeline{
		clock:     c,
		numFrames: numFrames,
		frameRate: frameRate,
		playRate:  1,
		effRate:   frameRate,
		paused:    frameRate == 0,
	}
	t.doPose(0)
	return t
}

// SetNumFrames changes the animation length without touching the play state.
func (t *Timeline) SetNumFrames(n int) {
	t.mu.Lock()
	t.numFrames = n
	t.mu.Unlock()
}

// SetOnActivate installs fn, called after every Play, Loop, Pingpong and
// Pose transition.
func (t *Timeline) SetOnActivate(fn func()) {
	t.mu.Lock()
	t.onActivate = fn
	t.mu.Unlock()
}

func (t *Timeline) activated() {
	t.mu.RLock()
	fn := t.onActivate
	t.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Clock returns the clock driving the timeline.
func (t *Timeline) Clock() clock.Clock { return t.clock }

// Play runs the whole animation once.
func (t *Timeline) Play() {
	t.PlayRange(0, float64(t.NumFrames()-1))
}

// PlayRange runs once from frame from through frame to, inclusive.
func (t *Timeline) PlayRange(from, to float64) {
	if from >= to {
		t.Pose(from)
		return
	}

	t.mu.Lock()
	t.setRange(ModePlay, from, to)
	if t.effRate < 0 {
		// Playing backward starts at the end of the range.
		t.startTime -= t.playFrames / t.effRate
	}
	t.mu.Unlock()

	t.activated()
}

// Loop repeats the whole animation. With restart false the current frame
// is kept.
func (t *Timeline) Loop(restart bool) {
	t.LoopRange(restart, 0, float64(t.NumFrames()-1))
}

// LoopRange repeats frames from through to.
func (t *Timeline) LoopRange(restart bool, from, to float64) {
	t.repeat(ModeLoop, restart, from, to)
}

// Pingpong plays the whole animation forward then backward, repeatedly.
func (t *Timeline) Pingpong(restart bool) {
	t.PingpongRange(restart, 0, float64(t.NumFrames()-1))
}

// PingpongRange bounces between frames from and to.
func (t *Timeline) PingpongRange(restart bool, from, to float64) {
	t.repeat(ModePingpong, restart, from, to)
}

func (t *Timeline) repeat(mode PlayMode, restart bool, from, to float64) {
	t.mu.Lock()
	fframe := t.fullFFrame(t.clock.FrameTime())
	if from >= to {
		t.mu.Unlock()
		t.Pose(from)
		return
	}

	t.setRange(mode, from, to)
	if !restart {
		fframe = math.Min(math.Max(fframe, from), to)
		if t.paused {
			t.pausedF = fframe - t.startFrame
		} else {
			t.startTime -= (fframe - t.startFrame) / t.effRate
		}
	}
	t.mu.Unlock()

	t.activated()
}

// Pose holds the animation at frame.
func (t *Timeline) Pose(frame float64) {
	t.mu.Lock()
	t.doPose(frame)
	t.mu.Unlock()

	t.activated()
}

// Stop holds the animation at its current frame.
func (t *Timeline) Stop() {
	t.Pose(t.FullFFrame())
}

// Hold is Stop without the activation hook, for callers that are already
// reacting to another timeline's activation.
func (t *Timeline) Hold() {
	t.mu.Lock()
	t.doPose(t.fullFFrame(t.clock.FrameTime()))
	t.mu.Unlock()
}

func (t *Timeline) doPose(frame float64) {
	t.mode = ModePose
	t.startTime = t.clock.FrameTime()
	t.startFrame = frame
	t.playFrames = 0
	t.fromFrame = int(math.Floor(frame))
	t.toFrame = t.fromFrame
	t.pausedF = 0
}

func (t *Timeline) setRange(mode PlayMode, from, to float64) {
	t.mode = mode
	t.startTime = t.clock.FrameTime()
	t.startFrame = from
	t.playFrames = to - from + 1
	t.fromFrame = int(math.Floor(from))
	t.toFrame = int(math.Floor(to))
	t.pausedF = 0
}

// SetPlayRate scales playback speed; negative runs backward and zero pauses.
// The visible frame does not jump.
func (t *Timeline) SetPlayRate(rate float64) {
	t.mu.Lock()
	t.setRate(t.frameRate, rate)
	t.mu.Unlock()
}

// SetFrameRate changes the native frame rate without a visible jump.
func (t *Timeline) SetFrameRate(rate float64) {
	t.mu.Lock()
	t.setRate(rate, t.playRate)
	t.mu.Unlock()
}

func (t *Timeline) setRate(frameRate, playRate float64) {
	now := t.clock.FrameTime()
	f := t.f(now)

	t.frameRate = frameRate
	t.playRate = playRate
	t.effRate = frameRate * playRate

	if t.effRate == 0 {
		t.pausedF = f
		t.paused = true
	} else {
		t.startTime = now - f/t.effRate
		t.paused = false
	}
}

// F returns the frames elapsed since the range started, before wrapping.
func (t *Timeline) F() float64 {
	return t.FAt(t.clock.FrameTime())
}

// FAt is F evaluated at time now.
func (t *Timeline) FAt(now float64) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.f(now)
}

func (t *Timeline) f(now float64) float64 {
	if t.paused {
		return t.pausedF
	}
	return (now - t.startTime) * t.effRate
}

// FullFFrame returns the current floating-point frame, not wrapped by the
// animation length. A finished Play reports toFrame + 1.
func (t *Timeline) FullFFrame() float64 {
	return t.FullFFrameAt(t.clock.FrameTime())
}

// FullFFrameAt is FullFFrame evaluated at time now.
func (t *Timeline) FullFFrameAt(now float64) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fullFFrame(now)
}

func (t *Timeline) fullFFrame(now float64) float64 {
	switch t.mode {
	case ModePose:
		return t.startFrame

	case ModePlay:
		return math.Min(math.Max(t.f(now), 0), t.playFrames) + t.startFrame

	case ModeLoop:
		return cmod(t.f(now), t.playFrames) + t.startFrame

	case ModePingpong:
		span := t.playFrames * 2
		f := cmod(t.f(now), span)
		if f > t.playFrames {
			return (span - f) + t.startFrame
		}
		return f + t.startFrame
	}
	return t.startFrame
}

// FullFrame returns floor(FullFFrame()) + increment, clamped to the range
// in Play mode so a finished animation holds its last frame.
func (t *Timeline) FullFrame(increment int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fullFrame(t.clock.FrameTime(), increment)
}

func (t *Timeline) fullFrame(now float64, increment int) int {
	frame := int(math.Floor(t.fullFFrame(now))) + increment
	if t.mode == ModePlay {
		frame = min(max(frame, t.fromFrame), t.toFrame)
	}
	return frame
}

// Frame returns the current frame wrapped into [0, NumFrames).
func (t *Timeline) Frame() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return icmod(t.fullFrame(t.clock.FrameTime(), 0), t.numFrames)
}

// NextFrame returns the frame after Frame, wrapped.
func (t *Timeline) NextFrame() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return icmod(t.fullFrame(t.clock.FrameTime(), 1), t.numFrames)
}

// Frac returns how far playback is between Frame and NextFrame.
func (t *Timeline) Frac() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := t.clock.FrameTime()
	return t.fullFFrame(now) - float64(t.fullFrame(now, 0))
}

// IsPlaying reports whether the timeline is still advancing.
func (t *Timeline) IsPlaying() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	switch t.mode {
	case ModePose:
		return false
	case ModePlay:
		f := t.f(t.clock.FrameTime())
		if t.effRate < 0 {
			return f > 0
		}
		return f < t.playFrames
	default:
		return true
	}
}

// Mode returns the current play mode.
func (t *Timeline) Mode() PlayMode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mode
}

// NumFrames returns the animation length in frames.
func (t *Timeline) NumFrames() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.numFrames
}

// FrameRate returns the native frame rate.
func (t *Timeline) FrameRate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frameRate
}

// PlayRate returns the speed multiplier.
func (t *Timeline) PlayRate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.playRate
}

// EffectiveFrameRate returns FrameRate() * PlayRate().
func (t *Timeline) EffectiveFrameRate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.effRate
}

// Range returns the integer frame range of the current mode.
func (t *Timeline) Range() (from, to int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fromFrame, t.toFrame
}

// String describes the mode and frame, e.g. "loop, frame 3 of 24".
func (t *Timeline) String() string {
	return fmt.Sprintf("%s, frame %d of %d", t.Mode(), t.Frame(), t.NumFrames())
}

// cmod is a modulo whose result has the sign of y.
func cmod(x, y float64) float64 {
	return x - math.Floor(x/y)*y
}

func icmod(x, y int) int {
	if y <= 0 {
		return 0
	}
	r := x % y
	if r < 0 {
		r += y
	}
	return r
}
