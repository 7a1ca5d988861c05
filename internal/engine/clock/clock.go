// Package clock supplies the frame time that drives animation playback.
//
// Every timeline samples the same frame time during one frame, so all
// controls advance in lockstep no matter when during the frame they are read.
package clock

import (
	"sync"
	"time"
)

// Clock reports the time, in seconds, latched for the current frame.
type Clock interface {
	FrameTime() float64
	FrameCount() int
}

// Manual is a clock advanced explicitly, used by tests and offline tools.
type Manual struct {
	mu    sync.RWMutex
	now   float64
	count int
}

// NewManual returns a manual clock at time start.
func NewManual(start float64) *Manual {
	return &Manual{now: start}
}

func (c *Manual) FrameTime() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *Manual) FrameCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// Set jumps to t and starts a new frame.
func (c *Manual) Set(t float64) {
	c.mu.Lock()
	c.now = t
	c.count++
	c.mu.Unlock()
}

// Advance moves forward by dt seconds and starts a new frame.
func (c *Manual) Advance(dt float64) {
	c.mu.Lock()
	c.now += dt
	c.count++
	c.mu.Unlock()
}

// Real latches wall time since its creation on every Tick.
type Real struct {
	mu    sync.RWMutex
	start time.Time
	now   float64
	count int
}

// NewReal returns a real-time clock at zero.
func NewReal() *Real {
	return &Real{start: time.Now()}
}

func (c *Real) FrameTime() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *Real) FrameCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// Tick starts a new frame at the current wall time and returns the elapsed
// time since the previous frame.
func (c *Real) Tick() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Since(c.start).Seconds()
	dt := now - c.now
	c.now = now
	c.count++
	return dt
}

var (
	defaultMu    sync.RWMutex
	defaultClock Clock = NewReal()
)

// Default returns the process-wide clock used when none is supplied.
func Default() Clock {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultClock
}

// SetDefault replaces the process-wide clock and returns the previous one.
func SetDefault(c Clock) Clock {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultClock
	defaultClock = c
	return prev
}
