// Package anim binds animation channel trees to skeleton part trees and
// blends the bound channels into per-part values once per frame.
//
// A skeleton is a tree of Part nodes rooted at a PartBundle. An animation is
// a parallel tree of AnimNode values rooted at an AnimBundle. Binding matches
// the two trees by name and gives the resulting AnimControl a channel index;
// every moving part stores the channel it was bound to at that index.
package anim

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Faultbox/midgard-anim/internal/logger"
)

var log = logger.Named("chan")

// Engine errors.
var (
	ErrInvalidBlendType = errors.New("invalid blend type")
	ErrBindFailed       = errors.New("anim hierarchy does not match part hierarchy")
	ErrNoAnim           = errors.New("file contains no anim bundle")
	ErrUnbound          = errors.New("control was unbound before its anim loaded")
)

// ValueType is the kind of value a part or channel carries.
type ValueType int

const (
	ValueNone ValueType = iota
	ValueMatrix
	ValueScalar
)

// String returns a human-readable value type name.
func (v ValueType) String() string {
	switch v {
	case ValueNone:
		return "none"
	case ValueMatrix:
		return "matrix"
	case ValueScalar:
		return "scalar"
	default:
		return fmt.Sprintf("Unknown(%d)", int(v))
	}
}

// HierarchyMatchFlags lists the differences BindAnim tolerates.
type HierarchyMatchFlags int

const (
	// HMFOKPartExtra accepts parts with no matching channel.
	HMFOKPartExtra HierarchyMatchFlags = 1 << iota
	// HMFOKAnimExtra accepts channels with no matching part.
	HMFOKAnimExtra
	// HMFOKWrongRootName accepts a bundle and anim with different names.
	HMFOKWrongRootName
)

// BlendType selects how several weighted channels are combined.
type BlendType uint8

const (
	// BlendLinear averages the raw matrices.
	BlendLinear BlendType = iota
	// BlendNormalizedLinear averages rotation and translation separately from
	// scale, then recomposes, so blending differently scaled poses does not
	// shrink the result.
	BlendNormalizedLinear
)

// String returns the config name of the blend type.
func (b BlendType) String() string {
	switch b {
	case BlendLinear:
		return "linear"
	case BlendNormalizedLinear:
		return "normalized_linear"
	default:
		return fmt.Sprintf("Unknown(%d)", int(b))
	}
}

// Valid reports whether b is one of the supported blend types.
func (b BlendType) Valid() bool {
	return b == BlendLinear || b == BlendNormalizedLinear
}

// ParseBlendType accepts "linear" or "normalized_linear", ignoring case and
// treating '-' like '_'.
func ParseBlendType(s string) (BlendType, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "linear":
		return BlendLinear, nil
	case "normalized_linear":
		return BlendNormalizedLinear, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidBlendType, s)
}

// MarshalText implements encoding.TextMarshaler.
func (b BlendType) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlendType, int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BlendType) UnmarshalText(text []byte) error {
	v, err := ParseBlendType(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Options are the defaults applied to newly created bundles.
type Options struct {
	BlendType          BlendType
	InterpolateFrames  bool // Frame blend flag for new bundles
	RestoreInitialPose bool // Parts with no animation return to their initial value
	AsyncBind          bool // LoadBindAnim may bind in the background
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		BlendType:          BlendNormalizedLinear,
		InterpolateFrames:  false,
		RestoreInitialPose: true,
		AsyncBind:          true,
	}
}

var (
	optionsMu      sync.RWMutex
	currentOptions = DefaultOptions()
)

// SetDefaultOptions replaces the defaults for bundles created afterwards.
// An invalid blend type panics.
func SetDefaultOptions(o Options) {
	if !o.BlendType.Valid() {
		panic(fmt.Sprintf("anim: invalid blend type %d", int(o.BlendType)))
	}
	optionsMu.Lock()
	currentOptions = o
	optionsMu.Unlock()
}

// CurrentOptions returns the defaults in effect.
func CurrentOptions() Options {
	optionsMu.RLock()
	defer optionsMu.RUnlock()
	return currentOptions
}
