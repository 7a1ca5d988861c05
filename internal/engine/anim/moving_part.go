package anim

import (
	"fmt"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// movingPart is implemented by every part that carries an animated value.
// The embedded MovingPartBase supplies base; the typed part supplies the rest.
type movingPart interface {
	Part
	base() *MovingPartBase
	blendValue(b *PartBundle)
	makeDefaultChannel() AnimChannel
	applyFreeze(comp math.Components) bool
	applyFreezeScalar(v float32) bool
	applyControl(p TransformProvider) bool
}

// MovingPartBase holds the bound channels of one animated part, indexed by
// AnimControl channel index, and an optional forced channel that overrides
// every animation.
type MovingPartBase struct {
	PartGroup

	channels []AnimChannel
	forced   AnimChannel

	// Set when exactly one control in the blend has a channel here.
	effectiveControl *AnimControl
	effectiveChannel AnimChannel
}

func (m *MovingPartBase) base() *MovingPartBase { return m }

// NumChannels returns the length of the channel array.
func (m *MovingPartBase) NumChannels() int { return len(m.channels) }

// Channel returns the channel bound at index, or nil.
func (m *MovingPartBase) Channel(index int) AnimChannel {
	if index < 0 || index >= len(m.channels) {
		return nil
	}
	return m.channels[index]
}

// ForcedChannel returns the channel installed by a freeze or control call.
func (m *MovingPartBase) ForcedChannel() AnimChannel { return m.forced }

func (m *MovingPartBase) setForcedChannel(ch AnimChannel) { m.forced = ch }

func (m *MovingPartBase) clearForcedChannel() { m.forced = nil }

func (m *MovingPartBase) bindChannel(mp movingPart, anim AnimNode, index, jointIndex int, included bool, bound *BitArray) {
	for len(m.channels) <= index {
		m.channels = append(m.channels, nil)
	}
	if m.channels[index] != nil {
		panic(fmt.Sprintf("anim: part %q already has a channel at index %d", m.name, index))
	}

	if !included {
		bound.ClearBit(jointIndex)
		return
	}

	var ch AnimChannel
	if anim != nil {
		ch, _ = anim.(AnimChannel)
	}
	if ch == nil {
		ch = mp.makeDefaultChannel()
	}
	m.channels[index] = ch
	bound.SetBit(jointIndex)
}

func (m *MovingPartBase) needsUpdate(b *PartBundle, animChanged bool) bool {
	if animChanged {
		return true
	}
	for _, e := range b.blend {
		ch := m.Channel(e.control.ChannelIndex())
		if ch != nil && e.control.channelHasChanged(ch, b.frameBlend) {
			return true
		}
	}
	return m.forced != nil && m.forced.HasChanged(0, 0, 0, 0)
}

func (m *MovingPartBase) determineEffective(b *PartBundle) {
	m.effectiveControl = nil
	m.effectiveChannel = nil

	var control *AnimControl
	var channel AnimChannel
	n := 0
	for _, e := range b.blend {
		if ch := m.Channel(e.control.ChannelIndex()); ch != nil {
			control, channel = e.control, ch
			n++
		}
	}
	if n == 1 {
		m.effectiveControl = control
		m.effectiveChannel = channel
	}
}

// MovingPartMatrix is a part whose value is a transform.
type MovingPartMatrix struct {
	MovingPartBase
	value   math.Mat4
	initial math.Mat4
}

// NewMovingPartMatrix creates a matrix part under parent holding initial.
func NewMovingPartMatrix(parent Part, name string, initial math.Mat4) *MovingPartMatrix {
	m := &MovingPartMatrix{}
	*m = MakeMovingPartMatrix(name, initial)
	AddChild(parent, m)
	return m
}

// MakeMovingPartMatrix returns an unattached value for embedding.
func MakeMovingPartMatrix(name string, initial math.Mat4) MovingPartMatrix {
	return MovingPartMatrix{
		MovingPartBase: MovingPartBase{PartGroup: PartGroup{name: name}},
		value:          initial,
		initial:        initial,
	}
}

func (m *MovingPartMatrix) TypeName() string     { return "MovingPartMatrix" }
func (m *MovingPartMatrix) ValueType() ValueType { return ValueMatrix }

// Value returns the transform computed by the last update.
func (m *MovingPartMatrix) Value() math.Mat4 { return m.value }

// InitialValue returns the rest transform.
func (m *MovingPartMatrix) InitialValue() math.Mat4 { return m.initial }

// SetInitialValue replaces the rest transform. Channels already bound to
// it keep the old value until rebound.
func (m *MovingPartMatrix) SetInitialValue(v math.Mat4) { m.initial = v }

func (m *MovingPartMatrix) MakeCopy() Part {
	c := MakeMovingPartMatrix(m.name, m.initial)
	c.value = m.value
	return &c
}

func (m *MovingPartMatrix) makeDefaultChannel() AnimChannel {
	return NewAnimChannelMatrixFixedValue(m.name, m.initial)
}

func (m *MovingPartMatrix) applyFreeze(comp math.Components) bool {
	m.setForcedChannel(NewAnimChannelMatrixFixed(m.name, comp))
	return true
}

func (m *MovingPartMatrix) applyFreezeScalar(float32) bool { return false }

func (m *MovingPartMatrix) applyControl(p TransformProvider) bool {
	ch := NewAnimChannelMatrixDynamic(m.name)
	ch.SetProvider(p)
	m.setForcedChannel(ch)
	return true
}

// MovingPartScalar is a part whose value is a single float.
type MovingPartScalar struct {
	MovingPartBase
	value   float32
	initial float32
}

// NewMovingPartScalar creates a scalar part under parent holding initial.
func NewMovingPartScalar(parent Part, name string, initial float32) *MovingPartScalar {
	m := &MovingPartScalar{}
	*m = MakeMovingPartScalar(name, initial)
	AddChild(parent, m)
	return m
}

// MakeMovingPartScalar returns an unattached value for embedding.
func MakeMovingPartScalar(name string, initial float32) MovingPartScalar {
	return MovingPartScalar{
		MovingPartBase: MovingPartBase{PartGroup: PartGroup{name: name}},
		value:          initial,
		initial:        initial,
	}
}

func (m *MovingPartScalar) TypeName() string     { return "MovingPartScalar" }
func (m *MovingPartScalar) ValueType() ValueType { return ValueScalar }

// Value returns the scalar computed by the last update.
func (m *MovingPartScalar) Value() float32 { return m.value }

// InitialValue returns the rest value.
func (m *MovingPartScalar) InitialValue() float32 { return m.initial }

// SetInitialValue replaces the rest value.
func (m *MovingPartScalar) SetInitialValue(v float32) { m.initial = v }

func (m *MovingPartScalar) MakeCopy() Part {
	c := MakeMovingPartScalar(m.name, m.initial)
	c.value = m.value
	return &c
}

func (m *MovingPartScalar) makeDefaultChannel() AnimChannel {
	return NewAnimChannelScalarFixed(m.name, m.initial)
}

// A scalar frozen to a transform takes its x scale.
func (m *MovingPartScalar) applyFreeze(comp math.Components) bool {
	return m.applyFreezeScalar(comp.Scale.X)
}

func (m *MovingPartScalar) applyFreezeScalar(v float32) bool {
	m.setForcedChannel(NewAnimChannelScalarFixed(m.name, v))
	return true
}

// A scalar controlled by a transform follows its x translation.
func (m *MovingPartScalar) applyControl(p TransformProvider) bool {
	ch := NewAnimChannelScalarDynamic(m.name)
	ch.SetProvider(ScalarFunc(func() float32 { return p.Transform().Translation().X }))
	m.setForcedChannel(ch)
	return true
}
