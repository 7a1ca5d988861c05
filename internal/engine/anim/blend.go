package anim

import (
	"fmt"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// blendChannel returns the channel the entry's control bound on m, or nil.
// A pending control has no channel yet. An index past the channel array
// means the bind step lost track of this part, which is fatal.
func (m *MovingPartBase) blendChannel(e blendEntry) AnimChannel {
	if e.weight == 0 {
		panic(fmt.Sprintf("anim: zero weight stored for control %q", e.control.Name()))
	}
	idx := e.control.ChannelIndex()
	if idx < 0 {
		return nil
	}
	if idx >= len(m.channels) {
		panic(fmt.Sprintf("anim: part %q has %d channels, control %q uses index %d",
			m.name, len(m.channels), e.control.Name(), idx))
	}
	return m.channels[idx]
}

func (m *MovingPartMatrix) blendValue(b *PartBundle) {
	if m.forced != nil {
		m.value = m.forced.(MatrixChannel).Value(0)
		return
	}

	if len(b.blend) == 0 {
		if b.restoreInitialPose {
			m.value = m.initial
		}
		return
	}

	if m.effectiveControl != nil && !b.frameBlend {
		ch := m.effectiveChannel.(MatrixChannel)
		m.value = ch.Value(m.effectiveControl.Frame())
		return
	}

	switch b.blendType {
	case BlendLinear:
		m.blendLinear(b)
	case BlendNormalizedLinear:
		m.blendNormalizedLinear(b)
	default:
		panic(fmt.Sprintf("anim: unsupported blend type %d", int(b.blendType)))
	}
}

// sample passes the value at the control's frame to add with its weight.
// With frame blending the weight is split with the next frame by Frac.
func sample[T any](b *PartBundle, c *AnimControl, weight float32, get func(frame int) T, add func(v T, w float32)) {
	if !b.frameBlend {
		add(get(c.Frame()), weight)
		return
	}
	frac := float32(c.Frac())
	add(get(c.Frame()), weight*(1-frac))
	add(get(c.NextFrame()), weight*frac)
}

func (m *MovingPartMatrix) blendLinear(b *PartBundle) {
	var net math.Mat4
	var netWeight float32
	contributed := false

	for _, e := range b.blend {
		ch, _ := m.blendChannel(e).(MatrixChannel)
		if ch == nil {
			continue
		}
		sample(b, e.control, e.weight, ch.Value, func(v math.Mat4, w float32) {
			net = net.Add(v.MulScalar(w))
		})
		netWeight += e.weight
		contributed = true
	}

	if !contributed {
		if b.restoreInitialPose {
			m.value = m.initial
		}
		return
	}
	if netWeight == 0 {
		panic(fmt.Sprintf("anim: blend weights on %q sum to zero", m.name))
	}
	m.value = net.MulScalar(1 / netWeight)
}

func (m *MovingPartMatrix) blendNormalizedLinear(b *PartBundle) {
	var net math.Mat4
	var scale, shear math.Vec3
	var netWeight float32
	contributed := false

	for _, e := range b.blend {
		ch, _ := m.blendChannel(e).(MatrixChannel)
		if ch == nil {
			continue
		}
		sample(b, e.control, e.weight, ch.ValueNoScaleShear, func(v math.Mat4, w float32) {
			net = net.Add(v.MulScalar(w))
		})
		sample(b, e.control, e.weight, ch.Scale, func(v math.Vec3, w float32) {
			scale = scale.Add(v.Scale(w))
		})
		sample(b, e.control, e.weight, ch.Shear, func(v math.Vec3, w float32) {
			shear = shear.Add(v.Scale(w))
		})
		netWeight += e.weight
		contributed = true
	}

	if !contributed {
		if b.restoreInitialPose {
			m.value = m.initial
		}
		return
	}
	if netWeight == 0 {
		panic(fmt.Sprintf("anim: blend weights on %q sum to zero", m.name))
	}

	inv := 1 / netWeight
	net = net.MulScalar(inv)
	scale = scale.Scale(inv)
	shear = shear.Scale(inv)

	// The averaged rotation may carry a false scale and shear; replace them
	// with the averaged true ones.
	comp, _ := math.DecomposeMatrix(net)
	comp.Scale = scale
	comp.Shear = shear
	m.value = math.ComposeMatrix(comp)
}

// Scalars always blend linearly.
func (m *MovingPartScalar) blendValue(b *PartBundle) {
	if m.forced != nil {
		m.value = m.forced.(ScalarChannel).Value(0)
		return
	}

	if len(b.blend) == 0 {
		if b.restoreInitialPose {
			m.value = m.initial
		}
		return
	}

	if m.effectiveControl != nil && !b.frameBlend {
		ch := m.effectiveChannel.(ScalarChannel)
		m.value = ch.Value(m.effectiveControl.Frame())
		return
	}

	var net, netWeight float32
	contributed := false
	for _, e := range b.blend {
		ch, _ := m.blendChannel(e).(ScalarChannel)
		if ch == nil {
			continue
		}
		sample(b, e.control, e.weight, ch.Value, func(v float32, w float32) {
			net += v * w
		})
		netWeight += e.weight
		contributed = true
	}

	if !contributed {
		if b.restoreInitialPose {
			m.value = m.initial
		}
		return
	}
	if netWeight == 0 {
		panic(fmt.Sprintf("anim: blend weights on %q sum to zero", m.name))
	}
	m.value = net / netWeight
}
