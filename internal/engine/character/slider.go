package character

import (
	"github.com/Faultbox/midgard-anim/internal/engine/anim"
)

// Slider is a scalar part, typically a morph target weight.
type Slider struct {
	anim.MovingPartScalar
}

// NewSlider creates a slider under parent resting at defaultValue.
func NewSlider(parent anim.Part, name string, defaultValue float32) *Slider {
	s := &Slider{MovingPartScalar: anim.MakeMovingPartScalar(name, defaultValue)}
	anim.AddChild(parent, s)
	return s
}

func (s *Slider) TypeName() string { return "CharacterSlider" }

func (s *Slider) MakeCopy() anim.Part {
	return &Slider{MovingPartScalar: anim.MakeMovingPartScalar(s.Name(), s.InitialValue())}
}
