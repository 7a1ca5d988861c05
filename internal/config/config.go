// Package config handles animtool configuration loading and management.
package config

import "github.com/Faultbox/midgard-anim/internal/engine/anim"

// Config holds all settings.
type Config struct {
	Anim    AnimConfig    `yaml:"anim"`
	Loader  LoaderConfig  `yaml:"loader"`
	Logging LoggingConfig `yaml:"logging"`
}

// AnimConfig holds the engine defaults applied to newly created bundles.
type AnimConfig struct {
	BlendType          anim.BlendType `yaml:"blend_type"`
	InterpolateFrames  bool           `yaml:"interpolate_frames"`   // Blend between adjacent frames
	RestoreInitialPose bool           `yaml:"restore_initial_pose"` // Unbound parts return to rest pose
	EvenAnimation      bool           `yaml:"even_animation"`       // Characters update every frame
	AsyncBind          bool           `yaml:"async_bind"`           // Bind preloaded anims in the background
}

// LoaderConfig holds rig and animation file settings.
type LoaderConfig struct {
	SearchPath []string `yaml:"search_path"` // Directories tried for relative file names
	SampleRate float32  `yaml:"sample_rate"` // Frames per second when resampling glTF animations
	Cache      bool     `yaml:"cache"`       // Share loaded animations between binds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Anim: AnimConfig{
			BlendType:          anim.BlendNormalizedLinear,
			InterpolateFrames:  false,
			RestoreInitialPose: true,
			EvenAnimation:      false,
			AsyncBind:          true,
		},
		Loader: LoaderConfig{
			SearchPath: []string{"."},
			SampleRate: 30,
			Cache:      true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Options converts the settings into engine options.
func (c AnimConfig) Options() anim.Options {
	return anim.Options{
		BlendType:          c.BlendType,
		InterpolateFrames:  c.InterpolateFrames,
		RestoreInitialPose: c.RestoreInitialPose,
		AsyncBind:          c.AsyncBind,
	}
}
