package config

import (
	"flag"
	"fmt"

	"github.com/Faultbox/midgard-anim/internal/engine/anim"
)

var (
	flagConfig      = flag.String("config", "", "Path to config file")
	flagDebug       = flag.Bool("debug", false, "Enable debug logging")
	flagBlendType   = flag.String("blend-type", "", "Blend type: linear or normalized_linear")
	flagInterpolate = flag.Bool("interpolate", false, "Interpolate between frames")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the arguments left after the global flags.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) error {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagBlendType != "" {
		bt, err := anim.ParseBlendType(*flagBlendType)
		if err != nil {
			return fmt.Errorf("-blend-type: %w", err)
		}
		cfg.Anim.BlendType = bt
	}
	if *flagInterpolate {
		cfg.Anim.InterpolateFrames = true
	}
	return nil
}
