// animtool inspects, plays and converts skeletal rigs and animations.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/internal/loader"
	"github.com/Faultbox/midgard-anim/internal/logger"
)

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Sugar.Debugf("Config: %+v", cfg)

	anim.SetDefaultOptions(cfg.Anim.Options())
	t := &tool{cfg: cfg, cache: newCache(cfg), ctx: context.Background(), out: os.Stdout}

	command, rest := args[0], args[1:]
	switch command {
	case "info":
		err = t.cmdInfo(rest)
	case "play":
		err = t.cmdPlay(rest)
	case "convert":
		err = t.cmdConvert(rest)
	case "preload":
		err = t.cmdPreload(rest)
	case "config":
		err = t.cmdConfig(rest)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCache(cfg *config.Config) *loader.Cache {
	c := loader.NewCache(cfg.Loader.SearchPath, loader.ImportOptions{SampleRate: cfg.Loader.SampleRate})
	c.SetRetain(cfg.Loader.Cache)
	return c
}

// tool carries what every command needs.
type tool struct {
	cfg   *config.Config
	cache *loader.Cache
	ctx   context.Context
	out   io.Writer
}

func printUsage() {
	fmt.Println(`animtool - skeletal animation utility

Usage:
  animtool [global options] <command> [options]

Commands:
  info <file>                          Show the rig and animations in a file
  play [options] <rig> <anim>...       Bind animations and print the pose over time
  convert [options] <in> <out>         Convert a rig or animation between formats
  preload [options] <rig> <anim>...    Record animations in a rig's preload table
  config [-o file]                     Save the effective configuration

Global options:
  -config <file>        Config file (default: ./animtool.yaml)
  -debug                Debug logging
  -blend-type <type>    linear or normalized_linear
  -interpolate          Blend between adjacent frames

Animations are named "file" or "file#name" for files holding several.
Formats: .yaml/.yml, .bam, .gltf/.glb and .rsm (input only).

Examples:
  animtool info hero.glb
  animtool play -steps 5 hero.yaml walk.yaml
  animtool play -weights 0.7,0.3 hero.yaml walk.yaml run.yaml
  animtool convert -kind anim hero.glb#wave wave.bam
  animtool preload -o hero.bam hero.yaml walk.yaml run.yaml`)
}
