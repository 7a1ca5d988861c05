package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/internal/engine/character"
	"github.com/Faultbox/midgard-anim/internal/engine/clock"
	"github.com/Faultbox/midgard-anim/internal/loader"
	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/bam"
)

var errUsage = errors.New("bad arguments")

func usage(line string) error {
	return fmt.Errorf("%w: usage: animtool %s", errUsage, line)
}

func (t *tool) cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	values := fs.Bool("values", false, "Print the rest pose of every part")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return usage("info [-values] <file>")
	}
	file := fs.Arg(0)
	fmt.Fprintf(t.out, "File:   %s (%s)\n", file, loader.DetectFormat(file))

	found := false
	if c, err := t.cache.LoadCharacter(t.ctx, file); err == nil {
		found = true
		printCharacter(t.out, c, *values)
	} else if !errors.Is(err, loader.ErrNoRig) && !errors.Is(err, loader.ErrInvalidFile) {
		return err
	}

	names, err := t.cache.Names(t.ctx, file)
	if err != nil && !errors.Is(err, loader.ErrInvalidFile) {
		return err
	}
	for _, name := range names {
		found = true
		a, err := t.cache.LoadAnim(t.ctx, file+"#"+name)
		if err != nil {
			return err
		}
		printAnim(t.out, name, a)
	}
	if !found {
		return fmt.Errorf("%w: %s", loader.ErrNoAnimation, file)
	}
	return nil
}

func printCharacter(w io.Writer, c *character.Character, values bool) {
	fmt.Fprintf(w, "Character: %s (%d bundles)\n", c.Name(), c.NumBundles())
	for _, b := range c.Bundles() {
		fmt.Fprintf(w, "  blend %s, anim blend %v, frame blend %v\n",
			b.BlendType(), b.AnimBlendFlag(), b.FrameBlendFlag())
		if p := b.AnimPreload(); p != nil {
			for _, r := range p.Anims() {
				fmt.Fprintf(w, "  preload %-16s %6.2f fps %5d frames\n", r.Basename, r.BaseFrameRate, r.NumFrames)
			}
		}
	}
	if values {
		c.WritePartValues(w)
	} else {
		c.WriteParts(w)
	}
}

func printAnim(w io.Writer, name string, a *anim.AnimBundle) {
	fmt.Fprintf(w, "Animation: %s (root %s) %.2f fps, %d frames\n", name, a.Name(), a.BaseFrameRate(), a.NumFrames())
	var walk func(n anim.AnimNode, depth int)
	walk = func(n anim.AnimNode, depth int) {
		for _, c := range n.Children() {
			fmt.Fprintf(w, "%*s%s %s\n", 2*depth+2, "", c.TypeName(), c.Name())
			walk(c, depth+1)
		}
	}
	walk(a, 0)
}

func parseWeights(s string, n int) ([]float32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%w: %d weights for %d animations", errUsage, len(parts), n)
	}
	w := make([]float32, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("%w: weight %q", errUsage, p)
		}
		w[i] = float32(v)
	}
	return w, nil
}

func (t *tool) cmdPlay(args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	fps := fs.Float64("fps", 30, "Samples per second of the printed pose")
	steps := fs.Int("steps", 10, "Number of samples")
	loop := fs.Bool("loop", false, "Loop instead of playing once")
	rate := fs.Float64("rate", 1, "Play rate")
	weights := fs.String("weights", "", "Comma-separated blend weights, one per animation")
	joint := fs.String("joint", "", "Print only this joint's net transform")
	fs.Parse(args)
	if fs.NArg() < 2 || *fps <= 0 {
		return usage("play [options] <rig> <anim>...")
	}
	refs := fs.Args()[1:]
	w, err := parseWeights(*weights, len(refs))
	if err != nil {
		return err
	}

	clk := clock.NewManual(0)
	defer clock.SetDefault(clock.SetDefault(clk))

	c, err := t.cache.LoadCharacter(t.ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	c.SetClock(clk)
	c.SetEvenAnimation(t.cfg.Anim.EvenAnimation)
	b := c.Bundle(0)
	blend := len(refs) > 1 || w != nil
	if blend {
		b.SetAnimBlendFlag(true)
	}

	controls := make([]*anim.AnimControl, len(refs))
	for i, ref := range refs {
		ctl, err := b.LoadBindAnim(t.ctx, t.cache, ref, 0, nil, true)
		if err != nil {
			return err
		}
		controls[i] = ctl
	}
	if err := b.WaitPending(t.ctx); err != nil {
		return err
	}
	for i, ctl := range controls {
		ctl.SetPlayRate(*rate)
		if *loop {
			ctl.Loop(true)
		} else {
			ctl.Play()
		}
		switch {
		case w != nil:
			b.SetControlEffect(ctl, w[i])
		case blend:
			b.SetControlEffect(ctl, 1/float32(len(controls)))
		}
		logger.Debug("playing", zap.String("anim", refs[i]), zap.Stringer("control", ctl))
	}

	var target *character.Joint
	if *joint != "" {
		if target = c.FindJoint(*joint); target == nil {
			return fmt.Errorf("%w: no joint %q", errUsage, *joint)
		}
	}

	dt := 1 / *fps
	for range *steps {
		changed := c.Update()
		fmt.Fprintf(t.out, "t=%.3f frame=%d changed=%v\n", clk.FrameTime(), controls[0].Frame(), changed)
		if target != nil {
			fmt.Fprintf(t.out, "  %s net %v\n", target.Name(), target.Net())
		} else {
			c.WritePartValues(t.out)
		}
		clk.Advance(dt)
	}
	return nil
}

func (t *tool) cmdConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	kind := fs.String("kind", "anim", "What to convert: rig or anim")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return usage("convert [-kind rig|anim] <in> <out>")
	}
	in, out := fs.Arg(0), fs.Arg(1)

	switch *kind {
	case "rig":
		c, err := t.cache.LoadCharacter(t.ctx, in)
		if err != nil {
			return err
		}
		return writeCharacter(out, c)
	case "anim":
		a, err := t.cache.LoadAnim(t.ctx, in)
		if err != nil {
			return err
		}
		return writeAnim(out, a)
	}
	return fmt.Errorf("%w: kind %q", errUsage, *kind)
}

func writeCharacter(path string, c *character.Character) error {
	switch loader.DetectFormat(path) {
	case loader.FormatBam:
		return bam.WriteFile(path, c)
	case loader.FormatYAML:
		rf, err := loader.RigFileOf(c)
		if err != nil {
			return err
		}
		data, err := rf.Marshal()
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	}
	return fmt.Errorf("%w: cannot write %s", loader.ErrUnknownFormat, path)
}

func writeAnim(path string, a *anim.AnimBundle) error {
	switch loader.DetectFormat(path) {
	case loader.FormatBam:
		return bam.WriteFile(path, a)
	case loader.FormatYAML:
		af, err := loader.AnimFileOf(a)
		if err != nil {
			return err
		}
		data, err := af.Marshal()
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	}
	return fmt.Errorf("%w: cannot write %s", loader.ErrUnknownFormat, path)
}

func (t *tool) cmdPreload(args []string) error {
	fs := flag.NewFlagSet("preload", flag.ExitOnError)
	output := fs.String("o", "", "Output rig file (default: rewrite the input)")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return usage("preload [-o out] <rig> <anim>...")
	}
	rig := fs.Arg(0)
	out := *output
	if out == "" {
		out = rig
	}

	c, err := t.cache.LoadCharacter(t.ctx, rig)
	if err != nil {
		return err
	}
	b := c.Bundle(0)
	table := b.AnimPreload()
	if table == nil {
		table = anim.NewAnimPreloadTable()
	} else {
		table = table.Clone()
	}
	for _, ref := range fs.Args()[1:] {
		a, err := t.cache.LoadAnim(t.ctx, ref)
		if err != nil {
			return err
		}
		name := anim.PreloadBasename(ref)
		if i := table.FindAnim(name); i >= 0 {
			table.RemoveAnim(i)
		}
		table.AddAnim(name, float32(a.BaseFrameRate()), a.NumFrames())
		fmt.Fprintf(t.out, "%-16s %6.2f fps %5d frames\n", name, a.BaseFrameRate(), a.NumFrames())
	}
	b.SetAnimPreload(table)
	return writeCharacter(out, c)
}

func (t *tool) cmdConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	output := fs.String("o", "", "Write to this file instead of the user config directory")
	fs.Parse(args)
	if fs.NArg() != 0 {
		return usage("config [-o file]")
	}
	if *output == "" {
		if err := t.cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintf(t.out, "Saved %s\n", filepath.Join(config.ConfigDir(), config.FileName))
		return nil
	}
	if err := t.cfg.SaveTo(*output); err != nil {
		return err
	}
	fmt.Fprintf(t.out, "Saved %s\n", *output)
	return nil
}
