package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Faultbox/midgard-anim/internal/engine/anim"
	"github.com/Faultbox/midgard-anim/pkg/bam"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCacheConcurrentLoads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "walk.yaml", heroWalk)
	c := NewCache([]string{dir}, ImportOptions{})

	const n = 8
	got := make([]*anim.AnimBundle, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := c.LoadAnim(context.Background(), "walk.yaml")
			if err != nil {
				t.Error(err)
				return
			}
			got[i] = a
		}()
	}
	wg.Wait()
	for i := range got {
		if got[i] == nil || got[i] != got[0] {
			t.Fatalf("load %d returned a different bundle", i)
		}
	}

	if _, err := c.LoadAnim(context.Background(), "walk.yaml"); err != nil {
		t.Fatal(err)
	}
	hits, misses := c.Stats()
	if hits+misses != n+1 || hits < 1 {
		t.Errorf("hits = %d misses = %d", hits, misses)
	}

	c.Evict("walk.yaml")
	again, err := c.LoadAnim(context.Background(), "walk.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if again == got[0] {
		t.Error("evicted file was not reread")
	}
}

func TestCacheSelectors(t *testing.T) {
	dir := t.TempDir()
	a := buildWalk(t)
	if err := bam.WriteFile(filepath.Join(dir, "walk.bam"), a); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "walk.txt", "")
	c := NewCache([]string{dir}, ImportOptions{})
	ctx := context.Background()

	loaded, err := c.LoadAnim(ctx, "walk.bam#hero")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.NumFrames() != a.NumFrames() {
		t.Errorf("frames = %d", loaded.NumFrames())
	}
	if names, err := c.Names(ctx, "walk.bam"); err != nil || len(names) != 1 || names[0] != "hero" {
		t.Errorf("Names = %v, %v", names, err)
	}

	tests := []struct {
		ref  string
		want error
	}{
		{"walk.bam#run", ErrNoAnimation},
		{"walk.txt", ErrUnknownFormat},
		{"missing.yaml", ErrNotFound},
	}
	for _, tt := range tests {
		if _, err := c.LoadAnim(ctx, tt.ref); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.ref, err, tt.want)
		}
	}
}

func TestCacheLoadBindAnim(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hero.yaml", heroRig)
	writeFile(t, dir, "walk.yaml", heroWalk)
	c := NewCache([]string{dir}, ImportOptions{})
	ctx := context.Background()

	ch, err := c.LoadCharacter(ctx, "hero.yaml")
	if err != nil {
		t.Fatal(err)
	}
	ctl, err := ch.Bundle(0).LoadBindAnim(ctx, c, "walk.yaml", 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	ctl.Pose(1)
	ch.Update()
	if root := ch.FindJoint("root"); !root.Net().AlmostEqual(math.Translate(1, 0, 1), eps) {
		t.Errorf("root net = %v", root.Net())
	}

	bamPath := filepath.Join(dir, "hero.bam")
	if err := bam.WriteFile(bamPath, ch); err != nil {
		t.Fatal(err)
	}
	fromBam, err := c.LoadCharacter(ctx, "hero.bam")
	if err != nil {
		t.Fatal(err)
	}
	if fromBam.FindJoint("hand") == nil {
		t.Error("bam character lost its hand")
	}
	if _, err := c.LoadCharacter(ctx, "walk.bam"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing bam: err = %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := c.LoadCharacter(canceled, "hero.yaml"); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled: err = %v", err)
	}
}
