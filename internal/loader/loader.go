// Package loader reads rigs and animations from disk.
//
// These formats are understood, chosen by file extension:
//
//	.bam          objects written by pkg/bam
//	.yaml, .yml   the rig and animation documents in this package
//	.gltf, .glb   glTF 2.0 skins and animations
//	.rsm          Ragnarok Online node-animated models, version 1.x
//
// A file holding several animations is addressed as "file#name".
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Faultbox/midgard-anim/internal/logger"
)

var log = logger.Named("loader")

var (
	ErrUnknownFormat = errors.New("unknown file format")
	ErrNotFound      = errors.New("file not found")
	ErrNoAnimation   = errors.New("no animation in file")
	ErrNoRig         = errors.New("no rig in file")
	ErrInvalidFile   = errors.New("invalid file")
)

// Format is a file type recognized by extension.
type Format int

const (
	FormatUnknown Format = iota
	FormatBam
	FormatYAML
	FormatGLTF
	FormatRSM
)

func (f Format) String() string {
	switch f {
	case FormatBam:
		return "bam"
	case FormatYAML:
		return "yaml"
	case FormatGLTF:
		return "gltf"
	case FormatRSM:
		return "rsm"
	}
	return "unknown"
}

// DetectFormat returns the format of path from its extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bam":
		return FormatBam
	case ".yaml", ".yml":
		return FormatYAML
	case ".gltf", ".glb":
		return FormatGLTF
	case ".rsm":
		return FormatRSM
	}
	return FormatUnknown
}

// SplitSelector splits "file#name" into its parts. name is empty when no
// selector is present.
func SplitSelector(ref string) (file, name string) {
	if i := strings.LastIndexByte(ref, '#'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

// Resolve finds name in the search path. Absolute names and names that exist
// relative to the working directory are returned as they are.
func Resolve(searchPath []string, name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return name, nil
	}
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	for _, dir := range searchPath {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched %s)", ErrNotFound, name, strings.Join(searchPath, ", "))
}

