package bam

import (
	"errors"
	"fmt"
)

// File-level errors.
var (
	ErrInvalidMagic       = errors.New("invalid bam magic")
	ErrUnsupportedVersion = errors.New("unsupported bam version")
	ErrUnknownType        = errors.New("unknown bam object type")
	ErrBadPointer         = errors.New("bam pointer to missing object")
	ErrUnexpectedType     = errors.New("bam object has unexpected type")
)

// Magic opens every file.
var Magic = [6]byte{'p', 'b', 'j', 0, '\n', '\r'}

// Version is the file format version.
type Version struct {
	Major uint16
	Minor uint16
}

// CurrentVersion is what Writer emits unless told otherwise.
var CurrentVersion = Version{Major: 6, Minor: 45}

// MinVersion is the oldest version Reader accepts.
var MinVersion = Version{Major: 6, Minor: 0}

// String returns the version as "Major.Minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if version is >= major.minor.
func (v Version) AtLeast(major, minor uint16) bool {
	if v.Major > major {
		return true
	}
	return v.Major == major && v.Minor >= minor
}

func (v Version) supported() bool {
	return v.Major == CurrentVersion.Major && v.Minor >= MinVersion.Minor && v.Minor <= CurrentVersion.Minor
}
