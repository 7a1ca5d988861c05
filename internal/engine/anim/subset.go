package anim

import (
	"path"
	"strings"
)

// PartSubset restricts a bind to part of the skeleton. A part is bound if
// its name matches an include pattern, or if it inherits inclusion from its
// parent and does not match an exclude pattern. With no include patterns the
// whole tree starts included. Patterns use path.Match syntax.
type PartSubset struct {
	include []string
	exclude []string
}

// NewPartSubset returns an empty subset, which binds everything.
func NewPartSubset() *PartSubset {
	return &PartSubset{}
}

// AddIncludeJoint adds a pattern for joints that start a bound subtree.
func (s *PartSubset) AddIncludeJoint(pattern string) {
	s.include = append(s.include, pattern)
}

// AddExcludeJoint adds a pattern for joints that start an unbound subtree.
func (s *PartSubset) AddExcludeJoint(pattern string) {
	s.exclude = append(s.exclude, pattern)
}

// Append adds other's patterns to s.
func (s *PartSubset) Append(other *PartSubset) {
	if other == nil {
		return
	}
	s.include = append(s.include, other.include...)
	s.exclude = append(s.exclude, other.exclude...)
}

// IsIncludeEmpty reports whether no include pattern was given. A nil subset
// has none.
func (s *PartSubset) IsIncludeEmpty() bool {
	return s == nil || len(s.include) == 0
}

// MatchesInclude reports whether name matches an include pattern.
func (s *PartSubset) MatchesInclude(name string) bool {
	return s != nil && matchAny(s.include, name)
}

// MatchesExclude reports whether name matches an exclude pattern.
func (s *PartSubset) MatchesExclude(name string) bool {
	return s != nil && matchAny(s.exclude, name)
}

// resolve applies the subset to one part given whether its parent was
// included.
func (s *PartSubset) resolve(name string, included bool) bool {
	switch {
	case s.MatchesInclude(name):
		return true
	case s.MatchesExclude(name):
		return false
	}
	return included
}

func (s *PartSubset) String() string {
	if s == nil {
		return "PartSubset()"
	}
	var b strings.Builder
	b.WriteString("PartSubset(")
	if len(s.include) > 0 {
		b.WriteString("include: " + strings.Join(s.include, ", "))
	}
	if len(s.exclude) > 0 {
		if len(s.include) > 0 {
			b.WriteString("; ")
		}
		b.WriteString("exclude: " + strings.Join(s.exclude, ", "))
	}
	b.WriteString(")")
	return b.String()
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		ok, err := path.Match(p, name)
		if err != nil {
			// Malformed pattern: compare literally.
			ok = p == name
		}
		if ok {
			return true
		}
	}
	return false
}
