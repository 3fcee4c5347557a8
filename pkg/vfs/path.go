package vfs

import (
	"strings"

	"github.com/pkg/errors"
)

// Path is an immutable, normalized POSIX-style path value: an ordered
// sequence of non-empty name segments. The root path has zero segments.
type Path struct {
	segments []string
}

// Root is the empty path "/".
var Root = Path{}

// ParsePath normalizes and validates a string path. Leading/trailing
// slashes are trimmed and "//" collapses; a segment that is empty, ".",
// or ".." is rejected.
func ParsePath(s string) (Path, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return Root, nil
	}

	parts := strings.Split(s, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if part == "." || part == ".." {
			return Path{}, errors.Errorf("invalid path segment %q in %q", part, s)
		}
		segments = append(segments, part)
	}

	return Path{segments: segments}, nil
}

// MustParsePath is ParsePath but panics on invalid input. Intended for
// literals known at compile time (tests, constants).
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsRoot reports whether p has no segments.
func (p Path) IsRoot() bool {
	return len(p.segments) == 0
}

// Parent returns the path one level up. Parent of root is root.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return p
	}
	return Path{segments: p.segments[:len(p.segments)-1]}
}

// Filename returns the last segment, or "" for root.
func (p Path) Filename() string {
	if p.IsRoot() {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Join appends a single name segment. name must not contain "/".
func (p Path) Join(name string) Path {
	segments := make([]string, len(p.segments), len(p.segments)+1)
	copy(segments, p.segments)
	segments = append(segments, name)
	return Path{segments: segments}
}

// JoinAll appends a sequence of name segments.
func (p Path) JoinAll(names []string) Path {
	segments := make([]string, len(p.segments), len(p.segments)+len(names))
	copy(segments, p.segments)
	segments = append(segments, names...)
	return Path{segments: segments}
}

// Segments returns a defensive copy of the path's name segments.
func (p Path) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

// String renders the path with a leading "/", segments joined by "/",
// and no trailing "/" except for root.
func (p Path) String() string {
	if p.IsRoot() {
		return "/"
	}
	return "/" + strings.Join(p.segments, "/")
}

// Equal reports segment-wise equality.
func (p Path) Equal(other Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i, s := range p.segments {
		if s != other.segments[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p is equal to prefix or strictly nested
// under it.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.segments) > len(p.segments) {
		return false
	}
	for i, s := range prefix.segments {
		if p.segments[i] != s {
			return false
		}
	}
	return true
}

// StrictlyUnder reports whether p is nested strictly below prefix (not
// equal to it).
func (p Path) StrictlyUnder(prefix Path) bool {
	return p.HasPrefix(prefix) && len(p.segments) > len(prefix.segments)
}

// TrimPrefix returns p with the leading segments of prefix removed. It
// panics if p does not have prefix as a prefix; callers must check
// HasPrefix first.
func (p Path) TrimPrefix(prefix Path) Path {
	if !p.HasPrefix(prefix) {
		panic(errors.Errorf("%q is not a prefix of %q", prefix, p))
	}
	return Path{segments: p.segments[len(prefix.segments):]}
}

// Depth returns the number of segments.
func (p Path) Depth() int {
	return len(p.segments)
}
