package vfs

import (
	"testing"
)

func TestParsePath(t *testing.T) {
	cases := []struct {
		input    string
		expected string
		invalid  bool
	}{
		{input: "/", expected: "/"},
		{input: "", expected: "/"},
		{input: "/a/b/c", expected: "/a/b/c"},
		{input: "a/b/c", expected: "/a/b/c"},
		{input: "/a//b/", expected: "/a/b"},
		{input: "///", expected: "/"},
		{input: "/a/./b", invalid: true},
		{input: "/a/../b", invalid: true},
	}

	for _, c := range cases {
		t.Run(c.input, func(t *testing.T) {
			p, err := ParsePath(c.input)
			if c.invalid {
				if err == nil {
					t.Errorf("ParsePath(%q): expected an error, got '%s'", c.input, p)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath(%q): %+v", c.input, err)
			}
			if e, g := c.expected, p.String(); e != g {
				t.Errorf("ParsePath(%q): expected '%s', got '%s'", c.input, e, g)
			}
		})
	}
}

func TestPathNavigation(t *testing.T) {
	p := MustParsePath("/a/b/c.txt")

	if p.IsRoot() {
		t.Errorf("'/a/b/c.txt' is not root")
	}
	if e, g := "c.txt", p.Filename(); e != g {
		t.Errorf("Filename: expected '%s', got '%s'", e, g)
	}
	if e, g := "/a/b", p.Parent().String(); e != g {
		t.Errorf("Parent: expected '%s', got '%s'", e, g)
	}
	if e, g := 3, p.Depth(); e != g {
		t.Errorf("Depth: expected %d, got %d", e, g)
	}

	if !Root.IsRoot() {
		t.Errorf("Root should be root")
	}
	if !Root.Parent().IsRoot() {
		t.Errorf("parent of root is root")
	}
	if e, g := "/", Root.String(); e != g {
		t.Errorf("Root.String: expected '%s', got '%s'", e, g)
	}
}

func TestPathJoin(t *testing.T) {
	base := MustParsePath("/a")

	joined := base.Join("b").JoinAll([]string{"c", "d"})
	if e, g := "/a/b/c/d", joined.String(); e != g {
		t.Errorf("Join chain: expected '%s', got '%s'", e, g)
	}

	// Join never mutates the receiver.
	if e, g := "/a", base.String(); e != g {
		t.Errorf("base after Join: expected '%s', got '%s'", e, g)
	}
}

func TestPathPrefixes(t *testing.T) {
	base := MustParsePath("/a/b")
	nested := MustParsePath("/a/b/c")
	sibling := MustParsePath("/a/x")

	if !nested.HasPrefix(base) || !base.HasPrefix(base) {
		t.Errorf("HasPrefix should hold for nested and equal paths")
	}
	if sibling.HasPrefix(base) {
		t.Errorf("'/a/x' does not have '/a/b' as prefix")
	}
	if !nested.StrictlyUnder(base) {
		t.Errorf("'/a/b/c' is strictly under '/a/b'")
	}
	if base.StrictlyUnder(base) {
		t.Errorf("a path is not strictly under itself")
	}

	if e, g := "/c", nested.TrimPrefix(base).String(); e != g {
		t.Errorf("TrimPrefix: expected '%s', got '%s'", e, g)
	}
}

func TestPathEquality(t *testing.T) {
	if !MustParsePath("/a/b").Equal(MustParsePath("a/b/")) {
		t.Errorf("equal paths with different spellings should compare equal")
	}
	if MustParsePath("/a/b").Equal(MustParsePath("/a")) {
		t.Errorf("paths of different depth are not equal")
	}
}
