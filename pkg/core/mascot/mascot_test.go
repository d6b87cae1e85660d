package mascot

import (
	"errors"
	"testing"
	"testing/fstest"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"b.PNG":     {Data: []byte("b")},
		"a.svg":     {Data: []byte("a")},
		"c.jpeg":    {Data: []byte("c")},
		"notes.txt": {Data: []byte("x")},
		"sub/d.png": {Data: []byte("d")},
		"e.webp":    {Data: []byte("e")},
		"readme.md": {Data: []byte("r")},
	}
}

func TestList(t *testing.T) {
	names, err := New(testFS()).List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"a.svg", "b.PNG", "c.jpeg", "e.webp"}
	if len(names) != len(want) {
		t.Fatalf("names=%v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names=%v, want %v", names, want)
		}
	}
}

func TestRandomUsesInjectedSource(t *testing.T) {
	c := New(testFS()).WithRand(func(n int) int { return n - 1 })
	got, err := c.Random()
	if err != nil || got != "e.webp" {
		t.Fatalf("Random=%q,%v", got, err)
	}
}

func TestEmpty(t *testing.T) {
	c := New(fstest.MapFS{"x.txt": {}})
	if _, err := c.Random(); !errors.Is(err, ErrNoMascots) {
		t.Fatalf("Random err=%v", err)
	}
}

func TestOpenRejectsTraversal(t *testing.T) {
	c := New(testFS())
	if _, err := c.Open("../etc/passwd"); err == nil {
		t.Fatalf("expected traversal rejection")
	}
	if _, err := c.Open("notes.txt"); err == nil {
		t.Fatalf("expected non-image rejection")
	}
	f, err := c.Open("a.svg")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = f.Close()
}
