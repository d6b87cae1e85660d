// Package mascot serves the avatar illustrations found in an asset directory.
package mascot

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"path"
	"sort"
	"strings"
)

// ErrNoMascots is returned when the directory holds no usable images.
var ErrNoMascots = errors.New("mascot: no mascot assets found")

var extensions = []string{".png", ".jpg", ".jpeg", ".webp", ".svg"}

// Catalog lists mascot files from a filesystem.
type Catalog struct {
	fsys fs.FS
	intN func(n int) int
}

// New returns a Catalog over fsys, typically os.DirFS(dir).
func New(fsys fs.FS) *Catalog {
	return &Catalog{fsys: fsys, intN: rand.IntN}
}

// WithRand replaces the random source used by Random.
func (c *Catalog) WithRand(intN func(n int) int) *Catalog {
	c.intN = intN
	return c
}

// List returns the mascot file names, sorted.
func (c *Catalog) List() ([]string, error) {
	entries, err := fs.ReadDir(c.fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list mascots: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Random returns one mascot uniformly at random.
func (c *Catalog) Random() (string, error) {
	names, err := c.List()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNoMascots
	}
	return names[c.intN(len(names))], nil
}

// Open opens a listed mascot for reading.
func (c *Catalog) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) || strings.Contains(name, "/") || !isImage(name) {
		return nil, fs.ErrNotExist
	}
	return c.fsys.Open(name)
}

func isImage(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}
