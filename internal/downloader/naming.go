package downloader

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// fallbackName is used when a URL has no usable final path segment.
const fallbackName = "download.pdf"

// Namer picks collision-free destination paths. Names handed out during a
// session stay reserved until released, so two workers resolving the same
// base name get different paths. Collisions with files created by other
// processes between Resolve and file creation are not detected.
type Namer struct {
	mu       sync.Mutex
	reserved map[string]struct{}
}

func NewNamer() *Namer {
	return &Namer{reserved: make(map[string]struct{})}
}

// Resolve returns dir/<base>, or dir/<name>_N<ext> with the smallest N ≥ 1
// that is neither on disk nor reserved, and reserves it.
func (n *Namer) Resolve(dir, rawURL string) string {
	base := BaseName(rawURL)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	n.mu.Lock()
	defer n.mu.Unlock()

	candidate := filepath.Join(dir, base)
	for i := 1; n.taken(candidate); i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, i, ext))
	}
	n.reserved[candidate] = struct{}{}
	return candidate
}

// Release drops the reservation on p, typically after a failed download
// removed the file.
func (n *Namer) Release(p string) {
	n.mu.Lock()
	delete(n.reserved, p)
	n.mu.Unlock()
}

func (n *Namer) taken(p string) bool {
	if _, ok := n.reserved[p]; ok {
		return true
	}
	_, err := os.Lstat(p)
	return err == nil
}

// BaseName returns the unescaped last path segment of rawURL.
func BaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallbackName
	}

	base := path.Base(u.Path)
	switch base {
	case "", ".", "/", "..":
		return fallbackName
	}
	// Backslash is a separator on Windows.
	return strings.ReplaceAll(base, "\\", "_")
}
