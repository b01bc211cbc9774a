// Package workspace resolves workspace roots and converts between
// filesystem paths and file URIs.
package workspace

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFileURI indicates a URI whose scheme is not file://.
var ErrNotFileURI = errors.New("workspace: not a file URI")

// rootMarkers are the files and directories whose presence marks a
// directory as a project root, in priority order.
var rootMarkers = []string{
	".git",
	"go.mod",
	"Cargo.toml",
	"package.json",
	"pyproject.toml",
	"setup.py",
	"Makefile",
	".hg",
	".svn",
}

// DetectRoot walks up from path looking for a project root marker.
// Returns the containing directory when no marker is found; a file
// always has some workspace.
func DetectRoot(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	dir := abs
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	start := dir

	for {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// PathToURI converts a file path to a file:// URI.
func PathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(abs),
	}
	return u.String()
}

// URIToPath converts a file:// URI to a native file path.
func URIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", ErrNotFileURI
	}

	decoded, err := url.PathUnescape(u.Path)
	if err != nil {
		return "", err
	}
	path := filepath.FromSlash(decoded)

	// Windows URIs carry the drive letter after a leading slash.
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return path, nil
}

// Contains reports whether path lives under root.
func Contains(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}
