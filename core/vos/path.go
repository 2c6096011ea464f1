package vos

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// PathResolver finds candidate executables for a program name.
type PathResolver interface {
	// Resolve returns the candidate paths for name, best first. searchPath is
	// a PATH style list and dir is the directory relative names resolve
	// against.
	Resolve(name, searchPath, dir string) []string
}

// SearchPath resolves programs by searching directories on a filesystem.
type SearchPath struct {
	Fs afero.Fs
}

var _ PathResolver = (*SearchPath)(nil)

// NewSearchPath creates a resolver that looks for executables on fs.
func NewSearchPath(fs afero.Fs) *SearchPath {
	return &SearchPath{Fs: fs}
}

// NewOSSearchPath creates a resolver over the host filesystem.
func NewOSSearchPath() *SearchPath {
	return NewSearchPath(afero.NewOsFs())
}

func (sp *SearchPath) isExecutable(file string) bool {
	d, err := sp.Fs.Stat(file)
	if err != nil {
		return false
	}
	m := d.Mode()
	return !m.IsDir() && m&0111 != 0
}

func absolute(path, dir string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// Resolve implements PathResolver. A name containing a slash is used directly
// if it exists so that spawning it reports permission problems; otherwise each
// entry of searchPath is tried in order, with an empty entry meaning dir.
func (sp *SearchPath) Resolve(name, searchPath, dir string) []string {
	if name == "" {
		return nil
	}
	if strings.Contains(name, "/") {
		file := absolute(name, dir)
		if d, err := sp.Fs.Stat(file); err == nil && !d.IsDir() {
			return []string{file}
		}
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, entry := range filepath.SplitList(searchPath) {
		if entry == "" {
			// Unix shell semantics: path element "" means "."
			entry = "."
		}
		candidate := absolute(filepath.Join(entry, name), dir)
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		if sp.isExecutable(candidate) {
			out = append(out, candidate)
		}
	}
	return out
}
