package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// ExpandPath replaces ~ and $HOME with the user's home directory and makes
// the result absolute against the working directory.
func ExpandPath(path string) (string, error) {
	if strings.Contains(path, "~") || strings.Contains(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", path, err)
		}
		path = strings.ReplaceAll(path, "$HOME", home)
		path = strings.ReplaceAll(path, "~", home)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return abs, nil
}

// Whitelist matches file names against glob patterns. An empty whitelist
// matches everything.
type Whitelist struct {
	globs []glob.Glob
}

// NewWhitelist compiles patterns such as "*.csv" or "export-*.json".
func NewWhitelist(patterns ...string) (*Whitelist, error) {
	w := &Whitelist{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("whitelist pattern %q: %w", p, err)
		}
		w.globs = append(w.globs, g)
	}
	return w, nil
}

// Match reports whether the base name of path is whitelisted.
func (w *Whitelist) Match(path string) bool {
	if w == nil || len(w.globs) == 0 {
		return true
	}
	name := filepath.Base(path)
	for _, g := range w.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Scan expands path and returns the files to import. A file named directly
// is always returned; a directory is walked recursively and only the files
// the whitelist matches are kept. Hidden files and directories are skipped.
func Scan(path string, w *Whitelist) ([]string, error) {
	root, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && w.Match(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return files, nil
}
