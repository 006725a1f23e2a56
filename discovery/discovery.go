// Package discovery scans a workspace for agent-relevant manifests, such as
// AGENTS.md instruction files and project configuration. It backs the -scan
// CLI mode and never runs during the protocol loop.
package discovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/stanza-acp/stanza/errors"
)

// Manifest is one discovered file.
type Manifest struct {
	Path    string
	Pattern string
	Size    int64
}

// Scan walks root and returns the files matching any of the glob patterns,
// sorted by path. Patterns use doublestar syntax and match paths relative to
// root.
func Scan(root string, patterns []string) ([]Manifest, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.New("invalid glob pattern '%s'", p)
		}
	}

	var found []Manifest
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable directories are skipped, not fatal.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range patterns {
			ok, _ := doublestar.Match(pattern, rel)
			if !ok {
				continue
			}
			info, err := os.Stat(path)
			if err != nil {
				return nil
			}
			found = append(found, Manifest{Path: rel, Pattern: pattern, Size: info.Size()})
			break
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan '%s'", root)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	return found, nil
}
