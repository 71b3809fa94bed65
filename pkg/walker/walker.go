// Package walker scans a location's filesystem tree and produces an ordered
// list of candidate entries for the indexer, after applying IndexerRules.
package walker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/latticefs/core/pkg/log"
	"github.com/latticefs/core/pkg/types"
)

// ErrSubPathNotInLocation is returned when the requested sub_path escapes
// the location root (e.g. via ".." or a path outside the root entirely).
var ErrSubPathNotInLocation = errors.New("walker: sub_path is not inside the location")

// ErrSubPathNotDirectory is returned when sub_path resolves to a non-directory.
var ErrSubPathNotDirectory = errors.New("walker: sub_path is not a directory")

// Entry is one candidate filesystem entry discovered by a walk.
type Entry struct {
	AbsolutePath     string
	Components       []string // path components relative to the location root
	IsDir            bool
	Extension        string // lowercased, no leading dot; empty for directories
	DateCreated      time.Time
	ParentComponents []string // also nil for a direct child of the location root
	IsLocationRoot   bool     // true only for the synthesized location-root entry
}

// MaterializedPath renders the entry's canonical materialized path.
func (e Entry) MaterializedPath() (string, error) {
	return types.NewMaterializedPath(e.Components, e.IsDir)
}

// resolveSubPath validates subPath against locationRoot and returns the
// absolute directory to start walking from.
func resolveSubPath(locationRoot, subPath string) (string, error) {
	root := filepath.Clean(locationRoot)
	start := root
	if subPath != "" && subPath != "/" {
		start = filepath.Join(root, subPath)
	}

	rel, err := filepath.Rel(root, start)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrSubPathNotInLocation
	}

	info, err := os.Stat(start)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubPathNotInLocation, err)
	}
	if !info.IsDir() {
		return "", ErrSubPathNotDirectory
	}

	return start, nil
}

// Shallow lists the immediate children of subPath (one directory level,
// non-recursive), filtered by rules.
func Shallow(locationRoot, subPath string, rules []types.IndexerRule) ([]Entry, error) {
	start, err := resolveSubPath(locationRoot, subPath)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(start)
	if err != nil {
		return nil, fmt.Errorf("walker: open root %s: %w", start, err)
	}

	baseComponents := relComponents(locationRoot, start)

	var out []Entry
	for _, d := range dirEntries {
		info, err := d.Info()
		if err != nil {
			log.Logger.Warn().Err(err).Str("path", filepath.Join(start, d.Name())).Msg("walker: skipping entry, stat failed")
			continue
		}
		components := append(append([]string{}, baseComponents...), d.Name())
		entry := Entry{
			AbsolutePath:     filepath.Join(start, d.Name()),
			Components:       components,
			IsDir:            d.IsDir(),
			DateCreated:      info.ModTime(),
			ParentComponents: baseComponents,
		}
		if !d.IsDir() {
			entry.Extension = extensionOf(d.Name())
		}
		if !matchRules(entry, rules) {
			continue
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].AbsolutePath < out[j].AbsolutePath })
	return out, nil
}

// Full recursively walks subPath in pre-order, depth-first, so that every
// directory is yielded before its children. Per-entry I/O errors are logged
// and the entry is skipped; a failure to open the walk root is fatal.
func Full(locationRoot, subPath string, rules []types.IndexerRule) ([]Entry, error) {
	start, err := resolveSubPath(locationRoot, subPath)
	if err != nil {
		return nil, err
	}

	baseComponents := relComponents(locationRoot, start)
	var out []Entry

	walkErr := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == start {
				return err // the walk root itself could not be read
			}
			log.Logger.Warn().Err(err).Str("path", path).Msg("walker: skipping entry, walk error")
			return nil
		}
		if path == start {
			return nil // the walk root itself is not an entry of its own walk
		}

		info, err := d.Info()
		if err != nil {
			log.Logger.Warn().Err(err).Str("path", path).Msg("walker: skipping entry, stat failed")
			return nil
		}

		components := relComponents(locationRoot, path)
		parent := components[:len(components)-1]

		entry := Entry{
			AbsolutePath:     path,
			Components:       components,
			IsDir:            d.IsDir(),
			DateCreated:      info.ModTime(),
			ParentComponents: parent,
		}
		if !d.IsDir() {
			entry.Extension = extensionOf(d.Name())
		}

		if !matchRules(entry, rules) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		out = append(out, entry)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walker: open root %s: %w", start, walkErr)
	}

	_ = baseComponents
	return out, nil
}

func relComponents(root, path string) []string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return nil
	}
	return strings.Split(filepath.ToSlash(rel), "/")
}

func extensionOf(name string) string {
	ext := filepath.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
