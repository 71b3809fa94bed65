package walker

import (
	"os"
	"path/filepath"

	"github.com/latticefs/core/pkg/types"
)

// matchRules applies every rule to entry. Within one Kind any matching rule
// decides (an accept rule that matches accepts, a reject rule that matches
// rejects); distinct kinds are AND'd. An empty rule set matches everything.
func matchRules(entry Entry, rules []types.IndexerRule) bool {
	if len(rules) == 0 {
		return true
	}

	byKind := make(map[types.IndexerRuleKind][]types.IndexerRule)
	for _, r := range rules {
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}

	for kind, group := range byKind {
		if !matchKindGroup(kind, group, entry) {
			return false
		}
	}
	return true
}

func matchKindGroup(kind types.IndexerRuleKind, group []types.IndexerRule, entry Entry) bool {
	reject := kind == types.RuleRejectFilesByGlob || kind == types.RuleRejectIfChildrenDirectoriesArePresent
	for _, r := range group {
		ok := matchOne(kind, r, entry)
		if reject && !ok {
			return false
		}
		if !reject && ok {
			return true
		}
	}
	return reject
}

func matchOne(kind types.IndexerRuleKind, r types.IndexerRule, entry Entry) bool {
	name := ""
	if len(entry.Components) > 0 {
		name = entry.Components[len(entry.Components)-1]
	}

	switch kind {
	case types.RuleAcceptFilesByGlob:
		if entry.IsDir {
			return true // directories are never excluded by a file glob rule
		}
		return matchAnyGlob(r.Globs, name)

	case types.RuleRejectFilesByGlob:
		if entry.IsDir {
			return true
		}
		return !matchAnyGlob(r.Globs, name)

	case types.RuleAcceptIfChildrenDirectoriesArePresent:
		if !entry.IsDir {
			return true
		}
		return hasAnyChildDir(entry.AbsolutePath, r.DirNames)

	case types.RuleRejectIfChildrenDirectoriesArePresent:
		if !entry.IsDir {
			return true
		}
		return !hasAnyChildDir(entry.AbsolutePath, r.DirNames)

	default:
		return true
	}
}

func matchAnyGlob(globs []string, name string) bool {
	for _, g := range globs {
		if ok, err := filepath.Match(g, name); err == nil && ok {
			return true
		}
	}
	return false
}

func hasAnyChildDir(dirPath string, names []string) bool {
	for _, name := range names {
		if info, err := os.Stat(filepath.Join(dirPath, name)); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}
