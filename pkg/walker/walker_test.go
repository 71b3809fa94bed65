package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/latticefs/core/pkg/types"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.jpg"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "c.txt"), []byte("c"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nested", "d.txt"), []byte("d"), 0o644))
	return root
}

func TestShallowListsOneLevel(t *testing.T) {
	root := buildTree(t)

	entries, err := Shallow(root, "", nil)
	require.NoError(t, err)
	require.Len(t, entries, 3) // a.txt, b.jpg, sub/
}

func TestFullVisitsParentsBeforeChildren(t *testing.T) {
	root := buildTree(t)

	entries, err := Full(root, "", nil)
	require.NoError(t, err)

	index := make(map[string]int)
	for i, e := range entries {
		index[e.AbsolutePath] = i
	}

	require.Less(t, index[filepath.Join(root, "sub")], index[filepath.Join(root, "sub", "c.txt")])
	require.Less(t, index[filepath.Join(root, "sub")], index[filepath.Join(root, "sub", "nested")])
	require.Less(t, index[filepath.Join(root, "sub", "nested")], index[filepath.Join(root, "sub", "nested", "d.txt")])
}

func TestRejectFilesByGlobExcludesMatches(t *testing.T) {
	root := buildTree(t)

	rules := []types.IndexerRule{{Kind: types.RuleRejectFilesByGlob, Globs: []string{"*.jpg"}}}
	entries, err := Shallow(root, "", rules)
	require.NoError(t, err)

	for _, e := range entries {
		require.NotEqual(t, "jpg", e.Extension)
	}
}

func TestAcceptIfChildrenDirectoriesArePresentFiltersDirs(t *testing.T) {
	root := buildTree(t)

	rules := []types.IndexerRule{{Kind: types.RuleAcceptIfChildrenDirectoriesArePresent, DirNames: []string{"nested"}}}
	entries, err := Shallow(root, "", rules)
	require.NoError(t, err)

	var dirNames []string
	for _, e := range entries {
		if e.IsDir {
			dirNames = append(dirNames, e.Components[len(e.Components)-1])
		}
	}
	require.Equal(t, []string{"sub"}, dirNames)
}

func TestSubPathEscapeIsRejected(t *testing.T) {
	root := buildTree(t)

	_, err := Shallow(root, "../../etc", nil)
	require.ErrorIs(t, err, ErrSubPathNotInLocation)
}

func TestSubPathOnAFileIsRejected(t *testing.T) {
	root := buildTree(t)

	_, err := Shallow(root, "a.txt", nil)
	require.ErrorIs(t, err, ErrSubPathNotDirectory)
}
