package identifier

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/latticefs/core/pkg/catalog"
	"github.com/latticefs/core/pkg/types"
	"github.com/latticefs/core/pkg/workerpool"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *catalog.BoltStore {
	t.Helper()
	s, err := catalog.NewBoltStore(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunLinksDuplicateContentToSameObject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "same bytes")
	writeFile(t, root, "b.txt", "same bytes")

	store := newTestStore(t)
	fps := []*types.FilePath{
		{LocationID: 1, ID: 1, MaterializedPath: "/a.txt", Extension: "txt"},
		{LocationID: 1, ID: 2, MaterializedPath: "/b.txt", Extension: "txt"},
	}
	n, err := store.InsertFilePathsBatch([]catalog.FilePathCreate{
		{LocationID: 1, ID: 1, MaterializedPath: "/a.txt", Extension: "txt"},
		{LocationID: 1, ID: 2, MaterializedPath: "/b.txt", Extension: "txt"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	pool := workerpool.New(4)
	results, err := Run(context.Background(), store, pool, root, fps)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 1, results[0].ObjectsCreated)
	require.Equal(t, 2, results[0].FilePathsLinked)

	fp1, err := store.GetFilePath(1, 1)
	require.NoError(t, err)
	fp2, err := store.GetFilePath(1, 2)
	require.NoError(t, err)
	require.NotNil(t, fp1.ObjectPubID)
	require.NotNil(t, fp2.ObjectPubID)
	require.Equal(t, *fp1.ObjectPubID, *fp2.ObjectPubID)
	require.NotNil(t, fp1.CasID)
	require.Equal(t, *fp1.CasID, *fp2.CasID)
}

func TestRunDistinctContentCreatesDistinctObjects(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "content one")
	writeFile(t, root, "b.txt", "content two, different")

	store := newTestStore(t)
	fps := []*types.FilePath{
		{LocationID: 1, ID: 1, MaterializedPath: "/a.txt", Extension: "txt"},
		{LocationID: 1, ID: 2, MaterializedPath: "/b.txt", Extension: "txt"},
	}
	_, err := store.InsertFilePathsBatch([]catalog.FilePathCreate{
		{LocationID: 1, ID: 1, MaterializedPath: "/a.txt", Extension: "txt"},
		{LocationID: 1, ID: 2, MaterializedPath: "/b.txt", Extension: "txt"},
	}, nil)
	require.NoError(t, err)

	pool := workerpool.New(4)
	results, err := Run(context.Background(), store, pool, root, fps)
	require.NoError(t, err)
	require.Equal(t, 2, results[0].ObjectsCreated)

	fp1, err := store.GetFilePath(1, 1)
	require.NoError(t, err)
	fp2, err := store.GetFilePath(1, 2)
	require.NoError(t, err)
	require.NotEqual(t, *fp1.ObjectPubID, *fp2.ObjectPubID)
}

// TestConcurrentIdentifierRunsConvergeOnOneObject exercises the race this
// package's ResolveOrCreateObject call is meant to close: two runs over
// disjoint file_paths that happen to share content must never create two
// Objects for the same cas id.
func TestConcurrentIdentifierRunsConvergeOnOneObject(t *testing.T) {
	root := t.TempDir()
	const n = 20
	fps := make([]*types.FilePath, 0, n)
	creates := make([]catalog.FilePathCreate, 0, n)
	for i := 0; i < n; i++ {
		name := filepath.Join("dup", itoa(i)+".txt")
		require.NoError(t, os.MkdirAll(filepath.Join(root, "dup"), 0o755))
		writeFile(t, root, name, "identical shared content")
		fp := &types.FilePath{LocationID: 1, ID: int32(i + 1), MaterializedPath: "/dup/" + itoa(i) + ".txt", Extension: "txt"}
		fps = append(fps, fp)
		creates = append(creates, catalog.FilePathCreate{
			LocationID: 1, ID: fp.ID, MaterializedPath: fp.MaterializedPath, Extension: "txt",
		})
	}

	store := newTestStore(t)
	_, err := store.InsertFilePathsBatch(creates, nil)
	require.NoError(t, err)

	pool := workerpool.New(8)
	half := n / 2
	done := make(chan error, 2)
	go func() {
		_, err := Run(context.Background(), store, pool, root, fps[:half])
		done <- err
	}()
	go func() {
		_, err := Run(context.Background(), store, pool, root, fps[half:])
		done <- err
	}()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	var objectIDs = map[string]bool{}
	for i := 0; i < n; i++ {
		fp, err := store.GetFilePath(1, int32(i+1))
		require.NoError(t, err)
		require.NotNil(t, fp.ObjectPubID)
		objectIDs[fp.ObjectPubID.String()] = true
	}
	require.Len(t, objectIDs, 1, "identical content across two concurrent runs must resolve to exactly one object")
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}
