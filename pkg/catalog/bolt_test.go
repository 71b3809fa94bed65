package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/latticefs/core/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAndFindFilePathsByMaterializedPath(t *testing.T) {
	s := newTestStore(t)

	n, err := s.InsertFilePathsBatch([]FilePathCreate{
		{LocationID: 1, ID: 1, MaterializedPath: "/a.txt"},
		{LocationID: 1, ID: 2, MaterializedPath: "/dir/"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	found, err := s.FindManyFilePathsByMaterializedPaths(1, []string{"/a.txt", "/missing", "/dir/"})
	require.NoError(t, err)
	require.Len(t, found, 2)
}

func TestInsertFilePathsBatchCollisionFailsWholeBatch(t *testing.T) {
	s := newTestStore(t)

	_, err := s.InsertFilePathsBatch([]FilePathCreate{{LocationID: 1, ID: 1, MaterializedPath: "/a.txt"}}, nil)
	require.NoError(t, err)

	_, err = s.InsertFilePathsBatch([]FilePathCreate{
		{LocationID: 1, ID: 2, MaterializedPath: "/b.txt"},
		{LocationID: 1, ID: 1, MaterializedPath: "/a-again.txt"},
	}, nil)
	require.ErrorIs(t, err, ErrFilePathCollision)

	all, err := s.ListFilePathsByLocation(1)
	require.NoError(t, err)
	require.Len(t, all, 1, "the colliding batch must not partially apply")
}

func TestResolveOrCreateObjectFirstWriterWins(t *testing.T) {
	s := newTestStore(t)

	first := uuid.New()
	second := uuid.New()

	obj1, created1, err := s.ResolveOrCreateObject("cas1", ObjectCreate{PubID: first, Kind: types.KindText, SizeInBytes: "1"}, nil)
	require.NoError(t, err)
	require.True(t, created1)
	require.Equal(t, first, obj1.PubID)

	obj2, created2, err := s.ResolveOrCreateObject("cas1", ObjectCreate{PubID: second, Kind: types.KindText, SizeInBytes: "2"}, nil)
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, first, obj2.PubID, "second caller must observe the first caller's object")

	resolved, err := s.FindObjectsByCasIDs([]string{"cas1"})
	require.NoError(t, err)
	require.Equal(t, first, resolved["cas1"].PubID)
}

func TestUpdateFilePathsCasIDAndConnectToObject(t *testing.T) {
	s := newTestStore(t)

	_, err := s.InsertFilePathsBatch([]FilePathCreate{{LocationID: 1, ID: 1, MaterializedPath: "/a.txt"}}, nil)
	require.NoError(t, err)

	require.NoError(t, s.UpdateFilePathsCasID([]FilePathCasUpdate{{LocationID: 1, ID: 1, CasID: "deadbeef"}}, nil))

	fp, err := s.GetFilePath(1, 1)
	require.NoError(t, err)
	require.NotNil(t, fp.CasID)
	require.Equal(t, "deadbeef", *fp.CasID)

	obj := uuid.New()
	require.NoError(t, s.ConnectFilePathToObject(1, 1, obj, nil))

	fp, err = s.GetFilePath(1, 1)
	require.NoError(t, err)
	require.NotNil(t, fp.ObjectPubID)
	require.Equal(t, obj, *fp.ObjectPubID)
}

func TestDeleteFilePathsRemovesSecondaryIndex(t *testing.T) {
	s := newTestStore(t)

	_, err := s.InsertFilePathsBatch([]FilePathCreate{{LocationID: 1, ID: 1, MaterializedPath: "/a.txt"}}, nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteFilePaths(1, []int32{1}, nil))

	_, err = s.GetFilePath(1, 1)
	require.ErrorIs(t, err, ErrNotFound)

	found, err := s.FindManyFilePathsByMaterializedPaths(1, []string{"/a.txt"})
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestWatermarkRoundTrips(t *testing.T) {
	s := newTestStore(t)

	max, err := s.CurrentMaxFilePathID(1)
	require.NoError(t, err)
	require.Equal(t, int32(0), max)

	require.NoError(t, s.FlushFilePathWatermark(1, 42))

	max, err = s.CurrentMaxFilePathID(1)
	require.NoError(t, err)
	require.Equal(t, int32(42), max)
}

func TestJobCreateGetAndHashIndex(t *testing.T) {
	s := newTestStore(t)

	id := uuid.New()
	job := &types.JobRecord{ID: id, Name: "indexer", Hash: "hash-1", State: types.JobQueued}
	require.NoError(t, s.CreateJob(job))

	got, err := s.GetJob(id)
	require.NoError(t, err)
	require.Equal(t, "indexer", got.Name)

	found, err := s.FindJobByHash("hash-1", []types.JobState{types.JobQueued, types.JobRunning})
	require.NoError(t, err)
	require.Equal(t, id, found.ID)

	_, err = s.FindJobByHash("hash-1", []types.JobState{types.JobCompleted})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListJobsByState(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateJob(&types.JobRecord{ID: uuid.New(), Hash: "a", State: types.JobQueued}))
	require.NoError(t, s.CreateJob(&types.JobRecord{ID: uuid.New(), Hash: "b", State: types.JobRunning}))
	require.NoError(t, s.CreateJob(&types.JobRecord{ID: uuid.New(), Hash: "c", State: types.JobCompleted}))

	queued, err := s.ListJobsByState(types.JobQueued, types.JobRunning)
	require.NoError(t, err)
	require.Len(t, queued, 2)
}
