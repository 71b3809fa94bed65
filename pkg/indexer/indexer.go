// Package indexer reconciles a location's filesystem tree with the
// catalog, inserting newly discovered entries and, for full runs, removing
// entries that disappeared.
package indexer

import (
	"context"
	"fmt"
	"os"

	"github.com/latticefs/core/pkg/catalog"
	"github.com/latticefs/core/pkg/idalloc"
	"github.com/latticefs/core/pkg/log"
	"github.com/latticefs/core/pkg/metrics"
	"github.com/latticefs/core/pkg/types"
	"github.com/latticefs/core/pkg/walker"
)

// ShallowChunkSize and FullChunkSize are the per-pipeline batch sizes used
// when partitioning newly discovered entries into catalog transactions.
const (
	ShallowChunkSize = 1000
	FullChunkSize    = 100
)

// Mode selects which walk strategy a run uses.
type Mode int

const (
	Shallow Mode = iota
	Full
)

func (m Mode) String() string {
	if m == Full {
		return "full"
	}
	return "shallow"
}

func (m Mode) chunkSize() int {
	if m == Full {
		return FullChunkSize
	}
	return ShallowChunkSize
}

// ChunkReport is the cumulative progress reported after each committed chunk.
type ChunkReport struct {
	InsertedSoFar int
	TotalNew      int
}

// Result is the summary returned after a run completes.
type Result struct {
	Inserted int
	Deleted  int
}

// Run executes one indexer pass (shallow or full) over locationRoot/subPath.
// onProgress, if non-nil, is called after each committed chunk.
func Run(
	ctx context.Context,
	store catalog.Store,
	alloc *idalloc.Allocator,
	loc *types.Location,
	subPath string,
	mode Mode,
	onProgress func(ChunkReport),
) (Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.IndexerRunDuration, mode.String())

	logger := log.WithLocationID(loc.ID)

	parentID, err := resolveWalkParent(store, loc.ID, subPath)
	if err != nil {
		return Result{}, err
	}

	var entries []walker.Entry
	if mode == Full {
		entries, err = walker.Full(loc.Path, subPath, loc.Rules)
	} else {
		entries, err = walker.Shallow(loc.Path, subPath, loc.Rules)
	}
	if err != nil {
		return Result{}, fmt.Errorf("indexer: walk failed: %w", err)
	}

	if rootEntry, ok := locationRootEntry(loc, subPath); ok {
		entries = append([]walker.Entry{rootEntry}, entries...)
	}

	candidatePaths := make([]string, len(entries))
	for i, e := range entries {
		mp, err := e.MaterializedPath()
		if err != nil {
			return Result{}, fmt.Errorf("indexer: %w", err)
		}
		candidatePaths[i] = mp
	}

	existing, err := store.FindManyFilePathsByMaterializedPaths(loc.ID, candidatePaths)
	if err != nil {
		return Result{}, fmt.Errorf("indexer: query existing file_paths: %w", err)
	}
	existingByPath := make(map[string]bool, len(existing))
	for _, fp := range existing {
		existingByPath[fp.MaterializedPath] = true
	}

	var fresh []walker.Entry
	var freshPaths []string
	for i, e := range entries {
		p := candidatePaths[i]
		if existingByPath[p] {
			continue
		}
		fresh = append(fresh, e)
		freshPaths = append(freshPaths, p)
	}

	if len(fresh) == 0 {
		if mode == Full {
			deleted, err := deleteMissing(store, loc.ID, entries, subPath)
			if err != nil {
				return Result{}, err
			}
			return Result{Deleted: deleted}, nil
		}
		return Result{}, nil
	}

	firstID, err := alloc.Reserve(loc.ID, int32(len(fresh)))
	if err != nil {
		return Result{}, fmt.Errorf("indexer: reserve ids: %w", err)
	}

	pathToID := make(map[string]int32, len(fresh))
	for i := range fresh {
		pathToID[freshPaths[i]] = firstID + int32(i)
	}
	if parentID == 0 {
		if id, ok := pathToID[types.RootMaterializedPath]; ok {
			parentID = id // first run: the root row is inserted in this run
		}
	}
	parentOf := func(e walker.Entry) *int32 {
		if e.IsLocationRoot {
			return nil
		}
		if len(e.ParentComponents) == 0 {
			return &parentID
		}
		parentPath, err := types.NewMaterializedPath(e.ParentComponents, true)
		if err != nil {
			return nil
		}
		if id, ok := pathToID[parentPath]; ok {
			return &id
		}
		if fp, ok := lookupExisting(existing, parentPath); ok {
			return &fp.ID
		}
		return &parentID
	}

	inserted := 0
	chunkSize := mode.chunkSize()
	for start := 0; start < len(fresh); start += chunkSize {
		end := start + chunkSize
		if end > len(fresh) {
			end = len(fresh)
		}
		chunk := fresh[start:end]

		rows := make([]catalog.FilePathCreate, len(chunk))
		ops := make([]types.CRDTOperation, len(chunk))
		for i, e := range chunk {
			p := freshPaths[start+i]
			id := pathToID[p]
			rows[i] = catalog.FilePathCreate{
				LocationID:       loc.ID,
				ID:               id,
				MaterializedPath: p,
				IsDir:            e.IsDir,
				Extension:        e.Extension,
				DateCreated:      e.DateCreated.UnixNano(),
				ParentID:         parentOf(e),
			}
			ops[i] = types.CRDTOperation{
				Kind:     types.OwnedUpdate,
				RecordID: fmt.Sprintf("%d:%d", loc.ID, id),
				Field:    "materialized_path",
				Value:    p,
			}
		}

		n, err := store.InsertFilePathsBatch(rows, ops)
		if err != nil {
			return Result{Inserted: inserted}, fmt.Errorf("indexer: insert chunk: %w", err)
		}
		inserted += n

		if err := store.FlushFilePathWatermark(loc.ID, firstID+int32(len(fresh))-1); err != nil {
			logger.Warn().Err(err).Msg("indexer: failed to flush watermark")
		}

		if onProgress != nil {
			onProgress(ChunkReport{InsertedSoFar: inserted, TotalNew: len(fresh)})
		}

		if ctx.Err() != nil {
			return Result{Inserted: inserted}, ctx.Err()
		}
	}

	metrics.IndexerEntriesInserted.WithLabelValues(fmt.Sprintf("%d", loc.ID)).Add(float64(inserted))
	metrics.IndexerEntriesDiscovered.WithLabelValues(fmt.Sprintf("%d", loc.ID)).Add(float64(len(entries)))

	result := Result{Inserted: inserted}
	if mode == Full {
		deleted, err := deleteMissing(store, loc.ID, entries, subPath)
		if err != nil {
			return result, err
		}
		result.Deleted = deleted
	}
	return result, nil
}

// locationRootEntry synthesizes the location root's own FilePath entry
// (materialized_path "/", parent_id nil) when a run covers the whole
// location. Walks never yield the root itself, only its descendants.
func locationRootEntry(loc *types.Location, subPath string) (walker.Entry, bool) {
	if subPath != "" && subPath != "/" {
		return walker.Entry{}, false
	}
	info, err := os.Stat(loc.Path)
	if err != nil {
		return walker.Entry{}, false
	}
	return walker.Entry{
		AbsolutePath:   loc.Path,
		IsDir:          true,
		DateCreated:    info.ModTime(),
		IsLocationRoot: true,
	}, true
}

func lookupExisting(existing []*types.FilePath, path string) (*types.FilePath, bool) {
	for _, fp := range existing {
		if fp.MaterializedPath == path {
			return fp, true
		}
	}
	return nil, false
}

// resolveWalkParent finds the id of the already-persisted file_path at
// subPath, used as the parent for new top-level entries of the walk.
func resolveWalkParent(store catalog.Store, locationID int32, subPath string) (int32, error) {
	mp := types.RootMaterializedPath
	if subPath != "" && subPath != "/" {
		var err error
		mp, err = types.NewMaterializedPath(splitSubPath(subPath), true)
		if err != nil {
			return 0, err
		}
	}

	found, err := store.FindManyFilePathsByMaterializedPaths(locationID, []string{mp})
	if err != nil {
		return 0, fmt.Errorf("indexer: resolve walk parent: %w", err)
	}
	if len(found) == 1 {
		return found[0].ID, nil
	}
	return 0, nil // nothing persisted at subPath yet, e.g. first-ever run
}

func splitSubPath(subPath string) []string {
	var parts []string
	cur := ""
	for _, r := range subPath {
		if r == '/' {
			if cur != "" {
				parts = append(parts, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		parts = append(parts, cur)
	}
	return parts
}

// deleteMissing removes any FilePath strictly under the walk root whose
// materialized_path did not appear in the fresh walk output W. The walk
// root's own row is never a deletion candidate: types.IsPrefixOf excludes
// an exact match, since the walker only ever emits descendants of subPath,
// never subPath itself (the whole-location case compensates for the same
// gap by synthesizing a root entry into walked; a non-root subPath has no
// such synthesized entry, so the exclusion has to happen here instead).
func deleteMissing(store catalog.Store, locationID int32, walked []walker.Entry, subPath string) (int, error) {
	seen := make(map[string]bool, len(walked))
	for _, e := range walked {
		mp, err := e.MaterializedPath()
		if err != nil {
			continue
		}
		seen[mp] = true
	}

	prefix := types.RootMaterializedPath
	if subPath != "" && subPath != "/" {
		var err error
		prefix, err = types.NewMaterializedPath(splitSubPath(subPath), true)
		if err != nil {
			return 0, err
		}
	}

	all, err := store.ListFilePathsByLocation(locationID)
	if err != nil {
		return 0, fmt.Errorf("indexer: list file_paths for deletion pass: %w", err)
	}

	var toDelete []int32
	var ops []types.CRDTOperation
	for _, fp := range all {
		if !types.IsPrefixOf(prefix, fp.MaterializedPath) {
			continue
		}
		if seen[fp.MaterializedPath] {
			continue
		}
		toDelete = append(toDelete, fp.ID)
		ops = append(ops, types.CRDTOperation{
			Kind:     types.OwnedUpdate,
			RecordID: fmt.Sprintf("%d:%d", locationID, fp.ID),
			Field:    "deleted",
			Value:    true,
		})
	}

	if len(toDelete) == 0 {
		return 0, nil
	}

	if err := store.DeleteFilePaths(locationID, toDelete, ops); err != nil {
		return 0, fmt.Errorf("indexer: delete missing file_paths: %w", err)
	}
	metrics.IndexerEntriesDeleted.WithLabelValues(fmt.Sprintf("%d", locationID)).Add(float64(len(toDelete)))
	return len(toDelete), nil
}
