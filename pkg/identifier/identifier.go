// Package identifier computes content addresses for newly indexed
// file_paths and resolves or creates the Objects they belong to.
package identifier

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/latticefs/core/pkg/catalog"
	"github.com/latticefs/core/pkg/hashid"
	"github.com/latticefs/core/pkg/log"
	"github.com/latticefs/core/pkg/metrics"
	"github.com/latticefs/core/pkg/types"
	"github.com/latticefs/core/pkg/workerpool"
)

// ChunkSize is the fixed batch size §4.4 specifies for the identifier.
const ChunkSize = 100

// ChunkResult is returned for each processed chunk.
type ChunkResult struct {
	ObjectsCreated int
	FilePathsLinked int
}

// hashed is the per-file_path outcome of step 1.
type hashed struct {
	fp    *types.FilePath
	casID string
	kind  types.ObjectKind
	size  int64
	err   error
}

// Run processes every file_path in fps (already known to lack a CAS id),
// chunked per ChunkSize, against locationRoot to resolve absolute paths.
func Run(ctx context.Context, store catalog.Store, pool *workerpool.Pool, locationRoot string, fps []*types.FilePath) ([]ChunkResult, error) {
	var results []ChunkResult

	for start := 0; start < len(fps); start += ChunkSize {
		end := start + ChunkSize
		if end > len(fps) {
			end = len(fps)
		}

		r, err := runChunk(ctx, store, pool, locationRoot, fps[start:end])
		if err != nil {
			return results, err
		}
		results = append(results, r)

		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}

	return results, nil
}

func runChunk(ctx context.Context, store catalog.Store, pool *workerpool.Pool, locationRoot string, chunk []*types.FilePath) (ChunkResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.IdentifierChunkDuration)

	// Step 1: metadata & CAS, bounded fan-out.
	outcomes := make([]hashed, len(chunk))
	errs := workerpool.Run(ctx, pool, chunk, func(ctx context.Context, fp *types.FilePath) error {
		idx := indexOf(chunk, fp)
		if fp.IsDir {
			outcomes[idx] = hashed{fp: fp, err: fmt.Errorf("identifier: %s is a directory, expected a file", fp.MaterializedPath)}
			return nil
		}

		absPath := joinMaterialized(locationRoot, fp.MaterializedPath)
		info, err := os.Stat(absPath)
		if err != nil {
			outcomes[idx] = hashed{fp: fp, err: err}
			return nil
		}

		cas, err := hashid.FromPath(absPath, info.Size())
		if err != nil {
			outcomes[idx] = hashed{fp: fp, err: err}
			return nil
		}

		outcomes[idx] = hashed{
			fp:    fp,
			casID: cas,
			kind:  ClassifyPath(fp.Extension, absPath),
			size:  info.Size(),
		}
		return nil
	})
	_ = errs // per-entry errors are carried in outcomes and logged below

	var ok []hashed
	for _, o := range outcomes {
		if o.err != nil {
			log.Logger.Warn().Err(o.err).Str("path", o.fp.MaterializedPath).Msg("identifier: skipping entry, stat/hash failed")
			continue
		}
		ok = append(ok, o)
		metrics.IdentifierFilesHashed.Inc()
	}
	if len(ok) == 0 {
		return ChunkResult{}, nil
	}

	// Step 2: write CAS ids in one transactional batch.
	updates := make([]catalog.FilePathCasUpdate, len(ok))
	writeOps := make([]types.CRDTOperation, len(ok))
	for i, o := range ok {
		updates[i] = catalog.FilePathCasUpdate{LocationID: o.fp.LocationID, ID: o.fp.ID, CasID: o.casID}
		writeOps[i] = types.CRDTOperation{
			Kind:     types.OwnedUpdate,
			RecordID: fmt.Sprintf("%d:%d", o.fp.LocationID, o.fp.ID),
			Field:    "cas_id",
			Value:    o.casID,
		}
	}
	if err := store.UpdateFilePathsCasID(updates, writeOps); err != nil {
		return ChunkResult{}, fmt.Errorf("identifier: write cas ids: %w", err)
	}

	// Step 3: object resolution.
	casIDs := make([]string, len(ok))
	for i, o := range ok {
		casIDs[i] = o.casID
	}
	existingObjects, err := store.FindObjectsByCasIDs(dedup(casIDs))
	if err != nil {
		return ChunkResult{}, fmt.Errorf("identifier: resolve objects: %w", err)
	}

	result := ChunkResult{}

	// Step 4: link to existing objects.
	var toCreate []hashed
	for _, o := range ok {
		if obj, linked := existingObjects[o.casID]; linked {
			if err := store.ConnectFilePathToObject(o.fp.LocationID, o.fp.ID, obj.PubID, []types.CRDTOperation{{
				Kind:     types.SharedUpdate,
				RecordID: obj.PubID.String(),
				Field:    "file_path_link",
				Value:    fmt.Sprintf("%d:%d", o.fp.LocationID, o.fp.ID),
			}}); err != nil {
				return result, fmt.Errorf("identifier: connect to existing object: %w", err)
			}
			metrics.IdentifierObjectsLinked.Inc()
			result.FilePathsLinked++
			continue
		}
		toCreate = append(toCreate, o)
	}

	// Step 5: resolve or create an object per distinct cas id not yet
	// covered. ResolveOrCreateObject is atomic per call, so repeated calls
	// for the same cas id within this chunk (two files with identical
	// content, neither previously known) and calls racing against other
	// concurrently running identifier chunks both converge on a single
	// winning object.
	for _, o := range toCreate {
		pub := uuid.New()
		ops := []types.CRDTOperation{
			{Kind: types.SharedCreate, RecordID: pub.String()},
			{Kind: types.SharedUpdate, RecordID: pub.String(), Field: "kind", Value: o.kind},
			{Kind: types.SharedUpdate, RecordID: pub.String(), Field: "size_in_bytes", Value: fmt.Sprintf("%d", o.size)},
		}

		obj, created, err := store.ResolveOrCreateObject(o.casID, catalog.ObjectCreate{
			PubID:       pub,
			Kind:        o.kind,
			DateCreated: o.fp.DateCreated.UnixNano(),
			SizeInBytes: fmt.Sprintf("%d", o.size),
		}, ops)
		if err != nil {
			return result, fmt.Errorf("identifier: resolve or create object: %w", err)
		}

		linkOps := []types.CRDTOperation{{
			Kind: types.SharedUpdate, RecordID: obj.PubID.String(), Field: "file_path_link",
			Value: fmt.Sprintf("%d:%d", o.fp.LocationID, o.fp.ID),
		}}
		if err := store.ConnectFilePathToObject(o.fp.LocationID, o.fp.ID, obj.PubID, linkOps); err != nil {
			return result, fmt.Errorf("identifier: connect file_path to object: %w", err)
		}

		if created {
			metrics.IdentifierObjectsCreated.Inc()
			result.ObjectsCreated++
		} else {
			metrics.IdentifierObjectsLinked.Inc()
		}
		result.FilePathsLinked++
	}

	return result, nil
}

func indexOf(chunk []*types.FilePath, fp *types.FilePath) int {
	for i, c := range chunk {
		if c == fp {
			return i
		}
	}
	return -1
}

func joinMaterialized(locationRoot, materializedPath string) string {
	if materializedPath == types.RootMaterializedPath {
		return locationRoot
	}
	trimmed := materializedPath
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == '/' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return locationRoot + trimmed
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
