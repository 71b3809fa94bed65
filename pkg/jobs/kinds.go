package jobs

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/latticefs/core/pkg/identifier"
	"github.com/latticefs/core/pkg/indexer"
	"github.com/latticefs/core/pkg/thumbnailer"
	"github.com/latticefs/core/pkg/types"
)

// The three built-in job kinds, each a thin adapter from the Definition
// contract onto an existing pipeline package. Every pipeline already checks
// ctx.Err() between its own internal batches/chunks and returns a partial
// result alongside context.Canceled, so each kind runs as a single step:
// cancellation granularity comes from the pipeline's own chunk loop, not
// from splitting the pipeline into many job steps.
const (
	KindIndexer     Kind = "indexer"
	KindIdentifier  Kind = "identifier"
	KindThumbnailer Kind = "thumbnailer"
)

// RegisterDefaultKinds registers the indexer, identifier, and thumbnailer
// job kinds against r.
func RegisterDefaultKinds(r *Registry) {
	r.Register(indexerDefinition())
	r.Register(identifierDefinition())
	r.Register(thumbnailerDefinition())
}

// runStepMarker is the sole step payload for single-step job kinds.
var runStepMarker = json.RawMessage(`"run"`)

// --- indexer ---

// IndexerInit is the Submit payload for KindIndexer.
type IndexerInit struct {
	LocationID   int32
	LocationPath string
	Rules        []types.IndexerRule
	SubPath      string
	Full         bool
}

// IndexerResult is Finalize's result payload for KindIndexer.
type IndexerResult struct {
	indexer.Result
}

func indexerDefinition() Definition {
	return Definition{
		Kind: KindIndexer,
		Init: func(ctx *Context, state *State) error {
			state.Steps = []json.RawMessage{runStepMarker}
			state.Data = json.RawMessage(`{}`)
			return nil
		},
		ExecuteStep: func(ctx *Context, state *State) error {
			var init IndexerInit
			if err := json.Unmarshal(state.Init, &init); err != nil {
				return err
			}
			mode := indexer.Shallow
			if init.Full {
				mode = indexer.Full
			}
			loc := &types.Location{ID: init.LocationID, Path: init.LocationPath, Rules: init.Rules}

			result, err := indexer.Run(ctx.Context, ctx.Store, ctx.Allocator, loc, init.SubPath, mode, func(r indexer.ChunkReport) {
				total, done := r.TotalNew, r.InsertedSoFar
				ctx.Progress(types.TaskCountUpdate(total), types.CompletedTaskCountUpdate(done))
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			data, merr := json.Marshal(IndexerResult{Result: result})
			if merr != nil {
				return merr
			}
			state.Data = data
			return nil
		},
		Finalize: func(ctx *Context, state *State) (json.RawMessage, error) {
			return state.Data, nil
		},
	}
}

// --- identifier ---

// IdentifierInit is the Submit payload for KindIdentifier.
type IdentifierInit struct {
	LocationID   int32
	LocationPath string
	SubPath      string
}

// IdentifierResult is Finalize's result payload for KindIdentifier.
type IdentifierResult struct {
	Chunks []identifier.ChunkResult
}

// filePathRef is the minimal identity stashed in the step payload; the
// executing step re-fetches the current row rather than carrying a stale
// snapshot across a pause/resume boundary.
type filePathRef struct {
	LocationID int32
	ID         int32
}

func identifierDefinition() Definition {
	return Definition{
		Kind: KindIdentifier,
		Init: func(ctx *Context, state *State) error {
			var init IdentifierInit
			if err := json.Unmarshal(state.Init, &init); err != nil {
				return err
			}
			fps, err := ctx.Store.FindFilePathsMissingCasID(init.LocationID, init.SubPath)
			if err != nil {
				return err
			}
			refs := make([]filePathRef, len(fps))
			for i, fp := range fps {
				refs[i] = filePathRef{LocationID: fp.LocationID, ID: fp.ID}
			}
			stepBytes, err := json.Marshal(refs)
			if err != nil {
				return err
			}
			state.Steps = []json.RawMessage{stepBytes}
			state.Data = json.RawMessage(`{}`)
			return nil
		},
		ExecuteStep: func(ctx *Context, state *State) error {
			var init IdentifierInit
			if err := json.Unmarshal(state.Init, &init); err != nil {
				return err
			}
			var refs []filePathRef
			if err := json.Unmarshal(state.Steps[0], &refs); err != nil {
				return err
			}

			fps := make([]*types.FilePath, 0, len(refs))
			for _, ref := range refs {
				fp, err := ctx.Store.GetFilePath(ref.LocationID, ref.ID)
				if err != nil {
					continue // row deleted since discovery; nothing to identify
				}
				fps = append(fps, fp)
			}

			ctx.Progress(types.TaskCountUpdate(len(fps)))
			chunks, err := identifier.Run(ctx.Context, ctx.Store, ctx.Pool, init.LocationPath, fps)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			linked := 0
			for _, c := range chunks {
				linked += c.FilePathsLinked
			}
			ctx.Progress(types.CompletedTaskCountUpdate(linked))

			data, merr := json.Marshal(IdentifierResult{Chunks: chunks})
			if merr != nil {
				return merr
			}
			state.Data = data
			return nil
		},
		Finalize: func(ctx *Context, state *State) (json.RawMessage, error) {
			return state.Data, nil
		},
	}
}

// --- thumbnailer ---

// ThumbnailerInit is the Submit payload for KindThumbnailer.
type ThumbnailerInit struct {
	LocationID   int32
	LocationPath string
	SubPath      string
	ThumbDir     string
	Background   bool
	VideoSupport bool
}

// ThumbnailerResult is Finalize's result payload for KindThumbnailer.
type ThumbnailerResult struct {
	thumbnailer.Result
}

func thumbnailerDefinition() Definition {
	return Definition{
		Kind: KindThumbnailer,
		Init: func(ctx *Context, state *State) error {
			state.Steps = []json.RawMessage{runStepMarker}
			state.Data = json.RawMessage(`{}`)
			return nil
		},
		ExecuteStep: func(ctx *Context, state *State) error {
			var init ThumbnailerInit
			if err := json.Unmarshal(state.Init, &init); err != nil {
				return err
			}

			result, err := thumbnailer.Run(ctx.Context, ctx.Store, ctx.Bus, init.ThumbDir, thumbnailer.Request{
				LocationID:   init.LocationID,
				LocationRoot: init.LocationPath,
				SubPath:      init.SubPath,
				Background:   init.Background,
				VideoSupport: init.VideoSupport,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			data, merr := json.Marshal(ThumbnailerResult{Result: result})
			if merr != nil {
				return merr
			}
			state.Data = data
			ctx.Progress(types.CompletedTaskCountUpdate(result.Created + result.Reused))
			return nil
		},
		Finalize: func(ctx *Context, state *State) (json.RawMessage, error) {
			return state.Data, nil
		},
	}
}
