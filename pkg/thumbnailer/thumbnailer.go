// Package thumbnailer generates WebP thumbnails for indexed, identified
// file_paths and publishes their availability on the event bus.
package thumbnailer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/latticefs/core/pkg/catalog"
	"github.com/latticefs/core/pkg/eventbus"
	"github.com/latticefs/core/pkg/identifier"
	"github.com/latticefs/core/pkg/log"
	"github.com/latticefs/core/pkg/metrics"
	"github.com/latticefs/core/pkg/thumbnailer/encode"
	"github.com/latticefs/core/pkg/types"
)

// Result tallies one run's outcome.
type Result struct {
	Created int
	Reused  int
	Skipped int // encode failures, logged and not retried within this run
}

// Request describes one thumbnailer job invocation.
type Request struct {
	LocationID   int32
	LocationRoot string
	SubPath      string // "" or "/" means the whole location
	Background   bool   // when true, yield cooperatively between files
	VideoSupport bool
}

// Run queries the catalog for eligible file_paths under req and encodes a
// thumbnail for each one missing from the cache directory.
func Run(ctx context.Context, store catalog.Store, bus *eventbus.Broker, thumbDir string, req Request) (Result, error) {
	return RunWithEncoders(ctx, store, bus, thumbDir, req, encode.WebPEncoder{}, encode.VideoFrameEncoder{})
}

// RunWithEncoders is Run with explicit encoders, for tests and callers that
// wire in a real video codec.
func RunWithEncoders(ctx context.Context, store catalog.Store, bus *eventbus.Broker, thumbDir string, req Request, imageEnc, videoEnc encode.Encoder) (Result, error) {
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("thumbnailer: create cache dir: %w", err)
	}

	extensions := identifier.ImageExtensions()
	if req.VideoSupport {
		extensions = append(extensions, identifier.VideoExtensions()...)
	}

	fps, err := store.FindFilePathsForThumbnail(req.LocationID, req.SubPath, extensions)
	if err != nil {
		return Result{}, fmt.Errorf("thumbnailer: query eligible file_paths: %w", err)
	}

	var result Result
	for i, fp := range fps {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if fp.CasID == nil {
			// Upstream query already filters these out; defensive only.
			continue
		}

		outcome, err := processOne(store, bus, thumbDir, req.LocationRoot, fp, identifier.ClassifyExtension(fp.Extension), imageEnc, videoEnc)
		switch {
		case err != nil:
			log.Logger.Warn().Err(err).Str("path", fp.MaterializedPath).Str("cas_id", *fp.CasID).Msg("thumbnailer: encode failed, skipping")
			result.Skipped++
		case outcome == outcomeReused:
			result.Reused++
		case outcome == outcomeCreated:
			result.Created++
		}

		if req.Background && i < len(fps)-1 {
			yield(ctx)
		}
	}

	return result, nil
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeReused
)

func processOne(store catalog.Store, bus *eventbus.Broker, thumbDir, locationRoot string, fp *types.FilePath, kind types.ObjectKind, imageEnc, videoEnc encode.Encoder) (outcome, error) {
	casID := *fp.CasID
	target := targetPath(thumbDir, casID)

	if _, err := os.Stat(target); err == nil {
		return outcomeReused, nil
	}

	enc := encode.ForKind(kind, imageEnc, videoEnc)
	if enc == nil {
		return outcomeReused, fmt.Errorf("thumbnailer: no encoder registered for kind %v", kind)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return outcomeCreated, fmt.Errorf("create thumbnail shard dir: %w", err)
	}

	tmp := target + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return outcomeCreated, fmt.Errorf("create temp thumbnail: %w", err)
	}

	if err := enc.Encode(f, joinMaterialized(locationRoot, fp.MaterializedPath), kind); err != nil {
		f.Close()
		os.Remove(tmp)
		return outcomeCreated, fmt.Errorf("encode: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return outcomeCreated, fmt.Errorf("close temp thumbnail: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return outcomeCreated, fmt.Errorf("rename temp thumbnail: %w", err)
	}

	metrics.ThumbnailsGenerated.Inc()
	if bus != nil {
		bus.Publish(eventbus.NewThumbnail(casID))
	}
	return outcomeCreated, nil
}

// joinMaterialized resolves a location-relative materialized path to an
// absolute filesystem path.
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

// targetPath is the cache layout §6 fixes: <thumb_dir>/<cas[0:2]>/<cas>.webp.
func targetPath(thumbDir, casID string) string {
	shard := casID
	if len(shard) > 2 {
		shard = casID[:2]
	}
	return filepath.Join(thumbDir, shard, casID+".webp")
}

// yield gives the cooperative scheduler a chance to run other work between
// thumbnail encodes, the way a background job is expected to avoid starving
// foreground steps (spec §4.5/§5).
func yield(ctx context.Context) {
	select {
	case <-ctx.Done():
	default:
		runtime.Gosched()
	}
}
