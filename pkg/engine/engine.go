// Package engine wires the catalog store, event bus, ID allocator, sync
// recorder, and job runtime into a single node-local process, the way the
// teacher's manager.Manager wires its store, event broker, and subsystems.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/latticefs/core/pkg/catalog"
	"github.com/latticefs/core/pkg/config"
	"github.com/latticefs/core/pkg/crdt"
	"github.com/latticefs/core/pkg/eventbus"
	"github.com/latticefs/core/pkg/idalloc"
	"github.com/latticefs/core/pkg/jobs"
	"github.com/latticefs/core/pkg/log"
	"github.com/latticefs/core/pkg/metrics"
	"github.com/latticefs/core/pkg/workerpool"
)

// Engine is a node's in-process handle to every core subsystem.
type Engine struct {
	Config    config.NodeConfig
	Store     *catalog.BoltStore
	Bus       *eventbus.Broker
	Allocator *idalloc.Allocator
	Recorder  *crdt.Recorder
	Registry  *jobs.Registry
	Runtime   *jobs.Runtime
	Collector *metrics.Collector

	taskPool *workerpool.Pool
	jobPool  *workerpool.Pool
}

// New constructs an Engine from cfg: opens the catalog and sync recorder
// under cfg.DataDir, wires the job registry with the built-in kinds, and
// builds (but does not start) the job runtime.
func New(cfg config.NodeConfig) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create data dir: %w", err)
	}

	recorder, err := crdt.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("engine: open sync recorder: %w", err)
	}

	store, err := catalog.NewBoltStore(cfg.CatalogDir(), recorder)
	if err != nil {
		return nil, fmt.Errorf("engine: open catalog store: %w", err)
	}

	if err := os.MkdirAll(cfg.ThumbnailDir(), 0o755); err != nil {
		return nil, fmt.Errorf("engine: create thumbnail cache dir: %w", err)
	}

	bus := eventbus.NewBroker()
	alloc := idalloc.New(store.CurrentMaxFilePathID)

	registry := jobs.NewRegistry()
	jobs.RegisterDefaultKinds(registry)

	taskPool := workerpool.New(cfg.TaskFanOut)
	jobPool := workerpool.New(cfg.JobSlots)
	runtime := jobs.NewRuntime(store, bus, alloc, jobPool, taskPool, registry)

	collector := metrics.NewCollector(store)

	return &Engine{
		Config:    cfg,
		Store:     store,
		Bus:       bus,
		Allocator: alloc,
		Recorder:  recorder,
		Registry:  registry,
		Runtime:   runtime,
		Collector: collector,
		taskPool:  taskPool,
		jobPool:   jobPool,
	}, nil
}

// Start requeues stale Running jobs as Paused, begins the job scheduler,
// and begins periodic metrics collection.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Runtime.Start(ctx); err != nil {
		return fmt.Errorf("engine: start job runtime: %w", err)
	}
	e.Collector.Start()
	log.Logger.Info().Str("data_dir", e.Config.DataDir).Msg("engine: started")
	return nil
}

// Stop halts the scheduler, metrics collection, and closes the catalog and
// sync recorder. Stop does not cancel in-flight jobs; canceling the ctx
// passed to Start stops them at their next step boundary.
func (e *Engine) Stop() error {
	e.Runtime.Stop()
	e.Collector.Stop()

	if err := e.Store.Close(); err != nil {
		return fmt.Errorf("engine: close catalog store: %w", err)
	}
	if err := e.Recorder.Close(); err != nil {
		return fmt.Errorf("engine: close sync recorder: %w", err)
	}
	return nil
}
