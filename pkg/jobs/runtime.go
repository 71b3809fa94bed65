package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/latticefs/core/pkg/catalog"
	"github.com/latticefs/core/pkg/eventbus"
	"github.com/latticefs/core/pkg/idalloc"
	"github.com/latticefs/core/pkg/log"
	"github.com/latticefs/core/pkg/retryable"
	"github.com/latticefs/core/pkg/types"
	"github.com/latticefs/core/pkg/workerpool"
)

// scheduleInterval is the worker-slot scheduler's poll cycle, grounded on
// the teacher's container scheduler's ticker loop; jobs are picked up more
// eagerly than a container placement cycle since a user is usually waiting
// on the submission to start.
const scheduleInterval = 200 * time.Millisecond

// ErrJobAlreadyRunning is returned by Submit when an identical init payload
// is already Queued or Running and force was not set.
type ErrJobAlreadyRunning struct {
	Existing *types.JobRecord
}

func (e *ErrJobAlreadyRunning) Error() string {
	return fmt.Sprintf("jobs: an identical job is already %s (id %s)", e.Existing.State, e.Existing.ID)
}

type jobControl struct {
	cancel context.CancelFunc
	paused atomic.Bool
}

// Runtime owns the job kind registry and the worker-slot pools, and drives
// the Queued/Running/Paused/Completed/Failed/Canceled state machine.
type Runtime struct {
	store     catalog.Store
	bus       *eventbus.Broker
	allocator *idalloc.Allocator
	jobPool   *workerpool.Pool // bounds concurrently running jobs
	taskPool  *workerpool.Pool // exposed via Context.Pool for intra-step fan-out
	registry  *Registry

	mu     sync.Mutex
	active map[uuid.UUID]*jobControl

	stopCh chan struct{}
	once   sync.Once
}

// NewRuntime creates a Runtime. jobPool bounds how many jobs may run at
// once (the default is workerpool.DefaultJobSlots()); taskPool bounds
// intra-step fan-out within a single running job (the default is
// workerpool.DefaultTaskFanOut) and is handed to job Definitions through
// Context.Pool. The two are deliberately distinct pools: a job occupying
// its one jobPool slot still needs many taskPool slots to hash files
// concurrently.
func NewRuntime(store catalog.Store, bus *eventbus.Broker, allocator *idalloc.Allocator, jobPool, taskPool *workerpool.Pool, registry *Registry) *Runtime {
	return &Runtime{
		store:     store,
		bus:       bus,
		allocator: allocator,
		jobPool:   jobPool,
		taskPool:  taskPool,
		registry:  registry,
		active:    make(map[uuid.UUID]*jobControl),
		stopCh:    make(chan struct{}),
	}
}

// Start requeues any jobs left Running from a previous process (as Paused,
// never auto-resumed) and begins the scheduling loop.
func (r *Runtime) Start(ctx context.Context) error {
	stale, err := r.store.ListJobsByState(types.JobRunning)
	if err != nil {
		return fmt.Errorf("jobs: list running jobs at startup: %w", err)
	}
	for _, rec := range stale {
		rec.State = types.JobPaused
		if err := r.store.UpdateJob(rec); err != nil {
			log.Logger.Error().Err(err).Str("job_id", rec.ID.String()).Msg("jobs: failed to requeue stale running job as paused")
		}
	}

	go r.run(ctx)
	return nil
}

// Stop halts the scheduling loop. Stop does not cancel in-flight jobs: they
// keep running their remaining steps and persist normally, unless the ctx
// passed to Start is canceled, which cancels them at their next step
// boundary.
func (r *Runtime) Stop() {
	r.once.Do(func() { close(r.stopCh) })
}

func (r *Runtime) run(ctx context.Context) {
	ticker := time.NewTicker(scheduleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.scheduleCycle(ctx)
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		}
	}
}

func (r *Runtime) scheduleCycle(parent context.Context) {
	queued, err := r.store.ListJobsByState(types.JobQueued)
	if err != nil {
		log.Logger.Error().Err(err).Msg("jobs: list queued jobs failed")
		return
	}

	for _, rec := range queued {
		if parent.Err() != nil {
			return
		}
		release, err := r.jobPool.Acquire(parent)
		if err != nil {
			return
		}
		rec := rec
		go func() {
			defer release()
			r.runJob(parent, rec)
		}()
	}
}

// Submit hashes initPayload and creates a Queued job, unless an identical
// hash is already Queued or Running and force is false.
func (r *Runtime) Submit(kind Kind, initPayload any, force bool) (*types.JobRecord, error) {
	initBytes, err := json.Marshal(initPayload)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal init payload: %w", err)
	}
	hash := hashInit(kind, initBytes)

	if !force {
		existing, err := r.store.FindJobByHash(hash, []types.JobState{types.JobQueued, types.JobRunning})
		if err == nil {
			return nil, &ErrJobAlreadyRunning{Existing: existing}
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, err
		}
	}

	rec := &types.JobRecord{
		ID:        uuid.New(),
		Name:      string(kind),
		Hash:      hash,
		State:     types.JobQueued,
		Init:      initBytes,
		CreatedAt: time.Now(),
	}
	if err := r.store.CreateJob(rec); err != nil {
		return nil, fmt.Errorf("jobs: create job record: %w", err)
	}
	return rec, nil
}

// Pause requests that a running job pause at its next step boundary.
func (r *Runtime) Pause(id uuid.UUID) error {
	r.mu.Lock()
	ctrl, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("jobs: job %s is not running", id)
	}
	ctrl.paused.Store(true)
	return nil
}

// Cancel requests cancellation of a running job at its next step boundary.
func (r *Runtime) Cancel(id uuid.UUID) error {
	r.mu.Lock()
	ctrl, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("jobs: job %s is not running", id)
	}
	ctrl.cancel()
	return nil
}

// Resume transitions a Paused job back to Queued so the scheduler picks it
// up again; execution continues from the persisted Data/Steps rather than
// re-running Init.
func (r *Runtime) Resume(id uuid.UUID) error {
	rec, err := r.store.GetJob(id)
	if err != nil {
		return err
	}
	if rec.State != types.JobPaused {
		return fmt.Errorf("jobs: job %s is %s, not paused", id, rec.State)
	}
	rec.State = types.JobQueued
	return r.store.UpdateJob(rec)
}

func (r *Runtime) registerActive(id uuid.UUID) (*jobControl, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := &jobControl{cancel: cancel}
	r.mu.Lock()
	r.active[id] = ctrl
	r.mu.Unlock()
	return ctrl, ctx
}

func (r *Runtime) unregisterActive(id uuid.UUID) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

func (r *Runtime) runJob(parent context.Context, rec *types.JobRecord) {
	def, ok := r.registry.Lookup(Kind(rec.Name))
	if !ok {
		rec.State = types.JobFailed
		rec.Message = fmt.Sprintf("jobs: no definition registered for kind %q", rec.Name)
		r.persist(rec)
		return
	}

	ctrl, jobCtx := r.registerActive(rec.ID)
	defer r.unregisterActive(rec.ID)

	// jobCtx is independent of parent so Stop() doesn't yank running jobs;
	// still tie it to parent's cancellation so process shutdown propagates.
	go func() {
		select {
		case <-parent.Done():
			ctrl.cancel()
		case <-jobCtx.Done():
		}
	}()

	logger := log.WithJobID(rec.ID.String())

	now := time.Now()
	rec.State = types.JobRunning
	if rec.StartedAt == nil {
		rec.StartedAt = &now
	}
	r.persist(rec)

	state := &State{Init: rec.Init, Data: rec.Data}
	if len(rec.Steps) > 0 {
		var steps []json.RawMessage
		if err := json.Unmarshal(rec.Steps, &steps); err != nil {
			r.fail(rec, fmt.Errorf("jobs: deserialize persisted steps: %w", err))
			return
		}
		state.Steps = steps
	}

	jctx := &Context{
		Context:   jobCtx,
		Store:     r.store,
		Bus:       r.bus,
		Allocator: r.allocator,
		Pool:      r.taskPool,
		Log:       logger,
		progress:  r.progressFunc(rec),
	}

	if !rec.Initialized {
		if err := def.Init(jctx, state); err != nil {
			r.fail(rec, err)
			return
		}
		rec.Initialized = true
		r.persistState(rec, state)
	}

	for len(state.Steps) > 0 {
		if jobCtx.Err() != nil {
			r.cancelJob(rec, state)
			return
		}
		if ctrl.paused.Load() {
			r.pauseJob(rec, state)
			return
		}

		if err := retryable.Do(jobCtx, func() error { return def.ExecuteStep(jctx, state) }); err != nil {
			r.fail(rec, err)
			return
		}

		state.Steps = state.Steps[1:]
		rec.CompletedTaskCount++
		r.persistState(rec, state)
	}

	if jobCtx.Err() != nil {
		r.cancelJob(rec, state)
		return
	}

	result, err := def.Finalize(jctx, state)
	if err != nil {
		r.fail(rec, err)
		return
	}

	completed := time.Now()
	rec.State = types.JobCompleted
	rec.Data = result
	rec.CompletedAt = &completed
	r.persist(rec)
}

func (r *Runtime) persist(rec *types.JobRecord) {
	if err := r.store.UpdateJob(rec); err != nil {
		log.Logger.Error().Err(err).Str("job_id", rec.ID.String()).Msg("jobs: failed to persist job state")
	}
}

func (r *Runtime) persistState(rec *types.JobRecord, state *State) {
	rec.Data = state.Data
	stepsBytes, err := json.Marshal(state.Steps)
	if err != nil {
		log.Logger.Error().Err(err).Str("job_id", rec.ID.String()).Msg("jobs: failed to marshal steps")
		return
	}
	rec.Steps = stepsBytes
	r.persist(rec)
}

func (r *Runtime) fail(rec *types.JobRecord, err error) {
	rec.State = types.JobFailed
	rec.Message = err.Error()
	r.persist(rec)
}

func (r *Runtime) cancelJob(rec *types.JobRecord, state *State) {
	r.persistState(rec, state)
	rec.State = types.JobCanceled
	r.persist(rec)
}

func (r *Runtime) pauseJob(rec *types.JobRecord, state *State) {
	r.persistState(rec, state)
	rec.State = types.JobPaused
	r.persist(rec)
}

// progressFunc returns a closure applying ProgressUpdates to rec in memory
// and publishing InvalidateOperationDebounced for the job row; the event
// bus itself coalesces that publish to at most 10 Hz per subscriber.
func (r *Runtime) progressFunc(rec *types.JobRecord) func(types.ProgressUpdate) {
	return func(u types.ProgressUpdate) {
		if u.TaskCount != nil {
			rec.TaskCount = *u.TaskCount
		}
		if u.CompletedTaskCount != nil {
			rec.CompletedTaskCount = *u.CompletedTaskCount
		}
		if u.Message != nil {
			rec.Message = *u.Message
		}
		if u.Phase != nil {
			rec.Phase = *u.Phase
		}
		if r.bus != nil {
			r.bus.Publish(eventbus.InvalidateOperationDebounced(rec.ID.String()))
		}
	}
}

func hashInit(kind Kind, initBytes []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(initBytes)
	return hex.EncodeToString(h.Sum(nil))
}
