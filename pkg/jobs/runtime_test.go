package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/latticefs/core/pkg/catalog"
	"github.com/latticefs/core/pkg/eventbus"
	"github.com/latticefs/core/pkg/idalloc"
	"github.com/latticefs/core/pkg/types"
	"github.com/latticefs/core/pkg/workerpool"
	"github.com/stretchr/testify/require"
)

const kindCounter Kind = "counter"

type counterInit struct {
	Steps int
}

type counterData struct {
	Count int
}

func counterDefinition() Definition {
	return Definition{
		Kind: kindCounter,
		Init: func(ctx *Context, state *State) error {
			var init counterInit
			if err := json.Unmarshal(state.Init, &init); err != nil {
				return err
			}
			steps := make([]json.RawMessage, init.Steps)
			for i := range steps {
				steps[i] = json.RawMessage("true")
			}
			state.Steps = steps
			state.Data = json.RawMessage(`{"Count":0}`)
			return nil
		},
		ExecuteStep: func(ctx *Context, state *State) error {
			var d counterData
			if err := json.Unmarshal(state.Data, &d); err != nil {
				return err
			}
			d.Count++
			data, err := json.Marshal(d)
			if err != nil {
				return err
			}
			state.Data = data
			time.Sleep(15 * time.Millisecond)
			return nil
		},
		Finalize: func(ctx *Context, state *State) (json.RawMessage, error) {
			return state.Data, nil
		},
	}
}

func newTestRuntime(t *testing.T) (*Runtime, catalog.Store) {
	t.Helper()
	store, err := catalog.NewBoltStore(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	alloc := idalloc.New(store.CurrentMaxFilePathID)
	registry := NewRegistry()
	registry.Register(counterDefinition())

	rt := NewRuntime(store, eventbus.NewBroker(), alloc, workerpool.New(4), workerpool.New(4), registry)
	return rt, store
}

func waitForTerminal(t *testing.T, store catalog.Store, id uuid.UUID, timeout time.Duration) *types.JobRecord {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		rec, err := store.GetJob(id)
		require.NoError(t, err)
		switch rec.State {
		case types.JobCompleted, types.JobFailed, types.JobCanceled:
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
	return nil
}

func TestSubmitDedupRejectsDuplicateWhileQueued(t *testing.T) {
	rt, _ := newTestRuntime(t)

	rec, err := rt.Submit(kindCounter, counterInit{Steps: 3}, false)
	require.NoError(t, err)
	require.Equal(t, types.JobQueued, rec.State)

	_, err = rt.Submit(kindCounter, counterInit{Steps: 3}, false)
	require.Error(t, err)
	var already *ErrJobAlreadyRunning
	require.ErrorAs(t, err, &already)
	require.Equal(t, rec.ID, already.Existing.ID)

	forced, err := rt.Submit(kindCounter, counterInit{Steps: 3}, true)
	require.NoError(t, err)
	require.NotEqual(t, rec.ID, forced.ID)
}

func TestRuntimeRunsJobToCompletion(t *testing.T) {
	rt, store := newTestRuntime(t)

	rec, err := rt.Submit(kindCounter, counterInit{Steps: 3}, false)
	require.NoError(t, err)

	go rt.runJob(context.Background(), rec)

	final := waitForTerminal(t, store, rec.ID, 2*time.Second)
	require.Equal(t, types.JobCompleted, final.State)
	require.Equal(t, 3, final.CompletedTaskCount)

	var data counterData
	require.NoError(t, json.Unmarshal(final.Data, &data))
	require.Equal(t, 3, data.Count)
}

func TestRuntimeCancelTransitionsToCanceledWithPartialProgress(t *testing.T) {
	rt, store := newTestRuntime(t)

	rec, err := rt.Submit(kindCounter, counterInit{Steps: 10}, false)
	require.NoError(t, err)

	go rt.runJob(context.Background(), rec)

	time.Sleep(40 * time.Millisecond) // let a couple of steps complete
	require.NoError(t, rt.Cancel(rec.ID))

	final := waitForTerminal(t, store, rec.ID, 2*time.Second)
	require.Equal(t, types.JobCanceled, final.State)
	require.Greater(t, final.CompletedTaskCount, 0)
	require.Less(t, final.CompletedTaskCount, 10)
}

func TestRuntimeStartRequeuesStaleRunningJobsAsPaused(t *testing.T) {
	rt, store := newTestRuntime(t)

	stale := &types.JobRecord{ID: uuid.New(), Name: string(kindCounter), Hash: "stale", State: types.JobRunning}
	require.NoError(t, store.CreateJob(stale))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, rt.Start(ctx))
	defer rt.Stop()

	rec, err := store.GetJob(stale.ID)
	require.NoError(t, err)
	require.Equal(t, types.JobPaused, rec.State)
}
