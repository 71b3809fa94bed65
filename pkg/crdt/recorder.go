// Package crdt persists the sequence of CRDTOperations produced by catalog
// writes into a durable, append-only log. It reuses hashicorp/raft's
// on-disk log format (via raft-boltdb) purely as a durable write-ahead log:
// no raft.Raft instance is constructed and no consensus runs. A single
// process is always the only writer, so there is nothing to agree on; what
// the log gives us is the same thing Warren's cluster state gets from it,
// namely a crash-safe, ordered record that survives a restart and can be
// replayed or shipped to a peer later.
package crdt

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/hashicorp/raft"
	"github.com/latticefs/core/pkg/log"
	"github.com/latticefs/core/pkg/types"
	"github.com/rs/zerolog"
)

const stableStoreIndexKey = "latticefs_last_index"

// Entry is one durable log record: a batch of operations recorded together
// because they were written in the same catalog transaction.
type Entry struct {
	Index      uint64
	Operations []types.CRDTOperation
}

// Recorder appends CRDTOperation batches to an embedded append-only log.
type Recorder struct {
	mu     sync.Mutex
	store  *raftboltdb.BoltStore
	logger zerolog.Logger
	next   uint64
}

// Open opens (creating if necessary) the operation log under dataDir.
func Open(dataDir string) (*Recorder, error) {
	path := filepath.Join(dataDir, "sync-log.db")
	store, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		return nil, fmt.Errorf("open sync log: %w", err)
	}

	r := &Recorder{
		store:  store,
		logger: log.Logger.With().Str("component", "crdt").Logger(),
	}

	last, err := store.LastIndex()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("read last sync log index: %w", err)
	}
	r.next = last + 1
	if r.next == 1 {
		// LastIndex returns 0 for an empty store; also consult the stable
		// store in case a prior run persisted an index with no log entry.
		if stored, err := store.GetUint64([]byte(stableStoreIndexKey)); err == nil && stored+1 > r.next {
			r.next = stored + 1
		}
	}

	return r, nil
}

func (r *Recorder) Logger() *zerolog.Logger { return &r.logger }

// Record appends one batch of operations as a single log entry.
func (r *Recorder) Record(ops []types.CRDTOperation) error {
	if len(ops) == 0 {
		return nil
	}

	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("marshal crdt operations: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &raft.Log{
		Index: r.next,
		Term:  1,
		Type:  raft.LogCommand,
		Data:  data,
	}
	if err := r.store.StoreLog(entry); err != nil {
		return fmt.Errorf("append sync log entry: %w", err)
	}
	if err := r.store.SetUint64([]byte(stableStoreIndexKey), r.next); err != nil {
		return fmt.Errorf("persist sync log watermark: %w", err)
	}
	r.next++
	return nil
}

// Since returns every entry with index > afterIndex, in order. Used to
// replay or ship operations recorded since a checkpoint.
func (r *Recorder) Since(afterIndex uint64) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	first, err := r.store.FirstIndex()
	if err != nil {
		return nil, err
	}
	last, err := r.store.LastIndex()
	if err != nil {
		return nil, err
	}
	if first == 0 {
		return nil, nil
	}
	if afterIndex+1 > first {
		first = afterIndex + 1
	}

	var out []Entry
	for idx := first; idx <= last; idx++ {
		var l raft.Log
		if err := r.store.GetLog(idx, &l); err != nil {
			if err == raft.ErrLogNotFound {
				continue
			}
			return nil, err
		}
		var ops []types.CRDTOperation
		if err := json.Unmarshal(l.Data, &ops); err != nil {
			return nil, err
		}
		out = append(out, Entry{Index: l.Index, Operations: ops})
	}
	return out, nil
}

// Close releases the underlying database handles.
func (r *Recorder) Close() error { return r.store.Close() }
