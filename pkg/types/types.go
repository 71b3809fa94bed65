// Package types holds the data model shared by the catalog, the indexing
// pipelines, and the job runtime.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Location is a registered filesystem root.
type Location struct {
	ID    int32     // stable integer id, primary key
	PubID uuid.UUID // opaque public identifier
	Path  string    // absolute path; must resolve to a directory at job start
	Rules []IndexerRule
}

// IndexerRuleKind identifies how a rule is evaluated during a walk.
type IndexerRuleKind string

const (
	RuleAcceptFilesByGlob                     IndexerRuleKind = "accept_files_by_glob"
	RuleRejectFilesByGlob                     IndexerRuleKind = "reject_files_by_glob"
	RuleAcceptIfChildrenDirectoriesArePresent IndexerRuleKind = "accept_if_children_directories_are_present"
	RuleRejectIfChildrenDirectoriesArePresent IndexerRuleKind = "reject_if_children_directories_are_present"
)

// IndexerRule is a predicate applied to entries during a walk. Rules of the
// same Kind are OR'd together ("any match"); distinct kinds are AND'd.
type IndexerRule struct {
	Kind     IndexerRuleKind
	Globs    []string // used by the *ByGlob kinds
	DirNames []string // used by the *ChildrenDirectoriesArePresent kinds
}

// ObjectKind classifies the content an Object represents.
type ObjectKind int32

const (
	KindUnknown ObjectKind = iota
	KindImage
	KindVideo
	KindAudio
	KindDocument
	KindArchive
	KindCode
	KindText
	KindExecutable
)

// FilePath is a catalog row describing a filesystem entry under a Location.
type FilePath struct {
	LocationID       int32
	ID               int32
	MaterializedPath string // location-relative, always starts with "/"
	IsDir            bool
	Extension        string // lowercased, no leading dot
	DateCreated      time.Time
	ParentID         *int32 // nil only for the location root
	CasID            *string
	ObjectPubID      *uuid.UUID
}

// Key is the primary-key pair (location_id, id) for this FilePath.
func (f *FilePath) Key() (int32, int32) { return f.LocationID, f.ID }

// Object is the logical entity representing distinct content.
type Object struct {
	PubID       uuid.UUID
	Kind        ObjectKind
	DateCreated time.Time
	SizeInBytes string // decimal string, arbitrary precision
}

// JobState is the job lifecycle state.
type JobState int32

const (
	JobQueued JobState = iota
	JobRunning
	JobPaused
	JobCompleted
	JobFailed
	JobCanceled
)

func (s JobState) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobRunning:
		return "running"
	case JobPaused:
		return "paused"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	case JobCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// JobRecord is the persisted shape of a job: everything the runtime needs to
// resume a job after a restart.
type JobRecord struct {
	ID                 uuid.UUID
	Name               string
	Hash               string // stable digest of init inputs, used for dedup
	State              JobState
	Initialized        bool // true once Init has produced Data/Steps
	TaskCount          int
	CompletedTaskCount int
	Message            string
	Phase              string
	Init               []byte // serialized Init payload
	Data               []byte // serialized Data payload
	Steps              []byte // serialized remaining step queue
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// ProgressUpdate is one entry of a ctx.Progress([]ProgressUpdate) call.
type ProgressUpdate struct {
	TaskCount          *int
	CompletedTaskCount *int
	Message            *string
	Phase              *string
}

// TaskCountUpdate builds a ProgressUpdate that sets the total task count.
func TaskCountUpdate(n int) ProgressUpdate { return ProgressUpdate{TaskCount: &n} }

// CompletedTaskCountUpdate builds a ProgressUpdate that sets the completed count.
func CompletedTaskCountUpdate(n int) ProgressUpdate { return ProgressUpdate{CompletedTaskCount: &n} }

// MessageUpdate builds a ProgressUpdate carrying a free-form message.
func MessageUpdate(msg string) ProgressUpdate { return ProgressUpdate{Message: &msg} }

// PhaseUpdate builds a ProgressUpdate carrying a phase label.
func PhaseUpdate(phase string) ProgressUpdate { return ProgressUpdate{Phase: &phase} }

// CRDTOperationKind classifies a recorded mutation.
type CRDTOperationKind string

const (
	OwnedUpdate  CRDTOperationKind = "owned_update"
	SharedCreate CRDTOperationKind = "shared_create"
	SharedUpdate CRDTOperationKind = "shared_update"
)

// CRDTOperation records a single logical mutation alongside a catalog write.
type CRDTOperation struct {
	Kind     CRDTOperationKind
	RecordID string // synthetic identifier of the affected row
	Field    string
	Value    any
}
