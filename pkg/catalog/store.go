// Package catalog defines the typed interface over the relational catalog
// (locations, file_paths, objects, jobs) and a bbolt-backed implementation.
package catalog

import (
	"errors"

	"github.com/google/uuid"
	"github.com/latticefs/core/pkg/types"
)

// ErrNotFound is returned when a lookup by id finds nothing.
var ErrNotFound = errors.New("catalog: not found")

// ErrFilePathCollision is returned when a batch insert collides on
// (location_id, id); per the spec the whole batch fails.
var ErrFilePathCollision = errors.New("catalog: file_path id collision")

// FilePathCreate is the payload for inserting one new FilePath row.
type FilePathCreate struct {
	LocationID       int32
	ID               int32
	MaterializedPath string
	IsDir            bool
	Extension        string
	DateCreated      int64 // unix nanos, avoids clock calls inside the store
	ParentID         *int32
}

// FilePathCasUpdate sets the cas_id of one existing FilePath.
type FilePathCasUpdate struct {
	LocationID int32
	ID         int32
	CasID      string
}

// ObjectCreate is the payload for inserting one new Object.
type ObjectCreate struct {
	PubID       uuid.UUID
	Kind        types.ObjectKind
	DateCreated int64
	SizeInBytes string
}

// Store is the typed interface the core pipelines use; §4.1 and §6 of the
// specification define its contract. Every write accepts the CRDT
// operations to persist alongside it; passing nil skips recording.
type Store interface {
	// Locations
	NextLocationID() (int32, error)
	CreateLocation(loc *types.Location) error
	GetLocation(id int32) (*types.Location, error)
	ListLocations() ([]*types.Location, error)
	DeleteLocation(id int32) error

	// FilePaths
	FindManyFilePathsByMaterializedPaths(locationID int32, paths []string) ([]*types.FilePath, error)
	GetFilePath(locationID, id int32) (*types.FilePath, error)
	ListFilePathsByLocation(locationID int32) ([]*types.FilePath, error)
	FindFilePathsMissingCasID(locationID int32, pathPrefix string) ([]*types.FilePath, error)
	FindFilePathsForThumbnail(locationID int32, pathPrefix string, extensions []string) ([]*types.FilePath, error)
	InsertFilePathsBatch(rows []FilePathCreate, ops []types.CRDTOperation) (int, error)
	UpdateFilePathsCasID(updates []FilePathCasUpdate, ops []types.CRDTOperation) error
	ConnectFilePathToObject(locationID, id int32, objectPubID uuid.UUID, ops []types.CRDTOperation) error
	DeleteFilePaths(locationID int32, ids []int32, ops []types.CRDTOperation) error

	// Objects
	FindObjectsByCasIDs(casIDs []string) (map[string]*types.Object, error)
	InsertObjectsBatch(rows []ObjectCreate, ops []types.CRDTOperation) (int, error)
	GetObject(pubID uuid.UUID) (*types.Object, error)
	// ResolveOrCreateObject atomically checks whether casID already maps to
	// an Object and, if not, creates one from create in the same
	// transaction. This is the serialization point that gives the
	// Identifier at-most-one-object-per-cas-id across concurrent runs:
	// whichever caller's transaction commits first wins, and every other
	// caller observes the winner's object instead of creating its own.
	ResolveOrCreateObject(casID string, create ObjectCreate, ops []types.CRDTOperation) (obj *types.Object, created bool, err error)

	// ID allocation support
	CurrentMaxFilePathID(locationID int32) (int32, error)
	FlushFilePathWatermark(locationID, max int32) error

	// Jobs
	CreateJob(j *types.JobRecord) error
	UpdateJob(j *types.JobRecord) error
	GetJob(id uuid.UUID) (*types.JobRecord, error)
	FindJobByHash(hash string, states []types.JobState) (*types.JobRecord, error)
	ListJobsByState(states ...types.JobState) ([]*types.JobRecord, error)

	Close() error
}
