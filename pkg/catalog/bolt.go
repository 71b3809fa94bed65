package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/latticefs/core/pkg/crdt"
	"github.com/latticefs/core/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketLocations      = []byte("locations")
	bucketFilePaths      = []byte("file_paths")
	bucketFilePathsByKey = []byte("file_paths_by_materialized_path")
	bucketObjects        = []byte("objects")
	bucketObjectsByCasID = []byte("objects_by_cas_id")
	bucketJobs           = []byte("jobs")
	bucketWatermarks     = []byte("file_path_watermarks")
	bucketJobHashIndex   = []byte("job_hash_index")
	bucketMeta           = []byte("meta")
)

// schemaVersionKey holds the catalog's schema version string inside
// bucketMeta; latticefs-migrate stamps it on bootstrap.
var schemaVersionKey = []byte("schema_version")

// CurrentSchemaVersion is the schema version new databases are stamped
// with by latticefs-migrate. Bump this alongside any bucket-shape change.
const CurrentSchemaVersion = "1"

// BoltStore implements Store on top of an embedded bbolt database. Multi-key
// writes run inside a single db.Update transaction, which is what the
// specification means by "transactional multi-statement writes" for an
// embedded, single-process catalog.
type BoltStore struct {
	db       *bolt.DB
	recorder *crdt.Recorder // optional; nil disables CRDT recording
}

// NewBoltStore opens (creating if necessary) the catalog database under
// dataDir and ensures all buckets exist.
func NewBoltStore(dataDir string, recorder *crdt.Recorder) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "catalog.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketLocations, bucketFilePaths, bucketFilePathsByKey,
			bucketObjects, bucketObjectsByCasID, bucketJobs,
			bucketWatermarks, bucketJobHashIndex, bucketMeta,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, recorder: recorder}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

// SchemaVersion reads the stamped schema version, or "" if the database
// predates schema stamping.
func (s *BoltStore) SchemaVersion() (string, error) {
	var version string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}
		version = string(b.Get(schemaVersionKey))
		return nil
	})
	return version, err
}

// SetSchemaVersion stamps the catalog's schema version.
func (s *BoltStore) SetSchemaVersion(version string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(schemaVersionKey, []byte(version))
	})
}

func (s *BoltStore) record(ops []types.CRDTOperation) {
	if s.recorder == nil || len(ops) == 0 {
		return
	}
	if err := s.recorder.Record(ops); err != nil {
		// The sync log is best-effort relative to the catalog write, which
		// has already committed; log and move on rather than fail the step.
		s.recorder.Logger().Error().Err(err).Msg("failed to append CRDT operations")
	}
}

func filePathKey(locationID, id int32) []byte {
	return []byte(fmt.Sprintf("%d:%d", locationID, id))
}

func filePathPathKey(locationID int32, materializedPath string) []byte {
	return []byte(fmt.Sprintf("%d:%s", locationID, materializedPath))
}

// ---- Locations ----

// NextLocationID allocates the next unused Location id from the locations
// bucket's own NextSequence counter (putObject uses the objects bucket's).
func (s *BoltStore) NextLocationID() (int32, error) {
	var id int32
	err := s.db.Update(func(tx *bolt.Tx) error {
		seq, err := tx.Bucket(bucketLocations).NextSequence()
		if err != nil {
			return err
		}
		id = int32(seq)
		return nil
	})
	return id, err
}

func (s *BoltStore) CreateLocation(loc *types.Location) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(loc)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketLocations).Put([]byte(strconv.Itoa(int(loc.ID))), data)
	})
}

func (s *BoltStore) GetLocation(id int32) (*types.Location, error) {
	var loc types.Location
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLocations).Get([]byte(strconv.Itoa(int(id))))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &loc)
	})
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (s *BoltStore) ListLocations() ([]*types.Location, error) {
	var locs []*types.Location
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLocations).ForEach(func(k, v []byte) error {
			var loc types.Location
			if err := json.Unmarshal(v, &loc); err != nil {
				return err
			}
			locs = append(locs, &loc)
			return nil
		})
	})
	return locs, err
}

func (s *BoltStore) DeleteLocation(id int32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLocations).Delete([]byte(strconv.Itoa(int(id))))
	})
}

// ---- FilePaths ----

func (s *BoltStore) FindManyFilePathsByMaterializedPaths(locationID int32, paths []string) ([]*types.FilePath, error) {
	var out []*types.FilePath
	err := s.db.View(func(tx *bolt.Tx) error {
		byPath := tx.Bucket(bucketFilePathsByKey)
		byID := tx.Bucket(bucketFilePaths)
		for _, p := range paths {
			idBytes := byPath.Get(filePathPathKey(locationID, p))
			if idBytes == nil {
				continue
			}
			data := byID.Get(idBytes)
			if data == nil {
				continue
			}
			var fp types.FilePath
			if err := json.Unmarshal(data, &fp); err != nil {
				return err
			}
			out = append(out, &fp)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) GetFilePath(locationID, id int32) (*types.FilePath, error) {
	var fp types.FilePath
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFilePaths).Get(filePathKey(locationID, id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &fp)
	})
	if err != nil {
		return nil, err
	}
	return &fp, nil
}

func (s *BoltStore) ListFilePathsByLocation(locationID int32) ([]*types.FilePath, error) {
	prefix := []byte(fmt.Sprintf("%d:", locationID))
	var out []*types.FilePath
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketFilePaths).Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var fp types.FilePath
			if err := json.Unmarshal(v, &fp); err != nil {
				return err
			}
			out = append(out, &fp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *BoltStore) FindFilePathsMissingCasID(locationID int32, pathPrefix string) ([]*types.FilePath, error) {
	all, err := s.ListFilePathsByLocation(locationID)
	if err != nil {
		return nil, err
	}
	var out []*types.FilePath
	for _, fp := range all {
		if fp.IsDir || fp.CasID != nil {
			continue
		}
		if !withinSubPath(fp.MaterializedPath, pathPrefix) {
			continue
		}
		out = append(out, fp)
	}
	return out, nil
}

func (s *BoltStore) FindFilePathsForThumbnail(locationID int32, pathPrefix string, extensions []string) ([]*types.FilePath, error) {
	all, err := s.ListFilePathsByLocation(locationID)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		allowed[e] = true
	}
	var out []*types.FilePath
	for _, fp := range all {
		if fp.IsDir || fp.CasID == nil {
			continue
		}
		if !allowed[fp.Extension] {
			continue
		}
		if !withinSubPath(fp.MaterializedPath, pathPrefix) {
			continue
		}
		out = append(out, fp)
	}
	return out, nil
}

func withinSubPath(materializedPath, pathPrefix string) bool {
	if pathPrefix == "" || pathPrefix == types.RootMaterializedPath {
		return true
	}
	return strings.HasPrefix(materializedPath, pathPrefix)
}

func (s *BoltStore) InsertFilePathsBatch(rows []FilePathCreate, ops []types.CRDTOperation) (int, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		byID := tx.Bucket(bucketFilePaths)
		byPath := tx.Bucket(bucketFilePathsByKey)

		for _, r := range rows {
			key := filePathKey(r.LocationID, r.ID)
			if byID.Get(key) != nil {
				return fmt.Errorf("%w: location=%d id=%d", ErrFilePathCollision, r.LocationID, r.ID)
			}
		}

		for _, r := range rows {
			fp := types.FilePath{
				LocationID:       r.LocationID,
				ID:               r.ID,
				MaterializedPath: r.MaterializedPath,
				IsDir:            r.IsDir,
				Extension:        r.Extension,
				DateCreated:      time.Unix(0, r.DateCreated),
				ParentID:         r.ParentID,
			}
			data, err := json.Marshal(&fp)
			if err != nil {
				return err
			}
			key := filePathKey(r.LocationID, r.ID)
			if err := byID.Put(key, data); err != nil {
				return err
			}
			if err := byPath.Put(filePathPathKey(r.LocationID, r.MaterializedPath), key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.record(ops)
	return len(rows), nil
}

func (s *BoltStore) UpdateFilePathsCasID(updates []FilePathCasUpdate, ops []types.CRDTOperation) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFilePaths)
		for _, u := range updates {
			key := filePathKey(u.LocationID, u.ID)
			data := b.Get(key)
			if data == nil {
				return fmt.Errorf("%w: location=%d id=%d", ErrNotFound, u.LocationID, u.ID)
			}
			var fp types.FilePath
			if err := json.Unmarshal(data, &fp); err != nil {
				return err
			}
			casID := u.CasID
			fp.CasID = &casID
			updated, err := json.Marshal(&fp)
			if err != nil {
				return err
			}
			if err := b.Put(key, updated); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ops)
	return nil
}

func (s *BoltStore) ConnectFilePathToObject(locationID, id int32, objectPubID uuid.UUID, ops []types.CRDTOperation) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFilePaths)
		key := filePathKey(locationID, id)
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("%w: location=%d id=%d", ErrNotFound, locationID, id)
		}
		var fp types.FilePath
		if err := json.Unmarshal(data, &fp); err != nil {
			return err
		}
		pub := objectPubID
		fp.ObjectPubID = &pub
		updated, err := json.Marshal(&fp)
		if err != nil {
			return err
		}
		return b.Put(key, updated)
	})
	if err != nil {
		return err
	}
	s.record(ops)
	return nil
}

func (s *BoltStore) DeleteFilePaths(locationID int32, ids []int32, ops []types.CRDTOperation) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		byID := tx.Bucket(bucketFilePaths)
		byPath := tx.Bucket(bucketFilePathsByKey)
		for _, id := range ids {
			key := filePathKey(locationID, id)
			data := byID.Get(key)
			if data == nil {
				continue
			}
			var fp types.FilePath
			if err := json.Unmarshal(data, &fp); err != nil {
				return err
			}
			if err := byID.Delete(key); err != nil {
				return err
			}
			if err := byPath.Delete(filePathPathKey(locationID, fp.MaterializedPath)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ops)
	return nil
}

// ---- Objects ----

// FindObjectsByCasIDs returns, for each cas id already represented, the
// Object it maps to. This is a read-only lookup against the objects_by_cas_id
// unique index; ResolveOrCreateObject is what actually enforces the index.
func (s *BoltStore) FindObjectsByCasIDs(casIDs []string) (map[string]*types.Object, error) {
	out := make(map[string]*types.Object)
	err := s.db.View(func(tx *bolt.Tx) error {
		byCas := tx.Bucket(bucketObjectsByCasID)
		objects := tx.Bucket(bucketObjects)
		for _, cas := range casIDs {
			pub := byCas.Get([]byte(cas))
			if pub == nil {
				continue
			}
			data := objects.Get(pub)
			if data == nil {
				continue
			}
			var obj types.Object
			if err := json.Unmarshal(data, &obj); err != nil {
				return err
			}
			out[cas] = &obj
		}
		return nil
	})
	return out, err
}

// objectEnvelope stores the object alongside its insertion sequence from the
// objects bucket. Lookups by cas id go through the cas id index and do not
// read Seq.
type objectEnvelope struct {
	types.Object
	Seq uint64
}

func (s *BoltStore) InsertObjectsBatch(rows []ObjectCreate, ops []types.CRDTOperation) (int, error) {
	created := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		objects := tx.Bucket(bucketObjects)

		for _, r := range rows {
			if err := putObject(objects, r); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.record(ops)
	return created, nil
}

func putObject(objects *bolt.Bucket, r ObjectCreate) error {
	seq, err := objects.NextSequence()
	if err != nil {
		return err
	}
	env := objectEnvelope{
		Object: types.Object{
			PubID:       r.PubID,
			Kind:        r.Kind,
			DateCreated: time.Unix(0, r.DateCreated),
			SizeInBytes: r.SizeInBytes,
		},
		Seq: seq,
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return err
	}
	return objects.Put([]byte(r.PubID.String()), data)
}

// ResolveOrCreateObject is the unique-index enforcement point for §4.4's
// at-most-one-object-per-cas-id invariant: the existence check and the
// insert happen inside one bbolt write transaction, so two concurrent
// callers racing on the same cas id can never both "win" — the second
// transaction to run always observes the first one's committed object.
func (s *BoltStore) ResolveOrCreateObject(casID string, create ObjectCreate, ops []types.CRDTOperation) (*types.Object, bool, error) {
	var obj types.Object
	created := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		byCas := tx.Bucket(bucketObjectsByCasID)
		objects := tx.Bucket(bucketObjects)

		if existingPub := byCas.Get([]byte(casID)); existingPub != nil {
			data := objects.Get(existingPub)
			if data == nil {
				return fmt.Errorf("catalog: cas index points at missing object %s", existingPub)
			}
			var env objectEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				return err
			}
			obj = env.Object
			return nil
		}

		if err := putObject(objects, create); err != nil {
			return err
		}
		if err := byCas.Put([]byte(casID), []byte(create.PubID.String())); err != nil {
			return err
		}
		obj = types.Object{
			PubID:       create.PubID,
			Kind:        create.Kind,
			DateCreated: time.Unix(0, create.DateCreated),
			SizeInBytes: create.SizeInBytes,
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.record(ops)
	}
	return &obj, created, nil
}

func (s *BoltStore) GetObject(pubID uuid.UUID) (*types.Object, error) {
	var env objectEnvelope
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketObjects).Get([]byte(pubID.String()))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &env)
	})
	if err != nil {
		return nil, err
	}
	return &env.Object, nil
}

// ---- ID allocation support ----

func (s *BoltStore) CurrentMaxFilePathID(locationID int32) (int32, error) {
	var max int32
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketWatermarks).Get([]byte(strconv.Itoa(int(locationID))))
		if data == nil {
			return nil
		}
		v, err := strconv.Atoi(string(data))
		if err != nil {
			return err
		}
		max = int32(v)
		return nil
	})
	return max, err
}

func (s *BoltStore) FlushFilePathWatermark(locationID, max int32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWatermarks).Put([]byte(strconv.Itoa(int(locationID))), []byte(strconv.Itoa(int(max))))
	})
}

// ---- Jobs ----

func (s *BoltStore) CreateJob(j *types.JobRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(j)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketJobs).Put([]byte(j.ID.String()), data); err != nil {
			return err
		}
		return tx.Bucket(bucketJobHashIndex).Put([]byte(j.Hash), []byte(j.ID.String()))
	})
}

func (s *BoltStore) UpdateJob(j *types.JobRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(j)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketJobs).Put([]byte(j.ID.String()), data)
	})
}

func (s *BoltStore) GetJob(id uuid.UUID) (*types.JobRecord, error) {
	var j types.JobRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get([]byte(id.String()))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &j)
	})
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *BoltStore) FindJobByHash(hash string, states []types.JobState) (*types.JobRecord, error) {
	var idBytes []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		idBytes = tx.Bucket(bucketJobHashIndex).Get([]byte(hash))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if idBytes == nil {
		return nil, ErrNotFound
	}
	id, err := uuid.Parse(string(idBytes))
	if err != nil {
		return nil, err
	}
	j, err := s.GetJob(id)
	if err != nil {
		return nil, err
	}
	for _, st := range states {
		if j.State == st {
			return j, nil
		}
	}
	return nil, ErrNotFound
}

func (s *BoltStore) ListJobsByState(states ...types.JobState) ([]*types.JobRecord, error) {
	wanted := make(map[types.JobState]bool, len(states))
	for _, st := range states {
		wanted[st] = true
	}
	var out []*types.JobRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var j types.JobRecord
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if len(wanted) == 0 || wanted[j.State] {
				out = append(out, &j)
			}
			return nil
		})
	})
	return out, err
}
