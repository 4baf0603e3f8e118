package emulator

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/resource"
)

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{2,62}$`)

func validDatabaseID(id string) bool {
	return id == resource.DefaultDatabase || (idPattern.MatchString(id) && !strings.HasSuffix(id, "-"))
}

type project struct {
	id        string
	databases map[string]*database
	deleted   []*model.Database
	// backups by location, then by full name.
	backups map[string]map[string]*backup
}

type database struct {
	meta      *model.Database
	indexes   map[string]*model.Index
	fields    map[string]*model.Field
	schedules map[string]*schedule
	creds     map[string]*userCred
	docs      map[string]*model.Document
	txs       map[string]*txState
}

type backup struct {
	meta    *model.Backup
	docs    map[string]*model.Document
	indexes []*model.Index
}

type schedule struct {
	meta    *model.BackupSchedule
	nextRun time.Time
}

type userCred struct {
	meta *model.UserCreds
	hash []byte
}

type txState struct {
	readOnly bool
	// reads maps document paths read in the transaction to the update
	// time seen; the zero time marks a missing document.
	reads map[string]time.Time
}

func newDatabase(meta *model.Database) *database {
	return &database{
		meta:      meta,
		indexes:   map[string]*model.Index{},
		fields:    map[string]*model.Field{},
		schedules: map[string]*schedule{},
		creds:     map[string]*userCred{},
		docs:      map[string]*model.Document{},
		txs:       map[string]*txState{},
	}
}

// projectLocked returns the project, creating it with its (default)
// database on first use. s.mu must be held for writing.
func (s *Server) projectLocked(id string) *project {
	p, ok := s.projects[id]
	if ok {
		return p
	}
	p = &project{id: id, databases: map[string]*database{}, backups: map[string]map[string]*backup{}}
	name := resource.DatabaseName{Project: id, Database: resource.DefaultDatabase}
	p.databases[resource.DefaultDatabase] = newDatabase(s.newDatabaseMeta(name, &model.Database{}))
	s.projects[id] = p
	return p
}

// readProject calls fn with the project under the read lock. A project
// seen for the first time is created under the write lock instead.
func (s *Server) readProject(id string, fn func(p *project) error) error {
	s.mu.RLock()
	if p, ok := s.projects[id]; ok {
		defer s.mu.RUnlock()
		return fn(p)
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.projectLocked(id))
}

// readDatabase is readProject for the database n.
func (s *Server) readDatabase(n resource.DatabaseName, fn func(db *database) error) error {
	return s.readProject(n.Project, func(p *project) error {
		db, ok := p.databases[n.Database]
		if !ok {
			return status.Errorf(codes.NotFound, "database %s does not exist", n)
		}
		return fn(db)
	})
}

func (s *Server) newDatabaseMeta(name resource.DatabaseName, in *model.Database) *model.Database {
	now := s.now()
	db := *in
	db.Name = name.String()
	db.UID = newID()
	db.CreateTime = &now
	db.UpdateTime = &now
	db.DeleteTime = nil
	db.EarliestVersionTime = &now
	db.Etag = newID()
	db.KeyPrefix = ""
	if db.LocationID == "" {
		db.LocationID = s.cfg.LocationID
	}
	if db.Type == "" || db.Type == model.DatabaseTypeUnspecified {
		db.Type = model.FirestoreNative
	}
	if db.ConcurrencyMode == "" || db.ConcurrencyMode == model.ConcurrencyModeUnspecified {
		db.ConcurrencyMode = model.Pessimistic
	}
	if db.PointInTimeRecoveryEnablement == "" {
		db.PointInTimeRecoveryEnablement = model.PointInTimeRecoveryDisabled
	}
	if db.AppEngineIntegrationMode == "" {
		db.AppEngineIntegrationMode = model.AppEngineIntegrationDisabled
	}
	if db.DeleteProtectionState == "" {
		db.DeleteProtectionState = model.DeleteProtectionDisabled
	}
	db.VersionRetentionPeriod = model.NewDuration(retentionFor(db.PointInTimeRecoveryEnablement))
	return &db
}

func retentionFor(pitr model.PointInTimeRecoveryEnablement) time.Duration {
	if pitr == model.PointInTimeRecoveryEnabled {
		return 7 * 24 * time.Hour
	}
	return time.Hour
}

// databaseLocked resolves a database resource name. s.mu must be held
// for writing since the project may be created.
func (s *Server) databaseLocked(name string) (*database, resource.DatabaseName, error) {
	n, err := resource.ParseDatabaseName(name)
	if err != nil {
		return nil, n, status.Error(codes.InvalidArgument, err.Error())
	}
	db, ok := s.projectLocked(n.Project).databases[n.Database]
	if !ok {
		return nil, n, status.Errorf(codes.NotFound, "database %s does not exist", name)
	}
	return db, n, nil
}

// pageOf slices items by an offset page token.
func pageOf[T any](items []T, pageSize int32, token string) ([]T, string, error) {
	start := 0
	if token != "" {
		n, err := decodeToken(token)
		if err != nil || n < 0 || n > len(items) {
			return nil, "", status.Errorf(codes.InvalidArgument, "invalid page token %q", token)
		}
		start = n
	}
	if pageSize <= 0 || start+int(pageSize) >= len(items) {
		return items[start:], "", nil
	}
	end := start + int(pageSize)
	return items[start:end], encodeToken(end), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ptr[T any](v T) *T { return &v }
