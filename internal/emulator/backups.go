package emulator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/resource"
)

const (
	defaultBackupRetention = 7 * 24 * time.Hour
	maxBackupRetention     = 14 * 7 * 24 * time.Hour
	allLocations           = "-"
)

var weekdays = map[model.DayOfWeek]time.Weekday{
	model.Monday:    time.Monday,
	model.Tuesday:   time.Tuesday,
	model.Wednesday: time.Wednesday,
	model.Thursday:  time.Thursday,
	model.Friday:    time.Friday,
	model.Saturday:  time.Saturday,
	model.Sunday:    time.Sunday,
}

func cloneBackup(b *model.Backup) *model.Backup {
	c := *b
	if b.Stats != nil {
		st := *b.Stats
		c.Stats = &st
	}
	return &c
}

func cloneDocs(docs map[string]*model.Document) map[string]*model.Document {
	out := make(map[string]*model.Document, len(docs))
	for k, d := range docs {
		out[k] = cloneDocument(d)
	}
	return out
}

// backupNowLocked snapshots a database into a READY backup in the
// database's location.
func (s *Server) backupNowLocked(dbName string, retention time.Duration) (*model.Backup, error) {
	db, name, err := s.databaseLocked(dbName)
	if err != nil {
		return nil, err
	}
	if retention <= 0 {
		retention = defaultBackupRetention
	}
	if retention > maxBackupRetention {
		return nil, status.Errorf(codes.InvalidArgument, "retention %s exceeds the maximum of 14 weeks", retention)
	}

	now := s.now()
	docs := cloneDocs(db.docs)
	var size int64
	for _, d := range docs {
		if b, err := json.Marshal(d); err == nil {
			size += int64(len(b))
		}
	}
	indexes := make([]*model.Index, 0, len(db.indexes))
	for _, k := range sortedKeys(db.indexes) {
		indexes = append(indexes, cloneIndex(db.indexes[k]))
	}

	loc := resource.ProjectName{Project: name.Project}.Location(db.meta.LocationID)
	b := &backup{
		meta: &model.Backup{
			Name:         loc.Backup(newID()).String(),
			Database:     name.String(),
			DatabaseUID:  db.meta.UID,
			SnapshotTime: &now,
			ExpireTime:   ptr(now.Add(retention)),
			Stats: &model.BackupStats{
				SizeBytes:     size,
				DocumentCount: int64(len(docs)),
				IndexCount:    int64(len(indexes)),
			},
			State: model.BackupReady,
		},
		docs:    docs,
		indexes: indexes,
	}
	p := s.projects[name.Project]
	if p.backups[loc.Location] == nil {
		p.backups[loc.Location] = map[string]*backup{}
	}
	p.backups[loc.Location][b.meta.Name] = b
	s.logger.Info().Str("backup", b.meta.Name).Str("database", name.String()).Int("documents", len(docs)).Msg("backup created")
	return cloneBackup(b.meta), nil
}

func (s *Server) backupLocked(name string) (*project, *backup, resource.BackupName, error) {
	n, err := resource.ParseBackupName(name)
	if err != nil {
		return nil, nil, n, status.Error(codes.InvalidArgument, err.Error())
	}
	p := s.projectLocked(n.Project)
	b, ok := p.backups[n.Location][name]
	if !ok {
		return nil, nil, n, status.Errorf(codes.NotFound, "backup %s not found", name)
	}
	return p, b, n, nil
}

func (s *Server) getBackup(_ context.Context, req *model.GetBackupRequest) (*model.Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, b, _, err := s.backupLocked(req.Name)
	if err != nil {
		return nil, err
	}
	return cloneBackup(b.meta), nil
}

// parseBackupFilter accepts database="projects/p/databases/d".
func parseBackupFilter(filter string) (string, error) {
	f := strings.TrimSpace(filter)
	if f == "" {
		return "", nil
	}
	v, ok := strings.CutPrefix(strings.ReplaceAll(f, " ", ""), "database=")
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "unsupported filter %q", filter)
	}
	return strings.Trim(v, `"`), nil
}

func (s *Server) listBackups(_ context.Context, req *model.ListBackupsRequest) (*model.ListBackupsResponse, error) {
	loc, err := resource.ParseLocationName(req.Parent)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	dbFilter, err := parseBackupFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projectLocked(loc.Project)
	resp := &model.ListBackupsResponse{}
	for _, l := range sortedKeys(p.backups) {
		if loc.Location != allLocations && l != loc.Location {
			continue
		}
		for _, name := range sortedKeys(p.backups[l]) {
			b := p.backups[l][name]
			if dbFilter != "" && b.meta.Database != dbFilter {
				continue
			}
			resp.Backups = append(resp.Backups, cloneBackup(b.meta))
		}
	}
	return resp, nil
}

func (s *Server) deleteBackup(_ context.Context, req *model.DeleteBackupRequest) (*model.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, _, n, err := s.backupLocked(req.Name)
	if err != nil {
		return nil, err
	}
	delete(p.backups[n.Location], req.Name)
	return &model.Empty{}, nil
}

func (s *Server) restoreDatabase(_ context.Context, req *model.RestoreDatabaseRequest) (*model.Operation, error) {
	parent, err := resource.ParseProjectName(req.Parent)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !validDatabaseID(req.DatabaseID) {
		return nil, status.Errorf(codes.InvalidArgument, "database id %q must match [a-z][a-z0-9-]{2,62} or be (default)", req.DatabaseID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, b, bn, err := s.backupLocked(req.Backup)
	if err != nil {
		return nil, err
	}
	if bn.Project != parent.Project {
		return nil, status.Errorf(codes.InvalidArgument, "backup %s belongs to another project", req.Backup)
	}
	if b.meta.State != model.BackupReady {
		return nil, status.Errorf(codes.FailedPrecondition, "backup %s is %s", req.Backup, b.meta.State)
	}
	p := s.projectLocked(parent.Project)
	if _, ok := p.databases[req.DatabaseID]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "database %s already exists", parent.Database(req.DatabaseID))
	}

	name := parent.Database(req.DatabaseID)
	opName := name.Operation(newID()).String()
	meta := s.newDatabaseMeta(name, &model.Database{LocationID: bn.Location})
	meta.SourceInfo = &model.SourceInfo{Backup: &model.BackupSource{Backup: req.Backup}, Operation: opName}
	db := newDatabase(meta)
	p.databases[req.DatabaseID] = db

	start := s.now()
	return s.startOperationLocked(name, job{
		name: opName,
		meta: func(state model.OperationState) model.Message {
			m := model.RestoreDatabaseMetadata{
				StartTime: &start, EndTime: s.endTime(state), OperationState: state,
				Database: name.String(), Backup: req.Backup,
			}
			if terminal(state) {
				m.ProgressPercentage = &model.Progress{EstimatedWork: 100, CompletedWork: 100}
			}
			return m
		},
		run: func() (model.Message, error) {
			for _, d := range b.docs {
				c := cloneDocument(d)
				c.Name = renameDocument(d.Name, name)
				db.docs[documentPath(c.Name)] = c
			}
			for _, ix := range b.indexes {
				n, err := resource.ParseIndexName(ix.Name)
				if err != nil {
					continue
				}
				c := cloneIndex(ix)
				c.Name = name.CollectionGroup(n.Collection).Index(n.Index).String()
				db.indexes[c.Name] = c
			}
			return *cloneDatabase(db.meta), nil
		},
		onCancel: func() { delete(p.databases, req.DatabaseID) },
	})
}

func cloneSchedule(sc *model.BackupSchedule) *model.BackupSchedule {
	c := *sc
	if sc.WeeklyRecurrence != nil {
		w := *sc.WeeklyRecurrence
		c.WeeklyRecurrence = &w
	}
	return &c
}

func checkRecurrence(sc *model.BackupSchedule) error {
	if (sc.DailyRecurrence == nil) == (sc.WeeklyRecurrence == nil) {
		return status.Error(codes.InvalidArgument, "backup schedule must set exactly one of dailyRecurrence and weeklyRecurrence")
	}
	if sc.WeeklyRecurrence != nil {
		if _, ok := weekdays[sc.WeeklyRecurrence.Day]; !ok {
			return status.Errorf(codes.InvalidArgument, "invalid weekly recurrence day %q", sc.WeeklyRecurrence.Day)
		}
	}
	return nil
}

func checkRetention(d *model.Duration) error {
	if d == nil || d.Duration <= 0 {
		return status.Error(codes.InvalidArgument, "backup schedule retention is required")
	}
	if d.Duration > maxBackupRetention {
		return status.Error(codes.InvalidArgument, "backup schedule retention exceeds the maximum of 14 weeks")
	}
	return nil
}

// nextRun returns the first midnight UTC after t on which sc fires.
func nextRun(sc *model.BackupSchedule, t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	if sc.WeeklyRecurrence == nil {
		return next
	}
	want := weekdays[sc.WeeklyRecurrence.Day]
	for next.Weekday() != want {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Server) createBackupSchedule(_ context.Context, req *model.CreateBackupScheduleRequest) (*model.BackupSchedule, error) {
	in := req.BackupSchedule
	if err := checkRecurrence(in); err != nil {
		return nil, err
	}
	if err := checkRetention(in.Retention); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db, name, err := s.databaseLocked(req.Parent)
	if err != nil {
		return nil, err
	}
	for _, existing := range db.schedules {
		if (existing.meta.DailyRecurrence != nil) == (in.DailyRecurrence != nil) {
			return nil, status.Errorf(codes.AlreadyExists, "database %s already has a %s backup schedule", name, recurrenceKind(in))
		}
	}

	now := s.now()
	sc := cloneSchedule(in)
	sc.Name = name.BackupSchedule(newID()).String()
	sc.CreateTime = &now
	sc.UpdateTime = &now
	db.schedules[sc.Name] = &schedule{meta: sc, nextRun: nextRun(sc, now)}
	return cloneSchedule(sc), nil
}

func recurrenceKind(sc *model.BackupSchedule) string {
	if sc.DailyRecurrence != nil {
		return "daily"
	}
	return "weekly"
}

func (s *Server) scheduleLocked(name string) (*database, *schedule, error) {
	n, err := resource.ParseBackupScheduleName(name)
	if err != nil {
		return nil, nil, status.Error(codes.InvalidArgument, err.Error())
	}
	db, _, err := s.databaseLocked(n.Parent().String())
	if err != nil {
		return nil, nil, err
	}
	sc, ok := db.schedules[name]
	if !ok {
		return nil, nil, status.Errorf(codes.NotFound, "backup schedule %s not found", name)
	}
	return db, sc, nil
}

func (s *Server) getBackupSchedule(_ context.Context, req *model.GetBackupScheduleRequest) (*model.BackupSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, sc, err := s.scheduleLocked(req.Name)
	if err != nil {
		return nil, err
	}
	return cloneSchedule(sc.meta), nil
}

func (s *Server) listBackupSchedules(_ context.Context, req *model.ListBackupSchedulesRequest) (*model.ListBackupSchedulesResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, _, err := s.databaseLocked(req.Parent)
	if err != nil {
		return nil, err
	}
	resp := &model.ListBackupSchedulesResponse{}
	for _, k := range sortedKeys(db.schedules) {
		resp.BackupSchedules = append(resp.BackupSchedules, cloneSchedule(db.schedules[k].meta))
	}
	return resp, nil
}

func (s *Server) updateBackupSchedule(_ context.Context, req *model.UpdateBackupScheduleRequest) (*model.BackupSchedule, error) {
	in := req.BackupSchedule
	s.mu.Lock()
	defer s.mu.Unlock()
	_, sc, err := s.scheduleLocked(in.Name)
	if err != nil {
		return nil, err
	}

	paths := []string{"retention", "weeklyRecurrence"}
	if req.UpdateMask != nil && len(req.UpdateMask.Paths) > 0 {
		paths = req.UpdateMask.Paths
	}
	next := cloneSchedule(sc.meta)
	for _, p := range paths {
		switch p {
		case "retention":
			if in.Retention == nil && req.UpdateMask == nil {
				continue
			}
			if err := checkRetention(in.Retention); err != nil {
				return nil, err
			}
			next.Retention = in.Retention
		case "weeklyRecurrence":
			if in.WeeklyRecurrence == nil && req.UpdateMask == nil {
				continue
			}
			if next.WeeklyRecurrence == nil {
				return nil, status.Error(codes.InvalidArgument, "the recurrence type of a backup schedule cannot change")
			}
			next.WeeklyRecurrence = in.WeeklyRecurrence
			if err := checkRecurrence(next); err != nil {
				return nil, err
			}
		case "dailyRecurrence":
			if next.DailyRecurrence == nil {
				return nil, status.Error(codes.InvalidArgument, "the recurrence type of a backup schedule cannot change")
			}
		default:
			return nil, status.Errorf(codes.InvalidArgument, "field %q cannot be updated", p)
		}
	}
	now := s.now()
	next.UpdateTime = &now
	sc.meta = next
	sc.nextRun = nextRun(next, now)
	return cloneSchedule(next), nil
}

func (s *Server) deleteBackupSchedule(_ context.Context, req *model.DeleteBackupScheduleRequest) (*model.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, sc, err := s.scheduleLocked(req.Name)
	if err != nil {
		return nil, err
	}
	delete(db.schedules, sc.meta.Name)
	return &model.Empty{}, nil
}

// runSchedules takes the backups that are due at now and drops the
// backups that have expired.
func (s *Server) runSchedules(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pid := range sortedKeys(s.projects) {
		p := s.projects[pid]
		for _, loc := range sortedKeys(p.backups) {
			for name, b := range p.backups[loc] {
				if b.meta.ExpireTime != nil && !b.meta.ExpireTime.After(now) {
					delete(p.backups[loc], name)
					s.logger.Info().Str("backup", name).Msg("backup expired")
				}
			}
		}
		for _, id := range sortedKeys(p.databases) {
			db := p.databases[id]
			for _, k := range sortedKeys(db.schedules) {
				sc := db.schedules[k]
				if sc.nextRun.After(now) {
					continue
				}
				if _, err := s.backupNowLocked(db.meta.Name, sc.meta.Retention.Duration); err != nil {
					s.logger.Error().Err(err).Str("schedule", sc.meta.Name).Msg("scheduled backup failed")
				}
				sc.nextRun = nextRun(sc.meta, now)
			}
		}
	}
}
