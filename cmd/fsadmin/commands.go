package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/resource"
)

func cmdDatabases(args []string) {
	action, rest := verb(args, "fsadmin databases list|get|create|update|delete [flags]")
	fs := flag.NewFlagSet("databases "+action, flag.ExitOnError)
	g := addGlobalFlags(fs)
	id := fs.String("id", "", "Database ID (defaults to -database)")
	location := fs.String("location", "", "Location for create (defaults to FIRESTORE_LOCATION)")
	dbType := fs.String("type", string(model.FirestoreNative), "FIRESTORE_NATIVE or DATASTORE_MODE")
	pitr := fs.String("pitr", "", "Point-in-time recovery: enabled or disabled")
	protect := fs.String("delete-protection", "", "Delete protection: enabled or disabled")
	showDeleted := fs.Bool("show-deleted", false, "Include deleted databases in list")
	etag := fs.String("etag", "", "Only delete if the database etag matches")
	fs.Parse(rest)

	s := connect(g)
	name := s.db
	if *id != "" {
		name = s.project().Database(*id)
	}

	switch action {
	case "list":
		resp, err := s.client.ListDatabases(s.ctx, &model.ListDatabasesRequest{Parent: s.project().String(), ShowDeleted: *showDeleted})
		if err != nil {
			fail("%v", err)
		}
		printJSON(resp)
	case "get":
		db, err := s.client.GetDatabase(s.ctx, &model.GetDatabaseRequest{Name: name.String()})
		if err != nil {
			fail("%v", err)
		}
		printJSON(db)
	case "create":
		loc := *location
		if loc == "" {
			loc = s.cfg.LocationID
		}
		db := &model.Database{LocationID: loc, Type: model.DatabaseType(*dbType)}
		db.PointInTimeRecoveryEnablement = pitrState(*pitr)
		db.DeleteProtectionState = protectionState(*protect)
		op, err := s.client.CreateDatabase(s.ctx, &model.CreateDatabaseRequest{
			Parent:     s.project().String(),
			DatabaseID: name.Database,
			Database:   db,
		})
		finish(s, op, err)
	case "update":
		db := &model.Database{Name: name.String()}
		var paths []string
		if *pitr != "" {
			db.PointInTimeRecoveryEnablement = pitrState(*pitr)
			paths = append(paths, "pointInTimeRecoveryEnablement")
		}
		if *protect != "" {
			db.DeleteProtectionState = protectionState(*protect)
			paths = append(paths, "deleteProtectionState")
		}
		if len(paths) == 0 {
			fail("nothing to update: set -pitr or -delete-protection")
		}
		op, err := s.client.UpdateDatabase(s.ctx, &model.UpdateDatabaseRequest{Database: db, UpdateMask: model.NewFieldMask(paths...)})
		finish(s, op, err)
	case "delete":
		op, err := s.client.DeleteDatabase(s.ctx, &model.DeleteDatabaseRequest{Name: name.String(), Etag: *etag})
		finish(s, op, err)
	default:
		fail("unknown databases action %q", action)
	}
}

func pitrState(v string) model.PointInTimeRecoveryEnablement {
	switch strings.ToLower(v) {
	case "":
		return ""
	case "enabled", "true", "on":
		return model.PointInTimeRecoveryEnabled
	default:
		return model.PointInTimeRecoveryDisabled
	}
}

func protectionState(v string) model.DeleteProtectionState {
	switch strings.ToLower(v) {
	case "":
		return ""
	case "enabled", "true", "on":
		return model.DeleteProtectionEnabled
	default:
		return model.DeleteProtectionDisabled
	}
}

func cmdIndexes(args []string) {
	action, rest := verb(args, "fsadmin indexes list|get|create|delete -collection-group GROUP [flags]")
	fs := flag.NewFlagSet("indexes "+action, flag.ExitOnError)
	g := addGlobalFlags(fs)
	group := fs.String("collection-group", "", "Collection group ID")
	id := fs.String("id", "", "Index ID (get, delete)")
	fields := fs.String("fields", "", "Index fields for create, e.g. city:asc,age:desc,tags:contains")
	scope := fs.String("scope", string(model.QueryScopeCollection), "Query scope: COLLECTION, COLLECTION_GROUP or COLLECTION_RECURSIVE")
	filter := fs.String("filter", "", "List filter")
	fs.Parse(rest)
	requireFlags(fs, "collection-group")

	s := connect(g)
	cg := s.db.CollectionGroup(*group)

	switch action {
	case "list":
		var out []*model.Index
		for idx, err := range s.client.ListIndexes(s.ctx, &model.ListIndexesRequest{Parent: cg.String(), Filter: *filter}) {
			if err != nil {
				fail("%v", err)
			}
			out = append(out, idx)
		}
		printJSON(out)
	case "get":
		requireFlags(fs, "id")
		idx, err := s.client.GetIndex(s.ctx, &model.GetIndexRequest{Name: cg.Index(*id).String()})
		if err != nil {
			fail("%v", err)
		}
		printJSON(idx)
	case "create":
		requireFlags(fs, "fields")
		idxFields, err := parseIndexFields(*fields)
		if err != nil {
			fail("%v", err)
		}
		op, err := s.client.CreateIndex(s.ctx, &model.CreateIndexRequest{
			Parent: cg.String(),
			Index:  &model.Index{QueryScope: model.QueryScope(*scope), Fields: idxFields},
		})
		finish(s, op, err)
	case "delete":
		requireFlags(fs, "id")
		if err := s.client.DeleteIndex(s.ctx, &model.DeleteIndexRequest{Name: cg.Index(*id).String()}); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Deleted index %s\n", *id)
	default:
		fail("unknown indexes action %q", action)
	}
}

// parseIndexFields parses "path:asc,path:desc,path:contains".
func parseIndexFields(list string) ([]model.IndexField, error) {
	var out []model.IndexField
	for _, part := range splitList(list) {
		path, mode, ok := strings.Cut(part, ":")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid index field %q: want path:asc|desc|contains", part)
		}
		f := model.IndexField{FieldPath: path}
		switch strings.ToLower(mode) {
		case "asc", "ascending":
			f.Order = model.Ascending
		case "desc", "descending":
			f.Order = model.Descending
		case "contains", "array":
			f.ArrayConfig = model.ArrayContains
		default:
			return nil, fmt.Errorf("invalid index field mode %q", mode)
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no index fields given")
	}
	return out, nil
}

func cmdFields(args []string) {
	action, rest := verb(args, "fsadmin fields list|get|update -collection-group GROUP [flags]")
	fs := flag.NewFlagSet("fields "+action, flag.ExitOnError)
	g := addGlobalFlags(fs)
	group := fs.String("collection-group", "", "Collection group ID")
	field := fs.String("field", "", "Field path (get, update)")
	ttl := fs.String("ttl", "", "TTL policy for update: enabled or disabled")
	exempt := fs.Bool("exempt", false, "Exempt the field from single-field indexing (update)")
	filter := fs.String("filter", "indexConfig.usesAncestorConfig:false", "List filter")
	fs.Parse(rest)
	requireFlags(fs, "collection-group")

	s := connect(g)
	cg := s.db.CollectionGroup(*group)

	switch action {
	case "list":
		var out []*model.Field
		for f, err := range s.client.ListFields(s.ctx, &model.ListFieldsRequest{Parent: cg.String(), Filter: *filter}) {
			if err != nil {
				fail("%v", err)
			}
			out = append(out, f)
		}
		printJSON(out)
	case "get":
		requireFlags(fs, "field")
		f, err := s.client.GetField(s.ctx, &model.GetFieldRequest{Name: cg.Field(*field).String()})
		if err != nil {
			fail("%v", err)
		}
		printJSON(f)
	case "update":
		requireFlags(fs, "field")
		f := &model.Field{Name: cg.Field(*field).String()}
		var paths []string
		switch strings.ToLower(*ttl) {
		case "":
		case "enabled", "true", "on":
			f.TTLConfig = &model.TTLConfig{}
			paths = append(paths, "ttlConfig")
		default:
			paths = append(paths, "ttlConfig")
		}
		if *exempt {
			f.IndexConfig = &model.FieldIndexConfig{}
			paths = append(paths, "indexConfig")
		}
		if len(paths) == 0 {
			fail("nothing to update: set -ttl or -exempt")
		}
		op, err := s.client.UpdateField(s.ctx, &model.UpdateFieldRequest{Field: f, UpdateMask: model.NewFieldMask(paths...)})
		finish(s, op, err)
	default:
		fail("unknown fields action %q", action)
	}
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	g := addGlobalFlags(fs)
	output := fs.String("output", "", "Output URI prefix (gs://, s3:// or file://)")
	collections := fs.String("collections", "", "Comma-separated collection IDs (default: all)")
	snapshot := fs.String("snapshot-time", "", "Export the database as of this RFC 3339 time")
	fs.Parse(args)

	s := connect(g)
	req := &model.ExportDocumentsRequest{
		Name:            s.db.String(),
		CollectionIDs:   splitList(*collections),
		OutputURIPrefix: *output,
	}
	if *snapshot != "" {
		t, err := time.Parse(time.RFC3339, *snapshot)
		if err != nil {
			fail("invalid -snapshot-time: %v", err)
		}
		req.SnapshotTime = &t
	}
	op, err := s.client.ExportDocuments(s.ctx, req)
	finish(s, op, err)
}

func cmdImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	g := addGlobalFlags(fs)
	input := fs.String("input", "", "Input URI prefix of a previous export")
	collections := fs.String("collections", "", "Comma-separated collection IDs (default: all)")
	fs.Parse(args)
	requireFlags(fs, "input")

	s := connect(g)
	op, err := s.client.ImportDocuments(s.ctx, &model.ImportDocumentsRequest{
		Name:           s.db.String(),
		CollectionIDs:  splitList(*collections),
		InputURIPrefix: *input,
	})
	finish(s, op, err)
}

func cmdBulkDelete(args []string) {
	fs := flag.NewFlagSet("bulk-delete", flag.ExitOnError)
	g := addGlobalFlags(fs)
	collections := fs.String("collections", "", "Comma-separated collection IDs (default: all)")
	fs.Parse(args)

	s := connect(g)
	op, err := s.client.BulkDeleteDocuments(s.ctx, &model.BulkDeleteDocumentsRequest{
		Name:          s.db.String(),
		CollectionIDs: splitList(*collections),
	})
	finish(s, op, err)
}

func cmdBackups(args []string) {
	action, rest := verb(args, "fsadmin backups list|get|delete [-location LOCATION] [flags]")
	fs := flag.NewFlagSet("backups "+action, flag.ExitOnError)
	g := addGlobalFlags(fs)
	location := fs.String("location", "-", "Location ID; - lists every location")
	id := fs.String("id", "", "Backup ID (get, delete)")
	filter := fs.String("filter", "", "List filter")
	fs.Parse(rest)

	s := connect(g)
	loc := s.project().Location(*location)

	switch action {
	case "list":
		resp, err := s.client.ListBackups(s.ctx, &model.ListBackupsRequest{Parent: loc.String(), Filter: *filter})
		if err != nil {
			fail("%v", err)
		}
		printJSON(resp)
	case "get":
		requireFlags(fs, "id")
		b, err := s.client.GetBackup(s.ctx, &model.GetBackupRequest{Name: loc.Backup(*id).String()})
		if err != nil {
			fail("%v", err)
		}
		printJSON(b)
	case "delete":
		requireFlags(fs, "id")
		if err := s.client.DeleteBackup(s.ctx, &model.DeleteBackupRequest{Name: loc.Backup(*id).String()}); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Deleted backup %s\n", *id)
	default:
		fail("unknown backups action %q", action)
	}
}

func cmdRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	g := addGlobalFlags(fs)
	backup := fs.String("backup", "", "Full backup name: projects/P/locations/L/backups/B")
	id := fs.String("id", "", "ID of the new database")
	fs.Parse(args)
	requireFlags(fs, "backup", "id")

	if _, err := resource.ParseBackupName(*backup); err != nil {
		fail("invalid -backup: %v", err)
	}

	s := connect(g)
	op, err := s.client.RestoreDatabase(s.ctx, &model.RestoreDatabaseRequest{
		Parent:     s.project().String(),
		DatabaseID: *id,
		Backup:     *backup,
	})
	finish(s, op, err)
}

func cmdSchedules(args []string) {
	action, rest := verb(args, "fsadmin schedules list|get|create|update|delete [flags]")
	fs := flag.NewFlagSet("schedules "+action, flag.ExitOnError)
	g := addGlobalFlags(fs)
	id := fs.String("id", "", "Backup schedule ID (get, update, delete)")
	retention := fs.Duration("retention", 7*24*time.Hour, "How long backups are kept")
	weekly := fs.String("weekly", "", "Run weekly on this day (MONDAY..SUNDAY); default is daily")
	fs.Parse(rest)

	s := connect(g)

	switch action {
	case "list":
		out, err := s.client.ListBackupSchedules(s.ctx, &model.ListBackupSchedulesRequest{Parent: s.db.String()})
		if err != nil {
			fail("%v", err)
		}
		printJSON(out)
	case "get":
		requireFlags(fs, "id")
		bs, err := s.client.GetBackupSchedule(s.ctx, &model.GetBackupScheduleRequest{Name: s.db.BackupSchedule(*id).String()})
		if err != nil {
			fail("%v", err)
		}
		printJSON(bs)
	case "create":
		bs := schedule(*retention, *weekly)
		out, err := s.client.CreateBackupSchedule(s.ctx, &model.CreateBackupScheduleRequest{Parent: s.db.String(), BackupSchedule: bs})
		if err != nil {
			fail("%v", err)
		}
		printJSON(out)
	case "update":
		requireFlags(fs, "id")
		bs := schedule(*retention, *weekly)
		bs.Name = s.db.BackupSchedule(*id).String()
		paths := []string{"retention"}
		if *weekly != "" {
			paths = append(paths, "weeklyRecurrence")
		}
		out, err := s.client.UpdateBackupSchedule(s.ctx, &model.UpdateBackupScheduleRequest{BackupSchedule: bs, UpdateMask: model.NewFieldMask(paths...)})
		if err != nil {
			fail("%v", err)
		}
		printJSON(out)
	case "delete":
		requireFlags(fs, "id")
		if err := s.client.DeleteBackupSchedule(s.ctx, &model.DeleteBackupScheduleRequest{Name: s.db.BackupSchedule(*id).String()}); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Deleted backup schedule %s\n", *id)
	default:
		fail("unknown schedules action %q", action)
	}
}

func schedule(retention time.Duration, weekly string) *model.BackupSchedule {
	bs := &model.BackupSchedule{Retention: model.NewDuration(retention)}
	if weekly != "" {
		bs.WeeklyRecurrence = &model.WeeklyRecurrence{Day: model.DayOfWeek(strings.ToUpper(weekly))}
	} else {
		bs.DailyRecurrence = &model.DailyRecurrence{}
	}
	return bs
}

func cmdUserCreds(args []string) {
	action, rest := verb(args, "fsadmin usercreds list|get|create|enable|disable|reset|delete [flags]")
	fs := flag.NewFlagSet("usercreds "+action, flag.ExitOnError)
	g := addGlobalFlags(fs)
	id := fs.String("id", "", "User credentials ID")
	fs.Parse(rest)

	s := connect(g)
	name := s.db.UserCreds(*id).String()
	if action != "list" {
		requireFlags(fs, "id")
	}

	var (
		uc  *model.UserCreds
		err error
	)
	switch action {
	case "list":
		list, err := s.client.ListUserCreds(s.ctx, &model.ListUserCredsRequest{Parent: s.db.String()})
		if err != nil {
			fail("%v", err)
		}
		printJSON(list)
		return
	case "get":
		uc, err = s.client.GetUserCreds(s.ctx, &model.GetUserCredsRequest{Name: name})
	case "create":
		uc, err = s.client.CreateUserCreds(s.ctx, &model.CreateUserCredsRequest{Parent: s.db.String(), UserCredsID: *id, UserCreds: &model.UserCreds{}})
	case "enable":
		uc, err = s.client.EnableUserCreds(s.ctx, &model.EnableUserCredsRequest{Name: name})
	case "disable":
		uc, err = s.client.DisableUserCreds(s.ctx, &model.DisableUserCredsRequest{Name: name})
	case "reset":
		uc, err = s.client.ResetUserPassword(s.ctx, &model.ResetUserPasswordRequest{Name: name})
	case "delete":
		if err := s.client.DeleteUserCreds(s.ctx, &model.DeleteUserCredsRequest{Name: name}); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Deleted user credentials %s\n", *id)
		return
	default:
		fail("unknown usercreds action %q", action)
	}
	if err != nil {
		fail("%v", err)
	}
	printJSON(uc)
	if uc.SecurePassword != "" {
		fmt.Fprintln(os.Stderr, "Save this password, it will not be shown again.")
	}
}

func cmdOperations(args []string) {
	action, rest := verb(args, "fsadmin operations list|get|cancel|delete [flags]")
	fs := flag.NewFlagSet("operations "+action, flag.ExitOnError)
	g := addGlobalFlags(fs)
	name := fs.String("name", "", "Full operation name (get, cancel, delete)")
	filter := fs.String("filter", "", "List filter")
	fs.Parse(rest)

	s := connect(g)
	if action != "list" {
		requireFlags(fs, "name")
		if _, err := resource.ParseOperationName(*name); err != nil {
			fail("invalid -name: %v", err)
		}
	}

	switch action {
	case "list":
		var out []*model.Operation
		for op, err := range s.client.ListOperations(s.ctx, &model.ListOperationsRequest{Name: s.db.String(), Filter: *filter}) {
			if err != nil {
				fail("%v", err)
			}
			out = append(out, op)
		}
		printJSON(out)
	case "get":
		if s.wait {
			res, err := s.client.Operation(*name).Wait(s.ctx)
			if err != nil {
				fail("%v", err)
			}
			printJSON(res)
			return
		}
		op, err := s.client.GetOperation(s.ctx, &model.GetOperationRequest{Name: *name})
		if err != nil {
			fail("%v", err)
		}
		printJSON(op)
	case "cancel":
		if err := s.client.CancelOperation(s.ctx, &model.CancelOperationRequest{Name: *name}); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Cancellation requested for %s\n", *name)
	case "delete":
		if err := s.client.DeleteOperation(s.ctx, &model.DeleteOperationRequest{Name: *name}); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Deleted operation %s\n", *name)
	default:
		fail("unknown operations action %q", action)
	}
}
