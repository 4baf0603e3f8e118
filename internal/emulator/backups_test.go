package emulator

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
)

func putUser(t *testing.T, env *testEnv, id string, fields map[string]any) *model.Document {
	t.Helper()
	vals, err := model.Fields(fields)
	require.NoError(t, err)
	doc, err := env.data.CreateDocument(context.Background(), &model.CreateDocumentRequest{
		Parent:       testRoot,
		CollectionID: "users",
		DocumentID:   id,
		Document:     &model.Document{Fields: vals},
	})
	require.NoError(t, err)
	return doc
}

func backupNow(t *testing.T, env *testEnv, query string) *model.Backup {
	t.Helper()
	code, body := doRequest(t, env, http.MethodPost, "/emulator/v1/"+testDB+":backup"+query, "")
	require.Equal(t, http.StatusOK, code, string(body))
	var b model.Backup
	require.NoError(t, json.Unmarshal(body, &b))
	return &b
}

func TestBackupAndRestore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	putUser(t, env, "alice", map[string]any{"age": 30})
	putUser(t, env, "bob", map[string]any{"age": 41})

	b := backupNow(t, env, "")
	assert.Contains(t, b.Name, "projects/demo/locations/nam5/backups/")
	assert.Equal(t, testDB, b.Database)
	assert.Equal(t, model.BackupReady, b.State)
	require.NotNil(t, b.Stats)
	assert.EqualValues(t, 2, b.Stats.DocumentCount)

	got, err := env.admin.GetBackup(ctx, &model.GetBackupRequest{Name: b.Name})
	require.NoError(t, err)
	assert.Equal(t, b.SnapshotTime, got.SnapshotTime)

	list, err := env.admin.ListBackups(ctx, &model.ListBackupsRequest{Parent: "projects/demo/locations/-"})
	require.NoError(t, err)
	require.Len(t, list.Backups, 1)

	list, err = env.admin.ListBackups(ctx, &model.ListBackupsRequest{
		Parent: "projects/demo/locations/nam5",
		Filter: `database="projects/demo/databases/other"`,
	})
	require.NoError(t, err)
	assert.Empty(t, list.Backups)

	op, err := env.admin.RestoreDatabase(ctx, &model.RestoreDatabaseRequest{
		Parent:     "projects/demo",
		DatabaseID: "restored",
		Backup:     b.Name,
	})
	require.NoError(t, err)
	db, err := op.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "projects/demo/databases/restored", db.Name)
	require.NotNil(t, db.SourceInfo)
	assert.Equal(t, b.Name, db.SourceInfo.Backup.Backup)
	assert.Equal(t, op.Name(), db.SourceInfo.Operation)

	meta, err := op.Metadata()
	require.NoError(t, err)
	assert.Equal(t, model.OperationSuccessful, meta.OperationState)
	assert.Equal(t, b.Name, meta.Backup)

	doc, err := env.data.GetDocument(ctx, &model.GetDocumentRequest{Name: "projects/demo/databases/restored/documents/users/alice"})
	require.NoError(t, err)
	assert.EqualValues(t, 30, *doc.Fields["age"].IntegerValue)

	_, err = env.admin.RestoreDatabase(ctx, &model.RestoreDatabaseRequest{Parent: "projects/demo", DatabaseID: "restored", Backup: b.Name})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	require.NoError(t, env.admin.DeleteBackup(ctx, &model.DeleteBackupRequest{Name: b.Name}))
	_, err = env.admin.GetBackup(ctx, &model.GetBackupRequest{Name: b.Name})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestBackupNow_RetentionLimit(t *testing.T) {
	env := newTestEnv(t)
	code, body := doRequest(t, env, http.MethodPost, "/emulator/v1/"+testDB+":backup?retention=3000h", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", decodeEnvelope(t, body).Status)
}

func TestBackupSchedules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// A Monday.
	clk := &fixedClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	env.server.now = clk.now

	daily, err := env.admin.CreateBackupSchedule(ctx, &model.CreateBackupScheduleRequest{
		Parent: testDB,
		BackupSchedule: &model.BackupSchedule{
			Retention:       model.NewDuration(7 * 24 * time.Hour),
			DailyRecurrence: &model.DailyRecurrence{},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, daily.Name, testDB+"/backupSchedules/")

	_, err = env.admin.CreateBackupSchedule(ctx, &model.CreateBackupScheduleRequest{
		Parent: testDB,
		BackupSchedule: &model.BackupSchedule{
			Retention:       model.NewDuration(24 * time.Hour),
			DailyRecurrence: &model.DailyRecurrence{},
		},
	})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	weekly, err := env.admin.CreateBackupSchedule(ctx, &model.CreateBackupScheduleRequest{
		Parent: testDB,
		BackupSchedule: &model.BackupSchedule{
			Retention:        model.NewDuration(14 * 24 * time.Hour),
			WeeklyRecurrence: &model.WeeklyRecurrence{Day: model.Wednesday},
		},
	})
	require.NoError(t, err)

	schedules, err := env.admin.ListBackupSchedules(ctx, &model.ListBackupSchedulesRequest{Parent: testDB})
	require.NoError(t, err)
	assert.Len(t, schedules, 2)

	backups := func() int {
		resp, err := env.admin.ListBackups(ctx, &model.ListBackupsRequest{Parent: "projects/demo/locations/-"})
		require.NoError(t, err)
		return len(resp.Backups)
	}

	env.server.runSchedules(clk.now())
	assert.Equal(t, 0, backups(), "nothing is due before midnight")

	clk.advance(14 * time.Hour) // Tuesday 00:00
	env.server.runSchedules(clk.now())
	assert.Equal(t, 1, backups())

	clk.advance(24 * time.Hour) // Wednesday 00:00
	env.server.runSchedules(clk.now())
	assert.Equal(t, 3, backups())

	env.server.runSchedules(clk.now())
	assert.Equal(t, 3, backups(), "a schedule fires once per period")

	require.NoError(t, env.admin.DeleteBackupSchedule(ctx, &model.DeleteBackupScheduleRequest{Name: daily.Name}))
	_, err = env.admin.GetBackupSchedule(ctx, &model.GetBackupScheduleRequest{Name: daily.Name})
	assert.Equal(t, codes.NotFound, status.Code(err))

	got, err := env.admin.GetBackupSchedule(ctx, &model.GetBackupScheduleRequest{Name: weekly.Name})
	require.NoError(t, err)
	assert.Equal(t, model.Wednesday, got.WeeklyRecurrence.Day)
}

func TestUpdateBackupSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sc, err := env.admin.CreateBackupSchedule(ctx, &model.CreateBackupScheduleRequest{
		Parent: testDB,
		BackupSchedule: &model.BackupSchedule{
			Retention:        model.NewDuration(7 * 24 * time.Hour),
			WeeklyRecurrence: &model.WeeklyRecurrence{Day: model.Friday},
		},
	})
	require.NoError(t, err)

	updated, err := env.admin.UpdateBackupSchedule(ctx, &model.UpdateBackupScheduleRequest{
		BackupSchedule: &model.BackupSchedule{
			Name:             sc.Name,
			Retention:        model.NewDuration(28 * 24 * time.Hour),
			WeeklyRecurrence: &model.WeeklyRecurrence{Day: model.Sunday},
		},
		UpdateMask: model.NewFieldMask("retention", "weeklyRecurrence"),
	})
	require.NoError(t, err)
	assert.Equal(t, 28*24*time.Hour, updated.Retention.Duration)
	assert.Equal(t, model.Sunday, updated.WeeklyRecurrence.Day)

	_, err = env.admin.UpdateBackupSchedule(ctx, &model.UpdateBackupScheduleRequest{
		BackupSchedule: &model.BackupSchedule{Name: sc.Name, DailyRecurrence: &model.DailyRecurrence{}},
		UpdateMask:     model.NewFieldMask("dailyRecurrence"),
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.admin.UpdateBackupSchedule(ctx, &model.UpdateBackupScheduleRequest{
		BackupSchedule: &model.BackupSchedule{Name: sc.Name, Retention: model.NewDuration(100 * 24 * time.Hour)},
		UpdateMask:     model.NewFieldMask("retention"),
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCreateBackupSchedule_Invalid(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		sc   *model.BackupSchedule
	}{
		{"no recurrence", &model.BackupSchedule{Retention: model.NewDuration(time.Hour)}},
		{"both recurrences", &model.BackupSchedule{
			Retention:        model.NewDuration(time.Hour),
			DailyRecurrence:  &model.DailyRecurrence{},
			WeeklyRecurrence: &model.WeeklyRecurrence{Day: model.Monday},
		}},
		{"no retention", &model.BackupSchedule{DailyRecurrence: &model.DailyRecurrence{}}},
		{"bad day", &model.BackupSchedule{Retention: model.NewDuration(time.Hour), WeeklyRecurrence: &model.WeeklyRecurrence{Day: "FUNDAY"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.admin.CreateBackupSchedule(context.Background(), &model.CreateBackupScheduleRequest{Parent: testDB, BackupSchedule: tt.sc})
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestRunSchedules_ExpiresBackups(t *testing.T) {
	env := newTestEnv(t)
	b := backupNow(t, env, "?retention=1h")
	require.NotNil(t, b.ExpireTime)

	env.server.runSchedules(b.ExpireTime.Add(-time.Minute))
	_, err := env.admin.GetBackup(context.Background(), &model.GetBackupRequest{Name: b.Name})
	require.NoError(t, err)

	env.server.runSchedules(b.ExpireTime.Add(time.Minute))
	_, err = env.admin.GetBackup(context.Background(), &model.GetBackupRequest{Name: b.Name})
	assert.Equal(t, codes.NotFound, status.Code(err))
}
