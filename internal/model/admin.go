package model

import (
	"strings"
	"time"
)

// Database is a Cloud Firestore database.
type Database struct {
	Name                          string                        `json:"name,omitempty"`
	UID                           string                        `json:"uid,omitempty"`
	CreateTime                    *time.Time                    `json:"createTime,omitempty"`
	UpdateTime                    *time.Time                    `json:"updateTime,omitempty"`
	DeleteTime                    *time.Time                    `json:"deleteTime,omitempty"`
	LocationID                    string                        `json:"locationId,omitempty"`
	Type                          DatabaseType                  `json:"type,omitempty"`
	ConcurrencyMode               ConcurrencyMode               `json:"concurrencyMode,omitempty"`
	VersionRetentionPeriod        *Duration                     `json:"versionRetentionPeriod,omitempty"`
	EarliestVersionTime           *time.Time                    `json:"earliestVersionTime,omitempty"`
	PointInTimeRecoveryEnablement PointInTimeRecoveryEnablement `json:"pointInTimeRecoveryEnablement,omitempty"`
	AppEngineIntegrationMode      AppEngineIntegrationMode      `json:"appEngineIntegrationMode,omitempty"`
	KeyPrefix                     string                        `json:"keyPrefix,omitempty"`
	DeleteProtectionState         DeleteProtectionState         `json:"deleteProtectionState,omitempty"`
	CmekConfig                    *CmekConfig                   `json:"cmekConfig,omitempty"`
	PreviousID                    string                        `json:"previousId,omitempty"`
	SourceInfo                    *SourceInfo                   `json:"sourceInfo,omitempty"`
	Etag                          string                        `json:"etag,omitempty"`
}

type CmekConfig struct {
	KmsKeyName       string   `json:"kmsKeyName,omitempty"`
	ActiveKeyVersion []string `json:"activeKeyVersion,omitempty"`
}

// SourceInfo records where a restored database came from.
type SourceInfo struct {
	Backup    *BackupSource `json:"backup,omitempty"`
	Operation string        `json:"operation,omitempty"`
}

type BackupSource struct {
	Backup string `json:"backup,omitempty"`
}

// Backup is a consistent snapshot of a database.
type Backup struct {
	Name         string       `json:"name,omitempty"`
	Database     string       `json:"database,omitempty"`
	DatabaseUID  string       `json:"databaseUid,omitempty"`
	SnapshotTime *time.Time   `json:"snapshotTime,omitempty"`
	ExpireTime   *time.Time   `json:"expireTime,omitempty"`
	Stats        *BackupStats `json:"stats,omitempty"`
	State        BackupState  `json:"state,omitempty"`
}

type BackupStats struct {
	SizeBytes     int64 `json:"sizeBytes,omitempty,string"`
	DocumentCount int64 `json:"documentCount,omitempty,string"`
	IndexCount    int64 `json:"indexCount,omitempty,string"`
}

// BackupSchedule creates backups of a database on a recurrence.
// Exactly one of DailyRecurrence and WeeklyRecurrence is set.
type BackupSchedule struct {
	Name             string            `json:"name,omitempty"`
	CreateTime       *time.Time        `json:"createTime,omitempty"`
	UpdateTime       *time.Time        `json:"updateTime,omitempty"`
	Retention        *Duration         `json:"retention,omitempty"`
	DailyRecurrence  *DailyRecurrence  `json:"dailyRecurrence,omitempty"`
	WeeklyRecurrence *WeeklyRecurrence `json:"weeklyRecurrence,omitempty"`
}

type DailyRecurrence struct{}

type WeeklyRecurrence struct {
	Day DayOfWeek `json:"day,omitempty"`
}

// Index is a composite index over a collection group.
type Index struct {
	Name       string       `json:"name,omitempty"`
	QueryScope QueryScope   `json:"queryScope,omitempty"`
	APIScope   APIScope     `json:"apiScope,omitempty"`
	Fields     []IndexField `json:"fields,omitempty"`
	State      IndexState   `json:"state,omitempty"`
}

// IndexField sets exactly one of Order and ArrayConfig.
type IndexField struct {
	FieldPath   string      `json:"fieldPath,omitempty"`
	Order       IndexOrder  `json:"order,omitempty"`
	ArrayConfig ArrayConfig `json:"arrayConfig,omitempty"`
}

// Key identifies an index by scope and ordered fields, ignoring its name
// and state.
func (i *Index) Key() string {
	var b strings.Builder
	b.WriteString(string(i.QueryScope))
	b.WriteByte('|')
	b.WriteString(string(i.APIScope))
	for _, f := range i.Fields {
		b.WriteByte('|')
		b.WriteString(f.FieldPath)
		b.WriteByte(':')
		b.WriteString(string(f.Order))
		b.WriteString(string(f.ArrayConfig))
	}
	return b.String()
}

// Field holds the single-field index and TTL configuration of one field.
type Field struct {
	Name        string            `json:"name,omitempty"`
	IndexConfig *FieldIndexConfig `json:"indexConfig,omitempty"`
	TTLConfig   *TTLConfig        `json:"ttlConfig,omitempty"`
}

type FieldIndexConfig struct {
	Indexes            []Index `json:"indexes,omitempty"`
	UsesAncestorConfig bool    `json:"usesAncestorConfig,omitempty"`
	AncestorField      string  `json:"ancestorField,omitempty"`
	Reverting          bool    `json:"reverting,omitempty"`
}

type TTLConfig struct {
	State TTLState `json:"state,omitempty"`
}

// UserCreds are credentials for a database user. SecurePassword is only
// populated by create and reset.
type UserCreds struct {
	Name             string            `json:"name,omitempty"`
	CreateTime       *time.Time        `json:"createTime,omitempty"`
	UpdateTime       *time.Time        `json:"updateTime,omitempty"`
	State            UserCredsState    `json:"state,omitempty"`
	SecurePassword   string            `json:"securePassword,omitempty"`
	ResourceIdentity *ResourceIdentity `json:"resourceIdentity,omitempty"`
}

type ResourceIdentity struct {
	Principal string `json:"principal,omitempty"`
}
