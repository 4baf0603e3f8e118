package model

import (
	"encoding/json"
	"strings"
	"time"
)

// FieldMask is a google.protobuf.FieldMask; its JSON form is a single
// comma-separated string of lowerCamelCase paths.
type FieldMask struct {
	Paths []string
}

func NewFieldMask(paths ...string) *FieldMask { return &FieldMask{Paths: paths} }

func (m FieldMask) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.Join(m.Paths, ","))
}

func (m *FieldMask) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	m.Paths = nil
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			m.Paths = append(m.Paths, p)
		}
	}
	return nil
}

// Has reports whether path is in the mask.
func (m *FieldMask) Has(path string) bool {
	if m == nil {
		return false
	}
	for _, p := range m.Paths {
		if p == path {
			return true
		}
	}
	return false
}

type CreateIndexRequest struct {
	Parent string `json:"parent" validate:"required"`
	Index  *Index `json:"index" validate:"required"`
}

type ListIndexesRequest struct {
	Parent    string `json:"parent" validate:"required"`
	Filter    string `json:"filter,omitempty"`
	PageSize  int32  `json:"pageSize,omitempty" validate:"gte=0"`
	PageToken string `json:"pageToken,omitempty"`
}

type ListIndexesResponse struct {
	Indexes       []*Index `json:"indexes,omitempty"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

type GetIndexRequest struct {
	Name string `json:"name" validate:"required"`
}

type DeleteIndexRequest struct {
	Name string `json:"name" validate:"required"`
}

type GetFieldRequest struct {
	Name string `json:"name" validate:"required"`
}

type UpdateFieldRequest struct {
	Field      *Field     `json:"field" validate:"required"`
	UpdateMask *FieldMask `json:"updateMask,omitempty"`
}

type ListFieldsRequest struct {
	Parent    string `json:"parent" validate:"required"`
	Filter    string `json:"filter,omitempty"`
	PageSize  int32  `json:"pageSize,omitempty" validate:"gte=0"`
	PageToken string `json:"pageToken,omitempty"`
}

type ListFieldsResponse struct {
	Fields        []*Field `json:"fields,omitempty"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

type ExportDocumentsRequest struct {
	Name            string     `json:"name" validate:"required"`
	CollectionIDs   []string   `json:"collectionIds,omitempty"`
	OutputURIPrefix string     `json:"outputUriPrefix,omitempty"`
	NamespaceIDs    []string   `json:"namespaceIds,omitempty"`
	SnapshotTime    *time.Time `json:"snapshotTime,omitempty"`
}

type ImportDocumentsRequest struct {
	Name           string   `json:"name" validate:"required"`
	CollectionIDs  []string `json:"collectionIds,omitempty"`
	InputURIPrefix string   `json:"inputUriPrefix" validate:"required"`
	NamespaceIDs   []string `json:"namespaceIds,omitempty"`
}

type BulkDeleteDocumentsRequest struct {
	Name          string   `json:"name" validate:"required"`
	CollectionIDs []string `json:"collectionIds,omitempty"`
	NamespaceIDs  []string `json:"namespaceIds,omitempty"`
}

type CreateDatabaseRequest struct {
	Parent     string    `json:"parent" validate:"required"`
	Database   *Database `json:"database" validate:"required"`
	DatabaseID string    `json:"databaseId" validate:"required"`
}

type GetDatabaseRequest struct {
	Name string `json:"name" validate:"required"`
}

type ListDatabasesRequest struct {
	Parent      string `json:"parent" validate:"required"`
	ShowDeleted bool   `json:"showDeleted,omitempty"`
}

type ListDatabasesResponse struct {
	Databases   []*Database `json:"databases,omitempty"`
	Unreachable []string    `json:"unreachable,omitempty"`
}

type UpdateDatabaseRequest struct {
	Database   *Database  `json:"database" validate:"required"`
	UpdateMask *FieldMask `json:"updateMask,omitempty"`
}

type DeleteDatabaseRequest struct {
	Name string `json:"name" validate:"required"`
	Etag string `json:"etag,omitempty"`
}

type CreateUserCredsRequest struct {
	Parent      string     `json:"parent" validate:"required"`
	UserCreds   *UserCreds `json:"userCreds" validate:"required"`
	UserCredsID string     `json:"userCredsId" validate:"required"`
}

type GetUserCredsRequest struct {
	Name string `json:"name" validate:"required"`
}

type ListUserCredsRequest struct {
	Parent string `json:"parent" validate:"required"`
}

type ListUserCredsResponse struct {
	UserCreds []*UserCreds `json:"userCreds,omitempty"`
}

type EnableUserCredsRequest struct {
	Name string `json:"name" validate:"required"`
}

type DisableUserCredsRequest struct {
	Name string `json:"name" validate:"required"`
}

type ResetUserPasswordRequest struct {
	Name string `json:"name" validate:"required"`
}

type DeleteUserCredsRequest struct {
	Name string `json:"name" validate:"required"`
}

type GetBackupRequest struct {
	Name string `json:"name" validate:"required"`
}

type ListBackupsRequest struct {
	Parent string `json:"parent" validate:"required"`
	Filter string `json:"filter,omitempty"`
}

type ListBackupsResponse struct {
	Backups     []*Backup `json:"backups,omitempty"`
	Unreachable []string  `json:"unreachable,omitempty"`
}

type DeleteBackupRequest struct {
	Name string `json:"name" validate:"required"`
}

type RestoreDatabaseRequest struct {
	Parent     string `json:"parent" validate:"required"`
	DatabaseID string `json:"databaseId" validate:"required"`
	Backup     string `json:"backup" validate:"required"`
}

type CreateBackupScheduleRequest struct {
	Parent         string          `json:"parent" validate:"required"`
	BackupSchedule *BackupSchedule `json:"backupSchedule" validate:"required"`
}

type GetBackupScheduleRequest struct {
	Name string `json:"name" validate:"required"`
}

type ListBackupSchedulesRequest struct {
	Parent string `json:"parent" validate:"required"`
}

type ListBackupSchedulesResponse struct {
	BackupSchedules []*BackupSchedule `json:"backupSchedules,omitempty"`
}

type UpdateBackupScheduleRequest struct {
	BackupSchedule *BackupSchedule `json:"backupSchedule" validate:"required"`
	UpdateMask     *FieldMask      `json:"updateMask,omitempty"`
}

type DeleteBackupScheduleRequest struct {
	Name string `json:"name" validate:"required"`
}

type GetOperationRequest struct {
	Name string `json:"name" validate:"required"`
}

type ListOperationsRequest struct {
	Name      string `json:"name" validate:"required"`
	Filter    string `json:"filter,omitempty"`
	PageSize  int32  `json:"pageSize,omitempty" validate:"gte=0"`
	PageToken string `json:"pageToken,omitempty"`
}

type ListOperationsResponse struct {
	Operations    []*Operation `json:"operations,omitempty"`
	NextPageToken string       `json:"nextPageToken,omitempty"`
}

type CancelOperationRequest struct {
	Name string `json:"name" validate:"required"`
}

type DeleteOperationRequest struct {
	Name string `json:"name" validate:"required"`
}
