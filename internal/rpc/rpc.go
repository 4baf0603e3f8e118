// Package rpc names every RPC the clients call. Names are the full gRPC
// method names and key both the retry tables and the HTTP route tables.
package rpc

import "strings"

const (
	AdminService      = "google.firestore.admin.v1.FirestoreAdmin"
	OperationsService = "google.longrunning.Operations"
	FirestoreService  = "google.firestore.v1.Firestore"
)

// Firestore Admin.
const (
	CreateIndex          = AdminService + "/CreateIndex"
	ListIndexes          = AdminService + "/ListIndexes"
	GetIndex             = AdminService + "/GetIndex"
	DeleteIndex          = AdminService + "/DeleteIndex"
	GetField             = AdminService + "/GetField"
	UpdateField          = AdminService + "/UpdateField"
	ListFields           = AdminService + "/ListFields"
	ExportDocuments      = AdminService + "/ExportDocuments"
	ImportDocuments      = AdminService + "/ImportDocuments"
	BulkDeleteDocuments  = AdminService + "/BulkDeleteDocuments"
	CreateDatabase       = AdminService + "/CreateDatabase"
	GetDatabase          = AdminService + "/GetDatabase"
	ListDatabases        = AdminService + "/ListDatabases"
	UpdateDatabase       = AdminService + "/UpdateDatabase"
	DeleteDatabase       = AdminService + "/DeleteDatabase"
	CreateUserCreds      = AdminService + "/CreateUserCreds"
	GetUserCreds         = AdminService + "/GetUserCreds"
	ListUserCreds        = AdminService + "/ListUserCreds"
	EnableUserCreds      = AdminService + "/EnableUserCreds"
	DisableUserCreds     = AdminService + "/DisableUserCreds"
	ResetUserPassword    = AdminService + "/ResetUserPassword"
	DeleteUserCreds      = AdminService + "/DeleteUserCreds"
	GetBackup            = AdminService + "/GetBackup"
	ListBackups          = AdminService + "/ListBackups"
	DeleteBackup         = AdminService + "/DeleteBackup"
	RestoreDatabase      = AdminService + "/RestoreDatabase"
	CreateBackupSchedule = AdminService + "/CreateBackupSchedule"
	GetBackupSchedule    = AdminService + "/GetBackupSchedule"
	ListBackupSchedules  = AdminService + "/ListBackupSchedules"
	UpdateBackupSchedule = AdminService + "/UpdateBackupSchedule"
	DeleteBackupSchedule = AdminService + "/DeleteBackupSchedule"
)

// Long-running operations, served next to the admin API.
const (
	GetOperation    = OperationsService + "/GetOperation"
	ListOperations  = OperationsService + "/ListOperations"
	CancelOperation = OperationsService + "/CancelOperation"
	DeleteOperation = OperationsService + "/DeleteOperation"
)

// Firestore data plane.
const (
	GetDocument         = FirestoreService + "/GetDocument"
	ListDocuments       = FirestoreService + "/ListDocuments"
	CreateDocument      = FirestoreService + "/CreateDocument"
	UpdateDocument      = FirestoreService + "/UpdateDocument"
	DeleteDocument      = FirestoreService + "/DeleteDocument"
	BatchGetDocuments   = FirestoreService + "/BatchGetDocuments"
	BeginTransaction    = FirestoreService + "/BeginTransaction"
	Commit              = FirestoreService + "/Commit"
	Rollback            = FirestoreService + "/Rollback"
	RunQuery            = FirestoreService + "/RunQuery"
	RunAggregationQuery = FirestoreService + "/RunAggregationQuery"
	PartitionQuery      = FirestoreService + "/PartitionQuery"
	Write               = FirestoreService + "/Write"
	Listen              = FirestoreService + "/Listen"
	ListCollectionIds   = FirestoreService + "/ListCollectionIds"
	BatchWrite          = FirestoreService + "/BatchWrite"
)

// Short strips the service prefix: "google.firestore.v1.Firestore/Commit" -> "Commit".
func Short(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
