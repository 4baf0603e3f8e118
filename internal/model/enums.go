package model

// Enumerations are carried as their proto value names, the way the REST
// surface encodes them.

type DatabaseType string

const (
	DatabaseTypeUnspecified DatabaseType = "DATABASE_TYPE_UNSPECIFIED"
	FirestoreNative         DatabaseType = "FIRESTORE_NATIVE"
	DatastoreMode           DatabaseType = "DATASTORE_MODE"
)

type ConcurrencyMode string

const (
	ConcurrencyModeUnspecified ConcurrencyMode = "CONCURRENCY_MODE_UNSPECIFIED"
	Optimistic                 ConcurrencyMode = "OPTIMISTIC"
	Pessimistic                ConcurrencyMode = "PESSIMISTIC"
	OptimisticWithEntityGroups ConcurrencyMode = "OPTIMISTIC_WITH_ENTITY_GROUPS"
)

type PointInTimeRecoveryEnablement string

const (
	PointInTimeRecoveryEnabled  PointInTimeRecoveryEnablement = "POINT_IN_TIME_RECOVERY_ENABLED"
	PointInTimeRecoveryDisabled PointInTimeRecoveryEnablement = "POINT_IN_TIME_RECOVERY_DISABLED"
)

type AppEngineIntegrationMode string

const (
	AppEngineIntegrationEnabled  AppEngineIntegrationMode = "ENABLED"
	AppEngineIntegrationDisabled AppEngineIntegrationMode = "DISABLED"
)

type DeleteProtectionState string

const (
	DeleteProtectionDisabled DeleteProtectionState = "DELETE_PROTECTION_DISABLED"
	DeleteProtectionEnabled  DeleteProtectionState = "DELETE_PROTECTION_ENABLED"
)

type BackupState string

const (
	BackupCreating     BackupState = "CREATING"
	BackupReady        BackupState = "READY"
	BackupNotAvailable BackupState = "NOT_AVAILABLE"
)

type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

type QueryScope string

const (
	QueryScopeCollection          QueryScope = "COLLECTION"
	QueryScopeCollectionGroup     QueryScope = "COLLECTION_GROUP"
	QueryScopeCollectionRecursive QueryScope = "COLLECTION_RECURSIVE"
)

type APIScope string

const (
	AnyAPI           APIScope = "ANY_API"
	DatastoreModeAPI APIScope = "DATASTORE_MODE_API"
)

type IndexState string

const (
	IndexCreating    IndexState = "CREATING"
	IndexReady       IndexState = "READY"
	IndexNeedsRepair IndexState = "NEEDS_REPAIR"
)

type IndexOrder string

const (
	Ascending  IndexOrder = "ASCENDING"
	Descending IndexOrder = "DESCENDING"
)

type ArrayConfig string

const ArrayContains ArrayConfig = "CONTAINS"

type TTLState string

const (
	TTLCreating    TTLState = "CREATING"
	TTLActive      TTLState = "ACTIVE"
	TTLNeedsRepair TTLState = "NEEDS_REPAIR"
)

type UserCredsState string

const (
	UserCredsEnabled  UserCredsState = "ENABLED"
	UserCredsDisabled UserCredsState = "DISABLED"
)

type OperationState string

const (
	OperationInitializing OperationState = "INITIALIZING"
	OperationProcessing   OperationState = "PROCESSING"
	OperationCancelling   OperationState = "CANCELLING"
	OperationFinalizing   OperationState = "FINALIZING"
	OperationSuccessful   OperationState = "SUCCESSFUL"
	OperationFailed       OperationState = "FAILED"
	OperationCancelled    OperationState = "CANCELLED"
)

type ChangeType string

const (
	ChangeAdd    ChangeType = "ADD"
	ChangeRemove ChangeType = "REMOVE"
)
