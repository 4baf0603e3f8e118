package resource

import (
	"fmt"
	"strings"
)

// DefaultDatabase is the id of the database every project gets implicitly.
const DefaultDatabase = "(default)"

var (
	projectTemplate         = MustTemplate("projects/{project}")
	locationTemplate        = MustTemplate("projects/{project}/locations/{location}")
	databaseTemplate        = MustTemplate("projects/{project}/databases/{database}")
	collectionGroupTemplate = MustTemplate("projects/{project}/databases/{database}/collectionGroups/{collection}")
	indexTemplate           = MustTemplate("projects/{project}/databases/{database}/collectionGroups/{collection}/indexes/{index}")
	fieldTemplate           = MustTemplate("projects/{project}/databases/{database}/collectionGroups/{collection}/fields/{field}")
	backupTemplate          = MustTemplate("projects/{project}/locations/{location}/backups/{backup}")
	backupScheduleTemplate  = MustTemplate("projects/{project}/databases/{database}/backupSchedules/{backup_schedule}")
	userCredsTemplate       = MustTemplate("projects/{project}/databases/{database}/userCreds/{user_creds}")
	operationTemplate       = MustTemplate("projects/{project}/databases/{database}/operations/{operation}")
	documentRootTemplate    = MustTemplate("projects/{project}/databases/{database}/documents")
	documentTemplate        = MustTemplate("projects/{project}/databases/{database}/documents/{document=**}")
)

// ProjectName is projects/{project}.
type ProjectName struct {
	Project string
}

func (n ProjectName) vars() map[string]string { return map[string]string{"project": n.Project} }

// String formats n as a full resource name.
func (n ProjectName) String() string { return format(projectTemplate, n.vars()) }

// Validate reports an error wrapping ErrMalformedName when an id is empty
// or holds a slash.
func (n ProjectName) Validate() error {
	_, err := projectTemplate.Instantiate(n.vars())
	return err
}

// Database names database id of the project.
func (n ProjectName) Database(id string) DatabaseName {
	return DatabaseName{Project: n.Project, Database: id}
}

// Location names location id of the project.
func (n ProjectName) Location(id string) LocationName {
	return LocationName{Project: n.Project, Location: id}
}

// ParseProjectName parses a project name. Errors wrap ErrMalformedName.
func ParseProjectName(s string) (ProjectName, error) {
	v, err := projectTemplate.ValidatedMatch(s)
	if err != nil {
		return ProjectName{}, err
	}
	return ProjectName{Project: v["project"]}, nil
}

// IsProjectName reports whether s is a well-formed project name.
func IsProjectName(s string) bool {
	_, ok := projectTemplate.Match(s)
	return ok
}

// LocationName is projects/{project}/locations/{location}.
type LocationName struct {
	Project  string
	Location string
}

func (n LocationName) vars() map[string]string {
	return map[string]string{"project": n.Project, "location": n.Location}
}

// String formats n as a full resource name.
func (n LocationName) String() string { return format(locationTemplate, n.vars()) }

// Validate reports an error wrapping ErrMalformedName when an id is empty
// or holds a slash.
func (n LocationName) Validate() error {
	_, err := locationTemplate.Instantiate(n.vars())
	return err
}

// Backup names backup id in the location.
func (n LocationName) Backup(id string) BackupName {
	return BackupName{Project: n.Project, Location: n.Location, Backup: id}
}

// ParseLocationName parses a location name. Errors wrap ErrMalformedName.
func ParseLocationName(s string) (LocationName, error) {
	v, err := locationTemplate.ValidatedMatch(s)
	if err != nil {
		return LocationName{}, err
	}
	return LocationName{Project: v["project"], Location: v["location"]}, nil
}

// IsLocationName reports whether s is a well-formed location name.
func IsLocationName(s string) bool {
	_, ok := locationTemplate.Match(s)
	return ok
}

// DatabaseName is projects/{project}/databases/{database}.
type DatabaseName struct {
	Project  string
	Database string
}

func (n DatabaseName) vars() map[string]string {
	return map[string]string{"project": n.Project, "database": n.Database}
}

// String formats n as a full resource name, or "" when n is incomplete.
func (n DatabaseName) String() string { return format(databaseTemplate, n.vars()) }

// Validate reports an error wrapping ErrMalformedName when an id is empty
// or holds a slash.
func (n DatabaseName) Validate() error {
	_, err := databaseTemplate.Instantiate(n.vars())
	return err
}

// Parent returns the project owning the database.
func (n DatabaseName) Parent() ProjectName { return ProjectName{Project: n.Project} }

// CollectionGroup names collection group id; use "-" to span all groups.
func (n DatabaseName) CollectionGroup(id string) CollectionGroupName {
	return CollectionGroupName{Project: n.Project, Database: n.Database, Collection: id}
}

func (n DatabaseName) BackupSchedule(id string) BackupScheduleName {
	return BackupScheduleName{Project: n.Project, Database: n.Database, BackupSchedule: id}
}

func (n DatabaseName) UserCreds(id string) UserCredsName {
	return UserCredsName{Project: n.Project, Database: n.Database, UserCreds: id}
}

func (n DatabaseName) Operation(id string) OperationName {
	return OperationName{Project: n.Project, Database: n.Database, Operation: id}
}

// Documents returns the root all document names of the database hang off.
func (n DatabaseName) Documents() DocumentRootName {
	return DocumentRootName{Project: n.Project, Database: n.Database}
}

// ParseDatabaseName parses a database name. Errors wrap ErrMalformedName.
func ParseDatabaseName(s string) (DatabaseName, error) {
	v, err := databaseTemplate.ValidatedMatch(s)
	if err != nil {
		return DatabaseName{}, err
	}
	return DatabaseName{Project: v["project"], Database: v["database"]}, nil
}

// IsDatabaseName reports whether s is a well-formed database name.
func IsDatabaseName(s string) bool {
	_, ok := databaseTemplate.Match(s)
	return ok
}

// CollectionGroupName is .../databases/{database}/collectionGroups/{collection}.
type CollectionGroupName struct {
	Project    string
	Database   string
	Collection string
}

func (n CollectionGroupName) vars() map[string]string {
	return map[string]string{"project": n.Project, "database": n.Database, "collection": n.Collection}
}

// String formats n as a full resource name.
func (n CollectionGroupName) String() string { return format(collectionGroupTemplate, n.vars()) }

// Validate reports an error wrapping ErrMalformedName when an id is empty
// or holds a slash.
func (n CollectionGroupName) Validate() error {
	_, err := collectionGroupTemplate.Instantiate(n.vars())
	return err
}

func (n CollectionGroupName) Parent() DatabaseName {
	return DatabaseName{Project: n.Project, Database: n.Database}
}

// Index names index id of the collection group.
func (n CollectionGroupName) Index(id string) IndexName {
	return IndexName{Project: n.Project, Database: n.Database, Collection: n.Collection, Index: id}
}

// Field names the single-field config for the field path id.
func (n CollectionGroupName) Field(id string) FieldName {
	return FieldName{Project: n.Project, Database: n.Database, Collection: n.Collection, Field: id}
}

// ParseCollectionGroupName parses a collection group name. Errors wrap ErrMalformedName.
func ParseCollectionGroupName(s string) (CollectionGroupName, error) {
	v, err := collectionGroupTemplate.ValidatedMatch(s)
	if err != nil {
		return CollectionGroupName{}, err
	}
	return CollectionGroupName{Project: v["project"], Database: v["database"], Collection: v["collection"]}, nil
}

// IsCollectionGroupName reports whether s is a well-formed collection group name.
func IsCollectionGroupName(s string) bool {
	_, ok := collectionGroupTemplate.Match(s)
	return ok
}

// IndexName identifies a composite index.
type IndexName struct {
	Project    string
	Database   string
	Collection string
	Index      string
}

func (n IndexName) vars() map[string]string {
	return map[string]string{"project": n.Project, "database": n.Database, "collection": n.Collection, "index": n.Index}
}

// String formats n as a full resource name.
func (n IndexName) String() string { return format(indexTemplate, n.vars()) }

// Validate reports an error wrapping ErrMalformedName when an id is empty
// or holds a slash.
func (n IndexName) Validate() error {
	_, err := indexTemplate.Instantiate(n.vars())
	return err
}

func (n IndexName) Parent() CollectionGroupName {
	return CollectionGroupName{Project: n.Project, Database: n.Database, Collection: n.Collection}
}

// ParseIndexName parses a index name. Errors wrap ErrMalformedName.
func ParseIndexName(s string) (IndexName, error) {
	v, err := indexTemplate.ValidatedMatch(s)
	if err != nil {
		return IndexName{}, err
	}
	return IndexName{Project: v["project"], Database: v["database"], Collection: v["collection"], Index: v["index"]}, nil
}

// IsIndexName reports whether s is a well-formed index name.
func IsIndexName(s string) bool {
	_, ok := indexTemplate.Match(s)
	return ok
}

// FieldName identifies a single-field index configuration. Field "*"
// holds the collection group defaults.
type FieldName struct {
	Project    string
	Database   string
	Collection string
	Field      string
}

func (n FieldName) vars() map[string]string {
	return map[string]string{"project": n.Project, "database": n.Database, "collection": n.Collection, "field": n.Field}
}

// String formats n as a full resource name.
func (n FieldName) String() string { return format(fieldTemplate, n.vars()) }

// Validate reports an error wrapping ErrMalformedName when an id is empty
// or holds a slash.
func (n FieldName) Validate() error {
	_, err := fieldTemplate.Instantiate(n.vars())
	return err
}

func (n FieldName) Parent() CollectionGroupName {
	return CollectionGroupName{Project: n.Project, Database: n.Database, Collection: n.Collection}
}

// ParseFieldName parses a field name. Errors wrap ErrMalformedName.
func ParseFieldName(s string) (FieldName, error) {
	v, err := fieldTemplate.ValidatedMatch(s)
	if err != nil {
		return FieldName{}, err
	}
	return FieldName{Project: v["project"], Database: v["database"], Collection: v["collection"], Field: v["field"]}, nil
}

// IsFieldName reports whether s is a well-formed field name.
func IsFieldName(s string) bool {
	_, ok := fieldTemplate.Match(s)
	return ok
}

// BackupName is projects/{project}/locations/{location}/backups/{backup}.
type BackupName struct {
	Project  string
	Location string
	Backup   string
}

func (n BackupName) vars() map[string]string {
	return map[string]string{"project": n.Project, "location": n.Location, "backup": n.Backup}
}

// String formats n as a full resource name.
func (n BackupName) String() string { return format(backupTemplate, n.vars()) }

// Validate reports an error wrapping ErrMalformedName when an id is empty
// or holds a slash.
func (n BackupName) Validate() error {
	_, err := backupTemplate.Instantiate(n.vars())
	return err
}

func (n BackupName) Parent() LocationName {
	return LocationName{Project: n.Project, Location: n.Location}
}

// ParseBackupName parses a backup name. Errors wrap ErrMalformedName.
func ParseBackupName(s string) (BackupName, error) {
	v, err := backupTemplate.ValidatedMatch(s)
	if err != nil {
		return BackupName{}, err
	}
	return BackupName{Project: v["project"], Location: v["location"], Backup: v["backup"]}, nil
}

// IsBackupName reports whether s is a well-formed backup name.
func IsBackupName(s string) bool {
	_, ok := backupTemplate.Match(s)
	return ok
}

// BackupScheduleName is .../databases/{database}/backupSchedules/{backup_schedule}.
type BackupScheduleName struct {
	Project        string
	Database       string
	BackupSchedule string
}

func (n BackupScheduleName) vars() map[string]string {
	return map[string]string{"project": n.Project, "database": n.Database, "backup_schedule": n.BackupSchedule}
}

// String formats n as a full resource name.
func (n BackupScheduleName) String() string { return format(backupScheduleTemplate, n.vars()) }

// Validate reports an error wrapping ErrMalformedName when an id is empty
// or holds a slash.
func (n BackupScheduleName) Validate() error {
	_, err := backupScheduleTemplate.Instantiate(n.vars())
	return err
}

func (n BackupScheduleName) Parent() DatabaseName {
	return DatabaseName{Project: n.Project, Database: n.Database}
}

// ParseBackupScheduleName parses a backup schedule name. Errors wrap ErrMalformedName.
func ParseBackupScheduleName(s string) (BackupScheduleName, error) {
	v, err := backupScheduleTemplate.ValidatedMatch(s)
	if err != nil {
		return BackupScheduleName{}, err
	}
	return BackupScheduleName{Project: v["project"], Database: v["database"], BackupSchedule: v["backup_schedule"]}, nil
}

// IsBackupScheduleName reports whether s is a well-formed backup schedule name.
func IsBackupScheduleName(s string) bool {
	_, ok := backupScheduleTemplate.Match(s)
	return ok
}

// UserCredsName is .../databases/{database}/userCreds/{user_creds}.
type UserCredsName struct {
	Project   string
	Database  string
	UserCreds string
}

func (n UserCredsName) vars() map[string]string {
	return map[string]string{"project": n.Project, "database": n.Database, "user_creds": n.UserCreds}
}

// String formats n as a full resource name.
func (n UserCredsName) String() string { return format(userCredsTemplate, n.vars()) }

// Validate reports an error wrapping ErrMalformedName when an id is empty
// or holds a slash.
func (n UserCredsName) Validate() error {
	_, err := userCredsTemplate.Instantiate(n.vars())
	return err
}

func (n UserCredsName) Parent() DatabaseName {
	return DatabaseName{Project: n.Project, Database: n.Database}
}

// ParseUserCredsName parses a user creds name. Errors wrap ErrMalformedName.
func ParseUserCredsName(s string) (UserCredsName, error) {
	v, err := userCredsTemplate.ValidatedMatch(s)
	if err != nil {
		return UserCredsName{}, err
	}
	return UserCredsName{Project: v["project"], Database: v["database"], UserCreds: v["user_creds"]}, nil
}

// IsUserCredsName reports whether s is a well-formed user creds name.
func IsUserCredsName(s string) bool {
	_, ok := userCredsTemplate.Match(s)
	return ok
}

// OperationName is .../databases/{database}/operations/{operation}.
type OperationName struct {
	Project   string
	Database  string
	Operation string
}

func (n OperationName) vars() map[string]string {
	return map[string]string{"project": n.Project, "database": n.Database, "operation": n.Operation}
}

// String formats n as a full resource name.
func (n OperationName) String() string { return format(operationTemplate, n.vars()) }

// Validate reports an error wrapping ErrMalformedName when an id is empty
// or holds a slash.
func (n OperationName) Validate() error {
	_, err := operationTemplate.Instantiate(n.vars())
	return err
}

func (n OperationName) Parent() DatabaseName {
	return DatabaseName{Project: n.Project, Database: n.Database}
}

// ParseOperationName parses a operation name. Errors wrap ErrMalformedName.
func ParseOperationName(s string) (OperationName, error) {
	v, err := operationTemplate.ValidatedMatch(s)
	if err != nil {
		return OperationName{}, err
	}
	return OperationName{Project: v["project"], Database: v["database"], Operation: v["operation"]}, nil
}

// IsOperationName reports whether s is a well-formed operation name.
func IsOperationName(s string) bool {
	_, ok := operationTemplate.Match(s)
	return ok
}

// DocumentRootName is .../databases/{database}/documents.
type DocumentRootName struct {
	Project  string
	Database string
}

func (n DocumentRootName) vars() map[string]string {
	return map[string]string{"project": n.Project, "database": n.Database}
}

// String formats n as a full resource name.
func (n DocumentRootName) String() string { return format(documentRootTemplate, n.vars()) }

// Validate reports an error wrapping ErrMalformedName when an id is empty
// or holds a slash.
func (n DocumentRootName) Validate() error {
	_, err := documentRootTemplate.Instantiate(n.vars())
	return err
}

// DatabaseName returns the database the documents belong to.
func (n DocumentRootName) DatabaseName() DatabaseName {
	return DatabaseName{Project: n.Project, Database: n.Database}
}

// Document joins path segments ("cities", "NYC") into a document name.
func (n DocumentRootName) Document(path ...string) DocumentName {
	return DocumentName{Project: n.Project, Database: n.Database, Path: strings.Join(path, "/")}
}

// ParseDocumentRootName parses a documents root name. Errors wrap ErrMalformedName.
func ParseDocumentRootName(s string) (DocumentRootName, error) {
	v, err := documentRootTemplate.ValidatedMatch(s)
	if err != nil {
		return DocumentRootName{}, err
	}
	return DocumentRootName{Project: v["project"], Database: v["database"]}, nil
}

// IsDocumentRootName reports whether s is a well-formed documents root name.
func IsDocumentRootName(s string) bool {
	_, ok := documentRootTemplate.Match(s)
	return ok
}

// DocumentName is .../documents/{document=**}. Path alternates collection
// ids and document ids and so always has an even number of segments.
type DocumentName struct {
	Project  string
	Database string
	Path     string
}

func (n DocumentName) vars() map[string]string {
	return map[string]string{"project": n.Project, "database": n.Database, "document": n.Path}
}

// String formats n as a full resource name.
func (n DocumentName) String() string { return format(documentTemplate, n.vars()) }

// Validate checks the ids like the other names and also requires the
// path to alternate collection and document ids.
func (n DocumentName) Validate() error {
	if _, err := documentTemplate.Instantiate(n.vars()); err != nil {
		return err
	}
	if len(strings.Split(n.Path, "/"))%2 != 0 {
		return fmt.Errorf("%w: document path %q has an odd number of segments", ErrMalformedName, n.Path)
	}
	return nil
}

// Root returns the documents root of the database holding n.
func (n DocumentName) Root() DocumentRootName {
	return DocumentRootName{Project: n.Project, Database: n.Database}
}

// ID is the last path segment.
func (n DocumentName) ID() string {
	return n.Path[strings.LastIndex(n.Path, "/")+1:]
}

// CollectionID is the id of the collection directly containing the document.
func (n DocumentName) CollectionID() string {
	segs := strings.Split(n.Path, "/")
	if len(segs) < 2 {
		return ""
	}
	return segs[len(segs)-2]
}

// Parent returns the resource a list call for the containing collection is
// made against: the documents root, or the enclosing document.
func (n DocumentName) Parent() string {
	segs := strings.Split(n.Path, "/")
	if len(segs) <= 2 {
		return n.Root().String()
	}
	return n.Root().Document(segs[:len(segs)-2]...).String()
}

// Child names a document in a subcollection of n.
func (n DocumentName) Child(collection, id string) DocumentName {
	return DocumentName{Project: n.Project, Database: n.Database, Path: n.Path + "/" + collection + "/" + id}
}

// ParseDocumentName parses a document name. Errors wrap ErrMalformedName.
func ParseDocumentName(s string) (DocumentName, error) {
	v, err := documentTemplate.ValidatedMatch(s)
	if err != nil {
		return DocumentName{}, err
	}
	n := DocumentName{Project: v["project"], Database: v["database"], Path: v["document"]}
	if err := n.Validate(); err != nil {
		return DocumentName{}, err
	}
	return n, nil
}

// IsDocumentName reports whether s is a well-formed document name.
func IsDocumentName(s string) bool {
	_, err := ParseDocumentName(s)
	return err == nil
}

// SplitParent splits a list/query parent into its root and, for nested
// parents, the enclosing document path.
func SplitParent(parent string) (DocumentRootName, string, error) {
	if root, err := ParseDocumentRootName(parent); err == nil {
		return root, "", nil
	}
	doc, err := ParseDocumentName(parent)
	if err != nil {
		return DocumentRootName{}, "", fmt.Errorf("%w: %q is neither a documents root nor a document", ErrMalformedName, parent)
	}
	return doc.Root(), doc.Path, nil
}
