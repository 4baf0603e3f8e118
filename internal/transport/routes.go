package transport

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/edvin/firestore-admin/internal/rpc"
)

// Route is the HTTP binding of one RPC. Body names the request field sent
// as the JSON body: "*" for the whole request, "" for none. Stream marks
// RPCs whose response is a JSON array of messages.
type Route struct {
	RPC             string
	HTTPMethod      string
	Path            string
	AdditionalPaths []string
	Body            string
	Stream          bool

	rules []*HTTPRule
}

// Rules returns the compiled primary rule followed by the additional
// bindings.
func (r *Route) Rules() []*HTTPRule { return r.rules }

// Routes is a route table keyed by full RPC name.
type Routes struct {
	byRPC map[string]*Route
	order []*Route
}

// NewRoutes compiles every path of the given routes.
func NewRoutes(routes ...Route) (*Routes, error) {
	t := &Routes{byRPC: make(map[string]*Route, len(routes))}
	for i := range routes {
		r := routes[i]
		r.rules = nil
		if _, dup := t.byRPC[r.RPC]; dup {
			return nil, fmt.Errorf("duplicate route for %s", r.RPC)
		}
		for _, p := range append([]string{r.Path}, r.AdditionalPaths...) {
			rule, err := ParseHTTPRule(p)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", r.RPC, err)
			}
			r.rules = append(r.rules, rule)
		}
		t.byRPC[r.RPC] = &r
		t.order = append(t.order, &r)
	}
	return t, nil
}

func mustRoutes(routes ...Route) *Routes {
	t, err := NewRoutes(routes...)
	if err != nil {
		panic(err)
	}
	return t
}

// Merge returns a table holding the routes of every argument.
func Merge(tables ...*Routes) *Routes {
	var all []Route
	for _, t := range tables {
		for _, r := range t.order {
			all = append(all, *r)
		}
	}
	return mustRoutes(all...)
}

// Lookup returns the route bound to the full RPC name.
func (t *Routes) Lookup(name string) (*Route, bool) {
	r, ok := t.byRPC[name]
	return r, ok
}

// All returns the routes sorted by RPC name.
func (t *Routes) All() []*Route {
	out := append([]*Route(nil), t.order...)
	sort.Slice(out, func(i, j int) bool { return out[i].RPC < out[j].RPC })
	return out
}

// Match finds the route serving an HTTP request and returns the path
// variables it binds. Custom-verb bindings are tried first so that
// "documents/a/b:runQuery" is not taken for a document create.
func (t *Routes) Match(method, escapedPath string) (*Route, map[string]string, bool) {
	return t.MatchWhere(method, escapedPath, nil)
}

// MatchWhere is Match with an extra predicate over candidate bindings,
// used where two routes share a template shape.
func (t *Routes) MatchWhere(method, escapedPath string, accept func(*Route, map[string]string) bool) (*Route, map[string]string, bool) {
	hasVerb := strings.Contains(escapedPath[strings.LastIndexByte(escapedPath, '/')+1:], ":")
	for _, wantVerb := range []bool{true, false} {
		if wantVerb && !hasVerb {
			continue
		}
		for _, r := range t.order {
			if r.HTTPMethod != method {
				continue
			}
			for _, rule := range r.rules {
				if (rule.Verb() != "") != wantVerb {
					continue
				}
				params, ok := rule.Match(escapedPath)
				if !ok {
					continue
				}
				if accept != nil && !accept(r, params) {
					continue
				}
				return r, params, true
			}
		}
	}
	return nil, nil, false
}

const (
	collectionGroup = "projects/*/databases/*/collectionGroups/*"
	database        = "projects/*/databases/*"
	documentsRoot   = "projects/*/databases/*/documents"
)

// AdminRoutes binds the Firestore Admin and long-running operations RPCs.
var AdminRoutes = mustRoutes(
	Route{RPC: rpc.CreateIndex, HTTPMethod: http.MethodPost, Path: "/v1/{parent=" + collectionGroup + "}/indexes", Body: "index"},
	Route{RPC: rpc.ListIndexes, HTTPMethod: http.MethodGet, Path: "/v1/{parent=" + collectionGroup + "}/indexes"},
	Route{RPC: rpc.GetIndex, HTTPMethod: http.MethodGet, Path: "/v1/{name=" + collectionGroup + "/indexes/*}"},
	Route{RPC: rpc.DeleteIndex, HTTPMethod: http.MethodDelete, Path: "/v1/{name=" + collectionGroup + "/indexes/*}"},
	Route{RPC: rpc.GetField, HTTPMethod: http.MethodGet, Path: "/v1/{name=" + collectionGroup + "/fields/*}"},
	Route{RPC: rpc.UpdateField, HTTPMethod: http.MethodPatch, Path: "/v1/{field.name=" + collectionGroup + "/fields/*}", Body: "field"},
	Route{RPC: rpc.ListFields, HTTPMethod: http.MethodGet, Path: "/v1/{parent=" + collectionGroup + "}/fields"},
	Route{RPC: rpc.ExportDocuments, HTTPMethod: http.MethodPost, Path: "/v1/{name=" + database + "}:exportDocuments", Body: "*"},
	Route{RPC: rpc.ImportDocuments, HTTPMethod: http.MethodPost, Path: "/v1/{name=" + database + "}:importDocuments", Body: "*"},
	Route{RPC: rpc.BulkDeleteDocuments, HTTPMethod: http.MethodPost, Path: "/v1/{name=" + database + "}:bulkDeleteDocuments", Body: "*"},

	Route{RPC: rpc.CreateDatabase, HTTPMethod: http.MethodPost, Path: "/v1/{parent=projects/*}/databases", Body: "database"},
	Route{RPC: rpc.GetDatabase, HTTPMethod: http.MethodGet, Path: "/v1/{name=" + database + "}"},
	Route{RPC: rpc.ListDatabases, HTTPMethod: http.MethodGet, Path: "/v1/{parent=projects/*}/databases"},
	Route{RPC: rpc.UpdateDatabase, HTTPMethod: http.MethodPatch, Path: "/v1/{database.name=" + database + "}", Body: "database"},
	Route{RPC: rpc.DeleteDatabase, HTTPMethod: http.MethodDelete, Path: "/v1/{name=" + database + "}"},

	Route{RPC: rpc.CreateUserCreds, HTTPMethod: http.MethodPost, Path: "/v1/{parent=" + database + "}/userCreds", Body: "userCreds"},
	Route{RPC: rpc.GetUserCreds, HTTPMethod: http.MethodGet, Path: "/v1/{name=" + database + "/userCreds/*}"},
	Route{RPC: rpc.ListUserCreds, HTTPMethod: http.MethodGet, Path: "/v1/{parent=" + database + "}/userCreds"},
	Route{RPC: rpc.EnableUserCreds, HTTPMethod: http.MethodPost, Path: "/v1/{name=" + database + "/userCreds/*}:enable", Body: "*"},
	Route{RPC: rpc.DisableUserCreds, HTTPMethod: http.MethodPost, Path: "/v1/{name=" + database + "/userCreds/*}:disable", Body: "*"},
	Route{RPC: rpc.ResetUserPassword, HTTPMethod: http.MethodPost, Path: "/v1/{name=" + database + "/userCreds/*}:resetPassword", Body: "*"},
	Route{RPC: rpc.DeleteUserCreds, HTTPMethod: http.MethodDelete, Path: "/v1/{name=" + database + "/userCreds/*}"},

	Route{RPC: rpc.GetBackup, HTTPMethod: http.MethodGet, Path: "/v1/{name=projects/*/locations/*/backups/*}"},
	Route{RPC: rpc.ListBackups, HTTPMethod: http.MethodGet, Path: "/v1/{parent=projects/*/locations/*}/backups"},
	Route{RPC: rpc.DeleteBackup, HTTPMethod: http.MethodDelete, Path: "/v1/{name=projects/*/locations/*/backups/*}"},
	Route{RPC: rpc.RestoreDatabase, HTTPMethod: http.MethodPost, Path: "/v1/{parent=projects/*}/databases:restore", Body: "*"},

	Route{RPC: rpc.CreateBackupSchedule, HTTPMethod: http.MethodPost, Path: "/v1/{parent=" + database + "}/backupSchedules", Body: "backupSchedule"},
	Route{RPC: rpc.GetBackupSchedule, HTTPMethod: http.MethodGet, Path: "/v1/{name=" + database + "/backupSchedules/*}"},
	Route{RPC: rpc.ListBackupSchedules, HTTPMethod: http.MethodGet, Path: "/v1/{parent=" + database + "}/backupSchedules"},
	Route{RPC: rpc.UpdateBackupSchedule, HTTPMethod: http.MethodPatch, Path: "/v1/{backupSchedule.name=" + database + "/backupSchedules/*}", Body: "backupSchedule"},
	Route{RPC: rpc.DeleteBackupSchedule, HTTPMethod: http.MethodDelete, Path: "/v1/{name=" + database + "/backupSchedules/*}"},

	Route{RPC: rpc.GetOperation, HTTPMethod: http.MethodGet, Path: "/v1/{name=" + database + "/operations/*}"},
	Route{RPC: rpc.ListOperations, HTTPMethod: http.MethodGet, Path: "/v1/{name=" + database + "}/operations"},
	Route{RPC: rpc.CancelOperation, HTTPMethod: http.MethodPost, Path: "/v1/{name=" + database + "/operations/*}:cancel", Body: "*"},
	Route{RPC: rpc.DeleteOperation, HTTPMethod: http.MethodDelete, Path: "/v1/{name=" + database + "/operations/*}"},
)

// FirestoreRoutes binds the Firestore data-plane RPCs that have a REST
// form. Listen and Write are bidirectional streams and have none.
var FirestoreRoutes = mustRoutes(
	Route{RPC: rpc.GetDocument, HTTPMethod: http.MethodGet, Path: "/v1/{name=" + documentsRoot + "/*/**}"},
	Route{
		RPC: rpc.ListDocuments, HTTPMethod: http.MethodGet,
		Path:            "/v1/{parent=" + documentsRoot + "/*/**}/{collectionId}",
		AdditionalPaths: []string{"/v1/{parent=" + documentsRoot + "}/{collectionId}"},
	},
	Route{RPC: rpc.CreateDocument, HTTPMethod: http.MethodPost, Path: "/v1/{parent=" + documentsRoot + "/**}/{collectionId}", Body: "document"},
	Route{RPC: rpc.UpdateDocument, HTTPMethod: http.MethodPatch, Path: "/v1/{document.name=" + documentsRoot + "/*/**}", Body: "document"},
	Route{RPC: rpc.DeleteDocument, HTTPMethod: http.MethodDelete, Path: "/v1/{name=" + documentsRoot + "/*/**}"},
	Route{RPC: rpc.BatchGetDocuments, HTTPMethod: http.MethodPost, Path: "/v1/{database=" + database + "}/documents:batchGet", Body: "*", Stream: true},
	Route{RPC: rpc.BeginTransaction, HTTPMethod: http.MethodPost, Path: "/v1/{database=" + database + "}/documents:beginTransaction", Body: "*"},
	Route{RPC: rpc.Commit, HTTPMethod: http.MethodPost, Path: "/v1/{database=" + database + "}/documents:commit", Body: "*"},
	Route{RPC: rpc.Rollback, HTTPMethod: http.MethodPost, Path: "/v1/{database=" + database + "}/documents:rollback", Body: "*"},
	parentVerb(rpc.RunQuery, "runQuery", true),
	parentVerb(rpc.RunAggregationQuery, "runAggregationQuery", true),
	parentVerb(rpc.PartitionQuery, "partitionQuery", false),
	parentVerb(rpc.ListCollectionIds, "listCollectionIds", false),
	Route{RPC: rpc.BatchWrite, HTTPMethod: http.MethodPost, Path: "/v1/{database=" + database + "}/documents:batchWrite", Body: "*"},
)

func parentVerb(name, verb string, stream bool) Route {
	return Route{
		RPC: name, HTTPMethod: http.MethodPost,
		Path:            "/v1/{parent=" + documentsRoot + "}:" + verb,
		AdditionalPaths: []string{"/v1/{parent=" + documentsRoot + "/*/**}:" + verb},
		Body:            "*",
		Stream:          stream,
	}
}
