package mcpserver

import (
	"net/http"
	"sort"
	"strings"
	"unicode"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/edvin/firestore-admin/internal/rpc"
	"github.com/edvin/firestore-admin/internal/transport"
)

// groupRPCs assigns every admin RPC to a tool group.
var groupRPCs = map[string][]string{
	"databases": {rpc.CreateDatabase, rpc.GetDatabase, rpc.ListDatabases, rpc.UpdateDatabase, rpc.DeleteDatabase},
	"indexes":   {rpc.CreateIndex, rpc.ListIndexes, rpc.GetIndex, rpc.DeleteIndex, rpc.GetField, rpc.UpdateField, rpc.ListFields},
	"data":      {rpc.ExportDocuments, rpc.ImportDocuments, rpc.BulkDeleteDocuments},
	"backups": {
		rpc.GetBackup, rpc.ListBackups, rpc.DeleteBackup, rpc.RestoreDatabase,
		rpc.CreateBackupSchedule, rpc.GetBackupSchedule, rpc.ListBackupSchedules, rpc.UpdateBackupSchedule, rpc.DeleteBackupSchedule,
	},
	"usercreds": {
		rpc.CreateUserCreds, rpc.GetUserCreds, rpc.ListUserCreds, rpc.EnableUserCreds,
		rpc.DisableUserCreds, rpc.ResetUserPassword, rpc.DeleteUserCreds,
	},
	"operations": {rpc.GetOperation, rpc.ListOperations, rpc.CancelOperation, rpc.DeleteOperation},
}

// longRunning lists the RPCs that answer with an operation.
var longRunning = map[string]bool{
	rpc.CreateIndex:         true,
	rpc.UpdateField:         true,
	rpc.ExportDocuments:     true,
	rpc.ImportDocuments:     true,
	rpc.BulkDeleteDocuments: true,
	rpc.CreateDatabase:      true,
	rpc.UpdateDatabase:      true,
	rpc.DeleteDatabase:      true,
	rpc.RestoreDatabase:     true,
}

// ToolOperation holds the data needed to invoke a tool's RPC.
type ToolOperation struct {
	RPC string
	// Params maps tool argument names to the request fields bound into
	// the URL path ("name" -> "field.name").
	Params      map[string]string
	LongRunning bool
}

// BuildTools generates one MCP tool per admin route, grouped by
// groupRPCs. Returns a map of group name to tools, and a map of tool
// name to ToolOperation.
func BuildTools(routes *transport.Routes, cfg *Config, handlerFn func(op ToolOperation) server.ToolHandlerFunc) (map[string][]server.ServerTool, map[string]ToolOperation) {
	groups := make(map[string][]server.ServerTool)
	operations := make(map[string]ToolOperation)

	names := make([]string, 0, len(groupRPCs))
	for name := range groupRPCs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, group := range names {
		if cfg.Groups[group].Disabled {
			continue
		}
		for _, name := range groupRPCs[group] {
			route, ok := routes.Lookup(name)
			if !ok {
				continue
			}
			if cfg.ReadOnly && route.HTTPMethod != http.MethodGet {
				continue
			}

			toolName := deriveName(name)
			override, hasOverride := cfg.Overrides[toolName]
			if hasOverride && override.Disabled {
				continue
			}
			if hasOverride && override.Name != "" {
				toolName = override.Name
			}

			desc := describe(route)
			if hasOverride && override.Description != "" {
				desc = override.Description
			}

			op := ToolOperation{RPC: name, Params: pathParams(route), LongRunning: longRunning[name]}
			toolOpts := []mcp.ToolOption{mcp.WithDescription(desc)}
			toolOpts = append(toolOpts, buildAnnotations(route.HTTPMethod, cfg, override, hasOverride)...)
			toolOpts = append(toolOpts, buildParams(op)...)

			groups[group] = append(groups[group], server.ServerTool{
				Tool:    mcp.NewTool(toolName, toolOpts...),
				Handler: handlerFn(op),
			})
			operations[toolName] = op
		}
	}
	return groups, operations
}

func describe(route *transport.Route) string {
	desc := "Calls " + rpc.Short(route.RPC) + " (" + route.HTTPMethod + " " + route.Path + ")."
	if longRunning[route.RPC] {
		desc += " Returns a long-running operation; set wait to block until it finishes."
	}
	return desc
}

// pathParams names the path-bound request fields by their last
// segment.
func pathParams(route *transport.Route) map[string]string {
	params := map[string]string{}
	for _, f := range route.Rules()[0].Fields() {
		arg := f
		if i := strings.LastIndexByte(f, '.'); i >= 0 {
			arg = f[i+1:]
		}
		params[arg] = f
	}
	return params
}

// buildAnnotations creates MCP annotation options from config defaults and overrides.
func buildAnnotations(method string, cfg *Config, override ToolOverride, hasOverride bool) []mcp.ToolOption {
	var opts []mcp.ToolOption

	readOnly, destructive, idempotent := methodHints(method)
	if d, ok := cfg.Defaults[method]; ok {
		readOnly = pick(d.ReadOnly, readOnly)
		destructive = pick(d.Destructive, destructive)
		idempotent = pick(d.Idempotent, idempotent)
	}
	if hasOverride {
		readOnly = pick(override.ReadOnly, readOnly)
		destructive = pick(override.Destructive, destructive)
		idempotent = pick(override.Idempotent, idempotent)
	}

	opts = append(opts, mcp.WithReadOnlyHintAnnotation(readOnly))
	opts = append(opts, mcp.WithDestructiveHintAnnotation(destructive))
	opts = append(opts, mcp.WithIdempotentHintAnnotation(idempotent))
	return opts
}

func methodHints(method string) (readOnly, destructive, idempotent bool) {
	switch method {
	case http.MethodGet:
		return true, false, true
	case http.MethodDelete:
		return false, true, true
	case http.MethodPatch:
		return false, false, true
	}
	return false, false, false
}

func pick(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

// buildParams declares one required string per path field, the optional
// request JSON and, for long-running RPCs, wait.
func buildParams(op ToolOperation) []mcp.ToolOption {
	var opts []mcp.ToolOption

	args := make([]string, 0, len(op.Params))
	for arg := range op.Params {
		args = append(args, arg)
	}
	sort.Strings(args)
	for _, arg := range args {
		opts = append(opts, mcp.WithString(arg,
			mcp.Required(),
			mcp.Description("Resource name bound to "+op.Params[arg]+", e.g. projects/my-project/databases/(default)"),
		))
	}

	opts = append(opts, mcp.WithString("request",
		mcp.Description("Remaining request fields as a JSON object in the REST form of "+rpc.Short(op.RPC)+"Request"),
	))
	if op.LongRunning {
		opts = append(opts, mcp.WithBoolean("wait",
			mcp.Description("Block until the operation finishes and return its result"),
		))
	}
	return opts
}

// deriveName turns an RPC name into a snake_case tool name:
// ".../ListUserCreds" -> "list_user_creds".
func deriveName(name string) string {
	var b strings.Builder
	for i, r := range rpc.Short(name) {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
