// Package mcpserver exposes the Firestore Admin API as MCP tools.
package mcpserver

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/edvin/firestore-admin/internal/admin"
	"github.com/edvin/firestore-admin/internal/transport"
)

const version = "1.0.0"

// Server is the MCP server that turns tool calls into admin RPCs.
type Server struct {
	router chi.Router
	logger zerolog.Logger
	cfg    *Config
	tools  map[string]ToolOperation
}

type groupInfo struct {
	Name        string `json:"name"`
	Endpoint    string `json:"endpoint"`
	Tools       int    `json:"tools"`
	Description string `json:"description"`
}

// New creates an MCP server. tc must be an admin transport; ac is the
// admin client over the same transport.
func New(cfg *Config, tc *transport.Client, ac *admin.Client, logger zerolog.Logger) *Server {
	proxy := NewProxyHandler(tc, ac, logger)
	groups, tools := BuildTools(transport.AdminRoutes, cfg, proxy.Handler)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	// Each group is its own MCP server; /mcp/all carries every tool.
	var (
		allTools []server.ServerTool
		index    []groupInfo
	)
	router.Route("/mcp", func(r chi.Router) {
		for _, groupName := range names {
			tools := groups[groupName]
			groupDesc := cfg.Groups[groupName].Description
			if groupDesc == "" {
				groupDesc = "Firestore " + groupName + " administration tools"
			}

			mcpSrv := server.NewMCPServer("firestore-"+groupName, version, server.WithInstructions(groupDesc))
			mcpSrv.AddTools(tools...)
			r.Mount("/"+groupName, server.NewStreamableHTTPServer(mcpSrv, server.WithEndpointPath("/")))

			allTools = append(allTools, tools...)
			index = append(index, groupInfo{Name: groupName, Endpoint: "/mcp/" + groupName, Tools: len(tools), Description: groupDesc})
			logger.Info().Str("group", groupName).Int("tools", len(tools)).Msg("mounted MCP tool group")
		}

		allSrv := server.NewMCPServer("firestore", version,
			server.WithInstructions("Firestore administration: databases, indexes and fields, export and import, backups, user credentials and long-running operations."))
		allSrv.AddTools(allTools...)
		r.Mount("/all", server.NewStreamableHTTPServer(allSrv, server.WithEndpointPath("/")))
		index = append(index, groupInfo{Name: "all", Endpoint: "/mcp/all", Tools: len(allTools), Description: "All tools from every group"})
		logger.Info().Int("tools", len(allTools)).Bool("read_only", cfg.ReadOnly).Msg("mounted unified MCP endpoint at /mcp/all")

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(index)
		})
	})

	return &Server{router: router, logger: logger, cfg: cfg, tools: tools}
}

// ToolNames returns the names of every exposed tool, sorted.
func (s *Server) ToolNames() []string {
	out := make([]string, 0, len(s.tools))
	for name := range s.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
