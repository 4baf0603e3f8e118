package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/admin"
	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/retry"
	"github.com/edvin/firestore-admin/internal/transport"
)

// ProxyHandler creates MCP tool handlers that invoke admin RPCs.
type ProxyHandler struct {
	tc     *transport.Client
	admin  *admin.Client
	logger zerolog.Logger
}

// NewProxyHandler creates a proxy handler over an admin transport. The
// admin client is used to wait on operations.
func NewProxyHandler(tc *transport.Client, ac *admin.Client, logger zerolog.Logger) *ProxyHandler {
	return &ProxyHandler{tc: tc, admin: ac, logger: logger}
}

// Handler returns an MCP tool handler function for the given operation.
func (p *ProxyHandler) Handler(op ToolOperation) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		body := map[string]any{}
		if raw, ok := args["request"].(string); ok && strings.TrimSpace(raw) != "" {
			if err := json.Unmarshal([]byte(raw), &body); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("request is not a JSON object: %s", err)), nil
			}
		}
		for arg, field := range op.Params {
			val, ok := args[arg].(string)
			if !ok || val == "" {
				return mcp.NewToolResultError(fmt.Sprintf("missing required parameter: %s", arg)), nil
			}
			setField(body, field, val)
		}

		p.logger.Debug().
			Str("rpc", op.RPC).
			Str("tool", req.Params.Name).
			Msg("invoking MCP tool call")

		var out json.RawMessage
		if err := p.tc.Invoke(ctx, transport.Call{RPC: op.RPC, Request: body}, &out); err != nil {
			return errorResult(err), nil
		}

		if wait, _ := args["wait"].(bool); wait && op.LongRunning {
			var lro model.Operation
			if err := json.Unmarshal(out, &lro); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("decode operation: %s", err)), nil
			}
			res, err := p.admin.Operation(lro.Name).Wait(ctx)
			if err != nil {
				return errorResult(err), nil
			}
			if out, err = json.Marshal(res); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("encode result: %s", err)), nil
			}
		}

		if len(out) == 0 || string(out) == "{}" {
			return mcp.NewToolResultText(`{"status":"success"}`), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	st := status.Convert(err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", retry.CodeName(st.Code()), st.Message()))
}

// setField sets a dotted path in a JSON object, creating nested objects.
func setField(m map[string]any, path string, v any) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		m[head] = v
		return
	}
	child, ok := m[head].(map[string]any)
	if !ok {
		child = map[string]any{}
		m[head] = child
	}
	setField(child, rest, v)
}
