package mcpcommon

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NotifyProgress sends a progress notification for the in-flight tool call.
// It is a no-op when the call carries no progress token or when the handler
// is being driven outside a real MCP request (e.g. in tests).
func NotifyProgress(ctx context.Context, step int, totalSteps int, message string) {
	s := server.ServerFromContext(ctx)
	req := callToolRequestFromContext(ctx)
	if s == nil || req == nil {
		return
	}
	progressToken := req.Params.Meta.ProgressToken
	if progressToken == nil {
		slog.DebugContext(ctx, "no progress token")
		return
	}
	err := s.SendNotificationToClient(ctx, "notification/progress", map[string]any{
		"progress":      step,
		"total":         totalSteps,
		"message":       message,
		"progressToken": progressToken,
	})
	if err != nil {
		slog.ErrorContext(ctx, "error sending progress", "err", err)
	}
}

type ctxKey string

var callToolRequestContextKey = ctxKey("callToolRequest")

func callToolRequestFromContext(ctx context.Context) *mcp.CallToolRequest {
	req, _ := ctx.Value(callToolRequestContextKey).(*mcp.CallToolRequest)
	return req
}

func withCallToolRequest(ctx context.Context, ctr *mcp.CallToolRequest) context.Context {
	return context.WithValue(ctx, callToolRequestContextKey, ctr)
}
