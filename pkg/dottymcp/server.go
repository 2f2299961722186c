package dottymcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/semistrict/dotty-mcp/pkg/mcpcommon"
)

// NewTools builds the tool set bound to the given registry.
func NewTools(registry *Registry) []server.ServerTool {
	return []server.ServerTool{
		mcpcommon.ReflectTool(func() *ScalacTool {
			return &ScalacTool{registry: registry}
		}),
		mcpcommon.ReflectTool(func() *TestCompilationTool {
			return &TestCompilationTool{registry: registry}
		}),
	}
}

// Run serves the tools over stdio until the client disconnects.
func Run(registry *Registry) error {
	s := server.NewMCPServer("dotty-mcp", "1.0.0", server.WithToolCapabilities(true))
	s.AddTools(NewTools(registry)...)
	slog.Info("starting", "root", registry.defaultRoot)
	return server.ServeStdio(s)
}
