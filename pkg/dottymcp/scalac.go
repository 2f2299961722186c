package dottymcp

import (
	"context"

	"github.com/semistrict/dotty-mcp/pkg/mcpcommon"
)

type ScalacTool struct {
	_ mcpcommon.ToolInfo `name:"scalac" title:"Compile Scala File" description:"Compile a Scala file using the Dotty (Scala 3) compiler under development through SBT. This tool provides direct access to the development scalac compiler within a persistent SBT session. The -color:never option is automatically added to all compilations to ensure clean, parseable output without ANSI escape codes. A small trick: you can pass empty arguments to check whether the development compiler itself compiles." destructive:"false"`

	File    string   `json:"file" description:"Relative path from project root to the Scala file to compile (e.g. tests/pos/HelloWorld.scala)"`
	Options []string `json:"options" description:"Compiler options to pass to scalac (e.g. -Xprint:typer, -Ycc-verbose); -color:never is prepended automatically"`
	Root    string   `json:"root" description:"Project root to compile in (defaults to the root the server was started with)"`

	registry *Registry
}

func (t *ScalacTool) Handle(ctx context.Context) (interface{}, error) {
	project, err := t.registry.Project(t.Root)
	if err != nil {
		return nil, err
	}

	// The first call per root pays the sbt startup cost, which can take
	// minutes; let the client know something is happening.
	mcpcommon.NotifyProgress(ctx, 1, 2, "ensuring sbt session is ready")
	result := project.Scalac(t.File, t.Options)
	mcpcommon.NotifyProgress(ctx, 2, 2, "compilation finished")

	return result, nil
}
