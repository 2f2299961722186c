package dottymcp

import (
	"context"

	"github.com/semistrict/dotty-mcp/pkg/mcpcommon"
)

type TestCompilationTool struct {
	_ mcpcommon.ToolInfo `name:"testCompilation" title:"Run Compilation Test Suite" description:"Run the compilation test suite of the development compiler, which tests the compiler against a collection of Scala source files. The pattern argument is a simple substring (not a regex) filtering tests by path; when empty, all compilation tests run." destructive:"false"`

	Pattern string `json:"pattern" description:"Substring to filter tests by path (e.g. pos/i1234); empty runs all compilation tests"`
	Root    string `json:"root" description:"Project root to run tests in (defaults to the root the server was started with)"`

	registry *Registry
}

func (t *TestCompilationTool) Handle(ctx context.Context) (interface{}, error) {
	project, err := t.registry.Project(t.Root)
	if err != nil {
		return nil, err
	}

	mcpcommon.NotifyProgress(ctx, 1, 2, "ensuring sbt session is ready")
	result := project.TestCompilation(t.Pattern)
	mcpcommon.NotifyProgress(ctx, 2, 2, "test run finished")

	return result, nil
}
