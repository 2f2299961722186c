package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/semistrict/dotty-mcp/pkg/dottymcp"
	"github.com/semistrict/dotty-mcp/pkg/mcpcommon"
)

func main() {
	var help bool
	var root string
	flag.BoolVar(&help, "h", false, "Show available tools and their arguments")
	flag.StringVar(&root, "root", ".", "Root directory of the Dotty project")
	flag.Parse()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		log.Printf("Invalid root %q: %v", root, err)
		os.Exit(1)
	}

	registry := dottymcp.NewRegistry(absRoot)

	if help {
		fmt.Println("dotty-mcp - MCP server wrapping the Dotty (Scala 3) sbt build")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  dotty-mcp [-root DIR]    Start the MCP server (communicates via stdio)")
		fmt.Println("  dotty-mcp -h             Show this help message")
		fmt.Println()
		fmt.Println("Available tools:")
		fmt.Println()
		mcpcommon.PrintTools(dottymcp.NewTools(registry))
		return
	}

	err = dottymcp.Run(registry)

	// Explicit shutdown rather than relying on process teardown: the sbt
	// child gets its graceful exit.
	registry.CloseAll()

	if err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
}
