package mcpcommon

import (
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/server"
)

// PrintTools writes a human-readable listing of the given tools to stdout,
// sorted by name. Used by the -h flag of server binaries.
func PrintTools(tools []server.ServerTool) {
	sortedTools := make([]server.ServerTool, len(tools))
	copy(sortedTools, tools)
	sort.Slice(sortedTools, func(i, j int) bool {
		return sortedTools[i].Tool.Name < sortedTools[j].Tool.Name
	})

	for _, serverTool := range sortedTools {
		tool := serverTool.Tool
		fmt.Printf("Tool: %s\n", tool.Name)
		if tool.Description != "" {
			fmt.Printf("  Description: %s\n", tool.Description)
		}

		if tool.InputSchema.Properties == nil {
			fmt.Printf("  Parameters: none\n\n")
			continue
		}

		fmt.Printf("  Parameters:\n")

		var propNames []string
		for name := range tool.InputSchema.Properties {
			propNames = append(propNames, name)
		}
		sort.Strings(propNames)

		for _, name := range propNames {
			prop := tool.InputSchema.Properties[name]
			required := false
			for _, req := range tool.InputSchema.Required {
				if req == name {
					required = true
					break
				}
			}

			requiredStr := ""
			if required {
				requiredStr = " (required)"
			}

			typeStr := ""
			descStr := ""
			if propMap, ok := prop.(map[string]interface{}); ok {
				if typeVal, ok := propMap["type"].(string); ok {
					typeStr = fmt.Sprintf(" [%s]", typeVal)
				}
				if descVal, ok := propMap["description"].(string); ok {
					descStr = descVal
				}
			}

			fmt.Printf("    %s%s%s", name, typeStr, requiredStr)
			if descStr != "" {
				fmt.Printf(" - %s", descStr)
			}
			fmt.Println()
		}
		fmt.Println()
	}
}
