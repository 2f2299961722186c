package mcpcommon

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolHandler implements a tool.
type ToolHandler interface {
	Handle(ctx context.Context) (interface{}, error)
}

// ToolInfo is used as the type of a dummy field to annotate the tool itself with struct tags.
type ToolInfo struct{}

// ReflectTool builds a server.ServerTool from a tool struct type. Tool metadata
// comes from the struct tags on the ToolInfo field, parameters from the tagged
// exported fields. The constructor supplies per-call instances pre-populated
// with defaults and collaborators.
func ReflectTool[T ToolHandler](constructor func() T) server.ServerTool {
	example := constructor()
	toolType := reflect.TypeOf(example)

	if toolType.Kind() == reflect.Ptr {
		toolType = toolType.Elem()
	}

	toolName, toolTitle, toolDescription, isDestructive, isReadOnly := parseToolInfo(toolType)
	if toolName == "" {
		toolName = strings.ToLower(toolType.Name())
	}

	options := []mcp.ToolOption{
		mcp.WithDescription(toolDescription),
		mcp.WithDestructiveHintAnnotation(isDestructive),
		mcp.WithReadOnlyHintAnnotation(isReadOnly),
	}
	if toolTitle != "" {
		options = append(options, mcp.WithTitleAnnotation(toolTitle))
	}
	options = append(options, parseToolProperties(toolType)...)

	tool := mcp.NewTool(toolName, options...)

	return server.ServerTool{
		Tool: tool,
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("tool panic: %s", r)
				}
			}()

			toolInstance := constructor()

			if err := unmarshalArguments(toolInstance, request.GetArguments()); err != nil {
				return nil, fmt.Errorf("failed to unmarshal arguments: %v", err)
			}

			ctx = withCallToolRequest(ctx, &request)

			slog.DebugContext(ctx, "calling tool", "tool", toolName)
			rawResult, err := toolInstance.Handle(ctx)
			if err != nil {
				slog.WarnContext(ctx, "tool returned error", "tool", toolName, "err", err)
				return convertResult(toolName, err), nil
			}

			return convertResult(toolName, rawResult), nil
		},
	}
}

func parseToolInfo(toolType reflect.Type) (name, title, description string, destructive, readonly bool) {
	for i := 0; i < toolType.NumField(); i++ {
		field := toolType.Field(i)
		if field.Type == reflect.TypeOf(ToolInfo{}) {
			name = field.Tag.Get("name")
			title = field.Tag.Get("title")
			description = field.Tag.Get("description")
			destructive = field.Tag.Get("destructive") == "true"
			readonly = field.Tag.Get("readonly") == "true"
			return
		}
	}
	return
}

func parseToolProperties(toolType reflect.Type) []mcp.ToolOption {
	var options []mcp.ToolOption

	for i := 0; i < toolType.NumField(); i++ {
		field := toolType.Field(i)

		if field.Type == reflect.TypeOf(ToolInfo{}) || !field.IsExported() {
			continue
		}

		// Embedded structs contribute their fields directly
		if field.Anonymous {
			options = append(options, parseToolProperties(field.Type)...)
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}

		fieldName := strings.Split(jsonTag, ",")[0]
		description := field.Tag.Get("description")
		required := field.Tag.Get("mcp") == "required"
		defaultValue := field.Tag.Get("default")

		// Validate that description doesn't contain "default:" - should use separate tag
		if strings.Contains(strings.ToLower(description), "default:") {
			panic(fmt.Sprintf("Field %s.%s: description contains 'default:' - use separate 'default' struct tag instead",
				toolType.Name(), field.Name))
		}

		var paramOptions []mcp.PropertyOption
		paramOptions = append(paramOptions, mcp.Description(description))
		if required {
			paramOptions = append(paramOptions, mcp.Required())
		}

		switch field.Type.Kind() {
		case reflect.String:
			if defaultValue != "" {
				paramOptions = append(paramOptions, mcp.DefaultString(defaultValue))
			}
			options = append(options, mcp.WithString(fieldName, paramOptions...))
			continue

		case reflect.Bool:
			if defaultValue == "true" {
				paramOptions = append(paramOptions, mcp.DefaultBool(true))
			} else if defaultValue == "false" {
				paramOptions = append(paramOptions, mcp.DefaultBool(false))
			}
			options = append(options, mcp.WithBoolean(fieldName, paramOptions...))
			continue

		case reflect.Int, reflect.Int64, reflect.Float64:
			if defaultValue != "" {
				if defaultNum, err := strconv.ParseFloat(defaultValue, 64); err == nil {
					paramOptions = append(paramOptions, mcp.DefaultNumber(defaultNum))
				}
			}
			options = append(options, mcp.WithNumber(fieldName, paramOptions...))
			continue

		case reflect.Slice:
			if field.Type.Elem().Kind() == reflect.String {
				paramOptions = append(paramOptions, mcp.WithStringItems())
				options = append(options, mcp.WithArray(fieldName, paramOptions...))
				continue
			}
		}

		log.Panicf("don't know how to represent parameter %v", field)
	}

	return options
}

func unmarshalArguments(tool interface{}, arguments map[string]interface{}) error {
	// Round-trip through JSON to populate the struct
	jsonData, err := json.Marshal(arguments)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, tool)
}

func convertResult(toolName string, result interface{}) *mcp.CallToolResult {
	switch v := result.(type) {
	case error:
		return mcp.NewToolResultErrorFromErr(toolName, v)
	case string:
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{
					Type: "text",
					Text: v,
				},
			},
		}
	case *mcp.CallToolResult:
		return v
	default:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.TextContent{
						Type: "text",
						Text: fmt.Sprintf("Error marshaling result: %v", err),
					},
				},
				IsError: true,
			}
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{
					Type: "text",
					Text: string(data),
				},
			},
		}
	}
}
