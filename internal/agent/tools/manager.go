package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	logx "github.com/crm-insights/server/pkg/logger"
)

// GetQueryTools returns every tool offered to the chat model.
func GetQueryTools(exec Executor) []tool.BaseTool {
	return []tool.BaseTool{
		NewQueryTool(exec),
	}
}

// GetToolInfos collects the schemas to bind to the chat model.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// NewToolsNode builds the executor for model tool calls. Calls run in order,
// hallucinated tool names get an error payload instead of failing the round.
func NewToolsNode(ctx context.Context, tools []tool.BaseTool) (*compose.ToolsNode, error) {
	node, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               tools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning error result")
			return errorPayload(fmt.Sprintf("Unknown tool: %s", name)), nil
		},
		ToolArgumentsHandler: SanitizeArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}
	return node, nil
}
