package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/crm-insights/server/internal/agent/tools"
)

//go:embed template/system_prompt.txt
var systemPrompt string

// RenderSystem renders the analyst system instruction and triggers prompt callbacks.
func RenderSystem(ctx context.Context) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(systemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"ToolName": tools.ToolQueryCRM,
	})
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return strings.TrimSpace(msgs[0].Content), nil
}
