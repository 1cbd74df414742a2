// Package anthropic implements llm.Provider over the Anthropic Claude
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/llm"
)

// Provider implements llm.Provider using the Anthropic Messages API.
type Provider struct {
	client    sdk.Client
	model     string
	maxTokens int
	temp      float64
}

// New constructs a Provider bound to apiKey and model.
func New(apiKey, model string, temperature float64, maxTokens int) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anthropic: model must not be empty")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &Provider{client: client, model: model, maxTokens: maxTokens, temp: temperature}, nil
}

func (p *Provider) Name() string { return "anthropic" }

// Generate implements llm.Provider. The system prompt, if present as the
// first message, is hoisted into the top-level System param, matching
// Anthropic's API shape; tool results are mapped to tool_result content
// blocks.
func (p *Provider) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	var system []sdk.TextBlockParam
	var conversation []sdk.MessageParam

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case llm.RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case llm.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		case llm.RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(
				sdk.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if p.temp > 0 {
		params.Temperature = sdk.Float(p.temp)
	}
	for _, td := range tools {
		schema, err := inputSchema(td.Parameters)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", td.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, td.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(td.Description)
		}
		params.Tools = append(params.Tools, u)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &errs.ProviderError{Provider: "anthropic", Op: "generate", Err: err}
	}

	resp := &llm.Response{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			var args map[string]any
			raw, _ := json.Marshal(block.Input)
			_ = json.Unmarshal(raw, &args)
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	resp.Usage = &llm.Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return resp, nil
}

func inputSchema(parameters map[string]any) (sdk.ToolInputSchemaParam, error) {
	if parameters == nil {
		return sdk.ToolInputSchemaParam{}, nil
	}
	return sdk.ToolInputSchemaParam{ExtraFields: parameters}, nil
}
