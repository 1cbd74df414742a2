// Package bedrock implements llm.Provider over the AWS Bedrock Converse
// API, so a deployment can route the LLM role through an existing AWS
// account instead of calling OpenAI/Anthropic directly.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/llm"
)

// runtimeClient is the subset of *bedrockruntime.Client this adapter needs;
// it lets tests substitute a fake.
type runtimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Provider implements llm.Provider using AWS Bedrock's Converse API.
type Provider struct {
	runtime   runtimeClient
	modelID   string
	maxTokens int32
	temp      float32
}

// New loads the default AWS credential chain for region and constructs a
// Provider bound to modelID (an inference profile or foundation model ARN).
func New(ctx context.Context, region, modelID string, temperature float64, maxTokens int) (*Provider, error) {
	if modelID == "" {
		return nil, fmt.Errorf("bedrock: modelID must not be empty")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}
	return &Provider{
		runtime:   bedrockruntime.NewFromConfig(cfg),
		modelID:   modelID,
		maxTokens: int32(maxTokens),
		temp:      float32(temperature),
	}, nil
}

func (p *Provider) Name() string { return "bedrock" }

// Generate implements llm.Provider, translating the role-tagged history into
// Bedrock's system/conversation split and tool_use/tool_result content
// blocks, then translating the Converse response back.
func (p *Provider) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	conversation, system, err := encodeMessages(messages)
	if err != nil {
		return nil, fmt.Errorf("bedrock: %w", err)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(p.modelID),
		Messages: conversation,
	}
	if len(system) > 0 {
		input.System = system
	}
	if toolConfig := encodeTools(tools); toolConfig != nil {
		input.ToolConfig = toolConfig
	}
	inferCfg := &brtypes.InferenceConfiguration{}
	if p.maxTokens > 0 {
		inferCfg.MaxTokens = aws.Int32(p.maxTokens)
	}
	if p.temp > 0 {
		inferCfg.Temperature = aws.Float32(p.temp)
	}
	input.InferenceConfig = inferCfg

	out, err := p.runtime.Converse(ctx, input)
	if err != nil {
		return nil, &errs.ProviderError{Provider: "bedrock", Op: "generate", Err: err}
	}
	return translateResponse(out)
}

func encodeMessages(messages []llm.Message) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var system []brtypes.SystemContentBlock
	var conversation []brtypes.Message

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			if m.Content != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
			}
		case llm.RoleUser:
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case llm.RoleAssistant:
			block := []brtypes.ContentBlock{}
			if m.Content != "" {
				block = append(block, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
			if len(block) == 0 {
				continue
			}
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: block,
			})
		case llm.RoleTool:
			tr := brtypes.ToolResultBlock{
				ToolUseId: aws.String(m.ToolCallID),
				Content: []brtypes.ToolResultContentBlock{
					&brtypes.ToolResultContentBlockMemberText{Value: m.Content},
				},
			}
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolResult{Value: tr}},
			})
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeTools(tools []llm.ToolDefinition) *brtypes.ToolConfiguration {
	if len(tools) == 0 {
		return nil
	}
	list := make([]brtypes.Tool, 0, len(tools))
	for _, td := range tools {
		list = append(list, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(td.Name),
				Description: aws.String(td.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(td.Parameters)},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: list}
}

func translateResponse(out *bedrockruntime.ConverseOutput) (*llm.Response, error) {
	msgOutput, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok || msgOutput == nil {
		return nil, &errs.ProviderError{Provider: "bedrock", Op: "generate", Err: errors.New("converse response missing message output")}
	}

	resp := &llm.Response{}
	for _, block := range msgOutput.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			resp.Content += v.Value
		case *brtypes.ContentBlockMemberToolUse:
			var args map[string]any
			raw, err := v.Value.Input.MarshalSmithyDocument()
			if err == nil {
				_ = json.Unmarshal(raw, &args)
			}
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:        aws.ToString(v.Value.ToolUseId),
				Name:      aws.ToString(v.Value.Name),
				Arguments: args,
			})
		}
	}
	if out.Usage != nil {
		resp.Usage = &llm.Usage{
			PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}
