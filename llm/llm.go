// Package llm provides a unified interface for large-language-model
// providers. Generate takes an ordered message history whose
// first element may carry role "system", plus an optional tool list, and
// returns generated content and/or tool calls the session orchestrator
// must execute before re-invoking Generate.
package llm

import (
	"context"

	"github.com/agentplexus/voiceengine/errs"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in the conversation history handed to Generate.
// Vendor adapters are responsible for translating this into their native
// shape, including hoisting RoleSystem out of the list when the vendor
// requires a separate system parameter, and mapping RoleTool onto the
// vendor's tool-result representation (or coercing it to a user turn
// carrying the serialized result when the vendor has no such concept).
type Message struct {
	Role       Role
	Content    string
	ToolCallID string
	ToolName   string
}

// ToolDefinition describes a callable tool in vendor-agnostic form.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Usage reports token accounting for a single Generate call, when the
// vendor provides it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the result of a single Generate call.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *Usage
}

// Provider defines the interface every LLM vendor adapter implements.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Generate produces the next assistant turn given the conversation
	// history and the tools currently available to the model.
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error)
}

// Client fans out across a primary LLM provider and ordered fallbacks,
// mirroring stt.Client and tts.Client.
type Client struct {
	providers map[string]Provider
	primary   string
	fallbacks []string

	// OnFallback, if set, is called whenever the primary provider fails and
	// the client falls through to a secondary provider.
	OnFallback func(failed string, err error)
}

// NewClient creates a new LLM client with the specified providers, in
// primary-then-fallback order.
func NewClient(providers ...Provider) *Client {
	c := &Client{providers: make(map[string]Provider)}
	for i, p := range providers {
		c.providers[p.Name()] = p
		if i == 0 {
			c.primary = p.Name()
		} else {
			c.fallbacks = append(c.fallbacks, p.Name())
		}
	}
	return c
}

// SetPrimary sets the primary provider by name.
func (c *Client) SetPrimary(name string) { c.primary = name }

// SetFallbacks sets the fallback provider order.
func (c *Client) SetFallbacks(names ...string) { c.fallbacks = names }

// Provider returns a specific provider by name.
func (c *Client) Provider(name string) (Provider, bool) {
	p, ok := c.providers[name]
	return p, ok
}

// Generate uses the primary provider with automatic fallback.
func (c *Client) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	if p, ok := c.providers[c.primary]; ok {
		resp, err := p.Generate(ctx, messages, tools)
		if err == nil {
			return resp, nil
		}
		if c.OnFallback != nil {
			c.OnFallback(c.primary, err)
		}
	}

	for _, name := range c.fallbacks {
		if p, ok := c.providers[name]; ok {
			resp, err := p.Generate(ctx, messages, tools)
			if err == nil {
				return resp, nil
			}
			if c.OnFallback != nil {
				c.OnFallback(name, err)
			}
		}
	}

	return nil, &errs.ProviderError{Provider: "llm", Op: "generate", Err: ErrNoAvailableProvider}
}
