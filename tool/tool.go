// Package tool implements the Tool Executor: it projects an
// assistant's configured tools into JSON-schema definitions for the LLM,
// validates each tool's schema-of-schemas at construction time, and routes
// execution requests to the matching built-in action or a user-defined
// HTTP function call.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentplexus/voiceengine/agent"
	"github.com/agentplexus/voiceengine/knowledge"
	"github.com/agentplexus/voiceengine/llm"
)

// functionCallTimeout is the deadline mandates for user-defined
// HTTP function calls.
const functionCallTimeout = 10 * time.Second

var dtmfPattern = regexp.MustCompile(`^[0-9*#]+$`)

// Result is the data returned by Execute. It is always a well-formed data
// value, never a session-fatal error — a failed HTTP call surfaces as
// Result{"error": "..."}.
type Result map[string]any

// Summarizer asks the LLM for a short handoff summary before a
// warm-summary transfer.
type Summarizer interface {
	Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error)
}

// Executor resolves and executes the tools configured for one assistant.
type Executor struct {
	tools      map[string]agent.Tool
	knowledge  knowledge.Client
	httpClient *http.Client
}

// New constructs an Executor for the given tool set, validating every
// function tool's JSON schema against the JSON-Schema meta-schema (the
// "schema-of-schemas" check ).
func New(tools []agent.Tool, kb knowledge.Client) (*Executor, error) {
	e := &Executor{
		tools:      make(map[string]agent.Tool),
		knowledge:  kb,
		httpClient: &http.Client{Timeout: functionCallTimeout},
	}
	for _, t := range tools {
		name := projectedName(t)
		e.tools[name] = t
		if t.Kind == agent.KindFunction && t.Function != nil {
			if err := validateSchema(t.Function.Parameters); err != nil {
				return nil, fmt.Errorf("tool %q: invalid parameter schema: %w", t.Name, err)
			}
		}
	}
	return e, nil
}

func validateSchema(schema map[string]any) error {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", doc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	if _, err := c.Compile("tool.json"); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return nil
}

func projectedName(t agent.Tool) string {
	switch t.Kind {
	case agent.KindTransfer:
		return "transferCall"
	case agent.KindEndCall:
		return "endCall"
	case agent.KindDTMF:
		return "pressDigits"
	case agent.KindQuery:
		id := ""
		if t.Query != nil {
			id = t.Query.KnowledgeBaseID
		}
		return "queryKnowledge_" + id
	default:
		if t.Function != nil && t.Function.Name != "" {
			return t.Function.Name
		}
		return t.Name
	}
}

// Tool returns the assistant-configured tool registered under its
// projected name, for callers that need the original configuration (e.g.
// a transfer tool's Mode) rather than just the dispatch result.
func (e *Executor) Tool(name string) (agent.Tool, bool) {
	t, ok := e.tools[name]
	return t, ok
}

// Definitions projects every configured tool into a vendor-agnostic
// llm.ToolDefinition using the built-in projection for each tool kind.
func (e *Executor) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(e.tools))
	for name, t := range e.tools {
		switch t.Kind {
		case agent.KindTransfer:
			defs = append(defs, llm.ToolDefinition{
				Name:        name,
				Description: describeOr(t, "Transfer the call to another destination."),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"reason":      map[string]any{"type": "string"},
						"destination": map[string]any{"type": "string"},
					},
					"required": []string{"destination"},
				},
			})
		case agent.KindEndCall:
			defs = append(defs, llm.ToolDefinition{
				Name:        name,
				Description: describeOr(t, "End the current call."),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"reason": map[string]any{"type": "string"},
					},
				},
			})
		case agent.KindDTMF:
			defs = append(defs, llm.ToolDefinition{
				Name:        name,
				Description: describeOr(t, "Press DTMF touch-tone digits."),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"digits": map[string]any{"type": "string", "pattern": "^[0-9*#]+$"},
					},
					"required": []string{"digits"},
				},
			})
		case agent.KindQuery:
			defs = append(defs, llm.ToolDefinition{
				Name:        name,
				Description: describeOr(t, "Query the knowledge base."),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{"type": "string"},
					},
					"required": []string{"query"},
				},
			})
		default:
			params := t.Function.Parameters
			if t.Function != nil {
				defs = append(defs, llm.ToolDefinition{
					Name:        name,
					Description: t.Description,
					Parameters:  params,
				})
			}
		}
	}
	return defs
}

func describeOr(t agent.Tool, fallback string) string {
	if t.Description != "" {
		return t.Description
	}
	return fallback
}

// Execute routes a tool invocation by its projected name to the matching
// built-in action or user-defined HTTP function call. It never
// returns a session-fatal error: HTTP or lookup failures become a
// Result{"error": ...} data value.
func (e *Executor) Execute(ctx context.Context, name string, arguments map[string]any) Result {
	switch {
	case name == "endCall":
		reason, _ := arguments["reason"].(string)
		return Result{"action": "end_call", "reason": reason}

	case name == "transferCall":
		destination, _ := arguments["destination"].(string)
		reason, _ := arguments["reason"].(string)
		return Result{"action": "transfer", "destination": destination, "reason": reason}

	case name == "pressDigits":
		digits, _ := arguments["digits"].(string)
		if !dtmfPattern.MatchString(digits) {
			return Result{"error": "invalid digits: must match [0-9*#]+"}
		}
		return Result{"action": "dtmf", "digits": digits}

	case strings.HasPrefix(name, "queryKnowledge_"):
		kbID := strings.TrimPrefix(name, "queryKnowledge_")
		query, _ := arguments["query"].(string)
		return e.executeKnowledgeQuery(ctx, kbID, query)

	default:
		return e.executeFunction(ctx, name, arguments)
	}
}

func (e *Executor) executeKnowledgeQuery(ctx context.Context, kbID, query string) Result {
	if e.knowledge == nil {
		return Result{"answer": "", "sources": []string{}, "note": "knowledge base unavailable"}
	}
	answer, sources, err := e.knowledge.Query(ctx, kbID, query)
	if err != nil {
		return Result{"error": err.Error()}
	}
	return Result{"answer": answer, "sources": sources}
}

func (e *Executor) executeFunction(ctx context.Context, name string, arguments map[string]any) Result {
	t, ok := e.tools[name]
	if !ok || t.Function == nil {
		return Result{"error": fmt.Sprintf("unknown tool: %s", name)}
	}

	envelope := map[string]any{"tool": name, "arguments": arguments}
	body, err := json.Marshal(envelope)
	if err != nil {
		return Result{"error": err.Error()}
	}

	callCtx, cancel := context.WithTimeout(ctx, functionCallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, t.Function.ServerURL, bytes.NewReader(body))
	if err != nil {
		return Result{"error": err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Result{"error": err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{"error": err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{"error": fmt.Sprintf("tool server returned %d: %s", resp.StatusCode, string(respBody))}
	}

	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{"result": string(respBody)}
	}
	return Result{"result": parsed}
}

// Summary asks an LLM for a one-line handoff summary before a
// warm-summary transfer.
func Summary(ctx context.Context, s Summarizer, history []llm.Message) (string, error) {
	prompt := append(append([]llm.Message{}, history...), llm.Message{
		Role:    llm.RoleUser,
		Content: "Summarize this conversation in one sentence for the person you are transferring the call to.",
	})
	resp, err := s.Generate(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
