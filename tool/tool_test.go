package tool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplexus/voiceengine/agent"
	"github.com/agentplexus/voiceengine/knowledge"
	"github.com/agentplexus/voiceengine/llm"
)

type fakeKnowledge struct {
	answer  string
	sources []string
	err     error
}

func (f *fakeKnowledge) Query(ctx context.Context, kbID, query string) (string, []string, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return f.answer, f.sources, nil
}

func (f *fakeKnowledge) Search(ctx context.Context, kbID, query string, topK int) ([]knowledge.Passage, error) {
	return nil, f.err
}

func TestNew_RejectsInvalidFunctionSchema(t *testing.T) {
	t.Parallel()

	tools := []agent.Tool{{
		Name: "broken",
		Kind: agent.KindFunction,
		Function: &agent.FunctionDef{
			Name:       "broken",
			Parameters: map[string]any{"type": 123},
			ServerURL:  "http://example.invalid",
		},
	}}

	_, err := New(tools, nil)
	assert.Error(t, err)
}

func TestNew_AcceptsValidFunctionSchema(t *testing.T) {
	t.Parallel()

	tools := []agent.Tool{{
		Name: "lookupOrder",
		Kind: agent.KindFunction,
		Function: &agent.FunctionDef{
			Name: "lookupOrder",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"orderId": map[string]any{"type": "string"}},
				"required":   []string{"orderId"},
			},
			ServerURL: "http://example.invalid",
		},
	}}

	e, err := New(tools, nil)
	require.NoError(t, err)
	require.NotNil(t, e)
}

func TestDefinitions_ProjectsEveryToolKind(t *testing.T) {
	t.Parallel()

	tools := []agent.Tool{
		{Name: "t1", Kind: agent.KindTransfer, Transfer: &agent.TransferDef{Destinations: []string{"+15551234567"}}},
		{Name: "t2", Kind: agent.KindEndCall},
		{Name: "t3", Kind: agent.KindDTMF},
		{Name: "t4", Kind: agent.KindQuery, Query: &agent.QueryDef{KnowledgeBaseID: "kb-1"}},
	}

	e, err := New(tools, nil)
	require.NoError(t, err)

	defs := e.Definitions()
	names := make(map[string]bool, len(defs))
	for _, d := range defs {
		names[d.Name] = true
	}
	assert.True(t, names["transferCall"])
	assert.True(t, names["endCall"])
	assert.True(t, names["pressDigits"])
	assert.True(t, names["queryKnowledge_kb-1"])
}

func TestTool_ReturnsConfiguredTransferMode(t *testing.T) {
	t.Parallel()

	tools := []agent.Tool{
		{Name: "t1", Kind: agent.KindTransfer, Transfer: &agent.TransferDef{Destinations: []string{"+15551234567"}, Mode: agent.TransferWarmSummary}},
	}
	e, err := New(tools, nil)
	require.NoError(t, err)

	configured, ok := e.Tool("transferCall")
	require.True(t, ok)
	require.NotNil(t, configured.Transfer)
	assert.Equal(t, agent.TransferWarmSummary, configured.Transfer.Mode)

	_, ok = e.Tool("noSuchTool")
	assert.False(t, ok)
}

func TestExecute_EndCall(t *testing.T) {
	t.Parallel()

	e, err := New(nil, nil)
	require.NoError(t, err)

	result := e.Execute(context.Background(), "endCall", map[string]any{"reason": "caller done"})
	assert.Equal(t, "end_call", result["action"])
	assert.Equal(t, "caller done", result["reason"])
}

func TestExecute_TransferCall(t *testing.T) {
	t.Parallel()

	e, err := New(nil, nil)
	require.NoError(t, err)

	result := e.Execute(context.Background(), "transferCall", map[string]any{"destination": "+15551234567", "reason": "needs a human"})
	assert.Equal(t, "transfer", result["action"])
	assert.Equal(t, "+15551234567", result["destination"])
}

func TestExecute_PressDigits_ValidatesPattern(t *testing.T) {
	t.Parallel()

	e, err := New(nil, nil)
	require.NoError(t, err)

	ok := e.Execute(context.Background(), "pressDigits", map[string]any{"digits": "123*#"})
	assert.Equal(t, "dtmf", ok["action"])

	bad := e.Execute(context.Background(), "pressDigits", map[string]any{"digits": "12a"})
	assert.Contains(t, bad["error"], "invalid digits")
}

func TestExecute_QueryKnowledge_NoClientConfigured(t *testing.T) {
	t.Parallel()

	e, err := New(nil, nil)
	require.NoError(t, err)

	result := e.Execute(context.Background(), "queryKnowledge_kb-1", map[string]any{"query": "what are your hours?"})
	assert.Equal(t, "knowledge base unavailable", result["note"])
}

func TestExecute_QueryKnowledge_DelegatesToClient(t *testing.T) {
	t.Parallel()

	e, err := New([]agent.Tool{{Name: "kb", Kind: agent.KindQuery, Query: &agent.QueryDef{KnowledgeBaseID: "kb-1"}}},
		&fakeKnowledge{answer: "9am to 5pm", sources: []string{"doc-1"}})
	require.NoError(t, err)

	result := e.Execute(context.Background(), "queryKnowledge_kb-1", map[string]any{"query": "hours?"})
	assert.Equal(t, "9am to 5pm", result["answer"])
	assert.Equal(t, []string{"doc-1"}, result["sources"])
}

func TestExecute_Function_CallsServerURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "lookupOrder", body["tool"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "shipped"})
	}))
	defer srv.Close()

	tools := []agent.Tool{{
		Name: "lookupOrder",
		Kind: agent.KindFunction,
		Function: &agent.FunctionDef{
			Name:      "lookupOrder",
			ServerURL: srv.URL,
		},
	}}
	e, err := New(tools, nil)
	require.NoError(t, err)

	result := e.Execute(context.Background(), "lookupOrder", map[string]any{"orderId": "abc"})
	parsed, ok := result["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "shipped", parsed["status"])
}

func TestExecute_Function_UnknownToolReturnsErrorResult(t *testing.T) {
	t.Parallel()

	e, err := New(nil, nil)
	require.NoError(t, err)

	result := e.Execute(context.Background(), "neverConfigured", map[string]any{})
	assert.Contains(t, result["error"], "unknown tool")
}

type fakeSummarizer struct {
	content string
	err     error
}

func (f *fakeSummarizer) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content}, nil
}

func TestSummary_ReturnsTrimmedContent(t *testing.T) {
	t.Parallel()

	s := &fakeSummarizer{content: "  caller wants a refund.  "}
	summary, err := Summary(context.Background(), s, []llm.Message{{Role: llm.RoleUser, Content: "I want a refund"}})
	require.NoError(t, err)
	assert.Equal(t, "caller wants a refund.", summary)
}
