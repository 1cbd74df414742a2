// Package agent defines the data model for an Assistant and the tools it
// can invoke during a call: the read-only configuration that the session
// orchestrator resolves once at session start and never mutates.
package agent

import "time"

// StartMode controls whether the assistant speaks before the caller does.
type StartMode string

const (
	// SpeaksFirst means the assistant synthesizes FirstMessage immediately.
	SpeaksFirst StartMode = "assistant-speaks-first"

	// WaitsForUser means the assistant stays silent until the caller speaks.
	WaitsForUser StartMode = "assistant-waits-for-user"
)

// ModelConfig selects and tunes the LLM provider for an assistant.
type ModelConfig struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
}

// VoiceConfig selects the TTS provider and voice for an assistant.
type VoiceConfig struct {
	Provider string
	VoiceID  string
	Settings map[string]any
}

// TranscriberConfig selects the STT provider for an assistant.
type TranscriberConfig struct {
	Provider string
	Model    string
	Language string
}

// Assistant is the read-only, per-call configuration resolved by the
// caller (web widget lookup or telephony number lookup) before a Session
// is constructed. It is never mutated by the engine.
type Assistant struct {
	ID                     string
	Name                   string
	Model                  ModelConfig
	Voice                  VoiceConfig
	Transcriber            TranscriberConfig
	SystemPrompt           string
	FirstMessage           string
	StartMode              StartMode
	InterruptionEnabled    bool
	SilenceTimeoutMs       int
	MaxCallDurationSeconds int
	EndpointingSensitivity float64
	EndCallEnabled         bool
	Tools                  []Tool
}

// ToolKind identifies the built-in projection a Tool falls into.
type ToolKind string

const (
	KindFunction ToolKind = "function"
	KindTransfer ToolKind = "transfer"
	KindQuery    ToolKind = "query"
	KindDTMF     ToolKind = "dtmf"
	KindEndCall  ToolKind = "endCall"
)

// TransferMode controls how a transfer tool hands the call off.
type TransferMode string

const (
	TransferBlind       TransferMode = "blind"
	TransferWarmSummary TransferMode = "warm-summary"
	TransferWarmMessage TransferMode = "warm-message"
)

// FunctionDef is the JSON-schema function definition for a function tool.
type FunctionDef struct {
	Name       string
	Parameters map[string]any
	ServerURL  string
}

// TransferDef configures a transfer tool.
type TransferDef struct {
	Destinations []string
	Mode         TransferMode
}

// QueryDef configures a knowledge-base query tool.
type QueryDef struct {
	KnowledgeBaseID string
}

// Tool is a single tool an assistant may invoke, as configured upstream
// (the REST control surface, out of scope here) and handed to the engine
// verbatim.
type Tool struct {
	ID          string
	Name        string
	Kind        ToolKind
	Description string

	Function *FunctionDef
	Transfer *TransferDef
	Query    *QueryDef
}

// silenceTimeoutCap is the hard ceiling on endpointing silence, regardless
// of what an assistant configures.
const silenceTimeoutCap = 1200 * time.Millisecond

// SilenceTimeout returns the assistant's configured silence timeout,
// capped at silenceTimeoutCap.
func (a Assistant) SilenceTimeout() time.Duration {
	configured := time.Duration(a.SilenceTimeoutMs) * time.Millisecond
	if configured <= 0 || configured > silenceTimeoutCap {
		return silenceTimeoutCap
	}
	return configured
}
