package main

import (
	"fmt"

	"github.com/agentplexus/voiceengine/agent"
)

// Config holds all configuration for the engine process. Priority: CLI
// flags > environment variables > config file > defaults.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	LLM           PipelineConfig      `mapstructure:"llm"`
	TTS           PipelineConfig      `mapstructure:"tts"`
	STT           PipelineConfig      `mapstructure:"stt"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Telephony     TelephonyConfig     `mapstructure:"telephony"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Knowledge     KnowledgeConfig     `mapstructure:"knowledge"`
	Assistants    []AssistantConfig   `mapstructure:"assistants"`
}

// ServerConfig configures the HTTP/WS listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// PublicWSURL is the externally reachable wss:// base URL media tokens
	// are appended to when rendering a carrier bridge directive.
	PublicWSURL string `mapstructure:"public_ws_url"`
}

// ProviderCred configures one vendor credential for a pipeline role.
type ProviderCred struct {
	Type      string `mapstructure:"type"` // "openai", "anthropic", "bedrock", "deepgram", "elevenlabs", "whisperlocal"
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	Region    string `mapstructure:"region"`     // bedrock
	ServerURL string `mapstructure:"server_url"` // whisperlocal
}

// PipelineConfig is a primary provider plus ordered fallbacks for one
// pipeline role (STT, LLM, or TTS).
type PipelineConfig struct {
	Primary   ProviderCred   `mapstructure:"primary"`
	Fallbacks []ProviderCred `mapstructure:"fallbacks"`
}

// DatabaseConfig configures the Postgres call/message store. Empty DSN
// falls back to the in-memory store.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig configures the concurrent-call quota limiter. Empty Addr
// falls back to an in-process counter.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelephonyConfig configures the Twilio carrier adapter.
type TelephonyConfig struct {
	AccountSID         string `mapstructure:"account_sid"`
	AuthToken          string `mapstructure:"auth_token"`
	DefaultFromNumber  string `mapstructure:"default_from_number"`
	ConcurrentCallCap  int    `mapstructure:"concurrent_call_cap"`
}

// SecurityConfig configures the cryptographic primitives.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"` // 32 bytes, for ENCRYPTION_KEY
	APIKeySecret  string `mapstructure:"api_key_secret"`
	JWTSecret     string `mapstructure:"jwt_secret"`
}

// ObservabilityConfig configures OpenTelemetry export.
type ObservabilityConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	PrometheusAddr string `mapstructure:"prometheus_addr"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// KnowledgeConfig configures the pgvector-backed knowledge base query
// port. Empty DSN disables knowledge-base tools entirely: Executors are
// built with a nil knowledge.Client and "query" tool calls report the
// knowledge base as unavailable rather than failing the call.
type KnowledgeConfig struct {
	DSN      string       `mapstructure:"dsn"`
	Embedder ProviderCred `mapstructure:"embedder"`
}

// ModelConfigYAML mirrors agent.ModelConfig for config-file binding.
type ModelConfigYAML struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// VoiceConfigYAML mirrors agent.VoiceConfig for config-file binding.
type VoiceConfigYAML struct {
	Provider string `mapstructure:"provider"`
	VoiceID  string `mapstructure:"voice_id"`
}

// TranscriberConfigYAML mirrors agent.TranscriberConfig for config-file
// binding.
type TranscriberConfigYAML struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

// ToolConfig configures one tool an assistant exposes.
type ToolConfig struct {
	ID              string   `mapstructure:"id"`
	Name            string   `mapstructure:"name"`
	Kind            string   `mapstructure:"kind"` // "function", "transfer", "query", "dtmf", "endCall"
	Description     string   `mapstructure:"description"`
	ServerURL       string   `mapstructure:"server_url"`       // function
	Destinations    []string `mapstructure:"destinations"`     // transfer
	TransferMode    string   `mapstructure:"transfer_mode"`    // transfer
	KnowledgeBaseID string   `mapstructure:"knowledge_base_id"` // query
}

// AssistantConfig is the config-file representation of one configured
// assistant; number/web-widget routing to assistants is an external
// collaborator's job, reduced here to a static list.
type AssistantConfig struct {
	ID                     string                `mapstructure:"id"`
	Name                   string                `mapstructure:"name"`
	PhoneNumber            string                `mapstructure:"phone_number"`
	SystemPrompt           string                `mapstructure:"system_prompt"`
	FirstMessage           string                `mapstructure:"first_message"`
	StartMode              string                `mapstructure:"start_mode"`
	Model                  ModelConfigYAML       `mapstructure:"model"`
	Voice                  VoiceConfigYAML       `mapstructure:"voice"`
	Transcriber            TranscriberConfigYAML `mapstructure:"transcriber"`
	InterruptionEnabled    bool                  `mapstructure:"interruption_enabled"`
	SilenceTimeoutMs       int                   `mapstructure:"silence_timeout_ms"`
	MaxCallDurationSeconds int                   `mapstructure:"max_call_duration_seconds"`
	EndpointingSensitivity float64               `mapstructure:"endpointing_sensitivity"`
	EndCallEnabled         bool                  `mapstructure:"end_call_enabled"`
	Tools                  []ToolConfig          `mapstructure:"tools"`
}

// toAgent projects an AssistantConfig into the immutable agent.Assistant
// the session orchestrator consumes.
func (c AssistantConfig) toAgent() agent.Assistant {
	a := agent.Assistant{
		ID:                     c.ID,
		Name:                   c.Name,
		SystemPrompt:           c.SystemPrompt,
		FirstMessage:           c.FirstMessage,
		StartMode:              agent.StartMode(c.StartMode),
		InterruptionEnabled:    c.InterruptionEnabled,
		SilenceTimeoutMs:       c.SilenceTimeoutMs,
		MaxCallDurationSeconds: c.MaxCallDurationSeconds,
		EndpointingSensitivity: c.EndpointingSensitivity,
		EndCallEnabled:         c.EndCallEnabled,
		Model: agent.ModelConfig{
			Provider:    c.Model.Provider,
			Model:       c.Model.Model,
			Temperature: c.Model.Temperature,
			MaxTokens:   c.Model.MaxTokens,
		},
		Voice: agent.VoiceConfig{
			Provider: c.Voice.Provider,
			VoiceID:  c.Voice.VoiceID,
		},
		Transcriber: agent.TranscriberConfig{
			Provider: c.Transcriber.Provider,
			Model:    c.Transcriber.Model,
			Language: c.Transcriber.Language,
		},
	}
	if a.StartMode == "" {
		a.StartMode = agent.WaitsForUser
	}
	for _, t := range c.Tools {
		tool, err := t.toAgent()
		if err != nil {
			continue
		}
		a.Tools = append(a.Tools, tool)
	}
	return a
}

func (t ToolConfig) toAgent() (agent.Tool, error) {
	out := agent.Tool{ID: t.ID, Name: t.Name, Kind: agent.ToolKind(t.Kind), Description: t.Description}
	switch out.Kind {
	case agent.KindFunction:
		out.Function = &agent.FunctionDef{Name: t.Name, ServerURL: t.ServerURL}
	case agent.KindTransfer:
		out.Transfer = &agent.TransferDef{Destinations: t.Destinations, Mode: agent.TransferMode(t.TransferMode)}
	case agent.KindQuery:
		out.Query = &agent.QueryDef{KnowledgeBaseID: t.KnowledgeBaseID}
	case agent.KindDTMF, agent.KindEndCall:
		// no extra configuration
	default:
		return agent.Tool{}, fmt.Errorf("config: unknown tool kind %q", t.Kind)
	}
	return out, nil
}
