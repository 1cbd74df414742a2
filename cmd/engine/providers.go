package main

import (
	"context"
	"fmt"

	embeddingsopenai "github.com/agentplexus/voiceengine/internal/providers/embeddings/openai"
	"github.com/agentplexus/voiceengine/internal/providers/knowledge/pgvector"
	"github.com/agentplexus/voiceengine/internal/providers/llm/anthropic"
	"github.com/agentplexus/voiceengine/internal/providers/llm/bedrock"
	"github.com/agentplexus/voiceengine/internal/providers/llm/openai"
	"github.com/agentplexus/voiceengine/internal/providers/stt/deepgram"
	"github.com/agentplexus/voiceengine/internal/providers/stt/whisperlocal"
	"github.com/agentplexus/voiceengine/internal/providers/tts/elevenlabs"
	"github.com/agentplexus/voiceengine/internal/providers/tts/openaitts"
	"github.com/agentplexus/voiceengine/knowledge"
	"github.com/agentplexus/voiceengine/llm"
	"github.com/agentplexus/voiceengine/stt"
	"github.com/agentplexus/voiceengine/tts"
)

// buildLLMProvider constructs one llm.Provider by vendor type. This is the
// factory switch every pipeline role follows: add a case, add an adapter
// under internal/providers.
func buildLLMProvider(ctx context.Context, cred ProviderCred) (llm.Provider, error) {
	switch cred.Type {
	case "openai":
		return openai.New(cred.APIKey, cred.Model, 0.7, 1024)
	case "anthropic":
		return anthropic.New(cred.APIKey, cred.Model, 0.7, 1024)
	case "bedrock":
		return bedrock.New(ctx, cred.Region, cred.Model, 0.7, 1024)
	default:
		return nil, fmt.Errorf("config: unknown llm provider type %q", cred.Type)
	}
}

func buildLLMClient(ctx context.Context, cfg PipelineConfig) (*llm.Client, error) {
	if cfg.Primary.Type == "" {
		return nil, fmt.Errorf("config: llm.primary.type is required")
	}
	primary, err := buildLLMProvider(ctx, cfg.Primary)
	if err != nil {
		return nil, err
	}
	providers := []llm.Provider{primary}
	for _, fb := range cfg.Fallbacks {
		p, err := buildLLMProvider(ctx, fb)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return llm.NewClient(providers...), nil
}

func buildSTTProvider(cred ProviderCred) (stt.Provider, error) {
	switch cred.Type {
	case "deepgram":
		return deepgram.New(cred.APIKey, cred.Model)
	case "whisperlocal":
		return whisperlocal.New(cred.ServerURL)
	default:
		return nil, fmt.Errorf("config: unknown stt provider type %q", cred.Type)
	}
}

func buildSTTClient(cfg PipelineConfig) (*stt.Client, error) {
	if cfg.Primary.Type == "" {
		return nil, fmt.Errorf("config: stt.primary.type is required")
	}
	primary, err := buildSTTProvider(cfg.Primary)
	if err != nil {
		return nil, err
	}
	providers := []stt.Provider{primary}
	for _, fb := range cfg.Fallbacks {
		p, err := buildSTTProvider(fb)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return stt.NewClient(providers...), nil
}

func buildTTSProvider(cred ProviderCred) (tts.Provider, error) {
	switch cred.Type {
	case "elevenlabs":
		return elevenlabs.New(cred.APIKey)
	case "openai":
		return openaitts.New(cred.APIKey, cred.Model)
	default:
		return nil, fmt.Errorf("config: unknown tts provider type %q", cred.Type)
	}
}

func buildTTSClient(cfg PipelineConfig) (*tts.Client, error) {
	if cfg.Primary.Type == "" {
		return nil, fmt.Errorf("config: tts.primary.type is required")
	}
	primary, err := buildTTSProvider(cfg.Primary)
	if err != nil {
		return nil, err
	}
	providers := []tts.Provider{primary}
	for _, fb := range cfg.Fallbacks {
		p, err := buildTTSProvider(fb)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return tts.NewClient(providers...), nil
}

// buildKnowledgeClient wires the pgvector knowledge base query port when
// configured. A nil, nil return means no knowledge base is configured;
// callers build the Tool Executor with a nil knowledge.Client.
func buildKnowledgeClient(ctx context.Context, cfg KnowledgeConfig, llmClient *llm.Client) (knowledge.Client, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	if cfg.Embedder.Type != "openai" {
		return nil, fmt.Errorf("config: unknown embeddings provider type %q", cfg.Embedder.Type)
	}
	embedder, err := embeddingsopenai.New(cfg.Embedder.APIKey, cfg.Embedder.Model)
	if err != nil {
		return nil, fmt.Errorf("config: build embeddings provider: %w", err)
	}
	client, err := pgvector.New(ctx, cfg.DSN, embedder, llmClient)
	if err != nil {
		return nil, fmt.Errorf("config: connect knowledge base: %w", err)
	}
	return client, nil
}
