// Package openaitts implements tts.Provider over OpenAI's audio speech
// endpoint, reusing the same openai-go client the llm/openai
// adapter uses for chat completions.
package openaitts

import (
	"context"
	"fmt"
	"io"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Provider synthesizes speech via OpenAI's /audio/speech endpoint.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs a Provider bound to apiKey and model (e.g. "tts-1",
// "tts-1-hd", "gpt-4o-mini-tts").
func New(apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openaitts: apiKey must not be empty")
	}
	if model == "" {
		model = "tts-1"
	}
	client := oai.NewClient(option.WithAPIKey(apiKey))
	return &Provider{client: client, model: model}, nil
}

func (p *Provider) Name() string { return "openai" }

// Synthesize requests raw PCM output so the session orchestrator can play
// it back without a decode step.
func (p *Provider) Synthesize(ctx context.Context, text string, config tts.SynthesisConfig) (*tts.SynthesisResult, error) {
	voice := config.VoiceID
	if voice == "" {
		voice = "alloy"
	}
	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if config.Speed > 0 {
		params.Speed = oai.Float(config.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, &errs.ProviderError{Provider: "openai", Op: "synthesize", Err: err}
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openaitts: read response body: %w", err)
	}
	sampleRate := config.SampleRate
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &tts.SynthesisResult{
		Audio:          audio,
		Format:         "pcm",
		SampleRate:     sampleRate,
		CharacterCount: len(text),
	}, nil
}

// SynthesizeStream is not implemented; see elevenlabs adapter for the same
// rationale (the session orchestrator only consumes complete utterances).
func (p *Provider) SynthesizeStream(ctx context.Context, text string, config tts.SynthesisConfig) (<-chan tts.StreamChunk, error) {
	return nil, &errs.ProviderError{Provider: "openai", Op: "synthesizeStream", Err: fmt.Errorf("streaming synthesis not supported")}
}

// ListVoices returns OpenAI's fixed set of named voices; the API exposes no
// voice-listing endpoint.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	names := []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}
	voices := make([]tts.Voice, 0, len(names))
	for _, n := range names {
		voices = append(voices, tts.Voice{ID: n, Name: n, Provider: "openai"})
	}
	return voices, nil
}

// GetVoice returns the named voice if it is one of OpenAI's fixed voices.
func (p *Provider) GetVoice(ctx context.Context, voiceID string) (*tts.Voice, error) {
	voices, err := p.ListVoices(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range voices {
		if v.ID == voiceID {
			return &v, nil
		}
	}
	return nil, &errs.NotFoundError{Msg: "no OpenAI voice " + voiceID}
}
