// Package elevenlabs implements tts.Provider over ElevenLabs' text-to-speech
// REST API. ElevenLabs has no official Go SDK in this codebase's
// dependency set, so the adapter speaks the documented HTTP+JSON contract
// directly with net/http.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/tts"
)

const (
	baseURL        = "https://api.elevenlabs.io/v1"
	defaultTimeout = 30 * time.Second
)

var _ tts.Provider = (*Provider)(nil)

// Provider synthesizes speech via ElevenLabs' /text-to-speech endpoint,
// requesting raw PCM output so the session orchestrator never has to decode
// a compressed container before writing audio to the media transport.
type Provider struct {
	apiKey     string
	httpClient *http.Client
}

// New constructs a Provider authenticated with apiKey.
func New(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: apiKey must not be empty")
	}
	return &Provider{apiKey: apiKey, httpClient: &http.Client{Timeout: defaultTimeout}}, nil
}

func (p *Provider) Name() string { return "elevenlabs" }

type synthesizeRequest struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id,omitempty"`
	VoiceSettings *voiceSettingsJSON `json:"voice_settings,omitempty"`
}

type voiceSettingsJSON struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize requests PCM audio at config.SampleRate using output_format
// pcm_<rate> as ElevenLabs' API documents.
func (p *Provider) Synthesize(ctx context.Context, text string, config tts.SynthesisConfig) (*tts.SynthesisResult, error) {
	sampleRate := config.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	body := synthesizeRequest{Text: text, ModelID: config.Model}
	if config.Stability > 0 || config.SimilarityBoost > 0 {
		body.VoiceSettings = &voiceSettingsJSON{Stability: config.Stability, SimilarityBoost: config.SimilarityBoost}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=pcm_%d", baseURL, config.VoiceID, sampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/pcm")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &errs.ProviderError{Provider: "elevenlabs", Op: "synthesize", Err: err}
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.ProviderError{Provider: "elevenlabs", Op: "synthesize", Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, audio)}
	}

	return &tts.SynthesisResult{
		Audio:          audio,
		Format:         "pcm",
		SampleRate:     sampleRate,
		CharacterCount: len(text),
	}, nil
}

// SynthesizeStream is not implemented; ElevenLabs' streaming endpoint needs
// a distinct chunked-transfer client the session orchestrator does not yet
// exercise.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, config tts.SynthesisConfig) (<-chan tts.StreamChunk, error) {
	return nil, &errs.ProviderError{Provider: "elevenlabs", Op: "synthesizeStream", Err: fmt.Errorf("streaming synthesis not supported")}
}

// ListVoices fetches the account's available voices.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &errs.ProviderError{Provider: "elevenlabs", Op: "listVoices", Err: err}
	}
	defer resp.Body.Close()

	var parsed struct {
		Voices []struct {
			VoiceID string `json:"voice_id"`
			Name    string `json:"name"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("elevenlabs: parse response: %w", err)
	}
	voices := make([]tts.Voice, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		voices = append(voices, tts.Voice{ID: v.VoiceID, Name: v.Name, Provider: "elevenlabs"})
	}
	return voices, nil
}

// GetVoice fetches a single voice by ID.
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
	return nil, &errs.NotFoundError{Msg: "no ElevenLabs voice " + voiceID}
}
