// Package deepgram implements stt.Provider over Deepgram's prerecorded
// transcription REST API. Deepgram has no official Go SDK in
// this codebase's dependency set, so the adapter speaks the documented
// HTTP+JSON contract directly with net/http.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/stt"
)

const (
	baseURL        = "https://api.deepgram.com/v1/listen"
	defaultTimeout = 30 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Provider transcribes audio via Deepgram's /v1/listen endpoint.
type Provider struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// New constructs a Provider authenticated with apiKey. model selects the
// Deepgram model (e.g. "nova-2"); empty uses Deepgram's account default.
func New(apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram: apiKey must not be empty")
	}
	return &Provider{apiKey: apiKey, model: model, httpClient: &http.Client{Timeout: defaultTimeout}}, nil
}

func (p *Provider) Name() string { return "deepgram" }

// Transcribe posts raw PCM audio to Deepgram's listen endpoint and parses
// the resulting channel/alternatives transcript.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, config stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(config), strings.NewReader(string(audio)))
	if err != nil {
		return nil, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", encodingContentType(config))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &errs.ProviderError{Provider: "deepgram", Op: "transcribe", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.ProviderError{Provider: "deepgram", Op: "transcribe", Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, data)}
	}
	return parseListenResponse(data)
}

// TranscribeFile is not supported by this adapter and always returns a
// ProviderError; use Transcribe with the file's bytes, or TranscribeURL.
func (p *Provider) TranscribeFile(ctx context.Context, filePath string, config stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	return nil, &errs.ProviderError{Provider: "deepgram", Op: "transcribeFile", Err: fmt.Errorf("use TranscribeURL or Transcribe with file bytes")}
}

// TranscribeURL asks Deepgram to fetch and transcribe a remote audio URL.
func (p *Provider) TranscribeURL(ctx context.Context, audioURL string, config stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	payload := []byte(fmt.Sprintf(`{"url":%q}`, audioURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(config), strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &errs.ProviderError{Provider: "deepgram", Op: "transcribeURL", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.ProviderError{Provider: "deepgram", Op: "transcribeURL", Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, data)}
	}
	return parseListenResponse(data)
}

func (p *Provider) endpoint(config stt.TranscriptionConfig) string {
	q := url.Values{}
	q.Set("punctuate", strconv.FormatBool(config.EnablePunctuation))
	if config.Language != "" {
		q.Set("language", config.Language)
	}
	model := config.Model
	if model == "" {
		model = p.model
	}
	if model != "" {
		q.Set("model", model)
	}
	if config.EnableSpeakerDiarization {
		q.Set("diarize", "true")
	}
	if config.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(config.SampleRate))
	}
	if config.Channels > 0 {
		q.Set("channels", strconv.Itoa(config.Channels))
	}
	if len(config.Keywords) > 0 {
		q.Set("keywords", strings.Join(config.Keywords, "&keywords="))
	}
	return baseURL + "?" + q.Encode()
}

func encodingContentType(config stt.TranscriptionConfig) string {
	switch config.Encoding {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/opus"
	case "flac":
		return "audio/flac"
	default:
		return "audio/l16"
	}
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func parseListenResponse(data []byte) (*stt.TranscriptionResult, error) {
	var lr listenResponse
	if err := json.Unmarshal(data, &lr); err != nil {
		return nil, fmt.Errorf("deepgram: parse response: %w", err)
	}
	if len(lr.Results.Channels) == 0 || len(lr.Results.Channels[0].Alternatives) == 0 {
		return &stt.TranscriptionResult{}, nil
	}
	alt := lr.Results.Channels[0].Alternatives[0]
	return &stt.TranscriptionResult{Text: alt.Transcript}, nil
}
