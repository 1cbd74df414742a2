// Package whisperlocal implements stt.Provider against a self-hosted
// whisper.cpp server (the `whisper-server` binary's /inference endpoint),
// for deployments that keep transcription on-prem instead of calling a
// cloud STT vendor.
package whisperlocal

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/stt"
)

const (
	bitsPerSample = 16
	defaultTimeout = 30 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Provider transcribes audio by POSTing a WAV-wrapped copy to a whisper.cpp
// server's /inference endpoint. whisper.cpp is batch-only, so this provider
// never implements stt.StreamingProvider.
type Provider struct {
	serverURL  string
	httpClient *http.Client
}

// New constructs a Provider bound to a running whisper-server at serverURL
// (e.g. "http://localhost:8090").
func New(serverURL string) (*Provider, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisperlocal: serverURL must not be empty")
	}
	return &Provider{serverURL: serverURL, httpClient: &http.Client{Timeout: defaultTimeout}}, nil
}

func (p *Provider) Name() string { return "whisperlocal" }

// Transcribe wraps audio as a WAV container and posts it for batch inference.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, config stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	sampleRate := config.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := config.Channels
	if channels <= 0 {
		channels = 1
	}

	wav := encodeWAV(audio, sampleRate, channels)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisperlocal: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisperlocal: write wav: %w", err)
	}
	if config.Language != "" {
		_ = mw.WriteField("language", config.Language)
	}
	if config.Model != "" {
		_ = mw.WriteField("model", config.Model)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisperlocal: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisperlocal: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &errs.ProviderError{Provider: "whisperlocal", Op: "transcribe", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errs.ProviderError{Provider: "whisperlocal", Op: "transcribe", Err: fmt.Errorf("server returned HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisperlocal: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("whisperlocal: parse response: %w", err)
	}
	return &stt.TranscriptionResult{Text: result.Text}, nil
}

// TranscribeFile reads filePath into memory and delegates to Transcribe.
func (p *Provider) TranscribeFile(ctx context.Context, filePath string, config stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("whisperlocal: read file: %w", err)
	}
	return p.Transcribe(ctx, data, config)
}

// TranscribeURL is unsupported; whisper.cpp's /inference endpoint only
// accepts uploaded audio, not a remote URL to fetch.
func (p *Provider) TranscribeURL(ctx context.Context, url string, config stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	return nil, &errs.ProviderError{Provider: "whisperlocal", Op: "transcribeURL", Err: fmt.Errorf("transcription by URL is not supported")}
}

func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}
