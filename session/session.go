// Package session implements the Session Orchestrator and turn-taking
// state machine: the actor that owns one call's
// STT→LLM→TTS pipeline, VAD-driven endpointing, barge-in, and tool
// invocation loop.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentplexus/voiceengine/agent"
	"github.com/agentplexus/voiceengine/cost"
	"github.com/agentplexus/voiceengine/internal/providers/transport/resample"
	"github.com/agentplexus/voiceengine/llm"
	"github.com/agentplexus/voiceengine/recording"
	"github.com/agentplexus/voiceengine/stt"
	"github.com/agentplexus/voiceengine/store"
	"github.com/agentplexus/voiceengine/telemetry"
	"github.com/agentplexus/voiceengine/tool"
	"github.com/agentplexus/voiceengine/transport"
	"github.com/agentplexus/voiceengine/tts"
	"github.com/agentplexus/voiceengine/vad"
)

// ingressSampleRate is the fixed rate the session resamples every leg's
// incoming audio to before VAD and STT.
const ingressSampleRate = 16000

const bytesPerSample = 2

// minPlaybackDelay is the floor on how long synthesizeAndPlay waits before
// returning the session to listening, regardless of audio length.
const minPlaybackDelay = 500 * time.Millisecond

// playbackTail is added to the computed audio duration so the client has
// time to finish draining its playback buffer.
const playbackTail = 200 * time.Millisecond

// Config carries every construction input names, plus the
// already-resolved provider clients and collaborators the session needs to
// run without reaching into global state.
type Config struct {
	CallID string
	OrgID  string

	Assistant agent.Assistant
	Conn      transport.Conn

	STT   *stt.Client
	LLM   *llm.Client
	TTS   *tts.Client
	Tools *tool.Executor

	Store    store.Store
	Recorder *recording.Recorder

	// IngressSampleRate is the PCM rate this leg's client actually sends,
	// resampled internally to ingressSampleRate before VAD and STT. Fixed
	// at 16000 for every leg, web or telephony.
	IngressSampleRate int

	// EgressSampleRate is the PCM rate synthesized audio is requested at
	// and written back to this leg's client. 24000 for the web widget,
	// 16000 for telephony legs.
	EgressSampleRate int

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics

	// OnEnd is invoked exactly once, after end() has finalized the call,
	// so the caller (session registry) can deregister this session.
	OnEnd func(callID, reason string)
}

// Session is the live, process-local actor for one call. All
// mutable fields are guarded by mu; handlers acquire mu for their entire
// duration, satisfying at-most-one-handler-in-flight rule.
type Session struct {
	cfg Config

	mu                 sync.Mutex
	state              State
	history            []llm.Message
	vad                *vad.Detector
	inputBuffer        []byte
	userSpeaking       bool
	silenceStart       time.Time
	currentSynthesisID uint64
	ended              bool

	startTime time.Time
	done      chan struct{}

	sttLatencies []time.Duration
	llmLatencies []time.Duration
	ttsLatencies []time.Duration

	sttAudioTotal time.Duration
	ttsAudioTotal time.Duration

	maxDurationTimer *time.Timer
}

// New constructs a Session: instantiates no providers itself (those are
// resolved by the caller into cfg.STT/LLM/TTS/Tools) but does seed the
// message history with the system prompt.
func New(cfg Config) *Session {
	if cfg.EgressSampleRate == 0 {
		cfg.EgressSampleRate = 24000
	}
	if cfg.IngressSampleRate == 0 {
		cfg.IngressSampleRate = ingressSampleRate
	}
	s := &Session{
		cfg:   cfg,
		state: StateIdle,
		vad:   vad.New(cfg.Assistant.EndpointingSensitivity),
		done:  make(chan struct{}),
		history: []llm.Message{
			{Role: llm.RoleSystem, Content: cfg.Assistant.SystemPrompt},
		},
	}
	return s
}

// Done returns a channel closed once the session has fully ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// State reports the session's current turn-taking state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot is the read-only view the session registry's lifecycle
// endpoints expose.
type Snapshot struct {
	CallID          string
	State           State
	DurationMs      int64
	MessageCount    int
	AvgSTTLatencyMs int64
	AvgLLMLatencyMs int64
	AvgTTSLatencyMs int64
}

// Snapshot returns the current session info for GET lifecycle endpoints.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var durationMs int64
	if !s.startTime.IsZero() {
		durationMs = time.Since(s.startTime).Milliseconds()
	}
	return Snapshot{
		CallID:          s.cfg.CallID,
		State:           s.state,
		DurationMs:      durationMs,
		MessageCount:    len(s.history),
		AvgSTTLatencyMs: avgMillis(s.sttLatencies),
		AvgLLMLatencyMs: avgMillis(s.llmLatencies),
		AvgTTSLatencyMs: avgMillis(s.ttsLatencies),
	}
}

func avgMillis(ds []time.Duration) int64 {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return (sum / time.Duration(len(ds))).Milliseconds()
}

// Start runs the session to completion: it marks the call in-progress,
// installs the read loop, optionally speaks the configured first message,
// and blocks until the session ends).
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.startTime = time.Now()
	if err := s.cfg.Store.UpsertCall(ctx, store.Call{
		ID:          s.cfg.CallID,
		OrgID:       s.cfg.OrgID,
		AssistantID: s.cfg.Assistant.ID,
		Status:      store.StatusInProgress,
		StartedAt:   s.startTime,
	}); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: upsert call: %w", err)
	}
	s.emitLocked(transport.EventCallStarted, map[string]any{
		"callId":    s.cfg.CallID,
		"assistant": s.cfg.Assistant.ID,
	})

	if s.cfg.Assistant.MaxCallDurationSeconds > 0 {
		d := time.Duration(s.cfg.Assistant.MaxCallDurationSeconds) * time.Second
		s.maxDurationTimer = time.AfterFunc(d, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.endLocked(ctx, "max-duration")
		})
	}

	speaksFirst := s.cfg.Assistant.StartMode == agent.SpeaksFirst && s.cfg.Assistant.FirstMessage != ""
	if speaksFirst {
		s.state = StateSpeaking
	} else {
		s.state = StateListening
	}
	s.mu.Unlock()

	if speaksFirst {
		s.mu.Lock()
		s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: s.cfg.Assistant.FirstMessage})
		s.emitLocked(transport.EventAssistantMessage, map[string]any{"text": s.cfg.Assistant.FirstMessage})
		s.persistLocked(ctx, store.Message{
			Role:        store.RoleAssistant,
			Content:     s.cfg.Assistant.FirstMessage,
			TimestampMs: 0,
		})
		s.synthesizeAndPlayLocked(ctx, s.cfg.Assistant.FirstMessage, 0)
		s.mu.Unlock()
	}

	s.runLoop(ctx)
	<-s.done
	return nil
}

// runLoop is the single reader goroutine: it owns ReadFrame and dispatches
// every frame through the session's mutex, satisfying the serialization
// requirement without a blocking queue.
func (s *Session) runLoop(ctx context.Context) {
	for {
		data, isBinary, err := s.cfg.Conn.ReadFrame()
		if err != nil {
			s.mu.Lock()
			if !s.ended {
				s.endLocked(ctx, "client-disconnect")
			}
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		if s.ended {
			s.mu.Unlock()
			return
		}
		if isBinary {
			s.handleAudioLocked(ctx, data)
		} else {
			s.handleControlLocked(ctx, data)
		}
		terminated := s.ended
		s.mu.Unlock()
		if terminated {
			return
		}
	}
}

func (s *Session) handleControlLocked(ctx context.Context, data []byte) {
	var ctrl transport.Control
	if err := json.Unmarshal(data, &ctrl); err != nil {
		s.cfg.Logger.Warn().Err(err).Str("callId", s.cfg.CallID).Msg("malformed control frame")
		return
	}
	switch ctrl.Type {
	case transport.ControlEnd:
		s.endLocked(ctx, "client-request")
	case transport.ControlInterrupt:
		s.handleInterruptLocked()
	case transport.ControlConfig:
		// reserved, no-op.
	}
}

// handleAudioLocked implements handleAudio(frame).
func (s *Session) handleAudioLocked(ctx context.Context, rawFrame []byte) {
	frame := resample.PCM16(rawFrame, s.cfg.IngressSampleRate, ingressSampleRate)
	s.cfg.Recorder.AppendUser(frame)

	if s.state == StateSpeaking && s.cfg.Assistant.InterruptionEnabled && s.vad.HasVoice(frame) {
		s.handleInterruptLocked()
		s.inputBuffer = append(s.inputBuffer, frame...)
		s.userSpeaking = true
		s.silenceStart = time.Time{}
		s.emitLocked(transport.EventSpeechStarted, nil)
		return
	}

	s.inputBuffer = append(s.inputBuffer, frame...)
	if s.vad.HasVoice(frame) {
		if !s.userSpeaking {
			s.emitLocked(transport.EventSpeechStarted, nil)
		}
		s.userSpeaking = true
		s.silenceStart = time.Time{}
		if s.state != StateSpeaking {
			s.state = StateListening
		}
		return
	}

	if s.userSpeaking {
		if s.silenceStart.IsZero() {
			s.silenceStart = time.Now()
			s.cfg.Logger.Debug().Str("callId", s.cfg.CallID).Msg("endpointing: silence onset")
			return
		}
		timeout := s.cfg.Assistant.SilenceTimeout()
		if time.Since(s.silenceStart) > timeout {
			s.userSpeaking = false
			s.emitLocked(transport.EventSpeechEnded, nil)
			s.processUserSpeechLocked(ctx)
		}
	}
}

// processUserSpeechLocked implements processUserSpeech().
func (s *Session) processUserSpeechLocked(ctx context.Context) {
	audio := s.inputBuffer
	s.inputBuffer = nil

	s.emitLocked(transport.EventAssistantThinking, nil)
	s.state = StateThinking

	s.sttAudioTotal += time.Duration(len(audio)/bytesPerSample) * time.Second / time.Duration(ingressSampleRate)

	start := time.Now()
	result, err := s.cfg.STT.Transcribe(ctx, audio, stt.TranscriptionConfig{SampleRate: ingressSampleRate})
	latency := time.Since(start)
	s.sttLatencies = append(s.sttLatencies, latency)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.STTDuration.Record(ctx, latency.Seconds())
	}

	if err != nil {
		s.logProviderFailure(ctx, "stt", err)
		s.emitLocked(transport.EventAssistantAudioDone, nil)
		s.state = StateListening
		return
	}

	text := result.Text
	if text == "" {
		s.state = StateListening
		return
	}

	s.emitLocked(transport.EventTranscriptFinal, map[string]any{"text": text})
	s.history = append(s.history, llm.Message{Role: llm.RoleUser, Content: text})
	s.persistLocked(ctx, store.Message{
		Role:         store.RoleUser,
		Content:      text,
		TimestampMs:  time.Since(s.startTime).Milliseconds(),
		SttLatencyMs: int(latency.Milliseconds()),
	})

	s.generateResponseLocked(ctx)
}

// generateResponseLocked implements generateResponse().
func (s *Session) generateResponseLocked(ctx context.Context) {
	start := time.Now()
	resp, err := s.cfg.LLM.Generate(ctx, s.history, s.cfg.Tools.Definitions())
	latency := time.Since(start)
	s.llmLatencies = append(s.llmLatencies, latency)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.LLMDuration.Record(ctx, latency.Seconds())
	}

	if err != nil {
		s.logProviderFailure(ctx, "llm", err)
		s.emitLocked(transport.EventAssistantAudioDone, nil)
		s.state = StateListening
		return
	}

	if len(resp.ToolCalls) > 0 {
		for _, tc := range resp.ToolCalls {
			s.emitLocked(transport.EventToolCalled, map[string]any{"name": tc.Name, "arguments": tc.Arguments})

			switch tc.Name {
			case "endCall":
				s.endLocked(ctx, "assistant-ended")
				return
			case "transferCall":
				s.transferCallLocked(ctx, tc)
				return
			default:
				result := s.cfg.Tools.Execute(ctx, tc.Name, tc.Arguments)
				s.emitLocked(transport.EventToolResult, map[string]any{"name": tc.Name, "result": result})

				resultJSON, _ := json.Marshal(result)
				s.history = append(s.history, llm.Message{
					Role:       llm.RoleTool,
					Content:    string(resultJSON),
					ToolCallID: tc.ID,
					ToolName:   tc.Name,
				})
				s.persistLocked(ctx, store.Message{
					Role:          store.RoleTool,
					Content:       string(resultJSON),
					ToolName:      tc.Name,
					ToolArguments: marshalArgs(tc.Arguments),
					ToolResult:    string(resultJSON),
					ToolCallID:    tc.ID,
					TimestampMs:   time.Since(s.startTime).Milliseconds(),
				})
			}
		}
		s.generateResponseLocked(ctx)
		return
	}

	if resp.Content != "" {
		s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
		s.emitLocked(transport.EventAssistantMessage, map[string]any{"text": resp.Content})
		s.persistLocked(ctx, store.Message{
			Role:         store.RoleAssistant,
			Content:      resp.Content,
			TimestampMs:  time.Since(s.startTime).Milliseconds(),
			LlmLatencyMs: int(latency.Milliseconds()),
		})
		s.synthesizeAndPlayLocked(ctx, resp.Content, latency)
		return
	}

	s.state = StateListening
}

// transferCallLocked implements the transferCall tool invocation: it emits
// transfer.started carrying a warm-summary or warm-message handoff payload
// when the configured transfer tool asks for one, blind otherwise.
func (s *Session) transferCallLocked(ctx context.Context, tc llm.ToolCall) {
	destination, _ := tc.Arguments["destination"].(string)
	reason, _ := tc.Arguments["reason"].(string)

	mode := agent.TransferBlind
	if configured, ok := s.cfg.Tools.Tool(tc.Name); ok && configured.Transfer != nil {
		mode = configured.Transfer.Mode
	}

	data := map[string]any{"destination": destination, "mode": mode}
	switch mode {
	case agent.TransferWarmSummary:
		summary, err := tool.Summary(ctx, s.cfg.LLM, s.history)
		if err != nil {
			s.logProviderFailure(ctx, "llm", err)
		} else {
			data["summary"] = summary
		}
	case agent.TransferWarmMessage:
		data["message"] = reason
	}

	s.emitLocked(transport.EventTransferStarted, data)
}

func marshalArgs(args map[string]any) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// synthesizeAndPlayLocked implements synthesizeAndPlay(text, llmLatency).
func (s *Session) synthesizeAndPlayLocked(ctx context.Context, text string, _ time.Duration) {
	s.state = StateSpeaking
	sid := atomic.AddUint64(&s.currentSynthesisID, 1)

	start := time.Now()
	result, err := s.cfg.TTS.Synthesize(ctx, text, tts.SynthesisConfig{
		VoiceID:    s.cfg.Assistant.Voice.VoiceID,
		SampleRate: s.cfg.EgressSampleRate,
	})
	ttsLatency := time.Since(start)
	s.ttsLatencies = append(s.ttsLatencies, ttsLatency)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.TTSDuration.Record(ctx, ttsLatency.Seconds())
	}

	if err != nil {
		s.logProviderFailure(ctx, "tts", err)
		s.emitLocked(transport.EventAssistantAudioDone, nil)
		s.state = StateListening
		return
	}

	duration := time.Duration(len(result.Audio)/bytesPerSample) * time.Second / time.Duration(s.cfg.EgressSampleRate)
	s.ttsAudioTotal += duration

	if s.state != StateSpeaking || atomic.LoadUint64(&s.currentSynthesisID) != sid {
		return // interrupted while synthesis was in flight; discard.
	}

	s.emitLocked(transport.EventAssistantSpeaking, nil)
	s.writeAudioChunked(result.Audio)
	s.cfg.Recorder.AppendAssistant(result.Audio)

	delay := duration + playbackTail
	if delay < minPlaybackDelay {
		delay = minPlaybackDelay
	}

	time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ended || s.state != StateSpeaking || atomic.LoadUint64(&s.currentSynthesisID) != sid {
			return
		}
		s.state = StateListening
		s.userSpeaking = false
		s.inputBuffer = nil
		s.emitLocked(transport.EventAssistantAudioDone, nil)
	})
}

func (s *Session) writeAudioChunked(pcm []byte) {
	for len(pcm) > 0 {
		n := len(pcm)
		if n > transport.MaxFrameBytes {
			n = transport.MaxFrameBytes
		}
		if err := s.cfg.Conn.WriteAudio(pcm[:n]); err != nil {
			s.cfg.Logger.Warn().Err(err).Str("callId", s.cfg.CallID).Msg("write audio frame")
			return
		}
		pcm = pcm[n:]
	}
}

// handleInterruptLocked implements handleInterrupt().
func (s *Session) handleInterruptLocked() {
	if s.state != StateSpeaking {
		return
	}
	atomic.AddUint64(&s.currentSynthesisID, 1)
	s.state = StateListening
	s.emitLocked(transport.EventAssistantInterrupt, map[string]any{
		"clearAudio": true,
		"reason":     "user-speech",
	})
	s.inputBuffer = nil
}

// endLocked implements end(reason); idempotent via s.ended.
func (s *Session) endLocked(ctx context.Context, reason string) {
	if s.ended {
		return
	}
	s.ended = true
	if s.maxDurationTimer != nil {
		s.maxDurationTimer.Stop()
	}

	endedAt := time.Now()
	durationSec := 0
	if !s.startTime.IsZero() {
		durationSec = int(endedAt.Sub(s.startTime) / time.Second)
	}
	// sttAudioTotal/ttsAudioTotal are accumulated from actual audio duration
	// processed, not provider latency, so a slow vendor response doesn't
	// inflate cost for the same amount of audio. The LLM stage has no audio
	// of its own; its cost stays a proxy off round-trip latency.
	costBreakdown := cost.Breakdown(s.sttAudioTotal, sumDurations(s.llmLatencies), s.ttsAudioTotal)

	if err := s.cfg.Store.UpsertCall(ctx, store.Call{
		ID:          s.cfg.CallID,
		OrgID:       s.cfg.OrgID,
		AssistantID: s.cfg.Assistant.ID,
		Status:      store.StatusCompleted,
		StartedAt:   s.startTime,
		EndedAt:     endedAt,
		DurationSec: durationSec,
		EndedReason: reason,
		Cost:        costBreakdown,
	}); err != nil {
		s.cfg.Logger.Error().Err(err).Str("callId", s.cfg.CallID).Msg("persist call end")
	}

	s.emitLocked(transport.EventCallEnded, map[string]any{
		"reason":      reason,
		"durationSec": durationSec,
		"costs":       costBreakdown,
	})

	userURI, assistantURI, err := s.cfg.Recorder.Flush()
	if err != nil {
		s.cfg.Logger.Error().Err(err).Str("callId", s.cfg.CallID).Msg("flush recordings")
	} else if err := s.cfg.Store.UpsertCall(ctx, store.Call{
		ID:                 s.cfg.CallID,
		OrgID:              s.cfg.OrgID,
		AssistantID:        s.cfg.Assistant.ID,
		Status:             store.StatusCompleted,
		StartedAt:          s.startTime,
		EndedAt:            endedAt,
		DurationSec:        durationSec,
		EndedReason:        reason,
		Cost:               costBreakdown,
		UserRecording:      userURI,
		AssistantRecording: assistantURI,
	}); err != nil {
		s.cfg.Logger.Error().Err(err).Str("callId", s.cfg.CallID).Msg("persist recording uris")
	}

	s.state = StateTerminated
	if err := s.cfg.Conn.Close(); err != nil {
		s.cfg.Logger.Debug().Err(err).Str("callId", s.cfg.CallID).Msg("close socket")
	}

	if s.cfg.OnEnd != nil {
		s.cfg.OnEnd(s.cfg.CallID, reason)
	}
	close(s.done)
}

// End is the external entry point used by the session registry's
// POST-end lifecycle endpoint and shutdown handler.
func (s *Session) End(ctx context.Context, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(ctx, reason)
}

func sumDurations(ds []time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum
}

// logProviderFailure logs a recoverable pipeline failure. Callers return
// the turn to listening rather than ending the call; STT/LLM/TTS Client
// wrappers have already exhausted their fallback chain by the time err
// reaches here, surfacing as an *errs.ProviderError.
func (s *Session) logProviderFailure(ctx context.Context, role string, err error) {
	s.cfg.Logger.Warn().Err(err).Str("callId", s.cfg.CallID).Str("role", role).Msg("provider failure, returning to listening")
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ProviderErrors.Add(ctx, 1)
	}
}

// emitLocked sends a server-to-client event; caller must hold mu.
func (s *Session) emitLocked(t transport.EventType, data any) {
	if err := s.cfg.Conn.WriteEvent(transport.Event{Type: t, Data: data}); err != nil {
		s.cfg.Logger.Debug().Err(err).Str("callId", s.cfg.CallID).Str("event", string(t)).Msg("write event")
	}
}

// persistLocked appends a CallMessage; caller must hold mu.
func (s *Session) persistLocked(ctx context.Context, msg store.Message) {
	msg.CallID = s.cfg.CallID
	if err := s.cfg.Store.AppendMessage(ctx, msg); err != nil {
		s.cfg.Logger.Error().Err(err).Str("callId", s.cfg.CallID).Msg("persist call message")
	}
}
