package session

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplexus/voiceengine/agent"
	"github.com/agentplexus/voiceengine/errs"
	memorystore "github.com/agentplexus/voiceengine/internal/providers/store/memory"
	"github.com/agentplexus/voiceengine/llm"
	"github.com/agentplexus/voiceengine/recording"
	"github.com/agentplexus/voiceengine/stt"
	"github.com/agentplexus/voiceengine/tool"
	"github.com/agentplexus/voiceengine/transport"
	"github.com/agentplexus/voiceengine/tts"
)

type inFrame struct {
	data     []byte
	isBinary bool
}

// recordingConn is a transport.Conn test double: frames are pushed onto in
// by the test, every written event/audio frame is recorded for assertions.
type recordingConn struct {
	id string
	in chan inFrame

	mu          sync.Mutex
	events      []transport.Event
	audioWrites [][]byte
}

func newRecordingConn(id string) *recordingConn {
	return &recordingConn{id: id, in: make(chan inFrame, 16)}
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) ReadFrame() ([]byte, bool, error) {
	f, ok := <-c.in
	if !ok {
		return nil, false, io.EOF
	}
	return f.data, f.isBinary, nil
}

func (c *recordingConn) WriteAudio(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioWrites = append(c.audioWrites, pcm)
	return nil
}

func (c *recordingConn) WriteEvent(evt transport.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *recordingConn) Close() error         { return nil }
func (c *recordingConn) RemoteAddr() net.Addr { return nil }

func (c *recordingConn) sendAudio(samples ...int16) {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	c.in <- inFrame{data: buf, isBinary: true}
}

func (c *recordingConn) sendControl(t transport.ControlType) {
	body, _ := json.Marshal(map[string]string{"type": string(t)})
	c.in <- inFrame{data: body, isBinary: false}
}

func (c *recordingConn) hasEvent(t transport.EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

func loudFrame(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = 8000
	}
	return out
}

func silentFrame(n int) []int16 {
	return make([]int16, n)
}

type scriptedSTT struct {
	text string
	err  error
}

func (s *scriptedSTT) Name() string { return "scripted" }
func (s *scriptedSTT) Transcribe(ctx context.Context, audio []byte, config stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &stt.TranscriptionResult{Text: s.text}, nil
}
func (s *scriptedSTT) TranscribeFile(ctx context.Context, path string, config stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	return s.Transcribe(ctx, nil, config)
}
func (s *scriptedSTT) TranscribeURL(ctx context.Context, url string, config stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	return s.Transcribe(ctx, nil, config)
}

type scriptedLLM struct {
	mu        sync.Mutex
	calls     int
	responses []*llm.Response
}

func (l *scriptedLLM) Name() string { return "scripted" }
func (l *scriptedLLM) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.calls
	if idx >= len(l.responses) {
		idx = len(l.responses) - 1
	}
	l.calls++
	return l.responses[idx], nil
}

type scriptedTTS struct {
	audio []byte
}

func (t *scriptedTTS) Name() string { return "scripted" }
func (t *scriptedTTS) Synthesize(ctx context.Context, text string, config tts.SynthesisConfig) (*tts.SynthesisResult, error) {
	return &tts.SynthesisResult{Audio: t.audio, SampleRate: config.SampleRate}, nil
}
func (t *scriptedTTS) SynthesizeStream(ctx context.Context, text string, config tts.SynthesisConfig) (<-chan tts.StreamChunk, error) {
	return nil, nil
}
func (t *scriptedTTS) ListVoices(ctx context.Context) ([]tts.Voice, error)             { return nil, nil }
func (t *scriptedTTS) GetVoice(ctx context.Context, voiceID string) (*tts.Voice, error) { return nil, nil }

func newTestConfig(t *testing.T, assistant agent.Assistant, sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider) (Config, *recordingConn) {
	t.Helper()
	conn := newRecordingConn("call-1")
	executor, err := tool.New(assistant.Tools, nil)
	require.NoError(t, err)

	return Config{
		CallID:    "call-1",
		Assistant: assistant,
		Conn:      conn,
		STT:       stt.NewClient(sttP),
		LLM:       llm.NewClient(llmP),
		TTS:       tts.NewClient(ttsP),
		Tools:     executor,
		Store:     memorystore.New(),
		Recorder:  recording.New(t.TempDir(), "call-1"),
	}, conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSession_HappyPathTurn(t *testing.T) {
	t.Parallel()

	assistant := agent.Assistant{
		ID:               "assistant-1",
		SystemPrompt:     "be helpful",
		StartMode:        agent.WaitsForUser,
		SilenceTimeoutMs: 1,
	}
	cfg, conn := newTestConfig(t, assistant,
		&scriptedSTT{text: "what are your hours"},
		&scriptedLLM{responses: []*llm.Response{{Content: "we are open 9 to 5"}}},
		&scriptedTTS{audio: make([]byte, 1600)},
	)

	s := New(cfg)
	go func() { _ = s.Start(context.Background()) }()

	conn.sendAudio(loudFrame(80)...)
	conn.sendAudio(silentFrame(80)...)
	time.Sleep(5 * time.Millisecond)
	conn.sendAudio(silentFrame(80)...)

	waitFor(t, func() bool { return conn.hasEvent(transport.EventAssistantMessage) })
	assert.True(t, conn.hasEvent(transport.EventTranscriptFinal))
	assert.True(t, conn.hasEvent(transport.EventAssistantSpeaking))

	conn.mu.Lock()
	writes := len(conn.audioWrites)
	conn.mu.Unlock()
	assert.Positive(t, writes)

	conn.sendControl(transport.ControlEnd)
	waitFor(t, func() bool {
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	})
}

func TestSession_ToolCallEndsCall(t *testing.T) {
	t.Parallel()

	assistant := agent.Assistant{
		ID:               "assistant-1",
		SystemPrompt:     "be helpful",
		StartMode:        agent.WaitsForUser,
		SilenceTimeoutMs: 1,
	}
	cfg, conn := newTestConfig(t, assistant,
		&scriptedSTT{text: "please end the call"},
		&scriptedLLM{responses: []*llm.Response{{
			ToolCalls: []llm.ToolCall{{ID: "1", Name: "endCall", Arguments: map[string]any{"reason": "caller asked"}}},
		}}},
		&scriptedTTS{},
	)

	s := New(cfg)
	go func() { _ = s.Start(context.Background()) }()

	conn.sendAudio(loudFrame(80)...)
	conn.sendAudio(silentFrame(80)...)
	time.Sleep(5 * time.Millisecond)
	conn.sendAudio(silentFrame(80)...)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after endCall tool invocation")
	}
	assert.True(t, conn.hasEvent(transport.EventCallEnded))
}

func TestSession_WarmSummaryTransferIncludesGeneratedSummary(t *testing.T) {
	t.Parallel()

	assistant := agent.Assistant{
		ID:               "assistant-1",
		SystemPrompt:     "be helpful",
		StartMode:        agent.WaitsForUser,
		SilenceTimeoutMs: 1,
		Tools: []agent.Tool{{
			ID:       "transfer-1",
			Kind:     agent.KindTransfer,
			Transfer: &agent.TransferDef{Destinations: []string{"+15550001111"}, Mode: agent.TransferWarmSummary},
		}},
	}
	cfg, conn := newTestConfig(t, assistant,
		&scriptedSTT{text: "transfer me to billing"},
		&scriptedLLM{responses: []*llm.Response{
			{ToolCalls: []llm.ToolCall{{ID: "1", Name: "transferCall", Arguments: map[string]any{"destination": "+15550001111"}}}},
			{Content: "Caller has a billing question about their last invoice."},
		}},
		&scriptedTTS{},
	)

	s := New(cfg)
	go func() { _ = s.Start(context.Background()) }()

	conn.sendAudio(loudFrame(80)...)
	conn.sendAudio(silentFrame(80)...)
	time.Sleep(5 * time.Millisecond)
	conn.sendAudio(silentFrame(80)...)

	waitFor(t, func() bool { return conn.hasEvent(transport.EventTransferStarted) })

	conn.mu.Lock()
	defer conn.mu.Unlock()
	var found bool
	for _, e := range conn.events {
		if e.Type != transport.EventTransferStarted {
			continue
		}
		found = true
		data, ok := e.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, agent.TransferWarmSummary, data["mode"])
		assert.Equal(t, "Caller has a billing question about their last invoice.", data["summary"])
	}
	assert.True(t, found)
}

func TestSession_CostBreakdownUsesAudioDurationNotLatency(t *testing.T) {
	t.Parallel()

	assistant := agent.Assistant{
		ID:               "assistant-1",
		SystemPrompt:     "be helpful",
		StartMode:        agent.WaitsForUser,
		SilenceTimeoutMs: 1,
	}
	cfg, conn := newTestConfig(t, assistant,
		&scriptedSTT{text: "what are your hours"},
		&scriptedLLM{responses: []*llm.Response{{Content: "we are open 9 to 5"}}},
		&scriptedTTS{audio: make([]byte, 1600)}, // 1600 bytes @16-bit = 800 samples
	)

	s := New(cfg)
	go func() { _ = s.Start(context.Background()) }()

	conn.sendAudio(loudFrame(80)...)
	conn.sendAudio(silentFrame(80)...)
	time.Sleep(5 * time.Millisecond)
	conn.sendAudio(silentFrame(80)...)

	waitFor(t, func() bool { return conn.hasEvent(transport.EventAssistantSpeaking) })
	conn.sendControl(transport.ControlEnd)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}

	s.mu.Lock()
	sttAudio := s.sttAudioTotal
	ttsAudio := s.ttsAudioTotal
	sttLatencySum := sumDurations(s.sttLatencies)
	s.mu.Unlock()

	assert.Positive(t, sttAudio)
	assert.Positive(t, ttsAudio)
	// The accumulated audio duration tracks input/output byte length, not
	// the scripted provider's near-zero round-trip latency.
	assert.Greater(t, sttAudio, sttLatencySum)
}

func TestSession_BargeInInterruptsPlayback(t *testing.T) {
	t.Parallel()

	assistant := agent.Assistant{
		ID:                  "assistant-1",
		SystemPrompt:        "be helpful",
		StartMode:           agent.SpeaksFirst,
		FirstMessage:        "hello, how can I help?",
		InterruptionEnabled: true,
	}
	cfg, conn := newTestConfig(t, assistant,
		&scriptedSTT{text: ""},
		&scriptedLLM{responses: []*llm.Response{{Content: "ok"}}},
		&scriptedTTS{audio: make([]byte, 32000)}, // long enough to stay "speaking"
	)

	s := New(cfg)
	go func() { _ = s.Start(context.Background()) }()

	waitFor(t, func() bool { return conn.hasEvent(transport.EventAssistantSpeaking) })
	assert.Equal(t, StateSpeaking, s.State())

	conn.sendAudio(loudFrame(80)...)
	waitFor(t, func() bool { return conn.hasEvent(transport.EventAssistantInterrupt) })
	waitFor(t, func() bool { return s.State() == StateListening })
}

func TestSession_ProviderFailureReturnsToListening(t *testing.T) {
	t.Parallel()

	assistant := agent.Assistant{
		ID:               "assistant-1",
		SystemPrompt:     "be helpful",
		StartMode:        agent.WaitsForUser,
		SilenceTimeoutMs: 1,
	}
	cfg, conn := newTestConfig(t, assistant,
		&scriptedSTT{err: &errs.ProviderError{Provider: "stt", Op: "transcribe", Err: assert.AnError}},
		&scriptedLLM{responses: []*llm.Response{{Content: "unused"}}},
		&scriptedTTS{},
	)

	s := New(cfg)
	go func() { _ = s.Start(context.Background()) }()

	conn.sendAudio(loudFrame(80)...)
	conn.sendAudio(silentFrame(80)...)
	time.Sleep(5 * time.Millisecond)
	conn.sendAudio(silentFrame(80)...)

	waitFor(t, func() bool { return conn.hasEvent(transport.EventAssistantAudioDone) })
	waitFor(t, func() bool { return s.State() == StateListening })
}

func TestSession_ClientEndClosesSession(t *testing.T) {
	t.Parallel()

	assistant := agent.Assistant{ID: "assistant-1", SystemPrompt: "be helpful", StartMode: agent.WaitsForUser}
	cfg, conn := newTestConfig(t, assistant, &scriptedSTT{}, &scriptedLLM{responses: []*llm.Response{{}}}, &scriptedTTS{})

	s := New(cfg)
	go func() { _ = s.Start(context.Background()) }()

	conn.sendControl(transport.ControlEnd)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not end on client end control frame")
	}
	assert.True(t, conn.hasEvent(transport.EventCallEnded))
}
