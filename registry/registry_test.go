package registry

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplexus/voiceengine/agent"
	"github.com/agentplexus/voiceengine/errs"
	memorystore "github.com/agentplexus/voiceengine/internal/providers/store/memory"
	"github.com/agentplexus/voiceengine/llm"
	"github.com/agentplexus/voiceengine/recording"
	"github.com/agentplexus/voiceengine/session"
	"github.com/agentplexus/voiceengine/stt"
	"github.com/agentplexus/voiceengine/tool"
	"github.com/agentplexus/voiceengine/transport"
	"github.com/agentplexus/voiceengine/tts"
)

// fakeConn is a transport.Conn whose ReadFrame blocks until closed, so a
// registered session stays alive until the test ends it explicitly.
type fakeConn struct {
	id     string
	closed chan struct{}
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, closed: make(chan struct{})}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) ReadFrame() ([]byte, bool, error) {
	<-c.closed
	return nil, false, net.ErrClosed
}

func (c *fakeConn) WriteAudio(pcm []byte) error      { return nil }
func (c *fakeConn) WriteEvent(evt transport.Event) error { return nil }
func (c *fakeConn) RemoteAddr() net.Addr             { return nil }

func (c *fakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

type noopSTT struct{}

func (noopSTT) Name() string { return "noop" }
func (noopSTT) Transcribe(ctx context.Context, audio []byte, config stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	return &stt.TranscriptionResult{}, nil
}
func (noopSTT) TranscribeFile(ctx context.Context, path string, config stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	return &stt.TranscriptionResult{}, nil
}
func (noopSTT) TranscribeURL(ctx context.Context, url string, config stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	return &stt.TranscriptionResult{}, nil
}

type noopLLM struct{}

func (noopLLM) Name() string { return "noop" }
func (noopLLM) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	return &llm.Response{}, nil
}

type noopTTS struct{}

func (noopTTS) Name() string { return "noop" }
func (noopTTS) Synthesize(ctx context.Context, text string, config tts.SynthesisConfig) (*tts.SynthesisResult, error) {
	return &tts.SynthesisResult{}, nil
}
func (noopTTS) SynthesizeStream(ctx context.Context, text string, config tts.SynthesisConfig) (<-chan tts.StreamChunk, error) {
	return nil, nil
}
func (noopTTS) ListVoices(ctx context.Context) ([]tts.Voice, error)             { return nil, nil }
func (noopTTS) GetVoice(ctx context.Context, voiceID string) (*tts.Voice, error) { return nil, nil }

func newTestSession(t *testing.T, callID string) (*session.Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn(callID)
	executor, err := tool.New(nil, nil)
	require.NoError(t, err)

	s := session.New(session.Config{
		CallID:    callID,
		Assistant: agent.Assistant{ID: "assistant-1", SystemPrompt: "be helpful", StartMode: agent.WaitsForUser},
		Conn:      conn,
		STT:       stt.NewClient(noopSTT{}),
		LLM:       llm.NewClient(noopLLM{}),
		TTS:       tts.NewClient(noopTTS{}),
		Tools:     executor,
		Store:     memorystore.New(),
		Recorder:  recording.New(t.TempDir(), callID),
	})
	return s, conn
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()
	r := New()
	s, _ := newTestSession(t, "call-1")

	r.Register(s, "call-1")
	got, ok := r.Lookup("call-1")
	assert.True(t, ok)
	assert.Same(t, s, got)
}

func TestRegistry_Deregister(t *testing.T) {
	t.Parallel()
	r := New()
	s, _ := newTestSession(t, "call-1")
	r.Register(s, "call-1")

	r.Deregister("call-1")
	_, ok := r.Lookup("call-1")
	assert.False(t, ok)

	assert.NotPanics(t, func() { r.Deregister("call-1") })
}

func TestRegistry_Info_NotFound(t *testing.T) {
	t.Parallel()
	r := New()
	_, err := r.Info("missing")
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRegistry_Count(t *testing.T) {
	t.Parallel()
	r := New()
	assert.Equal(t, 0, r.Count())

	s1, _ := newTestSession(t, "call-1")
	s2, _ := newTestSession(t, "call-2")
	r.Register(s1, "call-1")
	r.Register(s2, "call-2")
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_EndCall(t *testing.T) {
	t.Parallel()
	r := New()
	s, conn := newTestSession(t, "call-1")
	r.Register(s, "call-1")

	go func() { _ = s.Start(context.Background()) }()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, r.EndCall(context.Background(), "call-1"))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not end")
	}
	_ = conn
}

func TestRegistry_EndCall_NotFound(t *testing.T) {
	t.Parallel()
	r := New()
	err := r.EndCall(context.Background(), "missing")
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRegistry_Shutdown_EndsAllSessions(t *testing.T) {
	t.Parallel()
	r := New()
	s1, _ := newTestSession(t, "call-1")
	s2, _ := newTestSession(t, "call-2")
	r.Register(s1, "call-1")
	r.Register(s2, "call-2")

	go func() { _ = s1.Start(context.Background()) }()
	go func() { _ = s2.Start(context.Background()) }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Shutdown(ctx)

	select {
	case <-s1.Done():
	default:
		t.Fatal("session 1 did not end")
	}
	select {
	case <-s2.Done():
	default:
		t.Fatal("session 2 did not end")
	}
}
