// Package transport implements the WebSocket media protocol the session
// orchestrator speaks to a single call's client: one
// connection per call carrying binary PCM audio in each direction and JSON
// text frames for control/events.
package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MaxFrameBytes is the protocol's hard cap on a single WebSocket frame.
const MaxFrameBytes = 1 << 20

// EventType names a server-to-client text frame kind.
type EventType string

const (
	EventTest               EventType = "test"
	EventCallStarted        EventType = "call.started"
	EventCallEnded          EventType = "call.ended"
	EventSpeechStarted      EventType = "speech.started"
	EventSpeechEnded        EventType = "speech.ended"
	EventTranscriptPartial  EventType = "transcript.partial"
	EventTranscriptFinal    EventType = "transcript.final"
	EventAssistantThinking  EventType = "assistant.thinking"
	EventAssistantMessage   EventType = "assistant.message"
	EventAssistantSpeaking  EventType = "assistant.speaking"
	EventAssistantAudioDone EventType = "assistant.audio.done"
	EventAssistantInterrupt EventType = "assistant.interrupted"
	EventToolCalled         EventType = "tool.called"
	EventToolResult         EventType = "tool.result"
	EventTransferStarted    EventType = "transfer.started"
	EventError              EventType = "error"
)

// Event is a server-to-client text frame: {type, data, timestamp}.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// ControlType names a client-to-server text frame kind.
type ControlType string

const (
	ControlEnd       ControlType = "end"
	ControlInterrupt ControlType = "interrupt"
	ControlConfig    ControlType = "config"
)

// Control is a client-to-server text frame: {type, ...}.
type Control struct {
	Type ControlType    `json:"type"`
	Data map[string]any `json:"-"`
}

// UnmarshalJSON keeps any fields beyond "type" available via Data, since
// "config" control frames are reserved and implementation-defined.
func (c *Control) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t, _ := raw["type"].(string)
	c.Type = ControlType(t)
	delete(raw, "type")
	c.Data = raw
	return nil
}

// Conn is a single call's bidirectional media connection: binary frames
// carry raw PCM, text frames carry Event/Control JSON. Implementations must
// be safe for one reader goroutine and one writer goroutine used
// concurrently (gorilla/websocket requires writes to be serialized, which
// Conn does internally).
type Conn interface {
	// ID returns the call id this connection is bound to.
	ID() string

	// ReadFrame blocks for the next frame. isBinary reports whether data
	// is raw PCM (true) or a JSON text frame (false).
	ReadFrame() (data []byte, isBinary bool, err error)

	// WriteAudio sends one binary PCM frame.
	WriteAudio(pcm []byte) error

	// WriteEvent sends one JSON text frame.
	WriteEvent(evt Event) error

	// Close closes the underlying socket.
	Close() error

	// RemoteAddr returns the peer address, when known.
	RemoteAddr() net.Addr
}

// WSConn is the gorilla/websocket-backed Conn implementation used by the
// web/widget transport leg and, after carrier media bridging, by telephony
// legs too.
type WSConn struct {
	callID string
	ws     *websocket.Conn

	writeMu sync.Mutex
}

// NewWSConn wraps an already-upgraded websocket.Conn for the given call.
func NewWSConn(callID string, ws *websocket.Conn) *WSConn {
	ws.SetReadLimit(MaxFrameBytes)
	return &WSConn{callID: callID, ws: ws}
}

func (c *WSConn) ID() string { return c.callID }

func (c *WSConn) ReadFrame() ([]byte, bool, error) {
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, false, err
	}
	return data, mt == websocket.BinaryMessage, nil
}

func (c *WSConn) WriteAudio(pcm []byte) error {
	if len(pcm) > MaxFrameBytes {
		return fmt.Errorf("transport: audio frame exceeds %d bytes", MaxFrameBytes)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, pcm)
}

func (c *WSConn) WriteEvent(evt Event) error {
	if evt.Timestamp == 0 {
		evt.Timestamp = nowMillis()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, body)
}

func (c *WSConn) Close() error { return c.ws.Close() }

func (c *WSConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// nowMillis is overridable in tests; production code always uses wall time.
var nowMillis = func() int64 { return time.Now().UnixMilli() }
