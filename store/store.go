// Package store defines the persistence port for Call and CallMessage
// records. Concrete backends live under
// internal/providers/store/*.
package store

import (
	"context"
	"time"
)

// CallKind mirrors agent/callsystem's call kinds.
type CallKind string

const (
	KindWeb      CallKind = "web"
	KindInbound  CallKind = "inbound"
	KindOutbound CallKind = "outbound"
)

// CallStatus mirrors callsystem.Status, duplicated here so the store
// package has no dependency on callsystem.
type CallStatus string

const (
	StatusQueued     CallStatus = "queued"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in-progress"
	StatusCompleted  CallStatus = "completed"
	StatusFailed     CallStatus = "failed"
	StatusNoAnswer   CallStatus = "no-answer"
	StatusBusy       CallStatus = "busy"
)

// CostBreakdown is the per-call cost accounting , in cents.
type CostBreakdown struct {
	STT   int
	LLM   int
	TTS   int
	Total int
}

// Call is the mutable call record 
type Call struct {
	ID             string
	OrgID          string
	Kind           CallKind
	Status         CallStatus
	From           string
	To             string
	AssistantID    string
	CarrierMeta    map[string]string
	StartedAt      time.Time
	EndedAt        time.Time
	DurationSec    int
	EndedReason    string
	Cost           CostBreakdown
	UserRecording  string
	AssistantRecording string
}

// MessageRole mirrors llm.Role, duplicated to avoid a store->llm import.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is one append-only CallMessage log entry.
type Message struct {
	ID            string
	CallID        string
	Role          MessageRole
	Content       string
	ToolName      string
	ToolArguments string
	ToolResult    string
	ToolCallID    string
	TimestampMs   int64
	SttLatencyMs  int
	LlmLatencyMs  int
	TtsLatencyMs  int
}

// Store is the persistence port the session orchestrator and registry
// depend on. Implementations must be safe for concurrent use across
// sessions; a single Store instance is shared process-wide.
type Store interface {
	// UpsertCall inserts or fully replaces the Call row identified by
	// call.ID.
	UpsertCall(ctx context.Context, call Call) error

	// GetCall retrieves a Call by id. Returns *errs.NotFoundError when
	// absent.
	GetCall(ctx context.Context, callID string) (*Call, error)

	// GetCallByCarrierID retrieves a Call by the carrier-native call id
	// stashed in CarrierMeta["carrierCallId"] at admission. Returns
	// *errs.NotFoundError when absent.
	GetCallByCarrierID(ctx context.Context, carrierCallID string) (*Call, error)

	// AppendMessage appends one CallMessage to the call's log.
	AppendMessage(ctx context.Context, msg Message) error

	// ListMessages returns a call's messages in chronological order.
	ListMessages(ctx context.Context, callID string) ([]Message, error)

	// Close releases any resources held by the store.
	Close() error
}
