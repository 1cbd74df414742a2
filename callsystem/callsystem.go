// Package callsystem defines the Telephony Control Adapter contract: one
// object per supported carrier that speaks that carrier's REST and webhook
// conventions while projecting them onto the engine's internal
// Call lifecycle.
package callsystem

import (
	"context"
	"time"
)

// Direction indicates which side placed the call.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
	Web      Direction = "web"
)

// Status mirrors the Call.status values 
type Status string

const (
	StatusQueued     Status = "queued"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNoAnswer   Status = "no-answer"
	StatusBusy       Status = "busy"
)

// InboundRing is the normalized shape of a carrier's inbound-ring webhook,
// after adapter translation from the carrier-native payload.
type InboundRing struct {
	CarrierCallID string
	From          string
	To            string
	Metadata      map[string]string
}

// BridgeDirective tells the carrier how to connect the call's media to the
// engine. For Twilio-style carriers this becomes TwiML; other carriers may
// render the equivalent in their own webhook response format.
type BridgeDirective struct {
	// MediaWSURL is the ws:// or wss:// URL the carrier should stream audio
	// to and from).
	MediaWSURL string

	// Reject, when true, instructs the carrier to play an error prompt and
	// hang up instead of bridging (no assistant configured for the dialled
	// number).
	Reject bool
}

// StatusCallback is the normalized shape of a carrier's call-status
// webhook.
type StatusCallback struct {
	CarrierCallID string
	Status        Status
	DurationSec   int
	ErrorCode     string
}

// TransferMode mirrors agent.TransferMode, duplicated here to avoid an
// import cycle between callsystem and agent.
type TransferMode string

const (
	TransferBlind       TransferMode = "blind"
	TransferWarmSummary TransferMode = "warm-summary"
	TransferWarmMessage TransferMode = "warm-message"
)

// Carrier is implemented once per telephony provider (Twilio, etc). All
// methods take a carrier-native call id, except InboundRing/StatusCallback
// which take the carrier's raw webhook payload bytes.
type Carrier interface {
	// Name identifies the carrier ("twilio", ...).
	Name() string

	// HandleInboundRing parses a carrier-native inbound-ring webhook body
	// and normalizes it. The caller is responsible for looking up the
	// configured assistant for ring.To and building the BridgeDirective.
	HandleInboundRing(ctx context.Context, body []byte) (*InboundRing, error)

	// RenderBridge returns the carrier-native webhook response body that
	// implements directive.
	RenderBridge(directive BridgeDirective) ([]byte, error)

	// HandleStatusCallback parses a carrier-native status-callback webhook
	// body and normalizes it.
	HandleStatusCallback(ctx context.Context, body []byte) (*StatusCallback, error)

	// Dial places an outbound call and returns the carrier's call id.
	Dial(ctx context.Context, from, to string, opts DialOptions) (carrierCallID string, err error)

	// HangUp ends an in-progress call leg.
	HangUp(ctx context.Context, carrierCallID string) error

	// Transfer redirects an in-progress call leg to a new destination.
	Transfer(ctx context.Context, carrierCallID, destination string, mode TransferMode) error

	// SendDTMF plays touch-tone digits on an in-progress call leg.
	SendDTMF(ctx context.Context, carrierCallID, digits string) error
}

// DialOptions configures an outbound Dial.
type DialOptions struct {
	MediaWSURL      string
	StatusCallback  string
	TimeoutSeconds  int
	RecordCall      bool
	MachineDetect   bool
}

// ErrNoAssistant is the sentinel for a dialled number with no configured
// inbound assistant. The engine's inbound webhook handler does not return
// it; it renders a BridgeDirective{Reject: true} directly.
var ErrNoAssistant = errNoAssistant{}

type errNoAssistant struct{}

func (errNoAssistant) Error() string { return "callsystem: no assistant configured for number" }

// callTimeout is a conservative default for carrier REST calls that don't
// specify their own deadline.
const callTimeout = 15 * time.Second

// DefaultCallTimeout returns callTimeout for adapters that need a baseline
// context deadline when the caller hasn't set one.
func DefaultCallTimeout() time.Duration { return callTimeout }
