// Package twilio implements callsystem.Carrier against Twilio's Voice REST
// API and TwiML webhook conventions, bridging inbound/outbound calls to the
// engine's WebSocket media transport via <Connect><Stream>.
package twilio

import (
	"context"
	"fmt"
	"net/url"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/agentplexus/voiceengine/callsystem"
)

var _ callsystem.Carrier = (*Carrier)(nil)

// Carrier speaks Twilio's REST API (outbound dial, hangup, transfer, DTMF)
// and parses/renders its TwiML webhook conventions (inbound ring, status
// callback, media bridge).
type Carrier struct {
	client *twilio.RestClient
	from   string
}

// New constructs a Carrier authenticated with an Account SID/Auth Token
// pair. from is the default caller ID used for outbound Dial calls that
// don't override it.
func New(accountSID, authToken, from string) *Carrier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Carrier{client: client, from: from}
}

func (c *Carrier) Name() string { return "twilio" }

// HandleInboundRing parses Twilio's inbound-call webhook, an
// application/x-www-form-urlencoded body carrying From/To/CallSid.
func (c *Carrier) HandleInboundRing(ctx context.Context, body []byte) (*callsystem.InboundRing, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("twilio: parse inbound webhook: %w", err)
	}
	callSID := values.Get("CallSid")
	if callSID == "" {
		return nil, fmt.Errorf("twilio: inbound webhook missing CallSid")
	}
	return &callsystem.InboundRing{
		CarrierCallID: callSID,
		From:          values.Get("From"),
		To:            values.Get("To"),
		Metadata: map[string]string{
			"accountSid": values.Get("AccountSid"),
			"callerCity": values.Get("CallerCity"),
		},
	}, nil
}

// RenderBridge returns the TwiML that connects the call's media to the
// engine's WebSocket endpoint via <Connect><Stream>, or plays a rejection
// message and hangs up when directive.Reject is set.
func (c *Carrier) RenderBridge(directive callsystem.BridgeDirective) ([]byte, error) {
	if directive.Reject {
		return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Say>This number is not currently configured to take calls.</Say>
    <Hangup/>
</Response>`), nil
	}
	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="%s"/>
    </Connect>
</Response>`, directive.MediaWSURL)
	return []byte(twiml), nil
}

// HandleStatusCallback parses Twilio's call-status webhook.
func (c *Carrier) HandleStatusCallback(ctx context.Context, body []byte) (*callsystem.StatusCallback, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("twilio: parse status webhook: %w", err)
	}
	callSID := values.Get("CallSid")
	if callSID == "" {
		return nil, fmt.Errorf("twilio: status webhook missing CallSid")
	}
	var durationSec int
	fmt.Sscanf(values.Get("CallDuration"), "%d", &durationSec)
	return &callsystem.StatusCallback{
		CarrierCallID: callSID,
		Status:        mapStatus(values.Get("CallStatus")),
		DurationSec:   durationSec,
		ErrorCode:     values.Get("ErrorCode"),
	}, nil
}

func mapStatus(twilioStatus string) callsystem.Status {
	switch twilioStatus {
	case "queued":
		return callsystem.StatusQueued
	case "ringing":
		return callsystem.StatusRinging
	case "in-progress":
		return callsystem.StatusInProgress
	case "completed":
		return callsystem.StatusCompleted
	case "busy":
		return callsystem.StatusBusy
	case "no-answer":
		return callsystem.StatusNoAnswer
	default:
		return callsystem.StatusFailed
	}
}

// Dial places an outbound call via Twilio's Calls REST resource, bridging
// it to the engine's media WebSocket as soon as it's answered.
func (c *Carrier) Dial(ctx context.Context, from, to string, opts callsystem.DialOptions) (string, error) {
	if from == "" {
		from = c.from
	}
	twiml := fmt.Sprintf(`<Response><Connect><Stream url="%s"/></Connect></Response>`, opts.MediaWSURL)

	params := &openapi.CreateCallParams{}
	params.SetFrom(from)
	params.SetTo(to)
	params.SetTwiml(twiml)
	if opts.StatusCallback != "" {
		params.SetStatusCallback(opts.StatusCallback)
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}
	if opts.TimeoutSeconds > 0 {
		params.SetTimeout(opts.TimeoutSeconds)
	}
	if opts.RecordCall {
		params.SetRecord(true)
	}
	if opts.MachineDetect {
		params.SetMachineDetection("Enable")
	}

	resp, err := c.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("twilio: create call: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio: create call: response missing Sid")
	}
	return *resp.Sid, nil
}

// HangUp ends an in-progress call leg by updating it to the "completed"
// status, Twilio's REST convention for terminating a call.
func (c *Carrier) HangUp(ctx context.Context, carrierCallID string) error {
	params := &openapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := c.client.Api.UpdateCall(carrierCallID, params); err != nil {
		return fmt.Errorf("twilio: hang up: %w", err)
	}
	return nil
}

// Transfer redirects an in-progress call leg to destination by pushing new
// TwiML onto the live call. mode only affects whether a warm transfer
// announcement plays first; the underlying REST call is the same either
// way since Twilio has no native warm-transfer primitive.
func (c *Carrier) Transfer(ctx context.Context, carrierCallID, destination string, mode callsystem.TransferMode) error {
	var twiml string
	switch mode {
	case callsystem.TransferWarmSummary, callsystem.TransferWarmMessage:
		twiml = fmt.Sprintf(`<Response><Say>Transferring your call now.</Say><Dial>%s</Dial></Response>`, destination)
	default:
		twiml = fmt.Sprintf(`<Response><Dial>%s</Dial></Response>`, destination)
	}
	params := &openapi.UpdateCallParams{}
	params.SetTwiml(twiml)
	if _, err := c.client.Api.UpdateCall(carrierCallID, params); err != nil {
		return fmt.Errorf("twilio: transfer: %w", err)
	}
	return nil
}

// SendDTMF plays touch-tone digits on an in-progress call leg by pushing
// TwiML with a <Play digits> verb onto the live call.
func (c *Carrier) SendDTMF(ctx context.Context, carrierCallID, digits string) error {
	twiml := fmt.Sprintf(`<Response><Play digits="%s"/></Response>`, digits)
	params := &openapi.UpdateCallParams{}
	params.SetTwiml(twiml)
	if _, err := c.client.Api.UpdateCall(carrierCallID, params); err != nil {
		return fmt.Errorf("twilio: send dtmf: %w", err)
	}
	return nil
}
