package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/agentplexus/voiceengine/agent"
	"github.com/agentplexus/voiceengine/callsystem"
	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/internal/providers/transport/ws"
	"github.com/agentplexus/voiceengine/knowledge"
	"github.com/agentplexus/voiceengine/llm"
	"github.com/agentplexus/voiceengine/quota"
	"github.com/agentplexus/voiceengine/recording"
	"github.com/agentplexus/voiceengine/registry"
	"github.com/agentplexus/voiceengine/security"
	"github.com/agentplexus/voiceengine/session"
	"github.com/agentplexus/voiceengine/stt"
	"github.com/agentplexus/voiceengine/store"
	"github.com/agentplexus/voiceengine/telemetry"
	"github.com/agentplexus/voiceengine/tool"
	"github.com/agentplexus/voiceengine/tts"
)

// Engine wires every resolved collaborator the session orchestrator and
// HTTP/WS surfaces depend on. It is constructed once at startup.
type Engine struct {
	cfg Config

	assistantsByID    map[string]agent.Assistant
	assistantsByPhone map[string]agent.Assistant

	stt *stt.Client
	llm *llm.Client
	tts *tts.Client

	store     store.Store
	quota     quota.Limiter
	carrier   callsystem.Carrier
	registry  *registry.Registry
	knowledge knowledge.Client

	mediaTokens *security.MediaTokenIssuer
	apiKeys     *security.APIKeySigner

	metrics *telemetry.Metrics
	logger  zerolog.Logger

	recordingsDir    string
	egressSampleRate int
}

// router builds the chi router exposing carrier webhooks, the media
// WebSocket, and registry lifecycle endpoints.
func (e *Engine) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(e.requestLogger)

	r.Get("/healthz", e.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/webhooks/twilio", func(r chi.Router) {
		r.Post("/inbound", e.handleTwilioInbound)
		r.Post("/status", e.handleTwilioStatus)
	})

	r.Get("/ws/media/{callId}", e.handleMediaWS)

	r.Route("/calls/{callId}", func(r chi.Router) {
		r.Get("/", e.handleGetCall)
		r.Post("/end", e.handleEndCall)
	})

	return r
}

func (e *Engine) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		e.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func (e *Engine) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleTwilioInbound renders the TwiML that bridges an inbound call to
// this engine's media WebSocket, or rejects it when no assistant answers
// the dialled number.
func (e *Engine) handleTwilioInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	ring, err := e.carrier.HandleInboundRing(r.Context(), body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	assistant, ok := e.assistantsByPhone[ring.To]
	if !ok {
		twiml, _ := e.carrier.RenderBridge(callsystem.BridgeDirective{Reject: true})
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write(twiml)
		return
	}

	callID := uuid.NewString()
	if err := e.admitCall(r.Context(), callID, assistant, store.KindInbound, ring.From, ring.To, ring.CarrierCallID); err != nil {
		twiml, _ := e.carrier.RenderBridge(callsystem.BridgeDirective{Reject: true})
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write(twiml)
		return
	}

	wsURL := fmt.Sprintf("%s/ws/media/%s?token=%s", e.cfg.Server.PublicWSURL, callID, e.mustIssueMediaToken(callID))
	twiml, err := e.carrier.RenderBridge(callsystem.BridgeDirective{MediaWSURL: wsURL})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(twiml)
}

func (e *Engine) mustIssueMediaToken(callID string) string {
	token, err := e.mediaTokens.Issue(callID)
	if err != nil {
		e.logger.Error().Err(err).Str("callId", callID).Msg("issue media token")
		return ""
	}
	return token
}

// handleTwilioStatus maps a carrier status callback onto the Call row it
// was admitted under. Carriers retry these webhooks, so a callback that
// repeats the status already on record is a no-op.
func (e *Engine) handleTwilioStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	cb, err := e.carrier.HandleStatusCallback(r.Context(), body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	e.logger.Info().Str("carrierCallId", cb.CarrierCallID).Str("status", string(cb.Status)).Msg("carrier status callback")

	call, err := e.store.GetCallByCarrierID(r.Context(), cb.CarrierCallID)
	if err != nil {
		var notFound *errs.NotFoundError
		if errors.As(err, &notFound) {
			// No admitted call matches this carrier id; nothing to update.
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	newStatus := store.CallStatus(cb.Status)
	if call.Status == newStatus {
		w.WriteHeader(http.StatusOK)
		return
	}
	call.Status = newStatus

	switch newStatus {
	case store.StatusCompleted, store.StatusFailed, store.StatusNoAnswer, store.StatusBusy:
		if call.EndedAt.IsZero() {
			call.EndedAt = time.Now()
		}
		if cb.DurationSec > 0 {
			call.DurationSec = cb.DurationSec
		}
		call.EndedReason = string(newStatus)
	}

	if err := e.store.UpsertCall(r.Context(), *call); err != nil {
		e.logger.Error().Err(err).Str("carrierCallId", cb.CarrierCallID).Msg("persist carrier status callback")
		http.Error(w, "persist status", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// admitCall checks the org's concurrent-call quota, reserves it, and
// pre-creates a queued Call row a newly constructed Session will pick up
// once the WS leg connects.
func (e *Engine) admitCall(ctx context.Context, callID string, assistant agent.Assistant, kind store.CallKind, from, to, carrierCallID string) error {
	if e.cfg.Telephony.ConcurrentCallCap > 0 {
		if err := e.quota.Acquire(ctx, assistant.ID, e.cfg.Telephony.ConcurrentCallCap); err != nil {
			return err
		}
	}
	return e.store.UpsertCall(ctx, store.Call{
		ID:          callID,
		AssistantID: assistant.ID,
		Kind:        kind,
		Status:      store.StatusQueued,
		From:        from,
		To:          to,
		CarrierMeta: map[string]string{"carrierCallId": carrierCallID},
		StartedAt:   time.Now(),
	})
}

// handleMediaWS upgrades the WebSocket, verifies the media token, and runs
// the session to completion on this goroutine.
func (e *Engine) handleMediaWS(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	token := r.URL.Query().Get("token")
	if err := e.mediaTokens.Verify(token, callID); err != nil {
		http.Error(w, "invalid media token", http.StatusUnauthorized)
		return
	}

	call, err := e.store.GetCall(r.Context(), callID)
	if err != nil {
		http.Error(w, "unknown call", http.StatusNotFound)
		return
	}
	assistant, ok := e.assistantsByID[call.AssistantID]
	if !ok {
		http.Error(w, "assistant no longer configured", http.StatusGone)
		return
	}

	conn, err := ws.Accept(w, r, callID)
	if err != nil {
		e.logger.Error().Err(err).Str("callId", callID).Msg("ws upgrade failed")
		return
	}

	// Ingress is fixed regardless of leg: the session resamples whatever a
	// client actually sends down to this rate before buffering. Egress may
	// pick either supported rate — 24kHz for the web widget, 16kHz for
	// telephony legs bridged at the carrier boundary.
	egressRate := e.egressSampleRate
	if call.Kind != store.KindWeb {
		egressRate = 16000
	}

	toolExecutor, err := e.toolExecutorFor(assistant)
	if err != nil {
		e.logger.Error().Err(err).Str("callId", callID).Msg("build tool executor")
		_ = conn.Close()
		return
	}

	sess := session.New(session.Config{
		CallID:           callID,
		OrgID:            assistant.ID,
		Assistant:        assistant,
		Conn:             conn,
		STT:              e.stt,
		LLM:              e.llm,
		TTS:              e.tts,
		Tools:            toolExecutor,
		Store:            e.store,
		Recorder:          recording.New(e.recordingsDir, callID),
		IngressSampleRate: 16000,
		EgressSampleRate:  egressRate,
		Logger:            e.logger.With().Str("callId", callID).Logger(),
		Metrics:          e.metrics,
		OnEnd: func(callID, reason string) {
			e.registry.Deregister(callID)
			if e.cfg.Telephony.ConcurrentCallCap > 0 {
				_ = e.quota.Release(context.Background(), assistant.ID)
			}
		},
	})
	e.registry.Register(sess, callID)

	if err := sess.Start(r.Context()); err != nil {
		e.logger.Error().Err(err).Str("callId", callID).Msg("session ended with error")
	}
}

func (e *Engine) toolExecutorFor(assistant agent.Assistant) (*tool.Executor, error) {
	return tool.New(assistant.Tools, e.knowledge)
}

func (e *Engine) handleGetCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	snap, err := e.registry.Info(callID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *Engine) handleEndCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	if err := e.registry.EndCall(r.Context(), callID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the engine's typed errors to HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	var notFound *errs.NotFoundError
	var quotaErr *errs.QuotaExceededError
	var validationErr *errs.ValidationError
	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &quotaErr):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
