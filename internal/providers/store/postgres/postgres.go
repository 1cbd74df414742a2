// Package postgres implements store.Store on top of PostgreSQL via pgx/v5,
// for multi-instance deployments where session lifecycle and transcripts
// must survive a process restart.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/store"
)

// Store persists calls and messages to two tables: calls and call_messages.
// Obtain one via New, which opens (but does not migrate) the pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn and returns a Store. Schema migration is the
// operator's responsibility; this package creates no tables.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) UpsertCall(ctx context.Context, call store.Call) error {
	const q = `
		INSERT INTO calls
		    (id, org_id, kind, status, from_number, to_number, assistant_id,
		     carrier_meta, started_at, ended_at, duration_sec, ended_reason,
		     cost_stt, cost_llm, cost_tts, cost_total, user_recording, assistant_recording)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (id) DO UPDATE SET
		    status = EXCLUDED.status,
		    ended_at = EXCLUDED.ended_at,
		    duration_sec = EXCLUDED.duration_sec,
		    ended_reason = EXCLUDED.ended_reason,
		    cost_stt = EXCLUDED.cost_stt,
		    cost_llm = EXCLUDED.cost_llm,
		    cost_tts = EXCLUDED.cost_tts,
		    cost_total = EXCLUDED.cost_total,
		    user_recording = EXCLUDED.user_recording,
		    assistant_recording = EXCLUDED.assistant_recording`

	meta, err := json.Marshal(call.CarrierMeta)
	if err != nil {
		return fmt.Errorf("postgres: marshal carrier_meta: %w", err)
	}

	_, err = s.pool.Exec(ctx, q,
		call.ID, call.OrgID, string(call.Kind), string(call.Status),
		call.From, call.To, call.AssistantID, meta,
		call.StartedAt, nullableTime(call.EndedAt), call.DurationSec, call.EndedReason,
		call.Cost.STT, call.Cost.LLM, call.Cost.TTS, call.Cost.Total,
		call.UserRecording, call.AssistantRecording,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert call: %w", err)
	}
	return nil
}

const callColumns = `id, org_id, kind, status, from_number, to_number, assistant_id,
	       carrier_meta, started_at, ended_at, duration_sec, ended_reason,
	       cost_stt, cost_llm, cost_tts, cost_total, user_recording, assistant_recording`

func (s *Store) GetCall(ctx context.Context, callID string) (*store.Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	c, err := scanCall(s.pool.QueryRow(ctx, q, callID))
	if err == pgx.ErrNoRows {
		return nil, &errs.NotFoundError{Msg: "no call " + callID}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get call: %w", err)
	}
	return c, nil
}

// GetCallByCarrierID resolves a Call from the carrier-native call id
// stashed in the carrier_meta JSONB column's "carrierCallId" key.
func (s *Store) GetCallByCarrierID(ctx context.Context, carrierCallID string) (*store.Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE carrier_meta->>'carrierCallId' = $1`
	c, err := scanCall(s.pool.QueryRow(ctx, q, carrierCallID))
	if err == pgx.ErrNoRows {
		return nil, &errs.NotFoundError{Msg: "no call with carrier id " + carrierCallID}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get call by carrier id: %w", err)
	}
	return c, nil
}

func scanCall(row pgx.Row) (*store.Call, error) {
	var (
		c            store.Call
		kind, status string
		meta         []byte
	)
	err := row.Scan(
		&c.ID, &c.OrgID, &kind, &status, &c.From, &c.To, &c.AssistantID,
		&meta, &c.StartedAt, &c.EndedAt, &c.DurationSec, &c.EndedReason,
		&c.Cost.STT, &c.Cost.LLM, &c.Cost.TTS, &c.Cost.Total,
		&c.UserRecording, &c.AssistantRecording,
	)
	if err != nil {
		return nil, err
	}
	c.Kind = store.CallKind(kind)
	c.Status = store.CallStatus(status)
	_ = json.Unmarshal(meta, &c.CarrierMeta)
	return &c, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg store.Message) error {
	const q = `
		INSERT INTO call_messages
		    (id, call_id, role, content, tool_name, tool_arguments, tool_result,
		     tool_call_id, timestamp_ms, stt_latency_ms, llm_latency_ms, tts_latency_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err := s.pool.Exec(ctx, q,
		msg.ID, msg.CallID, string(msg.Role), msg.Content,
		msg.ToolName, msg.ToolArguments, msg.ToolResult, msg.ToolCallID,
		msg.TimestampMs, msg.SttLatencyMs, msg.LlmLatencyMs, msg.TtsLatencyMs,
	)
	if err != nil {
		return fmt.Errorf("postgres: append message: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, callID string) ([]store.Message, error) {
	const q = `
		SELECT id, call_id, role, content, tool_name, tool_arguments, tool_result,
		       tool_call_id, timestamp_ms, stt_latency_ms, llm_latency_ms, tts_latency_ms
		FROM call_messages WHERE call_id = $1 ORDER BY timestamp_ms`

	rows, err := s.pool.Query(ctx, q, callID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list messages: %w", err)
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Message, error) {
		var m store.Message
		var role string
		if err := row.Scan(
			&m.ID, &m.CallID, &role, &m.Content, &m.ToolName, &m.ToolArguments,
			&m.ToolResult, &m.ToolCallID, &m.TimestampMs, &m.SttLatencyMs,
			&m.LlmLatencyMs, &m.TtsLatencyMs,
		); err != nil {
			return store.Message{}, err
		}
		m.Role = store.MessageRole(role)
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan rows: %w", err)
	}
	return messages, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func nullableTime(t interface{ IsZero() bool }) any {
	if t.IsZero() {
		return nil
	}
	return t
}
