// Package recording writes the two per-call PCM audio blobs:
// {callId}-user.pcm and {callId}-assistant.pcm, one append buffer per
// direction, flushed to the recordings directory at call end.
package recording

import (
	"fmt"
	"os"
	"path/filepath"
)

// Recorder accumulates a single call's user and assistant audio in memory
// and flushes both to disk once, at teardown step).
type Recorder struct {
	dir    string
	callID string

	user      []byte
	assistant []byte
}

// New returns a Recorder that will write under dir when Flush is called.
func New(dir, callID string) *Recorder {
	return &Recorder{dir: dir, callID: callID}
}

// AppendUser appends a frame to the user-audio buffer.
func (r *Recorder) AppendUser(frame []byte) {
	r.user = append(r.user, frame...)
}

// AppendAssistant appends a frame to the assistant-audio buffer.
func (r *Recorder) AppendAssistant(frame []byte) {
	r.assistant = append(r.assistant, frame...)
}

// Flush writes both buffers to {dir}/{callId}-user.pcm and
// {dir}/{callId}-assistant.pcm and returns their paths. It is safe to call
// more than once; subsequent calls re-write the same files with whatever
// has accumulated since.
func (r *Recorder) Flush() (userURI, assistantURI string, err error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("recording: create dir: %w", err)
	}

	userPath := filepath.Join(r.dir, fmt.Sprintf("%s-user.pcm", r.callID))
	assistantPath := filepath.Join(r.dir, fmt.Sprintf("%s-assistant.pcm", r.callID))

	if err := os.WriteFile(userPath, r.user, 0o644); err != nil {
		return "", "", fmt.Errorf("recording: write user blob: %w", err)
	}
	if err := os.WriteFile(assistantPath, r.assistant, 0o644); err != nil {
		return "", "", fmt.Errorf("recording: write assistant blob: %w", err)
	}
	return userPath, assistantPath, nil
}
