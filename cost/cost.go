// Package cost implements the per-call cost model: a provider-agnostic
// flat rate per minute of audio processed by each pipeline stage, in
// cents.
package cost

import (
	"math"
	"time"

	"github.com/agentplexus/voiceengine/store"
)

const (
	sttCentsPerMinute = 0.6
	llmCentsPerMinute = 1.5
	ttsCentsPerMinute = 1.5
)

// Breakdown computes the stt/llm/tts/total cost in cents for the given
// durations of audio processed by each stage.
func Breakdown(sttAudio, llmAudio, ttsAudio time.Duration) store.CostBreakdown {
	stt := roundCents(sttAudio, sttCentsPerMinute)
	llm := roundCents(llmAudio, llmCentsPerMinute)
	tts := roundCents(ttsAudio, ttsCentsPerMinute)
	return store.CostBreakdown{
		STT:   stt,
		LLM:   llm,
		TTS:   tts,
		Total: stt + llm + tts,
	}
}

func roundCents(d time.Duration, centsPerMinute float64) int {
	minutes := d.Minutes()
	return int(math.Round(minutes * centsPerMinute))
}
