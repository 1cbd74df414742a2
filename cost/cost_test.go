package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakdown_ZeroDurations(t *testing.T) {
	t.Parallel()

	b := Breakdown(0, 0, 0)
	assert.Equal(t, 0, b.STT)
	assert.Equal(t, 0, b.LLM)
	assert.Equal(t, 0, b.TTS)
	assert.Equal(t, 0, b.Total)
}

func TestBreakdown_ComputesPerStageCents(t *testing.T) {
	t.Parallel()

	b := Breakdown(time.Minute, time.Minute, time.Minute)
	assert.Equal(t, 1, b.STT) // round(0.6)
	assert.Equal(t, 2, b.LLM) // round(1.5) -> math.Round rounds half away from zero
	assert.Equal(t, 2, b.TTS)
	assert.Equal(t, 5, b.Total)
}

func TestBreakdown_SumsToTotal(t *testing.T) {
	t.Parallel()

	b := Breakdown(37*time.Second, 12*time.Second, 90*time.Second)
	assert.Equal(t, b.STT+b.LLM+b.TTS, b.Total)
}
