package vad

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmFrame(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestNew_SensitivityOutOfRangeFallsBackToBaseline(t *testing.T) {
	t.Parallel()

	require.Equal(t, float64(BaselineThreshold), New(0).Threshold)
	require.Equal(t, float64(BaselineThreshold), New(-0.5).Threshold)
	require.Equal(t, float64(BaselineThreshold), New(1.5).Threshold)
}

func TestNew_HigherSensitivityLowersThreshold(t *testing.T) {
	t.Parallel()

	low := New(0.1)
	high := New(0.9)
	assert.Greater(t, low.Threshold, high.Threshold)
	assert.GreaterOrEqual(t, high.Threshold, float64(minThreshold))
	assert.LessOrEqual(t, low.Threshold, float64(maxThreshold))
}

func TestDetector_HasVoice(t *testing.T) {
	t.Parallel()

	d := &Detector{Threshold: 200}

	silence := pcmFrame(0, 1, -1, 2, -2)
	assert.False(t, d.HasVoice(silence))

	loud := pcmFrame(5000, -5000, 4800, -4800)
	assert.True(t, d.HasVoice(loud))
}

func TestDetector_HasVoice_EmptyFrame(t *testing.T) {
	t.Parallel()

	d := &Detector{Threshold: 200}
	assert.False(t, d.HasVoice(nil))
	assert.False(t, d.HasVoice([]byte{0x01}))
}
