package resample

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesToPCM(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func pcmToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func TestPCM16_SameRateReturnsInputUnchanged(t *testing.T) {
	t.Parallel()

	in := samplesToPCM([]int16{1, 2, 3, 4})
	out := PCM16(in, 16000, 16000)
	assert.Equal(t, in, out)
}

func TestPCM16_UpsampleDoublesLength(t *testing.T) {
	t.Parallel()

	in := samplesToPCM([]int16{0, 1000, 2000, 3000, 4000})
	out := PCM16(in, 8000, 16000)
	require.Len(t, out, len(in)*2)

	outSamples := pcmToSamples(out)
	assert.Equal(t, int16(0), outSamples[0])
	assert.Equal(t, int16(4000), outSamples[len(outSamples)-1])
}

func TestPCM16_DownsampleHalvesLength(t *testing.T) {
	t.Parallel()

	in := samplesToPCM([]int16{0, 1000, 2000, 3000, 4000, 5000, 6000, 8000})
	out := PCM16(in, 16000, 8000)
	require.Len(t, out, len(in)/2)
}

func TestPCM16_InvalidRatesReturnInputUnchanged(t *testing.T) {
	t.Parallel()

	in := samplesToPCM([]int16{1, 2, 3})
	assert.Equal(t, in, PCM16(in, 0, 16000))
	assert.Equal(t, in, PCM16(in, 16000, 0))
}

func TestPCM16_TooShortForOneSamplePassesThrough(t *testing.T) {
	t.Parallel()

	in := []byte{0x01}
	assert.Equal(t, in, PCM16(in, 8000, 16000))
}
