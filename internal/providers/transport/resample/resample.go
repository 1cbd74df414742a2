// Package resample converts linear PCM between the fixed sample rates the
// media transport uses. No library in the example corpus performs audio
// resampling, so this is a deliberate stdlib-only exception (see DESIGN.md);
// linear interpolation is accurate enough for speech at these ratios and
// keeps the hot path allocation-light.
package resample

import "encoding/binary"

// PCM16 resamples little-endian signed 16-bit mono PCM from inRate to
// outRate using linear interpolation. Returns in unchanged if the rates
// already match.
func PCM16(in []byte, inRate, outRate int) []byte {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(in) < 2 {
		return in
	}

	inSamples := len(in) / 2
	outSamples := int(int64(inSamples) * int64(outRate) / int64(inRate))
	if outSamples <= 0 {
		return nil
	}

	out := make([]byte, outSamples*2)
	ratio := float64(inSamples-1) / float64(maxInt(outSamples-1, 1))

	for i := 0; i < outSamples; i++ {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		if i0 >= inSamples-1 {
			i0 = inSamples - 2
			if i0 < 0 {
				i0 = 0
			}
		}
		i1 := i0 + 1
		if i1 >= inSamples {
			i1 = inSamples - 1
		}
		frac := srcPos - float64(i0)

		s0 := int16(binary.LittleEndian.Uint16(in[i0*2 : i0*2+2]))
		s1 := int16(binary.LittleEndian.Uint16(in[i1*2 : i1*2+2]))
		interpolated := float64(s0) + (float64(s1)-float64(s0))*frac

		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(interpolated)))
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
