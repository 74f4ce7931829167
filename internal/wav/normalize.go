package wav

import "math"

// Normalize returns a copy of b with each channel's DC offset removed and
// the whole buffer scaled so its absolute peak sits at dB relative to full
// scale. A silent buffer is returned unscaled.
func Normalize(b *Buffer, dB float64) *Buffer {
	out := b.Interleaved()
	if b.frames == 0 {
		return newBuffer(out, b.sampleRate, b.channels)
	}

	offsets := make([]float64, b.channels)
	for i, s := range out {
		offsets[i%b.channels] += float64(s)
	}
	for ch := range offsets {
		offsets[ch] /= float64(b.frames)
	}

	var peak float64
	for i, s := range out {
		v := float64(s) - offsets[i%b.channels]
		v = math.Max(-1, math.Min(1, v))
		out[i] = float32(v)
		peak = math.Max(peak, math.Abs(v))
	}
	if peak == 0 {
		return newBuffer(out, b.sampleRate, b.channels)
	}

	scale := math.Pow(10, dB/20) / peak
	for i := range out {
		out[i] = float32(float64(out[i]) * scale)
	}
	return newBuffer(out, b.sampleRate, b.channels)
}
