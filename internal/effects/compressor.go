package effects

import "math"

// Compressor implements basic dynamic range compression.
type Compressor struct {
	threshold float32
	ratio     float32
	attack    float32 // coefficient
	release   float32 // coefficient
	makeup    float32
	env       float32
}

// NewCompressor creates a compressor effect.
// thresholdDB: threshold in dB (e.g., -20)
// ratio: compression ratio (e.g., 4 for 4:1)
// attackMs, releaseMs: envelope follower times
// makeupDB: makeup gain in dB
func NewCompressor(sampleRate int, thresholdDB, ratio, attackMs, releaseMs, makeupDB float32) *Compressor {
	if ratio < 1 {
		ratio = 1
	}
	return &Compressor{
		threshold: dbToGain(thresholdDB),
		ratio:     ratio,
		attack:    follower(attackMs, sampleRate),
		release:   follower(releaseMs, sampleRate),
		makeup:    dbToGain(makeupDB),
	}
}

func dbToGain(db float32) float32 {
	return float32(math.Pow(10, float64(db)/20))
}

// follower is the one-pole coefficient for a time constant; zero or negative
// times follow instantly.
func follower(ms float32, sampleRate int) float32 {
	n := float64(ms) * float64(sampleRate) / 1000.0
	if n <= 0 {
		return 1
	}
	return float32(1.0 - math.Exp(-1.0/n))
}

func (c *Compressor) Process(x float32) float32 {
	a := float32(math.Abs(float64(x)))
	if a > c.env {
		c.env += c.attack * (a - c.env)
	} else {
		c.env += c.release * (a - c.env)
	}
	return x * c.gain(c.env) * c.makeup
}

func (c *Compressor) gain(env float32) float32 {
	if env <= c.threshold || c.threshold <= 0 {
		return 1.0
	}
	over := env / c.threshold
	return float32(math.Pow(float64(over), float64(1.0/c.ratio-1)))
}

func (c *Compressor) Reset() {
	c.env = 0
}
