package audio

import "math"

// RMS returns the root-mean-square energy of a block of samples.
func RMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}

	var s float64
	for _, x := range f {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s / float64(len(f)))
}

// Level maps an RMS value to an activity level in [0,1]. Energy under the
// noise floor reads as zero, everything else is scaled by sensitivity and
// clamped.
func Level(rms, noiseFloor, sensitivity float64) float64 {
	if rms < noiseFloor {
		return 0
	}
	return math.Min(1, rms*sensitivity)
}
