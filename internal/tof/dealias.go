package tof

import "math"

// ReduceFrequencies returns the common base of two modulation frequencies
// in MHz: the largest frequency on the register grid (1/16 MHz) that
// divides both. Combined, the two sources behave like one source at this
// frequency, which sets the unambiguous range.
func ReduceFrequencies(f1, f2 float64) float64 {
	a := uint64(math.Round(f1 / freqStep))
	b := uint64(math.Round(f2 / freqStep))
	return float64(gcd(a, b)) * freqStep
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// unambiguousRange returns the distance in metres that one full phase
// cycle spans at fMHz.
func unambiguousRange(fMHz float64) float64 {
	if fMHz <= 0 {
		return 0
	}
	return SpeedOfLight / (2 * fMHz * 1e6)
}
