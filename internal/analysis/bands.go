// SPDX-License-Identifier: MIT
package analysis

import "math"

// BinRange maps the frequency range [f0, f1) in Hz to a half-open bin range
// [i0, i1) of the magnitude spectrum. The mapping is total: i0 is
// floor(f0*N/sr) and i1 is ceil(f1*N/sr), both clamped to [0, N/2], with
// i0 <= N/2-1 and i1 > i0. Adjacent frequency ranges therefore overlap by
// at most one bin and never leave a gap. The DC bin only belongs to ranges
// that start at 0 Hz.
func (a *Analyzer) BinRange(f0, f1 float64) (int, int) {
	return binRange(a.sampleRate, a.fftSize, f0, f1)
}

func binRange(sampleRate float64, fftSize int, f0, f1 float64) (int, int) {
	half := fftSize / 2
	n := float64(fftSize)

	i0 := clampBin(math.Floor(f0*n/sampleRate), half)
	i1 := clampBin(math.Ceil(f1*n/sampleRate), half)

	if f0 > 0 && i0 == 0 && half > 1 {
		i0 = 1
	}
	if i0 >= half {
		i0 = half - 1
	}
	if i1 <= i0 {
		i1 = min(i0+1, half)
	}
	return i0, i1
}

// clampBin converts x to an index in [0, half], treating NaN as 0.
func clampBin(x float64, half int) int {
	if !(x > 0) {
		return 0
	}
	if x >= float64(half) {
		return half
	}
	return int(x)
}

// BandEdges returns the bars+1 geometric band edges from the lower to the
// upper analysis frequency. Band b spans edges[b]..edges[b+1].
func (a *Analyzer) BandEdges() []float64 {
	edges := make([]float64, a.bars+1)
	r := a.fMax / a.fMin
	for b := range edges {
		edges[b] = a.fMin * math.Pow(r, float64(b)/float64(a.bars))
	}
	return edges
}

// BandForFrequency returns the index of the band whose edges contain hz, or
// -1 when hz lies outside the analysis range.
func (a *Analyzer) BandForFrequency(hz float64) int {
	if hz < a.fMin || hz >= a.fMax {
		return -1
	}
	b := int(math.Floor(float64(a.bars) * math.Log(hz/a.fMin) / math.Log(a.fMax/a.fMin)))
	return min(max(b, 0), a.bars-1)
}
