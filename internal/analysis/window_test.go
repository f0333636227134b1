// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		in      string
		want    WindowFunc
		wantErr bool
	}{
		{"Hann", Hann, false},
		{"hanning", Hann, false},
		{"", Hann, false},
		{"HAMMING", Hamming, false},
		{"blackman", Blackman, false},
		{"BlackmanNuttall", BlackmanNuttall, false},
		{"bartletthann", BartlettHann, false},
		{"lanczos", Lanczos, false},
		{"nuttall", Nuttall, false},
		{"none", Rectangular, false},
		{"kaiser", Hann, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyWindowHann(t *testing.T) {
	coeffs := make([]float64, 9)
	applyWindow(coeffs, Hann)

	// Symmetric Hann: zero at both ends, one in the middle.
	assert.InDelta(t, 0.0, coeffs[0], 1e-12)
	assert.InDelta(t, 0.0, coeffs[8], 1e-12)
	assert.InDelta(t, 1.0, coeffs[4], 1e-12)
	assert.InDelta(t, 0.5, coeffs[2], 1e-12)
}

func TestApplyWindowUnknownFallsBackToHann(t *testing.T) {
	unknown := make([]float64, 16)
	hann := make([]float64, 16)
	applyWindow(unknown, WindowFunc(99))
	applyWindow(hann, Hann)
	assert.Equal(t, hann, unknown)
	assert.Equal(t, "WindowFunc(99)", WindowFunc(99).String())
}
