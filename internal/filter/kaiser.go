// Package filter provides the Kaiser windowed-sinc tables used for
// band-limited rate conversion.
package filter

import (
	"fmt"
	"math"

	"github.com/tphakala/simd/f64"
)

// BesselI0 computes the modified Bessel function of the first kind, order zero: I₀(x).
//
// Reference: Abramowitz & Stegun, "Handbook of Mathematical Functions".
func BesselI0(x float64) float64 {
	ax := math.Abs(x)

	if ax < besselSmallArgThreshold {
		// I₀(x) ≈ 1 + (x/2)² * P(t) where t = (x/3.75)²
		t := x / besselSmallArgThreshold
		t *= t
		return 1.0 + t*(besselI0Coeff1+t*(besselI0Coeff2+t*(besselI0Coeff3+
			t*(besselI0Coeff4+t*(besselI0Coeff5+t*besselI0Coeff6)))))
	}

	// I₀(x) ≈ (eˣ / √x) * P(t) where t = 3.75/x
	t := besselSmallArgThreshold / ax
	result := besselI0AsympCoeff0 + t*(besselI0AsympCoeff1+t*(besselI0AsympCoeff2+
		t*(besselI0AsympCoeff3+t*(besselI0AsympCoeff4+t*(besselI0AsympCoeff5+
			t*(besselI0AsympCoeff6+t*(besselI0AsympCoeff7+t*besselI0AsympCoeff8)))))))
	return math.Exp(ax) * result / math.Sqrt(ax)
}

// KaiserBeta computes the Kaiser window β parameter from the desired
// stopband attenuation in dB.
func KaiserBeta(attenuation float64) float64 {
	if attenuation > kaiserAttHigh {
		return kaiserBetaHighCoeff1 * (attenuation - kaiserBetaHighOffset)
	} else if attenuation >= kaiserAttMedium {
		delta := attenuation - kaiserAttMedium
		return kaiserBetaMediumCoeff1*math.Pow(delta, kaiserBetaMediumPower) + kaiserBetaMediumCoeff2*delta
	}
	return 0.0
}

// kaiser evaluates a Kaiser window of half width 1 at x in [-1, 1].
func kaiser(x, beta, i0Beta float64) float64 {
	if x <= -1 || x >= 1 {
		return 0
	}
	return BesselI0(beta*math.Sqrt(1-x*x)) / i0Beta
}

// sinc is the normalized sinc function sin(πx)/(πx).
func sinc(x float64) float64 {
	if math.Abs(x) < sincZeroThreshold {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// SincTable holds a lowpass kernel sampled at Phases+1 fractional offsets.
//
// Row p is the kernel for an output position p/Phases of a sample past an
// input sample i0; tap k weighs input sample i0-(ZeroCrossings-1)+k.
type SincTable struct {
	ZeroCrossings int
	Phases        int
	Cutoff        float64

	rows [][]float64
}

// NewSincTable designs a Kaiser windowed-sinc table. cutoff is relative to
// the input Nyquist frequency (1.0 = no band limiting beyond Nyquist).
// Every row is normalized to unity DC gain.
func NewSincTable(zeroCrossings, phases int, cutoff, attenuation float64) (*SincTable, error) {
	if zeroCrossings < minZeroCrossings || zeroCrossings > maxZeroCrossings {
		return nil, fmt.Errorf("zero crossings %d out of range [%d, %d]",
			zeroCrossings, minZeroCrossings, maxZeroCrossings)
	}
	if phases < minPhases || phases > maxPhases {
		return nil, fmt.Errorf("phases %d out of range [%d, %d]", phases, minPhases, maxPhases)
	}
	if cutoff <= 0 || cutoff > 1 {
		return nil, fmt.Errorf("cutoff %v out of range (0, 1]", cutoff)
	}

	beta := KaiserBeta(attenuation)
	i0Beta := BesselI0(beta)
	taps := 2 * zeroCrossings
	half := float64(zeroCrossings)

	rows := make([][]float64, phases+1)
	for p := range rows {
		frac := float64(p) / float64(phases)
		row := make([]float64, taps)
		for k := range row {
			d := float64(k-(zeroCrossings-1)) - frac
			row[k] = cutoff * sinc(cutoff*d) * kaiser(d/half, beta, i0Beta)
		}
		if sum := f64.Sum(row); sum != 0 {
			f64.Scale(row, row, 1/sum)
		}
		rows[p] = row
	}

	return &SincTable{
		ZeroCrossings: zeroCrossings,
		Phases:        phases,
		Cutoff:        cutoff,
		rows:          rows,
	}, nil
}

// Taps returns the kernel length.
func (t *SincTable) Taps() int {
	return 2 * t.ZeroCrossings
}

// Coefficients writes the kernel for fractional offset frac in [0, 1) into
// dst, linearly interpolating between the two nearest rows.
func (t *SincTable) Coefficients(dst []float64, frac float64) {
	x := frac * float64(t.Phases)
	p := int(x)
	if p >= t.Phases {
		p = t.Phases - 1
	}
	mu := x - float64(p)
	lo, hi := t.rows[p], t.rows[p+1]
	for k := range dst[:len(lo)] {
		dst[k] = lo[k] + mu*(hi[k]-lo[k])
	}
}
