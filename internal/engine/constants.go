package engine

// Cubic (Hermite) interpolation constants
const (
	// Hermite interpolation coefficients for smooth C1 continuity
	// Formula: y = ((a*x + b)*x + c)*x + d
	// coefA := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	hermiteCoeff0_5 = 0.5
	hermiteCoeff1_5 = 1.5
	hermiteCoeff2_5 = 2.5

	// The 4-point window reaches one sample back and two ahead.
	cubicLeft  = 1
	cubicRight = 2
)

// Linear interpolation constants
const (
	linearLeft  = 0
	linearRight = 1
)

// Windowed-sinc constants
const (
	// sincPhases is the number of fractional offsets in the coefficient table.
	sincPhases = 256

	// sincAttenuation is the stopband attenuation of the Kaiser window in dB.
	sincAttenuation = 100.0

	// defaultRolloff is the passband edge relative to Nyquist.
	defaultRolloff = 0.95

	maxSincZeroCrossings = 256
)
