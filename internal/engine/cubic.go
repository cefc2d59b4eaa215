// Package engine implements the streaming interpolators used for sample
// rate conversion.
package engine

// LinearKernel implements linear (2-point, 1st order) interpolation.
// It is the fastest kernel and the lowest quality one.
type LinearKernel struct{}

// Extent implements Kernel.
func (LinearKernel) Extent() (left, right int) {
	return linearLeft, linearRight
}

// At implements Kernel.
func (LinearKernel) At(hist []float64, i0 int, frac float64) float64 {
	// y = (1-x)*prev + x*next
	return hist[i0] + frac*(hist[i0+1]-hist[i0])
}

// CubicKernel implements cubic (4-point, 3rd order) Hermite interpolation.
type CubicKernel struct{}

// Extent implements Kernel.
func (CubicKernel) Extent() (left, right int) {
	return cubicLeft, cubicRight
}

// At implements Kernel. It uses the formula y = ((a*x + b)*x + c)*x + d
// where x is the fractional position between hist[i0] and hist[i0+1].
func (CubicKernel) At(hist []float64, i0 int, x float64) float64 {
	y0 := hist[i0-1] // oldest
	y1 := hist[i0]
	y2 := hist[i0+1]
	y3 := hist[i0+2] // newest

	coefA := -hermiteCoeff0_5*y0 + hermiteCoeff1_5*y1 - hermiteCoeff1_5*y2 + hermiteCoeff0_5*y3
	coefB := y0 - hermiteCoeff2_5*y1 + 2*y2 - hermiteCoeff0_5*y3
	coefC := -hermiteCoeff0_5*y0 + hermiteCoeff0_5*y2
	coefD := y1

	return ((coefA*x+coefB)*x+coefC)*x + coefD
}
