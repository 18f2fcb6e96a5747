package dnf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Kernel is a lateral-interaction weighting profile over the spatial grid.
type Kernel interface {
	// Weight returns the interaction strength at distance x.
	Weight(x float64) float64
	String() string
}

// OscillatoryKernel is a*e^{-b|x|}(b*sin|alpha*x| + cos(alpha*x)).
// With Alpha == 0 it reduces to a pure exponential decay.
type OscillatoryKernel struct {
	A, B, Alpha float64
}

func (k OscillatoryKernel) Weight(x float64) float64 {
	ax := math.Abs(x)
	return k.A * math.Exp(-k.B*ax) * (k.B*math.Sin(math.Abs(k.Alpha*x)) + math.Cos(k.Alpha*x))
}

func (k OscillatoryKernel) String() string {
	return fmt.Sprintf("oscillatory(a=%g b=%g alpha=%g)", k.A, k.B, k.Alpha)
}

// GaussianKernel is a*e^{-x^2/(2 sigma^2)}.
type GaussianKernel struct {
	Amplitude, Sigma float64
}

func (k GaussianKernel) Weight(x float64) float64 {
	return gaussian(x, 0, k.Amplitude, k.Sigma)
}

func (k GaussianKernel) String() string {
	return fmt.Sprintf("gaussian(a=%g sigma=%g)", k.Amplitude, k.Sigma)
}

// MexicanHatKernel is local excitation minus broader inhibition minus a
// constant global inhibition.
type MexicanHatKernel struct {
	AmpExc, SigmaExc float64
	AmpInh, SigmaInh float64
	GlobalInh        float64
}

func (k MexicanHatKernel) Weight(x float64) float64 {
	return gaussian(x, 0, k.AmpExc, k.SigmaExc) - gaussian(x, 0, k.AmpInh, k.SigmaInh) - k.GlobalInh
}

func (k MexicanHatKernel) String() string {
	return fmt.Sprintf("mexican_hat(a_e=%g s_e=%g a_i=%g s_i=%g g=%g)",
		k.AmpExc, k.SigmaExc, k.AmpInh, k.SigmaInh, k.GlobalInh)
}

func gaussian(x, center, amplitude, width float64) float64 {
	d := x - center
	return amplitude * math.Exp(-d*d/(2*width*width))
}

// convolver computes the lateral interaction dx * ifftshift(ifft(fft(f) * w_hat))
// with periodic boundaries. The kernel spectrum is computed once and never
// changes; the scratch buffers are reused every step.
type convolver struct {
	fft      *fourier.FFT
	spectrum []complex128
	dx       float64

	coeff []complex128
	seq   []float64
}

func newConvolver(k Kernel, grid SpatialGrid) *convolver {
	n := grid.Len()
	w := make([]float64, n)
	for i, x := range grid.X {
		w[i] = k.Weight(x)
	}
	fft := fourier.NewFFT(n)
	return &convolver{
		fft:      fft,
		spectrum: fft.Coefficients(nil, w),
		dx:       grid.DX,
		coeff:    make([]complex128, n/2+1),
		seq:      make([]float64, n),
	}
}

// Spectrum returns the non-redundant half of the kernel's spectrum.
func (c *convolver) Spectrum() []complex128 {
	return c.spectrum
}

// convolve writes the lateral-interaction input for output f into dst.
func (c *convolver) convolve(dst, f []float64) []float64 {
	n := len(f)
	if dst == nil {
		dst = make([]float64, n)
	}
	c.fft.Coefficients(c.coeff, f)
	for i := range c.coeff {
		c.coeff[i] *= c.spectrum[i]
	}
	c.fft.Sequence(c.seq, c.coeff)

	// gonum's inverse transform is unnormalised.
	scale := c.dx / float64(n)
	shift := n / 2
	for i := range dst {
		dst[i] = scale * c.seq[(i+shift)%n]
	}
	return dst
}
