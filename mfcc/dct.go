package mfcc

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const defaultEnergyFloor = 1e-10

// DCTMatrix returns the size x size orthonormal DCT-II basis.
// Row k is sqrt(2/size)*cos(pi*k*(2n+1)/(2*size)); row 0 carries an extra 1/sqrt(2).
func DCTMatrix(size int) *mat.Dense {
	m := mat.NewDense(size, size, nil)
	scale := math.Sqrt(2 / float64(size))
	for k := range size {
		for n := range size {
			v := scale * math.Cos(math.Pi*float64(k)*float64(2*n+1)/float64(2*size))
			if k == 0 {
				v /= math.Sqrt2
			}
			m.Set(k, n, v)
		}
	}
	return m
}

// InverseDCTMatrix returns the size x size DCT-III basis that inverts DCTMatrix.
// Column 0 carries the extra 1/sqrt(2).
func InverseDCTMatrix(size int) *mat.Dense {
	m := mat.NewDense(size, size, nil)
	scale := math.Sqrt(2 / float64(size))
	for n := range size {
		for k := range size {
			v := scale * math.Cos(math.Pi*float64(k)*float64(2*n+1)/float64(2*size))
			if k == 0 {
				v /= math.Sqrt2
			}
			m.Set(n, k, v)
		}
	}
	return m
}

// CepstralTransform converts Mel energies to truncated cepstra and back.
// It is immutable and safe for concurrent use.
type CepstralTransform struct {
	numBands int
	numCep   int
	floor    float64
	logFloor float64
	// first numCep rows of DCTMatrix(numBands)
	forward *mat.Dense
	inverse *mat.Dense
}

// NewCepstralTransform builds the transform for numBands energies truncated
// to numCep coefficients. Energies below floor are clamped before the log;
// floor <= 0 selects the default.
func NewCepstralTransform(numBands, numCep int, floor float64) (*CepstralTransform, error) {
	if numBands < 1 {
		return nil, configErrorf("num bands must be positive, got %d", numBands)
	}
	if numCep < 1 || numCep > numBands {
		return nil, configErrorf("num cepstra must be in [1, %d], got %d", numBands, numCep)
	}
	if floor <= 0 || math.IsNaN(floor) {
		floor = defaultEnergyFloor
	}

	full := DCTMatrix(numBands)
	forward := mat.NewDense(numCep, numBands, nil)
	forward.Copy(full.Slice(0, numCep, 0, numBands))

	return &CepstralTransform{
		numBands: numBands,
		numCep:   numCep,
		floor:    floor,
		logFloor: math.Log(floor),
		forward:  forward,
		inverse:  InverseDCTMatrix(numBands),
	}, nil
}

// NumBands returns the expected energy vector length.
func (c *CepstralTransform) NumBands() int { return c.numBands }

// NumCoefficients returns the cepstral vector length.
func (c *CepstralTransform) NumCoefficients() int { return c.numCep }

// Forward returns the first numCep DCT-II coefficients of log(melEnergies).
func (c *CepstralTransform) Forward(melEnergies []float64) ([]float64, error) {
	out := make([]float64, c.numCep)
	logBuf := make([]float64, c.numBands)
	if err := c.ForwardInto(out, melEnergies, logBuf); err != nil {
		return nil, err
	}
	return out, nil
}

// ForwardInto is Forward writing into dst, using logBuf (numBands long) as scratch.
func (c *CepstralTransform) ForwardInto(dst, melEnergies, logBuf []float64) error {
	if len(melEnergies) != c.numBands {
		return shapeErrorf("got %d mel energies, transform expects %d", len(melEnergies), c.numBands)
	}
	if len(dst) != c.numCep {
		return shapeErrorf("cepstral buffer has %d coefficients, want %d", len(dst), c.numCep)
	}
	if len(logBuf) != c.numBands {
		return shapeErrorf("log buffer has %d elements, want %d", len(logBuf), c.numBands)
	}
	for i, e := range melEnergies {
		// NaN fails the comparison and is floored as well.
		if !(e > c.floor) {
			logBuf[i] = c.logFloor
			continue
		}
		logBuf[i] = math.Log(e)
	}
	out := mat.NewVecDense(c.numCep, dst)
	out.MulVec(c.forward, mat.NewVecDense(c.numBands, logBuf))
	return nil
}

// Inverse zero-pads cepstra to targetLength and applies the DCT-III of that
// size. With targetLength == NumBands and no truncation this recovers
// log(melEnergies); otherwise it is a smoothed envelope.
func (c *CepstralTransform) Inverse(cepstra []float64, targetLength int) ([]float64, error) {
	basis, err := c.inverseBasis(targetLength)
	if err != nil {
		return nil, err
	}
	out := make([]float64, targetLength)
	if err := inverseInto(out, cepstra, basis); err != nil {
		return nil, err
	}
	return out, nil
}

// InverseMatrix returns a copy of the DCT-III basis for targetLength.
func (c *CepstralTransform) InverseMatrix(targetLength int) (*mat.Dense, error) {
	basis, err := c.inverseBasis(targetLength)
	if err != nil {
		return nil, err
	}
	if basis == c.inverse {
		return mat.DenseCopyOf(basis), nil
	}
	return basis, nil
}

// inverseBasis returns the cached basis when targetLength equals NumBands.
// Callers must not modify it.
func (c *CepstralTransform) inverseBasis(targetLength int) (*mat.Dense, error) {
	if targetLength < 1 {
		return nil, configErrorf("invalid inverse length: %d", targetLength)
	}
	if targetLength == c.numBands {
		return c.inverse, nil
	}
	return InverseDCTMatrix(targetLength), nil
}

func inverseInto(dst, cepstra []float64, basis *mat.Dense) error {
	size, _ := basis.Dims()
	if len(cepstra) > size {
		return shapeErrorf("cannot invert %d cepstra into %d values", len(cepstra), size)
	}
	if len(dst) != size {
		return shapeErrorf("inverse buffer has %d elements, want %d", len(dst), size)
	}
	if len(cepstra) == 0 {
		clear(dst)
		return nil
	}
	// Only the first len(cepstra) columns meet nonzero input.
	out := mat.NewVecDense(size, dst)
	out.MulVec(basis.Slice(0, size, 0, len(cepstra)), mat.NewVecDense(len(cepstra), cepstra))
	return nil
}

// Lifter returns the sinusoidal lifter weights 1 + (L/2)*sin(pi*i/L) for
// numCep coefficients. L <= 0 yields all ones.
func Lifter(numCep int, l float64) []float64 {
	w := make([]float64, numCep)
	for i := range w {
		w[i] = 1
		if l > 0 {
			w[i] += l / 2 * math.Sin(math.Pi*float64(i)/l)
		}
	}
	return w
}
