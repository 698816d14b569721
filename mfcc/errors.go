package mfcc

import (
	"github.com/pkg/errors"
)

// Error categories. Concrete errors wrap one of these, so callers match with errors.Is.
var (
	// ErrConfiguration reports invalid frequency bounds, counts or windows.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrShape reports mismatched vector or matrix dimensions between stages.
	ErrShape = errors.New("shape mismatch")
	// ErrInsufficientData reports input too short to produce a single frame.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNumericDegeneracy reports collapsed filters when strict filter checking is on.
	ErrNumericDegeneracy = errors.New("numeric degeneracy")
)

func configErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

func shapeErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrShape, format, args...)
}
