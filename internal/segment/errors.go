package segment

import "errors"

// Profile-scoped failure kinds. Each aborts the pipeline for a single
// profile only; the batch runner recovers them and continues.
var (
	// ErrInsufficientData means too few usable client rows remained after
	// exclusions, or the exclusion rate itself was too high.
	ErrInsufficientData = errors.New("segment: insufficient data")

	// ErrModelFit means the factor-analysis decomposition failed to
	// converge or the input had no usable variance.
	ErrModelFit = errors.New("segment: model fit failed")

	// ErrDegenerateClustering means no candidate cluster count produced a
	// partition without an empty or singleton cluster.
	ErrDegenerateClustering = errors.New("segment: degenerate clustering")

	// ErrPersistence means the atomic write of a completed run failed.
	// The run is discarded; the caller may retry externally.
	ErrPersistence = errors.New("segment: persistence failed")
)

// IsProfileError reports whether err is one of the failure kinds recovered
// at the profile boundary. Any other error is fatal for the whole batch.
func IsProfileError(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrModelFit) ||
		errors.Is(err, ErrDegenerateClustering) ||
		errors.Is(err, ErrPersistence)
}
