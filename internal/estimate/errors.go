package estimate

import "errors"

// Errors returned by the estimate package.
var (
	// ErrInvalidSignificanceLevel is returned when alpha is outside (0, 1).
	ErrInvalidSignificanceLevel = errors.New("invalid significance level: alpha must be in (0, 1)")

	// ErrUnknownCandidate is returned when a requested candidate is not tracked.
	ErrUnknownCandidate = errors.New("unknown candidate")
)

// ValidateAlpha rejects significance levels outside the open interval (0, 1).
func ValidateAlpha(alpha float64) error {
	if !(alpha > 0 && alpha < 1) {
		return ErrInvalidSignificanceLevel
	}
	return nil
}
