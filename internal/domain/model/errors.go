package model

import (
	"errors"
	"fmt"
)

// Pipeline failure taxonomy. Every failure a caller observes wraps one of these.
var (
	// ErrProbeDegraded marks a failed duration probe. Non-fatal; duration defaults to 0.
	ErrProbeDegraded = errors.New("duration probe degraded")

	// ErrThumbnailFailed marks a failed poster extraction. Non-fatal.
	ErrThumbnailFailed = errors.New("thumbnail extraction failed")

	// ErrDirectory marks an output root that could not be created or written.
	// Fatal to the whole job; raised before any tier work starts.
	ErrDirectory = errors.New("output directory error")

	// ErrDeliveryFailed marks an output that was produced but could not be
	// uploaded to the content store.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrEncodeFailed is matched by every EncodeFailedError via errors.Is.
	ErrEncodeFailed = errors.New("encode failed")
)

// Input validation errors.
var (
	ErrNoTiers           = errors.New("at least one tier is required")
	ErrDuplicateTier     = errors.New("tier requested more than once")
	ErrUnknownTier       = errors.New("unknown tier")
	ErrInvalidSource     = errors.New("invalid source asset")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// EncodeFailedError reports a failed rendition. It is fatal to its tier only.
type EncodeFailedError struct {
	Tier  Tier
	Cause error
}

func (e *EncodeFailedError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Tier.Label, e.Cause)
}

func (e *EncodeFailedError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, ErrEncodeFailed) match any tier's failure.
func (e *EncodeFailedError) Is(target error) bool {
	return target == ErrEncodeFailed
}

// NewEncodeFailed wraps cause as a tier-scoped encode failure.
func NewEncodeFailed(tier Tier, cause error) *EncodeFailedError {
	return &EncodeFailedError{Tier: tier, Cause: cause}
}

// ErrJobFinalized is returned when a terminal job is mutated.
var ErrJobFinalized = errors.New("job is already finalized")
