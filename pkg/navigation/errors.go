package navigation

import "errors"

// Validation and precondition errors returned by the mode-entry operations.
var (
	ErrInvalidLatitude  = errors.New("latitude must be within [-90, 90]")
	ErrInvalidLongitude = errors.New("longitude must be within [-180, 180]")
	ErrInvalidSpeed     = errors.New("speed must be within [0, 100] percent")
	ErrInvalidHeading   = errors.New("heading must be within [0, 360)")
	ErrInvalidRadius    = errors.New("radius must be positive")
	ErrInvalidDuration  = errors.New("duration must not be negative")
	ErrNoPositionFix    = errors.New("no position fix available")
)

// ErrorKind tags an operation result for the command layer.
type ErrorKind string

const (
	KindOK         ErrorKind = "ok"
	KindValidation ErrorKind = "validation"
	KindNoFix      ErrorKind = "no_position_fix"
	KindActuator   ErrorKind = "actuator"
)

// KindOf classifies an error returned by a Controller operation.
// Anything that is not a validation or fix error came from the actuator.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrNoPositionFix):
		return KindNoFix
	case errors.Is(err, ErrInvalidLatitude),
		errors.Is(err, ErrInvalidLongitude),
		errors.Is(err, ErrInvalidSpeed),
		errors.Is(err, ErrInvalidHeading),
		errors.Is(err, ErrInvalidRadius),
		errors.Is(err, ErrInvalidDuration):
		return KindValidation
	default:
		return KindActuator
	}
}
