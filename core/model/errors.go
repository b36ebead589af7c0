package model

import "errors"

// Error kinds returned by the fleet engine. Callers match them with errors.Is;
// the returned errors wrap one of these with operation context.
var (
	ErrNotFound                 = errors.New("not found")
	ErrInvalidTransition        = errors.New("invalid transition")
	ErrDriverUnavailable        = errors.New("driver unavailable")
	ErrForbidden                = errors.New("forbidden")
	ErrConflictingOdometerEntry = errors.New("conflicting odometer entry")
	ErrInvalidOdometerReading   = errors.New("invalid odometer reading")
	ErrTimeout                  = errors.New("timeout waiting for lock")
	ErrUnavailable              = errors.New("storage unavailable")
	ErrInvalidArgument          = errors.New("invalid argument")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrNotFound, "not_found"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrDriverUnavailable, "driver_unavailable"},
	{ErrForbidden, "forbidden"},
	{ErrConflictingOdometerEntry, "conflicting_odometer_entry"},
	{ErrInvalidOdometerReading, "invalid_odometer_reading"},
	{ErrTimeout, "timeout"},
	{ErrUnavailable, "unavailable"},
	{ErrInvalidArgument, "invalid_argument"},
}

// Kind returns the snake_case name of the error kind wrapped by err, or
// "internal" when err carries none of them.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// IsDomainError reports whether err wraps one of the engine's error kinds.
func IsDomainError(err error) bool {
	return err != nil && Kind(err) != "internal"
}
