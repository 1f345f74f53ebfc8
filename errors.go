package arena

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidUsage marks programmer errors. Builds tagged arenadebug panic
	// with the error at the point of detection instead of returning it.
	ErrInvalidUsage = errors.New("arena: invalid usage")

	// ErrExhausted is returned when the backend cannot provide more memory.
	// The arena is left exactly as it was before the failing call.
	ErrExhausted = errors.New("arena: out of memory")

	ErrInvalidAlignment  = errors.WithMessage(ErrInvalidUsage, "alignment must be a power of two no greater than 4096")
	ErrPopPastHead       = errors.WithMessage(ErrInvalidUsage, "pop target lies past the current position")
	ErrForeignPointer    = errors.WithMessage(ErrInvalidUsage, "pointer is not owned by this arena")
	ErrTempOutOfOrder    = errors.WithMessage(ErrInvalidUsage, "temp memory ended out of order")
	ErrReleased          = errors.WithMessage(ErrInvalidUsage, "arena used after Release")
	ErrStrategyInstalled = errors.WithMessage(ErrInvalidUsage, "debug strategy already installed")
	ErrAlreadyUsed       = errors.WithMessage(ErrInvalidUsage, "debug strategy installed after first push")
	ErrGuardUnsupported  = errors.WithMessage(ErrInvalidUsage, "guard strategies need a subsystem with page protection")
	ErrWrongArena        = errors.WithMessage(ErrInvalidUsage, "marker belongs to another arena")
)

// usage reports a programmer error, failing fast when built with arenadebug.
func usage(err error) error {
	if failFast {
		panic(err)
	}
	return err
}
