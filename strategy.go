package arena

import (
	"fmt"
	"unsafe"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/pavanmanishd/arena/v2/vmem"
)

// Strategy selects the debug instrumentation that replaces an arena's push
// and pop paths. At most one strategy is installed per arena.
type Strategy int

const (
	StrategyNone Strategy = iota
	// StrategyLogging records the call site and size of every live allocation.
	StrategyLogging
	// StrategyOverflowGuard gives every push its own mapping followed by an
	// inaccessible page, so writes past the end fault immediately.
	StrategyOverflowGuard
	// StrategyUnderflowGuard is StrategyOverflowGuard with the guard page
	// placed before the allocation.
	StrategyUnderflowGuard
)

var strategyNames = map[Strategy]string{
	StrategyNone:           "none",
	StrategyLogging:        "logging",
	StrategyOverflowGuard:  "overflow_guard",
	StrategyUnderflowGuard: "underflow_guard",
}

func (s Strategy) String() string {
	if n, ok := strategyNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	if _, ok := strategyNames[s]; !ok {
		return nil, errors.Errorf("unknown debug strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	v, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStrategy maps a strategy name back to its value.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return StrategyNone, errors.Errorf("unknown debug strategy %q", name)
}

// strategy replaces the arena's push and pop paths wholesale.
type strategy interface {
	push(a *Arena, size, align uintptr, clear bool) (unsafe.Pointer, error)
	popTo(a *Arena, head unsafe.Pointer) error
	// release frees whatever the strategy allocated on its own, leaving the
	// arena in the state its backend expects.
	release(a *Arena) error
	// base returns the state of the backend's newest block.
	base(a *Arena) ([]byte, uintptr)
	kind() Strategy
}

// EnableDebugLogging installs StrategyLogging. It must be called before the
// first push.
func (a *Arena) EnableDebugLogging() error { return a.install(StrategyLogging) }

// EnableOverflowGuard installs StrategyOverflowGuard. It must be called before
// the first push.
func (a *Arena) EnableOverflowGuard() error { return a.install(StrategyOverflowGuard) }

// EnableUnderflowGuard installs StrategyUnderflowGuard. It must be called
// before the first push.
func (a *Arena) EnableUnderflowGuard() error { return a.install(StrategyUnderflowGuard) }

// Strategy returns the installed debug strategy.
func (a *Arena) Strategy() Strategy {
	if a.strategy == nil {
		return StrategyNone
	}
	return a.strategy.kind()
}

func (a *Arena) install(s Strategy) error {
	if s == StrategyNone {
		return nil
	}
	if a.released {
		return usage(ErrReleased)
	}
	if a.strategy != nil {
		return usage(errors.Wrapf(ErrStrategyInstalled, "%s is installed, cannot add %s", a.strategy.kind(), s))
	}
	if a.pushed {
		return usage(errors.Wrap(ErrAlreadyUsed, s.String()))
	}

	switch s {
	case StrategyLogging:
		a.strategy = &allocationLog{}
	case StrategyOverflowGuard, StrategyUnderflowGuard:
		if a.sys == nil {
			return usage(errors.Wrap(ErrGuardUnsupported, "arena has no subsystem"))
		}
		p, ok := vmem.AsProtector(a.sys)
		if !ok {
			return usage(ErrGuardUnsupported)
		}
		a.strategy = &guard{sys: a.sys, protector: p, underflow: s == StrategyUnderflowGuard}
	default:
		return usage(errors.Wrapf(ErrInvalidUsage, "unknown debug strategy %d", int(s)))
	}
	level.Debug(a.logger).Log("msg", "installed debug strategy", "strategy", s)
	return nil
}
