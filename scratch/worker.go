package scratch

import (
	"context"
	"runtime"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pavanmanishd/arena/v2"
	"github.com/pavanmanishd/arena/v2/vmem"
)

// Go runs fn on a new goroutine locked to its OS thread, with a fresh scratch
// pair built from cfg carried by fn's context. The pair is released when fn
// returns. The returned channel receives fn's error, combined with any
// release error, and is then closed.
func Go(ctx context.Context, sys vmem.Subsystem, cfg arena.Config, fn func(context.Context) error, opts ...arena.Option) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		done <- run(ctx, sys, cfg, fn, opts)
	}()
	return done
}

func run(ctx context.Context, sys vmem.Subsystem, cfg arena.Config, fn func(context.Context) error, opts []arena.Option) (err error) {
	tc, err := newThreadContext(sys, cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, errors.Wrap(tc.Release(), "release scratch arenas"))
	}()
	return fn(NewContext(ctx, tc))
}

func newThreadContext(sys vmem.Subsystem, cfg arena.Config, opts []arena.Option) (*ThreadContext, error) {
	var pair [2]*arena.Arena
	for i := range pair {
		a, err := cfg.New(sys, opts...)
		if err != nil {
			if pair[0] != nil {
				_ = pair[0].Release()
			}
			return nil, errors.Wrapf(err, "create scratch arena %d", i)
		}
		pair[i] = a
	}
	return InitThreadContext(pair[0], pair[1])
}

// Logged wraps fn so that its failure is logged with logger before being
// returned.
func Logged(logger log.Logger, name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil {
			level.Warn(logger).Log("msg", "scratch worker failed", "worker", name, "err", err)
		}
		return err
	}
}
