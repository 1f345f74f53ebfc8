package arena

import (
	"github.com/go-kit/log"
)

type options struct {
	logger   log.Logger
	inst     *Instrumentation
	strategy Strategy
}

// Option configures an arena at construction.
type Option func(*options)

// WithLogger sets the logger used for block lifecycle and exhaustion events.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithInstrumentation reports block and exhaustion metrics to inst.
func WithInstrumentation(inst *Instrumentation) Option {
	return func(o *options) {
		o.inst = inst
	}
}

// WithDebug installs a debug strategy before the arena is handed out.
func WithDebug(s Strategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNopLogger()
	}
	return o
}
