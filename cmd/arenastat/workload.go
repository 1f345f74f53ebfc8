package main

import (
	"context"
	"io"

	"github.com/alecthomas/units"
	"github.com/go-kit/log"
	"github.com/pkg/errors"

	"github.com/pavanmanishd/arena/v2"
	"github.com/pavanmanishd/arena/v2/ring"
	"github.com/pavanmanishd/arena/v2/scratch"
	"github.com/pavanmanishd/arena/v2/vmem"
)

type workload struct {
	Iterations int
	Pushes     int
	PushSize   units.Base2Bytes
	Align      int
	Scratch    bool
}

type result struct {
	Scopes        int
	Pushes        int
	BytesPushed   uint64
	Peak          arena.ArenaMetrics
	PingPongBytes int
}

// run opens one temp memory per iteration, pushes into it and ends it again,
// tracking the largest footprint seen.
func (w workload) run(ctx context.Context, logger log.Logger, sys vmem.Subsystem, cfg arena.Config, opts ...arena.Option) (res result, err error) {
	if w.PushSize < 0 || w.Align <= 0 {
		return res, errors.Errorf("invalid workload: push size %v, alignment %d", w.PushSize, w.Align)
	}
	a, err := cfg.New(sys, opts...)
	if err != nil {
		return res, errors.Wrap(err, "create arena")
	}
	defer func() {
		if relErr := a.Release(); err == nil {
			err = relErr
		}
	}()

	size := uintptr(w.PushSize)
	for i := 0; i < w.Iterations; i++ {
		t := a.BeginTemp()
		for j := 0; j < w.Pushes; j++ {
			if _, err := a.Push(size, uintptr(w.Align), true); err != nil {
				_ = t.End()
				return res, errors.Wrapf(err, "scope %d push %d", i, j)
			}
			res.Pushes++
			res.BytesPushed += uint64(size)
		}
		if m := a.Metrics(); m.Capacity > res.Peak.Capacity || m.SizeInUse > res.Peak.SizeInUse {
			res.Peak = m
		}
		if err := t.End(); err != nil {
			return res, errors.Wrapf(err, "end scope %d", i)
		}
		res.Scopes++
	}
	if cfg.Debug == arena.StrategyLogging {
		a.DumpAllocations(logger)
	}

	if w.Scratch {
		job := scratch.Logged(logger, "pingpong", func(ctx context.Context) error {
			n, err := w.pingPong(ctx)
			res.PingPongBytes = n
			return err
		})
		if err := <-scratch.Go(ctx, sys, cfg, job, opts...); err != nil {
			return res, err
		}
	}
	return res, nil
}

// pingPong grows a buffer through the scratch pair carried by ctx, then
// streams it through a ring allocated from the scratch arena not holding the
// buffer. It returns the number of bytes that made it through the ring.
func (w workload) pingPong(ctx context.Context) (int, error) {
	tc, ok := scratch.FromContext(ctx)
	if !ok {
		return 0, errors.New("no scratch pair in context")
	}
	pp, err := scratch.NewPingPong(tc, 64)
	if err != nil {
		return 0, err
	}
	defer pp.Reset()

	chunk := make([]byte, int(w.PushSize))
	for i := range chunk {
		chunk[i] = byte(i)
	}
	for j := 0; j < w.Pushes; j++ {
		if err := pp.Append(chunk); err != nil {
			return 0, err
		}
	}

	tmp := tc.GetScratch(pp.Arena())
	t := tmp.BeginTemp()
	defer t.End()
	rb, err := ring.NewIn(tmp, 4096)
	if err != nil {
		return 0, err
	}
	src, dst := pp.Bytes(), make([]byte, 512)
	total := 0
	for len(src) > 0 || rb.SpaceLeftToRead() > 0 {
		n, werr := rb.Write(src)
		if werr != nil && !errors.Is(werr, ring.ErrFull) {
			return total, werr
		}
		src = src[n:]
		for rb.SpaceLeftToRead() > 0 {
			m, rerr := rb.Read(dst)
			if rerr != nil && rerr != io.EOF {
				return total, rerr
			}
			total += m
		}
	}
	return total, nil
}
