package arena

// Usage reports the blocks and bytes currently held by the arena, including
// blocks owned by a guard strategy.
func (a *Arena) Usage() Usage {
	if a.released {
		return Usage{}
	}
	mem, pos := a.mem, a.pos
	var u Usage
	if g, ok := a.strategy.(*guard); ok {
		for i := len(g.chain) - 1; i >= 0; i-- {
			u.Blocks++
			u.Capacity += len(g.chain[i].mem)
			u.InUse += int(pos)
			pos = g.chain[i].prevPos
		}
		mem, pos = g.base(a)
	}
	b := a.backend.usage(mem, pos)
	u.Blocks += b.Blocks
	u.Capacity += b.Capacity
	u.InUse += b.InUse
	return u
}

// SizeInUse returns the total number of bytes currently allocated in the arena.
// This includes internal fragmentation due to alignment.
func (a *Arena) SizeInUse() int {
	return a.Usage().InUse
}

// NumBlocks returns the number of blocks currently held by the arena.
func (a *Arena) NumBlocks() int {
	return a.Usage().Blocks
}

// Capacity returns the total capacity (in bytes) of all blocks in the arena.
func (a *Arena) Capacity() int {
	return a.Usage().Capacity
}

// Utilization returns the ratio of bytes in use to total capacity (0.0 to 1.0).
// Returns 0.0 if the arena has no capacity.
func (a *Arena) Utilization() float64 {
	return a.Usage().utilization()
}

// MinBlockSize returns the smallest block a growing arena reserves, or 0 for
// arenas that never grow.
func (a *Arena) MinBlockSize() int {
	if g, ok := a.backend.(*growingBackend); ok {
		return int(g.minBlockSize)
	}
	return 0
}

// Metrics returns a snapshot of arena statistics.
func (a *Arena) Metrics() ArenaMetrics {
	u := a.Usage()
	return ArenaMetrics{
		Backend:      a.backend.name(),
		Strategy:     a.Strategy(),
		SizeInUse:    u.InUse,
		Capacity:     u.Capacity,
		NumBlocks:    u.Blocks,
		MinBlockSize: a.MinBlockSize(),
		Utilization:  u.utilization(),
	}
}

// ArenaMetrics contains statistical information about an arena.
type ArenaMetrics struct {
	Backend      string   // "fixed", "growing" or "caller_owned"
	Strategy     Strategy // Installed debug strategy
	SizeInUse    int      // Bytes currently allocated
	Capacity     int      // Total capacity in bytes
	NumBlocks    int      // Number of blocks
	MinBlockSize int      // Minimum block size of growing arenas
	Utilization  float64  // Ratio of used to total capacity (0.0-1.0)
}

func (u Usage) utilization() float64 {
	if u.Capacity == 0 {
		return 0
	}
	return float64(u.InUse) / float64(u.Capacity)
}
