// Package arena implements stack-discipline region allocators (memory arenas).
//
// # Overview
//
// An arena hands out memory by bumping a position inside the block it is
// currently filling and reclaims memory only by resetting that position to
// one observed earlier. There is no per-object free.
//
// Three constructors pick where blocks come from:
//
//   - NewFixedSize reserves one block up front and never grows.
//   - NewGrowing chains independently reserved blocks of at least a minimum
//     size and releases them again when popping crosses a block boundary.
//   - NewFixedSizeInBlock wraps memory owned by the caller.
//
// Blocks are obtained through a vmem.Subsystem, normally vmem.NewOS().
//
// # Basic Usage
//
//	a, err := arena.NewGrowing(vmem.NewOS(), 0) // default block size
//	if err != nil {
//		return err
//	}
//	defer a.Release()
//
//	buf := a.AllocBytes(1024)
//	p := arena.New[Point](a)
//	ints := arena.MakeSlice[int64](a, 100)
//
// # Temp Memory and Markers
//
// BeginTemp and End reclaim everything pushed between them. Temp memories on
// one arena must end in reverse order; ending them out of order fails with
// ErrTempOutOfOrder. Markers use the same reset path without the ordering
// check, for reset points that outlive a function.
//
//	t := a.BeginTemp()
//	scratch := a.AllocBytes(4096)
//	...
//	t.End()
//
// # Errors
//
// Exhaustion is reported as an error wrapping ErrExhausted and leaves the arena
// untouched. Programmer errors wrap ErrInvalidUsage. Building with the
// arenadebug tag turns them into panics at the point of detection and
// poison-fills popped memory.
//
// # Debug Strategies
//
// WithDebug installs one of StrategyLogging, StrategyOverflowGuard or
// StrategyUnderflowGuard when the arena is created. The guard strategies give
// every push its own mapping next to an inaccessible page so out-of-bounds
// writes fault at the faulting instruction.
//
// # Thread Safety
//
// An Arena is not safe for concurrent use. Give each goroutine its own arenas;
// package scratch provides a per-goroutine pair of scratch arenas.
//
// # Memory Layout
//
// Values stored in an arena may live outside the Go heap, so they must not
// contain Go pointers. Pushed addresses are aligned by address, not by offset,
// so alignment holds for caller-owned blocks at any base address.
//
// # Metrics and Monitoring
//
// Metrics returns a usage snapshot, and WithInstrumentation reports block
// lifecycle events to Prometheus:
//
//	metrics := a.Metrics()
//	fmt.Printf("Utilization: %.2f%%\n", metrics.Utilization*100)
//	fmt.Printf("Memory in use: %d bytes\n", metrics.SizeInUse)
//	fmt.Printf("Total capacity: %d bytes\n", metrics.Capacity)
package arena
