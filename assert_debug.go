//go:build arenadebug

package arena

// In debug builds usage errors panic where they are detected and reclaimed
// bytes are poisoned so stale reads stand out.
const (
	failFast    = true
	poisonOnPop = true
)
