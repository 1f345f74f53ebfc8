//go:build !arenadebug

package arena

const (
	failFast    = false
	poisonOnPop = false
)
