package trace

import "github.com/cespare/xxhash/v2"

// NumGeneralColorIDs is the size of the general purpose palette that
// StringColorID hashes into. Named ids follow it.
const NumGeneralColorIDs = 30

// Color ids with a fixed meaning, used for scheduler states.
const (
	RunningColorID = NumGeneralColorIDs + iota
	RunnableColorID
	SleepingColorID
	IOWaitColorID
)

// StringColorID returns a stable color id for s.
func StringColorID(s string) int {
	return int(xxhash.Sum64String(s) % NumGeneralColorIDs)
}
