package internal

import (
	"strconv"
	"sync/atomic"
)

// Output modes toggled by CLI flags or baked in via ldflags. Atomic so
// daemon goroutines can read them while a signal handler flips them.
var (
	quietMode   atomic.Bool
	debugMode   atomic.Bool
	verboseMode atomic.Bool
)

// Seeds the mode flags from their ldflags counterparts. rawQuiet,
// rawDebug, and rawVerbose default to "false" when a build does not set
// them; unparseable values leave the mode off.
func init() {
	seed(&quietMode, rawQuiet)
	seed(&debugMode, rawDebug)
	seed(&verboseMode, rawVerbose)
}

func seed(mode *atomic.Bool, raw string) {
	if v, err := strconv.ParseBool(raw); err == nil {
		mode.Store(v)
	}
}

// Enables or disables quiet mode.
func SetQuiet(enabled bool) {
	quietMode.Store(enabled)
}

// Returns true if quiet mode is enabled.
func IsQuiet() bool {
	return quietMode.Load()
}

// Enables or disables debug mode.
func SetDebug(enabled bool) {
	debugMode.Store(enabled)
}

// Returns true if debug mode is enabled.
func IsDebug() bool {
	return debugMode.Load()
}

// Enables or disables verbose logging.
func SetVerbose(enabled bool) {
	verboseMode.Store(enabled)
}

// Returns true if verbose logging is enabled.
func IsVerbose() bool {
	return verboseMode.Load()
}
