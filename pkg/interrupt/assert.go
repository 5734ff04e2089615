package interrupt

import (
	"runtime"
	"strings"
)

// assertMainGoroutine panics if not running on the main goroutine,
// the lifecycle's Run has to own the process exit.
func assertMainGoroutine() {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	if !strings.HasPrefix(string(buf[:n]), "goroutine 1 ") {
		panic("interrupt.Main must be called from the main goroutine (goroutine 1), lifecycle Run owns the exit")
	}
}
