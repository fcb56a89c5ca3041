package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic logs a recovered panic with its stack. Call it deferred in
// background jobs so one failing run does not take down the process.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		RecoverPanicValue(logger, r, context)
	}
}

// RecoverPanicValue logs a value already obtained from recover()
func RecoverPanicValue(logger *Logger, r interface{}, context string) {
	logger.WithField("panic", fmt.Sprint(r)).
		WithField("stack", string(debug.Stack())).
		WithField("context", context).
		Error("PANIC recovered")
}
