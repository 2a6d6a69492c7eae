package util

import (
	"runtime/debug"
)

// Stack returns the stack trace of the calling goroutine as string, for logging of recovered panics
func Stack() string {
	return string(debug.Stack())
}
