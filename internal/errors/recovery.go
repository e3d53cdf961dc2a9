// Package errors carries panic recovery for the engine's periodic
// loops. A panic inside one tick becomes a logged error; the loop's
// next tick still runs.
package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError wraps a recovered panic value with the stack captured at
// the recovery point.
type PanicError struct {
	Value any
	Stack string
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", p.Value)
}

// Recover converts an in-flight panic into a PanicError and hands it to
// handle. It must be deferred directly, not called from inside another
// deferred closure: recover only intercepts the panic when invoked from
// the deferred frame itself.
//
//	defer errors.Recover(func(p *errors.PanicError) { ... })
func Recover(handle func(*PanicError)) {
	if r := recover(); r != nil {
		handle(&PanicError{
			Value: r,
			Stack: string(debug.Stack()),
		})
	}
}
