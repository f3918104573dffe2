package saga

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
)

// invokeBody runs a step, undo or post body. A panic becomes an
// ErrBodyPanic carrying the stack below the panicking frame.
func invokeBody[TData any, I any](ctx context.Context, fn body[TData, I], data TData, info I) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r, debug.Stack())
		}
	}()
	return fn(ctx, data, info)
}

func panicError(recovered any, stack []byte) error {
	source, _ := recovered.(error)
	return derive(ErrBodyPanic, fmt.Sprintf("recovered from panic: %v", recovered), source, map[string]any{
		"panic":      fmt.Sprint(recovered),
		"panic_type": fmt.Sprintf("%T", recovered),
		"stack":      trimPanicFrames(string(stack)),
	})
}

// trimPanicFrames drops the goroutine header, debug.Stack and the runtime
// panic frames, keeping the frames of the code that panicked.
func trimPanicFrames(stack string) string {
	marker := strings.Index(stack, "\npanic(")
	if marker < 0 {
		return stack
	}
	rest := stack[marker+1:]
	// skip the panic( line and its file:line line
	for skip := 0; skip < 2; skip++ {
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return stack
		}
		rest = rest[nl+1:]
	}
	return rest
}
