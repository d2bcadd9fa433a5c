package kernel

import (
	"bytes"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
)

var stderrMu sync.Mutex

func (k *Kernel) reportError(name string, err error) {
	if k.cfg.onError != nil {
		callErrorHandlerNoPanic(k.cfg.onError, name, ErrorInfo{Name: name, Err: err})
		return
	}
	reportErrorToStderr(name, err)
}

func (k *Kernel) reportPanic(name string, p any) {
	stack := debug.Stack()
	if k.cfg.onPanic != nil {
		callPanicHandlerNoPanic(k.cfg.onPanic, name, PanicInfo{Name: name, Value: p, Stack: stack})
		return
	}
	reportPanicToStderr(name, p, stack)
}

func reportPanicToStderr(name string, v any, stack []byte) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "kernel: panic")
	if name != "" {
		fmt.Fprintf(&buf, " task=%q", name)
	}
	fmt.Fprintf(&buf, " value=%v\n", v)
	if len(stack) > 0 {
		_, _ = buf.Write(stack)
		if stack[len(stack)-1] != '\n' {
			_ = buf.WriteByte('\n')
		}
	}

	stderrMu.Lock()
	_, _ = os.Stderr.Write(buf.Bytes())
	stderrMu.Unlock()
}

func reportErrorToStderr(name string, err error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "kernel: error")
	if name != "" {
		fmt.Fprintf(&buf, " task=%q", name)
	}
	fmt.Fprintf(&buf, " err=%v\n", err)

	stderrMu.Lock()
	_, _ = os.Stderr.Write(buf.Bytes())
	stderrMu.Unlock()
}

func callErrorHandlerNoPanic(h ErrorHandler, name string, info ErrorInfo) {
	defer func() {
		if p := recover(); p != nil {
			reportPanicToStderr(name, fmt.Sprintf("kernel: error handler panicked: %v", p), debug.Stack())
		}
	}()
	h(info)
}

func callPanicHandlerNoPanic(h PanicHandler, name string, info PanicInfo) {
	defer func() {
		if p := recover(); p != nil {
			reportPanicToStderr(name, fmt.Sprintf("kernel: panic handler panicked: %v", p), debug.Stack())
		}
	}()
	h(info)
}

func callHookNoPanic[T any](h func(T), info T) {
	defer func() {
		if p := recover(); p != nil {
			reportPanicToStderr("", fmt.Sprintf("kernel: hook panicked: %v", p), debug.Stack())
		}
	}()
	h(info)
}
