package vm

import (
	"context"
	"sync/atomic"

	"github.com/chazu/jsrt/pkg/bytecode"
	"github.com/robertkrimen/otto/ast"
)

// ---------------------------------------------------------------------------
// Interrupts: the one cross-goroutine entry point of a Realm
// ---------------------------------------------------------------------------

// interruptSignal is panicked at a safepoint once an interrupt is seen. It
// is not a script exception, so no catch or finally handler observes it.
type interruptSignal struct {
	cause error
}

type interruptState struct {
	flag  atomic.Bool
	cause atomic.Pointer[error]
}

// Interrupt asks the running script to stop at its next safepoint. It is
// safe to call from any goroutine. An interrupt raised while the realm is
// idle stops the next run as soon as it starts.
func (r *Realm) Interrupt(cause error) {
	if cause != nil {
		r.interrupts.cause.Store(&cause)
	}
	r.interrupts.flag.Store(true)
}

// interrupted reports whether an interrupt is pending.
func (r *Realm) interrupted() bool {
	return r.interrupts.flag.Load()
}

// pollInterrupt is the function-entry safepoint.
func (r *Realm) pollInterrupt() {
	if r.interrupts.flag.Load() {
		r.raiseInterrupt()
	}
}

func (r *Realm) raiseInterrupt() {
	var cause error
	if p := r.interrupts.cause.Swap(nil); p != nil {
		cause = *p
	}
	r.interrupts.flag.Store(false)
	log.Debugf("realm %s: interrupted at depth %d", r.id, len(r.frames))
	panic(interruptSignal{cause: cause})
}

// clearInterrupt drops a pending interrupt without raising it.
func (r *Realm) clearInterrupt() {
	r.interrupts.cause.Store(nil)
	r.interrupts.flag.Store(false)
}

// withContext runs fn with ctx wired to Interrupt. An interrupt fired by
// ctx after fn has finished is discarded.
func (r *Realm) withContext(ctx context.Context, fn func() (Value, error)) (Value, error) {
	if err := ctx.Err(); err != nil {
		return Undefined, &InterruptedError{Cause: context.Cause(ctx)}
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		r.Interrupt(context.Cause(ctx))
		close(fired)
	})
	v, err := fn()
	if !stop() {
		<-fired
		if err == nil {
			r.clearInterrupt()
		}
	}
	return v, err
}

// RunContext is Run with cancellation: when ctx is done the script stops
// at its next safepoint and the run returns an *InterruptedError wrapping
// context.Cause(ctx).
func (r *Realm) RunContext(ctx context.Context, prog *ast.Program) (Value, error) {
	return r.withContext(ctx, func() (Value, error) { return r.Run(prog) })
}

// RunCompiledContext is RunCompiled with cancellation.
func (r *Realm) RunCompiledContext(ctx context.Context, p *bytecode.Program) (Value, error) {
	return r.withContext(ctx, func() (Value, error) { return r.RunCompiled(p) })
}

// CallContext is Call with cancellation.
func (r *Realm) CallContext(ctx context.Context, fn, this Value, args ...Value) (Value, error) {
	return r.withContext(ctx, func() (Value, error) { return r.Call(fn, this, args...) })
}
