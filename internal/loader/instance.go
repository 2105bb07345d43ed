package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/signalnine/stratgate/internal/platform"
)

// cancelGrace is how long Run waits for a cancelled thread to unwind
// before abandoning it.
const cancelGrace = time.Second

// Instance is one fresh execution of a candidate bound to one stub.
type Instance struct {
	h      *Handle
	stub   *platform.Stub
	thread *starlark.Thread
	self   *State
	def    *Definition
}

// NewInstance prepares an instance. Nothing runs until Boot.
func (h *Handle) NewInstance(stub *platform.Stub) *Instance {
	thread := &starlark.Thread{
		Name:  h.src.Name,
		Print: func(_ *starlark.Thread, msg string) { stub.Alert(msg) },
	}
	if h.opts.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(h.opts.MaxSteps)
	}
	return &Instance{h: h, stub: stub, thread: thread, self: NewState()}
}

func (i *Instance) Stub() *platform.Stub { return i.stub }

func (i *Instance) State() *State { return i.self }

// Steps is the interpreter step count. Only meaningful once Run returned.
func (i *Instance) Steps() uint64 { return i.thread.ExecutionSteps() }

// Cancel stops the instance's thread at its next step. Safe to call from
// any goroutine.
func (i *Instance) Cancel(reason string) { i.thread.Cancel(reason) }

func (i *Instance) init() (starlark.StringDict, error) {
	predeclared := i.stub.Predeclared()
	predeclared[strategyBuiltin.Name()] = strategyBuiltin
	globals, err := i.h.prog.Init(i.thread, predeclared)
	globals.Freeze()
	if err != nil {
		return nil, &HookError{Hook: hookModule, Err: err}
	}
	return globals, nil
}

// Boot executes the module top level with this instance's stub bound.
func (i *Instance) Boot() error {
	globals, err := i.init()
	if err != nil {
		return err
	}
	def, ok := globals[i.h.global].(*Definition)
	if !ok {
		return &HookError{Hook: hookModule, Err: fmt.Errorf("global %s no longer holds a Strategy", i.h.global)}
	}
	i.def = def
	return nil
}

func (i *Instance) Initialize() error { return i.Call(HookInitialize) }

func (i *Instance) HandleData() error { return i.Call(HookHandleData) }

// Call invokes a hook, passing self when the hook declares a parameter.
func (i *Instance) Call(hook string) error {
	if i.def == nil {
		return &HookError{Hook: hook, Err: errors.New("instance not booted")}
	}
	fn, ok := i.def.Hook(hook)
	if !ok {
		return &HookError{Hook: hook, Err: fmt.Errorf("strategy has no %s hook", hook)}
	}
	var args starlark.Tuple
	if fn.NumParams() > 0 {
		args = starlark.Tuple{i.self}
	}
	if _, err := starlark.Call(i.thread, fn, args, nil); err != nil {
		return &HookError{Hook: hook, Err: err}
	}
	return nil
}

// Run executes fn on its own goroutine. Panics become PanicError. When
// ctx ends first the thread is cancelled and ErrTimeout returned; a
// thread that does not unwind within the grace period is abandoned.
func (i *Instance) Run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r}
			}
		}()
		done <- fn()
	}()

	select {
	case err := <-done:
		if isCancelled(err) {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return err
	case <-ctx.Done():
		i.Cancel("timeout")
		select {
		case <-done:
		case <-time.After(cancelGrace):
		}
		return fmt.Errorf("%w: exceeded deadline", ErrTimeout)
	}
}

// isCancelled reports a thread stopped by Cancel, including the step
// budget which cancels with "too many steps".
func isCancelled(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Starlark computation cancelled")
}
