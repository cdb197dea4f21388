package userprog

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/me/procsim/internal/kernel"
	"github.com/me/procsim/pkg/model"
)

func buildScript(_ Env, args []string) (kernel.Program, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: script <source> [args...]")
	}
	return Script(args[0], args[1:])
}

// Script compiles a JavaScript program. The source runs with two globals:
// args, the string arguments, and sys, the system-call interface of the
// process running it. A child created with sys.fork(fn) runs fn in a
// fresh runtime of its own, so it sees sys and args but none of the
// parent's variables.
func Script(src string, args []string) (kernel.Program, error) {
	prg, err := goja.Compile("script", src, false)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}
	return func(s *kernel.Sys) {
		if err := runScript(s, prg, args); err != nil {
			s.Errorf("%v", err)
		}
	}, nil
}

// runScript executes prg on a new runtime bound to s. The runtime is
// interrupted when the kernel stops so a script stuck in a loop without
// system calls cannot outlive it.
func runScript(s *kernel.Sys, prg *goja.Program, args []string) error {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := bindSys(vm, s, args); err != nil {
		return err
	}

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-s.Kernel().Done():
			vm.Interrupt("kernel stopped")
		case <-finished:
		}
	}()

	if _, err := vm.RunProgram(prg); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil
		}
		return fmt.Errorf("JavaScript error: %w", err)
	}
	return nil
}

// childSource turns the argument of sys.fork into a script: a function is
// called by its source text, a string is run as is.
func childSource(v goja.Value) (string, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", fmt.Errorf("fork: missing child body")
	}
	if _, ok := goja.AssertFunction(v); ok {
		return "(" + v.String() + ")()", nil
	}
	if src, ok := v.Export().(string); ok {
		return src, nil
	}
	return "", fmt.Errorf("fork: child body must be a function or a string")
}

func bindSys(vm *goja.Runtime, s *kernel.Sys, args []string) error {
	argv := make([]any, len(args))
	for i, a := range args {
		argv[i] = a
	}
	if err := vm.Set("args", argv); err != nil {
		return fmt.Errorf("set args: %w", err)
	}

	sys := map[string]any{
		"pid":    s.PID,
		"name":   s.Name,
		"uptime": s.Uptime,
		"killed": s.Killed,
		"print": func(msg string) {
			s.Printf("%s\n", msg)
		},
		"fork": func(body goja.Value) (int, error) {
			src, err := childSource(body)
			if err != nil {
				return -1, err
			}
			child, err := goja.Compile("child", src, false)
			if err != nil {
				return -1, fmt.Errorf("fork: %w", err)
			}
			return s.Fork(func(cs *kernel.Sys) {
				if err := runScript(cs, child, args); err != nil {
					cs.Errorf("%v", err)
				}
			})
		},
		"wait":           s.Wait,
		"kill":           s.Kill,
		"exit":           s.Exit,
		"yield":          s.Yield,
		"sleep":          s.Sleep,
		"spin":           s.BusyWaitTicks,
		"createRealtime": s.CreateRealtime,
		"changeQueue": func(pid int, class string) error {
			cl, ok := model.ParseClass(class)
			if !ok {
				return fmt.Errorf("changeQueue: %w %q", model.ErrInvalidClass, class)
			}
			return s.ChangeQueue(pid, cl)
		},
		"ps": func() []model.ProcSnapshot {
			return s.Snapshot()
		},
		"printProcessInfo": s.PrintProcessInfo,
	}
	if err := vm.Set("sys", sys); err != nil {
		return fmt.Errorf("set sys: %w", err)
	}
	return nil
}
