// Package userprog holds the user programs that can be launched inside the
// simulated kernel: built-in demos of the scheduler and the case-study
// locks, JavaScript scripts, and YAML workload files listing them.
package userprog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/me/procsim/internal/kernel"
	"github.com/me/procsim/pkg/model"
)

// ErrUnknownProgram is returned for a program name with no builder.
var ErrUnknownProgram = errors.New("unknown program")

// Env is shared by every program built from a registry.
type Env struct {
	Logger      *slog.Logger
	DelayTicks  int // Length of the busy phases of schedtest
	ServiceWork int // Loop iterations per haircut (0 = barber default)
}

// DefaultEnv returns sensible defaults.
func DefaultEnv(logger *slog.Logger) Env {
	return Env{Logger: logger, DelayTicks: 20}
}

// Builder turns command-line style arguments into a program.
type Builder func(env Env, args []string) (kernel.Program, error)

var builtins = map[string]Builder{
	"schedtest":  func(env Env, _ []string) (kernel.Program, error) { return SchedTest(env.DelayTicks), nil },
	"barbershop": buildBarbershop,
	"rwtest":     buildRWTest,
	"palindrome": buildPalindrome,
	"findsum":    buildFindSum,
	"script":     buildScript,
}

// Names returns the built-in program names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build returns the program registered under name.
func Build(env Env, name string, args []string) (kernel.Program, error) {
	b, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownProgram, name, strings.Join(Names(), ", "))
	}
	prog, err := b(env, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return prog, nil
}

// Spawner starts a program as a child of the root process.
type Spawner interface {
	Spawn(name string, prog kernel.Program) (int, error)
}

// Launch builds name and spawns it under the root process.
func Launch(sp Spawner, env Env, name string, args []string) (int, error) {
	prog, err := Build(env, name, args)
	if err != nil {
		return -1, err
	}
	return sp.Spawn(name, prog)
}

// Init is the root process: it reaps orphans forever.
func Init() kernel.Program {
	return func(s *kernel.Sys) {
		for {
			if _, err := s.Wait(); errors.Is(err, model.ErrNoChildren) {
				s.Sleep(1)
			}
		}
	}
}
