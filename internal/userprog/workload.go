package userprog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Workload is a list of programs to start under the root process.
//
//	name: demo
//	programs:
//	  - program: schedtest
//	  - program: rwtest
//	    args: ["10"]
//	  - program: script
//	    count: 2
//	    script: |
//	      sys.print("hello from " + sys.pid());
type Workload struct {
	Name     string `yaml:"name"`
	Programs []Job  `yaml:"programs"`
}

// Job is one entry of a workload.
type Job struct {
	Program string   `yaml:"program"`
	Args    []string `yaml:"args,omitempty"`
	Script  string   `yaml:"script,omitempty"` // Source for the script program
	Count   int      `yaml:"count,omitempty"`  // Copies to start (default 1)
}

// argv returns the arguments passed to the program builder.
func (j Job) argv() []string {
	if j.Script != "" {
		return append([]string{j.Script}, j.Args...)
	}
	return j.Args
}

// LoadWorkload reads a workload file.
func LoadWorkload(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload %s: %w", path, err)
	}
	w, err := ParseWorkload(data)
	if err != nil {
		return nil, fmt.Errorf("workload %s: %w", path, err)
	}
	return w, nil
}

// ParseWorkload decodes and validates a workload document.
func ParseWorkload(data []byte) (*Workload, error) {
	var w Workload
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse workload: %w", err)
	}
	if len(w.Programs) == 0 {
		return nil, fmt.Errorf("workload has no programs")
	}
	for i, j := range w.Programs {
		if j.Program == "" {
			return nil, fmt.Errorf("programs[%d]: program is required", i)
		}
		if _, ok := builtins[j.Program]; !ok {
			return nil, fmt.Errorf("programs[%d]: %w %q", i, ErrUnknownProgram, j.Program)
		}
		if j.Count < 0 {
			return nil, fmt.Errorf("programs[%d]: count must be >= 0, got %d", i, j.Count)
		}
	}
	return &w, nil
}

// Launch builds every job of w and spawns it. It returns the pids started
// before the first failure.
func (w *Workload) Launch(sp Spawner, env Env) ([]int, error) {
	var pids []int
	for i, j := range w.Programs {
		n := j.Count
		if n == 0 {
			n = 1
		}
		for c := 0; c < n; c++ {
			pid, err := Launch(sp, env, j.Program, j.argv())
			if err != nil {
				return pids, fmt.Errorf("programs[%d] %s: %w", i, j.Program, err)
			}
			pids = append(pids, pid)
		}
	}
	env.Logger.Info("workload launched", "name", w.Name, "procs", len(pids))
	return pids, nil
}
