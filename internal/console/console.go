// Package console is the diagnostics sink of the simulated kernel. Every
// write is serialised by the print lock so a process table dump is never
// interleaved with other output.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/me/procsim/pkg/model"
)

// Console serialises writes to an underlying writer.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// New returns a console writing to w (stdout if nil).
func New(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

// Printf writes formatted output under the print lock.
func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

// ProcDump writes the process table in the kernel's tabular format.
func (c *Console) ProcDump(tick int, procs []model.ProcSnapshot) {
	var b strings.Builder
	WriteProcTable(&b, tick, procs)

	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.w, b.String())
}

var header = "name           pid     state     class     algorithm    wait time   deadline     run        arrival\n"

// WriteProcTable renders procs as the kernel's process dump.
func WriteProcTable(w io.Writer, tick int, procs []model.ProcSnapshot) {
	fmt.Fprintf(w, "ticks:\t%d\n", tick)
	io.WriteString(w, header)
	io.WriteString(w, strings.Repeat("-", len(header)-1)+"\n")
	for _, p := range procs {
		fmt.Fprintf(w, "%-16s%-7d%-10s%-10s%-15s%-12d%-12d%-12d%d\n",
			p.Name, p.PID, stateLabel(p.State), p.Class.Label(), p.Class.Algorithm(),
			p.WaitingTime, p.DisplayDeadline(), p.RunTicks, p.DisplayArrival())
	}
}

func stateLabel(s model.ProcState) string {
	switch s {
	case model.ProcStateSleeping:
		return "sleeping"
	case model.ProcStateRunnable:
		return "runnable"
	default:
		return strings.ToLower(string(s))
	}
}
