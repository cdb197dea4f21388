package kernel

import "fmt"

// Fatal is raised with panic when a kernel usage rule is broken: a lock
// acquired twice by the same CPU, a release by a non-holder, a switch with
// the wrong locks held, or the root process exiting. The CPU that raised
// it is halted; no kernel state is repaired.
type Fatal struct {
	CPU int
	Msg string
}

func (f *Fatal) Error() string {
	if f.CPU < 0 {
		return fmt.Sprintf("kernel fatal: %s", f.Msg)
	}
	return fmt.Sprintf("kernel fatal on cpu%d: %s", f.CPU, f.Msg)
}

func fatalf(c *CPU, format string, args ...any) {
	id := -1
	if c != nil {
		id = c.id
	}
	panic(&Fatal{CPU: id, Msg: fmt.Sprintf(format, args...)})
}
