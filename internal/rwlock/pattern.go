package rwlock

import "fmt"

// Duty is the role a process plays against the lock.
type Duty int

const (
	DutyRead Duty = iota
	DutyWrite
)

func (d Duty) String() string {
	if d == DutyWrite {
		return "writer"
	}
	return "reader"
}

// ParsePattern decodes a duty pattern: the binary digits of pattern after
// its leading 1, most significant first, where 0 is a reader and 1 a
// writer. 0b1010 yields reader, writer, reader.
func ParsePattern(pattern int) ([]Duty, error) {
	if pattern < 1 {
		return nil, fmt.Errorf("rw pattern must be positive, got %d", pattern)
	}
	var bits []Duty
	for p := pattern; p > 1; p /= 2 {
		bits = append(bits, Duty(p%2))
	}
	for i, j := 0, len(bits)-1; i < j; i, j = i+1, j-1 {
		bits[i], bits[j] = bits[j], bits[i]
	}
	return bits, nil
}
