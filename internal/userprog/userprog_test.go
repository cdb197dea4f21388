package userprog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/procsim/internal/config"
	"github.com/me/procsim/internal/console"
	"github.com/me/procsim/internal/kernel"
	"github.com/me/procsim/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEnv() Env {
	env := DefaultEnv(testLogger())
	env.DelayTicks = 3
	env.ServiceWork = 1000
	return env
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// bootKernel starts a kernel running Init with a 1ms timer and returns it
// with a channel of reaped pids.
func bootKernel(t *testing.T, out io.Writer) (*kernel.Kernel, <-chan int) {
	t.Helper()
	cfg := config.DefaultKernelConfig()
	cfg.NProc = 32
	cfg.IdleBackoff = 50 * time.Microsecond
	reaped := make(chan int, 64)
	k, err := kernel.New(cfg, testLogger(),
		kernel.WithConsole(console.New(out)),
		kernel.WithEvents(func(ev model.Event) {
			if ev.Kind == model.EventReap {
				select {
				case reaped <- ev.PID:
				default:
				}
			}
		}))
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	if _, err := k.UserInit(Init()); err != nil {
		t.Fatalf("UserInit: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		k.Start(ctx)
		close(stopped)
	}()
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				k.Tick()
			case <-stopped:
				return
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return k, reaped
}

func waitReaped(t *testing.T, reaped <-chan int, pid int, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case got := <-reaped:
			if got == pid {
				return
			}
		case <-deadline:
			t.Fatalf("pid %d not reaped within %s", pid, timeout)
		}
	}
}

func TestNextPalindrome(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 0},
		{7, 7},
		{10, 11},
		{123, 131},
		{999, 999},
		{1000, 1001},
		{12921, 12921},
		{-5, 0},
	}
	for _, tt := range tests {
		if got := NextPalindrome(tt.in); got != tt.want {
			t.Errorf("NextPalindrome(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSumNumbers(t *testing.T) {
	tests := []struct {
		in   []string
		want int
	}{
		{[]string{"abc"}, 0},
		{[]string{"a1b22c333"}, 356},
		{[]string{"10", "x5y"}, 15},
		{[]string{"7 apples and 3"}, 10},
	}
	for _, tt := range tests {
		if got := SumNumbers(tt.in...); got != tt.want {
			t.Errorf("SumNumbers(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBuild_Errors(t *testing.T) {
	env := testEnv()
	tests := []struct {
		name string
		prog string
		args []string
	}{
		{"unknown", "nope", nil},
		{"rwtest no pattern", "rwtest", nil},
		{"rwtest bad pattern", "rwtest", []string{"abc"}},
		{"rwtest zero pattern", "rwtest", []string{"0"}},
		{"palindrome no arg", "palindrome", nil},
		{"findsum no arg", "findsum", nil},
		{"barbershop args", "barbershop", []string{"x"}},
		{"script no source", "script", nil},
		{"script syntax", "script", []string{"function ("}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(env, tt.prog, tt.args); err == nil {
				t.Errorf("Build(%s, %v) succeeded", tt.prog, tt.args)
			}
		})
	}
	if _, err := Build(env, "nope", nil); !errors.Is(err, ErrUnknownProgram) {
		t.Errorf("err = %v, want ErrUnknownProgram", err)
	}
}

func TestNames_Sorted(t *testing.T) {
	names := Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
	if len(names) != len(builtins) {
		t.Errorf("len = %d, want %d", len(names), len(builtins))
	}
}

func TestPalindrome_Runs(t *testing.T) {
	out := &lockedBuffer{}
	k, reaped := bootKernel(t, out)

	pid, err := Launch(k, testEnv(), "palindrome", []string{"123"})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	waitReaped(t, reaped, pid, 5*time.Second)
	if !strings.Contains(out.String(), "result: 131\n") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRWTest_Runs(t *testing.T) {
	out := &lockedBuffer{}
	k, reaped := bootKernel(t, out)

	// 0b11011: writer, reader, writer, writer.
	pid, err := Launch(k, testEnv(), "rwtest", []string{"27"})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	waitReaped(t, reaped, pid, 10*time.Second)

	got := out.String()
	if n := strings.Count(got, "incremented the count"); n != 3 {
		t.Errorf("writers = %d, want 3\n%s", n, got)
	}
	if n := strings.Count(got, "is reading counter value"); n != 1 {
		t.Errorf("readers = %d, want 1\n%s", n, got)
	}
	if !strings.Contains(got, "new count value is 3") {
		t.Errorf("final count missing\n%s", got)
	}
}

func TestSchedTest_DumpsEveryClass(t *testing.T) {
	out := &lockedBuffer{}
	k, reaped := bootKernel(t, out)

	pid, err := Launch(k, testEnv(), "schedtest", nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	waitReaped(t, reaped, pid, 10*time.Second)

	got := out.String()
	if n := strings.Count(got, "ticks:"); n != 4 {
		t.Errorf("dumps = %d, want 4\n%s", n, got)
	}
	for _, want := range []string{"EDF", "mlfq(RR)", "mlfq(FCFS)"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\n%s", want, got)
		}
	}
	if strings.Contains(got, "Error:") {
		t.Errorf("unexpected error\n%s", got)
	}
}

func TestBarbershop_Runs(t *testing.T) {
	out := &lockedBuffer{}
	k, reaped := bootKernel(t, out)

	pid, err := Launch(k, testEnv(), "barbershop", nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	waitReaped(t, reaped, pid, 15*time.Second)

	got := out.String()
	if !strings.Contains(got, "is ready to cut hair") {
		t.Errorf("barber never started\n%s", got)
	}
	if n := strings.Count(got, "is entering the shop"); n != customerCount {
		t.Errorf("arrivals = %d, want %d\n%s", n, customerCount, got)
	}
	if !barberExit.MatchString(got) {
		t.Errorf("barber never exited\n%s", got)
	}
}

var barberExit = regexp.MustCompile(`barber with pid \d+ is exiting`)

func TestScript_ForkWait(t *testing.T) {
	out := &lockedBuffer{}
	k, reaped := bootKernel(t, out)

	src := `
var child = sys.fork(function() {
	sys.print("child " + sys.pid());
});
var reaped = sys.wait();
sys.print("parent reaped " + (reaped === child) + " " + args.join(","));
`
	pid, err := Launch(k, testEnv(), "script", []string{src, "a", "b"})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	waitReaped(t, reaped, pid, 5*time.Second)

	got := out.String()
	if !strings.Contains(got, "child ") {
		t.Errorf("child output missing\n%s", got)
	}
	if !strings.Contains(got, "parent reaped true a,b\n") {
		t.Errorf("parent output missing\n%s", got)
	}
}

func TestScript_SyscallErrorThrows(t *testing.T) {
	out := &lockedBuffer{}
	k, reaped := bootKernel(t, out)

	src := `
try {
	sys.wait();
	sys.print("no error");
} catch (e) {
	sys.print("caught");
}
sys.changeQueue(sys.pid(), "bogus");
`
	pid, err := Launch(k, testEnv(), "script", []string{src})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	waitReaped(t, reaped, pid, 5*time.Second)

	got := out.String()
	if !strings.Contains(got, "caught\n") {
		t.Errorf("wait error not thrown\n%s", got)
	}
	if !strings.Contains(got, "Error: JavaScript error:") || !strings.Contains(got, "invalid scheduling class") {
		t.Errorf("uncaught error not reported\n%s", got)
	}
}
