package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/procsim/internal/config"
	"github.com/me/procsim/internal/console"
	"github.com/me/procsim/internal/kernel"
	"github.com/me/procsim/internal/timer"
	"github.com/me/procsim/internal/userprog"
	"github.com/me/procsim/pkg/model"
)

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

// bootServer starts a real kernel with init and a 1ms timer behind a server.
func bootServer(t *testing.T, out *lockedBuffer) *Server {
	t.Helper()
	cfg := config.DefaultKernelConfig()
	cfg.NProc = 16
	cfg.TickInterval = time.Millisecond
	cfg.IdleBackoff = 50 * time.Microsecond

	logger := testLogger()
	k, err := kernel.New(cfg, logger, kernel.WithConsole(console.New(out)))
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	if _, err := k.UserInit(userprog.Init()); err != nil {
		t.Fatalf("UserInit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		k.Start(ctx)
		close(stopped)
	}()
	loop := timer.NewLoop(k, timer.Config{Interval: cfg.TickInterval}, logger)
	go loop.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	srvCfg := config.DefaultServerConfig()
	srvCfg.Kernel = cfg
	return New(srvCfg, k, logger)
}

func request(srv *Server, method, path, body string) (int, envelope) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func launch(t *testing.T, srv *Server, body string) int {
	t.Helper()
	env := do(t, srv, "POST", "/api/v1/workloads", body, http.StatusCreated)
	var created struct {
		PID int `json:"pid"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return created.PID
}

// waitFor polls GET /procs/{pid} until cond accepts the status and snapshot.
func waitFor(t *testing.T, srv *Server, pid int, what string, cond func(code int, p model.ProcSnapshot) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		code, env := request(srv, "GET", fmt.Sprintf("/api/v1/procs/%d", pid), "")
		var p model.ProcSnapshot
		if code == http.StatusOK {
			json.Unmarshal(env.Data, &p)
		}
		if cond(code, p) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("pid %d: timed out waiting until %s", pid, what)
}

func reaped(code int, _ model.ProcSnapshot) bool { return code == http.StatusNotFound }

func TestIntegration_LaunchRunsToCompletion(t *testing.T) {
	var out lockedBuffer
	srv := bootServer(t, &out)

	pid := launch(t, srv, `{"program":"palindrome","args":["123"]}`)
	waitFor(t, srv, pid, "reaped", reaped)

	if !strings.Contains(out.String(), "result: 131") {
		t.Errorf("console = %q", out.String())
	}
}

func TestIntegration_ChangeQueueAndKill(t *testing.T) {
	var out lockedBuffer
	srv := bootServer(t, &out)

	pid := launch(t, srv, `{"program":"script","script":"sys.sleep(1000000)"}`)
	waitFor(t, srv, pid, "sleeping", func(code int, p model.ProcSnapshot) bool {
		return code == http.StatusOK && p.State == model.ProcStateSleeping
	})

	// The sleeper wakes on every tick, so the move can race a dispatch and
	// be refused while the process is running.
	var env envelope
	deadline := time.Now().Add(5 * time.Second)
	for {
		var code int
		code, env = request(srv, "PUT", fmt.Sprintf("/api/v1/procs/%d/queue", pid), `{"class":"fcfs"}`)
		if code == http.StatusOK {
			break
		}
		if code != http.StatusConflict || time.Now().After(deadline) {
			t.Fatalf("change queue: status=%d error=%v", code, env.Error)
		}
		time.Sleep(time.Millisecond)
	}
	var p model.ProcSnapshot
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Class != model.ClassFeedbackLow {
		t.Errorf("class = %s, want %s", p.Class, model.ClassFeedbackLow)
	}

	// Moving to the class it already has is a conflict.
	do(t, srv, "PUT", fmt.Sprintf("/api/v1/procs/%d/queue", pid), `{"class":"mlfq-fcfs"}`, http.StatusConflict)

	do(t, srv, "POST", fmt.Sprintf("/api/v1/procs/%d/kill", pid), "", http.StatusOK)
	waitFor(t, srv, pid, "reaped", reaped)

	do(t, srv, "POST", fmt.Sprintf("/api/v1/procs/%d/kill", pid), "", http.StatusNotFound)
}
