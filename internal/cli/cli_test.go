package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/me/procsim/internal/config"
	"github.com/me/procsim/internal/logging"
	"github.com/me/procsim/internal/store"
	"github.com/me/procsim/pkg/model"
)

const testServer = "http://procsim.test"

func execCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--server", testServer}, args...))
	err := root.Execute()
	return out.String(), err
}

func okBody(t *testing.T, data any) string {
	t.Helper()
	b, err := json.Marshal(model.Response{Status: "ok", RequestID: "req_test", Data: data})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestPs(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	st := model.TableStats{
		Tick:     120,
		Runnable: map[model.Class]int{model.ClassFeedbackHigh: 1, model.ClassRealTime: 1},
		Procs: []model.ProcSnapshot{
			{Name: "init", PID: 1, State: model.ProcStateSleeping, Class: model.ClassFeedbackHigh},
			{Name: "rt", PID: 4, State: model.ProcStateRunnable, Class: model.ClassRealTime, Deadline: 1100},
		},
	}
	httpmock.RegisterResponder("GET", testServer+"/api/v1/procs",
		httpmock.NewStringResponder(200, okBody(t, st)))

	out, err := execCLI(t, "ps")
	if err != nil {
		t.Fatalf("ps: %v", err)
	}
	for _, want := range []string{"ticks:\t120", "init", "sleeping", "1100", "runnable: realtime=1 mlfq-rr=1 mlfq-fcfs=0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPs_Filters(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponderWithQuery("GET", testServer+"/api/v1/procs", "class=realtime&state=runnable",
		httpmock.NewStringResponder(200, okBody(t, model.TableStats{Tick: 3})))

	if _, err := execCLI(t, "ps", "--class", "realtime", "--state", "runnable"); err != nil {
		t.Fatalf("ps: %v", err)
	}
	if n := httpmock.GetTotalCallCount(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestKill(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", testServer+"/api/v1/procs/7/kill",
		func(req *http.Request) (*http.Response, error) {
			if id := req.Header.Get("X-Request-ID"); !strings.HasPrefix(id, "req_cli-") {
				t.Errorf("X-Request-ID = %q", id)
			}
			return httpmock.NewStringResponse(200, okBody(t, map[string]any{"pid": 7, "killed": true})), nil
		})

	out, err := execCLI(t, "kill", "7")
	if err != nil {
		t.Fatalf("kill: %v", err)
	}
	if !strings.Contains(out, "Killed process 7") {
		t.Errorf("output = %q", out)
	}
}

func TestKill_NotFound(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", testServer+"/api/v1/procs/99/kill",
		httpmock.NewStringResponder(404,
			`{"status":"error","request_id":"req_x","error":{"code":"NOT_FOUND","message":"process 99 not found"}}`))

	_, err := execCLI(t, "kill", "99")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(err.Error(), "no live process with pid 99") {
		t.Errorf("error = %v", err)
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("error %T is not a *ServerError", err)
	}
	if se.Status != 404 || !strings.HasPrefix(se.RequestID, "req_cli-") {
		t.Errorf("server error = %+v", se)
	}
}

func TestClient_EnvelopeErrors(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	c := NewClient(testServer, logging.Discard())

	httpmock.RegisterResponder("PUT", testServer+"/api/v1/procs/3/queue",
		httpmock.NewStringResponder(400,
			`{"status":"error","request_id":"req_y","error":{"code":"VALIDATION_ERROR","message":"unknown class"}}`))
	_, err := c.ChangeQueue(3, "bogus")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = true for a validation error", err)
	}
	var api *model.APIError
	if !errors.As(err, &api) || api.Code != model.ErrValidation {
		t.Errorf("unwrapped api error = %v", api)
	}

	httpmock.RegisterResponder("GET", testServer+"/api/v1/programs",
		httpmock.NewStringResponder(502, `<html>bad gateway</html>`))
	if _, err := c.Programs(); err == nil || !strings.Contains(err.Error(), "not a procsim response") {
		t.Errorf("Programs() error = %v", err)
	}
}

func TestKill_InvalidPID(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	for _, arg := range []string{"abc", "0", "-3"} {
		if _, err := execCLI(t, "kill", "--", arg); err == nil {
			t.Errorf("kill %s: expected error", arg)
		}
	}
	if n := httpmock.GetTotalCallCount(); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
}

func TestChqueue(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("PUT", testServer+"/api/v1/procs/5/queue",
		func(req *http.Request) (*http.Response, error) {
			var body model.QueueChangeRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if body.Class != "fcfs" {
				t.Errorf("class = %q, want fcfs", body.Class)
			}
			p := model.ProcSnapshot{Name: "worker", PID: 5, Class: model.ClassFeedbackLow}
			return httpmock.NewStringResponse(200, okBody(t, p)), nil
		})

	out, err := execCLI(t, "chqueue", "5", "fcfs")
	if err != nil {
		t.Fatalf("chqueue: %v", err)
	}
	if !strings.Contains(out, "Process 5 (worker) now in mlfq-fcfs [mlfq(FCFS)]") {
		t.Errorf("output = %q", out)
	}
}

func TestLaunch(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", testServer+"/api/v1/workloads",
		func(req *http.Request) (*http.Response, error) {
			var body model.WorkloadRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if body.Program != "palindrome" || len(body.Args) != 1 || body.Args[0] != "123" {
				t.Errorf("body = %+v", body)
			}
			return httpmock.NewStringResponse(201, okBody(t, map[string]any{"pid": 12, "program": "palindrome"})), nil
		})

	out, err := execCLI(t, "launch", "palindrome", "123")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if !strings.Contains(out, "Launched palindrome as pid 12") {
		t.Errorf("output = %q", out)
	}
}

func TestPrograms(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testServer+"/api/v1/programs",
		httpmock.NewStringResponder(200, okBody(t, []string{"barbershop", "schedtest"})))

	out, err := execCLI(t, "programs")
	if err != nil {
		t.Fatalf("programs: %v", err)
	}
	if out != "barbershop\nschedtest\n" {
		t.Errorf("output = %q", out)
	}
}

func TestRuns(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	ended := time.Now().Add(-time.Minute)
	runs := []model.Run{
		{ID: "run_a", NCPU: 2, NProc: 64, StartedAt: time.Now().Add(-time.Hour), EndedAt: &ended},
		{ID: "run_b", NCPU: 4, NProc: 64, StartedAt: time.Now()},
	}
	httpmock.RegisterResponder("GET", testServer+"/api/v1/runs",
		httpmock.NewStringResponder(200, okBody(t, runs)))

	out, err := execCLI(t, "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	for _, want := range []string{"run_a", "ended 1 minute ago", "run_b", "running"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHistory_GroupsByTick(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	recs := []model.SnapshotRecord{
		{RunID: "run_a", Tick: 50, Proc: model.ProcSnapshot{Name: "init", PID: 1, Class: model.ClassFeedbackHigh}},
		{RunID: "run_a", Tick: 50, Proc: model.ProcSnapshot{Name: "sh", PID: 2, Class: model.ClassFeedbackHigh}},
		{RunID: "run_a", Tick: 100, Proc: model.ProcSnapshot{Name: "init", PID: 1, Class: model.ClassFeedbackHigh}},
	}
	httpmock.RegisterResponder("GET", testServer+"/api/v1/runs/run_a/snapshots",
		httpmock.NewStringResponder(200, okBody(t, recs)))

	out, err := execCLI(t, "history", "run_a")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if n := strings.Count(out, "ticks:"); n != 2 {
		t.Errorf("tables = %d, want 2:\n%s", n, out)
	}
}

func TestEvents(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	events := []model.Event{
		{Kind: model.EventFork, Tick: 3, PID: 2, Name: "sh"},
		{Kind: model.EventPromote, Tick: 900, PID: 2, Name: "sh", Detail: "mlfq-fcfs -> mlfq-rr"},
	}
	httpmock.RegisterResponderWithQuery("GET", testServer+"/api/v1/runs/run_a/events", "limit=200&pid=2",
		httpmock.NewStringResponder(200, okBody(t, events)))

	out, err := execCLI(t, "events", "run_a", "--pid", "2")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if !strings.Contains(out, "promote") || !strings.Contains(out, "mlfq-fcfs -> mlfq-rr") {
		t.Errorf("output = %q", out)
	}
}

func TestMem(t *testing.T) {
	httpmock.Activate(t)
	defer httpmock.DeactivateAndReset()

	body := `{"status":"ok","request_id":"req_x","data":{"status":"ok","kernel":"running","ticks":42,"ncpu":2,"procs":3,` +
		`"memory":{"pages":16,"free_pages":15,"used":"4.0 KiB","total":"64 KiB"},"store":"sqlite","run_id":"run_a"}}`
	httpmock.RegisterResponder("GET", testServer+"/api/v1/health", httpmock.NewStringResponder(200, body))

	out, err := execCLI(t, "mem")
	if err != nil {
		t.Fatalf("mem: %v", err)
	}
	for _, want := range []string{"Ticks:    42", "4.0 KiB / 64 KiB (15 of 16 pages free)", "Run:      run_a"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

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

func localConfig() config.KernelConfig {
	cfg := config.DefaultKernelConfig()
	cfg.NProc = 16
	cfg.TickInterval = time.Millisecond
	cfg.IdleBackoff = 50 * time.Microsecond
	cfg.SnapshotEvery = 1
	return cfg
}

func TestRunLocal_RecordsRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	var out lockedBuffer

	res, err := runLocal(context.Background(), localOptions{
		Kernel:  localConfig(),
		Target:  "palindrome",
		Args:    []string{"123"},
		DBPath:  dbPath,
		Timeout: 10 * time.Second,
	}, &out, logging.Discard())
	if err != nil {
		t.Fatalf("runLocal: %v", err)
	}
	if !strings.Contains(out.String(), "result: 131") {
		t.Errorf("output = %q", out.String())
	}
	if len(res.PIDs) != 1 || res.RunID == "" {
		t.Fatalf("result = %+v", res)
	}

	st, err := store.NewSQLiteStore(dbPath, logging.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	run, err := st.GetRun(ctx, res.RunID)
	if err != nil || run == nil {
		t.Fatalf("GetRun = %v, %v", run, err)
	}
	if run.EndedAt == nil {
		t.Error("run not marked finished")
	}
	if run.Workload != "palindrome" {
		t.Errorf("workload = %q", run.Workload)
	}

	events, _, err := st.ListEvents(ctx, res.RunID, model.ListOptions{Limit: 100, PID: res.PIDs[0]})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	kinds := map[model.EventKind]bool{}
	for _, ev := range events {
		kinds[ev.Kind] = true
	}
	for _, k := range []model.EventKind{model.EventFork, model.EventExit, model.EventReap} {
		if !kinds[k] {
			t.Errorf("missing %s event in %v", k, events)
		}
	}
}

func TestRunLocal_Timeout(t *testing.T) {
	var out lockedBuffer
	_, err := runLocal(context.Background(), localOptions{
		Kernel:  localConfig(),
		Target:  "script",
		Args:    []string{`sys.sleep(1000000)`},
		Timeout: 100 * time.Millisecond,
	}, &out, logging.Discard())
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestRunLocal_TickLimit(t *testing.T) {
	var out lockedBuffer
	_, err := runLocal(context.Background(), localOptions{
		Kernel:   localConfig(),
		Target:   "script",
		Args:     []string{`sys.sleep(1000000)`},
		Timeout:  10 * time.Second,
		MaxTicks: 5,
	}, &out, logging.Discard())
	if err == nil || !strings.Contains(err.Error(), "tick limit") {
		t.Fatalf("err = %v, want tick limit", err)
	}
}

func TestRunLocal_UnknownProgram(t *testing.T) {
	var out lockedBuffer
	_, err := runLocal(context.Background(), localOptions{
		Kernel:  localConfig(),
		Target:  "nope",
		Timeout: time.Second,
	}, &out, logging.Discard())
	if err == nil || !strings.Contains(err.Error(), "unknown program") {
		t.Fatalf("err = %v", err)
	}
}
