package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/me/procsim/pkg/model"
)

// Client talks to the REST API of a procsim server. Each method decodes
// the data of the response envelope into a procsim type.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a procsim API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// envelope is the server's response wrapper with the data left raw.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// ServerError is an error envelope returned by the server, tagged with the
// request id the CLI sent so the matching server log line can be found.
type ServerError struct {
	Status    int
	RequestID string
	API       *model.APIError
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s (request %s)", e.API.Error(), e.RequestID)
}

func (e *ServerError) Unwrap() error { return e.API }

// IsNotFound reports whether err is a NOT_FOUND answer, such as an unknown
// pid or run id.
func IsNotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.API.Code == model.ErrNotFound
}

// call sends one request, checks the envelope and decodes its data into
// out (skipped when out is nil). It returns the pagination, if any.
func (c *Client) call(method, path string, body, out any) (*model.Pagination, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := "req_cli-" + uuid.New().String()[:8]
	req.Header.Set("X-Request-ID", reqID)
	c.Logger.Debug("api call", "method", method, "path", path, "request_id", reqID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("procsim server %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.Logger.Debug("api answer", "status", resp.StatusCode, "request_id", reqID, "bytes", len(raw))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%s %s: status %d, not a procsim response: %w", method, path, resp.StatusCode, err)
	}
	if env.Status == "error" && env.Error != nil {
		return nil, &ServerError{Status: resp.StatusCode, RequestID: reqID, API: env.Error}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return env.Pagination, nil
}

// Procs returns the live process table, optionally filtered by class and
// state.
func (c *Client) Procs(class, state string) (*model.TableStats, error) {
	q := url.Values{}
	if class != "" {
		q.Set("class", class)
	}
	if state != "" {
		q.Set("state", state)
	}
	var st model.TableStats
	_, err := c.call("GET", "/api/v1/procs"+encode(q), nil, &st)
	return &st, err
}

// Kill marks pid killed.
func (c *Client) Kill(pid int) error {
	_, err := c.call("POST", fmt.Sprintf("/api/v1/procs/%d/kill", pid), nil, nil)
	return err
}

// ChangeQueue moves pid to class and returns its new snapshot.
func (c *Client) ChangeQueue(pid int, class string) (*model.ProcSnapshot, error) {
	var p model.ProcSnapshot
	_, err := c.call("PUT", fmt.Sprintf("/api/v1/procs/%d/queue", pid), model.QueueChangeRequest{Class: class}, &p)
	return &p, err
}

// Launch starts a built-in program under init and returns its pid.
func (c *Client) Launch(req model.WorkloadRequest) (int, error) {
	var created struct {
		PID int `json:"pid"`
	}
	_, err := c.call("POST", "/api/v1/workloads", req, &created)
	return created.PID, err
}

// Programs lists the programs the server can launch.
func (c *Client) Programs() ([]string, error) {
	var names []string
	_, err := c.call("GET", "/api/v1/programs", nil, &names)
	return names, err
}

// Runs lists recorded runs, newest first.
func (c *Client) Runs(limit int) ([]model.Run, *model.Pagination, error) {
	var runs []model.Run
	pg, err := c.call("GET", "/api/v1/runs"+listQuery(limit, 0), nil, &runs)
	return runs, pg, err
}

// Snapshots returns the recorded process snapshots of a run.
func (c *Client) Snapshots(runID string, limit, pid int) ([]model.SnapshotRecord, error) {
	var recs []model.SnapshotRecord
	_, err := c.call("GET", "/api/v1/runs/"+url.PathEscape(runID)+"/snapshots"+listQuery(limit, pid), nil, &recs)
	return recs, err
}

// Events returns the recorded lifecycle events of a run.
func (c *Client) Events(runID string, limit, pid int) ([]model.Event, error) {
	var events []model.Event
	_, err := c.call("GET", "/api/v1/runs/"+url.PathEscape(runID)+"/events"+listQuery(limit, pid), nil, &events)
	return events, err
}

// Health returns the server's health report.
func (c *Client) Health() (*healthInfo, error) {
	var h healthInfo
	_, err := c.call("GET", "/api/v1/health", nil, &h)
	return &h, err
}

func listQuery(limit, pid int) string {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if pid > 0 {
		q.Set("pid", strconv.Itoa(pid))
	}
	return encode(q)
}

func encode(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
