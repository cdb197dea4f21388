package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
)

type memoryInfo struct {
	Pages     int    `json:"pages"`
	FreePages int    `json:"free_pages"`
	Used      string `json:"used"`
	Total     string `json:"total"`
}

type healthResponse struct {
	Status     string      `json:"status"`
	Version    string      `json:"version"`
	GoVersion  string      `json:"go_version"`
	Uptime     string      `json:"uptime"`
	Started    string      `json:"started"`
	Kernel     string      `json:"kernel"`
	Ticks      int         `json:"ticks"`
	NCPU       int         `json:"ncpu"`
	HaltedCPUs []int       `json:"halted_cpus,omitempty"`
	Procs      int         `json:"procs"`
	Memory     *memoryInfo `json:"memory,omitempty"`
	Store      string      `json:"store"`
	RunID      string      `json:"run_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	resp := healthResponse{
		Status:     "healthy",
		Version:    "0.1.0",
		GoVersion:  runtime.Version(),
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		Started:    humanize.Time(s.startTime),
		Kernel:     "stopped",
		Ticks:      s.kernel.Ticks(),
		NCPU:       s.kernel.Config().NCPU,
		HaltedCPUs: s.kernel.Halted(),
		Procs:      len(s.kernel.Stats().Procs),
		Store:      "disabled",
		RunID:      s.runID,
	}
	if s.kernel.Running() {
		resp.Kernel = "running"
	}
	if len(resp.HaltedCPUs) > 0 {
		resp.Status = "degraded"
	}
	if s.store != nil {
		resp.Store = "sqlite"
	}
	if s.memory != nil {
		st := s.memory.Stats()
		resp.Memory = &memoryInfo{
			Pages:     st.Total,
			FreePages: st.Free,
			Used:      humanize.IBytes(st.UsedBytes()),
			Total:     humanize.IBytes(st.TotalBytes()),
		}
	}
	respondOK(w, reqID, resp)
}
