package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/me/procsim/internal/userprog"
	"github.com/me/procsim/pkg/model"
)

func (s *Server) handleListProcs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	st := s.kernel.Stats()

	q := r.URL.Query()
	var class model.Class
	if v := q.Get("class"); v != "" {
		c, ok := model.ParseClass(v)
		if !ok {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid class",
				model.FieldError{Field: "class", Message: "one of realtime, mlfq-rr, mlfq-fcfs"}))
			return
		}
		class = c
	}
	state := model.ProcState(strings.ToUpper(q.Get("state")))

	if class != "" || state != "" {
		procs := st.Procs[:0:0]
		for _, p := range st.Procs {
			if class != "" && p.Class != class {
				continue
			}
			if state != "" && p.State != state {
				continue
			}
			procs = append(procs, p)
		}
		st.Procs = procs
	}
	respondOK(w, reqID, st)
}

func (s *Server) handleGetProc(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, apiErr := pidParam(chi.URLParam(r, "pid"))
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	p, ok := s.kernel.Lookup(pid)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("process", chi.URLParam(r, "pid")))
		return
	}
	respondOK(w, reqID, p)
}

func (s *Server) handleKillProc(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, apiErr := pidParam(chi.URLParam(r, "pid"))
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	if err := s.kernel.HostKill(pid); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	s.logger.Info("process killed", "pid", pid, "request_id", reqID)
	respondOK(w, reqID, map[string]any{"pid": pid, "killed": true})
}

func (s *Server) handleChangeQueue(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, apiErr := pidParam(chi.URLParam(r, "pid"))
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	var req model.QueueChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid JSON: "+err.Error()))
		return
	}
	class, ok := model.ParseClass(req.Class)
	if !ok {
		// Unknown names fall through; the kernel rejects them.
		class = model.Class(req.Class)
	}

	if err := s.kernel.HostChangeQueue(pid, class); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	p, _ := s.kernel.Lookup(pid)
	respondOK(w, reqID, p)
}

func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, userprog.Names())
}

func (s *Server) handleLaunchWorkload(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.WorkloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid JSON: "+err.Error()))
		return
	}
	if req.Program == "" {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("program is required",
			model.FieldError{Field: "program", Message: "required"}))
		return
	}

	args := req.Args
	if req.Script != "" {
		args = append([]string{req.Script}, args...)
	}
	prog, err := userprog.Build(s.env, req.Program, args)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(err.Error()))
		return
	}
	pid, err := s.kernel.Spawn(req.Program, prog)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	s.logger.Info("workload launched", "program", req.Program, "pid", pid, "request_id", reqID)
	respondCreated(w, reqID, map[string]any{"pid": pid, "program": req.Program})
}
