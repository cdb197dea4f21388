package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/me/procsim/internal/userprog"
	"github.com/me/procsim/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil, nil)
}

// respondCreated writes a 201 response with the standard envelope.
func respondCreated(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusCreated, reqID, data, nil, nil)
}

// respondList writes a success response with pagination.
func respondList(w http.ResponseWriter, reqID string, data any, total int, opts model.ListOptions) {
	respondJSON(w, http.StatusOK, reqID, data, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	}, nil)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	respondJSON(w, status, reqID, nil, nil, apiErr)
}

// respondKernelError maps a kernel error to a status code and writes it.
func respondKernelError(w http.ResponseWriter, reqID string, err error) {
	status, apiErr := kernelError(err)
	respondError(w, reqID, status, apiErr)
}

// kernelError classifies err: unknown processes are 404, requests that
// collide with the process's current state are 409, other invalid
// arguments are 400 and exhausted resources are 503.
func kernelError(err error) (int, *model.APIError) {
	switch {
	case errors.Is(err, model.ErrNoProcess):
		return http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: err.Error()}
	case errors.Is(err, model.ErrSameClass), errors.Is(err, model.ErrForeignRunning):
		return http.StatusConflict, &model.APIError{Code: model.ErrConflict, Message: err.Error()}
	case errors.Is(err, userprog.ErrUnknownProgram):
		return http.StatusBadRequest, model.NewValidationError(err.Error())
	}
	switch model.KindOf(err) {
	case model.KindInvalidArgument:
		return http.StatusBadRequest, model.NewValidationError(err.Error())
	case model.KindResourceExhausted:
		return http.StatusServiceUnavailable, &model.APIError{Code: model.ErrResourceExhausted, Message: err.Error()}
	}
	return http.StatusInternalServerError, &model.APIError{Code: model.ErrInternal, Message: err.Error()}
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, pg *model.Pagination, apiErr *model.APIError) {
	resp := model.Response{
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Pagination: pg,
		Error:      apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// listOptions reads limit, offset and pid from the query string.
func listOptions(r *http.Request) (model.ListOptions, *model.APIError) {
	opts := model.DefaultListOptions()
	q := r.URL.Query()
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"limit", &opts.Limit},
		{"offset", &opts.Offset},
		{"pid", &opts.PID},
	} {
		v := q.Get(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, model.NewValidationError("invalid query parameter",
				model.FieldError{Field: f.name, Message: "must be a non-negative integer"})
		}
		*f.dst = n
	}
	opts.Clamp()
	return opts, nil
}

// pidParam parses the {pid} URL parameter.
func pidParam(v string) (int, *model.APIError) {
	pid, err := strconv.Atoi(v)
	if err != nil || pid <= 0 {
		return 0, model.NewValidationError("invalid pid",
			model.FieldError{Field: "pid", Message: "must be a positive integer"})
	}
	return pid, nil
}
