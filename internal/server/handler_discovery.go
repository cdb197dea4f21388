package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "procsim API",
		Version:     "v1",
		Description: "Simulated multiprocessor kernel with EDF, round-robin and FCFS scheduling classes",
		Endpoints: []endpointInfo{
			{"/api/v1/procs", []string{"GET"}, "Live process table with runnable counters. Filters: ?class=, ?state="},
			{"/api/v1/procs/{pid}", []string{"GET"}, "Single process"},
			{"/api/v1/procs/{pid}/kill", []string{"POST"}, "Kill a process"},
			{"/api/v1/procs/{pid}/queue", []string{"PUT"}, "Move a process between the round-robin and FCFS tiers"},
			{"/api/v1/programs", []string{"GET"}, "Built-in user programs"},
			{"/api/v1/workloads", []string{"POST"}, "Launch a built-in program under the root process"},
			{"/api/v1/runs", []string{"GET"}, "Recorded kernel runs"},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run"},
			{"/api/v1/runs/{id}/snapshots", []string{"GET"}, "Process-table snapshots of a run. Filter: ?pid="},
			{"/api/v1/runs/{id}/events", []string{"GET"}, "Lifecycle events of a run. Filter: ?pid="},
			{"/api/v1/health", []string{"GET"}, "Server and kernel health"},
		},
	})
}
