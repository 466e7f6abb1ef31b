package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/runner"
	"github.com/torosent/rpcbench/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type listJobsResponse struct {
	Jobs   []*store.Job `json:"jobs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

type jobResponse struct {
	*store.Job
	Active bool `json:"active"`
}

type resultsResponse struct {
	JobID   string                    `json:"job_id"`
	Status  string                    `json:"status"`
	Samples []metrics.Sample          `json:"samples"`
	Bursts  []metrics.LoadBurstResult `json:"bursts"`
	runner.Analysis
}

type validationIssues interface {
	Issues() []string
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	p, err := s.build(r.Context(), body)
	if err != nil {
		s.writeValidation(w, err)
		return
	}

	id, err := s.manager.Submit(r.Context(), p)
	if errors.Is(err, runner.ErrInvalidPlan) {
		s.writeValidation(w, err)
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("submit job")
		s.writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	w.Header().Set("Location", "/v1/jobs/"+id)
	s.writeJSON(w, http.StatusAccepted, submitResponse{ID: id, Status: store.StatusQueued})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := s.manager.Store().ListJobs(r.Context(), limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("list jobs")
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*store.Job{}
	}

	s.writeJSON(w, http.StatusOK, listJobsResponse{
		Jobs:   jobs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.lookupJob(w, r, id)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, jobResponse{Job: job, Active: s.manager.Active(id)})
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.lookupJob(w, r, id)
	if !ok {
		return
	}

	st := s.manager.Store()
	p, err := st.Plan(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("load plan")
		s.writeError(w, http.StatusInternalServerError, "failed to load plan")
		return
	}
	samples, err := st.Samples(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("load samples")
		s.writeError(w, http.StatusInternalServerError, "failed to load samples")
		return
	}
	bursts, err := st.Bursts(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("load bursts")
		s.writeError(w, http.StatusInternalServerError, "failed to load bursts")
		return
	}
	if samples == nil {
		samples = []metrics.Sample{}
	}
	if bursts == nil {
		bursts = []metrics.LoadBurstResult{}
	}

	s.writeJSON(w, http.StatusOK, resultsResponse{
		JobID:    id,
		Status:   job.Status,
		Samples:  samples,
		Bursts:   bursts,
		Analysis: runner.Replay(p, samples, bursts),
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.lookupJob(w, r, id); !ok {
		return
	}
	if err := s.manager.Cancel(id); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.manager.Delete(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, store.ErrJobActive):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.WithError(err).Error("delete job")
		s.writeError(w, http.StatusInternalServerError, "failed to delete job")
	}
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request, id string) (*store.Job, bool) {
	job, err := s.manager.Store().GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		s.logger.WithError(err).Error("get job")
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return nil, false
	}
	return job, true
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("encode response")
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeValidation reports a rejected config document with its issues.
func (s *Server) writeValidation(w http.ResponseWriter, err error) {
	body := map[string]any{"error": err.Error()}
	var vi validationIssues
	if errors.As(err, &vi) {
		body["issues"] = vi.Issues()
	}
	s.writeJSON(w, http.StatusBadRequest, body)
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
