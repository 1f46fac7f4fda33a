package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/viant/seqindex/service"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleUpload answers 206 with the running job when a build is active and
// 202 with the new job when the upload was accepted.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.countUpload("throttled")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many uploads"})
		return
	}
	if r.ContentLength > s.maxUploadBytes {
		s.countUpload("invalid")
		writeError(w, &http.MaxBytesError{Limit: s.maxUploadBytes})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.countUpload("invalid")
		if status := statusOf(err); status == http.StatusRequestEntityTooLarge {
			writeError(w, err)
			return
		}
		writeError(w, fmt.Errorf("%w: %v", service.ErrInvalidUpload, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, header, err := r.FormFile("file")
	if err != nil {
		s.countUpload("invalid")
		writeError(w, fmt.Errorf("%w: file field is required", service.ErrInvalidUpload))
		return
	}
	defer file.Close()

	result, err := s.service.Upload(r.Context(), &service.UploadRequest{Name: header.Filename, Reader: file})
	if err != nil {
		s.countUpload("error")
		writeError(w, err)
		return
	}
	if !result.Accepted {
		s.countUpload("busy")
		writeJSON(w, http.StatusPartialContent, result.Job)
		return
	}
	s.countUpload("accepted")
	writeJSON(w, http.StatusAccepted, result.Job)
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	current, err := s.service.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if current == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusPartialContent, current)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	current, err := s.service.Job(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	req := &service.QueryRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		s.countQuery("invalid")
		writeError(w, fmt.Errorf("%w: %v", service.ErrInvalidQuery, err))
		return
	}
	results, err := s.service.Query(r.Context(), req)
	if err != nil {
		if service.IsClientError(err) {
			s.countQuery("invalid")
		} else {
			s.countQuery("error")
		}
		writeError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.queryLatency.Observe(time.Since(started).Seconds())
		s.metrics.queryResults.Observe(float64(len(results)))
	}
	s.countQuery("ok")
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleSequence(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.Sequence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) countUpload(outcome string) {
	if s.metrics != nil {
		s.metrics.uploads.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) countQuery(outcome string) {
	if s.metrics != nil {
		s.metrics.queries.WithLabelValues(outcome).Inc()
	}
}
