package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coherence/analysis"
	"coherence/core"
	"coherence/metrics"
	"coherence/report"
	"coherence/storage"
)

// handleUpload accepts a multipart upload (field "video"), validates format
// and size, persists the file and kicks off processing. The response carries
// the job id the client polls.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, core.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		if isBodyTooLarge(err) {
			core.WriteError(w, http.StatusRequestEntityTooLarge, &core.APIError{
				Message:   "Video file is too large. Maximum size is 500MB.",
				Code:      core.CodeVideoTooLarge,
				Retryable: true,
			})
			return
		}
		core.WriteError(w, http.StatusBadRequest, &core.APIError{
			Message: "Expected a multipart upload with a \"video\" field.",
			Code:    core.CodeUploadRejected,
		})
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		core.WriteError(w, http.StatusBadRequest, &core.APIError{
			Message: "Missing \"video\" field in upload.",
			Code:    core.CodeUploadRejected,
		})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if apiErr := core.ValidateVideoUpload(contentType, header.Size); apiErr != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		status := http.StatusBadRequest
		if apiErr.Code == core.CodeVideoTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		core.WriteError(w, status, apiErr)
		return
	}

	videoID := core.NewID()
	dir := filepath.Join(s.cfg.DataDir, "videos")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.internalError(w, "prepare upload directory", err)
		return
	}
	path := filepath.Join(dir, videoID+core.ExtensionForType(contentType))
	dst, err := os.Create(path)
	if err != nil {
		s.internalError(w, "create upload file", err)
		return
	}
	written, err := io.Copy(dst, file)
	dst.Close()
	if err != nil {
		os.Remove(path)
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		if isBodyTooLarge(err) {
			core.WriteError(w, http.StatusRequestEntityTooLarge, &core.APIError{
				Message:   "Video file is too large. Maximum size is 500MB.",
				Code:      core.CodeVideoTooLarge,
				Retryable: true,
			})
			return
		}
		s.internalError(w, "store upload", err)
		return
	}

	duration := probeDuration(path)
	if duration <= 0 {
		duration = estimateDuration(written)
	}

	meta := core.VideoMeta{
		ID:          videoID,
		Filename:    header.Filename,
		Path:        path,
		ContentType: contentType,
		SizeBytes:   written,
		Duration:    duration,
		UploadedAt:  time.Now().UTC(),
	}
	s.jobs.Register(meta)
	go s.runner.Process(context.WithoutCancel(r.Context()), meta)

	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	s.logger.WithField("video_id", videoID).WithField("bytes", written).Info("upload accepted")
	core.WriteJSON(w, http.StatusOK, core.UploadResponse{
		VideoID:         videoID,
		Status:          string(core.StatusProcessing),
		EstimatedTime:   45,
		DurationSeconds: duration,
	})
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

// handleStatus reports the polled processing state. Samples are always
// complete; unknown ids are 404.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	metrics.StatusPollsTotal.Inc()
	videoID := r.PathValue("id")

	if st, ok := s.jobs.Status(videoID); ok {
		core.WriteJSON(w, http.StatusOK, st)
		return
	}
	if analysis.IsSample(videoID) {
		core.WriteJSON(w, http.StatusOK, core.StatusResponse{
			VideoID:  videoID,
			Status:   core.StatusComplete,
			Progress: 100,
			Stage:    analysis.FinalStage.Label,
		})
		return
	}
	s.notFound(w, videoID)
}

// handleResults returns the stored analysis. A job that has not reached
// complete answers 425 so the client keeps polling.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("id")

	if result, ok := analysis.SampleResult(videoID); ok {
		core.WriteJSON(w, http.StatusOK, result)
		return
	}

	st, ok := s.jobs.Status(videoID)
	if !ok || st.Status == core.StatusError {
		// A failed job has no results and never will.
		s.notFound(w, videoID)
		return
	}
	if st.Status != core.StatusComplete {
		core.WriteError(w, http.StatusTooEarly, &core.APIError{
			Message:   "Analysis is still in progress. Please wait.",
			Code:      core.CodeNotComplete,
			Retryable: true,
		})
		return
	}

	result, err := s.results.Get(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, storage.ErrResultNotFound) {
			s.notFound(w, videoID)
			return
		}
		s.internalError(w, "load results", err)
		return
	}
	core.WriteJSON(w, http.StatusOK, result)
}

// handleStream serves the raw video file for playback.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("id")
	path, ok := s.jobs.VideoPath(videoID, s.cfg.DataDir)
	if !ok {
		s.notFound(w, videoID)
		return
	}
	w.Header().Set("Content-Type", core.ContentTypeForExtension(filepath.Ext(path)))
	http.ServeFile(w, r, path)
}

// handleReport renders the analysis as a PDF attachment.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("id")

	result, ok := analysis.SampleResult(videoID)
	if !ok {
		st, found := s.jobs.Status(videoID)
		if !found || st.Status == core.StatusError {
			metrics.ReportsTotal.WithLabelValues("rejected").Inc()
			s.notFound(w, videoID)
			return
		}
		if st.Status != core.StatusComplete {
			metrics.ReportsTotal.WithLabelValues("rejected").Inc()
			core.WriteError(w, http.StatusTooEarly, &core.APIError{
				Message:   "Analysis is still in progress. Please wait.",
				Code:      core.CodeNotComplete,
				Retryable: true,
			})
			return
		}
		stored, err := s.results.Get(r.Context(), videoID)
		if err != nil {
			metrics.ReportsTotal.WithLabelValues("error").Inc()
			s.internalError(w, "load results for report", err)
			return
		}
		result = stored
	}

	data, err := report.Generate(result)
	if err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).Error("report generation failed")
		core.WriteError(w, http.StatusInternalServerError, core.NewReportError("Report generation failed. Please try again."))
		return
	}
	metrics.ReportsTotal.WithLabelValues("generated").Inc()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "coherence-report-"+videoID+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleSearch answers a natural-language question about a video's transcript
// moments.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("id")

	var req core.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteError(w, http.StatusBadRequest, core.NewValidationError("Request body must be JSON with a \"query\" field."))
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		core.WriteError(w, http.StatusBadRequest, core.NewValidationError("Search query must not be empty."))
		return
	}

	hits := s.moments.Search(videoID, req.Query, req.TopK)
	if len(hits) == 0 {
		// Sample transcripts are indexed lazily on first search.
		if result, ok := analysis.SampleResult(videoID); ok {
			s.moments.Index(videoID, result.Transcript)
			hits = s.moments.Search(videoID, req.Query, req.TopK)
		}
	}

	metrics.SearchesTotal.WithLabelValues(s.moments.Name()).Inc()
	core.WriteJSON(w, http.StatusOK, core.SearchResponse{
		VideoID: videoID,
		Query:   req.Query,
		Answer:  storage.SynthesizeAnswer(s.cfg, req.Query, hits),
		Hits:    hits,
	})
}

// handleSamplesList lists the pre-analyzed sample videos.
func (s *Server) handleSamplesList(w http.ResponseWriter, r *http.Request) {
	ids := analysis.SampleIDs()
	samples := make([]core.SampleVideoInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := analysis.SampleInfo(id); ok {
			samples = append(samples, info)
		}
	}
	core.WriteJSON(w, http.StatusOK, core.SampleVideosListResponse{Samples: samples, AllCached: true})
}

// handleSample selects one sample for viewing. Samples skip processing, so
// the returned status is already complete.
func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("id")
	if !analysis.IsSample(videoID) {
		s.notFound(w, videoID)
		return
	}
	core.WriteJSON(w, http.StatusOK, core.SampleVideoResponse{
		VideoID: videoID,
		Status:  string(core.StatusComplete),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, map[string]string{
		"status":       "ok",
		"analyzer":     s.provider.Name(),
		"moment_index": s.moments.Name(),
		"time":         time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) notFound(w http.ResponseWriter, videoID string) {
	core.WriteError(w, http.StatusNotFound, &core.APIError{
		Message: fmt.Sprintf("Video %s not found.", videoID),
		Code:    core.CodeNotFound,
	})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.WithError(err).Error(op + " failed")
	core.WriteError(w, http.StatusInternalServerError, &core.APIError{
		Message:   "Internal server error. Please try again.",
		Code:      core.CodeInternal,
		Retryable: true,
	})
}
