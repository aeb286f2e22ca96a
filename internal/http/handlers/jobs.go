package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"viddownloader/internal/domain"
	"viddownloader/internal/middleware"
	"viddownloader/internal/service"
	"viddownloader/pkg/filename"
)

const maxJobBodyBytes = 16 << 10

type createJobReq struct {
	URL            string `json:"url"`
	DownloadFormat string `json:"downloadFormat"`
	Quality        string `json:"quality"`
	Platform       string `json:"platform"`
}

type createJobResp struct {
	JobID  string           `json:"jobId"`
	Status domain.JobStatus `json:"status"`
}

// CreateJob accepts a download request and queues it.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJobBodyBytes)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON object")
		return
	}

	job, err := a.Downloads.Submit(r.Context(), service.SubmitRequest{
		URL:      req.URL,
		Format:   req.DownloadFormat,
		Quality:  req.Quality,
		Platform: req.Platform,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSource):
			a.error(w, http.StatusBadRequest, "invalid_url", err.Error())
		case errors.Is(err, domain.ErrUnsupportedFormat):
			a.error(w, http.StatusBadRequest, "invalid_format", err.Error())
		case errors.Is(err, domain.ErrUnsupportedQuality):
			a.error(w, http.StatusBadRequest, "invalid_quality", err.Error())
		case errors.Is(err, domain.ErrQueueFull):
			w.Header().Set("Retry-After", "30")
			a.error(w, http.StatusServiceUnavailable, "queue_full", "too many pending jobs, try again later")
		default:
			a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("submit job")
			a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		}
		return
	}
	a.json(w, http.StatusAccepted, createJobResp{JobID: job.ID, Status: job.Status})
}

// JobStatus returns the status payload of a job.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	view, err := a.Downloads.Status(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Msg("load job status")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, view)
}

// Download streams the artifact of a completed job once. The job and its
// file are deleted only after every byte was written.
func (a *App) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	art, err := a.Downloads.OpenArtifact(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, domain.ErrNotReady):
			a.error(w, http.StatusNotFound, "not_ready", "download is not ready")
		default:
			a.Logger.Error().Err(err).Str("job_id", id).Msg("open artifact")
			a.error(w, http.StatusInternalServerError, "internal", "failed to open download")
		}
		return
	}

	h := w.Header()
	h.Set("Content-Type", art.ContentType)
	h.Set("Content-Length", strconv.FormatInt(art.Size, 10))
	h.Set("Content-Disposition", filename.ContentDisposition(art.Filename))
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, art.File)
	if err != nil || n != art.Size {
		art.Release()
		a.Logger.Warn().Err(err).Str("job_id", id).Int64("sent", n).Int64("size", art.Size).Msg("download interrupted")
		return
	}
	art.Consume(context.WithoutCancel(r.Context()))
}
