package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"leopacolor/internal/domain"
)

type colorizeResponse struct {
	JobID   string           `json:"job_id"`
	Status  domain.JobStatus `json:"status"`
	Message string           `json:"message"`
}

type jobStatusResponse struct {
	JobID        string           `json:"job_id"`
	Status       domain.JobStatus `json:"status"`
	ResultURL    string           `json:"result_url,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// StartColorize accepts an infrared image plus a comma-separated list of
// reference ids, creates a pending job and fires the background driver. The
// response carries only the job id; progress is observed by polling.
func (a *App) StartColorize(w http.ResponseWriter, r *http.Request) {
	filename, content, err := readImageUpload(r, "infrared.jpg")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var referenceIDs []string
	for _, id := range strings.Split(r.FormValue("reference_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			referenceIDs = append(referenceIDs, id)
		}
	}
	if len(referenceIDs) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "At least one reference image must be selected")
		return
	}
	for _, id := range referenceIDs {
		if _, err := a.Catalog.GetReference(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("Reference image not found: %s", id))
				return
			}
			a.Logger.Error().Err(err).Str("reference_id", id).Msg("handlers: validate reference")
			a.error(w, http.StatusInternalServerError, "internal", "failed to validate references")
			return
		}
	}

	_, uploadKey, err := a.Catalog.SaveUpload(r.Context(), filename, content)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: save upload")
		a.error(w, http.StatusInternalServerError, "internal", "failed to save upload")
		return
	}

	job, err := a.Jobs.CreateJob(r.Context(), "/data/"+uploadKey, referenceIDs)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: create job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}
	a.Jobs.Start(job.ID)

	a.json(w, http.StatusOK, colorizeResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Colorization started",
	})
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "Job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: get job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, jobStatusResponse{
		JobID:        job.ID,
		Status:       job.Status,
		ResultURL:    job.ResultURL,
		ErrorMessage: job.ErrorMessage,
	})
}

// JobResult streams the finished artifact for a completed job.
func (a *App) JobResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "Job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: get job result")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if job.Status != domain.JobStatusCompleted || job.ResultURL == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "Job not completed or result not available")
		return
	}

	resultPath := a.Catalog.ResultPath(path.Base(job.ResultURL))
	if _, err := os.Stat(resultPath); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "Result file not found")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "colorized_"+jobID+".png"))
	http.ServeFile(w, r, resultPath)
}
