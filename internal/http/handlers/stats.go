package handlers

import (
	"net/http"
)

func (a *App) StatsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.Stats.Today(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("load stats")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"day":            summary.Day.Format("2006-01-02"),
		"jobs_submitted": summary.Submitted,
		"jobs_completed": summary.Completed,
		"jobs_failed":    summary.Failed,
		"jobs_retrieved": summary.Retrieved,
		"jobs_reaped":    summary.Reaped,
		"queue_depth":    a.Queue.Len(),
		"worker_busy":    a.Queue.Busy(),
	})
}
