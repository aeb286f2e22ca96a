package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": a.Queue.Len(),
		"worker_busy": a.Queue.Busy(),
	})
}

// StatusCheck is the frontend's liveness probe.
func (a *App) StatusCheck(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
