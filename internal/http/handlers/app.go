package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"viddownloader/internal/domain"
	"viddownloader/internal/infra"
	"viddownloader/internal/service"
)

// QueueStats exposes worker state for health reporting.
type QueueStats interface {
	Len() int
	Busy() bool
}

// StatsSource reads today's job counters.
type StatsSource interface {
	Today(ctx context.Context) (*domain.AnalyticsDaily, error)
}

type App struct {
	Downloads *service.Downloads
	Queue     QueueStats
	Stats     StatsSource
	Logger    infra.Logger
}

func NewApp(downloads *service.Downloads, queue QueueStats, stats StatsSource, logger infra.Logger) *App {
	return &App{
		Downloads: downloads,
		Queue:     queue,
		Stats:     stats,
		Logger:    infra.Component(logger, "http"),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}
