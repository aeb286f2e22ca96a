package domain

import "time"

// StatusView is the client-visible projection of a Job. Nullable fields
// serialize as null rather than empty strings.
type StatusView struct {
	JobID        string     `json:"jobId"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	DownloadURL  *string    `json:"downloadUrl"`
	Title        *string    `json:"title"`
	ErrorMessage *string    `json:"errorMessage"`
	Platform     Platform   `json:"platform"`
	Format       Format     `json:"downloadFormat"`
	Quality      Quality    `json:"quality"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

// ProjectStatus maps an internal job record onto its status payload. The
// artifact path never leaves the server.
func ProjectStatus(j Job) StatusView {
	j = j.Clone()
	return StatusView{
		JobID:        j.ID,
		Status:       j.Status,
		Progress:     j.Progress,
		DownloadURL:  nullable(j.DownloadHandle),
		Title:        nullable(j.Title),
		ErrorMessage: nullable(j.ErrorMessage),
		Platform:     j.Platform,
		Format:       j.Format,
		Quality:      j.Quality,
		CreatedAt:    j.CreatedAt,
		CompletedAt:  j.CompletedAt,
		ExpiresAt:    j.ExpiresAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
