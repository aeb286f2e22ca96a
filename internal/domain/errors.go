package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrNotReady           = errors.New("not ready")
	ErrInvalidSource      = errors.New("invalid source url")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrUnsupportedQuality = errors.New("unsupported quality")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrQueueFull          = errors.New("queue full")
	ErrLookupFailed       = errors.New("metadata lookup failed")
	ErrDownloadFailed     = errors.New("download failed")
)
