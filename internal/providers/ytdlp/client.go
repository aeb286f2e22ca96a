package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"viddownloader/internal/domain"
	"viddownloader/internal/infra"
)

// Config wires a Client.
type Config struct {
	BinaryPath      string
	MetadataTimeout time.Duration
	DownloadTimeout time.Duration
	Logger          infra.Logger
}

// Client drives the yt-dlp executable.
type Client struct {
	binary          string
	metadataTimeout time.Duration
	downloadTimeout time.Duration
	logger          infra.Logger
	runner          commandRunner
	progress        ProgressSource
	stat            func(name string) (os.FileInfo, error)
}

// NewClient constructs the production client.
func NewClient(cfg Config) *Client {
	binary := strings.TrimSpace(cfg.BinaryPath)
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Client{
		binary:          binary,
		metadataTimeout: cfg.MetadataTimeout,
		downloadTimeout: cfg.DownloadTimeout,
		logger:          infra.Component(cfg.Logger, "ytdlp"),
		runner:          &execRunner{},
		progress:        PercentSource{},
		stat:            os.Stat,
	}
}

// DownloadRequest describes one retrieval.
type DownloadRequest struct {
	SourceURL  string
	Format     domain.Format
	Quality    domain.Quality
	OutputPath string
	// OnProgress receives strictly increasing whole percentages in [0, 100].
	OnProgress func(raw int)
}

type metadata struct {
	Title string `json:"title"`
}

// FetchTitle runs a metadata-only invocation and returns the display title.
// An empty title is not an error.
func (c *Client) FetchTitle(ctx context.Context, sourceURL string) (string, error) {
	if err := domain.ValidateSourceURL(sourceURL); err != nil {
		return "", err
	}
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	args := []string{"--dump-single-json", "--no-download", "--no-warnings", "--no-playlist", "--", sourceURL}
	res, err := c.runner.Run(ctx, commandSpec{Name: c.binary, Args: args, CaptureStdout: true})
	if err != nil {
		return "", c.failure(StageLookup, "metadata lookup failed", domain.ErrLookupFailed, res, err)
	}

	var meta metadata
	if err := json.Unmarshal([]byte(res.Stdout), &meta); err != nil {
		return "", &ProcessError{
			Stage:   StageLookup,
			Message: "metadata lookup returned invalid JSON",
			Err:     errors.Join(domain.ErrLookupFailed, err),
		}
	}
	return strings.TrimSpace(meta.Title), nil
}

// Download runs the tool for req and verifies that a non-empty artifact was
// written at req.OutputPath.
func (c *Client) Download(ctx context.Context, req DownloadRequest) error {
	if err := domain.ValidateSourceURL(req.SourceURL); err != nil {
		return err
	}
	args, err := downloadArgs(req)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, c.downloadTimeout)
	defer cancel()

	progress := newMonotonicProgress(c.progress, req.OnProgress)
	res, err := c.runner.Run(ctx, commandSpec{Name: c.binary, Args: args, OnLine: progress.observe})
	if err != nil {
		return c.failure(StageDownload, downloadFailureMessage(err), domain.ErrDownloadFailed, res, err)
	}

	info, err := c.stat(req.OutputPath)
	if err != nil {
		return &ProcessError{
			Stage:   StageVerify,
			Message: "output file was not created",
			Err:     errors.Join(domain.ErrDownloadFailed, err),
		}
	}
	if info.Size() == 0 {
		return &ProcessError{
			Stage:   StageVerify,
			Message: "output file is empty",
			Err:     domain.ErrDownloadFailed,
		}
	}
	return nil
}

func (c *Client) failure(stage, message string, sentinel error, res commandResult, err error) *ProcessError {
	c.logger.Error().
		Err(err).
		Str("stage", stage).
		Int("exit_code", res.ExitCode).
		Strs("stderr_tail", res.StderrTail).
		Msg("yt-dlp failed")
	return &ProcessError{
		Stage:      stage,
		Message:    message,
		ExitCode:   res.ExitCode,
		StderrTail: res.StderrTail,
		Err:        errors.Join(sentinel, err),
	}
}

func downloadFailureMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "download timed out"
	case errors.Is(err, context.Canceled):
		return "download cancelled"
	default:
		return "download failed"
	}
}

// downloadArgs builds the argument vector. The source URL always follows
// "--" so it can never be parsed as an option.
func downloadArgs(req DownloadRequest) ([]string, error) {
	selector, err := FormatSelector(req.Format, req.Quality)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return nil, errors.New("ytdlp: output path is required")
	}
	template := strings.TrimSuffix(req.OutputPath, filepath.Ext(req.OutputPath)) + ".%(ext)s"

	args := []string{"--newline", "--progress", "--no-warnings", "--no-playlist", "-f", selector}
	switch req.Format {
	case domain.FormatMP3:
		args = append(args, "-x", "--audio-format", "mp3")
	default:
		// the selector may fall back to a single non-mp4 file, which is only
		// merged when split streams were picked; remux covers the rest
		args = append(args, "--merge-output-format", "mp4", "--remux-video", "mp4")
	}
	args = append(args, "-o", template, "--", req.SourceURL)
	return args, nil
}

var videoSelectors = map[domain.Quality]string{
	domain.Quality1080p: "best[height<=1080][ext=mp4]/best[height<=1080]/best",
	domain.Quality720p:  "best[height<=720][ext=mp4]/best[height<=720]/best",
	domain.Quality480p:  "best[height<=480][ext=mp4]/best[height<=480]/best",
	domain.Quality360p:  "best[height<=360][ext=mp4]/best[height<=360]/best",
}

// FormatSelector maps (format, quality) onto a yt-dlp -f expression.
func FormatSelector(format domain.Format, quality domain.Quality) (string, error) {
	switch format {
	case domain.FormatMP3:
		return "bestaudio/best", nil
	case domain.FormatMP4:
		sel, ok := videoSelectors[quality]
		if !ok {
			return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedQuality, quality)
		}
		return sel, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
