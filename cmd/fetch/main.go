// Command fetch runs one metadata lookup and download through the same
// yt-dlp client the API uses, without the queue or HTTP layer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"viddownloader/internal/domain"
	"viddownloader/internal/infra"
	"viddownloader/internal/providers/ytdlp"
	"viddownloader/internal/storage"
	"viddownloader/internal/worker"
	"viddownloader/pkg/filename"
)

func main() {
	_ = godotenv.Load()

	var (
		urlFlag     string
		formatFlag  string
		qualityFlag string
		outFlag     string
	)
	flag.StringVar(&urlFlag, "url", "", "source URL to download")
	flag.StringVar(&formatFlag, "format", string(domain.DefaultFormat), "output format (mp4 or mp3)")
	flag.StringVar(&qualityFlag, "quality", string(domain.DefaultQuality), "maximum video height (1080p, 720p, 480p, 360p)")
	flag.StringVar(&outFlag, "out", "", "directory for the artifact (defaults to DOWNLOAD_DIR)")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if err := domain.ValidateSourceURL(urlFlag); err != nil {
		logger.Fatal().Err(err).Msg("fetch: -url is invalid")
	}
	format, err := domain.ParseFormat(formatFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("fetch: -format is invalid")
	}
	quality, err := domain.ParseQuality(qualityFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("fetch: -quality is invalid")
	}

	dir := outFlag
	if dir == "" {
		dir = cfg.DownloadDir
	}
	store, err := storage.NewFileStore(dir)
	if err != nil {
		logger.Fatal().Err(err).Msg("fetch: prepare output directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := ytdlp.NewClient(ytdlp.Config{
		BinaryPath:      cfg.YtDlpPath,
		MetadataTimeout: cfg.MetadataTimeout,
		DownloadTimeout: cfg.DownloadTimeout,
		Logger:          logger,
	})

	title, err := client.FetchTitle(ctx, urlFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("fetch: metadata lookup failed")
	}
	if title == "" {
		title = worker.FallbackTitle
	}
	fmt.Fprintf(os.Stderr, "title: %s\n", title)

	id := uuid.NewString()
	output, err := store.PathFor(id, string(format))
	if err != nil {
		logger.Fatal().Err(err).Msg("fetch: resolve output path")
	}
	err = client.Download(ctx, ytdlp.DownloadRequest{
		SourceURL:  urlFlag,
		Format:     format,
		Quality:    quality,
		OutputPath: output,
		OnProgress: func(raw int) {
			fmt.Fprintf(os.Stderr, "\rprogress: %3d%%", raw)
		},
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		_ = store.RemoveJobArtifacts(context.Background(), id)
		logger.Fatal().Err(err).Msg("fetch: download failed")
	}

	final := filepath.Join(store.BasePath(), filename.FromTitle(title, string(format)))
	if err := os.Rename(output, final); err != nil {
		logger.Fatal().Err(err).Msg("fetch: rename artifact")
	}
	fmt.Println(final)
}
