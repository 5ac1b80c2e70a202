package whisper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

var modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Models that can be fetched on first start. Small English models are
// preferred: utterances are short trigger phrases.
var modelFiles = map[string]string{
	"tiny.en":        "ggml-tiny.en.bin",
	"base.en":        "ggml-base.en.bin",
	"small.en":       "ggml-small.en.bin",
	"medium.en":      "ggml-medium.en.bin",
	"large-v3-turbo": "ggml-large-v3-turbo.bin",
}

// progressWriter logs download progress every two seconds.
type progressWriter struct {
	log        zerolog.Logger
	total      int64
	downloaded int64
	lastLog    time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.downloaded += int64(n)

	now := time.Now()
	if now.Sub(pw.lastLog) >= 2*time.Second || pw.downloaded >= pw.total {
		pw.lastLog = now
		pw.log.Info().
			Float64("percent", float64(pw.downloaded)/float64(pw.total)*100).
			Float64("downloaded_mb", float64(pw.downloaded)/1024/1024).
			Float64("total_mb", float64(pw.total)/1024/1024).
			Msg("Downloading model")
	}

	return n, nil
}

// downloadModel fetches model into destPath via a temp file and rename.
func downloadModel(ctx context.Context, log zerolog.Logger, model string, destPath string) error {
	file, ok := modelFiles[model]
	if !ok {
		return fmt.Errorf("unknown model: %s", model)
	}
	url := modelBaseURL + file
	log = log.With().Str("model", model).Logger()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	tmpPath := destPath + ".tmp"
	defer os.Remove(tmpPath)

	log.Info().Str("url", url).Msg("Starting model download")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download model: HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	var writer io.Writer = out
	if resp.ContentLength > 0 {
		writer = io.MultiWriter(out, &progressWriter{log: log, total: resp.ContentLength, lastLog: time.Now()})
	} else {
		log.Warn().Msg("Content-Length not provided, progress tracking unavailable")
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("failed to write model file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to move model file: %w", err)
	}

	log.Info().Str("path", destPath).Msg("Model downloaded successfully")
	return nil
}
