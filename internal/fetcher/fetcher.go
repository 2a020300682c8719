package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Sean-China/auto-update/internal/logger"
)

var (
	// ErrUnexpectedStatus is returned for responses outside the HTTP success range.
	ErrUnexpectedStatus = errors.New("unexpected http status")
)

const (
	// copyChunkSize is the buffer used for the chunked copy to disk.
	copyChunkSize = 32 * 1024

	// progressThrottle limits redraws of the progress bar.
	progressThrottle = 100 * time.Millisecond
)

// Fetcher downloads archives over HTTP, streaming the body to disk.
type Fetcher struct {
	client         *http.Client
	progressOutput io.Writer
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithProgressOutput redirects progress rendering to the given writer.
// Pass io.Discard to silence the bar entirely.
func WithProgressOutput(w io.Writer) Option {
	return func(f *Fetcher) {
		f.progressOutput = w
	}
}

// New creates a fetcher using the provided HTTP client,
// falling back to http.DefaultClient when nil is given.
func New(client *http.Client, opts ...Option) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	f := &Fetcher{
		client:         client,
		progressOutput: os.Stderr,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Download streams the response body for rawURL into destPath in fixed-size
// chunks, rendering byte progress as data arrives. The whole file is never
// held in memory. A partial file left behind by a failed download is the
// caller's to remove. Returns the number of bytes written.
func (f *Fetcher) Download(ctx context.Context, rawURL, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return 0, err
	}

	response, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download archive: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%s, %s: %w", rawURL, response.Status, ErrUnexpectedStatus)
	}

	outputFile, err := os.Create(filepath.Clean(destPath))
	if err != nil {
		return 0, fmt.Errorf("create destination file: %w", err)
	}

	defer func() {
		_ = outputFile.Close()
	}()

	// ContentLength may be -1; the bar degrades to a spinner then.
	bar := f.newProgressBar(response.ContentLength)

	written, err := io.CopyBuffer(
		io.MultiWriter(outputFile, bar),
		response.Body,
		make([]byte, copyChunkSize),
	)
	_ = bar.Finish()

	if err != nil {
		return written, fmt.Errorf("write archive to disk: %w", err)
	}

	if err = outputFile.Close(); err != nil {
		return written, fmt.Errorf("close destination file: %w", err)
	}

	logger.InfoKV(ctx, "Download finished", "path", destPath, "bytes", written)

	return written, nil
}

// newProgressBar builds a byte-count progress bar for the expected length.
func (f *Fetcher) newProgressBar(length int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		length,
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionSetWriter(f.progressOutput),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(progressThrottle),
		progressbar.OptionClearOnFinish(),
	)
}
