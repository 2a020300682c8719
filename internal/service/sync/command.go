package sync

import (
	"context"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/Sean-China/auto-update/internal/archive"
	"github.com/Sean-China/auto-update/internal/config"
	"github.com/Sean-China/auto-update/internal/fetcher"
	"github.com/Sean-China/auto-update/internal/logger"
	"github.com/Sean-China/auto-update/internal/repository/digest"
	"github.com/Sean-China/auto-update/internal/resolver"
)

var (
	errSyncAlreadyRunning = errors.New("a sync is already running")
)

// Options are inputs accepted by the sync entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// SkipUnchanged stops the run after the digest check when the archive
	// matches the previous run, restoring the original tool's short-circuit.
	SkipUnchanged bool
}

// runner holds the mutable state and helpers for a single sync execution.
// It is intentionally unexported—call Run(ctx, Options) from callers.
type runner struct {
	cfg                *config.Config     // Run configuration loaded from YAML.
	digests            digest.Repository  // Persisted digest of the previous run.
	resolver           *resolver.Resolver // Index page link discovery.
	fetcher            *fetcher.Fetcher   // Streaming archive download.
	temporaryDirectory string             // Per-run scratch space, removed by cleanup.
}

// Run executes the sync lifecycle and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "fpslocker-sync")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	defer r.cleanup(ctx)

	if err = r.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Sync run failed", "error", err)
		return err
	}

	logger.Info(ctx, "Sync completed")

	return nil
}

// newRunner prepares the run and writes a marker to avoid overlapping runs.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	r := &runner{}

	if IsSyncRunningNow(ctx) {
		return r, errSyncAlreadyRunning
	}

	runMarker, err := os.Create(MarkerFilename)
	if err != nil {
		return r, err
	}

	if err = runMarker.Close(); err != nil {
		_ = os.Remove(MarkerFilename)

		return r, err
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigFilename
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		// The marker was already written; leaving it behind would block
		// re-runs until it goes stale.
		_ = os.Remove(MarkerFilename)

		return r, err
	}

	if opts.SkipUnchanged {
		cfg.SkipUnchanged = true
	}

	pageClient, downloadClient := newHTTPClients(cfg.Timeout)

	r.cfg = cfg
	r.digests = digest.NewFileRepository(cfg.DigestFile)
	r.resolver = resolver.New(pageClient)
	r.fetcher = fetcher.New(downloadClient)

	return r, nil
}

// newHTTPClients builds the clients for the two network stages. The index
// page fetch is bounded by the configured timeout. The archive download must
// not carry a whole-exchange deadline (http.Client.Timeout also covers the
// body read, which for a large archive legitimately exceeds it), so its
// client bounds only the wait for response headers and leaves aborts to
// context cancellation.
func newHTTPClients(timeout time.Duration) (pageClient, downloadClient *http.Client) {
	transport := http.DefaultTransport
	if base, ok := transport.(*http.Transport); ok {
		cloned := base.Clone()
		cloned.ResponseHeaderTimeout = timeout
		transport = cloned
	}

	return &http.Client{Timeout: timeout}, &http.Client{Transport: transport}
}

// Run executes the pipeline for this runner instance:
// 1) Resolve the download link on the index page.
// 2) Download the archive to a temporary directory.
// 3) Digest it and compare against the previous run.
// 4) Extract the archive.
// 5) Locate the target directory.
// 6) Repackage it into the output archive.
// 7) Persist the new digest.
func (r *runner) Run(ctx context.Context) error {
	logger.InfoKV(ctx, "Resolving download link", "index_url", r.cfg.IndexURL)

	link, err := r.resolver.Resolve(ctx, r.cfg.IndexURL, r.cfg.LinkMarker)
	if err != nil {
		return fmt.Errorf("resolve download link: %w", err)
	}

	temporaryDirectory, err := os.MkdirTemp("", temporaryDirPrefix)
	if err != nil {
		return fmt.Errorf("create temporary directory: %w", err)
	}

	r.temporaryDirectory = temporaryDirectory
	archivePath := filepath.Join(temporaryDirectory, archiveFilename)

	logger.InfoKV(ctx, "Downloading configs archive", "url", link.URL, "label", link.Label)

	if _, err = r.fetcher.Download(ctx, link.URL, archivePath); err != nil {
		return fmt.Errorf("download archive: %w", err)
	}

	changed, newDigest, err := r.checkForChanges(ctx, archivePath)
	if err != nil {
		return err
	}

	if !changed && r.cfg.SkipUnchanged {
		logger.Info(ctx, "Archive unchanged since last run, nothing to repackage")
		return nil
	}

	extractDir := filepath.Join(temporaryDirectory, extractedDirName)

	extracted, err := archive.Extract(archivePath, extractDir)
	if err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}

	logger.InfoKV(ctx, "Extracted archive", "files", extracted)

	targetDir, err := archive.LocateDir(extractDir, r.cfg.TargetDir)
	if err != nil {
		return fmt.Errorf("locate target directory: %w", err)
	}

	logger.InfoKV(ctx, "Found target directory", "path", targetDir)

	if err = r.repack(ctx, targetDir); err != nil {
		return fmt.Errorf("repackage %s: %w", r.cfg.TargetDir, err)
	}

	if err = r.digests.Save(ctx, newDigest); err != nil {
		return fmt.Errorf("record digest: %w", err)
	}

	return nil
}

// checkForChanges digests the downloaded archive and compares it with the
// record of the previous run. The outcome is informational for the rest of
// the pipeline unless the skip-unchanged policy is enabled.
func (r *runner) checkForChanges(ctx context.Context, archivePath string) (bool, string, error) {
	newDigest, err := FileSHA256(archivePath)
	if err != nil {
		return false, "", fmt.Errorf("digest archive: %w", err)
	}

	previous, err := r.digests.Load(ctx)

	switch {
	case errors.Is(err, digest.ErrNotFound):
		logger.InfoKV(ctx, "No digest record from a previous run", "digest", newDigest)
		return true, newDigest, nil
	case err != nil:
		return false, "", fmt.Errorf("load digest record: %w", err)
	case previous == newDigest:
		logger.InfoKV(ctx, "Archive unchanged since last run", "digest", newDigest)
		return false, newDigest, nil
	default:
		logger.InfoKV(ctx, "Archive content changed",
			"old_digest", previous, "new_digest", newDigest)

		return true, newDigest, nil
	}
}

// repack stages the output archive in the temporary directory and places it
// at the configured output path with a checksum-guarded atomic apply.
func (r *runner) repack(ctx context.Context, targetDir string) error {
	stagedPath := filepath.Join(r.temporaryDirectory, r.cfg.OutputFile)

	stored, err := archive.Create(targetDir, stagedPath)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Staged output archive", "path", stagedPath, "files", stored)

	stagedDigest, err := FileSHA256(stagedPath)
	if err != nil {
		return err
	}

	checksum, err := hex.DecodeString(stagedDigest)
	if err != nil {
		return err
	}

	if _, err = os.Stat(r.cfg.OutputFile); err != nil && os.IsNotExist(err) {
		var placeholder *os.File

		if placeholder, err = os.Create(r.cfg.OutputFile); err != nil {
			return err
		}

		if err = placeholder.Close(); err != nil {
			return err
		}
	}

	staged, err := os.Open(stagedPath)
	if err != nil {
		return err
	}

	defer func() {
		_ = staged.Close()
	}()

	options := &goupdate.Options{
		TargetPath: r.cfg.OutputFile,
		TargetMode: OutputFileMode,
		Checksum:   checksum,
		Hash:       crypto.SHA256,
	}

	if err = goupdate.Apply(staged, *options); err != nil {
		return err
	}

	oldFileName := r.cfg.OutputFile + ".old"
	if _, err = os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	logger.InfoKV(ctx, "Output archive written", "path", r.cfg.OutputFile)

	return nil
}

// cleanup removes temporary artifacts and the run marker.
func (r *runner) cleanup(ctx context.Context) {
	if _, err := os.Stat(MarkerFilename); err == nil {
		_ = os.Remove(MarkerFilename)
	}

	if r.temporaryDirectory != "" {
		if _, err := os.Stat(r.temporaryDirectory); err == nil {
			_ = os.RemoveAll(r.temporaryDirectory)
		}
	}

	logger.Info(ctx, "The sync runner has been stopped")
}
