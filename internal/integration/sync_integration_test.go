package integration

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sean-China/auto-update/internal/config"
	"github.com/Sean-China/auto-update/internal/resolver"
	"github.com/Sean-China/auto-update/internal/service/sync"
)

// buildConfigsArchive builds an in-memory configs package with the target
// directory buried inside a release folder, the way the warehouse ships it.
func buildConfigsArchive(t *testing.T) []byte {
	t.Helper()

	var buffer bytes.Buffer

	writer := zip.NewWriter(&buffer)
	entries := map[string]string{
		"FPSLocker-Warehouse-main/SaltySD/a.txt":     "alpha",
		"FPSLocker-Warehouse-main/SaltySD/sub/b.txt": "beta",
		"FPSLocker-Warehouse-main/README.md":         "ignored",
	}
	for name, content := range entries {
		entry, err := writer.Create(name)
		require.NoError(t, err)

		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	return buffer.Bytes()
}

// startWarehouse serves an index page with a download anchor plus the archive itself.
func startWarehouse(t *testing.T, archive []byte) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<html><body>
			<p>To download all configs click <a href="/FPSLocker_v1.2.zip">here</a></p>
		</body></html>`)
	})
	mux.HandleFunc("/FPSLocker_v1.2.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

// writeSettings persists run settings pointing the pipeline at the test server.
func writeSettings(t *testing.T, dir, indexURL string) string {
	t.Helper()

	path := filepath.Join(dir, "settings.yaml")
	cfg := config.Default()
	cfg.IndexURL = indexURL

	require.NoError(t, config.Save(path, cfg))

	return path
}

// pinTempRoot points the system temp location at a private directory so the
// test can assert the pipeline leaves nothing behind in it.
func pinTempRoot(t *testing.T, dir string) string {
	t.Helper()

	tmpRoot := filepath.Join(dir, "tmp")
	require.NoError(t, os.MkdirAll(tmpRoot, 0o755))
	t.Setenv("TMPDIR", tmpRoot)

	return tmpRoot
}

// requireTempRootEmpty asserts the pinned temp location holds no leftovers.
func requireTempRootEmpty(t *testing.T, tmpRoot string) {
	t.Helper()

	entries, err := os.ReadDir(tmpRoot)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestSync_Run_ProducesOutputArchive runs the full pipeline against a mock
// warehouse and verifies the output archive, the digest record and cleanup.
func TestSync_Run_ProducesOutputArchive(t *testing.T) {
	dir := t.TempDir()
	chdirTemp(t, dir)
	tmpRoot := pinTempRoot(t, dir)

	archiveBytes := buildConfigsArchive(t)
	server := startWarehouse(t, archiveBytes)
	settingsPath := writeSettings(t, dir, server.URL)

	err := sync.Run(context.Background(), &sync.Options{ConfigPath: settingsPath})
	require.NoError(t, err)

	// The output archive holds exactly the target directory's files.
	reader, err := zip.OpenReader(filepath.Join(dir, config.DefaultOutputFile))
	require.NoError(t, err)

	defer func() {
		_ = reader.Close()
	}()

	want := map[string]string{
		"SaltySD/a.txt":     "alpha",
		"SaltySD/sub/b.txt": "beta",
	}
	require.Len(t, reader.File, len(want))

	for _, entry := range reader.File {
		contents, err := entry.Open()
		require.NoError(t, err)

		data, err := io.ReadAll(contents)
		require.NoError(t, err)
		require.NoError(t, contents.Close())
		require.Equal(t, want[entry.Name], string(data))
	}

	// The digest record now holds the SHA-256 of the downloaded archive.
	expectedDigest := sha256.Sum256(archiveBytes)

	recorded, err := os.ReadFile(filepath.Join(dir, config.DefaultDigestFilename))
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(expectedDigest[:]), strings.TrimSpace(string(recorded)))

	// The run marker is gone and no temporary leftovers remain,
	// neither in the working directory nor in the temp location.
	_, err = os.Stat(filepath.Join(dir, sync.MarkerFilename))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, config.DefaultOutputFile+".old"))
	require.ErrorIs(t, err, os.ErrNotExist)
	requireTempRootEmpty(t, tmpRoot)
}

// TestSync_Run_SkipUnchanged verifies the short-circuit on a repeated run.
func TestSync_Run_SkipUnchanged(t *testing.T) {
	dir := t.TempDir()
	chdirTemp(t, dir)

	archiveBytes := buildConfigsArchive(t)
	server := startWarehouse(t, archiveBytes)
	settingsPath := writeSettings(t, dir, server.URL)

	require.NoError(t, sync.Run(context.Background(), &sync.Options{ConfigPath: settingsPath}))

	outputInfo, err := os.Stat(filepath.Join(dir, config.DefaultOutputFile))
	require.NoError(t, err)

	// Second run with an unchanged archive stops after the digest check,
	// leaving the previous output untouched.
	require.NoError(t, sync.Run(context.Background(), &sync.Options{
		ConfigPath:    settingsPath,
		SkipUnchanged: true,
	}))

	unchangedInfo, err := os.Stat(filepath.Join(dir, config.DefaultOutputFile))
	require.NoError(t, err)
	require.Equal(t, outputInfo.ModTime(), unchangedInfo.ModTime())
}

// TestSync_Run_NoDownloadLink verifies the failure path: no output archive is
// written, no digest is recorded, and the run marker is removed.
func TestSync_Run_NoDownloadLink(t *testing.T) {
	dir := t.TempDir()
	chdirTemp(t, dir)
	tmpRoot := pinTempRoot(t, dir)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<html><body><a href="/README.md">readme</a></body></html>`)
	}))
	t.Cleanup(server.Close)

	settingsPath := writeSettings(t, dir, server.URL)

	err := sync.Run(context.Background(), &sync.Options{ConfigPath: settingsPath})
	require.ErrorIs(t, err, resolver.ErrNoDownloadLink)

	_, err = os.Stat(filepath.Join(dir, config.DefaultOutputFile))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, config.DefaultDigestFilename))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, sync.MarkerFilename))
	require.ErrorIs(t, err, os.ErrNotExist)
	requireTempRootEmpty(t, tmpRoot)
}

// TestSync_Run_TargetMissing verifies an archive without the target directory fails
// and leaves no output behind.
func TestSync_Run_TargetMissing(t *testing.T) {
	dir := t.TempDir()
	chdirTemp(t, dir)
	tmpRoot := pinTempRoot(t, dir)

	var buffer bytes.Buffer

	writer := zip.NewWriter(&buffer)
	entry, err := writer.Create("FPSLocker-Warehouse-main/README.md")
	require.NoError(t, err)
	_, err = entry.Write([]byte("no configs here"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	server := startWarehouse(t, buffer.Bytes())
	settingsPath := writeSettings(t, dir, server.URL)

	err = sync.Run(context.Background(), &sync.Options{ConfigPath: settingsPath})
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(dir, config.DefaultOutputFile))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, config.DefaultDigestFilename))
	require.ErrorIs(t, err, os.ErrNotExist)
	requireTempRootEmpty(t, tmpRoot)
}

// TestSync_Run_SlowDownloadBeyondTimeout verifies the configured timeout does
// not abort an archive download that keeps making progress past it: the
// timeout bounds the index fetch and the header wait, not the body stream.
func TestSync_Run_SlowDownloadBeyondTimeout(t *testing.T) {
	dir := t.TempDir()
	chdirTemp(t, dir)

	archiveBytes := buildConfigsArchive(t)
	half := len(archiveBytes) / 2

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<html><body>
			<p>To download all configs click <a href="/FPSLocker_v1.2.zip">here</a></p>
		</body></html>`)
	})
	mux.HandleFunc("/FPSLocker_v1.2.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archiveBytes[:half])
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		// Keep the body arriving well past the configured timeout.
		time.Sleep(600 * time.Millisecond)
		_, _ = w.Write(archiveBytes[half:])
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	settingsPath := filepath.Join(dir, "settings.yaml")
	cfg := config.Default()
	cfg.IndexURL = server.URL
	cfg.Timeout = 200 * time.Millisecond
	require.NoError(t, config.Save(settingsPath, cfg))

	err := sync.Run(context.Background(), &sync.Options{ConfigPath: settingsPath})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, config.DefaultOutputFile))
	require.NoError(t, err)
}

// TestSync_Run_OverwritesExistingOutput verifies a stale output archive is
// replaced wholesale by a fresh run.
func TestSync_Run_OverwritesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	chdirTemp(t, dir)

	outputPath := filepath.Join(dir, config.DefaultOutputFile)
	require.NoError(t, os.WriteFile(outputPath, []byte("stale, not a zip"), 0o644))

	archiveBytes := buildConfigsArchive(t)
	server := startWarehouse(t, archiveBytes)
	settingsPath := writeSettings(t, dir, server.URL)

	require.NoError(t, sync.Run(context.Background(), &sync.Options{ConfigPath: settingsPath}))

	reader, err := zip.OpenReader(outputPath)
	require.NoError(t, err)

	defer func() {
		_ = reader.Close()
	}()

	require.Len(t, reader.File, 2)
}

// chdirTemp switches the working directory for the test and restores it on
// cleanup; stand-in for testing.T.Chdir, which needs Go 1.24.
func chdirTemp(t *testing.T, dir string) {
	t.Helper()
	previous, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(previous) })
}
