package storage

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// MaxArchiveSize bounds a downloaded archive (200MB).
	MaxArchiveSize = 200 * 1024 * 1024

	defaultDownloadTimeout = 10 * time.Minute

	// CommandCanvasDownload is the UI notification for download progress.
	CommandCanvasDownload = "CanvasDownload"
)

// Download statuses.
const (
	DownloadStarting    = "starting"
	DownloadDownloading = "downloading"
	DownloadReceived    = "received"
)

// DownloadProgress is the data of a CanvasDownload notification.
type DownloadProgress struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Progress *int   `json:"progress,omitempty"`
}

// DownloadAndExtract fetches a zip archive and extracts it into the
// watched folder. It returns the extracted file paths relative to that
// folder.
func (m *Manager) DownloadAndExtract(ctx context.Context, url, name string) ([]string, error) {
	m.logger.Debug("starting download", "name", name)
	m.notifyDownload(DownloadProgress{Filename: name, Status: DownloadStarting})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}
	if resp.ContentLength > MaxArchiveSize {
		return nil, ErrArchiveTooLarge
	}

	data, err := m.readWithProgress(resp.Body, resp.ContentLength, name)
	if err != nil {
		return nil, err
	}
	m.notifyDownload(DownloadProgress{Filename: name, Status: DownloadReceived})

	m.logger.Info("extracting archive", "name", name, "bytes", len(data))
	return extractZip(data, m.watchedDir)
}

// readWithProgress reads body, notifying each whole percent when the
// length is known.
func (m *Manager) readWithProgress(body io.Reader, total int64, name string) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	last := -1
	limited := io.LimitReader(body, MaxArchiveSize+1)

	for {
		n, err := limited.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if buf.Len() > MaxArchiveSize {
				return nil, ErrArchiveTooLarge
			}
			if total > 0 {
				pct := int(int64(buf.Len()) * 100 / total)
				if pct != last {
					last = pct
					m.notifyDownload(DownloadProgress{Filename: name, Status: DownloadDownloading, Progress: &pct})
				}
			}
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
		}
	}
}

func (m *Manager) notifyDownload(p DownloadProgress) {
	if m.notifier != nil {
		m.notifier.Notify(CommandCanvasDownload, p)
	}
}

// extractZip writes every file entry of the archive below dir.
func extractZip(data []byte, dir string) ([]string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var written []string
	for _, f := range reader.File {
		target, err := within(filepath.Clean(dir), f.Name)
		if err != nil || hasParentRef(f.Name) {
			return written, fmt.Errorf("%w: entry %q escapes folder", ErrInvalidArchive, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, err
		}
		if err := writeZipFile(f, target); err != nil {
			return written, fmt.Errorf("extracting %s: %w", f.Name, err)
		}
		written = append(written, filepath.ToSlash(f.Name))
	}
	return written, nil
}

func hasParentRef(name string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(name), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func writeZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(rc, MaxArchiveSize)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
