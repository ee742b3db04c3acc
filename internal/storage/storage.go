package storage

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
)

// DevicePrefix marks paths in the uploads folder.
const DevicePrefix = "device/"

// timestampLayout is ISO-8601 UTC with milliseconds.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// printExtensions are the file types offered for printing.
var printExtensions = map[string]bool{
	".gcode": true,
	".gco":   true,
	".g":     true,
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier delivers download progress to the UI.
type Notifier interface {
	Notify(command string, data any)
}

// Entry is one item of a folder listing. Folder names end in "/".
type Entry struct {
	Name         string `json:"name"`
	DateModified string `json:"dateModified"`
}

// PrintFile describes a file ready to print from the uploads folder.
type PrintFile struct {
	// PrintPath is the device/ form reported in the job state.
	PrintPath string
	// UploadsPath is relative to the uploads folder.
	UploadsPath string
	Name        string
	Size        int64
	Modified    time.Time
}

// Options configures a Manager.
type Options struct {
	// HTTPClient fetches archives. Defaults to a client with a 10 minute
	// timeout.
	HTTPClient *http.Client

	// Notifier receives CanvasDownload progress. Optional.
	Notifier Notifier

	// Logger is optional.
	Logger Logger
}

// Manager resolves request paths to files and performs file operations.
//
// Thread Safety: All methods are safe for concurrent use.
type Manager struct {
	uploadsDir string
	watchedDir string
	drives     []string

	httpClient *http.Client
	notifier   Notifier
	logger     Logger
}

// NewManager creates a Manager for cfg.
func NewManager(cfg config.StorageConfig, opts Options) (*Manager, error) {
	if cfg.UploadsDir == "" {
		return nil, fmt.Errorf("uploads dir is required")
	}
	m := &Manager{
		uploadsDir: filepath.Clean(cfg.UploadsDir),
		watchedDir: cfg.WatchedDir,
		httpClient: opts.HTTPClient,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
	}
	if m.watchedDir == "" {
		m.watchedDir = m.uploadsDir
	}
	for _, d := range cfg.Drives {
		if d = strings.TrimSpace(d); d != "" {
			m.drives = append(m.drives, filepath.Clean(d))
		}
	}
	if m.httpClient == nil {
		m.httpClient = &http.Client{Timeout: defaultDownloadTimeout}
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	return m, nil
}

// UploadsDir returns the uploads folder.
func (m *Manager) UploadsDir() string {
	return m.uploadsDir
}

// Drives lists "device/" followed by each configured drive root that is
// currently present.
func (m *Manager) Drives() []string {
	out := []string{DevicePrefix}
	for _, d := range m.drives {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			continue
		}
		out = append(out, filepath.ToSlash(d)+"/")
	}
	return out
}

// Resolve maps a request path to a filesystem path.
func (m *Manager) Resolve(p string) (string, error) {
	if p == strings.TrimSuffix(DevicePrefix, "/") || strings.HasPrefix(p, DevicePrefix) {
		rel := strings.TrimPrefix(strings.TrimPrefix(p, "device"), "/")
		return within(m.uploadsDir, rel)
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	for _, d := range m.drives {
		if clean == d || strings.HasPrefix(clean, d+string(filepath.Separator)) {
			return clean, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideStorage, p)
}

// within joins rel to root and rejects results outside root.
func within(root, rel string) (string, error) {
	cleanRel := path.Clean("/" + filepath.ToSlash(rel))
	full := filepath.Join(root, filepath.FromSlash(cleanRel))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideStorage, rel)
	}
	return full, nil
}

// ListFolder lists the sub-folders and printable files of a folder.
// Folders come first, each group sorted by name.
func (m *Manager) ListFolder(p string) ([]Entry, error) {
	dir, err := m.Resolve(p)
	if err != nil {
		return nil, err
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFolder, p)
		}
		return nil, fmt.Errorf("listing %s: %w", p, err)
	}

	var folders, files []Entry
	for _, item := range items {
		if strings.HasPrefix(item.Name(), ".") {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		switch {
		case item.IsDir():
			folders = append(folders, Entry{Name: item.Name() + "/", DateModified: Timestamp(info.ModTime())})
		case printExtensions[strings.ToLower(filepath.Ext(item.Name()))]:
			files = append(files, Entry{Name: item.Name(), DateModified: Timestamp(info.ModTime())})
		}
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return append(folders, files...), nil
}

// Rename moves a file or folder within storage. It returns the new entry.
func (m *Manager) Rename(from, to string) (Entry, error) {
	src, err := m.Resolve(from)
	if err != nil {
		return Entry{}, err
	}
	dst, err := m.Resolve(to)
	if err != nil {
		return Entry{}, err
	}
	if err := os.Rename(src, dst); err != nil {
		return Entry{}, fmt.Errorf("renaming %s: %w", from, err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return Entry{}, fmt.Errorf("renaming %s: %w", from, err)
	}
	return Entry{Name: path.Base(filepath.ToSlash(dst)), DateModified: Timestamp(info.ModTime())}, nil
}

// PreparePrint returns the uploads file for a request path. Files on
// external drives are copied into the uploads folder first.
func (m *Manager) PreparePrint(p string) (PrintFile, error) {
	src, err := m.Resolve(p)
	if err != nil {
		return PrintFile{}, err
	}

	local := src
	if !strings.HasPrefix(p, DevicePrefix) {
		local = filepath.Join(m.uploadsDir, filepath.Base(src))
		m.logger.Debug("copying external file to uploads", "from", src, "to", local)
		if err := copyFile(src, local); err != nil {
			return PrintFile{}, fmt.Errorf("copying %s: %w", p, err)
		}
	}

	info, err := os.Stat(local)
	if err != nil {
		return PrintFile{}, fmt.Errorf("reading %s: %w", p, err)
	}
	if info.IsDir() {
		return PrintFile{}, fmt.Errorf("%s is a folder", p)
	}
	rel, err := filepath.Rel(m.uploadsDir, local)
	if err != nil {
		return PrintFile{}, err
	}
	rel = filepath.ToSlash(rel)
	return PrintFile{
		PrintPath:   DevicePrefix + rel,
		UploadsPath: rel,
		Name:        info.Name(),
		Size:        info.Size(),
		Modified:    info.ModTime(),
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Timestamp formats t as ISO-8601 UTC with milliseconds.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
