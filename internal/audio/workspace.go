package audio

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileRef points at a produced audio file.
type FileRef struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Workspace is the scoped working area for chunk and final files. Each job
// writes under its own subdirectory and every file name carries a random
// suffix, so concurrent jobs never touch each other's files.
type Workspace struct {
	dir     string
	baseURL string
}

func NewWorkspace(dir, baseURL string) (*Workspace, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("workspace dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (w *Workspace) Dir() string { return w.dir }

func (w *Workspace) jobDir(jobID string) string {
	return filepath.Join(w.dir, filepath.Base(jobID))
}

// ChunkPath returns a fresh, unique path for the audio of unit index.
func (w *Workspace) ChunkPath(jobID string, index int, ext string) string {
	return filepath.Join(w.jobDir(jobID), fmt.Sprintf("chunk-%04d-%s.%s", index, shortID(), cleanExt(ext)))
}

// FinalPath returns a fresh, unique path for a job's merged output.
func (w *Workspace) FinalPath(jobID, ext string) string {
	return filepath.Join(w.jobDir(jobID), fmt.Sprintf("podcast-%s.%s", shortID(), cleanExt(ext)))
}

// WriteFile stores data at path (creating the job directory) and returns
// its reference.
func (w *Workspace) WriteFile(path string, data []byte) (FileRef, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return FileRef{}, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return FileRef{}, err
	}
	return FileRef{Path: path, URL: w.URL(path), Size: int64(len(data))}, nil
}

// URL maps a workspace path to its public URL. Paths outside the workspace
// have no URL.
func (w *Workspace) URL(path string) string {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return w.baseURL + "/" + strings.Join(parts, "/")
}

// RemoveJob deletes every file a job has written.
func (w *Workspace) RemoveJob(jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return errors.New("job id is required")
	}
	return os.RemoveAll(w.jobDir(jobID))
}

// RemoveFiles deletes the given files, ignoring ones already gone.
func (w *Workspace) RemoveFiles(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func cleanExt(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		return "mp3"
	}
	return ext
}

// Chunk is the synthesized audio for one unit, in merge order.
type Chunk struct {
	Index   int    `json:"index"`
	Speaker string `json:"speaker"`
	Voice   string `json:"voice"`
	FileRef
}

// ChunkPaths returns the file paths of chunks in slice order.
func ChunkPaths(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Path
	}
	return out
}
