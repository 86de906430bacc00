package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// FFmpegMerger re-encodes chunks through ffmpeg's concat demuxer. It yields
// a cleaner stream than raw concatenation when providers emit differing
// frame headers.
type FFmpegMerger struct {
	binary  string
	bitrate string
	logger  *log.Logger
	runner  commandRunner
}

func NewFFmpegMerger(binary, bitrate string, logger *log.Logger) *FFmpegMerger {
	if binary == "" {
		binary = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = "192k"
	}
	return &FFmpegMerger{
		binary:  binary,
		bitrate: bitrate,
		logger:  logger.With("component", "ffmpeg"),
		runner:  execRunner{},
	}
}

func (m *FFmpegMerger) Merge(ctx context.Context, chunks []string, dest string) (Result, error) {
	res := Result{Path: dest}
	var present []string
	for i, path := range chunks {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			err = errors.New("is a directory")
		}
		if err != nil {
			res.Missing = append(res.Missing, MissingChunk{Index: i, Path: path, Err: err})
			m.logger.Warn("skipping unreadable chunk", "index", i, "path", path, "error", err)
			continue
		}
		if info.Size() == 0 {
			continue
		}
		present = append(present, path)
	}
	if len(present) == 0 {
		return res, ErrEmptyOutput
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	list := dest + ".txt"
	if err := os.WriteFile(list, []byte(concatList(present)), 0o644); err != nil {
		return res, fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(list)

	out, err := m.runner.Run(ctx, m.binary,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0", "-i", list,
		"-c:a", "libmp3lame", "-b:a", m.bitrate,
		dest,
	)
	if err != nil {
		return res, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(out)))
	}

	info, err := os.Stat(dest)
	if err != nil {
		return res, fmt.Errorf("stat output: %w", err)
	}
	res.Size = info.Size()
	if res.Size == 0 {
		_ = os.Remove(dest)
		return res, ErrEmptyOutput
	}
	return res, nil
}

// concatList renders the concat demuxer input, one quoted file per line.
func concatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}
