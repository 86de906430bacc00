package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// DefaultBufferSize is the read buffer used while concatenating chunks.
const DefaultBufferSize = 8 * 1024

// ErrEmptyOutput means no chunk contributed a single byte.
var ErrEmptyOutput = errors.New("merge produced empty output")

// MissingChunk is a chunk that was skipped during a merge.
type MissingChunk struct {
	Index int
	Path  string
	Err   error
}

type Result struct {
	Path    string
	Size    int64
	Missing []MissingChunk
}

// Merger concatenates chunk files, in the given order, into dest.
type Merger interface {
	Merge(ctx context.Context, chunks []string, dest string) (Result, error)
}

// ConcatMerger joins chunks as a raw byte stream. Frames are not
// re-encoded; memory use is one buffer regardless of total length.
type ConcatMerger struct {
	bufferSize int
	logger     *log.Logger
	open       func(name string) (io.ReadCloser, error)
}

func NewConcatMerger(bufferSize int, logger *log.Logger) *ConcatMerger {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &ConcatMerger{
		bufferSize: bufferSize,
		logger:     logger.With("component", "merge"),
		open:       func(name string) (io.ReadCloser, error) { return os.Open(name) },
	}
}

func (m *ConcatMerger) Merge(ctx context.Context, chunks []string, dest string) (Result, error) {
	res := Result{Path: dest}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}

	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return res, fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(part)

	buf := make([]byte, m.bufferSize)
	for i, path := range chunks {
		if err := ctx.Err(); err != nil {
			out.Close()
			return res, err
		}
		n, err := m.copyChunk(out, path, buf)
		res.Size += n
		if err != nil {
			var we *writeError
			if errors.As(err, &we) {
				out.Close()
				return res, fmt.Errorf("write output: %w", we.err)
			}
			res.Missing = append(res.Missing, MissingChunk{Index: i, Path: path, Err: err})
			m.logger.Warn("skipping unreadable chunk", "index", i, "path", path, "error", err)
		}
	}

	if err := out.Close(); err != nil {
		return res, fmt.Errorf("close output: %w", err)
	}
	if res.Size == 0 {
		return res, ErrEmptyOutput
	}
	if err := os.Rename(part, dest); err != nil {
		return res, fmt.Errorf("finalize output: %w", err)
	}
	m.logger.Info("merged chunks", "chunks", len(chunks), "missing", len(res.Missing), "bytes", humanize.Bytes(uint64(res.Size)))
	return res, nil
}

type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }

// copyChunk streams one source file into dst through buf. Read failures are
// returned as-is (the chunk is skipped); write failures are wrapped in
// writeError since they make the whole output unusable.
func (m *ConcatMerger) copyChunk(dst io.Writer, path string, buf []byte) (int64, error) {
	src, err := m.open(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, &writeError{err: werr}
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
