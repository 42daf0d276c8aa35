package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	DocumentExt = ".xml"
	ArchiveExt  = ".zip"
)

// ignoredExts are siblings of notification documents that carry no data,
// detached signatures in particular.
var ignoredExts = []string{".sig"}

// ErrTooLarge is wrapped by ArchiveError when the decompressed content of one
// source archive exceeds the configured budget.
var ErrTooLarge = errors.New("decompressed size limit exceeded")

// File is a named blob: a downloaded archive or a leaf document inside one.
type File struct {
	Name string
	Data []byte
}

// ArchiveError means the source archive could not be read as a container.
// Callers skip the file and continue with the batch.
type ArchiveError struct {
	Name string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Name, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// Extractor flattens nested zip containers into leaf documents.
type Extractor struct {
	// MaxDepth is the number of container levels that will be opened; the
	// source archive itself is level one.
	MaxDepth int
	// MaxBytes caps the total decompressed bytes read out of one source archive.
	// Zero disables the cap.
	MaxBytes int64
	Logger   *slog.Logger
}

func New(maxDepth int, maxBytes int64, logger *slog.Logger) *Extractor {
	return &Extractor{MaxDepth: maxDepth, MaxBytes: maxBytes, Logger: logger}
}

type workItem struct {
	file  File
	depth int
}

// Extract returns the leaf documents contained in src, in archive order.
// Only a failure to open src itself (or an exhausted size budget) is returned
// as an error; unreadable nested entries are logged and skipped.
func (x *Extractor) Extract(ctx context.Context, src File) ([]File, error) {
	l := x.Logger.With(slog.String("archive", src.Name))

	var leaves []File
	var read int64
	stack := []workItem{{file: src, depth: 0}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return leaves, err
		}
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		name := strings.ToLower(item.file.Name)

		switch {
		case strings.HasSuffix(name, DocumentExt):
			leaves = append(leaves, item.file)

		case strings.HasSuffix(name, ArchiveExt):
			if item.depth >= x.MaxDepth {
				if item.depth == 0 {
					return nil, &ArchiveError{Name: src.Name, Err: fmt.Errorf("nesting depth limit %d", x.MaxDepth)}
				}
				l.Warn("Nested archive exceeds depth limit, skipping.", slog.String("entry", item.file.Name), slog.Int("depth", item.depth))
				continue
			}
			children, n, err := x.open(item.file, x.remaining(read))
			read += n
			if err != nil {
				if item.depth == 0 || errors.Is(err, ErrTooLarge) {
					return nil, &ArchiveError{Name: src.Name, Err: err}
				}
				l.Warn("Failed to open nested archive, skipping.", slog.String("entry", item.file.Name), "error", err)
				continue
			}
			// Push in reverse so entries pop in archive order.
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, workItem{file: children[i], depth: item.depth + 1})
			}

		case isIgnored(name):
			l.Debug("Ignoring non-document entry.", slog.String("entry", item.file.Name))

		default:
			l.Warn("Unknown file type, skipping.", slog.String("entry", item.file.Name))
		}
	}
	return leaves, nil
}

func (x *Extractor) remaining(read int64) int64 {
	if x.MaxBytes <= 0 {
		return -1
	}
	return x.MaxBytes - read
}

// open reads every non-directory entry of a zip blob. budget < 0 means unlimited.
// It returns the number of decompressed bytes consumed.
func (x *Extractor) open(f File, budget int64) ([]File, int64, error) {
	zr, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return nil, 0, fmt.Errorf("create zip reader: %w", err)
	}

	var files []File
	var read int64
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			x.Logger.Warn("Failed to open archive entry, skipping.", slog.String("archive", f.Name), slog.String("entry", zf.Name), "error", err)
			continue
		}
		var r io.Reader = rc
		if budget >= 0 {
			r = io.LimitReader(rc, budget-read+1)
		}
		data, err := io.ReadAll(r)
		rc.Close()
		read += int64(len(data))
		if budget >= 0 && read > budget {
			return nil, read, ErrTooLarge
		}
		if err != nil {
			x.Logger.Warn("Failed to read archive entry, skipping.", slog.String("archive", f.Name), slog.String("entry", zf.Name), "error", err)
			continue
		}
		files = append(files, File{Name: zf.Name, Data: data})
	}
	return files, read, nil
}

func isIgnored(name string) bool {
	for _, ext := range ignoredExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
