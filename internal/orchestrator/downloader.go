package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mishka251/goszakupki-parces/internal/config"
	"github.com/mishka251/goszakupki-parces/internal/remote"
)

// Source is the remote side of a region: listing and retrieval over one
// connection. Calls are never issued concurrently.
type Source interface {
	List(ctx context.Context, dir string) ([]remote.Entry, error)
	Retrieve(ctx context.Context, dir, name string) ([]byte, error)
	Close() error
}

// Dialer opens a fresh Source.
type Dialer func(ctx context.Context) (Source, error)

// FTPDialer dials the configured FTP server anonymously.
func FTPDialer(cfg config.Config, logger *slog.Logger) Dialer {
	return func(ctx context.Context) (Source, error) {
		s, err := remote.Dial(ctx, remote.Options{
			Host:     cfg.FTPHost,
			User:     cfg.FTPUser,
			Password: cfg.FTPPassword,
			Timeout:  cfg.FTPTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// fetchResult is one retrieved archive handed from the download goroutine to
// the processing loop.
type fetchResult struct {
	name     string
	data     []byte
	err      error
	duration time.Duration
}

// isFileError reports whether a retrieval failure concerns only that file,
// leaving the connection usable for the next one.
func isFileError(err error) bool {
	var protoErr *remote.ProtocolError
	return errors.As(err, &protoErr)
}

// runSequentialDownloads retrieves names in order on a single goroutine. The
// returned channel holds at most capacity finished downloads, so retrieval of
// the next archive overlaps processing of the current one. The channel is
// closed after the last name, on cancellation, or after a connection-level
// failure, which is delivered as the final result.
func runSequentialDownloads(ctx context.Context, src Source, dir string, names []string, capacity int, logger *slog.Logger) <-chan fetchResult {
	out := make(chan fetchResult, capacity)
	go func() {
		defer close(out)
		for i, name := range names {
			if ctx.Err() != nil {
				return
			}
			start := time.Now()
			data, err := src.Retrieve(ctx, dir, name)
			res := fetchResult{name: name, data: data, err: err, duration: time.Since(start)}
			if err == nil {
				logger.Debug("Archive downloaded.", slog.String("file", name), slog.Int("bytes", len(data)), slog.Duration("duration", res.duration), slog.Int("num", i+1), slog.Int("total", len(names)))
			}
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
			if err != nil && !isFileError(err) {
				return
			}
		}
		logger.Debug("Downloader goroutine finished.")
	}()
	return out
}
