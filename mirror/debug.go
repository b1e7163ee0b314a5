package mirror

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Debug wraps any Target and logs every call plus its duration.
type Debug struct {
	target Target
	logger *slog.Logger
}

// NewDebug wraps target with debug logging via logger.
func NewDebug(target Target, logger *slog.Logger) *Debug {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debug{target: target, logger: logger}
}

// Upload implements Target.
func (d *Debug) Upload(ctx context.Context, key string, body io.Reader, bodySize int64, contentType string) error {
	start := time.Now()
	err := d.target.Upload(ctx, key, body, bodySize, contentType)
	d.logger.Debug("mirror upload", "key", key, "size", bodySize, "content_type", contentType, "duration", time.Since(start), "error", err)
	return err
}

// Clear implements Target.
func (d *Debug) Clear(ctx context.Context) error {
	start := time.Now()
	err := d.target.Clear(ctx)
	d.logger.Debug("mirror clear", "duration", time.Since(start), "error", err)
	return err
}

// Close implements Target.
func (d *Debug) Close() error {
	err := d.target.Close()
	d.logger.Debug("mirror close", "error", err)
	return err
}
