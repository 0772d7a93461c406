// Package libreoffice converts documents by running an office suite headless.
package libreoffice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"quiz-publisher/internal/domain"
)

const defaultTimeout = 2 * time.Minute

type Converter struct {
	binary  string
	format  string
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Converter)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) {
		c.logger = logger
	}
}

// NewConverter runs binary (e.g. "libreoffice" or "soffice") to produce format.
// format may carry a filter suffix, "pdf:writer_pdf_Export".
func NewConverter(binary, format string, timeout time.Duration, opts ...Option) *Converter {
	if binary == "" {
		binary = "libreoffice"
	}
	if format == "" {
		format = "pdf"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Converter{binary: binary, format: format, timeout: timeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extension is the file extension of converted documents.
func (c *Converter) Extension() string {
	ext, _, _ := strings.Cut(c.format, ":")
	return ext
}

// Convert writes the converted source next to it, then moves the result to target.
func (c *Converter) Convert(ctx context.Context, sourcePath, targetPath string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dir := filepath.Dir(sourcePath)
	profile, err := filepath.Abs(filepath.Join(dir, ".office-profile"))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConversionFailed, err)
	}
	args := []string{
		"-env:UserInstallation=file://" + filepath.ToSlash(profile),
		"--headless",
		"--convert-to", c.format,
		"--outdir", dir,
		sourcePath,
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	cmd.WaitDelay = 5 * time.Second

	started := time.Now()
	err = cmd.Run()
	output := strings.TrimSpace(buf.String())
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s timed out after %s: %s", domain.ErrConversionFailed, c.binary, c.timeout, output)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v: %s", domain.ErrConversionFailed, c.binary, err, output)
	}
	c.logger.Debug("conversion finished", "source", sourcePath, "elapsed", time.Since(started), "output", output)

	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	produced := filepath.Join(dir, stem+"."+c.Extension())
	if _, err := os.Stat(produced); err != nil {
		return fmt.Errorf("%w: expected output %s missing: %s", domain.ErrConversionFailed, produced, output)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("%w: create target directory: %v", domain.ErrConversionFailed, err)
	}
	if err := move(produced, targetPath); err != nil {
		return fmt.Errorf("%w: move output: %v", domain.ErrConversionFailed, err)
	}
	return nil
}

// move renames src to dst, copying when they sit on different filesystems.
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
