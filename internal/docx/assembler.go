// Package docx fills a WordprocessingML template with quiz content.
//
// Only word/document.xml is edited and only by splicing whole top-level body
// blocks, so everything the template author wrote outside the marker region is
// preserved byte for byte.
package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"quiz-publisher/internal/domain"
)

const (
	StartMarker = "<<START_CONTENT>>"
	EndMarker   = "<<END_CONTENT>>"

	documentPart = "word/document.xml"
)

type Assembler struct {
	logger *slog.Logger
}

type Option func(*Assembler)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		a.logger = logger
	}
}

func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble writes template to path with the intro and questions placed between
// the content markers. When either marker is missing the template is written
// unmodified and degraded is true.
func (a *Assembler) Assemble(template []byte, intro string, questions []domain.QuestionRecord, path string) (bool, error) {
	zr, err := zip.NewReader(bytes.NewReader(template), int64(len(template)))
	if err != nil {
		return false, fmt.Errorf("open template archive: %w", err)
	}
	var part *zip.File
	for _, f := range zr.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return false, fmt.Errorf("template has no %s", documentPart)
	}
	raw, err := readPart(part)
	if err != nil {
		return false, err
	}

	body, err := parseBody(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", documentPart, err)
	}

	out := template
	start, end := body.markers()
	degraded := start < 0 || end < 0
	if degraded {
		a.logger.Warn("content markers not found, writing template unmodified",
			"start_marker", start >= 0,
			"end_marker", end >= 0,
			"path", path,
		)
	} else {
		doc := body.splice(raw, start, end, intro, questions)
		if out, err = rewrite(zr, doc); err != nil {
			return false, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return degraded, fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return degraded, fmt.Errorf("write document: %w", err)
	}
	return degraded, nil
}

func readPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

// rewrite copies every archive member in order, replacing the main document part.
func rewrite(zr *zip.Reader, doc []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		if f.Name != documentPart {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("copy %s: %w", f.Name, err)
			}
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", f.Name, err)
		}
		if _, err := w.Write(doc); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
