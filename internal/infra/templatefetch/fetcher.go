// Package templatefetch downloads the document template from a shared-document URL.
package templatefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quiz-publisher/internal/domain"
)

const (
	shareSuffix  = "/edit?usp=sharing"
	exportSuffix = "/export?format=docx"

	defaultTimeout = 30 * time.Second
	maxTemplate    = 32 << 20
)

type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	limit   int64
}

// NewFetcher uses client when non-nil; timeout bounds each download.
func NewFetcher(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{client: client, timeout: timeout, limit: maxTemplate}
}

// ExportURL turns a "share" link into the direct document export link. Other
// URLs are returned unchanged.
func ExportURL(url string) string {
	return strings.Replace(url, shareSuffix, exportSuffix, 1)
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: template url not configured", domain.ErrTemplateUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ExportURL(url), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTemplateUnavailable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTemplateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: template server returned status %d", domain.ErrTemplateUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrTemplateUnavailable, err)
	}
	if int64(len(body)) > f.limit {
		return nil, fmt.Errorf("%w: template larger than %d bytes", domain.ErrTemplateUnavailable, f.limit)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", domain.ErrTemplateUnavailable)
	}
	return body, nil
}
