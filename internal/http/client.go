package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotFound is returned when a repository answers 404 or 410
var ErrNotFound = errors.New("not found")

// StatusError is a non-success HTTP answer
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && (e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone)
}

// ProgressFunc reports bytes transferred out of total; total is -1 when unknown
type ProgressFunc func(transferred, total int64)

// Downloader fetches artifacts from Maven-layout repositories
type Downloader struct {
	client    *http.Client
	userAgent string
}

// NewDownloader creates a downloader. timeout bounds a whole transfer;
// zero disables it, which platform SDK downloads need.
func NewDownloader(timeout time.Duration, userAgent string) *Downloader {
	return &Downloader{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// NewDownloaderWithClient wraps an existing client
func NewDownloaderWithClient(client *http.Client, userAgent string) *Downloader {
	return &Downloader{client: client, userAgent: userAgent}
}

// Fetch streams url into w and returns the number of bytes written
func (d *Downloader) Fetch(ctx context.Context, url string, w io.Writer, progress ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var reader io.Reader = resp.Body
	if progress != nil {
		reader = &progressReader{reader: resp.Body, total: resp.ContentLength, progressFunc: progress}
	}

	n, err := io.Copy(w, reader)
	if err != nil {
		return n, fmt.Errorf("failed to download %s: %w", url, err)
	}
	return n, nil
}

// FetchBytes downloads a small resource such as a checksum file
func (d *Downloader) FetchBytes(ctx context.Context, url string, limit int64) ([]byte, error) {
	var buf limitedBuffer
	buf.limit = limit
	if _, err := d.Fetch(ctx, url, &buf, nil); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// limitedBuffer refuses to grow past limit bytes
type limitedBuffer struct {
	data  []byte
	limit int64
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if int64(len(b.data)+len(p)) > b.limit {
		return 0, fmt.Errorf("response larger than %d bytes", b.limit)
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

// progressReader wraps an io.Reader to track transfer progress
type progressReader struct {
	reader       io.Reader
	transferred  int64
	total        int64
	progressFunc ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.transferred += int64(n)
		if r.progressFunc != nil {
			r.progressFunc(r.transferred, r.total)
		}
	}
	return n, err
}
