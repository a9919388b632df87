package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gallery_style/sdruntime"
)

// DownloadOptions configures DownloadFile.
type DownloadOptions struct {
	URL            string
	DestPath       string
	ExpectedSHA256 string // optional, lowercase hex
	HTTPClient     *http.Client
	// Resume continues from DestPath+".part" when present.
	Resume bool
	// OnProgress receives bytes written so far and the total (-1 if unknown).
	OnProgress func(done, total int64)
}

type DownloadResult struct {
	Path            string
	BytesDownloaded int64
	TotalBytes      int64
	Resumed         bool
	ChecksumValid   bool
}

// HTTPStatusError is an unexpected response status. Method defaults to GET.
type HTTPStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	method := e.Method
	if method == "" {
		method = http.MethodGet
	}
	msg := fmt.Sprintf("%s %s: unexpected status %d %s", method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Retryable reports whether a retry could plausibly succeed.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// DownloadFile streams URL into DestPath. Data lands in a ".part" file that
// is renamed into place only after the optional checksum passes, so a
// partially downloaded model is never picked up as complete.
func DownloadFile(ctx context.Context, opts DownloadOptions) (*DownloadResult, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("download: URL is required")
	}
	if opts.DestPath == "" {
		return nil, fmt.Errorf("download: DestPath is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	if err := os.MkdirAll(filepath.Dir(opts.DestPath), 0755); err != nil {
		return nil, fmt.Errorf("download: create destination directory: %w", err)
	}
	partPath := opts.DestPath + ".part"

	var offset int64
	if opts.Resume {
		if info, err := os.Stat(partPath); err == nil {
			offset = info.Size()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("download: build request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: request failed: %w", err)
	}
	defer resp.Body.Close()

	result := &DownloadResult{Path: opts.DestPath, TotalBytes: -1}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC

	switch resp.StatusCode {
	case http.StatusOK:
		offset = 0
		if resp.ContentLength >= 0 {
			result.TotalBytes = resp.ContentLength
		}
	case http.StatusPartialContent:
		result.Resumed = true
		flags = os.O_WRONLY | os.O_APPEND
		result.TotalBytes = totalFromContentRange(resp.Header.Get("Content-Range"), offset+resp.ContentLength)
	case http.StatusRequestedRangeNotSatisfiable:
		// stale part file; start over once
		_ = os.Remove(partPath)
		opts.Resume = false
		return DownloadFile(ctx, opts)
	default:
		return nil, &HTTPStatusError{URL: opts.URL, StatusCode: resp.StatusCode}
	}

	f, err := os.OpenFile(partPath, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("download: open %s: %w", partPath, err)
	}

	written, err := io.Copy(f, &progressReader{r: resp.Body, done: offset, total: result.TotalBytes, fn: opts.OnProgress})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("download interrupted: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("download: close %s: %w", partPath, err)
	}
	result.BytesDownloaded = written

	if opts.ExpectedSHA256 != "" {
		actual, err := sdruntime.CalculateChecksum(partPath)
		if err != nil {
			return nil, fmt.Errorf("download: checksum: %w", err)
		}
		if !strings.EqualFold(actual, opts.ExpectedSHA256) {
			_ = os.Remove(partPath)
			return nil, fmt.Errorf("%w: checksum mismatch: expected %s, got %s",
				sdruntime.ErrModelCorrupted, opts.ExpectedSHA256, actual)
		}
		result.ChecksumValid = true
	}

	if err := os.Rename(partPath, opts.DestPath); err != nil {
		return nil, fmt.Errorf("download: finalize: %w", err)
	}
	return result, nil
}

// totalFromContentRange parses "bytes 100-199/200".
func totalFromContentRange(header string, fallback int64) int64 {
	if i := strings.LastIndexByte(header, '/'); i >= 0 {
		if total, err := strconv.ParseInt(header[i+1:], 10, 64); err == nil {
			return total
		}
	}
	return fallback
}

type progressReader struct {
	r     io.Reader
	done  int64
	total int64
	last  int64
	fn    func(done, total int64)
}

// progress is reported every 8 MiB and at EOF
const progressStep = 8 << 20

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.done += int64(n)
	if p.fn != nil && (p.done-p.last >= progressStep || errors.Is(err, io.EOF)) {
		p.fn(p.done, p.total)
		p.last = p.done
	}
	return n, err
}
