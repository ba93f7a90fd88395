package ingestion

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/instant-tutor/backend/pkg/logger"
)

const maxDownloadBytes = 2 << 30

var textExtensions = map[string]bool{
	".html": true,
	".htm":  true,
	".txt":  true,
	".vtt":  true,
	".srt":  true,
}

// Source is a locator resolved to a local file.
type Source struct {
	Locator     string
	Path        string
	Ext         string
	ContentType string

	cleanup func()
}

// IsTranscript reports whether the file already holds text rather than
// audio or video.
func (s *Source) IsTranscript() bool {
	if textExtensions[s.Ext] {
		return true
	}
	ct, _, _ := mime.ParseMediaType(s.ContentType)
	return ct == "text/html" || ct == "text/plain" || ct == "text/vtt"
}

// Close removes downloaded files. Local paths are left alone.
func (s *Source) Close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

type Fetcher struct {
	client  *http.Client
	tempDir string
}

func NewFetcher(tempDir string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		tempDir: tempDir,
	}
}

// Fetch downloads http(s) locators into the temp dir and checks that local
// paths exist.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (*Source, error) {
	locator = strings.TrimSpace(locator)
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return f.download(ctx, locator)
	}

	p := strings.TrimPrefix(locator, "file://")
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("media not found: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("media path %s is a directory", p)
	}

	return &Source{
		Locator: locator,
		Path:    p,
		Ext:     strings.ToLower(filepath.Ext(p)),
	}, nil
}

func (f *Fetcher) download(ctx context.Context, locator string) (*Source, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid media url %q", locator)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to download %s: status %d", locator, resp.StatusCode)
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(resp.Header.Get("Content-Type")); len(exts) > 0 {
			ext = exts[0]
		}
	}

	file, err := os.CreateTemp(f.tempDir, "tutor-media-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	name := file.Name()
	cleanup := func() { _ = os.Remove(name) }

	n, err := io.Copy(file, io.LimitReader(resp.Body, maxDownloadBytes))
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to save %s: %w", locator, err)
	}

	logger.Debug("Media downloaded", zap.String("locator", locator), zap.Int64("bytes", n))

	return &Source{
		Locator:     locator,
		Path:        name,
		Ext:         ext,
		ContentType: resp.Header.Get("Content-Type"),
		cleanup:     cleanup,
	}, nil
}
