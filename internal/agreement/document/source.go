// Package document fetches agreement text from an external source and keeps
// the last good copy available. A failed refresh never discards a cached
// copy: availability is preferred over freshness.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// DefaultMaxDocumentBytes is the size limit used when a source sets none.
const DefaultMaxDocumentBytes = 8 << 20

// ErrDocumentTooLarge is returned instead of a truncated document.
var ErrDocumentTooLarge = errors.New("document exceeds size limit")

// Source reads the raw text of the agreement identified by id.
type Source interface {
	Fetch(ctx context.Context, id string) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, id string) (string, error)

func (f SourceFunc) Fetch(ctx context.Context, id string) (string, error) {
	return f(ctx, id)
}

// HTTPSource fetches agreement text over HTTP. A "{id}" placeholder in URL is
// replaced by the requested document id. PDF responses are converted to
// plain text.
type HTTPSource struct {
	URL    string
	Client *http.Client
	// MaxBytes caps the response body; zero means DefaultMaxDocumentBytes.
	MaxBytes int64
}

// NewHTTPSource returns an HTTPSource with a client bounded by timeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Fetch(ctx context.Context, id string) (string, error) {
	target := strings.ReplaceAll(s.URL, "{id}", id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("building document request: %w", err)
	}
	req.Header.Set("Accept", "text/plain, application/pdf")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching document %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetching document %s: unexpected status %d", id, resp.StatusCode)
	}
	data, err := readLimited(resp.Body, s.MaxBytes)
	if err != nil {
		return "", fmt.Errorf("reading document %s: %w", id, err)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/pdf") {
		return pdfText(bytes.NewReader(data), int64(len(data)))
	}
	return string(data), nil
}

// FileSource reads the agreement from a local .txt, .md or .pdf file. The
// id is ignored; one file holds one agreement.
type FileSource struct {
	Path string
	// MaxBytes caps the file size; zero means DefaultMaxDocumentBytes.
	MaxBytes int64
}

func (s *FileSource) Fetch(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", s.Path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(s.Path), ".pdf") {
		info, err := f.Stat()
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", s.Path, err)
		}
		if limit := sizeLimit(s.MaxBytes); info.Size() > limit {
			return "", fmt.Errorf("reading %s: %w (%d > %d bytes)", s.Path, ErrDocumentTooLarge, info.Size(), limit)
		}
		return pdfText(f, info.Size())
	}
	data, err := readLimited(f, s.MaxBytes)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", s.Path, err)
	}
	return string(data), nil
}

func sizeLimit(maxBytes int64) int64 {
	if maxBytes <= 0 {
		return DefaultMaxDocumentBytes
	}
	return maxBytes
}

// readLimited reads one byte past the limit so an oversized body is
// detected rather than cut short.
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	limit := sizeLimit(maxBytes)
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (more than %d bytes)", ErrDocumentTooLarge, limit)
	}
	return data, nil
}

func pdfText(r io.ReaderAt, size int64) (string, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("parsing pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}
