package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/pinpoint/internal/fetcher"
	"github.com/scrypster/pinpoint/internal/telemetry"
	"github.com/scrypster/pinpoint/pkg/types"
)

// Defaults.
const (
	DefaultMaxBytes = 8 << 20
	DefaultTimeout  = 8 * time.Second

	// RoutePrefix is where hosted files are served.
	RoutePrefix = "/media/"
)

var (
	// ErrNotImage is returned when the downloaded body is not a supported photo format.
	ErrNotImage = errors.New("media: not a supported image")
	// ErrTooLarge is returned when the image exceeds the size cap.
	ErrTooLarge = errors.New("media: image too large")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/avif": ".avif",
	"image/heic": ".heic",
}

// FileHostOptions configures a FileHost.
type FileHostOptions struct {
	Dir           string
	PublicBaseURL string
	MaxBytes      int64
	Timeout       time.Duration
}

// FileHost downloads images and writes them under Dir with random names.
// Identical bytes are stored once.
type FileHost struct {
	fetch    *fetcher.Fetcher
	dir      string
	baseURL  string
	maxBytes int64
	timeout  time.Duration
	now      func() time.Time

	mu     sync.Mutex
	byHash map[string]string
}

// NewFileHost creates the data directory if needed.
func NewFileHost(f *fetcher.Fetcher, opts FileHostOptions) (*FileHost, error) {
	if opts.Dir == "" {
		return nil, errors.New("media: data directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create %s: %w", opts.Dir, err)
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &FileHost{
		fetch:    f,
		dir:      opts.Dir,
		baseURL:  strings.TrimRight(opts.PublicBaseURL, "/"),
		maxBytes: opts.MaxBytes,
		timeout:  opts.Timeout,
		now:      time.Now,
		byHash:   make(map[string]string),
	}, nil
}

// Dir returns the directory hosted files are written to.
func (h *FileHost) Dir() string {
	return h.dir
}

// Host downloads c.URL (SSRF-guarded) and stores it.
func (h *FileHost) Host(ctx context.Context, c Candidate) (types.ImageRecord, error) {
	res := h.fetch.Do(ctx, fetcher.Request{
		Provider: "media",
		URL:      c.URL,
		Header:   http.Header{"Accept": {"image/avif,image/webp,image/jpeg,image/png;q=0.9"}},
		Timeout:  h.timeout,
		MaxBytes: h.maxBytes,
		Guarded:  true,
	})
	if !res.OK() {
		return types.ImageRecord{}, fmt.Errorf("media: download %s: %w", c.URL, res.Err)
	}
	if res.Truncated {
		return types.ImageRecord{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, h.maxBytes)
	}

	ext, err := extensionFor(res.Header.Get("Content-Type"), res.Body)
	if err != nil {
		return types.ImageRecord{}, err
	}

	name, err := h.store(res.Body, ext)
	if err != nil {
		return types.ImageRecord{}, err
	}

	telemetry.ImagesHosted.WithLabelValues(string(c.Source)).Inc()
	return types.ImageRecord{
		URL:       h.baseURL + RoutePrefix + name,
		Source:    c.Source,
		SourceURL: c.URL,
		FetchedAt: h.now().UTC(),
	}, nil
}

// store writes body atomically and returns the file name.
func (h *FileHost) store(body []byte, ext string) (string, error) {
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])

	h.mu.Lock()
	defer h.mu.Unlock()
	if name, ok := h.byHash[hash]; ok {
		if _, err := os.Stat(filepath.Join(h.dir, name)); err == nil {
			return name, nil
		}
	}

	name := uuid.NewString() + ext
	tmp, err := os.CreateTemp(h.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("media: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("media: write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("media: close image: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(h.dir, name)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("media: publish image: %w", err)
	}
	h.byHash[hash] = name
	return name, nil
}

// extensionFor trusts a declared image/* type only when the body agrees,
// and falls back to sniffing for missing or generic types.
func extensionFor(contentType string, body []byte) (string, error) {
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(body))
	declared, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		declared = ""
	}
	declared = strings.ToLower(declared)

	if ext, ok := extensions[declared]; ok {
		if sniffed == declared || (ext == ".jpg" && sniffed == "image/jpeg") {
			return ext, nil
		}
		// The sniffer may not recognize avif/heic.
		if (ext == ".avif" || ext == ".heic") && sniffed == "application/octet-stream" {
			return ext, nil
		}
		return "", fmt.Errorf("%w: declared %s but body is %s", ErrNotImage, declared, sniffed)
	}
	if declared != "" && declared != "application/octet-stream" && !strings.HasPrefix(declared, "binary/") {
		return "", fmt.Errorf("%w: content type %s", ErrNotImage, declared)
	}
	if ext, ok := extensions[sniffed]; ok {
		return ext, nil
	}
	return "", fmt.Errorf("%w: content type %s", ErrNotImage, sniffed)
}
