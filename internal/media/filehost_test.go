package media

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/pinpoint/internal/fetcher"
	"github.com/scrypster/pinpoint/pkg/types"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func newHost(t *testing.T, maxBytes int64) *FileHost {
	t.Helper()
	f := fetcher.New(fetcher.Options{URLValidator: func(string) error { return nil }})
	h, err := NewFileHost(f, FileHostOptions{
		Dir:           t.TempDir(),
		PublicBaseURL: "https://pins.example/",
		MaxBytes:      maxBytes,
	})
	require.NoError(t, err)
	return h
}

func imageServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/photo.png", "/copy.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngBytes)
		case "/lying.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("<html><body>not an image</body></html>"))
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		case "/untyped":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(pngBytes)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestFileHost_HostsImage(t *testing.T) {
	srv := imageServer()
	defer srv.Close()
	h := newHost(t, 0)

	rec, err := h.Host(context.Background(), Candidate{URL: srv.URL + "/photo.png", Source: types.ImageSourceWebsite})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rec.URL, "https://pins.example/media/"))
	assert.True(t, strings.HasSuffix(rec.URL, ".png"))
	assert.Equal(t, srv.URL+"/photo.png", rec.SourceURL)
	assert.Equal(t, types.ImageSourceWebsite, rec.Source)

	stored, err := os.ReadFile(filepath.Join(h.Dir(), filepath.Base(rec.URL)))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)
}

func TestFileHost_SameBytesStoredOnce(t *testing.T) {
	srv := imageServer()
	defer srv.Close()
	h := newHost(t, 0)
	ctx := context.Background()

	a, err := h.Host(ctx, Candidate{URL: srv.URL + "/photo.png"})
	require.NoError(t, err)
	b, err := h.Host(ctx, Candidate{URL: srv.URL + "/copy.png"})
	require.NoError(t, err)
	assert.Equal(t, a.URL, b.URL)

	entries, err := os.ReadDir(h.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileHost_Rejections(t *testing.T) {
	srv := imageServer()
	defer srv.Close()
	ctx := context.Background()

	h := newHost(t, 0)
	_, err := h.Host(ctx, Candidate{URL: srv.URL + "/page"})
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = h.Host(ctx, Candidate{URL: srv.URL + "/lying.jpg"})
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = h.Host(ctx, Candidate{URL: srv.URL + "/missing.jpg"})
	assert.Error(t, err)

	small := newHost(t, 16)
	_, err = small.Host(ctx, Candidate{URL: srv.URL + "/photo.png"})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFileHost_SniffsGenericContentType(t *testing.T) {
	srv := imageServer()
	defer srv.Close()
	h := newHost(t, 0)

	rec, err := h.Host(context.Background(), Candidate{URL: srv.URL + "/untyped"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(rec.URL, ".png"))
}

func TestNewFileHost_RequiresDir(t *testing.T) {
	_, err := NewFileHost(fetcher.New(fetcher.Options{}), FileHostOptions{})
	assert.Error(t, err)
}
