package scan

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdh8316/wprecon/internal/identity"
)

func mediaSite(t *testing.T) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/wp-json/wp/v2/media":
			if r.URL.Query().Get("page") != "1" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			fmt.Fprintf(w, `[
				{"source_url":"%[1]s/wp-content/uploads/logo.png","author":1,"date_gmt":"2024-01-01T00:00:00","modified_gmt":"2024-01-02T00:00:00","title":{"rendered":"Logo"}},
				{"source_url":"%[1]s/wp-content/uploads/cv.pdf","author":9,"date_gmt":"2024-02-01T00:00:00","modified_gmt":"2024-02-01T00:00:00","title":{"rendered":"CV"}}
			]`, srv.URL)
		case strings.HasPrefix(r.URL.Path, "/wp-content/uploads/"):
			if r.Header.Get("Cookie") != "session=abc" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte("file"))
		default:
			http.NotFound(w, r)
		}
	}))
	return srv
}

func TestMedia(t *testing.T) {
	t.Parallel()

	srv := mediaSite(t)
	defer srv.Close()

	dir := t.TempDir()
	prefix := filepath.Join(dir, "report")
	downloads := filepath.Join(dir, "media")

	s, buf := newTestScanner(t, srv, Options{
		OutputPrefix: prefix,
		DownloadDir:  downloads,
		Headers:      http.Header{"Cookie": []string{"session=abc"}},
	})

	users := identity.NewRegistry()
	users.Enrich(1, "jdoe", "Jane Doe")

	sources := s.Media(context.Background(), users)
	want := []string{
		srv.URL + "/wp-content/uploads/cv.pdf",
		srv.URL + "/wp-content/uploads/logo.png",
	}
	assert.Equal(t, want, sources)

	out := buf.String()
	assert.Contains(t, out, "Logo, jdoe, 2024-01-01T00:00:00, 2024-01-02T00:00:00")
	assert.Contains(t, out, "CV, 9, ")

	b, err := os.ReadFile(prefix + "-media.txt")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(want, "\n"), string(b))

	// Downloads carry the user supplied headers.
	entries, err := os.ReadDir(downloads)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMedia_Unavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s, buf := newTestScanner(t, srv, Options{})
	assert.Nil(t, s.Media(context.Background(), nil))
	assert.Contains(t, buf.String(), "API is not available")
}

func TestAuthorLabel(t *testing.T) {
	t.Parallel()

	users := identity.NewRegistry()
	users.Enrich(1, "jdoe", "")
	users.Enrich(2, "", "Ed")

	assert.Equal(t, "jdoe", authorLabel(users, 1))
	assert.Equal(t, "Ed", authorLabel(users, 2))
	assert.Equal(t, "3", authorLabel(users, 3))
	assert.Equal(t, "3", authorLabel(nil, 3))
}
