package scan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdh8316/wprecon/internal/probe"
)

func writeWordlist(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestDiscover_ConfigsFromUserWordlist(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.env", "/wp-config.old":
			_, _ = w.Write([]byte("DB_PASSWORD=x"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	words := writeWordlist(t, "/wp-config.\n\n/.env\n")
	s, buf := newTestScanner(t, srv, Options{Wordlists: map[probe.Category]string{probe.Configs: words}})

	findings := s.Discover(context.Background(), probe.Configs, "")
	assert.Equal(t, []string{srv.URL + "/.env", srv.URL + "/wp-config.old"}, findingURLs(findings))
	for _, f := range findings {
		assert.Equal(t, probe.Configs, f.Category)
	}
	assert.Contains(t, buf.String(), "Configuration files discovery")
}

func TestDiscover_NothingFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s, buf := newTestScanner(t, srv, Options{})
	assert.Empty(t, s.Discover(context.Background(), probe.Dangerous, ""))
	assert.Contains(t, buf.String(), "No dangerous scripts discovered")
}

func TestDiscover_FPDAlwaysUsesGet(t *testing.T) {
	t.Parallel()

	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
		}
		if r.URL.Path == "/wp-includes/rss-functions.php" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("Fatal error: Call to undefined function in /var/www/html/wp-includes/rss-functions.php on line 8"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	words := writeWordlist(t, "/wp-includes/rss-functions.php\n")
	s, _ := newTestScanner(t, srv, Options{
		HeadAllowed: true,
		Wordlists:   map[probe.Category]string{probe.FPD: words},
	})

	findings := s.Discover(context.Background(), probe.FPD, "")
	require.Len(t, findings, 1)
	assert.Equal(t, "/var/www/html/wp-includes/rss-functions.php", findings[0].Evidence)
	assert.Zero(t, heads.Load())
}

func TestDiscover_DangerousNeedle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/info.php":
			_, _ = w.Write([]byte("<title>phpinfo()</title>"))
		case "/other.php":
			_, _ = w.Write([]byte("hello"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	words := writeWordlist(t, "/info.php\n/other.php\n")
	s, _ := newTestScanner(t, srv, Options{Wordlists: map[probe.Category]string{probe.Dangerous: words}})

	findings := s.Discover(context.Background(), probe.Dangerous, "PHPINFO()")
	assert.Equal(t, []string{srv.URL + "/info.php"}, findingURLs(findings))
}

func TestListing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/wp-content/uploads/" {
			_, _ = w.Write([]byte("<h1>Index of /wp-content/uploads</h1>"))
			return
		}
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	s, buf := newTestScanner(t, srv, Options{})
	findings := s.Listing(context.Background(), []string{
		srv.URL + "/wp-content/uploads",
		srv.URL + "/wp-content/uploads/",
		srv.URL + "/wp-content/themes",
	})

	assert.Equal(t, []string{srv.URL + "/wp-content/uploads/"}, findingURLs(findings))
	assert.Contains(t, buf.String(), "[-] "+srv.URL+"/wp-content/themes/")
}

func TestListingURLs(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	words := writeWordlist(t, "/wp-content/uploads/\nwp-includes/\n")
	s, _ := newTestScanner(t, srv, Options{Wordlists: map[probe.Category]string{probe.DirectoryListing: words}})

	assert.Equal(t, []string{
		srv.URL + "/wp-content/uploads/",
		srv.URL + "/wp-includes/",
		srv.URL + "/wp-content/themes/astra/",
		srv.URL + "/wp-content/plugins/akismet/",
	}, s.ListingURLs([]string{"astra"}, []string{"akismet"}))
}

func TestReadme(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/readme.html", "/wp-content/plugins/akismet/readme.txt":
			_, _ = w.Write([]byte("readme"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, _ := newTestScanner(t, srv, Options{})
	findings := s.Readme(context.Background(), []string{"astra"}, []string{"akismet"})
	assert.Equal(t, []string{
		srv.URL + "/readme.html",
		srv.URL + "/wp-content/plugins/akismet/readme.txt",
	}, findingURLs(findings))

	for _, f := range findings {
		assert.Equal(t, probe.Readme, f.Category)
	}
}
