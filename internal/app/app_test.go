package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, Run(context.Background(), []string{"--help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "usage:")
}

func TestRun_InvalidInput(t *testing.T) {
	cases := map[string][]string{
		"no target":  {"--no-color"},
		"bad scheme": {"--no-color", "ftp://example.com"},
		"bad header": {"--no-color", "-H", "nocolon", "example.com"},
		"bad proxy":  {"--no-color", "--no-output", "--proxy", "gopher://x", "example.com"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := Run(context.Background(), args, &stdout, &stderr)
			assert.NotZero(t, code)
			assert.NotEmpty(t, stderr.String())
		})
	}
}

func TestRun_ScansSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wp-config.php.bak":
			_, _ = w.Write([]byte("<?php define('DB_PASSWORD', 'x');"))
		case "/readme.html":
			_, _ = w.Write([]byte("readme"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	results := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"--no-color",
		"--results", results,
		"--author-range", "1-2",
		"--discover", "configs",
		srv.URL,
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "[+] "+srv.URL+"/wp-config.php.bak")
	assert.Contains(t, out, "[+] "+srv.URL+"/readme.html")
	assert.Contains(t, out, "Summary")

	report, err := os.ReadFile(filepath.Join(results, "127.0.0.1", "out.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(report), srv.URL+"/wp-config.php.bak")
}

func TestRun_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	code := Run(ctx, []string{"--no-color", "--no-output", srv.URL}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stderr.String(), "scan interrupted")
}

func TestIsTerminal(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, isTerminal(&buf))

	f, err := os.Create(filepath.Join(t.TempDir(), "stdout"))
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, isTerminal(f))
}
