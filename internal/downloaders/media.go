// Package downloaders saves files discovered during a scan.
package downloaders

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/wprecon/internal/httpx"
)

const maxConcurrentDownloads = 6

// Request carries the identity every download is sent with, so media
// requests look like the probes that discovered them.
type Request struct {
	UserAgent string
	Headers   http.Header
}

// DownloadMedia fetches every URL in uris into outDir with bounded
// concurrency. Individual failures are logged; the returned error only
// summarises how many downloads failed.
func DownloadMedia(ctx context.Context, client httpx.Doer, r Request, uris []string, outDir string, log logrus.FieldLogger) error {
	if client == nil {
		return errors.New("media downloader: nil http client")
	}
	if outDir == "" {
		return errors.New("media downloader: empty outDir")
	}
	if r.UserAgent == "" {
		r.UserAgent = httpx.DefaultUserAgent
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "media downloader: create outDir")
	}

	sem := make(chan struct{}, maxConcurrentDownloads)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed int

	for i, mediaURL := range uris {
		wg.Add(1)

		go func() {
			defer wg.Done()

			select {
			case <-ctx.Done():
				mu.Lock()
				failed++
				mu.Unlock()
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			if err := downloadOne(ctx, client, r, outDir, i, mediaURL); err != nil {
				log.WithError(err).WithField("url", mediaURL).Warn("media download failed")
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if failed > 0 {
		return fmt.Errorf("media downloader: %d of %d download(s) failed", failed, len(uris))
	}

	log.WithField("dir", outDir).Infof("downloaded %d media file(s)", len(uris))
	return nil
}

// FileName derives a local name for mediaURL, prefixed by index so that
// equal base names from different upload folders do not collide.
func FileName(index int, mediaURL string) (string, error) {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return "", errors.Wrap(err, "parse media url")
	}

	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		base = "media.bin"
	}
	base = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '_'
		}
		return r
	}, base)

	return fmt.Sprintf("%03d-%s", index, base), nil
}

func downloadOne(ctx context.Context, client httpx.Doer, r Request, outDir string, index int, mediaURL string) error {
	name, err := FileName(index, mediaURL)
	if err != nil {
		return err
	}

	finalPath := filepath.Join(outDir, name)
	tmpPath := finalPath + ".part"

	req, err := httpx.NewRequest(ctx, http.MethodGet, mediaURL, nil, r.UserAgent)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "*/*")
	httpx.ApplyHeaders(req, r.Headers)

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", mediaURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s: %s", mediaURL, resp.Status)
	}

	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "create file %s", tmpPath)
	}

	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(copyErr, "write %s", tmpPath)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(closeErr, "close %s", tmpPath)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "rename %s -> %s", tmpPath, finalPath)
	}

	return nil
}
