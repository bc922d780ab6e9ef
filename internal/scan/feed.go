package scan

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	version "github.com/mcuadros/go-version"

	"github.com/tdh8316/wprecon/internal/probe"
)

const dublinCoreNS = "http://purl.org/dc/elements/1.1/"

var errFeedUnavailable = errors.New("feed not available")

// Feed is the part of the site RSS feed the scanner cares about.
type Feed struct {
	Generator string
	// Creators lists the distinct dc:creator values in document order.
	Creators []string
}

// Version extracts the WordPress version from the generator URL
// (https://wordpress.org/?v=6.4.2).
func (f Feed) Version() (string, bool) {
	if f.Generator == "" {
		return "", false
	}
	u, err := url.Parse(f.Generator)
	if err != nil {
		return "", false
	}
	v := u.Query().Get("v")
	return v, v != ""
}

// Feed fetches and parses /feed. The first result is kept for the rest of
// the scan.
func (s *Scanner) Feed(ctx context.Context) (Feed, error) {
	s.feedOnce.Do(func() {
		s.feed, s.feedErr = s.fetchFeed(ctx)
	})
	return s.feed, s.feedErr
}

func (s *Scanner) fetchFeed(ctx context.Context) (Feed, error) {
	u := s.site.BaseURL() + "/feed"
	o := s.follow.Do(ctx, probe.Target{URL: u, Category: probe.Users, Method: http.MethodGet})
	s.out.Done()
	if o.Err != probe.ErrNone || o.StatusCode != http.StatusOK {
		return Feed{}, errFeedUnavailable
	}
	return ParseFeed(strings.NewReader(strings.TrimSpace(o.Body)))
}

// ParseFeed reads the generator and every dc:creator element of an RSS
// document, wherever they appear.
func ParseFeed(r io.Reader) (Feed, error) {
	var f Feed
	seen := make(map[string]bool)

	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Feed{}, fmt.Errorf("decode feed: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch {
		case start.Name.Space == dublinCoreNS && start.Name.Local == "creator":
			var text string
			if err := dec.DecodeElement(&text, &start); err != nil {
				return Feed{}, fmt.Errorf("decode dc:creator: %w", err)
			}
			text = strings.TrimSpace(text)
			if text != "" && !seen[text] {
				seen[text] = true
				f.Creators = append(f.Creators, text)
			}
		case start.Name.Space == "" && start.Name.Local == "generator" && f.Generator == "":
			var text string
			if err := dec.DecodeElement(&text, &start); err != nil {
				return Feed{}, fmt.Errorf("decode generator: %w", err)
			}
			f.Generator = strings.TrimSpace(text)
		}
	}
	return f, nil
}

// CheckVersion reports the WordPress version announced by the feed. With a
// minimum version configured, an older release is returned as a finding.
func (s *Scanner) CheckVersion(ctx context.Context) (probe.Finding, bool) {
	s.out.Title("WordPress version (feed generator)")

	feed, err := s.Feed(ctx)
	if err != nil {
		if !errors.Is(err, errFeedUnavailable) {
			s.flowLog("feed-version").WithError(err).Warn("feed abandoned")
		}
		s.out.Info("Version not disclosed by feed")
		return probe.Finding{}, false
	}

	v, ok := feed.Version()
	if !ok {
		s.out.Info("Version not disclosed by feed")
		return probe.Finding{}, false
	}

	minVersion := s.opts.MinVersion
	if minVersion == "" || !Outdated(v, minVersion) {
		s.out.Info("WordPress %s", v)
		return probe.Finding{}, false
	}

	f := probe.Finding{
		URL:      s.site.BaseURL() + "/feed",
		Category: probe.FeedVersion,
		Evidence: fmt.Sprintf("WordPress %s is older than %s", v, minVersion),
	}
	s.out.Finding(f)
	return f, true
}

// Outdated reports whether v is older than minVersion.
func Outdated(v, minVersion string) bool {
	return version.Compare(v, minVersion, "<")
}
