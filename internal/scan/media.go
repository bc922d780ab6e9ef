package scan

import (
	"context"
	"errors"
	"slices"
	"strconv"

	"github.com/tdh8316/wprecon/internal/data"
	"github.com/tdh8316/wprecon/internal/downloaders"
	"github.com/tdh8316/wprecon/internal/identity"
	"github.com/tdh8316/wprecon/internal/paginate"
	"github.com/tdh8316/wprecon/internal/probe"
)

const mediaPath = "/wp/v2/media?page={page}&per_page={per_page}"

type MediaItem struct {
	SourceURL string
	AuthorID  int
	Uploaded  string
	Modified  string
	Title     string
}

// Media lists the attachments published through the REST API. users is
// used to print author slugs instead of ids and may be nil.
func (s *Scanner) Media(ctx context.Context, users *identity.Registry) []string {
	s.out.Title("Discovered media (title, author, uploaded, modified, url)")
	log := s.flowLog("media")

	walker := paginate.Walker{Fetch: paginate.HTTPFetcher(s.follow, probe.Media)}
	res := walker.Walk(ctx, s.site.RESTURL()+mediaPath, paginate.MaxPages, paginate.DefaultPageSize)
	s.out.Done()

	if errors.Is(res.Err, paginate.ErrEndpointUnavailable) {
		s.out.Error("API is not available")
		log.WithError(res.Err).Info("media endpoint unavailable")
		return nil
	}
	if errors.Is(res.Err, paginate.ErrParse) {
		log.WithError(res.Err).Warn("media listing abandoned")
	}

	items := make([]MediaItem, 0, len(res.Records))
	for _, r := range res.Records {
		items = append(items, MediaItem{
			SourceURL: r.Get("source_url").String(),
			AuthorID:  int(r.Get("author").Int()),
			Uploaded:  r.Get("date_gmt").String(),
			Modified:  r.Get("modified_gmt").String(),
			Title:     r.Get("title.rendered").String(),
		})
	}

	var sources []string
	for _, m := range items {
		s.out.Text("%s, %s, %s, %s", m.Title, authorLabel(users, m.AuthorID), m.Uploaded, m.Modified)
		s.out.Text("%s", m.SourceURL)
		if m.SourceURL != "" {
			sources = append(sources, m.SourceURL)
		}
	}
	slices.Sort(sources)
	sources = slices.Compact(sources)

	if s.opts.OutputPrefix != "" && len(sources) > 0 {
		path := s.opts.OutputPrefix + "-media.txt"
		if err := data.WriteLines(path, sources); err != nil {
			log.WithError(err).WithField("path", path).Warn("media list not written")
		} else {
			s.out.Info("Media URLs written to %s", path)
		}
	}

	if s.opts.DownloadDir != "" && len(sources) > 0 {
		if err := downloaders.DownloadMedia(ctx, s.followClient, s.downloadRequest(), sources, s.opts.DownloadDir, log); err != nil {
			s.out.Error("%v", err)
		}
	}
	return sources
}

func authorLabel(users *identity.Registry, id int) string {
	if users != nil {
		if u, ok := users.Lookup(id); ok {
			if u.Slug != "" {
				return u.Slug
			}
			if u.Name != "" {
				return u.Name
			}
		}
	}
	return strconv.Itoa(id)
}

func (s *Scanner) downloadRequest() downloaders.Request {
	return downloaders.Request{UserAgent: s.opts.UserAgent, Headers: s.opts.Headers}
}
