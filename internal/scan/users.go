package scan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/tdh8316/wprecon/internal/classify"
	"github.com/tdh8316/wprecon/internal/data"
	"github.com/tdh8316/wprecon/internal/identity"
	"github.com/tdh8316/wprecon/internal/paginate"
	"github.com/tdh8316/wprecon/internal/probe"
	"github.com/tdh8316/wprecon/internal/target"
)

// UserState is shared by the user enumeration steps of one run.
type UserState struct {
	Users     *identity.Registry
	Endpoints *identity.Endpoints
	// Names found by the author dictionary, keyed by the probed URL.
	Names      map[string]string
	RSSAuthors []string
}

func NewUserState() *UserState {
	return &UserState{
		Users:     identity.NewRegistry(),
		Endpoints: identity.NewEndpoints(),
		Names:     make(map[string]string),
	}
}

// Users runs every user enumeration technique and returns what they found.
func (s *Scanner) Users(ctx context.Context) *UserState {
	st := NewUserState()
	s.AuthorIDs(ctx, st)
	s.AuthorNames(ctx, st)
	s.RESTUsers(ctx, st)
	s.RESTCollections(ctx, st)
	s.MapSlugs(ctx, st)
	s.RSSAuthors(ctx, st)

	s.out.Title("Vulnerable endpoints (allowing user enumeration):")
	for _, u := range st.Endpoints.List() {
		s.out.Text("%s", u)
	}
	return st
}

type authorRedirect struct {
	id       int
	url      string
	status   int
	slug     string
	location string
}

// AuthorIDs requests /?author=<id> for every id in the configured range. A
// 200 answer names the author through the page title; a redirect to an
// author archive gives away the slug and the archive title the name.
func (s *Scanner) AuthorIDs(ctx context.Context, st *UserState) {
	lo, hi := s.opts.AuthorRange[0], s.opts.AuthorRange[1]
	base := s.site.BaseURL()
	prefix := base + "/?author="
	log := s.flowLog("author-id")

	s.out.Title("User enumeration: %s/?author=<%d-%d>", base, lo, hi)

	targets := func(yield func(probe.Target) bool) {
		for id := lo; id <= hi; id++ {
			if !yield(probe.NewTarget(prefix+strconv.Itoa(id), probe.Users, false)) {
				return
			}
		}
	}

	found := 0
	var redirects []authorRedirect
	s.strict.Each(ctx, targets, probe.DefaultConcurrency, func(o probe.Outcome) {
		if o.Err != probe.ErrNone {
			return
		}
		res := classify.AuthorID(o.Target, o)
		if !res.Matched {
			return
		}
		id, err := strconv.Atoi(strings.TrimPrefix(o.Target.URL, prefix))
		if err != nil {
			return
		}
		if o.StatusCode == http.StatusOK {
			st.Users.Enrich(id, "", res.Evidence)
			s.out.Vuln("[%d] %s  ->  %s", o.StatusCode, o.Target.URL, res.Evidence)
			found++
			return
		}
		redirects = append(redirects, authorRedirect{
			id:       id,
			url:      o.Target.URL,
			status:   o.StatusCode,
			slug:     res.Evidence,
			location: resolve(o.Target.URL, o.Location),
		})
	})

	if len(redirects) > 0 {
		// Archive pages carry the display name in their title.
		targets := func(yield func(probe.Target) bool) {
			seen := make(map[string]bool, len(redirects))
			for _, r := range redirects {
				if seen[r.location] {
					continue
				}
				seen[r.location] = true
				if !yield(probe.NewTarget(r.location, probe.Users, false)) {
					return
				}
			}
		}
		names := make(map[string]string)
		s.strict.Each(ctx, targets, probe.DefaultConcurrency, func(o probe.Outcome) {
			if o.Err != probe.ErrNone {
				return
			}
			if name, ok := identity.ExtractIdentity(o.Body); ok {
				names[o.Target.URL] = name
			}
		})

		slices.SortFunc(redirects, func(a, b authorRedirect) int { return a.id - b.id })
		for _, r := range redirects {
			name := names[r.location]
			st.Users.Enrich(r.id, r.slug, name)
			s.out.Vuln("[%d] %s  ->  %-20s %s", r.status, r.url, name, r.slug)
			found++
		}
	}
	s.out.Done()

	if found == 0 {
		s.out.OK("No names enumerated in %d-%d id range", lo, hi)
		return
	}
	st.Endpoints.Add(prefix + "<id>")
	log.Debugf("%d author id(s) resolved", found)
}

// AuthorNames runs a dictionary of likely author slugs against
// /author/<name>/.
func (s *Scanner) AuthorNames(ctx context.Context, st *UserState) {
	base := s.site.BaseURL()
	log := s.flowLog("author-name")
	s.out.Title("User enumeration: %s/author/<name>/", base)

	words := AuthorWords(s.site)
	targets := func(yield func(probe.Target) bool) {
		for _, w := range words {
			if !yield(probe.NewTarget(base+"/author/"+url.PathEscape(w)+"/", probe.Users, false)) {
				return
			}
		}
		for w := range data.Wordlist(s.opts.UsersWordlist, "usernames", log) {
			if w == "" {
				continue
			}
			if !yield(probe.NewTarget(base+"/author/"+url.PathEscape(w)+"/", probe.Users, false)) {
				return
			}
		}
	}

	var hits []string
	s.strict.Each(ctx, targets, probe.DefaultConcurrency, func(o probe.Outcome) {
		if o.Err != probe.ErrNone || o.StatusCode != http.StatusOK {
			return
		}
		name, _ := identity.ExtractIdentity(o.Body)
		if _, dup := st.Names[o.Target.URL]; !dup {
			hits = append(hits, o.Target.URL)
		}
		st.Names[o.Target.URL] = name
	})
	s.out.Done()

	if len(hits) == 0 {
		s.out.OK("No names enumerated via dictionary attack")
		return
	}
	slices.Sort(hits)
	for _, u := range hits {
		s.out.Vuln("[200] %s    %s", u, st.Names[u])
	}
	st.Endpoints.Add(base + "/author/<author>/")
}

// AuthorWords derives likely author slugs from the target name.
func AuthorWords(t target.Target) []string {
	d := t.Domain
	full := d
	if t.Suffix != "" {
		full = d + "." + t.Suffix
	}

	words := []string{
		d,
		d + t.Suffix,
		full,
		full + "-admin",
		d + "-admin",
		"admin@" + full,
		"administrator@" + full,
		"webmaster@" + full,
		"web@" + full,
		"www@" + full,
	}
	if t.Subdomain != "" {
		words = append(words, t.Subdomain+"."+full)
	}

	seen := make(map[string]bool, len(words))
	out := words[:0]
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// RESTUsers reads the unpaginated /wp-json/wp/v2/users listing.
func (s *Scanner) RESTUsers(ctx context.Context, st *UserState) {
	u := s.site.RESTURL() + "/wp/v2/users"
	o := s.strict.Do(ctx, probe.Target{URL: u, Category: probe.Users, Method: http.MethodGet})
	s.out.Done()
	if o.Err != probe.ErrNone || o.StatusCode != http.StatusOK {
		return
	}

	page := paginate.ParsePage(1, u, o)
	if page.Reason == paginate.StopParse {
		s.flowLog("rest-users").WithField("url", u).Warn(paginate.ErrParse)
		return
	}
	if n := recordUsers(st, page.Records); n > 0 {
		st.Endpoints.Add(u)
	}
}

type restCollection struct {
	name string
	path string
	// idField holds the user id inside a record.
	idField  string
	withName bool
}

var restCollections = []restCollection{
	{name: "users", path: "/wp/v2/users/?per_page={per_page}&page={page}", idField: "id", withName: true},
	{name: "posts", path: "/wp/v2/posts/?per_page={per_page}&page={page}", idField: "author"},
	{name: "comments", path: "/wp/v2/comments/?per_page={per_page}&page={page}", idField: "author"},
}

// RESTCollections walks the paginated users, posts and comments collections
// and records every author id they mention.
func (s *Scanner) RESTCollections(ctx context.Context, st *UserState) {
	rest := s.site.RESTURL()
	walker := paginate.Walker{Fetch: paginate.HTTPFetcher(s.follow, probe.Users)}

	var g errgroup.Group
	for _, c := range restCollections {
		g.Go(func() error {
			log := s.flowLog("rest-" + c.name)
			res := walker.Walk(ctx, rest+c.path, paginate.MaxPages, paginate.DefaultPageSize)

			var n int
			if c.withName {
				n = recordUsers(st, res.Records)
			} else {
				for _, r := range res.Records {
					if id := int(r.Get(c.idField).Int()); id > 0 {
						st.Users.Observe(id)
						n++
					}
				}
			}
			if n > 0 {
				st.Endpoints.Add(rest + strings.SplitN(c.path, "?", 2)[0])
			}

			switch {
			case errors.Is(res.Err, paginate.ErrEndpointUnavailable):
				log.WithError(res.Err).Info("collection not available")
			case errors.Is(res.Err, paginate.ErrParse):
				log.WithError(res.Err).Warn("collection abandoned")
			default:
				log.WithField("pages", res.Pages).Debugf("walk stopped: %s", res.Stop)
			}
			return nil
		})
	}
	_ = g.Wait()
	s.out.Done()
}

func recordUsers(st *UserState, records []gjson.Result) int {
	n := 0
	for _, r := range records {
		id := int(r.Get("id").Int())
		if id <= 0 {
			continue
		}
		st.Users.Enrich(id, r.Get("slug").String(), r.Get("name").String())
		n++
	}
	return n
}

// MapSlugs asks /wp-json/wp/v2/users/<id> for the slug of every known id.
func (s *Scanner) MapSlugs(ctx context.Context, st *UserState) {
	s.out.Title("Mapping user IDs to slugs:")

	rest := s.site.RESTURL()
	ids := st.Users.IDs()
	targets := func(yield func(probe.Target) bool) {
		for _, id := range ids {
			if !yield(probe.NewTarget(fmt.Sprintf("%s/wp/v2/users/%d", rest, id), probe.Users, false)) {
				return
			}
		}
	}

	s.follow.Each(ctx, targets, probe.DefaultConcurrency, func(o probe.Outcome) {
		if o.Err != probe.ErrNone || o.StatusCode != http.StatusOK || !gjson.Valid(o.Body) {
			return
		}
		rec := gjson.Parse(o.Body)
		id := int(rec.Get("id").Int())
		if id <= 0 {
			idx := strings.LastIndexByte(o.Target.URL, '/')
			id, _ = strconv.Atoi(o.Target.URL[idx+1:])
		}
		st.Users.Enrich(id, rec.Get("slug").String(), rec.Get("name").String())
	})
	s.out.Done()

	for _, u := range st.Users.Users() {
		switch {
		case u.Slug != "" && u.Name != "":
			s.out.Text("%d: %s (%s)", u.ID, u.Slug, u.Name)
		case u.Slug != "":
			s.out.Text("%d: %s", u.ID, u.Slug)
		case u.Name != "":
			s.out.Text("%d: %s", u.ID, u.Name)
		default:
			s.out.Text("%d", u.ID)
		}
	}
}

// RSSAuthors collects the dc:creator names of the site feed.
func (s *Scanner) RSSAuthors(ctx context.Context, st *UserState) {
	s.out.Title("User enumeration: %s/feed", s.site.BaseURL())

	feed, err := s.Feed(ctx)
	switch {
	case errors.Is(err, errFeedUnavailable):
		s.out.Text("RSS feed not available")
		return
	case err != nil:
		s.flowLog("rss").WithError(err).Warn("feed abandoned")
		s.out.Error("Error decoding XML feed")
		return
	}

	st.RSSAuthors = feed.Creators
	for _, c := range feed.Creators {
		s.out.Text("%s", c)
	}
}

// resolve makes a Location header absolute against the request URL.
func resolve(requestURL, location string) string {
	base, err := url.Parse(requestURL)
	if err != nil {
		return location
	}
	ref, err := url.Parse(location)
	if err != nil {
		return location
	}
	return base.ResolveReference(ref).String()
}
