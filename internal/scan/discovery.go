package scan

import (
	"context"
	"slices"
	"strings"

	"github.com/tdh8316/wprecon/internal/classify"
	"github.com/tdh8316/wprecon/internal/data"
	"github.com/tdh8316/wprecon/internal/probe"
	"github.com/tdh8316/wprecon/internal/wordlist"
)

var discoveryTitles = map[probe.Category]string{
	probe.Backups:   "backup files",
	probe.Configs:   "configuration files",
	probe.Logs:      "log files",
	probe.Dangerous: "dangerous scripts",
	probe.FPD:       "full path disclosures",
}

// DiscoveryCategories are the categories Discover accepts.
var DiscoveryCategories = []probe.Category{probe.Backups, probe.Configs, probe.Logs, probe.Dangerous, probe.FPD}

// Discover expands the wordlist of cat against the site and reports every
// candidate its classifier accepts. needle restricts content matching
// categories to bodies containing it.
func (s *Scanner) Discover(ctx context.Context, cat probe.Category, needle string) []probe.Finding {
	title := discoveryTitles[cat]
	if title == "" {
		title = string(cat)
	}
	s.out.Title("%s discovery", strings.ToUpper(title[:1])+title[1:])

	log := s.flowLog("discovery").WithField("category", cat)
	lines := data.Wordlist(s.opts.Wordlists[cat], string(cat), log)
	urls := wordlist.URLs(s.site.BaseURL(), wordlist.Expand(cat, s.site.WordlistContext(), lines))

	// Body based rules need GET.
	head := s.opts.HeadAllowed && cat != probe.FPD && cat != probe.Dangerous && needle == ""

	findings := s.strict.Dispatch(ctx, probe.Targets(urls, cat, head), s.opts.Threads, classify.ForCategory(cat, needle))
	s.out.Done()

	if len(findings) == 0 {
		s.out.OK("No %s discovered", title)
	}
	return findings
}

// ListingURLs returns the directories checked for listings: the builtin (or
// user supplied) directory list plus the folders of discovered components.
func (s *Scanner) ListingURLs(themes, plugins []string) []string {
	base := s.site.BaseURL()
	var urls []string
	log := s.flowLog("listing")
	for line := range data.Wordlist(s.opts.Wordlists[probe.DirectoryListing], string(probe.DirectoryListing), log) {
		if line == "" {
			continue
		}
		urls = append(urls, base+"/"+strings.TrimPrefix(line, "/"))
	}
	for _, t := range themes {
		urls = append(urls, base+"/wp-content/themes/"+t+"/")
	}
	for _, p := range plugins {
		urls = append(urls, base+"/wp-content/plugins/"+p+"/")
	}
	return urls
}

// Listing reports the directories in urls that serve an index page.
func (s *Scanner) Listing(ctx context.Context, urls []string) []probe.Finding {
	s.out.Title("Directory listing")

	targets := func(yield func(probe.Target) bool) {
		for _, u := range urls {
			if !yield(probe.NewTarget(classify.NormalizeDir(u), probe.DirectoryListing, false)) {
				return
			}
		}
	}

	agg := probe.NewAggregator()
	var closed []string
	s.follow.Each(ctx, targets, s.opts.Threads, func(o probe.Outcome) {
		if o.Err != probe.ErrNone {
			s.out.Error("Error retrieving response from %s", o.Target.URL)
			return
		}
		if !classify.DirectoryListing(o.Target, o).Matched {
			closed = append(closed, o.Target.URL)
			return
		}
		f := probe.Finding{URL: o.Target.URL, Category: probe.DirectoryListing}
		if agg.Add(f) {
			s.out.Finding(f)
		}
	})
	s.out.Done()

	slices.Sort(closed)
	for _, u := range slices.Compact(closed) {
		s.out.OK("%s", u)
	}
	return agg.Findings()
}

// Readme probes /readme.html and the readme.txt of every theme and plugin.
func (s *Scanner) Readme(ctx context.Context, themes, plugins []string) []probe.Finding {
	s.out.Title("Check readme files")

	base := s.site.BaseURL()
	urls := []string{base + "/readme.html"}
	for _, t := range themes {
		urls = append(urls, base+"/wp-content/themes/"+t+"/readme.txt")
	}
	for _, p := range plugins {
		urls = append(urls, base+"/wp-content/plugins/"+p+"/readme.txt")
	}

	findings := s.strict.Dispatch(ctx, probe.Targets(slices.Values(urls), probe.Readme, s.opts.HeadAllowed), s.opts.Threads, classify.Existence)
	s.out.Done()

	if len(findings) == 0 {
		s.out.OK("No readme files discovered")
	}
	return findings
}
