package scan

import (
	"context"
	"iter"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tdh8316/wprecon/internal/classify"
	"github.com/tdh8316/wprecon/internal/probe"
	"github.com/tdh8316/wprecon/internal/wordlist"
)

var (
	backupDirs = []string{"backup/", "backups/", "wp-content/backup/", "wp-content/backups/"}

	wpConfigExtensions = []string{
		"sql", "zip", "rar", "tar", "tar.gz", "tgz", "7z", "arj",
		"php_", "php~", "bak", "old", "zal", "backup", "bck",
		"php.bak", "php.old", "php.zal", "php.bck", "php.backup",
	}

	logPaths = []string{
		"/wp-content/log/",
		"/wp-content/logs/",
		"/wp-content/debug.log",
		"/wp-content/access.log",
		"/wp-content/error.log",
		"/wp-content/log/debug.log",
		"/wp-content/log/access.log",
		"/wp-content/log/error.log",
		"/wp-content/logs/debug.log",
		"/wp-content/logs/access.log",
		"/wp-content/logs/error.log",
	}
)

// Backups looks for backup directories, config leftovers, archives named
// after the host and log files.
//
// Backup directories are probed first. Every directory found becomes an
// extra root for the archive probes, so the second stage is only scheduled
// once the first has completed. Log files do not depend on either stage and
// are probed alongside both, within the same request budget.
func (s *Scanner) Backups(ctx context.Context) []probe.Finding {
	s.out.Title("Backups discovery")

	base := s.site.Origin()
	host := s.site.Host()
	head := s.opts.HeadAllowed
	agg := probe.NewAggregator()
	// Both pools draw from one budget of probe.DefaultConcurrency requests.
	pool := s.strict.WithLimit(probe.DefaultConcurrency)

	var g errgroup.Group

	g.Go(func() error {
		urls := func(yield func(string) bool) {
			for _, p := range logPaths {
				if !yield(base + p) {
					return
				}
			}
		}
		pool.DispatchInto(ctx, agg, probe.Targets(urls, probe.Logs, head), probe.DefaultConcurrency, classify.Existence)
		return nil
	})

	g.Go(func() error {
		dirs := func(yield func(string) bool) {
			for _, d := range backupDirs {
				if !yield(base + "/" + d) {
					return
				}
			}
		}
		found := pool.Dispatch(ctx, probe.Targets(dirs, probe.Backups, head), probe.DefaultConcurrency, classify.Existence)

		roots := []string{"/", "/wp-content/"}
		for _, f := range found {
			agg.Add(f)
			roots = append(roots, "/"+strings.TrimPrefix(f.URL, base+"/"))
		}

		pool.DispatchInto(ctx, agg, archiveTargets(base, host, roots, head), probe.DefaultConcurrency, classify.Existence)
		return nil
	})

	_ = g.Wait()
	s.out.Done()

	findings := agg.Findings()
	if len(findings) == 0 {
		s.out.OK("No backup files discovered")
	}
	return findings
}

// archiveTargets yields the wp-config variants followed by <root><host>.<ext>
// for every root.
func archiveTargets(base, host string, roots []string, head bool) iter.Seq[probe.Target] {
	return func(yield func(probe.Target) bool) {
		for _, ext := range wpConfigExtensions {
			if !yield(probe.NewTarget(base+"/wp-config.php."+ext, probe.Configs, head)) {
				return
			}
		}
		for _, root := range roots {
			for _, ext := range wordlist.Extensions(probe.DomainFiles) {
				if !yield(probe.NewTarget(base+root+host+"."+ext, probe.DomainFiles, head)) {
					return
				}
			}
		}
	}
}
