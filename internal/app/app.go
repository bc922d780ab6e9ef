package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/wprecon/internal/cli"
	"github.com/tdh8316/wprecon/internal/httpx"
	"github.com/tdh8316/wprecon/internal/output"
	"github.com/tdh8316/wprecon/internal/probe"
	"github.com/tdh8316/wprecon/internal/scan"
	"github.com/tdh8316/wprecon/internal/target"
)

func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fmt.Fprintln(stdout, "wprecon - WordPress reconnaissance.")

	opts, err := cli.Parse(args, stdout, stderr)
	if err != nil {
		if errors.Is(err, cli.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	color.NoColor = opts.NoColor

	site, err := target.Parse(opts.Target)
	if err != nil {
		fmt.Fprintf(stderr, "invalid target: %v\n", err)
		return 2
	}

	headers, err := httpx.ParseHeaders(opts.Headers)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	log := newLogger(stderr, opts.Verbose).WithFields(logrus.Fields{
		"run_id": uuid.NewString(),
		"target": site.BaseURL(),
	})

	httpClient, err := httpx.NewClient(httpx.ClientConfig{
		Timeout:  opts.Timeout,
		ProxyURL: opts.Proxy,
	})
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize HTTP client: %v\n", err)
		return 1
	}

	siteDir := filepath.Join(opts.ResultsDir, site.Host())
	if !opts.NoOutput || opts.Download {
		if err := os.MkdirAll(siteDir, 0o755); err != nil {
			fmt.Fprintf(stderr, "failed to create results dir %q: %v\n", siteDir, err)
			return 1
		}
	}

	// Buffer for out.txt.
	var buf strings.Builder
	printer := output.NewPrinter(stdout, opts.NoColor, opts.Verbose, &buf)
	printer.SetProgress(isTerminal(stdout))

	scanOpts := scan.Options{
		UserAgent:     httpx.DefaultUserAgent,
		Headers:       headers,
		Threads:       opts.Threads,
		AuthorRange:   opts.AuthorRange,
		UsersWordlist: opts.UsersWordlist,
		Wordlists:     make(map[probe.Category]string, len(opts.Wordlists)),
		OutputPrefix:  opts.Output,
		MinVersion:    opts.MinVersion,
	}
	for id, path := range opts.Wordlists {
		cat, err := probe.ParseCategory(id)
		if err != nil {
			log.WithError(err).Warn("ignoring wordlist")
			continue
		}
		scanOpts.Wordlists[cat] = path
	}
	if opts.Download {
		scanOpts.DownloadDir = filepath.Join(siteDir, "media")
	}

	scanner := scan.NewScanner(site, httpClient, scanOpts, printer, log)

	if opts.NoColor {
		fmt.Fprintf(stdout, "\nScanning %s\n", site.BaseURL())
	} else {
		fmt.Fprintf(color.Output, "\nScanning %s\n", color.HiGreenString(site.BaseURL()))
	}

	findings := runFlows(ctx, scanner, opts)

	printer.Title("Summary")
	if len(findings) == 0 {
		printer.OK("Nothing vulnerable found")
	} else {
		counts := make(map[probe.Category]int)
		var order []probe.Category
		for _, f := range findings {
			if counts[f.Category] == 0 {
				order = append(order, f.Category)
			}
			counts[f.Category]++
		}
		for _, c := range order {
			printer.Info("%s: %d", c, counts[c])
		}
	}

	if !opts.NoOutput {
		outPath := filepath.Join(siteDir, "out.txt")
		if err := os.WriteFile(outPath, []byte(buf.String()), 0o600); err != nil {
			fmt.Fprintf(stderr, "failed to write %q: %v\n", outPath, err)
			return 1
		}
	}

	if ctx.Err() != nil {
		log.Warn("scan interrupted")
	}
	return 0
}

// runFlows runs every check in order and collects their findings.
func runFlows(ctx context.Context, s *scan.Scanner, opts cli.Options) []probe.Finding {
	var findings []probe.Finding
	add := func(fs ...probe.Finding) { findings = append(findings, fs...) }

	s.SetHeadAllowed(s.HeadAllowed(ctx))

	themes, plugins := s.Components(ctx)

	if ctx.Err() == nil && s.XMLRPC(ctx) {
		add(probe.Finding{URL: s.Target().BaseURL() + "/xmlrpc.php", Category: probe.Dangerous, Evidence: "system.listMethods answered"})
	}
	if ctx.Err() == nil {
		add(s.Readme(ctx, themes, plugins)...)
	}
	if ctx.Err() == nil {
		add(s.Listing(ctx, s.ListingURLs(themes, plugins))...)
	}
	if ctx.Err() == nil {
		add(s.Backups(ctx)...)
	}
	for _, cat := range opts.Discover {
		if ctx.Err() != nil {
			break
		}
		needle := ""
		if cat == probe.Dangerous {
			needle = opts.Needle
		}
		add(s.Discover(ctx, cat, needle)...)
	}

	if ctx.Err() == nil {
		users := s.Users(ctx)
		for _, u := range users.Endpoints.List() {
			add(probe.Finding{URL: u, Category: probe.Users})
		}
		if ctx.Err() == nil {
			s.Media(ctx, users.Users)
		}
	}
	if ctx.Err() == nil {
		if f, ok := s.CheckVersion(ctx); ok {
			add(f)
		}
	}
	return findings
}

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	l.SetLevel(logrus.WarnLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
