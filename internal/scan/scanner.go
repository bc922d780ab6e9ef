package scan

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/wprecon/internal/httpx"
	"github.com/tdh8316/wprecon/internal/probe"
	"github.com/tdh8316/wprecon/internal/target"
)

// Reporter receives everything a flow wants to show the user.
// output.Printer implements it.
type Reporter interface {
	Title(format string, args ...any)
	Vuln(format string, args ...any)
	OK(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
	Text(format string, args ...any)
	Finding(f probe.Finding)
	Progress(t probe.Target)
	Done()
}

// DefaultAuthorRange is the id range tried when the user picks none.
var DefaultAuthorRange = [2]int{1, 10}

type Options struct {
	UserAgent    string
	Headers      http.Header
	MaxBodyBytes int64

	// Threads bounds wordlist driven runs. Built-in checks use
	// probe.DefaultConcurrency.
	Threads     int
	HeadAllowed bool

	// AuthorRange is the inclusive range of ids tried against /?author=.
	// It is used as given, so {0, 0} probes id 0 only.
	AuthorRange [2]int

	// Wordlists maps a category to a user supplied wordlist file.
	Wordlists     map[probe.Category]string
	UsersWordlist string

	// OutputPrefix enables <prefix>-media.txt when set.
	OutputPrefix string
	DownloadDir  string
	// MinVersion turns an older WordPress generator into a finding.
	MinVersion string
}

type Scanner struct {
	site target.Target
	opts Options
	out  Reporter
	log  logrus.FieldLogger

	client       httpx.Doer // never follows redirects
	followClient httpx.Doer

	strict *probe.Dispatcher
	follow *probe.Dispatcher

	feedOnce sync.Once
	feed     Feed
	feedErr  error
}

func NewScanner(site target.Target, client *http.Client, opts Options, out Reporter, log logrus.FieldLogger) *Scanner {
	if opts.Threads <= 0 {
		opts.Threads = probe.DefaultConcurrency
	}
	if opts.UserAgent == "" {
		opts.UserAgent = httpx.DefaultUserAgent
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	s := &Scanner{
		site:         site,
		opts:         opts,
		out:          out,
		log:          log,
		client:       httpx.NoRedirect(client),
		followClient: httpx.FollowRedirects(client),
	}

	cfg := probe.Config{UserAgent: opts.UserAgent, Headers: opts.Headers, MaxBodyBytes: opts.MaxBodyBytes}
	s.strict = probe.NewDispatcher(s.client, cfg, log)
	s.strict.OnProbe = out.Progress
	s.strict.OnFinding = out.Finding
	s.follow = s.strict.WithClient(s.followClient)
	return s
}

func (s *Scanner) Target() target.Target {
	return s.site
}

// SetHeadAllowed records whether existence probes may use HEAD.
func (s *Scanner) SetHeadAllowed(ok bool) {
	s.opts.HeadAllowed = ok
}

func (s *Scanner) flowLog(flow string) logrus.FieldLogger {
	return s.log.WithField("flow", flow)
}

// HeadAllowed sends HEAD to the site root and reports whether the server
// answered it instead of rejecting the method.
func (s *Scanner) HeadAllowed(ctx context.Context) bool {
	o := s.strict.Do(ctx, probe.Target{URL: s.site.BaseURL() + "/", Method: http.MethodHead})
	s.out.Done()
	if o.Err != probe.ErrNone {
		return false
	}
	switch o.StatusCode {
	case http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return false
	}
	return o.StatusCode < http.StatusInternalServerError
}

// XMLRPC posts system.listMethods to xmlrpc.php and reports whether the
// script answered with 200.
func (s *Scanner) XMLRPC(ctx context.Context) bool {
	const body = `<?xml version="1.0" encoding="UTF-8"?>
<methodCall>
  <methodName>system.listMethods</methodName>
  <params></params>
</methodCall>`

	s.out.Title("Testing for xmlrpc.php availability")
	u := s.site.BaseURL() + "/xmlrpc.php"

	req, err := httpx.NewRequest(ctx, http.MethodPost, u, strings.NewReader(body), s.opts.UserAgent)
	if err != nil {
		s.out.Error("%v", err)
		return false
	}
	httpx.ApplyHeaders(req, s.opts.Headers)
	req.Header.Set("Content-Type", "text/xml")

	resp, err := s.client.Do(req)
	if err != nil {
		s.flowLog("xmlrpc").WithError(err).Warn("request failed")
		s.out.Error("Error retrieving response from %s", u)
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()

	s.out.Text("[%d] %s", resp.StatusCode, u)
	if resp.StatusCode == http.StatusOK {
		s.out.Vuln("Script xmlrpc.php is available")
		return true
	}
	s.out.OK("Script xmlrpc.php is not available")
	return false
}

var componentRe = func() *regexp2.Regexp {
	re := regexp2.MustCompile(`/wp-content/(themes|plugins)/([\w.-]+)/`, regexp2.IgnoreCase)
	re.MatchTimeout = time.Second
	return re
}()

// Components lists the theme and plugin slugs referenced by the homepage.
func (s *Scanner) Components(ctx context.Context) (themes, plugins []string) {
	o := s.follow.Do(ctx, probe.Target{URL: s.site.BaseURL() + "/", Method: http.MethodGet})
	s.out.Done()
	if o.Err != probe.ErrNone || o.StatusCode != http.StatusOK {
		return nil, nil
	}
	return parseComponents(o.Body)
}

func parseComponents(body string) (themes, plugins []string) {
	seen := make(map[string]bool)
	m, err := componentRe.FindStringMatch(body)
	for err == nil && m != nil {
		kind := strings.ToLower(m.GroupByNumber(1).String())
		slug := m.GroupByNumber(2).String()
		if key := kind + "/" + slug; !seen[key] {
			seen[key] = true
			if kind == "themes" {
				themes = append(themes, slug)
			} else {
				plugins = append(plugins, slug)
			}
		}
		m, err = componentRe.FindNextMatch(m)
	}
	return themes, plugins
}
