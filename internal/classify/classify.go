// Package classify turns a probe outcome into a match decision. Every
// function here is pure: the same target and outcome give the same result.
package classify

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/tdh8316/wprecon/internal/identity"
	"github.com/tdh8316/wprecon/internal/probe"
)

const (
	// PathDisclosurePattern matches Windows or POSIX paths that follow "in".
	PathDisclosurePattern = `(?:in\s+)([a-zA-Z]:\\[\\\w.-]+|/[\w./-]+)`

	RepairScriptPath   = "/wp-admin/maint/repair.php"
	RepairEnabledMark  = "define('WP_ALLOW_REPAIR', true);"
	DirectoryIndexMark = "index of /"
)

var pathDisclosureRe = func() *regexp2.Regexp {
	re := regexp2.MustCompile(PathDisclosurePattern, regexp2.IgnoreCase)
	re.MatchTimeout = time.Second
	return re
}()

// Existence matches a 200 response. HEAD and GET are treated alike.
func Existence(_ probe.Target, o probe.Outcome) probe.Result {
	return probe.Result{Matched: o.StatusCode == http.StatusOK}
}

// ContentMatch matches a 200 response whose body contains needle, ignoring
// case. The repair script is not reported when repair mode is switched on,
// since that page is expected to render then.
func ContentMatch(needle string) probe.Classifier {
	needle = strings.ToLower(needle)
	return func(t probe.Target, o probe.Outcome) probe.Result {
		if o.StatusCode != http.StatusOK {
			return probe.Result{}
		}
		body := strings.ToLower(o.Body)
		if !strings.Contains(body, needle) {
			return probe.Result{}
		}
		if t.Category == probe.Dangerous && strings.HasSuffix(urlPath(t.URL), RepairScriptPath) &&
			strings.Contains(body, strings.ToLower(RepairEnabledMark)) {
			return probe.Result{}
		}
		return probe.Result{Matched: true, Evidence: needle}
	}
}

// PathDisclosure matches when the body leaks at least one filesystem path.
func PathDisclosure(_ probe.Target, o probe.Outcome) probe.Result {
	paths := DisclosedPaths(o.Body)
	if len(paths) == 0 {
		return probe.Result{}
	}
	return probe.Result{Matched: true, Evidence: strings.Join(paths, ", ")}
}

// DisclosedPaths returns every path captured by PathDisclosurePattern.
func DisclosedPaths(body string) []string {
	var out []string
	m, err := pathDisclosureRe.FindStringMatch(body)
	for err == nil && m != nil {
		out = append(out, m.GroupByNumber(1).String())
		m, err = pathDisclosureRe.FindNextMatch(m)
	}
	return out
}

// DirectoryListing matches an auto-generated directory index.
func DirectoryListing(_ probe.Target, o probe.Outcome) probe.Result {
	if o.StatusCode != http.StatusOK || !strings.Contains(strings.ToLower(o.Body), DirectoryIndexMark) {
		return probe.Result{}
	}
	return probe.Result{Matched: true, Evidence: DirectoryIndexMark}
}

// NormalizeDir appends the trailing slash a directory URL needs.
func NormalizeDir(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

// AuthorID matches an author page served directly, or a redirect to an
// author archive from which the slug can be recovered. The evidence is the
// identity found in the page title for the former and the slug for the
// latter.
func AuthorID(_ probe.Target, o probe.Outcome) probe.Result {
	if o.StatusCode == http.StatusOK {
		name, _ := identity.ExtractIdentity(o.Body)
		return probe.Result{Matched: true, Evidence: name}
	}
	if !o.IsRedirect() {
		return probe.Result{}
	}
	if slug, ok := identity.AuthorSlug(o.Location); ok {
		return probe.Result{Matched: true, Evidence: slug}
	}
	return probe.Result{}
}

// ForCategory returns the rule for cat. needle is only used by content
// matching categories.
func ForCategory(cat probe.Category, needle string) probe.Classifier {
	switch cat {
	case probe.Dangerous:
		return ContentMatch(needle)
	case probe.FPD:
		return PathDisclosure
	case probe.DirectoryListing:
		return DirectoryListing
	case probe.Users:
		return AuthorID
	default:
		return Existence
	}
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
