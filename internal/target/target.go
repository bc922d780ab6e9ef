// Package target splits a target URL into the parts the scanners derive
// paths from.
package target

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/tdh8316/wprecon/internal/wordlist"
)

type Target struct {
	Scheme    string
	Subdomain string
	Domain    string // registrable label without suffix
	Suffix    string
	Port      string
	// Path is the site root below the host, without a trailing slash.
	Path string
}

// Parse decomposes raw. A missing scheme defaults to https.
func Parse(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("empty target")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parse target %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Target{}, fmt.Errorf("target %q has no host", raw)
	}

	t := Target{
		Scheme: u.Scheme,
		Port:   u.Port(),
		Path:   strings.TrimSuffix(u.EscapedPath(), "/"),
	}

	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		t.Domain = host
		return t, nil
	}

	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		t.Domain = host
		return t, nil
	}
	suffix, _ := publicsuffix.PublicSuffix(host)

	t.Suffix = suffix
	t.Domain = strings.TrimSuffix(etld1, "."+suffix)
	t.Subdomain = strings.TrimSuffix(strings.TrimSuffix(host, etld1), ".")
	return t, nil
}

// Host is the full host name: subdomain, domain and suffix.
func (t Target) Host() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Subdomain, t.Domain, t.Suffix} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Origin is scheme://host[:port].
func (t Target) Origin() string {
	h := t.Host()
	if t.Port != "" {
		h = net.JoinHostPort(h, t.Port)
	}
	return t.Scheme + "://" + h
}

// BaseURL is the site root without a trailing slash.
func (t Target) BaseURL() string {
	return t.Origin() + t.Path
}

// RESTURL is the root of the WordPress REST API.
func (t Target) RESTURL() string {
	return t.BaseURL() + "/wp-json"
}

func (t Target) WordlistContext() wordlist.Context {
	return wordlist.Context{
		Domain:      t.Host(),
		DomainLabel: t.Domain,
		TLD:         t.Suffix,
		Subdomain:   t.Subdomain,
	}
}
