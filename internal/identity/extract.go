// Package identity recovers user identities from author pages and keeps
// the state shared by the user enumeration steps.
package identity

import (
	"html"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

const (
	TitlePattern = `<title>(.*?)</title>`
	EmailPattern = `^([\w\.-]+@[\w\.-]+\.?\w+)`
	// NamePattern takes the leading run of name-like words up to the first
	// separator commonly used between a name and the site title.
	NamePattern = `^([A-Za-zá-žÁ-Ž0-9._-]+(?:\s[A-Za-zá-žÁ-Ž0-9._-]+)*)\s*[\|\-–—‒―‽·•#@*&]+`
	// AuthorRedirectPattern captures the slug of an author archive URL.
	AuthorRedirectPattern = `/author/(.*)/$`
)

var (
	titleRe          = compile(TitlePattern, regexp2.IgnoreCase|regexp2.Singleline)
	emailRe          = compile(EmailPattern, regexp2.None)
	nameRe           = compile(NamePattern, regexp2.None)
	authorRedirectRe = compile(AuthorRedirectPattern, regexp2.None)
)

func compile(expr string, opt regexp2.RegexOptions) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, opt)
	re.MatchTimeout = time.Second
	return re
}

func firstGroup(re *regexp2.Regexp, s string) (string, bool) {
	m, err := re.FindStringMatch(s)
	if err != nil || m == nil {
		return "", false
	}
	return m.GroupByNumber(1).String(), true
}

// Title returns the unescaped, trimmed text of the first <title> element.
func Title(body string) (string, bool) {
	t, ok := firstGroup(titleRe, body)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(html.UnescapeString(t)), true
}

// FromTitle returns the email address the title consists of, or else the
// display name in front of the first separator.
func FromTitle(title string) (string, bool) {
	if email, ok := firstGroup(emailRe, title); ok {
		return email, true
	}
	return firstGroup(nameRe, title)
}

// ExtractIdentity derives a display name or email from an HTML document.
// It reports false when the page has no title or the title carries no
// recognisable name.
func ExtractIdentity(body string) (string, bool) {
	title, ok := Title(body)
	if !ok {
		return "", false
	}
	return FromTitle(title)
}

// AuthorSlug extracts the author slug from a redirect location.
func AuthorSlug(location string) (string, bool) {
	return firstGroup(authorRedirectRe, location)
}
