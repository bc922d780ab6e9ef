package probe

import (
	"fmt"
	"net/http"
	"strings"
)

type Category string

const (
	Backups          Category = "backups"
	Configs          Category = "configs"
	Logs             Category = "logs"
	Dangerous        Category = "dangerous"
	FPD              Category = "fpd"
	Users            Category = "users"
	Media            Category = "media"
	DirectoryListing Category = "directory-listing"
	DomainFiles      Category = "domain-files"
	Readme           Category = "readme"
	FeedVersion      Category = "feed-version"
)

var categories = []Category{
	Backups, Configs, Logs, Dangerous, FPD, Users, Media, DirectoryListing, DomainFiles, Readme, FeedVersion,
}

// ParseCategory maps a category identifier to its Category.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrNetwork
	ErrRequest
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrNetwork:
		return "network"
	case ErrRequest:
		return "request"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Target is a single probe. It is passed by value and never mutated.
type Target struct {
	URL      string
	Category Category
	Method   string

	// Needle is the body marker for content-match categories.
	Needle string
}

// NewTarget returns a GET target, or a HEAD target when head is set.
func NewTarget(url string, cat Category, head bool) Target {
	method := http.MethodGet
	if head {
		method = http.MethodHead
	}
	return Target{URL: url, Category: cat, Method: method}
}

type Outcome struct {
	Target Target

	StatusCode int
	Body       string
	Location   string

	Err      ErrorKind
	ErrCause error
}

func (o Outcome) IsRedirect() bool {
	return o.StatusCode >= 300 && o.StatusCode < 400
}

type Finding struct {
	URL      string
	Category Category
	Evidence string
}

type Result struct {
	Matched  bool
	Evidence string
}

// Classifier decides whether an outcome is a finding. It must be pure.
type Classifier func(Target, Outcome) Result
