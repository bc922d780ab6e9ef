// Package paginate walks paged JSON collections such as the WordPress REST
// API until the server stops serving records.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/tdh8316/wprecon/internal/probe"
)

const (
	// MaxPages bounds every walk regardless of what the server returns.
	MaxPages         = 99
	DefaultBatchSize = 10
	DefaultPageSize  = 100
)

var (
	ErrEndpointUnavailable = errors.New("paginate: endpoint unavailable")
	ErrParse               = errors.New("paginate: response is not a JSON array")
)

type StopReason int

const (
	StopExhausted StopReason = iota // max pages consumed
	StopEmpty
	StopStatus
	StopParse
	StopNetwork
)

func (r StopReason) String() string {
	switch r {
	case StopExhausted:
		return "max pages reached"
	case StopEmpty:
		return "empty page"
	case StopStatus:
		return "non-success status"
	case StopParse:
		return "parse error"
	case StopNetwork:
		return "network error"
	default:
		return "StopReason(" + strconv.Itoa(int(r)) + ")"
	}
}

// Page is the outcome of fetching one page. Terminal pages end the walk.
type Page struct {
	Number   int
	URL      string
	Status   int
	Records  []gjson.Result
	Terminal bool
	Reason   StopReason
}

type PageFunc func(ctx context.Context, number int, url string) Page

type Result struct {
	Records []gjson.Result
	// Pages is the number of non-terminal pages whose records were kept.
	Pages    int
	Stop     StopReason
	StopPage int
	// Err is ErrEndpointUnavailable when the first page already failed, or
	// ErrParse when a page could not be decoded.
	Err error
}

type Walker struct {
	Fetch     PageFunc
	BatchSize int
}

// PageURL fills the {page} and {per_page} placeholders of template.
func PageURL(template string, page, pageSize int) string {
	return strings.NewReplacer(
		"{page}", strconv.Itoa(page),
		"{per_page}", strconv.Itoa(pageSize),
	).Replace(template)
}

// Walk requests pages 1..maxPages. Page 1 is fetched on its own, the rest
// in concurrent batches. Pages are consumed in ascending order and the
// first terminal page ends the walk: records of later pages from the same
// batch are dropped even if they were already fetched.
func (w Walker) Walk(ctx context.Context, template string, maxPages, pageSize int) Result {
	if maxPages <= 0 || maxPages > MaxPages {
		maxPages = MaxPages
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	batch := w.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	var res Result

	first := w.Fetch(ctx, 1, PageURL(template, 1, pageSize))
	if first.Terminal {
		res.Stop, res.StopPage = first.Reason, 1
		switch first.Reason {
		case StopStatus, StopNetwork:
			res.Err = fmt.Errorf("%w: %s returned %d", ErrEndpointUnavailable, first.URL, first.Status)
		case StopParse:
			res.Err = fmt.Errorf("%w: %s", ErrParse, first.URL)
		}
		return res
	}
	res.Records = append(res.Records, first.Records...)
	res.Pages = 1

	for start := 2; start <= maxPages; start += batch {
		if ctx.Err() != nil {
			res.Stop, res.StopPage = StopNetwork, start
			return res
		}

		end := min(start+batch-1, maxPages)
		pages := make([]Page, end-start+1)

		var wg sync.WaitGroup
		for n := start; n <= end; n++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pages[n-start] = w.Fetch(ctx, n, PageURL(template, n, pageSize))
			}()
		}
		wg.Wait()

		for _, p := range pages {
			if p.Terminal {
				res.Stop, res.StopPage = p.Reason, p.Number
				if p.Reason == StopParse {
					res.Err = fmt.Errorf("%w: %s", ErrParse, p.URL)
				}
				return res
			}
			res.Records = append(res.Records, p.Records...)
			res.Pages++
		}
	}

	res.Stop = StopExhausted
	return res
}

// HTTPFetcher fetches pages through d and decodes them as JSON arrays.
func HTTPFetcher(d *probe.Dispatcher, cat probe.Category) PageFunc {
	return func(ctx context.Context, number int, url string) Page {
		o := d.Do(ctx, probe.Target{URL: url, Category: cat, Method: http.MethodGet})
		return ParsePage(number, url, o)
	}
}

// ParsePage turns a probe outcome into a Page.
func ParsePage(number int, url string, o probe.Outcome) Page {
	p := Page{Number: number, URL: url, Status: o.StatusCode}
	switch {
	case o.Err != probe.ErrNone:
		p.Terminal, p.Reason = true, StopNetwork
	case o.StatusCode != http.StatusOK:
		p.Terminal, p.Reason = true, StopStatus
	default:
		body := strings.TrimSpace(o.Body)
		parsed := gjson.Parse(body)
		if !gjson.Valid(body) || !parsed.IsArray() {
			p.Terminal, p.Reason = true, StopParse
			return p
		}
		p.Records = parsed.Array()
		if len(p.Records) == 0 {
			p.Terminal, p.Reason = true, StopEmpty
		}
	}
	return p
}
