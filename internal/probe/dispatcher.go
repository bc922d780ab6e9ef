package probe

import (
	"context"
	"io"
	"iter"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/wprecon/internal/httpx"
)

const (
	DefaultConcurrency  = 10
	DefaultMaxBodyBytes = 2 << 20
)

type Config struct {
	UserAgent    string
	Headers      http.Header
	MaxBodyBytes int64
}

// Dispatcher executes probes against a Doer. Whether redirects are followed
// is decided by the Doer the dispatcher was built with.
type Dispatcher struct {
	client httpx.Doer
	cfg    Config
	log    logrus.FieldLogger
	// gate, when set, bounds requests in flight across every pool sharing it.
	gate chan struct{}

	// OnProbe is called with every target right before it is sent.
	OnProbe func(Target)
	// OnFinding is called from the consumer goroutine for every new finding.
	OnFinding func(Finding)
}

func NewDispatcher(client httpx.Doer, cfg Config, log logrus.FieldLogger) *Dispatcher {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = httpx.DefaultUserAgent
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Dispatcher{client: client, cfg: cfg, log: log}
}

// WithClient returns a copy of d that sends through client.
func (d *Dispatcher) WithClient(client httpx.Doer) *Dispatcher {
	c := *d
	c.client = client
	return &c
}

// WithLimit returns a copy of d whose requests share a single cap of n in
// flight, however many pools run through it at once.
func (d *Dispatcher) WithLimit(n int) *Dispatcher {
	if n <= 0 {
		n = DefaultConcurrency
	}
	c := *d
	c.gate = make(chan struct{}, n)
	return &c
}

// Dispatch probes every target with at most concurrency requests in flight
// and returns the deduplicated findings.
func (d *Dispatcher) Dispatch(ctx context.Context, targets iter.Seq[Target], concurrency int, classify Classifier) []Finding {
	agg := NewAggregator()
	d.DispatchInto(ctx, agg, targets, concurrency, classify)
	return agg.Findings()
}

// DispatchInto is Dispatch with a caller-owned aggregator, so several phases
// can share one finding set. It returns once every probe has completed.
func (d *Dispatcher) DispatchInto(ctx context.Context, agg *Aggregator, targets iter.Seq[Target], concurrency int, classify Classifier) {
	d.Each(ctx, targets, concurrency, func(o Outcome) {
		if o.Err != ErrNone {
			return
		}
		res := classify(o.Target, o)
		if !res.Matched {
			return
		}
		f := Finding{URL: o.Target.URL, Category: o.Target.Category, Evidence: res.Evidence}
		if agg.Add(f) && d.OnFinding != nil {
			d.OnFinding(f)
		}
	})
}

// Each sends every target through a pool of concurrency workers and passes
// the outcomes to consume, one at a time, from the calling goroutine.
func (d *Dispatcher) Each(ctx context.Context, targets iter.Seq[Target], concurrency int, consume func(Outcome)) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	jobs := make(chan Target) // Channel of targets to probe.
	outcomes := make(chan Outcome, concurrency)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for range concurrency {
		go func() {
			defer wg.Done()
			for t := range jobs {
				outcomes <- d.Do(ctx, t)
			}
		}()
	}

	// Close outcomes once every worker has returned.
	go func() {
		defer close(outcomes)
		wg.Wait()
	}()

	go func() {
		defer close(jobs)
		for t := range targets {
			select {
			case <-ctx.Done():
				return
			case jobs <- t:
			}
		}
	}()

	for o := range outcomes {
		consume(o)
	}
}

// Do sends a single probe. Failures are reported in the outcome, never returned.
func (d *Dispatcher) Do(ctx context.Context, t Target) Outcome {
	out := Outcome{Target: t}
	if d.gate != nil {
		select {
		case d.gate <- struct{}{}:
		case <-ctx.Done():
			out.Err = ErrNetwork
			out.ErrCause = errors.Wrapf(ctx.Err(), "%s", t.URL)
			return out
		}
		defer func() { <-d.gate }()
	}
	if d.OnProbe != nil {
		d.OnProbe(t)
	}

	method := t.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := httpx.NewRequest(ctx, method, t.URL, nil, d.cfg.UserAgent)
	if err != nil {
		out.Err = ErrRequest
		out.ErrCause = errors.Wrapf(err, "build request %s", t.URL)
		d.log.WithField("url", t.URL).Debug(out.ErrCause)
		return out
	}
	httpx.ApplyHeaders(req, d.cfg.Headers)

	resp, err := d.client.Do(req)
	if err != nil {
		out.Err = ErrNetwork
		out.ErrCause = errors.Wrapf(err, "%s %s", method, t.URL)
		if ctx.Err() == nil {
			d.log.WithField("url", t.URL).Warn(out.ErrCause)
		}
		return out
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	out.Location = resp.Header.Get("Location")

	if method != http.MethodHead {
		b, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxBodyBytes))
		if err != nil {
			out.Err = ErrNetwork
			out.ErrCause = errors.Wrapf(err, "read body %s", t.URL)
			d.log.WithField("url", t.URL).Warn(out.ErrCause)
			return out
		}
		out.Body = string(b)
	}

	return out
}

// Targets adapts a list of URLs into a target sequence.
func Targets(urls iter.Seq[string], cat Category, head bool) iter.Seq[Target] {
	return func(yield func(Target) bool) {
		for u := range urls {
			if !yield(NewTarget(u, cat, head)) {
				return
			}
		}
	}
}
