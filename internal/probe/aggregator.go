package probe

import (
	"sort"
	"sync"
)

type findingKey struct {
	url string
	cat Category
}

// Aggregator collects findings from concurrent producers. Inserting the same
// (URL, Category) pair twice keeps the first evidence.
type Aggregator struct {
	mu    sync.Mutex
	items map[findingKey]Finding
}

func NewAggregator() *Aggregator {
	return &Aggregator{items: make(map[findingKey]Finding)}
}

// Add reports whether f was new.
func (a *Aggregator) Add(f Finding) bool {
	k := findingKey{url: f.URL, cat: f.Category}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.items[k]; ok {
		return false
	}
	a.items[k] = f
	return true
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Findings returns the collected findings ordered by category, then URL.
func (a *Aggregator) Findings() []Finding {
	a.mu.Lock()
	out := make([]Finding, 0, len(a.items))
	for _, f := range a.items {
		out = append(out, f)
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].URL < out[j].URL
	})
	return out
}
