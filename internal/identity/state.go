package identity

import (
	"sort"
	"strings"
	"sync"
)

type User struct {
	ID   int
	Slug string
	Name string
}

// Registry holds the users found so far, keyed by id. Users are only ever
// added or enriched.
type Registry struct {
	mu    sync.Mutex
	users map[int]*User
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[int]*User)}
}

// Observe records id and reports whether it was new. Negative ids are
// rejected.
func (r *Registry) Observe(id int) bool {
	if id < 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; ok {
		return false
	}
	r.users[id] = &User{ID: id}
	return true
}

// Enrich fills in the slug and name of id, observing it first if needed.
// Empty values and already set fields are left alone.
func (r *Registry) Enrich(id int, slug, name string) {
	if id < 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		u = &User{ID: id}
		r.users[id] = u
	}
	if u.Slug == "" {
		u.Slug = slug
	}
	if u.Name == "" {
		u.Name = name
	}
}

func (r *Registry) Lookup(id int) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

func (r *Registry) IDs() []int {
	r.mu.Lock()
	ids := make([]int, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Ints(ids)
	return ids
}

// Users returns a snapshot ordered by id.
func (r *Registry) Users() []User {
	r.mu.Lock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NormalizeEndpoint strips a single trailing slash.
func NormalizeEndpoint(u string) string {
	return strings.TrimSuffix(u, "/")
}

// Endpoints is the set of access paths that leaked user data.
type Endpoints struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func NewEndpoints() *Endpoints {
	return &Endpoints{set: make(map[string]struct{})}
}

func (e *Endpoints) Add(u string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.set[NormalizeEndpoint(u)] = struct{}{}
}

func (e *Endpoints) List() []string {
	e.mu.Lock()
	out := make([]string, 0, len(e.set))
	for u := range e.set {
		out = append(out, u)
	}
	e.mu.Unlock()
	sort.Strings(out)
	return out
}
