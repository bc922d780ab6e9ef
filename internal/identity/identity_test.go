package identity

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"name before pipe", "<html><title>Jane Doe | Example Blog</title></html>", "Jane Doe", true},
		{"email title", "<TITLE>admin@example.com</TITLE>", "admin@example.com", true},
		{"accented name", "<title>Jiří Novák – Blog</title>", "Jiří Novák", true},
		{"entity separator", "<title>John Smith &#8211; Site</title>", "John Smith", true},
		{"multiline title", "<title>\n  Alice · Notes\n</title>", "Alice", true},
		{"no separator", "<title>Just a title</title>", "", false},
		{"no title", "<html><body>hi</body></html>", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractIdentity(tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPatterns(t *testing.T) {
	t.Parallel()

	title, ok := Title("<title> a &amp; b </title>")
	require.True(t, ok)
	assert.Equal(t, "a & b", title)

	email, ok := FromTitle("web@example.com - Example")
	require.True(t, ok)
	assert.Equal(t, "web@example.com", email)

	name, ok := FromTitle("j.doe_99 # Example")
	require.True(t, ok)
	assert.Equal(t, "j.doe_99", name)
}

func TestAuthorSlug(t *testing.T) {
	t.Parallel()

	slug, ok := AuthorSlug("https://example.com/author/jane-doe/")
	require.True(t, ok)
	assert.Equal(t, "jane-doe", slug)

	_, ok = AuthorSlug("https://example.com/author/jane-doe")
	assert.False(t, ok)
	_, ok = AuthorSlug("")
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.True(t, r.Observe(2))
	assert.False(t, r.Observe(2))
	assert.False(t, r.Observe(-1))

	r.Enrich(2, "admin", "")
	r.Enrich(2, "other", "Admin")
	r.Enrich(5, "", "Bob")

	u, ok := r.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, User{ID: 2, Slug: "admin", Name: "Admin"}, u)
	assert.Equal(t, []int{2, 5}, r.IDs())
	assert.Len(t, r.Users(), 2)
}

func TestRegistry_ConcurrentObserve(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := 0; id < 50; id++ {
				r.Observe(id)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, r.IDs(), 50)
}

func TestEndpoints_TrailingSlashCoalesces(t *testing.T) {
	t.Parallel()

	e := NewEndpoints()
	e.Add("https://x/wp-json/wp/v2/users")
	e.Add("https://x/wp-json/wp/v2/users/")
	e.Add("https://x/?author=<id>")

	assert.Equal(t, []string{"https://x/?author=<id>", "https://x/wp-json/wp/v2/users"}, e.List())
}
