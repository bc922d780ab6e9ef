package classify

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tdh8316/wprecon/internal/probe"
)

func outcome(t probe.Target, status int, body, location string) probe.Outcome {
	return probe.Outcome{Target: t, StatusCode: status, Body: body, Location: location}
}

func TestExistence(t *testing.T) {
	t.Parallel()

	tgt := probe.NewTarget("http://x/backup/", probe.Backups, true)
	assert.True(t, Existence(tgt, outcome(tgt, http.StatusOK, "", "")).Matched)
	assert.False(t, Existence(tgt, outcome(tgt, http.StatusForbidden, "", "")).Matched)
	assert.False(t, Existence(tgt, outcome(tgt, http.StatusMovedPermanently, "", "/x")).Matched)
}

func TestContentMatch(t *testing.T) {
	t.Parallel()

	classify := ContentMatch("Phpinfo()")
	tgt := probe.Target{URL: "http://x/info.php", Category: probe.Dangerous}

	assert.True(t, classify(tgt, outcome(tgt, 200, "<title>PHPINFO()</title>", "")).Matched)
	assert.False(t, classify(tgt, outcome(tgt, 200, "nothing", "")).Matched)
	assert.False(t, classify(tgt, outcome(tgt, 404, "phpinfo()", "")).Matched)
}

func TestContentMatch_RepairPageSuppressed(t *testing.T) {
	t.Parallel()

	classify := ContentMatch("repair")
	body := "<p>Repair database</p> define('WP_ALLOW_REPAIR', true);"

	tgt := probe.Target{URL: "https://example.com/wp-admin/maint/repair.php", Category: probe.Dangerous}
	assert.False(t, classify(tgt, outcome(tgt, 200, body, "")).Matched)

	// Upper-cased marker is still recognised.
	upper := "REPAIR DEFINE('WP_ALLOW_REPAIR', TRUE);"
	assert.False(t, classify(tgt, outcome(tgt, 200, upper, "")).Matched)

	// WordPress installed under a sub-path.
	sub := probe.Target{URL: "https://example.com/blog/wp-admin/maint/repair.php", Category: probe.Dangerous}
	assert.False(t, classify(sub, outcome(sub, 200, body, "")).Matched)

	// Without the marker the page is reported.
	assert.True(t, classify(tgt, outcome(tgt, 200, "repair", "")).Matched)

	// The carve-out is specific to the dangerous category and the repair script.
	other := probe.Target{URL: "https://example.com/wp-admin/maint/other.php", Category: probe.Dangerous}
	assert.True(t, classify(other, outcome(other, 200, body, "")).Matched)
	cfg := probe.Target{URL: tgt.URL, Category: probe.Configs}
	assert.True(t, classify(cfg, outcome(cfg, 200, body, "")).Matched)
}

func TestPathDisclosure(t *testing.T) {
	t.Parallel()

	tgt := probe.Target{URL: "http://x/wp-includes/rss-functions.php", Category: probe.FPD}
	body := "<b>Fatal error</b>: Call to undefined function in /var/www/html/wp-includes/rss-functions.php on line 8" +
		" and IN C:\\inetpub\\wwwroot\\index.php"

	res := PathDisclosure(tgt, outcome(tgt, 500, body, ""))
	assert.True(t, res.Matched)
	assert.Equal(t, "/var/www/html/wp-includes/rss-functions.php, C:\\inetpub\\wwwroot\\index.php", res.Evidence)

	assert.False(t, PathDisclosure(tgt, outcome(tgt, 200, "all fine here", "")).Matched)
}

func TestDirectoryListing(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://x/wp-content/uploads/", NormalizeDir("http://x/wp-content/uploads"))
	assert.Equal(t, "http://x/wp-content/uploads/", NormalizeDir("http://x/wp-content/uploads/"))

	tgt := probe.Target{URL: NormalizeDir("http://x/wp-content/uploads"), Category: probe.DirectoryListing}
	assert.True(t, DirectoryListing(tgt, outcome(tgt, 200, "<h1>Index of /uploads</h1>", "")).Matched)
	assert.False(t, DirectoryListing(tgt, outcome(tgt, 403, "<h1>Index of /uploads</h1>", "")).Matched)
	assert.False(t, DirectoryListing(tgt, outcome(tgt, 200, "<h1>Uploads</h1>", "")).Matched)
}

func TestAuthorID(t *testing.T) {
	t.Parallel()

	tgt := probe.Target{URL: "http://x/?author=3", Category: probe.Users}

	assert.True(t, AuthorID(tgt, outcome(tgt, 200, "", "")).Matched)
	direct := AuthorID(tgt, outcome(tgt, 200, "<title>Jane Doe | Blog</title>", ""))
	assert.Equal(t, "Jane Doe", direct.Evidence)

	res := AuthorID(tgt, outcome(tgt, 301, "", "http://x/author/jdoe/"))
	assert.True(t, res.Matched)
	assert.Equal(t, "jdoe", res.Evidence)

	assert.False(t, AuthorID(tgt, outcome(tgt, 302, "", "http://x/login/")).Matched)
	assert.False(t, AuthorID(tgt, outcome(tgt, 404, "", "")).Matched)
}

func TestForCategory_Idempotent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		cat probe.Category
		o   probe.Outcome
	}{
		{probe.Backups, probe.Outcome{StatusCode: 200}},
		{probe.Dangerous, probe.Outcome{StatusCode: 200, Body: "needle"}},
		{probe.FPD, probe.Outcome{StatusCode: 500, Body: "error in /srv/app.php"}},
		{probe.DirectoryListing, probe.Outcome{StatusCode: 200, Body: "Index of /"}},
		{probe.Users, probe.Outcome{StatusCode: 301, Location: "/author/admin/"}},
	}

	for _, tc := range cases {
		t.Run(string(tc.cat), func(t *testing.T) {
			tgt := probe.Target{URL: "http://x/p", Category: tc.cat}
			classify := ForCategory(tc.cat, "needle")
			first := classify(tgt, tc.o)
			second := classify(tgt, tc.o)
			assert.Equal(t, first, second)
			assert.True(t, first.Matched)
		})
	}
}
