package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/tdh8316/wprecon/internal/probe"
)

var ErrHelp = errors.New("help requested")

const (
	defaultThreads = 10
	defaultTimeout = 10
)

type Options struct {
	Target string `yaml:"target"`

	NoColor  bool `yaml:"no_color"`
	NoOutput bool `yaml:"no_output"`
	Verbose  bool `yaml:"verbose"`
	Download bool `yaml:"download"`

	Threads        int      `yaml:"threads"`
	Proxy          string   `yaml:"proxy"`
	Headers        []string `yaml:"headers"`
	TimeoutSeconds int      `yaml:"timeout"`
	AuthorRangeRaw string   `yaml:"author_range"`
	UsersWordlist  string   `yaml:"wordlist_users"`
	// Wordlists maps a category id to a wordlist file.
	Wordlists   map[string]string `yaml:"wordlists"`
	DiscoverRaw []string          `yaml:"discover"`
	Needle      string            `yaml:"needle"`
	Output      string            `yaml:"output"`
	ResultsDir  string            `yaml:"results"`
	MinVersion  string            `yaml:"min_version"`

	// Derived from the raw values above.
	Timeout     time.Duration    `yaml:"-"`
	AuthorRange [2]int           `yaml:"-"`
	Discover    []probe.Category `yaml:"-"`
}

// Discoverable lists the categories accepted by --discover.
var Discoverable = []probe.Category{probe.Backups, probe.Configs, probe.Logs, probe.Dangerous, probe.FPD}

// wordlistFlags maps a category to the flag selecting its wordlist.
var wordlistFlags = []struct {
	cat  probe.Category
	flag string
}{
	{probe.Backups, "wordlist-backups"},
	{probe.Configs, "wordlist-configs"},
	{probe.Logs, "wordlist-logs"},
	{probe.Dangerous, "wordlist-dangerous"},
	{probe.FPD, "wordlist-fpd"},
	{probe.DirectoryListing, "wordlist-dirs"},
}

func Defaults() Options {
	return Options{
		Threads:        defaultThreads,
		TimeoutSeconds: defaultTimeout,
		AuthorRangeRaw: "1-10",
		DiscoverRaw:    []string{"backups", "configs", "dangerous", "fpd"},
		ResultsDir:     "results",
		Wordlists:      map[string]string{},
	}
}

const usageText = `
usage:
  wprecon [flags] URL

positional arguments:
  URL                   target WordPress site

flags:
  -h, --help            show this help message and exit
  --no-color            disable colored stdout output
  --no-output           disable file output
  -v, --verbose         verbose output
  -d, --download        download discovered media files

options:
  --config FILE         read options from a YAML file (flags win)
  -t, --threads N       concurrent requests for wordlist runs (default: 10)
  -p, --proxy URL       http://, https:// or socks5:// proxy
  -H, --header H        extra request header "Name: value" (repeatable)
  --timeout SECONDS     HTTP request timeout (default: 10)
  --author-range A-B    author ids to try (default: 1-10)
  --wordlist-users FILE author names wordlist
  --wordlist-backups FILE, --wordlist-configs FILE, --wordlist-logs FILE,
  --wordlist-dangerous FILE, --wordlist-fpd FILE, --wordlist-dirs FILE
                        custom wordlists per category
  --discover LIST       wordlist categories to run (default: backups,configs,dangerous,fpd)
  --needle TEXT         body text required for dangerous-script findings
  -o, --output PREFIX   write discovered media URLs to PREFIX-media.txt
  --results DIR         output directory (default: results)
  --min-version V       report WordPress releases older than V
`

type headerList struct {
	values   []string
	explicit bool
}

func (h *headerList) String() string { return strings.Join(h.values, ", ") }

func (h *headerList) Set(v string) error {
	// Headers from the command line replace those of the config file.
	if !h.explicit {
		h.values = nil
		h.explicit = true
	}
	h.values = append(h.values, v)
	return nil
}

func Parse(args []string, stdout, stderr io.Writer) (Options, error) {
	opts := Defaults()

	if path := configPath(args); path != "" {
		if err := LoadFile(path, &opts); err != nil {
			return Options{}, err
		}
	}

	var (
		help        bool
		configFile  string
		discoverCSV = strings.Join(opts.DiscoverRaw, ",")
		headers     = headerList{values: opts.Headers}
		wordlists   = make(map[probe.Category]*string, len(wordlistFlags))
	)

	fs := flag.NewFlagSet("wprecon", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.Usage = func() {
		_, _ = fmt.Fprint(stdout, usageText)
	}

	// Help
	fs.BoolVar(&help, "h", false, "show help")
	fs.BoolVar(&help, "help", false, "show help")

	// Behavior flags
	fs.BoolVar(&opts.NoColor, "no-color", opts.NoColor, "disable colored output")
	fs.BoolVar(&opts.NoOutput, "no-output", opts.NoOutput, "disable file output")
	fs.BoolVar(&opts.Verbose, "v", opts.Verbose, "verbose output")
	fs.BoolVar(&opts.Verbose, "verbose", opts.Verbose, "verbose output")
	fs.BoolVar(&opts.Download, "d", opts.Download, "download discovered media")
	fs.BoolVar(&opts.Download, "download", opts.Download, "download discovered media")

	// Options
	fs.StringVar(&configFile, "config", "", "YAML config file")
	fs.IntVar(&opts.Threads, "t", opts.Threads, "concurrent requests")
	fs.IntVar(&opts.Threads, "threads", opts.Threads, "concurrent requests")
	fs.StringVar(&opts.Proxy, "p", opts.Proxy, "proxy url")
	fs.StringVar(&opts.Proxy, "proxy", opts.Proxy, "proxy url")
	fs.Var(&headers, "H", "extra header")
	fs.Var(&headers, "header", "extra header")
	fs.IntVar(&opts.TimeoutSeconds, "timeout", opts.TimeoutSeconds, "request timeout in seconds")
	fs.StringVar(&opts.AuthorRangeRaw, "author-range", opts.AuthorRangeRaw, "author id range")
	fs.StringVar(&opts.UsersWordlist, "wordlist-users", opts.UsersWordlist, "author names wordlist")
	for _, w := range wordlistFlags {
		v := opts.Wordlists[string(w.cat)]
		wordlists[w.cat] = &v
		fs.StringVar(wordlists[w.cat], w.flag, v, "wordlist for "+string(w.cat))
	}
	fs.StringVar(&discoverCSV, "discover", discoverCSV, "comma-separated categories")
	fs.StringVar(&opts.Needle, "needle", opts.Needle, "required body text")
	fs.StringVar(&opts.Output, "o", opts.Output, "media list prefix")
	fs.StringVar(&opts.Output, "output", opts.Output, "media list prefix")
	fs.StringVar(&opts.ResultsDir, "results", opts.ResultsDir, "results output directory")
	fs.StringVar(&opts.MinVersion, "min-version", opts.MinVersion, "minimum WordPress version")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if help {
		fs.Usage()
		return Options{}, ErrHelp
	}

	if rest := fs.Args(); len(rest) > 0 {
		opts.Target = rest[0]
		if len(rest) > 1 {
			return Options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(rest[1:], " "))
		}
	}
	if strings.TrimSpace(opts.Target) == "" {
		fs.Usage()
		return Options{}, errors.New("missing target URL")
	}

	opts.Headers = headers.values
	for cat, v := range wordlists {
		if *v != "" {
			opts.Wordlists[string(cat)] = *v
		}
	}

	if opts.TimeoutSeconds <= 0 {
		// Don't allow zero or negative timeouts; reset to default.
		opts.TimeoutSeconds = defaultTimeout
		warn(stdout, opts.NoColor, "Invalid timeout value; using default of %s.", strconv.Itoa(defaultTimeout)+" seconds")
	}
	opts.Timeout = time.Duration(opts.TimeoutSeconds) * time.Second

	if opts.Threads <= 0 {
		opts.Threads = defaultThreads
	}

	r, err := ParseRange(opts.AuthorRangeRaw)
	if err != nil {
		return Options{}, err
	}
	opts.AuthorRange = r

	opts.DiscoverRaw = splitCSV(discoverCSV)
	opts.Discover, err = parseDiscover(opts.DiscoverRaw)
	if err != nil {
		return Options{}, err
	}

	return opts, nil
}

// LoadFile reads a YAML config file into opts. Keys missing from the file
// keep their current value.
func LoadFile(path string, opts *Options) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, opts); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if opts.Wordlists == nil {
		opts.Wordlists = map[string]string{}
	}
	return nil
}

// ParseRange parses "A-B" or a single id into an inclusive range.
func ParseRange(s string) ([2]int, error) {
	s = strings.TrimSpace(s)
	lo, hi, found := strings.Cut(s, "-")
	if !found {
		hi = lo
	}
	a, errA := strconv.Atoi(strings.TrimSpace(lo))
	b, errB := strconv.Atoi(strings.TrimSpace(hi))
	if errA != nil || errB != nil || a < 0 || b < a {
		return [2]int{}, fmt.Errorf("invalid author range %q (want A-B with 0 <= A <= B)", s)
	}
	return [2]int{a, b}, nil
}

func parseDiscover(ids []string) ([]probe.Category, error) {
	out := make([]probe.Category, 0, len(ids))
	for _, id := range ids {
		cat, err := probe.ParseCategory(id)
		if err != nil {
			return nil, err
		}
		ok := false
		for _, d := range Discoverable {
			ok = ok || d == cat
		}
		if !ok {
			return nil, fmt.Errorf("category %q cannot be used with --discover", id)
		}
		out = append(out, cat)
	}
	return out, nil
}

// configPath finds the --config value before flags are defined, so that
// file values can become flag defaults.
func configPath(args []string) string {
	for i, a := range args {
		if a == "--" {
			return ""
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func warn(stdout io.Writer, noColor bool, format, hl string) {
	if noColor {
		fmt.Fprintf(stdout, "[!] "+format+"\n", hl)
		return
	}
	fmt.Fprintf(color.Output, "[%s] "+format+"\n", color.HiRedString("!"), color.HiYellowString(hl))
}
