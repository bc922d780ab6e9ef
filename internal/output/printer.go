package output

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/tdh8316/wprecon/internal/probe"
)

const indent = "    "

// clearEOL erases the rest of the terminal line after a progress update.
const clearEOL = "\x1b[K"

type Printer struct {
	noColor  bool
	verbose  bool
	progress bool

	mu     sync.Mutex
	out    io.Writer
	logger *log.Logger
	stream *log.Logger // optional (writes to buffer)
}

func NewPrinter(stdout io.Writer, noColor, verbose bool, buf *strings.Builder) *Printer {
	p := &Printer{
		noColor:  noColor,
		verbose:  verbose,
		progress: !noColor,
		out:      stdout,
		logger:   log.New(stdout, "", 0),
	}
	if buf != nil {
		p.stream = log.New(buf, "", 0)
	}
	return p
}

// SetProgress toggles the in-place progress line. It is meant for
// terminals; redirected output should turn it off.
func (p *Printer) SetProgress(on bool) {
	p.progress = on
}

func (p *Printer) print(plain, colored string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		p.stream.Print(plain)
	}
	if p.noColor {
		p.logger.Print(plain)
		return
	}
	if p.progress {
		fmt.Fprint(p.out, "\r"+clearEOL)
	}
	p.logger.Print(colored)
}

// Title starts a new section.
func (p *Printer) Title(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.print("\n"+msg, "\n"+color.HiCyanString(msg))
}

func (p *Printer) Vuln(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.print(fmt.Sprintf("%s[%s] %s", indent, "+", msg),
		fmt.Sprintf("%s[%s] %s", indent, color.HiRedString("+"), color.HiWhiteString(msg)))
}

func (p *Printer) OK(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.print(fmt.Sprintf("%s[%s] %s", indent, "-", msg),
		fmt.Sprintf("%s[%s] %s", indent, color.HiGreenString("-"), msg))
}

func (p *Printer) Info(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.print(fmt.Sprintf("%s[%s] %s", indent, "i", msg),
		fmt.Sprintf("%s[%s] %s", indent, color.HiBlueString("i"), msg))
}

func (p *Printer) Error(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.print(fmt.Sprintf("%s[%s] %s", indent, "!", msg),
		fmt.Sprintf("%s[%s] %s", indent, color.HiRedString("!"), color.HiYellowString(msg)))
}

// Text prints an indented detail line under the previous entry.
func (p *Printer) Text(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.print(indent+indent+msg, indent+indent+color.WhiteString(msg))
}

// Finding prints a classified-positive probe.
func (p *Printer) Finding(f probe.Finding) {
	p.Vuln("%s", f.URL)
	if f.Evidence != "" && f.Category != probe.Dangerous {
		p.Text("%s", f.Evidence)
	}
}

// Progress shows the URL currently being probed on a single, rewritten
// terminal line, which never reaches the plain text mirror. In verbose mode
// every probe gets its own line instead.
func (p *Printer) Progress(t probe.Target) {
	if p.verbose {
		method := t.Method
		if method == "" {
			method = "GET"
		}
		p.print(fmt.Sprintf("%s[%s] %s %s", indent, "*", method, t.URL),
			fmt.Sprintf("%s[%s] %s %s", indent, color.HiBlackString("*"), method, color.HiBlackString(t.URL)))
		return
	}
	if !p.progress || p.noColor {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\r%s%s%s", indent, color.HiBlackString(t.URL), clearEOL)
}

// Done clears a pending progress line.
func (p *Printer) Done() {
	if p.verbose || !p.progress || p.noColor {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, "\r"+clearEOL)
}
