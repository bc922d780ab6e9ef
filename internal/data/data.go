package data

import (
	"bufio"
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// ErrNotText is returned by Validate for binary or undecodable files.
var ErrNotText = errors.New("not a text file")

// Size of the prefix inspected by Validate.
const sniffBytes = 1024

//go:embed wordlists/*.txt
var wordlists embed.FS

// Builtin returns the lines of the embedded wordlist called name.
func Builtin(name string) ([]string, error) {
	raw, err := wordlists.ReadFile("wordlists/" + name + ".txt")
	if err != nil {
		return nil, fmt.Errorf("builtin wordlist %q: %w", name, err)
	}
	return splitLines(raw), nil
}

// Lines streams the lines of the file at path. The file is opened when the
// sequence is iterated; an unreadable file yields nothing.
func Lines(path string) iter.Seq[string] {
	return func(yield func(string) bool) {
		f, err := os.Open(path)
		if err != nil {
			return
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			if !yield(strings.TrimSpace(sc.Text())) {
				return
			}
		}
	}
}

// Validate checks that the start of the file is printable UTF-8 text.
func Validate(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, sniffBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	return validateText(buf[:n], n == sniffBytes)
}

func validateText(b []byte, truncated bool) error {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			// A rune cut off by the sniff window is fine.
			if truncated && !utf8.FullRune(b) {
				return nil
			}
			return fmt.Errorf("%w: invalid UTF-8", ErrNotText)
		}
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) && r != '\uFEFF' {
			return fmt.Errorf("%w: control character %U", ErrNotText, r)
		}
		b = b[size:]
	}
	return nil
}

// Wordlist returns the lines of the user supplied file at path, or of the
// builtin list name when path is empty or fails validation.
func Wordlist(path, name string, log logrus.FieldLogger) iter.Seq[string] {
	if path != "" {
		err := Validate(path)
		if err == nil {
			return Lines(path)
		}
		if log != nil {
			log.WithError(err).WithField("wordlist", path).Warnf("falling back to builtin %s wordlist", name)
		}
	}

	lines, err := Builtin(name)
	if err != nil {
		if log != nil {
			log.WithError(err).Warn("no builtin wordlist")
		}
		return func(func(string) bool) {}
	}
	return func(yield func(string) bool) {
		for _, l := range lines {
			if !yield(l) {
				return
			}
		}
	}
}

// WriteLines writes lines joined by newlines to destPath through a
// temporary file, so readers never see a partial file.
func WriteLines(destPath string, lines []string) error {
	if dir := filepath.Dir(destPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := destPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, destPath)
}

func splitLines(raw []byte) []string {
	var out []string
	for _, l := range bytes.Split(raw, []byte("\n")) {
		s := strings.TrimSpace(string(l))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
