// Package wordlist expands wordlist lines into candidate paths.
package wordlist

import (
	"iter"
	"strings"

	"github.com/tdh8316/wprecon/internal/probe"
)

// Context carries the target names used to derive domain-specific stems.
type Context struct {
	Domain      string // full host, e.g. www.example.com
	DomainLabel string // registrable label, e.g. example
	TLD         string // public suffix, e.g. com
	Subdomain   string
}

var (
	backupExtensions  = []string{"", "sql", "sql.gz", "zip", "rar", "tar", "tar.gz", "tgz", "7z", "arj"}
	configExtensions  = []string{"php_", "php~", "bak", "old", "zal", "backup", "bck", "php.bak", "php.old", "php.zal", "php.bck", "php.backup"}
	archiveExtensions = backupExtensions[1:]
)

// Extensions returns the extension set crossed with stems of cat.
func Extensions(cat probe.Category) []string {
	switch cat {
	case probe.Backups:
		return backupExtensions
	case probe.Configs:
		return configExtensions
	default:
		return archiveExtensions
	}
}

// IsStem reports whether line asks for extensions to be appended.
func IsStem(line string) bool {
	return strings.HasSuffix(line, ".")
}

// DomainStems returns the stems derived from the target name.
func DomainStems(c Context) []string {
	if c.DomainLabel == "" {
		return nil
	}
	stems := []string{c.DomainLabel + "."}
	if c.TLD != "" {
		stems = append(stems, c.DomainLabel+"_"+c.TLD+".", c.DomainLabel+"-"+c.TLD+".")
	}
	return stems
}

// Expand yields the verbatim lines of lines followed by every stem crossed
// with the extension set of cat. Backups also get the domain stems. Nothing
// is deduplicated.
func Expand(cat probe.Category, c Context, lines iter.Seq[string]) iter.Seq[string] {
	return func(yield func(string) bool) {
		var stems []string
		if lines != nil {
			for line := range lines {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if IsStem(line) {
					stems = append(stems, line)
					continue
				}
				if !yield(line) {
					return
				}
			}
		}

		if cat == probe.Backups {
			stems = append(stems, DomainStems(c)...)
		}

		for _, stem := range stems {
			for _, ext := range Extensions(cat) {
				candidate := stem + ext
				if ext == "" {
					candidate = strings.TrimSuffix(stem, ".")
				}
				if !yield(candidate) {
					return
				}
			}
		}
	}
}

// URLs joins every path fragment onto base with exactly one slash.
func URLs(base string, paths iter.Seq[string]) iter.Seq[string] {
	base = strings.TrimSuffix(base, "/")
	return func(yield func(string) bool) {
		for p := range paths {
			if !yield(base + "/" + strings.TrimPrefix(p, "/")) {
				return
			}
		}
	}
}
