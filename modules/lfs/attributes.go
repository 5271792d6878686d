package lfs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mega-forge/mega/modules/wildmatch"
)

// lfsAttributeSuffix is appended after a tracked pattern, mirroring the
// line Git LFS writes to .gitattributes for every tracked pattern.
const lfsAttributeSuffix = "filter=lfs diff=lfs merge=lfs -text"

// AttributeMatcher answers whether a repository path is LFS-tracked,
// compiling .gitattributes-style patterns with gitignore glob semantics.
// A matcher records the mtime of the file it was loaded from, so
// LoadAttributeMatcher can hand it back instead of recompiling; readers
// share its compiled patterns under a read lock.
type AttributeMatcher struct {
	mu       sync.RWMutex
	patterns []*wildmatch.Wildmatch
	raw      []string
	mtime    time.Time
}

// NewAttributeMatcher compiles the patterns found in an attributes file's
// contents. Each line is a single pattern; a backslash-escaped space is
// treated as a literal space in the pattern, matching Git's .gitattributes
// line format.
func NewAttributeMatcher(r io.Reader) (*AttributeMatcher, error) {
	m := &AttributeMatcher{}
	if err := m.load(r); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadAttributeMatcher reads path and compiles its patterns, recompiling
// only when the file's mtime has advanced past what's cached.
func LoadAttributeMatcher(m *AttributeMatcher, path string) (*AttributeMatcher, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.mu.RLock()
		fresh := m.mtime.Equal(fi.ModTime())
		m.mu.RUnlock()
		if fresh {
			return m, nil
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	next := &AttributeMatcher{}
	if err := next.load(f); err != nil {
		return nil, err
	}
	next.mtime = fi.ModTime()
	return next, nil
}

func (m *AttributeMatcher) load(r io.Reader) error {
	var patterns []*wildmatch.Wildmatch
	var raw []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		pattern, tracked := parseLFSLine(line)
		if !tracked {
			continue
		}
		patterns = append(patterns, wildmatch.NewWildmatch(pattern, wildmatch.Basename, wildmatch.GitAttributes))
		raw = append(raw, pattern)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.patterns, m.raw = patterns, raw
	m.mu.Unlock()
	return nil
}

// parseLFSLine extracts the pattern from an attributes line that tracks
// LFS, e.g. `*.bin filter=lfs diff=lfs merge=lfs -text`. Non-LFS lines
// (plain .gitattributes entries, comments, blanks) are ignored.
func parseLFSLine(line string) (pattern string, tracked bool) {
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	// The pattern ends at the first whitespace not escaped by a backslash.
	end := 0
	for end < len(line) && line[end] != ' ' && line[end] != '\t' {
		if line[end] == '\\' && end+1 < len(line) {
			end++
		}
		end++
	}
	for _, f := range strings.Fields(line[end:]) {
		if f == "filter=lfs" {
			return unescapeSpace(line[:end]), true
		}
	}
	return "", false
}

func unescapeSpace(pattern string) string {
	return strings.ReplaceAll(pattern, `\ `, " ")
}

func escapeSpace(pattern string) string {
	return strings.ReplaceAll(pattern, " ", `\ `)
}

// Tracked reports whether path matches any compiled pattern.
func (m *AttributeMatcher) Tracked(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// AddPattern appends a tracking line for pattern to w, unless an
// equivalent line is already present in existing (idempotent add).
func AddPattern(w io.Writer, existing []string, pattern string) error {
	for _, line := range existing {
		if parsedPattern, tracked := parseLFSLine(line); tracked && parsedPattern == pattern {
			return nil
		}
	}
	_, err := fmt.Fprintf(w, "%s %s\n", escapeSpace(pattern), lfsAttributeSuffix)
	return err
}

// RemovePattern returns existing with every line tracking pattern removed.
func RemovePattern(existing []string, pattern string) []string {
	out := existing[:0:0]
	for _, line := range existing {
		if parsedPattern, tracked := parseLFSLine(line); tracked && parsedPattern == pattern {
			continue
		}
		out = append(out, line)
	}
	return out
}
