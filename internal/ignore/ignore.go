// Package ignore decides which paths a file index skips.
//
// Patterns use gitignore syntax (https://git-scm.com/docs/gitignore):
// negation with a leading "!", directory-only with a trailing "/", anchoring
// with a leading or inner "/", and "*", "?", "[...]" and "**" wildcards.
// The same syntax is used for a root's ignored names and its .gitignore files.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds compiled patterns. Safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	source   string
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
	// base restricts the rule to paths under a subdirectory (nested .gitignore).
	base string
}

// New returns a Matcher seeded with patterns.
func New(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.AddPattern(p)
	}
	return m
}

// AddPattern adds a pattern that applies to the whole tree.
func (m *Matcher) AddPattern(pattern string) {
	m.AddPatternWithBase(pattern, "")
}

// AddPatternWithBase adds a pattern that only applies under base, a
// slash-separated path relative to the root.
func (m *Matcher) AddPatternWithBase(pattern, base string) {
	r, ok := compile(pattern, filepath.ToSlash(base))
	if !ok {
		return
	}
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile reads patterns from a gitignore file located in base.
func (m *Matcher) AddFromFile(file, base string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.AddPatternWithBase(scanner.Text(), base)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file %s: %w", file, err)
	}
	return nil
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Match reports whether rel, a path relative to the root, is ignored.
// The last matching rule wins, so a later negation re-includes a path.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for i := range m.rules {
		if m.rules[i].matches(rel, isDir) {
			ignored = !m.rules[i].negate
		}
	}
	return ignored
}

// MatchName reports whether a single path component is ignored by an
// unanchored rule. It lets a walker prune a directory by name alone.
func (m *Matcher) MatchName(name string, isDir bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, r := range m.rules {
		if r.anchored || r.base != "" || (r.dirOnly && !isDir) {
			continue
		}
		if r.re.MatchString(name) {
			ignored = !r.negate
		}
	}
	return ignored
}

func compile(pattern, base string) (rule, bool) {
	// "\ " at the end keeps a trailing space.
	keepSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return rule{}, false
	}

	r := rule{source: pattern, base: strings.Trim(base, "/")}

	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
	case strings.HasPrefix(pattern, "!"):
		r.negate = true
		pattern = pattern[1:]
	}

	if keepSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	// "doc/frotz" means "/doc/frotz"; "**/foo" stays floating.
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
		r.anchored = true
	}
	if pattern == "" {
		return rule{}, false
	}

	r.re = regexp.MustCompile("^" + translate(pattern) + "$")
	return r, true
}

func (r *rule) matches(rel string, isDir bool) bool {
	if r.base != "" {
		if rel == r.base || !strings.HasPrefix(rel, r.base+"/") {
			return false
		}
		rel = rel[len(r.base)+1:]
	}

	parts := strings.Split(rel, "/")
	last := len(parts) - 1

	if r.anchored {
		if r.re.MatchString(rel) {
			return !r.dirOnly || isDir
		}
		// A matching ancestor directory ignores everything below it.
		for i := 0; i < last; i++ {
			if r.re.MatchString(strings.Join(parts[:i+1], "/")) {
				return true
			}
		}
		return false
	}

	for i, part := range parts {
		if !r.re.MatchString(part) {
			continue
		}
		if i == last && r.dirOnly {
			return isDir
		}
		return true
	}

	// Floating "**/" patterns can span components.
	if !strings.Contains(r.source, "**") {
		return false
	}
	if r.re.MatchString(rel) {
		return !r.dirOnly || isDir
	}
	for i := 0; i < last; i++ {
		if r.re.MatchString(strings.Join(parts[:i+1], "/")) {
			return true
		}
	}
	return false
}

// translate converts a gitignore glob into a regular expression body.
func translate(pattern string) string {
	var sb strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				switch {
				case i+2 < len(pattern) && pattern[i+2] == '/':
					sb.WriteString("(?:.*/)?")
					i += 2
					continue
				case i == 0 || pattern[i-1] == '/':
					sb.WriteString(".*")
					i++
					continue
				}
			}
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				sb.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			sb.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(pattern) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(pattern[i])))
			} else {
				sb.WriteString(`\\`)
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return sb.String()
}
