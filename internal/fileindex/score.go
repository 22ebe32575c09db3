package fileindex

import "unicode"

// weights tunes the fuzzy score. Values favour consecutive runs and matches
// that start a path component.
type weights struct {
	base                 int
	consecutiveBonus     int
	wordBoundaryBonus    int
	prefixBonus          int
	exactPrefixBonus     int
	gapPenalty           int
	leadingPenalty       int
	lengthBonusThreshold int
	filenameBonus        int
}

func pathWeights() weights {
	return weights{
		base:                 100,
		consecutiveBonus:     25,
		wordBoundaryBonus:    20,
		prefixBonus:          15,
		exactPrefixBonus:     30,
		gapPenalty:           3,
		leadingPenalty:       1,
		lengthBonusThreshold: 30,
		filenameBonus:        10,
	}
}

// matcher holds a normalised query.
type matcher struct {
	query         []rune
	caseSensitive bool
	w             weights
}

func newMatcher(query string, caseSensitive bool) *matcher {
	q := []rune(query)
	if !caseSensitive {
		for i, r := range q {
			q[i] = unicode.ToLower(r)
		}
	}
	return &matcher{query: q, caseSensitive: caseSensitive, w: pathWeights()}
}

// match returns the rune indexes of a greedy left-to-right subsequence match
// of the query in path and its score. ok is false when some query rune is
// missing.
func (m *matcher) match(path string) (indexes []int, score int, ok bool) {
	if len(m.query) == 0 || path == "" {
		return nil, 0, false
	}

	original := []rune(path)
	text := original
	if !m.caseSensitive {
		text = make([]rune, len(original))
		for i, r := range original {
			text[i] = unicode.ToLower(r)
		}
	}

	indexes = make([]int, 0, len(m.query))
	qi := 0
	for i := 0; i < len(text) && qi < len(m.query); i++ {
		if text[i] == m.query[qi] {
			indexes = append(indexes, i)
			qi++
		}
	}
	if qi != len(m.query) {
		return nil, 0, false
	}
	return indexes, m.score(original, text, indexes), true
}

func (m *matcher) score(original, text []rune, matches []int) int {
	w := m.w
	score := w.base

	for i := 1; i < len(matches); i++ {
		if matches[i] == matches[i-1]+1 {
			score += w.consecutiveBonus
		}
	}

	for _, idx := range matches {
		if isWordBoundary(original, idx) {
			score += w.wordBoundaryBonus
		}
	}

	if matches[0] == 0 {
		score += w.prefixBonus
	}

	if len(matches) > 1 {
		gap := matches[len(matches)-1] - matches[0] - len(matches) + 1
		if gap > 0 {
			score -= gap * w.gapPenalty
		}
	}

	score -= matches[0] * w.leadingPenalty

	if len(text) < w.lengthBonusThreshold {
		score += w.lengthBonusThreshold - len(text)
	}

	if len(text) >= len(m.query) {
		prefix := true
		for i, r := range m.query {
			if text[i] != r {
				prefix = false
				break
			}
		}
		if prefix {
			score += w.exactPrefixBonus
		}
	}

	// Matches in the file name count more than matches in directories.
	lastSep := -1
	for i := len(original) - 1; i >= 0; i-- {
		if original[i] == '/' {
			lastSep = i
			break
		}
	}
	for _, idx := range matches {
		if idx > lastSep {
			score += w.filenameBonus
		}
	}

	if score < 1 {
		score = 1
	}
	return score
}

// isWordBoundary reports whether the rune at idx starts a word: the first
// rune, a rune after a separator, or an upper-case rune after a lower-case one.
func isWordBoundary(runes []rune, idx int) bool {
	if idx == 0 {
		return true
	}
	if idx >= len(runes) {
		return false
	}
	prev, cur := runes[idx-1], runes[idx]
	if unicode.IsSpace(prev) || unicode.IsPunct(prev) || prev == '/' {
		return true
	}
	return unicode.IsLower(prev) && unicode.IsUpper(cur)
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}
