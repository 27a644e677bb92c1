package app

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

// ContentFilter masks banned words in chat text. Matching is case-insensitive
// and whole-word; matched runs are replaced with a dash mask of equal length
// so clients keep their layout. The word list is read-only after startup.
type ContentFilter struct {
	mu       sync.RWMutex
	patterns []wordPattern
}

type wordPattern struct {
	word string
	re   *regexp.Regexp
}

// NewContentFilter creates an empty filter. Use LoadFile or SetWords to
// populate it.
func NewContentFilter() *ContentFilter {
	return &ContentFilter{}
}

// LoadFile reads a flat word-list file. Blank lines and lines starting with
// `#` are skipped. A missing file yields an empty filter, not an error, so a
// fresh deployment works before anyone has curated a list.
func (f *ContentFilter) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			f.SetWords(nil)
			return nil
		}
		return fmt.Errorf("open word list: %w", err)
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read word list: %w", err)
	}

	f.SetWords(words)
	return nil
}

// SetWords replaces the active word list. Words are treated as literals;
// regex metacharacters in a list entry match themselves.
func (f *ContentFilter) SetWords(words []string) {
	patterns := make([]wordPattern, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		lower := strings.ToLower(strings.TrimSpace(w))
		if lower == "" {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		patterns = append(patterns, wordPattern{
			word: lower,
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(lower) + `\b`),
		})
	}

	f.mu.Lock()
	f.patterns = patterns
	f.mu.Unlock()
}

// Scan masks every banned word in text and returns the masked text plus the
// distinct matched words (lowercased). An empty found slice means the text
// was clean and returned unchanged.
func (f *ContentFilter) Scan(text string) (string, []string) {
	f.mu.RLock()
	patterns := f.patterns
	f.mu.RUnlock()

	var found []string
	for _, p := range patterns {
		if !p.re.MatchString(text) {
			continue
		}
		found = append(found, p.word)
		text = p.re.ReplaceAllStringFunc(text, func(m string) string {
			return strings.Repeat("-", len(m))
		})
	}
	return text, found
}

// Matches reports whether s contains any banned word, without masking.
func (f *ContentFilter) Matches(s string) bool {
	f.mu.RLock()
	patterns := f.patterns
	f.mu.RUnlock()

	for _, p := range patterns {
		if p.re.MatchString(s) {
			return true
		}
	}
	return false
}
