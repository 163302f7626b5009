// Package text converts raw filing bytes into auditable sentence-level
// disclosure features: deterministic HTML extraction, heuristic sentence
// splitting, dictionary classification, and aggregation into one feature
// record per document.
package text

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Sentence is one segment of a source document. Text keeps the original
// casing for audit output; Ordinal is the position within the document.
type Sentence struct {
	Text    string `json:"text"`
	Ordinal int    `json:"ordinal"`
}

// abbreviations that end with a period but do not terminate a sentence.
var abbreviations = []string{
	"u.s.",
	"u.k.",
	"inc.",
	"ltd.",
	"corp.",
	"co.",
	"no.",
	"dr.",
	"mr.",
	"ms.",
	"mrs.",
	"st.",
	"e.g.",
	"i.e.",
}

var (
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	newlineRunRe = regexp.MustCompile(`\n{2,}`)
)

// Split segments text into ordered sentences. It is a pure function: the
// same input always yields the same sequence. Whitespace is normalized,
// ordering is preserved, and empty segments are discarded; everything else
// in the input survives into exactly one sentence.
func Split(text string) []Sentence {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	normalized = spaceRunRe.ReplaceAllString(normalized, " ")
	normalized = newlineRunRe.ReplaceAllString(normalized, "\n")

	protected, repl := protectAbbreviations(normalized)

	// Newlines first: SEC filings carry many bullet and list boundaries
	// that never get terminal punctuation.
	var sentences []Sentence
	ordinal := 0
	for _, para := range strings.Split(protected, "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, part := range splitTerminal(para) {
			s := strings.TrimSpace(restoreAbbreviations(part, repl))
			if s == "" {
				continue
			}
			sentences = append(sentences, Sentence{Text: s, Ordinal: ordinal})
			ordinal++
		}
	}
	return sentences
}

// splitTerminal splits after runs of sentence-terminal punctuation followed
// by whitespace. RE2 has no lookbehind, so the split is done by hand.
func splitTerminal(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if !isTerminal(s[i]) {
			continue
		}
		j := i + 1
		for j < len(s) && isTerminal(s[j]) {
			j++
		}
		if j < len(s) && (s[j] == ' ' || s[j] == '\t') {
			parts = append(parts, s[start:j])
			for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
				j++
			}
			start = j
		}
		i = j - 1
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func isTerminal(c byte) bool { return c == '.' || c == '!' || c == '?' }

func protectAbbreviations(text string) (string, map[string]string) {
	repl := make(map[string]string)
	lower := strings.ToLower(text)
	protected := text
	for i, abbr := range abbreviations {
		if !strings.Contains(lower, abbr) {
			continue
		}
		token := fmt.Sprintf("__ABBR%d__", i)
		repl[token] = abbr
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(abbr))
		protected = re.ReplaceAllString(protected, token)
	}
	return protected, repl
}

func restoreAbbreviations(text string, repl map[string]string) string {
	if len(repl) == 0 {
		return text
	}
	tokens := make([]string, 0, len(repl))
	for tok := range repl {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	for _, tok := range tokens {
		text = strings.ReplaceAll(text, tok, repl[tok])
	}
	return text
}
