package text

import (
	"regexp"
	"strings"

	"github.com/sells-group/disclosure-cli/internal/dict"
)

// Classification holds the three per-sentence facts. The axes are not
// mutually exclusive, but both IsAspirational and IsKPI require
// IsEnvironmental; Classify enforces that ordering.
type Classification struct {
	IsEnvironmental bool `json:"is_environmental"`
	IsAspirational  bool `json:"is_aspirational"`
	IsKPI           bool `json:"is_kpi"`
}

// ClassifiedSentence pairs a sentence with its classification.
type ClassifiedSentence struct {
	Sentence
	Classification
}

// numberRe matches standalone numeric tokens, including thousands
// separators and decimals. A KPI cue without one of these is rejected.
var numberRe = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+(?:\.\d+)?\b|\b\d+(?:\.\d+)?\b`)

var wsRunRe = regexp.MustCompile(`\s+`)

// Normalize lower-cases and whitespace-collapses a sentence for matching.
// The original Sentence.Text is never touched.
func Normalize(s string) string {
	return wsRunRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// Classify applies the dictionary to one sentence. A sentence that matches
// no environmental term is neither aspirational nor KPI-bearing, whatever
// else it contains. KPI detection requires a numeric token next to a unit
// or label cue; a KPI keyword alone over-fires badly on filing prose.
// Aspirational keeps the registered policy: an aspirational cue, or a
// net-zero phrase on a sentence that is not already KPI-bearing.
func Classify(s Sentence, d *dict.Dictionary) Classification {
	norm := Normalize(s.Text)
	if !d.MatchEnv(norm) {
		return Classification{}
	}

	c := Classification{IsEnvironmental: true}
	if numberRe.MatchString(norm) && (d.MatchKPIUnit(norm) || d.MatchKPILabel(norm)) {
		c.IsKPI = true
	}
	if d.MatchAspirational(norm) || (d.MatchNetZero(norm) && !c.IsKPI) {
		c.IsAspirational = true
	}
	return c
}

// ClassifyAll classifies every sentence, preserving order.
func ClassifyAll(sentences []Sentence, d *dict.Dictionary) []ClassifiedSentence {
	out := make([]ClassifiedSentence, len(sentences))
	for i, s := range sentences {
		out[i] = ClassifiedSentence{Sentence: s, Classification: Classify(s, d)}
	}
	return out
}
