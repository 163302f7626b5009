package text

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// Extractor names for HTML-to-text conversion.
const (
	ExtractorDOM   = "dom"
	ExtractorRegex = "regex"
)

// blockTags are rendered as line breaks so sentence boundaries survive
// extraction.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "hr": true,
	"li": true, "ul": true, "ol": true,
	"table": true, "tr": true, "td": true, "th": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// HTMLToText converts raw filing HTML to text with the default extractor.
// It is a pure function of its input.
func HTMLToText(raw string) (string, error) {
	return HTMLToTextWith(raw, ExtractorDOM)
}

// HTMLToTextWith converts HTML to text with an explicit extractor choice.
// Unknown extractor names fail with ErrExtraction.
func HTMLToTextWith(raw string, extractor string) (string, error) {
	switch extractor {
	case ExtractorDOM, "":
		return extractDOM(raw)
	case ExtractorRegex:
		return extractRegex(raw), nil
	default:
		return "", eris.Wrapf(ErrExtraction, "text: unknown extractor %q", extractor)
	}
}

// ExtractFiling runs the documented two-call fallback: the configured
// extractor first, then exactly one retry with the regex extractor. Both
// failing is fatal for the document.
func ExtractFiling(raw string, extractor string) (string, error) {
	out, err := HTMLToTextWith(raw, extractor)
	if err == nil {
		return out, nil
	}
	if extractor == ExtractorRegex {
		return "", err
	}
	out, retryErr := HTMLToTextWith(raw, ExtractorRegex)
	if retryErr != nil {
		return "", eris.Wrapf(ErrExtraction, "text: primary %v; fallback %v", err, retryErr)
	}
	return out, nil
}

func extractDOM(raw string) (string, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", eris.Wrapf(ErrExtraction, "text: parse html: %v", err)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "script" || n.Data == "style" {
				return
			}
			if blockTags[n.Data] {
				b.WriteByte('\n')
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(doc)
	return b.String(), nil
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blockTagRe    = regexp.MustCompile(`(?i)</?(p|div|br|hr|li|ul|ol|table|tr|td|th|h[1-6])\b[^>]*>`)
	anyTagRe      = regexp.MustCompile(`(?s)<[^>]*>`)
)

// extractRegex is the lenient fallback: strip tags, keeping block-tag
// positions as newlines. It never fails, which is the point of a fallback.
func extractRegex(raw string) string {
	out := scriptStyleRe.ReplaceAllString(raw, "")
	out = blockTagRe.ReplaceAllString(out, "\n")
	out = anyTagRe.ReplaceAllString(out, "")
	out = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(out)
	return out
}
