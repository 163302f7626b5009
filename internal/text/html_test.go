package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHTML = `<html><head><style>p{color:red}</style></head><body>
<h1>Climate Report</h1>
<p>We reduced emissions by 12% in 2023.</p>
<script>var x = "noise";</script>
<table><tr><td>Scope 1</td><td>40,000 tCO2e</td></tr></table>
</body></html>`

func TestHTMLToText_DOM(t *testing.T) {
	out, err := HTMLToText(sampleHTML)
	require.NoError(t, err)

	assert.Contains(t, out, "Climate Report")
	assert.Contains(t, out, "We reduced emissions by 12% in 2023.")
	assert.Contains(t, out, "40,000 tCO2e")
	assert.NotContains(t, out, "noise")
	assert.NotContains(t, out, "color:red")
	assert.NotContains(t, out, "<p>")
}

func TestHTMLToTextWith_Regex(t *testing.T) {
	out, err := HTMLToTextWith(sampleHTML, ExtractorRegex)
	require.NoError(t, err)

	assert.Contains(t, out, "We reduced emissions by 12% in 2023.")
	assert.NotContains(t, out, "noise")
	assert.NotContains(t, out, "<td>")
}

func TestHTMLToTextWith_UnknownExtractor(t *testing.T) {
	_, err := HTMLToTextWith(sampleHTML, "bs4")
	require.ErrorIs(t, err, ErrExtraction)
}

func TestExtractFiling_FallsBackOnce(t *testing.T) {
	// An unknown primary extractor fails; the documented fallback path must
	// still produce text rather than failing the document outright.
	out, err := ExtractFiling(sampleHTML, "bs4")
	require.NoError(t, err)
	assert.Contains(t, out, "We reduced emissions by 12% in 2023.")
}

func TestHTMLToText_Deterministic(t *testing.T) {
	a, err := HTMLToText(sampleHTML)
	require.NoError(t, err)
	b, err := HTMLToText(sampleHTML)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHTMLToText_Entities(t *testing.T) {
	out, err := HTMLToTextWith(`<p>Pulp &amp; Paper emissions</p>`, ExtractorRegex)
	require.NoError(t, err)
	assert.Contains(t, out, "Pulp & Paper")
}
