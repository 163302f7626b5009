package model

// FeatureRecord holds the per-document disclosure metrics produced by the
// feature-extraction stage. One record per input filing per run; never
// mutated after creation. Re-running extraction on identical input bytes
// with an identical dictionary must reproduce every field byte-identically.
type FeatureRecord struct {
	CIK                   string  `json:"cik,omitempty"`
	FilingYear            int     `json:"filing_year,omitempty"`
	InputPath             string  `json:"input_path,omitempty"`
	InputSHA256           string  `json:"input_sha256"`
	DictionarySHA256      string  `json:"dictionary_sha256"`
	DictionaryVersion     string  `json:"dictionary_version"`
	SentencesTotal        int     `json:"sentences_total"`
	SentencesEnv          int     `json:"sentences_env"`
	SentencesAspirational int     `json:"sentences_aspirational"`
	SentencesKPI          int     `json:"sentences_kpi"`
	EnvWordCount          int     `json:"env_word_count"`
	AShare                float64 `json:"A_share"`
	QShare                float64 `json:"Q_share"`
}

// SISimple returns the provisional semantic-inflation proxy for this record.
// It is not normalized cross-sectionally; the analysis stage documents it as
// a proxy, not the final metric.
func (r FeatureRecord) SISimple() float64 {
	return r.AShare - r.QShare
}

// SummaryColumns is the fixed column order of the summary table written by
// the analysis stage: every FeatureRecord key plus the derived SI_simple.
var SummaryColumns = []string{
	"cik",
	"filing_year",
	"input_path",
	"input_sha256",
	"dictionary_sha256",
	"dictionary_version",
	"sentences_total",
	"sentences_env",
	"sentences_aspirational",
	"sentences_kpi",
	"env_word_count",
	"A_share",
	"Q_share",
	"SI_simple",
}
