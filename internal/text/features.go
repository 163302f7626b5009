package text

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/dict"
	"github.com/sells-group/disclosure-cli/internal/model"
)

// Options configures feature extraction for one document.
type Options struct {
	// Extractor is the primary HTML extractor ("dom" or "regex").
	Extractor string
	// MinSentenceChars drops sentences shorter than this before counting.
	MinSentenceChars int
}

// Aggregate reduces classified sentences into one FeatureRecord. The input
// hash is computed from the raw input bytes, prior to any extraction, so the
// same original file re-verifies identically even if extraction heuristics
// change. When no environmental sentences exist both shares are exactly 0.0.
func Aggregate(sentences []ClassifiedSentence, d *dict.Dictionary, inputBytes []byte) (model.FeatureRecord, error) {
	var env, asp, kpi, envWords int
	for _, s := range sentences {
		if (s.IsAspirational || s.IsKPI) && !s.IsEnvironmental {
			return model.FeatureRecord{}, eris.Wrapf(ErrInvariant,
				"text: sentence %d aspirational/kpi without environmental", s.Ordinal)
		}
		if s.IsEnvironmental {
			env++
			envWords += len(strings.Fields(s.Text))
		}
		if s.IsAspirational {
			asp++
		}
		if s.IsKPI {
			kpi++
		}
	}
	if asp > env || kpi > env || env > len(sentences) {
		return model.FeatureRecord{}, eris.Wrapf(ErrInvariant,
			"text: counts out of order: total=%d env=%d asp=%d kpi=%d", len(sentences), env, asp, kpi)
	}

	var aShare, qShare float64
	if env > 0 {
		aShare = float64(asp) / float64(env)
		qShare = float64(kpi) / float64(env)
	}

	inputSum := sha256.Sum256(inputBytes)
	return model.FeatureRecord{
		InputSHA256:           hex.EncodeToString(inputSum[:]),
		DictionarySHA256:      d.SHA256,
		DictionaryVersion:     d.Version,
		SentencesTotal:        len(sentences),
		SentencesEnv:          env,
		SentencesAspirational: asp,
		SentencesKPI:          kpi,
		EnvWordCount:          envWords,
		AShare:                aShare,
		QShare:                qShare,
	}, nil
}

// FeaturesFromText splits, classifies, and aggregates already-extracted
// text. inputBytes must be the raw bytes of the source document.
func FeaturesFromText(txt string, d *dict.Dictionary, opts Options, inputBytes []byte) (model.FeatureRecord, error) {
	sentences := Split(txt)
	if opts.MinSentenceChars > 0 {
		kept := sentences[:0]
		for _, s := range sentences {
			if len(s.Text) >= opts.MinSentenceChars {
				kept = append(kept, s)
			}
		}
		sentences = kept
	}
	return Aggregate(ClassifyAll(sentences, d), d, inputBytes)
}

// FeaturesFromFile reads one filing and produces its FeatureRecord. HTML
// files go through extraction with the documented one-retry fallback; other
// files are treated as plain text.
func FeaturesFromFile(path string, d *dict.Dictionary, opts Options) (model.FeatureRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.FeatureRecord{}, eris.Wrapf(err, "text: read %s", path)
	}

	content := string(raw)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		content, err = ExtractFiling(content, opts.Extractor)
		if err != nil {
			return model.FeatureRecord{}, err
		}
	}

	rec, err := FeaturesFromText(content, d, opts, raw)
	if err != nil {
		return model.FeatureRecord{}, err
	}
	rec.InputPath = path
	return rec, nil
}
