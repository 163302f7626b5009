// Package dict loads the frozen disclosure dictionary: the versioned rule
// set that decides whether a sentence is environmental, aspirational, or
// KPI-bearing. The dictionary is loaded once per invocation, hashed over
// its raw bytes, and treated as immutable for the run's duration.
package dict

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed resources/dictionary_*.yaml
var resources embed.FS

// ErrDictionary marks a missing, malformed, or schema-invalid dictionary.
// Extraction cannot proceed without a trusted rule set, so callers treat it
// as fatal.
var ErrDictionary = eris.New("invalid dictionary")

// Dictionary is the immutable, versioned rule set. SHA256 is the digest of
// the raw resource bytes, not the parsed structure, so any whitespace or
// comment edit is detectable downstream.
type Dictionary struct {
	Version string
	SHA256  string

	env      *regexp.Regexp
	asp      *regexp.Regexp
	netZero  *regexp.Regexp
	kpiUnit  *regexp.Regexp
	kpiLabel *regexp.Regexp
}

type dictFile struct {
	Version     string `yaml:"version"`
	Environment struct {
		Terms []string `yaml:"terms"`
	} `yaml:"environment"`
	Aspirational struct {
		Terms        []string `yaml:"terms"`
		NetZeroTerms []string `yaml:"net_zero_terms"`
	} `yaml:"aspirational"`
	KPI struct {
		UnitTerms  []string `yaml:"unit_terms"`
		LabelTerms []string `yaml:"label_terms"`
	} `yaml:"kpi"`
}

// LoadVersion loads the embedded dictionary for the given version ("v1").
func LoadVersion(version string) (*Dictionary, error) {
	name := fmt.Sprintf("resources/dictionary_%s.yaml", version)
	raw, err := resources.ReadFile(name)
	if err != nil {
		return nil, eris.Wrapf(ErrDictionary, "dict: no embedded dictionary for version %q", version)
	}
	return parse(raw)
}

// Load reads a dictionary from an explicit path, for pre-registered rule
// sets kept outside the binary.
func Load(path string) (*Dictionary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(ErrDictionary, "dict: read %s: %v", path, err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Dictionary, error) {
	sum := sha256.Sum256(raw)

	var f dictFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrapf(ErrDictionary, "dict: parse yaml: %v", err)
	}

	if strings.TrimSpace(f.Version) == "" {
		return nil, eris.Wrap(ErrDictionary, "dict: version is empty")
	}
	if len(f.Environment.Terms) == 0 {
		return nil, eris.Wrap(ErrDictionary, "dict: environment.terms is empty")
	}
	if len(f.Aspirational.Terms) == 0 {
		return nil, eris.Wrap(ErrDictionary, "dict: aspirational.terms is empty")
	}
	if len(f.KPI.UnitTerms) == 0 && len(f.KPI.LabelTerms) == 0 {
		return nil, eris.Wrap(ErrDictionary, "dict: kpi terms are empty")
	}

	env, err := compileTerms(f.Environment.Terms)
	if err != nil {
		return nil, err
	}
	asp, err := compileTerms(f.Aspirational.Terms)
	if err != nil {
		return nil, err
	}
	netZero, err := compileTerms(f.Aspirational.NetZeroTerms)
	if err != nil {
		return nil, err
	}
	kpiUnit, err := compileTerms(f.KPI.UnitTerms)
	if err != nil {
		return nil, err
	}
	kpiLabel, err := compileTerms(f.KPI.LabelTerms)
	if err != nil {
		return nil, err
	}

	return &Dictionary{
		Version:  f.Version,
		SHA256:   hex.EncodeToString(sum[:]),
		env:      env,
		asp:      asp,
		netZero:  netZero,
		kpiUnit:  kpiUnit,
		kpiLabel: kpiLabel,
	}, nil
}

// MatchEnv reports whether any environmental term matches s.
func (d *Dictionary) MatchEnv(s string) bool { return d.env.MatchString(s) }

// MatchAspirational reports whether any aspirational cue matches s.
func (d *Dictionary) MatchAspirational(s string) bool { return d.asp.MatchString(s) }

// MatchNetZero reports whether any net-zero phrase matches s.
func (d *Dictionary) MatchNetZero(s string) bool {
	return d.netZero != nil && d.netZero.MatchString(s)
}

// MatchKPIUnit reports whether any KPI unit term matches s.
func (d *Dictionary) MatchKPIUnit(s string) bool { return d.kpiUnit.MatchString(s) }

// MatchKPILabel reports whether any KPI label term matches s.
func (d *Dictionary) MatchKPILabel(s string) bool { return d.kpiLabel.MatchString(s) }

// termToRegex converts one dictionary term into a regex fragment. Supported
// syntax: a trailing '*' wildcard meaning word-prefix match. Phrases match
// across collapsed whitespace. RE2 has no lookaround, so word boundaries are
// emitted only where the adjacent character class allows \b.
func termToRegex(term string) (string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", eris.Wrap(ErrDictionary, "dict: empty term")
	}
	if i := strings.Index(term, "*"); i >= 0 && i != len(term)-1 {
		return "", eris.Wrapf(ErrDictionary, "dict: only trailing '*' wildcards are supported: %q", term)
	}

	wildcard := strings.HasSuffix(term, "*")
	core := strings.TrimSuffix(term, "*")
	if core == "" {
		return "", eris.Wrapf(ErrDictionary, "dict: bare wildcard term")
	}

	parts := strings.Fields(core)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	frag := strings.Join(parts, `\s+`)

	if isWord(rune(core[0])) {
		frag = `\b` + frag
	}
	if wildcard {
		frag += `\w*`
	} else if isWord(rune(core[len(core)-1])) {
		frag += `\b`
	}
	return frag, nil
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func compileTerms(terms []string) (*regexp.Regexp, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	frags := make([]string, 0, len(terms))
	for _, t := range terms {
		f, err := termToRegex(t)
		if err != nil {
			return nil, err
		}
		frags = append(frags, f)
	}
	re, err := regexp.Compile(`(?i)` + strings.Join(frags, "|"))
	if err != nil {
		return nil, eris.Wrapf(ErrDictionary, "dict: compile terms: %v", err)
	}
	return re, nil
}
