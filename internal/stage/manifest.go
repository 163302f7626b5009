// Package stage sequences the pipeline's named stages with manifest-driven
// skip logic: each stage declares its input and output paths, and a stage is
// re-executed only when a declared file's content hash changed, an output is
// missing, the prior attempt failed, or the operator forces a rerun.
package stage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Status is the persisted outcome of a stage attempt. Skips are a run
// outcome, not a persisted status: a skipped stage keeps its prior
// completed manifest untouched.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// fingerprintMissing is recorded for a declared path that does not exist.
// Using a fixed marker keeps fingerprint maps comparable across runs.
const fingerprintMissing = "missing"

// Manifest records one stage attempt: what it read, what it wrote, and
// whether it completed. One JSON file per stage under a deterministic path.
type Manifest struct {
	StageName          string            `json:"stage_name"`
	RunID              string            `json:"run_id,omitempty"`
	InputFingerprints  map[string]string `json:"input_fingerprints"`
	OutputFingerprints map[string]string `json:"output_fingerprints,omitempty"`
	Status             Status            `json:"status"`
	Timestamp          time.Time         `json:"timestamp"`
	Elapsed            string            `json:"elapsed,omitempty"`
	Error              string            `json:"error,omitempty"`
}

// ManifestStore persists stage manifests as JSON files in a directory.
type ManifestStore struct {
	dir string
}

// NewManifestStore creates a store rooted at dir.
func NewManifestStore(dir string) *ManifestStore {
	return &ManifestStore{dir: dir}
}

// Path returns the deterministic manifest path for a stage.
func (s *ManifestStore) Path(stage string) string {
	return filepath.Join(s.dir, "stage_"+stage+".json")
}

// Load reads the most recent manifest for a stage. A missing or unreadable
// manifest returns (nil, nil): both mean the stage must run.
func (s *ManifestStore) Load(stage string) (*Manifest, error) {
	raw, err := os.ReadFile(s.Path(stage))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "stage: read manifest for %s", stage)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		// A corrupt manifest is treated as absent; the stage reruns.
		return nil, nil
	}
	return &m, nil
}

// Write persists a manifest, replacing any prior one for the same stage.
// The write goes through a temp file and rename so a killed process never
// leaves a truncated manifest behind.
func (s *ManifestStore) Write(m *Manifest) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "stage: create manifest dir %s", s.dir)
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "stage: marshal manifest for %s", m.StageName)
	}
	tmp := s.Path(m.StageName) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return eris.Wrapf(err, "stage: write manifest for %s", m.StageName)
	}
	if err := os.Rename(tmp, s.Path(m.StageName)); err != nil {
		return eris.Wrapf(err, "stage: rename manifest for %s", m.StageName)
	}
	return nil
}

// All returns every persisted manifest, sorted by stage name.
func (s *ManifestStore) All() ([]Manifest, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "stage: read manifest dir %s", s.dir)
	}
	var out []Manifest
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "stage_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		stage := strings.TrimSuffix(strings.TrimPrefix(name, "stage_"), ".json")
		m, err := s.Load(stage)
		if err != nil {
			return nil, err
		}
		if m != nil {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageName < out[j].StageName })
	return out, nil
}

// ValueSHA256 returns the lowercase hex digest of a literal string. Used to
// fingerprint non-file inputs such as a configured source URL.
func ValueSHA256(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// FileSHA256 returns the lowercase hex digest of a file's content.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "stage: open %s", path)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", eris.Wrapf(err, "stage: hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fingerprints hashes each declared path's current content. Paths that do
// not exist are recorded with a fixed marker so the maps stay comparable.
func Fingerprints(paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				out[p] = fingerprintMissing
				continue
			}
			return nil, eris.Wrapf(err, "stage: stat %s", p)
		}
		sum, err := FileSHA256(p)
		if err != nil {
			return nil, err
		}
		out[p] = sum
	}
	return out, nil
}

func fingerprintsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// outputsIntact reports whether every declared output exists and still
// matches its recorded fingerprint.
func outputsIntact(paths []string, recorded map[string]string) (bool, error) {
	for _, p := range paths {
		want, ok := recorded[p]
		if !ok || want == fingerprintMissing {
			return false, nil
		}
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, eris.Wrapf(err, "stage: stat output %s", p)
		}
		got, err := FileSHA256(p)
		if err != nil {
			return false, err
		}
		if got != want {
			return false, nil
		}
	}
	return true, nil
}
