package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorCreatesDirectoryTree(t *testing.T) {
	p, cfg, _ := testPipeline(t)

	res := runStage(t, p, p.DoctorStage())
	assert.Equal(t, "doctor", res.Stage)

	for _, dir := range []string{
		filepath.Join(cfg.Paths.RawDir(), "sec"),
		filepath.Join(cfg.Paths.RawDir(), "epa"),
		cfg.Paths.InterimDir(),
		cfg.Paths.ProcessedDir(),
		cfg.Paths.ManifestsDir(),
		cfg.Paths.QCDir(),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}

	var report doctorReport
	require.NoError(t, readJSON(p.qcPath("doctor"), &report))
	assert.NotEmpty(t, report.DirsCreated)
	assert.NotEmpty(t, report.DictionaryHash)
}

func TestDoctorRemovesZeroByteRawFiles(t *testing.T) {
	p, cfg, _ := testPipeline(t)

	secDir := filepath.Join(cfg.Paths.RawDir(), "sec")
	require.NoError(t, os.MkdirAll(secDir, 0o755))
	empty := filepath.Join(secDir, "truncated.html")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	kept := filepath.Join(secDir, "good.html")
	require.NoError(t, os.WriteFile(kept, []byte("<html></html>"), 0o644))

	runStage(t, p, p.DoctorStage())

	_, err := os.Stat(empty)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(kept)
	assert.NoError(t, err)

	var report doctorReport
	require.NoError(t, readJSON(p.qcPath("doctor"), &report))
	assert.Equal(t, []string{empty}, report.ZeroByteRemoved)
}

func TestDoctorWarnsOnExcessiveRPS(t *testing.T) {
	p, cfg, _ := testPipeline(t)
	cfg.SEC.RequestsPerSecond = 25

	runStage(t, p, p.DoctorStage())

	var report doctorReport
	require.NoError(t, readJSON(p.qcPath("doctor"), &report))
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "fair-access")
}
