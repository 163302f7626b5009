package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSISimple(t *testing.T) {
	r := FeatureRecord{AShare: 0.5, QShare: 0.2}
	assert.InDelta(t, 0.3, r.SISimple(), 1e-12)

	assert.Zero(t, FeatureRecord{}.SISimple())
}

func TestFeatureRecordShareKeys(t *testing.T) {
	// The share fields keep their capitalized wire names; downstream
	// consumers key on them exactly.
	data, err := json.Marshal(FeatureRecord{AShare: 0.25, QShare: 0.125})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"A_share":0.25`)
	assert.Contains(t, string(data), `"Q_share":0.125`)
}

func TestSummaryColumnsShape(t *testing.T) {
	assert.Len(t, SummaryColumns, 14)
	assert.Equal(t, "cik", SummaryColumns[0])
	assert.Equal(t, "SI_simple", SummaryColumns[len(SummaryColumns)-1])
}
