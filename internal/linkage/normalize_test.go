package linkage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme Industries, Inc.", "ACME INDUSTRIES"},
		{"acme industries", "ACME INDUSTRIES"},
		{"Beta Energy Corp", "BETA ENERGY"},
		{"Gamma & Sons LLC", "GAMMA AND SONS"},
		{"Delta-Chem Holdings", "DELTA CHEM"},
		{"Société Générale", "SOCIETE GENERALE"},
		{"  Spaced   Out  Co. ", "SPACED OUT"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeName(tc.in), tc.in)
	}
}

func TestNormalizeName_SingleSuffixStrip(t *testing.T) {
	// Only one trailing suffix is stripped; inner words stay.
	assert.Equal(t, "COMPANY STORE", NormalizeName("Company Store Inc."))
}
