package variogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGammaAtZeroIsZero(t *testing.T) {
	for _, kind := range []Kind{Gaussian, Exponential, Spherical, Matern, Linear} {
		m := Model{Kind: kind, Range: 10, Sill: 2, Nugget: 0.5, Dim: 2}
		assert.Zero(t, m.Gamma(0), "kind %s", kind)
	}
}

func TestGammaApproachesSill(t *testing.T) {
	for _, kind := range []Kind{Gaussian, Exponential, Spherical, Matern, Linear} {
		m := Model{Kind: kind, Range: 10, Sill: 2, Nugget: 0.5, Dim: 2}
		assert.InDelta(t, 2.0, m.Gamma(1000), 0.05, "kind %s", kind)
	}
}

func TestGammaNuggetDiscontinuity(t *testing.T) {
	m := Model{Kind: Exponential, Range: 10, Sill: 2, Nugget: 0.5, Dim: 2}
	// Just above zero the nugget contributes fully.
	assert.Greater(t, m.Gamma(1e-9), 0.5*0.999)
}

func TestCovarianceComplementsGamma(t *testing.T) {
	m := Model{Kind: Spherical, Range: 10, Sill: 2, Nugget: 0.25, Dim: 2}
	assert.Equal(t, m.Sill, m.Covariance(0))
	for _, h := range []float64{0.5, 1, 5, 10, 20} {
		assert.InDelta(t, m.Sill, m.Gamma(h)+m.Covariance(h), 1e-12)
	}
}

func TestModelValidate(t *testing.T) {
	valid := Model{Kind: Exponential, Range: 10, Sill: 2, Nugget: 0.5, Dim: 2}
	require.NoError(t, valid.Validate())

	cases := map[string]Model{
		"zero range":       {Kind: Exponential, Range: 0, Sill: 2, Dim: 2},
		"negative nugget":  {Kind: Exponential, Range: 10, Sill: 2, Nugget: -1, Dim: 2},
		"sill below nugget": {Kind: Exponential, Range: 10, Sill: 0.1, Nugget: 0.5, Dim: 2},
		"bad dimension":     {Kind: Exponential, Range: 10, Sill: 2, Dim: 4},
	}
	for name, m := range cases {
		assert.Error(t, m.Validate(), name)
	}
}

func TestWithNugget(t *testing.T) {
	m := Model{Kind: Exponential, Range: 10, Sill: 2, Nugget: 0.01, Dim: 2}

	raised := m.WithNugget(0.1)
	assert.Equal(t, 0.1, raised.Nugget)
	assert.Equal(t, 2.0, raised.Sill)
	assert.Equal(t, 0.01, m.Nugget, "original is untouched")

	// Raising above the sill lifts the sill to keep the model valid.
	high := m.WithNugget(5)
	assert.Equal(t, 5.0, high.Nugget)
	assert.Equal(t, 5.0, high.Sill)
	assert.NoError(t, high.Validate())

	// Already above the floor: unchanged.
	same := raised.WithNugget(0.05)
	assert.Equal(t, raised, same)
}

func TestParseKindRoundTrip(t *testing.T) {
	for _, kind := range []Kind{Gaussian, Exponential, Spherical, Matern, Linear} {
		parsed, err := ParseKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}
	_, err := ParseKind("cubic")
	assert.Error(t, err)
}
