package configcat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSemverStripsBuildMetadata(t *testing.T) {
	v, err := parseSemver("1.2.3+build.456")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v.String())
}

func TestParseSemverTrimsWhitespace(t *testing.T) {
	v, err := parseSemver("  1.2.3  ")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v.String())
}

func TestParseSemverInvalid(t *testing.T) {
	_, err := parseSemver("not-a-version")
	assert.Error(t, err)
}

func TestParseSemverOrdering(t *testing.T) {
	older, err := parseSemver("1.0.0")
	require.NoError(t, err)
	newer, err := parseSemver("1.0.1")
	require.NoError(t, err)
	assert.Equal(t, -1, older.Compare(newer))
}
