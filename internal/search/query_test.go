package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/types"
)

func TestQueryEncodeRoundTrip(t *testing.T) {
	specs := []types.QuerySpec{
		{},
		{Pattern: "Add"},
		{Pattern: "a b&c=d", PathFilter: "src/**/*.go", CaseSensitive: true},
		{Pattern: `^foo\(.*\)$`, Regex: true, PathFilter: "re:^third_party/"},
		{Pattern: "ünïcödé %20", PathFilter: "dir with space/"},
	}
	for _, spec := range specs {
		encoded := spec.Encode()
		got, err := ParseQuery(encoded)
		require.NoError(t, err, encoded)
		assert.Equal(t, spec, got, encoded)
	}
}

func TestQueryEncodeFormat(t *testing.T) {
	spec := types.QuerySpec{Pattern: "foo bar", PathFilter: "src/", Regex: true}
	assert.Equal(t, "q=foo+bar&path=src%2F&case=false&regex=true", spec.Encode())
}

func TestParseQuery(t *testing.T) {
	spec, err := ParseQuery("?q=Add&regexp=true&case=1")
	require.NoError(t, err)
	assert.Equal(t, types.QuerySpec{Pattern: "Add", Regex: true, CaseSensitive: true}, spec)

	spec, err = ParseQuery("q=x&regex=false&regexp=true")
	require.NoError(t, err)
	assert.False(t, spec.Regex, "regex wins over its alias")

	spec, err = ParseQuery("q=x&unknown=1")
	require.NoError(t, err)
	assert.Equal(t, "x", spec.Pattern)

	_, err = ParseQuery("q=x&case=maybe")
	var qe *xreferrors.QueryError
	assert.ErrorAs(t, err, &qe)

	_, err = ParseQuery("q=%zz")
	assert.ErrorAs(t, err, &qe)
}
