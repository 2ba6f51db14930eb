package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/xref/internal/types"
)

func timeZero() time.Time { return time.Now() }

func TestSections(t *testing.T) {
	resp, err := newTestEngine().SearchVersion(literal("add"), fixtureVersion(1), time.Now())
	require.NoError(t, err)

	require.Len(t, resp.Sections, 3)
	assert.Equal(t, "Core code (3 lines)", resp.Sections[0].String())
	assert.Equal(t, 2, resp.Sections[0].Files)
	assert.Equal(t, "Test files (1 lines)", resp.Sections[1].String())
	assert.Equal(t, "Third-party code (1 lines)", resp.Sections[2].String())
	assert.Equal(t, "5 lines matched in 4 files", resp.Summary())
	assert.Equal(t, types.MatchSourceSymbol, resp.Source)
	assert.Equal(t, 1, resp.Symbols)
}

func TestSectionsEmpty(t *testing.T) {
	assert.Empty(t, Sections(nil))
}

func TestSuggestionsOnlyForEmptyLiteralQueries(t *testing.T) {
	e := newTestEngine()
	v := fixtureVersion(1)

	resp, err := e.SearchVersion(literal("Twcie"), v, time.Now())
	require.NoError(t, err)
	assert.True(t, resp.Empty())
	assert.Equal(t, "No results for current query.", resp.Summary())
	assert.Equal(t, []string{"Twice"}, resp.Suggestions)
	assert.NotNil(t, resp.Groups)

	resp, err = e.SearchVersion(types.QuerySpec{Pattern: "Twcie", Regex: true}, v, time.Now())
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions)

	resp, err = e.SearchVersion(literal("Twice"), v, time.Now())
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions)
}

func TestSuggestLimit(t *testing.T) {
	v := fixtureVersion(1)
	assert.Nil(t, Suggest(v, "Twcie", 0))
	assert.Nil(t, Suggest(v, "", 3))
	assert.Empty(t, Suggest(v, "qqqqqqqq", 3))
}

func TestLookupSymbol(t *testing.T) {
	v := fixtureVersion(1)

	byPretty := LookupSymbol(v, "Add", 0)
	require.Len(t, byPretty, 1)
	info := byPretty[0]
	assert.Equal(t, "go:Add", info.Raw)
	assert.Equal(t, 4, info.Files)
	assert.Equal(t, map[string]int{"definition": 2, "use": 3}, info.Kinds)
	require.Len(t, info.Locations, 5)
	assert.Equal(t, "src/calc.go", info.Locations[0].Path)
	assert.Equal(t, "func Add(a, b int) int { return a + b }", info.Locations[0].Text)

	byRaw := LookupSymbol(v, "go:Add", 2)
	require.Len(t, byRaw, 1)
	assert.Len(t, byRaw[0].Locations, 2)
	assert.Equal(t, 4, byRaw[0].Files)

	assert.Empty(t, LookupSymbol(v, "Nope", 0))
}
