package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Match_ByName(t *testing.T) {
	tbl, err := NewTable([]Route{
		{Name: "routeA", RequestModel: "gpt-x", UpstreamProtocol: ProtocolOpenAI},
	})
	require.NoError(t, err)

	r, err := tbl.Match("routeA")
	require.NoError(t, err)
	assert.Equal(t, "routeA", r.Name)
}

func TestTable_Match_ByRequestModel(t *testing.T) {
	tbl, err := NewTable([]Route{
		{Name: "routeA", RequestModel: "gpt-x"},
	})
	require.NoError(t, err)

	r, err := tbl.Match("gpt-x")
	require.NoError(t, err)
	assert.Equal(t, "routeA", r.Name)
}

func TestTable_Match_NamePrecedesRequestModel(t *testing.T) {
	tbl, err := NewTable([]Route{
		{Name: "b", RequestModel: "shared"},
		{Name: "shared", RequestModel: "other"},
	})
	require.NoError(t, err)

	r, err := tbl.Match("shared")
	require.NoError(t, err)
	assert.Equal(t, "shared", r.Name, "first route whose Name matches wins over a RequestModel match")
}

func TestTable_Match_Wildcard(t *testing.T) {
	t.Run("wildcard name", func(t *testing.T) {
		tbl, err := NewTable([]Route{
			{Name: "specific", RequestModel: "known"},
			{Name: "*", RequestModel: "", UpstreamModel: "fallback"},
		})
		require.NoError(t, err)

		r, err := tbl.Match("unknown-model")
		require.NoError(t, err)
		assert.Equal(t, "fallback", r.UpstreamModel)
	})

	t.Run("wildcard request model", func(t *testing.T) {
		tbl, err := NewTable([]Route{
			{Name: "catch-all", RequestModel: "*", UpstreamModel: "fallback"},
		})
		require.NoError(t, err)

		r, err := tbl.Match("anything")
		require.NoError(t, err)
		assert.Equal(t, "fallback", r.UpstreamModel)
	})
}

func TestTable_Match_NotFound(t *testing.T) {
	tbl, err := NewTable(nil)
	require.NoError(t, err)

	_, err = tbl.Match("unknown")
	require.Error(t, err)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestTable_Match_IsPure(t *testing.T) {
	tbl, err := NewTable([]Route{{Name: "a", RequestModel: "m"}})
	require.NoError(t, err)

	r1, err1 := tbl.Match("m")
	r2, err2 := tbl.Match("m")
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, r1, r2)
}

func TestNewTable_RejectsDuplicateNames(t *testing.T) {
	_, err := NewTable([]Route{
		{Name: "dup"},
		{Name: "dup"},
	})
	assert.Error(t, err)
}

func TestNewTable_RejectsMultipleWildcards(t *testing.T) {
	_, err := NewTable([]Route{
		{Name: "*"},
		{Name: "other", RequestModel: "*"},
	})
	assert.Error(t, err)
}

func TestTable_List_IsACopy(t *testing.T) {
	tbl, err := NewTable([]Route{{Name: "a"}})
	require.NoError(t, err)

	list := tbl.List()
	list[0].Name = "mutated"

	r, err := tbl.Match("a")
	require.NoError(t, err)
	assert.Equal(t, "a", r.Name)
}
