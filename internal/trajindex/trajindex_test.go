package trajindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_RecordAndListStems(t *testing.T) {
	idx, err := Open(t.TempDir())
	require.NoError(t, err)
	defer idx.Close()

	now := time.Now().UTC()
	idx.RecordQuery("tok-1", "20260101T000000Z", now)
	idx.RecordAnswer("tok-1", "20260101T000000Z", now.Add(time.Second))
	idx.Annotate("tok-1", "20260101T000000Z", "claude-3", 200)

	stems, err := idx.ListStems("tok-1")
	require.NoError(t, err)
	require.Len(t, stems, 1)
	assert.Equal(t, "20260101T000000Z", stems[0].Stem)
	assert.Equal(t, "claude-3", stems[0].RouteName)
	assert.Equal(t, 200, stems[0].Status)
}

func TestListStems_EmptyForUnknownToken(t *testing.T) {
	idx, err := Open(t.TempDir())
	require.NoError(t, err)
	defer idx.Close()

	stems, err := idx.ListStems("nobody")
	require.NoError(t, err)
	assert.Empty(t, stems)
}
