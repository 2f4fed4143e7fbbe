package trajectory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abc-123_XYZ", "abc-123_XYZ"},
		{"", "anonymous"},
		{"has spaces & punct!", "hasspacespunct"},
		{"", "anonymous"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SanitizeToken(c.in))
	}

	long := ""
	for i := 0; i < 100; i++ {
		long += "a"
	}
	assert.Len(t, SanitizeToken(long), maxTokenLen)
}

func TestStore_Append_WritesEventFile(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	path, err := s.Append("tok1", "session_registered", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "session_registered", rec["event_type"])
}

func TestStore_Append_FilenamesSortInIssuanceOrder(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	var names []string
	for i := 0; i < 5; i++ {
		path, err := s.Append("tok1", "e", i)
		require.NoError(t, err)
		names = append(names, filepath.Base(path))
	}

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	assert.Equal(t, sorted, names, "event filenames must sort lexicographically in issuance order")
}

func TestStore_WriteQuery_WriteAnswer_ShareStem(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	stem, err := s.WriteQuery("tok1", map[string]string{"model": "x"})
	require.NoError(t, err)

	err = s.WriteAnswer("tok1", stem, map[string]string{"content": "hi"})
	require.NoError(t, err)

	sessDir, err := s.SessionDir("tok1")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(sessDir, queryDir, stem+".json"))
	assert.FileExists(t, filepath.Join(sessDir, answerDir, stem+".json"))
}

func TestStore_WriteQuery_CollisionSuffixes(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	stem1, err := s.WriteQuery("tok1", 1)
	require.NoError(t, err)
	stem2, err := s.WriteQuery("tok1", 2)
	require.NoError(t, err)

	assert.NotEqual(t, stem1, stem2, "two queries in the same second must not collide")
}

func TestStore_TrajectoryCompleteness(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	for i := 0; i < 3; i++ {
		stem, err := s.WriteQuery("tok1", i)
		require.NoError(t, err)
		require.NoError(t, s.WriteAnswer("tok1", stem, i))
	}

	sessDir, err := s.SessionDir("tok1")
	require.NoError(t, err)

	queries, err := os.ReadDir(filepath.Join(sessDir, queryDir))
	require.NoError(t, err)
	answers, err := os.ReadDir(filepath.Join(sessDir, answerDir))
	require.NoError(t, err)
	assert.Equal(t, len(queries), len(answers))
}

func TestStore_DifferentTokens_IsolatedDirectories(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	_, err := s.Append("tok-a", "e", nil)
	require.NoError(t, err)
	_, err = s.Append("tok-b", "e", nil)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
