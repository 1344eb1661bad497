package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st := New(t.TempDir())

	in := payload{Name: "living", Value: 22.5}
	require.NoError(t, st.Save("state.json", in))

	var out payload
	ok, err := st.Load("state.json", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, in, out)
}

func TestLoadMissingFile(t *testing.T) {
	st := New(t.TempDir())

	var out payload
	ok, err := st.Load("nope.json", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644))

	var out payload
	_, err := st.Load("bad.json", &out)
	assert.Error(t, err)
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "deeper")
	st := New(dir)

	require.NoError(t, st.Save("state.json", payload{Name: "x"}))
	_, err := os.Stat(filepath.Join(dir, "state.json"))
	assert.NoError(t, err)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	require.NoError(t, st.Save("state.json", payload{Name: "x"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}
