package tts_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/podcast-service/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "script.json")
	content := `{"title":"T","sections":[{"title":"A","segments":[{"speaker":"ALEX","text":"Hello."}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	script, err := tts.LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, "T", script.Title)
	assert.Equal(t, []string{"alex"}, script.SpeakerIDs())

	emptyPath := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(emptyPath, []byte(`{"title":"T","sections":[]}`), 0o600))

	_, err = tts.LoadScript(emptyPath)
	require.ErrorIs(t, err, tts.ErrEmptyScript)

	_, err = tts.LoadScript(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
