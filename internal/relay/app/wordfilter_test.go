package app_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/chat-relay/internal/relay/app"
)

func TestContentFilter_Scan(t *testing.T) {
	filter := app.NewContentFilter()
	filter.SetWords([]string{"darn", "heck"})

	tests := []struct {
		name      string
		in        string
		want      string
		wantWords []string
	}{
		{"clean text unchanged", "hello world", "hello world", nil},
		{"single word masked", "well darn it", "well ---- it", []string{"darn"}},
		{"mask preserves length", "darn", "----", []string{"darn"}},
		{"case insensitive", "DARN Darn dArN", "---- ---- ----", []string{"darn"}},
		{"multiple words", "darn this heck", "---- this ----", []string{"darn", "heck"}},
		{"whole word only", "darning a sock", "darning a sock", nil},
		{"word at boundaries", "darn!", "----!", []string{"darn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, words := filter.Scan(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantWords, words)
		})
	}
}

func TestContentFilter_MetacharactersAreLiteral(t *testing.T) {
	filter := app.NewContentFilter()
	filter.SetWords([]string{"a.b"})

	masked, words := filter.Scan("say a.b now")
	assert.Equal(t, "say --- now", masked)
	assert.Equal(t, []string{"a.b"}, words)

	// The dot must not match any character.
	_, words = filter.Scan("say axb now")
	assert.Empty(t, words)
}

func TestContentFilter_Matches(t *testing.T) {
	filter := app.NewContentFilter()
	filter.SetWords([]string{"darn"})

	assert.True(t, filter.Matches("Darn_user"))
	assert.True(t, filter.Matches("the darn name"))
	assert.False(t, filter.Matches("clean name"))
	assert.False(t, filter.Matches("darnit"))
}

func TestContentFilter_LoadFile(t *testing.T) {
	t.Run("parses words, skips comments and blanks", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "words.txt")
		content := "# curated list\ndarn\n\n  heck  \n# trailing comment\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		filter := app.NewContentFilter()
		require.NoError(t, filter.LoadFile(path))

		_, words := filter.Scan("darn heck")
		assert.Len(t, words, 2)
	})

	t.Run("missing file yields empty filter", func(t *testing.T) {
		filter := app.NewContentFilter()
		require.NoError(t, filter.LoadFile(filepath.Join(t.TempDir(), "absent.txt")))

		masked, words := filter.Scan("anything at all")
		assert.Equal(t, "anything at all", masked)
		assert.Empty(t, words)
	})
}
