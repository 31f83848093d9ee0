package prompt

import (
	"os"
	"path/filepath"
	"testing"

	goprompt "github.com/c-bata/go-prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/tickstore/config"
	"github.com/xtxerr/tickstore/internal/errors"
)

// scripted answers questions in order and records the prompts.
type scripted struct {
	answers []string
	asked   []string
}

func (s *scripted) ask(prefix string, _ goprompt.Completer) string {
	s.asked = append(s.asked, prefix)
	if len(s.answers) == 0 {
		return ""
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a
}

func TestParseYesNo(t *testing.T) {
	tests := []struct {
		in        string
		value, ok bool
	}{
		{"y", true, true},
		{" YES ", true, true},
		{"n", false, true},
		{"", false, true},
		{"No", false, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		v, ok := ParseYesNo(tt.in)
		assert.Equal(t, tt.value, v, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestCleanPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "", CleanPath("  "))
	assert.Equal(t, "/data/ask.csv", CleanPath(` "/data/ask.csv" `))
	assert.Equal(t, "data/ask.csv", CleanPath("data//ask.csv"))
	assert.Equal(t, filepath.Join(home, "ticks"), CleanPath("~/ticks"))
}

func TestSelectExistingDatabase(t *testing.T) {
	s := &scripted{answers: []string{"y"}}
	sel, err := NewWithAsk(s.ask).Select()

	require.NoError(t, err)
	assert.True(t, sel.ExistingDB)
	assert.Len(t, s.asked, 1)
}

func TestSelectFiles(t *testing.T) {
	dir := t.TempDir()
	ask := filepath.Join(dir, "EURUSD-ask.csv")
	require.NoError(t, os.WriteFile(ask, []byte("Gmt time,Open\n"), 0644))

	s := &scripted{answers: []string{
		"maybe", "n", // first answer is repeated
		filepath.Join(dir, "nope.csv"), ask, // missing file is asked again
		"", // no bid file
		dir,
	}}
	sel, err := NewWithAsk(s.ask).Select()
	require.NoError(t, err)

	assert.False(t, sel.ExistingDB)
	assert.Equal(t, ask, sel.AskFile)
	assert.Empty(t, sel.BidFile)
	assert.Equal(t, dir, sel.PriceDir)
	assert.Len(t, s.asked, 6)

	cfg := config.DefaultConfig()
	sel.Apply(cfg)
	assert.Equal(t, dir, cfg.Ingest.InputDir)
	require.Len(t, cfg.Ingest.Files, 1)
	assert.Equal(t, config.FileMapping{Path: ask, Table: "askPrices"}, cfg.Ingest.Files[0])
}

func TestSelectGivesUp(t *testing.T) {
	s := &scripted{answers: []string{"?", "?", "?"}}
	_, err := NewWithAsk(s.ask).Select()
	assert.True(t, errors.IsConfig(err))

	dir := t.TempDir()
	s = &scripted{answers: []string{"n", dir, dir, dir}}
	_, err = NewWithAsk(s.ask).Select()
	assert.True(t, errors.Is(err, errors.ErrMissingInput), "a directory is not a file")
}
