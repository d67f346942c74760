package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
)

func TestParseZerologLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, parseZerologLevel("DEBUG"))
	require.Equal(t, zerolog.WarnLevel, parseZerologLevel("warning"))
	require.Equal(t, zerolog.InfoLevel, parseZerologLevel(""))
	require.Equal(t, zerolog.InfoLevel, parseZerologLevel("verbose"))
}

func TestLoadCharacters(t *testing.T) {
	items, err := loadCharacters("")
	require.NoError(t, err)
	require.Len(t, items, len(character.Seed()))

	path := filepath.Join(t.TempDir(), "characters.yaml")
	require.NoError(t, os.WriteFile(path, []byte("characters:\n  - id: bard\n    name: Bard\n"), 0o600))
	items, err = loadCharacters(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "bard", items[0].ID)

	_, err = loadCharacters(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := newServeCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--addr", ":9000", "--log-level", "debug"}))
	addr, err := cmd.Flags().GetString("addr")
	require.NoError(t, err)
	require.Equal(t, ":9000", addr)
}
