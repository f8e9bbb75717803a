package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxbrian/filterdict/internal/config"
)

func TestConvertFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	list := "[Adblock Plus 2.0]\r\n! Title: Local\r\n||ads.example.com^$script,domain=a.com|~b.com\r\n@@||ok.example.com^\r\n"
	require.NoError(t, os.WriteFile(path, []byte(list), 0o644))

	cfg := config.Default()
	cfg.ConvertPath = path
	cfg.KeyStyle = "snake"
	cfg.Where = `kind == "Filter" && record.action == "block"`

	var out bytes.Buffer
	require.NoError(t, convertFile(&out, cfg))

	var maps []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &maps))
	require.Len(t, maps, 1)
	assert.Equal(t, map[string]any{
		"script": true,
		"domain": map[string]any{"a.com": true, "b.com": false},
	}, maps[0]["options"])
}

func TestConvertFileBodyMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("! Title: Local\n"), 0o644))

	cfg := config.Default()
	cfg.ConvertPath = path
	cfg.Mode = "body"
	cfg.Format = "yaml"

	var out bytes.Buffer
	require.NoError(t, convertFile(&out, cfg))
	assert.Equal(t, "- text: 'Title: Local'\n  type: Comment\n", out.String())
}

func TestConvertFileParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("%if adguard%\n"), 0o644))

	cfg := config.Default()
	cfg.ConvertPath = path
	assert.Error(t, convertFile(&bytes.Buffer{}, cfg))
}
