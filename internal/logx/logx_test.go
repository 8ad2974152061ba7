package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug", zerolog.InfoLevel))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" Warning ", zerolog.InfoLevel))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense", zerolog.InfoLevel))
}

func TestJSONRecordIsOneLine(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Out: &buf})
	log.Info().Str("slot", "WOD monday 07:00").Msg("cycle armed")
	log.Debug().Msg("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "cycle armed", rec["message"])
	assert.Equal(t, "WOD monday 07:00", rec["slot"])
	assert.Contains(t, rec, "time")
}

func TestConsoleRecordIsOneLine(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Out: &buf})
	log.Info().Int("early", 50).Msg("still too early")
	out := strings.TrimRight(buf.String(), "\n")
	assert.NotContains(t, out, "\n")
	assert.Contains(t, out, "still too early")
	assert.Contains(t, out, "early=50")
}
