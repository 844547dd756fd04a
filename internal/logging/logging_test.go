package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriterJSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "json")

	log.Info().Msg("dropped")
	log.Warn().Str("order_id", "order_1").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "order_1", line["order_id"])
	assert.Equal(t, "kept", line["message"])
}

func TestSetupWriterUnknownLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	SetupWriter(&buf, "chatty", "console")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}
