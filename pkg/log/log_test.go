package log

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/yeisme/folderrelay/pkg/configs"
)

func TestBuildJSON(t *testing.T) {
	var buf bytes.Buffer

	cfg := configs.Default().Log
	cfg.Format = "json"

	l := build(cfg, false, &buf)
	l.Info().Str("batch_id", "01J").Msg("forwarded")

	assert.Contains(t, buf.String(), `"batch_id":"01J"`)
	assert.Contains(t, buf.String(), `"service":"folderrelay"`)
}

func TestBuildBadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer

	cfg := configs.Default().Log
	cfg.Format = "json"
	cfg.Level = "loud"

	_ = build(cfg, false, &buf)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestGinWriter(t *testing.T) {
	var buf bytes.Buffer

	l := zerolog.New(&buf)
	w := NewGinWriter(&l, zerolog.WarnLevel)

	line := []byte("[GIN-debug] route registered\n")

	n, err := w.Write(line)
	assert.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "route registered")
}
