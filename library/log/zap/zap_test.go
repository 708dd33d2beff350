package zap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yola1107/puppeteer/library/log/zap/conf"
	"github.com/yola1107/puppeteer/log"
)

func TestLoggerLevels(t *testing.T) {
	l := NewLogger(conf.DefaultConfig(conf.WithLevel("warn")))
	defer l.Close()

	assert.Equal(t, "warn", l.GetLevel())
	l.SetLevel("debug")
	assert.Equal(t, "debug", l.GetLevel())
	l.SetLevel("nonsense")
	assert.Equal(t, "debug", l.GetLevel())

	assert.NoError(t, l.Log(log.LevelInfo, log.DefaultMessageKey, "hello", "viewer", "twitch:42"))
	assert.NoError(t, l.Log(log.LevelInfo, "unpaired"))
}

func TestFilterSensitive(t *testing.T) {
	l := NewLogger(conf.DefaultConfig(conf.WithSensitive([]string{"Token"})))
	defer l.Close()

	fields := l.filterSensitive([]zap.Field{
		zap.String("token", "a.b.c"),
		zap.String("endpoint", "wss://relay/connect"),
	})
	assert.Equal(t, sensitiveMask, fields[0].String)
	assert.Equal(t, "wss://relay/connect", fields[1].String)
}

func TestProductionWritesFile(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(conf.DefaultConfig(
		conf.WithProduction(),
		conf.WithDirectory(dir),
		conf.WithAppName("relay"),
		conf.WithErrorFile(true),
	))

	require.NoError(t, l.Log(log.LevelError, log.DefaultMessageKey, "relay closed abnormally"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, "relay.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "relay closed abnormally")

	_, err = os.Stat(filepath.Join(dir, "relay_error.log"))
	assert.NoError(t, err)
}
