package logger

import (
	"testing"
	"time"

	"github.com/cenkalti/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	rec := &log.Record{
		Message:    "listening",
		LoggerName: "dht node",
		Level:      log.INFO,
		Time:       time.Date(2014, 2, 28, 18, 15, 57, 0, time.UTC),
		Filename:   "/src/dht/node.go",
		Line:       120,
	}
	assert.Equal(t, "2014-02-28 18:15:57 INFO     [dht node] node.go:120      listening", logFormatter{}.Format(rec))
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, log.WARNING, l)
	l, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, log.INFO, l)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
