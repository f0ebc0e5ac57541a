package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndFormat(t *testing.T) {
	l := New(Config{Level: "debug", Format: "json"})
	require.Equal(t, logrus.DebugLevel, l.GetLevel())
	_, ok := l.Formatter.(*logrus.JSONFormatter)
	require.True(t, ok)

	l = New(Config{Level: "nonsense", Format: "text"})
	require.Equal(t, logrus.InfoLevel, l.GetLevel())
	_, ok = l.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
}

func TestComponent_AddsField(t *testing.T) {
	l := New(Config{Level: "info", Format: "json"})
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Component("dispatcher").WithField("job_id", "j1").Info("job created")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "dispatcher", line["component"])
	require.Equal(t, "j1", line["job_id"])
	require.Equal(t, "job created", line["msg"])
}

func TestNew_FileOutput(t *testing.T) {
	p := filepath.Join(t.TempDir(), "courier.log")
	l := New(Config{Level: "info", Format: "json", File: p})
	l.Info("hello")

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Contains(t, string(b), "hello")
}

func TestNewDiscard(t *testing.T) {
	l := NewDiscard()
	l.Component("x").Error("dropped")
}
