package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
	gin.SetMode(gin.TestMode)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "text").With("component", "registry")

	log.Debug("hidden")
	log.Info("agent connected", "agent_id", "a1", "lab", "LAB1")
	log.WithGroup("req").Warn("slow", "ms", 120)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INF agent connected component=registry agent_id=a1 lab=LAB1")
	assert.Contains(t, out, "WRN slow component=registry req.ms=120")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "json")

	log.Debug("frame relayed", "delivered", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "frame relayed", line["msg"])
	assert.Equal(t, "DEBUG", line["level"])
	assert.Equal(t, float64(3), line["delivered"])
}

func TestGinMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "text")

	r := gin.New()
	r.Use(GinMiddleware(log))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/ok", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := buf.String()
	assert.Contains(t, out, "DBG http request component=http method=GET path=/ok status=200")
	assert.Contains(t, out, "WRN http request component=http method=GET path=/missing status=404")
}
