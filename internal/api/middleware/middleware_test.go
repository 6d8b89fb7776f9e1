package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		want   string
	}{
		{"ошибка сервера", "/x", http.StatusInternalServerError, "level=ERROR"},
		{"не найдено", "/x", http.StatusNotFound, "level=WARN"},
		{"успех", "/x", http.StatusOK, "level=INFO"},
		{"проба", "/health/live", http.StatusOK, "level=DEBUG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("лог %q не содержит %q", out, tt.want)
			}
			if !strings.Contains(out, "bytes=4") || !strings.Contains(out, "component=http") {
				t.Errorf("лог %q без размера ответа или компонента", out)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/":             "/",
		"/health/ready": "/health/ready",
		"/metrics":      "/metrics",
		"/wp-login.php": "other",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, ожидалось %q", in, got, want)
		}
	}
}

func TestMetricsMiddleware_PassesThrough(t *testing.T) {
	h := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("Code = %d, ожидался %d", rec.Code, http.StatusTeapot)
	}
}
