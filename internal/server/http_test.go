package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/m1k1o/go-mediaserver/internal/metrics"
)

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServerRoutes(t *testing.T) {
	s := New(&Config{Bind: "127.0.0.1:0", PProf: true}, metrics.New())
	s.Mount(func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("pong"))
		})
		r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
	})

	updated := false
	s.WithMetrics(func() { updated = true })

	rec := get(t, s.Handler(), "/ping")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pong", rec.Body.String())

	rec = get(t, s.Handler(), "/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s.Handler(), "/boom")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = get(t, s.Handler(), "/debug/pprof/")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, updated)
	require.Contains(t, rec.Body.String(), "mediaserver_requests_total 4")
	require.Contains(t, rec.Body.String(), "mediaserver_errors_total 2")
}

func TestServerWithoutMetrics(t *testing.T) {
	s := New(&Config{Bind: "127.0.0.1:0"}, nil)
	s.WithMetrics(nil)

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s.Handler(), "/debug/pprof/")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerStatic(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>index</html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte("console.log(1)"), 0644))

	s := New(&Config{Bind: "127.0.0.1:0", Static: root}, nil)
	s.Mount(func(r chi.Router) {
		r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("pong"))
		})
	})
	s.WithStatic()

	rec := get(t, s.Handler(), "/app.js")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "console.log(1)", rec.Body.String())

	rec = get(t, s.Handler(), "/some/client/route")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "index")

	rec = get(t, s.Handler(), "/api/ping")
	require.Equal(t, "pong", rec.Body.String())
}
