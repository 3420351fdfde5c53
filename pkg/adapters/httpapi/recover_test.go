package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/service"
)

func TestServer_PanicRecovery(t *testing.T) {
	s := NewServer(service.New(memory.NewRepository()))
	s.mux.HandleFunc("GET /early", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	s.mux.HandleFunc("GET /late", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"partial": true})
		panic("boom")
	})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/early", nil))
	assert.GreaterOrEqual(t, rec.Code, 500)
	assert.Contains(t, rec.Body.String(), `"kind"`)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/late", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{\"partial\":true}\n", rec.Body.String(), "nothing is appended after a started response")
}
