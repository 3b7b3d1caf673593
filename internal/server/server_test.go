package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/tradeloop/internal/server/handler"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRoutingAndAuth(t *testing.T) {
	srv := NewServer(Config{AuthToken: "tok"}, Handlers{
		Health: handler.NewHealthHandler(nil, discard()),
		Status: handler.NewStatusHandler("server", time.Now(), nil, discard()),
	}, nil, nil, discard())

	get := func(path, token string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get("/api/health", ""))
	assert.Equal(t, http.StatusUnauthorized, get("/api/status", ""))
	assert.Equal(t, http.StatusOK, get("/api/status", "tok"))
	// Nil handlers leave their routes unregistered.
	assert.Equal(t, http.StatusNotFound, get("/api/profiles", "tok"))
}
