package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"electa/internal/election/service"
	"electa/internal/election/store"
	"electa/internal/member"
	"electa/internal/platform/config"
	"electa/pkg/testutil"
)

func TestHealthHandler(t *testing.T) {
	t.Run("ok when every dependency answers", func(t *testing.T) {
		h := healthHandler([]func(context.Context) error{
			func(context.Context) error { return nil },
		})
		rec := testutil.DoRequest(h, testutil.NewJSONRequest(t, http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unavailable when a dependency fails", func(t *testing.T) {
		h := healthHandler([]func(context.Context) error{
			func(context.Context) error { return errors.New("connection refused") },
		})
		rec := testutil.DoRequest(h, testutil.NewJSONRequest(t, http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestOpenInfraFallsBackToMemory(t *testing.T) {
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	deps, err := openInfra(context.Background(), config.Config{}, log)
	require.NoError(t, err)
	defer deps.close()

	_, ok := deps.store.(*store.InMemoryStore)
	assert.True(t, ok)
	assert.Empty(t, deps.ping)
}

func TestRouterGuardsSurfaces(t *testing.T) {
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	svc, err := service.New(store.NewInMemory(), member.NewStaticDirectory())
	require.NoError(t, err)
	cfg := config.Config{AdminToken: "admin", JWTSigningKey: "key", JWTIssuer: "electa", JWTAudience: "electa-members"}
	router := newRouter(cfg, log, svc, nil)

	rec := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/admin/elections", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/elections", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := testutil.NewJSONRequest(t, http.MethodGet, "/admin/elections", nil)
	req.Header.Set("X-Admin-Token", "admin")
	rec = testutil.DoRequest(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
