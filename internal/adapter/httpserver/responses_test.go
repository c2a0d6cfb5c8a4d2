package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verilab/verilab/internal/config"
	"github.com/verilab/verilab/internal/domain"
)

func TestErrorKindMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err    error
		kind   string
		status int
	}{
		{domain.ErrInvalidArgument, "invalid_argument", http.StatusBadRequest},
		{domain.ErrInvalidTransition, "invalid_transition", http.StatusBadRequest},
		{domain.ErrNotFound, "not_found", http.StatusNotFound},
		{domain.ErrConflict, "conflict", http.StatusConflict},
		{domain.ErrImmutable, "immutable", http.StatusConflict},
		{domain.ErrUnauthorized, "unauthorized", http.StatusUnauthorized},
		{domain.ErrForbidden, "forbidden", http.StatusForbidden},
		{domain.ErrUpstream, "upstream_failure", http.StatusInternalServerError},
		{errors.New("boom"), "internal", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		kind, status := errorKind(fmt.Errorf("op=test: %w", tc.err))
		assert.Equal(t, tc.kind, kind, tc.err.Error())
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestWriteErrorSuppressesInternalInProd(t *testing.T) {
	t.Parallel()
	srv := &Server{Cfg: config.Config{AppEnv: "prod"}}
	rec := httptest.NewRecorder()
	srv.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("secret db dsn leaked"), map[string]any{"x": 1})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "internal", env.Error)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), env.Message)
	assert.Nil(t, env.Detail)
}

func TestWriteErrorKeepsDomainMessage(t *testing.T) {
	t.Parallel()
	srv := &Server{Cfg: config.Config{AppEnv: "prod"}}
	rec := httptest.NewRecorder()
	srv.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil),
		fmt.Errorf("op=samples.get: %w", domain.ErrNotFound), nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "not_found", env.Error)
	assert.Contains(t, env.Message, "samples.get")
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
		{"abc", "", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		got, ok := bearerToken(r)
		assert.Equal(t, tc.ok, ok, tc.header)
		assert.Equal(t, tc.want, got, tc.header)
	}
}

func TestReadyzHandlerReportsDBFailure(t *testing.T) {
	t.Parallel()
	srv := &Server{DBCheck: func(context.Context) error { return errors.New("pool down") }}
	rec := httptest.NewRecorder()
	srv.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	srv = &Server{}
	rec = httptest.NewRecorder()
	srv.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
