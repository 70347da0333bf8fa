// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newValidationHandler builds the router over a service with no database
// behind it. Only requests rejected before reaching storage can be exercised
// this way; the happy paths need a Postgres-backed integration environment.
func newValidationHandler(t *testing.T) (http.Handler, string) {
	t.Helper()
	svc := &Service{
		cfg:    &Config{Tables: []string{"quests"}, MaxPullLimit: DefaultPullLimit},
		tables: map[string]bool{"quests": true},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	handler := NewHandler(svc, svc.logger)

	authn := NewJWTAuth("test-secret")
	token, err := authn.GenerateToken("user-1", "device-a", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return handler.Routes(authn), token
}

func doRequest(router http.Handler, token, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestRoutesRequireAuth(t *testing.T) {
	router, _ := newValidationHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/sync/quests", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPullRejectsUnregisteredTable(t *testing.T) {
	router, token := newValidationHandler(t)

	rec := doRequest(router, token, http.MethodGet, "/sync/secrets", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != ReasonUnregisteredTable {
		t.Fatalf("error = %s", body.Error)
	}
}

func TestPullRejectsBadQueryParams(t *testing.T) {
	router, token := newValidationHandler(t)

	cases := map[string]string{
		"bad after":      "/sync/quests?after=yesterday",
		"bad limit":      "/sync/quests?limit=abc",
		"negative limit": "/sync/quests?limit=-5",
	}
	for name, target := range cases {
		rec := doRequest(router, token, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", name, rec.Code)
		}
		if body := decodeError(t, rec); body.Error != ReasonBadRequest {
			t.Fatalf("%s: error = %s", name, body.Error)
		}
	}
}

func TestUpsertRejectsMismatchedPayloadID(t *testing.T) {
	router, token := newValidationHandler(t)

	rec := doRequest(router, token, http.MethodPut, "/sync/quests/q1",
		`{"id":"q2","title":"wrong id"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != ReasonBadPayload {
		t.Fatalf("error = %s", body.Error)
	}
}

func TestUpsertRejectsNonObjectBody(t *testing.T) {
	router, token := newValidationHandler(t)

	rec := doRequest(router, token, http.MethodPut, "/sync/quests/q1", `"just a string"`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != ReasonBadPayload {
		t.Fatalf("error = %s", body.Error)
	}
}

func TestUpsertRejectsNullBody(t *testing.T) {
	router, token := newValidationHandler(t)

	// JSON null decodes into a nil map without a decode error; the handler
	// must still reject it rather than write into the nil map.
	rec := doRequest(router, token, http.MethodPut, "/sync/quests/q1", `null`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != ReasonBadPayload {
		t.Fatalf("error = %s", body.Error)
	}
}

func TestDeleteRejectsUnregisteredTable(t *testing.T) {
	router, token := newValidationHandler(t)

	rec := doRequest(router, token, http.MethodDelete, "/sync/secrets/q1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
