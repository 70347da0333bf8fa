// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/theuzao/grindsync/internal/auth"
)

func TestGenerateAndValidateToken(t *testing.T) {
	authn := NewJWTAuth("test-secret")

	token, err := authn.GenerateToken("user-1", "device-a", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := authn.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "user-1" || claims.DeviceID != "device-a" {
		t.Fatalf("claims = sub:%s did:%s", claims.Subject, claims.DeviceID)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTAuth("secret-a").GenerateToken("user-1", "device-a", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewJWTAuth("secret-b").ValidateToken(token); err == nil {
		t.Fatalf("token signed with a different secret must not validate")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	authn := NewJWTAuth("test-secret")
	token, err := authn.GenerateToken("user-1", "device-a", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := authn.ValidateToken(token); err == nil {
		t.Fatalf("expired token must not validate")
	}
}

func TestValidateTokenRequiresDeviceClaim(t *testing.T) {
	secret := []byte("test-secret")
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := raw.SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewJWTAuth("test-secret").ValidateToken(token); err == nil {
		t.Fatalf("token without did claim must not validate")
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	authn := NewJWTAuth("test-secret")
	token, err := authn.GenerateToken("user-1", "device-a", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var gotUser, gotDevice string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = auth.UserID(r.Context())
		gotDevice, _ = auth.DeviceID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/sync/quests", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authn.Middleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotUser != "user-1" || gotDevice != "device-a" {
		t.Fatalf("identity = %s/%s", gotUser, gotDevice)
	}
}

func TestMiddlewareRejectsMissingAndMalformedAuth(t *testing.T) {
	authn := NewJWTAuth("test-secret")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler reached without valid auth")
	})

	cases := map[string]string{
		"no header":     "",
		"not bearer":    "Basic dXNlcjpwYXNz",
		"garbage token": "Bearer not-a-jwt",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/sync/quests", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		authn.Middleware(next).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, rec.Code)
		}
	}
}
