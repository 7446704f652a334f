package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testConfig = Config{Secret: "unit-test-secret", Issuer: "hub.identity"}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testConfig.Secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestParseValidToken(t *testing.T) {
	signed := signToken(t, jwt.MapClaims{
		"sub":  "user-1",
		"role": "athlete",
		"iss":  testConfig.Issuer,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	claims, err := Parse(signed, testConfig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Role != RoleAthlete {
		t.Fatalf("unexpected role %q", claims.Role)
	}
}

func TestParseRejectsUnknownRole(t *testing.T) {
	signed := signToken(t, jwt.MapClaims{
		"sub":  "user-1",
		"role": "admin",
		"iss":  testConfig.Issuer,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	if _, err := Parse(signed, testConfig); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	signed := signToken(t, jwt.MapClaims{
		"sub":  "user-1",
		"role": "athlete",
		"iss":  testConfig.Issuer,
		"exp":  time.Now().Add(-time.Minute).Unix(),
	})

	if _, err := Parse(signed, testConfig); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken got %v", err)
	}
}

func TestParseRejectsMissingSubject(t *testing.T) {
	signed := signToken(t, jwt.MapClaims{
		"role": "doctor",
		"iss":  testConfig.Issuer,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	if _, err := Parse(signed, testConfig); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken got %v", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	signed := signToken(t, jwt.MapClaims{
		"sub":  "user-1",
		"role": "athlete",
		"iss":  "somewhere-else",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	if _, err := Parse(signed, testConfig); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken got %v", err)
	}
}

func TestHasRole(t *testing.T) {
	claims := &Claims{Subject: "user-1", Role: RoleDoctor}
	if !claims.HasRole(RoleDoctor) {
		t.Fatal("doctor should match doctor")
	}
	if claims.HasRole(RoleAthlete) {
		t.Fatal("doctor should not match athlete")
	}
	var nilClaims *Claims
	if nilClaims.HasRole(RoleDoctor) {
		t.Fatal("nil claims should match nothing")
	}
}

func TestMiddlewareAttachesClaims(t *testing.T) {
	signed := signToken(t, jwt.MapClaims{
		"sub":  "user-1",
		"role": "athlete",
		"iss":  testConfig.Issuer,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	var got *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	NewMiddleware(testConfig, nil).Wrap(next).ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("expected claims on context")
	}
	if got.Subject != "user-1" {
		t.Fatalf("unexpected subject %q", got.Subject)
	}
}

func TestMiddlewarePassesThroughWithoutClaims(t *testing.T) {
	// Bad or absent tokens reach the handler with no identity attached; the
	// route decides whether that is a 401 or a public request.
	cases := []string{"", "Bearer garbage", "Basic abc"}

	for _, header := range cases {
		reached := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			if _, ok := FromContext(r.Context()); ok {
				t.Fatalf("header %q: expected no claims", header)
			}
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		NewMiddleware(testConfig, nil).Wrap(next).ServeHTTP(httptest.NewRecorder(), req)

		if !reached {
			t.Fatalf("header %q: handler not reached", header)
		}
	}
}

func TestMiddlewareSkipper(t *testing.T) {
	skip := func(r *http.Request) bool { return r.URL.Path == "/healthz" }

	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	NewMiddleware(testConfig, skip).Wrap(next).ServeHTTP(httptest.NewRecorder(), req)

	if !reached {
		t.Fatal("skipped route should reach the handler")
	}
}
