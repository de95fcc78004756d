package middleware

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/GregMSThompson/moneyloop/internal/config"
	"github.com/GregMSThompson/moneyloop/internal/response"
	"github.com/GregMSThompson/moneyloop/pkg/helpers"
)

func newJWKSServer(t *testing.T, keys ...jose.JSONWebKey) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	body, err := json.Marshal(jose.JSONWebKeySet{Keys: keys})
	if err != nil {
		t.Fatal(err)
	}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func signWithKey(t *testing.T, method jwt.SigningMethod, kid string, key any) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, validClaims())
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func serveWith(t *testing.T, m *Middleware, token string) (int, string) {
	t.Helper()
	var seen string
	h := m.SupabaseAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/plaid/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(helpers.TestCtx()))
	return rec.Code, seen
}

func TestSupabaseAuthJWKS(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	otherEC, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	srv, hits := newJWKSServer(t,
		jose.JSONWebKey{Key: &ecKey.PublicKey, KeyID: "ec-1", Algorithm: "ES256", Use: "sig"},
		jose.JSONWebKey{Key: &rsaKey.PublicKey, KeyID: "rsa-1", Algorithm: "RS256", Use: "sig"},
	)
	m := NewMiddleware(config.SupabaseConfig{
		JWTSecret:   testSecret,
		JWKSURL:     srv.URL,
		JWTAudience: "authenticated",
	}, response.New(helpers.TestLogger()))

	accepted := map[string]string{
		"es256":          signWithKey(t, jwt.SigningMethodES256, "ec-1", ecKey),
		"rs256":          signWithKey(t, jwt.SigningMethodRS256, "rsa-1", rsaKey),
		"hs256 fallback": signToken(t, testSecret, validClaims()),
	}
	for name, tok := range accepted {
		t.Run(name, func(t *testing.T) {
			code, uid := serveWith(t, m, tok)
			if code != http.StatusNoContent || uid != testUID {
				t.Fatalf("status = %d uid = %q", code, uid)
			}
		})
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("jwks fetched %d times, want 1", got)
	}

	rejected := map[string]string{
		"wrong key for kid": signWithKey(t, jwt.SigningMethodES256, "ec-1", otherEC),
		"unknown kid":       signWithKey(t, jwt.SigningMethodES256, "ec-2", ecKey),
		"missing kid":       signWithKey(t, jwt.SigningMethodES256, "", ecKey),
		"alg mismatch":      signWithKey(t, jwt.SigningMethodRS256, "ec-1", rsaKey),
	}
	for name, tok := range rejected {
		t.Run(name, func(t *testing.T) {
			if code, uid := serveWith(t, m, tok); code != http.StatusUnauthorized || uid != "" {
				t.Fatalf("status = %d uid = %q", code, uid)
			}
		})
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("unknown kid refetched within the refresh floor: %d fetches", got)
	}
}

func TestJWKSKeysRefreshesForNewKid(t *testing.T) {
	first, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	rotated, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	keys := []jose.JSONWebKey{{Key: &first.PublicKey, KeyID: "k1", Algorithm: "ES256", Use: "sig"}}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: keys})
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	k := newJWKSKeys(srv.URL)
	k.clockNow = func() time.Time { return now }
	ctx := helpers.TestCtx()

	if _, err := k.key(ctx, "k1"); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	keys = append(keys, jose.JSONWebKey{Key: &rotated.PublicKey, KeyID: "k2", Algorithm: "ES256", Use: "sig"})
	mu.Unlock()
	if _, err := k.key(ctx, "k2"); err == nil {
		t.Fatal("expected miss inside the refresh floor")
	}

	now = now.Add(jwksMinRefresh)
	pub, err := k.key(ctx, "k2")
	if err != nil {
		t.Fatalf("expected rotated key after refresh: %v", err)
	}
	if got, ok := pub.(*ecdsa.PublicKey); !ok || !got.Equal(&rotated.PublicKey) {
		t.Fatalf("key = %T", pub)
	}
	if hits.Load() != 2 {
		t.Fatalf("fetches = %d", hits.Load())
	}
}

func TestSupabaseAuthRejectsAsymmetricWithoutJWKS(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if code, _ := serveWith(t, newTestMiddleware(), signWithKey(t, jwt.SigningMethodES256, "ec-1", ecKey)); code != http.StatusUnauthorized {
		t.Fatalf("status = %d", code)
	}
}
