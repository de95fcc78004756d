package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/goccy/go-json"
)

const (
	jwksTTL = 10 * time.Minute
	// An unknown kid forces a refetch at most this often.
	jwksMinRefresh = 30 * time.Second
)

// jwksKeys serves the public signing keys published at a Supabase JWKS
// endpoint, refetching when they age out or a token names an unknown kid.
type jwksKeys struct {
	url      string
	client   *http.Client
	clockNow func() time.Time

	mu        sync.Mutex
	set       jose.JSONWebKeySet
	fetchedAt time.Time
}

func newJWKSKeys(url string) *jwksKeys {
	return &jwksKeys{
		url:      url,
		client:   &http.Client{Timeout: 5 * time.Second},
		clockNow: time.Now,
	}
}

// key returns the public key for kid.
func (k *jwksKeys) key(ctx context.Context, kid string) (any, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.clockNow()
	age := now.Sub(k.fetchedAt)
	if pub, ok := k.lookup(kid); ok && age < jwksTTL {
		return pub, nil
	}
	if k.fetchedAt.IsZero() || age >= jwksMinRefresh {
		if err := k.refresh(ctx); err != nil {
			return nil, err
		}
		k.fetchedAt = now
	}
	if pub, ok := k.lookup(kid); ok {
		return pub, nil
	}
	return nil, fmt.Errorf("no signing key for kid %q", kid)
}

func (k *jwksKeys) lookup(kid string) (any, bool) {
	for _, jwk := range k.set.Key(kid) {
		if jwk.IsPublic() && jwk.Valid() && jwk.Use != "enc" {
			return jwk.Key, true
		}
	}
	return nil, false
}

func (k *jwksKeys) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return err
	}
	res, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", res.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	if len(set.Keys) == 0 {
		return errors.New("jwks has no keys")
	}
	k.set = set
	return nil
}
