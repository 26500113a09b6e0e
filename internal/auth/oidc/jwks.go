package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/devilmonastery/ara/internal/pkg/metrics"
)

// JWKSCache caches RSA public keys from a JWKS endpoint
type JWKSCache struct {
	url        string
	cacheTTL   time.Duration
	httpClient *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
}

// NewJWKSCache creates a new JWKS cache
func NewJWKSCache(url string, ttl time.Duration, httpClient *http.Client) *JWKSCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSCache{
		url:        url,
		keys:       make(map[string]*rsa.PublicKey),
		cacheTTL:   ttl,
		httpClient: httpClient,
	}
}

// GetKey retrieves a public key by key ID, refetching once when the key is
// unknown in case it was just rotated
func (j *JWKSCache) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if time.Since(j.lastFetch) > j.cacheTTL || len(j.keys) == 0 {
		if err := j.refresh(ctx); err != nil {
			return nil, err
		}
	} else if key, ok := j.keys[kid]; ok {
		metrics.CacheHits.WithLabelValues("jwks").Inc()
		return key, nil
	} else if err := j.refresh(ctx); err != nil {
		return nil, err
	}

	key, ok := j.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key not found: %s", kid)
	}
	return key, nil
}

// refresh fetches the latest JWKS; callers hold j.mu
func (j *JWKSCache) refresh(ctx context.Context) error {
	metrics.CacheMisses.WithLabelValues("jwks").Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks: unexpected status code: %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	newKeys := make(map[string]*rsa.PublicKey)
	for _, keyData := range jwks.Keys {
		var keyInfo struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		}
		if err := json.Unmarshal(keyData, &keyInfo); err != nil {
			continue
		}

		// Only RSA signing keys
		if keyInfo.Kty != "RSA" || (keyInfo.Use != "" && keyInfo.Use != "sig") {
			continue
		}

		pubKey, err := parseRSAKey(keyInfo.N, keyInfo.E)
		if err != nil {
			continue
		}
		newKeys[keyInfo.Kid] = pubKey
	}

	if len(newKeys) == 0 {
		return fmt.Errorf("no valid keys found in JWKS")
	}

	j.keys = newKeys
	j.lastFetch = time.Now()
	return nil
}

// parseRSAKey decodes base64url modulus and exponent
func parseRSAKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	if len(nBytes) == 0 || len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, fmt.Errorf("malformed RSA key")
	}

	var eInt int
	for _, b := range eBytes {
		eInt = eInt<<8 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: eInt,
	}, nil
}
