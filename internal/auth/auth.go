package auth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"cowsay-gateway/internal/cache"
	"cowsay-gateway/internal/respond"
)

// ValidateRequest is sent to the key verification service
type ValidateRequest struct {
	KeySecret string `json:"key_secret"`
}

// ValidateResponse is returned by the key verification service
type ValidateResponse struct {
	Valid bool `json:"valid"`
}

// Config controls which API keys may call the render endpoint. With no static
// keys and no service URL the authenticator is disabled and lets every request through.
type Config struct {
	Keys            []string
	ServiceURL      string
	ServiceToken    string
	CacheExpiration time.Duration // default 5m
	HTTPTimeout     time.Duration // default 5s
	CacheSize       int           // default 10000
	FailOpen        bool          // allow requests when the verification service is down
}

type Authenticator struct {
	staticKeys   [][32]byte
	serviceURL   string
	serviceToken string
	httpClient   *http.Client
	cache        *cache.TTLCache[bool]
	failOpen     bool
}

func NewAuthenticator(config Config) (*Authenticator, error) {
	if config.CacheExpiration == 0 {
		config.CacheExpiration = 5 * time.Minute
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 5 * time.Second
	}
	if config.CacheSize == 0 {
		config.CacheSize = 10000
	}

	verdicts, err := cache.New[bool](config.CacheSize, config.CacheExpiration)
	if err != nil {
		return nil, err
	}

	a := &Authenticator{
		serviceURL:   strings.TrimSuffix(config.ServiceURL, "/"),
		serviceToken: config.ServiceToken,
		httpClient:   &http.Client{Timeout: config.HTTPTimeout},
		cache:        verdicts,
		failOpen:     config.FailOpen,
	}

	for _, key := range config.Keys {
		if key == "" {
			continue
		}
		a.staticKeys = append(a.staticKeys, cache.Digest(key))
	}

	return a, nil
}

// Enabled reports whether requests need an API key at all.
func (a *Authenticator) Enabled() bool {
	return len(a.staticKeys) > 0 || a.serviceURL != ""
}

func (a *Authenticator) ValidateAPIKey(ctx context.Context, apiKey string) (bool, error) {
	if apiKey == "" {
		return false, nil
	}

	if a.matchesStaticKey(cache.Digest(apiKey)) {
		return true, nil
	}

	if a.serviceURL == "" {
		return false, nil
	}

	hash := cache.Key(apiKey)
	if valid, ok := a.cache.Get(hash); ok {
		return valid, nil
	}

	valid, err := a.validateWithService(ctx, apiKey)
	if err != nil {
		if a.failOpen {
			log.Printf("Key verification failed, allowing request (fail_open=true): %v", err)
			return true, nil
		}
		log.Printf("Key verification failed, rejecting request (fail_open=false): %v", err)
		return false, err
	}

	a.cache.Add(hash, valid)

	return valid, nil
}

func (a *Authenticator) matchesStaticKey(digest [32]byte) bool {
	matched := false
	for _, key := range a.staticKeys {
		if subtle.ConstantTimeCompare(key[:], digest[:]) == 1 {
			matched = true
		}
	}
	return matched
}

func (a *Authenticator) validateWithService(ctx context.Context, apiKey string) (bool, error) {
	reqBody, err := json.Marshal(ValidateRequest{KeySecret: apiKey})
	if err != nil {
		return false, fmt.Errorf("failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.serviceURL+"/validate", bytes.NewReader(reqBody))
	if err != nil {
		return false, fmt.Errorf("failed to create HTTP request: %v", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+a.serviceToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("verification service returned status %d", resp.StatusCode)
	}

	var validateResp ValidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&validateResp); err != nil {
		return false, fmt.Errorf("failed to decode response: %v", err)
	}

	return validateResp.Valid, nil
}

// KeyFromRequest reads the API key from "Authorization: Bearer" or X-API-Key.
func KeyFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// Middleware rejects requests without a valid key. It is a pass-through when
// the authenticator is disabled.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := KeyFromRequest(r)
		if apiKey == "" {
			respond.Error(w, http.StatusUnauthorized, "missing API key")
			return
		}

		valid, err := a.ValidateAPIKey(r.Context(), apiKey)
		if err != nil {
			respond.Error(w, http.StatusServiceUnavailable, "key verification unavailable")
			return
		}
		if !valid {
			respond.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}
