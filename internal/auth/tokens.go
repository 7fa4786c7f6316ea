package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snackline/snackline/internal/shared"
)

// ErrTokenInvalid covers missing, malformed, tampered and expired tokens.
var ErrTokenInvalid = errors.New("auth: invalid token")

// TokenStore issues opaque signed bearer tokens backed by Redis. The token
// handed to clients is "<id>.<hmac>"; the signature is verified before the
// Redis lookup so forged ids never reach the store.
type TokenStore struct {
	client *redis.Client
	secret []byte
	ttl    time.Duration
}

type tokenPayload struct {
	AccountID int64       `json:"account_id"`
	Role      shared.Role `json:"role"`
	IssuedAt  time.Time   `json:"issued_at"`
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, secret string, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, secret: []byte(secret), ttl: ttl}
}

// Issue creates a token for the principal and stores it with the configured TTL.
func (ts *TokenStore) Issue(ctx context.Context, p shared.Principal) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	id := base64.RawURLEncoding.EncodeToString(raw)

	payload, err := json.Marshal(tokenPayload{AccountID: p.ID, Role: p.Role, IssuedAt: time.Now().UTC()})
	if err != nil {
		return "", err
	}
	if err := ts.client.Set(ctx, ts.redisKey(id), payload, ts.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store token: %w", err)
	}
	return id + "." + ts.sign(id), nil
}

// Resolve maps a bearer token back to its principal, refreshing the TTL.
func (ts *TokenStore) Resolve(ctx context.Context, token string) (shared.Principal, error) {
	id, sig, ok := strings.Cut(token, ".")
	if !ok || id == "" {
		return shared.Principal{}, ErrTokenInvalid
	}
	if !hmac.Equal([]byte(sig), []byte(ts.sign(id))) {
		return shared.Principal{}, ErrTokenInvalid
	}

	data, err := ts.client.Get(ctx, ts.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shared.Principal{}, ErrTokenInvalid
		}
		return shared.Principal{}, fmt.Errorf("auth: load token: %w", err)
	}

	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return shared.Principal{}, ErrTokenInvalid
	}
	if !payload.Role.IsValid() {
		return shared.Principal{}, ErrTokenInvalid
	}

	_ = ts.client.Expire(ctx, ts.redisKey(id), ts.ttl).Err()
	return shared.Principal{ID: payload.AccountID, Role: payload.Role}, nil
}

// Revoke removes a token, logging the caller out.
func (ts *TokenStore) Revoke(ctx context.Context, token string) error {
	id, sig, ok := strings.Cut(token, ".")
	if !ok || !hmac.Equal([]byte(sig), []byte(ts.sign(id))) {
		return ErrTokenInvalid
	}
	return ts.client.Del(ctx, ts.redisKey(id)).Err()
}

func (ts *TokenStore) redisKey(id string) string {
	return "auth:token:" + id
}

func (ts *TokenStore) sign(id string) string {
	mac := hmac.New(sha256.New, ts.secret)
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
