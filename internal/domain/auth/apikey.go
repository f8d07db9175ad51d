package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrNoSession is returned when a request carries no authenticated vendor.
var ErrNoSession = errors.New("no vendor session")

// APIKeyInfo holds the identity bound to a validated API key.
type APIKeyInfo struct {
	ID       string
	KeyHash  string
	Name     string
	VendorID string
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, the form in which
// API keys are stored.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Session identifies the vendor operating the current request. It is passed
// explicitly to every owner-scoped operation.
type Session struct {
	VendorID string
	KeyID    string
}

type sessionKey struct{}

// WithSession stores s in ctx. Only the transport layer should call it.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom extracts the session stored by WithSession.
func SessionFrom(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	if !ok || s.VendorID == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}
