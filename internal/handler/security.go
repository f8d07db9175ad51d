package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ruxstar-pod/internal/domain/auth"
	"github.com/xenking/ruxstar-pod/pkg/httpmiddleware"
)

// APIKeyHeader carries the vendor API key.
const APIKeyHeader = "api_key"

var errUnauthorized = errors.New("unauthorized")

// Authenticator resolves vendor sessions from HMAC-SHA256 hashed API keys.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given API key
// repository and HMAC pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate returns the session bound to key.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (auth.Session, error) {
	if key == "" {
		return auth.Session{}, errUnauthorized
	}
	hexHash := auth.HashKey(a.pepper, key)

	info, err := a.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		return auth.Session{}, errors.Wrap(errUnauthorized, err.Error())
	}

	// The repository may hand back a row other than the one asked for.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return auth.Session{}, errUnauthorized
	}
	computed, _ := hex.DecodeString(hexHash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 || info.VendorID == "" {
		return auth.Session{}, errUnauthorized
	}

	return auth.Session{VendorID: info.VendorID, KeyID: info.ID}, nil
}

// Require rejects requests without a valid API key and stores the vendor
// session in the context of the rest.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, err := a.Authenticate(ctx, r.Header.Get(APIKeyHeader))
		if err != nil {
			zctx.From(ctx).Debug("Rejected API key", zap.Error(err))
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("vendor_id", sess.VendorID)))
		next.ServeHTTP(w, r.WithContext(auth.WithSession(ctx, sess)))
	})
}
