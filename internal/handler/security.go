package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-backoffice/internal/domain/staff"
)

// APIKeyHeader carries the staff API key.
const APIKeyHeader = "api_key"

// Authenticator resolves the api_key header to an active staff member via
// its HMAC-SHA256 hash.
type Authenticator struct {
	members staff.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given staff repository
// and HMAC pepper.
func NewAuthenticator(members staff.Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		members: members,
		pepper:  pepper,
	}
}

// Middleware rejects requests without a valid API key and stores the
// authenticated member in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			writeFailure(w, http.StatusUnauthorized, "missing api key")
			return
		}

		ctx := r.Context()
		hash := staff.HashKey(a.pepper, key)
		m, err := a.members.FindByKeyHash(ctx, hash)
		if err != nil {
			if !errors.Is(err, staff.ErrNotFound) {
				zctx.From(ctx).Error("Authenticate", zap.Error(err))
			}
			writeFailure(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		// The stored hash must match what was computed, even though the
		// lookup already succeeded.
		want, _ := hex.DecodeString(hash)
		got, err := hex.DecodeString(m.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(want, got) != 1 || !m.Active {
			writeFailure(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx = staff.WithMember(ctx, m)
		ctx = zctx.With(ctx, zap.String("staff_id", m.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
