package staff

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no active staff member matches.
var ErrNotFound = errors.New("staff member not found")

// Role is the back-office permission level of a staff member.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

// Member is an employee that can operate the register.
type Member struct {
	ID      string
	Name    string
	Role    Role
	KeyHash string
	Active  bool
}

// Repository looks up staff members.
type Repository interface {
	// FindByKeyHash returns the active member owning the HMAC-SHA256 API key hash.
	FindByKeyHash(ctx context.Context, hash string) (*Member, error)
	ListStaff(ctx context.Context) ([]Member, error)
}

type ctxKey struct{}

// WithMember stores the authenticated member in ctx.
func WithMember(ctx context.Context, m *Member) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

// FromContext returns the authenticated member, if any.
func FromContext(ctx context.Context) (*Member, bool) {
	m, ok := ctx.Value(ctxKey{}).(*Member)
	return m, ok && m != nil
}

// HashKey returns the hex-encoded HMAC-SHA256 of an API key under pepper.
// Only this hash is stored.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
