// Package identity carries the verified caller identity through a request.
//
// Only the request gate constructs a context carrying an Identity; the
// context key is unexported, so nothing derived from client input can
// produce one.
package identity

import (
	"context"
	"strconv"

	"github.com/iliyamo/segregate/internal/policy"
)

// Trusted headers set by the request gate on the forwarded request. Any
// client-supplied copies are stripped before the gate runs its checks.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

// Identity is the verified caller: who they are and the role their access
// token was minted with.
type Identity struct {
	UserID uint64
	Email  string
	Role   policy.Role
}

// IDString returns the user id in decimal.
func (id Identity) IDString() string { return strconv.FormatUint(id.UserID, 10) }

type ctxKey struct{}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity attached by the request gate.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
