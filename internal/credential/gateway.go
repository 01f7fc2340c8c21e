// Package credential is the gateway to stored credentials: password hashing,
// lookup, and creation. It is also where the role-assignment rules live, so
// no HTTP form can bypass them.
package credential

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/segregate/internal/apperr"
	"github.com/iliyamo/segregate/internal/identity"
	"github.com/iliyamo/segregate/internal/model"
	"github.com/iliyamo/segregate/internal/policy"
	"github.com/iliyamo/segregate/internal/repository"
)

// Store is the persistence the gateway needs. *repository.UserRepo
// satisfies it.
type Store interface {
	Create(ctx context.Context, u model.User) (model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	UpdateRole(ctx context.Context, id uint64, role policy.Role) error
}

// NewCredential is the input to CreateCredential.
type NewCredential struct {
	Name         string
	Email        string
	PasswordHash string
	Role         policy.Role
}

// Signup is a self-registration request. RequestedRole is accepted so the
// caller can pass the form through untouched; it is ignored.
type Signup struct {
	Name          string
	Email         string
	Password      string
	RequestedRole string
}

type Gateway struct {
	store  Store
	policy *policy.Policy
	cost   int
	// dummyHash is compared against when the email is unknown, so a miss
	// costs the same bcrypt work as a wrong password.
	dummyHash []byte
}

func NewGateway(store Store, pol *policy.Policy, cost int) (*Gateway, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("credential: bcrypt cost %d out of range", cost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("segregate-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("credential: dummy hash: %w", err)
	}
	return &Gateway{store: store, policy: pol, cost: cost, dummyHash: dummy}, nil
}

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// HashPassword returns the bcrypt hash of plain.
func (g *Gateway) HashPassword(plain string) (string, error) {
	if len(plain) > MaxPasswordBytes {
		return "", apperr.Validation("", apperr.FieldError{Field: "password", Message: "password must be at most 72 bytes"})
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), g.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches hash. bcrypt compares in
// constant time.
func (g *Gateway) VerifyPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// FindByEmail returns the credential for email, or ok=false.
func (g *Gateway) FindByEmail(ctx context.Context, email string) (model.User, bool, error) {
	u, err := g.store.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	return u, true, nil
}

// FindByID returns the credential for id, or ok=false.
func (g *Gateway) FindByID(ctx context.Context, id uint64) (model.User, bool, error) {
	u, err := g.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	return u, true, nil
}

// CreateCredential stores a new credential. The existence pre-check only
// saves a bcrypt-hashed insert in the common case; the unique constraint
// decides races, and both paths yield EMAIL_ALREADY_EXISTS.
func (g *Gateway) CreateCredential(ctx context.Context, nc NewCredential) (model.User, error) {
	if !nc.Role.Valid() {
		return model.User{}, apperr.Validation("", apperr.FieldError{Field: "role", Message: "Invalid role"})
	}
	exists, err := g.store.EmailExists(ctx, nc.Email)
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	if exists {
		return model.User{}, apperr.EmailExists()
	}
	u, err := g.store.Create(ctx, model.User{
		Name:         nc.Name,
		Email:        nc.Email,
		PasswordHash: nc.PasswordHash,
		Role:         nc.Role,
	})
	if errors.Is(err, repository.ErrEmailExists) {
		return model.User{}, apperr.EmailExists()
	}
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	return u, nil
}

// Register handles self-registration. The stored role is always user.
func (g *Gateway) Register(ctx context.Context, s Signup) (model.User, error) {
	hash, err := g.HashPassword(s.Password)
	if err != nil {
		return model.User{}, apperr.From(err)
	}
	return g.CreateCredential(ctx, NewCredential{
		Name:         s.Name,
		Email:        s.Email,
		PasswordHash: hash,
		Role:         policy.RoleUser,
	})
}

// Authenticate checks email and password. Unknown email and wrong password
// return the same error after the same amount of bcrypt work.
func (g *Gateway) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	u, ok, err := g.FindByEmail(ctx, email)
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	if !ok {
		_ = bcrypt.CompareHashAndPassword(g.dummyHash, []byte(password))
		return model.User{}, apperr.InvalidCredentials()
	}
	if !g.VerifyPassword(password, u.PasswordHash) {
		return model.User{}, apperr.InvalidCredentials()
	}
	return u, nil
}

// CreateByAdmin stores a credential with any role on behalf of actor.
func (g *Gateway) CreateByAdmin(ctx context.Context, actor identity.Identity, name, email, password string, role policy.Role) (model.User, error) {
	if err := g.requireRoleManager(ctx, actor); err != nil {
		return model.User{}, err
	}
	hash, err := g.HashPassword(password)
	if err != nil {
		return model.User{}, apperr.From(err)
	}
	return g.CreateCredential(ctx, NewCredential{Name: name, Email: email, PasswordHash: hash, Role: role})
}

// AssignRole changes target's role on behalf of actor.
func (g *Gateway) AssignRole(ctx context.Context, actor identity.Identity, targetID uint64, role policy.Role) (model.User, error) {
	if !role.Valid() {
		return model.User{}, apperr.Validation("", apperr.FieldError{Field: "role", Message: "Invalid role"})
	}
	if err := g.requireRoleManager(ctx, actor); err != nil {
		return model.User{}, err
	}
	if err := g.store.UpdateRole(ctx, targetID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, apperr.UserNotFound()
		}
		return model.User{}, apperr.Internal(err)
	}
	u, ok, err := g.FindByID(ctx, targetID)
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	if !ok {
		return model.User{}, apperr.UserNotFound()
	}
	return u, nil
}

// requireRoleManager re-reads the actor from the store: the role in the
// access token may be up to one token lifetime stale.
func (g *Gateway) requireRoleManager(ctx context.Context, actor identity.Identity) error {
	if !g.policy.HasPermission(actor.Role, policy.ManageRoles) {
		return apperr.AdminAccessRequired()
	}
	current, ok, err := g.FindByID(ctx, actor.UserID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok || !g.policy.HasPermission(current.Role, policy.ManageRoles) {
		return apperr.AdminAccessRequired()
	}
	return nil
}
