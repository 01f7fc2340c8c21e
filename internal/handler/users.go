package handler

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/segregate/internal/apperr"
	"github.com/iliyamo/segregate/internal/credential"
	"github.com/iliyamo/segregate/internal/identity"
	"github.com/iliyamo/segregate/internal/model"
	"github.com/iliyamo/segregate/internal/policy"
	"github.com/iliyamo/segregate/internal/repository"
	"github.com/iliyamo/segregate/internal/response"
)

// UserHandler serves /api/users and the admin user-management routes.
type UserHandler struct {
	Creds   *credential.Gateway
	Users   *repository.UserRepo
	Reports *repository.ReportRepo
	Policy  *policy.Policy
	Logger  *zap.Logger
}

func NewUserHandler(creds *credential.Gateway, users *repository.UserRepo, reports *repository.ReportRepo, pol *policy.Policy, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{Creds: creds, Users: users, Reports: reports, Policy: pol, Logger: logger}
}

// profile is a user plus the permissions of their current role.
type profile struct {
	model.PublicUser
	Permissions []policy.Permission `json:"permissions"`
}

// Me returns the caller as currently stored, which may differ from the
// role baked into their access token.
func (h *UserHandler) Me(c echo.Context, id identity.Identity) error {
	u, err := h.find(c, id.UserID)
	if err != nil {
		return err
	}
	return response.OK(c, "User fetched successfully", profile{PublicUser: u.Public(), Permissions: h.Policy.Permissions(u.Role)})
}

// Get returns one user. Only admins may read other users.
func (h *UserHandler) Get(c echo.Context, id identity.Identity) error {
	uid, err := pathID(c)
	if err != nil {
		return err
	}
	if uid != id.UserID && id.Role != policy.RoleAdmin {
		return apperr.Forbidden("")
	}
	u, err := h.find(c, uid)
	if err != nil {
		return err
	}
	return response.OK(c, "User fetched successfully", u.Public())
}

// List pages through users, optionally filtered by ?role.
func (h *UserHandler) List(c echo.Context, _ identity.Identity) error {
	var role policy.Role
	if raw := c.QueryParam("role"); raw != "" {
		r, ok := policy.ParseRole(raw)
		if !ok {
			return apperr.Validation("", apperr.FieldError{Field: "role", Message: "role must be one of: user, volunteer, admin"})
		}
		role = r
	}
	page := pageFrom(c)
	users, total, err := h.Users.List(c.Request().Context(), role, page)
	if err != nil {
		return apperr.Internal(err)
	}
	out := make([]model.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return response.OK(c, "Users fetched successfully", newListing(out, page, total))
}

type createUserReq struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=user volunteer admin"`
}

// Create stores a credential with any role. Only a stored admin may do it.
func (h *UserHandler) Create(c echo.Context, id identity.Identity) error {
	var req createUserReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Name = plainText(req.Name)
	req.Email = repository.NormalizeEmail(req.Email)
	if err := c.Validate(&req); err != nil {
		return err
	}
	role := policy.RoleUser
	if req.Role != "" {
		role = policy.Role(req.Role)
	}

	u, err := h.Creds.CreateByAdmin(c.Request().Context(), id, req.Name, req.Email, req.Password, role)
	if err != nil {
		return err
	}
	h.Logger.Info("user created by admin",
		zap.Uint64("admin_id", id.UserID), zap.Uint64("user_id", u.ID), zap.String("role", string(u.Role)))
	return response.Created(c, "User created successfully", u.Public())
}

type assignRoleReq struct {
	Role string `json:"role" validate:"required,oneof=user volunteer admin"`
}

// AssignRole changes a user's role. The caller's admin role is re-read
// from the store before anything changes.
func (h *UserHandler) AssignRole(c echo.Context, id identity.Identity) error {
	uid, err := pathID(c)
	if err != nil {
		return err
	}
	var req assignRoleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	u, err := h.Creds.AssignRole(c.Request().Context(), id, uid, policy.Role(req.Role))
	if err != nil {
		return err
	}
	h.Logger.Info("role assigned",
		zap.Uint64("admin_id", id.UserID), zap.Uint64("user_id", u.ID), zap.String("role", string(u.Role)))
	return response.OK(c, "Role updated successfully", u.Public())
}

type adminStats struct {
	UsersByRole map[policy.Role]int `json:"usersByRole"`
	model.Stats
}

// Stats returns user and report counts for the admin dashboard.
func (h *UserHandler) Stats(c echo.Context, _ identity.Identity) error {
	ctx := c.Request().Context()
	byRole, err := h.Users.CountByRole(ctx)
	if err != nil {
		return apperr.Internal(err)
	}
	st, err := h.Reports.Stats(ctx)
	if err != nil {
		return apperr.Internal(err)
	}
	return response.OK(c, "Stats fetched successfully", adminStats{UsersByRole: byRole, Stats: st})
}

func (h *UserHandler) find(c echo.Context, uid uint64) (model.User, error) {
	u, ok, err := h.Creds.FindByID(c.Request().Context(), uid)
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	if !ok {
		return model.User{}, apperr.UserNotFound()
	}
	return u, nil
}
