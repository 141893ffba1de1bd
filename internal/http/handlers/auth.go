package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v5"

	"github.com/leadsuccess/dynamics-bridge/internal/auth"
	"github.com/leadsuccess/dynamics-bridge/internal/http/authn"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *Handlers) HandleLoginPost(c *echo.Context) error {
	if h.Sessions == nil {
		return errors.New("auth sessions not configured")
	}

	ctx := c.Request().Context()

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return JSONError(c, http.StatusBadRequest, ErrorBody{Code: CodeInvalidCredentials, Message: "malformed login request"})
	}

	email := auth.NormalizeEmail(req.Email)
	if email == "" || strings.TrimSpace(req.Password) == "" {
		return invalidCredentials(c)
	}

	user, err := h.Store.GetAuthUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invalidCredentials(c)
		}
		return err
	}
	if !user.IsActive {
		return invalidCredentials(c)
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil {
		return err
	}
	if !match {
		return invalidCredentials(c)
	}

	if err := h.Sessions.RenewToken(ctx); err != nil {
		return err
	}
	h.Sessions.Put(ctx, authn.SessionKeyUserID, user.ID)

	_ = h.Store.UpdateAuthUserLoginMeta(ctx, user.ID, time.Now(), strings.TrimSpace(c.RealIP()))

	h.logger().Info("operator signed in", "email", email)
	return c.JSON(http.StatusOK, loginResponse{Email: user.Email, Role: user.Role})
}

func (h *Handlers) HandleLogoutPost(c *echo.Context) error {
	if h.Sessions == nil {
		return errors.New("auth sessions not configured")
	}
	if err := h.Sessions.Destroy(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleMe returns the signed-in operator.
func (h *Handlers) HandleMe(c *echo.Context) error {
	p, ok := authn.PrincipalFromContext(c)
	if !ok {
		return JSONError(c, http.StatusUnauthorized, ErrorBody{Code: "Unauthorized", Message: "sign in required"})
	}
	return c.JSON(http.StatusOK, loginResponse{Email: p.Email, Role: p.Role})
}

func invalidCredentials(c *echo.Context) error {
	return JSONError(c, http.StatusUnauthorized, ErrorBody{Code: CodeInvalidCredentials, Message: "invalid email or password"})
}
