// Package accounts implements the HTTP handlers for the account lifecycle: admin
// signup and activation, login and logout, password reset and change, and team
// member invites.
package accounts

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/workboard/workboard/internal/auth"
	"github.com/workboard/workboard/internal/config"
	"github.com/workboard/workboard/internal/db/models"
	"github.com/workboard/workboard/internal/middleware"
)

// Service is the subset of *auth.Manager the handlers call
type Service interface {
	Signup(ctx context.Context, in auth.SignupInput) (*models.Identity, error)
	ConsumeActivation(ctx context.Context, rawToken string) (*models.Identity, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	ChangePassword(ctx context.Context, identityID, currentSessionToken, currentPassword, newPassword string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, rawToken, newPassword string) error
	IssueInvite(ctx context.Context, adminID string, in auth.InviteInput) (*models.Identity, error)
	ConsumeInvite(ctx context.Context, rawToken, password, passwordConfirm, email string) (*models.Identity, error)
}

// Handlers serves the /users and /team-members account routes
type Handlers struct {
	svc    Service
	cookie config.CookieConfig
	now    func() time.Time
}

// NewHandlers creates account handlers. An empty cookie name falls back to
// middleware.DefaultSessionCookie.
func NewHandlers(svc Service, cookie config.CookieConfig) *Handlers {
	if cookie.Name == "" {
		cookie.Name = middleware.DefaultSessionCookie
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	return &Handlers{svc: svc, cookie: cookie, now: time.Now}
}

// bindJSON decodes the request body; a malformed body is a validation error
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.RespondError(c, auth.ValidationError("Invalid request body"))
		return false
	}
	return true
}

func sameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// setSessionCookie writes the HttpOnly session cookie. A nil expiry produces a
// browser-session cookie.
func (h *Handlers) setSessionCookie(c *gin.Context, token string, expiresAt *time.Time) {
	maxAge := 0
	if expiresAt != nil {
		maxAge = int(expiresAt.Sub(h.now()).Seconds())
		if maxAge < 1 {
			maxAge = 1
		}
	}
	c.SetSameSite(sameSite(h.cookie.SameSite))
	c.SetCookie(h.cookie.Name, token, maxAge, h.cookie.Path, h.cookie.Domain, h.cookie.Secure, true)
}

func (h *Handlers) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(sameSite(h.cookie.SameSite))
	c.SetCookie(h.cookie.Name, "", -1, h.cookie.Path, h.cookie.Domain, h.cookie.Secure, true)
}

// ---------------------------------------------------------------------------
// Signup and activation
// ---------------------------------------------------------------------------

// @Summary      Admin signup
// @Description  Creates an inactive admin and emails an activation link.
// @Tags         Users
// @Accept       json
// @Success      201
// @Failure      400  {object}  map[string]interface{}  "Validation error"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/v1/users/signup [post]
func (h *Handlers) SignupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in auth.SignupInput
		if !bindJSON(c, &in) {
			return
		}
		if _, err := h.svc.Signup(c.Request.Context(), in); err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.Status(http.StatusCreated)
	}
}

// @Summary      Activate account
// @Tags         Users
// @Param        activationToken  query  string  true  "Activation token from the email link"
// @Success      204
// @Failure      400  {object}  map[string]interface{}  "Invalid token"
// @Router       /api/v1/users/activate [get]
func (h *Handlers) ActivateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := h.svc.ConsumeActivation(c.Request.Context(), c.Query("activationToken")); err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// @Summary      Login
// @Description  Opens a session. The token is set as an HttpOnly cookie and returned once in the body for API clients.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user, session_token, expires_at"
// @Failure      400  {object}  map[string]interface{}  "Invalid credentials or account not activated"
// @Router       /api/v1/users/login [post]
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if !bindJSON(c, &req) {
			return
		}
		res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		h.setSessionCookie(c, res.SessionToken, res.ExpiresAt)
		c.JSON(http.StatusOK, gin.H{
			"user":          res.Identity,
			"session_token": res.SessionToken,
			"expires_at":    res.ExpiresAt,
		})
	}
}

// MeHandler returns the identity resolved by the session middleware
// GET /api/v1/users/me
func (h *Handlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := middleware.CurrentIdentity(c)
		if identity == nil {
			middleware.RespondError(c, auth.ErrNotAuthenticated)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": identity})
	}
}

// LogoutHandler revokes the current session and clears the cookie
// POST /api/v1/users/logout
func (h *Handlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.svc.Logout(c.Request.Context(), middleware.CurrentSessionToken(c)); err != nil {
			middleware.RespondError(c, err)
			return
		}
		h.clearSessionCookie(c)
		c.Status(http.StatusNoContent)
	}
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePasswordHandler replaces the password and revokes every other session
// PATCH /api/v1/users/me/password
func (h *Handlers) ChangePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changePasswordRequest
		if !bindJSON(c, &req) {
			return
		}
		identity := middleware.CurrentIdentity(c)
		if identity == nil {
			middleware.RespondError(c, auth.ErrNotAuthenticated)
			return
		}
		err := h.svc.ChangePassword(c.Request.Context(), identity.ID, middleware.CurrentSessionToken(c),
			req.CurrentPassword, req.NewPassword)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ---------------------------------------------------------------------------
// Password reset
// ---------------------------------------------------------------------------

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPasswordHandler emails a password reset link
// POST /api/v1/users/forgot-password
func (h *Handlers) ForgotPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req forgotPasswordRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := h.svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Password reset link has been sent to your email"})
	}
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// ResetPasswordHandler consumes a reset token
// PATCH /api/v1/users/reset-password?passwordResetToken=...
func (h *Handlers) ResetPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resetPasswordRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := h.svc.ResetPassword(c.Request.Context(), c.Query("passwordResetToken"), req.Password); err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ---------------------------------------------------------------------------
// Team member invites
// ---------------------------------------------------------------------------

// InviteHandler creates a team member for the calling admin and emails the invite
// POST /api/v1/team-members
func (h *Handlers) InviteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in auth.InviteInput
		if !bindJSON(c, &in) {
			return
		}
		admin := middleware.CurrentIdentity(c)
		if admin == nil {
			middleware.RespondError(c, auth.ErrNotAuthenticated)
			return
		}
		member, err := h.svc.IssueInvite(c.Request.Context(), admin.ID, in)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"team_member": member})
	}
}

type createPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	Email           string `json:"email"`
}

// CreatePasswordHandler accepts an invite by setting the team member's password
// PATCH /api/v1/team-members/create-password?inviteToken=...
func (h *Handlers) CreatePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPasswordRequest
		if !bindJSON(c, &req) {
			return
		}
		_, err := h.svc.ConsumeInvite(c.Request.Context(), c.Query("inviteToken"),
			req.Password, req.PasswordConfirm, req.Email)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "You successfully created a password. Now you can login."})
	}
}
