// lifecycle.go implements the token lifecycle manager. Each one-time token kind
// (activation, invite, password reset) moves NO_TOKEN -> PENDING -> NO_TOKEN per
// identity; a failed consume never changes state and a reissue overwrites the
// pending hash. Sessions are opaque tokens whose hash is stored per login.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/workboard/workboard/internal/db/models"
	"github.com/workboard/workboard/internal/db/repositories"
	"github.com/workboard/workboard/internal/notify"
	"github.com/workboard/workboard/internal/telemetry"
)

const (
	// DefaultPasswordResetTTL is how long a reset token stays valid
	DefaultPasswordResetTTL = 10 * time.Minute

	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores input beyond 72 bytes
)

// ManagerOptions tunes the lifecycle manager
type ManagerOptions struct {
	BcryptCost       int
	PasswordResetTTL time.Duration
	// SessionMaxAge bounds a session's lifetime from login; 0 disables expiry.
	SessionMaxAge time.Duration
	// UniformResetResponse makes RequestPasswordReset succeed silently for
	// unknown emails instead of returning a not-found error.
	UniformResetResponse bool
	Links                notify.Links
}

// Manager issues, validates and consumes identity tokens
type Manager struct {
	identities IdentityStore
	sessions   SessionStore
	notifier   notify.Notifier
	clock      Clock
	opts       ManagerOptions
	dummyHash  string
}

// NewManager creates a Manager. A nil clock uses SystemClock.
func NewManager(identities IdentityStore, sessions SessionStore, notifier notify.Notifier, clock Clock, opts ManagerOptions) (*Manager, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if opts.PasswordResetTTL <= 0 {
		opts.PasswordResetTTL = DefaultPasswordResetTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = DefaultBcryptCost
	}

	// Compared against on unknown-email logins so both failure paths cost one bcrypt run.
	dummy, err := HashPassword("workboard-timing-equaliser", opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	return &Manager{
		identities: identities,
		sessions:   sessions,
		notifier:   notifier,
		clock:      clock,
		opts:       opts,
		dummyHash:  dummy,
	}, nil
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ---------------------------------------------------------------------------
// Inputs
// ---------------------------------------------------------------------------

// SignupInput is the payload of an admin signup
type SignupInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Validate checks required fields
func (in SignupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
	)
}

// InviteInput is the payload an admin submits to add a team member
type InviteInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Position  string `json:"position"`
}

// Validate checks required fields
func (in InviteInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Position, validation.Required, validation.Length(1, 200)),
	)
}

func validatePassword(field, password string) error {
	return validation.Errors{
		field: validation.Validate(password, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
	}.Filter()
}

// asValidation converts an ozzo-validation failure into a domain validation error
func asValidation(err error) error {
	if err == nil {
		return nil
	}
	return ValidationError("%s", err.Error())
}

// LoginResult carries the raw session token, which is returned exactly once
type LoginResult struct {
	Identity     *models.Identity
	SessionToken string
	ExpiresAt    *time.Time
}

// ---------------------------------------------------------------------------
// Activation
// ---------------------------------------------------------------------------

// Signup creates an INACTIVE admin identity with a pending activation token and
// emails the activation link.
func (m *Manager) Signup(ctx context.Context, in SignupInput) (*models.Identity, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return nil, asValidation(err)
	}

	if err := m.ensureEmailFree(ctx, in.Email); err != nil {
		return nil, err
	}

	passwordHash, err := HashPassword(in.Password, m.opts.BcryptCost)
	if err != nil {
		return nil, InternalError("hash password", err)
	}
	raw, err := GenerateToken()
	if err != nil {
		return nil, InternalError("generate activation token", err)
	}
	tokenHash := HashToken(raw)

	identity := &models.Identity{
		Role:                models.RoleAdmin,
		FirstName:           in.FirstName,
		LastName:            in.LastName,
		Email:               in.Email,
		Status:              models.IdentityInactive,
		PasswordHash:        &passwordHash,
		ActivationTokenHash: &tokenHash,
	}
	if err := m.create(ctx, identity); err != nil {
		return nil, err
	}

	telemetry.AuthEventsTotal.WithLabelValues("signup", "success").Inc()
	m.notify(ctx, "activation", m.opts.Links.Activation(identity.Email, identity.FullName(), raw))
	return identity, nil
}

// IssueActivation stores a fresh activation token for the identity, marks it
// INACTIVE and emails the link. Any previously pending activation token stops working.
func (m *Manager) IssueActivation(ctx context.Context, identity *models.Identity) error {
	raw, err := GenerateToken()
	if err != nil {
		return InternalError("generate activation token", err)
	}
	tokenHash := HashToken(raw)

	if err := m.identities.SetActivationToken(ctx, identity.ID, tokenHash, m.clock.Now()); err != nil {
		return InternalError("store activation token", err)
	}
	identity.ActivationTokenHash = &tokenHash
	identity.Status = models.IdentityInactive

	m.notify(ctx, "activation", m.opts.Links.Activation(identity.Email, identity.FullName(), raw))
	return nil
}

// ConsumeActivation activates the identity holding rawToken
func (m *Manager) ConsumeActivation(ctx context.Context, rawToken string) (*models.Identity, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ValidationError("Activation token is missing")
	}

	identity, err := m.identities.ConsumeActivationToken(ctx, HashToken(rawToken), m.clock.Now())
	if err != nil {
		return nil, InternalError("consume activation token", err)
	}
	if identity == nil {
		telemetry.TokenConsumptionsTotal.WithLabelValues("activation", "invalid").Inc()
		return nil, ErrInvalidToken
	}

	telemetry.TokenConsumptionsTotal.WithLabelValues("activation", "success").Inc()
	return identity, nil
}

// ---------------------------------------------------------------------------
// Invites
// ---------------------------------------------------------------------------

// IssueInvite creates a team member owned by adminID with no password and a
// pending invite token, then emails the invite link.
func (m *Manager) IssueInvite(ctx context.Context, adminID string, in InviteInput) (*models.Identity, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return nil, asValidation(err)
	}

	if err := m.ensureEmailFree(ctx, in.Email); err != nil {
		return nil, err
	}

	raw, err := GenerateToken()
	if err != nil {
		return nil, InternalError("generate invite token", err)
	}
	tokenHash := HashToken(raw)
	position := in.Position

	identity := &models.Identity{
		Role:            models.RoleTeamMember,
		AdminID:         &adminID,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Email:           in.Email,
		Position:        &position,
		Status:          models.IdentityInactive,
		InviteTokenHash: &tokenHash,
	}
	if err := m.create(ctx, identity); err != nil {
		return nil, err
	}

	telemetry.AuthEventsTotal.WithLabelValues("invite", "success").Inc()
	m.notify(ctx, "invite", m.opts.Links.Invite(identity.Email, identity.FullName(), raw))
	return identity, nil
}

// ConsumeInvite sets the team member's password and activates the account.
// The email must match the invited address; a mismatch is reported as an
// invalid token and leaves the invite pending.
func (m *Manager) ConsumeInvite(ctx context.Context, rawToken, password, passwordConfirm, email string) (*models.Identity, error) {
	email = NormalizeEmail(email)
	if strings.TrimSpace(rawToken) == "" {
		return nil, ValidationError("Invite token is missing")
	}
	if password == "" || passwordConfirm == "" || email == "" {
		return nil, ValidationError("All fields are required: password, password confirmation and email")
	}
	if password != passwordConfirm {
		return nil, ValidationError("Password and password confirmation must match")
	}
	if err := validatePassword("password", password); err != nil {
		return nil, asValidation(err)
	}

	passwordHash, err := HashPassword(password, m.opts.BcryptCost)
	if err != nil {
		return nil, InternalError("hash password", err)
	}

	identity, err := m.identities.ConsumeInviteToken(ctx, HashToken(rawToken), email, passwordHash, m.clock.Now())
	if err != nil {
		return nil, InternalError("consume invite token", err)
	}
	if identity == nil {
		telemetry.TokenConsumptionsTotal.WithLabelValues("invite", "invalid").Inc()
		return nil, ErrInvalidToken
	}

	telemetry.TokenConsumptionsTotal.WithLabelValues("invite", "success").Inc()
	return identity, nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// Login verifies credentials and opens a session. Unknown emails and wrong
// passwords fail with the same ErrInvalidCredentials value.
func (m *Manager) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ValidationError("Email and password are required")
	}

	identity, err := m.identities.GetIdentityByEmail(ctx, email)
	if err != nil {
		return nil, InternalError("load identity", err)
	}

	if identity == nil || !identity.HasPassword() {
		VerifyPassword(password, m.dummyHash)
		telemetry.AuthEventsTotal.WithLabelValues("login", "invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	if !identity.IsActive() {
		if err := m.IssueActivation(ctx, identity); err != nil {
			return nil, err
		}
		telemetry.AuthEventsTotal.WithLabelValues("login", "not_activated").Inc()
		return nil, ErrAccountNotActivated
	}

	if !VerifyPassword(password, *identity.PasswordHash) {
		telemetry.AuthEventsTotal.WithLabelValues("login", "invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	raw, session, err := m.openSession(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	telemetry.AuthEventsTotal.WithLabelValues("login", "success").Inc()
	return &LoginResult{Identity: identity, SessionToken: raw, ExpiresAt: session.ExpiresAt}, nil
}

func (m *Manager) openSession(ctx context.Context, identityID string) (string, *models.Session, error) {
	raw, err := GenerateToken()
	if err != nil {
		return "", nil, InternalError("generate session token", err)
	}

	now := m.clock.Now()
	session := &models.Session{
		SessionIDHash: HashToken(raw),
		IdentityID:    identityID,
		CreatedAt:     now,
	}
	if m.opts.SessionMaxAge > 0 {
		expiresAt := now.Add(m.opts.SessionMaxAge)
		session.ExpiresAt = &expiresAt
	}

	if err := m.sessions.CreateSession(ctx, session); err != nil {
		return "", nil, InternalError("create session", err)
	}
	return raw, session, nil
}

// ResolveSession returns the identity behind a raw session token
func (m *Manager) ResolveSession(ctx context.Context, rawToken string) (*models.Identity, error) {
	if rawToken == "" {
		return nil, ErrNotAuthenticated
	}
	tokenHash := HashToken(rawToken)

	session, err := m.sessions.GetSessionByHash(ctx, tokenHash)
	if err != nil {
		return nil, InternalError("load session", err)
	}
	if session == nil {
		return nil, ErrNotAuthenticated
	}

	if session.IsExpired(m.clock.Now()) {
		if _, err := m.sessions.DeleteSessionsByHash(ctx, tokenHash); err != nil {
			slog.WarnContext(ctx, "failed to delete expired session", "error", err)
		}
		return nil, ErrNotAuthenticated
	}

	identity, err := m.identities.GetIdentityByID(ctx, session.IdentityID)
	if err != nil {
		return nil, InternalError("load identity", err)
	}
	if identity == nil {
		return nil, NotFoundError("User")
	}
	return identity, nil
}

// Logout deletes every session row matching the raw token
func (m *Manager) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return ErrNotAuthenticated
	}
	if _, err := m.sessions.DeleteSessionsByHash(ctx, HashToken(rawToken)); err != nil {
		return InternalError("delete session", err)
	}
	telemetry.AuthEventsTotal.WithLabelValues("logout", "success").Inc()
	return nil
}

// ChangePassword replaces the password of a logged-in identity after checking
// the current one, and revokes every other session of that identity.
func (m *Manager) ChangePassword(ctx context.Context, identityID, currentSessionToken, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return ValidationError("Current password is required")
	}
	if err := validatePassword("new_password", newPassword); err != nil {
		return asValidation(err)
	}

	identity, err := m.identities.GetIdentityByID(ctx, identityID)
	if err != nil {
		return InternalError("load identity", err)
	}
	if identity == nil {
		return NotFoundError("User")
	}
	if !identity.HasPassword() || !VerifyPassword(currentPassword, *identity.PasswordHash) {
		return ErrInvalidCredentials
	}

	passwordHash, err := HashPassword(newPassword, m.opts.BcryptCost)
	if err != nil {
		return InternalError("hash password", err)
	}
	if err := m.identities.UpdatePassword(ctx, identityID, passwordHash, m.clock.Now()); err != nil {
		return InternalError("update password", err)
	}

	keep := ""
	if currentSessionToken != "" {
		keep = HashToken(currentSessionToken)
	}
	if _, err := m.sessions.DeleteSessionsForIdentity(ctx, identityID, keep); err != nil {
		slog.WarnContext(ctx, "failed to revoke sessions after password change", "identity_id", identityID, "error", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Password reset
// ---------------------------------------------------------------------------

// RequestPasswordReset stores a reset token valid for PasswordResetTTL and
// emails the link. An invited team member who has not set a password yet is
// treated like an unknown email; the invite is their only way in.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return ValidationError("email: %s", err.Error())
	}

	identity, err := m.identities.GetIdentityByEmail(ctx, email)
	if err != nil {
		return InternalError("load identity", err)
	}
	if identity == nil || !identity.HasPassword() {
		if m.opts.UniformResetResponse {
			return nil
		}
		return NotFoundError("User with this email")
	}

	raw, err := GenerateToken()
	if err != nil {
		return InternalError("generate reset token", err)
	}

	now := m.clock.Now()
	expiresAt := now.Add(m.opts.PasswordResetTTL)
	if err := m.identities.SetPasswordResetToken(ctx, identity.ID, HashToken(raw), expiresAt, now); err != nil {
		return InternalError("store reset token", err)
	}

	telemetry.AuthEventsTotal.WithLabelValues("password_reset_request", "success").Inc()
	minutes := int(m.opts.PasswordResetTTL / time.Minute)
	m.notify(ctx, "password_reset", m.opts.Links.PasswordReset(identity.Email, identity.FullName(), raw, minutes))
	return nil
}

// ResetPassword consumes a reset token and sets a new password. An expired
// token is cleared and reported as ErrTokenExpired.
func (m *Manager) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if strings.TrimSpace(rawToken) == "" {
		return ValidationError("Password reset token is missing")
	}
	if err := validatePassword("password", newPassword); err != nil {
		return asValidation(err)
	}

	tokenHash := HashToken(rawToken)
	identity, err := m.identities.GetIdentityByResetTokenHash(ctx, tokenHash)
	if err != nil {
		return InternalError("load identity", err)
	}
	if identity == nil {
		telemetry.TokenConsumptionsTotal.WithLabelValues("password_reset", "invalid").Inc()
		return ErrInvalidToken
	}

	now := m.clock.Now()
	if identity.PasswordResetExpiresAt == nil || !now.Before(*identity.PasswordResetExpiresAt) {
		if err := m.identities.ClearPasswordResetToken(ctx, tokenHash); err != nil {
			return InternalError("clear expired reset token", err)
		}
		telemetry.TokenConsumptionsTotal.WithLabelValues("password_reset", "expired").Inc()
		return ErrTokenExpired
	}

	passwordHash, err := HashPassword(newPassword, m.opts.BcryptCost)
	if err != nil {
		return InternalError("hash password", err)
	}

	updated, err := m.identities.ConsumePasswordResetToken(ctx, tokenHash, passwordHash, now)
	if err != nil {
		return InternalError("consume reset token", err)
	}
	if !updated {
		telemetry.TokenConsumptionsTotal.WithLabelValues("password_reset", "invalid").Inc()
		return ErrInvalidToken
	}
	telemetry.TokenConsumptionsTotal.WithLabelValues("password_reset", "success").Inc()

	if _, err := m.sessions.DeleteSessionsForIdentity(ctx, identity.ID, ""); err != nil {
		slog.WarnContext(ctx, "failed to revoke sessions after password reset", "identity_id", identity.ID, "error", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (m *Manager) ensureEmailFree(ctx context.Context, email string) error {
	existing, err := m.identities.GetIdentityByEmail(ctx, email)
	if err != nil {
		return InternalError("load identity", err)
	}
	if existing != nil {
		return ConflictError("An account with this email already exists")
	}
	return nil
}

func (m *Manager) create(ctx context.Context, identity *models.Identity) error {
	err := m.identities.CreateIdentity(ctx, identity)
	if errors.Is(err, repositories.ErrDuplicate) {
		return ConflictError("An account with this email already exists")
	}
	if err != nil {
		return InternalError("create identity", err)
	}
	return nil
}

// notify sends msg and logs a failure. The state change that produced the
// token has already been committed and stays committed.
func (m *Manager) notify(ctx context.Context, kind string, msg notify.Message) {
	if err := m.notifier.Send(ctx, msg); err != nil {
		telemetry.NotificationFailuresTotal.WithLabelValues(kind).Inc()
		slog.WarnContext(ctx, "notification delivery failed", "kind", kind, "to", msg.To, "error", err)
		return
	}
	telemetry.NotificationsSentTotal.WithLabelValues(kind).Inc()
}
