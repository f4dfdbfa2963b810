// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/edunlpx/identity/internal/config"
	"github.com/edunlpx/identity/internal/core"
	"github.com/edunlpx/identity/internal/mail"
	"github.com/edunlpx/identity/internal/rbac"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenReuse         = errors.New("token reuse detected")
	ErrEmailExists        = errors.New("email already exists")
	ErrAccountInactive    = errors.New("account deactivated")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrInvalidRole        = errors.New("invalid role")
)

type UserInfo struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         string
	IsVerified   bool
	IsActive     bool
	TokenVersion int
	CreatedAt    time.Time
}

func (u *UserInfo) fullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}

type NewUserParams struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         string
}

type UserProvider interface {
	GetByEmail(ctx context.Context, email string) (*UserInfo, error)
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	Create(ctx context.Context, params NewUserParams) (*UserInfo, error)
	IncrementTokenVersion(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetVerified(ctx context.Context, userID string) error
}

const mailSendTimeout = 10 * time.Second

type Service struct {
	repo        Repository
	actions     ActionTokenRepository
	jwt         *JWTManager
	users       UserProvider
	denylist    Denylist
	mailer      mail.Mailer
	logger      *slog.Logger
	frontendURL string
	security    config.SecurityConfig
}

func NewService(
	repo Repository,
	actions ActionTokenRepository,
	jwtManager *JWTManager,
	users UserProvider,
	denylist Denylist,
	mailer mail.Mailer,
	logger *slog.Logger,
	frontendURL string,
	security config.SecurityConfig,
) *Service {
	return &Service{
		repo:        repo,
		actions:     actions,
		jwt:         jwtManager,
		users:       users,
		denylist:    denylist,
		mailer:      mailer,
		logger:      logger,
		frontendURL: frontendURL,
		security:    security,
	}
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
	userAgent, ipAddress string,
) (*AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // timing attack prevention - always verify to prevent enumeration
			_, _, _ = core.VerifyPasswordTimingSafe(req.Password, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	valid, newHash, err := core.VerifyPasswordTimingSafe(
		req.Password,
		&user.PasswordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if !valid {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if newHash != "" {
		//nolint:errcheck // best-effort rehash upgrade
		_ = s.users.UpdatePassword(ctx, user.ID, newHash)
	}

	return s.issueTokenPair(ctx, user, userAgent, ipAddress, "", "")
}

func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
	userAgent, ipAddress string,
) (*AuthResponse, error) {
	if err := core.ValidatePasswordStrength(req.Password); err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = rbac.RoleStudent
	}
	if !rbac.AssignableAtRegistration(role) {
		return nil, fmt.Errorf("register: role %q: %w", role, ErrInvalidRole)
	}

	passwordHash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, NewUserParams{
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.sendVerificationAsync(user)

	return s.issueTokenPair(ctx, user, userAgent, ipAddress, "", "")
}

// Refresh rotates a refresh token. The old token is claimed with a
// conditional update before the replacement pair is minted, so when two
// requests race on the same token exactly one wins and the loser trips
// the reuse path.
func (s *Service) Refresh(
	ctx context.Context,
	refreshToken, userAgent, ipAddress string,
) (*AuthResponse, error) {
	tokenHash := core.HashToken(refreshToken)

	storedToken, err := s.repo.FindByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("find token: %w", err)
	}

	if storedToken.IsUsed {
		s.logger.Warn("refresh token reuse detected, revoking family",
			"user_id", storedToken.UserID,
			"family_id", storedToken.FamilyID,
		)
		//nolint:errcheck // security revocation continues regardless
		_ = s.repo.RevokeByFamilyID(ctx, storedToken.FamilyID)
		return nil, ErrTokenReuse
	}

	if !storedToken.IsValid() {
		if storedToken.IsRevoked() {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenRevoked)
		}
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenExpired)
	}

	user, err := s.users.GetByID(ctx, storedToken.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	newTokenID := uuid.New().String()

	if err := s.repo.MarkAsUsed(ctx, storedToken.ID, newTokenID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // security revocation continues regardless
			_ = s.repo.RevokeByFamilyID(ctx, storedToken.FamilyID)
			return nil, ErrTokenReuse
		}
		return nil, fmt.Errorf("claim token: %w", err)
	}

	return s.issueTokenPair(
		ctx,
		user,
		userAgent,
		ipAddress,
		storedToken.FamilyID,
		newTokenID,
	)
}

func (s *Service) Logout(
	ctx context.Context,
	refreshToken, userID string,
) error {
	tokenHash := core.HashToken(refreshToken)

	storedToken, err := s.repo.FindByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find token: %w", err)
	}

	if storedToken.UserID != userID {
		return fmt.Errorf("logout: %w", core.ErrForbidden)
	}

	if err := s.repo.RevokeByID(ctx, storedToken.ID); err != nil &&
		!errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("revoke token: %w", err)
	}

	return nil
}

func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := s.repo.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke all tokens: %w", err)
	}

	if err := s.users.IncrementTokenVersion(ctx, userID); err != nil {
		return fmt.Errorf("increment token version: %w", err)
	}

	return nil
}

// RevokeAccessToken denylists the token's jti until its natural expiry.
func (s *Service) RevokeAccessToken(
	ctx context.Context,
	jti string,
	expiresAt time.Time,
) error {
	if err := s.denylist.Revoke(ctx, jti, time.Until(expiresAt)); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *Service) GetActiveSessions(
	ctx context.Context,
	userID string,
) ([]SessionInfo, error) {
	tokens, err := s.repo.GetActiveSessionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, SessionInfo{
			ID:        t.ID,
			UserAgent: t.UserAgent,
			IPAddress: t.IPAddress,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}

	return sessions, nil
}

func (s *Service) RevokeSession(
	ctx context.Context,
	userID, sessionID string,
) error {
	token, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}

	if token.UserID != userID {
		return fmt.Errorf("revoke session: %w", core.ErrForbidden)
	}

	if err := s.repo.RevokeByID(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	return nil
}

func (s *Service) ChangePassword(
	ctx context.Context,
	userID, currentPassword, newPassword string,
) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	valid, _, err := core.VerifyPasswordWithRehash(
		currentPassword,
		user.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}

	if !valid {
		return ErrInvalidCredentials
	}

	if err := core.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	newHash, err := core.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.LogoutAll(ctx, userID); err != nil {
		return fmt.Errorf("logout all: %w", err)
	}

	return nil
}

// SendVerificationEmail issues a fresh verification token. Any prior
// unconsumed token for the user is invalidated first.
func (s *Service) SendVerificationEmail(
	ctx context.Context,
	userID string,
) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if user.IsVerified {
		return ErrAlreadyVerified
	}

	token, err := s.issueActionToken(
		ctx,
		user.ID,
		PurposeEmailVerify,
		s.security.VerificationTokenExpire,
	)
	if err != nil {
		return err
	}

	msg := mail.VerificationEmail(
		s.frontendURL,
		user.fullName(),
		token,
		s.security.VerificationTokenExpire,
	)

	if err := s.mailer.Send(
		ctx,
		user.Email,
		msg.Subject,
		msg.HTMLBody,
		msg.TextBody,
	); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}

	return nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	tokenHash := core.HashToken(token)

	actionToken, err := s.actions.Consume(ctx, tokenHash, PurposeEmailVerify)
	if err != nil {
		return err
	}

	if err := s.users.SetVerified(ctx, actionToken.UserID); err != nil {
		return fmt.Errorf("set verified: %w", err)
	}

	return nil
}

// ForgotPassword never reports whether the email is registered. Unknown
// and inactive accounts fall through to the same silent success.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.logger.Debug("password reset for unknown email", "email", email)
			return nil
		}
		return fmt.Errorf("get user: %w", err)
	}

	if !user.IsActive {
		return nil
	}

	token, err := s.issueActionToken(
		ctx,
		user.ID,
		PurposePasswordReset,
		s.security.ResetTokenExpire,
	)
	if err != nil {
		return err
	}

	msg := mail.PasswordResetEmail(
		s.frontendURL,
		user.fullName(),
		token,
		s.security.ResetTokenExpire,
	)

	if err := s.mailer.Send(
		ctx,
		user.Email,
		msg.Subject,
		msg.HTMLBody,
		msg.TextBody,
	); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}

	return nil
}

func (s *Service) ResetPassword(
	ctx context.Context,
	token, newPassword string,
) error {
	if err := core.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	tokenHash := core.HashToken(token)

	actionToken, err := s.actions.Consume(ctx, tokenHash, PurposePasswordReset)
	if err != nil {
		return err
	}

	newHash, err := core.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(
		ctx,
		actionToken.UserID,
		newHash,
	); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if s.security.RevokeSessionsOnReset {
		if err := s.LogoutAll(ctx, actionToken.UserID); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
	}

	return nil
}

func (s *Service) GetCurrentUser(
	ctx context.Context,
	userID string,
) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Role:       user.Role,
		IsVerified: user.IsVerified,
		IsActive:   user.IsActive,
		CreatedAt:  user.CreatedAt,
	}, nil
}

// ValidateTokenVersion is the bulk-revocation gate the Verifier runs on
// every authenticated request. Tokens minted before the user's current
// token_version are dead regardless of their own expiry.
func (s *Service) ValidateTokenVersion(
	ctx context.Context,
	userID string,
	tokenVersion int,
) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if tokenVersion < user.TokenVersion {
		return fmt.Errorf("validate token version: %w", core.ErrTokenRevoked)
	}

	return nil
}

var _ VersionChecker = (*Service)(nil)

func (s *Service) issueActionToken(
	ctx context.Context,
	userID, purpose string,
	lifetime time.Duration,
) (string, error) {
	if err := s.actions.InvalidateForUser(ctx, userID, purpose); err != nil {
		return "", fmt.Errorf("invalidate prior tokens: %w", err)
	}

	token, err := core.GenerateOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("generate action token: %w", err)
	}

	entity := &ActionToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: core.HashToken(token),
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(lifetime),
	}

	if err := s.actions.Create(ctx, entity); err != nil {
		return "", fmt.Errorf("store action token: %w", err)
	}

	return token, nil
}

// sendVerificationAsync dispatches the post-registration verification
// email off the request path. Registration never fails on mail errors.
func (s *Service) sendVerificationAsync(user *UserInfo) {
	go func() {
		ctx, cancel := context.WithTimeout(
			context.Background(),
			mailSendTimeout,
		)
		defer cancel()

		if err := s.SendVerificationEmail(ctx, user.ID); err != nil {
			s.logger.Error("send verification email",
				"user_id", user.ID,
				"error", err,
			)
		}
	}()
}

func (s *Service) issueTokenPair(
	ctx context.Context,
	user *UserInfo,
	userAgent, ipAddress, familyID, tokenID string,
) (*AuthResponse, error) {
	accessToken, err := s.jwt.CreateAccessToken(AccessTokenClaims{
		UserID:       user.ID,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	refreshData, err := s.jwt.CreateRefreshToken(user.ID, familyID)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	if tokenID == "" {
		tokenID = uuid.New().String()
	}

	refreshTokenEntity := &RefreshToken{
		ID:        tokenID,
		UserID:    user.ID,
		TokenHash: refreshData.Hash,
		FamilyID:  refreshData.FamilyID,
		ExpiresAt: refreshData.ExpiresAt,
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}

	if err := s.repo.Create(ctx, refreshTokenEntity); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	accessExpire := s.jwt.AccessTokenExpire()

	return &AuthResponse{
		User: UserResponse{
			ID:         user.ID,
			Email:      user.Email,
			FirstName:  user.FirstName,
			LastName:   user.LastName,
			Role:       user.Role,
			IsVerified: user.IsVerified,
			IsActive:   user.IsActive,
			CreatedAt:  user.CreatedAt,
		},
		Tokens: TokenResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshData.Token,
			TokenType:    "Bearer",
			ExpiresIn:    int(accessExpire / time.Second),
			ExpiresAt:    time.Now().Add(accessExpire),
		},
	}, nil
}
