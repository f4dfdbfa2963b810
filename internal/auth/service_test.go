// AngelaMos | 2026
// service_test.go

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edunlpx/identity/internal/core"
	"github.com/edunlpx/identity/internal/rbac"
)

func (e *testEnv) seedUser(
	t *testing.T,
	email, password, role string,
) *UserInfo {
	t.Helper()

	hash, err := core.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	user, err := e.users.Create(context.Background(), NewUserParams{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Alice",
		LastName:     "Nguyen",
		Role:         role,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (e *testEnv) waitForMail(t *testing.T, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.mailer.count() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d mails, got %d", want, e.mailer.count())
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)

	resp, err := env.service.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "Secur3Pass",
	}, "agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Error("login response missing tokens")
	}
	if resp.Tokens.TokenType != "Bearer" {
		t.Errorf("token type = %q, want Bearer", resp.Tokens.TokenType)
	}
	if resp.User.Email != "alice@example.com" {
		t.Errorf("user email = %q", resp.User.Email)
	}

	_, err = env.service.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "WrongPass1",
	}, "agent", "127.0.0.1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}

	// Unknown email yields the same error as a wrong password.
	_, err = env.service.Login(ctx, LoginRequest{
		Email:    "nobody@example.com",
		Password: "Secur3Pass",
	}, "agent", "127.0.0.1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginDeactivatedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)
	env.users.setActive(user.ID, false)

	_, err := env.service.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "Secur3Pass",
	}, "agent", "127.0.0.1")
	if !errors.Is(err, ErrAccountInactive) {
		t.Errorf("login error = %v, want ErrAccountInactive", err)
	}
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	resp := env.register(t, "alice@example.com", "Secur3Pass", "")

	if resp.User.Role != rbac.RoleStudent {
		t.Errorf("default role = %q, want student", resp.User.Role)
	}
	if resp.User.IsVerified {
		t.Error("new account should start unverified")
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Error("register response missing tokens")
	}

	env.waitForMail(t, 1)
	mail := env.mailer.last()
	if mail.To != "alice@example.com" {
		t.Errorf("verification mail to %q", mail.To)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []string{"short1", "alllowercase1", "NOLOWERCASE1", "NoDigits"}
	for _, password := range cases {
		_, err := env.service.Register(ctx, RegisterRequest{
			Email:     "alice@example.com",
			Password:  password,
			FirstName: "Alice",
			LastName:  "Nguyen",
		}, "agent", "127.0.0.1")
		if !errors.Is(err, core.ErrWeakPassword) {
			t.Errorf("password %q: error = %v, want ErrWeakPassword",
				password, err)
		}
	}
}

func TestRegisterRejectsPrivilegedRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, role := range []string{
		rbac.RoleSuperAdmin,
		rbac.RoleAdmin,
		rbac.RolePrincipal,
		rbac.RoleAccountant,
		rbac.RoleCoordinator,
		"made_up",
	} {
		_, err := env.service.Register(ctx, RegisterRequest{
			Email:     "alice@example.com",
			Password:  "Secur3Pass",
			FirstName: "Alice",
			LastName:  "Nguyen",
			Role:      role,
		}, "agent", "127.0.0.1")
		if !errors.Is(err, ErrInvalidRole) {
			t.Errorf("role %q: error = %v, want ErrInvalidRole", role, err)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice@example.com", "Secur3Pass", "")

	_, err := env.service.Register(ctx, RegisterRequest{
		Email:     "Alice@Example.com",
		Password:  "Secur3Pass",
		FirstName: "Alice",
		LastName:  "Nguyen",
	}, "agent", "127.0.0.1")
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("duplicate register error = %v, want ErrEmailExists", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)

	login, err := env.service.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "Secur3Pass",
	}, "agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	first := login.Tokens.RefreshToken

	rotated, err := env.service.Refresh(ctx, first, "agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.Tokens.RefreshToken == first {
		t.Error("rotation returned the same refresh token")
	}

	// Replaying the spent token revokes the whole family.
	_, err = env.service.Refresh(ctx, first, "agent", "127.0.0.1")
	if !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("replay error = %v, want ErrTokenReuse", err)
	}

	_, err = env.service.Refresh(
		ctx,
		rotated.Tokens.RefreshToken,
		"agent",
		"127.0.0.1",
	)
	if !errors.Is(err, core.ErrTokenRevoked) {
		t.Errorf(
			"descendant after reuse error = %v, want ErrTokenRevoked",
			err,
		)
	}
}

// Two refreshes racing on the same token must produce exactly one new
// pair; the conditional claim arbitrates and the loser trips the reuse
// path.
func TestConcurrentRefreshSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)

	login, err := env.service.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "Secur3Pass",
	}, "agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	token := login.Tokens.RefreshToken
	results := make(chan error, 2)

	for range 2 {
		go func() {
			_, refreshErr := env.service.Refresh(
				ctx,
				token,
				"agent",
				"127.0.0.1",
			)
			results <- refreshErr
		}()
	}

	var successes, reuseFailures int
	for range 2 {
		switch err := <-results; {
		case err == nil:
			successes++
		case errors.Is(err, ErrTokenReuse):
			reuseFailures++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}

	if successes != 1 || reuseFailures != 1 {
		t.Fatalf(
			"successes = %d, reuse failures = %d; want exactly one of each",
			successes,
			reuseFailures,
		)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Refresh(
		context.Background(),
		"not-a-real-token",
		"agent",
		"127.0.0.1",
	)
	if !errors.Is(err, core.ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)

	login, err := env.service.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "Secur3Pass",
	}, "agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.service.Logout(
		ctx,
		login.Tokens.RefreshToken,
		user.ID,
	); err != nil {
		t.Fatalf("logout: %v", err)
	}

	_, err = env.service.Refresh(
		ctx,
		login.Tokens.RefreshToken,
		"agent",
		"127.0.0.1",
	)
	if !errors.Is(err, core.ErrTokenRevoked) {
		t.Errorf("refresh after logout error = %v, want ErrTokenRevoked", err)
	}
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)
	bob := env.seedUser(t, "bob@example.com", "Secur3Pass", rbac.RoleStudent)

	login, err := env.service.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "Secur3Pass",
	}, "agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	err = env.service.Logout(ctx, login.Tokens.RefreshToken, bob.ID)
	if !errors.Is(err, core.ErrForbidden) {
		t.Errorf("cross-user logout error = %v, want ErrForbidden", err)
	}
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)

	for range 3 {
		if _, err := env.service.Login(ctx, LoginRequest{
			Email:    "alice@example.com",
			Password: "Secur3Pass",
		}, "agent", "127.0.0.1"); err != nil {
			t.Fatalf("login: %v", err)
		}
	}

	if err := env.service.LogoutAll(ctx, user.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}

	sessions, err := env.service.GetActiveSessions(ctx, user.ID)
	if err != nil {
		t.Fatalf("get sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("%d sessions remain after logout-all", len(sessions))
	}

	refreshed, err := env.users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed.TokenVersion != user.TokenVersion+1 {
		t.Errorf("token version = %d, want %d",
			refreshed.TokenVersion, user.TokenVersion+1)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)

	err := env.service.ChangePassword(ctx, user.ID, "WrongPass1", "NewSecur3Pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong current password error = %v", err)
	}

	err = env.service.ChangePassword(ctx, user.ID, "Secur3Pass", "weak")
	if !errors.Is(err, core.ErrWeakPassword) {
		t.Errorf("weak new password error = %v", err)
	}

	if err := env.service.ChangePassword(
		ctx,
		user.ID,
		"Secur3Pass",
		"NewSecur3Pass",
	); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := env.service.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "NewSecur3Pass",
	}, "agent", "127.0.0.1"); err != nil {
		t.Errorf("login with new password: %v", err)
	}

	_, err = env.service.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "Secur3Pass",
	}, "agent", "127.0.0.1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password still works: %v", err)
	}
}

func TestEmailVerificationFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)

	if err := env.service.SendVerificationEmail(ctx, user.ID); err != nil {
		t.Fatalf("send verification email: %v", err)
	}

	token := extractToken(t, env.mailer.last().TextBody)

	if err := env.service.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	verified, err := env.users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !verified.IsVerified {
		t.Error("user not marked verified")
	}

	// A token is single use.
	err = env.service.VerifyEmail(ctx, token)
	if !errors.Is(err, core.ErrTokenConsumed) {
		t.Errorf("second verify error = %v, want ErrTokenConsumed", err)
	}

	err = env.service.SendVerificationEmail(ctx, user.ID)
	if !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("resend after verify error = %v, want ErrAlreadyVerified", err)
	}
}

func TestReissueInvalidatesPriorVerificationToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)

	if err := env.service.SendVerificationEmail(ctx, user.ID); err != nil {
		t.Fatal(err)
	}
	firstToken := extractToken(t, env.mailer.last().TextBody)

	if err := env.service.SendVerificationEmail(ctx, user.ID); err != nil {
		t.Fatal(err)
	}
	secondToken := extractToken(t, env.mailer.last().TextBody)

	err := env.service.VerifyEmail(ctx, firstToken)
	if !errors.Is(err, core.ErrTokenConsumed) {
		t.Errorf("stale token error = %v, want ErrTokenConsumed", err)
	}

	if err := env.service.VerifyEmail(ctx, secondToken); err != nil {
		t.Errorf("fresh token verify: %v", err)
	}
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.service.ForgotPassword(ctx, "nobody@example.com"); err != nil {
		t.Errorf("unknown email error = %v, want nil", err)
	}
	if env.mailer.count() != 0 {
		t.Error("mail sent for unknown account")
	}

	user := env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)
	env.users.setActive(user.ID, false)

	if err := env.service.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Errorf("inactive account error = %v, want nil", err)
	}
	if env.mailer.count() != 0 {
		t.Error("mail sent for deactivated account")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)

	login, err := env.service.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "Secur3Pass",
	}, "agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.service.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	token := extractToken(t, env.mailer.last().TextBody)

	// A weak replacement is rejected before the token is spent.
	err = env.service.ResetPassword(ctx, token, "weak")
	if !errors.Is(err, core.ErrWeakPassword) {
		t.Fatalf("weak reset error = %v, want ErrWeakPassword", err)
	}

	if err := env.service.ResetPassword(ctx, token, "NewSecur3Pass"); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	if _, err := env.service.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "NewSecur3Pass",
	}, "agent", "127.0.0.1"); err != nil {
		t.Errorf("login with reset password: %v", err)
	}

	// Sessions issued before the reset are gone.
	_, err = env.service.Refresh(
		ctx,
		login.Tokens.RefreshToken,
		"agent",
		"127.0.0.1",
	)
	if !errors.Is(err, core.ErrTokenRevoked) {
		t.Errorf("pre-reset session error = %v, want ErrTokenRevoked", err)
	}

	err = env.service.ResetPassword(ctx, token, "AnotherSecur3Pass")
	if !errors.Is(err, core.ErrTokenConsumed) {
		t.Errorf("token replay error = %v, want ErrTokenConsumed", err)
	}
}

func TestResetPasswordInvalidToken(t *testing.T) {
	env := newTestEnv(t)

	err := env.service.ResetPassword(
		context.Background(),
		"bogus-token",
		"NewSecur3Pass",
	)
	if !errors.Is(err, core.ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerificationTokenCannotResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)

	if err := env.service.SendVerificationEmail(ctx, user.ID); err != nil {
		t.Fatal(err)
	}
	token := extractToken(t, env.mailer.last().TextBody)

	err := env.service.ResetPassword(ctx, token, "NewSecur3Pass")
	if !errors.Is(err, core.ErrTokenInvalid) {
		t.Errorf("cross-purpose token error = %v, want ErrTokenInvalid", err)
	}
}

func TestRevokeSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice@example.com", "Secur3Pass", rbac.RoleStudent)
	bob := env.seedUser(t, "bob@example.com", "Secur3Pass", rbac.RoleStudent)

	login, err := env.service.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "Secur3Pass",
	}, "agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	alice := login.User.ID

	sessions, err := env.service.GetActiveSessions(ctx, alice)
	if err != nil {
		t.Fatalf("get sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("%d sessions, want 1", len(sessions))
	}

	err = env.service.RevokeSession(ctx, bob.ID, sessions[0].ID)
	if !errors.Is(err, core.ErrForbidden) {
		t.Errorf("cross-user revoke error = %v, want ErrForbidden", err)
	}

	if err := env.service.RevokeSession(ctx, alice, sessions[0].ID); err != nil {
		t.Fatalf("revoke own session: %v", err)
	}

	sessions, err = env.service.GetActiveSessions(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("%d sessions remain", len(sessions))
	}
}
