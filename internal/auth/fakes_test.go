// AngelaMos | 2026
// fakes_test.go

package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/edunlpx/identity/internal/config"
	"github.com/edunlpx/identity/internal/core"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*UserInfo
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*UserInfo)}
}

func (f *fakeUserStore) GetByEmail(
	_ context.Context,
	email string,
) (*UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
}

func (f *fakeUserStore) GetByID(
	_ context.Context,
	id string,
) (*UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) Create(
	_ context.Context,
	params NewUserParams,
) (*UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	email := strings.ToLower(params.Email)
	for _, u := range f.users {
		if u.Email == email {
			return nil, fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
	}

	u := &UserInfo{
		ID:           uuid.New().String(),
		Email:        email,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	f.users[u.ID] = u

	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) IncrementTokenVersion(
	_ context.Context,
	userID string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	u.TokenVersion++
	return nil
}

func (f *fakeUserStore) UpdatePassword(
	_ context.Context,
	userID, passwordHash string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUserStore) SetVerified(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	u.IsVerified = true
	return nil
}

func (f *fakeUserStore) setActive(userID string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		u.IsActive = active
	}
}

type fakeRefreshRepo struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: make(map[string]*RefreshToken)}
}

func (f *fakeRefreshRepo) Create(_ context.Context, token *RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	token.CreatedAt = time.Now()
	cp := *token
	f.tokens[token.ID] = &cp
	return nil
}

func (f *fakeRefreshRepo) FindByHash(
	_ context.Context,
	tokenHash string,
) (*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.tokens {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
}

func (f *fakeRefreshRepo) FindByID(
	_ context.Context,
	id string,
) (*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tokens[id]
	if !ok {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRefreshRepo) MarkAsUsed(
	_ context.Context,
	id, replacedByID string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tokens[id]
	if !ok || t.IsUsed {
		return fmt.Errorf("mark refresh token as used: %w", core.ErrNotFound)
	}

	now := time.Now()
	t.IsUsed = true
	t.UsedAt = &now
	t.ReplacedByID = &replacedByID
	return nil
}

func (f *fakeRefreshRepo) RevokeByID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tokens[id]
	if !ok || t.RevokedAt != nil {
		return fmt.Errorf("revoke refresh token: %w", core.ErrNotFound)
	}
	now := time.Now()
	t.RevokedAt = &now
	return nil
}

func (f *fakeRefreshRepo) RevokeByFamilyID(
	_ context.Context,
	familyID string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for _, t := range f.tokens {
		if t.FamilyID == familyID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (f *fakeRefreshRepo) RevokeAllForUser(
	_ context.Context,
	userID string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for _, t := range f.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (f *fakeRefreshRepo) GetActiveSessionsForUser(
	_ context.Context,
	userID string,
) ([]RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sessions []RefreshToken
	for _, t := range f.tokens {
		if t.UserID == userID && t.IsValid() {
			sessions = append(sessions, *t)
		}
	}
	return sessions, nil
}

func (f *fakeRefreshRepo) DeleteExpired(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var deleted int64
	for id, t := range f.tokens {
		if time.Now().After(t.ExpiresAt) {
			delete(f.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeActionRepo struct {
	mu     sync.Mutex
	tokens map[string]*ActionToken
}

func newFakeActionRepo() *fakeActionRepo {
	return &fakeActionRepo{tokens: make(map[string]*ActionToken)}
}

func (f *fakeActionRepo) Create(_ context.Context, token *ActionToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	token.CreatedAt = time.Now()
	cp := *token
	f.tokens[token.ID] = &cp
	return nil
}

func (f *fakeActionRepo) Consume(
	_ context.Context,
	tokenHash, purpose string,
) (*ActionToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.tokens {
		if t.TokenHash != tokenHash || t.Purpose != purpose {
			continue
		}
		if t.ConsumedAt != nil {
			return nil, fmt.Errorf(
				"consume action token: %w",
				core.ErrTokenConsumed,
			)
		}
		if time.Now().After(t.ExpiresAt) {
			return nil, fmt.Errorf(
				"consume action token: %w",
				core.ErrTokenExpired,
			)
		}
		now := time.Now()
		t.ConsumedAt = &now
		cp := *t
		return &cp, nil
	}

	return nil, fmt.Errorf("consume action token: %w", core.ErrTokenInvalid)
}

func (f *fakeActionRepo) InvalidateForUser(
	_ context.Context,
	userID, purpose string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for _, t := range f.tokens {
		if t.UserID == userID && t.Purpose == purpose && t.ConsumedAt == nil {
			t.ConsumedAt = &now
		}
	}
	return nil
}

func (f *fakeActionRepo) DeleteExpired(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var deleted int64
	for id, t := range f.tokens {
		if time.Now().After(t.ExpiresAt) {
			delete(f.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

type sentMail struct {
	To       string
	Subject  string
	TextBody string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (f *fakeMailer) Send(
	_ context.Context,
	to, subject, _, textBody string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, TextBody: textBody})
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMailer) last() sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMail{}
	}
	return f.sent[len(f.sent)-1]
}

// extractToken pulls the token query parameter out of the action link
// embedded in an email body.
func extractToken(t *testing.T, body string) string {
	t.Helper()

	idx := strings.Index(body, "token=")
	if idx < 0 {
		t.Fatalf("no token link in mail body: %q", body)
	}

	rest := body[idx+len("token="):]
	if end := strings.IndexAny(rest, " \n\t"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

type testEnv struct {
	service  *Service
	jwt      *JWTManager
	users    *fakeUserStore
	refresh  *fakeRefreshRepo
	actions  *fakeActionRepo
	mailer   *fakeMailer
	denylist *MemoryDenylist
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	privatePath := filepath.Join(dir, "private.pem")
	publicPath := filepath.Join(dir, "public.pem")

	if err := GenerateKeyPair(privatePath, publicPath); err != nil {
		t.Fatalf("generate key pair: %v", err)
	}

	jwtManager, err := NewJWTManager(config.JWTConfig{
		PrivateKeyPath:     privatePath,
		PublicKeyPath:      publicPath,
		AccessTokenExpire:  15 * time.Minute,
		RefreshTokenExpire: 168 * time.Hour,
		Issuer:             "identity-service",
		Audience:           "edunlpx-api",
	})
	if err != nil {
		t.Fatalf("new jwt manager: %v", err)
	}

	users := newFakeUserStore()
	refresh := newFakeRefreshRepo()
	actions := newFakeActionRepo()
	mailer := &fakeMailer{}
	denylist := NewMemoryDenylist()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := NewService(
		refresh,
		actions,
		jwtManager,
		users,
		denylist,
		mailer,
		logger,
		"http://localhost:3000",
		config.SecurityConfig{
			VerificationTokenExpire: 24 * time.Hour,
			ResetTokenExpire:        time.Hour,
			RevokeSessionsOnReset:   true,
			TokenSweepInterval:      time.Hour,
		},
	)

	return &testEnv{
		service:  service,
		jwt:      jwtManager,
		users:    users,
		refresh:  refresh,
		actions:  actions,
		mailer:   mailer,
		denylist: denylist,
	}
}

func (e *testEnv) register(
	t *testing.T,
	email, password, role string,
) *AuthResponse {
	t.Helper()

	resp, err := e.service.Register(context.Background(), RegisterRequest{
		Email:     email,
		Password:  password,
		FirstName: "Alice",
		LastName:  "Nguyen",
		Role:      role,
	}, "test-agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return resp
}

var _ UserProvider = (*fakeUserStore)(nil)
var _ Repository = (*fakeRefreshRepo)(nil)
var _ ActionTokenRepository = (*fakeActionRepo)(nil)
