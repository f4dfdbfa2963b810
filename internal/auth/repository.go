// AngelaMos | 2026
// repository.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edunlpx/identity/internal/core"
)

// Repository persists refresh tokens. Each row doubles as the session
// record shown to the user: user_agent and ip_address captured at issue
// time feed the sessions listing, and family_id ties every rotation of
// one login together so a replay can burn the whole lineage.
type Repository interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	FindByID(ctx context.Context, id string) (*RefreshToken, error)
	MarkAsUsed(ctx context.Context, id, replacedByID string) error
	RevokeByID(ctx context.Context, id string) error
	RevokeByFamilyID(ctx context.Context, familyID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	GetActiveSessionsForUser(
		ctx context.Context,
		userID string,
	) ([]RefreshToken, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

const refreshTokenCols = `
	id, user_id, token_hash, family_id, expires_at, created_at,
	is_used, used_at, revoked_at, replaced_by_id, user_agent, ip_address`

// Expired rows outlive their window by a day so a late replay of a
// rotated token still trips reuse detection instead of reading as a
// plain unknown token.
const expiredRowGrace = 24 * time.Hour

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, token *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, family_id, expires_at,
			user_agent, ip_address
		) VALUES (
			:id, :user_id, :token_hash, :family_id, :expires_at,
			:user_agent, :ip_address
		)
		RETURNING created_at`

	rows, err := sqlx.NamedQueryContext(ctx, r.db, query, token)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	if rows.Next() {
		if scanErr := rows.Scan(&token.CreatedAt); scanErr != nil {
			return fmt.Errorf("create refresh token: %w", scanErr)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}

	return nil
}

func (r *repository) FindByHash(
	ctx context.Context,
	tokenHash string,
) (*RefreshToken, error) {
	query := `
		SELECT` + refreshTokenCols + `
		FROM refresh_tokens
		WHERE token_hash = $1`

	return r.getToken(ctx, query, tokenHash)
}

func (r *repository) FindByID(
	ctx context.Context,
	id string,
) (*RefreshToken, error) {
	query := `
		SELECT` + refreshTokenCols + `
		FROM refresh_tokens
		WHERE id = $1`

	return r.getToken(ctx, query, id)
}

func (r *repository) getToken(
	ctx context.Context,
	query string,
	arg any,
) (*RefreshToken, error) {
	var token RefreshToken
	err := r.db.GetContext(ctx, &token, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	return &token, nil
}

// MarkAsUsed claims the token for rotation. The conditional WHERE makes
// the claim atomic: of two concurrent refreshes exactly one sees
// rows == 1, and the loser surfaces as ErrNotFound.
func (r *repository) MarkAsUsed(
	ctx context.Context,
	id, replacedByID string,
) error {
	query := `
		UPDATE refresh_tokens
		SET is_used = true, used_at = NOW(), replaced_by_id = $2
		WHERE id = $1 AND is_used = false`

	return r.execExpectRow(ctx, "mark refresh token as used", query,
		id, replacedByID)
}

// RevokeByID backs single-session logout and per-session revocation.
func (r *repository) RevokeByID(ctx context.Context, id string) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL`

	return r.execExpectRow(ctx, "revoke refresh token", query, id)
}

// RevokeByFamilyID is the replay response: once a rotated token shows
// up twice, every live descendant of that login is revoked with it.
func (r *repository) RevokeByFamilyID(
	ctx context.Context,
	familyID string,
) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE family_id = $1 AND revoked_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, familyID); err != nil {
		return fmt.Errorf("revoke token family: %w", err)
	}

	return nil
}

// RevokeAllForUser backs logout-all and the password change and reset
// flows. Zero affected rows is fine; the user may simply hold no live
// sessions.
func (r *repository) RevokeAllForUser(
	ctx context.Context,
	userID string,
) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke all user tokens: %w", err)
	}

	return nil
}

// GetActiveSessionsForUser lists rows still inside their window and
// neither rotated nor revoked. These are the sessions the user sees and
// can revoke one at a time.
func (r *repository) GetActiveSessionsForUser(
	ctx context.Context,
	userID string,
) ([]RefreshToken, error) {
	query := `
		SELECT` + refreshTokenCols + `
		FROM refresh_tokens
		WHERE user_id = $1
			AND revoked_at IS NULL
			AND is_used = false
			AND expires_at > NOW()
		ORDER BY created_at DESC`

	var tokens []RefreshToken
	if err := r.db.SelectContext(ctx, &tokens, query, userID); err != nil {
		return nil, fmt.Errorf("get active sessions: %w", err)
	}

	return tokens, nil
}

// DeleteExpired is the sweeper's entry point.
func (r *repository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1`

	cutoff := time.Now().Add(-expiredRowGrace)

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	return rows, nil
}

// execExpectRow runs a guarded UPDATE and converts "no row matched"
// into ErrNotFound so the service can tell a lost race from a DB error.
func (r *repository) execExpectRow(
	ctx context.Context,
	op, query string,
	args ...any,
) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	return nil
}
