// AngelaMos | 2026
// action_repo.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/edunlpx/identity/internal/core"
)

type ActionTokenRepository interface {
	Create(ctx context.Context, token *ActionToken) error
	Consume(
		ctx context.Context,
		tokenHash, purpose string,
	) (*ActionToken, error)
	InvalidateForUser(ctx context.Context, userID, purpose string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type actionTokenRepository struct {
	db core.DBTX
}

func NewActionTokenRepository(db core.DBTX) ActionTokenRepository {
	return &actionTokenRepository{db: db}
}

func (r *actionTokenRepository) Create(
	ctx context.Context,
	token *ActionToken,
) error {
	query := `
		INSERT INTO action_tokens (
			id, user_id, token_hash, purpose, expires_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &token.CreatedAt, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.Purpose,
		token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create action token: %w", err)
	}

	return nil
}

// Consume claims the token in a single conditional UPDATE so a token
// can be spent at most once even under concurrent submissions. On a
// failed claim the follow-up read distinguishes invalid, consumed, and
// expired tokens for the caller's error mapping.
func (r *actionTokenRepository) Consume(
	ctx context.Context,
	tokenHash, purpose string,
) (*ActionToken, error) {
	claim := `
		UPDATE action_tokens
		SET consumed_at = NOW()
		WHERE token_hash = $1
			AND purpose = $2
			AND consumed_at IS NULL
			AND expires_at > NOW()
		RETURNING
			id, user_id, token_hash, purpose,
			expires_at, consumed_at, created_at`

	var token ActionToken
	err := r.db.GetContext(ctx, &token, claim, tokenHash, purpose)
	if err == nil {
		return &token, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consume action token: %w", err)
	}

	lookup := `
		SELECT
			id, user_id, token_hash, purpose,
			expires_at, consumed_at, created_at
		FROM action_tokens
		WHERE token_hash = $1 AND purpose = $2`

	var existing ActionToken
	err = r.db.GetContext(ctx, &existing, lookup, tokenHash, purpose)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consume action token: %w", core.ErrTokenInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("consume action token: %w", err)
	}

	if existing.IsConsumed() {
		return nil, fmt.Errorf(
			"consume action token: %w",
			core.ErrTokenConsumed,
		)
	}

	return nil, fmt.Errorf("consume action token: %w", core.ErrTokenExpired)
}

// InvalidateForUser expires any outstanding tokens of the purpose, so
// issuing a fresh token leaves only one live token per user per purpose.
func (r *actionTokenRepository) InvalidateForUser(
	ctx context.Context,
	userID, purpose string,
) error {
	query := `
		UPDATE action_tokens
		SET consumed_at = NOW()
		WHERE user_id = $1
			AND purpose = $2
			AND consumed_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, userID, purpose)
	if err != nil {
		return fmt.Errorf("invalidate action tokens: %w", err)
	}

	return nil
}

func (r *actionTokenRepository) DeleteExpired(
	ctx context.Context,
) (int64, error) {
	query := `
		DELETE FROM action_tokens
		WHERE expires_at < $1`

	cutoff := time.Now().Add(-24 * time.Hour)

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired action tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired action tokens: %w", err)
	}

	return rows, nil
}
