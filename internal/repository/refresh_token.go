package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/habits/internal/model"
)

var ErrTokenNotFound = errors.New("refresh token not found")

type RefreshTokenRepository interface {
	Create(token *model.RefreshToken) error
	ConsumeToken(token string) (*model.RefreshToken, error)
	RevokeByUser(userID string) error
	CleanupExpired(olderThan time.Duration) (int64, error)
}

type refreshTokenRepository struct {
	db *sqlx.DB
}

func NewRefreshTokenRepository(db *sqlx.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(token *model.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(query,
		token.ID,
		token.UserID,
		token.Token,
		token.ExpiresAt,
		token.CreatedAt,
	)
	return err
}

// ConsumeToken marks token as used and returns it in one statement. Of two
// concurrent refreshes with the same token only one gets a row back.
func (r *refreshTokenRepository) ConsumeToken(token string) (*model.RefreshToken, error) {
	var t model.RefreshToken
	now := time.Now().UTC()

	query := `
		UPDATE refresh_tokens
		SET used_at = $1
		WHERE token = $2
		AND used_at IS NULL
		AND expires_at > $3
		RETURNING *
	`

	err := r.db.Get(&t, query, now, token, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// RevokeByUser marks every outstanding token of the user as used.
func (r *refreshTokenRepository) RevokeByUser(userID string) error {
	query := `UPDATE refresh_tokens SET used_at = $1 WHERE user_id = $2 AND used_at IS NULL`
	_, err := r.db.Exec(query, time.Now().UTC(), userID)
	return err
}

// CleanupExpired removes used and expired tokens older than olderThan.
func (r *refreshTokenRepository) CleanupExpired(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := `
		DELETE FROM refresh_tokens
		WHERE (used_at IS NOT NULL AND used_at < $1)
		   OR (expires_at < $1)
	`
	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
