package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/leadgate/internal/errs"
	"github.com/and161185/leadgate/internal/model"
)

// MagnetRepo implements MagnetRepository using PostgreSQL.
type MagnetRepo struct{ db *DB }

// NewMagnetRepo constructs a lead-magnet request repository.
func NewMagnetRepo(db *DB) *MagnetRepo { return &MagnetRepo{db: db} }

// Create inserts a pending request.
func (r *MagnetRepo) Create(ctx context.Context, req *model.LeadMagnetRequest) error {
	if req.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		req.ID = id
	}
	meta := req.Meta
	if meta == nil {
		meta = model.Meta{}
	}
	const q = `
INSERT INTO lead_magnet_requests (id, email, magnet, token_hash, meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, req.ID, req.Email, req.Magnet, req.TokenHash, meta, req.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create magnet request: %w", err)
	}
	return nil
}

// Redeem consumes the request in a single conditional update so concurrent
// redemptions of one token cannot both succeed.
func (r *MagnetRepo) Redeem(ctx context.Context, tokenHash string, at time.Time) (string, error) {
	const q = `
UPDATE lead_magnet_requests
SET redeemed_at = $2, token_hash = NULL
WHERE token_hash = $1 AND redeemed_at IS NULL
RETURNING magnet`
	var magnet string
	if err := r.db.Pool.QueryRow(ctx, q, tokenHash, at).Scan(&magnet); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errs.ErrNotFound
		}
		return "", fmt.Errorf("redeem magnet: %w", err)
	}
	return magnet, nil
}
