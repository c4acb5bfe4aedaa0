package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/leadgate/internal/errs"
	"github.com/and161185/leadgate/internal/model"
)

// LeadRepo implements LeadRepository using PostgreSQL.
type LeadRepo struct{ db *DB }

// NewLeadRepo constructs a lead repository.
func NewLeadRepo(db *DB) *LeadRepo { return &LeadRepo{db: db} }

// Upsert writes the lead in one statement; a resubmission for the same
// (email, source) overwrites every mutable column.
func (r *LeadRepo) Upsert(ctx context.Context, l *model.Lead) (uuid.UUID, error) {
	if l.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, err
		}
		l.ID = id
	}
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	meta := l.Meta
	if meta == nil {
		meta = model.Meta{}
	}

	const q = `
INSERT INTO leads (id, email, source, name, company, message, page_path, tags, consent, meta,
                   confirmed, confirmed_at, token_hash, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
ON CONFLICT (email, source) DO UPDATE SET
  name = EXCLUDED.name,
  company = EXCLUDED.company,
  message = EXCLUDED.message,
  page_path = EXCLUDED.page_path,
  tags = EXCLUDED.tags,
  consent = EXCLUDED.consent,
  meta = EXCLUDED.meta,
  confirmed = EXCLUDED.confirmed,
  confirmed_at = EXCLUDED.confirmed_at,
  token_hash = EXCLUDED.token_hash,
  updated_at = EXCLUDED.updated_at
RETURNING id`
	var id uuid.UUID
	err := r.db.Pool.QueryRow(ctx, q,
		l.ID, l.Email, string(l.Source),
		nullable(l.Name), nullable(l.Company), nullable(l.Message), nullable(l.PagePath),
		tags, l.Consent, meta,
		l.Confirmed, l.ConfirmedAt, l.TokenHash, l.CreatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("upsert lead: %w", errs.ErrAlreadyExists)
		}
		return uuid.Nil, fmt.Errorf("upsert lead: %w", err)
	}
	l.ID = id
	return id, nil
}

// ConfirmNewsletter confirms the pending newsletter lead holding tokenHash.
func (r *LeadRepo) ConfirmNewsletter(ctx context.Context, tokenHash string, at time.Time) error {
	const q = `
UPDATE leads
SET confirmed = true, confirmed_at = $2, token_hash = NULL, updated_at = $2
WHERE source = 'newsletter' AND token_hash = $1`
	tag, err := r.db.Pool.Exec(ctx, q, tokenHash, at)
	if err != nil {
		return fmt.Errorf("confirm newsletter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// List returns up to limit leads, newest first.
func (r *LeadRepo) List(ctx context.Context, source model.Source, limit int) ([]model.Lead, error) {
	const q = `
SELECT id, email, source, name, company, message, page_path, tags, consent, meta,
       confirmed, confirmed_at, created_at, updated_at
FROM leads
WHERE ($1 = '' OR source = $1)
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, string(source), limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	out := make([]model.Lead, 0, limit)
	for rows.Next() {
		var l model.Lead
		var src string
		var name, company, message, pagePath *string
		if err := rows.Scan(&l.ID, &l.Email, &src, &name, &company, &message, &pagePath,
			&l.Tags, &l.Consent, &l.Meta, &l.Confirmed, &l.ConfirmedAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		l.Source = model.Source(src)
		l.Name, l.Company, l.Message, l.PagePath = deref(name), deref(company), deref(message), deref(pagePath)
		out = append(out, l)
	}
	return out, rows.Err()
}
