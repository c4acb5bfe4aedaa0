// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/leadgate/internal/model"
)

// LeadRepository stores one lead per (email, source).
type LeadRepository interface {
	// Upsert inserts the lead or overwrites the existing (email, source) row and returns its ID.
	Upsert(ctx context.Context, l *model.Lead) (uuid.UUID, error)
	// ConfirmNewsletter marks the newsletter lead holding tokenHash confirmed and clears the hash.
	// Returns errs.ErrNotFound when no pending lead matches.
	ConfirmNewsletter(ctx context.Context, tokenHash string, at time.Time) error
	// List returns leads newest first; an empty source lists every source.
	List(ctx context.Context, source model.Source, limit int) ([]model.Lead, error)
}
