package repository

import (
	"context"
	"time"

	"github.com/and161185/leadgate/internal/model"
)

// MagnetRepository stores lead-magnet delivery requests.
type MagnetRepository interface {
	// Create inserts a pending request.
	Create(ctx context.Context, r *model.LeadMagnetRequest) error
	// Redeem consumes the request holding tokenHash and returns its magnet id.
	// A token redeems at most once; later calls return errs.ErrNotFound.
	Redeem(ctx context.Context, tokenHash string, at time.Time) (string, error)
}
