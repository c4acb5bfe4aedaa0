package limiter

import (
	"context"

	"go.uber.org/zap"
)

// Fallback answers from the primary limiter and degrades to the local one
// while the primary is failing.
type Fallback struct {
	primary Limiter
	local   Limiter
	log     *zap.Logger
}

// NewFallback wraps primary with a process-local fallback.
func NewFallback(primary, local Limiter, log *zap.Logger) *Fallback {
	return &Fallback{primary: primary, local: local, log: log}
}

// Allow implements Limiter.
func (f *Fallback) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := f.primary.Allow(ctx, key)
	if err == nil {
		return ok, nil
	}
	f.log.Warn("shared rate limiter unavailable; using local limiter", zap.Error(err))
	return f.local.Allow(ctx, key)
}
