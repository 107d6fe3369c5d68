package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// LockPolicy decides whether a write to a document is permitted.
type LockPolicy struct {
	store driven.DocumentStore
}

// NewLockPolicy creates a lock policy backed by the store's version history.
func NewLockPolicy(store driven.DocumentStore) *LockPolicy {
	return &LockPolicy{store: store}
}

// CheckWrite evaluates a proposed write. Only locked documents receiving a
// human write need the latest machine version, so other writes never touch
// the store.
func (p *LockPolicy) CheckWrite(
	ctx context.Context,
	state *domain.DocumentState,
	proposed string,
	origin domain.Origin,
) (domain.WriteDecision, error) {
	if !state.IsLocked || origin == domain.OriginMachine {
		return domain.Allow, nil
	}

	last, err := p.store.LatestMachineVersion(ctx, state.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.WriteDecision{}, fmt.Errorf("latest machine version: %w", err)
	}

	decision := domain.EvaluateWrite(state, last, proposed, origin)
	if !decision.Allowed {
		logger.Warn("blocked human edit on %s", state.Key())
	}
	return decision, nil
}
