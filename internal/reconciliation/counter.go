package reconciliation

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// UnbalancedCounter exposes unbalanced reconciliation counts for period close
// checks without leaking the full repository surface.
type UnbalancedCounter struct {
	repo Repository
}

// NewUnbalancedCounter wraps a reconciliation repository.
func NewUnbalancedCounter(repo Repository) (*UnbalancedCounter, error) {
	if repo == nil {
		return nil, fmt.Errorf("reconciliation repository required")
	}
	return &UnbalancedCounter{repo: repo}, nil
}

// CountUnbalanced returns how many of the period's bank reconciliations are
// still out of balance. Zero when the period has no reconciliations at all.
func (c *UnbalancedCounter) CountUnbalanced(ctx context.Context, tx *gorm.DB, year, month int) (int64, error) {
	return c.repo.WithTx(tx).CountUnbalancedForPeriod(ctx, year, month)
}
