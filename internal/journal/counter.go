package journal

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/clearledger/backoffice/pkg/enums"
)

// DraftCounter exposes draft counts for period close checks without leaking
// the full repository surface.
type DraftCounter struct {
	repo Repository
}

// NewDraftCounter wraps a journal repository.
func NewDraftCounter(repo Repository) (*DraftCounter, error) {
	if repo == nil {
		return nil, fmt.Errorf("journal repository required")
	}
	return &DraftCounter{repo: repo}, nil
}

// CountDrafts returns the number of draft entries in the period.
func (c *DraftCounter) CountDrafts(ctx context.Context, tx *gorm.DB, year, month int) (int64, error) {
	return c.repo.WithTx(tx).CountByStatusForPeriod(ctx, year, month, enums.JournalEntryStatusDraft)
}
