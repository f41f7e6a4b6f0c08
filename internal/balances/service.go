package balances

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/internal/accounts"
	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
	apperrors "github.com/clearledger/backoffice/pkg/errors"
)

// Service derives per-account period balances from posted journal activity.
//
// Opening balances chain across periods: a period's opening is the previous
// period's closing snapshot, so snapshots must be written in period order.
type Service interface {
	ComputeForPeriod(ctx context.Context, tx *gorm.DB, year, month int) ([]models.AccountBalance, error)
	ComputeYear(ctx context.Context, tx *gorm.DB, year int) ([]models.AccountBalance, error)
	SnapshotPeriod(ctx context.Context, tx *gorm.DB, year, month int) ([]models.AccountBalance, error)
	GetSnapshot(ctx context.Context, year, month int) ([]models.AccountBalance, error)
	MarkStale(ctx context.Context, tx *gorm.DB, year, month int) error
}

type service struct {
	repo        Repository
	accountRepo accounts.Repository
}

// NewService wires the balance engine with its repositories.
func NewService(repo Repository, accountRepo accounts.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("balances repository required")
	}
	if accountRepo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	return &service{repo: repo, accountRepo: accountRepo}, nil
}

// ComputeForPeriod aggregates posted lines for the period on top of the prior
// period's closing snapshot. Sums run in Go over decimals so the result is
// identical across database engines.
func (s *service) ComputeForPeriod(ctx context.Context, tx *gorm.DB, year, month int) ([]models.AccountBalance, error) {
	if month < 1 || month > 12 {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid fiscal month %d", month))
	}

	repo := s.repo.WithTx(tx)

	prevYear, prevMonth := previousPeriod(year, month)
	opening := make(map[uuid.UUID]decimal.Decimal)
	prior, err := repo.FindForPeriod(ctx, prevYear, prevMonth)
	if err != nil {
		return nil, err
	}
	for _, row := range prior {
		opening[row.AccountID] = row.ClosingBalance
	}

	return s.computeWithOpening(ctx, tx, year, month, opening)
}

// ComputeYear walks January through December carrying each month's computed
// closing into the next month's opening, without requiring intermediate
// snapshots. January's opening comes from December of the prior year.
func (s *service) ComputeYear(ctx context.Context, tx *gorm.DB, year int) ([]models.AccountBalance, error) {
	repo := s.repo.WithTx(tx)

	opening := make(map[uuid.UUID]decimal.Decimal)
	prior, err := repo.FindForPeriod(ctx, year-1, 12)
	if err != nil {
		return nil, err
	}
	for _, row := range prior {
		opening[row.AccountID] = row.ClosingBalance
	}

	var result []models.AccountBalance
	for month := 1; month <= 12; month++ {
		rows, err := s.computeWithOpening(ctx, tx, year, month, opening)
		if err != nil {
			return nil, err
		}
		opening = make(map[uuid.UUID]decimal.Decimal, len(rows))
		for _, row := range rows {
			opening[row.AccountID] = row.ClosingBalance
		}
		result = append(result, rows...)
	}
	return result, nil
}

func (s *service) computeWithOpening(ctx context.Context, tx *gorm.DB, year, month int, opening map[uuid.UUID]decimal.Decimal) ([]models.AccountBalance, error) {
	repo := s.repo.WithTx(tx)
	accountRepo := s.accountRepo.WithTx(tx)

	lines, err := repo.ListPostedLines(ctx, year, month)
	if err != nil {
		return nil, err
	}

	type totals struct {
		debit  decimal.Decimal
		credit decimal.Decimal
	}
	activity := make(map[uuid.UUID]*totals)
	for _, line := range lines {
		t, ok := activity[line.AccountID]
		if !ok {
			t = &totals{debit: decimal.Zero, credit: decimal.Zero}
			activity[line.AccountID] = t
		}
		if line.Direction == enums.LineDirectionDebit {
			t.debit = t.debit.Add(line.Amount)
		} else {
			t.credit = t.credit.Add(line.Amount)
		}
	}

	involved := make(map[uuid.UUID]bool)
	for id := range opening {
		involved[id] = true
	}
	for id := range activity {
		involved[id] = true
	}

	normals := make(map[uuid.UUID]enums.NormalBalance, len(involved))
	all, err := accountRepo.List(ctx, accounts.ListFilter{})
	if err != nil {
		return nil, err
	}
	for _, account := range all {
		normals[account.ID] = account.NormalBalance
	}

	result := make([]models.AccountBalance, 0, len(involved))
	for id := range involved {
		open := opening[id]
		debit, credit := decimal.Zero, decimal.Zero
		if t, ok := activity[id]; ok {
			debit, credit = t.debit, t.credit
		}

		net := debit.Sub(credit)
		if normals[id] == enums.NormalBalanceCredit {
			net = credit.Sub(debit)
		}

		result = append(result, models.AccountBalance{
			AccountID:      id,
			FiscalYear:     year,
			FiscalMonth:    month,
			OpeningBalance: open,
			DebitTotal:     debit,
			CreditTotal:    credit,
			ClosingBalance: open.Add(net),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AccountID.String() < result[j].AccountID.String()
	})
	return result, nil
}

// SnapshotPeriod computes the period and persists the rows, replacing any
// stale snapshot left behind by a reopen.
func (s *service) SnapshotPeriod(ctx context.Context, tx *gorm.DB, year, month int) ([]models.AccountBalance, error) {
	computed, err := s.ComputeForPeriod(ctx, tx, year, month)
	if err != nil {
		return nil, err
	}
	if err := s.repo.WithTx(tx).Upsert(ctx, computed); err != nil {
		return nil, err
	}
	return computed, nil
}

func (s *service) GetSnapshot(ctx context.Context, year, month int) ([]models.AccountBalance, error) {
	return s.repo.FindForPeriod(ctx, year, month)
}

func (s *service) MarkStale(ctx context.Context, tx *gorm.DB, year, month int) error {
	return s.repo.WithTx(tx).MarkStaleForPeriod(ctx, year, month)
}

func previousPeriod(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}
