package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/internal/accounts"
	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
	apperrors "github.com/clearledger/backoffice/pkg/errors"
	"github.com/clearledger/backoffice/pkg/outbox"
	"github.com/clearledger/backoffice/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// DraftCounter reports how many draft entries a period still holds.
type DraftCounter interface {
	CountDrafts(ctx context.Context, tx *gorm.DB, year, month int) (int64, error)
}

// BalanceEngine computes, snapshots and invalidates per-period account
// balances.
type BalanceEngine interface {
	ComputeForPeriod(ctx context.Context, tx *gorm.DB, year, month int) ([]models.AccountBalance, error)
	SnapshotPeriod(ctx context.Context, tx *gorm.DB, year, month int) ([]models.AccountBalance, error)
	MarkStale(ctx context.Context, tx *gorm.DB, year, month int) error
}

// ReconciliationChecker reports how many of a period's bank reconciliations
// are still out of balance.
type ReconciliationChecker interface {
	CountUnbalanced(ctx context.Context, tx *gorm.DB, year, month int) (int64, error)
}

// CloseBlocker names one unmet precondition of a period close.
type CloseBlocker struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

const (
	// BlockerPreviousPeriodOpen means an earlier period is not settled yet.
	BlockerPreviousPeriodOpen = "previous_period_open"
	// BlockerDraftEntries means the period still holds draft journal entries.
	BlockerDraftEntries = "draft_entries"
	// BlockerTrialBalance means period debits and credits do not net to zero.
	BlockerTrialBalance = "trial_balance_out_of_balance"
	// BlockerUnbalancedReconciliations means a bank reconciliation for the
	// period has not been balanced.
	BlockerUnbalancedReconciliations = "unbalanced_reconciliations"
)

var closeTolerance = decimal.RequireFromString("0.01")

// Service manages the fiscal period lifecycle: Open -> Closed -> Locked, with
// Closed -> Open via a justified reopen. Periods close strictly in sequence.
type Service interface {
	Open(ctx context.Context, year, month int) (*models.FiscalPeriod, error)
	Get(ctx context.Context, year, month int) (*models.FiscalPeriod, error)
	List(ctx context.Context, year *int) ([]models.FiscalPeriod, error)
	CloseChecklist(ctx context.Context, year, month int) ([]CloseBlocker, error)
	Close(ctx context.Context, year, month int, closedBy string, actor *outbox.ActorRef) (*models.FiscalPeriod, error)
	Reopen(ctx context.Context, year, month int, reason, reopenedBy string, actor *outbox.ActorRef) (*models.FiscalPeriod, error)
	Lock(ctx context.Context, year, month int) (*models.FiscalPeriod, error)

	EnsurePostable(ctx context.Context, tx *gorm.DB, year, month int) error
	IsSettled(ctx context.Context, tx *gorm.DB, year, month int) (bool, error)
}

type service struct {
	repo        Repository
	accountRepo accounts.Repository
	drafts      DraftCounter
	balances    BalanceEngine
	recons      ReconciliationChecker
	tx          txRunner
	outbox      outboxPublisher
}

// NewService wires the period service with its collaborators.
func NewService(repo Repository, accountRepo accounts.Repository, drafts DraftCounter, balances BalanceEngine, recons ReconciliationChecker, tx txRunner, publisher outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("periods repository required")
	}
	if accountRepo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if drafts == nil {
		return nil, fmt.Errorf("draft counter required")
	}
	if balances == nil {
		return nil, fmt.Errorf("balance engine required")
	}
	if recons == nil {
		return nil, fmt.Errorf("reconciliation checker required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:        repo,
		accountRepo: accountRepo,
		drafts:      drafts,
		balances:    balances,
		recons:      recons,
		tx:          tx,
		outbox:      publisher,
	}, nil
}

func (s *service) Open(ctx context.Context, year, month int) (*models.FiscalPeriod, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	existing, err := s.repo.FindByYearMonth(ctx, year, month)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.New(apperrors.CodeConflict,
			fmt.Sprintf("fiscal period %04d-%02d already exists", year, month))
	}
	period := &models.FiscalPeriod{
		ID:          uuid.New(),
		FiscalYear:  year,
		FiscalMonth: month,
		Status:      enums.FiscalPeriodStatusOpen,
		Version:     1,
	}
	if err := s.repo.Create(ctx, period); err != nil {
		return nil, err
	}
	return period, nil
}

func (s *service) Get(ctx context.Context, year, month int) (*models.FiscalPeriod, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	period, err := s.repo.FindByYearMonth(ctx, year, month)
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, apperrors.New(apperrors.CodeNotFound,
			fmt.Sprintf("fiscal period %04d-%02d not found", year, month))
	}
	return period, nil
}

func (s *service) List(ctx context.Context, year *int) ([]models.FiscalPeriod, error) {
	return s.repo.List(ctx, year)
}

// CloseChecklist evaluates the close preconditions without mutating the
// period. An empty slice means the period can close right now.
func (s *service) CloseChecklist(ctx context.Context, year, month int) ([]CloseBlocker, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	var blockers []CloseBlocker
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.WithTx(tx).FindByYearMonth(ctx, year, month)
		if err != nil {
			return err
		}
		if found == nil {
			return apperrors.New(apperrors.CodeNotFound,
				fmt.Sprintf("fiscal period %04d-%02d not found", year, month))
		}
		if found.Status != enums.FiscalPeriodStatusOpen {
			return apperrors.New(apperrors.CodeStateConflict,
				fmt.Sprintf("period in status %s has no close checklist", found.Status))
		}
		blockers, err = s.closeBlockers(ctx, tx, found)
		return err
	})
	if err != nil {
		return nil, err
	}
	if blockers == nil {
		blockers = []CloseBlocker{}
	}
	return blockers, nil
}

// Close settles a period. The checklist runs inside the transaction so a
// racing draft or reopen cannot slip between check and commit.
func (s *service) Close(ctx context.Context, year, month int, closedBy string, actor *outbox.ActorRef) (*models.FiscalPeriod, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	if closedBy == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "closed_by is required")
	}

	var period *models.FiscalPeriod
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		found, err := txRepo.FindByYearMonth(ctx, year, month)
		if err != nil {
			return err
		}
		if found == nil {
			return apperrors.New(apperrors.CodeNotFound,
				fmt.Sprintf("fiscal period %04d-%02d not found", year, month))
		}
		if found.Status != enums.FiscalPeriodStatusOpen {
			return apperrors.New(apperrors.CodeStateConflict,
				fmt.Sprintf("cannot close period in status %s", found.Status))
		}

		blockers, err := s.closeBlockers(ctx, tx, found)
		if err != nil {
			return err
		}
		if len(blockers) > 0 {
			return apperrors.New(apperrors.CodeStateConflict,
				fmt.Sprintf("period %s cannot be closed", found.Label())).
				WithDetails(map[string]any{"blockers": blockers})
		}

		snapshot, err := s.balances.SnapshotPeriod(ctx, tx, year, month)
		if err != nil {
			return err
		}

		now := time.Now()
		expected := found.Version
		found.Status = enums.FiscalPeriodStatusClosed
		found.ClosedAt = &now
		found.ClosedBy = &closedBy
		if err := txRepo.SaveStatusCAS(ctx, found, expected); err != nil {
			return err
		}

		final, err := s.finalBalances(ctx, tx, snapshot)
		if err != nil {
			return err
		}

		period = found
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFiscalPeriodClosed,
			AggregateType: enums.AggregateFiscalPeriod,
			AggregateID:   found.ID,
			Actor:         actor,
			Version:       1,
			Data: payloads.FiscalPeriodClosedEvent{
				PeriodID:      found.ID,
				FiscalYear:    year,
				FiscalMonth:   month,
				ClosedBy:      closedBy,
				ClosedAt:      now,
				FinalBalances: final,
			},
		})
	})
	if err != nil {
		return nil, translateVersionConflict(err)
	}
	return period, nil
}

func (s *service) closeBlockers(ctx context.Context, tx *gorm.DB, period *models.FiscalPeriod) ([]CloseBlocker, error) {
	var blockers []CloseBlocker

	// Any earlier open period blocks, not just the immediate predecessor:
	// closing months out of order would fix opening balances prematurely.
	earlier, err := s.repo.WithTx(tx).FirstUnsettledBefore(ctx, period.FiscalYear, period.FiscalMonth)
	if err != nil {
		return nil, err
	}
	if earlier != nil {
		blockers = append(blockers, CloseBlocker{
			Code:   BlockerPreviousPeriodOpen,
			Detail: fmt.Sprintf("period %s must be closed first", earlier.Label()),
		})
	}

	draftCount, err := s.drafts.CountDrafts(ctx, tx, period.FiscalYear, period.FiscalMonth)
	if err != nil {
		return nil, err
	}
	if draftCount > 0 {
		blockers = append(blockers, CloseBlocker{
			Code:   BlockerDraftEntries,
			Detail: fmt.Sprintf("%d draft entries must be posted or deleted", draftCount),
		})
	}

	totalDebit, totalCredit, err := s.trialBalanceTotals(ctx, tx, period.FiscalYear, period.FiscalMonth)
	if err != nil {
		return nil, err
	}
	if diff := totalDebit.Sub(totalCredit); diff.Abs().GreaterThan(closeTolerance) {
		blockers = append(blockers, CloseBlocker{
			Code:   BlockerTrialBalance,
			Detail: fmt.Sprintf("trial balance is off by %s (debits %s, credits %s)", diff, totalDebit, totalCredit),
		})
	}

	unbalanced, err := s.recons.CountUnbalanced(ctx, tx, period.FiscalYear, period.FiscalMonth)
	if err != nil {
		return nil, err
	}
	if unbalanced > 0 {
		blockers = append(blockers, CloseBlocker{
			Code:   BlockerUnbalancedReconciliations,
			Detail: fmt.Sprintf("%d bank reconciliations are out of balance", unbalanced),
		})
	}

	return blockers, nil
}

// trialBalanceTotals folds the period's closing balances into debit and credit
// columns on each account's normal side.
func (s *service) trialBalanceTotals(ctx context.Context, tx *gorm.DB, year, month int) (decimal.Decimal, decimal.Decimal, error) {
	rows, err := s.balances.ComputeForPeriod(ctx, tx, year, month)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	all, err := s.accountRepo.WithTx(tx).List(ctx, accounts.ListFilter{})
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	normals := make(map[uuid.UUID]enums.NormalBalance, len(all))
	for _, account := range all {
		normals[account.ID] = account.NormalBalance
	}

	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for _, row := range rows {
		if row.ClosingBalance.IsZero() {
			continue
		}
		onDebitSide := normals[row.AccountID] == enums.NormalBalanceDebit
		if row.ClosingBalance.IsNegative() {
			onDebitSide = !onDebitSide
		}
		if onDebitSide {
			totalDebit = totalDebit.Add(row.ClosingBalance.Abs())
		} else {
			totalCredit = totalCredit.Add(row.ClosingBalance.Abs())
		}
	}
	return totalDebit, totalCredit, nil
}

func (s *service) finalBalances(ctx context.Context, tx *gorm.DB, snapshot []models.AccountBalance) ([]payloads.PeriodBalance, error) {
	codes := make(map[uuid.UUID]string)
	all, err := s.accountRepo.WithTx(tx).List(ctx, accounts.ListFilter{})
	if err != nil {
		return nil, err
	}
	for _, account := range all {
		codes[account.ID] = account.Code
	}

	final := make([]payloads.PeriodBalance, 0, len(snapshot))
	for _, row := range snapshot {
		final = append(final, payloads.PeriodBalance{
			AccountID:      row.AccountID,
			AccountCode:    codes[row.AccountID],
			OpeningBalance: row.OpeningBalance,
			DebitTotal:     row.DebitTotal,
			CreditTotal:    row.CreditTotal,
			ClosingBalance: row.ClosingBalance,
		})
	}
	return final, nil
}

// Reopen returns a closed period to Open. Balances snapshotted at close go
// stale until the period is closed again. Locked periods never reopen.
func (s *service) Reopen(ctx context.Context, year, month int, reason, reopenedBy string, actor *outbox.ActorRef) (*models.FiscalPeriod, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "reopen reason is required")
	}
	if reopenedBy == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "reopened_by is required")
	}

	var period *models.FiscalPeriod
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		found, err := txRepo.FindByYearMonth(ctx, year, month)
		if err != nil {
			return err
		}
		if found == nil {
			return apperrors.New(apperrors.CodeNotFound,
				fmt.Sprintf("fiscal period %04d-%02d not found", year, month))
		}
		if found.Status == enums.FiscalPeriodStatusLocked {
			return apperrors.New(apperrors.CodeStateConflict, "locked periods cannot be reopened")
		}
		if found.Status != enums.FiscalPeriodStatusClosed {
			return apperrors.New(apperrors.CodeStateConflict,
				fmt.Sprintf("cannot reopen period in status %s", found.Status))
		}

		laterSettled, err := txRepo.ExistsSettledAfter(ctx, year, month)
		if err != nil {
			return err
		}
		if laterSettled {
			return apperrors.New(apperrors.CodeStateConflict,
				"cannot reopen a period while a later period is settled")
		}

		if err := s.balances.MarkStale(ctx, tx, year, month); err != nil {
			return err
		}

		now := time.Now()
		expected := found.Version
		found.Status = enums.FiscalPeriodStatusOpen
		found.ReopenedAt = &now
		found.ReopenedBy = &reopenedBy
		found.ReopenReason = &reason
		if err := txRepo.SaveStatusCAS(ctx, found, expected); err != nil {
			return err
		}

		period = found
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFiscalPeriodReopened,
			AggregateType: enums.AggregateFiscalPeriod,
			AggregateID:   found.ID,
			Actor:         actor,
			Version:       1,
			Data: payloads.FiscalPeriodReopenedEvent{
				PeriodID:    found.ID,
				FiscalYear:  year,
				FiscalMonth: month,
				ReopenedBy:  reopenedBy,
				ReopenedAt:  now,
				Reason:      reason,
			},
		})
	})
	if err != nil {
		return nil, translateVersionConflict(err)
	}
	return period, nil
}

// Lock makes a closed period permanent. There is no way back.
func (s *service) Lock(ctx context.Context, year, month int) (*models.FiscalPeriod, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	var period *models.FiscalPeriod
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		found, err := txRepo.FindByYearMonth(ctx, year, month)
		if err != nil {
			return err
		}
		if found == nil {
			return apperrors.New(apperrors.CodeNotFound,
				fmt.Sprintf("fiscal period %04d-%02d not found", year, month))
		}
		if found.Status != enums.FiscalPeriodStatusClosed {
			return apperrors.New(apperrors.CodeStateConflict,
				fmt.Sprintf("only closed periods can be locked, period is %s", found.Status))
		}

		now := time.Now()
		expected := found.Version
		found.Status = enums.FiscalPeriodStatusLocked
		found.LockedAt = &now
		if err := txRepo.SaveStatusCAS(ctx, found, expected); err != nil {
			return err
		}
		period = found
		return nil
	})
	if err != nil {
		return nil, translateVersionConflict(err)
	}
	return period, nil
}

// EnsurePostable verifies the period accepts postings, creating it lazily the
// first time activity lands in a new month.
func (s *service) EnsurePostable(ctx context.Context, tx *gorm.DB, year, month int) error {
	if err := validatePeriod(year, month); err != nil {
		return err
	}
	txRepo := s.repo.WithTx(tx)
	period, err := txRepo.FindByYearMonth(ctx, year, month)
	if err != nil {
		return err
	}
	if period == nil {
		return txRepo.Create(ctx, &models.FiscalPeriod{
			ID:          uuid.New(),
			FiscalYear:  year,
			FiscalMonth: month,
			Status:      enums.FiscalPeriodStatusOpen,
			Version:     1,
		})
	}
	if period.Status != enums.FiscalPeriodStatusOpen {
		return apperrors.New(apperrors.CodeStateConflict,
			fmt.Sprintf("fiscal period %s is %s", period.Label(), period.Status))
	}
	return nil
}

func (s *service) IsSettled(ctx context.Context, tx *gorm.DB, year, month int) (bool, error) {
	if err := validatePeriod(year, month); err != nil {
		return false, err
	}
	period, err := s.repo.WithTx(tx).FindByYearMonth(ctx, year, month)
	if err != nil {
		return false, err
	}
	if period == nil {
		return false, nil
	}
	return period.Status.IsSettled(), nil
}

func validatePeriod(year, month int) error {
	if year < 1900 || year > 9999 {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid fiscal year %d", year))
	}
	if month < 1 || month > 12 {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid fiscal month %d", month))
	}
	return nil
}

func translateVersionConflict(err error) error {
	if errors.Is(err, ErrVersionConflict) {
		return apperrors.Wrap(apperrors.CodeConflict, err, "fiscal period was modified concurrently")
	}
	return err
}
