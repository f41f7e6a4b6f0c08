package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/internal/accounts"
	"github.com/clearledger/backoffice/internal/journal"
	"github.com/clearledger/backoffice/pkg/config"
	"github.com/clearledger/backoffice/pkg/db/models"
	dbtypes "github.com/clearledger/backoffice/pkg/db/types"
	"github.com/clearledger/backoffice/pkg/enums"
	apperrors "github.com/clearledger/backoffice/pkg/errors"
	"github.com/clearledger/backoffice/pkg/outbox"
)

const sourceService = "reconciliation"

// AdjustmentKind classifies an unmatched reconciling item.
type AdjustmentKind string

const (
	AdjustmentFee      AdjustmentKind = "fee"
	AdjustmentInterest AdjustmentKind = "interest"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EntryPoster creates and posts an adjusting journal entry inside the
// caller's transaction, so the run and its entry commit together.
type EntryPoster interface {
	CreatePostedTx(ctx context.Context, tx *gorm.DB, input journal.CreateEntryInput) (*models.JournalEntry, error)
}

// TransactionInput is one imported bank statement line. Amount is signed from
// the bank's perspective: deposits positive, withdrawals negative.
type TransactionInput struct {
	TransactionDate time.Time       `json:"transaction_date"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
}

// AdjustmentInput is a reconciling item the bank recorded but the books have
// not. Amount is always positive.
type AdjustmentInput struct {
	Kind        AdjustmentKind  `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// ReconcileInput drives one reconciliation run for a bank account and period.
type ReconcileInput struct {
	BankAccountID    uuid.UUID         `json:"bank_account_id"`
	FiscalYear       int               `json:"fiscal_year"`
	FiscalMonth      int               `json:"fiscal_month"`
	StatementBalance decimal.Decimal   `json:"statement_balance"`
	Adjustments      []AdjustmentInput `json:"adjustments,omitempty"`
	RunBy            string            `json:"run_by"`
	Actor            *outbox.ActorRef  `json:"-"`
}

// Match pairs one bank transaction with the journal line that explains it.
type Match struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	LineID        uuid.UUID       `json:"line_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// ReconcileResult reports the run: matches made, items still open on either
// side, and the persisted reconciliation record.
type ReconcileResult struct {
	Reconciliation  *models.BankReconciliation `json:"reconciliation"`
	Matches         []Match                    `json:"matches"`
	UnmatchedBank   []models.BankTransaction   `json:"unmatched_bank"`
	OutstandingBook []CandidateLine            `json:"outstanding_book"`
	AdjustingEntry  *models.JournalEntry       `json:"adjusting_entry,omitempty"`
}

// Service imports bank statements and reconciles them against the ledger.
type Service interface {
	ImportTransactions(ctx context.Context, bankAccountID uuid.UUID, inputs []TransactionInput) ([]models.BankTransaction, error)
	Reconcile(ctx context.Context, input ReconcileInput) (*ReconcileResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.BankReconciliation, error)
	List(ctx context.Context, bankAccountID uuid.UUID) ([]models.BankReconciliation, error)
}

type service struct {
	repo        Repository
	accountRepo accounts.Repository
	poster      EntryPoster
	tx          txRunner
	ledgerCfg   config.LedgerConfig
	windowDays  int
	tolerance   decimal.Decimal
}

// NewService wires the reconciliation engine with its collaborators.
func NewService(repo Repository, accountRepo accounts.Repository, poster EntryPoster, tx txRunner, ledgerCfg config.LedgerConfig, reconCfg config.ReconConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reconciliation repository required")
	}
	if accountRepo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if poster == nil {
		return nil, fmt.Errorf("entry poster required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	tolerance, err := decimal.NewFromString(reconCfg.AmountTolerance)
	if err != nil || tolerance.IsNegative() {
		return nil, fmt.Errorf("invalid amount tolerance %q", reconCfg.AmountTolerance)
	}
	windowDays := reconCfg.MatchWindowDays
	if windowDays <= 0 {
		windowDays = 5
	}
	return &service{
		repo:        repo,
		accountRepo: accountRepo,
		poster:      poster,
		tx:          tx,
		ledgerCfg:   ledgerCfg,
		windowDays:  windowDays,
		tolerance:   tolerance,
	}, nil
}

func (s *service) ImportTransactions(ctx context.Context, bankAccountID uuid.UUID, inputs []TransactionInput) ([]models.BankTransaction, error) {
	if bankAccountID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "bank account id is required")
	}
	if len(inputs) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "at least one transaction is required")
	}
	account, err := s.accountRepo.FindByID(ctx, bankAccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "bank GL account not found")
	}
	if account.Type != enums.AccountTypeAsset {
		return nil, apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("account %s is not an asset account", account.Code))
	}

	txns := make([]models.BankTransaction, 0, len(inputs))
	for i, in := range inputs {
		if in.TransactionDate.IsZero() {
			return nil, apperrors.New(apperrors.CodeValidation,
				fmt.Sprintf("transaction %d: date is required", i+1))
		}
		if in.Amount.IsZero() {
			return nil, apperrors.New(apperrors.CodeValidation,
				fmt.Sprintf("transaction %d: amount must be non-zero", i+1))
		}
		txns = append(txns, models.BankTransaction{
			ID:              uuid.New(),
			BankAccountID:   bankAccountID,
			TransactionDate: in.TransactionDate,
			Amount:          in.Amount,
			Description:     in.Description,
		})
	}
	if err := s.repo.CreateTransactions(ctx, txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// Reconcile matches statement lines against the ledger, journals the provided
// reconciling items, and records the adjusted-balance comparison.
func (s *service) Reconcile(ctx context.Context, input ReconcileInput) (*ReconcileResult, error) {
	if input.BankAccountID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "bank account id is required")
	}
	if input.FiscalMonth < 1 || input.FiscalMonth > 12 {
		return nil, apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("invalid fiscal month %d", input.FiscalMonth))
	}
	for i, adj := range input.Adjustments {
		if adj.Kind != AdjustmentFee && adj.Kind != AdjustmentInterest {
			return nil, apperrors.New(apperrors.CodeValidation,
				fmt.Sprintf("adjustment %d: unknown kind %q", i+1, adj.Kind))
		}
		if adj.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, apperrors.New(apperrors.CodeValidation,
				fmt.Sprintf("adjustment %d: amount must be positive", i+1))
		}
	}

	var result *ReconcileResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		periodStart := time.Date(input.FiscalYear, time.Month(input.FiscalMonth), 1, 0, 0, 0, 0, time.UTC)
		periodEnd := periodStart.AddDate(0, 1, 0).Add(-24 * time.Hour)
		window := time.Duration(s.windowDays) * 24 * time.Hour

		txns, err := txRepo.ListUnmatched(ctx, input.BankAccountID, periodStart, periodEnd)
		if err != nil {
			return err
		}
		candidates, err := txRepo.ListCandidateLines(ctx, input.BankAccountID,
			periodStart.Add(-window), periodEnd.Add(window))
		if err != nil {
			return err
		}

		rec := &models.BankReconciliation{
			ID:            uuid.New(),
			BankAccountID: input.BankAccountID,
			FiscalYear:    input.FiscalYear,
			FiscalMonth:   input.FiscalMonth,
		}

		matches, leftoverTxns, leftoverLines := s.matchGreedy(txns, candidates)
		var matchedLineIDs dbtypes.UUIDArray
		for i := range matches {
			matchedLineIDs = append(matchedLineIDs, matches[i].LineID)
		}
		rec.MatchedLineIDs = matchedLineIDs

		for i := range txns {
			txn := &txns[i]
			lineID, ok := matchedLine(matches, txn.ID)
			if !ok {
				continue
			}
			txn.Matched = true
			txn.MatchedLineID = &lineID
			txn.ReconciliationID = &rec.ID
			if err := txRepo.SaveTransaction(ctx, txn); err != nil {
				return err
			}
		}

		bookBalance, err := txRepo.BookBalance(ctx, input.BankAccountID, periodEnd)
		if err != nil {
			return err
		}

		adjustment := decimal.Zero
		for _, adj := range input.Adjustments {
			if adj.Kind == AdjustmentFee {
				adjustment = adjustment.Sub(adj.Amount)
			} else {
				adjustment = adjustment.Add(adj.Amount)
			}
		}

		var adjusting *models.JournalEntry
		if len(input.Adjustments) > 0 {
			adjusting, err = s.postAdjustments(ctx, tx, rec.ID, periodEnd, input)
			if err != nil {
				return err
			}
			rec.AdjustingEntryID = &adjusting.ID
		}

		// Deposits in transit raise the bank side; outstanding checks lower it.
		inTransit := decimal.Zero
		for _, line := range leftoverLines {
			inTransit = inTransit.Add(line.SignedAmount())
		}

		rec.StatementBalance = input.StatementBalance
		rec.BookBalance = bookBalance
		rec.AdjustedBankBalance = input.StatementBalance.Add(inTransit)
		rec.AdjustedBookBalance = bookBalance.Add(adjustment)
		rec.Balanced = rec.AdjustedBankBalance.Sub(rec.AdjustedBookBalance).Abs().
			LessThanOrEqual(s.tolerance)
		now := time.Now().UTC()
		rec.CompletedAt = &now

		if err := txRepo.CreateReconciliation(ctx, rec); err != nil {
			return err
		}

		result = &ReconcileResult{
			Reconciliation:  rec,
			Matches:         matches,
			UnmatchedBank:   leftoverTxns,
			OutstandingBook: leftoverLines,
			AdjustingEntry:  adjusting,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.BankReconciliation, error) {
	rec, err := s.repo.FindReconciliationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "reconciliation not found")
	}
	return rec, nil
}

func (s *service) List(ctx context.Context, bankAccountID uuid.UUID) ([]models.BankReconciliation, error) {
	return s.repo.ListReconciliations(ctx, bankAccountID)
}

// matchGreedy walks transactions in date order and claims the first candidate
// line whose signed amount and date both fall inside the tolerances. Claimed
// lines never match twice.
func (s *service) matchGreedy(txns []models.BankTransaction, candidates []CandidateLine) ([]Match, []models.BankTransaction, []CandidateLine) {
	claimed := make(map[uuid.UUID]bool, len(candidates))
	var matches []Match
	var leftoverTxns []models.BankTransaction

	for _, txn := range txns {
		matched := false
		for _, line := range candidates {
			if claimed[line.LineID] {
				continue
			}
			if !s.amountsMatch(txn.Amount, line.SignedAmount()) {
				continue
			}
			if !s.datesMatch(txn.TransactionDate, line.EntryDate) {
				continue
			}
			claimed[line.LineID] = true
			matches = append(matches, Match{
				TransactionID: txn.ID,
				LineID:        line.LineID,
				Amount:        txn.Amount,
			})
			matched = true
			break
		}
		if !matched {
			leftoverTxns = append(leftoverTxns, txn)
		}
	}

	var leftoverLines []CandidateLine
	for _, line := range candidates {
		if !claimed[line.LineID] {
			leftoverLines = append(leftoverLines, line)
		}
	}
	return matches, leftoverTxns, leftoverLines
}

func (s *service) amountsMatch(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(s.tolerance)
}

func (s *service) datesMatch(a, b time.Time) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(s.windowDays)*24*time.Hour
}

// postAdjustments books one entry covering all reconciling items: fees debit
// expense and credit the bank account, interest does the reverse.
func (s *service) postAdjustments(ctx context.Context, tx *gorm.DB, recID uuid.UUID, entryDate time.Time, input ReconcileInput) (*models.JournalEntry, error) {
	feeID, err := s.accountIDByCode(ctx, tx, s.ledgerCfg.BankFeeAccountCode)
	if err != nil {
		return nil, err
	}
	interestID, err := s.accountIDByCode(ctx, tx, s.ledgerCfg.InterestIncomeAccountCode)
	if err != nil {
		return nil, err
	}

	var lines []journal.LineInput
	for _, adj := range input.Adjustments {
		memo := adj.Description
		if memo == "" {
			memo = string(adj.Kind)
		}
		if adj.Kind == AdjustmentFee {
			lines = append(lines,
				journal.LineInput{AccountID: feeID, Direction: enums.LineDirectionDebit, Amount: adj.Amount, Memo: memo},
				journal.LineInput{AccountID: input.BankAccountID, Direction: enums.LineDirectionCredit, Amount: adj.Amount, Memo: memo},
			)
		} else {
			lines = append(lines,
				journal.LineInput{AccountID: input.BankAccountID, Direction: enums.LineDirectionDebit, Amount: adj.Amount, Memo: memo},
				journal.LineInput{AccountID: interestID, Direction: enums.LineDirectionCredit, Amount: adj.Amount, Memo: memo},
			)
		}
	}

	ref := fmt.Sprintf("recon-%s", recID)
	return s.poster.CreatePostedTx(ctx, tx, journal.CreateEntryInput{
		EntryDate:         entryDate,
		Description:       fmt.Sprintf("Bank reconciliation adjustments for %04d-%02d", input.FiscalYear, input.FiscalMonth),
		EntryType:         enums.JournalEntryTypeSystem,
		SourceService:     strPtr(sourceService),
		SourceReferenceID: &ref,
		CreatedBy:         input.RunBy,
		Actor:             input.Actor,
		Lines:             lines,
	})
}

func (s *service) accountIDByCode(ctx context.Context, tx *gorm.DB, code string) (uuid.UUID, error) {
	account, err := s.accountRepo.WithTx(tx).FindByCode(ctx, code)
	if err != nil {
		return uuid.Nil, err
	}
	if account == nil {
		return uuid.Nil, apperrors.New(apperrors.CodeDependency,
			fmt.Sprintf("posting account %s is missing from the chart of accounts", code))
	}
	return account.ID, nil
}

func matchedLine(matches []Match, txnID uuid.UUID) (uuid.UUID, bool) {
	for _, m := range matches {
		if m.TransactionID == txnID {
			return m.LineID, true
		}
	}
	return uuid.Nil, false
}

func strPtr(s string) *string { return &s }
