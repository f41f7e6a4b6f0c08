package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/internal/accounts"
	dbpkg "github.com/clearledger/backoffice/pkg/db"
	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
	apperrors "github.com/clearledger/backoffice/pkg/errors"
	"github.com/clearledger/backoffice/pkg/outbox"
	"github.com/clearledger/backoffice/pkg/outbox/payloads"
	"github.com/clearledger/backoffice/pkg/pagination"
)

// balanceTolerance absorbs residual rounding from upstream unit-cost math.
var balanceTolerance = decimal.RequireFromString("0.01")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PeriodChecker reports whether a fiscal period accepts new postings.
type PeriodChecker interface {
	EnsurePostable(ctx context.Context, tx *gorm.DB, year, month int) error
	IsSettled(ctx context.Context, tx *gorm.DB, year, month int) (bool, error)
}

// Service defines the double-entry journal operations.
type Service interface {
	CreateDraft(ctx context.Context, input CreateEntryInput) (*models.JournalEntry, error)
	CreatePosted(ctx context.Context, input CreateEntryInput) (*models.JournalEntry, error)
	CreatePostedTx(ctx context.Context, tx *gorm.DB, input CreateEntryInput) (*models.JournalEntry, error)
	Post(ctx context.Context, id uuid.UUID, actor *outbox.ActorRef) (*models.JournalEntry, error)
	Void(ctx context.Context, id uuid.UUID, reason string, actor *outbox.ActorRef) (*models.JournalEntry, error)
	Get(ctx context.Context, id uuid.UUID) (*models.JournalEntry, error)
	GetBySourceReference(ctx context.Context, ref string) (*models.JournalEntry, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.JournalEntry, string, error)
}

// LineInput is one debit or credit leg of a new entry.
type LineInput struct {
	AccountID   uuid.UUID           `json:"account_id"`
	Direction   enums.LineDirection `json:"direction"`
	Amount      decimal.Decimal     `json:"amount"`
	Memo        string              `json:"memo"`
	WarehouseID *uuid.UUID          `json:"warehouse_id,omitempty"`
	ProductID   *uuid.UUID          `json:"product_id,omitempty"`
}

// CreateEntryInput captures a new journal entry. The fiscal period is derived
// from the entry date.
type CreateEntryInput struct {
	EntryDate         time.Time              `json:"entry_date"`
	Description       string                 `json:"description"`
	EntryType         enums.JournalEntryType `json:"entry_type"`
	SourceService     *string                `json:"source_service,omitempty"`
	SourceReferenceID *string                `json:"source_reference_id,omitempty"`
	CreatedBy         string                 `json:"created_by"`
	Actor             *outbox.ActorRef       `json:"-"`
	Lines             []LineInput            `json:"lines"`
}

type service struct {
	repo         Repository
	accountRepo  accounts.Repository
	periods      PeriodChecker
	tx           txRunner
	outbox       outboxPublisher
	numberPrefix string
}

// NewService wires the journal service with its collaborators.
func NewService(repo Repository, accountRepo accounts.Repository, periods PeriodChecker, tx txRunner, publisher outboxPublisher, numberPrefix string) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("journal repository required")
	}
	if accountRepo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if periods == nil {
		return nil, fmt.Errorf("period checker required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if numberPrefix == "" {
		numberPrefix = "JE"
	}
	return &service{
		repo:         repo,
		accountRepo:  accountRepo,
		periods:      periods,
		tx:           tx,
		outbox:       publisher,
		numberPrefix: numberPrefix,
	}, nil
}

func (s *service) CreateDraft(ctx context.Context, input CreateEntryInput) (*models.JournalEntry, error) {
	return s.create(ctx, input, false)
}

// CreatePosted creates and posts an entry in one transaction. System
// consumers use it so their single period check covers both steps.
func (s *service) CreatePosted(ctx context.Context, input CreateEntryInput) (*models.JournalEntry, error) {
	return s.create(ctx, input, true)
}

// CreatePostedTx is CreatePosted joined to the caller's transaction. Callers
// that post an entry alongside their own writes use it so everything commits
// or rolls back together.
func (s *service) CreatePostedTx(ctx context.Context, tx *gorm.DB, input CreateEntryInput) (*models.JournalEntry, error) {
	if tx == nil {
		return nil, apperrors.New(apperrors.CodeValidation, "transaction is required")
	}
	return s.createInTx(ctx, tx, input, true)
}

func (s *service) create(ctx context.Context, input CreateEntryInput, post bool) (*models.JournalEntry, error) {
	var entry *models.JournalEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.createInTx(ctx, tx, input, post)
		if err != nil {
			return err
		}
		entry = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) createInTx(ctx context.Context, tx *gorm.DB, input CreateEntryInput, post bool) (*models.JournalEntry, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return nil, err
	}

	year, month := fiscalPeriodOf(input.EntryDate)
	entryType := input.EntryType
	if entryType == "" {
		entryType = enums.JournalEntryTypeManual
	}

	if err := s.periods.EnsurePostable(ctx, tx, year, month); err != nil {
		return nil, err
	}

	txRepo := s.repo.WithTx(tx)
	if input.SourceReferenceID != nil {
		existing, err := txRepo.FindBySourceReference(ctx, *input.SourceReferenceID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperrors.New(apperrors.CodeConflict,
				fmt.Sprintf("journal entry for source reference %s already exists", *input.SourceReferenceID))
		}
	}

	number, err := s.nextEntryNumber(ctx, txRepo, year, month)
	if err != nil {
		return nil, err
	}

	entry := &models.JournalEntry{
		ID:                uuid.New(),
		EntryNumber:       number,
		EntryDate:         input.EntryDate,
		FiscalYear:        year,
		FiscalMonth:       month,
		Status:            enums.JournalEntryStatusDraft,
		EntryType:         entryType,
		Description:       input.Description,
		SourceService:     input.SourceService,
		SourceReferenceID: input.SourceReferenceID,
		CreatedBy:         input.CreatedBy,
		Version:           1,
	}
	for i, line := range input.Lines {
		entry.Lines = append(entry.Lines, models.JournalLine{
			ID:          uuid.New(),
			EntryID:     entry.ID,
			LineNo:      i + 1,
			AccountID:   line.AccountID,
			Direction:   line.Direction,
			Amount:      line.Amount,
			Memo:        line.Memo,
			WarehouseID: line.WarehouseID,
			ProductID:   line.ProductID,
		})
	}
	if err := txRepo.Create(ctx, entry); err != nil {
		return nil, translateUniqueViolation(err)
	}

	if post {
		if err := s.postInTx(ctx, tx, entry, input.Actor); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

func (s *service) Post(ctx context.Context, id uuid.UUID, actor *outbox.ActorRef) (*models.JournalEntry, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "entry id is required")
	}

	var entry *models.JournalEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		found, err := txRepo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if found == nil {
			return apperrors.New(apperrors.CodeNotFound, "journal entry not found")
		}
		if found.Status != enums.JournalEntryStatusDraft {
			return apperrors.New(apperrors.CodeStateConflict,
				fmt.Sprintf("cannot post entry in status %s", found.Status))
		}
		if err := s.periods.EnsurePostable(ctx, tx, found.FiscalYear, found.FiscalMonth); err != nil {
			return err
		}
		if err := s.postInTx(ctx, tx, found, actor); err != nil {
			return err
		}
		entry = found
		return nil
	})
	if err != nil {
		return nil, translateVersionConflict(err)
	}
	return entry, nil
}

// postInTx transitions an in-memory draft to Posted and emits the event.
// The caller holds the transaction and has already checked the period.
func (s *service) postInTx(ctx context.Context, tx *gorm.DB, entry *models.JournalEntry, actor *outbox.ActorRef) error {
	if err := checkBalanced(entry.Lines); err != nil {
		return err
	}

	now := time.Now()
	expected := entry.Version
	entry.Status = enums.JournalEntryStatusPosted
	entry.PostedAt = &now
	if err := s.repo.WithTx(tx).SaveStatusCAS(ctx, entry, expected); err != nil {
		return err
	}

	lines := make([]payloads.EntryLine, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		code := ""
		if account, err := s.accountRepo.WithTx(tx).FindByID(ctx, line.AccountID); err == nil && account != nil {
			code = account.Code
		}
		lines = append(lines, payloads.EntryLine{
			AccountID:   line.AccountID,
			AccountCode: code,
			Direction:   line.Direction,
			Amount:      line.Amount,
		})
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventJournalEntryPosted,
		AggregateType: enums.AggregateJournalEntry,
		AggregateID:   entry.ID,
		Actor:         actor,
		Version:       1,
		Data: payloads.JournalEntryPostedEvent{
			EntryID:     entry.ID,
			EntryNumber: entry.EntryNumber,
			EntryDate:   entry.EntryDate,
			FiscalYear:  entry.FiscalYear,
			FiscalMonth: entry.FiscalMonth,
			TotalAmount: entry.TotalDebit(),
			Accounts:    lines,
		},
	})
}

// Void marks a posted entry voided without touching its lines. The entry
// stops counting toward balances; no reversing entry is created.
func (s *service) Void(ctx context.Context, id uuid.UUID, reason string, actor *outbox.ActorRef) (*models.JournalEntry, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "entry id is required")
	}
	if reason == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "void reason is required")
	}

	var entry *models.JournalEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		found, err := txRepo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if found == nil {
			return apperrors.New(apperrors.CodeNotFound, "journal entry not found")
		}
		if found.Status != enums.JournalEntryStatusPosted {
			return apperrors.New(apperrors.CodeStateConflict,
				fmt.Sprintf("cannot void entry in status %s", found.Status))
		}

		settled, err := s.periods.IsSettled(ctx, tx, found.FiscalYear, found.FiscalMonth)
		if err != nil {
			return err
		}
		if settled {
			return apperrors.New(apperrors.CodeStateConflict, "cannot void an entry in a settled period")
		}

		now := time.Now()
		expected := found.Version
		found.Status = enums.JournalEntryStatusVoided
		found.VoidedAt = &now
		found.VoidReason = &reason
		if err := txRepo.SaveStatusCAS(ctx, found, expected); err != nil {
			return err
		}

		entry = found
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventJournalEntryVoided,
			AggregateType: enums.AggregateJournalEntry,
			AggregateID:   found.ID,
			Actor:         actor,
			Version:       1,
			Data: payloads.JournalEntryVoidedEvent{
				EntryID:     found.ID,
				EntryNumber: found.EntryNumber,
				FiscalYear:  found.FiscalYear,
				FiscalMonth: found.FiscalMonth,
				Reason:      reason,
				VoidedAt:    now,
			},
		})
	})
	if err != nil {
		return nil, translateVersionConflict(err)
	}
	return entry, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.JournalEntry, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "entry id is required")
	}
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "journal entry not found")
	}
	return entry, nil
}

func (s *service) GetBySourceReference(ctx context.Context, ref string) (*models.JournalEntry, error) {
	if ref == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "source reference is required")
	}
	return s.repo.FindBySourceReference(ctx, ref)
}

func (s *service) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.JournalEntry, string, error) {
	return s.repo.List(ctx, filter, params)
}

func (s *service) validateInput(ctx context.Context, input CreateEntryInput) error {
	if input.EntryDate.IsZero() {
		return apperrors.New(apperrors.CodeValidation, "entry date is required")
	}
	if len(input.Lines) < 2 {
		return apperrors.New(apperrors.CodeValidation, "journal entry requires at least two lines")
	}
	if input.EntryType != "" && !input.EntryType.IsValid() {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid entry type %q", input.EntryType))
	}

	seen := make(map[uuid.UUID]bool)
	for i, line := range input.Lines {
		if line.AccountID == uuid.Nil {
			return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("line %d: account id is required", i+1))
		}
		if !line.Direction.IsValid() {
			return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("line %d: invalid direction %q", i+1, line.Direction))
		}
		if line.Amount.LessThanOrEqual(decimal.Zero) {
			return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("line %d: amount must be positive", i+1))
		}
		if !seen[line.AccountID] {
			seen[line.AccountID] = true
			account, err := s.accountRepo.FindByID(ctx, line.AccountID)
			if err != nil {
				return err
			}
			if account == nil {
				return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("line %d: account does not exist", i+1))
			}
			if account.Status != enums.AccountStatusActive {
				return apperrors.New(apperrors.CodeValidation,
					fmt.Sprintf("line %d: account %s is inactive", i+1, account.Code))
			}
		}
	}

	return checkBalancedInput(input.Lines)
}

func (s *service) nextEntryNumber(ctx context.Context, repo Repository, year, month int) (string, error) {
	count, err := repo.CountForPeriod(ctx, year, month)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d%02d-%04d", s.numberPrefix, year, month, count+1), nil
}

func fiscalPeriodOf(date time.Time) (year, month int) {
	utc := date.UTC()
	return utc.Year(), int(utc.Month())
}

func checkBalancedInput(lines []LineInput) error {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range lines {
		if line.Direction == enums.LineDirectionDebit {
			debit = debit.Add(line.Amount)
		} else {
			credit = credit.Add(line.Amount)
		}
	}
	return checkTolerance(debit, credit)
}

func checkBalanced(lines []models.JournalLine) error {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range lines {
		if line.Direction == enums.LineDirectionDebit {
			debit = debit.Add(line.Amount)
		} else {
			credit = credit.Add(line.Amount)
		}
	}
	return checkTolerance(debit, credit)
}

func checkTolerance(debit, credit decimal.Decimal) error {
	if debit.Sub(credit).Abs().GreaterThan(balanceTolerance) {
		return apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("entry is unbalanced: debits %s, credits %s", debit.String(), credit.String())).
			WithDetails(map[string]string{
				"total_debit":  debit.String(),
				"total_credit": credit.String(),
			})
	}
	return nil
}

func translateVersionConflict(err error) error {
	if errors.Is(err, ErrVersionConflict) {
		return apperrors.Wrap(apperrors.CodeConflict, err, "journal entry was modified concurrently")
	}
	return err
}

// translateUniqueViolation maps races on the entry-number or source-reference
// indexes to a retryable conflict instead of a bare database error. Two
// writers can pass the count-based number sequence or the source-reference
// pre-check at the same time; the indexes settle the race.
func translateUniqueViolation(err error) error {
	if dbpkg.IsUniqueViolation(err, "ux_journal_entries_number") {
		return apperrors.Wrap(apperrors.CodeConflict, err, "entry number was taken concurrently, retry the request")
	}
	if dbpkg.IsUniqueViolation(err, "ux_journal_entries_source_ref") {
		return apperrors.Wrap(apperrors.CodeConflict, err, "journal entry for this source reference already exists")
	}
	return err
}
