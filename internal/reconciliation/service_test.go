package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/internal/accounts"
	"github.com/clearledger/backoffice/internal/journal"
	"github.com/clearledger/backoffice/pkg/config"
	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
	apperrors "github.com/clearledger/backoffice/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeRepo struct {
	txns        map[uuid.UUID]*models.BankTransaction
	candidates  []CandidateLine
	bookBalance decimal.Decimal
	recs        map[uuid.UUID]*models.BankReconciliation
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		txns: make(map[uuid.UUID]*models.BankTransaction),
		recs: make(map[uuid.UUID]*models.BankReconciliation),
	}
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) CreateTransactions(ctx context.Context, txns []models.BankTransaction) error {
	for i := range txns {
		stored := txns[i]
		f.txns[stored.ID] = &stored
	}
	return nil
}

func (f *fakeRepo) ListUnmatched(ctx context.Context, bankAccountID uuid.UUID, from, to time.Time) ([]models.BankTransaction, error) {
	var rows []models.BankTransaction
	for _, txn := range f.txns {
		if txn.Matched || txn.BankAccountID != bankAccountID {
			continue
		}
		if txn.TransactionDate.Before(from) || txn.TransactionDate.After(to) {
			continue
		}
		rows = append(rows, *txn)
	}
	// deterministic order
	for i := range rows {
		for j := i + 1; j < len(rows); j++ {
			if rows[j].TransactionDate.Before(rows[i].TransactionDate) {
				rows[i], rows[j] = rows[j], rows[i]
			}
		}
	}
	return rows, nil
}

func (f *fakeRepo) SaveTransaction(ctx context.Context, txn *models.BankTransaction) error {
	stored := *txn
	f.txns[txn.ID] = &stored
	return nil
}

func (f *fakeRepo) ListCandidateLines(ctx context.Context, bankAccountID uuid.UUID, from, to time.Time) ([]CandidateLine, error) {
	var rows []CandidateLine
	for _, line := range f.candidates {
		if line.EntryDate.Before(from) || line.EntryDate.After(to) {
			continue
		}
		rows = append(rows, line)
	}
	return rows, nil
}

func (f *fakeRepo) BookBalance(ctx context.Context, bankAccountID uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	return f.bookBalance, nil
}

func (f *fakeRepo) CreateReconciliation(ctx context.Context, rec *models.BankReconciliation) error {
	f.recs[rec.ID] = rec
	return nil
}

func (f *fakeRepo) SaveReconciliation(ctx context.Context, rec *models.BankReconciliation) error {
	f.recs[rec.ID] = rec
	return nil
}

func (f *fakeRepo) FindReconciliationByID(ctx context.Context, id uuid.UUID) (*models.BankReconciliation, error) {
	return f.recs[id], nil
}

func (f *fakeRepo) ListReconciliations(ctx context.Context, bankAccountID uuid.UUID) ([]models.BankReconciliation, error) {
	var rows []models.BankReconciliation
	for _, rec := range f.recs {
		if rec.BankAccountID == bankAccountID {
			rows = append(rows, *rec)
		}
	}
	return rows, nil
}

func (f *fakeRepo) CountUnbalancedForPeriod(ctx context.Context, year, month int) (int64, error) {
	var count int64
	for _, rec := range f.recs {
		if rec.FiscalYear == year && rec.FiscalMonth == month && !rec.Balanced {
			count++
		}
	}
	return count, nil
}

type fakeAccounts struct {
	byID map[uuid.UUID]*models.Account
}

func (f *fakeAccounts) WithTx(tx *gorm.DB) accounts.Repository { return f }

func (f *fakeAccounts) Create(ctx context.Context, account *models.Account) error { return nil }
func (f *fakeAccounts) Update(ctx context.Context, account *models.Account) error { return nil }

func (f *fakeAccounts) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return f.byID[id], nil
}

func (f *fakeAccounts) FindByCode(ctx context.Context, code string) (*models.Account, error) {
	for _, account := range f.byID {
		if account.Code == code {
			return account, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) List(ctx context.Context, filter accounts.ListFilter) ([]models.Account, error) {
	return nil, nil
}

func (f *fakeAccounts) HasChildren(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeAccounts) HasJournalLines(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

type fakePoster struct {
	input *journal.CreateEntryInput
	tx    *gorm.DB
}

func (f *fakePoster) CreatePostedTx(ctx context.Context, tx *gorm.DB, input journal.CreateEntryInput) (*models.JournalEntry, error) {
	f.input = &input
	f.tx = tx
	return &models.JournalEntry{ID: uuid.New(), Status: enums.JournalEntryStatusPosted}, nil
}

type fakeTx struct {
	handed *gorm.DB
}

func (f *fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.handed = &gorm.DB{}
	return fn(f.handed)
}

type reconEnv struct {
	service Service
	repo    *fakeRepo
	poster  *fakePoster
	tx      *fakeTx
	bankID  uuid.UUID
	feeID   uuid.UUID
	intID   uuid.UUID
}

func newReconEnv(t *testing.T) *reconEnv {
	t.Helper()
	repo := newFakeRepo()
	poster := &fakePoster{}
	tx := &fakeTx{}
	bankID, feeID, intID := uuid.New(), uuid.New(), uuid.New()
	accountRepo := &fakeAccounts{byID: map[uuid.UUID]*models.Account{
		bankID: {ID: bankID, Code: "1000", Type: enums.AccountTypeAsset},
		feeID:  {ID: feeID, Code: "6700", Type: enums.AccountTypeExpense},
		intID:  {ID: intID, Code: "4800", Type: enums.AccountTypeRevenue},
	}}
	ledgerCfg := config.LedgerConfig{
		BankFeeAccountCode:        "6700",
		InterestIncomeAccountCode: "4800",
	}
	reconCfg := config.ReconConfig{MatchWindowDays: 5, AmountTolerance: "0.01"}
	svc, err := NewService(repo, accountRepo, poster, tx, ledgerCfg, reconCfg)
	require.NoError(t, err)
	return &reconEnv{service: svc, repo: repo, poster: poster, tx: tx, bankID: bankID, feeID: feeID, intID: intID}
}

func day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func TestImportTransactionsValidation(t *testing.T) {
	env := newReconEnv(t)
	ctx := context.Background()

	_, err := env.service.ImportTransactions(ctx, uuid.Nil, []TransactionInput{
		{TransactionDate: day(1), Amount: dec("10")},
	})
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeValidation, appErr.Code())

	_, err = env.service.ImportTransactions(ctx, uuid.New(), []TransactionInput{
		{TransactionDate: day(1), Amount: dec("10")},
	})
	appErr = apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code())

	_, err = env.service.ImportTransactions(ctx, env.bankID, []TransactionInput{
		{TransactionDate: day(1), Amount: dec("0")},
	})
	appErr = apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeValidation, appErr.Code())

	_, err = env.service.ImportTransactions(ctx, env.feeID, []TransactionInput{
		{TransactionDate: day(1), Amount: dec("10")},
	})
	appErr = apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeValidation, appErr.Code())
}

func TestReconcileMatchesAndBalances(t *testing.T) {
	env := newReconEnv(t)
	ctx := context.Background()

	// Books: deposit 100, check 40, and a check 25 the bank has not cleared.
	depositLine := uuid.New()
	checkLine := uuid.New()
	outstandingLine := uuid.New()
	env.repo.candidates = []CandidateLine{
		{LineID: depositLine, EntryDate: day(10), Direction: enums.LineDirectionDebit, Amount: dec("100")},
		{LineID: checkLine, EntryDate: day(12), Direction: enums.LineDirectionCredit, Amount: dec("40")},
		{LineID: outstandingLine, EntryDate: day(28), Direction: enums.LineDirectionCredit, Amount: dec("25")},
	}
	// Opening 500 + 100 - 40 - 25 per books.
	env.repo.bookBalance = dec("535")

	txns, err := env.service.ImportTransactions(ctx, env.bankID, []TransactionInput{
		{TransactionDate: day(11), Amount: dec("100"), Description: "customer deposit"},
		{TransactionDate: day(13), Amount: dec("-40"), Description: "check 1041"},
		{TransactionDate: day(31), Amount: dec("-15"), Description: "monthly service fee"},
	})
	require.NoError(t, err)
	require.Len(t, txns, 3)

	// Statement: 500 + 100 - 40 - 15.
	result, err := env.service.Reconcile(ctx, ReconcileInput{
		BankAccountID:    env.bankID,
		FiscalYear:       2024,
		FiscalMonth:      5,
		StatementBalance: dec("545"),
		Adjustments: []AdjustmentInput{
			{Kind: AdjustmentFee, Amount: dec("15"), Description: "monthly service fee"},
		},
		RunBy: "controller",
	})
	require.NoError(t, err)

	require.Len(t, result.Matches, 2)
	assert.Equal(t, depositLine, result.Matches[0].LineID)
	assert.Equal(t, checkLine, result.Matches[1].LineID)

	require.Len(t, result.UnmatchedBank, 1)
	assert.Equal(t, "monthly service fee", result.UnmatchedBank[0].Description)

	require.Len(t, result.OutstandingBook, 1)
	assert.Equal(t, outstandingLine, result.OutstandingBook[0].LineID)

	rec := result.Reconciliation
	assert.True(t, dec("535").Equal(rec.BookBalance))
	assert.True(t, dec("520").Equal(rec.AdjustedBankBalance), "545 - 25 outstanding")
	assert.True(t, dec("520").Equal(rec.AdjustedBookBalance), "535 - 15 fee")
	assert.True(t, rec.Balanced)
	assert.NotNil(t, rec.CompletedAt)
	require.NotNil(t, rec.AdjustingEntryID)

	// Fee journaled against the bank account.
	require.NotNil(t, env.poster.input)
	input := *env.poster.input
	require.Len(t, input.Lines, 2)
	assert.Equal(t, env.feeID, input.Lines[0].AccountID)
	assert.Equal(t, enums.LineDirectionDebit, input.Lines[0].Direction)
	assert.Equal(t, env.bankID, input.Lines[1].AccountID)
	assert.Equal(t, enums.LineDirectionCredit, input.Lines[1].Direction)
	assert.True(t, dec("15").Equal(input.Lines[0].Amount))

	// Matched statement lines carry the claim.
	stored := env.repo.txns[txns[0].ID]
	assert.True(t, stored.Matched)
	require.NotNil(t, stored.MatchedLineID)
	assert.Equal(t, depositLine, *stored.MatchedLineID)
	assert.Equal(t, rec.ID, *stored.ReconciliationID)
}

func TestReconcileNeverClaimsALineTwice(t *testing.T) {
	env := newReconEnv(t)
	ctx := context.Background()

	line := uuid.New()
	env.repo.candidates = []CandidateLine{
		{LineID: line, EntryDate: day(10), Direction: enums.LineDirectionDebit, Amount: dec("100")},
	}
	env.repo.bookBalance = dec("100")

	_, err := env.service.ImportTransactions(ctx, env.bankID, []TransactionInput{
		{TransactionDate: day(10), Amount: dec("100")},
		{TransactionDate: day(11), Amount: dec("100")},
	})
	require.NoError(t, err)

	result, err := env.service.Reconcile(ctx, ReconcileInput{
		BankAccountID:    env.bankID,
		FiscalYear:       2024,
		FiscalMonth:      5,
		StatementBalance: dec("200"),
		RunBy:            "controller",
	})
	require.NoError(t, err)

	assert.Len(t, result.Matches, 1)
	assert.Len(t, result.UnmatchedBank, 1)
	assert.Empty(t, result.OutstandingBook)
	assert.False(t, result.Reconciliation.Balanced)
}

func TestReconcileRespectsDateWindowAndTolerance(t *testing.T) {
	env := newReconEnv(t)
	ctx := context.Background()

	farLine := uuid.New()
	offLine := uuid.New()
	env.repo.candidates = []CandidateLine{
		{LineID: farLine, EntryDate: day(1), Direction: enums.LineDirectionDebit, Amount: dec("100")},
		{LineID: offLine, EntryDate: day(20), Direction: enums.LineDirectionDebit, Amount: dec("99.90")},
	}
	env.repo.bookBalance = dec("199.90")

	_, err := env.service.ImportTransactions(ctx, env.bankID, []TransactionInput{
		{TransactionDate: day(20), Amount: dec("100")},
	})
	require.NoError(t, err)

	result, err := env.service.Reconcile(ctx, ReconcileInput{
		BankAccountID:    env.bankID,
		FiscalYear:       2024,
		FiscalMonth:      5,
		StatementBalance: dec("100"),
		RunBy:            "controller",
	})
	require.NoError(t, err)

	// day(1) is 19 days away; 99.90 misses by 0.10.
	assert.Empty(t, result.Matches)
	assert.Len(t, result.UnmatchedBank, 1)
	assert.Len(t, result.OutstandingBook, 2)
}

func TestReconcileInterestAdjustmentDirection(t *testing.T) {
	env := newReconEnv(t)
	ctx := context.Background()
	env.repo.bookBalance = dec("500")

	result, err := env.service.Reconcile(ctx, ReconcileInput{
		BankAccountID:    env.bankID,
		FiscalYear:       2024,
		FiscalMonth:      5,
		StatementBalance: dec("502.50"),
		Adjustments: []AdjustmentInput{
			{Kind: AdjustmentInterest, Amount: dec("2.50")},
		},
		RunBy: "controller",
	})
	require.NoError(t, err)

	require.NotNil(t, env.poster.input)
	input := *env.poster.input
	require.Len(t, input.Lines, 2)
	assert.Equal(t, env.bankID, input.Lines[0].AccountID)
	assert.Equal(t, enums.LineDirectionDebit, input.Lines[0].Direction)
	assert.Equal(t, env.intID, input.Lines[1].AccountID)
	assert.Equal(t, enums.LineDirectionCredit, input.Lines[1].Direction)

	assert.True(t, dec("502.50").Equal(result.Reconciliation.AdjustedBookBalance))
	assert.True(t, result.Reconciliation.Balanced)
}

func TestReconcilePostsAdjustmentsInsideRunTransaction(t *testing.T) {
	env := newReconEnv(t)
	env.repo.bookBalance = dec("500")

	_, err := env.service.Reconcile(context.Background(), ReconcileInput{
		BankAccountID:    env.bankID,
		FiscalYear:       2024,
		FiscalMonth:      5,
		StatementBalance: dec("495"),
		Adjustments: []AdjustmentInput{
			{Kind: AdjustmentFee, Amount: dec("5")},
		},
		RunBy: "controller",
	})
	require.NoError(t, err)

	require.NotNil(t, env.poster.tx)
	assert.Same(t, env.tx.handed, env.poster.tx)
}

func TestReconcileRejectsBadAdjustments(t *testing.T) {
	env := newReconEnv(t)
	ctx := context.Background()

	_, err := env.service.Reconcile(ctx, ReconcileInput{
		BankAccountID:    env.bankID,
		FiscalYear:       2024,
		FiscalMonth:      5,
		StatementBalance: dec("100"),
		Adjustments: []AdjustmentInput{
			{Kind: "nsf-mystery", Amount: dec("5")},
		},
		RunBy: "controller",
	})
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeValidation, appErr.Code())

	_, err = env.service.Reconcile(ctx, ReconcileInput{
		BankAccountID:    env.bankID,
		FiscalYear:       2024,
		FiscalMonth:      13,
		StatementBalance: dec("100"),
		RunBy:            "controller",
	})
	appErr = apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeValidation, appErr.Code())
}
