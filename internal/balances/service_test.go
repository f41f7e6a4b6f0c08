package balances

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/internal/accounts"
	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
)

type fakeRepository struct {
	lines     map[[2]int][]PostedLine
	snapshots map[[2]int][]models.AccountBalance
	upserted  []models.AccountBalance
	staleFor  [][2]int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		lines:     make(map[[2]int][]PostedLine),
		snapshots: make(map[[2]int][]models.AccountBalance),
	}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) ListPostedLines(ctx context.Context, year, month int) ([]PostedLine, error) {
	return f.lines[[2]int{year, month}], nil
}

func (f *fakeRepository) Upsert(ctx context.Context, balances []models.AccountBalance) error {
	f.upserted = balances
	if len(balances) > 0 {
		key := [2]int{balances[0].FiscalYear, balances[0].FiscalMonth}
		f.snapshots[key] = balances
	}
	return nil
}

func (f *fakeRepository) FindForPeriod(ctx context.Context, year, month int) ([]models.AccountBalance, error) {
	return f.snapshots[[2]int{year, month}], nil
}

func (f *fakeRepository) FindForAccount(ctx context.Context, accountID uuid.UUID, year, month int) (*models.AccountBalance, error) {
	for _, row := range f.snapshots[[2]int{year, month}] {
		if row.AccountID == accountID {
			return &row, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) MarkStaleForPeriod(ctx context.Context, year, month int) error {
	f.staleFor = append(f.staleFor, [2]int{year, month})
	return nil
}

type fakeAccountRepo struct {
	rows []models.Account
}

func (f *fakeAccountRepo) WithTx(tx *gorm.DB) accounts.Repository              { return f }
func (f *fakeAccountRepo) Create(ctx context.Context, a *models.Account) error { return nil }
func (f *fakeAccountRepo) Update(ctx context.Context, a *models.Account) error { return nil }

func (f *fakeAccountRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	for i := range f.rows {
		if f.rows[i].ID == id {
			return &f.rows[i], nil
		}
	}
	return nil, nil
}

func (f *fakeAccountRepo) FindByCode(ctx context.Context, code string) (*models.Account, error) {
	return nil, nil
}

func (f *fakeAccountRepo) List(ctx context.Context, filter accounts.ListFilter) ([]models.Account, error) {
	return f.rows, nil
}

func (f *fakeAccountRepo) HasChildren(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeAccountRepo) HasJournalLines(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestService_ComputeForPeriod(t *testing.T) {
	cashID := uuid.New()
	revenueID := uuid.New()

	repo := newFakeRepository()
	repo.snapshots[[2]int{2024, 4}] = []models.AccountBalance{
		{AccountID: cashID, FiscalYear: 2024, FiscalMonth: 4, ClosingBalance: dec("500.00")},
	}
	repo.lines[[2]int{2024, 5}] = []PostedLine{
		{AccountID: cashID, Direction: enums.LineDirectionDebit, Amount: dec("100.00")},
		{AccountID: cashID, Direction: enums.LineDirectionCredit, Amount: dec("30.00")},
		{AccountID: revenueID, Direction: enums.LineDirectionCredit, Amount: dec("100.00")},
		{AccountID: revenueID, Direction: enums.LineDirectionDebit, Amount: dec("30.00")},
	}

	accountRepo := &fakeAccountRepo{rows: []models.Account{
		{ID: cashID, Code: "1000", NormalBalance: enums.NormalBalanceDebit},
		{ID: revenueID, Code: "4000", NormalBalance: enums.NormalBalanceCredit},
	}}

	svc, err := NewService(repo, accountRepo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	result, err := svc.ComputeForPeriod(context.Background(), nil, 2024, 5)
	if err != nil {
		t.Fatalf("ComputeForPeriod error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(result))
	}

	byAccount := make(map[uuid.UUID]models.AccountBalance)
	for _, row := range result {
		byAccount[row.AccountID] = row
	}

	cash := byAccount[cashID]
	if !cash.OpeningBalance.Equal(dec("500.00")) {
		t.Fatalf("cash opening should chain from prior closing, got %s", cash.OpeningBalance)
	}
	if !cash.DebitTotal.Equal(dec("100.00")) || !cash.CreditTotal.Equal(dec("30.00")) {
		t.Fatalf("cash totals wrong: %s / %s", cash.DebitTotal, cash.CreditTotal)
	}
	if !cash.ClosingBalance.Equal(dec("570.00")) {
		t.Fatalf("debit-normal closing should be opening+debits-credits, got %s", cash.ClosingBalance)
	}

	revenue := byAccount[revenueID]
	if !revenue.OpeningBalance.Equal(decimal.Zero) {
		t.Fatalf("revenue opening should be zero, got %s", revenue.OpeningBalance)
	}
	if !revenue.ClosingBalance.Equal(dec("70.00")) {
		t.Fatalf("credit-normal closing should be opening+credits-debits, got %s", revenue.ClosingBalance)
	}
}

func TestService_ComputeForPeriodCarriesDormantAccounts(t *testing.T) {
	dormantID := uuid.New()
	repo := newFakeRepository()
	repo.snapshots[[2]int{2024, 4}] = []models.AccountBalance{
		{AccountID: dormantID, FiscalYear: 2024, FiscalMonth: 4, ClosingBalance: dec("42.00")},
	}
	accountRepo := &fakeAccountRepo{rows: []models.Account{
		{ID: dormantID, Code: "1200", NormalBalance: enums.NormalBalanceDebit},
	}}

	svc, err := NewService(repo, accountRepo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	result, err := svc.ComputeForPeriod(context.Background(), nil, 2024, 5)
	if err != nil {
		t.Fatalf("ComputeForPeriod error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("dormant account with prior balance must carry forward, got %d rows", len(result))
	}
	row := result[0]
	if !row.OpeningBalance.Equal(dec("42.00")) || !row.ClosingBalance.Equal(dec("42.00")) {
		t.Fatalf("dormant balance should pass through unchanged: %+v", row)
	}
	if !row.DebitTotal.Equal(decimal.Zero) || !row.CreditTotal.Equal(decimal.Zero) {
		t.Fatalf("dormant account should have zero activity: %+v", row)
	}
}

func TestService_SnapshotPeriodPersists(t *testing.T) {
	cashID := uuid.New()
	repo := newFakeRepository()
	repo.lines[[2]int{2024, 5}] = []PostedLine{
		{AccountID: cashID, Direction: enums.LineDirectionDebit, Amount: dec("10.00")},
		{AccountID: cashID, Direction: enums.LineDirectionCredit, Amount: dec("4.00")},
	}
	accountRepo := &fakeAccountRepo{rows: []models.Account{
		{ID: cashID, Code: "1000", NormalBalance: enums.NormalBalanceDebit},
	}}

	svc, err := NewService(repo, accountRepo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	if _, err := svc.SnapshotPeriod(context.Background(), nil, 2024, 5); err != nil {
		t.Fatalf("SnapshotPeriod error: %v", err)
	}
	if len(repo.upserted) != 1 {
		t.Fatalf("expected snapshot upsert, got %d rows", len(repo.upserted))
	}
	if !repo.upserted[0].ClosingBalance.Equal(dec("6.00")) {
		t.Fatalf("persisted closing wrong: %s", repo.upserted[0].ClosingBalance)
	}

	// A later period now opens from this snapshot.
	result, err := svc.ComputeForPeriod(context.Background(), nil, 2024, 6)
	if err != nil {
		t.Fatalf("ComputeForPeriod error: %v", err)
	}
	if len(result) != 1 || !result[0].OpeningBalance.Equal(dec("6.00")) {
		t.Fatalf("next period should open from snapshot: %+v", result)
	}
}

func TestService_ComputeYearChainsMonthlyClosings(t *testing.T) {
	cashID := uuid.New()
	repo := newFakeRepository()
	repo.snapshots[[2]int{2023, 12}] = []models.AccountBalance{
		{AccountID: cashID, FiscalYear: 2023, FiscalMonth: 12, ClosingBalance: dec("100.00")},
	}
	// Activity in January and March only; no snapshots persisted in between.
	repo.lines[[2]int{2024, 1}] = []PostedLine{
		{AccountID: cashID, Direction: enums.LineDirectionDebit, Amount: dec("50.00")},
	}
	repo.lines[[2]int{2024, 3}] = []PostedLine{
		{AccountID: cashID, Direction: enums.LineDirectionCredit, Amount: dec("30.00")},
	}
	accountRepo := &fakeAccountRepo{rows: []models.Account{
		{ID: cashID, Code: "1000", NormalBalance: enums.NormalBalanceDebit},
	}}

	svc, err := NewService(repo, accountRepo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	result, err := svc.ComputeYear(context.Background(), nil, 2024)
	if err != nil {
		t.Fatalf("ComputeYear error: %v", err)
	}
	if len(result) != 12 {
		t.Fatalf("expected a row per month for the active account, got %d", len(result))
	}

	byMonth := make(map[int]models.AccountBalance)
	for _, row := range result {
		if row.AccountID != cashID {
			t.Fatalf("unexpected account in result: %s", row.AccountID)
		}
		byMonth[row.FiscalMonth] = row
	}

	if !byMonth[1].OpeningBalance.Equal(dec("100.00")) || !byMonth[1].ClosingBalance.Equal(dec("150.00")) {
		t.Fatalf("january should open from december snapshot: %+v", byMonth[1])
	}
	if !byMonth[2].OpeningBalance.Equal(dec("150.00")) || !byMonth[2].ClosingBalance.Equal(dec("150.00")) {
		t.Fatalf("february should carry january closing without persisted snapshot: %+v", byMonth[2])
	}
	if !byMonth[3].ClosingBalance.Equal(dec("120.00")) {
		t.Fatalf("march closing wrong: %+v", byMonth[3])
	}
	if !byMonth[12].ClosingBalance.Equal(dec("120.00")) {
		t.Fatalf("december should still carry the running balance: %+v", byMonth[12])
	}
}

func TestService_ComputeForPeriodRejectsBadMonth(t *testing.T) {
	svc, err := NewService(newFakeRepository(), &fakeAccountRepo{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	if _, err := svc.ComputeForPeriod(context.Background(), nil, 2024, 13); err == nil {
		t.Fatal("month 13 should be rejected")
	}
}
