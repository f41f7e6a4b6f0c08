package statements

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

type fakeBalances struct {
	live     []models.AccountBalance
	snapshot []models.AccountBalance
	liveUsed bool
}

func (f *fakeBalances) ComputeForPeriod(ctx context.Context, tx *gorm.DB, year, month int) ([]models.AccountBalance, error) {
	f.liveUsed = true
	return f.live, nil
}

func (f *fakeBalances) GetSnapshot(ctx context.Context, year, month int) ([]models.AccountBalance, error) {
	return f.snapshot, nil
}

type fakeAccountRepo struct {
	rows []models.Account
}

func (f *fakeAccountRepo) WithTx(tx *gorm.DB) accounts.Repository              { return f }
func (f *fakeAccountRepo) Create(ctx context.Context, a *models.Account) error { return nil }
func (f *fakeAccountRepo) Update(ctx context.Context, a *models.Account) error { return nil }
func (f *fakeAccountRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
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

type fakePeriods struct {
	settled bool
}

func (f *fakePeriods) IsSettled(ctx context.Context, tx *gorm.DB, year, month int) (bool, error) {
	return f.settled, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ledger fixture: opening cash 500, inventory 200, equity 700; then a credit
// sale of 100 with 40 COGS, 10 depreciation, and 30 collected in cash.
type fixture struct {
	cash, ar, inventory, accumDep, equity, revenue, cogs, depExp uuid.UUID

	accounts *fakeAccountRepo
	balances *fakeBalances
	periods  *fakePeriods
	svc      Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cash: uuid.New(), ar: uuid.New(), inventory: uuid.New(), accumDep: uuid.New(),
		equity: uuid.New(), revenue: uuid.New(), cogs: uuid.New(), depExp: uuid.New(),
		periods: &fakePeriods{},
	}
	f.accounts = &fakeAccountRepo{rows: []models.Account{
		{ID: f.cash, Code: "1000", Name: "Cash", Type: enums.AccountTypeAsset, NormalBalance: enums.NormalBalanceDebit},
		{ID: f.ar, Code: "1200", Name: "Accounts Receivable", Type: enums.AccountTypeAsset, NormalBalance: enums.NormalBalanceDebit},
		{ID: f.inventory, Code: "1300", Name: "Inventory", Type: enums.AccountTypeAsset, NormalBalance: enums.NormalBalanceDebit},
		{ID: f.accumDep, Code: "1590", Name: "Accumulated Depreciation", Type: enums.AccountTypeAsset, NormalBalance: enums.NormalBalanceCredit},
		{ID: f.equity, Code: "3000", Name: "Owner Equity", Type: enums.AccountTypeEquity, NormalBalance: enums.NormalBalanceCredit},
		{ID: f.revenue, Code: "4000", Name: "Sales Revenue", Type: enums.AccountTypeRevenue, NormalBalance: enums.NormalBalanceCredit},
		{ID: f.cogs, Code: "5000", Name: "Cost of Goods Sold", Type: enums.AccountTypeCOGS, NormalBalance: enums.NormalBalanceDebit},
		{ID: f.depExp, Code: "6800", Name: "Depreciation Expense", Type: enums.AccountTypeExpense, NormalBalance: enums.NormalBalanceDebit},
	}}
	f.balances = &fakeBalances{live: []models.AccountBalance{
		{AccountID: f.cash, OpeningBalance: dec("500"), DebitTotal: dec("30"), CreditTotal: dec("0"), ClosingBalance: dec("530")},
		{AccountID: f.ar, OpeningBalance: dec("0"), DebitTotal: dec("100"), CreditTotal: dec("30"), ClosingBalance: dec("70")},
		{AccountID: f.inventory, OpeningBalance: dec("200"), DebitTotal: dec("0"), CreditTotal: dec("40"), ClosingBalance: dec("160")},
		{AccountID: f.accumDep, OpeningBalance: dec("0"), DebitTotal: dec("0"), CreditTotal: dec("10"), ClosingBalance: dec("10")},
		{AccountID: f.equity, OpeningBalance: dec("700"), DebitTotal: dec("0"), CreditTotal: dec("0"), ClosingBalance: dec("700")},
		{AccountID: f.revenue, OpeningBalance: dec("0"), DebitTotal: dec("0"), CreditTotal: dec("100"), ClosingBalance: dec("100")},
		{AccountID: f.cogs, OpeningBalance: dec("0"), DebitTotal: dec("40"), CreditTotal: dec("0"), ClosingBalance: dec("40")},
		{AccountID: f.depExp, OpeningBalance: dec("0"), DebitTotal: dec("10"), CreditTotal: dec("0"), ClosingBalance: dec("10")},
	}}

	svc, err := NewService(f.balances, f.accounts, f.periods)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	f.svc = svc
	return f
}

func TestService_TrialBalanceBalances(t *testing.T) {
	f := newFixture(t)

	tb, err := f.svc.TrialBalance(context.Background(), 2024, 5)
	if err != nil {
		t.Fatalf("TrialBalance error: %v", err)
	}
	if tb.Source != SourceLive {
		t.Fatalf("open period should compute live, got %s", tb.Source)
	}
	if !tb.TotalDebit.Equal(dec("810")) || !tb.TotalCredit.Equal(dec("810")) {
		t.Fatalf("totals wrong: %s / %s", tb.TotalDebit, tb.TotalCredit)
	}
	if !tb.Balanced {
		t.Fatal("trial balance should report balanced")
	}
	if len(tb.Rows) != 8 {
		t.Fatalf("expected 8 rows, got %d", len(tb.Rows))
	}
	if tb.Rows[0].AccountCode != "1000" {
		t.Fatalf("rows should sort by code, first was %s", tb.Rows[0].AccountCode)
	}
	// Contra asset lands on the credit column.
	for _, row := range tb.Rows {
		if row.AccountCode == "1590" && !row.Credit.Equal(dec("10")) {
			t.Fatalf("accumulated depreciation should be a credit row: %+v", row)
		}
	}
}

func TestService_TrialBalancePrefersSnapshotWhenSettled(t *testing.T) {
	f := newFixture(t)
	f.periods.settled = true
	f.balances.snapshot = f.balances.live

	tb, err := f.svc.TrialBalance(context.Background(), 2024, 5)
	if err != nil {
		t.Fatalf("TrialBalance error: %v", err)
	}
	if tb.Source != SourceSnapshot {
		t.Fatalf("settled period should use snapshot, got %s", tb.Source)
	}
	if f.balances.liveUsed {
		t.Fatal("snapshot path must not recompute")
	}
}

func TestService_TrialBalanceStaleSnapshotFallsBackToLive(t *testing.T) {
	f := newFixture(t)
	f.periods.settled = true
	stale := make([]models.AccountBalance, len(f.balances.live))
	copy(stale, f.balances.live)
	stale[0].Stale = true
	f.balances.snapshot = stale

	tb, err := f.svc.TrialBalance(context.Background(), 2024, 5)
	if err != nil {
		t.Fatalf("TrialBalance error: %v", err)
	}
	if tb.Source != SourceLive {
		t.Fatalf("stale snapshot should fall back to live, got %s", tb.Source)
	}
}

func TestService_IncomeStatement(t *testing.T) {
	f := newFixture(t)

	is, err := f.svc.IncomeStatement(context.Background(), 2024, 5)
	if err != nil {
		t.Fatalf("IncomeStatement error: %v", err)
	}
	if !is.TotalRevenue.Equal(dec("100")) {
		t.Fatalf("revenue wrong: %s", is.TotalRevenue)
	}
	if !is.TotalCOGS.Equal(dec("40")) {
		t.Fatalf("cogs wrong: %s", is.TotalCOGS)
	}
	if !is.GrossProfit.Equal(dec("60")) {
		t.Fatalf("gross profit wrong: %s", is.GrossProfit)
	}
	if !is.TotalOperatingExpense.Equal(dec("10")) {
		t.Fatalf("operating expense wrong: %s", is.TotalOperatingExpense)
	}
	if !is.OperatingIncome.Equal(dec("50")) {
		t.Fatalf("operating income wrong: %s", is.OperatingIncome)
	}
	if !is.NetIncome.Equal(dec("50")) {
		t.Fatalf("net income wrong: %s", is.NetIncome)
	}
	if !is.GrossMargin.Equal(dec("60")) {
		t.Fatalf("gross margin wrong: %s", is.GrossMargin)
	}
	if !is.OperatingMargin.Equal(dec("50")) || !is.NetMargin.Equal(dec("50")) {
		t.Fatalf("margins wrong: %s / %s", is.OperatingMargin, is.NetMargin)
	}
}

func TestService_IncomeStatementSplitsOtherIncomeAndExpense(t *testing.T) {
	f := newFixture(t)
	interest := uuid.New()
	lateFees := uuid.New()
	f.accounts.rows = append(f.accounts.rows,
		models.Account{ID: interest, Code: "4900", Name: "Interest Income", Type: enums.AccountTypeRevenue, NormalBalance: enums.NormalBalanceCredit},
		models.Account{ID: lateFees, Code: "8100", Name: "Penalty Expense", Type: enums.AccountTypeExpense, NormalBalance: enums.NormalBalanceDebit},
	)
	f.balances.live = append(f.balances.live,
		models.AccountBalance{AccountID: interest, CreditTotal: dec("20"), ClosingBalance: dec("20")},
		models.AccountBalance{AccountID: lateFees, DebitTotal: dec("5"), ClosingBalance: dec("5")},
	)

	is, err := f.svc.IncomeStatement(context.Background(), 2024, 5)
	if err != nil {
		t.Fatalf("IncomeStatement error: %v", err)
	}
	// Operating revenue excludes the 4900 account.
	if !is.TotalRevenue.Equal(dec("100")) {
		t.Fatalf("operating revenue wrong: %s", is.TotalRevenue)
	}
	if len(is.OtherIncome) != 1 || !is.TotalOtherIncome.Equal(dec("20")) {
		t.Fatalf("other income wrong: %+v", is.OtherIncome)
	}
	if len(is.OtherExpenses) != 1 || !is.TotalOtherExpense.Equal(dec("5")) {
		t.Fatalf("other expense wrong: %+v", is.OtherExpenses)
	}
	if !is.OperatingIncome.Equal(dec("50")) {
		t.Fatalf("operating income wrong: %s", is.OperatingIncome)
	}
	// 50 + 20 - 5
	if !is.NetIncome.Equal(dec("65")) {
		t.Fatalf("net income wrong: %s", is.NetIncome)
	}
	if !is.NetMargin.Equal(dec("65")) {
		t.Fatalf("net margin wrong: %s", is.NetMargin)
	}
}

func TestService_IncomeStatementMarginsZeroWithoutRevenue(t *testing.T) {
	f := newFixture(t)
	f.balances.live = []models.AccountBalance{
		{AccountID: f.depExp, DebitTotal: dec("10"), ClosingBalance: dec("10")},
	}

	is, err := f.svc.IncomeStatement(context.Background(), 2024, 5)
	if err != nil {
		t.Fatalf("IncomeStatement error: %v", err)
	}
	if !is.NetIncome.Equal(dec("-10")) {
		t.Fatalf("net income wrong: %s", is.NetIncome)
	}
	if !is.GrossMargin.IsZero() || !is.OperatingMargin.IsZero() || !is.NetMargin.IsZero() {
		t.Fatalf("margins must read 0 without revenue: %s / %s / %s",
			is.GrossMargin, is.OperatingMargin, is.NetMargin)
	}
}

func TestService_BalanceSheetBalances(t *testing.T) {
	f := newFixture(t)

	bs, err := f.svc.BalanceSheet(context.Background(), 2024, 5)
	if err != nil {
		t.Fatalf("BalanceSheet error: %v", err)
	}
	if !bs.TotalAssets.Equal(dec("750")) {
		t.Fatalf("assets wrong: %s", bs.TotalAssets)
	}
	if !bs.TotalLiabilities.Equal(decimal.Zero) {
		t.Fatalf("liabilities wrong: %s", bs.TotalLiabilities)
	}
	if !bs.CurrentEarnings.Equal(dec("50")) {
		t.Fatalf("current earnings wrong: %s", bs.CurrentEarnings)
	}
	if !bs.TotalEquity.Equal(dec("750")) {
		t.Fatalf("equity wrong: %s", bs.TotalEquity)
	}
	if !bs.Balanced {
		t.Fatal("balance sheet should balance")
	}
	if !bs.Difference.IsZero() {
		t.Fatalf("difference should be zero, got %s", bs.Difference)
	}
}

func TestService_BalanceSheetSurfacesSignedDifference(t *testing.T) {
	f := newFixture(t)
	// Inflate cash without a matching credit: assets exceed the other side.
	f.balances.live[0].ClosingBalance = dec("555")

	bs, err := f.svc.BalanceSheet(context.Background(), 2024, 5)
	if err != nil {
		t.Fatalf("BalanceSheet error: %v", err)
	}
	if bs.Balanced {
		t.Fatal("imbalanced books should not report balanced")
	}
	if !bs.Difference.Equal(dec("25")) {
		t.Fatalf("expected signed difference 25, got %s", bs.Difference)
	}
}

func TestService_CashFlowReconciles(t *testing.T) {
	f := newFixture(t)

	cf, err := f.svc.CashFlow(context.Background(), 2024, 5)
	if err != nil {
		t.Fatalf("CashFlow error: %v", err)
	}
	if !cf.NetIncome.Equal(dec("50")) {
		t.Fatalf("net income wrong: %s", cf.NetIncome)
	}
	if !cf.DepreciationAddback.Equal(dec("10")) {
		t.Fatalf("depreciation addback wrong: %s", cf.DepreciationAddback)
	}
	if !cf.WorkingCapitalChange.Equal(dec("-30")) {
		t.Fatalf("working capital change wrong: %s", cf.WorkingCapitalChange)
	}
	if !cf.OperatingCashFlow.Equal(dec("30")) {
		t.Fatalf("operating cash flow wrong: %s", cf.OperatingCashFlow)
	}
	if !cf.NetCashChange.Equal(dec("30")) {
		t.Fatalf("net cash change wrong: %s", cf.NetCashChange)
	}
	if !cf.ClosingCash.Sub(cf.OpeningCash).Equal(cf.NetCashChange) {
		t.Fatalf("sections must reconcile to cash movement: %s vs %s-%s",
			cf.NetCashChange, cf.ClosingCash, cf.OpeningCash)
	}
	if !cf.Discrepancy.IsZero() {
		t.Fatalf("tied-out statement should report zero discrepancy, got %s", cf.Discrepancy)
	}
}

func TestService_CashFlowReportsDiscrepancy(t *testing.T) {
	f := newFixture(t)
	// Actual cash moved 5 more than the derived sections explain.
	f.balances.live[0].ClosingBalance = dec("535")

	cf, err := f.svc.CashFlow(context.Background(), 2024, 5)
	if err != nil {
		t.Fatalf("CashFlow error: %v", err)
	}
	if !cf.ClosingCash.Equal(dec("535")) {
		t.Fatalf("closing cash wrong: %s", cf.ClosingCash)
	}
	if !cf.Discrepancy.Equal(dec("-5")) {
		t.Fatalf("expected discrepancy -5, got %s", cf.Discrepancy)
	}
}
