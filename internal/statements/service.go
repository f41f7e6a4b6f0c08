package statements

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/internal/accounts"
	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
	apperrors "github.com/clearledger/backoffice/pkg/errors"
)

// Source tells a reader whether statement rows came from the immutable close
// snapshot or were derived live from posted entries.
type Source string

const (
	SourceSnapshot Source = "snapshot"
	SourceLive     Source = "live"
)

// BalanceEngine supplies the per-account balances statements are built from.
type BalanceEngine interface {
	ComputeForPeriod(ctx context.Context, tx *gorm.DB, year, month int) ([]models.AccountBalance, error)
	GetSnapshot(ctx context.Context, year, month int) ([]models.AccountBalance, error)
}

// PeriodLookup reports whether a period has been settled.
type PeriodLookup interface {
	IsSettled(ctx context.Context, tx *gorm.DB, year, month int) (bool, error)
}

// TrialBalanceRow is one account's closing balance split into the debit or
// credit column it naturally falls on.
type TrialBalanceRow struct {
	AccountID   uuid.UUID         `json:"account_id"`
	AccountCode string            `json:"account_code"`
	AccountName string            `json:"account_name"`
	AccountType enums.AccountType `json:"account_type"`
	Debit       decimal.Decimal   `json:"debit"`
	Credit      decimal.Decimal   `json:"credit"`
}

// TrialBalance lists every account with a balance at period end.
type TrialBalance struct {
	FiscalYear  int               `json:"fiscal_year"`
	FiscalMonth int               `json:"fiscal_month"`
	Source      Source            `json:"source"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
	Balanced    bool              `json:"balanced"`
}

// StatementLine is one account's contribution to a report section.
type StatementLine struct {
	AccountID   uuid.UUID       `json:"account_id"`
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Amount      decimal.Decimal `json:"amount"`
}

// IncomeStatement reports one period's result, with operating activity split
// from other income and expense. Margins are percentages of operating revenue
// and read 0 when there is no revenue.
type IncomeStatement struct {
	FiscalYear            int             `json:"fiscal_year"`
	FiscalMonth           int             `json:"fiscal_month"`
	Source                Source          `json:"source"`
	Revenue               []StatementLine `json:"revenue"`
	TotalRevenue          decimal.Decimal `json:"total_revenue"`
	COGS                  []StatementLine `json:"cogs"`
	TotalCOGS             decimal.Decimal `json:"total_cogs"`
	GrossProfit           decimal.Decimal `json:"gross_profit"`
	OperatingExpenses     []StatementLine `json:"operating_expenses"`
	TotalOperatingExpense decimal.Decimal `json:"total_operating_expense"`
	OperatingIncome       decimal.Decimal `json:"operating_income"`
	OtherIncome           []StatementLine `json:"other_income"`
	TotalOtherIncome      decimal.Decimal `json:"total_other_income"`
	OtherExpenses         []StatementLine `json:"other_expenses"`
	TotalOtherExpense     decimal.Decimal `json:"total_other_expense"`
	NetIncome             decimal.Decimal `json:"net_income"`
	GrossMargin           decimal.Decimal `json:"gross_margin"`
	OperatingMargin       decimal.Decimal `json:"operating_margin"`
	NetMargin             decimal.Decimal `json:"net_margin"`
}

// BalanceSheet reports financial position as of period end. Current earnings
// carries the cumulative operating result since income accounts are never
// swept into equity.
type BalanceSheet struct {
	FiscalYear       int             `json:"fiscal_year"`
	FiscalMonth      int             `json:"fiscal_month"`
	Source           Source          `json:"source"`
	Assets           []StatementLine `json:"assets"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	Liabilities      []StatementLine `json:"liabilities"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	Equity           []StatementLine `json:"equity"`
	CurrentEarnings  decimal.Decimal `json:"current_earnings"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	Balanced         bool            `json:"balanced"`
	Difference       decimal.Decimal `json:"difference"`
}

// CashFlowStatement reconciles the period's cash movement indirectly from net
// income and balance changes.
type CashFlowStatement struct {
	FiscalYear           int             `json:"fiscal_year"`
	FiscalMonth          int             `json:"fiscal_month"`
	Source               Source          `json:"source"`
	NetIncome            decimal.Decimal `json:"net_income"`
	DepreciationAddback  decimal.Decimal `json:"depreciation_addback"`
	WorkingCapitalChange decimal.Decimal `json:"working_capital_change"`
	OperatingCashFlow    decimal.Decimal `json:"operating_cash_flow"`
	InvestingCashFlow    decimal.Decimal `json:"investing_cash_flow"`
	FinancingCashFlow    decimal.Decimal `json:"financing_cash_flow"`
	NetCashChange        decimal.Decimal `json:"net_cash_change"`
	OpeningCash          decimal.Decimal `json:"opening_cash"`
	ClosingCash          decimal.Decimal `json:"closing_cash"`
	// Discrepancy is computed ending cash (opening + net change) minus the
	// actual cash-account balance. Zero when the statement ties out.
	Discrepancy decimal.Decimal `json:"discrepancy"`
}

// Service derives financial statements from balances. All methods are
// read-only.
type Service interface {
	TrialBalance(ctx context.Context, year, month int) (*TrialBalance, error)
	IncomeStatement(ctx context.Context, year, month int) (*IncomeStatement, error)
	BalanceSheet(ctx context.Context, year, month int) (*BalanceSheet, error)
	CashFlow(ctx context.Context, year, month int) (*CashFlowStatement, error)
}

var balanceTolerance = decimal.RequireFromString("0.01")

type service struct {
	balances    BalanceEngine
	accountRepo accounts.Repository
	periods     PeriodLookup
}

// NewService wires the statement engine with its read dependencies.
func NewService(balances BalanceEngine, accountRepo accounts.Repository, periods PeriodLookup) (Service, error) {
	if balances == nil {
		return nil, fmt.Errorf("balance engine required")
	}
	if accountRepo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if periods == nil {
		return nil, fmt.Errorf("period lookup required")
	}
	return &service{balances: balances, accountRepo: accountRepo, periods: periods}, nil
}

// resolveBalances prefers the close snapshot for settled periods and falls
// back to a live computation when the period is open or the snapshot is stale.
func (s *service) resolveBalances(ctx context.Context, year, month int) ([]models.AccountBalance, Source, error) {
	settled, err := s.periods.IsSettled(ctx, nil, year, month)
	if err != nil {
		return nil, "", err
	}
	if settled {
		snapshot, err := s.balances.GetSnapshot(ctx, year, month)
		if err != nil {
			return nil, "", err
		}
		usable := len(snapshot) > 0
		for _, row := range snapshot {
			if row.Stale {
				usable = false
				break
			}
		}
		if usable {
			return snapshot, SourceSnapshot, nil
		}
	}
	computed, err := s.balances.ComputeForPeriod(ctx, nil, year, month)
	if err != nil {
		return nil, "", err
	}
	return computed, SourceLive, nil
}

func (s *service) accountIndex(ctx context.Context) (map[uuid.UUID]models.Account, error) {
	all, err := s.accountRepo.List(ctx, accounts.ListFilter{})
	if err != nil {
		return nil, err
	}
	index := make(map[uuid.UUID]models.Account, len(all))
	for _, account := range all {
		index[account.ID] = account
	}
	return index, nil
}

func (s *service) TrialBalance(ctx context.Context, year, month int) (*TrialBalance, error) {
	rows, source, err := s.resolveBalances(ctx, year, month)
	if err != nil {
		return nil, err
	}
	index, err := s.accountIndex(ctx)
	if err != nil {
		return nil, err
	}

	tb := &TrialBalance{
		FiscalYear:  year,
		FiscalMonth: month,
		Source:      source,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	for _, row := range rows {
		account, ok := index[row.AccountID]
		if !ok {
			return nil, apperrors.New(apperrors.CodeInternal,
				fmt.Sprintf("balance references unknown account %s", row.AccountID))
		}
		if row.ClosingBalance.IsZero() {
			continue
		}

		out := TrialBalanceRow{
			AccountID:   row.AccountID,
			AccountCode: account.Code,
			AccountName: account.Name,
			AccountType: account.Type,
			Debit:       decimal.Zero,
			Credit:      decimal.Zero,
		}
		// A negative closing flips the account onto its opposite column.
		onDebitSide := account.NormalBalance == enums.NormalBalanceDebit
		if row.ClosingBalance.IsNegative() {
			onDebitSide = !onDebitSide
		}
		if onDebitSide {
			out.Debit = row.ClosingBalance.Abs()
		} else {
			out.Credit = row.ClosingBalance.Abs()
		}
		tb.TotalDebit = tb.TotalDebit.Add(out.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(out.Credit)
		tb.Rows = append(tb.Rows, out)
	}

	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].AccountCode < tb.Rows[j].AccountCode })
	tb.Balanced = tb.TotalDebit.Sub(tb.TotalCredit).Abs().LessThanOrEqual(balanceTolerance)
	return tb, nil
}

func (s *service) IncomeStatement(ctx context.Context, year, month int) (*IncomeStatement, error) {
	rows, source, err := s.resolveBalances(ctx, year, month)
	if err != nil {
		return nil, err
	}
	index, err := s.accountIndex(ctx)
	if err != nil {
		return nil, err
	}

	out := &IncomeStatement{
		FiscalYear:            year,
		FiscalMonth:           month,
		Source:                source,
		TotalRevenue:          decimal.Zero,
		TotalCOGS:             decimal.Zero,
		TotalOperatingExpense: decimal.Zero,
		TotalOtherIncome:      decimal.Zero,
		TotalOtherExpense:     decimal.Zero,
	}
	for _, row := range rows {
		account, ok := index[row.AccountID]
		if !ok {
			continue
		}
		// Income statement covers the period's activity only.
		net := periodActivity(account, row)
		if net.IsZero() {
			continue
		}
		line := StatementLine{
			AccountID:   row.AccountID,
			AccountCode: account.Code,
			AccountName: account.Name,
			Amount:      net,
		}
		switch account.Type {
		case enums.AccountTypeRevenue:
			if isOtherIncomeAccount(account) {
				out.OtherIncome = append(out.OtherIncome, line)
				out.TotalOtherIncome = out.TotalOtherIncome.Add(net)
			} else {
				out.Revenue = append(out.Revenue, line)
				out.TotalRevenue = out.TotalRevenue.Add(net)
			}
		case enums.AccountTypeCOGS:
			out.COGS = append(out.COGS, line)
			out.TotalCOGS = out.TotalCOGS.Add(net)
		case enums.AccountTypeExpense:
			if isOtherExpenseAccount(account) {
				out.OtherExpenses = append(out.OtherExpenses, line)
				out.TotalOtherExpense = out.TotalOtherExpense.Add(net)
			} else {
				out.OperatingExpenses = append(out.OperatingExpenses, line)
				out.TotalOperatingExpense = out.TotalOperatingExpense.Add(net)
			}
		}
	}

	sortLines(out.Revenue)
	sortLines(out.COGS)
	sortLines(out.OperatingExpenses)
	sortLines(out.OtherIncome)
	sortLines(out.OtherExpenses)
	out.GrossProfit = out.TotalRevenue.Sub(out.TotalCOGS)
	out.OperatingIncome = out.GrossProfit.Sub(out.TotalOperatingExpense)
	out.NetIncome = out.OperatingIncome.Add(out.TotalOtherIncome).Sub(out.TotalOtherExpense)
	out.GrossMargin = marginOf(out.GrossProfit, out.TotalRevenue)
	out.OperatingMargin = marginOf(out.OperatingIncome, out.TotalRevenue)
	out.NetMargin = marginOf(out.NetIncome, out.TotalRevenue)
	return out, nil
}

func (s *service) BalanceSheet(ctx context.Context, year, month int) (*BalanceSheet, error) {
	rows, source, err := s.resolveBalances(ctx, year, month)
	if err != nil {
		return nil, err
	}
	index, err := s.accountIndex(ctx)
	if err != nil {
		return nil, err
	}

	out := &BalanceSheet{
		FiscalYear:       year,
		FiscalMonth:      month,
		Source:           source,
		TotalAssets:      decimal.Zero,
		TotalLiabilities: decimal.Zero,
		CurrentEarnings:  decimal.Zero,
	}
	equityFromAccounts := decimal.Zero
	for _, row := range rows {
		account, ok := index[row.AccountID]
		if !ok {
			continue
		}
		line := StatementLine{
			AccountID:   row.AccountID,
			AccountCode: account.Code,
			AccountName: account.Name,
			Amount:      row.ClosingBalance,
		}
		switch account.Type {
		case enums.AccountTypeAsset:
			// Contra assets reduce the section total.
			amount := row.ClosingBalance
			if account.NormalBalance == enums.NormalBalanceCredit {
				amount = amount.Neg()
				line.Amount = amount
			}
			if !amount.IsZero() {
				out.Assets = append(out.Assets, line)
				out.TotalAssets = out.TotalAssets.Add(amount)
			}
		case enums.AccountTypeLiability:
			if !row.ClosingBalance.IsZero() {
				out.Liabilities = append(out.Liabilities, line)
				out.TotalLiabilities = out.TotalLiabilities.Add(row.ClosingBalance)
			}
		case enums.AccountTypeEquity:
			if !row.ClosingBalance.IsZero() {
				out.Equity = append(out.Equity, line)
				equityFromAccounts = equityFromAccounts.Add(row.ClosingBalance)
			}
		case enums.AccountTypeRevenue:
			out.CurrentEarnings = out.CurrentEarnings.Add(row.ClosingBalance)
		case enums.AccountTypeCOGS, enums.AccountTypeExpense:
			out.CurrentEarnings = out.CurrentEarnings.Sub(row.ClosingBalance)
		}
	}

	sortLines(out.Assets)
	sortLines(out.Liabilities)
	sortLines(out.Equity)
	out.TotalEquity = equityFromAccounts.Add(out.CurrentEarnings)
	// Imbalance is data for the reader, never an error.
	out.Difference = out.TotalAssets.Sub(out.TotalLiabilities.Add(out.TotalEquity))
	out.Balanced = out.Difference.Abs().LessThanOrEqual(balanceTolerance)
	return out, nil
}

// CashFlow builds the indirect statement. Every balance change lands in
// exactly one bucket, so the three sections always reconcile to the cash
// movement.
func (s *service) CashFlow(ctx context.Context, year, month int) (*CashFlowStatement, error) {
	rows, source, err := s.resolveBalances(ctx, year, month)
	if err != nil {
		return nil, err
	}
	index, err := s.accountIndex(ctx)
	if err != nil {
		return nil, err
	}

	out := &CashFlowStatement{
		FiscalYear:           year,
		FiscalMonth:          month,
		Source:               source,
		NetIncome:            decimal.Zero,
		DepreciationAddback:  decimal.Zero,
		WorkingCapitalChange: decimal.Zero,
		InvestingCashFlow:    decimal.Zero,
		FinancingCashFlow:    decimal.Zero,
		OpeningCash:          decimal.Zero,
		ClosingCash:          decimal.Zero,
	}

	for _, row := range rows {
		account, ok := index[row.AccountID]
		if !ok {
			continue
		}
		change := row.ClosingBalance.Sub(row.OpeningBalance)

		switch account.Type {
		case enums.AccountTypeRevenue:
			out.NetIncome = out.NetIncome.Add(change)
		case enums.AccountTypeCOGS, enums.AccountTypeExpense:
			out.NetIncome = out.NetIncome.Sub(change)
		case enums.AccountTypeLiability:
			out.WorkingCapitalChange = out.WorkingCapitalChange.Add(change)
		case enums.AccountTypeEquity:
			out.FinancingCashFlow = out.FinancingCashFlow.Add(change)
		case enums.AccountTypeAsset:
			switch {
			case isCashAccount(account):
				out.OpeningCash = out.OpeningCash.Add(row.OpeningBalance)
				out.ClosingCash = out.ClosingCash.Add(row.ClosingBalance)
			case isFixedAssetAccount(account):
				if account.NormalBalance == enums.NormalBalanceCredit {
					// Accumulated depreciation growth is the non-cash add-back.
					out.DepreciationAddback = out.DepreciationAddback.Add(change)
				} else {
					out.InvestingCashFlow = out.InvestingCashFlow.Sub(change)
				}
			default:
				// Receivables, inventory and other current assets consume
				// cash when they grow.
				out.WorkingCapitalChange = out.WorkingCapitalChange.Sub(change)
			}
		}
	}

	out.OperatingCashFlow = out.NetIncome.Add(out.DepreciationAddback).Add(out.WorkingCapitalChange)
	out.NetCashChange = out.OperatingCashFlow.Add(out.InvestingCashFlow).Add(out.FinancingCashFlow)
	// Reconcile the derived movement against what the cash accounts actually
	// hold and surface any gap instead of accepting it silently.
	out.Discrepancy = out.OpeningCash.Add(out.NetCashChange).Sub(out.ClosingCash)
	return out, nil
}

// periodActivity is the account's net movement within the period on its
// normal side.
func periodActivity(account models.Account, row models.AccountBalance) decimal.Decimal {
	if account.NormalBalance == enums.NormalBalanceCredit {
		return row.CreditTotal.Sub(row.DebitTotal)
	}
	return row.DebitTotal.Sub(row.CreditTotal)
}

// marginOf expresses value as a percentage of revenue, 0 when revenue is 0.
func marginOf(value, revenue decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return value.Div(revenue).Mul(decimal.NewFromInt(100)).Round(2)
}

func isCashAccount(account models.Account) bool {
	code := codeOf(account)
	return code >= 1000 && code <= 1199
}

func isFixedAssetAccount(account models.Account) bool {
	code := codeOf(account)
	return code >= 1500 && code <= 1599
}

// Other income sits at the top of the revenue range, other expense at the top
// of the expense range. Everything below is operating.
func isOtherIncomeAccount(account models.Account) bool {
	code := codeOf(account)
	return code >= 4900 && code <= 4999
}

func isOtherExpenseAccount(account models.Account) bool {
	code := codeOf(account)
	return code >= 8000 && code <= 8999
}

func codeOf(account models.Account) int {
	code, err := strconv.Atoi(account.Code)
	if err != nil {
		return -1
	}
	return code
}

func sortLines(lines []StatementLine) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].AccountCode < lines[j].AccountCode })
}
