package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/clearledger/backoffice/api/responses"
	"github.com/clearledger/backoffice/api/validators"
	"github.com/clearledger/backoffice/internal/statements"
	"github.com/clearledger/backoffice/pkg/currency"
	pkgerrors "github.com/clearledger/backoffice/pkg/errors"
	"github.com/clearledger/backoffice/pkg/logger"
)

func statementPeriod(r *http.Request) (int, int, error) {
	year, err := validators.ParseQueryInt(r, "year", 0, 2000, 2100)
	if err != nil {
		return 0, 0, err
	}
	if year == 0 {
		return 0, 0, pkgerrors.New(pkgerrors.CodeValidation, "year query parameter is required")
	}
	month, err := validators.ParseQueryInt(r, "month", 0, 1, 12)
	if err != nil {
		return 0, 0, err
	}
	if month == 0 {
		return 0, 0, pkgerrors.New(pkgerrors.CodeValidation, "month query parameter is required")
	}
	return year, month, nil
}

// TrialBalance reports the per-account debit/credit totals for a period.
func TrialBalance(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, month, err := statementPeriod(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.TrialBalance(r.Context(), year, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// IncomeStatement reports revenue, expenses and net income for a period.
func IncomeStatement(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, month, err := statementPeriod(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.IncomeStatement(r.Context(), year, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// BalanceSheet reports assets, liabilities and equity as of period end.
func BalanceSheet(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, month, err := statementPeriod(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.BalanceSheet(r.Context(), year, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// CashFlow reports the indirect-method cash flow statement for a period.
func CashFlow(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, month, err := statementPeriod(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.CashFlow(r.Context(), year, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// CurrencyConvert converts a display amount between USD and IDR at the
// configured rate.
func CurrencyConvert(converter *currency.Converter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		var converted decimal.Decimal
		from := r.URL.Query().Get("from")
		switch from {
		case "USD":
			converted = converter.USDToIDR(amount)
		case "IDR":
			converted = converter.IDRToUSD(amount)
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "from must be USD or IDR"))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"from":      from,
			"amount":    amount,
			"converted": converted,
			"rate":      converter.Rate(),
		})
	}
}
