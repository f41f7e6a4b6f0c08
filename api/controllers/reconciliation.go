package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearledger/backoffice/api/responses"
	"github.com/clearledger/backoffice/api/validators"
	"github.com/clearledger/backoffice/internal/reconciliation"
	pkgerrors "github.com/clearledger/backoffice/pkg/errors"
	"github.com/clearledger/backoffice/pkg/logger"
)

type bankTransactionRequest struct {
	TransactionDate string `json:"transaction_date" validate:"required"`
	Amount          string `json:"amount" validate:"required"`
	Description     string `json:"description"`
}

type importTransactionsRequest struct {
	BankAccountID string                   `json:"bank_account_id" validate:"required,uuid"`
	Transactions  []bankTransactionRequest `json:"transactions" validate:"required,min=1,dive"`
}

// BankTransactionsImport loads statement lines for later matching.
func BankTransactionsImport(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload importTransactionsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bankAccountID, err := uuid.Parse(payload.BankAccountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bank account id"))
			return
		}

		inputs := make([]reconciliation.TransactionInput, 0, len(payload.Transactions))
		for _, txn := range payload.Transactions {
			date, err := time.Parse("2006-01-02", txn.TransactionDate)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "transaction_date must be YYYY-MM-DD"))
				return
			}
			amount, err := decimal.NewFromString(txn.Amount)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction amount"))
				return
			}
			inputs = append(inputs, reconciliation.TransactionInput{
				TransactionDate: date,
				Amount:          amount,
				Description:     txn.Description,
			})
		}

		created, err := svc.ImportTransactions(r.Context(), bankAccountID, inputs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

type adjustmentRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=fee interest"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description"`
}

type reconcileRequest struct {
	BankAccountID    string              `json:"bank_account_id" validate:"required,uuid"`
	FiscalYear       int                 `json:"fiscal_year" validate:"required,min=2000,max=2100"`
	FiscalMonth      int                 `json:"fiscal_month" validate:"required,min=1,max=12"`
	StatementBalance string              `json:"statement_balance" validate:"required"`
	Adjustments      []adjustmentRequest `json:"adjustments,omitempty" validate:"omitempty,dive"`
}

// Reconcile matches statement lines against the books for one period.
func Reconcile(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reconcileRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bankAccountID, err := uuid.Parse(payload.BankAccountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bank account id"))
			return
		}
		statementBalance, err := decimal.NewFromString(payload.StatementBalance)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid statement balance"))
			return
		}

		input := reconciliation.ReconcileInput{
			BankAccountID:    bankAccountID,
			FiscalYear:       payload.FiscalYear,
			FiscalMonth:      payload.FiscalMonth,
			StatementBalance: statementBalance,
			RunBy:            actor.UserID.String(),
			Actor:            actor,
		}
		for _, adj := range payload.Adjustments {
			amount, err := decimal.NewFromString(adj.Amount)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid adjustment amount"))
				return
			}
			input.Adjustments = append(input.Adjustments, reconciliation.AdjustmentInput{
				Kind:        reconciliation.AdjustmentKind(adj.Kind),
				Amount:      amount,
				Description: adj.Description,
			})
		}

		result, err := svc.Reconcile(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ReconciliationGet returns one reconciliation by id.
func ReconciliationGet(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reconciliation id"))
			return
		}

		recon, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, recon)
	}
}

// ReconciliationList returns the reconciliations for a bank GL account.
func ReconciliationList(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bankAccountID, err := uuid.Parse(r.URL.Query().Get("bank_account_id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bank account id"))
			return
		}

		list, err := svc.List(r.Context(), bankAccountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
