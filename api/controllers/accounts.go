package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clearledger/backoffice/api/responses"
	"github.com/clearledger/backoffice/api/validators"
	"github.com/clearledger/backoffice/internal/accounts"
	"github.com/clearledger/backoffice/pkg/enums"
	pkgerrors "github.com/clearledger/backoffice/pkg/errors"
	"github.com/clearledger/backoffice/pkg/logger"
)

type accountCreateRequest struct {
	Code            string  `json:"code" validate:"required"`
	Name            string  `json:"name" validate:"required,min=1,max=255"`
	Description     string  `json:"description"`
	Type            string  `json:"type" validate:"required"`
	NormalBalance   *string `json:"normal_balance,omitempty"`
	ParentAccountID *string `json:"parent_account_id,omitempty"`
}

// AccountCreate registers a new GL account.
func AccountCreate(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload accountCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := accounts.CreateAccountInput{
			Code:        payload.Code,
			Name:        validators.SanitizeString(payload.Name, 255),
			Description: validators.SanitizeString(payload.Description, 1000),
			Type:        enums.AccountType(payload.Type),
		}
		if payload.NormalBalance != nil {
			nb := enums.NormalBalance(*payload.NormalBalance)
			input.NormalBalance = &nb
		}
		if payload.ParentAccountID != nil {
			parentID, err := uuid.Parse(*payload.ParentAccountID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid parent account id"))
				return
			}
			input.ParentAccountID = &parentID
		}

		account, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, account)
	}
}

type accountUpdateRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty"`
}

// AccountUpdate adjusts the mutable account fields.
func AccountUpdate(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account id"))
			return
		}

		var payload accountUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.Update(r.Context(), id, accounts.UpdateAccountInput{
			Name:        payload.Name,
			Description: payload.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// AccountDeactivate retires an account so it no longer accepts postings.
func AccountDeactivate(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account id"))
			return
		}

		account, err := svc.Deactivate(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// AccountGet returns a single account by id.
func AccountGet(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account id"))
			return
		}

		account, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// AccountList returns accounts filtered by optional type and status.
func AccountList(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter accounts.ListFilter
		if raw := r.URL.Query().Get("type"); raw != "" {
			accountType := enums.AccountType(raw)
			filter.Type = &accountType
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := enums.AccountStatus(raw)
			filter.Status = &status
		}

		list, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AccountTree returns the account hierarchy nested by parent id.
func AccountTree(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tree, err := svc.Tree(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tree)
	}
}
