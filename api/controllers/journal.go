package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearledger/backoffice/api/middleware"
	"github.com/clearledger/backoffice/api/responses"
	"github.com/clearledger/backoffice/api/validators"
	"github.com/clearledger/backoffice/internal/journal"
	"github.com/clearledger/backoffice/pkg/enums"
	pkgerrors "github.com/clearledger/backoffice/pkg/errors"
	"github.com/clearledger/backoffice/pkg/logger"
	"github.com/clearledger/backoffice/pkg/outbox"
	"github.com/clearledger/backoffice/pkg/pagination"
)

type journalLineRequest struct {
	AccountID   string  `json:"account_id" validate:"required,uuid"`
	Direction   string  `json:"direction" validate:"required,oneof=debit credit"`
	Amount      string  `json:"amount" validate:"required"`
	Memo        string  `json:"memo"`
	WarehouseID *string `json:"warehouse_id,omitempty" validate:"omitempty,uuid"`
	ProductID   *string `json:"product_id,omitempty" validate:"omitempty,uuid"`
}

type journalCreateRequest struct {
	EntryDate         string               `json:"entry_date" validate:"required"`
	Description       string               `json:"description" validate:"required,min=1"`
	SourceReferenceID *string              `json:"source_reference_id,omitempty"`
	Lines             []journalLineRequest `json:"lines" validate:"required,min=2,dive"`
	PostImmediately   bool                 `json:"post_immediately"`
}

func (req journalCreateRequest) toInput(actor *outbox.ActorRef, createdBy string) (journal.CreateEntryInput, error) {
	entryDate, err := time.Parse("2006-01-02", req.EntryDate)
	if err != nil {
		return journal.CreateEntryInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "entry_date must be YYYY-MM-DD")
	}

	lines := make([]journal.LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		accountID, err := uuid.Parse(line.AccountID)
		if err != nil {
			return journal.CreateEntryInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account id")
		}
		amount, err := decimal.NewFromString(line.Amount)
		if err != nil {
			return journal.CreateEntryInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid line amount")
		}
		in := journal.LineInput{
			AccountID: accountID,
			Direction: enums.LineDirection(line.Direction),
			Amount:    amount,
			Memo:      line.Memo,
		}
		if line.WarehouseID != nil {
			warehouseID, err := uuid.Parse(*line.WarehouseID)
			if err != nil {
				return journal.CreateEntryInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid warehouse id")
			}
			in.WarehouseID = &warehouseID
		}
		if line.ProductID != nil {
			productID, err := uuid.Parse(*line.ProductID)
			if err != nil {
				return journal.CreateEntryInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
			}
			in.ProductID = &productID
		}
		lines = append(lines, in)
	}

	return journal.CreateEntryInput{
		EntryDate:         entryDate,
		Description:       validators.SanitizeString(req.Description, 500),
		EntryType:         enums.JournalEntryTypeManual,
		SourceReferenceID: req.SourceReferenceID,
		CreatedBy:         createdBy,
		Actor:             actor,
		Lines:             lines,
	}, nil
}

// JournalCreate records a manual entry, as a draft or posted immediately.
func JournalCreate(svc journal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload journalCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(actor, actor.UserID.String())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var entry any
		if payload.PostImmediately {
			entry, err = svc.CreatePosted(r.Context(), input)
		} else {
			entry, err = svc.CreateDraft(r.Context(), input)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

// JournalPost transitions a draft entry to posted.
func JournalPost(svc journal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entry id"))
			return
		}

		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.Post(r.Context(), id, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}

type journalVoidRequest struct {
	Reason string `json:"reason" validate:"required,min=1"`
}

// JournalVoid marks a posted entry void, keeping it for the audit trail.
func JournalVoid(svc journal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entry id"))
			return
		}

		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload journalVoidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.Void(r.Context(), id, validators.SanitizeString(payload.Reason, 500), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}

// JournalGet returns one entry with its lines.
func JournalGet(svc journal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entry id"))
			return
		}

		entry, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}

// JournalList returns entries filtered by period, account, status or type.
func JournalList(svc journal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter journal.ListFilter

		if raw := r.URL.Query().Get("year"); raw != "" {
			year, err := validators.ParseQueryInt(r, "year", 0, 2000, 2100)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			filter.FiscalYear = &year
		}
		if raw := r.URL.Query().Get("month"); raw != "" {
			month, err := validators.ParseQueryInt(r, "month", 0, 1, 12)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			filter.FiscalMonth = &month
		}
		if raw := r.URL.Query().Get("account_id"); raw != "" {
			accountID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account id"))
				return
			}
			filter.AccountID = &accountID
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := enums.JournalEntryStatus(raw)
			filter.Status = &status
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, nextCursor, err := svc.List(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"entries":     entries,
			"next_cursor": nextCursor,
		})
	}
}

func actorFromContext(r *http.Request) (*outbox.ActorRef, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return &outbox.ActorRef{
		UserID: userID,
		Role:   middleware.RoleFromContext(r.Context()),
	}, nil
}
