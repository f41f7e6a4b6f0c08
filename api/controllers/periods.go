package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clearledger/backoffice/api/responses"
	"github.com/clearledger/backoffice/api/validators"
	"github.com/clearledger/backoffice/internal/periods"
	pkgerrors "github.com/clearledger/backoffice/pkg/errors"
	"github.com/clearledger/backoffice/pkg/logger"
)

func periodParams(r *http.Request) (int, int, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fiscal year")
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fiscal month")
	}
	return year, month, nil
}

// PeriodList returns the known fiscal periods, optionally scoped to a year.
func PeriodList(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var year *int
		if raw := r.URL.Query().Get("year"); raw != "" {
			value, err := validators.ParseQueryInt(r, "year", 0, 2000, 2100)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			year = &value
		}

		list, err := svc.List(r.Context(), year)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// PeriodGet returns a single fiscal period.
func PeriodGet(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, month, err := periodParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		period, err := svc.Get(r.Context(), year, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, period)
	}
}

// PeriodCloseChecklist reports the blockers that would prevent a close.
func PeriodCloseChecklist(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, month, err := periodParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		blockers, err := svc.CloseChecklist(r.Context(), year, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"can_close": len(blockers) == 0,
			"blockers":  blockers,
		})
	}
}

// PeriodClose settles a period after the checklist passes.
func PeriodClose(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, month, err := periodParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		period, err := svc.Close(r.Context(), year, month, actor.UserID.String(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, period)
	}
}

type periodReopenRequest struct {
	Reason string `json:"reason" validate:"required,min=1"`
}

// PeriodReopen reverts a closed period to open with an audited reason.
func PeriodReopen(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, month, err := periodParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload periodReopenRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		period, err := svc.Reopen(r.Context(), year, month, payload.Reason, actor.UserID.String(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, period)
	}
}

// PeriodLock makes a closed period permanently immutable.
func PeriodLock(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, month, err := periodParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		period, err := svc.Lock(r.Context(), year, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, period)
	}
}
