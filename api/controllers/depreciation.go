package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearledger/backoffice/api/responses"
	"github.com/clearledger/backoffice/api/validators"
	"github.com/clearledger/backoffice/internal/depreciation"
	"github.com/clearledger/backoffice/pkg/enums"
	pkgerrors "github.com/clearledger/backoffice/pkg/errors"
	"github.com/clearledger/backoffice/pkg/logger"
)

type assetRegisterRequest struct {
	Name                   string  `json:"name" validate:"required,min=1,max=255"`
	AssetCode              string  `json:"asset_code" validate:"required,min=1,max=64"`
	AcquisitionCost        string  `json:"acquisition_cost" validate:"required"`
	SalvageValue           string  `json:"salvage_value"`
	UsefulLifeMonths       int     `json:"useful_life_months" validate:"required,min=1"`
	Method                 string  `json:"method" validate:"required"`
	DecliningBalanceFactor *string `json:"declining_balance_factor,omitempty"`
	DepreciationStartDate  string  `json:"depreciation_start_date" validate:"required"`
}

// AssetRegister records a new depreciable fixed asset.
func AssetRegister(svc depreciation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload assetRegisterRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cost, err := decimal.NewFromString(payload.AcquisitionCost)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid acquisition cost"))
			return
		}
		salvage := decimal.Zero
		if payload.SalvageValue != "" {
			salvage, err = decimal.NewFromString(payload.SalvageValue)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid salvage value"))
				return
			}
		}
		startDate, err := time.Parse("2006-01-02", payload.DepreciationStartDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "depreciation_start_date must be YYYY-MM-DD"))
			return
		}

		input := depreciation.RegisterAssetInput{
			Name:                  payload.Name,
			AssetCode:             payload.AssetCode,
			AcquisitionCost:       cost,
			SalvageValue:          salvage,
			UsefulLifeMonths:      payload.UsefulLifeMonths,
			Method:                enums.DepreciationMethod(payload.Method),
			DepreciationStartDate: startDate,
		}
		if payload.DecliningBalanceFactor != nil {
			factor, err := decimal.NewFromString(*payload.DecliningBalanceFactor)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid declining balance factor"))
				return
			}
			input.DecliningBalanceFactor = &factor
		}

		asset, err := svc.RegisterAsset(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, asset)
	}
}

// AssetList returns fixed assets, optionally including disposed ones.
func AssetList(svc depreciation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeDisposed := r.URL.Query().Get("include_disposed") == "true"
		assets, err := svc.ListAssets(r.Context(), includeDisposed)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, assets)
	}
}

// AssetGet returns one fixed asset.
func AssetGet(svc depreciation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid asset id"))
			return
		}

		asset, err := svc.GetAsset(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, asset)
	}
}

// AssetDispose marks an asset disposed so later runs skip it.
func AssetDispose(svc depreciation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid asset id"))
			return
		}

		asset, err := svc.DisposeAsset(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, asset)
	}
}

type depreciationRunRequest struct {
	FiscalYear  int `json:"fiscal_year" validate:"required,min=2000,max=2100"`
	FiscalMonth int `json:"fiscal_month" validate:"required,min=1,max=12"`
}

// DepreciationRun posts the aggregate depreciation entry for a period.
func DepreciationRun(svc depreciation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload depreciationRunRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RunForPeriod(r.Context(), payload.FiscalYear, payload.FiscalMonth, actor.UserID.String(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// DepreciationRunList returns past runs, optionally scoped to a year.
func DepreciationRunList(svc depreciation.Service, logg *logger.Logger) http.HandlerFunc {
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

		runs, err := svc.ListRuns(r.Context(), year)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, runs)
	}
}

// AssetSchedulePreview returns the upcoming monthly amounts for one asset.
func AssetSchedulePreview(svc depreciation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid asset id"))
			return
		}

		months, err := validators.ParseQueryInt(r, "months", 12, 1, 600)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		schedule, err := svc.Preview(r.Context(), id, months)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"asset_id": id,
			"months":   months,
			"amounts":  schedule,
		})
	}
}
