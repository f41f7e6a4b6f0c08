package depreciation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/internal/accounts"
	"github.com/clearledger/backoffice/internal/journal"
	"github.com/clearledger/backoffice/pkg/config"
	"github.com/clearledger/backoffice/pkg/db/models"
	dbtypes "github.com/clearledger/backoffice/pkg/db/types"
	"github.com/clearledger/backoffice/pkg/enums"
	apperrors "github.com/clearledger/backoffice/pkg/errors"
	"github.com/clearledger/backoffice/pkg/outbox"
)

const sourceService = "depreciation"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EntryPoster creates and posts a journal entry inside the caller's
// transaction, so the run and its entry commit together.
type EntryPoster interface {
	CreatePostedTx(ctx context.Context, tx *gorm.DB, input journal.CreateEntryInput) (*models.JournalEntry, error)
}

// RegisterAssetInput captures a new depreciable asset.
type RegisterAssetInput struct {
	Name                   string                   `json:"name"`
	AssetCode              string                   `json:"asset_code"`
	AcquisitionCost        decimal.Decimal          `json:"acquisition_cost"`
	SalvageValue           decimal.Decimal          `json:"salvage_value"`
	UsefulLifeMonths       int                      `json:"useful_life_months"`
	Method                 enums.DepreciationMethod `json:"method"`
	DecliningBalanceFactor *decimal.Decimal         `json:"declining_balance_factor,omitempty"`
	DepreciationStartDate  time.Time                `json:"depreciation_start_date"`
}

// RunResult reports one period run: the posted entry and per-asset amounts.
type RunResult struct {
	Run     *models.DepreciationRun       `json:"run"`
	Entry   *models.JournalEntry          `json:"entry"`
	Amounts map[uuid.UUID]decimal.Decimal `json:"amounts"`
}

// Service manages fixed assets and monthly depreciation runs.
type Service interface {
	RegisterAsset(ctx context.Context, input RegisterAssetInput) (*models.FixedAsset, error)
	GetAsset(ctx context.Context, id uuid.UUID) (*models.FixedAsset, error)
	ListAssets(ctx context.Context, includeDisposed bool) ([]models.FixedAsset, error)
	DisposeAsset(ctx context.Context, id uuid.UUID) (*models.FixedAsset, error)
	RunForPeriod(ctx context.Context, year, month int, runBy string, actor *outbox.ActorRef) (*RunResult, error)
	ListRuns(ctx context.Context, year *int) ([]models.DepreciationRun, error)
	Preview(ctx context.Context, assetID uuid.UUID, months int) ([]decimal.Decimal, error)
}

type service struct {
	repo        Repository
	registry    *Registry
	accountRepo accounts.Repository
	poster      EntryPoster
	tx          txRunner
	cfg         config.LedgerConfig
}

// NewService wires the depreciation engine with its collaborators.
func NewService(repo Repository, registry *Registry, accountRepo accounts.Repository, poster EntryPoster, tx txRunner, cfg config.LedgerConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("depreciation repository required")
	}
	if registry == nil {
		return nil, fmt.Errorf("strategy registry required")
	}
	if accountRepo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if poster == nil {
		return nil, fmt.Errorf("entry poster required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:        repo,
		registry:    registry,
		accountRepo: accountRepo,
		poster:      poster,
		tx:          tx,
		cfg:         cfg,
	}, nil
}

func (s *service) RegisterAsset(ctx context.Context, input RegisterAssetInput) (*models.FixedAsset, error) {
	if input.Name == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "asset name is required")
	}
	if input.AssetCode == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "asset code is required")
	}
	if !input.Method.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid depreciation method %q", input.Method))
	}
	if input.UsefulLifeMonths <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "useful life must be positive")
	}
	if input.AcquisitionCost.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.New(apperrors.CodeValidation, "acquisition cost must be positive")
	}
	if input.SalvageValue.IsNegative() || input.SalvageValue.GreaterThan(input.AcquisitionCost) {
		return nil, apperrors.New(apperrors.CodeValidation, "salvage value must be between zero and acquisition cost")
	}
	if input.DepreciationStartDate.IsZero() {
		return nil, apperrors.New(apperrors.CodeValidation, "depreciation start date is required")
	}

	factor := decimal.NewFromInt(2)
	if input.DecliningBalanceFactor != nil {
		if input.DecliningBalanceFactor.LessThanOrEqual(decimal.Zero) {
			return nil, apperrors.New(apperrors.CodeValidation, "declining balance factor must be positive")
		}
		factor = *input.DecliningBalanceFactor
	}

	asset := &models.FixedAsset{
		ID:                      uuid.New(),
		Name:                    input.Name,
		AssetCode:               input.AssetCode,
		AcquisitionCost:         input.AcquisitionCost,
		SalvageValue:            input.SalvageValue,
		UsefulLifeMonths:        input.UsefulLifeMonths,
		Method:                  input.Method,
		DecliningBalanceFactor:  factor,
		DepreciationStartDate:   input.DepreciationStartDate,
		AccumulatedDepreciation: decimal.Zero,
	}
	if err := s.repo.CreateAsset(ctx, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

func (s *service) GetAsset(ctx context.Context, id uuid.UUID) (*models.FixedAsset, error) {
	asset, err := s.repo.FindAssetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "asset not found")
	}
	return asset, nil
}

func (s *service) ListAssets(ctx context.Context, includeDisposed bool) ([]models.FixedAsset, error) {
	return s.repo.ListAssets(ctx, includeDisposed)
}

func (s *service) DisposeAsset(ctx context.Context, id uuid.UUID) (*models.FixedAsset, error) {
	asset, err := s.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset.Disposed {
		return asset, nil
	}
	asset.Disposed = true
	if err := s.repo.UpdateAsset(ctx, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

// RunForPeriod depreciates every eligible asset for the month and posts one
// aggregate journal entry. At most one run exists per period.
func (s *service) RunForPeriod(ctx context.Context, year, month int, runBy string, actor *outbox.ActorRef) (*RunResult, error) {
	if month < 1 || month > 12 {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid fiscal month %d", month))
	}

	var result *RunResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		existing, err := txRepo.FindRunForPeriod(ctx, year, month)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.New(apperrors.CodeConflict,
				fmt.Sprintf("depreciation already ran for %04d-%02d", year, month))
		}

		periodEnd := endOfMonth(year, month)
		assets, err := txRepo.ListDepreciable(ctx, periodEnd)
		if err != nil {
			return err
		}

		amounts := make(map[uuid.UUID]decimal.Decimal)
		total := decimal.Zero
		var assetIDs dbtypes.UUIDArray
		for i := range assets {
			asset := &assets[i]
			amount, err := s.amountFor(asset, year, month)
			if err != nil {
				return err
			}
			if amount.LessThanOrEqual(decimal.Zero) {
				continue
			}
			amounts[asset.ID] = amount
			total = total.Add(amount)
			assetIDs = append(assetIDs, asset.ID)

			asset.AccumulatedDepreciation = asset.AccumulatedDepreciation.Add(amount)
			if err := txRepo.UpdateAsset(ctx, asset); err != nil {
				return err
			}
		}

		if total.IsZero() {
			return apperrors.New(apperrors.CodeStateConflict,
				fmt.Sprintf("no depreciable assets for %04d-%02d", year, month))
		}

		expenseID, err := s.accountIDByCode(ctx, tx, s.cfg.DepreciationExpenseCode)
		if err != nil {
			return err
		}
		accumID, err := s.accountIDByCode(ctx, tx, s.cfg.AccumulatedDepreciationCode)
		if err != nil {
			return err
		}

		ref := fmt.Sprintf("dep-%04d%02d", year, month)
		entry, err := s.poster.CreatePostedTx(ctx, tx, journal.CreateEntryInput{
			EntryDate:         periodEnd,
			Description:       fmt.Sprintf("Depreciation for %04d-%02d", year, month),
			EntryType:         enums.JournalEntryTypeSystem,
			SourceService:     strPtr(sourceService),
			SourceReferenceID: &ref,
			CreatedBy:         runBy,
			Actor:             actor,
			Lines: []journal.LineInput{
				{AccountID: expenseID, Direction: enums.LineDirectionDebit, Amount: total, Memo: "monthly depreciation"},
				{AccountID: accumID, Direction: enums.LineDirectionCredit, Amount: total, Memo: "monthly depreciation"},
			},
		})
		if err != nil {
			return err
		}

		run := &models.DepreciationRun{
			ID:             uuid.New(),
			FiscalYear:     year,
			FiscalMonth:    month,
			JournalEntryID: entry.ID,
			AssetIDs:       assetIDs,
			TotalAmount:    total,
			RunBy:          runBy,
		}
		if err := txRepo.CreateRun(ctx, run); err != nil {
			return err
		}

		result = &RunResult{Run: run, Entry: entry, Amounts: amounts}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ListRuns(ctx context.Context, year *int) ([]models.DepreciationRun, error) {
	return s.repo.ListRuns(ctx, year)
}

// Preview returns the raw schedule for the asset's next months without
// touching state.
func (s *service) Preview(ctx context.Context, assetID uuid.UUID, months int) ([]decimal.Decimal, error) {
	asset, err := s.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if months <= 0 {
		months = asset.UsefulLifeMonths
	}
	strategy, err := s.registry.Resolve(asset.Method)
	if err != nil {
		return nil, err
	}

	schedule := make([]decimal.Decimal, 0, months)
	accumulated := asset.AccumulatedDepreciation
	for i := 1; i <= months; i++ {
		raw := strategy.MonthlyAmount(*asset, i)
		amount := clampToSalvage(*asset, accumulated, raw)
		accumulated = accumulated.Add(amount)
		schedule = append(schedule, amount)
	}
	return schedule, nil
}

// amountFor computes the asset's clamped amount for the given period.
func (s *service) amountFor(asset *models.FixedAsset, year, month int) (decimal.Decimal, error) {
	index := monthsSince(asset.DepreciationStartDate, year, month)
	if index < 1 {
		return decimal.Zero, nil
	}
	strategy, err := s.registry.Resolve(asset.Method)
	if err != nil {
		return decimal.Zero, err
	}
	raw := strategy.MonthlyAmount(*asset, index)
	return clampToSalvage(*asset, asset.AccumulatedDepreciation, raw), nil
}

// clampToSalvage caps the amount so book value never drops below salvage.
func clampToSalvage(asset models.FixedAsset, accumulated, amount decimal.Decimal) decimal.Decimal {
	remaining := asset.AcquisitionCost.Sub(asset.SalvageValue).Sub(accumulated)
	if remaining.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if amount.GreaterThan(remaining) {
		return remaining
	}
	return amount
}

func (s *service) accountIDByCode(ctx context.Context, tx *gorm.DB, code string) (uuid.UUID, error) {
	account, err := s.accountRepo.WithTx(tx).FindByCode(ctx, code)
	if err != nil {
		return uuid.Nil, err
	}
	if account == nil {
		return uuid.Nil, apperrors.New(apperrors.CodeDependency,
			fmt.Sprintf("posting account %s is missing from the chart of accounts", code))
	}
	return account.ID, nil
}

// monthsSince returns the 1-based index of (year, month) relative to the
// asset's start month.
func monthsSince(start time.Time, year, month int) int {
	startUTC := start.UTC()
	return (year-startUTC.Year())*12 + month - int(startUTC.Month()) + 1
}

func endOfMonth(year, month int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 1, 0).Add(-24 * time.Hour)
}

func strPtr(s string) *string { return &s }
