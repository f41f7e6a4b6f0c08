package depreciation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/pkg/db/models"
)

// Repository manages fixed assets and depreciation run records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAsset(ctx context.Context, asset *models.FixedAsset) error
	UpdateAsset(ctx context.Context, asset *models.FixedAsset) error
	FindAssetByID(ctx context.Context, id uuid.UUID) (*models.FixedAsset, error)
	ListAssets(ctx context.Context, includeDisposed bool) ([]models.FixedAsset, error)
	ListDepreciable(ctx context.Context, asOf time.Time) ([]models.FixedAsset, error)
	CreateRun(ctx context.Context, run *models.DepreciationRun) error
	FindRunForPeriod(ctx context.Context, year, month int) (*models.DepreciationRun, error)
	ListRuns(ctx context.Context, year *int) ([]models.DepreciationRun, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an asset repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateAsset(ctx context.Context, asset *models.FixedAsset) error {
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(asset).Error
}

func (r *repository) UpdateAsset(ctx context.Context, asset *models.FixedAsset) error {
	return r.db.WithContext(ctx).Save(asset).Error
}

func (r *repository) FindAssetByID(ctx context.Context, id uuid.UUID) (*models.FixedAsset, error) {
	var asset models.FixedAsset
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

func (r *repository) ListAssets(ctx context.Context, includeDisposed bool) ([]models.FixedAsset, error) {
	q := r.db.WithContext(ctx).Model(&models.FixedAsset{})
	if !includeDisposed {
		q = q.Where("disposed = ?", false)
	}
	var rows []models.FixedAsset
	err := q.Order("asset_code ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) ListDepreciable(ctx context.Context, asOf time.Time) ([]models.FixedAsset, error) {
	var rows []models.FixedAsset
	err := r.db.WithContext(ctx).
		Where("disposed = ? AND depreciation_start_date <= ?", false, asOf).
		Order("asset_code ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CreateRun(ctx context.Context, run *models.DepreciationRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *repository) FindRunForPeriod(ctx context.Context, year, month int) (*models.DepreciationRun, error) {
	var run models.DepreciationRun
	err := r.db.WithContext(ctx).
		Where("fiscal_year = ? AND fiscal_month = ?", year, month).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *repository) ListRuns(ctx context.Context, year *int) ([]models.DepreciationRun, error) {
	q := r.db.WithContext(ctx).Model(&models.DepreciationRun{})
	if year != nil {
		q = q.Where("fiscal_year = ?", *year)
	}
	var rows []models.DepreciationRun
	err := q.Order("fiscal_year ASC, fiscal_month ASC").Find(&rows).Error
	return rows, err
}
