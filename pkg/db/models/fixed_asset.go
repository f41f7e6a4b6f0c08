package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/clearledger/backoffice/pkg/db/types"
	"github.com/clearledger/backoffice/pkg/enums"
)

// FixedAsset is a depreciable asset tracked by the satellite depreciation engine.
type FixedAsset struct {
	ID                      uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                    string                   `gorm:"column:name;type:varchar(200);not null"`
	AssetCode               string                   `gorm:"column:asset_code;type:varchar(50);not null;uniqueIndex:ux_fixed_assets_code"`
	AcquisitionCost         decimal.Decimal          `gorm:"column:acquisition_cost;type:decimal(18,4);not null"`
	SalvageValue            decimal.Decimal          `gorm:"column:salvage_value;type:decimal(18,4);not null"`
	UsefulLifeMonths        int                      `gorm:"column:useful_life_months;not null"`
	Method                  enums.DepreciationMethod `gorm:"column:method;type:depreciation_method_enum;not null"`
	DecliningBalanceFactor  decimal.Decimal          `gorm:"column:declining_balance_factor;type:decimal(6,4);not null;default:2"`
	DepreciationStartDate   time.Time                `gorm:"column:depreciation_start_date;type:date;not null"`
	AccumulatedDepreciation decimal.Decimal          `gorm:"column:accumulated_depreciation;type:decimal(18,4);not null;default:0"`
	Disposed                bool                     `gorm:"column:disposed;not null;default:false"`
	CreatedAt               time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides GORM's pluralization.
func (FixedAsset) TableName() string {
	return "fixed_assets"
}

// BookValue is cost minus accumulated depreciation.
func (a FixedAsset) BookValue() decimal.Decimal {
	return a.AcquisitionCost.Sub(a.AccumulatedDepreciation)
}

// DepreciationRun batches one period's depreciation for all eligible assets
// into a single posted journal entry. Unique per (year, month).
type DepreciationRun struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FiscalYear     int               `gorm:"column:fiscal_year;not null;uniqueIndex:ux_depreciation_runs_period"`
	FiscalMonth    int               `gorm:"column:fiscal_month;not null;uniqueIndex:ux_depreciation_runs_period"`
	JournalEntryID uuid.UUID         `gorm:"column:journal_entry_id;type:uuid;not null"`
	AssetIDs       dbtypes.UUIDArray `gorm:"column:asset_ids;type:uuid[];not null"`
	TotalAmount    decimal.Decimal   `gorm:"column:total_amount;type:decimal(18,4);not null"`
	RunBy          string            `gorm:"column:run_by;type:varchar(100)"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides GORM's pluralization.
func (DepreciationRun) TableName() string {
	return "depreciation_runs"
}
