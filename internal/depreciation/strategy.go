package depreciation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
)

// Strategy computes one month of depreciation for an asset. periodIndex is
// 1-based: the asset's first month in service is index 1.
//
// Implementations return the raw schedule amount; the service clamps it so
// book value never drops below salvage.
type Strategy interface {
	Method() enums.DepreciationMethod
	MonthlyAmount(asset models.FixedAsset, periodIndex int) decimal.Decimal
}

// Registry resolves a strategy by method.
type Registry struct {
	strategies map[enums.DepreciationMethod]Strategy
}

// NewRegistry builds a registry holding all supported methods.
func NewRegistry() *Registry {
	reg := &Registry{strategies: make(map[enums.DepreciationMethod]Strategy)}
	for _, s := range []Strategy{
		straightLine{},
		decliningBalance{},
		sumOfYearsDigits{},
	} {
		reg.strategies[s.Method()] = s
	}
	return reg
}

// Resolve returns the strategy for the method.
func (r *Registry) Resolve(method enums.DepreciationMethod) (Strategy, error) {
	s, ok := r.strategies[method]
	if !ok {
		return nil, fmt.Errorf("unsupported depreciation method %q", method)
	}
	return s, nil
}

type straightLine struct{}

func (straightLine) Method() enums.DepreciationMethod {
	return enums.DepreciationStraightLine
}

// MonthlyAmount spreads the depreciable base evenly across the useful life.
func (straightLine) MonthlyAmount(asset models.FixedAsset, periodIndex int) decimal.Decimal {
	if periodIndex < 1 || periodIndex > asset.UsefulLifeMonths {
		return decimal.Zero
	}
	base := asset.AcquisitionCost.Sub(asset.SalvageValue)
	return base.Div(decimal.NewFromInt(int64(asset.UsefulLifeMonths))).Round(4)
}

type decliningBalance struct{}

func (decliningBalance) Method() enums.DepreciationMethod {
	return enums.DepreciationDecliningBalance
}

// MonthlyAmount applies a constant rate to the declining book value. The rate
// is the configured factor spread over the life, so factor 2 over 60 months
// mirrors the classic double-declining annual rate.
func (decliningBalance) MonthlyAmount(asset models.FixedAsset, periodIndex int) decimal.Decimal {
	if periodIndex < 1 {
		return decimal.Zero
	}
	rate := asset.DecliningBalanceFactor.Div(decimal.NewFromInt(int64(asset.UsefulLifeMonths)))
	book := asset.AcquisitionCost
	one := decimal.NewFromInt(1)
	for i := 1; i < periodIndex; i++ {
		book = book.Mul(one.Sub(rate))
	}
	return book.Mul(rate).Round(4)
}

type sumOfYearsDigits struct{}

func (sumOfYearsDigits) Method() enums.DepreciationMethod {
	return enums.DepreciationSumOfYearsDigits
}

// MonthlyAmount weights the depreciable base by remaining life over the sum
// of the month digits 1..life.
func (sumOfYearsDigits) MonthlyAmount(asset models.FixedAsset, periodIndex int) decimal.Decimal {
	life := asset.UsefulLifeMonths
	if periodIndex < 1 || periodIndex > life {
		return decimal.Zero
	}
	remaining := int64(life - periodIndex + 1)
	digitSum := int64(life) * int64(life+1) / 2
	base := asset.AcquisitionCost.Sub(asset.SalvageValue)
	return base.Mul(decimal.NewFromInt(remaining)).
		Div(decimal.NewFromInt(digitSum)).
		Round(4)
}
