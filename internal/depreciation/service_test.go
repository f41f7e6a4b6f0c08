package depreciation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/internal/accounts"
	"github.com/clearledger/backoffice/internal/journal"
	"github.com/clearledger/backoffice/pkg/config"
	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
	apperrors "github.com/clearledger/backoffice/pkg/errors"
)

type fakeRepo struct {
	assets map[uuid.UUID]*models.FixedAsset
	runs   map[[2]int]*models.DepreciationRun
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		assets: make(map[uuid.UUID]*models.FixedAsset),
		runs:   make(map[[2]int]*models.DepreciationRun),
	}
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) CreateAsset(ctx context.Context, asset *models.FixedAsset) error {
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	stored := *asset
	f.assets[asset.ID] = &stored
	return nil
}

func (f *fakeRepo) UpdateAsset(ctx context.Context, asset *models.FixedAsset) error {
	stored := *asset
	f.assets[asset.ID] = &stored
	return nil
}

func (f *fakeRepo) FindAssetByID(ctx context.Context, id uuid.UUID) (*models.FixedAsset, error) {
	asset, ok := f.assets[id]
	if !ok {
		return nil, nil
	}
	copied := *asset
	return &copied, nil
}

func (f *fakeRepo) ListAssets(ctx context.Context, includeDisposed bool) ([]models.FixedAsset, error) {
	var rows []models.FixedAsset
	for _, asset := range f.assets {
		if asset.Disposed && !includeDisposed {
			continue
		}
		rows = append(rows, *asset)
	}
	return rows, nil
}

func (f *fakeRepo) ListDepreciable(ctx context.Context, asOf time.Time) ([]models.FixedAsset, error) {
	var rows []models.FixedAsset
	for _, asset := range f.assets {
		if asset.Disposed || asset.DepreciationStartDate.After(asOf) {
			continue
		}
		rows = append(rows, *asset)
	}
	return rows, nil
}

func (f *fakeRepo) CreateRun(ctx context.Context, run *models.DepreciationRun) error {
	f.runs[[2]int{run.FiscalYear, run.FiscalMonth}] = run
	return nil
}

func (f *fakeRepo) FindRunForPeriod(ctx context.Context, year, month int) (*models.DepreciationRun, error) {
	return f.runs[[2]int{year, month}], nil
}

func (f *fakeRepo) ListRuns(ctx context.Context, year *int) ([]models.DepreciationRun, error) {
	var rows []models.DepreciationRun
	for _, run := range f.runs {
		if year != nil && run.FiscalYear != *year {
			continue
		}
		rows = append(rows, *run)
	}
	return rows, nil
}

type fakeAccounts struct {
	byCode map[string]*models.Account
}

func (f *fakeAccounts) WithTx(tx *gorm.DB) accounts.Repository { return f }

func (f *fakeAccounts) Create(ctx context.Context, account *models.Account) error { return nil }
func (f *fakeAccounts) Update(ctx context.Context, account *models.Account) error { return nil }

func (f *fakeAccounts) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	for _, account := range f.byCode {
		if account.ID == id {
			return account, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) FindByCode(ctx context.Context, code string) (*models.Account, error) {
	return f.byCode[code], nil
}

func (f *fakeAccounts) List(ctx context.Context, filter accounts.ListFilter) ([]models.Account, error) {
	return nil, nil
}

func (f *fakeAccounts) HasChildren(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeAccounts) HasJournalLines(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

type fakePoster struct {
	input   *journal.CreateEntryInput
	tx      *gorm.DB
	postErr error
}

func (f *fakePoster) CreatePostedTx(ctx context.Context, tx *gorm.DB, input journal.CreateEntryInput) (*models.JournalEntry, error) {
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.input = &input
	f.tx = tx
	return &models.JournalEntry{
		ID:                uuid.New(),
		Status:            enums.JournalEntryStatusPosted,
		SourceReferenceID: input.SourceReferenceID,
	}, nil
}

type fakeTx struct {
	handed *gorm.DB
}

func (f *fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.handed = &gorm.DB{}
	return fn(f.handed)
}

func testConfig() config.LedgerConfig {
	return config.LedgerConfig{
		DepreciationExpenseCode:     "6800",
		AccumulatedDepreciationCode: "1590",
	}
}

type depEnv struct {
	service Service
	repo    *fakeRepo
	poster  *fakePoster
	tx      *fakeTx
}

func newDepEnv(t *testing.T) *depEnv {
	t.Helper()
	repo := newFakeRepo()
	poster := &fakePoster{}
	tx := &fakeTx{}
	accountRepo := &fakeAccounts{byCode: map[string]*models.Account{
		"6800": {ID: uuid.New(), Code: "6800", Type: enums.AccountTypeExpense},
		"1590": {ID: uuid.New(), Code: "1590", Type: enums.AccountTypeAsset},
	}}
	svc, err := NewService(repo, NewRegistry(), accountRepo, poster, tx, testConfig())
	require.NoError(t, err)
	return &depEnv{service: svc, repo: repo, poster: poster, tx: tx}
}

func registerAsset(t *testing.T, env *depEnv, input RegisterAssetInput) *models.FixedAsset {
	t.Helper()
	asset, err := env.service.RegisterAsset(context.Background(), input)
	require.NoError(t, err)
	return asset
}

func straightLineInput(code string, start time.Time) RegisterAssetInput {
	return RegisterAssetInput{
		Name:                  "Forklift " + code,
		AssetCode:             code,
		AcquisitionCost:       dec("1200"),
		SalvageValue:          dec("0"),
		UsefulLifeMonths:      12,
		Method:                enums.DepreciationStraightLine,
		DepreciationStartDate: start,
	}
}

func TestRegisterAssetValidation(t *testing.T) {
	env := newDepEnv(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		mutate func(in *RegisterAssetInput)
	}{
		{"missing name", func(in *RegisterAssetInput) { in.Name = "" }},
		{"missing code", func(in *RegisterAssetInput) { in.AssetCode = "" }},
		{"bad method", func(in *RegisterAssetInput) { in.Method = "magic" }},
		{"zero life", func(in *RegisterAssetInput) { in.UsefulLifeMonths = 0 }},
		{"zero cost", func(in *RegisterAssetInput) { in.AcquisitionCost = dec("0") }},
		{"salvage above cost", func(in *RegisterAssetInput) { in.SalvageValue = dec("2000") }},
		{"missing start date", func(in *RegisterAssetInput) { in.DepreciationStartDate = time.Time{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := straightLineInput("FA-100", start)
			tc.mutate(&input)
			_, err := env.service.RegisterAsset(ctx, input)
			appErr := apperrors.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, apperrors.CodeValidation, appErr.Code())
		})
	}
}

func TestRegisterAssetDefaultsFactor(t *testing.T) {
	env := newDepEnv(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	asset := registerAsset(t, env, straightLineInput("FA-100", start))
	assert.True(t, dec("2").Equal(asset.DecliningBalanceFactor))
	assert.True(t, asset.AccumulatedDepreciation.IsZero())
}

func TestRunForPeriodPostsOneAggregateEntry(t *testing.T) {
	env := newDepEnv(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first := registerAsset(t, env, straightLineInput("FA-100", start))
	second := registerAsset(t, env, RegisterAssetInput{
		Name:                  "Server rack",
		AssetCode:             "FA-200",
		AcquisitionCost:       dec("2400"),
		SalvageValue:          dec("0"),
		UsefulLifeMonths:      24,
		Method:                enums.DepreciationStraightLine,
		DepreciationStartDate: start,
	})

	result, err := env.service.RunForPeriod(ctx, 2024, 5, "scheduler", nil)
	require.NoError(t, err)

	// FA-100: 1200/12 = 100. FA-200: 2400/24 = 100.
	assert.True(t, dec("200").Equal(result.Run.TotalAmount))
	assert.True(t, dec("100").Equal(result.Amounts[first.ID]))
	assert.True(t, dec("100").Equal(result.Amounts[second.ID]))
	assert.Len(t, result.Run.AssetIDs, 2)

	require.NotNil(t, env.poster.input)
	input := *env.poster.input
	assert.Equal(t, enums.JournalEntryTypeSystem, input.EntryType)
	require.NotNil(t, input.SourceReferenceID)
	assert.Equal(t, "dep-202405", *input.SourceReferenceID)
	require.Len(t, input.Lines, 2)
	assert.Equal(t, enums.LineDirectionDebit, input.Lines[0].Direction)
	assert.Equal(t, enums.LineDirectionCredit, input.Lines[1].Direction)
	assert.True(t, dec("200").Equal(input.Lines[0].Amount))

	updated, err := env.service.GetAsset(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(updated.AccumulatedDepreciation))
}

func TestRunForPeriodPostsInsideRunTransaction(t *testing.T) {
	env := newDepEnv(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	registerAsset(t, env, straightLineInput("FA-100", start))

	_, err := env.service.RunForPeriod(context.Background(), 2024, 5, "scheduler", nil)
	require.NoError(t, err)

	require.NotNil(t, env.poster.tx)
	assert.Same(t, env.tx.handed, env.poster.tx)
}

func TestRunForPeriodRejectsDuplicateRun(t *testing.T) {
	env := newDepEnv(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	registerAsset(t, env, straightLineInput("FA-100", start))

	_, err := env.service.RunForPeriod(ctx, 2024, 5, "scheduler", nil)
	require.NoError(t, err)

	_, err = env.service.RunForPeriod(ctx, 2024, 5, "scheduler", nil)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeConflict, appErr.Code())
}

func TestRunForPeriodSkipsAssetsNotYetInService(t *testing.T) {
	env := newDepEnv(t)
	ctx := context.Background()

	registerAsset(t, env, straightLineInput("FA-100",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	future := registerAsset(t, env, straightLineInput("FA-900",
		time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)))

	result, err := env.service.RunForPeriod(ctx, 2024, 5, "scheduler", nil)
	require.NoError(t, err)

	assert.True(t, dec("100").Equal(result.Run.TotalAmount))
	_, included := result.Amounts[future.ID]
	assert.False(t, included)
}

func TestRunForPeriodClampsFinalMonthToSalvage(t *testing.T) {
	env := newDepEnv(t)
	ctx := context.Background()

	asset := registerAsset(t, env, RegisterAssetInput{
		Name:                  "Laptop",
		AssetCode:             "FA-300",
		AcquisitionCost:       dec("1000"),
		SalvageValue:          dec("100"),
		UsefulLifeMonths:      12,
		Method:                enums.DepreciationStraightLine,
		DepreciationStartDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	// Nearly exhausted: only 30 of the 900 base remains.
	stored := env.repo.assets[asset.ID]
	stored.AccumulatedDepreciation = dec("870")

	result, err := env.service.RunForPeriod(ctx, 2024, 1, "scheduler", nil)
	require.NoError(t, err)
	assert.True(t, dec("30").Equal(result.Amounts[asset.ID]))

	updated, err := env.service.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.True(t, dec("900").Equal(updated.AccumulatedDepreciation))
}

func TestRunForPeriodWithNothingToDepreciate(t *testing.T) {
	env := newDepEnv(t)
	ctx := context.Background()

	asset := registerAsset(t, env, straightLineInput("FA-100",
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))
	env.repo.assets[asset.ID].AccumulatedDepreciation = dec("1200")

	_, err := env.service.RunForPeriod(ctx, 2024, 5, "scheduler", nil)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeStateConflict, appErr.Code())
	assert.Nil(t, env.poster.input)
}

func TestDisposedAssetsAreExcluded(t *testing.T) {
	env := newDepEnv(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	keep := registerAsset(t, env, straightLineInput("FA-100", start))
	gone := registerAsset(t, env, straightLineInput("FA-200", start))

	_, err := env.service.DisposeAsset(ctx, gone.ID)
	require.NoError(t, err)

	result, err := env.service.RunForPeriod(ctx, 2024, 5, "scheduler", nil)
	require.NoError(t, err)

	assert.True(t, dec("100").Equal(result.Amounts[keep.ID]))
	_, included := result.Amounts[gone.ID]
	assert.False(t, included)
}

func TestPreviewStopsAtSalvage(t *testing.T) {
	env := newDepEnv(t)
	ctx := context.Background()

	asset := registerAsset(t, env, RegisterAssetInput{
		Name:                  "Van",
		AssetCode:             "FA-400",
		AcquisitionCost:       dec("1000"),
		SalvageValue:          dec("100"),
		UsefulLifeMonths:      4,
		Method:                enums.DepreciationSumOfYearsDigits,
		DepreciationStartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	schedule, err := env.service.Preview(ctx, asset.ID, 5)
	require.NoError(t, err)
	require.Len(t, schedule, 5)

	// Digit sum 10, base 900: 360, 270, 180, 90, then nothing left.
	assert.True(t, dec("360").Equal(schedule[0]))
	assert.True(t, dec("270").Equal(schedule[1]))
	assert.True(t, dec("180").Equal(schedule[2]))
	assert.True(t, dec("90").Equal(schedule[3]))
	assert.True(t, schedule[4].IsZero())
}
