package tokenize

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rwax/lending-portal/lending-portal-backend/internal/auth"
	"rwax/lending-portal/lending-portal-backend/internal/ledger"
	"rwax/lending-portal/lending-portal-backend/internal/registry"
	"rwax/lending-portal/lending-portal-backend/internal/token"
)

const contractAccount = "rwax"

type fixture struct {
	db       *gorm.DB
	registry *registry.Service
	tokens   *token.Service
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&registry.Collection{}, &registry.Schema{}, &registry.Template{}, &registry.Asset{},
		&token.Currency{}, &token.Balance{},
		&Token{}, &TemplatePool{}, &TraitFactorSet{}, &PooledAsset{},
		&InboundTransfer{}, &ContractBalance{},
	))

	logger := zap.NewNop()
	registryService := registry.NewService(db, logger)
	tokenService := token.NewService(db, logger)
	service := NewService(db, logger, registryService, tokenService, contractAccount)
	registryService.RegisterTransferHook(service.HandleAssetTransfer)
	tokenService.RegisterTransferHook(service.HandleTokenTransfer)

	return &fixture{
		db:       db,
		registry: registryService,
		tokens:   tokenService,
		service:  service,
	}
}

func (f *fixture) seedCollection(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := f.registry.CreateCollection(ctx, "shitcollect", "shitpics", nil, 0, nil)
	require.NoError(t, err)
	_, err = f.registry.CreateSchema(ctx, "shitcollect", "shitpics", "pics", []registry.FormatField{
		{Name: "name", Type: "string"},
		{Name: "rarity", Type: "string"},
	})
	require.NoError(t, err)
}

func (f *fixture) seedTemplate(t *testing.T, maxSupply uint32, immutable map[string]interface{}) int32 {
	t.Helper()
	template, err := f.registry.CreateTemplate(context.Background(),
		"shitcollect", "shitpics", "pics", maxSupply, immutable)
	require.NoError(t, err)
	return template.ID
}

func (f *fixture) mintTo(t *testing.T, owner string, templateID int32, immutable map[string]interface{}) uint64 {
	t.Helper()
	asset, err := f.registry.MintAsset(context.Background(),
		"shitcollect", "shitpics", "pics", templateID, owner, immutable, nil)
	require.NoError(t, err)
	return asset.ID
}

func (f *fixture) contractBalance(t *testing.T, account, code string) string {
	t.Helper()
	var balance ContractBalance
	err := f.db.First(&balance, "account = ? AND code = ?", account, code).Error
	require.NoError(t, err)
	return balance.Quantity.String()
}

func TestTokenizeRequiresActorAuthority(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Tokenize(context.Background(), "mallory", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
	})
	require.Error(t, err)
	assert.Equal(t, "missing required authority shitcollect", err.Error())
	assert.True(t, auth.IsMissingAuthority(err))
}

func TestTokenizeUnknownCollection(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Tokenize(context.Background(), "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "nosuchthing",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
	})
	require.Error(t, err)
	assert.Equal(t, "No collection with this name exists", err.Error())
}

func TestTokenizeUnauthorizedAccount(t *testing.T) {
	f := newFixture(t)
	f.seedCollection(t)

	_, err := f.service.Tokenize(context.Background(), "stranger", TokenizeRequest{
		AuthorizedAccount: "stranger",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
	})
	require.Error(t, err)
	assert.Equal(t, "Account is not authorized", err.Error())
}

func TestTokenizeRejectsZeroSupply(t *testing.T) {
	f := newFixture(t)
	f.seedCollection(t)

	_, err := f.service.Tokenize(context.Background(), "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("0.0000 SHIT"),
	})
	require.Error(t, err)
	assert.Equal(t, "Must provide positive supply", err.Error())
}

func TestTokenizeCreatesAndIssuesToken(t *testing.T) {
	f := newFixture(t)
	f.seedCollection(t)

	created, err := f.service.Tokenize(context.Background(), "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
		TokenName:         "Shit Picture Shares",
	})
	require.NoError(t, err)
	assert.Equal(t, "SHIT", created.Code)
	assert.Equal(t, "100.0000 SHIT", created.MaximumSupply.String())
	assert.True(t, created.IssuedSupply.IsZero())

	// The full supply is parked on the contract account.
	balance, err := f.tokens.BalanceOf(f.db, contractAccount, ledger.Symbol{Code: "SHIT", Precision: 4})
	require.NoError(t, err)
	assert.Equal(t, "100.0000 SHIT", balance.String())

	_, err = f.service.Tokenize(context.Background(), "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("50.0000 SHIT"),
	})
	require.Error(t, err)
	assert.Equal(t, "Symbol already exists", err.Error())
}

func TestTokenizeTemplateValidation(t *testing.T) {
	f := newFixture(t)
	f.seedCollection(t)
	templateID := f.seedTemplate(t, 5, nil)
	ctx := context.Background()

	_, err := f.service.Tokenize(ctx, "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
		Templates:         []TemplateShare{{TemplateID: templateID, MaxAssetsToTokenize: 0}},
	})
	require.Error(t, err)
	assert.Equal(t, "Need to provide a maximum number of assets to tokenize", err.Error())

	_, err = f.service.Tokenize(ctx, "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
		Templates:         []TemplateShare{{TemplateID: templateID, MaxAssetsToTokenize: 6}},
	})
	require.Error(t, err)
	assert.Equal(t, "Templates actual supply is less than given max supply", err.Error())

	_, err = f.service.Tokenize(ctx, "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
		Templates:         []TemplateShare{{TemplateID: templateID, MaxAssetsToTokenize: 5}},
	})
	require.NoError(t, err)

	_, err = f.service.Tokenize(ctx, "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 MORE"),
		Templates:         []TemplateShare{{TemplateID: templateID, MaxAssetsToTokenize: 5}},
	})
	require.Error(t, err)
	assert.Equal(t, fmt.Sprintf("Template %d has already been tokenized", templateID), err.Error())
}

func TestTokenizeTraitFactorValidation(t *testing.T) {
	f := newFixture(t)
	f.seedCollection(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		factor  TraitFactor
		message string
	}{
		{
			name:    "min factor below one",
			factor:  TraitFactor{TraitName: "rarity", MinFactor: 0.5, MaxFactor: 2},
			message: "Minimum Factor must be >= 1",
		},
		{
			name:    "max factor below one",
			factor:  TraitFactor{TraitName: "rarity", MinFactor: 1, MaxFactor: 0.5},
			message: "Maximum Factor must be >= 1",
		},
		{
			name:    "max below min",
			factor:  TraitFactor{TraitName: "rarity", MinFactor: 3, MaxFactor: 2},
			message: "Maximum Factor must be >= Minimum Factor",
		},
		{
			name: "value factor below one",
			factor: TraitFactor{TraitName: "rarity", MinFactor: 1, MaxFactor: 4,
				Values: []ValueFactor{{Value: "common", Factor: 0.5}}},
			message: "Value factor must be >= 1",
		},
		{
			name: "value factor above max",
			factor: TraitFactor{TraitName: "rarity", MinFactor: 1, MaxFactor: 4,
				Values: []ValueFactor{{Value: "epic", Factor: 5}}},
			message: "Value factor must be <= maximum factor",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Tokenize(ctx, "shitcollect", TokenizeRequest{
				AuthorizedAccount: "shitcollect",
				CollectionName:    "shitpics",
				MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
				TraitFactors:      []TraitFactor{tc.factor},
			})
			require.Error(t, err)
			assert.Equal(t, tc.message, err.Error())
		})
	}
}

func TestDepositMemoDispatch(t *testing.T) {
	f := newFixture(t)
	f.seedCollection(t)
	templateID := f.seedTemplate(t, 10, nil)
	assetID := f.mintTo(t, "alice", templateID, nil)
	ctx := context.Background()

	err := f.registry.Transfer(ctx, "alice", contractAccount, []uint64{assetID}, "selling these")
	require.Error(t, err)
	assert.Equal(t, "Invalid Memo.", err.Error())

	require.NoError(t, f.registry.Transfer(ctx, "alice", contractAccount, []uint64{assetID}, "deposit"))

	pending, err := f.service.PendingDeposits(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{assetID}, pending)

	// A second deposit merges into the same pending row.
	second := f.mintTo(t, "alice", templateID, nil)
	require.NoError(t, f.registry.Transfer(ctx, "alice", contractAccount, []uint64{second}, "deposit"))

	pending, err = f.service.PendingDeposits(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{assetID, second}, pending)
}

func TestTokenizeAssetsIssuesClaims(t *testing.T) {
	f := newFixture(t)
	f.seedCollection(t)
	templateID := f.seedTemplate(t, 10, nil)
	ctx := context.Background()

	_, err := f.service.Tokenize(ctx, "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
		Templates:         []TemplateShare{{TemplateID: templateID, MaxAssetsToTokenize: 4}},
	})
	require.NoError(t, err)

	assetID := f.mintTo(t, "alice", templateID, nil)
	require.NoError(t, f.registry.Transfer(ctx, "alice", contractAccount, []uint64{assetID}, "deposit"))

	err = f.service.TokenizeAssets(ctx, "alice", "alice", []uint64{9999})
	require.Error(t, err)
	assert.Equal(t, "Asset 9999 not found in Transfer.", err.Error())

	require.NoError(t, f.service.TokenizeAssets(ctx, "alice", "alice", []uint64{assetID}))

	// Whole pool backs 4 assets: each conversion pays out a quarter.
	balance, err := f.tokens.BalanceOf(f.db, "alice", ledger.Symbol{Code: "SHIT", Precision: 4})
	require.NoError(t, err)
	assert.Equal(t, "25.0000 SHIT", balance.String())

	tokenRow, err := f.service.GetToken(ctx, "SHIT")
	require.NoError(t, err)
	assert.Equal(t, "25.0000 SHIT", tokenRow.IssuedSupply.String())

	// The deposit row is consumed.
	pending, err := f.service.PendingDeposits(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = f.service.TokenizeAssets(ctx, "alice", "alice", []uint64{assetID})
	assert.ErrorIs(t, err, ErrNoAssetsFound)
}

func TestTokenizeAssetsPoolCapacity(t *testing.T) {
	f := newFixture(t)
	f.seedCollection(t)
	templateID := f.seedTemplate(t, 10, nil)
	ctx := context.Background()

	_, err := f.service.Tokenize(ctx, "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
		Templates:         []TemplateShare{{TemplateID: templateID, MaxAssetsToTokenize: 1}},
	})
	require.NoError(t, err)

	first := f.mintTo(t, "alice", templateID, nil)
	second := f.mintTo(t, "alice", templateID, nil)
	require.NoError(t, f.registry.Transfer(ctx, "alice", contractAccount, []uint64{first, second}, "deposit"))

	require.NoError(t, f.service.TokenizeAssets(ctx, "alice", "alice", []uint64{first}))

	err = f.service.TokenizeAssets(ctx, "alice", "alice", []uint64{second})
	require.Error(t, err)
	assert.Equal(t,
		fmt.Sprintf("Template %d cannot be tokenized. Maximum has been reached.", templateID),
		err.Error())
}

func TestTraitFactorsScalePayout(t *testing.T) {
	f := newFixture(t)
	f.seedCollection(t)
	templateID := f.seedTemplate(t, 10, nil)
	ctx := context.Background()

	_, err := f.service.Tokenize(ctx, "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
		Templates:         []TemplateShare{{TemplateID: templateID, MaxAssetsToTokenize: 2}},
		TraitFactors: []TraitFactor{{
			TraitName: "rarity",
			MinFactor: 1,
			MaxFactor: 4,
			Values: []ValueFactor{
				{Value: "common", Factor: 1},
				{Value: "epic", Factor: 4},
			},
		}},
	})
	require.NoError(t, err)

	epic := f.mintTo(t, "alice", templateID, map[string]interface{}{"rarity": "epic"})
	common := f.mintTo(t, "bob", templateID, map[string]interface{}{"rarity": "common"})

	require.NoError(t, f.registry.Transfer(ctx, "alice", contractAccount, []uint64{epic}, "deposit"))
	require.NoError(t, f.registry.Transfer(ctx, "bob", contractAccount, []uint64{common}, "deposit"))
	require.NoError(t, f.service.TokenizeAssets(ctx, "alice", "alice", []uint64{epic}))
	require.NoError(t, f.service.TokenizeAssets(ctx, "bob", "bob", []uint64{common}))

	symbol := ledger.Symbol{Code: "SHIT", Precision: 4}

	// Each asset's base share is 50.0000. The epic trait carries the best
	// factor and collects the full base; common is scaled down by 1/4.
	aliceBalance, err := f.tokens.BalanceOf(f.db, "alice", symbol)
	require.NoError(t, err)
	assert.Equal(t, "50.0000 SHIT", aliceBalance.String())

	bobBalance, err := f.tokens.BalanceOf(f.db, "bob", symbol)
	require.NoError(t, err)
	assert.Equal(t, "12.5000 SHIT", bobBalance.String())
}

func TestRedeemRequiresExactAmount(t *testing.T) {
	f := newFixture(t)
	f.seedCollection(t)
	templateID := f.seedTemplate(t, 10, nil)
	ctx := context.Background()

	_, err := f.service.Tokenize(ctx, "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
		Templates:         []TemplateShare{{TemplateID: templateID, MaxAssetsToTokenize: 4}},
	})
	require.NoError(t, err)

	assetID := f.mintTo(t, "alice", templateID, nil)
	require.NoError(t, f.registry.Transfer(ctx, "alice", contractAccount, []uint64{assetID}, "deposit"))
	require.NoError(t, f.service.TokenizeAssets(ctx, "alice", "alice", []uint64{assetID}))

	// Park the claims with the contract for redemption.
	require.NoError(t, f.tokens.Transfer(ctx, "alice", "alice", contractAccount,
		ledger.MustParseAsset("25.0000 SHIT"), "redeem"))
	assert.Equal(t, "25.0000 SHIT", f.contractBalance(t, "alice", "SHIT"))

	err = f.service.Redeem(ctx, "alice", "alice", ledger.MustParseAsset("0.0000 SHIT"))
	require.Error(t, err)
	assert.Equal(t, "Must redeem positive amount", err.Error())

	err = f.service.Redeem(ctx, "alice", "alice", ledger.MustParseAsset("10.0000 SHIT"))
	require.Error(t, err)
	assert.Equal(t, "Invalid amount. Must transfer exactly 25.0000 SHIT", err.Error())

	require.NoError(t, f.service.Redeem(ctx, "alice", "alice", ledger.MustParseAsset("25.0000 SHIT")))

	// The asset is back with alice, the issued supply burned down.
	assets, err := f.registry.AccountAssets(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, assetID, assets[0].ID)

	tokenRow, err := f.service.GetToken(ctx, "SHIT")
	require.NoError(t, err)
	assert.True(t, tokenRow.IssuedSupply.IsZero())

	err = f.service.Redeem(ctx, "alice", "alice", ledger.MustParseAsset("25.0000 SHIT"))
	assert.ErrorIs(t, err, ErrNoAssetsAvailable)
}

func TestWithdrawReturnsParkedBalances(t *testing.T) {
	f := newFixture(t)
	f.seedCollection(t)
	ctx := context.Background()

	_, err := f.service.Tokenize(ctx, "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
	})
	require.NoError(t, err)

	// Move claims to alice, then park part of them with the contract.
	require.NoError(t, f.tokens.Transfer(ctx, contractAccount, contractAccount, "alice",
		ledger.MustParseAsset("40.0000 SHIT"), "grant"))
	require.NoError(t, f.tokens.Transfer(ctx, "alice", "alice", contractAccount,
		ledger.MustParseAsset("30.0000 SHIT"), "stake"))

	err = f.service.Withdraw(ctx, "bob", "bob", []ledger.Asset{ledger.MustParseAsset("1.0000 SHIT")})
	require.Error(t, err)
	assert.Equal(t, "No balance object found", err.Error())

	err = f.service.Withdraw(ctx, "alice", "alice", []ledger.Asset{ledger.MustParseAsset("1.0000 MORE")})
	require.Error(t, err)
	assert.Equal(t, "Balance not found", err.Error())

	err = f.service.Withdraw(ctx, "alice", "alice", []ledger.Asset{ledger.MustParseAsset("31.0000 SHIT")})
	require.Error(t, err)
	assert.Equal(t, "Overdrawn Balance", err.Error())

	require.NoError(t, f.service.Withdraw(ctx, "alice", "alice",
		[]ledger.Asset{ledger.MustParseAsset("30.0000 SHIT")}))

	balance, err := f.tokens.BalanceOf(f.db, "alice", ledger.Symbol{Code: "SHIT", Precision: 4})
	require.NoError(t, err)
	assert.Equal(t, "40.0000 SHIT", balance.String())

	// The parked row is deleted once drained.
	var count int64
	require.NoError(t, f.db.Model(&ContractBalance{}).Where("account = ?", "alice").Count(&count).Error)
	assert.Zero(t, count)
}

func TestUnsupportedTokenMemo(t *testing.T) {
	f := newFixture(t)
	f.seedCollection(t)
	ctx := context.Background()

	_, err := f.service.Tokenize(ctx, "shitcollect", TokenizeRequest{
		AuthorizedAccount: "shitcollect",
		CollectionName:    "shitpics",
		MaximumSupply:     ledger.MustParseAsset("100.0000 SHIT"),
	})
	require.NoError(t, err)
	require.NoError(t, f.tokens.Transfer(ctx, contractAccount, contractAccount, "alice",
		ledger.MustParseAsset("10.0000 SHIT"), "grant"))

	err = f.tokens.Transfer(ctx, "alice", "alice", contractAccount,
		ledger.MustParseAsset("1.0000 SHIT"), "whatever")
	require.Error(t, err)
	assert.Equal(t, "Unsupported memo", err.Error())

	// Listing collateral deposits pass through the hook untouched.
	require.NoError(t, f.tokens.Transfer(ctx, "alice", "alice", contractAccount,
		ledger.MustParseAsset("1.0000 SHIT"), "deposit: listing 1"))
}
