package tokenize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"rwax/lending-portal/lending-portal-backend/internal/auth"
	"rwax/lending-portal/lending-portal-backend/internal/ledger"
	"rwax/lending-portal/lending-portal-backend/internal/registry"
)

// Error texts below the fold are part of the external contract; tests match
// them verbatim.
var (
	ErrPositiveSupply     = errors.New("Must provide positive supply")
	ErrSymbolExists       = errors.New("Symbol already exists")
	ErrTemplateMaxMissing = errors.New("Need to provide a maximum number of assets to tokenize")
	ErrTemplateSupply     = errors.New("Templates actual supply is less than given max supply")
	ErrMinFactor          = errors.New("Minimum Factor must be >= 1")
	ErrMaxFactor          = errors.New("Maximum Factor must be >= 1")
	ErrFactorOrder        = errors.New("Maximum Factor must be >= Minimum Factor")
	ErrValueFactorMin     = errors.New("Value factor must be >= 1")
	ErrValueFactorMax     = errors.New("Value factor must be <= maximum factor")
	ErrInvalidMemo        = errors.New("Invalid Memo.")
	ErrUnsupportedMemo    = errors.New("Unsupported memo")
	ErrTokenNotSupported  = errors.New("Token not supported")
	ErrNoAssetsFound      = errors.New("No assets found")
	ErrTokenNotFound      = errors.New("Token not found")
	ErrNoBalance          = errors.New("No balance object found")
	ErrBalanceNotFound    = errors.New("Balance not found")
	ErrOverdrawnBalance   = errors.New("Overdrawn Balance")
	ErrRedeemPositive     = errors.New("Must redeem positive amount")
	ErrNoAssetsAvailable  = errors.New("No assets available")
)

// AssetRegistry is the slice of the NFT registry the engine needs.
type AssetRegistry interface {
	CheckCollectionAuth(tx *gorm.DB, collectionName, account string) error
	GetTemplate(tx *gorm.DB, collectionName string, templateID int32) (*registry.Template, error)
	GetAsset(tx *gorm.DB, assetID uint64) (*registry.Asset, error)
	TransferTx(tx *gorm.DB, from, to string, assetIDs []uint64, memo string) error
}

// TokenLedger is the slice of the fungible ledger the engine needs.
type TokenLedger interface {
	CreateTx(tx *gorm.DB, issuer string, maximumSupply ledger.Asset, name, logoSmall, logoLarge string) error
	IssueTx(tx *gorm.DB, to string, quantity ledger.Asset, memo string) error
	TransferTx(tx *gorm.DB, from, to string, quantity ledger.Asset, memo string) error
}

// Service is the tokenization engine: it turns registry assets into
// fungible claims and back.
type Service struct {
	db              *gorm.DB
	logger          *zap.Logger
	registry        AssetRegistry
	tokens          TokenLedger
	contractAccount string
}

func NewService(db *gorm.DB, logger *zap.Logger, assetRegistry AssetRegistry, tokenLedger TokenLedger, contractAccount string) *Service {
	return &Service{
		db:              db,
		logger:          logger,
		registry:        assetRegistry,
		tokens:          tokenLedger,
		contractAccount: contractAccount,
	}
}

// TokenizeRequest mirrors the tokenize action's argument list.
type TokenizeRequest struct {
	AuthorizedAccount string          `json:"authorized_account"`
	CollectionName    string          `json:"collection_name"`
	MaximumSupply     ledger.Asset    `json:"maximum_supply"`
	Templates         []TemplateShare `json:"templates"`
	TraitFactors      []TraitFactor   `json:"trait_factors"`
	TokenName         string          `json:"token_name"`
	TokenLogo         string          `json:"token_logo"`
	TokenLogoLarge    string          `json:"token_logo_lg"`
}

// Tokenize creates a new claim token backed by a collection. All side
// effects commit together or not at all.
func (s *Service) Tokenize(ctx context.Context, signer string, req TokenizeRequest) (*Token, error) {
	if err := auth.RequireAuthority(signer, req.AuthorizedAccount); err != nil {
		return nil, err
	}

	var created *Token
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.registry.CheckCollectionAuth(tx, req.CollectionName, req.AuthorizedAccount); err != nil {
			return err
		}
		if !req.MaximumSupply.IsPositive() {
			return ErrPositiveSupply
		}

		var totalAssets uint32
		for _, share := range req.Templates {
			if share.MaxAssetsToTokenize == 0 {
				return ErrTemplateMaxMissing
			}
			totalAssets += share.MaxAssetsToTokenize
		}

		for _, share := range req.Templates {
			template, err := s.registry.GetTemplate(tx, req.CollectionName, share.TemplateID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("No template with this ID exists: %d", share.TemplateID)
				}
				return err
			}
			if template.MaxSupply > 0 && share.MaxAssetsToTokenize > template.MaxSupply {
				return ErrTemplateSupply
			}

			var existing TemplatePool
			err = tx.First(&existing, "template_id = ?", share.TemplateID).Error
			if err == nil {
				return fmt.Errorf("Template %d has already been tokenized", share.TemplateID)
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			pool := &TemplatePool{
				TemplateID:          share.TemplateID,
				MaxAssetsToTokenize: share.MaxAssetsToTokenize,
				TokenShare: req.MaximumSupply.ScaleRatio(
					decimal.NewFromInt(int64(share.MaxAssetsToTokenize)),
					decimal.NewFromInt(int64(totalAssets)),
				),
			}
			if err := tx.Create(pool).Error; err != nil {
				return err
			}
		}

		var count int64
		if err := tx.Model(&Token{}).Where("code = ?", req.MaximumSupply.Symbol.Code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrSymbolExists
		}

		if err := validateTraitFactors(req.TraitFactors); err != nil {
			return err
		}
		if len(req.TraitFactors) > 0 {
			set := &TraitFactorSet{
				Code:    req.MaximumSupply.Symbol.Code,
				Factors: datatypes.NewJSONSlice(req.TraitFactors),
			}
			if err := tx.Create(set).Error; err != nil {
				return err
			}
		}

		created = &Token{
			Code:              req.MaximumSupply.Symbol.Code,
			Precision:         req.MaximumSupply.Symbol.Precision,
			MaximumSupply:     req.MaximumSupply,
			IssuedSupply:      ledger.ZeroAsset(req.MaximumSupply.Symbol),
			CollectionName:    req.CollectionName,
			AuthorizedAccount: req.AuthorizedAccount,
			Templates:         datatypes.NewJSONSlice(req.Templates),
		}
		if err := tx.Create(created).Error; err != nil {
			return err
		}

		if err := s.tokens.CreateTx(tx, s.contractAccount, req.MaximumSupply,
			req.TokenName, req.TokenLogo, req.TokenLogoLarge); err != nil {
			return err
		}
		return s.tokens.IssueTx(tx, s.contractAccount, req.MaximumSupply, "Initialize New Token")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collection tokenized",
		zap.String("collection", req.CollectionName),
		zap.String("symbol", req.MaximumSupply.Symbol.Code),
		zap.String("maximum_supply", req.MaximumSupply.String()))
	return created, nil
}

func validateTraitFactors(factors []TraitFactor) error {
	for _, factor := range factors {
		if factor.MinFactor < 1 {
			return ErrMinFactor
		}
		if factor.MaxFactor < 1 {
			return ErrMaxFactor
		}
		if factor.MaxFactor < factor.MinFactor {
			return ErrFactorOrder
		}
		for _, value := range factor.Values {
			if value.Factor < 1 {
				return ErrValueFactorMin
			}
			if value.Factor > factor.MaxFactor {
				return ErrValueFactorMax
			}
		}
	}
	return nil
}

// HandleAssetTransfer is the registry transfer hook. Deposits to the
// contract account accumulate per user until tokenizenfts converts them.
func (s *Service) HandleAssetTransfer(tx *gorm.DB, from, to string, assetIDs []uint64, memo string) error {
	if to != s.contractAccount || from == s.contractAccount {
		return nil
	}
	if strings.HasPrefix(memo, "listing") {
		// Listing collateral escrow; the listings state machine owns it.
		return nil
	}
	if !strings.HasPrefix(memo, "deposit") {
		return ErrInvalidMemo
	}

	var transfer InboundTransfer
	err := tx.First(&transfer, "user = ?", from).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&InboundTransfer{
			User:   from,
			Assets: datatypes.NewJSONSlice(assetIDs),
		}).Error
	}
	if err != nil {
		return err
	}

	merged := []uint64(transfer.Assets)
	for _, assetID := range assetIDs {
		present := false
		for _, existing := range merged {
			if existing == assetID {
				present = true
				break
			}
		}
		if !present {
			merged = append(merged, assetID)
		}
	}
	transfer.Assets = datatypes.NewJSONSlice(merged)
	return tx.Save(&transfer).Error
}

// HandleTokenTransfer is the fungible-ledger transfer hook. Tokens parked
// with the contract under a recognized memo become contract balances for a
// follow-up redeem; collateral deposits pass through untouched.
func (s *Service) HandleTokenTransfer(tx *gorm.DB, from, to string, quantity ledger.Asset, memo string) error {
	if to != s.contractAccount || from == s.contractAccount || quantity.IsZero() {
		return nil
	}

	switch {
	case memo == "redeem" || memo == "stake":
		var count int64
		if err := tx.Model(&Token{}).Where("code = ?", quantity.Symbol.Code).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrTokenNotSupported
		}
		return s.addBalance(tx, from, quantity)
	case strings.HasPrefix(memo, "deposit"):
		// Listing collateral; the listings state machine owns this escrow.
		return nil
	default:
		return ErrUnsupportedMemo
	}
}

// TokenizeAssets converts previously deposited NFTs into fungible claims.
func (s *Service) TokenizeAssets(ctx context.Context, signer, user string, assetIDs []uint64) error {
	if err := auth.RequireAuthority(signer, user); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var transfer InboundTransfer
		if err := tx.First(&transfer, "user = ?", user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoAssetsFound
			}
			return err
		}

		remaining := []uint64(transfer.Assets)
		for _, assetID := range assetIDs {
			idx := -1
			for i, deposited := range remaining {
				if deposited == assetID {
					idx = i
					break
				}
			}
			if idx < 0 {
				return fmt.Errorf("Asset %d not found in Transfer.", assetID)
			}
			remaining = append(remaining[:idx], remaining[idx+1:]...)

			if err := s.tokenizeAsset(tx, assetID, user); err != nil {
				return err
			}
		}

		if len(remaining) == 0 {
			return tx.Delete(&transfer).Error
		}
		transfer.Assets = datatypes.NewJSONSlice(remaining)
		return tx.Save(&transfer).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("assets tokenized",
		zap.String("user", user),
		zap.Int("count", len(assetIDs)))
	return nil
}

func (s *Service) tokenizeAsset(tx *gorm.DB, assetID uint64, receiver string) error {
	asset, err := s.registry.GetAsset(tx, assetID)
	if err != nil || asset.Owner != s.contractAccount {
		return fmt.Errorf("Asset ID not found: %d", assetID)
	}
	if asset.TemplateID <= 0 {
		return fmt.Errorf("Invalid Template ID for Asset: %d", assetID)
	}

	template, err := s.registry.GetTemplate(tx, asset.CollectionName, asset.TemplateID)
	if err != nil {
		return fmt.Errorf("Template %d not found", asset.TemplateID)
	}

	var pool TemplatePool
	if err := tx.First(&pool, "template_id = ?", template.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("Template %d cannot be tokenized. No Token exists", template.ID)
		}
		return err
	}
	if pool.CurrentlyTokenized >= pool.MaxAssetsToTokenize {
		return fmt.Errorf("Template %d cannot be tokenized. Maximum has been reached.", template.ID)
	}

	pool.CurrentlyTokenized++
	if err := tx.Save(&pool).Error; err != nil {
		return err
	}

	var token Token
	if err := tx.First(&token, "code = ?", pool.TokenShare.Symbol.Code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTokenNotFound
		}
		return err
	}

	issued := s.calculateIssuedTokens(tx, asset, template, &pool)

	newIssued, err := token.IssuedSupply.Add(issued)
	if err != nil {
		return err
	}
	token.IssuedSupply = newIssued
	if err := tx.Save(&token).Error; err != nil {
		return err
	}

	if err := tx.Create(&PooledAsset{Code: token.Code, AssetID: assetID}).Error; err != nil {
		return err
	}

	return s.tokens.TransferTx(tx, s.contractAccount, receiver, issued,
		fmt.Sprintf("Tokenized Asset %d", assetID))
}

// calculateIssuedTokens prices one asset's claim: the template's equal
// share, scaled by the asset's trait factors relative to the best possible
// factor. The formula is deliberately isolated here; swapping the valuation
// model touches nothing else.
func (s *Service) calculateIssuedTokens(tx *gorm.DB, asset *registry.Asset, template *registry.Template, pool *TemplatePool) ledger.Asset {
	base := pool.TokenShare.DivUint(pool.MaxAssetsToTokenize)

	var set TraitFactorSet
	err := tx.First(&set, "code = ?", pool.TokenShare.Symbol.Code).Error
	if err != nil || len(set.Factors) == 0 {
		return base
	}

	factor := 1.0
	maxFactor := 1.0
	for _, traitFactor := range set.Factors {
		maxFactor *= traitFactor.MaxFactor

		value, ok := lookupTrait(traitFactor.TraitName, template, asset)
		if !ok {
			continue
		}
		for _, valueFactor := range traitFactor.Values {
			if valueFactor.Value == value {
				factor *= valueFactor.Factor
			}
		}
	}

	// The full supply is only reachable when every asset carries the best
	// factor, so each payout is normalized against the maximum.
	factor /= maxFactor

	return base.ScaleRatio(decimal.NewFromFloat(factor), decimal.NewFromInt(1))
}

func lookupTrait(name string, template *registry.Template, asset *registry.Asset) (string, bool) {
	for _, data := range []map[string]interface{}{template.ImmutableData, asset.ImmutableData, asset.MutableData} {
		if raw, ok := data[name]; ok {
			if value, ok := raw.(string); ok {
				return value, true
			}
		}
	}
	return "", false
}

// Redeem burns parked claim tokens and releases one backing asset.
func (s *Service) Redeem(ctx context.Context, signer, redeemer string, quantity ledger.Asset) error {
	if err := auth.RequireAuthority(signer, redeemer); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !quantity.IsPositive() {
			return ErrRedeemPositive
		}

		var token Token
		if err := tx.First(&token, "code = ?", quantity.Symbol.Code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenNotFound
			}
			return err
		}

		var pooled PooledAsset
		if err := tx.Order("id").First(&pooled, "code = ?", quantity.Symbol.Code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoAssetsAvailable
			}
			return err
		}

		asset, err := s.registry.GetAsset(tx, pooled.AssetID)
		if err != nil {
			return err
		}
		template, err := s.registry.GetTemplate(tx, asset.CollectionName, asset.TemplateID)
		if err != nil {
			return err
		}
		var pool TemplatePool
		if err := tx.First(&pool, "template_id = ?", asset.TemplateID).Error; err != nil {
			return err
		}

		required := s.calculateIssuedTokens(tx, asset, template, &pool)
		if cmp, err := quantity.Cmp(required); err != nil || cmp != 0 {
			return fmt.Errorf("Invalid amount. Must transfer exactly %s", required)
		}

		if err := s.withdrawBalances(tx, redeemer, []ledger.Asset{required}); err != nil {
			return err
		}

		pool.CurrentlyTokenized--
		if err := tx.Save(&pool).Error; err != nil {
			return err
		}
		if err := tx.Delete(&pooled).Error; err != nil {
			return err
		}

		newIssued, err := token.IssuedSupply.Sub(required)
		if err != nil {
			return err
		}
		token.IssuedSupply = newIssued
		if err := tx.Save(&token).Error; err != nil {
			return err
		}

		return s.registry.TransferTx(tx, s.contractAccount, redeemer,
			[]uint64{pooled.AssetID}, "Redeeming from RWAX")
	})
	if err != nil {
		return err
	}

	s.logger.Info("claim redeemed",
		zap.String("redeemer", redeemer),
		zap.String("quantity", quantity.String()))
	return nil
}

// Withdraw returns parked contract balances to their owner.
func (s *Service) Withdraw(ctx context.Context, signer, account string, quantities []ledger.Asset) error {
	if err := auth.RequireAuthority(signer, account); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.withdrawBalances(tx, account, quantities); err != nil {
			return err
		}
		for _, quantity := range quantities {
			if err := s.tokens.TransferTx(tx, s.contractAccount, account, quantity, "Balance Withdrawal"); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) addBalance(tx *gorm.DB, account string, quantity ledger.Asset) error {
	var balance ContractBalance
	err := tx.First(&balance, "account = ? AND code = ?", account, quantity.Symbol.Code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&ContractBalance{
			Account:  account,
			Code:     quantity.Symbol.Code,
			Quantity: quantity,
		}).Error
	}
	if err != nil {
		return err
	}

	total, err := balance.Quantity.Add(quantity)
	if err != nil {
		return err
	}
	balance.Quantity = total
	return tx.Save(&balance).Error
}

func (s *Service) withdrawBalances(tx *gorm.DB, account string, quantities []ledger.Asset) error {
	var count int64
	if err := tx.Model(&ContractBalance{}).Where("account = ?", account).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNoBalance
	}

	for _, quantity := range quantities {
		var balance ContractBalance
		err := tx.First(&balance, "account = ? AND code = ?", account, quantity.Symbol.Code).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBalanceNotFound
		}
		if err != nil {
			return err
		}

		remaining, err := balance.Quantity.Sub(quantity)
		if err != nil {
			return err
		}
		if remaining.Amount.IsNegative() || quantity.Amount.IsNegative() {
			return ErrOverdrawnBalance
		}

		if remaining.IsZero() {
			if err := tx.Delete(&balance).Error; err != nil {
				return err
			}
			continue
		}
		balance.Quantity = remaining
		if err := tx.Save(&balance).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetToken reads one claim token by code.
func (s *Service) GetToken(ctx context.Context, code string) (*Token, error) {
	var token Token
	if err := s.db.WithContext(ctx).First(&token, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

// ListTokens reads all claim tokens.
func (s *Service) ListTokens(ctx context.Context) ([]Token, error) {
	var tokens []Token
	err := s.db.WithContext(ctx).Order("code").Find(&tokens).Error
	return tokens, err
}

// PendingDeposits reads a user's undeposited NFT transfer row.
func (s *Service) PendingDeposits(ctx context.Context, user string) ([]uint64, error) {
	var transfer InboundTransfer
	err := s.db.WithContext(ctx).First(&transfer, "user = ?", user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return transfer.Assets, nil
}
