package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"rwax/lending-portal/lending-portal-backend/internal/auth"
)

var (
	// ErrCollectionNotFound carries the contract's exact text.
	ErrCollectionNotFound = errors.New("No collection with this name exists")

	ErrCollectionExists = errors.New("collection already exists")
	ErrSchemaNotFound   = errors.New("schema not found")
	ErrSupplyExhausted  = errors.New("template max supply reached")
)

// TransferHook observes committed asset transfers, mirroring the registry's
// transfer notifications. Hooks run inside the transfer's transaction; a
// hook error aborts the transfer.
type TransferHook func(tx *gorm.DB, from, to string, assetIDs []uint64, memo string) error

// Service is the NFT asset registry. The lending core consumes it through
// the narrow adapter interfaces declared by the tokenize and listings
// packages.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	hooks  []TransferHook
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// RegisterTransferHook subscribes to asset transfers.
func (s *Service) RegisterTransferHook(hook TransferHook) {
	s.hooks = append(s.hooks, hook)
}

// CreateCollection registers a new collection owned by author. The author
// is always part of the authorized-account set.
func (s *Service) CreateCollection(ctx context.Context, author, name string, authorized []string, marketFee float64, data map[string]interface{}) (*Collection, error) {
	hasAuthor := false
	for _, account := range authorized {
		if account == author {
			hasAuthor = true
			break
		}
	}
	if !hasAuthor {
		authorized = append([]string{author}, authorized...)
	}

	collection := &Collection{
		Name:               name,
		Author:             author,
		AuthorizedAccounts: datatypes.NewJSONSlice(authorized),
		MarketFee:          marketFee,
		Data:               data,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Collection{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrCollectionExists
		}
		return tx.Create(collection).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collection created",
		zap.String("collection", name),
		zap.String("author", author))
	return collection, nil
}

// GetCollection resolves a collection by name within tx.
func (s *Service) GetCollection(tx *gorm.DB, name string) (*Collection, error) {
	var collection Collection
	if err := tx.First(&collection, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCollectionNotFound
		}
		return nil, err
	}
	return &collection, nil
}

// CheckCollectionAuth fails unless account is on the collection's
// authorized-account list.
func (s *Service) CheckCollectionAuth(tx *gorm.DB, collectionName, account string) error {
	collection, err := s.GetCollection(tx, collectionName)
	if err != nil {
		return err
	}
	if !collection.HasAuthority(account) {
		return auth.ErrNotAuthorized
	}
	return nil
}

// CreateSchema adds an attribute format to a collection.
func (s *Service) CreateSchema(ctx context.Context, authorizer, collectionName, schemaName string, format []FormatField) (*Schema, error) {
	schema := &Schema{
		CollectionName: collectionName,
		Name:           schemaName,
		Format:         datatypes.NewJSONSlice(format),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.CheckCollectionAuth(tx, collectionName, authorizer); err != nil {
			return err
		}
		return tx.Create(schema).Error
	})
	if err != nil {
		return nil, err
	}
	return schema, nil
}

// CreateTemplate adds a mintable blueprint to a schema.
func (s *Service) CreateTemplate(ctx context.Context, authorizer, collectionName, schemaName string, maxSupply uint32, immutableData map[string]interface{}) (*Template, error) {
	template := &Template{
		CollectionName: collectionName,
		SchemaName:     schemaName,
		MaxSupply:      maxSupply,
		ImmutableData:  immutableData,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.CheckCollectionAuth(tx, collectionName, authorizer); err != nil {
			return err
		}
		var schema Schema
		if err := tx.First(&schema, "collection_name = ? AND name = ?", collectionName, schemaName).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSchemaNotFound
			}
			return err
		}
		return tx.Create(template).Error
	})
	if err != nil {
		return nil, err
	}
	return template, nil
}

// GetTemplate resolves a template within its collection scope.
func (s *Service) GetTemplate(tx *gorm.DB, collectionName string, templateID int32) (*Template, error) {
	var template Template
	err := tx.First(&template, "id = ? AND collection_name = ?", templateID, collectionName).Error
	if err != nil {
		return nil, err
	}
	return &template, nil
}

// MintAsset mints one asset to owner. TemplateID of -1 mints without a
// template, matching the registry's convention.
func (s *Service) MintAsset(ctx context.Context, authorizer, collectionName, schemaName string, templateID int32, owner string, immutable, mutable map[string]interface{}) (*Asset, error) {
	asset := &Asset{
		Owner:          owner,
		CollectionName: collectionName,
		SchemaName:     schemaName,
		TemplateID:     templateID,
		ImmutableData:  immutable,
		MutableData:    mutable,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.CheckCollectionAuth(tx, collectionName, authorizer); err != nil {
			return err
		}
		var schema Schema
		if err := tx.First(&schema, "collection_name = ? AND name = ?", collectionName, schemaName).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSchemaNotFound
			}
			return err
		}
		if templateID > 0 {
			template, err := s.GetTemplate(tx, collectionName, templateID)
			if err != nil {
				return fmt.Errorf("template lookup: %w", err)
			}
			if template.MaxSupply > 0 && template.IssuedSupply >= template.MaxSupply {
				return ErrSupplyExhausted
			}
			template.IssuedSupply++
			if err := tx.Save(template).Error; err != nil {
				return err
			}
		}
		return tx.Create(asset).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("asset minted",
		zap.Uint64("asset_id", asset.ID),
		zap.String("collection", collectionName),
		zap.String("owner", owner))
	return asset, nil
}

// GetAsset resolves one asset by id within tx.
func (s *Service) GetAsset(tx *gorm.DB, assetID uint64) (*Asset, error) {
	var asset Asset
	if err := tx.First(&asset, "id = ?", assetID).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

// AccountAssets reads the per-account asset table.
func (s *Service) AccountAssets(ctx context.Context, account string) ([]Asset, error) {
	var assets []Asset
	err := s.db.WithContext(ctx).
		Where("owner = ?", account).
		Order("id").
		Find(&assets).Error
	return assets, err
}

// Transfer moves assets between accounts as one atomic action and notifies
// registered hooks.
func (s *Service) Transfer(ctx context.Context, from, to string, assetIDs []uint64, memo string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := auth.RequireAuthority(from, from); err != nil {
			return err
		}
		return s.TransferTx(tx, from, to, assetIDs, memo)
	})
}

// TransferTx is Transfer within an enclosing transaction. Ownership of every
// asset is verified before any row moves.
func (s *Service) TransferTx(tx *gorm.DB, from, to string, assetIDs []uint64, memo string) error {
	for _, assetID := range assetIDs {
		asset, err := s.GetAsset(tx, assetID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("Asset ID not found: %d", assetID)
			}
			return err
		}
		if asset.Owner != from {
			return fmt.Errorf("asset %d is not owned by %s", assetID, from)
		}
		asset.Owner = to
		if err := tx.Save(asset).Error; err != nil {
			return err
		}
	}

	for _, hook := range s.hooks {
		if err := hook(tx, from, to, assetIDs, memo); err != nil {
			return err
		}
	}
	return nil
}
