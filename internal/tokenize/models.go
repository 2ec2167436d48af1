package tokenize

import (
	"time"

	"gorm.io/datatypes"

	"rwax/lending-portal/lending-portal-backend/internal/ledger"
)

// TemplateShare allocates part of a token's supply to one registry template.
type TemplateShare struct {
	TemplateID          int32  `json:"template_id"`
	MaxAssetsToTokenize uint32 `json:"max_assets_to_tokenize"`
}

// ValueFactor weights one concrete trait value.
type ValueFactor struct {
	Value  string  `json:"value"`
	Factor float64 `json:"factor"`
}

// TraitFactor weights a named trait of the backing assets. Factors are
// valuation weights applied when an asset is converted into fungible claims.
type TraitFactor struct {
	TraitName string        `json:"trait_name"`
	MinValue  float64       `json:"min_value"`
	MaxValue  float64       `json:"max_value"`
	MinFactor float64       `json:"min_factor"`
	MaxFactor float64       `json:"max_factor"`
	Values    []ValueFactor `json:"values"`
}

// Token is one tokenized-asset claim currency created by tokenize.
type Token struct {
	Code              string                             `json:"code" gorm:"primaryKey;size:7"`
	Precision         int32                              `json:"precision" gorm:"not null"`
	MaximumSupply     ledger.Asset                       `json:"maximum_supply" gorm:"type:text;not null"`
	IssuedSupply      ledger.Asset                       `json:"issued_supply" gorm:"type:text;not null"`
	CollectionName    string                             `json:"collection_name" gorm:"index;size:12;not null"`
	AuthorizedAccount string                             `json:"authorized_account" gorm:"not null"`
	Templates         datatypes.JSONSlice[TemplateShare] `json:"templates"`
	CreatedAt         time.Time                          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time                          `json:"updated_at" gorm:"autoUpdateTime"`
}

// TemplatePool tracks how many assets of one template have been converted
// and the slice of token supply backing them.
type TemplatePool struct {
	TemplateID          int32        `json:"template_id" gorm:"primaryKey"`
	MaxAssetsToTokenize uint32       `json:"max_assets_to_tokenize" gorm:"not null"`
	CurrentlyTokenized  uint32       `json:"currently_tokenized"`
	TokenShare          ledger.Asset `json:"token_share" gorm:"type:text;not null"`
}

// TraitFactorSet stores the immutable valuation weights attached to a token
// at tokenize time.
type TraitFactorSet struct {
	Code    string                           `json:"code" gorm:"primaryKey;size:7"`
	Factors datatypes.JSONSlice[TraitFactor] `json:"trait_factors"`
}

// PooledAsset is an NFT held by the contract as backing for issued claims,
// scoped by token code.
type PooledAsset struct {
	ID      uint   `json:"-" gorm:"primaryKey;autoIncrement"`
	Code    string `json:"code" gorm:"index;size:7;not null"`
	AssetID uint64 `json:"asset_id" gorm:"uniqueIndex;not null"`
}

// InboundTransfer accumulates NFTs a user has deposited with the contract
// and not yet converted.
type InboundTransfer struct {
	User      string                      `json:"user" gorm:"primaryKey"`
	Assets    datatypes.JSONSlice[uint64] `json:"assets"`
	UpdatedAt time.Time                   `json:"updated_at" gorm:"autoUpdateTime"`
}

// ContractBalance is a token quantity a user has parked with the contract
// (memo "redeem"/"stake") pending a follow-up action.
type ContractBalance struct {
	ID        uint         `json:"-" gorm:"primaryKey;autoIncrement"`
	Account   string       `json:"account" gorm:"uniqueIndex:idx_cbalance_scope;not null"`
	Code      string       `json:"code" gorm:"uniqueIndex:idx_cbalance_scope;size:7;not null"`
	Quantity  ledger.Asset `json:"quantity" gorm:"type:text;not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}
