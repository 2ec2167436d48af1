package registry

import (
	"time"

	"gorm.io/datatypes"
)

// Collection groups assets under an author and an authorized-account list.
// Collection authority gates tokenization.
type Collection struct {
	Name               string                       `json:"collection_name" gorm:"primaryKey;size:12"`
	Author             string                       `json:"author" gorm:"not null;index"`
	AllowNotify        bool                         `json:"allow_notify" gorm:"default:true"`
	AuthorizedAccounts datatypes.JSONSlice[string]  `json:"authorized_accounts"`
	NotifyAccounts     datatypes.JSONSlice[string]  `json:"notify_accounts"`
	MarketFee          float64                      `json:"market_fee"`
	Data               datatypes.JSONMap            `json:"data"`
	CreatedAt          time.Time                    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time                    `json:"updated_at" gorm:"autoUpdateTime"`
}

// HasAuthority reports whether account may act on the collection.
func (c *Collection) HasAuthority(account string) bool {
	for _, authorized := range c.AuthorizedAccounts {
		if authorized == account {
			return true
		}
	}
	return false
}

// FormatField is one typed attribute in a schema format.
type FormatField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema defines the attribute format shared by templates and assets of a
// collection.
type Schema struct {
	ID             uint                             `json:"-" gorm:"primaryKey;autoIncrement"`
	CollectionName string                           `json:"collection_name" gorm:"uniqueIndex:idx_schema_scope;size:12;not null"`
	Name           string                           `json:"schema_name" gorm:"uniqueIndex:idx_schema_scope;size:12;not null"`
	Format         datatypes.JSONSlice[FormatField] `json:"format"`
	CreatedAt      time.Time                        `json:"created_at" gorm:"autoCreateTime"`
}

// Template is a mintable blueprint within a schema. MaxSupply of zero means
// unbounded.
type Template struct {
	ID             int32             `json:"template_id" gorm:"primaryKey;autoIncrement"`
	CollectionName string            `json:"collection_name" gorm:"index;size:12;not null"`
	SchemaName     string            `json:"schema_name" gorm:"size:12;not null"`
	Transferable   bool              `json:"transferable" gorm:"default:true"`
	Burnable       bool              `json:"burnable" gorm:"default:true"`
	MaxSupply      uint32            `json:"max_supply"`
	IssuedSupply   uint32            `json:"issued_supply"`
	ImmutableData  datatypes.JSONMap `json:"immutable_data"`
	CreatedAt      time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

// Asset is one minted non-fungible asset. Owner is the account scope the
// asset currently lives under.
type Asset struct {
	ID             uint64            `json:"asset_id" gorm:"primaryKey;autoIncrement"`
	Owner          string            `json:"owner" gorm:"index;not null"`
	CollectionName string            `json:"collection_name" gorm:"index;size:12;not null"`
	SchemaName     string            `json:"schema_name" gorm:"size:12;not null"`
	TemplateID     int32             `json:"template_id" gorm:"index"`
	ImmutableData  datatypes.JSONMap `json:"immutable_data"`
	MutableData    datatypes.JSONMap `json:"mutable_data"`
	CreatedAt      time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}
