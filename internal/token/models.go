package token

import (
	"time"

	"rwax/lending-portal/lending-portal-backend/internal/ledger"
)

// Currency is the per-symbol stat row of the fungible ledger.
type Currency struct {
	Code          string       `json:"code" gorm:"primaryKey;size:7"`
	Precision     int32        `json:"precision" gorm:"not null"`
	Issuer        string       `json:"issuer" gorm:"not null;index"`
	MaximumSupply ledger.Asset `json:"maximum_supply" gorm:"type:text;not null"`
	Supply        ledger.Asset `json:"supply" gorm:"type:text;not null"`
	Name          string       `json:"name"`
	LogoSmall     string       `json:"logo_small"`
	LogoLarge     string       `json:"logo_large"`
	CreatedAt     time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

// Balance is one account's holding of one symbol.
type Balance struct {
	ID        uint         `json:"-" gorm:"primaryKey;autoIncrement"`
	Account   string       `json:"account" gorm:"uniqueIndex:idx_balance_scope;not null"`
	Code      string       `json:"code" gorm:"uniqueIndex:idx_balance_scope;size:7;not null"`
	Quantity  ledger.Asset `json:"quantity" gorm:"type:text;not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}
