package token

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"rwax/lending-portal/lending-portal-backend/internal/auth"
	"rwax/lending-portal/lending-portal-backend/internal/ledger"
)

var (
	ErrTokenExists       = errors.New("token with this symbol already exists")
	ErrUnknownToken      = errors.New("token does not exist")
	ErrOverdrawnBalance  = errors.New("overdrawn balance")
	ErrInvalidQuantity   = errors.New("must transfer positive quantity")
	ErrPrecisionMismatch = errors.New("symbol precision mismatch")
	ErrExceedsMaxSupply  = errors.New("quantity exceeds available supply")
)

// TransferHook observes committed token transfers inside the transfer's
// transaction; a hook error aborts the transfer.
type TransferHook func(tx *gorm.DB, from, to string, quantity ledger.Asset, memo string) error

// Service is the fungible token ledger: create, issue, transfer with
// (account, amount, memo) semantics and hard symbol-precision enforcement.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	hooks  []TransferHook
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// RegisterTransferHook subscribes to token transfers.
func (s *Service) RegisterTransferHook(hook TransferHook) {
	s.hooks = append(s.hooks, hook)
}

// CreateTx registers a new currency with zero circulating supply.
func (s *Service) CreateTx(tx *gorm.DB, issuer string, maximumSupply ledger.Asset, name, logoSmall, logoLarge string) error {
	if !maximumSupply.IsPositive() {
		return ErrInvalidQuantity
	}

	var count int64
	if err := tx.Model(&Currency{}).Where("code = ?", maximumSupply.Symbol.Code).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrTokenExists
	}

	currency := &Currency{
		Code:          maximumSupply.Symbol.Code,
		Precision:     maximumSupply.Symbol.Precision,
		Issuer:        issuer,
		MaximumSupply: maximumSupply,
		Supply:        ledger.ZeroAsset(maximumSupply.Symbol),
		Name:          name,
		LogoSmall:     logoSmall,
		LogoLarge:     logoLarge,
	}
	return tx.Create(currency).Error
}

// IssueTx mints quantity to the issuer's balance, bounded by the maximum
// supply.
func (s *Service) IssueTx(tx *gorm.DB, to string, quantity ledger.Asset, memo string) error {
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}

	currency, err := s.getCurrency(tx, quantity.Symbol)
	if err != nil {
		return err
	}

	newSupply, err := currency.Supply.Add(quantity)
	if err != nil {
		return ErrPrecisionMismatch
	}
	if cmp, _ := newSupply.Cmp(currency.MaximumSupply); cmp > 0 {
		return ErrExceedsMaxSupply
	}

	currency.Supply = newSupply
	if err := tx.Save(currency).Error; err != nil {
		return err
	}
	return s.credit(tx, to, quantity)
}

// TransferTx moves quantity between accounts as an atomic debit/credit and
// notifies registered hooks.
func (s *Service) TransferTx(tx *gorm.DB, from, to string, quantity ledger.Asset, memo string) error {
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if _, err := s.getCurrency(tx, quantity.Symbol); err != nil {
		return err
	}

	if err := s.debit(tx, from, quantity); err != nil {
		return err
	}
	if err := s.credit(tx, to, quantity); err != nil {
		return err
	}

	for _, hook := range s.hooks {
		if err := hook(tx, from, to, quantity, memo); err != nil {
			return err
		}
	}
	return nil
}

// Transfer is TransferTx as a standalone signed action.
func (s *Service) Transfer(ctx context.Context, signer, from, to string, quantity ledger.Asset, memo string) error {
	if err := auth.RequireAuthority(signer, from); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.TransferTx(tx, from, to, quantity, memo)
	})
	if err == nil {
		s.logger.Info("token transfer",
			zap.String("from", from),
			zap.String("to", to),
			zap.String("quantity", quantity.String()),
			zap.String("memo", memo))
	}
	return err
}

// BalanceOf reads an account's holding; a missing row is the zero asset.
func (s *Service) BalanceOf(tx *gorm.DB, account string, symbol ledger.Symbol) (ledger.Asset, error) {
	var balance Balance
	err := tx.First(&balance, "account = ? AND code = ?", account, symbol.Code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.ZeroAsset(symbol), nil
	}
	if err != nil {
		return ledger.Asset{}, err
	}
	return balance.Quantity, nil
}

// AccountBalances reads every holding of an account.
func (s *Service) AccountBalances(ctx context.Context, account string) ([]Balance, error) {
	var balances []Balance
	err := s.db.WithContext(ctx).
		Where("account = ?", account).
		Order("code").
		Find(&balances).Error
	return balances, err
}

// DB exposes the handle for standalone reads by the HTTP layer.
func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) getCurrency(tx *gorm.DB, symbol ledger.Symbol) (*Currency, error) {
	var currency Currency
	if err := tx.First(&currency, "code = ?", symbol.Code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownToken
		}
		return nil, err
	}
	if currency.Precision != symbol.Precision {
		return nil, ErrPrecisionMismatch
	}
	return &currency, nil
}

func (s *Service) debit(tx *gorm.DB, account string, quantity ledger.Asset) error {
	var balance Balance
	err := tx.First(&balance, "account = ? AND code = ?", account, quantity.Symbol.Code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOverdrawnBalance
	}
	if err != nil {
		return err
	}

	remaining, err := balance.Quantity.Sub(quantity)
	if err != nil {
		return ErrPrecisionMismatch
	}
	if remaining.Amount.IsNegative() {
		return ErrOverdrawnBalance
	}

	balance.Quantity = remaining
	return tx.Save(&balance).Error
}

func (s *Service) credit(tx *gorm.DB, account string, quantity ledger.Asset) error {
	var balance Balance
	err := tx.First(&balance, "account = ? AND code = ?", account, quantity.Symbol.Code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&Balance{
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
		return ErrPrecisionMismatch
	}
	balance.Quantity = total
	return tx.Save(&balance).Error
}
